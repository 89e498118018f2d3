// Package security implements the telemetry side of the engine: event
// enrichment, anomaly scoring and the fire-and-forget logging pipeline.
package security

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/aegishq/aegis/internal/geoip"
	"github.com/aegishq/aegis/internal/models"
)

// RawEvent is the caller-supplied event before enrichment.
type RawEvent struct {
	TenantSlug string         `json:"tenant_slug"`
	UserID     string         `json:"user_id"`
	Email      string         `json:"email,omitempty"`
	Action     string         `json:"action"`
	Success    bool           `json:"success"`
	IPAddress  string         `json:"ip_address,omitempty"`
	UserAgent  string         `json:"user_agent,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

var (
	browserPatterns = []struct {
		name    string
		version *regexp.Regexp
	}{
		{"Edge", regexp.MustCompile(`Edg(?:e|A|iOS)?/([\d.]+)`)},
		{"Opera", regexp.MustCompile(`OPR/([\d.]+)`)},
		{"Chrome", regexp.MustCompile(`Chrome/([\d.]+)`)},
		{"Firefox", regexp.MustCompile(`Firefox/([\d.]+)`)},
		{"Safari", regexp.MustCompile(`Version/([\d.]+).*Safari`)},
	}

	osPatterns = []struct {
		name    string
		version *regexp.Regexp
	}{
		{"Windows", regexp.MustCompile(`Windows NT ([\d.]+)`)},
		{"iOS", regexp.MustCompile(`(?:iPhone|iPad).*OS ([\d_]+)`)},
		{"macOS", regexp.MustCompile(`Mac OS X ([\d_.]+)`)},
		{"Android", regexp.MustCompile(`Android ([\d.]+)`)},
		{"Linux", regexp.MustCompile(`Linux`)},
	}

	// botSignature doubles as the scorer's automated-client heuristic.
	botSignature = regexp.MustCompile(`(?i)bot|crawler|spider|scraper|curl|wget|python|java/|go-http-client|httpclient|headless`)

	tabletSignature = regexp.MustCompile(`(?i)ipad|tablet|kindle|silk`)
	mobileSignature = regexp.MustCompile(`(?i)mobile|iphone|android|blackberry|windows phone`)
)

// Enricher augments raw events with parsed device info and geolocation.
// Geo lookups are cached per IP and skipped entirely for private/loopback
// addresses; lookup failures leave the event without a location.
type Enricher struct {
	locator geoip.Locator
	log     *logrus.Entry

	geoMu    sync.RWMutex
	geoCache map[string]*models.GeoLocation
}

// NewEnricher constructs an Enricher. A nil locator disables geolocation.
func NewEnricher(locator geoip.Locator, log *logrus.Entry) *Enricher {
	return &Enricher{
		locator:  locator,
		log:      log,
		geoCache: make(map[string]*models.GeoLocation),
	}
}

// Enrich builds the persistable event from a raw one. Missing user agent or
// IP leave the corresponding enrichment absent rather than failing.
func (e *Enricher) Enrich(ctx context.Context, raw RawEvent) *models.AuthEvent {
	event := &models.AuthEvent{
		TenantSlug: raw.TenantSlug,
		UserID:     raw.UserID,
		Email:      raw.Email,
		Action:     raw.Action,
		Success:    raw.Success,
		IPAddress:  raw.IPAddress,
		UserAgent:  raw.UserAgent,
		OccurredAt: time.Now().UTC(),
	}
	event.SetMetadataMap(raw.Metadata)

	if raw.UserAgent != "" {
		event.SetDevice(ParseUserAgent(raw.UserAgent))
	}
	if raw.IPAddress != "" {
		event.SetGeo(e.locate(ctx, raw.IPAddress))
	}
	return event
}

// ParseUserAgent extracts browser, OS and device type from a user-agent
// string via substring and regex token matching. Unrecognized agents come
// back as "Unknown" rather than empty so downstream grouping stays stable.
func ParseUserAgent(ua string) *models.DeviceInfo {
	info := &models.DeviceInfo{
		Browser:     models.BrowserInfo{Name: "Unknown"},
		OS:          models.OSInfo{Name: "Unknown"},
		DeviceType:  "desktop",
		Fingerprint: Fingerprint(ua),
	}

	for _, p := range browserPatterns {
		if m := p.version.FindStringSubmatch(ua); m != nil {
			info.Browser.Name = p.name
			if len(m) > 1 {
				info.Browser.Version = m[1]
			}
			break
		}
	}

	for _, p := range osPatterns {
		if m := p.version.FindStringSubmatch(ua); m != nil {
			info.OS.Name = p.name
			if len(m) > 1 {
				info.OS.Version = strings.ReplaceAll(m[1], "_", ".")
			}
			break
		}
	}

	switch {
	case botSignature.MatchString(ua):
		info.DeviceType = "bot"
	case tabletSignature.MatchString(ua):
		info.DeviceType = "tablet"
	case mobileSignature.MatchString(ua):
		info.DeviceType = "mobile"
	}

	return info
}

// Fingerprint derives a stable identifier from a user-agent string. It is a
// plain content hash for grouping repeat clients, not a security control.
func Fingerprint(ua string) string {
	sum := sha256.Sum256([]byte(ua))
	return hex.EncodeToString(sum[:16])
}

// IsAutomatedClient reports whether the UA matches bot/crawler/script
// signatures. Shared with the anomaly scorer.
func IsAutomatedClient(ua string) bool {
	return ua != "" && botSignature.MatchString(ua)
}

func (e *Enricher) locate(ctx context.Context, ip string) *models.GeoLocation {
	if e.locator == nil || IsPrivateIP(ip) {
		return nil
	}

	e.geoMu.RLock()
	cached, ok := e.geoCache[ip]
	e.geoMu.RUnlock()
	if ok {
		return cached
	}

	geo, err := e.locator.Lookup(ctx, ip)
	if err != nil {
		e.log.WithError(err).WithField("ip", ip).Debug("geolocation lookup failed")
		return nil
	}

	// Failed lookups are not cached, so a transient provider outage does
	// not pin an IP to "no location" forever.
	e.geoMu.Lock()
	e.geoCache[ip] = geo
	e.geoMu.Unlock()
	return geo
}

// IsPrivateIP reports whether the IP is in RFC1918, loopback, link-local or
// unique-local space, or is unparseable. Such addresses never get geo lookups.
func IsPrivateIP(ip string) bool {
	parsed := net.ParseIP(strings.TrimSpace(ip))
	if parsed == nil {
		return true
	}
	return parsed.IsLoopback() ||
		parsed.IsPrivate() ||
		parsed.IsLinkLocalUnicast() ||
		parsed.IsLinkLocalMulticast() ||
		parsed.IsUnspecified()
}
