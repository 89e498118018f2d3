package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Risk levels assigned by the anomaly scorer, ordered low to critical.
const (
	RiskLevelLow      = "low"
	RiskLevelMedium   = "medium"
	RiskLevelHigh     = "high"
	RiskLevelCritical = "critical"
)

// Well-known auth event actions referenced by the scorer and default rules.
const (
	ActionLoginSuccess      = "login_success"
	ActionLoginFailure      = "login_failure"
	ActionRateLimitExceeded = "rate_limit_exceeded"
	ActionAccessGranted     = "access_granted"
	ActionAccessDenied      = "access_denied"
)

// BrowserInfo identifies the client browser parsed from the user agent.
type BrowserInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// OSInfo identifies the client operating system parsed from the user agent.
type OSInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// DeviceInfo is the full device enrichment derived from a user-agent string.
type DeviceInfo struct {
	Browser     BrowserInfo `json:"browser"`
	OS          OSInfo      `json:"os"`
	DeviceType  string      `json:"device_type"` // desktop, mobile, tablet, bot
	Fingerprint string      `json:"fingerprint"`
}

// GeoLocation is the coarse location enrichment derived from an IP address.
type GeoLocation struct {
	Country  string `json:"country"`
	Region   string `json:"region"`
	City     string `json:"city"`
	Timezone string `json:"timezone"`
}

// SecurityContext annotates a single event with the scorer's verdict. It is
// derived state, persisted only as part of the event it belongs to.
type SecurityContext struct {
	RiskLevel    string   `json:"risk_level"`
	AnomalyScore int      `json:"anomaly_score"`
	Threats      []string `json:"threats"`
	Mitigations  []string `json:"mitigations"`
}

// AuthEvent is an append-only record of an authentication or authorization
// event, enriched with device/geo data and the anomaly scorer's verdict.
// Rows are write-once; nothing in the engine updates them after creation.
type AuthEvent struct {
	ID           uint      `json:"id" gorm:"primaryKey"`
	UUID         string    `json:"uuid" gorm:"uniqueIndex"`
	TenantSlug   string    `json:"tenant_slug" gorm:"index"`
	UserID       string    `json:"user_id" gorm:"index"`
	Email        string    `json:"email"`
	Action       string    `json:"action" gorm:"index"`
	Success      bool      `json:"success"`
	IPAddress    string    `json:"ip_address" gorm:"index"`
	UserAgent    string    `json:"user_agent"`
	Metadata     string    `json:"-" gorm:"type:text"` // JSON object
	DeviceInfo   string    `json:"-" gorm:"type:text"` // JSON DeviceInfo, empty when no UA
	GeoLocation  string    `json:"-" gorm:"type:text"` // JSON GeoLocation, empty when unresolved
	Country      string    `json:"country" gorm:"index"`
	RiskLevel    string    `json:"risk_level" gorm:"index"`
	AnomalyScore int       `json:"anomaly_score"`
	Threats      string    `json:"-" gorm:"type:text"` // JSON array of threat names
	OccurredAt   time.Time `json:"occurred_at" gorm:"index"`
	CreatedAt    time.Time `json:"created_at"`
}

func (e *AuthEvent) BeforeCreate(tx *gorm.DB) (err error) {
	if e.UUID == "" {
		e.UUID = uuid.New().String()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	return
}

// Device decodes the stored device enrichment, nil when absent.
func (e *AuthEvent) Device() *DeviceInfo {
	if e.DeviceInfo == "" {
		return nil
	}
	var d DeviceInfo
	if err := json.Unmarshal([]byte(e.DeviceInfo), &d); err != nil {
		return nil
	}
	return &d
}

// SetDevice encodes and stores the device enrichment.
func (e *AuthEvent) SetDevice(d *DeviceInfo) {
	if d == nil {
		e.DeviceInfo = ""
		return
	}
	enc, _ := json.Marshal(d)
	e.DeviceInfo = string(enc)
}

// Geo decodes the stored geolocation enrichment, nil when absent.
func (e *AuthEvent) Geo() *GeoLocation {
	if e.GeoLocation == "" {
		return nil
	}
	var g GeoLocation
	if err := json.Unmarshal([]byte(e.GeoLocation), &g); err != nil {
		return nil
	}
	return &g
}

// SetGeo encodes and stores the geolocation enrichment and mirrors the
// country into its indexed column for aggregation queries.
func (e *AuthEvent) SetGeo(g *GeoLocation) {
	if g == nil {
		e.GeoLocation = ""
		return
	}
	enc, _ := json.Marshal(g)
	e.GeoLocation = string(enc)
	e.Country = g.Country
}

// ThreatList decodes the stored threat names.
func (e *AuthEvent) ThreatList() []string {
	return decodeStringList(e.Threats)
}

// ApplySecurityContext copies the scorer's verdict onto the event row.
func (e *AuthEvent) ApplySecurityContext(sc SecurityContext) {
	e.RiskLevel = sc.RiskLevel
	e.AnomalyScore = sc.AnomalyScore
	enc, _ := json.Marshal(sc.Threats)
	e.Threats = string(enc)
}

// MetadataMap decodes the stored metadata object.
func (e *AuthEvent) MetadataMap() map[string]any {
	if e.Metadata == "" {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(e.Metadata), &m); err != nil {
		return nil
	}
	return m
}

// SetMetadataMap encodes and stores arbitrary caller metadata.
func (e *AuthEvent) SetMetadataMap(m map[string]any) {
	if len(m) == 0 {
		e.Metadata = ""
		return
	}
	enc, _ := json.Marshal(m)
	e.Metadata = string(enc)
}

// RiskRank maps a risk level to its ordering, unknown levels rank lowest.
func RiskRank(level string) int {
	switch level {
	case RiskLevelCritical:
		return 3
	case RiskLevelHigh:
		return 2
	case RiskLevelMedium:
		return 1
	default:
		return 0
	}
}

// MaxRiskLevel returns the higher of two risk levels.
func MaxRiskLevel(a, b string) string {
	if RiskRank(b) > RiskRank(a) {
		return b
	}
	if a == "" {
		return RiskLevelLow
	}
	return a
}
