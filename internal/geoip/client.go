// Package geoip resolves IP addresses to coarse locations via an external
// lookup service. The enricher treats every failure here as "no location".
package geoip

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	neturl "net/url"
	"time"

	"github.com/aegishq/aegis/internal/models"
)

// Locator resolves an IP address to a location. Implementations return
// (nil, nil) or an error when the IP cannot be resolved; callers treat both
// as an absent location.
type Locator interface {
	Lookup(ctx context.Context, ip string) (*models.GeoLocation, error)
}

// HTTPLocator queries an ip-api.com style JSON endpoint.
type HTTPLocator struct {
	endpoint string
	client   *http.Client
}

// NewHTTPLocator builds a locator with a bounded per-lookup timeout.
func NewHTTPLocator(endpoint string, timeout time.Duration) *HTTPLocator {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &HTTPLocator{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

type lookupResponse struct {
	Status     string `json:"status"`
	Country    string `json:"country"`
	RegionName string `json:"regionName"`
	City       string `json:"city"`
	Timezone   string `json:"timezone"`
}

// Lookup resolves one IP. Network errors, non-200 responses and "fail"
// payloads all surface as errors so the caller can degrade to nil geo.
func (l *HTTPLocator) Lookup(ctx context.Context, ip string) (*models.GeoLocation, error) {
	url := l.endpoint + "/" + neturl.PathEscape(ip)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build geoip request: %w", err)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("geoip lookup: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("geoip lookup returned status %d", resp.StatusCode)
	}

	var payload lookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode geoip response: %w", err)
	}
	if payload.Status != "" && payload.Status != "success" {
		return nil, fmt.Errorf("geoip lookup failed for %s", ip)
	}

	return &models.GeoLocation{
		Country:  payload.Country,
		Region:   payload.RegionName,
		City:     payload.City,
		Timezone: payload.Timezone,
	}, nil
}
