package security

import (
	"sync"
	"time"
)

// SharedState holds the process-wide mutable security state: the suspicious
// IP set fed by the block_ip alert action and the per-ip+tenant rate-limit
// violation counters. Counters are process-local; running multiple instances
// needs a shared backing store before they are consistent, which is a known
// limitation rather than something this package papers over.
type SharedState struct {
	mu            sync.RWMutex
	suspiciousIPs map[string]time.Time // ip -> when it was flagged
	violations    map[string]int       // "ip|tenant" -> cumulative count
}

// NewSharedState constructs empty shared state.
func NewSharedState() *SharedState {
	return &SharedState{
		suspiciousIPs: make(map[string]time.Time),
		violations:    make(map[string]int),
	}
}

// BlockIP adds an IP to the suspicious set consulted by future scorer runs.
func (s *SharedState) BlockIP(ip string) {
	if ip == "" {
		return
	}
	s.mu.Lock()
	s.suspiciousIPs[ip] = time.Now()
	s.mu.Unlock()
}

// UnblockIP removes an IP from the suspicious set.
func (s *SharedState) UnblockIP(ip string) {
	s.mu.Lock()
	delete(s.suspiciousIPs, ip)
	s.mu.Unlock()
}

// IsSuspicious reports whether the IP is in the suspicious set.
func (s *SharedState) IsSuspicious(ip string) bool {
	s.mu.RLock()
	_, ok := s.suspiciousIPs[ip]
	s.mu.RUnlock()
	return ok
}

// SuspiciousIPs returns a snapshot of the flagged IPs.
func (s *SharedState) SuspiciousIPs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.suspiciousIPs))
	for ip := range s.suspiciousIPs {
		out = append(out, ip)
	}
	return out
}

// RecordRateLimitViolation increments and returns the cumulative violation
// count for the ip+tenant pair.
func (s *SharedState) RecordRateLimitViolation(ip, tenantSlug string) int {
	key := ip + "|" + tenantSlug
	s.mu.Lock()
	s.violations[key]++
	count := s.violations[key]
	s.mu.Unlock()
	return count
}

// RateLimitViolations returns the cumulative violation count for the pair.
func (s *SharedState) RateLimitViolations(ip, tenantSlug string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.violations[ip+"|"+tenantSlug]
}

// PruneSuspiciousIPs drops IPs flagged before the retention cutoff, so a
// blocked address is not penalized forever. Returns how many were removed.
func (s *SharedState) PruneSuspiciousIPs(retention time.Duration) int {
	cutoff := time.Now().Add(-retention)
	removed := 0
	s.mu.Lock()
	for ip, flaggedAt := range s.suspiciousIPs {
		if flaggedAt.Before(cutoff) {
			delete(s.suspiciousIPs, ip)
			removed++
		}
	}
	s.mu.Unlock()
	return removed
}
