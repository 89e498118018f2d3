package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// NotificationProvider is an outbound notification destination. Email and
// chat destinations go through shoutrrr URLs; type "webhook" posts JSON to
// the configured URL directly.
type NotificationProvider struct {
	ID      string `gorm:"primaryKey" json:"id"`
	Name    string `json:"name"`
	Type    string `json:"type"` // smtp, discord, slack, telegram, generic, webhook
	URL     string `json:"url"`  // shoutrrr URL or webhook URL
	Enabled bool   `json:"enabled"`

	// Delivery preferences per alert severity.
	NotifyLowSeverity      bool `json:"notify_low_severity" gorm:"default:false"`
	NotifyMediumSeverity   bool `json:"notify_medium_severity" gorm:"default:true"`
	NotifyHighSeverity     bool `json:"notify_high_severity" gorm:"default:true"`
	NotifyCriticalSeverity bool `json:"notify_critical_severity" gorm:"default:true"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (n *NotificationProvider) BeforeCreate(tx *gorm.DB) (err error) {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	return
}

// WantsSeverity reports whether this provider subscribed to the severity.
func (n *NotificationProvider) WantsSeverity(severity string) bool {
	switch severity {
	case RiskLevelCritical:
		return n.NotifyCriticalSeverity
	case RiskLevelHigh:
		return n.NotifyHighSeverity
	case RiskLevelMedium:
		return n.NotifyMediumSeverity
	case RiskLevelLow:
		return n.NotifyLowSeverity
	default:
		return true
	}
}
