package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	neturl "net/url"
	"time"

	"github.com/containrrr/shoutrrr"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/aegishq/aegis/internal/models"
)

// NotificationService delivers alert notifications. In-app notifications go
// to the database; email and chat destinations go through shoutrrr URLs;
// "webhook" providers receive the alert payload as JSON.
type NotificationService struct {
	db  *gorm.DB
	log *logrus.Entry

	httpClient *http.Client
}

// NewNotificationService returns a NotificationService using the provided DB.
func NewNotificationService(db *gorm.DB, log *logrus.Entry) *NotificationService {
	return &NotificationService{
		db:  db,
		log: log,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// SendEmail fans a message out to enabled smtp-type providers. An optional
// "severity" entry in config filters providers by their preferences.
func (s *NotificationService) SendEmail(ctx context.Context, subject, body string, config map[string]any) error {
	return s.fanOut(ctx, []string{"smtp"}, severityFrom(config), subject, body)
}

// SendWebhook posts the payload to enabled webhook-type providers.
func (s *NotificationService) SendWebhook(ctx context.Context, payload map[string]any, config map[string]any) error {
	providers, err := s.enabledProviders(ctx, []string{"webhook"})
	if err != nil {
		return err
	}
	severity := severityFrom(config)

	var firstErr error
	for _, provider := range providers {
		if severity != "" && !provider.WantsSeverity(severity) {
			continue
		}
		if err := s.postWebhook(ctx, provider, payload); err != nil {
			s.log.WithError(err).WithField("provider", provider.Name).Warn("webhook delivery failed")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// NotifyAdmin records an in-app notification and fans the message out to
// every enabled non-webhook provider subscribed to the severity.
func (s *NotificationService) NotifyAdmin(ctx context.Context, severity, title, message string) error {
	notification := &models.Notification{
		Type:    models.NotificationTypeSecurity,
		Title:   title,
		Message: message,
	}
	if err := s.db.WithContext(ctx).Create(notification).Error; err != nil {
		return fmt.Errorf("persist notification: %w", err)
	}

	return s.fanOut(ctx, nil, severity, title, message)
}

// fanOut sends title+message to enabled providers via shoutrrr. An empty
// types list means every non-webhook provider.
func (s *NotificationService) fanOut(ctx context.Context, types []string, severity, title, message string) error {
	providers, err := s.enabledProviders(ctx, types)
	if err != nil {
		return err
	}

	var firstErr error
	for _, provider := range providers {
		if provider.Type == "webhook" {
			continue
		}
		if severity != "" && !provider.WantsSeverity(severity) {
			continue
		}
		msg := fmt.Sprintf("%s\n\n%s", title, message)
		if err := shoutrrr.Send(provider.URL, msg); err != nil {
			s.log.WithError(err).WithField("provider", provider.Name).Warn("notification delivery failed")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (s *NotificationService) enabledProviders(ctx context.Context, types []string) ([]models.NotificationProvider, error) {
	q := s.db.WithContext(ctx).Where("enabled = ?", true)
	if len(types) > 0 {
		q = q.Where("type IN ?", types)
	}
	var providers []models.NotificationProvider
	if err := q.Find(&providers).Error; err != nil {
		return nil, fmt.Errorf("load notification providers: %w", err)
	}
	return providers, nil
}

func (s *NotificationService) postWebhook(ctx context.Context, provider models.NotificationProvider, payload map[string]any) error {
	if err := validateWebhookURL(provider.URL); err != nil {
		return fmt.Errorf("invalid webhook url: %w", err)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, provider.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// validateWebhookURL enforces http(s) schemes and rejects destinations that
// resolve only to private or link-local addresses, except explicit localhost
// which is allowed for local testing.
func validateWebhookURL(raw string) error {
	u, err := neturl.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("missing host")
	}
	if host == "localhost" || host == "127.0.0.1" || host == "::1" {
		return nil
	}

	ips, err := net.LookupIP(host)
	if err != nil {
		return fmt.Errorf("dns lookup failed: %w", err)
	}
	for _, ip := range ips {
		if ip.IsPrivate() || ip.IsLoopback() || ip.IsLinkLocalUnicast() {
			return fmt.Errorf("disallowed host IP %s", ip)
		}
	}
	return nil
}

// In-app notification management.

// ListNotifications returns in-app notifications, optionally unread only.
func (s *NotificationService) ListNotifications(ctx context.Context, unreadOnly bool) ([]models.Notification, error) {
	q := s.db.WithContext(ctx).Order("created_at desc")
	if unreadOnly {
		q = q.Where("read = ?", false)
	}
	var notifications []models.Notification
	return notifications, q.Find(&notifications).Error
}

// MarkAsRead marks one notification read.
func (s *NotificationService) MarkAsRead(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Model(&models.Notification{}).Where("id = ?", id).Update("read", true).Error
}

// Provider management.

// ListProviders returns all notification providers.
func (s *NotificationService) ListProviders(ctx context.Context) ([]models.NotificationProvider, error) {
	var providers []models.NotificationProvider
	return providers, s.db.WithContext(ctx).Find(&providers).Error
}

// CreateProvider persists a provider, validating webhook destinations.
func (s *NotificationService) CreateProvider(ctx context.Context, provider *models.NotificationProvider) error {
	if provider.Type == "webhook" {
		if err := validateWebhookURL(provider.URL); err != nil {
			return fmt.Errorf("invalid webhook url: %w", err)
		}
	}
	return s.db.WithContext(ctx).Create(provider).Error
}

// DeleteProvider removes a provider.
func (s *NotificationService) DeleteProvider(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Delete(&models.NotificationProvider{}, "id = ?", id).Error
}

func severityFrom(config map[string]any) string {
	if config == nil {
		return ""
	}
	if severity, ok := config["severity"].(string); ok {
		return severity
	}
	return ""
}
