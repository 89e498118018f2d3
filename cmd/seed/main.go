package main

import (
	"context"
	"errors"
	"log"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/aegishq/aegis/internal/config"
	"github.com/aegishq/aegis/internal/database"
	"github.com/aegishq/aegis/internal/models"
	"github.com/aegishq/aegis/internal/services"
)

// Seeds a fresh database with baseline roles, default alert rules and an
// initial admin operator so a new install is usable immediately. Safe to run
// more than once: existing rows are left alone.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}

	if err := db.AutoMigrate(
		&models.Role{},
		&models.AuthEvent{},
		&models.AlertRule{},
		&models.Notification{},
		&models.NotificationProvider{},
		&models.User{},
	); err != nil {
		log.Fatalf("auto migrate: %v", err)
	}

	ctx := context.Background()
	seedRoles(ctx, services.NewRoleService(db))
	seedRules(ctx, services.NewAlertRuleService(db))
	seedProvider(ctx, services.NewNotificationService(db, logrus.NewEntry(logrus.StandardLogger())))
	seedAdmin(services.NewAuthService(db, cfg))

	log.Println("seed complete")
}

type seedRole struct {
	name        string
	description string
	permissions []string
	external    bool
	routes      []string
}

var defaultRoles = []seedRole{
	{
		name:        "admin",
		description: "Full access to every resource and action",
		permissions: []string{"*"},
	},
	{
		name:        "inspector",
		description: "Field inspector: works inspections, reads forms and reports",
		permissions: []string{"inspection.read", "inspection.write", "report.read", "form.read"},
	},
	{
		name:        "manager",
		description: "Tenant manager: everything on inspections and reports plus user admin",
		permissions: []string{"inspection.*", "report.*", "form.*", "user.read", "user.manage", "audit.read"},
	},
	{
		name:        "viewer",
		description: "Read-only access to inspections and reports",
		permissions: []string{"inspection.read", "report.read"},
	},
	{
		name:        "external_customer",
		description: "Customer portal account, restricted to shared content routes",
		permissions: []string{"inspection.read", "report.read"},
		external:    true,
	},
}

func seedRoles(ctx context.Context, roles *services.RoleService) {
	for _, def := range defaultRoles {
		role := &models.Role{
			Name:               def.name,
			Description:        def.description,
			IsExternalCustomer: def.external,
		}
		if err := role.SetPermissionList(def.permissions); err != nil {
			log.Fatalf("encode permissions for role %s: %v", def.name, err)
		}
		if len(def.routes) > 0 {
			if err := role.SetRouteList(def.routes); err != nil {
				log.Fatalf("encode routes for role %s: %v", def.name, err)
			}
		}
		err := roles.Create(ctx, role)
		switch {
		case errors.Is(err, services.ErrRoleNameExists):
			log.Printf("role %s already present, skipping", def.name)
		case err != nil:
			log.Fatalf("create role %s: %v", def.name, err)
		default:
			log.Printf("created role %s (%s)", def.name, role.UUID)
		}
	}
}

func seedRules(ctx context.Context, rules *services.AlertRuleService) {
	existing, err := rules.List(ctx)
	if err != nil {
		log.Fatalf("list alert rules: %v", err)
	}
	if len(existing) > 0 {
		log.Printf("%d alert rules already present, skipping rule seed", len(existing))
		return
	}

	type def struct {
		name        string
		description string
		severity    string
		conditions  []models.RuleCondition
		actions     []models.RuleAction
	}
	defs := []def{
		{
			name:        "Repeated failed logins",
			description: "Five or more failed logins from one address inside 15 minutes",
			severity:    models.RiskLevelHigh,
			conditions: []models.RuleCondition{
				{Field: "action", Operator: models.OpEq, Value: models.ActionLoginFailure},
				{Field: "ip_address", Operator: models.OpFrequency, WindowMinutes: 15, Threshold: 5},
			},
			actions: []models.RuleAction{
				{Kind: models.ActionKindBlockIP},
				{Kind: models.ActionKindNotifyAdmin},
			},
		},
		{
			name:        "Critical risk event",
			description: "Any event the scorer classified as critical",
			severity:    models.RiskLevelCritical,
			conditions: []models.RuleCondition{
				{Field: "security_context.risk_level", Operator: models.OpEq, Value: models.RiskLevelCritical},
			},
			actions: []models.RuleAction{
				{Kind: models.ActionKindLog},
				{Kind: models.ActionKindNotifyAdmin},
			},
		},
		{
			name:        "Rate limit abuse",
			description: "Sustained rate limit violations from one address",
			severity:    models.RiskLevelCritical,
			conditions: []models.RuleCondition{
				{Field: "action", Operator: models.OpEq, Value: models.ActionRateLimitExceeded},
				{Field: "ip_address", Operator: models.OpFrequency, WindowMinutes: 10, Threshold: 5},
			},
			actions: []models.RuleAction{
				{Kind: models.ActionKindBlockIP},
			},
		},
		{
			name:        "Automated client login",
			description: "Successful login from a bot or script user agent",
			severity:    models.RiskLevelMedium,
			conditions: []models.RuleCondition{
				{Field: "action", Operator: models.OpEq, Value: models.ActionLoginSuccess},
				{Field: "device_info.device_type", Operator: models.OpEq, Value: "bot"},
			},
			actions: []models.RuleAction{
				{Kind: models.ActionKindLog},
			},
		},
	}

	for _, d := range defs {
		rule := &models.AlertRule{
			Name:        d.name,
			Description: d.description,
			Severity:    d.severity,
			Enabled:     true,
		}
		if err := rule.SetConditionList(d.conditions); err != nil {
			log.Fatalf("encode conditions for rule %s: %v", d.name, err)
		}
		if err := rule.SetActionList(d.actions); err != nil {
			log.Fatalf("encode actions for rule %s: %v", d.name, err)
		}
		if err := rules.Create(ctx, rule); err != nil {
			log.Fatalf("create alert rule %s: %v", d.name, err)
		}
		log.Printf("created alert rule %s (%s)", d.name, rule.UUID)
	}
}

func seedProvider(ctx context.Context, notifications *services.NotificationService) {
	url := os.Getenv("AEGIS_ALERT_WEBHOOK_URL")
	if url == "" {
		log.Println("AEGIS_ALERT_WEBHOOK_URL not set, skipping notification provider seed")
		return
	}

	existing, err := notifications.ListProviders(ctx)
	if err != nil {
		log.Fatalf("list notification providers: %v", err)
	}
	if len(existing) > 0 {
		log.Printf("%d notification providers already present, skipping provider seed", len(existing))
		return
	}

	provider := &models.NotificationProvider{
		Name:    "Default alert webhook",
		Type:    "webhook",
		URL:     url,
		Enabled: true,
	}
	if err := notifications.CreateProvider(ctx, provider); err != nil {
		log.Fatalf("create notification provider: %v", err)
	}
	log.Printf("created notification provider %s (%s)", provider.Name, provider.ID)
}

func seedAdmin(auth *services.AuthService) {
	email := os.Getenv("AEGIS_ADMIN_EMAIL")
	password := os.Getenv("AEGIS_ADMIN_PASSWORD")
	if email == "" || password == "" {
		log.Println("AEGIS_ADMIN_EMAIL / AEGIS_ADMIN_PASSWORD not set, skipping admin seed")
		return
	}

	user, err := auth.Register(email, password, "Administrator")
	if err != nil {
		log.Printf("admin seed skipped: %v", err)
		return
	}
	log.Printf("created admin user %s (%s)", user.Email, user.UUID)
}
