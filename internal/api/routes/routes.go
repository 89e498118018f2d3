package routes

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/aegishq/aegis/internal/access"
	"github.com/aegishq/aegis/internal/api/handlers"
	"github.com/aegishq/aegis/internal/api/middleware"
	"github.com/aegishq/aegis/internal/models"
	"github.com/aegishq/aegis/internal/security"
	"github.com/aegishq/aegis/internal/services"
)

// Dependencies carries the shared service objects routes need. They are
// constructed once at startup by the server and injected here.
type Dependencies struct {
	DB           *gorm.DB
	Evaluator    *access.Evaluator
	Pipeline     *security.Pipeline
	AuditService *services.AuditService
	RoleService  *services.RoleService
	RuleService  *services.AlertRuleService
	AuthService  *services.AuthService
	Registry     *prometheus.Registry
}

// Register runs migrations and wires up the API routes.
func Register(router *gin.Engine, deps Dependencies) error {
	if err := deps.DB.AutoMigrate(
		&models.Role{},
		&models.AuthEvent{},
		&models.AlertRule{},
		&models.Notification{},
		&models.NotificationProvider{},
		&models.User{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	router.Use(middleware.RequestID(), middleware.RequestLogger(), middleware.Recovery(false))

	authHandler := handlers.NewAuthHandler(deps.AuthService)
	accessHandler := handlers.NewAccessHandler(deps.Evaluator)
	eventHandler := handlers.NewEventHandler(deps.Pipeline, deps.AuditService)
	ruleHandler := handlers.NewRuleHandler(deps.RuleService)
	roleHandler := handlers.NewRoleHandler(deps.RoleService, deps.Evaluator)
	registryHandler := handlers.NewRegistryHandler()

	router.GET("/healthz", handlers.Health)
	if deps.Registry != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{})))
	}

	v1 := router.Group("/api/v1")
	v1.POST("/auth/login", authHandler.Login)

	authed := v1.Group("")
	authed.Use(middleware.RequireAuth(deps.AuthService))

	// Decision and telemetry surface, available to any authenticated caller.
	authed.POST("/access/check", accessHandler.Check)
	authed.POST("/events", eventHandler.Ingest)
	authed.GET("/logs", eventHandler.List)
	authed.GET("/logs/aggregate", eventHandler.Aggregate)
	authed.GET("/registry/permissions", registryHandler.Permissions)
	authed.GET("/registry/external-routes", registryHandler.ExternalRoutes)

	// Administration surface.
	admin := authed.Group("")
	admin.Use(middleware.RequireAdmin())

	admin.GET("/roles", roleHandler.List)
	admin.POST("/roles", roleHandler.Create)
	admin.GET("/roles/:id", roleHandler.Get)
	admin.PUT("/roles/:id", roleHandler.Update)
	admin.DELETE("/roles/:id", roleHandler.Delete)
	admin.POST("/cache/invalidate/:id", accessHandler.InvalidateUser)

	admin.GET("/rules", ruleHandler.List)
	admin.POST("/rules", ruleHandler.Create)
	admin.GET("/rules/:id", ruleHandler.Get)
	admin.PUT("/rules/:id", ruleHandler.Update)
	admin.DELETE("/rules/:id", ruleHandler.Delete)

	return nil
}
