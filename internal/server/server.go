package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"

	"github.com/aegishq/aegis/internal/access"
	"github.com/aegishq/aegis/internal/alerting"
	"github.com/aegishq/aegis/internal/api/routes"
	"github.com/aegishq/aegis/internal/config"
	"github.com/aegishq/aegis/internal/geoip"
	"github.com/aegishq/aegis/internal/logger"
	"github.com/aegishq/aegis/internal/metrics"
	"github.com/aegishq/aegis/internal/security"
	"github.com/aegishq/aegis/internal/services"
)

const suspiciousIPRetention = 24 * time.Hour

// Server wraps the HTTP engine, the scheduler and shared dependencies.
type Server struct {
	Engine *gin.Engine
	cfg    config.Config
	cron   *cron.Cron
	http   *http.Server
}

// New wires the full engine: services, decision evaluator, telemetry
// pipeline, HTTP routes and the maintenance scheduler.
func New(db *gorm.DB, cfg config.Config) (*Server, error) {
	gin.SetMode(gin.ReleaseMode)
	if cfg.Environment == "development" {
		gin.SetMode(gin.DebugMode)
	}

	log := logger.WithComponent("server")

	auditService := services.NewAuditService(db)
	roleService := services.NewRoleService(db)
	ruleService := services.NewAlertRuleService(db)
	authService := services.NewAuthService(db, cfg)
	notificationService := services.NewNotificationService(db, logger.WithComponent("notifications"))

	memoryCache := access.NewMemoryDecisionCache()
	var cache access.DecisionCache = memoryCache
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		if err := client.Ping(context.Background()).Err(); err != nil {
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		cache = access.NewRedisDecisionCache(client, logger.WithComponent("decision-cache"))
		log.Info("decision cache backed by redis")
	}

	evaluator := access.NewEvaluator(roleService, cache, auditService, nil, logger.WithComponent("evaluator"))

	state := security.NewSharedState()
	locator := geoip.NewHTTPLocator(cfg.GeoIPEndpoint, cfg.GeoIPTimeout)
	enricher := security.NewEnricher(locator, logger.WithComponent("enricher"))
	scorer := security.NewScorer(auditService, state, logger.WithComponent("scorer"))
	engine := alerting.NewEngine(auditService, state, notificationService, logger.WithComponent("alerting"))
	pipeline := security.NewPipeline(enricher, scorer, auditService, ruleService, engine, logger.WithComponent("pipeline"))

	registry := prometheus.NewRegistry()
	metrics.Register(registry)

	router := gin.New()
	err := routes.Register(router, routes.Dependencies{
		DB:           db,
		Evaluator:    evaluator,
		Pipeline:     pipeline,
		AuditService: auditService,
		RoleService:  roleService,
		RuleService:  ruleService,
		AuthService:  authService,
		Registry:     registry,
	})
	if err != nil {
		return nil, fmt.Errorf("register routes: %w", err)
	}

	scheduler := cron.New()
	if _, err := scheduler.AddFunc("@every 10m", func() {
		removed := memoryCache.Sweep()
		if removed > 0 {
			log.WithField("removed", removed).Debug("swept expired decisions")
		}
	}); err != nil {
		return nil, fmt.Errorf("schedule cache sweep: %w", err)
	}
	if _, err := scheduler.AddFunc("@hourly", func() {
		removed := state.PruneSuspiciousIPs(suspiciousIPRetention)
		if removed > 0 {
			log.WithField("removed", removed).Info("expired suspicious IPs")
		}
	}); err != nil {
		return nil, fmt.Errorf("schedule ip pruning: %w", err)
	}

	return &Server{Engine: router, cfg: cfg, cron: scheduler}, nil
}

// Start runs the scheduler and serves HTTP until Shutdown.
func (s *Server) Start() error {
	s.cron.Start()
	s.http = &http.Server{
		Addr:              ":" + s.cfg.HTTPPort,
		Handler:           s.Engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the scheduler and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cron.Stop()
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}
