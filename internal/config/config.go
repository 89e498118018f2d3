package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config captures runtime configuration sourced from environment variables.
type Config struct {
	Environment   string
	HTTPPort      string
	DatabasePath  string
	JWTSecret     string
	LogDir        string
	Debug         bool
	RedisAddr     string // optional; when set the decision cache is Redis-backed
	RedisPassword string
	GeoIPEndpoint string
	GeoIPTimeout  time.Duration
}

// Load reads env vars and falls back to defaults so the server can boot with zero configuration.
func Load() (Config, error) {
	cfg := Config{
		Environment:   getEnv("AEGIS_ENV", "development"),
		HTTPPort:      getEnv("AEGIS_HTTP_PORT", "8080"),
		DatabasePath:  getEnv("AEGIS_DB_PATH", filepath.Join("data", "aegis.db")),
		JWTSecret:     getEnv("AEGIS_JWT_SECRET", ""),
		LogDir:        getEnv("AEGIS_LOG_DIR", filepath.Join("data", "logs")),
		Debug:         getEnvBool("AEGIS_DEBUG", false),
		RedisAddr:     getEnv("AEGIS_REDIS_ADDR", ""),
		RedisPassword: getEnv("AEGIS_REDIS_PASSWORD", ""),
		GeoIPEndpoint: getEnv("AEGIS_GEOIP_ENDPOINT", "http://ip-api.com/json"),
		GeoIPTimeout:  getEnvDuration("AEGIS_GEOIP_TIMEOUT", 3*time.Second),
	}

	if cfg.JWTSecret == "" && cfg.Environment == "production" {
		return Config{}, fmt.Errorf("AEGIS_JWT_SECRET is required in production")
	}
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = "dev-insecure-secret"
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0o755); err != nil {
		return Config{}, fmt.Errorf("ensure data directory: %w", err)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}

	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return b
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return fallback
	}
	return d
}
