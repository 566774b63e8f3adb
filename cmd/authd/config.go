package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/leadforge/authcore"
)

// serverConfig is the resolved runtime configuration for authd. Defaults are
// overlaid by the YAML file, then by environment variables, so local runs
// stay simple and deployments override what they need.
type serverConfig struct {
	ServiceID string
	HTTPPort  int

	DatabaseURL string
	RedisURL    string
	MaxDBConns  int

	TokenSecret     string
	SessionLifetime time.Duration

	TrustedProxies []string
	AdminEmails    []string
}

// configFile mirrors the YAML schema of configs/authd.yaml.
type configFile struct {
	Service struct {
		ID       string `yaml:"id"`
		HTTPPort int    `yaml:"http_port"`
	} `yaml:"service"`
	Dependencies struct {
		PostgresURL string `yaml:"postgres_url"`
		RedisURL    string `yaml:"redis_url"`
		MaxDBConns  int    `yaml:"max_db_conns"`
	} `yaml:"dependencies"`
	Auth struct {
		TokenSecret          string   `yaml:"token_secret"`
		SessionLifetimeHours int      `yaml:"session_lifetime_hours"`
		TrustedProxies       []string `yaml:"trusted_proxies"`
		AdminEmails          []string `yaml:"admin_emails"`
	} `yaml:"auth"`
}

func loadConfig(path string) (serverConfig, error) {
	cfg := serverConfig{
		ServiceID:       "authd",
		HTTPPort:        8080,
		MaxDBConns:      20,
		SessionLifetime: 24 * time.Hour,
	}

	if raw, err := os.ReadFile(path); err == nil {
		var f configFile
		if err := yaml.Unmarshal(raw, &f); err != nil {
			return serverConfig{}, fmt.Errorf("parse config file: %w", err)
		}
		if f.Service.ID != "" {
			cfg.ServiceID = f.Service.ID
		}
		if f.Service.HTTPPort > 0 {
			cfg.HTTPPort = f.Service.HTTPPort
		}
		if f.Dependencies.PostgresURL != "" {
			cfg.DatabaseURL = f.Dependencies.PostgresURL
		}
		if f.Dependencies.RedisURL != "" {
			cfg.RedisURL = f.Dependencies.RedisURL
		}
		if f.Dependencies.MaxDBConns > 0 {
			cfg.MaxDBConns = f.Dependencies.MaxDBConns
		}
		if f.Auth.TokenSecret != "" {
			cfg.TokenSecret = f.Auth.TokenSecret
		}
		if f.Auth.SessionLifetimeHours > 0 {
			cfg.SessionLifetime = time.Duration(f.Auth.SessionLifetimeHours) * time.Hour
		}
		if len(f.Auth.TrustedProxies) > 0 {
			cfg.TrustedProxies = f.Auth.TrustedProxies
		}
		if len(f.Auth.AdminEmails) > 0 {
			cfg.AdminEmails = f.Auth.AdminEmails
		}
	}

	cfg.ServiceID = envOrDefault("SERVICE_ID", cfg.ServiceID)
	cfg.HTTPPort = envInt("HTTP_PORT", cfg.HTTPPort)
	cfg.DatabaseURL = envOrDefault("DATABASE_URL", cfg.DatabaseURL)
	cfg.RedisURL = envOrDefault("REDIS_URL", cfg.RedisURL)
	cfg.MaxDBConns = envInt("DB_MAX_CONNS", cfg.MaxDBConns)
	cfg.TokenSecret = envOrDefault("AUTH_TOKEN_SECRET", cfg.TokenSecret)
	cfg.SessionLifetime = time.Duration(envInt("SESSION_LIFETIME_HOURS",
		int(cfg.SessionLifetime.Hours()))) * time.Hour
	cfg.TrustedProxies = envCSV("TRUSTED_PROXIES", cfg.TrustedProxies)
	cfg.AdminEmails = envCSV("ADMIN_EMAILS", cfg.AdminEmails)

	if cfg.DatabaseURL == "" {
		return serverConfig{}, fmt.Errorf("missing DATABASE_URL")
	}
	if cfg.RedisURL == "" {
		return serverConfig{}, fmt.Errorf("missing REDIS_URL")
	}
	if len(cfg.TokenSecret) < 32 {
		return serverConfig{}, fmt.Errorf("AUTH_TOKEN_SECRET must be at least 32 bytes")
	}

	return cfg, nil
}

// engineConfig projects the server configuration onto the engine's.
func (c serverConfig) engineConfig() authcore.Config {
	cfg := authcore.DefaultConfig()
	cfg.Session.Lifetime = c.SessionLifetime
	cfg.Session.Cache.MarkerTTL = 0 // rederived from the lifetime at build
	cfg.Token.Secret = []byte(c.TokenSecret)
	cfg.TrustedProxies = c.TrustedProxies
	cfg.AdminEmails = c.AdminEmails
	return cfg
}

func envOrDefault(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

func envInt(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func envCSV(name string, fallback []string) []string {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	parts := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		parts = append(parts, trimmed)
	}
	if len(parts) == 0 {
		return fallback
	}
	return parts
}
