// Package config provides configuration management for Granta.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/granta-app/granta/internal/delivery"
	"gopkg.in/yaml.v3"
)

// Environment represents the deployment environment.
type Environment string

const (
	// EnvDevelopment is the default local development environment.
	EnvDevelopment Environment = "development"
	// EnvStaging is the staging/pre-production environment.
	EnvStaging Environment = "staging"
	// EnvProduction is the production environment.
	EnvProduction Environment = "production"
)

// DownloadMode controls how file bytes reach the client.
type DownloadMode string

const (
	// DownloadModeProxy streams file bytes through the server. Downloads
	// are recorded only after the transfer completes.
	DownloadModeProxy DownloadMode = "proxy"
	// DownloadModeRedirect hands out a presigned URL. The download is
	// recorded when the URL is issued, since the transfer happens
	// directly against object storage.
	DownloadModeRedirect DownloadMode = "redirect"
)

// ServerConfig holds server-level configuration loaded from environment
// variables, optionally overlaid by the YAML file named in GRANTA_CONFIG.
type ServerConfig struct {
	Environment   Environment     `yaml:"environment"`
	ListenAddr    string          `yaml:"listen_addr"`
	DatabaseURL   string          `yaml:"database_url"`
	SessionSecret string          `yaml:"session_secret"`
	SessionMaxAge int             `yaml:"session_max_age"` // seconds
	WebhookSecret string          `yaml:"webhook_secret"`
	CORSOrigins   []string        `yaml:"cors_origins"`
	RedisURL      string          `yaml:"redis_url"`
	RateLimit     string          `yaml:"rate_limit"`          // limiter format, e.g. "60-M"
	DownloadRate  string          `yaml:"download_rate_limit"` // per token+IP on the download surface
	DownloadMode  DownloadMode    `yaml:"download_mode"`
	PresignTTLMin int             `yaml:"presign_ttl_minutes"`
	Storage       delivery.Config `yaml:"storage"`
}

// LoadServerConfig reads server configuration from environment variables and
// an optional YAML overlay.
func LoadServerConfig() (ServerConfig, error) {
	env := Environment(os.Getenv("ENV"))
	switch env {
	case EnvDevelopment, EnvStaging, EnvProduction:
		// valid
	default:
		env = EnvDevelopment
	}

	sessionMaxAge := getEnvInt("SESSION_MAX_AGE", 86400)
	if sessionMaxAge < 0 {
		sessionMaxAge = 86400
	}

	mode := DownloadMode(getEnv("DOWNLOAD_MODE", string(DownloadModeProxy)))
	switch mode {
	case DownloadModeProxy, DownloadModeRedirect:
		// valid
	default:
		mode = DownloadModeProxy
	}

	cfg := ServerConfig{
		Environment:   env,
		ListenAddr:    getEnv("LISTEN_ADDR", ":8080"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		SessionSecret: os.Getenv("SESSION_SECRET"),
		SessionMaxAge: sessionMaxAge,
		WebhookSecret: os.Getenv("WEBHOOK_SECRET"),
		CORSOrigins:   splitList(os.Getenv("CORS_ORIGINS")),
		RedisURL:      os.Getenv("REDIS_URL"),
		RateLimit:     getEnv("RATE_LIMIT", "60-M"),
		DownloadRate:  getEnv("DOWNLOAD_RATE_LIMIT", "30-M"),
		DownloadMode:  mode,
		PresignTTLMin: getEnvInt("PRESIGN_TTL_MINUTES", 15),
		Storage: delivery.Config{
			Endpoint:        os.Getenv("S3_ENDPOINT"),
			Bucket:          os.Getenv("S3_BUCKET"),
			Prefix:          os.Getenv("S3_PREFIX"),
			Region:          os.Getenv("S3_REGION"),
			AccessKeyID:     os.Getenv("S3_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("S3_SECRET_ACCESS_KEY"),
			UseSSL:          getEnvBool("S3_USE_SSL", true),
		},
	}

	if path := os.Getenv("GRANTA_CONFIG"); path != "" {
		if err := cfg.overlayFile(path); err != nil {
			return cfg, err
		}
	}

	return cfg, nil
}

// Validate checks that the configuration can run a server.
func (c *ServerConfig) Validate() error {
	if c.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}
	if len(c.SessionSecret) < 32 {
		return errors.New("SESSION_SECRET must be at least 32 characters")
	}
	if c.WebhookSecret == "" {
		return errors.New("WEBHOOK_SECRET is required")
	}
	return nil
}

// IsProduction reports whether this is a production deployment.
func (c *ServerConfig) IsProduction() bool {
	return c.Environment == EnvProduction
}

// overlayFile merges values from a YAML file over the current config.
// Unset YAML fields keep their environment-derived values.
func (c *ServerConfig) overlayFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// getEnvBool reads a boolean from an environment variable, returning the default if unset or invalid.
func getEnvBool(key string, defaultVal bool) bool {
	val := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch val {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	default:
		return defaultVal
	}
}

// getEnvInt reads an integer from an environment variable, returning the default if unset or invalid.
func getEnvInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

func splitList(val string) []string {
	if val == "" {
		return nil
	}
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
