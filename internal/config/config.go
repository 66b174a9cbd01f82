package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	// Database
	DatabaseURL string `env:"DATABASE_URL"`

	// Web Server
	WebBind     string   `env:"WEB_BIND" envDefault:"0.0.0.0:3000"`
	CORSOrigins []string `env:"CORS_ORIGINS" envDefault:"*" envSeparator:","`

	// Session
	JWTSecret     string `env:"JWT_SECRET" envDefault:"dev-only-change-me"`
	WSRequireAuth bool   `env:"WS_REQUIRE_AUTH" envDefault:"true"`

	// Coordinator
	PersistTimeout     time.Duration `env:"PERSIST_TIMEOUT" envDefault:"5s"`
	SessionGracePeriod time.Duration `env:"SESSION_GRACE_PERIOD" envDefault:"30s"`
	ActorQueueSize     int           `env:"ACTOR_QUEUE_SIZE" envDefault:"64"`
	ConnSendBuffer     int           `env:"CONN_SEND_BUFFER" envDefault:"32"`

	// Profile service (optional, falls back to the users table)
	Profile ProfileConfig `envPrefix:"PROFILE_"`

	// Finalize notifications (optional)
	DiscordWebhookURL string `env:"DISCORD_WEBHOOK_URL"`
}

// ProfileConfig describes the identity service used to resolve display names.
type ProfileConfig struct {
	ServiceURL   string `env:"SERVICE_URL"`
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
	TokenURL     string `env:"TOKEN_URL"`
}

// Enabled reports whether the remote profile service is configured.
func (c ProfileConfig) Enabled() bool {
	return c.ServiceURL != ""
}

func Load() (*Config, error) {
	// Load environment variables from .env if present (non-fatal if missing)
	_ = godotenv.Load()

	return parse()
}

func parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.PersistTimeout <= 0 {
		return fmt.Errorf("PERSIST_TIMEOUT must be positive")
	}
	if c.SessionGracePeriod < 0 {
		return fmt.Errorf("SESSION_GRACE_PERIOD must not be negative")
	}
	if c.ActorQueueSize < 1 {
		return fmt.Errorf("ACTOR_QUEUE_SIZE must be at least 1")
	}
	if c.ConnSendBuffer < 1 {
		return fmt.Errorf("CONN_SEND_BUFFER must be at least 1")
	}
	if c.Profile.Enabled() {
		if _, err := url.ParseRequestURI(c.Profile.ServiceURL); err != nil {
			return fmt.Errorf("invalid PROFILE_SERVICE_URL: %w", err)
		}
		if c.Profile.ClientID != "" && c.Profile.TokenURL == "" {
			return fmt.Errorf("PROFILE_TOKEN_URL is required when PROFILE_CLIENT_ID is set")
		}
	}

	origins := c.CORSOrigins[:0]
	for _, o := range c.CORSOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c.CORSOrigins = origins
	return nil
}
