package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const (
	SinkLog     = "log"
	SinkAMQP    = "amqp"
	SinkWebhook = "webhook"
	SinkNone    = "none"
)

var storeDrivers = map[string]bool{
	"memory": true, "leveldb": true, "sqlite": true, "postgres": true, "redis": true,
}

type Config struct {
	Port                  string   `mapstructure:"PORT"`
	Env                   string   `mapstructure:"ENV"`
	StoreDriver           string   `mapstructure:"STORE_DRIVER"`
	StorePath             string   `mapstructure:"STORE_PATH"`
	DatabaseURL           string   `mapstructure:"DATABASE_URL"`
	DBMaxConns            int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns            int32    `mapstructure:"DB_MIN_CONNS"`
	RedisURL              string   `mapstructure:"REDIS_URL"`
	RedisPrefix           string   `mapstructure:"REDIS_PREFIX"`
	EventSink             string   `mapstructure:"EVENT_SINK"`
	AMQPURL               string   `mapstructure:"AMQP_URL"`
	EventQueue            string   `mapstructure:"EVENT_QUEUE"`
	WebhookURL            string   `mapstructure:"WEBHOOK_URL"`
	WebhookSecret         string   `mapstructure:"WEBHOOK_SECRET"`
	AuthSigningKey        string   `mapstructure:"AUTH_SIGNING_KEY"`
	AuthIssuer            string   `mapstructure:"AUTH_ISSUER"`
	AuthAudience          string   `mapstructure:"AUTH_AUDIENCE"`
	UnverifiedAsSuspected bool     `mapstructure:"UNVERIFIED_AS_SUSPECTED"`
	RateLimitRPS          float64  `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst        int      `mapstructure:"RATE_LIMIT_BURST"`
	RequestTimeoutSeconds int      `mapstructure:"REQUEST_TIMEOUT_SECONDS"`
	CORSOrigins           []string `mapstructure:"CORS_ORIGINS"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("STORE_DRIVER", "leveldb")
	v.SetDefault("STORE_PATH", "./data/allergy.db")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 1)
	v.SetDefault("REDIS_PREFIX", "")
	v.SetDefault("EVENT_SINK", SinkLog)
	v.SetDefault("EVENT_QUEUE", "allergy.events")
	v.SetDefault("UNVERIFIED_AS_SUSPECTED", false)
	v.SetDefault("RATE_LIMIT_RPS", 50)
	v.SetDefault("RATE_LIMIT_BURST", 100)
	v.SetDefault("REQUEST_TIMEOUT_SECONDS", 30)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range []string{
		"PORT", "ENV", "STORE_DRIVER", "STORE_PATH", "DATABASE_URL",
		"DB_MAX_CONNS", "DB_MIN_CONNS", "REDIS_URL", "REDIS_PREFIX",
		"EVENT_SINK", "AMQP_URL", "EVENT_QUEUE", "WEBHOOK_URL",
		"WEBHOOK_SECRET", "AUTH_SIGNING_KEY",
		"AUTH_ISSUER", "AUTH_AUDIENCE", "UNVERIFIED_AS_SUSPECTED",
		"RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "REQUEST_TIMEOUT_SECONDS",
		"CORS_ORIGINS",
	} {
		_ = v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}
	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Validate checks that the selected backends have what they need and that
// real authentication is configured outside development.
func (c *Config) Validate() error {
	if !storeDrivers[c.StoreDriver] {
		return fmt.Errorf("STORE_DRIVER must be one of memory, leveldb, sqlite, postgres, redis; got %q", c.StoreDriver)
	}
	switch c.StoreDriver {
	case "leveldb", "sqlite":
		if c.StorePath == "" {
			return fmt.Errorf("STORE_PATH is required for STORE_DRIVER=%s", c.StoreDriver)
		}
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for STORE_DRIVER=postgres")
		}
		if c.DBMinConns > c.DBMaxConns {
			return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
		}
	case "redis":
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required for STORE_DRIVER=redis")
		}
	}

	switch c.EventSink {
	case SinkLog, SinkNone:
	case SinkAMQP:
		if c.AMQPURL == "" {
			return fmt.Errorf("AMQP_URL is required for EVENT_SINK=amqp")
		}
		if c.EventQueue == "" {
			return fmt.Errorf("EVENT_QUEUE is required for EVENT_SINK=amqp")
		}
	case SinkWebhook:
		if c.WebhookURL == "" || c.WebhookSecret == "" {
			return fmt.Errorf("WEBHOOK_URL and WEBHOOK_SECRET are required for EVENT_SINK=webhook")
		}
	default:
		return fmt.Errorf("EVENT_SINK must be log, amqp, webhook or none; got %q", c.EventSink)
	}

	if !c.IsDev() && c.AuthSigningKey == "" {
		return fmt.Errorf("AUTH_SIGNING_KEY is required outside development (ENV=%q)", c.Env)
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}
	return nil
}
