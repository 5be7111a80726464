// Package config loads storefront settings from a YAML file, then applies
// STOREFRONT_* environment overrides on top of built-in defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvDevelopment relaxes secret requirements for local runs.
const EnvDevelopment = "development"

const developmentJWTSecret = "storefront-development-secret"

type ServerConfig struct {
	Addr           string        `yaml:"addr" env:"STOREFRONT_HTTP_ADDR"`
	ReadTimeout    time.Duration `yaml:"read_timeout" env:"STOREFRONT_HTTP_READ_TIMEOUT"`
	WriteTimeout   time.Duration `yaml:"write_timeout" env:"STOREFRONT_HTTP_WRITE_TIMEOUT"`
	RateLimitRPS   float64       `yaml:"rate_limit_rps" env:"STOREFRONT_HTTP_RATE_LIMIT_RPS"`
	RateLimitBurst int           `yaml:"rate_limit_burst" env:"STOREFRONT_HTTP_RATE_LIMIT_BURST"`
	AllowedOrigins []string      `yaml:"allowed_origins" env:"STOREFRONT_HTTP_ALLOWED_ORIGINS" envSeparator:","`
}

type DatabaseConfig struct {
	DSN             string        `yaml:"dsn" env:"STOREFRONT_DATABASE_DSN"`
	MaxOpenConns    int           `yaml:"max_open_conns" env:"STOREFRONT_DATABASE_MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"max_idle_conns" env:"STOREFRONT_DATABASE_MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"STOREFRONT_DATABASE_CONN_MAX_LIFETIME"`
	MigrateOnStart  bool          `yaml:"migrate_on_start" env:"STOREFRONT_DATABASE_MIGRATE_ON_START"`
}

type RedisConfig struct {
	Addr       string        `yaml:"addr" env:"STOREFRONT_REDIS_ADDR"`
	Password   string        `yaml:"password" env:"STOREFRONT_REDIS_PASSWORD"`
	DB         int           `yaml:"db" env:"STOREFRONT_REDIS_DB"`
	ProductTTL time.Duration `yaml:"product_ttl" env:"STOREFRONT_REDIS_PRODUCT_TTL"`
}

type AuthConfig struct {
	JWTSecret  string        `yaml:"jwt_secret" env:"STOREFRONT_JWT_SECRET"`
	Issuer     string        `yaml:"issuer" env:"STOREFRONT_JWT_ISSUER"`
	TokenTTL   time.Duration `yaml:"token_ttl" env:"STOREFRONT_JWT_TTL"`
	BcryptCost int           `yaml:"bcrypt_cost" env:"STOREFRONT_BCRYPT_COST"`
}

type MailConfig struct {
	Host               string `yaml:"host" env:"STOREFRONT_SMTP_HOST"`
	Port               int    `yaml:"port" env:"STOREFRONT_SMTP_PORT"`
	User               string `yaml:"user" env:"STOREFRONT_SMTP_USER"`
	Password           string `yaml:"password" env:"STOREFRONT_SMTP_PASSWORD"`
	SenderAddress      string `yaml:"sender_address" env:"STOREFRONT_MAIL_FROM"`
	SenderName         string `yaml:"sender_name" env:"STOREFRONT_MAIL_FROM_NAME"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify" env:"STOREFRONT_SMTP_INSECURE_SKIP_VERIFY"`
	RetryCount         int    `yaml:"retry_count" env:"STOREFRONT_SMTP_RETRY_COUNT"`
	RetryBackoffMs     int    `yaml:"retry_backoff_ms" env:"STOREFRONT_SMTP_RETRY_BACKOFF_MS"`
}

// Enabled reports whether an SMTP relay is configured.
func (m MailConfig) Enabled() bool { return strings.TrimSpace(m.Host) != "" }

type AbandonmentConfig struct {
	FirstReminderAfter  time.Duration `yaml:"first_reminder_after" env:"STOREFRONT_ABANDONMENT_FIRST_AFTER"`
	SecondReminderAfter time.Duration `yaml:"second_reminder_after" env:"STOREFRONT_ABANDONMENT_SECOND_AFTER"`
	FinalReminderAfter  time.Duration `yaml:"final_reminder_after" env:"STOREFRONT_ABANDONMENT_FINAL_AFTER"`
	Retention           time.Duration `yaml:"retention" env:"STOREFRONT_ABANDONMENT_RETENTION"`
	BatchSize           int           `yaml:"batch_size" env:"STOREFRONT_ABANDONMENT_BATCH_SIZE"`
	StoreName           string        `yaml:"store_name" env:"STOREFRONT_STORE_NAME"`
	StoreURL            string        `yaml:"store_url" env:"STOREFRONT_STORE_URL"`
}

// SchedulerConfig holds cron expressions or descriptors such as "@every 6h".
type SchedulerConfig struct {
	Enabled          bool   `yaml:"enabled" env:"STOREFRONT_SCHEDULER_ENABLED"`
	CartAbandonment  string `yaml:"cart_abandonment" env:"STOREFRONT_SCHEDULE_CART_ABANDONMENT"`
	Cleanup          string `yaml:"cleanup" env:"STOREFRONT_SCHEDULE_CLEANUP"`
	EmailHealthCheck string `yaml:"email_health_check" env:"STOREFRONT_SCHEDULE_EMAIL_HEALTH_CHECK"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" env:"STOREFRONT_LOG_LEVEL"`
	Format string `yaml:"format" env:"STOREFRONT_LOG_FORMAT"`
	Output string `yaml:"output" env:"STOREFRONT_LOG_OUTPUT"`
}

// Config is the full storefront configuration.
type Config struct {
	Environment string            `yaml:"environment" env:"STOREFRONT_ENV"`
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	Redis       RedisConfig       `yaml:"redis"`
	Auth        AuthConfig        `yaml:"auth"`
	Mail        MailConfig        `yaml:"mail"`
	Abandonment AbandonmentConfig `yaml:"abandonment"`
	Scheduler   SchedulerConfig   `yaml:"scheduler"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// Default returns a configuration suitable for local development.
func Default() *Config {
	return &Config{
		Environment: EnvDevelopment,
		Server: ServerConfig{
			Addr:           ":8080",
			ReadTimeout:    15 * time.Second,
			WriteTimeout:   30 * time.Second,
			RateLimitRPS:   20,
			RateLimitBurst: 40,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    20,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Redis: RedisConfig{
			ProductTTL: 5 * time.Minute,
		},
		Auth: AuthConfig{
			Issuer:     "storefront",
			TokenTTL:   24 * time.Hour,
			BcryptCost: 10,
		},
		Mail: MailConfig{
			Port:           587,
			SenderName:     "Storefront",
			RetryCount:     3,
			RetryBackoffMs: 100,
		},
		Abandonment: AbandonmentConfig{
			FirstReminderAfter:  24 * time.Hour,
			SecondReminderAfter: 72 * time.Hour,
			FinalReminderAfter:  168 * time.Hour,
			Retention:           30 * 24 * time.Hour,
			BatchSize:           100,
			StoreName:           "Storefront",
			StoreURL:            "http://localhost:8080",
		},
		Scheduler: SchedulerConfig{
			Enabled:          true,
			CartAbandonment:  "@every 6h",
			Cleanup:          "0 2 * * *",
			EmailHealthCheck: "@every 1h",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
}

// Load reads path (when non-empty) over the defaults, applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if cfg.IsDevelopment() && cfg.Auth.JWTSecret == "" {
		cfg.Auth.JWTSecret = developmentJWTSecret
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// IsDevelopment reports whether the development environment is selected.
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), EnvDevelopment)
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Server.Addr) == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if c.Server.RateLimitRPS < 0 || c.Server.RateLimitBurst < 0 {
		errs = append(errs, errors.New("server rate limit must not be negative"))
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("auth.jwt_secret is required outside development"))
	} else if !c.IsDevelopment() && len(c.Auth.JWTSecret) < 32 {
		errs = append(errs, errors.New("auth.jwt_secret must be at least 32 bytes"))
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, errors.New("auth.token_ttl must be positive"))
	}
	if c.Auth.BcryptCost < 4 || c.Auth.BcryptCost > 31 {
		errs = append(errs, fmt.Errorf("auth.bcrypt_cost %d out of range 4..31", c.Auth.BcryptCost))
	}

	a := c.Abandonment
	if a.FirstReminderAfter <= 0 || a.SecondReminderAfter <= 0 || a.FinalReminderAfter <= 0 {
		errs = append(errs, errors.New("abandonment reminder thresholds must be positive"))
	}
	if a.Retention <= 0 {
		errs = append(errs, errors.New("abandonment.retention must be positive"))
	}
	if a.BatchSize <= 0 {
		errs = append(errs, errors.New("abandonment.batch_size must be positive"))
	}

	if c.Scheduler.Enabled {
		if c.Scheduler.CartAbandonment == "" || c.Scheduler.Cleanup == "" || c.Scheduler.EmailHealthCheck == "" {
			errs = append(errs, errors.New("scheduler expressions are required when the scheduler is enabled"))
		}
	}
	if c.Mail.Enabled() && (c.Mail.Port <= 0 || c.Mail.Port > 65535) {
		errs = append(errs, fmt.Errorf("mail.port %d is invalid", c.Mail.Port))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
