package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	Redis        RedisConfig
	JWT          JWTConfig
	AWS          AWSConfig
	Storage      StorageConfig
	Tracing      TracingConfig
	Certificates CertificatesConfig
	Dashboard    DashboardConfig
	Email        EmailConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string `env:"PORT" envDefault:"8080"`
	ReadTimeout        int    `env:"READ_TIMEOUT_SEC" envDefault:"30"`
	WriteTimeout       int    `env:"WRITE_TIMEOUT_SEC" envDefault:"30"`
	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS" envDefault:"http://localhost:3000"`
	// PublicBaseURL prefixes the scan links embedded in registration QR codes.
	PublicBaseURL string `env:"PUBLIC_BASE_URL" envDefault:"http://localhost:8080"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL             string        `env:"DATABASE_URL"` // if set, used as-is
	Host            string        `env:"DB_HOST" envDefault:"localhost"`
	Port            string        `env:"DB_PORT" envDefault:"5432"`
	User            string        `env:"DB_USER" envDefault:"postgres"`
	Password        string        `env:"DB_PASSWORD" envDefault:"postgres"`
	DBName          string        `env:"DB_NAME" envDefault:"eventflow"`
	SSLMode         string        `env:"DB_SSLMODE" envDefault:"disable"`
	MaxConns        int32         `env:"DB_MAX_CONNS" envDefault:"20"`
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" envDefault:"30m"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
}

// JWTConfig holds the secret used to validate access tokens issued by the identity service.
type JWTConfig struct {
	Secret      string `env:"JWT_SECRET" envDefault:"change-me-in-production"`
	ExpireHours int    `env:"JWT_EXPIRE_HOURS" envDefault:"24"`
}

// AWSConfig holds AWS credentials and the bucket for certificate files.
type AWSConfig struct {
	Region             string `env:"AWS_REGION"`
	AccessKeyID        string `env:"AWS_ACCESS_KEY_ID"`
	SecretAccessKey    string `env:"AWS_SECRET_ACCESS_KEY"`
	CertificatesBucket string `env:"AWS_S3_CERTIFICATES_BUCKET" envDefault:"eventflow-certificates"`
}

// StorageConfig selects where rendered certificates and templates are kept.
type StorageConfig struct {
	Driver   string `env:"STORAGE_DRIVER" envDefault:"local"` // "local" or "s3"
	LocalDir string `env:"STORAGE_LOCAL_DIR" envDefault:"./data"`
}

// TracingConfig configures the OTLP trace exporter; empty endpoint disables tracing.
type TracingConfig struct {
	ServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"eventflow"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	Endpoint    string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

// CertificatesConfig holds certificate workflow settings.
type CertificatesConfig struct {
	// EligibleAfterCheckout also accepts registrations that checked out after checking in.
	EligibleAfterCheckout bool   `env:"CERT_ELIGIBLE_AFTER_CHECKOUT" envDefault:"false"`
	IssuerName            string `env:"CERT_ISSUER_NAME" envDefault:"EventFlow"`
}

// DashboardConfig controls the admin dashboard aggregates.
type DashboardConfig struct {
	CacheTTL  time.Duration `env:"DASHBOARD_CACHE_TTL" envDefault:"30s"`
	TopEvents int           `env:"DASHBOARD_TOP_EVENTS" envDefault:"10"`
	TrendDays int           `env:"DASHBOARD_TREND_DAYS" envDefault:"30"`
}

// EmailConfig describes the sender identity placed on outbox messages.
type EmailConfig struct {
	FromAddress string `env:"EMAIL_FROM_ADDRESS" envDefault:"noreply@example.com"`
	FromName    string `env:"EMAIL_FROM_NAME" envDefault:"EventFlow"`
}

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (e.g. DATABASE_URL env), it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()      // .env
	_ = godotenv.Load("env") // env (no leading dot)

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.Storage.Driver = strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))
	switch cfg.Storage.Driver {
	case "local", "s3":
	default:
		return nil, fmt.Errorf("unsupported STORAGE_DRIVER %q", cfg.Storage.Driver)
	}
	if cfg.Storage.Driver == "s3" && cfg.AWS.Region == "" {
		return nil, fmt.Errorf("AWS_REGION is required when STORAGE_DRIVER=s3")
	}
	return cfg, nil
}
