package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ManuelReschke/DocPay/internal/pkg/env"
	"github.com/go-playground/validator/v10"
)

// Config is built once at startup and passed to constructors.
type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Cache     CacheConfig
	PayMongo  PayMongoConfig
	Reconcile ReconcileConfig
	Admin     AdminConfig
	JobQueue  JobQueueConfig
	Archive   ArchiveConfig
}

type AppConfig struct {
	Host string `validate:"required"`
	Port string `validate:"required,numeric"`
	Env  string `validate:"oneof=dev prod test"`
}

// Addr is the listen address for the HTTP server.
func (c AppConfig) Addr() string {
	return c.Host + ":" + c.Port
}

type DatabaseConfig struct {
	Driver      string `validate:"oneof=mysql postgres sqlite"`
	Host        string `validate:"required_unless=Driver sqlite"`
	Port        string `validate:"omitempty,numeric"`
	User        string
	Password    string
	Name        string `validate:"required_unless=Driver sqlite"`
	DSN         string `validate:"required_if=Driver sqlite"`
	AutoMigrate bool
}

type CacheConfig struct {
	Host     string `validate:"required"`
	Port     int    `validate:"gt=0,lt=65536"`
	Password string
	DB       int `validate:"gte=0"`
}

// Addr is the host:port of the Redis server.
func (c CacheConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type PayMongoConfig struct {
	SecretKey          string
	WebhookSecret      string
	WebhookURL         string `validate:"omitempty,url"`
	LiveMode           bool
	SignatureTolerance time.Duration `validate:"gte=0"`
	APIBaseURL         string        `validate:"required,url"`
}

type ReconcileConfig struct {
	Interval  time.Duration `validate:"gte=0"`
	BatchSize int           `validate:"gte=0"`
	LeaseTTL  time.Duration `validate:"gt=0"`
}

type AdminConfig struct {
	User     string
	Password string
}

// Enabled reports whether the admin API has credentials configured.
func (c AdminConfig) Enabled() bool {
	return c.User != "" && c.Password != ""
}

type JobQueueConfig struct {
	Workers    int `validate:"gte=1,lte=64"`
	MaxRetries int `validate:"gte=0"`
}

type ArchiveConfig struct {
	Enabled   bool
	Endpoint  string `validate:"omitempty,url"`
	Region    string `validate:"required_if=Enabled true"`
	Bucket    string `validate:"required_if=Enabled true"`
	AccessKey string `validate:"required_if=Enabled true"`
	SecretKey string `validate:"required_if=Enabled true"`
	Prefix    string
	PathStyle bool
}

var validate = validator.New()

// Load reads the configuration from the environment (see env.SetupEnvFile)
// and validates it.
func Load() (*Config, error) {
	cfg := &Config{
		App: AppConfig{
			Host: env.GetEnv("APP_HOST", "0.0.0.0"),
			Port: env.GetEnv("APP_PORT", "4000"),
			Env:  env.GetEnv("APP_ENV", "prod"),
		},
		Database: DatabaseConfig{
			Driver:      strings.ToLower(env.GetEnv("DB_DRIVER", "mysql")),
			Host:        env.GetEnv("DB_HOST", "127.0.0.1"),
			Port:        env.GetEnv("DB_PORT", ""),
			User:        env.GetEnv("DB_USER", ""),
			Password:    env.GetEnv("DB_PASSWORD", ""),
			Name:        env.GetEnv("DB_NAME", ""),
			DSN:         env.GetEnv("DB_DSN", ""),
			AutoMigrate: env.GetEnvBool("DB_AUTO_MIGRATE", false),
		},
		Cache: CacheConfig{
			Host:     env.GetEnv("CACHE_HOST", "localhost"),
			Port:     env.GetEnvInt("CACHE_PORT", 6379),
			Password: env.GetEnv("CACHE_PASSWORD", ""),
			DB:       env.GetEnvInt("CACHE_DB", 0),
		},
		PayMongo: PayMongoConfig{
			SecretKey:          strings.TrimSpace(env.GetEnv("PAYMONGO_SECRET_KEY", "")),
			WebhookSecret:      strings.TrimSpace(env.GetEnv("PAYMONGO_WEBHOOK_SECRET", "")),
			WebhookURL:         strings.TrimSpace(env.GetEnv("PAYMONGO_WEBHOOK_URL", "")),
			LiveMode:           env.GetEnvBool("PAYMONGO_LIVE_MODE", false),
			SignatureTolerance: time.Duration(env.GetEnvInt("PAYMONGO_SIGNATURE_TOLERANCE_SECONDS", 0)) * time.Second,
			APIBaseURL:         env.GetEnv("PAYMONGO_API_BASE_URL", "https://api.paymongo.com/v1"),
		},
		Reconcile: ReconcileConfig{
			Interval:  time.Duration(env.GetEnvInt("RECONCILE_INTERVAL_MINUTES", 15)) * time.Minute,
			BatchSize: env.GetEnvInt("RECONCILE_BATCH_SIZE", 200),
			LeaseTTL:  time.Duration(env.GetEnvInt("RECONCILE_LEASE_SECONDS", 300)) * time.Second,
		},
		Admin: AdminConfig{
			User:     env.GetEnv("ADMIN_USER", ""),
			Password: env.GetEnv("ADMIN_PASSWORD", ""),
		},
		JobQueue: JobQueueConfig{
			Workers:    env.GetEnvInt("JOBQUEUE_WORKERS", 2),
			MaxRetries: env.GetEnvInt("JOBQUEUE_MAX_RETRIES", 3),
		},
		Archive: ArchiveConfig{
			Enabled:   env.GetEnvBool("S3_ARCHIVE_ENABLED", false),
			Endpoint:  env.GetEnv("S3_ENDPOINT", ""),
			Region:    env.GetEnv("S3_REGION", ""),
			Bucket:    env.GetEnv("S3_BUCKET", ""),
			AccessKey: env.GetEnv("S3_ACCESS_KEY", ""),
			SecretKey: env.GetEnv("S3_SECRET_KEY", ""),
			Prefix:    env.GetEnv("S3_PREFIX", "receipts"),
			PathStyle: env.GetEnvBool("S3_PATH_STYLE", true),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks struct constraints and reports every violation.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
}
