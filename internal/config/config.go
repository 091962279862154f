package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
)

const (
	CounterRepository = "repository"
	CounterRedis      = "redis"
)

type Config struct {
	Port          string `envconfig:"PORT" default:"8080"`
	AllowedOrigin string `envconfig:"ALLOWED_ORIGIN" default:"http://127.0.0.1:3000"`

	DatabaseURL   string `envconfig:"DATABASE_URL"`
	RedisAddr     string `envconfig:"REDIS_ADDR"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	CounterBackend           string `envconfig:"COUNTER_BACKEND" default:"repository"`
	InvoiceSeries            string `envconfig:"INVOICE_SERIES" default:"invoice"`
	BusinessUTCOffsetMinutes int    `envconfig:"BUSINESS_UTC_OFFSET_MINUTES" default:"330"`

	DashboardCacheTTLSeconds int `envconfig:"DASHBOARD_CACHE_TTL_SECONDS" default:"30"`
	DraftTTLMinutes          int `envconfig:"DRAFT_TTL_MINUTES" default:"120"`
	StorageTimeoutSeconds    int `envconfig:"STORAGE_TIMEOUT_SECONDS" default:"5"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"text"`
}

// Load reads an optional .env file and then the process environment. Values
// already present in the environment win over the file.
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil && len(files) > 0 {
		return Config{}, errors.Wrap(err, "load env file")
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, errors.Wrap(err, "read environment")
	}
	cfg.CounterBackend = strings.ToLower(strings.TrimSpace(cfg.CounterBackend))
	cfg.InvoiceSeries = strings.TrimSpace(cfg.InvoiceSeries)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.CounterBackend {
	case CounterRepository:
	case CounterRedis:
		if c.RedisAddr == "" {
			return errors.New("COUNTER_BACKEND=redis requires REDIS_ADDR")
		}
	default:
		return errors.Errorf("unknown COUNTER_BACKEND %q", c.CounterBackend)
	}
	if c.InvoiceSeries == "" {
		return errors.New("INVOICE_SERIES must not be empty")
	}
	if c.BusinessUTCOffsetMinutes < -12*60 || c.BusinessUTCOffsetMinutes > 14*60 {
		return errors.Errorf("BUSINESS_UTC_OFFSET_MINUTES %d out of range", c.BusinessUTCOffsetMinutes)
	}
	if c.DraftTTLMinutes < 1 {
		return errors.New("DRAFT_TTL_MINUTES must be at least 1")
	}
	if c.StorageTimeoutSeconds < 1 {
		return errors.New("STORAGE_TIMEOUT_SECONDS must be at least 1")
	}
	if c.DashboardCacheTTLSeconds < 0 {
		return errors.New("DASHBOARD_CACHE_TTL_SECONDS must not be negative")
	}
	return nil
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) BusinessOffset() time.Duration {
	return time.Duration(c.BusinessUTCOffsetMinutes) * time.Minute
}

func (c Config) DashboardCacheTTL() time.Duration {
	return time.Duration(c.DashboardCacheTTLSeconds) * time.Second
}

func (c Config) DraftTTL() time.Duration {
	return time.Duration(c.DraftTTLMinutes) * time.Minute
}

func (c Config) StorageTimeout() time.Duration {
	return time.Duration(c.StorageTimeoutSeconds) * time.Second
}
