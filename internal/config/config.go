package config

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/caarlos0/env/v11"
	sharedcfg "github.com/couchcryptid/storm-data-shared/config"

	"github.com/couchcryptid/launch-advisor/internal/adapter/feed"
	"github.com/couchcryptid/launch-advisor/internal/risk"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// SitesFile overrides the embedded site registry when set.
	SitesFile          string
	Thresholds         risk.Thresholds
	CORSAllowedOrigins []string

	Weather      FeedConfig
	SpaceWeather FeedConfig
	Conjunction  FeedConfig
	// ConjunctionScreenWindow is screened on either side of the launch time.
	ConjunctionScreenWindow time.Duration

	// Decision audit sinks. Each is off when unset.
	KafkaBrokers    []string
	KafkaAuditTopic string
	AuditDBDriver   string
	AuditDBDSN      string

	OTELEndpoint string
}

// FeedConfig is one provider block. The same fields are read under the
// WEATHER_, SPACE_WEATHER_ and CONJUNCTION_ prefixes.
type FeedConfig struct {
	BaseURL   string        `env:"BASE_URL"`
	Username  string        `env:"USERNAME"`
	Password  string        `env:"PASSWORD"`
	Timeout   time.Duration `env:"TIMEOUT"    envDefault:"5s"`
	Retries   int           `env:"RETRIES"    envDefault:"1"`
	CacheTTL  time.Duration `env:"CACHE_TTL"  envDefault:"0s"`
	CacheSize int           `env:"CACHE_SIZE" envDefault:"256"`
}

// Policy converts the block into the feed client policy.
func (f FeedConfig) Policy() feed.Policy {
	p := feed.DefaultPolicy()
	p.Timeout = f.Timeout
	p.Retries = f.Retries
	p.CacheTTL = f.CacheTTL
	p.CacheSize = f.CacheSize
	return p
}

func (f FeedConfig) validate(prefix string) error {
	if f.Timeout <= 0 {
		return fmt.Errorf("invalid %sTIMEOUT: must be a positive duration", prefix)
	}
	if f.Retries < 0 || f.Retries > 5 {
		return fmt.Errorf("invalid %sRETRIES: must be 0-5", prefix)
	}
	if f.CacheTTL < 0 {
		return fmt.Errorf("invalid %sCACHE_TTL: must not be negative", prefix)
	}
	if f.CacheTTL > 0 && f.CacheSize <= 0 {
		return fmt.Errorf("invalid %sCACHE_SIZE: must be positive when the cache is enabled", prefix)
	}
	return nil
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	thresholds, err := parseThresholds()
	if err != nil {
		return nil, err
	}

	window, err := time.ParseDuration(sharedcfg.EnvOrDefault("CONJUNCTION_SCREEN_WINDOW", "1h"))
	if err != nil || window <= 0 {
		return nil, errors.New("invalid CONJUNCTION_SCREEN_WINDOW: must be a positive duration")
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		SitesFile:          sharedcfg.EnvOrDefault("SITES_FILE", ""),
		Thresholds:         thresholds,
		CORSAllowedOrigins: sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:3001")),

		ConjunctionScreenWindow: window,

		KafkaBrokers:    sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "")),
		KafkaAuditTopic: sharedcfg.EnvOrDefault("KAFKA_AUDIT_TOPIC", "launch-decisions"),
		AuditDBDriver:   sharedcfg.EnvOrDefault("AUDIT_DB_DRIVER", ""),
		AuditDBDSN:      sharedcfg.EnvOrDefault("AUDIT_DB_DSN", ""),

		OTELEndpoint: sharedcfg.EnvOrDefault("OTEL_ENDPOINT", ""),
	}

	for _, block := range []struct {
		prefix string
		dst    *FeedConfig
	}{
		{"WEATHER_", &cfg.Weather},
		{"SPACE_WEATHER_", &cfg.SpaceWeather},
		{"CONJUNCTION_", &cfg.Conjunction},
	} {
		if err := env.ParseWithOptions(block.dst, env.Options{Prefix: block.prefix}); err != nil {
			return nil, fmt.Errorf("parse %s settings: %w", block.prefix, err)
		}
		if err := block.dst.validate(block.prefix); err != nil {
			return nil, err
		}
	}

	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaAuditTopic == "" {
		return nil, errors.New("KAFKA_AUDIT_TOPIC is required when KAFKA_BROKERS is set")
	}
	switch cfg.AuditDBDriver {
	case "":
	case "sqlite", "postgres":
		if cfg.AuditDBDSN == "" {
			return nil, errors.New("AUDIT_DB_DSN is required when AUDIT_DB_DRIVER is set")
		}
	default:
		return nil, fmt.Errorf("invalid AUDIT_DB_DRIVER %q: must be sqlite or postgres", cfg.AuditDBDriver)
	}

	return cfg, nil
}

func parseThresholds() (risk.Thresholds, error) {
	t := risk.DefaultThresholds()
	var err error
	if t.Marginal, err = parseScore("VERDICT_MARGINAL_THRESHOLD", t.Marginal); err != nil {
		return risk.Thresholds{}, err
	}
	if t.NoGo, err = parseScore("VERDICT_NOGO_THRESHOLD", t.NoGo); err != nil {
		return risk.Thresholds{}, err
	}
	if err := t.Validate(); err != nil {
		return risk.Thresholds{}, err
	}
	return t, nil
}

func parseScore(key string, fallback int) (int, error) {
	s := sharedcfg.EnvOrDefault(key, "")
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: must be an integer", key)
	}
	return n, nil
}
