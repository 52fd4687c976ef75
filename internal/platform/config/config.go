package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	platformstrings "mediconnect/pkg/platform/strings"
)

// DevJWTSecret is used when JWT_SECRET is unset outside production.
const DevJWTSecret = "dev-secret-key-change-in-production"

// ErrMissingJWTSecret is returned in production when JWT_SECRET is unset.
var ErrMissingJWTSecret = errors.New("JWT_SECRET is required in production")

// RedisConfig configures the optional Redis connection backing the token
// denylist. An empty URL disables Redis.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig configures the optional audit mirror. No brokers disables it.
type KafkaConfig struct {
	Brokers    []string
	AuditTopic string
}

// Server captures process configuration.
type Server struct {
	Addr        string
	Environment string
	LogLevel    string

	JWTSecret string
	TokenTTL  time.Duration
	Issuer    string
	Audience  string

	// DatabaseURL selects the Postgres audit store; empty keeps records in
	// memory.
	DatabaseURL string
	// AuditBuffer > 0 switches the trail to asynchronous writes.
	AuditBuffer int

	Redis RedisConfig
	Kafka KafkaConfig

	// LoginRate is sign-in attempts per second allowed per client IP.
	LoginRate  float64
	LoginBurst int
	// SeedDemoUsers loads one account per role into the directory.
	SeedDemoUsers bool
	// TrustedProxies lists proxy IPs or CIDRs whose X-Forwarded-For and
	// X-Real-IP headers are believed. Empty trusts none.
	TrustedProxies []string
}

// IsProduction reports whether ENVIRONMENT is production.
func (s Server) IsProduction() bool {
	return strings.EqualFold(s.Environment, "production")
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() (Server, error) {
	cfg := Server{
		Addr:        getEnv("MEDICONNECT_ADDR", ":8080"),
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		JWTSecret:   os.Getenv("JWT_SECRET"),
		Issuer:      getEnv("JWT_ISSUER", "mediconnect"),
		Audience:    getEnv("JWT_AUDIENCE", "mediconnect-api"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Kafka: KafkaConfig{
			Brokers:    platformstrings.SplitList(os.Getenv("KAFKA_BROKERS"), ","),
			AuditTopic: getEnv("KAFKA_AUDIT_TOPIC", "mediconnect.audit"),
		},
		TrustedProxies: platformstrings.SplitList(os.Getenv("TRUSTED_PROXIES"), ","),
	}

	var err error
	if cfg.TokenTTL, err = durationEnv("TOKEN_TTL", 24*time.Hour); err != nil {
		return Server{}, err
	}
	if cfg.AuditBuffer, err = intEnv("AUDIT_BUFFER", 0); err != nil {
		return Server{}, err
	}
	if cfg.LoginBurst, err = intEnv("LOGIN_RATE_BURST", 10); err != nil {
		return Server{}, err
	}
	if cfg.LoginRate, err = floatEnv("LOGIN_RATE_PER_SECOND", 1); err != nil {
		return Server{}, err
	}
	cfg.SeedDemoUsers = getEnv("SEED_DEMO_USERS", strconv.FormatBool(!cfg.IsProduction())) == "true"

	if cfg.JWTSecret == "" {
		if cfg.IsProduction() {
			return Server{}, ErrMissingJWTSecret
		}
		cfg.JWTSecret = DevJWTSecret
	}
	if cfg.TokenTTL <= 0 {
		return Server{}, fmt.Errorf("TOKEN_TTL must be positive, got %s", cfg.TokenTTL)
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}

func intEnv(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return n, nil
}

func floatEnv(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return f, nil
}
