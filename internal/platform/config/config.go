package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures process-level configuration. FromEnv builds it from
// environment variables so main stays lean.
type Config struct {
	Addr          string
	DatabaseURL   string
	JWTSigningKey string

	Redis RedisConfig

	Analyzer AnalyzerConfig

	// VerifyConfidenceThreshold is the minimum analyzer confidence for a
	// positive determination to mark a document verified; positives below
	// it land on partial_verified.
	VerifyConfidenceThreshold float64

	// FreeTierLimit is the per-cycle verification allowance for users
	// without an active subscription.
	FreeTierLimit int

	KafkaBrokers []string
	KafkaTopic   string
}

// RedisConfig holds connection settings for the platform Redis client.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// AnalyzerConfig holds settings for the external document analyzer.
type AnalyzerConfig struct {
	URL          string
	APIToken     string
	Timeout      time.Duration
	CallbackSeed string
}

// AdminGrantTTL bounds how long a resolved admin flag may be cached;
// elevation changes must take effect within this window.
var AdminGrantTTL = 5 * time.Minute

// FromEnv builds a Config from environment variables with development
// defaults.
func FromEnv() Config {
	cfg := Config{
		Addr:          envOr("VAULT_ADDR", ":8080"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		JWTSigningKey: envOr("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Analyzer: AnalyzerConfig{
			URL:          os.Getenv("ANALYZER_URL"),
			APIToken:     os.Getenv("ANALYZER_API_TOKEN"),
			Timeout:      envDuration("ANALYZER_TIMEOUT", 30*time.Second),
			CallbackSeed: os.Getenv("ANALYZER_CALLBACK_SEED"),
		},
		VerifyConfidenceThreshold: envFloat("VERIFY_CONFIDENCE_THRESHOLD", 0.80),
		FreeTierLimit:             envInt("FREE_TIER_VERIFICATIONS", 3),
		KafkaTopic:                envOr("KAFKA_EVENTS_TOPIC", "document-events"),
	}
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
