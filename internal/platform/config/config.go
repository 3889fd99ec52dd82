package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures process-level configuration. Everything is env-driven so
// main stays lean; deployment-tunable knobs (cache TTL, list cap, thresholds)
// live here rather than as package constants.
type Config struct {
	Addr  string
	Debug bool

	// PostgresDSN selects the durable event store. Empty means in-memory,
	// which is only suitable for local development and tests.
	PostgresDSN string

	// RedisURL, when set, bridges broadcasts across replicas via pub/sub.
	RedisURL string
	Redis    RedisConfig

	// KafkaBrokers, when non-empty, enables the audit export worker.
	KafkaBrokers []string
	KafkaTopic   string

	// SummaryTTL is the absolute expiry for cached summary entries.
	SummaryTTL time.Duration

	// Thresholds maps asset category (lower-case) to the minimum available
	// count below which the category is flagged low.
	Thresholds map[string]int

	// MaxListTake caps the fallback query regardless of the requested take.
	MaxListTake int
}

// RedisConfig mirrors the tunables of the go-redis client pool.
type RedisConfig struct {
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// FromEnv builds a Config from environment variables, applying defaults for
// anything unset.
func FromEnv() Config {
	cfg := Config{
		Addr:        envOr("ASSETTRAIL_ADDR", ":8080"),
		Debug:       os.Getenv("ASSETTRAIL_DEBUG") == "true",
		PostgresDSN: os.Getenv("POSTGRES_DSN"),
		RedisURL:    os.Getenv("REDIS_URL"),
		KafkaTopic:  envOr("KAFKA_AUDIT_TOPIC", "assettrail.audit.events"),
		SummaryTTL:  envDuration("SUMMARY_CACHE_TTL", 30*time.Second),
		Thresholds:  ParseThresholds(os.Getenv("SUMMARY_THRESHOLDS")),
		MaxListTake: envInt("AUDIT_LIST_MAX_TAKE", 200),
		Redis: RedisConfig{
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
	}
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
			}
		}
	}
	return cfg
}

// ParseThresholds parses "laptop=5,monitor=3" into a lower-cased map.
// Later entries win on duplicate categories.
func ParseThresholds(raw string) map[string]int {
	out := make(map[string]int)
	for _, pair := range strings.Split(raw, ",") {
		key, val, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		n, err := strconv.Atoi(strings.TrimSpace(val))
		if key == "" || err != nil {
			continue
		}
		out[key] = n
	}
	return out
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

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
