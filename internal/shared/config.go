package shared

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

type Config struct {
	AppEnv      string
	HTTPAddr    string
	MetricsAddr string
	MySQLDSN    string
	RedisAddr   string
	RedisDB     int
	RedisPass   string

	PricingBase string
	PricingKey  string
	PaymentBase string
	PaymentKey  string

	LockTTL       time.Duration
	SweepInterval time.Duration
	SnapshotTTL   time.Duration
	HorizonDays   int
	MaxGuests     int

	SeedWorkers     int
	SeedPropertyIDs []int64
	SeedDays        int
}

func Load() Config {
	atoi := func(k string, def int) int {
		if v := os.Getenv(k); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				return n
			}
		}
		return def
	}
	c := Config{
		AppEnv:      env("APP_ENV", "prod"),
		HTTPAddr:    env("HTTP_ADDR", ":8080"),
		MetricsAddr: env("METRICS_ADDR", ":9100"),
		MySQLDSN:    env("MYSQL_DSN", "root:root@tcp(localhost:3306)/stayhold?parseTime=true&charset=utf8mb4,utf8&loc=UTC"),
		RedisAddr:   env("REDIS_ADDR", "localhost:6379"),
		RedisPass:   env("REDIS_PASSWORD", ""),

		PricingBase: env("PRICING_BASE_URL", "https://pricing.internal/api"),
		PricingKey:  env("PRICING_API_KEY", ""),
		PaymentBase: env("PAYMENT_BASE_URL", "https://payments.internal/api"),
		PaymentKey:  env("PAYMENT_API_KEY", ""),

		LockTTL:       time.Duration(atoi("LOCK_TTL_SECONDS", 900)) * time.Second,
		SweepInterval: time.Duration(atoi("SWEEP_INTERVAL_SECONDS", 30)) * time.Second,
		SnapshotTTL:   time.Duration(atoi("SNAPSHOT_CACHE_TTL_SECONDS", 60)) * time.Second,
		HorizonDays:   atoi("HORIZON_DAYS", 365),
		MaxGuests:     atoi("MAX_GUESTS", 16),

		SeedWorkers:     atoi("SEED_WORKERS", 8),
		SeedPropertyIDs: envInt64s("SEED_PROPERTY_IDS"),
		SeedDays:        atoi("SEED_DAYS", 365),
	}
	if c.PricingKey == "" {
		log.Warn().Msg("PRICING_API_KEY is empty")
	}
	if c.PaymentKey == "" {
		log.Warn().Msg("PAYMENT_API_KEY is empty")
	}
	return c
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

// envInt64s parses a comma-separated list of IDs; bad entries are skipped.
func envInt64s(k string) []int64 {
	var out []int64
	for _, part := range strings.Split(os.Getenv(k), ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if n, err := strconv.ParseInt(part, 10, 64); err == nil {
			out = append(out, n)
		}
	}
	return out
}
