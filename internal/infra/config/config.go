package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Config aggregates application configuration values loaded from environment variables.
type Config struct {
	Env                string
	HTTPAddr           string
	MongoURI           string
	MongoDB            string
	KafkaBrokers       []string
	KafkaTopicPrefix   string
	IdempotencyTTL     time.Duration
	OutboxPollInterval time.Duration
	PayoutPollInterval time.Duration
	RetryBackoff       []time.Duration
	GraceMinutes       int
	NotchPayBaseURL    string
	NotchPayPublicKey  string
	NotchPaySecretKey  string
	NotchPayWebhookKey string
	GatewayTimeout     time.Duration
}

// Load parses configuration from the current environment.
func Load() (Config, error) {
	cfg := Config{
		Env:                getEnv("APP_ENV", "dev"),
		HTTPAddr:           getEnv("HTTP_ADDR", ":8080"),
		MongoURI:           os.Getenv("MONGO_URI"),
		MongoDB:            getEnv("MONGO_DB", "stayhub"),
		KafkaTopicPrefix:   getEnv("KAFKA_TOPIC_PREFIX", ""),
		NotchPayBaseURL:    getEnv("NOTCHPAY_BASE_URL", "https://api.notchpay.co"),
		NotchPayPublicKey:  os.Getenv("NOTCHPAY_PUBLIC_KEY"),
		NotchPaySecretKey:  os.Getenv("NOTCHPAY_SECRET_KEY"),
		NotchPayWebhookKey: os.Getenv("NOTCHPAY_WEBHOOK_KEY"),
	}
	brokers := getEnv("KAFKA_BROKERS", "")
	if brokers != "" {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}

	idempotencyTTL, err := parseDurationEnv("IDEMP_TTL", 168*time.Hour)
	if err != nil {
		return Config{}, err
	}
	cfg.IdempotencyTTL = idempotencyTTL

	poll, err := parseDurationEnv("OUTBOX_POLL_INTERVAL", 500*time.Millisecond)
	if err != nil {
		return Config{}, err
	}
	cfg.OutboxPollInterval = poll

	payoutPoll, err := parseDurationEnv("PAYOUT_POLL_INTERVAL", time.Minute)
	if err != nil {
		return Config{}, err
	}
	cfg.PayoutPollInterval = payoutPoll

	gatewayTimeout, err := parseDurationEnv("GATEWAY_TIMEOUT", 15*time.Second)
	if err != nil {
		return Config{}, err
	}
	cfg.GatewayTimeout = gatewayTimeout

	grace, err := parseIntEnv("CANCELLATION_GRACE_PERIOD_MINUTES", 30)
	if err != nil {
		return Config{}, err
	}
	cfg.GraceMinutes = grace

	retryStr := getEnv("RETRY_BACKOFF", "1s,5s,30s")
	for _, raw := range strings.Split(retryStr, ",") {
		val := strings.TrimSpace(raw)
		if val == "" {
			continue
		}
		d, err := time.ParseDuration(val)
		if err != nil {
			return Config{}, fmt.Errorf("invalid RETRY_BACKOFF component %q: %w", raw, err)
		}
		cfg.RetryBackoff = append(cfg.RetryBackoff, d)
	}

	// Dev runs entirely in memory: no Mongo, no Kafka, fake gateway. Any
	// other environment needs durable storage and real gateway credentials.
	if cfg.Env != "dev" {
		if cfg.MongoURI == "" {
			return Config{}, fmt.Errorf("MONGO_URI is required outside dev")
		}
		if cfg.NotchPaySecretKey == "" {
			return Config{}, fmt.Errorf("NOTCHPAY_SECRET_KEY is required outside dev")
		}
	}
	return cfg, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseDurationEnv(key string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s duration: %w", key, err)
	}
	return d, nil
}

func parseIntEnv(key string, def int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	var v int
	if _, err := fmt.Sscanf(strings.TrimSpace(raw), "%d", &v); err != nil {
		return 0, fmt.Errorf("invalid %s integer: %q", key, raw)
	}
	return v, nil
}
