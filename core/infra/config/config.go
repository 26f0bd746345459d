package config

import (
	"os"
	"time"
)

const (
	defaultNATSURL          = "nats://localhost:4222"
	defaultRedisURL         = "redis://localhost:6379"
	defaultPolicyPath       = "config/policy.yaml"
	defaultAgentGatewayAddr = ":8089"
	defaultMetricsAddr      = ":9090"
	defaultSessionTTL       = 12 * time.Hour

	envNATSURL          = "NATS_URL"
	envRedisURL         = "REDIS_URL"
	envPolicyPath       = "POLICY_PATH"
	envAgentGatewayAddr = "AGENT_GATEWAY_ADDR"
	envMetricsAddr      = "METRICS_ADDR"
	envSessionTTL       = "SESSION_TTL"
)

// Config holds runtime configuration for the filegate services.
type Config struct {
	NatsURL          string
	RedisURL         string
	PolicyPath       string
	AgentGatewayAddr string
	MetricsAddr      string
	SessionTTL       time.Duration
}

// Load returns configuration using environment variables with sane defaults.
func Load() *Config {
	cfg := &Config{
		NatsURL:          envOr(envNATSURL, defaultNATSURL),
		RedisURL:         envOr(envRedisURL, defaultRedisURL),
		PolicyPath:       envOr(envPolicyPath, defaultPolicyPath),
		AgentGatewayAddr: envOr(envAgentGatewayAddr, defaultAgentGatewayAddr),
		MetricsAddr:      envOr(envMetricsAddr, defaultMetricsAddr),
		SessionTTL:       defaultSessionTTL,
	}
	if raw := os.Getenv(envSessionTTL); raw != "" {
		if parsed, err := time.ParseDuration(raw); err == nil && parsed > 0 {
			cfg.SessionTTL = parsed
		}
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
