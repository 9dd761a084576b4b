package bootstrap

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the resolved runtime configuration for the escrow release
// service. It merges file defaults and environment overrides to support both
// local and deployed runs.
type Config struct {
	ServiceID string

	HTTPPort int
	GRPCPort int

	DatabaseURL string
	RedisURL    string

	PaymentGatewayURL    string
	PaymentGatewayAPIKey string
	PhotoAnalyzerURL     string
	DisputePredictorURL  string

	DisputeRiskThreshold float64
	HighValueThreshold   float64
	HighRiskCategories   []string
	DefaultCurrency      string

	SweepInterval    time.Duration
	SweepBatchSize   int
	SweepConcurrency int
	SweepClaimTTL    time.Duration

	ReleaseMaxAttempts int
	RetryBackoff       time.Duration

	AnalyzerTimeout  time.Duration
	PredictorTimeout time.Duration
	GatewayTimeout   time.Duration

	IdempotencyTTL time.Duration
	RuleCacheTTL   time.Duration

	MaxDBConns         int32
	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxClaimTTL     time.Duration
	OutboxMaxRetries   int
}

// configFile mirrors the YAML schema used by configs/default.yaml. It is
// intentionally separate from Config so runtime-only fields stay internal.
type configFile struct {
	Service struct {
		ID       string `yaml:"id"`
		HTTPPort int    `yaml:"http_port"`
		GRPCPort int    `yaml:"grpc_port"`
	} `yaml:"service"`
	Dependencies struct {
		PostgresURL         string `yaml:"postgres_url"`
		RedisURL            string `yaml:"redis_url"`
		PaymentGatewayURL   string `yaml:"payment_gateway_url"`
		PhotoAnalyzerURL    string `yaml:"photo_analyzer_url"`
		DisputePredictorURL string `yaml:"dispute_predictor_url"`
	} `yaml:"dependencies"`
	Release struct {
		DisputeRiskThreshold float64  `yaml:"dispute_risk_threshold"`
		HighValueThreshold   float64  `yaml:"high_value_threshold"`
		HighRiskCategories   []string `yaml:"high_risk_categories"`
		DefaultCurrency      string   `yaml:"default_currency"`
	} `yaml:"release"`
	Sweep struct {
		IntervalMinutes int `yaml:"interval_minutes"`
		BatchSize       int `yaml:"batch_size"`
		Concurrency     int `yaml:"concurrency"`
		ClaimTTLMinutes int `yaml:"claim_ttl_minutes"`
	} `yaml:"sweep"`
}

// LoadConfig resolves configuration in priority order: defaults -> file -> env.
func LoadConfig(path string) (Config, error) {
	cfg := Config{
		ServiceID:            "Escrow-Release-Service",
		HTTPPort:             8080,
		GRPCPort:             9090,
		DisputeRiskThreshold: 0.6,
		HighValueThreshold:   1000,
		HighRiskCategories:   []string{"electrical", "gas", "structural"},
		DefaultCurrency:      "GBP",
		SweepInterval:        time.Hour,
		SweepBatchSize:       50,
		SweepConcurrency:     4,
		SweepClaimTTL:        15 * time.Minute,
		ReleaseMaxAttempts:   5,
		RetryBackoff:         30 * time.Minute,
		AnalyzerTimeout:      10 * time.Second,
		PredictorTimeout:     5 * time.Second,
		GatewayTimeout:       10 * time.Second,
		IdempotencyTTL:       7 * 24 * time.Hour,
		RuleCacheTTL:         5 * time.Minute,
		MaxDBConns:           20,
		OutboxPollInterval:   2 * time.Second,
		OutboxBatchSize:      100,
		OutboxClaimTTL:       30 * time.Second,
		OutboxMaxRetries:     5,
	}

	raw, err := os.ReadFile(path)
	if err == nil {
		var f configFile
		if unmarshalErr := yaml.Unmarshal(raw, &f); unmarshalErr != nil {
			return Config{}, fmt.Errorf("parse config file: %w", unmarshalErr)
		}
		if f.Service.ID != "" {
			cfg.ServiceID = f.Service.ID
		}
		if f.Service.HTTPPort > 0 {
			cfg.HTTPPort = f.Service.HTTPPort
		}
		if f.Service.GRPCPort > 0 {
			cfg.GRPCPort = f.Service.GRPCPort
		}
		if f.Dependencies.PostgresURL != "" {
			cfg.DatabaseURL = f.Dependencies.PostgresURL
		}
		if f.Dependencies.RedisURL != "" {
			cfg.RedisURL = f.Dependencies.RedisURL
		}
		if f.Dependencies.PaymentGatewayURL != "" {
			cfg.PaymentGatewayURL = f.Dependencies.PaymentGatewayURL
		}
		if f.Dependencies.PhotoAnalyzerURL != "" {
			cfg.PhotoAnalyzerURL = f.Dependencies.PhotoAnalyzerURL
		}
		if f.Dependencies.DisputePredictorURL != "" {
			cfg.DisputePredictorURL = f.Dependencies.DisputePredictorURL
		}
		if f.Release.DisputeRiskThreshold > 0 {
			cfg.DisputeRiskThreshold = f.Release.DisputeRiskThreshold
		}
		if f.Release.HighValueThreshold > 0 {
			cfg.HighValueThreshold = f.Release.HighValueThreshold
		}
		if len(f.Release.HighRiskCategories) > 0 {
			cfg.HighRiskCategories = f.Release.HighRiskCategories
		}
		if f.Release.DefaultCurrency != "" {
			cfg.DefaultCurrency = f.Release.DefaultCurrency
		}
		if f.Sweep.IntervalMinutes > 0 {
			cfg.SweepInterval = time.Duration(f.Sweep.IntervalMinutes) * time.Minute
		}
		if f.Sweep.BatchSize > 0 {
			cfg.SweepBatchSize = f.Sweep.BatchSize
		}
		if f.Sweep.Concurrency > 0 {
			cfg.SweepConcurrency = f.Sweep.Concurrency
		}
		if f.Sweep.ClaimTTLMinutes > 0 {
			cfg.SweepClaimTTL = time.Duration(f.Sweep.ClaimTTLMinutes) * time.Minute
		}
	}

	cfg.DatabaseURL = envOrDefault("DB_URL", envOrDefault("POSTGRES_URL", cfg.DatabaseURL))
	cfg.RedisURL = envOrDefault("REDIS_URL", cfg.RedisURL)
	cfg.PaymentGatewayURL = envOrDefault("PAYMENT_GATEWAY_URL", cfg.PaymentGatewayURL)
	cfg.PaymentGatewayAPIKey = envOrDefault("PAYMENT_GATEWAY_API_KEY", cfg.PaymentGatewayAPIKey)
	cfg.PhotoAnalyzerURL = envOrDefault("PHOTO_ANALYZER_URL", cfg.PhotoAnalyzerURL)
	cfg.DisputePredictorURL = envOrDefault("DISPUTE_PREDICTOR_URL", cfg.DisputePredictorURL)
	cfg.DefaultCurrency = envOrDefault("DEFAULT_CURRENCY", cfg.DefaultCurrency)
	cfg.HighRiskCategories = envCSV("HIGH_RISK_CATEGORIES", cfg.HighRiskCategories)
	cfg.DisputeRiskThreshold = envFloat("DISPUTE_RISK_THRESHOLD", cfg.DisputeRiskThreshold)
	cfg.HighValueThreshold = envFloat("HIGH_VALUE_THRESHOLD", cfg.HighValueThreshold)

	cfg.HTTPPort = envInt("HTTP_PORT", cfg.HTTPPort)
	cfg.GRPCPort = envInt("GRPC_PORT", cfg.GRPCPort)
	cfg.MaxDBConns = int32(envInt("DB_MAX_CONNS", int(cfg.MaxDBConns)))

	cfg.SweepInterval = time.Duration(envInt("SWEEP_INTERVAL_MINUTES", int(cfg.SweepInterval.Minutes()))) * time.Minute
	cfg.SweepBatchSize = envInt("SWEEP_BATCH_SIZE", cfg.SweepBatchSize)
	cfg.SweepConcurrency = envInt("SWEEP_CONCURRENCY", cfg.SweepConcurrency)
	cfg.SweepClaimTTL = time.Duration(envInt("SWEEP_CLAIM_TTL_MINUTES", int(cfg.SweepClaimTTL.Minutes()))) * time.Minute
	cfg.ReleaseMaxAttempts = envInt("RELEASE_MAX_ATTEMPTS", cfg.ReleaseMaxAttempts)
	cfg.RetryBackoff = time.Duration(envInt("RELEASE_RETRY_BACKOFF_MINUTES", int(cfg.RetryBackoff.Minutes()))) * time.Minute
	cfg.AnalyzerTimeout = time.Duration(envInt("ANALYZER_TIMEOUT_SECONDS", int(cfg.AnalyzerTimeout.Seconds()))) * time.Second
	cfg.PredictorTimeout = time.Duration(envInt("PREDICTOR_TIMEOUT_SECONDS", int(cfg.PredictorTimeout.Seconds()))) * time.Second
	cfg.GatewayTimeout = time.Duration(envInt("GATEWAY_TIMEOUT_SECONDS", int(cfg.GatewayTimeout.Seconds()))) * time.Second
	cfg.IdempotencyTTL = time.Duration(envInt("IDEMPOTENCY_TTL_HOURS", int(cfg.IdempotencyTTL.Hours()))) * time.Hour
	cfg.RuleCacheTTL = time.Duration(envInt("RULE_CACHE_TTL_SECONDS", int(cfg.RuleCacheTTL.Seconds()))) * time.Second
	cfg.OutboxPollInterval = time.Duration(envInt("OUTBOX_POLL_SECONDS", int(cfg.OutboxPollInterval.Seconds()))) * time.Second
	cfg.OutboxBatchSize = envInt("OUTBOX_BATCH_SIZE", cfg.OutboxBatchSize)
	cfg.OutboxClaimTTL = time.Duration(envInt("OUTBOX_CLAIM_TTL_SECONDS", int(cfg.OutboxClaimTTL.Seconds()))) * time.Second
	cfg.OutboxMaxRetries = envInt("OUTBOX_MAX_RETRIES", cfg.OutboxMaxRetries)

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("missing DB_URL/POSTGRES_URL")
	}
	if cfg.RedisURL == "" {
		return Config{}, fmt.Errorf("missing REDIS_URL")
	}

	return cfg, nil
}

func envOrDefault(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

func envInt(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func envFloat(name string, fallback float64) float64 {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return v
}

func envCSV(name string, fallback []string) []string {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	parts := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		parts = append(parts, trimmed)
	}
	if len(parts) == 0 {
		return fallback
	}
	return parts
}
