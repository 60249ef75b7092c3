// Package config handles application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration. Thresholds and loss constants
// are fixed for the lifetime of the process; a new model version means a new
// deployment.
type Config struct {
	// Server settings
	Port string
	Env  string // "development", "staging", "production"

	// Model artifacts
	ArtifactsDir string

	// Redis (optional - absence triggers fail-open behavior everywhere)
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTimeout  time.Duration

	// Auth
	APIKey      string // single-key admin mode
	APIKeysJSON string // multi-key mode: {"key":{"rpm":60,"role":"analyst","read_only":false,"expires_at":"..."}}
	DefaultRPM  int

	// Drift monitoring
	DriftZThreshold float64
	DriftMinSamples int
	DriftTTL        time.Duration

	// OOD guardrail
	OODZThreshold float64

	// Decision policy
	StepUpThreshold   float64
	ReviewThreshold   float64
	DeclineThreshold  float64
	LossPerEventUSD   float64
	LossAmtMultiplier float64

	// Explainability
	ExplainTopK          int
	ExplainSampleBudget  int
	GlobalExplainMaxRows int

	// Batch scoring
	BatchMaxRows int

	// Audit log (optional, empty disables)
	AuditDBPath string
}

const (
	DefaultPort       = "8080"
	DefaultEnv        = "development"
	DefaultRateLimit  = 60
	DefaultArtifacts  = "artifacts/latest"
	DefaultDriftTTL   = 14 * 24 * time.Hour
	DefaultRedisWait  = 2 * time.Second
	defaultTopK       = 6
	defaultBudget     = 2048
	defaultGlobalRows = 500
	defaultBatchRows  = 100
)

// Load reads configuration from environment variables. It loads a .env file
// if present (for local development) and fails on invalid decision thresholds.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:                 getEnv("PORT", DefaultPort),
		Env:                  getEnv("ENV", DefaultEnv),
		ArtifactsDir:         getEnv("ARTIFACTS_DIR", DefaultArtifacts),
		RedisAddr:            os.Getenv("REDIS_ADDR"),
		RedisPassword:        os.Getenv("REDIS_PASSWORD"),
		RedisDB:              getEnvInt("REDIS_DB", 0),
		RedisTimeout:         getEnvDuration("REDIS_TIMEOUT", DefaultRedisWait),
		APIKey:               os.Getenv("API_KEY"),
		APIKeysJSON:          os.Getenv("API_KEYS_JSON"),
		DefaultRPM:           getEnvInt("DEFAULT_RPM", DefaultRateLimit),
		DriftZThreshold:      getEnvFloat("DRIFT_Z_THRESHOLD", 3.5),
		DriftMinSamples:      getEnvInt("DRIFT_MIN_SAMPLES", 50),
		DriftTTL:             getEnvDuration("DRIFT_TTL", DefaultDriftTTL),
		OODZThreshold:        getEnvFloat("OOD_Z_THRESHOLD", 4.0),
		StepUpThreshold:      getEnvFloat("STEPUP_THRESHOLD", 0.35),
		ReviewThreshold:      getEnvFloat("REVIEW_THRESHOLD", 0.55),
		DeclineThreshold:     getEnvFloat("DECLINE_THRESHOLD", 0.80),
		LossPerEventUSD:      getEnvFloat("LOSS_PER_EVENT_USD", 180.0),
		LossAmtMultiplier:    getEnvFloat("LOSS_AMT_MULTIPLIER", 0.15),
		ExplainTopK:          getEnvInt("EXPLAIN_TOP_K", defaultTopK),
		ExplainSampleBudget:  getEnvInt("EXPLAIN_SAMPLE_BUDGET", defaultBudget),
		GlobalExplainMaxRows: getEnvInt("GLOBAL_EXPLAIN_MAX_ROWS", defaultGlobalRows),
		BatchMaxRows:         getEnvInt("BATCH_MAX_ROWS", defaultBatchRows),
		AuditDBPath:          os.Getenv("AUDIT_DB_PATH"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate enforces the configuration invariants that are fatal at startup.
// A non-monotonic threshold cascade silently reorders decision severity, so
// it is rejected here rather than checked per request.
func (c *Config) Validate() error {
	for name, v := range map[string]float64{
		"STEPUP_THRESHOLD":  c.StepUpThreshold,
		"REVIEW_THRESHOLD":  c.ReviewThreshold,
		"DECLINE_THRESHOLD": c.DeclineThreshold,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("config: %s=%v outside [0,1]", name, v)
		}
	}
	if c.StepUpThreshold > c.ReviewThreshold || c.ReviewThreshold > c.DeclineThreshold {
		return fmt.Errorf("config: thresholds must satisfy step_up <= review <= decline, got %v/%v/%v",
			c.StepUpThreshold, c.ReviewThreshold, c.DeclineThreshold)
	}
	if c.DriftZThreshold <= 0 {
		return fmt.Errorf("config: DRIFT_Z_THRESHOLD must be positive, got %v", c.DriftZThreshold)
	}
	if c.OODZThreshold <= 0 {
		return fmt.Errorf("config: OOD_Z_THRESHOLD must be positive, got %v", c.OODZThreshold)
	}
	if c.ExplainTopK < 1 {
		return fmt.Errorf("config: EXPLAIN_TOP_K must be at least 1, got %d", c.ExplainTopK)
	}
	if c.BatchMaxRows < 1 {
		return fmt.Errorf("config: BATCH_MAX_ROWS must be at least 1, got %d", c.BatchMaxRows)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
