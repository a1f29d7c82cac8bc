// Package config provides configuration management for the planner.
//
// Configuration is resolved once at process start from environment
// variables (optionally via a .env file) into an immutable Config value,
// passed explicitly to the orchestrator. There are no singletons.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/arcfin/planner/internal/utils"
)

// Config holds the planner's resolved configuration. Every field is
// read-only after Load returns.
type Config struct {
	DataDir  string // base directory for SQLite databases, always absolute
	LogLevel string // debug, info, warn, error
	Port     int    // HTTP status/health surface port

	JobTimeoutMS    int // wall-clock budget per handle() call
	WorkerTimeoutMS int // per-attempt deadline for each worker call
	WorkerMaxAttempts int

	BackoffBaseMS   int
	BackoffFactor   float64
	BackoffCapMS    int
	BackoffJitter   float64

	JudgeThreshold int // minimum Narrator quality score before regeneration

	ChartCountMin int
	ChartCountMax int

	PoisonAttemptThreshold int

	PriceBatchSize int
	PriceBudgetMS  int

	NarratorRequiredHeadings []string

	OracleBaseURL string
	OracleAPIKey  string

	WorkerBackend   string // "stub" or "httpjson"
	WorkerServiceURL string

	Archive ArchiveConfig
}

// ArchiveConfig holds the S3-compatible bucket settings for job archival
// (SPEC_FULL.md §4.8). Archival is best-effort and the planner runs fine
// with it disabled.
type ArchiveConfig struct {
	Enabled         bool
	Bucket          string
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	RetentionDays   int
}

// Load reads configuration from environment variables, with PLANNER_ as
// the prefix, per SPEC_FULL.md §6.
func Load() (*Config, error) {
	// godotenv.Load() returns an error if .env doesn't exist, which is fine.
	_ = godotenv.Load()

	dataDir := getEnv("PLANNER_DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:  absDataDir,
		LogLevel: getEnv("PLANNER_LOG_LEVEL", "info"),
		Port:     getEnvAsInt("PLANNER_PORT", 8080),

		JobTimeoutMS:      getEnvAsInt("PLANNER_JOB_TIMEOUT_MS", 300000),
		WorkerTimeoutMS:   getEnvAsInt("PLANNER_WORKER_TIMEOUT_MS", 60000),
		WorkerMaxAttempts: getEnvAsInt("PLANNER_WORKER_MAX_ATTEMPTS", 3),

		BackoffBaseMS: getEnvAsInt("PLANNER_BACKOFF_BASE_MS", 500),
		BackoffFactor: getEnvAsFloat("PLANNER_BACKOFF_FACTOR", 2),
		BackoffCapMS:  getEnvAsInt("PLANNER_BACKOFF_CAP_MS", 8000),
		BackoffJitter: getEnvAsFloat("PLANNER_BACKOFF_JITTER", 0.2),

		JudgeThreshold: getEnvAsInt("PLANNER_JUDGE_THRESHOLD", 60),

		ChartCountMin: getEnvAsInt("PLANNER_CHART_COUNT_MIN", 4),
		ChartCountMax: getEnvAsInt("PLANNER_CHART_COUNT_MAX", 8),

		PoisonAttemptThreshold: getEnvAsInt("PLANNER_POISON_ATTEMPT_THRESHOLD", 5),

		PriceBatchSize: getEnvAsInt("PLANNER_PRICE_BATCH_SIZE", 100),
		PriceBudgetMS:  getEnvAsInt("PLANNER_PRICE_BUDGET_MS", 20000),

		NarratorRequiredHeadings: getEnvAsList(
			"PLANNER_NARRATOR_REQUIRED_HEADINGS",
			[]string{"Executive Summary", "Risks", "Recommendations"},
		),

		OracleBaseURL: getEnv("PLANNER_ORACLE_BASE_URL", ""),
		OracleAPIKey:  getEnv("PLANNER_ORACLE_API_KEY", ""),

		WorkerBackend:    getEnv("PLANNER_WORKER_BACKEND", "stub"),
		WorkerServiceURL: getEnv("PLANNER_WORKER_SERVICE_URL", ""),

		Archive: ArchiveConfig{
			Enabled:         getEnvAsBool("PLANNER_ARCHIVE_ENABLED", false),
			Bucket:          getEnv("PLANNER_ARCHIVE_BUCKET", ""),
			Endpoint:        getEnv("PLANNER_ARCHIVE_ENDPOINT", ""),
			Region:          getEnv("PLANNER_ARCHIVE_REGION", "auto"),
			AccessKeyID:     getEnv("PLANNER_ARCHIVE_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("PLANNER_ARCHIVE_SECRET_ACCESS_KEY", ""),
			RetentionDays:   getEnvAsInt("PLANNER_ARCHIVE_RETENTION_DAYS", 90),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks internally-consistent configuration invariants.
func (c *Config) Validate() error {
	if c.ChartCountMin > c.ChartCountMax {
		return fmt.Errorf("chart_count_min (%d) must be <= chart_count_max (%d)", c.ChartCountMin, c.ChartCountMax)
	}
	if c.WorkerMaxAttempts < 1 {
		return fmt.Errorf("worker_max_attempts must be >= 1, got %d", c.WorkerMaxAttempts)
	}
	if c.Archive.Enabled && c.Archive.Bucket == "" {
		return fmt.Errorf("archive_bucket is required when archive is enabled")
	}
	return nil
}

// ==========================================
// Helper functions
// ==========================================

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// getEnvAsList splits a comma-separated environment variable into a
// trimmed string slice, per the Open Question decision that the Narrator's
// required-heading set is configuration, not a hard-coded constant.
func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if parsed := utils.ParseCSV(value); parsed != nil {
		return parsed
	}
	return defaultValue
}
