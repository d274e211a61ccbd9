package config

import (
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/mijafro/fork-lca-algebraic/internal/errors"
)

// Config represents the complete application configuration
type Config struct {
	Analysis AnalysisConfig
	Workers  WorkerConfig
	Results  ResultsConfig
	Export   ExportConfig
	LogLevel string
}

// AnalysisConfig holds sampling and simplification settings
type AnalysisConfig struct {
	N              int
	KeepFraction   float64 // 0 means "use IndexThreshold"
	IndexThreshold float64
	ValidationN    int
	Seed           uint64
}

// WorkerConfig holds evaluation parallelism settings
type WorkerConfig struct {
	Count     int
	ChunkSize int
}

// ResultsConfig holds run-history database settings. An empty DSN disables
// persistence.
type ResultsConfig struct {
	Driver string
	DSN    string
}

// ExportConfig holds tabular export settings
type ExportConfig struct {
	Dir string
}

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	seed, err := getEnvUint64OrDefault("SEQUENCE_SEED", 0)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load analysis configuration")
	}

	config := &Config{
		Analysis: AnalysisConfig{
			N:              getEnvIntOrDefault("SOBOL_N", 1024),
			KeepFraction:   getEnvFloatOrDefault("KEEP_FRACTION", 0),
			IndexThreshold: getEnvFloatOrDefault("INDEX_THRESHOLD", 0.05),
			ValidationN:    getEnvIntOrDefault("VALIDATION_N", 512),
			Seed:           seed,
		},
		Workers: WorkerConfig{
			Count:     getEnvIntOrDefault("WORKER_COUNT", runtime.NumCPU()),
			ChunkSize: getEnvIntOrDefault("CHUNK_SIZE", 1024),
		},
		Results: ResultsConfig{
			Driver: getEnvOrDefault("RESULTS_DRIVER", "sqlite"),
			DSN:    getEnvOrDefault("RESULTS_DSN", ""),
		},
		Export: ExportConfig{
			Dir: getEnvOrDefault("EXPORT_DIR", "."),
		},
		LogLevel: strings.ToUpper(getEnvOrDefault("LOG_LEVEL", "INFO")),
	}

	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}
	return config, nil
}

// Validate checks ranges. It is called again by the CLI after flags have
// overridden environment values.
func (c *Config) Validate() error {
	if c.Analysis.N <= 0 {
		return errors.ConfigInvalid("SOBOL_N must be positive")
	}
	if c.Analysis.KeepFraction < 0 || c.Analysis.KeepFraction > 1 {
		return errors.ConfigInvalid("KEEP_FRACTION must be within [0, 1]")
	}
	if c.Analysis.IndexThreshold < 0 || c.Analysis.IndexThreshold > 1 {
		return errors.ConfigInvalid("INDEX_THRESHOLD must be within [0, 1]")
	}
	if c.Analysis.ValidationN < 0 {
		return errors.ConfigInvalid("VALIDATION_N cannot be negative")
	}
	if c.Workers.Count <= 0 {
		return errors.ConfigInvalid("WORKER_COUNT must be positive")
	}
	if c.Workers.ChunkSize <= 0 {
		return errors.ConfigInvalid("CHUNK_SIZE must be positive")
	}
	switch c.Results.Driver {
	case "sqlite", "postgres":
	default:
		return errors.ConfigInvalid("RESULTS_DRIVER must be sqlite or postgres, got " + c.Results.Driver)
	}
	return nil
}

// Persistence reports whether a results database is configured.
func (c *Config) Persistence() bool { return c.Results.DSN != "" }

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// A malformed seed is an error, not a silent default.
func getEnvUint64OrDefault(key string, defaultValue uint64) (uint64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	v, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, errors.ConfigInvalid(key + " must be an unsigned integer")
	}
	return v, nil
}
