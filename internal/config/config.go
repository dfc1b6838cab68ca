package config

import (
	"os"
	"strconv"

	"cogtrial/internal/errors"
)

// Config represents the complete report-run configuration
type Config struct {
	Data    DataConfig
	Sampler SamplerConfig
	Output  OutputConfig
}

// DataConfig holds input spreadsheet settings
type DataConfig struct {
	FilePath string `validate:"required"`
	Sheet    string
}

// SamplerConfig holds MCMC settings for the hierarchical model
type SamplerConfig struct {
	Seed       int64
	Chains     int
	Iterations int // retained draws per chain
	Warmup     int // discarded adaptation draws per chain
}

// OutputConfig holds report output settings
type OutputConfig struct {
	Dir string
}

// Load reads configuration from environment variables. Callers overlay any
// CLI flags and then run Validate.
func Load() *Config {
	return &Config{
		Data: DataConfig{
			FilePath: getEnvOrDefault("EXCEL_FILE", ""),
			Sheet:    getEnvOrDefault("SHEET_NAME", "Sheet1"),
		},
		Sampler: SamplerConfig{
			Seed:       getEnvInt64OrDefault("SEED", 42),
			Chains:     getEnvIntOrDefault("CHAINS", 4),
			Iterations: getEnvIntOrDefault("ITERATIONS", 2000),
			Warmup:     getEnvIntOrDefault("WARMUP", 1000),
		},
		Output: OutputConfig{
			Dir: getEnvOrDefault("OUT_DIR", "./out"),
		},
	}
}

// Validate checks the effective configuration after flag overlay
func (config *Config) Validate() error {
	if config.Data.FilePath == "" {
		return errors.ConfigInvalid("input file is required (EXCEL_FILE or --input)")
	}
	if config.Sampler.Chains < 1 {
		return errors.ConfigInvalid("CHAINS must be at least 1")
	}
	if config.Sampler.Iterations < 1 {
		return errors.ConfigInvalid("ITERATIONS must be at least 1")
	}
	if config.Sampler.Warmup < 0 {
		return errors.ConfigInvalid("WARMUP must not be negative")
	}
	return nil
}

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

func getEnvInt64OrDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}
