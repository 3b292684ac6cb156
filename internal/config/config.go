package config

import (
	stderrors "errors"
	"io/fs"
	"os"
	"runtime"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/Brownie44l1/fiber-thresholds/internal/errors"
)

// Config represents the complete application configuration
type Config struct {
	Pipeline PipelineConfig
	Runtime  RuntimeConfig
	Server   ServerConfig
	Logging  LoggingConfig
}

// PipelineConfig holds worker pool and batching settings
type PipelineConfig struct {
	Workers   int
	BatchSize int // 0 means use the model's own batch size
}

// RuntimeConfig holds inference runtime settings
type RuntimeConfig struct {
	ORTLibraryPath string
}

// ServerConfig holds the prediction service settings. The service keeps one
// field and one model loaded for its lifetime.
type ServerConfig struct {
	Port          string
	ElectrodeFile string
	ModelDir      string
	TractType     string
	Mode          string
	Centering     string
	Conductivity  string
}

// LoggingConfig holds logger settings
type LoggingConfig struct {
	Format string
	Level  string
}

// Load reads an optional .env file and then the environment, and validates
// the result.
func Load() (*Config, error) {
	config, err := LoadEnv()
	if err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}
	return config, nil
}

// LoadEnv reads an optional .env file and then the environment without
// validating, so callers can apply overrides first. Malformed numbers are
// still rejected.
func LoadEnv() (*Config, error) {
	if err := godotenv.Load(); err != nil && !stderrors.Is(err, fs.ErrNotExist) {
		return nil, errors.WithCode(errors.CodeInvalidConfiguration, err, "failed to read .env")
	}

	workers, err := getEnvIntOrDefault("THRESHOLD_WORKERS", runtime.NumCPU())
	if err != nil {
		return nil, err
	}
	batchSize, err := getEnvIntOrDefault("THRESHOLD_BATCH_SIZE", 0)
	if err != nil {
		return nil, err
	}

	return &Config{
		Pipeline: PipelineConfig{
			Workers:   workers,
			BatchSize: batchSize,
		},
		Runtime: RuntimeConfig{
			ORTLibraryPath: getEnvOrDefault("ORT_SHARED_LIBRARY_PATH", ""),
		},
		Server: ServerConfig{
			Port:          getEnvOrDefault("PORT", "8080"),
			ElectrodeFile: getEnvOrDefault("ELECTRODE_FILE", ""),
			ModelDir:      getEnvOrDefault("MODEL_DIR", "models"),
			TractType:     getEnvOrDefault("TRACT_TYPE", ""),
			Mode:          getEnvOrDefault("MODE", "reg"),
			Centering:     getEnvOrDefault("CENTERING", "min_ecs"),
			Conductivity:  getEnvOrDefault("CONDUCTIVITY", "isotropic"),
		},
		Logging: LoggingConfig{
			Format: getEnvOrDefault("LOG_FORMAT", "text"),
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
		},
	}, nil
}

// Validate checks the settings that do not depend on loaded inputs.
func (c *Config) Validate() error {
	if c.Pipeline.Workers < 1 {
		return errors.InvalidConfiguration("workers must be at least 1, got %d", c.Pipeline.Workers)
	}
	if c.Pipeline.BatchSize < 0 {
		return errors.InvalidConfiguration("batch size must not be negative, got %d", c.Pipeline.BatchSize)
	}
	if _, err := ParseLevel(c.Logging.Level); err != nil {
		return err
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return errors.InvalidConfiguration("unknown log format %q", c.Logging.Format)
	}
	return nil
}

// ValidateServer checks the settings the prediction service needs on top of Validate.
func (c *Config) ValidateServer() error {
	if c.Server.ElectrodeFile == "" {
		return errors.InvalidConfiguration("ELECTRODE_FILE is required")
	}
	if c.Server.TractType == "" {
		return errors.InvalidConfiguration("TRACT_TYPE is required")
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		return 0, errors.InvalidConfiguration("%s must be an integer, got %q", key, value)
	}
	return intValue, nil
}
