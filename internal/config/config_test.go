package config

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Brownie44l1/fiber-thresholds/internal/errors"
)

func TestLoadFromEnvironment(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("THRESHOLD_WORKERS", "3")
	t.Setenv("THRESHOLD_BATCH_SIZE", "64")
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("TRACT_TYPE", "cst")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Pipeline.Workers)
	assert.Equal(t, 64, cfg.Pipeline.BatchSize)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "cst", cfg.Server.TractType)
	assert.Equal(t, "min_ecs", cfg.Server.Centering)
	assert.Equal(t, "8080", cfg.Server.Port)
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"zero workers", "THRESHOLD_WORKERS", "0"},
		{"non-numeric workers", "THRESHOLD_WORKERS", "abc"},
		{"non-numeric batch size", "THRESHOLD_BATCH_SIZE", "1.5"},
		{"negative batch size", "THRESHOLD_BATCH_SIZE", "-1"},
		{"unknown log level", "LOG_LEVEL", "loud"},
		{"unknown log format", "LOG_FORMAT", "xml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Chdir(t.TempDir())
			t.Setenv(tt.key, tt.value)

			_, err := Load()
			require.Error(t, err)
			assert.True(t, errors.HasCode(err, errors.CodeInvalidConfiguration))
			assert.Contains(t, err.Error(), tt.value)
		})
	}
}

func TestLoadEnvDefersValidation(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("LOG_LEVEL", "loud")

	cfg, err := LoadEnv()
	require.NoError(t, err)
	assert.Equal(t, "loud", cfg.Logging.Level)
	assert.Error(t, cfg.Validate())

	cfg.Logging.Level = "debug"
	assert.NoError(t, cfg.Validate())

	t.Setenv("THRESHOLD_WORKERS", "abc")
	_, err = LoadEnv()
	assert.True(t, errors.HasCode(err, errors.CodeInvalidConfiguration))
}

func TestValidateServer(t *testing.T) {
	cfg := &Config{}
	err := cfg.ValidateServer()
	assert.True(t, errors.HasCode(err, errors.CodeInvalidConfiguration))

	cfg.Server.ElectrodeFile = "field.txt"
	cfg.Server.TractType = "cst"
	assert.NoError(t, cfg.ValidateServer())
}

func TestInitLogger(t *testing.T) {
	defer slog.SetDefault(slog.Default())

	var buf bytes.Buffer
	logger, err := InitLogger(&buf, LoggingConfig{Format: "json", Level: "debug"})
	require.NoError(t, err)

	logger.Debug("stage", "name", "loaded")
	assert.Contains(t, buf.String(), `"name":"loaded"`)

	_, err = InitLogger(&buf, LoggingConfig{Format: "xml"})
	assert.True(t, errors.HasCode(err, errors.CodeInvalidConfiguration))

	_, err = InitLogger(&buf, LoggingConfig{Format: "text", Level: "loud"})
	assert.True(t, errors.HasCode(err, errors.CodeInvalidConfiguration))
}
