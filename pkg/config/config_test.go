package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.NotNil(t, cfg)

	// Test Lightspeed defaults
	assert.Empty(t, cfg.Lightspeed.Domain)
	assert.Empty(t, cfg.Lightspeed.Token)
	assert.Equal(t, 120*time.Second, cfg.Lightspeed.Timeout)

	// Test RateLimit defaults
	assert.Equal(t, 5.0, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, 1, cfg.RateLimit.Burst)
	assert.Equal(t, "token_bucket", cfg.RateLimit.Limiter)

	// Test Retry defaults
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.Retry.InitialDelay)
	assert.Equal(t, 30*time.Second, cfg.Retry.MaxDelay)
	assert.Equal(t, 2.0, cfg.Retry.Multiplier)

	// Test Export defaults
	assert.Equal(t, "./exports", cfg.Export.OutputDir)
	assert.Equal(t, "jsonl", cfg.Export.Format)
	assert.True(t, cfg.Export.Monolithic)
	assert.Equal(t, 50000, cfg.Export.PageSize)
	assert.False(t, cfg.Export.Resume)
	assert.Empty(t, cfg.Export.Resources)

	// Test Logging defaults
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Empty(t, cfg.Logging.File)
}

func TestLoadFromEnv(t *testing.T) {
	// Save current env vars
	oldEnv := make(map[string]string)
	envVars := []string{
		"LIGHTSPEED_DOMAIN",
		"LIGHTSPEED_TOKEN",
		"OUTPUT_DIR",
		"LSEXPORT_TIMEOUT",
		"LSEXPORT_REQUESTS_PER_SECOND",
		"LSEXPORT_FORMAT",
		"LSEXPORT_PAGE_SIZE",
		"LSEXPORT_MONOLITHIC",
		"LSEXPORT_LOG_LEVEL",
	}

	for _, key := range envVars {
		oldEnv[key] = os.Getenv(key)
	}

	// Restore env vars after test
	defer func() {
		for key, value := range oldEnv {
			if value == "" {
				os.Unsetenv(key)
			} else {
				os.Setenv(key, value)
			}
		}
	}()

	// Set test env vars
	os.Setenv("LIGHTSPEED_DOMAIN", "envstore.vendhq.com")
	os.Setenv("LIGHTSPEED_TOKEN", "env_token")
	os.Setenv("OUTPUT_DIR", "/env/exports")
	os.Setenv("LSEXPORT_TIMEOUT", "90s")
	os.Setenv("LSEXPORT_REQUESTS_PER_SECOND", "2.5")
	os.Setenv("LSEXPORT_FORMAT", "csv")
	os.Setenv("LSEXPORT_PAGE_SIZE", "1000")
	os.Setenv("LSEXPORT_MONOLITHIC", "false")
	os.Setenv("LSEXPORT_LOG_LEVEL", "debug")

	cfg := DefaultConfig()
	err := cfg.LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "envstore.vendhq.com", cfg.Lightspeed.Domain)
	assert.Equal(t, "env_token", cfg.Lightspeed.Token)
	assert.Equal(t, "/env/exports", cfg.Export.OutputDir)
	assert.Equal(t, 90*time.Second, cfg.Lightspeed.Timeout)
	assert.Equal(t, 2.5, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, "csv", cfg.Export.Format)
	assert.Equal(t, 1000, cfg.Export.PageSize)
	assert.False(t, cfg.Export.Monolithic)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadFromEnvIgnoresInvalidValues(t *testing.T) {
	oldRPS := os.Getenv("LSEXPORT_REQUESTS_PER_SECOND")
	oldPageSize := os.Getenv("LSEXPORT_PAGE_SIZE")
	defer func() {
		os.Setenv("LSEXPORT_REQUESTS_PER_SECOND", oldRPS)
		os.Setenv("LSEXPORT_PAGE_SIZE", oldPageSize)
	}()

	os.Setenv("LSEXPORT_REQUESTS_PER_SECOND", "not-a-number")
	os.Setenv("LSEXPORT_PAGE_SIZE", "-5")

	cfg := DefaultConfig()
	err := cfg.LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, 5.0, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, 50000, cfg.Export.PageSize)
}

func validTestConfig() *Config {
	cfg := DefaultConfig()
	cfg.Lightspeed.Domain = "store.vendhq.com"
	cfg.Lightspeed.Token = "test-token"
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantError bool
	}{
		{
			name:      "valid config",
			mutate:    func(c *Config) {},
			wantError: false,
		},
		{
			name:      "missing domain",
			mutate:    func(c *Config) { c.Lightspeed.Domain = "" },
			wantError: true,
		},
		{
			name:      "missing token",
			mutate:    func(c *Config) { c.Lightspeed.Token = "" },
			wantError: true,
		},
		{
			name:      "zero rate",
			mutate:    func(c *Config) { c.RateLimit.RequestsPerSecond = 0 },
			wantError: true,
		},
		{
			name:      "invalid limiter type",
			mutate:    func(c *Config) { c.RateLimit.Limiter = "leaky_bucket" },
			wantError: true,
		},
		{
			name:      "invalid format",
			mutate:    func(c *Config) { c.Export.Format = "parquet" },
			wantError: true,
		},
		{
			name:      "zero page size",
			mutate:    func(c *Config) { c.Export.PageSize = 0 },
			wantError: true,
		},
		{
			name:      "invalid log level",
			mutate:    func(c *Config) { c.Logging.Level = "verbose" },
			wantError: true,
		},
		{
			name: "resume dir does not exist",
			mutate: func(c *Config) {
				c.Export.Resume = true
				c.Export.ResumeDir = "/nonexistent/export/dir"
			},
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validTestConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestMergeCommandLineFlags(t *testing.T) {
	cfg := DefaultConfig()

	flags := map[string]interface{}{
		"domain":    "flagstore.vendhq.com",
		"token":     "flag-token",
		"output":    "/flag/exports",
		"format":    "csv",
		"paged":     true,
		"page-size": 2000,
		"resources": []string{"products", "sales"},
		"rate":      3.0,
		"log-level": "error",
	}

	cfg.MergeCommandLineFlags(flags)

	assert.Equal(t, "flagstore.vendhq.com", cfg.Lightspeed.Domain)
	assert.Equal(t, "flag-token", cfg.Lightspeed.Token)
	assert.Equal(t, "/flag/exports", cfg.Export.OutputDir)
	assert.Equal(t, "csv", cfg.Export.Format)
	assert.False(t, cfg.Export.Monolithic)
	assert.Equal(t, 2000, cfg.Export.PageSize)
	assert.Equal(t, []string{"products", "sales"}, cfg.Export.Resources)
	assert.Equal(t, 3.0, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, "error", cfg.Logging.Level)
}

func TestMergeResumeDirImpliesResume(t *testing.T) {
	cfg := DefaultConfig()

	cfg.MergeCommandLineFlags(map[string]interface{}{
		"resume-dir": "/exports/20240101_120000",
	})

	assert.True(t, cfg.Export.Resume)
	assert.Equal(t, "/exports/20240101_120000", cfg.Export.ResumeDir)
}

func TestSaveAndLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test-config.yaml")

	cfg := DefaultConfig()
	cfg.Lightspeed.Domain = "savedstore.vendhq.com"
	cfg.Lightspeed.Token = "saved-token"
	cfg.Export.Format = "csv"
	cfg.Export.PageSize = 25000

	err := cfg.Save(configPath)
	require.NoError(t, err)

	loaded := DefaultConfig()
	err = loaded.LoadFromFile(configPath)
	require.NoError(t, err)

	assert.Equal(t, "savedstore.vendhq.com", loaded.Lightspeed.Domain)
	assert.Equal(t, "saved-token", loaded.Lightspeed.Token)
	assert.Equal(t, "csv", loaded.Export.Format)
	assert.Equal(t, 25000, loaded.Export.PageSize)
}

func TestLoadFromFileMissingIsNotAnError(t *testing.T) {
	cfg := DefaultConfig()
	err := cfg.LoadFromFile("")
	assert.NoError(t, err)
}
