package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration options for the Lightspeed exporter
type Config struct {
	// Lightspeed API credentials and connection settings
	Lightspeed LightspeedConfig `yaml:"lightspeed" json:"lightspeed"`

	// Rate limiting configuration
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`

	// Retry behavior for failed resources
	Retry RetryConfig `yaml:"retry" json:"retry"`

	// Export settings
	Export ExportConfig `yaml:"export" json:"export"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// LightspeedConfig holds Lightspeed-specific configuration
type LightspeedConfig struct {
	Domain  string        `yaml:"domain" json:"domain"`
	Token   string        `yaml:"token" json:"token"`
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" json:"requests_per_second"`
	Burst             int     `yaml:"burst" json:"burst"`
	Limiter           string  `yaml:"limiter" json:"limiter"`
}

// RetryConfig holds per-resource retry configuration
type RetryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts" json:"max_attempts"`
	InitialDelay time.Duration `yaml:"initial_delay" json:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay" json:"max_delay"`
	Multiplier   float64       `yaml:"multiplier" json:"multiplier"`
}

// ExportConfig holds export run configuration
type ExportConfig struct {
	OutputDir string `yaml:"output_dir" json:"output_dir"`
	Format    string `yaml:"format" json:"format"`

	// Monolithic requests the whole resource in one oversized page.
	// When false, records are fetched page by page.
	Monolithic bool `yaml:"monolithic" json:"monolithic"`
	PageSize   int  `yaml:"page_size" json:"page_size"`

	// Resume continues the most recent incomplete export instead of
	// starting a new directory. ResumeDir pins a specific one.
	Resume    bool   `yaml:"resume" json:"resume"`
	ResumeDir string `yaml:"resume_dir" json:"resume_dir"`

	// Resources restricts the run to a subset of the declared plan.
	// Empty means every resource.
	Resources []string `yaml:"resources" json:"resources"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Lightspeed: LightspeedConfig{
			Timeout: 120 * time.Second,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 5,
			Burst:             1,
			Limiter:           "token_bucket",
		},
		Retry: RetryConfig{
			MaxAttempts:  3,
			InitialDelay: 2 * time.Second,
			MaxDelay:     30 * time.Second,
			Multiplier:   2.0,
		},
		Export: ExportConfig{
			OutputDir:  "./exports",
			Format:     "jsonl",
			Monolithic: true,
			PageSize:   50000,
			Resume:     false,
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "",
		},
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	// Lightspeed credentials keep the names the export scripts have
	// always used so existing .env files keep working.
	if domain := os.Getenv("LIGHTSPEED_DOMAIN"); domain != "" {
		c.Lightspeed.Domain = domain
	}
	if token := os.Getenv("LIGHTSPEED_TOKEN"); token != "" {
		c.Lightspeed.Token = token
	}
	if outputDir := os.Getenv("OUTPUT_DIR"); outputDir != "" {
		c.Export.OutputDir = outputDir
	}

	if timeout := os.Getenv("LSEXPORT_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil && d > 0 {
			c.Lightspeed.Timeout = d
		}
	}

	// Rate limiting
	if rps := os.Getenv("LSEXPORT_REQUESTS_PER_SECOND"); rps != "" {
		if val, err := strconv.ParseFloat(rps, 64); err == nil && val > 0 {
			c.RateLimit.RequestsPerSecond = val
		}
	}

	// Export settings
	if format := os.Getenv("LSEXPORT_FORMAT"); format != "" {
		c.Export.Format = format
	}
	if pageSize := os.Getenv("LSEXPORT_PAGE_SIZE"); pageSize != "" {
		if val, err := strconv.Atoi(pageSize); err == nil && val > 0 {
			c.Export.PageSize = val
		}
	}
	if monolithic := os.Getenv("LSEXPORT_MONOLITHIC"); monolithic != "" {
		c.Export.Monolithic = strings.ToLower(monolithic) == "true"
	}

	// Logging level
	if logLevel := os.Getenv("LSEXPORT_LOG_LEVEL"); logLevel != "" {
		c.Logging.Level = logLevel
	}

	return nil
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	// If path is empty, try default locations
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // No config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	// Check in order of precedence
	locations := []string{
		".lsexport.yaml",
		".lsexport.yml",
		filepath.Join(os.Getenv("HOME"), ".config", "lsexport", "config.yaml"),
		filepath.Join(os.Getenv("HOME"), ".config", "lsexport", "config.yml"),
		filepath.Join(os.Getenv("HOME"), ".lsexport.yaml"),
		filepath.Join(os.Getenv("HOME"), ".lsexport.yml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	// Validate Lightspeed credentials
	if c.Lightspeed.Domain == "" {
		errs = append(errs, errors.New("Lightspeed domain is required"))
	}
	if c.Lightspeed.Token == "" {
		errs = append(errs, errors.New("Lightspeed API token is required"))
	}
	if c.Lightspeed.Timeout <= 0 {
		errs = append(errs, errors.New("request timeout must be positive"))
	}

	// Validate rate limiting
	if c.RateLimit.RequestsPerSecond <= 0 {
		errs = append(errs, errors.New("requests per second must be positive"))
	}
	if c.RateLimit.Burst <= 0 {
		errs = append(errs, errors.New("burst size must be positive"))
	}
	validLimiters := map[string]bool{
		"token_bucket": true, "sliding_window": true,
	}
	if !validLimiters[strings.ToLower(c.RateLimit.Limiter)] {
		errs = append(errs, errors.New("invalid rate limiter type"))
	}

	// Validate retry settings
	if c.Retry.MaxAttempts <= 0 {
		errs = append(errs, errors.New("max retry attempts must be positive"))
	}
	if c.Retry.InitialDelay <= 0 {
		errs = append(errs, errors.New("initial retry delay must be positive"))
	}

	// Validate export settings
	if c.Export.OutputDir == "" {
		errs = append(errs, errors.New("output directory is required"))
	}
	validFormats := map[string]bool{
		"jsonl": true, "csv": true,
	}
	if !validFormats[strings.ToLower(c.Export.Format)] {
		errs = append(errs, errors.New("invalid export format"))
	}
	if c.Export.PageSize <= 0 {
		errs = append(errs, errors.New("page size must be positive"))
	}
	if c.Export.Resume && c.Export.ResumeDir != "" {
		if _, err := os.Stat(c.Export.ResumeDir); err != nil {
			errs = append(errs, fmt.Errorf("resume directory does not exist: %s", c.Export.ResumeDir))
		}
	}

	// Validate logging
	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Create directory if it doesn't exist
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if domain, ok := flags["domain"].(string); ok && domain != "" {
		c.Lightspeed.Domain = domain
	}
	if token, ok := flags["token"].(string); ok && token != "" {
		c.Lightspeed.Token = token
	}
	if outputDir, ok := flags["output"].(string); ok && outputDir != "" {
		c.Export.OutputDir = outputDir
	}
	if format, ok := flags["format"].(string); ok && format != "" {
		c.Export.Format = format
	}
	if resume, ok := flags["resume"].(bool); ok && resume {
		c.Export.Resume = true
	}
	if resumeDir, ok := flags["resume-dir"].(string); ok && resumeDir != "" {
		c.Export.Resume = true
		c.Export.ResumeDir = resumeDir
	}
	if paged, ok := flags["paged"].(bool); ok && paged {
		c.Export.Monolithic = false
	}
	if pageSize, ok := flags["page-size"].(int); ok && pageSize > 0 {
		c.Export.PageSize = pageSize
	}
	if resources, ok := flags["resources"].([]string); ok && len(resources) > 0 {
		c.Export.Resources = resources
	}
	if rps, ok := flags["rate"].(float64); ok && rps > 0 {
		c.RateLimit.RequestsPerSecond = rps
	}
	if attempts, ok := flags["max-attempts"].(int); ok && attempts > 0 {
		c.Retry.MaxAttempts = attempts
	}
	if logLevel, ok := flags["log-level"].(string); ok && logLevel != "" {
		c.Logging.Level = logLevel
	}
}

// Load loads configuration from all sources with proper precedence.
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
//
// Load does not validate: credentials may still arrive from the keyring
// after loading, so callers run Validate once the chain is resolved.
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// Try to load .env files (don't fail if they don't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".env"))
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".lsexport.env"))

	// Start with defaults
	config := DefaultConfig()

	// Load from config file
	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	// Override with environment variables (includes values from .env)
	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	// Override with command line flags
	config.MergeCommandLineFlags(flags)

	return config, nil
}
