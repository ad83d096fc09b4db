package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/workingman/BCP-data-warehouse/pkg/config"
	"github.com/workingman/BCP-data-warehouse/pkg/ui"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage Lightspeed Export configuration files.

Configuration can be loaded from:
  - Command line flags (highest priority)
  - Environment variables
  - Configuration file
  - Default values (lowest priority)`,
}

// initCmd represents the config init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create an example configuration file",
	Long: `Create an example configuration file with all available options.

The file will be created in the current directory as '.lsexport.yaml'
unless a different path is specified with the --config flag.`,
	Run: runConfigInit,
}

// showCmd represents the config show command
var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long: `Show the current configuration including values from all sources:
  - Command line flags
  - Environment variables
  - Configuration file
  - Default values

Sensitive values like the API token will be masked for security.`,
	Run: runConfigShow,
}

// validateCmd represents the config validate command
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Validate a configuration file for syntax errors and invalid values.

This command checks:
  - YAML syntax
  - Value types and ranges
  - Path accessibility

Missing credentials are a warning, not an error: stored accounts or the
LIGHTSPEED_* environment variables can supply them at run time.`,
	Run: runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(initCmd)
	configCmd.AddCommand(showCmd)
	configCmd.AddCommand(validateCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) {
	// Determine config file path
	configPath := configFile
	if configPath == "" {
		configPath = ".lsexport.yaml"
	}

	// Check if file already exists
	if _, err := os.Stat(configPath); err == nil {
		ui.PrintError("Configuration file already exists", configPath)
		fmt.Println("\nTo overwrite, first remove the existing file:")
		fmt.Printf("  rm %s\n", configPath)
		os.Exit(1)
	}

	// Create example configuration
	exampleConfig := `# Lightspeed Export Configuration File
#
# This file contains all available configuration options.
# Environment variables override it: LIGHTSPEED_DOMAIN and
# LIGHTSPEED_TOKEN for credentials, LSEXPORT_* for tool settings.

# Lightspeed API connection
lightspeed:
  # Store domain, e.g. mystore.retail.lightspeed.app
  # Prefer 'lsexport auth login' over writing credentials here
  domain: ""

  # Personal API token
  # NEVER commit this file with a real token in it
  token: ""

  # Request timeout defaults to 2 minutes; override with
  # LSEXPORT_TIMEOUT, e.g. LSEXPORT_TIMEOUT=90s

# Rate limiting
rate_limit:
  # Requests per second against the API
  requests_per_second: 5

  # Requests allowed to burst above the steady rate
  burst: 1

  # token_bucket or sliding_window
  limiter: "token_bucket"

# Retry behavior for failed resources
retry:
  # Maximum attempts per resource
  max_attempts: 3

  # Backoff between attempts defaults to 2s initial, 30s cap,
  # doubling each attempt

# Export settings
export:
  # Root directory; each run creates a timestamped subdirectory
  output_dir: "./exports"

  # Output format: jsonl or csv
  format: "jsonl"

  # One oversized request per resource; false fetches page by page
  monolithic: true

  # Records per page in paged mode
  page_size: 50000

  # Restrict runs to a subset of resources; empty means all
  resources: []

# Logging configuration
logging:
  # Log level: debug, info, warn, error
  level: "info"

  # Log file path (optional)
  # Leave empty to log to stderr only
  file: ""
`

	// Write configuration file
	if err := os.WriteFile(configPath, []byte(exampleConfig), 0644); err != nil {
		ui.PrintError("Failed to create configuration file", err.Error())
		os.Exit(1)
	}

	ui.PrintSuccess("Configuration file created: " + configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("1. Run 'lsexport auth login' to store your store's credentials")
	fmt.Println("2. Run 'lsexport config validate' to check the configuration")
	fmt.Println("3. Start exporting with 'lsexport export'")
}

func runConfigShow(cmd *cobra.Command, args []string) {
	// Load configuration
	cfg, err := config.Load(configFile, nil)
	if err != nil {
		ui.PrintError("Failed to load configuration", err.Error())
		os.Exit(1)
	}

	// Create a sanitized version for display
	displayCfg := *cfg

	// Mask sensitive values
	if displayCfg.Lightspeed.Token != "" {
		if len(displayCfg.Lightspeed.Token) > 8 {
			displayCfg.Lightspeed.Token = displayCfg.Lightspeed.Token[:4] + "..." + displayCfg.Lightspeed.Token[len(displayCfg.Lightspeed.Token)-4:]
		} else {
			displayCfg.Lightspeed.Token = "***"
		}
	}

	// Convert to YAML for display
	data, err := yaml.Marshal(&displayCfg)
	if err != nil {
		ui.PrintError("Failed to format configuration", err.Error())
		os.Exit(1)
	}

	ui.PrintHighlight("Current Configuration")
	fmt.Println()
	fmt.Print(string(data))

	// Show configuration sources
	fmt.Println("\nConfiguration sources (in order of priority):")
	fmt.Println("1. Command line flags")
	fmt.Println("2. Environment variables (LIGHTSPEED_*, LSEXPORT_*)")
	if configFile != "" {
		fmt.Printf("3. Configuration file: %s\n", configFile)
	} else {
		fmt.Println("3. Configuration file: (searched in default locations)")
	}
	fmt.Println("4. Default values")
}

func runConfigValidate(cmd *cobra.Command, args []string) {
	// Check if config file is specified
	if configFile == "" {
		// Try to find config file in common locations
		possiblePaths := []string{
			".lsexport.yaml",
			".lsexport.yml",
			"lsexport.yaml",
			filepath.Join(os.Getenv("HOME"), ".lsexport.yaml"),
			filepath.Join(os.Getenv("HOME"), ".config", "lsexport", "config.yaml"),
		}

		for _, path := range possiblePaths {
			if _, err := os.Stat(path); err == nil {
				configFile = path
				break
			}
		}

		if configFile == "" {
			ui.PrintError("No configuration file found", "Specify a file with --config flag")
			os.Exit(1)
		}
	}

	ui.PrintInfo("Validating configuration", configFile)

	// Try to load the configuration
	cfg, err := config.Load(configFile, nil)
	if err != nil {
		ui.PrintError("Configuration validation failed", err.Error())
		os.Exit(1)
	}

	warnings := []string{}
	errors := []string{}

	// Missing credentials are a warning: a stored account or the
	// environment can supply them when a run starts.
	check := *cfg
	if check.Lightspeed.Domain == "" {
		warnings = append(warnings, "store domain not configured ('lsexport auth login' or LIGHTSPEED_DOMAIN can supply it)")
		check.Lightspeed.Domain = "placeholder"
	}
	if check.Lightspeed.Token == "" {
		warnings = append(warnings, "API token not configured ('lsexport auth login' or LIGHTSPEED_TOKEN can supply it)")
		check.Lightspeed.Token = "placeholder"
	}
	if err := check.Validate(); err != nil {
		errors = append(errors, err.Error())
	}

	// Check paths
	if cfg.Export.OutputDir != "" {
		if err := os.MkdirAll(cfg.Export.OutputDir, 0755); err != nil {
			errors = append(errors, fmt.Sprintf("Cannot create output directory: %v", err))
		}
	}

	// Check logging file path
	if cfg.Logging.File != "" {
		dir := filepath.Dir(cfg.Logging.File)
		if err := os.MkdirAll(dir, 0755); err != nil {
			errors = append(errors, fmt.Sprintf("Cannot create log directory: %v", err))
		}
	}

	// Display results
	if len(errors) > 0 {
		ui.PrintError("Configuration has errors:")
		for _, err := range errors {
			fmt.Printf("  - %s\n", err)
		}
		os.Exit(1)
	}

	if len(warnings) > 0 {
		ui.PrintWarning("Configuration warnings:")
		for _, warn := range warnings {
			fmt.Printf("  - %s\n", warn)
		}
		fmt.Println()
	}

	ui.PrintSuccess("Configuration is valid")

	// Show summary
	mode := "monolithic"
	if !cfg.Export.Monolithic {
		mode = fmt.Sprintf("paged (%d records per page)", cfg.Export.PageSize)
	}
	fmt.Println("\nConfiguration summary:")
	fmt.Printf("  Output root: %s\n", cfg.Export.OutputDir)
	fmt.Printf("  Format: %s\n", cfg.Export.Format)
	fmt.Printf("  Fetch mode: %s\n", mode)
	fmt.Printf("  Rate limit: %.1f requests/second\n", cfg.RateLimit.RequestsPerSecond)
	fmt.Printf("  Max retries: %d\n", cfg.Retry.MaxAttempts)
	fmt.Printf("  Log level: %s\n", cfg.Logging.Level)
}
