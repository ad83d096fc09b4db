package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
	"github.com/workingman/BCP-data-warehouse/pkg/ui"
)

var (
	// Version information
	version   = "1.0.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile    string
	logLevel      string
	notifications bool
	quiet         bool
	verbose       bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "lsexport",
	Short: "Export point of sale data from Lightspeed X-Series to flat files",
	Long: `lsexport pulls every resource of a Lightspeed X-Series store through the
REST API and writes it to JSONL or CSV files.

Features:
  - Secure credential storage using system keychain
  - Checkpointed runs: interrupt with Ctrl-C and resume later
  - Rate limiting that respects the API's request budget
  - Per-resource retry with exponential backoff
  - Monolithic single-request mode or page-by-page fetching
  - JSONL to CSV conversion with child record flattening

For more information and examples, visit: https://github.com/workingman/BCP-data-warehouse`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Logs share the terminal with the progress display, so info
		// chatter is trimmed to errors unless verbose asks for it.
		if !verbose && logLevel == "info" {
			logLevel = "error"
		}

		if quiet {
			ui.SetQuietMode(true)
		}

		// Don't show logo for certain commands
		if cmd.Name() != "version" && cmd.Name() != "help" && cmd.Name() != "completion" {
			ui.PrintLogo()
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is .lsexport.yaml or ~/.config/lsexport/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&notifications, "notifications", true, "enable desktop notifications")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress all output except errors")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "show all output (logo, logs, progress)")

	// Version template
	rootCmd.SetVersionTemplate(`Lightspeed Export {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	// Disable default completion command
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}
