package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/workingman/BCP-data-warehouse/pkg/auth"
	"github.com/workingman/BCP-data-warehouse/pkg/config"
	"github.com/workingman/BCP-data-warehouse/pkg/export"
	"github.com/workingman/BCP-data-warehouse/pkg/logger"
	"github.com/workingman/BCP-data-warehouse/pkg/ui"
)

var (
	// Export command flags
	outputDir   string
	format      string
	resources   []string
	paged       bool
	pageSize    int
	resume      bool
	resumeDir   string
	accountName string
	rate        float64
	maxRetries  int
)

// exportCmd represents the export command
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export all store data to flat files",
	Long: `Export every resource of a Lightspeed X-Series store to flat files.

This command requires valid Lightspeed credentials to be configured either through:
  - Stored credentials (use 'lsexport auth login' to store)
  - Environment variables (LIGHTSPEED_DOMAIN and LIGHTSPEED_TOKEN)
  - Configuration file

Each run writes into a fresh timestamped directory under the output root and
records its progress in a checkpoint file there. Interrupting with Ctrl-C is
safe: rerun with --resume to pick up where the run left off. Completed
resources are never fetched twice.`,
	Example: `  # Export everything using default settings
  lsexport export

  # Export to a specific root as CSV
  lsexport export --output /data/lightspeed --format csv

  # Only some resources, fetched page by page
  lsexport export --resources products,sales --paged --page-size 1000

  # Use a specific stored account
  lsexport export --account mystore

  # Resume the most recent interrupted export
  lsexport export --resume

  # Resume one specific export directory
  lsexport export --resume-dir ./exports/lightspeed_export_20260821_090501`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		runExport(cmd, args)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)

	// Local flags for export command
	exportCmd.Flags().StringVarP(&outputDir, "output", "o", "", "output root for export directories (default: ./exports)")
	exportCmd.Flags().StringVar(&format, "format", "", "output format: jsonl or csv (default: jsonl)")
	exportCmd.Flags().StringSliceVar(&resources, "resources", nil, "comma-separated subset of resources to export")
	exportCmd.Flags().BoolVar(&paged, "paged", false, "fetch page by page instead of one oversized request")
	exportCmd.Flags().IntVar(&pageSize, "page-size", 0, "records per page in paged mode")
	exportCmd.Flags().BoolVar(&resume, "resume", false, "resume the most recent incomplete export")
	exportCmd.Flags().StringVar(&resumeDir, "resume-dir", "", "resume a specific export directory")
	exportCmd.Flags().StringVarP(&accountName, "account", "a", "", "use specific stored account")
	exportCmd.Flags().Float64Var(&rate, "rate", 0, "API requests per second")
	exportCmd.Flags().IntVar(&maxRetries, "max-retries", 0, "maximum attempts per resource")
}

func runExport(cmd *cobra.Command, args []string) {
	// Build flags map from command line
	flags := make(map[string]interface{})
	if outputDir != "" {
		flags["output"] = outputDir
	}
	if format != "" {
		flags["format"] = format
	}
	if len(resources) > 0 {
		flags["resources"] = resources
	}
	if paged {
		flags["paged"] = true
	}
	if pageSize > 0 {
		flags["page-size"] = pageSize
	}
	if resume {
		flags["resume"] = true
	}
	if resumeDir != "" {
		flags["resume-dir"] = resumeDir
	}
	if rate > 0 {
		flags["rate"] = rate
	}
	if maxRetries > 0 {
		flags["max-attempts"] = maxRetries
	}
	if logLevel != "info" {
		flags["log-level"] = logLevel
	}

	// Load configuration
	cfg, err := config.Load(configFile, flags)
	if err != nil {
		ui.PrintError("Failed to load configuration", err.Error())
		os.Exit(1)
	}

	// Initialize logger
	logger.Initialize(&cfg.Logging)
	logger.WithField("version", version).Info("Lightspeed export starting")

	// Handle credentials
	credManager, err := auth.NewManager()
	if err != nil {
		ui.PrintError("Failed to initialize credential manager", err.Error())
		os.Exit(1)
	}

	var account *auth.Account

	// Try to get credentials from various sources
	if accountName != "" {
		// Use specific account
		account, err = credManager.Retrieve(accountName)
		if err != nil {
			ui.PrintError("Account not found", accountName)
			ui.PrintInfo("Available accounts", "Use 'lsexport auth list' to see stored accounts")
			os.Exit(1)
		}
	} else if cfg.Lightspeed.Domain != "" && cfg.Lightspeed.Token != "" {
		// Use credentials from config/env (backward compatibility)
		logger.Info("Using credentials from configuration")
	} else {
		// Try to get default account from credential manager
		account, err = credManager.RetrieveDefault()
		if err != nil {
			// No credentials found anywhere
			logger.Error("No credentials found")
			ui.PrintError("No Lightspeed credentials found")
			fmt.Println("\nTo store credentials securely, run:")
			fmt.Println("  lsexport auth login")
			fmt.Println("\nFor unattended runs, you can also set environment variables:")
			fmt.Println("  export LIGHTSPEED_DOMAIN=mystore.retail.lightspeed.app")
			fmt.Println("  export LIGHTSPEED_TOKEN=your_personal_token")
			os.Exit(1)
		}
	}

	// If we got an account from the credential manager, update config
	if account != nil {
		cfg.Lightspeed.Domain = account.Domain
		cfg.Lightspeed.Token = account.Token
		logger.WithField("account", account.Name).Info("Using stored credentials")
		ui.PrintInfo("Using account", account.Name)
	}

	if err := cfg.Validate(); err != nil {
		ui.PrintError("Configuration validation failed", err.Error())
		os.Exit(1)
	}

	// Pick the export directory for this run
	exportDir, err := selectExportDir(cfg)
	if err != nil {
		ui.PrintError("Cannot select export directory", err.Error())
		os.Exit(1)
	}

	ui.PrintInfo("Store", cfg.Lightspeed.Domain)
	if cfg.Export.Resume {
		ui.PrintInfo("Resuming export", exportDir)
	} else {
		ui.PrintInfo("Export directory", exportDir)
	}

	runner, err := export.New(cfg, exportDir)
	if err != nil {
		ui.PrintError("Failed to initialize export", err.Error())
		os.Exit(1)
	}

	var progress *ui.RunProgress
	if !quiet {
		progress = ui.NewRunProgress()
		runner.SetProgress(progress)
	}

	// Ctrl-C and SIGTERM stop the run after the current batch; the
	// checkpoint keeps what was already written.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.WithFields(map[string]interface{}{
		"export_dir": exportDir,
		"resources":  len(runner.Plan()),
	}).Info("Starting export run")

	report, err := runner.Run(ctx)
	if err != nil {
		logger.WithError(err).Error("Export run failed")
		ui.PrintError("EXPORT FAILED", err.Error())
		os.Exit(1)
	}

	if progress != nil {
		progress.Complete(report)
	}

	completed, skipped, failed, stopped := report.Counts()
	logger.WithFields(map[string]interface{}{
		"completed": completed,
		"skipped":   skipped,
		"failed":    failed,
		"stopped":   stopped,
		"records":   report.TotalRecords(),
		"duration":  report.Duration.String(),
	}).Info("Export run finished")

	if notifications {
		notifier := ui.NewNotifier()
		switch {
		case report.Complete:
			notifier.SendSuccess("Export complete",
				fmt.Sprintf("%d records exported to %s", report.TotalRecords(), exportDir))
		case report.Stopped:
			notifier.SendNotification("Export interrupted",
				"Progress saved; rerun with --resume to continue")
		default:
			notifier.SendError("Export finished with failures",
				fmt.Sprintf("%d of %d resources failed", failed, len(report.Results)))
		}
	}

	if failed > 0 || report.Stopped {
		os.Exit(1)
	}
}

// selectExportDir resolves which directory this run writes into: a pinned
// resume directory, the newest resumable one, or a fresh timestamped dir.
func selectExportDir(cfg *config.Config) (string, error) {
	if cfg.Export.ResumeDir != "" {
		return cfg.Export.ResumeDir, nil
	}
	if cfg.Export.Resume {
		dir, err := export.LatestResumable(cfg.Export.OutputDir)
		if err != nil {
			return "", err
		}
		if dir == "" {
			return "", fmt.Errorf("nothing to resume under %s", cfg.Export.OutputDir)
		}
		return dir, nil
	}
	return export.NewExportDir(cfg.Export.OutputDir)
}
