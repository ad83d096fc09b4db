package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/workingman/BCP-data-warehouse/internal/convert"
	"github.com/workingman/BCP-data-warehouse/pkg/config"
	"github.com/workingman/BCP-data-warehouse/pkg/logger"
	"github.com/workingman/BCP-data-warehouse/pkg/ui"
)

var (
	// Convert command flags
	csvDir  string
	workers int
)

// convertCmd represents the convert command
var convertCmd = &cobra.Command{
	Use:   "convert <export-dir>",
	Short: "Convert an export's JSONL files to normalized CSVs",
	Long: `Convert the JSONL files of a finished export into CSV files.

Nested child records (product variants, sale line items, sale payments) are
flattened into their own CSV files carrying the parent's id, so the output
loads directly into spreadsheets or a warehouse. The originals are left
untouched; CSVs land in a csv/ subdirectory unless --output says otherwise.`,
	Example: `  # Convert in place, CSVs under <export-dir>/csv/
  lsexport convert ./exports/lightspeed_export_20260821_090501

  # Write CSVs somewhere else with more workers
  lsexport convert ./exports/lightspeed_export_20260821_090501 --output /data/csv --workers 8`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		runConvert(cmd, args)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(convertCmd)

	convertCmd.Flags().StringVarP(&csvDir, "output", "o", "", "directory for CSV files (default: <export-dir>/csv)")
	convertCmd.Flags().IntVar(&workers, "workers", convert.DefaultWorkers, "number of concurrent file converters")
}

func runConvert(cmd *cobra.Command, args []string) {
	flags := make(map[string]interface{})
	if logLevel != "info" {
		flags["log-level"] = logLevel
	}

	cfg, err := config.Load(configFile, flags)
	if err != nil {
		ui.PrintError("Failed to load configuration", err.Error())
		os.Exit(1)
	}

	logger.Initialize(&cfg.Logging)

	exportDir := args[0]
	ui.PrintInfo("Converting", exportDir)

	summary, err := convert.Run(exportDir, csvDir, workers, logger.GetLogger())
	if err != nil {
		ui.PrintError("Conversion failed", err.Error())
		os.Exit(1)
	}

	if len(summary.Failed) > 0 {
		ui.PrintWarning(fmt.Sprintf("%d resources failed to convert", len(summary.Failed)))
		for _, failure := range summary.Failed {
			fmt.Printf("  ✗ %-20s %v\n", failure.Job.Resource.Name, failure.Error)
		}
		fmt.Println()
	}

	ui.PrintSuccess(fmt.Sprintf("Converted %d resources (%d records) in %s",
		summary.Converted, summary.Records, ui.FormatDuration(summary.Duration)))
	for _, file := range summary.Files {
		fmt.Printf("  %-28s %9d records %10s\n", file.Name, file.Records, ui.FormatBytes(file.Size))
	}

	if len(summary.Failed) > 0 {
		os.Exit(1)
	}
}
