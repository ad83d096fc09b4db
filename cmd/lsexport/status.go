package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/workingman/BCP-data-warehouse/pkg/checkpoint"
	"github.com/workingman/BCP-data-warehouse/pkg/config"
	"github.com/workingman/BCP-data-warehouse/pkg/export"
	"github.com/workingman/BCP-data-warehouse/pkg/exporter"
	"github.com/workingman/BCP-data-warehouse/pkg/logger"
	"github.com/workingman/BCP-data-warehouse/pkg/resource"
	"github.com/workingman/BCP-data-warehouse/pkg/ui"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status [output-root]",
	Short: "Show resumable exports and their checkpoint state",
	Long: `Show every incomplete export under the output root, newest first.

For each one the checkpoint summary lists which resources finished, which
were interrupted mid-stream, and what the output files contain so far.`,
	Example: `  # Inspect the default output root
  lsexport status

  # Inspect a specific root
  lsexport status /data/lightspeed`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		runStatus(cmd, args)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	flags := make(map[string]interface{})
	if len(args) == 1 {
		flags["output"] = args[0]
	}
	if logLevel != "info" {
		flags["log-level"] = logLevel
	}

	cfg, err := config.Load(configFile, flags)
	if err != nil {
		ui.PrintError("Failed to load configuration", err.Error())
		os.Exit(1)
	}

	logger.Initialize(&cfg.Logging)

	dirs, err := export.FindResumable(cfg.Export.OutputDir)
	if err != nil {
		ui.PrintError("Cannot scan output root", err.Error())
		os.Exit(1)
	}

	if len(dirs) == 0 {
		ui.PrintInfo("No resumable exports", cfg.Export.OutputDir)
		return
	}

	ui.PrintHighlight("Resumable exports")
	fmt.Println()

	for _, dir := range dirs {
		printExportStatus(dir)
		fmt.Println()
	}

	fmt.Println("Resume the most recent with:")
	fmt.Println("  lsexport export --resume")
}

// printExportStatus prints one export directory's checkpoint summary and a
// completeness report of the files written so far.
func printExportStatus(dir string) {
	record, err := checkpoint.ReadRecord(dir)
	if err != nil {
		ui.PrintError("Cannot read checkpoint", dir)
		return
	}

	state := "in progress"
	if record.ExportComplete {
		state = "complete"
	}

	fmt.Printf("%s  (%s)\n", dir, state)
	fmt.Printf("  started:  %s\n", record.StartedAt.Format("2006-01-02 15:04:05"))
	if record.CompletedAt != nil {
		fmt.Printf("  finished: %s\n", record.CompletedAt.Format("2006-01-02 15:04:05"))
	}
	if len(record.CompletedResources) > 0 {
		fmt.Printf("  complete: %s\n", strings.Join(record.CompletedResources, ", "))
	}

	partials := make([]string, 0, len(record.PartialProgress))
	for name := range record.PartialProgress {
		partials = append(partials, name)
	}
	sort.Strings(partials)
	for _, name := range partials {
		marker := record.PartialProgress[name]
		fmt.Printf("  partial:  %s (batch %d, %d records)\n", name, marker.LastBatch, marker.RecordCount)
	}

	printFileReport(dir, record)
}

// printFileReport lists the export's output files with their record counts
// and whether the checkpoint considers each resource settled.
func printFileReport(dir string, record *checkpoint.Record) {
	log := logger.GetLogger()

	summaries, err := exporter.NewJSONLWriter(dir, log).Summary()
	if err != nil {
		return
	}
	if csvSummaries, err := exporter.NewCSVWriter(dir, log).Summary(); err == nil {
		summaries = append(summaries, csvSummaries...)
	}
	if len(summaries) == 0 {
		return
	}

	completed := make(map[string]bool, len(record.CompletedResources))
	for _, name := range record.CompletedResources {
		completed[name] = true
	}

	// Child files (sale_items.csv, ...) settle with their parent resource.
	parentOf := make(map[string]string)
	for _, res := range resource.All() {
		for _, child := range res.Children {
			parentOf[child.Name] = res.Name
		}
	}

	fmt.Println("  files:")
	for _, file := range summaries {
		stem := strings.TrimSuffix(file.Name, filepath.Ext(file.Name))
		if parent, ok := parentOf[stem]; ok {
			stem = parent
		}
		state := "incomplete"
		switch {
		case completed[stem]:
			state = "complete"
		case record.PartialProgress[stem] != nil:
			state = "partial"
		}
		fmt.Printf("    %-28s %9d records %10s  %s\n",
			file.Name, file.Records, ui.FormatBytes(file.Size), state)
	}
}
