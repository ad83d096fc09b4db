// Package ui provides terminal output for the export tool
// This file demonstrates example usage of the UI components
package ui

/*
Example usage of the UI components:

// Terminal colors and output
ui.PrintLogo()                                    // Print ASCII logo
ui.PrintInfo("Export directory", dir)             // Cyan label, yellow value
ui.PrintSuccess("Export completed!")              // Green success message
ui.PrintError("Export failed", err)               // Red error message
ui.PrintWarning("Data may be truncated")          // Yellow warning message
ui.PrintHighlight("[RESUMING EXPORT]")            // Magenta highlight message

// Quiet mode for cron and scripted runs
ui.SetQuietMode(true)                             // Errors still print

// Run progress (attach to the export runner)
progress := ui.NewRunProgress()
runner.SetProgress(progress)
report, err := runner.Run(ctx)
progress.Complete(report)                         // Summary with file sizes

// Notifications (cross-platform)
notifier := ui.NewNotifier()
notifier.SendSuccess("Export complete", "18 resources written")
notifier.SendError("Export failed", "3 resources did not finish")

// Direct color usage
fmt.Printf("%s: %s\n", ui.Cyan("Store"), ui.Yellow("mystore.retail.lightspeed.app"))
fmt.Println(ui.Green("✓ outlets"))
fmt.Println(ui.Red("✗ products"))
*/
