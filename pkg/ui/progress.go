package ui

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/workingman/BCP-data-warehouse/pkg/export"
)

// RunProgress renders export progress to the terminal: a header line per
// resource, an overwritten counter line while batches arrive, and a status
// line when the resource settles. It satisfies the runner's Progress
// interface.
type RunProgress struct {
	mu        sync.Mutex
	startTime time.Time
	inline    bool
}

// NewRunProgress creates a progress display for one export run.
func NewRunProgress() *RunProgress {
	return &RunProgress{startTime: time.Now()}
}

// ResourceStarted announces the next resource in the plan.
func (p *RunProgress) ResourceStarted(position, total int, name string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Printf("%s [%d/%d] %s\n", Magenta("→"), position, total, Cyan(name))
}

// BatchWritten updates the in-place counter line for the active resource.
func (p *RunProgress) BatchWritten(name string, batch, totalRecords int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.inline = true
	fmt.Printf("\r    batch %d %s %d records", batch, Dim("•"), totalRecords)
}

// ResourceFinished replaces the counter line with the resource's outcome.
func (p *RunProgress) ResourceFinished(result export.ResourceResult) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.clearLine()

	switch result.Status {
	case export.StatusCompleted:
		fmt.Printf("    %s %s %s %d records\n", Green("✓"), result.Resource, Dim("•"), result.Records)
	case export.StatusSkipped:
		fmt.Printf("    %s %s %s\n", Dim("•"), result.Resource, Dim("already complete"))
	case export.StatusFailed:
		fmt.Printf("    %s %s %s %v\n", Red("✗"), result.Resource, Dim("•"), result.Err)
	case export.StatusStopped:
		fmt.Printf("    %s %s %s interrupted after %d records, progress saved\n",
			Yellow("■"), result.Resource, Dim("•"), result.Records)
	}
}

// Complete prints the run summary once the runner returns.
func (p *RunProgress) Complete(report *export.Report) {
	p.mu.Lock()
	defer p.mu.Unlock()

	completed, skipped, failed, stopped := report.Counts()

	fmt.Println()
	if report.Complete {
		fmt.Printf("%s Export complete: %s\n", Green("✓"), report.ExportDir)
	} else if report.Stopped {
		fmt.Printf("%s Export interrupted: %s\n", Yellow("■"), report.ExportDir)
		fmt.Printf("  %s resume with: lsexport export --resume\n", Dim("•"))
	} else {
		fmt.Printf("%s Export finished with failures: %s\n", Red("✗"), report.ExportDir)
	}

	fmt.Printf("  %s %d completed, %d skipped, %d failed, %d stopped\n",
		Dim("•"), completed, skipped, failed, stopped)
	fmt.Printf("  %s %d records in %s\n",
		Dim("•"), report.TotalRecords(), FormatDuration(report.Duration))

	if len(report.Files) > 0 {
		fmt.Println()
		for _, file := range report.Files {
			fmt.Printf("  %-28s %9d records %10s\n",
				file.Name, file.Records, FormatBytes(file.Size))
		}
	}
}

func (p *RunProgress) clearLine() {
	if !p.inline {
		return
	}
	fmt.Printf("\r%s\r", strings.Repeat(" ", 100))
	p.inline = false
}

// FormatDuration formats a duration in a human-readable way
func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	} else if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}

// FormatBytes formats bytes in a human-readable way
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}

	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}

	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
