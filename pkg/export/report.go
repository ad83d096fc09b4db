package export

import (
	"time"

	"github.com/workingman/BCP-data-warehouse/pkg/exporter"
)

// Status is the terminal state of one resource in a run.
type Status string

const (
	// StatusCompleted means the resource was fully exported this run.
	StatusCompleted Status = "completed"
	// StatusSkipped means a previous run already completed the resource.
	StatusSkipped Status = "skipped"
	// StatusFailed means the resource errored; its checkpoint did not advance.
	StatusFailed Status = "failed"
	// StatusStopped means shutdown interrupted the resource mid-stream; its
	// partial marker is preserved for resume.
	StatusStopped Status = "stopped"
)

// ResourceResult describes what happened to one resource during a run.
type ResourceResult struct {
	Resource string
	Status   Status
	Records  int
	Batches  int
	Err      error
}

// Report summarizes an export run.
type Report struct {
	ExportDir string
	Results   []ResourceResult
	Files     []exporter.FileSummary
	StartedAt time.Time
	Duration  time.Duration

	// Stopped is set when shutdown ended the run early.
	Stopped bool
	// Complete mirrors the checkpoint's terminal flag after the run.
	Complete bool
}

func (r *Report) add(result ResourceResult) {
	r.Results = append(r.Results, result)
}

// Counts tallies the results by status.
func (r *Report) Counts() (completed, skipped, failed, stopped int) {
	for _, result := range r.Results {
		switch result.Status {
		case StatusCompleted:
			completed++
		case StatusSkipped:
			skipped++
		case StatusFailed:
			failed++
		case StatusStopped:
			stopped++
		}
	}
	return
}

// TotalRecords sums the records written across all resources this run.
func (r *Report) TotalRecords() int {
	total := 0
	for _, result := range r.Results {
		total += result.Records
	}
	return total
}

// allSettled reports whether every planned resource ended completed or
// skipped, the precondition for the terminal checkpoint flag.
func (r *Report) allSettled(planSize int) bool {
	if len(r.Results) != planSize {
		return false
	}
	for _, result := range r.Results {
		if result.Status != StatusCompleted && result.Status != StatusSkipped {
			return false
		}
	}
	return true
}
