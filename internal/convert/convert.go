// Package convert turns the JSONL files of an export directory into
// normalized CSV tables, including the per-child files the CSV format
// produces at export time. Conversion is local disk work, so resources fan
// out across a small worker pool.
package convert

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/workingman/BCP-data-warehouse/pkg/exporter"
	"github.com/workingman/BCP-data-warehouse/pkg/logger"
	"github.com/workingman/BCP-data-warehouse/pkg/resource"
)

// DefaultWorkers bounds conversion parallelism when the caller does not.
const DefaultWorkers = 4

// Summary aggregates a conversion run.
type Summary struct {
	Converted int
	Records   int
	Failed    []Result
	Files     []exporter.FileSummary
	Duration  time.Duration
}

// Run converts every catalog resource with a JSONL file under jsonlDir into
// CSV files under csvDir. An empty csvDir defaults to jsonlDir/csv. Files
// not in the catalog are left alone; a failed resource does not stop the
// others.
func Run(jsonlDir, csvDir string, workers int, log logger.Logger) (*Summary, error) {
	if log == nil {
		log = logger.GetLogger()
	}

	info, err := os.Stat(jsonlDir)
	if err != nil {
		return nil, fmt.Errorf("export directory not found: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", jsonlDir)
	}

	if csvDir == "" {
		csvDir = filepath.Join(jsonlDir, "csv")
	}
	if err := os.MkdirAll(csvDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create csv directory: %w", err)
	}

	var jobs []Job
	for _, res := range resource.All() {
		path := filepath.Join(jsonlDir, res.Name+".jsonl")
		if _, err := os.Stat(path); err != nil {
			continue
		}
		jobs = append(jobs, Job{Resource: res, Path: path})
	}

	summary := &Summary{}
	if len(jobs) == 0 {
		log.WarnWithFields("No JSONL files to convert", map[string]interface{}{
			"dir": jsonlDir,
		})
		return summary, nil
	}

	if workers <= 0 {
		workers = DefaultWorkers
	}
	if workers > len(jobs) {
		workers = len(jobs)
	}

	log.InfoWithFields("Converting JSONL export to CSV", map[string]interface{}{
		"jsonl_dir": jsonlDir,
		"csv_dir":   csvDir,
		"resources": len(jobs),
	})

	start := time.Now()
	pool := NewPool(workers, csvDir, log)
	pool.Start()

	go func() {
		for _, job := range jobs {
			if err := pool.Submit(job); err != nil {
				return
			}
		}
		pool.Stop()
	}()

	for result := range pool.Results() {
		if result.Success {
			summary.Converted++
			summary.Records += result.Records
			continue
		}
		summary.Failed = append(summary.Failed, result)
		log.ErrorWithFields("Resource conversion failed", map[string]interface{}{
			"resource": result.Job.Resource.Name,
			"error":    result.Error.Error(),
		})
	}
	summary.Duration = time.Since(start)

	if files, err := exporter.NewCSVWriter(csvDir, log).Summary(); err == nil {
		summary.Files = files
	}

	log.InfoWithFields("Conversion finished", map[string]interface{}{
		"converted": summary.Converted,
		"failed":    len(summary.Failed),
		"records":   summary.Records,
		"duration":  summary.Duration.String(),
	})

	return summary, nil
}
