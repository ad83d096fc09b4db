package exporter

import (
	"fmt"
	"strings"

	"github.com/workingman/BCP-data-warehouse/pkg/lightspeed"
	"github.com/workingman/BCP-data-warehouse/pkg/logger"
	"github.com/workingman/BCP-data-warehouse/pkg/resource"
)

// Writer persists one resource's records to flat files inside an export
// directory. A resource is prepared exactly once per run, with Init or
// Resume, before any Append.
type Writer interface {
	// Init prepares fresh output for the resource, truncating anything a
	// previous run left behind. CSV headers are written here and never
	// again.
	Init(res resource.Resource) error

	// Resume opens the resource's output for appending. Existing content
	// and headers are left untouched.
	Resume(res resource.Resource) error

	// Append writes records in arrival order and flushes them to disk
	// before returning, so a progress marker saved afterwards never gets
	// ahead of the data. Returns the number of parent records written.
	Append(res resource.Resource, records []lightspeed.Record) (int, error)

	// Close releases all open file handles.
	Close() error

	// Summary reports the files written to the export directory.
	Summary() ([]FileSummary, error)
}

// New creates a writer for the requested format.
func New(format, dir string, log logger.Logger) (Writer, error) {
	switch strings.ToLower(format) {
	case "jsonl":
		return NewJSONLWriter(dir, log), nil
	case "csv":
		return NewCSVWriter(dir, log), nil
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
}
