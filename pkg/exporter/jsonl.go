package exporter

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/workingman/BCP-data-warehouse/pkg/lightspeed"
	"github.com/workingman/BCP-data-warehouse/pkg/logger"
	"github.com/workingman/BCP-data-warehouse/pkg/resource"
)

// JSONLWriter writes one JSON document per line into <resource>.jsonl.
// Nested child structures stay embedded in their parent records; the
// convert step splits them out later if CSV tables are wanted.
type JSONLWriter struct {
	dir    string
	files  map[string]*os.File
	logger logger.Logger
}

// NewJSONLWriter creates a JSONL writer rooted at an export directory.
func NewJSONLWriter(dir string, log logger.Logger) *JSONLWriter {
	if log == nil {
		log = logger.GetLogger()
	}
	return &JSONLWriter{
		dir:    dir,
		files:  make(map[string]*os.File),
		logger: log,
	}
}

// Init truncates (or creates) the resource's file.
func (w *JSONLWriter) Init(res resource.Resource) error {
	return w.open(res.Name, os.O_CREATE|os.O_WRONLY|os.O_TRUNC)
}

// Resume opens the resource's file for appending.
func (w *JSONLWriter) Resume(res resource.Resource) error {
	return w.open(res.Name, os.O_CREATE|os.O_WRONLY|os.O_APPEND)
}

func (w *JSONLWriter) open(name string, flags int) error {
	if f, ok := w.files[name]; ok {
		f.Close()
	}

	path := filepath.Join(w.dir, name+".jsonl")
	f, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	w.files[name] = f

	w.logger.DebugWithFields("opened output file", map[string]interface{}{
		"file":   path,
		"append": flags&os.O_APPEND != 0,
	})
	return nil
}

// Append writes the records and syncs the file before returning.
func (w *JSONLWriter) Append(res resource.Resource, records []lightspeed.Record) (int, error) {
	f, ok := w.files[res.Name]
	if !ok {
		return 0, fmt.Errorf("resource %s was not prepared with Init or Resume", res.Name)
	}

	exportedAt := time.Now().UTC().Format(time.RFC3339)
	for _, record := range records {
		record["_exported_at"] = exportedAt
		line, err := json.Marshal(record)
		if err != nil {
			return 0, fmt.Errorf("failed to encode %s record: %w", res.Name, err)
		}
		line = append(line, '\n')
		if _, err := f.Write(line); err != nil {
			return 0, fmt.Errorf("failed to write %s record: %w", res.Name, err)
		}
	}

	if err := f.Sync(); err != nil {
		return 0, fmt.Errorf("failed to sync %s: %w", res.Name, err)
	}

	w.logger.DebugWithFields("appended records", map[string]interface{}{
		"resource": res.Name,
		"records":  len(records),
	})
	return len(records), nil
}

// Close closes every open file.
func (w *JSONLWriter) Close() error {
	var firstErr error
	for name, f := range w.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close %s: %w", name, err)
		}
	}
	w.files = make(map[string]*os.File)
	return firstErr
}

// Summary reports the JSONL files in the export directory.
func (w *JSONLWriter) Summary() ([]FileSummary, error) {
	return summarizeDir(w.dir, ".jsonl")
}
