package exporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/workingman/BCP-data-warehouse/pkg/lightspeed"
	"github.com/workingman/BCP-data-warehouse/pkg/logger"
	"github.com/workingman/BCP-data-warehouse/pkg/resource"
)

// CSVWriter writes fixed-column CSV tables, one per resource plus one per
// declared child. Record keys outside the declared column set are dropped;
// missing keys become empty cells. Child rows are flattened out of their
// parents at write time and share the parent's progress marker.
type CSVWriter struct {
	dir    string
	files  map[string]*csvFile
	logger logger.Logger
}

type csvFile struct {
	f      *os.File
	w      *csv.Writer
	fields []string
}

// NewCSVWriter creates a CSV writer rooted at an export directory.
func NewCSVWriter(dir string, log logger.Logger) *CSVWriter {
	if log == nil {
		log = logger.GetLogger()
	}
	return &CSVWriter{
		dir:    dir,
		files:  make(map[string]*csvFile),
		logger: log,
	}
}

// Init truncates the resource's table and its child tables, writing headers.
func (w *CSVWriter) Init(res resource.Resource) error {
	if err := w.open(res.Name, res.Fields, false); err != nil {
		return err
	}
	for _, child := range res.Children {
		if err := w.open(child.Name, child.Fields, false); err != nil {
			return err
		}
	}
	return nil
}

// Resume opens the resource's table and its child tables for appending.
// A header is written only when a file is new or empty.
func (w *CSVWriter) Resume(res resource.Resource) error {
	if err := w.open(res.Name, res.Fields, true); err != nil {
		return err
	}
	for _, child := range res.Children {
		if err := w.open(child.Name, child.Fields, true); err != nil {
			return err
		}
	}
	return nil
}

func (w *CSVWriter) open(name string, fields []string, appendMode bool) error {
	if existing, ok := w.files[name]; ok {
		existing.f.Close()
	}

	flags := os.O_CREATE | os.O_WRONLY
	if appendMode {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}

	path := filepath.Join(w.dir, name+".csv")
	f, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}

	cf := &csvFile{f: f, w: csv.NewWriter(f), fields: fields}
	w.files[name] = cf

	// The header goes in exactly once, on a fresh or empty file.
	needHeader := !appendMode
	if appendMode {
		info, err := f.Stat()
		if err != nil {
			f.Close()
			return fmt.Errorf("failed to stat %s: %w", path, err)
		}
		needHeader = info.Size() == 0
	}
	if needHeader {
		if err := cf.w.Write(fields); err != nil {
			f.Close()
			return fmt.Errorf("failed to write %s header: %w", path, err)
		}
		cf.w.Flush()
		if err := cf.w.Error(); err != nil {
			f.Close()
			return fmt.Errorf("failed to flush %s header: %w", path, err)
		}
	}

	w.logger.DebugWithFields("opened output file", map[string]interface{}{
		"file":   path,
		"append": appendMode,
	})
	return nil
}

// Append writes the parent rows and any flattened child rows, then syncs
// every touched file before returning.
func (w *CSVWriter) Append(res resource.Resource, records []lightspeed.Record) (int, error) {
	parent, ok := w.files[res.Name]
	if !ok {
		return 0, fmt.Errorf("resource %s was not prepared with Init or Resume", res.Name)
	}

	childCounts := make(map[string]int, len(res.Children))
	for _, record := range records {
		row := make([]string, len(parent.fields))
		for i, field := range parent.fields {
			row[i] = formatValue(record[field])
		}
		if err := parent.w.Write(row); err != nil {
			return 0, fmt.Errorf("failed to write %s row: %w", res.Name, err)
		}

		for _, child := range res.Children {
			cf, ok := w.files[child.Name]
			if !ok {
				return 0, fmt.Errorf("child %s was not prepared with Init or Resume", child.Name)
			}
			for _, childRow := range child.Rows(record) {
				row := make([]string, len(cf.fields))
				for i, field := range cf.fields {
					row[i] = formatValue(childRow[field])
				}
				if err := cf.w.Write(row); err != nil {
					return 0, fmt.Errorf("failed to write %s row: %w", child.Name, err)
				}
				childCounts[child.Name]++
			}
		}
	}

	if err := w.flush(res.Name); err != nil {
		return 0, err
	}
	for _, child := range res.Children {
		if err := w.flush(child.Name); err != nil {
			return 0, err
		}
	}

	fields := map[string]interface{}{
		"resource": res.Name,
		"records":  len(records),
	}
	for name, count := range childCounts {
		fields[name] = count
	}
	w.logger.DebugWithFields("appended records", fields)

	return len(records), nil
}

func (w *CSVWriter) flush(name string) error {
	cf := w.files[name]
	cf.w.Flush()
	if err := cf.w.Error(); err != nil {
		return fmt.Errorf("failed to flush %s: %w", name, err)
	}
	if err := cf.f.Sync(); err != nil {
		return fmt.Errorf("failed to sync %s: %w", name, err)
	}
	return nil
}

// Close flushes and closes every open file.
func (w *CSVWriter) Close() error {
	var firstErr error
	for name, cf := range w.files {
		cf.w.Flush()
		if err := cf.w.Error(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to flush %s: %w", name, err)
		}
		if err := cf.f.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close %s: %w", name, err)
		}
	}
	w.files = make(map[string]*csvFile)
	return firstErr
}

// Summary reports the CSV files in the export directory.
func (w *CSVWriter) Summary() ([]FileSummary, error) {
	return summarizeDir(w.dir, ".csv")
}

// formatValue renders a decoded JSON value as a CSV cell. Nested structures
// are kept as JSON text so no data silently disappears into "%v" noise.
func formatValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case json.Number:
		return val.String()
	case map[string]interface{}, []interface{}:
		encoded, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(encoded)
	default:
		return fmt.Sprintf("%v", val)
	}
}
