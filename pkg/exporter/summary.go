package exporter

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FileSummary describes one output file after an export run.
type FileSummary struct {
	Name    string
	Records int
	Size    int64
}

// summarizeDir scans an export directory for files with the given extension
// and counts their records. CSV files carry a header line that is not a
// record; JSONL files are one record per line.
func summarizeDir(dir, ext string) ([]FileSummary, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read export directory: %w", err)
	}

	var summaries []FileSummary
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ext) {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		lines, size, err := countLines(path)
		if err != nil {
			return nil, err
		}

		records := lines
		if ext == ".csv" && records > 0 {
			records--
		}

		summaries = append(summaries, FileSummary{
			Name:    entry.Name(),
			Records: records,
			Size:    size,
		})
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].Name < summaries[j].Name
	})
	return summaries, nil
}

// countLines counts newline-terminated lines in chunks, so a single oversized
// record cannot break the scan.
func countLines(path string) (int, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	count := 0
	buf := make([]byte, 64*1024)
	for {
		n, err := f.Read(buf)
		count += bytes.Count(buf[:n], []byte{'\n'})
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, 0, fmt.Errorf("failed to read %s: %w", path, err)
		}
	}
	return count, info.Size(), nil
}
