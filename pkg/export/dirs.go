package export

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/workingman/BCP-data-warehouse/pkg/checkpoint"
)

const (
	// DirPrefix names every export directory; the rest is the creation
	// timestamp, which doubles as the directory's identity.
	DirPrefix = "lightspeed_export_"

	dirTimeFormat = "20060102_150405"
)

// NewExportDir creates a fresh timestamped export directory under outputRoot
// and returns its path.
func NewExportDir(outputRoot string) (string, error) {
	name := DirPrefix + time.Now().Format(dirTimeFormat)
	dir := filepath.Join(outputRoot, name)

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create export directory: %w", err)
	}
	return dir, nil
}

// FindResumable scans outputRoot for export directories whose checkpoint is
// not terminal, newest first. Directories without a readable checkpoint are
// ignored.
func FindResumable(outputRoot string) ([]string, error) {
	entries, err := os.ReadDir(outputRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan output root: %w", err)
	}

	var dirs []string
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), DirPrefix) {
			continue
		}

		dir := filepath.Join(outputRoot, entry.Name())
		record, err := checkpoint.ReadRecord(dir)
		if err != nil {
			continue
		}
		if record.ExportComplete {
			continue
		}
		dirs = append(dirs, dir)
	}

	// Timestamped names sort lexically, so reverse order is newest first.
	sort.Sort(sort.Reverse(sort.StringSlice(dirs)))
	return dirs, nil
}

// LatestResumable returns the newest incomplete export directory under
// outputRoot, or an empty string when there is none.
func LatestResumable(outputRoot string) (string, error) {
	dirs, err := FindResumable(outputRoot)
	if err != nil {
		return "", err
	}
	if len(dirs) == 0 {
		return "", nil
	}
	return dirs[0], nil
}
