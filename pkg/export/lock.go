package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/workingman/BCP-data-warehouse/pkg/logger"
)

// LockFileName is the advisory lock kept at the root of an export directory
// while a run owns it.
const LockFileName = "export.lock"

// Lock is an advisory, PID-stamped lock on one export directory. It stops
// two runs from appending to the same files; it does not survive hostile
// deletion, hence advisory.
type Lock struct {
	path string
}

// Acquire takes the directory's lock. A lock held by a live process is an
// error; a lock left behind by a dead process is replaced.
func Acquire(dir string) (*Lock, error) {
	path := filepath.Join(dir, LockFileName)

	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if err == nil {
			_, werr := fmt.Fprintf(f, "%d\n", os.Getpid())
			cerr := f.Close()
			if werr != nil || cerr != nil {
				os.Remove(path)
				return nil, fmt.Errorf("failed to write lock file: %w", werr)
			}
			return &Lock{path: path}, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("failed to create lock file: %w", err)
		}

		pid, readErr := readLockPID(path)
		if readErr == nil && pidAlive(pid) {
			return nil, fmt.Errorf("export directory is locked by running process %d", pid)
		}

		// Holder is gone; take the lock over.
		logger.GetLogger().WarnWithFields("Removing stale export lock", map[string]interface{}{
			"path": path,
			"pid":  pid,
		})
		if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
			return nil, fmt.Errorf("failed to remove stale lock: %w", rmErr)
		}
	}

	return nil, fmt.Errorf("failed to acquire export lock: %s", path)
}

// Release removes the lock file. Safe to call more than once.
func (l *Lock) Release() error {
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to release export lock: %w", err)
	}
	return nil
}

func readLockPID(path string) (int, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(content)))
	if err != nil {
		return 0, fmt.Errorf("malformed lock file %s: %w", path, err)
	}
	return pid, nil
}

// pidAlive reports whether the process still exists. Signal 0 performs the
// existence check without delivering anything.
func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
