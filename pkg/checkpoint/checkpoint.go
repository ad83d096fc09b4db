package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	errs "github.com/workingman/BCP-data-warehouse/pkg/errors"
	"github.com/workingman/BCP-data-warehouse/pkg/logger"
)

// FileName is the checkpoint file kept at the root of every export directory.
const FileName = "checkpoint.json"

// Record is the persisted state of one export run.
type Record struct {
	StartedAt          time.Time          `json:"started_at"`
	CompletedResources []string           `json:"completed_resources"`
	PartialProgress    map[string]*Marker `json:"partial_progress"`
	LastUpdated        time.Time          `json:"last_updated"`
	ExportComplete     bool               `json:"export_complete"`
	CompletedAt        *time.Time         `json:"completed_at,omitempty"`
}

// Marker records how far an interrupted resource export advanced. A marker
// means every batch up to and including LastBatch is durably written.
type Marker struct {
	LastBatch   int       `json:"last_batch"`
	RecordCount int       `json:"record_count"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Manager owns the checkpoint file of a single export directory. It is
// driven by one goroutine; every mutation is persisted before returning.
type Manager struct {
	checkpointPath string
	record         *Record
	logger         logger.Logger
}

// NewManager creates a checkpoint manager bound to the given export
// directory and loads its state. A missing or unreadable checkpoint file
// yields a fresh record, never an error.
func NewManager(exportDir string) *Manager {
	m := &Manager{
		checkpointPath: filepath.Join(exportDir, FileName),
		logger:         logger.GetLogger(),
	}
	m.load()
	return m
}

// newRecord initializes the state of a brand new export.
func newRecord() *Record {
	return &Record{
		StartedAt:          time.Now().UTC(),
		CompletedResources: []string{},
		PartialProgress:    make(map[string]*Marker),
	}
}

// load reads the checkpoint file. Corruption is treated as absence: the
// export restarts from a fresh record rather than failing the run.
func (m *Manager) load() {
	data, err := os.ReadFile(m.checkpointPath)
	if err != nil {
		if !os.IsNotExist(err) {
			m.logger.WarnWithFields("Checkpoint unreadable, starting fresh", map[string]interface{}{
				"path":  m.checkpointPath,
				"error": err.Error(),
			})
		}
		m.record = newRecord()
		return
	}

	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		corrupt := &errs.Error{
			Type:    errs.ErrorTypeCheckpointCorrupt,
			Message: "checkpoint file is not valid JSON",
			Err:     err,
		}
		m.logger.WithError(corrupt).WarnWithFields("Checkpoint corrupt, starting fresh", map[string]interface{}{
			"path": m.checkpointPath,
		})
		m.record = newRecord()
		return
	}

	if record.PartialProgress == nil {
		record.PartialProgress = make(map[string]*Marker)
	}
	if record.CompletedResources == nil {
		record.CompletedResources = []string{}
	}
	m.record = &record

	m.logger.InfoWithFields("Checkpoint loaded", map[string]interface{}{
		"path":            m.checkpointPath,
		"completed":       len(record.CompletedResources),
		"partial":         len(record.PartialProgress),
		"export_complete": record.ExportComplete,
	})
}

// save writes the record to disk atomically: encode into a temp file in the
// same directory, sync, then rename over the previous checkpoint.
func (m *Manager) save() error {
	m.record.LastUpdated = time.Now().UTC()

	tempPath := m.checkpointPath + ".tmp"
	file, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create temporary checkpoint file: %w", err)
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(m.record); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}

	// Ensure data is written to disk
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync checkpoint file: %w", err)
	}

	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close checkpoint file: %w", err)
	}

	if err := os.Rename(tempPath, m.checkpointPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace checkpoint file: %w", err)
	}

	return nil
}

// Persist forces the current record to disk. New exports call this once so
// the directory carries a checkpoint before any resource starts.
func (m *Manager) Persist() error {
	return m.save()
}

// IsComplete reports whether the resource finished in a previous run.
func (m *Manager) IsComplete(resource string) bool {
	for _, name := range m.record.CompletedResources {
		if name == resource {
			return true
		}
	}
	return false
}

// MarkComplete records the resource as fully exported. Any partial marker
// is removed in the same persisted step, so the two states never coexist
// on disk. Marking twice is harmless.
func (m *Manager) MarkComplete(resource string) error {
	delete(m.record.PartialProgress, resource)

	if !m.IsComplete(resource) {
		m.record.CompletedResources = append(m.record.CompletedResources, resource)
	}

	if err := m.save(); err != nil {
		return err
	}

	m.logger.InfoWithFields("Resource marked complete", map[string]interface{}{
		"resource": resource,
	})
	return nil
}

// SavePartial persists a progress marker for an interrupted resource.
// Batches up to and including lastBatch must already be durably written
// when this is called.
func (m *Manager) SavePartial(resource string, lastBatch, recordCount int) error {
	if m.IsComplete(resource) {
		m.logger.WarnWithFields("Ignoring partial marker for completed resource", map[string]interface{}{
			"resource": resource,
		})
		return nil
	}

	m.record.PartialProgress[resource] = &Marker{
		LastBatch:   lastBatch,
		RecordCount: recordCount,
		UpdatedAt:   time.Now().UTC(),
	}

	if err := m.save(); err != nil {
		return err
	}

	m.logger.DebugWithFields("Partial progress saved", map[string]interface{}{
		"resource":   resource,
		"last_batch": lastBatch,
		"records":    recordCount,
	})
	return nil
}

// GetPartial returns a copy of the resource's progress marker, or nil when
// the resource has none.
func (m *Manager) GetPartial(resource string) *Marker {
	marker, ok := m.record.PartialProgress[resource]
	if !ok {
		return nil
	}
	copied := *marker
	return &copied
}

// ClearPartial removes the resource's progress marker, if any.
func (m *Manager) ClearPartial(resource string) error {
	if _, ok := m.record.PartialProgress[resource]; !ok {
		return nil
	}
	delete(m.record.PartialProgress, resource)
	return m.save()
}

// MarkExportComplete flips the terminal flag. It is only valid once every
// resource in the run's plan completed; calling it again is a no-op.
func (m *Manager) MarkExportComplete() error {
	if m.record.ExportComplete {
		return nil
	}

	now := time.Now().UTC()
	m.record.ExportComplete = true
	m.record.CompletedAt = &now

	if err := m.save(); err != nil {
		return err
	}

	m.logger.Info("Export marked complete")
	return nil
}

// IsExportComplete reports whether the run reached its terminal state.
func (m *Manager) IsExportComplete() bool {
	return m.record.ExportComplete
}

// Snapshot returns a deep copy of the current record for reporting.
func (m *Manager) Snapshot() Record {
	snapshot := *m.record

	snapshot.CompletedResources = make([]string, len(m.record.CompletedResources))
	copy(snapshot.CompletedResources, m.record.CompletedResources)

	snapshot.PartialProgress = make(map[string]*Marker, len(m.record.PartialProgress))
	for name, marker := range m.record.PartialProgress {
		copied := *marker
		snapshot.PartialProgress[name] = &copied
	}

	if m.record.CompletedAt != nil {
		completedAt := *m.record.CompletedAt
		snapshot.CompletedAt = &completedAt
	}

	return snapshot
}

// Exists checks if a checkpoint file exists on disk.
func (m *Manager) Exists() bool {
	_, err := os.Stat(m.checkpointPath)
	return err == nil
}

// Delete removes the checkpoint file.
func (m *Manager) Delete() error {
	if err := os.Remove(m.checkpointPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}

	m.logger.Info("Checkpoint deleted")
	return nil
}

// ReadRecord loads the checkpoint record from an export directory without
// constructing a manager. Used to inspect directories when scanning for
// resumable exports.
func ReadRecord(exportDir string) (*Record, error) {
	data, err := os.ReadFile(filepath.Join(exportDir, FileName))
	if err != nil {
		return nil, err
	}

	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint: %w", err)
	}
	return &record, nil
}
