package integration

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/workingman/BCP-data-warehouse/pkg/checkpoint"
	"github.com/workingman/BCP-data-warehouse/pkg/config"
	"github.com/workingman/BCP-data-warehouse/pkg/export"
	"github.com/workingman/BCP-data-warehouse/pkg/lightspeed"
	"github.com/workingman/BCP-data-warehouse/pkg/logger"
	"github.com/workingman/BCP-data-warehouse/pkg/ratelimit"
)

// testToken is the personal token every mock server and test client share.
const testToken = "test-personal-token"

// TestHelper provides common test utilities
type TestHelper struct {
	t            *testing.T
	mockServer   *MockStoreServer
	tempDir      string
	cleanupFuncs []func()
}

// NewTestHelper creates a new test helper
func NewTestHelper(t *testing.T) *TestHelper {
	tempDir, err := os.MkdirTemp("", "lsexport_test_*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}

	// Keep the global logger quiet; runner internals log through it.
	if err := logger.Initialize(&config.LoggingConfig{Level: "error"}); err != nil {
		t.Fatalf("Failed to initialize logger: %v", err)
	}

	return &TestHelper{
		t:            t,
		tempDir:      tempDir,
		cleanupFuncs: []func(){},
	}
}

// SetupMockServer initializes the mock store server
func (h *TestHelper) SetupMockServer() *MockStoreServer {
	h.mockServer = NewMockStoreServer(testToken)
	h.AddCleanup(h.mockServer.Close)
	return h.mockServer
}

// GetTempDir returns the temporary directory for test files
func (h *TestHelper) GetTempDir() string {
	return h.tempDir
}

// CreateTempSubDir creates a subdirectory in the temp directory
func (h *TestHelper) CreateTempSubDir(name string) string {
	dir := filepath.Join(h.tempDir, name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		h.t.Fatalf("Failed to create temp subdir: %v", err)
	}
	return dir
}

// AddCleanup adds a cleanup function to be called when test ends
func (h *TestHelper) AddCleanup(fn func()) {
	h.cleanupFuncs = append(h.cleanupFuncs, fn)
}

// Cleanup runs all cleanup functions
func (h *TestHelper) Cleanup() {
	for i := len(h.cleanupFuncs) - 1; i >= 0; i-- {
		h.cleanupFuncs[i]()
	}
	os.RemoveAll(h.tempDir)
}

// CreateTestLogger creates a test logger
func (h *TestHelper) CreateTestLogger() logger.Logger {
	return logger.NewTestLogger()
}

// CreateTestConfig creates a configuration tuned for fast test runs: a wide
// open rate limit, a single fetch attempt, and millisecond backoff.
func (h *TestHelper) CreateTestConfig() *config.Config {
	cfg := config.DefaultConfig()

	cfg.Lightspeed.Domain = "teststore.retail.lightspeed.app"
	cfg.Lightspeed.Token = testToken
	cfg.Lightspeed.Timeout = 5 * time.Second

	cfg.RateLimit.RequestsPerSecond = 1000
	cfg.RateLimit.Burst = 1000

	cfg.Retry.MaxAttempts = 1
	cfg.Retry.InitialDelay = 1 * time.Millisecond
	cfg.Retry.MaxDelay = 5 * time.Millisecond

	cfg.Export.OutputDir = h.CreateTempSubDir("exports")
	cfg.Export.Format = "jsonl"
	cfg.Export.Monolithic = true
	cfg.Export.PageSize = 200

	cfg.Logging.Level = "error"

	return cfg
}

// NewRunner builds an export runner pointed at the mock server.
func (h *TestHelper) NewRunner(cfg *config.Config, exportDir string, mock *MockStoreServer) *export.Runner {
	gate := ratelimit.NewTokenBucket(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	client := lightspeed.NewClient(mock.GetURL(), testToken, cfg.Lightspeed.Timeout, gate, h.CreateTestLogger())

	runner, err := export.NewWithClient(cfg, exportDir, client)
	if err != nil {
		h.t.Fatalf("Failed to build runner: %v", err)
	}
	return runner
}

// RunExport runs the runner to completion and fails the test on setup errors.
func (h *TestHelper) RunExport(runner *export.Runner) *export.Report {
	report, err := runner.Run(context.Background())
	if err != nil {
		h.t.Fatalf("Export run failed: %v", err)
	}
	return report
}

// ReadCheckpoint reads the checkpoint record of an export directory.
func (h *TestHelper) ReadCheckpoint(exportDir string) *checkpoint.Record {
	record, err := checkpoint.ReadRecord(exportDir)
	if err != nil {
		h.t.Fatalf("Failed to read checkpoint in %s: %v", exportDir, err)
	}
	return record
}

// ReadJSONLIDs returns the id field of every record in a JSONL file, in
// file order.
func (h *TestHelper) ReadJSONLIDs(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		h.t.Fatalf("Failed to open %s: %v", path, err)
	}
	defer f.Close()

	var ids []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var record map[string]interface{}
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			h.t.Fatalf("Malformed JSONL line in %s: %v", path, err)
		}
		id, _ := record["id"].(string)
		ids = append(ids, id)
	}
	if err := scanner.Err(); err != nil {
		h.t.Fatalf("Failed to scan %s: %v", path, err)
	}
	return ids
}

// ResultFor returns the report entry for one resource.
func (h *TestHelper) ResultFor(report *export.Report, resource string) export.ResourceResult {
	for _, result := range report.Results {
		if result.Resource == resource {
			return result
		}
	}
	h.t.Fatalf("No result for resource %s in report", resource)
	return export.ResourceResult{}
}

// AssertFileExists checks if a file exists
func (h *TestHelper) AssertFileExists(path string) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		h.t.Errorf("Expected file to exist: %s", path)
	}
}

// AssertFileNotExists checks if a file does not exist
func (h *TestHelper) AssertFileNotExists(path string) {
	if _, err := os.Stat(path); err == nil {
		h.t.Errorf("Expected file to not exist: %s", path)
	}
}

// AssertDirContainsFiles checks if directory contains expected number of files
func (h *TestHelper) AssertDirContainsFiles(dir string, expectedCount int) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		h.t.Errorf("Failed to read directory %s: %v", dir, err)
		return
	}

	actualCount := 0
	for _, e := range entries {
		if !e.IsDir() {
			actualCount++
		}
	}

	if actualCount != expectedCount {
		h.t.Errorf("Directory %s contains %d files, expected %d", dir, actualCount, expectedCount)
	}
}

// AssertNoError fails the test if err is not nil
func (h *TestHelper) AssertNoError(err error) {
	if err != nil {
		h.t.Fatalf("Unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil
func (h *TestHelper) AssertError(err error) {
	if err == nil {
		h.t.Fatal("Expected error but got nil")
	}
}

// AssertErrorContains checks if error contains expected substring
func (h *TestHelper) AssertErrorContains(err error, substr string) {
	if err == nil {
		h.t.Fatal("Expected error but got nil")
	}
	if !strings.Contains(err.Error(), substr) {
		h.t.Errorf("Error message '%s' does not contain '%s'", err.Error(), substr)
	}
}

// AssertEqual checks if two values are equal
func (h *TestHelper) AssertEqual(expected, actual interface{}) {
	if expected != actual {
		h.t.Errorf("Expected %v, got %v", expected, actual)
	}
}

// AssertStatus checks the terminal status of one resource in a report.
func (h *TestHelper) AssertStatus(report *export.Report, resource string, want export.Status) {
	result := h.ResultFor(report, resource)
	if result.Status != want {
		h.t.Errorf("Resource %s finished %s, expected %s (err: %v)", resource, result.Status, want, result.Err)
	}
}
