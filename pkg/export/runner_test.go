package export

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/workingman/BCP-data-warehouse/pkg/checkpoint"
	"github.com/workingman/BCP-data-warehouse/pkg/config"
	"github.com/workingman/BCP-data-warehouse/pkg/lightspeed"
	"github.com/workingman/BCP-data-warehouse/pkg/logger"
	"github.com/workingman/BCP-data-warehouse/pkg/ratelimit"
)

// mockLightspeedServer mimics the upstream API: one collection endpoint per
// resource with page/page_size pagination and per-resource failure injection.
type mockLightspeedServer struct {
	server *httptest.Server
	mu     sync.Mutex
	data   map[string][]map[string]interface{}
	// failStatus makes every request for a resource fail.
	failStatus map[string]int
	// failPage makes one specific page of a resource fail.
	failPage map[string]int
	calls    map[string]int
}

func newMockLightspeedServer() *mockLightspeedServer {
	m := &mockLightspeedServer{
		data:       make(map[string][]map[string]interface{}),
		failStatus: make(map[string]int),
		failPage:   make(map[string]int),
		calls:      make(map[string]int),
	}
	m.server = httptest.NewServer(http.HandlerFunc(m.handle))
	return m
}

func (m *mockLightspeedServer) handle(w http.ResponseWriter, r *http.Request) {
	name := strings.Trim(r.URL.Path, "/")

	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls[name]++

	if status, ok := m.failStatus[name]; ok {
		w.WriteHeader(status)
		return
	}

	records := m.data[name]
	page := 0
	if p := r.URL.Query().Get("page"); p != "" {
		page, _ = strconv.Atoi(p)
	}
	pageSize := len(records)
	if ps := r.URL.Query().Get("page_size"); ps != "" {
		pageSize, _ = strconv.Atoi(ps)
	}

	if page > 0 {
		if failPage, ok := m.failPage[name]; ok && page == failPage {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		start := (page - 1) * pageSize
		if start > len(records) {
			start = len(records)
		}
		end := start + pageSize
		if end > len(records) {
			end = len(records)
		}
		records = records[start:end]
	} else if pageSize < len(records) {
		records = records[:pageSize]
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"data": records})
}

func (m *mockLightspeedServer) Close() {
	m.server.Close()
}

func (m *mockLightspeedServer) setRecords(resource string, count int) {
	records := make([]map[string]interface{}, count)
	for i := range records {
		records[i] = map[string]interface{}{
			"id":   fmt.Sprintf("%s-%d", resource, i),
			"name": fmt.Sprintf("%s name %d", resource, i),
		}
	}
	m.mu.Lock()
	m.data[resource] = records
	m.mu.Unlock()
}

func (m *mockLightspeedServer) failAlways(resource string, status int) {
	m.mu.Lock()
	m.failStatus[resource] = status
	m.mu.Unlock()
}

func (m *mockLightspeedServer) failOnPage(resource string, page int) {
	m.mu.Lock()
	m.failPage[resource] = page
	m.mu.Unlock()
}

func (m *mockLightspeedServer) heal(resource string) {
	m.mu.Lock()
	delete(m.failStatus, resource)
	delete(m.failPage, resource)
	m.mu.Unlock()
}

func (m *mockLightspeedServer) callCount(resource string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[resource]
}

func testRunnerConfig(resources ...string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Export.Resources = resources
	cfg.Export.Format = "jsonl"
	cfg.Retry.MaxAttempts = 1
	cfg.Retry.InitialDelay = time.Millisecond
	cfg.Retry.MaxDelay = 5 * time.Millisecond
	return cfg
}

func newTestRunner(t *testing.T, cfg *config.Config, dir string, server *mockLightspeedServer) *Runner {
	t.Helper()
	client := lightspeed.NewClient(
		server.server.URL,
		"test-token",
		5*time.Second,
		ratelimit.NewTokenBucket(1000, 1000),
		logger.GetLogger(),
	)
	runner, err := NewWithClient(cfg, dir, client)
	require.NoError(t, err)
	return runner
}

func jsonlIDs(t *testing.T, path string) []string {
	t.Helper()
	content, err := os.ReadFile(path)
	require.NoError(t, err)

	var ids []string
	for _, line := range strings.Split(strings.TrimSpace(string(content)), "\n") {
		if line == "" {
			continue
		}
		var record map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &record))
		ids = append(ids, record["id"].(string))
	}
	return ids
}

func TestRunnerFreshRunCompletes(t *testing.T) {
	server := newMockLightspeedServer()
	defer server.Close()
	server.setRecords("outlets", 2)
	server.setRecords("products", 3)
	server.setRecords("sales", 1)

	dir := t.TempDir()
	cfg := testRunnerConfig("outlets", "products", "sales")
	runner := newTestRunner(t, cfg, dir, server)

	report, err := runner.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, report.Complete)
	assert.False(t, report.Stopped)
	require.Len(t, report.Results, 3)
	for _, result := range report.Results {
		assert.Equal(t, StatusCompleted, result.Status, result.Resource)
	}
	assert.Equal(t, 6, report.TotalRecords())

	// Every resource got its file, ordered by plan
	assert.Len(t, jsonlIDs(t, filepath.Join(dir, "outlets.jsonl")), 2)
	assert.Len(t, jsonlIDs(t, filepath.Join(dir, "products.jsonl")), 3)
	assert.Len(t, jsonlIDs(t, filepath.Join(dir, "sales.jsonl")), 1)

	// Terminal state on disk, partials gone, lock released
	record, err := checkpoint.ReadRecord(dir)
	require.NoError(t, err)
	assert.True(t, record.ExportComplete)
	assert.Len(t, record.CompletedResources, 3)
	assert.Empty(t, record.PartialProgress)
	_, err = os.Stat(filepath.Join(dir, LockFileName))
	assert.True(t, os.IsNotExist(err))
}

func TestRunnerFailureIsolation(t *testing.T) {
	server := newMockLightspeedServer()
	defer server.Close()
	server.setRecords("outlets", 2)
	server.setRecords("sales", 2)
	server.failAlways("products", http.StatusInternalServerError)

	dir := t.TempDir()
	cfg := testRunnerConfig("outlets", "products", "sales")
	runner := newTestRunner(t, cfg, dir, server)

	report, err := runner.Run(context.Background())
	require.NoError(t, err)

	assert.False(t, report.Complete)
	require.Len(t, report.Results, 3)
	assert.Equal(t, StatusCompleted, report.Results[0].Status)
	assert.Equal(t, StatusFailed, report.Results[1].Status)
	assert.Error(t, report.Results[1].Err)
	assert.Equal(t, StatusCompleted, report.Results[2].Status)

	// The failed resource advanced nothing: not completed, no partial marker
	record, err := checkpoint.ReadRecord(dir)
	require.NoError(t, err)
	assert.False(t, record.ExportComplete)
	assert.NotContains(t, record.CompletedResources, "products")
	assert.NotContains(t, record.PartialProgress, "products")
	assert.Contains(t, record.CompletedResources, "outlets")
	assert.Contains(t, record.CompletedResources, "sales")
}

func TestRunnerRetriesTransientFailures(t *testing.T) {
	server := newMockLightspeedServer()
	defer server.Close()
	server.setRecords("outlets", 2)
	server.failAlways("outlets", http.StatusInternalServerError)

	dir := t.TempDir()
	cfg := testRunnerConfig("outlets")
	cfg.Retry.MaxAttempts = 3

	runner := newTestRunner(t, cfg, dir, server)
	report, err := runner.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StatusFailed, report.Results[0].Status)
	assert.Equal(t, 3, server.callCount("outlets"))
}

func TestRunnerDoesNotRetryAuthFailures(t *testing.T) {
	server := newMockLightspeedServer()
	defer server.Close()
	server.failAlways("outlets", http.StatusUnauthorized)

	dir := t.TempDir()
	cfg := testRunnerConfig("outlets")
	cfg.Retry.MaxAttempts = 3

	runner := newTestRunner(t, cfg, dir, server)
	report, err := runner.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StatusFailed, report.Results[0].Status)
	assert.Equal(t, 1, server.callCount("outlets"))
}

func TestRunnerSkipsCompletedResources(t *testing.T) {
	server := newMockLightspeedServer()
	defer server.Close()
	server.setRecords("outlets", 2)
	server.setRecords("products", 2)

	dir := t.TempDir()

	// A previous run finished outlets
	mgr := checkpoint.NewManager(dir)
	require.NoError(t, mgr.MarkComplete("outlets"))

	cfg := testRunnerConfig("outlets", "products")
	runner := newTestRunner(t, cfg, dir, server)
	report, err := runner.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StatusSkipped, report.Results[0].Status)
	assert.Equal(t, StatusCompleted, report.Results[1].Status)
	assert.Equal(t, 0, server.callCount("outlets"))
	assert.True(t, report.Complete)

	// Skipped resources keep whatever file state they had; no fresh file
	_, err = os.Stat(filepath.Join(dir, "outlets.jsonl"))
	assert.True(t, os.IsNotExist(err))
}

func TestRunnerPagedResumeWithoutDuplicates(t *testing.T) {
	server := newMockLightspeedServer()
	defer server.Close()
	server.setRecords("sales", 250)
	server.failOnPage("sales", 3)

	dir := t.TempDir()
	cfg := testRunnerConfig("sales")
	cfg.Export.Monolithic = false
	cfg.Export.PageSize = 100

	// First run writes two batches, then the third page fails
	runner := newTestRunner(t, cfg, dir, server)
	report, err := runner.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, StatusFailed, report.Results[0].Status)
	assert.Equal(t, 200, report.Results[0].Records)
	assert.False(t, report.Complete)

	record, err := checkpoint.ReadRecord(dir)
	require.NoError(t, err)
	marker := record.PartialProgress["sales"]
	require.NotNil(t, marker)
	assert.Equal(t, 2, marker.LastBatch)
	assert.Equal(t, 200, marker.RecordCount)

	// Second run resumes from the marker and finishes
	server.heal("sales")
	runner2 := newTestRunner(t, cfg, dir, server)
	report2, err := runner2.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, report2.Results[0].Status)
	assert.Equal(t, 50, report2.Results[0].Records)
	assert.True(t, report2.Complete)

	// Every record exactly once, in order
	ids := jsonlIDs(t, filepath.Join(dir, "sales.jsonl"))
	require.Len(t, ids, 250)
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		assert.False(t, seen[id], "duplicate record %s", id)
		seen[id] = true
	}
	assert.Equal(t, "sales-0", ids[0])
	assert.Equal(t, "sales-200", ids[200])

	record, err = checkpoint.ReadRecord(dir)
	require.NoError(t, err)
	assert.Empty(t, record.PartialProgress)
}

func TestRunnerMonolithicResumeReplacesPartialData(t *testing.T) {
	server := newMockLightspeedServer()
	defer server.Close()
	server.setRecords("outlets", 3)

	dir := t.TempDir()

	// Simulate an interrupted earlier run: stale partial file plus marker
	stale := "{\"id\":\"stale-1\"}\n{\"id\":\"stale-2\"}\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "outlets.jsonl"), []byte(stale), 0644))
	mgr := checkpoint.NewManager(dir)
	require.NoError(t, mgr.SavePartial("outlets", 1, 2))

	cfg := testRunnerConfig("outlets")
	cfg.Export.Monolithic = true

	runner := newTestRunner(t, cfg, dir, server)
	report, err := runner.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, report.Results[0].Status)

	// The refetched batch replaced the stale rows
	ids := jsonlIDs(t, filepath.Join(dir, "outlets.jsonl"))
	require.Len(t, ids, 3)
	assert.NotContains(t, ids, "stale-1")
	assert.Equal(t, 3, report.Results[0].Records)
}

type cancelingProgress struct {
	cancel     context.CancelFunc
	afterBatch int
}

func (p *cancelingProgress) ResourceStarted(position, total int, name string) {}
func (p *cancelingProgress) ResourceFinished(result ResourceResult)           {}
func (p *cancelingProgress) BatchWritten(name string, batch, totalRecords int) {
	if batch >= p.afterBatch {
		p.cancel()
	}
}

func TestRunnerGracefulStopPreservesProgress(t *testing.T) {
	server := newMockLightspeedServer()
	defer server.Close()
	server.setRecords("sales", 250)
	server.setRecords("products", 10)

	dir := t.TempDir()
	cfg := testRunnerConfig("sales", "products")
	cfg.Export.Monolithic = false
	cfg.Export.PageSize = 100

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runner := newTestRunner(t, cfg, dir, server)
	runner.SetProgress(&cancelingProgress{cancel: cancel, afterBatch: 1})

	report, err := runner.Run(ctx)
	require.NoError(t, err)

	assert.True(t, report.Stopped)
	assert.False(t, report.Complete)
	require.Len(t, report.Results, 1)
	assert.Equal(t, StatusStopped, report.Results[0].Status)

	// The durable batch survived with its marker; nothing after it ran
	record, err := checkpoint.ReadRecord(dir)
	require.NoError(t, err)
	marker := record.PartialProgress["sales"]
	require.NotNil(t, marker)
	assert.Equal(t, 1, marker.LastBatch)
	assert.Equal(t, 100, marker.RecordCount)
	assert.Len(t, jsonlIDs(t, filepath.Join(dir, "sales.jsonl")), 100)
	assert.Equal(t, 0, server.callCount("products"))

	// Lock is released so the run can be resumed
	_, err = os.Stat(filepath.Join(dir, LockFileName))
	assert.True(t, os.IsNotExist(err))
}

func TestRunnerEmptyResourceCompletes(t *testing.T) {
	server := newMockLightspeedServer()
	defer server.Close()
	server.setRecords("outlets", 0)

	dir := t.TempDir()
	cfg := testRunnerConfig("outlets")

	runner := newTestRunner(t, cfg, dir, server)
	report, err := runner.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, report.Results[0].Status)
	assert.Equal(t, 0, report.Results[0].Records)
	assert.True(t, report.Complete)

	// The file exists even though the resource was empty
	info, err := os.Stat(filepath.Join(dir, "outlets.jsonl"))
	require.NoError(t, err)
	assert.Zero(t, info.Size())
}

func TestRunnerRefusesLockedDirectory(t *testing.T) {
	server := newMockLightspeedServer()
	defer server.Close()
	server.setRecords("outlets", 1)

	dir := t.TempDir()
	lock, err := Acquire(dir)
	require.NoError(t, err)
	defer lock.Release()

	cfg := testRunnerConfig("outlets")
	runner := newTestRunner(t, cfg, dir, server)

	_, err = runner.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "locked by running process")
}

func TestRunnerRejectsUnknownResource(t *testing.T) {
	server := newMockLightspeedServer()
	defer server.Close()

	cfg := testRunnerConfig("nonsense")
	_, err := NewWithClient(cfg, t.TempDir(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown resource")
}

func TestNewGateSelectsConfiguredLimiter(t *testing.T) {
	bucket := newGate(&config.RateLimitConfig{RequestsPerSecond: 5, Burst: 2, Limiter: "token_bucket"})
	_, ok := bucket.(*ratelimit.TokenBucket)
	assert.True(t, ok)

	window := newGate(&config.RateLimitConfig{RequestsPerSecond: 5, Burst: 1, Limiter: "sliding_window"})
	_, ok = window.(*ratelimit.SlidingWindow)
	assert.True(t, ok)

	// Unrecognized names fall back to the token bucket
	fallback := newGate(&config.RateLimitConfig{RequestsPerSecond: 5, Burst: 1, Limiter: ""})
	_, ok = fallback.(*ratelimit.TokenBucket)
	assert.True(t, ok)

	// A fractional rate stretches the window instead of rounding to zero
	slow := newGate(&config.RateLimitConfig{RequestsPerSecond: 0.5, Burst: 1, Limiter: "sliding_window"})
	assert.True(t, slow.Allow())
	assert.False(t, slow.Allow())
}

func TestRunnerReportFileSummaries(t *testing.T) {
	server := newMockLightspeedServer()
	defer server.Close()
	server.setRecords("outlets", 4)

	dir := t.TempDir()
	cfg := testRunnerConfig("outlets")

	runner := newTestRunner(t, cfg, dir, server)
	report, err := runner.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Files, 1)
	assert.Equal(t, "outlets.jsonl", report.Files[0].Name)
	assert.Equal(t, 4, report.Files[0].Records)
	assert.Greater(t, report.Files[0].Size, int64(0))
}
