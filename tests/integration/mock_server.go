package integration

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// MockStoreServer simulates the Lightspeed X-Series REST API with realistic
// behavior: one collection per resource under /<resource>, page and
// page_size query parameters, a {"data": [...]} envelope, and Bearer token
// authentication. Tests seed it with records and inject failures.
type MockStoreServer struct {
	server *httptest.Server
	token  string

	requestCount  int32
	rateLimitHits int32

	mu             sync.RWMutex
	records        map[string][]map[string]interface{}
	errorResponses map[string]int         // Map of resource names to error codes
	pageErrors     map[string]map[int]int // Per-page error codes in paged mode
	delays         map[string]time.Duration
	calls          map[string]int
	rateLimitEvery int
}

// NewMockStoreServer creates a new mock Lightspeed API server. Requests must
// carry "Bearer <token>" or they are rejected with 401.
func NewMockStoreServer(token string) *MockStoreServer {
	m := &MockStoreServer{
		token:          token,
		records:        make(map[string][]map[string]interface{}),
		errorResponses: make(map[string]int),
		pageErrors:     make(map[string]map[int]int),
		delays:         make(map[string]time.Duration),
		calls:          make(map[string]int),
	}

	m.server = httptest.NewServer(http.HandlerFunc(m.handle))
	return m
}

// handle serves every collection endpoint. The first path segment is the
// resource name, matching how the exporter builds collection URLs.
func (m *MockStoreServer) handle(w http.ResponseWriter, r *http.Request) {
	atomic.AddInt32(&m.requestCount, 1)

	name := strings.Trim(r.URL.Path, "/")

	m.mu.Lock()
	m.calls[name]++
	m.mu.Unlock()

	// Simulate delay if configured
	if delay := m.getDelay(name); delay > 0 {
		time.Sleep(delay)
	}

	// Token check mirrors the real API
	if r.Header.Get("Authorization") != "Bearer "+m.token {
		m.sendError(w, http.StatusUnauthorized, name)
		return
	}

	// Check for configured errors
	if errorCode := m.getErrorResponse(name); errorCode > 0 {
		m.sendError(w, errorCode, name)
		return
	}

	// Simulate rate limiting
	if m.shouldRateLimit() {
		atomic.AddInt32(&m.rateLimitHits, 1)
		w.Header().Set("Retry-After", "2")
		m.sendError(w, http.StatusTooManyRequests, name)
		return
	}

	// Paging arithmetic over the seeded records
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	if pageSize <= 0 {
		pageSize = 200
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page <= 0 {
		page = 1
	}

	if errorCode := m.getPageError(name, page); errorCode > 0 {
		m.sendError(w, errorCode, name)
		return
	}

	m.mu.RLock()
	all, ok := m.records[name]
	m.mu.RUnlock()
	if !ok {
		m.sendError(w, http.StatusNotFound, name)
		return
	}

	start := (page - 1) * pageSize
	if start > len(all) {
		start = len(all)
	}
	end := start + pageSize
	if end > len(all) {
		end = len(all)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"data": all[start:end]})
}

// sendError sends a Lightspeed-style error response
func (m *MockStoreServer) sendError(w http.ResponseWriter, code int, resource string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	switch code {
	case http.StatusUnauthorized:
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error": "unauthorized",
			"details": map[string]interface{}{
				"message": "personal token is missing or invalid",
			},
		})
	case http.StatusNotFound:
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error": fmt.Sprintf("resource not found: %s", resource),
		})
	case http.StatusTooManyRequests:
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error": "rate limit exceeded, slow down",
		})
	default:
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error": fmt.Sprintf("error %d", code),
		})
	}
}

// SetRecords replaces the seeded collection for one resource.
func (m *MockStoreServer) SetRecords(resource string, records []map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[resource] = records
}

// SeedResource fills a resource with count generated flat records whose ids
// are "<resource>-1" through "<resource>-<count>", in order.
func (m *MockStoreServer) SeedResource(resource string, count int) {
	records := make([]map[string]interface{}, count)
	for i := 0; i < count; i++ {
		records[i] = map[string]interface{}{
			"id":   fmt.Sprintf("%s-%d", resource, i+1),
			"name": fmt.Sprintf("%s %d", strings.TrimSuffix(resource, "s"), i+1),
		}
	}
	m.SetRecords(resource, records)
}

// SeedSales fills the sales resource with nested sale records: two line
// items and one payment hang off every sale, the shape the converter
// flattens into child CSVs.
func (m *MockStoreServer) SeedSales(count int) {
	records := make([]map[string]interface{}, count)
	for i := 0; i < count; i++ {
		saleID := fmt.Sprintf("sale-%d", i+1)
		records[i] = map[string]interface{}{
			"id":          saleID,
			"outlet_id":   "outlets-1",
			"status":      "CLOSED",
			"total_price": 24.50,
			"line_items": []interface{}{
				map[string]interface{}{
					"id":         fmt.Sprintf("%s-item-1", saleID),
					"product_id": "products-1",
					"quantity":   2,
					"price":      10.00,
				},
				map[string]interface{}{
					"id":         fmt.Sprintf("%s-item-2", saleID),
					"product_id": "products-2",
					"quantity":   1,
					"price":      4.50,
				},
			},
			"payments": []interface{}{
				map[string]interface{}{
					"id":     fmt.Sprintf("%s-payment-1", saleID),
					"amount": 24.50,
				},
			},
		}
	}
	m.SetRecords("sales", records)
}

// SetErrorResponse configures a resource to return a specific error code
func (m *MockStoreServer) SetErrorResponse(resource string, code int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorResponses[resource] = code
}

// ClearErrorResponse removes error configuration for a resource
func (m *MockStoreServer) ClearErrorResponse(resource string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.errorResponses, resource)
}

// SetPageError configures one page of a resource to fail in paged mode.
func (m *MockStoreServer) SetPageError(resource string, page, code int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pageErrors[resource] == nil {
		m.pageErrors[resource] = make(map[int]int)
	}
	m.pageErrors[resource][page] = code
}

// ClearPageError removes a per-page error.
func (m *MockStoreServer) ClearPageError(resource string, page int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pageErrors[resource], page)
}

// SetDelay configures response delay for a resource
func (m *MockStoreServer) SetDelay(resource string, delay time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delays[resource] = delay
}

// RateLimitEvery makes every nth request answer 429. Zero disables it.
func (m *MockStoreServer) RateLimitEvery(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rateLimitEvery = n
}

// getErrorResponse checks if an error is configured for the resource
func (m *MockStoreServer) getErrorResponse(resource string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.errorResponses[resource]
}

// getPageError checks if an error is configured for one page
func (m *MockStoreServer) getPageError(resource string, page int) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pageErrors[resource][page]
}

// getDelay gets configured delay for a resource
func (m *MockStoreServer) getDelay(resource string) time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.delays[resource]
}

// shouldRateLimit determines if a request should be rate limited
func (m *MockStoreServer) shouldRateLimit() bool {
	m.mu.RLock()
	every := m.rateLimitEvery
	m.mu.RUnlock()
	if every <= 0 {
		return false
	}
	return atomic.LoadInt32(&m.requestCount)%int32(every) == 0
}

// GetURL returns the base URL of the mock server
func (m *MockStoreServer) GetURL() string {
	return m.server.URL
}

// GetRequestCount returns the total number of requests
func (m *MockStoreServer) GetRequestCount() int {
	return int(atomic.LoadInt32(&m.requestCount))
}

// GetRateLimitHits returns the number of rate limit responses
func (m *MockStoreServer) GetRateLimitHits() int {
	return int(atomic.LoadInt32(&m.rateLimitHits))
}

// CallCount returns how many requests one resource has received.
func (m *MockStoreServer) CallCount(resource string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls[resource]
}

// ResetCounters resets all request counters
func (m *MockStoreServer) ResetCounters() {
	atomic.StoreInt32(&m.requestCount, 0)
	atomic.StoreInt32(&m.rateLimitHits, 0)
	m.mu.Lock()
	m.calls = make(map[string]int)
	m.mu.Unlock()
}

// Close shuts down the mock server
func (m *MockStoreServer) Close() {
	m.server.Close()
}
