package lightspeed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/workingman/BCP-data-warehouse/pkg/errors"
	"github.com/workingman/BCP-data-warehouse/pkg/logger"
	"github.com/workingman/BCP-data-warehouse/pkg/ratelimit"
	"github.com/workingman/BCP-data-warehouse/pkg/resource"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openGate is permissive enough that tests never block on rate budget.
func openGate() ratelimit.Limiter {
	return ratelimit.NewTokenBucket(1000, 1000)
}

func testClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := NewClient(server.URL, "test-token", 10*time.Second, openGate(), logger.NewTestLogger())
	return client, server
}

func TestNewClient(t *testing.T) {
	log := logger.NewTestLogger()
	client := NewClient("https://store.example.com/api/2.0", "token", 30*time.Second, nil, log)

	assert.NotNil(t, client)
	assert.NotNil(t, client.httpClient)
	assert.NotNil(t, client.gate, "nil gate should fall back to the default")
	assert.Equal(t, log, client.logger)
	assert.Equal(t, 30*time.Second, client.httpClient.Timeout)
}

func TestFetchSendsAuthHeaders(t *testing.T) {
	var gotAuth, gotAccept string
	client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotAccept = r.Header.Get("Accept")
		json.NewEncoder(w).Encode(map[string]interface{}{"data": []interface{}{}})
	})

	res, _ := resource.Lookup("outlets")
	_, err := client.Fetch(context.Background(), res, nil)
	require.NoError(t, err)

	assert.Equal(t, "Bearer test-token", gotAuth)
	assert.Equal(t, "application/json", gotAccept)
}

func TestFetchNormalizesEnvelopes(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{
			name: "data key",
			body: `{"data": [{"id": "1"}, {"id": "2"}]}`,
			want: 2,
		},
		{
			name: "resource name key",
			body: `{"outlets": [{"id": "1"}]}`,
			want: 1,
		},
		{
			name: "bare array",
			body: `[{"id": "1"}, {"id": "2"}, {"id": "3"}]`,
			want: 3,
		},
		{
			name: "unknown envelope",
			body: `{"something_else": true}`,
			want: 0,
		},
		{
			name: "empty data",
			body: `{"data": []}`,
			want: 0,
		},
	}

	res, _ := resource.Lookup("outlets")

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.Write([]byte(tt.body))
			})

			records, err := client.Fetch(context.Background(), res, nil)
			require.NoError(t, err)
			assert.Len(t, records, tt.want)
		})
	}
}

func TestFetchParseError(t *testing.T) {
	client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>not json</html>"))
	})

	res, _ := resource.Lookup("outlets")
	records, err := client.Fetch(context.Background(), res, nil)
	assert.Nil(t, records)
	require.Error(t, err)

	var apiErr *errors.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, errors.ErrorTypeParsing, apiErr.Type)
	assert.Equal(t, "outlets", apiErr.Resource)
}

func TestFetchStatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		wantType   errors.ErrorType
	}{
		{"401 unauthorized", http.StatusUnauthorized, errors.ErrorTypeAuth},
		{"403 forbidden", http.StatusForbidden, errors.ErrorTypeAuth},
		{"404 not found", http.StatusNotFound, errors.ErrorTypeNotFound},
		{"429 rate limited", http.StatusTooManyRequests, errors.ErrorTypeRateLimit},
		{"500 server error", http.StatusInternalServerError, errors.ErrorTypeServerError},
		{"503 unavailable", http.StatusServiceUnavailable, errors.ErrorTypeServerError},
		{"418 unexpected", http.StatusTeapot, errors.ErrorTypeUnknown},
	}

	res, _ := resource.Lookup("sales")

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
			})

			_, err := client.Fetch(context.Background(), res, nil)
			require.Error(t, err)

			var apiErr *errors.Error
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.wantType, apiErr.Type)
			assert.Equal(t, tt.statusCode, apiErr.Code)
			assert.Equal(t, "sales", apiErr.Resource)
		})
	}
}

func TestFetchTransportError(t *testing.T) {
	// Server closed before the request fires.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	client := NewClient(server.URL, "token", 2*time.Second, openGate(), logger.NewTestLogger())

	res, _ := resource.Lookup("outlets")
	_, err := client.Fetch(context.Background(), res, nil)
	require.Error(t, err)

	var apiErr *errors.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, errors.ErrorTypeTransport, apiErr.Type)
	assert.True(t, errors.IsRetryableError(err))
}

func TestFetchDoesNotRetry(t *testing.T) {
	requests := 0
	client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusInternalServerError)
	})

	res, _ := resource.Lookup("outlets")
	_, err := client.Fetch(context.Background(), res, nil)
	require.Error(t, err)
	assert.Equal(t, 1, requests, "the client must leave retries to the caller")
}

func TestFetchCanceledWhileGated(t *testing.T) {
	requests := 0
	client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		requests++
		json.NewEncoder(w).Encode(map[string]interface{}{"data": []interface{}{}})
	})
	// One request per minute with the burst spent forces Wait to block.
	gate := ratelimit.NewTokenBucket(1.0/60.0, 1)
	gate.Allow()
	client.gate = gate

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	res, _ := resource.Lookup("outlets")
	_, err := client.Fetch(ctx, res, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, requests, "no request may leave the process while gated")
}

func TestFetchPassesParams(t *testing.T) {
	var gotQuery url.Values
	client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		json.NewEncoder(w).Encode(map[string]interface{}{"data": []interface{}{}})
	})

	params := url.Values{}
	params.Set("page", "3")
	params.Set("page_size", "200")

	res, _ := resource.Lookup("products")
	_, err := client.Fetch(context.Background(), res, params)
	require.NoError(t, err)

	assert.Equal(t, "3", gotQuery.Get("page"))
	assert.Equal(t, "200", gotQuery.Get("page_size"))
}
