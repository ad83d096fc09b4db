package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/workingman/BCP-data-warehouse/pkg/errors"
	"github.com/workingman/BCP-data-warehouse/pkg/lightspeed"
	"github.com/workingman/BCP-data-warehouse/pkg/ratelimit"
	"github.com/workingman/BCP-data-warehouse/pkg/resource"
)

// envelope mirrors the API response shape the mock serves.
type envelope struct {
	Data []map[string]interface{} `json:"data"`
}

// authorizedGet performs a GET with the shared test token.
func authorizedGet(t *testing.T, url string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("Failed to build request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+testToken)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	return resp
}

// decodeEnvelope decodes and closes a mock response body.
func decodeEnvelope(t *testing.T, resp *http.Response) envelope {
	t.Helper()
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return env
}

// TestMockServerFunctionality tests that the mock server works correctly
func TestMockServerFunctionality(t *testing.T) {
	helper := NewTestHelper(t)
	defer helper.Cleanup()

	mockServer := helper.SetupMockServer()
	mockServer.SeedResource("products", 5)

	resp := authorizedGet(t, mockServer.GetURL()+"/products")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	env := decodeEnvelope(t, resp)
	if len(env.Data) != 5 {
		t.Fatalf("Expected 5 records, got %d", len(env.Data))
	}
	if env.Data[0]["id"] != "products-1" {
		t.Errorf("Expected first id products-1, got %v", env.Data[0]["id"])
	}

	if mockServer.CallCount("products") != 1 {
		t.Errorf("Expected 1 recorded call, got %d", mockServer.CallCount("products"))
	}
}

// TestMockServerRequiresToken verifies requests without the personal token
// are rejected.
func TestMockServerRequiresToken(t *testing.T) {
	helper := NewTestHelper(t)
	defer helper.Cleanup()

	mockServer := helper.SetupMockServer()
	mockServer.SeedResource("outlets", 1)

	resp, err := http.Get(mockServer.GetURL() + "/outlets")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", resp.StatusCode)
	}
}

// TestMockServerPaging verifies the page and page_size arithmetic.
func TestMockServerPaging(t *testing.T) {
	helper := NewTestHelper(t)
	defer helper.Cleanup()

	mockServer := helper.SetupMockServer()
	mockServer.SeedResource("products", 250)

	cases := []struct {
		page    int
		want    int
		firstID string
	}{
		{page: 1, want: 100, firstID: "products-1"},
		{page: 2, want: 100, firstID: "products-101"},
		{page: 3, want: 50, firstID: "products-201"},
		{page: 4, want: 0},
	}

	for _, tc := range cases {
		url := fmt.Sprintf("%s/products?page=%d&page_size=100", mockServer.GetURL(), tc.page)
		env := decodeEnvelope(t, authorizedGet(t, url))

		if len(env.Data) != tc.want {
			t.Errorf("Page %d: expected %d records, got %d", tc.page, tc.want, len(env.Data))
			continue
		}
		if tc.want > 0 && env.Data[0]["id"] != tc.firstID {
			t.Errorf("Page %d: expected first id %s, got %v", tc.page, tc.firstID, env.Data[0]["id"])
		}
	}
}

// TestMockServerUnknownResource verifies unseeded resources return 404, the
// way the real API answers for endpoints not enabled on an account.
func TestMockServerUnknownResource(t *testing.T) {
	helper := NewTestHelper(t)
	defer helper.Cleanup()

	mockServer := helper.SetupMockServer()

	resp := authorizedGet(t, mockServer.GetURL()+"/gift_cards")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", resp.StatusCode)
	}
}

// TestErrorSimulation tests error simulation functionality
func TestErrorSimulation(t *testing.T) {
	helper := NewTestHelper(t)
	defer helper.Cleanup()

	mockServer := helper.SetupMockServer()
	mockServer.SeedResource("sales", 3)

	mockServer.SetErrorResponse("sales", http.StatusInternalServerError)

	resp := authorizedGet(t, mockServer.GetURL()+"/sales")
	resp.Body.Close()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("Expected status 500, got %d", resp.StatusCode)
	}

	// Clear error and test again
	mockServer.ClearErrorResponse("sales")

	resp2 := authorizedGet(t, mockServer.GetURL()+"/sales")
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusOK {
		t.Errorf("Expected error to be cleared, got status %d", resp2.StatusCode)
	}
}

// TestRateLimitingBehavior tests the mock server's opt-in rate limiting
func TestRateLimitingBehavior(t *testing.T) {
	helper := NewTestHelper(t)
	defer helper.Cleanup()

	mockServer := helper.SetupMockServer()
	mockServer.SeedResource("customers", 1)
	mockServer.RateLimitEvery(5)
	mockServer.ResetCounters()

	// Requests 5 and 10 hit the limiter.
	var rateLimited int
	for i := 1; i <= 10; i++ {
		resp := authorizedGet(t, mockServer.GetURL()+"/customers")
		if resp.StatusCode == http.StatusTooManyRequests {
			rateLimited++
			if retryAfter := resp.Header.Get("Retry-After"); retryAfter == "" {
				t.Error("Expected Retry-After header on 429 response")
			}
		}
		resp.Body.Close()
	}

	if rateLimited != 2 {
		t.Errorf("Expected 2 rate limited responses, got %d", rateLimited)
	}
	if mockServer.GetRateLimitHits() != 2 {
		t.Errorf("Expected 2 recorded rate limit hits, got %d", mockServer.GetRateLimitHits())
	}
}

// TestClientAgainstMockServer exercises the API client end to end against
// the mock: fetch, auth failure, missing endpoint, rate limit, server error.
func TestClientAgainstMockServer(t *testing.T) {
	helper := NewTestHelper(t)
	defer helper.Cleanup()

	mockServer := helper.SetupMockServer()
	mockServer.SeedResource("products", 7)

	gate := ratelimit.NewTokenBucket(1000, 1000)
	client := lightspeed.NewClient(mockServer.GetURL(), testToken, 5*time.Second, gate, helper.CreateTestLogger())

	products, ok := resource.Lookup("products")
	if !ok {
		t.Fatal("products missing from resource catalog")
	}

	t.Run("fetch", func(t *testing.T) {
		records, err := client.Fetch(context.Background(), products, nil)
		helper.AssertNoError(err)
		helper.AssertEqual(7, len(records))
		helper.AssertEqual("products-1", records[0]["id"])
	})

	t.Run("endpoint not enabled", func(t *testing.T) {
		giftCards, ok := resource.Lookup("gift_cards")
		if !ok {
			t.Fatal("gift_cards missing from resource catalog")
		}

		_, err := client.Fetch(context.Background(), giftCards, nil)
		helper.AssertError(err)

		apiErr, ok := errors.AsError(err)
		if !ok {
			t.Fatalf("Expected a typed API error, got %v", err)
		}
		helper.AssertEqual(errors.ErrorTypeNotFound, apiErr.Type)
		helper.AssertEqual(http.StatusNotFound, apiErr.Code)
		helper.AssertEqual("gift_cards", apiErr.Resource)
		if errors.IsRetryableError(err) {
			t.Error("Missing endpoint should not be retryable")
		}
	})

	t.Run("auth rejected", func(t *testing.T) {
		badClient := lightspeed.NewClient(mockServer.GetURL(), "wrong-token", 5*time.Second, gate, helper.CreateTestLogger())

		_, err := badClient.Fetch(context.Background(), products, nil)
		helper.AssertError(err)

		apiErr, ok := errors.AsError(err)
		if !ok {
			t.Fatalf("Expected a typed API error, got %v", err)
		}
		helper.AssertEqual(errors.ErrorTypeAuth, apiErr.Type)
		helper.AssertEqual(http.StatusUnauthorized, apiErr.Code)
		if errors.IsRetryableError(err) {
			t.Error("Auth failure should not be retryable")
		}
	})

	t.Run("server error is retryable", func(t *testing.T) {
		mockServer.SetErrorResponse("products", http.StatusInternalServerError)
		defer mockServer.ClearErrorResponse("products")

		_, err := client.Fetch(context.Background(), products, nil)
		helper.AssertError(err)

		apiErr, ok := errors.AsError(err)
		if !ok {
			t.Fatalf("Expected a typed API error, got %v", err)
		}
		helper.AssertEqual(errors.ErrorTypeServerError, apiErr.Type)
		if !errors.IsRetryableError(err) {
			t.Error("Server error should be retryable")
		}
	})

	t.Run("rate limited is retryable", func(t *testing.T) {
		mockServer.SetErrorResponse("products", http.StatusTooManyRequests)
		defer mockServer.ClearErrorResponse("products")

		_, err := client.Fetch(context.Background(), products, nil)
		helper.AssertError(err)

		apiErr, ok := errors.AsError(err)
		if !ok {
			t.Fatalf("Expected a typed API error, got %v", err)
		}
		helper.AssertEqual(errors.ErrorTypeRateLimit, apiErr.Type)
		if !errors.IsRetryableError(err) {
			t.Error("Rate limit should be retryable")
		}
	})
}
