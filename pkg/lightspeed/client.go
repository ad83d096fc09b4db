package lightspeed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/workingman/BCP-data-warehouse/pkg/errors"
	"github.com/workingman/BCP-data-warehouse/pkg/logger"
	"github.com/workingman/BCP-data-warehouse/pkg/ratelimit"
	"github.com/workingman/BCP-data-warehouse/pkg/resource"
)

// Record is one raw API record. The upstream schema varies per resource and
// per account, so records stay schemaless until an output writer shapes them.
type Record map[string]interface{}

// Client talks to the Lightspeed X-Series API. Every request passes the
// shared rate gate before leaving the process, and failures come back as
// typed *errors.Error values carrying the resource name. The client itself
// never retries; retry policy belongs to the caller.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	gate       ratelimit.Limiter
	logger     logger.Logger
}

// NewClient creates a Lightspeed API client. The gate is shared across all
// callers so the per-second ceiling holds process-wide; a nil gate gets the
// documented default of 5 requests per second.
func NewClient(baseURL, token string, timeout time.Duration, gate ratelimit.Limiter, log logger.Logger) *Client {
	if log == nil {
		log = logger.GetLogger()
	}
	if gate == nil {
		gate = ratelimit.NewTokenBucket(DefaultRequestsPerSecond, 1)
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: baseURL,
		token:   token,
		gate:    gate,
		logger:  log,
	}
}

// Fetch retrieves one page (or the whole collection, in monolithic mode) of
// a resource and normalizes the response envelope into records.
func (c *Client) Fetch(ctx context.Context, res resource.Resource, params url.Values) ([]Record, error) {
	reqURL := CollectionURL(c.baseURL, res.Name, params)

	c.logger.DebugWithFields("fetching resource", map[string]interface{}{
		"resource": res.Name,
		"url":      reqURL,
	})

	body, err := c.get(ctx, res.Name, reqURL)
	if err != nil {
		return nil, err
	}

	records, err := extractRecords(body, res)
	if err != nil {
		preview := string(body)
		if len(preview) > 200 {
			preview = preview[:200] + "..."
		}
		c.logger.ErrorWithFields("failed to parse API response", map[string]interface{}{
			"resource":     res.Name,
			"url":          reqURL,
			"error":        err.Error(),
			"body_preview": preview,
		})
		return nil, &errors.Error{
			Type:     errors.ErrorTypeParsing,
			Resource: res.Name,
			Message:  fmt.Sprintf("failed to parse response: %v", err),
		}
	}

	return records, nil
}

// get performs a single rate-gated GET and returns the response body.
// Cancellation is honored while queued at the gate; once a request is
// dispatched it runs to completion, bounded only by the client timeout, so
// records already fetched are never discarded mid-flight.
func (c *Client) get(ctx context.Context, resourceName, reqURL string) ([]byte, error) {
	if err := c.gate.Wait(ctx); err != nil {
		// Cancellation while queued for budget is not an API failure.
		return nil, err
	}

	req, err := http.NewRequest(http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, &errors.Error{
			Type:     errors.ErrorTypeUnknown,
			Resource: resourceName,
			Message:  fmt.Sprintf("failed to create request: %v", err),
		}
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)

	if err != nil {
		c.logger.ErrorWithFields("HTTP request failed", map[string]interface{}{
			"resource": resourceName,
			"url":      reqURL,
			"error":    err.Error(),
			"duration": duration,
		})
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &errors.Error{
			Type:     errors.ErrorTypeTransport,
			Resource: resourceName,
			Message:  fmt.Sprintf("request failed: %v", err),
			Err:      err,
		}
	}
	defer resp.Body.Close()

	c.logger.DebugWithFields("HTTP request completed", map[string]interface{}{
		"resource": resourceName,
		"status":   resp.StatusCode,
		"duration": duration,
	})

	if err := c.checkResponseStatus(resourceName, resp); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &errors.Error{
			Type:     errors.ErrorTypeTransport,
			Resource: resourceName,
			Message:  fmt.Sprintf("failed to read response body: %v", err),
			Code:     resp.StatusCode,
			Err:      err,
		}
	}

	return body, nil
}

// checkResponseStatus maps non-2xx statuses to typed errors.
func (c *Client) checkResponseStatus(resourceName string, resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil

	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		c.logger.WarnWithFields("authentication rejected", map[string]interface{}{
			"resource": resourceName,
			"status":   resp.StatusCode,
		})
		return &errors.Error{
			Type:     errors.ErrorTypeAuth,
			Resource: resourceName,
			Message:  "authentication rejected, check the access token",
			Code:     resp.StatusCode,
		}

	case resp.StatusCode == http.StatusNotFound:
		c.logger.WarnWithFields("endpoint not found", map[string]interface{}{
			"resource": resourceName,
			"status":   resp.StatusCode,
		})
		return &errors.Error{
			Type:     errors.ErrorTypeNotFound,
			Resource: resourceName,
			Message:  "endpoint not found, it may not be enabled for this account",
			Code:     resp.StatusCode,
		}

	case resp.StatusCode == http.StatusTooManyRequests:
		c.logger.WarnWithFields("rate limit exceeded", map[string]interface{}{
			"resource": resourceName,
			"status":   resp.StatusCode,
		})
		return &errors.Error{
			Type:     errors.ErrorTypeRateLimit,
			Resource: resourceName,
			Message:  "rate limit exceeded",
			Code:     resp.StatusCode,
		}

	case resp.StatusCode >= 500:
		c.logger.ErrorWithFields("server error", map[string]interface{}{
			"resource": resourceName,
			"status":   resp.StatusCode,
		})
		return &errors.Error{
			Type:     errors.ErrorTypeServerError,
			Resource: resourceName,
			Message:  fmt.Sprintf("server returned status %d", resp.StatusCode),
			Code:     resp.StatusCode,
		}

	default:
		c.logger.ErrorWithFields("unexpected API response", map[string]interface{}{
			"resource": resourceName,
			"status":   resp.StatusCode,
		})
		return &errors.Error{
			Type:     errors.ErrorTypeUnknown,
			Resource: resourceName,
			Message:  fmt.Sprintf("unexpected status code %d", resp.StatusCode),
			Code:     resp.StatusCode,
		}
	}
}

// decodeEnvelope unmarshals a response body without shaping it, used by the
// normalizer and tests.
func decodeEnvelope(body []byte) (interface{}, error) {
	var payload interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}
