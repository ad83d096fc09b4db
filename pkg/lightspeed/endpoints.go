package lightspeed

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	// APIVersion is the X-Series API version all endpoints live under.
	APIVersion = "2.0"

	// DefaultRequestsPerSecond is the documented API rate ceiling.
	DefaultRequestsPerSecond = 5

	// DefaultPageSize is the page size used in paged mode. Most endpoints
	// cap pages at this value.
	DefaultPageSize = 200

	// MonolithicPageSize asks for the entire collection in one response.
	// Several X-Series endpoints return inconsistent page boundaries, so
	// the default strategy is a single oversized request.
	MonolithicPageSize = 50000
)

// BaseURL builds the API root for a retailer domain, accepting the domain
// with or without a scheme. A bare store prefix expands to the full
// retail.lightspeed.app domain.
func BaseURL(domain string) string {
	domain = strings.TrimPrefix(domain, "https://")
	domain = strings.TrimPrefix(domain, "http://")
	domain = strings.TrimSuffix(domain, "/")
	if domain != "" && !strings.Contains(domain, ".") {
		domain += ".retail.lightspeed.app"
	}
	return fmt.Sprintf("https://%s/api/%s", domain, APIVersion)
}

// CollectionURL builds the URL for a resource collection endpoint.
func CollectionURL(baseURL, resourceName string, params url.Values) string {
	endpoint := fmt.Sprintf("%s/%s", strings.TrimSuffix(baseURL, "/"), resourceName)
	if len(params) == 0 {
		return endpoint
	}
	return endpoint + "?" + params.Encode()
}
