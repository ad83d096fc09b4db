package lightspeed

import (
	"fmt"

	"github.com/workingman/BCP-data-warehouse/pkg/resource"
)

// extractRecords unwraps a response body into records. The X-Series API is
// not uniform about envelopes, so the declared payload key is tried first,
// then the common "data" key, then a key matching the resource name, and
// finally the body itself as a bare array. An object with none of those keys
// normalizes to zero records rather than an error.
func extractRecords(body []byte, res resource.Resource) ([]Record, error) {
	payload, err := decodeEnvelope(body)
	if err != nil {
		return nil, err
	}

	switch v := payload.(type) {
	case []interface{}:
		return toRecords(v), nil

	case map[string]interface{}:
		for _, key := range payloadKeys(res) {
			if raw, ok := v[key]; ok {
				arr, ok := raw.([]interface{})
				if !ok {
					return nil, fmt.Errorf("envelope key %q is not an array", key)
				}
				return toRecords(arr), nil
			}
		}
		return nil, nil

	case nil:
		return nil, nil

	default:
		return nil, fmt.Errorf("unexpected payload of type %T", payload)
	}
}

// payloadKeys lists envelope keys to probe, most specific first.
func payloadKeys(res resource.Resource) []string {
	keys := make([]string, 0, 3)
	if res.PayloadKey != "" {
		keys = append(keys, res.PayloadKey)
	}
	if res.PayloadKey != "data" {
		keys = append(keys, "data")
	}
	if res.Name != "" && res.Name != res.PayloadKey {
		keys = append(keys, res.Name)
	}
	return keys
}

func toRecords(items []interface{}) []Record {
	records := make([]Record, 0, len(items))
	for _, item := range items {
		if m, ok := item.(map[string]interface{}); ok {
			records = append(records, Record(m))
		}
	}
	return records
}
