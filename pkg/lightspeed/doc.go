// Package lightspeed provides a client for the Lightspeed X-Series API.
//
// This package includes:
//   - A rate-gated HTTP client with bearer authentication and typed errors
//   - A batch stream for pulling collections page by page or all at once
//   - Response envelope normalization across the API's varying shapes
//
// Example usage:
//
//	gate := ratelimit.NewTokenBucket(5, 1)
//	client := lightspeed.NewClient(lightspeed.BaseURL("mystore.retail.lightspeed.app"),
//	    token, 120*time.Second, gate, log)
//
//	res, _ := resource.Lookup("customers")
//	stream := lightspeed.NewStream(client, res, lightspeed.StreamOptions{
//	    Monolithic: true,
//	})
//	for stream.Next(ctx) {
//	    batch := stream.Batch()
//	    // write batch.Records before asking for the next batch
//	}
//	if err := stream.Err(); err != nil {
//	    // the stream stopped early
//	}
package lightspeed
