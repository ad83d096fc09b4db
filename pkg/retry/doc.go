// Package retry provides exponential backoff and retry logic for handling
// transient failures when fetching resources from the Lightspeed API.
//
// Features:
//   - Exponential and constant backoff strategies
//   - Jitter to avoid thundering herd problems
//   - Context support for cancellation
//   - Configurable retry predicates
//   - Integration with the exporter's typed errors
//
// Basic usage:
//
//	// Simple retry with defaults
//	err := retry.Do(func() error {
//		_, err := client.Fetch(ctx, res, nil)
//		return err
//	}, nil)
//
//	// Custom configuration
//	cfg := &retry.Config{
//		MaxAttempts: 3,
//		Backoff: &retry.ExponentialBackoff{
//			BaseDelay:    2 * time.Second,
//			MaxDelay:     30 * time.Second,
//			Multiplier:   2.0,
//			JitterFactor: 0.1,
//		},
//		RetryIf: retry.DefaultRetryIf,
//		Logger:  logger.GetLogger(),
//	}
//	err := retry.Do(operation, cfg)
//
// Error Type Handling:
//
// The default predicate retries transport, rate limit and server errors.
// Auth, not-found and parsing errors fail immediately, as do cancellations
// and errors that carry no type information.
package retry
