// Package retry provides backoff and retry logic for transient failures
// while reaching the browser, such as a DevTools endpoint that is still
// starting up.
//
// Basic usage:
//
//	err := retry.Do(ctx, func() error {
//		return browser.Connect()
//	}, &retry.Config{
//		MaxAttempts: 3,
//		Backoff:     retry.ConnectBackoff(),
//	})
//
// Parameter errors and context cancellation are never retried.
package retry
