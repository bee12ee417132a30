package llm

import (
	"context"
	"time"
)

// RetryPolicy bounds CallWithRetry.
type RetryPolicy struct {
	// Attempts is the maximum number of provider calls (minimum 1).
	Attempts int
	// BaseDelay is the sleep after the first failure; it doubles each attempt.
	BaseDelay time.Duration
}

// CallWithRetry calls c up to p.Attempts times with exponential backoff.
// Every failure is retried regardless of kind. On exhaustion it returns the
// last error unchanged, together with the number of calls performed.
func CallWithRetry(ctx context.Context, c Client, req *Request, p RetryPolicy) (*Response, int, error) {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	delay := p.BaseDelay

	var lastErr error
	for i := 1; i <= attempts; i++ {
		resp, err := c.Call(ctx, req)
		if err == nil {
			return resp, i, nil
		}
		lastErr = err
		if i == attempts {
			break
		}
		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, i, lastErr
			case <-timer.C:
			}
			delay *= 2
		}
	}
	return nil, attempts, lastErr
}
