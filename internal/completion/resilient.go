package completion

import (
	"context"
	"log/slog"
	"time"

	"github.com/ent0n29/audiodiary/internal/reliability"
)

const (
	retryBaseDelay = 250 * time.Millisecond
	retryMaxDelay  = 4 * time.Second
)

// Resilient bounds every attempt with a timeout and retries retryable
// failures up to maxRetries times.
type Resilient struct {
	next       Gateway
	timeout    time.Duration
	maxRetries int
	sleep      func(context.Context, time.Duration) error
}

func NewResilient(next Gateway, timeout time.Duration, maxRetries int) *Resilient {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Resilient{
		next:       next,
		timeout:    timeout,
		maxRetries: maxRetries,
		sleep:      sleepContext,
	}
}

func (r *Resilient) Complete(ctx context.Context, req Request) (Response, error) {
	var lastErr error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if attempt > 0 {
			delay := reliability.ExponentialBackoff(attempt-1, retryBaseDelay, retryMaxDelay)
			slog.WarnContext(ctx, "retrying completion",
				"kind", req.Kind,
				"session_id", req.SessionID,
				"attempt", attempt,
				"delay", delay,
				"error", lastErr,
			)
			if err := r.sleep(ctx, delay); err != nil {
				return Response{}, lastErr
			}
		}

		resp, err := r.attempt(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if ctx.Err() != nil || !reliability.IsRetryable(err) {
			break
		}
	}
	return Response{}, lastErr
}

func (r *Resilient) attempt(ctx context.Context, req Request) (Response, error) {
	if r.timeout <= 0 {
		return r.next.Complete(ctx, req)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.next.Complete(attemptCtx, req)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
