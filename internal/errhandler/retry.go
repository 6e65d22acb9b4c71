package errhandler

import (
	"context"
	"time"

	"github.com/Iron-Ham/devcrew/internal/errors"
)

// Retry runs fn and re-runs it while it fails with a retryable error, up to
// MaxRetries additional attempts spaced RetryDelay apart. It returns the last
// error, or the context error if ctx ends while waiting.
func (h *Handler) Retry(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	err := fn(ctx)
	if err == nil || !errors.IsRetryable(err) {
		return err
	}
	return h.retryAfterFailure(ctx, operation, fn, err)
}

// retryAfterFailure re-runs fn, which has already failed with err.
func (h *Handler) retryAfterFailure(ctx context.Context, operation string, fn func(ctx context.Context) error, err error) error {
	for attempt := 1; attempt <= h.cfg.MaxRetries; attempt++ {
		if serr := h.sleep(ctx, h.cfg.RetryDelay); serr != nil {
			return serr
		}
		h.logger.Debug("retrying operation", "operation", operation, "attempt", attempt, "max", h.cfg.MaxRetries)
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if !errors.IsRetryable(err) {
			return err
		}
	}
	return errors.Wrapf(err, "%s: gave up after %d retries", operation, h.cfg.MaxRetries)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
