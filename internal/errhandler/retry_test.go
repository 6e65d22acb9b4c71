package errhandler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Iron-Ham/devcrew/internal/errors"
)

func TestRetry(t *testing.T) {
	transient := errors.NewTimeoutError("call", time.Millisecond)
	permanent := errors.NewValidationError("bad input")

	tests := []struct {
		name      string
		failures  int
		err       error
		wantCalls int
		wantErr   error
	}{
		{"succeeds first time", 0, transient, 1, nil},
		{"recovers after transient failures", 2, transient, 3, nil},
		{"gives up after max retries", 10, transient, 4, errors.ErrTimeout},
		{"permanent error not retried", 10, permanent, 1, errors.ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := New(Config{MaxRetries: 3})
			calls := 0
			err := h.Retry(context.Background(), "op", func(context.Context) error {
				calls++
				if calls <= tt.failures {
					return tt.err
				}
				return nil
			})

			assert.Equal(t, tt.wantCalls, calls)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestRetry_ContextCanceled(t *testing.T) {
	h := New(Config{MaxRetries: 3, RetryDelay: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := h.Retry(ctx, "op", func(context.Context) error {
		calls++
		return errors.NewTimeoutError("op", time.Second)
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestRetry_WaitsBetweenAttempts(t *testing.T) {
	h := New(Config{MaxRetries: 2, RetryDelay: 10 * time.Millisecond})

	var waits []time.Duration
	h.sleep = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}

	_ = h.Retry(context.Background(), "op", func(context.Context) error {
		return errors.NewHTTPStatusError(503, "")
	})

	assert.Equal(t, []time.Duration{10 * time.Millisecond, 10 * time.Millisecond}, waits)
}
