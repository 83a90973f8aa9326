package common

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/autobudgeter/internal/service"
)

func fastRetry(attempts int) service.RetryOptions {
	return service.RetryOptions{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     2 * time.Millisecond,
		Multiplier:   2,
	}
}

func TestWithRetry(t *testing.T) {
	transient := errors.New("transient")

	tests := []struct {
		wantErr   error
		results   []error
		name      string
		wantCalls int
	}{
		{name: "first attempt succeeds", results: []error{nil}, wantCalls: 1},
		{name: "succeeds after retries", results: []error{transient, transient, nil}, wantCalls: 3},
		{
			name:      "non-retryable stops immediately",
			results:   []error{&RetryableError{Err: transient, Retryable: false}},
			wantCalls: 1,
			wantErr:   transient,
		},
		{
			name:      "exhausts attempts",
			results:   []error{transient, transient, transient},
			wantCalls: 3,
			wantErr:   ErrMaxRetries,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := WithRetry(context.Background(), func() error {
				result := tt.results[calls]
				calls++
				return result
			}, fastRetry(3))

			assert.Equal(t, tt.wantCalls, calls)
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestWithRetryKeepsLastError(t *testing.T) {
	upstream := NewUpstreamError("simplefin", 503, errors.New("unavailable"))

	err := WithRetry(context.Background(), func() error { return upstream }, fastRetry(2))

	require.ErrorIs(t, err, ErrMaxRetries)
	var upErr *UpstreamError
	require.ErrorAs(t, err, &upErr)
	assert.Equal(t, 503, upErr.StatusCode)
	assert.Equal(t, "upstream", Kind(err))
}

func TestWithRetryCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	opts := service.RetryOptions{MaxAttempts: 5, InitialDelay: time.Hour, MaxDelay: time.Hour, Multiplier: 2}

	calls := 0
	err := WithRetry(ctx, func() error {
		calls++
		cancel()
		return errors.New("transient")
	}, opts)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
