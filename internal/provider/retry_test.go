package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy() *RetryPolicy {
	return &RetryPolicy{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func TestRetryWithBackoff_SucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	err := RetryWithBackoff(context.Background(), fastPolicy(), func() error {
		attempts++
		if attempts < 3 {
			return errors.New("request throttled")
		}
		return nil
	}, IsTransient)

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryWithBackoff_PermanentErrorNotRetried(t *testing.T) {
	permanent := errors.New("access denied")
	attempts := 0
	err := RetryWithBackoff(context.Background(), fastPolicy(), func() error {
		attempts++
		return permanent
	}, IsTransient)

	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, attempts)
}

func TestRetryWithBackoff_GivesUpAfterMaxRetries(t *testing.T) {
	attempts := 0
	err := RetryWithBackoff(context.Background(), fastPolicy(), func() error {
		attempts++
		return errors.New("rate exceeded")
	}, IsTransient)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "max retries")
	assert.Equal(t, 4, attempts) // initial try plus three retries
}

func TestRetryWithBackoff_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := RetryWithBackoff(ctx, fastPolicy(), func() error {
		return errors.New("request throttled")
	}, IsTransient)

	assert.ErrorIs(t, err, context.Canceled)
}

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(errors.New("Throttling: rate exceeded")))
	assert.True(t, IsTransient(errors.New("read tcp: connection reset by peer")))
	assert.False(t, IsTransient(errors.New("InvalidParameterValue: bad cidr")))
	assert.False(t, IsTransient(nil))
}

func TestErrorTaxonomy(t *testing.T) {
	wrapped := &Error{Code: "ValidationError", Message: "bad input", Err: errors.New("api failure")}
	assert.Contains(t, wrapped.Error(), "ValidationError")
	assert.EqualError(t, errors.Unwrap(wrapped), "api failure")
}
