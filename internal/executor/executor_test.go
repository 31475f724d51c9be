package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errPermanent = errors.New("gone for good")

func TestExecute_SucceedsFirstTry(t *testing.T) {
	calls := 0
	v, err := Execute(context.Background(), func(ctx context.Context) (int, error) {
		calls++
		return 42, nil
	}, WithBaseDelay(time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 1, calls)
}

func TestExecute_RetriesThenSucceeds(t *testing.T) {
	// Fails on attempts 0..3, succeeds on attempt 4 with the default budget
	// of five tries.
	calls := 0
	v, err := Execute(context.Background(), func(ctx context.Context) (string, error) {
		calls++
		if calls < 5 {
			return "", errors.New("transient")
		}
		return "done", nil
	}, WithBaseDelay(time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, "done", v)
	assert.Equal(t, 5, calls)
}

func TestExecute_ExhaustsBudgetAndSurfacesLastError(t *testing.T) {
	calls := 0
	last := errors.New("still broken")
	_, err := Execute(context.Background(), func(ctx context.Context) (int, error) {
		calls++
		if calls < DefaultMaxAttempts {
			return 0, errors.New("earlier failure")
		}
		return 0, last
	}, WithBaseDelay(time.Millisecond))
	require.ErrorIs(t, err, last)
	assert.Equal(t, DefaultMaxAttempts, calls)
}

func TestExecute_PermanentErrorSkipsRetries(t *testing.T) {
	calls := 0
	_, err := Execute(context.Background(), func(ctx context.Context) (int, error) {
		calls++
		return 0, errPermanent
	}, WithBaseDelay(time.Millisecond), WithPermanent(errPermanent))
	require.ErrorIs(t, err, errPermanent)
	assert.Equal(t, 1, calls)
}

func TestExecute_PermanentMatchesWrappedErrors(t *testing.T) {
	calls := 0
	wrapped := errors.Join(errors.New("context"), errPermanent)
	_, err := Execute(context.Background(), func(ctx context.Context) (int, error) {
		calls++
		return 0, wrapped
	}, WithBaseDelay(time.Millisecond), WithPermanent(errPermanent))
	require.ErrorIs(t, err, errPermanent)
	assert.Equal(t, 1, calls)
}

func TestExecute_MaxAttemptsOption(t *testing.T) {
	calls := 0
	_, err := Execute(context.Background(), func(ctx context.Context) (int, error) {
		calls++
		return 0, errors.New("nope")
	}, WithBaseDelay(time.Millisecond), WithMaxAttempts(2))
	require.Error(t, err)
	assert.Equal(t, 2, calls)
}

func TestStepBackoff_DoublesWithBoundedJitter(t *testing.T) {
	b := &stepBackoff{base: time.Second}
	for attempt := 0; attempt < 4; attempt++ {
		d := b.NextBackOff()
		lo := time.Duration(1<<attempt) * time.Second
		hi := lo + time.Second
		assert.GreaterOrEqual(t, d, lo, "attempt %d", attempt)
		assert.Less(t, d, hi, "attempt %d", attempt)
	}
	b.Reset()
	assert.Less(t, b.NextBackOff(), 2*time.Second)
}
