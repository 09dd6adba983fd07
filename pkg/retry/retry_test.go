package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func noSleep(context.Context, time.Duration) error { return nil }

func TestDo_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	var retried []int

	err := Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("dial tcp: connection refused")
		}
		return nil
	},
		WithMaxAttempts(5),
		WithOnRetry(func(attempt int, _ error, _ time.Duration) { retried = append(retried, attempt) }),
		withSleep(noSleep),
	)

	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retried)
}

func TestDo_ReturnsLastErrorWhenExhausted(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func(context.Context) error {
		calls++
		return errors.New("still down")
	}, WithMaxAttempts(3), withSleep(noSleep))

	assert.EqualError(t, err, "still down")
	assert.Equal(t, 3, calls)
}

func TestDo_PermanentStopsImmediately(t *testing.T) {
	bad := errors.New("invalid DSN")
	calls := 0

	err := Do(context.Background(), func(context.Context) error {
		calls++
		return Permanent(bad)
	}, withSleep(noSleep))

	assert.ErrorIs(t, err, bad)
	assert.False(t, IsPermanent(err))
	assert.Equal(t, 1, calls)
}

func TestDo_StopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Do(ctx, func(context.Context) error { return nil })

	assert.ErrorIs(t, err, context.Canceled)
}

func TestDoWithData(t *testing.T) {
	v, err := DoWithData(context.Background(), func(context.Context) (int, error) { return 42, nil })

	assert.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestBackoff_Capped(t *testing.T) {
	cfg := DefaultConfig()
	cfg.JitterFactor = 0
	cfg.InitialDelay = time.Second
	cfg.MaxDelay = 3 * time.Second

	assert.Equal(t, time.Second, backoff(cfg, 1))
	assert.Equal(t, 2*time.Second, backoff(cfg, 2))
	assert.Equal(t, 3*time.Second, backoff(cfg, 3))
	assert.Equal(t, 3*time.Second, backoff(cfg, 10))
}
