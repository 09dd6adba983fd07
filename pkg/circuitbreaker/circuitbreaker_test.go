package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func fail(context.Context) error    { return errBoom }
func succeed(context.Context) error { return nil }

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	cb := New("test", WithFailureThreshold(2), WithTimeout(time.Minute), withClock(clock.now))

	assert.ErrorIs(t, cb.Execute(context.Background(), fail), errBoom)
	assert.Equal(t, StateClosed, cb.State())

	assert.ErrorIs(t, cb.Execute(context.Background(), fail), errBoom)
	assert.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Execute(context.Background(), func(context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.True(t, IsRejected(err))
	assert.False(t, called)
	assert.Equal(t, 1, cb.Status().Counts.Rejected)
}

func TestCircuitBreaker_HalfOpenRecovers(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	cb := New("test",
		WithFailureThreshold(1),
		WithSuccessThreshold(1),
		WithTimeout(time.Minute),
		withClock(clock.now),
	)

	require.Error(t, cb.Execute(context.Background(), fail))
	require.Equal(t, StateOpen, cb.State())

	clock.advance(time.Minute)

	require.NoError(t, cb.Execute(context.Background(), succeed))
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	cb := New("test", WithFailureThreshold(1), WithTimeout(time.Second), withClock(clock.now))

	require.Error(t, cb.Execute(context.Background(), fail))
	clock.advance(time.Second)

	require.Error(t, cb.Execute(context.Background(), fail))
	assert.Equal(t, StateOpen, cb.State())
	assert.Equal(t, clock.t, cb.Status().OpenedAt)
}

func TestCircuitBreaker_SequentialHalfOpenCallsClose(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	cb := New("test", WithFailureThreshold(1), WithTimeout(time.Minute), withClock(clock.now))

	require.Error(t, cb.Execute(context.Background(), fail))
	clock.advance(time.Minute)

	// Default success threshold is 2 with one call at a time.
	require.NoError(t, cb.Execute(context.Background(), succeed))
	assert.Equal(t, StateHalfOpen, cb.State())

	require.NoError(t, cb.Execute(context.Background(), succeed))
	assert.Equal(t, StateClosed, cb.State())

	for i := 0; i < 5; i++ {
		assert.NoError(t, cb.Execute(context.Background(), succeed))
	}
	assert.Zero(t, cb.Status().Counts.Rejected)
}

func TestCircuitBreaker_HalfOpenCapsCallsInFlight(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	cb := New("test", WithFailureThreshold(1), WithTimeout(time.Minute), withClock(clock.now))

	require.Error(t, cb.Execute(context.Background(), fail))
	clock.advance(time.Minute)

	var inner error
	err := cb.Execute(context.Background(), func(ctx context.Context) error {
		inner = cb.Execute(ctx, succeed)
		return nil
	})

	require.NoError(t, err)
	assert.ErrorIs(t, inner, ErrTooManyRequests)
	assert.Equal(t, StateHalfOpen, cb.State())

	require.NoError(t, cb.Execute(context.Background(), succeed))
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_StaleCallDoesNotFreeSlot(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	cb := New("test", WithFailureThreshold(1), WithTimeout(time.Minute), withClock(clock.now))
	ctx := context.Background()

	blockingCall := func() (started chan struct{}, release chan struct{}, done chan error) {
		started, release, done = make(chan struct{}), make(chan struct{}), make(chan error, 1)
		go func() {
			done <- cb.Execute(ctx, func(context.Context) error {
				close(started)
				<-release
				return nil
			})
		}()
		return started, release, done
	}

	require.Error(t, cb.Execute(ctx, fail))
	clock.advance(time.Minute)

	oldStarted, oldRelease, oldDone := blockingCall()
	<-oldStarted

	// Reopen and enter a new half-open period while the old call runs.
	cb.Reset()
	require.Error(t, cb.Execute(ctx, fail))
	clock.advance(time.Minute)

	newStarted, newRelease, newDone := blockingCall()
	<-newStarted

	close(oldRelease)
	require.NoError(t, <-oldDone)

	assert.ErrorIs(t, cb.Execute(ctx, succeed), ErrTooManyRequests)

	close(newRelease)
	require.NoError(t, <-newDone)
}

func TestCircuitBreaker_IgnoresCancellation(t *testing.T) {
	cb := New("test", WithFailureThreshold(1))

	err := cb.Execute(context.Background(), func(context.Context) error { return context.Canceled })

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_StateChangeCallback(t *testing.T) {
	var transitions []string
	cb := PushGatewayBreaker(1, time.Minute, func(name string, from, to State) {
		transitions = append(transitions, name+":"+from.String()+"->"+to.String())
	})

	_ = cb.Execute(context.Background(), fail)

	assert.Equal(t, []string{"push-gateway:closed->open"}, transitions)

	cb.Reset()
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, Counts{}, cb.Status().Counts)
}
