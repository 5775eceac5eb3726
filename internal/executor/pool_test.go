package executor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunReturnsValue(t *testing.T) {
	pool := NewPool(2)

	value, err := pool.Run(context.Background(), time.Second, func(context.Context) ([]byte, error) {
		return []byte("ok"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, []byte("ok"), value)
}

func TestRunPropagatesFailure(t *testing.T) {
	pool := NewPool(1)
	cause := errors.New("remote exploded")

	_, err := pool.Run(context.Background(), time.Second, func(context.Context) ([]byte, error) {
		return nil, cause
	})

	var propagated *PropagatedError
	require.ErrorAs(t, err, &propagated)
	assert.Same(t, cause, propagated.Cause)
	assert.ErrorIs(t, err, cause)
}

func TestRunConvertsPanic(t *testing.T) {
	pool := NewPool(1)

	_, err := pool.Run(context.Background(), time.Second, func(context.Context) ([]byte, error) {
		panic("kaboom")
	})

	var propagated *PropagatedError
	require.ErrorAs(t, err, &propagated)
	assert.Contains(t, err.Error(), "kaboom")
}

func TestRunTimesOutAndAbandons(t *testing.T) {
	abandoned := make(chan Outcome, 1)
	pool := NewPool(1, WithAbandonHandler(func(o Outcome) { abandoned <- o }))

	release := make(chan struct{})
	var ctxErrAfterTimeout atomic.Value

	started := time.Now()
	_, err := pool.Run(context.Background(), 30*time.Millisecond, func(ctx context.Context) ([]byte, error) {
		<-release
		ctxErrAfterTimeout.Store(errorString(ctx.Err()))
		return []byte("late"), nil
	})
	elapsed := time.Since(started)

	var timeout *TimeoutError
	require.ErrorAs(t, err, &timeout)
	assert.Equal(t, 30*time.Millisecond, timeout.Timeout)
	assert.GreaterOrEqual(t, elapsed, 30*time.Millisecond, "caller must wait for the full timeout")
	assert.Less(t, elapsed, time.Second)
	assert.Equal(t, int64(1), pool.InFlight(), "abandoned work keeps its slot")

	close(release)
	select {
	case outcome := <-abandoned:
		assert.Equal(t, []byte("late"), outcome.Value)
		assert.NoError(t, outcome.Err)
	case <-time.After(2 * time.Second):
		t.Fatal("abandon handler was not called")
	}
	assert.Equal(t, "", ctxErrAfterTimeout.Load(), "work context must not be cancelled")

	require.Eventually(t, func() bool { return pool.InFlight() == 0 }, time.Second, 5*time.Millisecond)
}

func TestSlotWaitCountsAgainstTimeout(t *testing.T) {
	pool := NewPool(1)
	release := make(chan struct{})
	defer close(release)

	task, err := pool.Submit(context.Background(), func(context.Context) ([]byte, error) {
		<-release
		return nil, nil
	})
	require.NoError(t, err)
	require.NotNil(t, task)

	var called atomic.Bool
	_, err = pool.Run(context.Background(), 20*time.Millisecond, func(context.Context) ([]byte, error) {
		called.Store(true)
		return nil, nil
	})

	var timeout *TimeoutError
	require.ErrorAs(t, err, &timeout)
	assert.False(t, called.Load())
}

func TestPoolBoundsConcurrency(t *testing.T) {
	const limit = 2
	pool := NewPool(limit)

	var current, peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := pool.Run(context.Background(), 5*time.Second, func(context.Context) ([]byte, error) {
				n := current.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				current.Add(-1)
				return nil, nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int32(limit))
}

type ctxKey struct{}

func TestWorkSeesCallerValues(t *testing.T) {
	pool := NewPool(1)
	ctx := context.WithValue(context.Background(), ctxKey{}, "req-1")

	value, err := pool.Run(ctx, time.Second, func(ctx context.Context) ([]byte, error) {
		v, _ := ctx.Value(ctxKey{}).(string)
		return []byte(v), nil
	})
	require.NoError(t, err)
	assert.Equal(t, "req-1", string(value))
}

func TestRunReturnsCallerCancellation(t *testing.T) {
	pool := NewPool(1)
	ctx, cancel := context.WithCancel(context.Background())
	release := make(chan struct{})
	defer close(release)

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := pool.Run(ctx, 5*time.Second, func(context.Context) ([]byte, error) {
		<-release
		return nil, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTaskWaitAfterCompletion(t *testing.T) {
	pool := NewPool(1)
	task, err := pool.Submit(context.Background(), func(context.Context) ([]byte, error) {
		return []byte("done"), nil
	})
	require.NoError(t, err)

	<-task.Done()
	value, err := task.Wait(0)
	require.NoError(t, err)
	assert.Equal(t, []byte("done"), value)
}

func errorString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
