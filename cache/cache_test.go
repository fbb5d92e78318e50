package cache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/agentuity/go-memo/logger"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingProducer returns "<args>#<n>" after delay, n being the call count.
type countingProducer struct {
	delay time.Duration
	calls atomic.Int32
}

func (p *countingProducer) produce(ctx context.Context, args []any) (string, bool, error) {
	n := p.calls.Add(1)
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return "", false, ctx.Err()
		}
	}
	return fmt.Sprintf("%v#%d", args, n), true, nil
}

func newTestMemo[T any](t *testing.T, producer Producer[T], opts ...Option) *Memo[T] {
	t.Helper()
	opts = append([]Option{WithLogger(logger.NewTestLogger())}, opts...)
	m, err := New(context.Background(), producer, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return m
}

func TestNewRequiresProducer(t *testing.T) {
	_, err := New[string](context.Background(), nil)
	assert.ErrorIs(t, err, ErrNilProducer)
}

func TestNewRejectsInvalidOptions(t *testing.T) {
	p := &countingProducer{}
	for name, opt := range map[string]Option{
		"factor below one": WithPurgeAgeFactor(0.5),
		"zero chunk":       WithSweepChunkSize(0),
		"negative max age": WithDefaultMaxAge(-time.Second),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := New(context.Background(), p.produce, opt)
			assert.True(t, errors.Is(err, ErrInvalidConfig), "got %v", err)
		})
	}
}

func TestNewID(t *testing.T) {
	p := &countingProducer{}
	named := newTestMemo(t, p.produce, WithID("users"))
	assert.Equal(t, "users", named.ID())

	a := newTestMemo(t, p.produce)
	b := newTestMemo(t, p.produce)
	assert.NotEmpty(t, a.ID())
	assert.NotEqual(t, a.ID(), b.ID())
}

func TestCachedHitAndRefetch(t *testing.T) {
	p := &countingProducer{delay: 50 * time.Millisecond}
	m := newTestMemo(t, p.produce)
	ctx := context.Background()

	started := time.Now()
	first, err := m.Cached(ctx, time.Second, "a")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(started), 50*time.Millisecond)

	started = time.Now()
	second, err := m.Cached(ctx, time.Second, "a")
	require.NoError(t, err)
	assert.Less(t, time.Since(started), 20*time.Millisecond)
	assert.Equal(t, first, second)
	assert.EqualValues(t, 1, p.calls.Load())

	time.Sleep(60 * time.Millisecond)
	third, err := m.Cached(ctx, 50*time.Millisecond, "a")
	require.NoError(t, err)
	assert.NotEqual(t, first, third)
	assert.EqualValues(t, 2, p.calls.Load())
}

func TestCachedZeroMaxAge(t *testing.T) {
	p := &countingProducer{}
	m := newTestMemo(t, p.produce)
	ctx := context.Background()

	_, err := m.Cached(ctx, 0, "a")
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	_, err = m.Cached(ctx, 0, "a")
	require.NoError(t, err)
	assert.EqualValues(t, 2, p.calls.Load())
}

func TestCachedIndependentKeys(t *testing.T) {
	p := &countingProducer{}
	m := newTestMemo(t, p.produce)
	ctx := context.Background()

	a, err := m.Cached(ctx, time.Minute, "a")
	require.NoError(t, err)
	b, err := m.Cached(ctx, time.Minute, "b")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	assert.True(t, m.Expire("a"))
	_, ok := m.UpdatedAt("a")
	assert.False(t, ok)
	_, ok = m.UpdatedAt("b")
	assert.True(t, ok)

	again, err := m.Cached(ctx, time.Minute, "b")
	require.NoError(t, err)
	assert.Equal(t, b, again)
}

func TestCachedNegativeMaxAge(t *testing.T) {
	p := &countingProducer{}
	m := newTestMemo(t, p.produce)

	_, err := m.Cached(context.Background(), -time.Millisecond, "a")
	assert.True(t, errors.Is(err, ErrInvalidMaxAge))
	_, err = m.Rolling(context.Background(), -time.Millisecond, "a")
	assert.True(t, errors.Is(err, ErrInvalidMaxAge))
	assert.EqualValues(t, 0, p.calls.Load())
	assert.False(t, m.InFlight("a"))
}

func TestCachedUnsupportedArgument(t *testing.T) {
	p := &countingProducer{}
	m := newTestMemo(t, p.produce)

	_, err := m.Cached(context.Background(), time.Second, map[string]int{})
	assert.True(t, errors.Is(err, ErrUnsupportedArgument))
	_, err = m.Fresh(context.Background(), nil)
	assert.True(t, errors.Is(err, ErrUnsupportedArgument))
	assert.False(t, m.Expire(nil))
	assert.EqualValues(t, 0, p.calls.Load())
}

func TestCachedNoArgs(t *testing.T) {
	p := &countingProducer{}
	m := newTestMemo(t, p.produce)

	v, err := m.Cached(context.Background(), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "[]#1", v)
	v, err = m.Cached(context.Background(), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "[]#1", v)
}

func TestNoValueIsNotCached(t *testing.T) {
	var calls atomic.Int32
	m := newTestMemo(t, func(ctx context.Context, args []any) (int, bool, error) {
		if calls.Add(1) == 1 {
			return 0, false, nil
		}
		return 7, true, nil
	})
	ctx := context.Background()

	_, err := m.Cached(ctx, time.Minute, "k")
	assert.ErrorIs(t, err, ErrNoValue)
	_, ok := m.UpdatedAt("k")
	assert.False(t, ok)

	v, err := m.Cached(ctx, time.Minute, "k")
	require.NoError(t, err)
	assert.Equal(t, 7, v)
	assert.EqualValues(t, 2, calls.Load())
}

func TestZeroValueIsCached(t *testing.T) {
	var calls atomic.Int32
	m := newTestMemo(t, func(ctx context.Context, args []any) (int, bool, error) {
		calls.Add(1)
		return 0, true, nil
	})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		v, err := m.Cached(ctx, time.Minute, "zero")
		require.NoError(t, err)
		assert.Equal(t, 0, v)
	}
	assert.EqualValues(t, 1, calls.Load())
}

func TestProducerErrorIsNotCached(t *testing.T) {
	boom := errors.New("boom")
	var calls atomic.Int32
	m := newTestMemo(t, func(ctx context.Context, args []any) (string, bool, error) {
		if calls.Add(1) == 1 {
			return "", false, boom
		}
		return "ok", true, nil
	})
	ctx := context.Background()

	_, err := m.Cached(ctx, time.Minute, "k")
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, m.Len())

	v, err := m.Cached(ctx, time.Minute, "k")
	require.NoError(t, err)
	assert.Equal(t, "ok", v)

	stats := m.Stats()
	assert.EqualValues(t, 2, stats.ProducerCalls)
	assert.EqualValues(t, 1, stats.ProducerErrors)
}

func TestProducerPanic(t *testing.T) {
	log := logger.NewTestLogger()
	m := newTestMemo(t, func(ctx context.Context, args []any) (string, bool, error) {
		panic("kaboom")
	}, WithLogger(log))

	_, err := m.Cached(context.Background(), time.Minute, "k")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrProducerPanic))
	assert.Contains(t, err.Error(), "kaboom")
	assert.False(t, m.InFlight("k"))
	assert.Equal(t, 0, m.Len())
	assert.Eventually(t, func() bool { return len(log.Find("WARNING", "failed")) > 0 }, time.Second, time.Millisecond)
}

func TestProducerReceivesArgs(t *testing.T) {
	got := make(chan []any, 1)
	m := newTestMemo(t, func(ctx context.Context, args []any) (string, bool, error) {
		got <- args
		return "v", true, nil
	})
	args := []any{"user", 42, []string{"a", "b"}}
	_, err := m.Cached(context.Background(), time.Minute, args...)
	require.NoError(t, err)
	assert.Equal(t, args, <-got)
}

func TestCallerCancelDoesNotCancelProducer(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32
	m := newTestMemo(t, func(ctx context.Context, args []any) (string, bool, error) {
		calls.Add(1)
		select {
		case <-release:
			return "done", true, nil
		case <-ctx.Done():
			return "", false, ctx.Err()
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := m.Cached(ctx, time.Minute, "k")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, m.InFlight("k"))

	close(release)
	v, err := m.Cached(context.Background(), time.Minute, "k")
	require.NoError(t, err)
	assert.Equal(t, "done", v)
	assert.EqualValues(t, 1, calls.Load())
}

func TestFreshAlwaysFetches(t *testing.T) {
	p := &countingProducer{}
	m := newTestMemo(t, p.produce)
	ctx := context.Background()

	first, err := m.Fresh(ctx, "k")
	require.NoError(t, err)
	second, err := m.Fresh(ctx, "k")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
	assert.EqualValues(t, 2, p.calls.Load())

	cached, err := m.Cached(ctx, time.Minute, "k")
	require.NoError(t, err)
	assert.Equal(t, second, cached)
}

func TestFreshRecordsDefaultMaxAge(t *testing.T) {
	p := &countingProducer{}
	m := newTestMemo(t, p.produce, WithDefaultMaxAge(time.Hour))
	_, err := m.Fresh(context.Background(), "k")
	require.NoError(t, err)

	entries := m.Snapshot()
	require.Len(t, entries, 1)
	assert.Equal(t, time.Hour, entries[0].MaxAgeHint)
}

func TestUpdatedAt(t *testing.T) {
	clock := newFakeClock()
	var mu sync.Mutex
	now := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return clock.Now()
	}
	p := &countingProducer{}
	m := newTestMemo(t, p.produce, withClock(now), WithAutoPurge(false))

	_, ok := m.UpdatedAt("k")
	assert.False(t, ok)

	_, err := m.Cached(context.Background(), time.Minute, "k")
	require.NoError(t, err)
	at, ok := m.UpdatedAt("k")
	assert.True(t, ok)
	assert.Equal(t, clock.now, at)

	mu.Lock()
	clock.Advance(2 * time.Minute)
	mu.Unlock()
	_, err = m.Cached(context.Background(), time.Minute, "k")
	require.NoError(t, err)
	later, ok := m.UpdatedAt("k")
	assert.True(t, ok)
	assert.Equal(t, at.Add(2*time.Minute), later)
}

func TestExpire(t *testing.T) {
	p := &countingProducer{}
	m := newTestMemo(t, p.produce)
	ctx := context.Background()

	assert.False(t, m.Expire("k"))
	_, err := m.Cached(ctx, time.Minute, "k")
	require.NoError(t, err)
	assert.True(t, m.Expire("k"))
	assert.False(t, m.Expire("k"))

	_, err = m.Cached(ctx, time.Minute, "k")
	require.NoError(t, err)
	assert.EqualValues(t, 2, p.calls.Load())
}

func TestExpireLeavesCallInFlight(t *testing.T) {
	release := make(chan struct{})
	m := newTestMemo(t, func(ctx context.Context, args []any) (string, bool, error) {
		<-release
		return "late", true, nil
	})

	result := make(chan string, 1)
	go func() {
		v, _ := m.Cached(context.Background(), time.Minute, "k")
		result <- v
	}()
	require.Eventually(t, func() bool { return m.InFlight("k") }, time.Second, time.Millisecond)
	assert.False(t, m.Expire("k"))
	assert.True(t, m.InFlight("k"))

	close(release)
	assert.Equal(t, "late", <-result)
	assert.False(t, m.InFlight("k"))
	_, ok := m.UpdatedAt("k")
	assert.True(t, ok)
}

func TestClear(t *testing.T) {
	p := &countingProducer{}
	m := newTestMemo(t, p.produce)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_, err := m.Cached(ctx, time.Minute, "k", i)
		require.NoError(t, err)
	}
	assert.Equal(t, 10, m.Len())

	m.Clear()
	assert.Equal(t, 0, m.Len())
	for i := 0; i < 10; i++ {
		_, ok := m.UpdatedAt("k", i)
		assert.False(t, ok)
	}
	assert.Empty(t, m.Snapshot())
}

func TestClearKeepsCallsInFlight(t *testing.T) {
	release := make(chan struct{})
	m := newTestMemo(t, func(ctx context.Context, args []any) (string, bool, error) {
		if args[0] == "slow" {
			<-release
		}
		return fmt.Sprint(args...), true, nil
	})
	ctx := context.Background()

	_, err := m.Cached(ctx, time.Minute, "done")
	require.NoError(t, err)

	result := make(chan string, 1)
	go func() {
		v, _ := m.Cached(ctx, time.Minute, "slow")
		result <- v
	}()
	require.Eventually(t, func() bool { return m.InFlight("slow") }, time.Second, time.Millisecond)

	m.Clear()
	assert.Equal(t, 0, m.Len())
	assert.True(t, m.InFlight("slow"))

	close(release)
	assert.Equal(t, "slow", <-result)
	assert.False(t, m.InFlight("slow"))
	_, ok := m.UpdatedAt("slow")
	assert.True(t, ok, "the call settled after Clear stores its result")
	_, ok = m.UpdatedAt("done")
	assert.False(t, ok)
}

func TestSnapshotIsACopy(t *testing.T) {
	p := &countingProducer{}
	m := newTestMemo(t, p.produce)
	_, err := m.Cached(context.Background(), time.Minute, "a", 1)
	require.NoError(t, err)

	entries := m.Snapshot()
	require.Len(t, entries, 1)
	assert.Equal(t, []any{"a", 1}, entries[0].Args)
	assert.Equal(t, mustKey(t, "a", 1), entries[0].Key)
	entries[0].Args[0] = "b"

	again := m.Snapshot()
	assert.Equal(t, "a", again[0].Args[0])
}

func TestStats(t *testing.T) {
	p := &countingProducer{}
	m := newTestMemo(t, p.produce)
	ctx := context.Background()

	assert.Zero(t, m.Stats().HitRatio())
	_, err := m.Cached(ctx, time.Minute, "k")
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err = m.Cached(ctx, time.Minute, "k")
		require.NoError(t, err)
	}

	stats := m.Stats()
	assert.EqualValues(t, 3, stats.Hits)
	assert.EqualValues(t, 1, stats.Misses)
	assert.EqualValues(t, 1, stats.ProducerCalls)
	assert.Equal(t, 1, stats.Records)
	assert.Equal(t, 0, stats.InFlight)
	assert.InDelta(t, 0.75, stats.HitRatio(), 0.0001)
}

func TestClose(t *testing.T) {
	p := &countingProducer{}
	m, err := New(context.Background(), p.produce, WithLogger(logger.NewTestLogger()))
	require.NoError(t, err)
	_, err = m.Cached(context.Background(), time.Minute, "k")
	require.NoError(t, err)

	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	_, err = m.Cached(context.Background(), time.Minute, "k")
	assert.ErrorIs(t, err, ErrClosed)
	_, err = m.Rolling(context.Background(), time.Minute, "k")
	assert.ErrorIs(t, err, ErrClosed)
	_, err = m.Fresh(context.Background(), "k")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestCloseCancelsProducers(t *testing.T) {
	m, err := New(context.Background(), func(ctx context.Context, args []any) (string, bool, error) {
		<-ctx.Done()
		return "", false, ctx.Err()
	}, WithLogger(logger.NewTestLogger()))
	require.NoError(t, err)

	result := make(chan error, 1)
	go func() {
		_, err := m.Cached(context.Background(), time.Minute, "k")
		result <- err
	}()
	require.Eventually(t, func() bool { return m.InFlight("k") }, time.Second, time.Millisecond)
	require.NoError(t, m.Close())

	select {
	case err := <-result:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("waiter was not released by Close")
	}
}

func TestParentContextClosesMemo(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := &countingProducer{}
	m, err := New(ctx, p.produce, WithLogger(logger.NewTestLogger()))
	require.NoError(t, err)

	cancel()
	require.Eventually(t, func() bool {
		_, err := m.Cached(context.Background(), time.Minute, "k")
		return errors.Is(err, ErrClosed)
	}, time.Second, time.Millisecond)
}
