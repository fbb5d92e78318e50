package cache

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel/attribute"
)

// call is one producer invocation shared by every caller that asks for the
// same key while it runs. value and err are written once, before done is
// closed, and only read after.
type call[T any] struct {
	done  chan struct{}
	value T
	err   error
	// hint is the largest max age of any caller that joined, noHint if
	// none gave one.
	hint time.Duration
	args []any
}

func (c *call[T]) wait(ctx context.Context) (T, error) {
	select {
	case <-c.done:
		return c.value, c.err
	default:
	}
	select {
	case <-c.done:
		return c.value, c.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// startLocked returns the call in flight for key, raising its hint, or
// starts a new one. The second return reports whether a call was started.
// m.mu must be held.
func (m *Memo[T]) startLocked(key Key, args []any, hint time.Duration) (*call[T], bool) {
	if c, ok := m.inflight[key]; ok {
		if hint > c.hint {
			c.hint = hint
		}
		return c, false
	}
	c := &call[T]{
		done: make(chan struct{}),
		hint: hint,
		args: append([]any(nil), args...),
	}
	m.inflight[key] = c
	m.stats.ProducerCalls++
	go m.run(key, c)
	return c, true
}

// joinLocked is startLocked for a caller that is going to wait.
func (m *Memo[T]) joinLocked(key Key, args []any, hint time.Duration) *call[T] {
	c, started := m.startLocked(key, args, hint)
	m.stats.Misses++
	if !started {
		m.stats.Coalesced++
	}
	return c
}

// run invokes the producer and settles c. The in-flight entry is removed and
// the record written under one lock hold, before any waiter wakes, so a
// caller arriving after settlement either hits the new record or starts a
// new call.
func (m *Memo[T]) run(key Key, c *call[T]) {
	ctx, span := m.startSpan(m.ctx, key, c.args)
	if m.log.IsDebugEnabled() {
		m.log.Debug("fetching key %s", key)
	}
	started := m.cfg.now()
	value, err := m.invoke(ctx, c.args)

	m.mu.Lock()
	if m.inflight[key] == c {
		delete(m.inflight, key)
	}
	var event Event[T]
	var observers []Observer[T]
	if err == nil {
		rec := m.store.set(key, c.args, value, c.hint)
		m.notifyLocked(rec)
		event = Event[T]{Key: key, Args: append([]any(nil), c.args...), Value: value, UpdatedAt: rec.updatedAt}
		observers = m.onFresh
	} else {
		m.stats.ProducerErrors++
	}
	if c.hint >= 0 {
		span.SetAttributes(attribute.Int64("memo.max_age_ms", c.hint.Milliseconds()))
	}
	m.mu.Unlock()

	c.value, c.err = value, err
	close(c.done)
	endSpan(span, err)

	if err != nil {
		m.log.Warn("fetching key %s failed after %s: %v", key, m.cfg.now().Sub(started), err)
		return
	}
	if m.log.IsDebugEnabled() {
		m.log.Debug("fetched key %s in %s", key, m.cfg.now().Sub(started))
	}
	m.emit("fresh", observers, event)
}

// invoke calls the producer, turning a missing value or a panic into an error.
func (m *Memo[T]) invoke(ctx context.Context, args []any) (value T, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			value, err = zero, errors.Wrapf(ErrProducerPanic, "%v", r)
		}
	}()
	v, ok, err := m.producer(ctx, args)
	if err != nil {
		var zero T
		return zero, err
	}
	if !ok {
		var zero T
		return zero, ErrNoValue
	}
	return v, nil
}
