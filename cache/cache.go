package cache

import (
	"context"
	"sync"
	"time"

	"github.com/agentuity/go-memo/logger"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// Producer fetches the value for args. It returns ok false, with a nil
// error, to report that there is no value; the callers then get ErrNoValue
// and nothing is cached. A zero value returned with ok true is cached like
// any other.
//
// ctx is the Memo's lifetime context, cancelled by Close, carrying the
// producer span. It is not any caller's context because the call is shared.
type Producer[T any] func(ctx context.Context, args []any) (T, bool, error)

// Memo caches the results of a Producer per argument list and makes sure at
// most one producer call per argument list runs at a time. It is safe for
// concurrent use.
type Memo[T any] struct {
	id       string
	producer Producer[T]
	cfg      config
	log      logger.Logger
	tracer   trace.Tracer
	ctx      context.Context
	cancel   context.CancelFunc
	// waitGroup tracks running purge sweeps.
	waitGroup sync.WaitGroup

	mu       sync.Mutex // protects the following fields
	store    *store[T]
	inflight map[Key]*call[T]
	purge    purger
	stats    Stats
	onPurge  []Observer[T]
	onFresh  []Observer[T]
	closed   bool
}

// New returns a Memo for producer. The Memo lives until parent is cancelled
// or Close is called.
func New[T any](parent context.Context, producer Producer[T], opts ...Option) (*Memo[T], error) {
	if producer == nil {
		return nil, ErrNilProducer
	}
	cfg, err := applyOptions(opts)
	if err != nil {
		return nil, err
	}
	id := cfg.id
	if id == "" {
		id = uuid.NewString()
	}
	ctx, cancel := context.WithCancel(parent)
	m := &Memo[T]{
		id:       id,
		producer: producer,
		cfg:      cfg,
		log:      cfg.logger.WithPrefix("[memo]").With(map[string]interface{}{"memo": id}),
		tracer:   cfg.tracerProvider.Tracer(tracerName),
		ctx:      ctx,
		cancel:   cancel,
		store:    newStore[T](cfg.now),
		inflight: make(map[Key]*call[T]),
	}
	context.AfterFunc(ctx, func() { m.Close() })
	return m, nil
}

// ID returns the Memo's name.
func (m *Memo[T]) ID() string {
	return m.id
}

// Cached returns the value for args if one was fetched at most maxAge ago.
// Otherwise it waits for a fresh value, joining a producer call already in
// flight for args if there is one. Cancelling ctx stops the wait but not the
// shared producer call.
func (m *Memo[T]) Cached(ctx context.Context, maxAge time.Duration, args ...any) (T, error) {
	var zero T
	if maxAge < 0 {
		return zero, errors.Wrapf(ErrInvalidMaxAge, "got %s", maxAge)
	}
	key, err := EncodeKey(args...)
	if err != nil {
		return zero, err
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return zero, ErrClosed
	}
	if rec, fresh := m.store.get(key, maxAge, true); rec != nil {
		m.notifyLocked(rec)
		if fresh {
			m.stats.Hits++
			value := rec.value
			m.mu.Unlock()
			m.traceHit(key, "hit")
			return value, nil
		}
	}
	c := m.joinLocked(key, args, maxAge)
	m.mu.Unlock()
	return c.wait(ctx)
}

// Rolling returns the value for args immediately whenever there is one. If
// it is older than targetAge a refresh is started in the background, unless
// one is already running, and the old value is returned. Only when there is
// no value at all does Rolling wait, as Cached does.
func (m *Memo[T]) Rolling(ctx context.Context, targetAge time.Duration, args ...any) (T, error) {
	var zero T
	if targetAge < 0 {
		return zero, errors.Wrapf(ErrInvalidMaxAge, "got %s", targetAge)
	}
	key, err := EncodeKey(args...)
	if err != nil {
		return zero, err
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return zero, ErrClosed
	}
	if rec, fresh := m.store.get(key, targetAge, true); rec != nil {
		m.notifyLocked(rec)
		value := rec.value
		if fresh {
			m.stats.Hits++
			m.mu.Unlock()
			m.traceHit(key, "hit")
			return value, nil
		}
		m.stats.StaleHits++
		_, started := m.startLocked(key, args, targetAge)
		m.mu.Unlock()
		if started {
			m.traceHit(key, "stale hit, refreshing")
		} else {
			m.traceHit(key, "stale hit, refresh in flight")
		}
		return value, nil
	}
	c := m.joinLocked(key, args, targetAge)
	m.mu.Unlock()
	return c.wait(ctx)
}

// Fresh always fetches a new value for args, ignoring any record. Calls for
// the same args still share one producer call.
func (m *Memo[T]) Fresh(ctx context.Context, args ...any) (T, error) {
	var zero T
	key, err := EncodeKey(args...)
	if err != nil {
		return zero, err
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return zero, ErrClosed
	}
	hint := m.cfg.defaultMaxAge
	if hint == 0 {
		hint = noHint
	}
	c := m.joinLocked(key, args, hint)
	m.mu.Unlock()
	return c.wait(ctx)
}

// Expire removes the record for args and reports whether there was one. A
// producer call in flight for args is not affected.
func (m *Memo[T]) Expire(args ...any) bool {
	key, err := EncodeKey(args...)
	if err != nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.delete(key)
}

// InFlight reports whether a producer call for args is running.
func (m *Memo[T]) InFlight(args ...any) bool {
	key, err := EncodeKey(args...)
	if err != nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.inflight[key]
	return ok
}

// UpdatedAt returns when the record for args was fetched, if there is one.
func (m *Memo[T]) UpdatedAt(args ...any) (time.Time, bool) {
	key, err := EncodeKey(args...)
	if err != nil {
		return time.Time{}, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.store.get(key, 0, false)
	if !ok {
		return time.Time{}, false
	}
	return rec.updatedAt, true
}

// Clear removes every record and disarms the purge timer. Producer calls in
// flight keep running and store their results when they succeed.
func (m *Memo[T]) Clear() {
	m.mu.Lock()
	n := m.store.len()
	m.store.clear()
	m.disarmLocked()
	m.mu.Unlock()
	m.log.Debug("cleared %d records", n)
}

// Len returns the number of records.
func (m *Memo[T]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.len()
}

// Stats returns a snapshot of the Memo's counters.
func (m *Memo[T]) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := m.stats
	stats.Records = m.store.len()
	stats.InFlight = len(m.inflight)
	return stats
}

// Snapshot returns copies of all records, oldest first. Changing them has no
// effect on the Memo.
func (m *Memo[T]) Snapshot() []Entry[T] {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.snapshot()
}

// Close disarms the purge scheduler, cancels the context passed to running
// producers and waits for a running sweep to stop. Lookups after Close fail
// with ErrClosed. Close is safe to call more than once.
func (m *Memo[T]) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.disarmLocked()
	m.mu.Unlock()
	m.cancel()
	m.waitGroup.Wait()
	return nil
}

func (m *Memo[T]) traceHit(key Key, what string) {
	if m.log.IsTraceEnabled() {
		m.log.Trace("%s for key %s", what, key)
	}
}
