package cache

import "time"

// Event describes a record that was just fetched or purged.
type Event[T any] struct {
	Key       Key
	Args      []any
	Value     T
	UpdatedAt time.Time
}

// Observer receives events. It runs on the goroutine that committed the
// change, after the Memo's lock is released, so it may call back into the
// Memo. It has no effect on caching.
type Observer[T any] func(Event[T])

// OnPurge registers fn to run for every record the purge scheduler evicts.
// fn runs on the sweep goroutine and must not call Close.
func (m *Memo[T]) OnPurge(fn Observer[T]) {
	m.mu.Lock()
	m.onPurge = append(m.onPurge, fn)
	m.mu.Unlock()
}

// OnFresh registers fn to run for every value the producer returns.
func (m *Memo[T]) OnFresh(fn Observer[T]) {
	m.mu.Lock()
	m.onFresh = append(m.onFresh, fn)
	m.mu.Unlock()
}

// emit calls the observers in registration order. A panicking observer is
// logged and does not stop the rest.
func (m *Memo[T]) emit(kind string, observers []Observer[T], events ...Event[T]) {
	for _, event := range events {
		for _, fn := range observers {
			func() {
				defer func() {
					if r := recover(); r != nil {
						m.log.Warn("%s observer panicked for key %s: %v", kind, event.Key, r)
					}
				}()
				fn(event)
			}()
		}
	}
}
