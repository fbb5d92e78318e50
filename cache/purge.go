package cache

import (
	"runtime"
	"time"
)

// purger is the state of the purge scheduler: at most one armed timer, set
// for the earliest known expiry. gen invalidates timers that were replaced
// or disarmed but had already fired.
type purger struct {
	timer  *time.Timer
	wakeAt time.Time
	gen    uint64
}

// notifyLocked arms the timer for rec if it expires before the current wake.
// m.mu must be held.
func (m *Memo[T]) notifyLocked(rec *record[T]) {
	if !m.cfg.autoPurge || m.closed {
		return
	}
	at, ok := rec.expiresAt(m.cfg.purgeAgeFactor)
	if !ok {
		return
	}
	m.scheduleLocked(at)
}

func (m *Memo[T]) scheduleLocked(at time.Time) {
	if m.purge.timer != nil && !at.Before(m.purge.wakeAt) {
		return
	}
	m.disarmLocked()
	delay := at.Sub(m.cfg.now())
	if delay < 0 {
		delay = 0
	}
	gen := m.purge.gen
	m.purge.wakeAt = at
	m.purge.timer = time.AfterFunc(delay, func() { m.sweep(gen) })
}

func (m *Memo[T]) disarmLocked() {
	if m.purge.timer != nil {
		m.purge.timer.Stop()
	}
	m.purge.timer = nil
	m.purge.wakeAt = time.Time{}
	m.purge.gen++
}

// sweep evicts every record older than its hint times the purge age factor
// and rearms the timer for the earliest survivor. Records are inspected in
// chunks with the lock released in between.
func (m *Memo[T]) sweep(gen uint64) {
	m.mu.Lock()
	if m.closed || gen != m.purge.gen {
		m.mu.Unlock()
		return
	}
	m.purge.timer = nil
	m.purge.wakeAt = time.Time{}
	m.waitGroup.Add(1)
	defer m.waitGroup.Done()

	keys := m.store.keys()
	chunk := m.cfg.sweepChunkSize
	var next time.Time
	var purged int
	for start := 0; start < len(keys); start += chunk {
		if start > 0 {
			m.mu.Unlock()
			runtime.Gosched()
			m.mu.Lock()
			if m.closed {
				m.mu.Unlock()
				return
			}
		}
		end := start + chunk
		if end > len(keys) {
			end = len(keys)
		}
		now := m.cfg.now()
		var evicted []Event[T]
		for _, key := range keys[start:end] {
			rec, ok := m.store.records[key]
			if !ok {
				continue
			}
			at, tracked := rec.expiresAt(m.cfg.purgeAgeFactor)
			if !tracked {
				continue
			}
			if now.After(at) {
				delete(m.store.records, key)
				m.stats.Purged++
				evicted = append(evicted, Event[T]{Key: key, Args: append([]any(nil), rec.args...), Value: rec.value, UpdatedAt: rec.updatedAt})
				continue
			}
			if next.IsZero() || at.Before(next) {
				next = at
			}
		}
		purged += len(evicted)
		if len(evicted) > 0 && len(m.onPurge) > 0 {
			observers := m.onPurge
			m.mu.Unlock()
			m.emit("purge", observers, evicted...)
			m.mu.Lock()
			if m.closed {
				m.mu.Unlock()
				return
			}
		}
	}
	if !next.IsZero() {
		m.scheduleLocked(next)
	}
	remaining := m.store.len()
	m.mu.Unlock()

	if m.log.IsDebugEnabled() {
		m.log.Debug("purge swept %d records, evicted %d, %d remain", len(keys), purged, remaining)
	}
}
