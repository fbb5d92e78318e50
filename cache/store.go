package cache

import (
	"sort"
	"time"
)

// noHint marks a record or call no reader has asked a max age for. A hint of
// zero is a real hint: the record may be purged as soon as it is written.
const noHint time.Duration = -1

// record is the last successful result for a key.
type record[T any] struct {
	value     T
	args      []any
	updatedAt time.Time
	// maxAgeHint is the largest max age any reader asked for. Only the
	// purge scheduler uses it; reads always check their own max age. It is
	// noHint until a bounded read or write sets it.
	maxAgeHint time.Duration
}

func (r *record[T]) age(now time.Time) time.Duration {
	return now.Sub(r.updatedAt)
}

// expiresAt is the instant the purge scheduler may evict the record. The
// second return is false for records nobody has asked a max age for.
func (r *record[T]) expiresAt(factor float64) (time.Time, bool) {
	if r.maxAgeHint < 0 {
		return time.Time{}, false
	}
	return r.updatedAt.Add(time.Duration(float64(r.maxAgeHint) * factor)), true
}

// Entry is a read-only copy of a record returned by Snapshot. MaxAgeHint is
// only meaningful when Hinted is true.
type Entry[T any] struct {
	Key        Key
	Args       []any
	Value      T
	UpdatedAt  time.Time
	MaxAgeHint time.Duration
	Hinted     bool
}

// store holds the records. It is guarded by the owning Memo's mutex.
type store[T any] struct {
	records map[Key]*record[T]
	now     func() time.Time
}

func newStore[T any](now func() time.Time) *store[T] {
	return &store[T]{
		records: make(map[Key]*record[T]),
		now:     now,
	}
}

// get returns the record for key and whether it is within maxAge. With
// bounded false any record counts as fresh. A bounded read raises the
// record's hint to maxAge whether or not it hits.
func (s *store[T]) get(key Key, maxAge time.Duration, bounded bool) (*record[T], bool) {
	rec, ok := s.records[key]
	if !ok {
		return nil, false
	}
	if !bounded {
		return rec, true
	}
	if maxAge > rec.maxAgeHint {
		rec.maxAgeHint = maxAge
	}
	return rec, rec.age(s.now()) <= maxAge
}

// set stores value as the newest result for key. The hint only grows.
func (s *store[T]) set(key Key, args []any, value T, hint time.Duration) *record[T] {
	rec, ok := s.records[key]
	if !ok {
		rec = &record[T]{maxAgeHint: noHint}
		s.records[key] = rec
	}
	rec.value = value
	rec.args = args
	rec.updatedAt = s.now()
	if hint > rec.maxAgeHint {
		rec.maxAgeHint = hint
	}
	return rec
}

func (s *store[T]) delete(key Key) bool {
	if _, ok := s.records[key]; !ok {
		return false
	}
	delete(s.records, key)
	return true
}

func (s *store[T]) clear() {
	s.records = make(map[Key]*record[T])
}

func (s *store[T]) len() int {
	return len(s.records)
}

func (s *store[T]) keys() []Key {
	keys := make([]Key, 0, len(s.records))
	for key := range s.records {
		keys = append(keys, key)
	}
	return keys
}

// snapshot copies every record, oldest first.
func (s *store[T]) snapshot() []Entry[T] {
	entries := make([]Entry[T], 0, len(s.records))
	for key, rec := range s.records {
		entry := Entry[T]{
			Key:       key,
			Args:      append([]any(nil), rec.args...),
			Value:     rec.value,
			UpdatedAt: rec.updatedAt,
			Hinted:    rec.maxAgeHint >= 0,
		}
		if entry.Hinted {
			entry.MaxAgeHint = rec.maxAgeHint
		}
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].UpdatedAt.Before(entries[j].UpdatedAt)
	})
	return entries
}
