package cache

// Stats is a snapshot of a Memo's counters.
type Stats struct {
	// Hits counts reads served from a record within the requested age.
	Hits uint64
	// StaleHits counts Rolling reads that returned an out of date record.
	StaleHits uint64
	// Misses counts reads that had to wait for the producer.
	Misses uint64
	// Coalesced counts reads that joined a call already in flight.
	Coalesced uint64
	// ProducerCalls counts producer invocations.
	ProducerCalls uint64
	// ProducerErrors counts failed invocations, ErrNoValue and panics included.
	ProducerErrors uint64
	// Purged counts records evicted by the purge scheduler.
	Purged uint64
	// Records is the number of records held.
	Records int
	// InFlight is the number of producer calls not yet settled.
	InFlight int
}

// HitRatio returns Hits+StaleHits over all reads, or 0 before any read.
func (s Stats) HitRatio() float64 {
	total := s.Hits + s.StaleHits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits+s.StaleHits) / float64(total)
}
