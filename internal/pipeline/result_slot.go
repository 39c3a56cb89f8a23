package pipeline

// ResultSlot is a single-entry mailbox where a newer result replaces an
// unconsumed older one. Publish never blocks; Take never blocks.
type ResultSlot struct {
	ch chan *Result
}

// NewResultSlot creates an empty slot
func NewResultSlot() *ResultSlot {
	return &ResultSlot{ch: make(chan *Result, ResultQueueSize)}
}

// Publish stores r and reports whether an unread result was discarded.
// Only one goroutine may publish.
func (s *ResultSlot) Publish(r *Result) (overwrote bool) {
	for {
		select {
		case s.ch <- r:
			return overwrote
		default:
		}

		// Slot full: evict the stale result. The consumer may win the race
		// and take it first, in which case the next send succeeds.
		select {
		case <-s.ch:
			overwrote = true
		default:
		}
	}
}

// Take returns the pending result, if any
func (s *ResultSlot) Take() (*Result, bool) {
	select {
	case r := <-s.ch:
		return r, true
	default:
		return nil, false
	}
}
