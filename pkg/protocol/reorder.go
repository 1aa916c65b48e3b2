package protocol

import (
	"fmt"

	"github.com/rs/zerolog/log"
)

// Reorderer buffers out-of-order envelopes for one session and releases
// them in ascending sequence order. Stale and duplicate sequence numbers
// are dropped, not re-dispatched.
type Reorderer struct {
	next    int64
	pending map[int64]Envelope
	limit   int
}

// NewReorderer creates a reorderer expecting start as the first sequence
// number. limit bounds how many envelopes may wait for a gap to fill.
func NewReorderer(start int64, limit int) *Reorderer {
	if limit <= 0 {
		limit = 256
	}
	return &Reorderer{next: start, pending: make(map[int64]Envelope), limit: limit}
}

// Push accepts an envelope and returns every envelope now dispatchable in
// order. An envelope below the cursor is dropped silently; exceeding the
// buffer limit is an error, since it means the gap will never fill.
func (r *Reorderer) Push(env Envelope) ([]Envelope, error) {
	if env.Seq < r.next {
		log.Debug().Int64("seq", env.Seq).Int64("expected", r.next).Msg("Dropping stale envelope")
		return nil, nil
	}
	if _, dup := r.pending[env.Seq]; dup {
		return nil, nil
	}
	if len(r.pending) >= r.limit {
		return nil, fmt.Errorf("reorder buffer full waiting for seq %d", r.next)
	}
	r.pending[env.Seq] = env

	var ready []Envelope
	for {
		e, ok := r.pending[r.next]
		if !ok {
			break
		}
		delete(r.pending, r.next)
		ready = append(ready, e)
		r.next++
	}
	return ready, nil
}

// Next returns the sequence number the reorderer is waiting for.
func (r *Reorderer) Next() int64 {
	return r.next
}

// PendingCount returns how many envelopes are buffered beyond the cursor.
func (r *Reorderer) PendingCount() int {
	return len(r.pending)
}
