// internal/membership/stream.go
package membership

import (
	"sync"

	"github.com/google/uuid"
)

// changeQueue buffers changes for a slow reader, keeping only the newest
// pending change per member. It never blocks the publisher.
type changeQueue struct {
	mu      sync.Mutex
	order   []uuid.UUID
	pending map[uuid.UUID]Change
	ready   chan struct{}
}

func newChangeQueue() *changeQueue {
	return &changeQueue{
		pending: make(map[uuid.UUID]Change),
		ready:   make(chan struct{}, 1),
	}
}

func (q *changeQueue) push(c Change) {
	q.mu.Lock()
	prev, queued := q.pending[c.MemberID]
	switch {
	case !queued:
		q.order = append(q.order, c.MemberID)
		q.pending[c.MemberID] = c
	case c.Deleted || prev.Version <= c.Version:
		q.pending[c.MemberID] = c
	}
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// drain returns the pending changes in the order their members first changed.
func (q *changeQueue) drain() []Change {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Change, 0, len(q.order))
	for _, id := range q.order {
		out = append(out, q.pending[id])
		delete(q.pending, id)
	}
	q.order = q.order[:0]
	return out
}
