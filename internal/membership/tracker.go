// internal/membership/tracker.go
package membership

import (
	"sync"

	"github.com/google/uuid"
)

// Subscriber is anything that publishes member changes.
type Subscriber interface {
	Subscribe(fn func(Change)) (unsubscribe func())
}

// Tracker keeps the latest known record of each changed member and lets a
// detail view follow one member. A watcher always sees the newest record;
// intermediate versions may be skipped.
type Tracker struct {
	mu          sync.Mutex
	latest      map[uuid.UUID]Change
	deleted     map[uuid.UUID]int
	watchers    map[uuid.UUID]map[int]chan Change
	nextID      int
	unsubscribe func()
}

// NewTracker starts tracking changes published by source.
func NewTracker(source Subscriber) *Tracker {
	t := &Tracker{
		latest:   make(map[uuid.UUID]Change),
		deleted:  make(map[uuid.UUID]int),
		watchers: make(map[uuid.UUID]map[int]chan Change),
	}
	t.unsubscribe = source.Subscribe(t.apply)
	return t
}

// Current returns the last change seen for id.
func (t *Tracker) Current(id uuid.UUID) (Change, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.latest[id]
	if ok && c.Member != nil {
		c.Member = c.Member.Clone()
	}
	return c, ok
}

// Watch returns a channel receiving every later change to id. The channel is
// closed after a deletion or when cancel is called.
func (t *Tracker) Watch(id uuid.UUID) (<-chan Change, func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ch := make(chan Change, 1)
	key := t.nextID
	t.nextID++
	if t.watchers[id] == nil {
		t.watchers[id] = make(map[int]chan Change)
	}
	t.watchers[id][key] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			t.mu.Lock()
			defer t.mu.Unlock()
			if w, ok := t.watchers[id][key]; ok {
				delete(t.watchers[id], key)
				close(w)
			}
		})
	}
}

// Close stops tracking and closes every open watch.
func (t *Tracker) Close() {
	t.unsubscribe()
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, ws := range t.watchers {
		for _, ch := range ws {
			close(ch)
		}
		delete(t.watchers, id)
	}
}

func (t *Tracker) apply(c Change) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if tomb, ok := t.deleted[c.MemberID]; ok && (!c.Deleted || c.Version <= tomb) {
		return
	}
	if prev, ok := t.latest[c.MemberID]; ok && prev.Version > c.Version && !c.Deleted {
		return
	}
	if c.Deleted {
		delete(t.latest, c.MemberID)
		t.deleted[c.MemberID] = c.Version
	} else {
		t.latest[c.MemberID] = c
	}

	for key, ch := range t.watchers[c.MemberID] {
		offer(ch, c)
		if c.Deleted {
			close(ch)
			delete(t.watchers[c.MemberID], key)
		}
	}
	if c.Deleted {
		delete(t.watchers, c.MemberID)
	}
}

// offer replaces any unread change with c.
func offer(ch chan Change, c Change) {
	select {
	case <-ch:
	default:
	}
	if c.Member != nil {
		c.Member = c.Member.Clone()
	}
	ch <- c
}
