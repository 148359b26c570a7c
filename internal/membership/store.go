// internal/membership/store.go
package membership

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"cotisations/internal/eventstore"
)

const aggregateType = "member"

// Store persists members. Every write is guarded by the member's version and
// records its event in the same atomic unit.
type Store interface {
	// Create stores a new member at version 1.
	Create(ctx context.Context, t *Transition) (*Member, error)
	Get(ctx context.Context, id uuid.UUID) (*Member, error)
	List(ctx context.Context) ([]*Member, error)
	ListByPaiementID(ctx context.Context, paiementID string) ([]*Member, error)
	// Save writes t.Member, t.Donation when set, and t.Event atomically. It
	// fails with ErrConflict when the stored version is not expectedVersion.
	Save(ctx context.Context, expectedVersion int, t *Transition) (*Member, error)
	Delete(ctx context.Context, id uuid.UUID, expectedVersion int) error
	Events(ctx context.Context, id uuid.UUID) ([]eventstore.Event, error)
	// Subscribe registers fn for every committed change and returns a function
	// removing it. fn must not block.
	Subscribe(fn func(Change)) (unsubscribe func())
}

// Change describes a committed write to a member.
type Change struct {
	MemberID uuid.UUID `json:"id"`
	Version  int       `json:"version"`
	Deleted  bool      `json:"deleted"`
	Member   *Member   `json:"member,omitempty"`
}

type hub struct {
	mu   sync.RWMutex
	next int
	subs map[int]func(Change)
}

func (h *hub) Subscribe(fn func(Change)) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs == nil {
		h.subs = make(map[int]func(Change))
	}
	id := h.next
	h.next++
	h.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
		})
	}
}

func (h *hub) publish(c Change) {
	h.mu.RLock()
	subs := make([]func(Change), 0, len(h.subs))
	for _, fn := range h.subs {
		subs = append(subs, fn)
	}
	h.mu.RUnlock()

	for _, fn := range subs {
		var m *Member
		if c.Member != nil {
			m = c.Member.Clone()
		}
		fn(Change{MemberID: c.MemberID, Version: c.Version, Deleted: c.Deleted, Member: m})
	}
}

func toStoreEvent(e Event) (eventstore.Event, error) {
	data, err := json.Marshal(e.Data)
	if err != nil {
		return eventstore.Event{}, fmt.Errorf("failed to marshal event data: %w", err)
	}
	return eventstore.Event{EventType: e.Type, EventData: data}, nil
}
