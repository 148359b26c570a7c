// internal/membership/store_memory.go
package membership

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"cotisations/internal/donation"
	"cotisations/internal/eventstore"
)

// MemoryStore keeps members in process. A single lock covers the member, its
// event and the converted donation so a rejection is all-or-nothing.
type MemoryStore struct {
	hub

	mu        sync.Mutex
	members   map[uuid.UUID]*Member
	donations *donation.MemoryStore
	events    *eventstore.Memory
	now       func() time.Time
}

func NewMemoryStore(donations *donation.MemoryStore) *MemoryStore {
	return &MemoryStore{
		members:   make(map[uuid.UUID]*Member),
		donations: donations,
		events:    eventstore.NewMemory(),
		now:       time.Now,
	}
}

func (s *MemoryStore) Create(ctx context.Context, t *Transition) (*Member, error) {
	if err := Validate(t.Member); err != nil {
		return nil, err
	}
	ev, err := toStoreEvent(t.Event)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if _, exists := s.members[t.Member.ID]; exists {
		s.mu.Unlock()
		return nil, ErrConflict
	}
	if err := s.events.Append(t.Member.ID, aggregateType, 0, []eventstore.Event{ev}); err != nil {
		s.mu.Unlock()
		return nil, translateEventErr(err)
	}
	stored := t.Member.Clone()
	now := s.now().UTC()
	stored.Version = 1
	stored.CreatedAt = now
	stored.UpdatedAt = now
	s.members[stored.ID] = stored
	s.mu.Unlock()

	s.publish(Change{MemberID: stored.ID, Version: stored.Version, Member: stored})
	return stored.Clone(), nil
}

func (s *MemoryStore) Get(ctx context.Context, id uuid.UUID) (*Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[id]
	if !ok {
		return nil, ErrNotFound
	}
	return m.Clone(), nil
}

func (s *MemoryStore) List(ctx context.Context) ([]*Member, error) {
	return s.filter(func(*Member) bool { return true }), nil
}

func (s *MemoryStore) ListByPaiementID(ctx context.Context, paiementID string) ([]*Member, error) {
	return s.filter(func(m *Member) bool {
		return m.PaiementID != nil && *m.PaiementID == paiementID
	}), nil
}

func (s *MemoryStore) filter(keep func(*Member) bool) []*Member {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*Member{}
	for _, m := range s.members {
		if keep(m) {
			out = append(out, m.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Nom != out[j].Nom {
			return out[i].Nom < out[j].Nom
		}
		if out[i].Prenom != out[j].Prenom {
			return out[i].Prenom < out[j].Prenom
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

func (s *MemoryStore) Save(ctx context.Context, expectedVersion int, t *Transition) (*Member, error) {
	if err := Validate(t.Member); err != nil {
		return nil, err
	}
	ev, err := toStoreEvent(t.Event)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	current, ok := s.members[t.Member.ID]
	if !ok {
		s.mu.Unlock()
		return nil, ErrNotFound
	}
	if current.Version != expectedVersion {
		s.mu.Unlock()
		return nil, ErrConflict
	}
	if t.Donation != nil {
		if err := s.donations.Add(ctx, t.Donation); err != nil {
			s.mu.Unlock()
			return nil, err
		}
	}
	if err := s.events.Append(t.Member.ID, aggregateType, expectedVersion, []eventstore.Event{ev}); err != nil {
		if t.Donation != nil {
			s.donations.Remove(t.Donation.ID)
		}
		s.mu.Unlock()
		return nil, translateEventErr(err)
	}
	stored := t.Member.Clone()
	stored.Version = expectedVersion + 1
	stored.CreatedAt = current.CreatedAt
	stored.UpdatedAt = s.now().UTC()
	s.members[stored.ID] = stored
	s.mu.Unlock()

	s.publish(Change{MemberID: stored.ID, Version: stored.Version, Member: stored})
	return stored.Clone(), nil
}

func (s *MemoryStore) Delete(ctx context.Context, id uuid.UUID, expectedVersion int) error {
	ev, err := toStoreEvent(Event{Type: EventMemberDeleted, Data: MemberDeletedEvent{ID: id}})
	if err != nil {
		return err
	}

	s.mu.Lock()
	current, ok := s.members[id]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	if current.Version != expectedVersion {
		s.mu.Unlock()
		return ErrConflict
	}
	if err := s.events.Append(id, aggregateType, expectedVersion, []eventstore.Event{ev}); err != nil {
		s.mu.Unlock()
		return translateEventErr(err)
	}
	delete(s.members, id)
	s.mu.Unlock()

	s.publish(Change{MemberID: id, Version: expectedVersion + 1, Deleted: true})
	return nil
}

func (s *MemoryStore) Events(ctx context.Context, id uuid.UUID) ([]eventstore.Event, error) {
	return s.events.Load(id), nil
}

func translateEventErr(err error) error {
	if errors.Is(err, eventstore.ErrConcurrencyConflict) {
		return ErrConflict
	}
	return err
}
