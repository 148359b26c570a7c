// internal/donation/store_memory.go
package donation

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore keeps donations in process.
type MemoryStore struct {
	mu        sync.RWMutex
	donations map[uuid.UUID]*Donation
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{donations: make(map[uuid.UUID]*Donation)}
}

func (s *MemoryStore) Add(ctx context.Context, d *Donation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.donations[d.ID]; exists {
		return ErrDuplicate
	}
	c := *d
	s.donations[d.ID] = &c
	return nil
}

// Remove drops a donation; used to undo an Add whose enclosing write failed.
func (s *MemoryStore) Remove(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.donations, id)
}

func (s *MemoryStore) Get(ctx context.Context, id uuid.UUID) (*Donation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.donations[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := *d
	return &c, nil
}

func (s *MemoryStore) List(ctx context.Context) ([]*Donation, error) {
	return s.filter(func(*Donation) bool { return true }), nil
}

func (s *MemoryStore) ListByMember(ctx context.Context, memberID uuid.UUID) ([]*Donation, error) {
	return s.filter(func(d *Donation) bool {
		return d.MembreID != nil && *d.MembreID == memberID
	}), nil
}

func (s *MemoryStore) filter(keep func(*Donation) bool) []*Donation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*Donation{}
	for _, d := range s.donations {
		if keep(d) {
			c := *d
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}
