package eventstore

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-process event log with the same versioning rules as
// EventStore. Callers needing atomicity with other writes hold their own lock
// around Append.
type Memory struct {
	mu     sync.Mutex
	nextID int64
	events map[uuid.UUID][]Event
}

func NewMemory() *Memory {
	return &Memory{events: make(map[uuid.UUID][]Event)}
}

// Append adds events for an aggregate whose latest version is expectedVersion.
func (m *Memory) Append(aggregateID uuid.UUID, aggregateType string, expectedVersion int, events []Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if expectedVersion < 0 {
		return ErrInvalidVersion
	}
	if current := len(m.events[aggregateID]); current != expectedVersion {
		return ErrConcurrencyConflict
	}
	for i, event := range events {
		m.nextID++
		event.ID = m.nextID
		event.AggregateID = aggregateID
		event.AggregateType = aggregateType
		event.Version = expectedVersion + i + 1
		event.CreatedAt = time.Now().UTC()
		m.events[aggregateID] = append(m.events[aggregateID], event)
	}
	return nil
}

// Load returns the events of an aggregate in version order.
func (m *Memory) Load(aggregateID uuid.UUID) []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events[aggregateID]))
	copy(out, m.events[aggregateID])
	return out
}
