// internal/donation/store.go
package donation

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrNotFound  = errors.New("donation not found")
	ErrDuplicate = errors.New("donation already exists")
)

// Store reads and writes donations.
type Store interface {
	Add(ctx context.Context, d *Donation) error
	Get(ctx context.Context, id uuid.UUID) (*Donation, error)
	List(ctx context.Context) ([]*Donation, error)
	ListByMember(ctx context.Context, memberID uuid.UUID) ([]*Donation, error)
}
