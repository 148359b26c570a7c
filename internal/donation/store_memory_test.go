package donation

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day = time.Date(2024, time.March, 10, 12, 0, 0, 0, time.UTC)

func newDonation(memberID *uuid.UUID, at time.Time) *Donation {
	return &Donation{
		ID:                 uuid.New(),
		Donateur:           "Ali Ben",
		Montant:            150,
		ProjetNom:          ProjetDonLibre,
		ModePaiement:       ModeAutre,
		Origine:            OrigineAdhesionRefusee,
		MembreID:           memberID,
		EligibleRecuFiscal: true,
		Date:               at,
	}
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	member := uuid.New()

	older := newDonation(&member, day)
	newer := newDonation(&member, day.Add(time.Hour))
	anonymous := newDonation(nil, day)

	for _, d := range []*Donation{older, newer, anonymous} {
		require.NoError(t, s.Add(ctx, d))
	}
	assert.ErrorIs(t, s.Add(ctx, older), ErrDuplicate)

	got, err := s.Get(ctx, older.ID)
	require.NoError(t, err)
	assert.Equal(t, older, got)

	_, err = s.Get(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)

	byMember, err := s.ListByMember(ctx, member)
	require.NoError(t, err)
	require.Len(t, byMember, 2)
	assert.Equal(t, newer.ID, byMember[0].ID, "newest first")

	all, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	s.Remove(anonymous.ID)
	all, _ = s.List(ctx)
	assert.Len(t, all, 2)
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	d := newDonation(nil, day)
	require.NoError(t, s.Add(ctx, d))

	d.Montant = 1
	got, _ := s.Get(ctx, d.ID)
	assert.Equal(t, 150.0, got.Montant)
}
