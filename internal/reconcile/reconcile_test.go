package reconcile

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cotisations/internal/donation"
	"cotisations/internal/membership"
)

var now = time.Date(2024, time.January, 1, 10, 0, 0, 0, time.UTC)

type members []*membership.Member

func (m members) List(context.Context) ([]*membership.Member, error) { return m, nil }

type donations []*donation.Donation

func (d donations) List(context.Context) ([]*donation.Donation, error) { return d, nil }

type failing struct{}

func (failing) List(context.Context) ([]*membership.Member, error) {
	return nil, errors.New("connection refused")
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func member(opts ...func(*membership.Member)) *membership.Member {
	m := &membership.Member{
		ID:         uuid.New(),
		Nom:        "Ben",
		Prenom:     "Ali",
		Genre:      membership.GenreHomme,
		Cotisation: membership.Cotisation{Type: membership.CotisationAnnuelle, Montant: 120},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func rejected(m *membership.Member) {
	at := now
	m.AdhesionRefuseeAt = &at
}

func conversion(memberID *uuid.UUID) *donation.Donation {
	return &donation.Donation{
		ID:        uuid.New(),
		Montant:   120,
		ProjetNom: donation.ProjetDonLibre,
		Origine:   donation.OrigineAdhesionRefusee,
		MembreID:  memberID,
		Date:      now,
	}
}

func TestOrphanConversionDonations(t *testing.T) {
	ok := member(rejected)
	neverRejected := member()
	gone := uuid.New()

	snap := Snapshot{
		Members: []*membership.Member{ok, neverRejected},
		Donations: []*donation.Donation{
			conversion(&ok.ID),
			conversion(&neverRejected.ID),
			conversion(&gone),
			conversion(nil),
			{ID: uuid.New(), Origine: "collecte"},
		},
	}
	found := OrphanConversionDonations().Detect(snap)
	require.Len(t, found, 2)
	assert.Equal(t, snap.Donations[1].ID.String(), found[0].Subject)
	assert.Equal(t, snap.Donations[3].ID.String(), found[1].Subject)
}

func TestMissingConversionDonations(t *testing.T) {
	converted := member(rejected)
	missing := member(rejected)
	free := member(rejected, func(m *membership.Member) { m.Cotisation.Montant = 0 })

	found := MissingConversionDonations().Detect(Snapshot{
		Members:   []*membership.Member{converted, missing, free, member()},
		Donations: []*donation.Donation{conversion(&converted.ID)},
	})
	require.Len(t, found, 1)
	assert.Equal(t, missing.ID.String(), found[0].Subject)
}

func TestPeriodOrder(t *testing.T) {
	debut, fin := now, now.AddDate(0, -1, 0)
	inverted := member(func(m *membership.Member) {
		m.Cotisation.DateDebut, m.Cotisation.DateFin = &debut, &fin
	})
	found := PeriodOrder().Detect(Snapshot{Members: []*membership.Member{inverted, member()}})
	require.Len(t, found, 1)
	assert.Equal(t, inverted.ID.String(), found[0].Subject)
}

func TestPaidWithoutDate(t *testing.T) {
	at := now
	dated := member(func(m *membership.Member) { m.APaye, m.DatePaiement = true, &at })
	undated := member(func(m *membership.Member) { m.APaye = true })

	found := PaidWithoutDate().Detect(Snapshot{Members: []*membership.Member{dated, undated}})
	require.Len(t, found, 1)
	assert.Equal(t, undated.ID.String(), found[0].Subject)
}

func TestRunOnce(t *testing.T) {
	bad := member(rejected)
	engine := NewEngine(members{bad, member()}, donations{}, discardLogger())

	report, err := engine.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Members)
	assert.Len(t, report.Results, len(DefaultChecks()))
	assert.False(t, report.Healthy())

	for _, res := range report.Results {
		if res.Name == "missing-conversion-donation" {
			assert.False(t, res.HypothesisHeld)
			continue
		}
		assert.True(t, res.HypothesisHeld, res.Name)
	}
}

func TestRunOnceListError(t *testing.T) {
	engine := NewEngine(failing{}, donations{}, discardLogger())
	_, err := engine.RunOnce(context.Background())
	assert.ErrorContains(t, err, "failed to list members")
}

func TestRejectionLeavesLedgerHealthy(t *testing.T) {
	ctx := context.Background()
	donationStore := donation.NewMemoryStore()
	store := membership.NewMemoryStore(donationStore)
	svc := membership.NewService(store, discardLogger())

	m, err := svc.Enroll(ctx, membership.EnrollRequest{
		Nom: "Ben", Prenom: "Ali", Genre: membership.GenreHomme,
		CotisationType: membership.CotisationAnnuelle, Montant: 120,
	})
	require.NoError(t, err)
	_, _, err = svc.RejectAdhesion(ctx, m.ID, m.Version, true)
	require.NoError(t, err)

	report, err := NewEngine(store, donationStore, discardLogger()).RunOnce(ctx)
	require.NoError(t, err)
	assert.True(t, report.Healthy())
	assert.Equal(t, 1, report.Donations)
}

func TestRunStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	engine := NewEngine(members{}, donations{}, discardLogger())

	done := make(chan error, 1)
	go func() { done <- engine.Run(ctx, time.Hour) }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
