package membership

import (
	"time"

	"github.com/google/uuid"
)

var jan1 = time.Date(2024, time.January, 1, 10, 0, 0, 0, time.UTC)

func newMember(opts ...func(*Member)) *Member {
	m := &Member{
		ID:         uuid.New(),
		Nom:        "Ben",
		Prenom:     "Ali",
		Genre:      GenreHomme,
		Email:      "ali.ben@example.com",
		Telephone:  "0600000000",
		Cotisation: Cotisation{Type: CotisationMensuelle, Montant: 150},
		Version:    1,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func withStatus(s StoredStatus) func(*Member) {
	return func(m *Member) { m.Status = &s }
}

func withMode(p PaymentMode) func(*Member) {
	return func(m *Member) { m.ModePaiement = &p }
}

func withPaiementID(id string) func(*Member) {
	return func(m *Member) { m.PaiementID = &id }
}

func paid(at time.Time) func(*Member) {
	return func(m *Member) {
		m.APaye = true
		m.DatePaiement = &at
	}
}

func signed(m *Member) { m.ASigne = true }
