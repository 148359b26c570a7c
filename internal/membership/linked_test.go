package membership

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestLinkedMembers(t *testing.T) {
	a := newMember(withPaiementID("pay_1"))
	b := newMember(withPaiementID("pay_1"))
	c := newMember(withPaiementID("pay_1"))
	other := newMember(withPaiementID("pay_2"))
	solo := newMember()
	all := []*Member{a, b, c, other, solo}

	assert.ElementsMatch(t, []*Member{b, c}, LinkedMembers(a, all))
	assert.Empty(t, LinkedMembers(other, all))

	got := LinkedMembers(solo, all)
	require.NotNil(t, got)
	assert.Empty(t, got)

	empty := newMember(withPaiementID(""))
	assert.Empty(t, LinkedMembers(empty, append(all, newMember(withPaiementID("")))))
}

func TestLinkedMembersProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		refs := []string{"pay_a", "pay_b", "pay_c"}
		n := rapid.IntRange(1, 12).Draw(t, "n")
		all := make([]*Member, 0, n)
		for i := 0; i < n; i++ {
			m := newMember()
			if rapid.Bool().Draw(t, "linked") {
				ref := rapid.SampledFrom(refs).Draw(t, "ref")
				m.PaiementID = &ref
			}
			all = append(all, m)
		}
		m := all[rapid.IntRange(0, n-1).Draw(t, "pick")]

		got := LinkedMembers(m, all)
		for _, l := range got {
			assert.NotEqual(t, m.ID, l.ID)
			assert.Equal(t, *m.PaiementID, *l.PaiementID)
		}
		if m.PaiementID == nil {
			assert.Empty(t, got)
			return
		}
		assert.Len(t, got, len(PaymentIndex(all)[*m.PaiementID])-1)
	})
}

func TestLinkedMembersKeepTheirOwnFacts(t *testing.T) {
	a := newMember(withPaiementID("pay_1"), paid(jan1), signed)
	b := newMember(withPaiementID("pay_1"))

	tr := SetSigned(a, false)
	assert.False(t, tr.Member.ASigne)
	assert.Equal(t, b, LinkedMembers(tr.Member, []*Member{tr.Member, b})[0])
	assert.False(t, b.APaye, "payment is not propagated to linked members")
}

func TestPaymentIndex(t *testing.T) {
	a := newMember(withPaiementID("pay_1"))
	b := newMember(withPaiementID("pay_1"))
	c := newMember()

	index := PaymentIndex([]*Member{a, b, c})
	assert.Len(t, index, 1)
	assert.ElementsMatch(t, []uuid.UUID{a.ID, b.ID}, index["pay_1"])
}

func TestPayeurName(t *testing.T) {
	assert.Equal(t, PayeurSelf, PayeurName(newMember()))
	assert.Equal(t, "Fatima Diallo", PayeurName(newMember(func(m *Member) {
		m.InscritPar = &Payer{Nom: " Diallo ", Prenom: "Fatima"}
	})))
	assert.Equal(t, "Diallo", PayeurName(newMember(func(m *Member) {
		m.InscritPar = &Payer{Nom: "Diallo"}
	})))
	assert.Equal(t, PayeurTiers, PayeurName(newMember(func(m *Member) {
		m.InscritPar = &Payer{}
	})))
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate(newMember()))
	for _, montant := range []float64{0, 0.01, 12.34, 19.99, 1234567.89} {
		assert.NoError(t, Validate(newMember(func(m *Member) { m.Cotisation.Montant = montant })), montant)
	}

	tests := map[string]func(*Member){
		"empty nom":       func(m *Member) { m.Nom = "  " },
		"empty prenom":    func(m *Member) { m.Prenom = "" },
		"missing genre":   func(m *Member) { m.Genre = "" },
		"bad type":        func(m *Member) { m.Cotisation.Type = "hebdo" },
		"negative amount": func(m *Member) { m.Cotisation.Montant = -1 },
		"sub-centime":     func(m *Member) { m.Cotisation.Montant = 0.004 },
		"huge amount":     func(m *Member) { m.Cotisation.Montant = 1e12 },
		"inverted period": func(m *Member) {
			fin := jan1.AddDate(0, 0, -1)
			m.Cotisation.DateDebut = &jan1
			m.Cotisation.DateFin = &fin
		},
		"unknown mode":    withMode("troc"),
		"computed status": withStatus("expire"),
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, Validate(newMember(mutate)), ErrValidation)
		})
	}
}
