package membership

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestResolveStatus(t *testing.T) {
	now := jan1
	yesterday := now.AddDate(0, 0, -1)
	tomorrow := now.AddDate(0, 0, 1)

	tests := []struct {
		name   string
		member *Member
		want   LifecycleStatus
	}{
		{"no period", newMember(), StatusAucun},
		{"period ended", newMember(func(m *Member) { m.Cotisation.DateFin = &yesterday }), StatusExpire},
		{"period running", newMember(func(m *Member) { m.Cotisation.DateFin = &tomorrow }), StatusActif},
		{"ends exactly now", newMember(func(m *Member) { m.Cotisation.DateFin = &now }), StatusActif},
		{"sympathisant override", newMember(withStatus(StoredSympathisant)), StatusSympathisant},
		{"pending validation override", newMember(withStatus(StoredEnAttenteValidation)), StatusEnAttenteValidation},
		{"pending signature override", newMember(withStatus(StoredEnAttenteSignature)), StatusEnAttenteSignature},
		{"pending payment override", newMember(withStatus(StoredEnAttentePaiement)), StatusEnAttentePaiement},
		{"actif override on expired period", newMember(withStatus(StoredActif), func(m *Member) { m.Cotisation.DateFin = &yesterday }), StatusActif},
		{"override beats running period", newMember(withStatus(StoredSympathisant), func(m *Member) { m.Cotisation.DateFin = &tomorrow }), StatusSympathisant},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveStatus(tt.member, now))
		})
	}
}

func TestResolveStatusIsPure(t *testing.T) {
	m := newMember(withStatus(StoredActif))
	before := *m
	ResolveStatus(m, jan1)
	ResolveStatus(m, jan1)
	assert.Equal(t, before, *m)
}

func TestResolveStatusOverrideThenPeriod(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		m := drawMember(t)
		now := drawTime(t, "now")
		got := ResolveStatus(m, now)

		if m.Status != nil {
			assert.Equal(t, LifecycleStatus(*m.Status), got)
			return
		}
		switch {
		case m.Cotisation.DateFin == nil:
			assert.Equal(t, StatusAucun, got)
		case m.Cotisation.DateFin.Before(now):
			assert.Equal(t, StatusExpire, got)
		default:
			assert.Equal(t, StatusActif, got)
		}
	})
}

func TestStatusFromOverride(t *testing.T) {
	past := jan1.Add(-time.Hour)
	assert.Equal(t, StatusEnAttenteSignature, StatusFromOverride("en_attente_signature", nil, jan1))
	assert.Equal(t, StatusExpire, StatusFromOverride("expire", &past, jan1))
	assert.Equal(t, StatusAucun, StatusFromOverride("aucun", nil, jan1))
}

var storedStatuses = []StoredStatus{
	StoredSympathisant, StoredEnAttenteValidation, StoredEnAttenteSignature,
	StoredEnAttentePaiement, StoredActif,
}

func drawTime(t *rapid.T, label string) time.Time {
	return jan1.Add(time.Duration(rapid.Int64Range(-400*24, 400*24).Draw(t, label)) * time.Hour)
}

func drawMember(t *rapid.T) *Member {
	m := newMember()
	m.APaye = rapid.Bool().Draw(t, "paid")
	m.ASigne = rapid.Bool().Draw(t, "signed")
	m.Cotisation.Type = rapid.SampledFrom([]CotisationType{CotisationMensuelle, CotisationAnnuelle}).Draw(t, "type")
	m.Cotisation.Montant = float64(rapid.IntRange(0, 500).Draw(t, "montant"))
	if rapid.Bool().Draw(t, "hasStatus") {
		s := rapid.SampledFrom(storedStatuses).Draw(t, "status")
		m.Status = &s
	}
	if rapid.Bool().Draw(t, "hasPeriod") {
		debut := drawTime(t, "debut")
		fin := periodEnd(m.Cotisation.Type, debut)
		m.Cotisation.DateDebut = &debut
		m.Cotisation.DateFin = &fin
	}
	if rapid.Bool().Draw(t, "hasMode") {
		mode := rapid.SampledFrom([]PaymentMode{PaymentVirement, PaymentEspeces, PaymentCheque}).Draw(t, "mode")
		m.ModePaiement = &mode
	}
	return m
}
