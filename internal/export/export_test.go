package export

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"cotisations/internal/membership"
)

var now = time.Date(2024, time.January, 1, 10, 0, 0, 0, time.UTC)

func TestWrite(t *testing.T) {
	fin := time.Date(2024, time.February, 1, 10, 0, 0, 0, time.UTC)
	m := &membership.Member{
		ID:         uuid.New(),
		Nom:        "Ben",
		Prenom:     "Ali, fils",
		Email:      "ali@example.com",
		Telephone:  "0600000000",
		Cotisation: membership.Cotisation{Type: membership.CotisationMensuelle, Montant: 12.5, DateFin: &fin},
	}

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, []*membership.Member{m}, now))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, strings.Join(Header, ","), lines[0])
	assert.Equal(t, `Ben,"Ali, fils",ali@example.com,0600000000,actif,mensuel,12.5,2024-02-01T10:00:00Z`, lines[1])
}

func TestRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 8).Draw(t, "n")
		members := make([]*membership.Member, n)
		for i := range members {
			members[i] = drawMember(t)
		}
		at := now.Add(time.Duration(rapid.Int64Range(-1000, 1000).Draw(t, "offsetHours")) * time.Hour)

		var buf bytes.Buffer
		require.NoError(t, Write(&buf, members, at))
		rows, err := Read(&buf)
		require.NoError(t, err)
		require.Len(t, rows, n)

		for i, m := range members {
			assert.Equal(t, membership.ResolveStatus(m, at), StatusFromRow(rows[i], at))
			assert.Equal(t, m.Nom, rows[i].Nom)
			assert.Equal(t, m.Cotisation.Montant, rows[i].Montant)
		}
	})
}

func drawMember(t *rapid.T) *membership.Member {
	m := &membership.Member{
		ID:     uuid.New(),
		Nom:    rapid.StringMatching(`[A-Za-zé ,"'-]{1,12}`).Draw(t, "nom"),
		Prenom: rapid.StringMatching(`[A-Za-z]{1,8}`).Draw(t, "prenom"),
		Cotisation: membership.Cotisation{
			Type:    rapid.SampledFrom([]membership.CotisationType{membership.CotisationMensuelle, membership.CotisationAnnuelle}).Draw(t, "type"),
			Montant: float64(rapid.IntRange(0, 100000).Draw(t, "centimes")) / 100,
		},
	}
	if rapid.Bool().Draw(t, "hasStatus") {
		s := rapid.SampledFrom([]membership.StoredStatus{
			membership.StoredSympathisant, membership.StoredEnAttenteValidation,
			membership.StoredEnAttenteSignature, membership.StoredEnAttentePaiement, membership.StoredActif,
		}).Draw(t, "status")
		m.Status = &s
	}
	if rapid.Bool().Draw(t, "hasFin") {
		fin := now.Add(time.Duration(rapid.Int64Range(-2000, 2000).Draw(t, "finHours"))*time.Hour +
			time.Duration(rapid.Int64Range(0, 999).Draw(t, "finNanos")))
		m.Cotisation.DateFin = &fin
	}
	return m
}

func TestReadRejectsMalformed(t *testing.T) {
	tests := map[string]string{
		"empty":        "",
		"wrong header": "a,b,c,d,e,f,g,h\n",
		"short row":    strings.Join(Header, ",") + "\nBen,Ali\n",
		"bad montant":  strings.Join(Header, ",") + "\nBen,Ali,,,actif,annuel,cent,\n",
		"bad date":     strings.Join(Header, ",") + "\nBen,Ali,,,actif,annuel,10,demain\n",
	}
	for name, input := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Read(strings.NewReader(input))
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}
