// internal/membership/linked.go
package membership

import (
	"sort"
	"strings"

	"github.com/google/uuid"
)

const (
	// PayeurSelf is shown when the member paid for themself.
	PayeurSelf = "Lui-même"
	// PayeurTiers is shown when a third party paid but left no name.
	PayeurTiers = "Tiers payeur"
)

// LinkedMembers returns the other members paid for in the same transaction as
// m. Facts are not propagated between linked members; each keeps its own
// signature and status.
func LinkedMembers(m *Member, all []*Member) []*Member {
	if m.PaiementID == nil || *m.PaiementID == "" {
		return []*Member{}
	}
	linked := []*Member{}
	for _, other := range all {
		if other.ID == m.ID || other.PaiementID == nil {
			continue
		}
		if *other.PaiementID == *m.PaiementID {
			linked = append(linked, other)
		}
	}
	return linked
}

// PaymentIndex groups member IDs by shared payment reference. Members without a
// reference are left out.
func PaymentIndex(all []*Member) map[string][]uuid.UUID {
	index := make(map[string][]uuid.UUID)
	for _, m := range all {
		if m.PaiementID == nil || *m.PaiementID == "" {
			continue
		}
		index[*m.PaiementID] = append(index[*m.PaiementID], m.ID)
	}
	for _, ids := range index {
		sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	}
	return index
}

// PayeurName names who paid the cotisation of m.
func PayeurName(m *Member) string {
	if m.InscritPar == nil {
		return PayeurSelf
	}
	if name := joinName(m.InscritPar.Prenom, m.InscritPar.Nom); name != "" {
		return name
	}
	return PayeurTiers
}

func joinName(prenom, nom string) string {
	return strings.TrimSpace(strings.TrimSpace(prenom) + " " + strings.TrimSpace(nom))
}
