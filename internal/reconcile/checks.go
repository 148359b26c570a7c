// internal/reconcile/checks.go
package reconcile

import (
	"fmt"

	"github.com/google/uuid"

	"cotisations/internal/donation"
	"cotisations/internal/membership"
)

// DefaultChecks returns every built-in consistency check.
func DefaultChecks() []Check {
	return []Check{
		OrphanConversionDonations(),
		MissingConversionDonations(),
		PeriodOrder(),
		PaidWithoutDate(),
	}
}

// OrphanConversionDonations finds donations converted from a rejected
// membership whose member was never turned into a sympathisant.
func OrphanConversionDonations() Check {
	return Check{
		Name:       "orphan-conversion-donation",
		Hypothesis: "Every conversion donation belongs to a rejected sympathisant",
		Detect: func(s Snapshot) []Violation {
			members := byID(s.Members)
			var out []Violation
			for _, d := range s.Donations {
				if d.Origine != donation.OrigineAdhesionRefusee {
					continue
				}
				if d.MembreID == nil {
					out = append(out, Violation{Subject: d.ID.String(), Detail: "conversion donation without member"})
					continue
				}
				m, ok := members[*d.MembreID]
				switch {
				case !ok:
					// The member may have been deleted since; the donation stands.
				case m.AdhesionRefuseeAt == nil:
					out = append(out, Violation{
						Subject: d.ID.String(),
						Detail:  fmt.Sprintf("member %s was never rejected", m.ID),
					})
				}
			}
			return out
		},
	}
}

// MissingConversionDonations finds rejected members who had paid but have no
// conversion donation.
func MissingConversionDonations() Check {
	return Check{
		Name:       "missing-conversion-donation",
		Hypothesis: "Every paid amount of a rejected membership was converted into a donation",
		Detect: func(s Snapshot) []Violation {
			converted := make(map[uuid.UUID]bool)
			for _, d := range s.Donations {
				if d.Origine == donation.OrigineAdhesionRefusee && d.MembreID != nil {
					converted[*d.MembreID] = true
				}
			}
			var out []Violation
			for _, m := range s.Members {
				if m.AdhesionRefuseeAt != nil && m.Cotisation.Montant > 0 && !converted[m.ID] {
					out = append(out, Violation{
						Subject: m.ID.String(),
						Detail:  fmt.Sprintf("rejected with montant %.2f and no donation", m.Cotisation.Montant),
					})
				}
			}
			return out
		},
	}
}

// PeriodOrder finds cotisation periods ending before they start.
func PeriodOrder() Check {
	return Check{
		Name:       "period-order",
		Hypothesis: "No cotisation period ends before it starts",
		Detect: func(s Snapshot) []Violation {
			var out []Violation
			for _, m := range s.Members {
				d, f := m.Cotisation.DateDebut, m.Cotisation.DateFin
				if d != nil && f != nil && f.Before(*d) {
					out = append(out, Violation{Subject: m.ID.String(), Detail: "date_fin precedes date_debut"})
				}
			}
			return out
		},
	}
}

// PaidWithoutDate finds paid members lacking a payment date.
func PaidWithoutDate() Check {
	return Check{
		Name:       "paid-without-date",
		Hypothesis: "Every paid cotisation has a payment date",
		Detect: func(s Snapshot) []Violation {
			var out []Violation
			for _, m := range s.Members {
				if m.APaye && m.DatePaiement == nil {
					out = append(out, Violation{Subject: m.ID.String(), Detail: "a_paye without date_paiement"})
				}
			}
			return out
		},
	}
}

func byID(members []*membership.Member) map[uuid.UUID]*membership.Member {
	out := make(map[uuid.UUID]*membership.Member, len(members))
	for _, m := range members {
		out[m.ID] = m
	}
	return out
}
