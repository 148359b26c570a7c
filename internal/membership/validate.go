// internal/membership/validate.go
package membership

import (
	"fmt"
	"math"
	"strings"
)

// maxMontant is the largest amount a NUMERIC(12,2) column holds.
const maxMontant = 9_999_999_999.99

// Validate checks the invariants every stored member must satisfy. It runs
// before any write so an invalid record never reaches the store.
func Validate(m *Member) error {
	if strings.TrimSpace(m.Nom) == "" {
		return fmt.Errorf("%w: nom is required", ErrValidation)
	}
	if strings.TrimSpace(m.Prenom) == "" {
		return fmt.Errorf("%w: prenom is required", ErrValidation)
	}
	if !m.Genre.Valid() {
		return fmt.Errorf("%w: genre must be %q or %q", ErrValidation, GenreHomme, GenreFemme)
	}
	if !m.Cotisation.Type.Valid() {
		return fmt.Errorf("%w: cotisation type must be %q or %q", ErrValidation, CotisationMensuelle, CotisationAnnuelle)
	}
	if m.Cotisation.Montant < 0 {
		return fmt.Errorf("%w: cotisation montant cannot be negative", ErrValidation)
	}
	if m.Cotisation.Montant > maxMontant {
		return fmt.Errorf("%w: cotisation montant is too large", ErrValidation)
	}
	if cents := m.Cotisation.Montant * 100; math.Abs(cents-math.Round(cents)) > 1e-6 {
		return fmt.Errorf("%w: cotisation montant has more than two decimals", ErrValidation)
	}
	if d, f := m.Cotisation.DateDebut, m.Cotisation.DateFin; d != nil && f != nil && f.Before(*d) {
		return fmt.Errorf("%w: date_fin precedes date_debut", ErrValidation)
	}
	if m.ModePaiement != nil && !m.ModePaiement.Valid() {
		return fmt.Errorf("%w: unknown payment mode %q", ErrValidation, *m.ModePaiement)
	}
	if m.Status != nil && !m.Status.Valid() {
		return fmt.Errorf("%w: status %q cannot be stored", ErrValidation, *m.Status)
	}
	return nil
}
