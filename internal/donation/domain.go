// internal/donation/domain.go
package donation

import (
	"time"

	"github.com/google/uuid"
)

const (
	// ProjetDonLibre labels an unrestricted donation with no project.
	ProjetDonLibre = "Don libre"
	// OrigineAdhesionRefusee marks donations converted from a rejected membership.
	OrigineAdhesionRefusee = "conversion_adhesion_refusee"
	// ModeAutre is used when the member has no recorded payment mode.
	ModeAutre = "autre"
)

// Donation represents a gift to the mosque.
type Donation struct {
	ID                 uuid.UUID  `json:"id"`
	Donateur           string     `json:"donateur"`
	Email              string     `json:"email"`
	Telephone          string     `json:"telephone"`
	Montant            float64    `json:"montant"`
	ProjetID           *string    `json:"projet_id"`
	ProjetNom          string     `json:"projet_nom"`
	ModePaiement       string     `json:"mode_paiement"`
	Origine            string     `json:"origine"`
	MembreID           *uuid.UUID `json:"membre_id,omitempty"`
	EligibleRecuFiscal bool       `json:"eligible_recu_fiscal"`
	Date               time.Time  `json:"date"`
}
