// internal/membership/service.go
package membership

import (
	"context"

	"github.com/google/uuid"

	"cotisations/internal/donation"
	"cotisations/internal/eventstore"
)

// AnyVersion lets a write proceed against whatever version is loaded.
const AnyVersion = 0

// Service defines the interface for the cotisation service.
//
// Write operations take the version the caller last saw; AnyVersion skips the
// check and keeps last-write-wins semantics.
type Service interface {
	Enroll(ctx context.Context, req EnrollRequest) (*Member, error)
	GetMember(ctx context.Context, id uuid.UUID) (*View, error)
	ListMembers(ctx context.Context) ([]*View, error)
	DeleteMember(ctx context.Context, id uuid.UUID, version int, confirm bool) error

	SetPaid(ctx context.Context, id uuid.UUID, version int, isPaid bool, mode *PaymentMode) (*Member, error)
	SetPaymentMode(ctx context.Context, id uuid.UUID, version int, mode PaymentMode) (*Member, error)
	SetSigned(ctx context.Context, id uuid.UUID, version int, isSigned bool) (*Member, error)
	ValidateAdhesion(ctx context.Context, id uuid.UUID, version int) (*Member, error)
	RejectAdhesion(ctx context.Context, id uuid.UUID, version int, confirm bool) (*Member, *donation.Donation, error)
	RecordProcessorPayment(ctx context.Context, result PaymentResult) ([]*Member, error)

	LinkedMembers(ctx context.Context, id uuid.UUID) ([]*View, error)
	History(ctx context.Context, id uuid.UUID) ([]eventstore.Event, error)
	Subscribe(fn func(Change)) (unsubscribe func())
}

// EnrollRequest carries the facts collected by the enrollment flow.
type EnrollRequest struct {
	Nom               string         `json:"nom"`
	Prenom            string         `json:"prenom"`
	Genre             Genre          `json:"genre"`
	Email             string         `json:"email"`
	Telephone         string         `json:"telephone"`
	Adresse           string         `json:"adresse"`
	CotisationType    CotisationType `json:"cotisation_type"`
	Montant           float64        `json:"montant"`
	ModePaiement      *PaymentMode   `json:"mode_paiement,omitempty"`
	PaiementID        *string        `json:"paiement_id,omitempty"`
	InscritPar        *Payer         `json:"inscrit_par,omitempty"`
	ReferenceVirement *string        `json:"reference_virement,omitempty"`
	// Sympathisant enrolls a supporter who does not ask for membership.
	Sympathisant bool `json:"sympathisant"`
}

// PaymentResult is what the external payment processor reports for one
// payment. Either PaiementID or MemberIDs selects the members it covers.
type PaymentResult struct {
	PaiementID string      `json:"paiement_id"`
	MemberIDs  []uuid.UUID `json:"member_ids"`
	Mode       PaymentMode `json:"mode"`
	Paid       bool        `json:"paid"`
}

// Notifier sends a text message to a member.
type Notifier interface {
	SendMessageToMember(ctx context.Context, memberID uuid.UUID, text string) error
}
