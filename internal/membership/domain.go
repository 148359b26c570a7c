// internal/membership/domain.go
package membership

import (
	"time"

	"github.com/google/uuid"
)

// Genre is the member's declared gender, required at enrollment.
type Genre string

const (
	GenreHomme Genre = "homme"
	GenreFemme Genre = "femme"
)

// Valid reports whether g is one of the accepted values.
func (g Genre) Valid() bool {
	return g == GenreHomme || g == GenreFemme
}

// CotisationType is the billing period of a membership due.
type CotisationType string

const (
	CotisationMensuelle CotisationType = "mensuel"
	CotisationAnnuelle  CotisationType = "annuel"
)

func (t CotisationType) Valid() bool {
	return t == CotisationMensuelle || t == CotisationAnnuelle
}

// PaymentMode is how a cotisation was paid.
type PaymentMode string

const (
	PaymentVirement  PaymentMode = "virement"
	PaymentEspeces   PaymentMode = "especes"
	PaymentCheque    PaymentMode = "cheque"
	PaymentCB        PaymentMode = "cb"
	PaymentApplePay  PaymentMode = "apple_pay"
	PaymentGooglePay PaymentMode = "google_pay"
	// PaymentStripe is only found on records written by older app versions.
	PaymentStripe PaymentMode = "stripe"
)

// Valid reports whether p is a known payment mode.
func (p PaymentMode) Valid() bool {
	switch p {
	case PaymentVirement, PaymentEspeces, PaymentCheque,
		PaymentCB, PaymentApplePay, PaymentGooglePay, PaymentStripe:
		return true
	}
	return false
}

// AppOriginated reports whether the payment came through the external payment
// processor. Such payments are never edited by hand.
func (p PaymentMode) AppOriginated() bool {
	switch p {
	case PaymentCB, PaymentApplePay, PaymentGooglePay, PaymentStripe:
		return true
	}
	return false
}

// StoredStatus is an explicit lifecycle override persisted on the member.
// Expired and "no cotisation" are never stored, they are always computed.
type StoredStatus string

const (
	StoredSympathisant        StoredStatus = "sympathisant"
	StoredEnAttenteValidation StoredStatus = "en_attente_validation"
	StoredEnAttenteSignature  StoredStatus = "en_attente_signature"
	StoredEnAttentePaiement   StoredStatus = "en_attente_paiement"
	StoredActif               StoredStatus = "actif"
)

func (s StoredStatus) Valid() bool {
	switch s {
	case StoredSympathisant, StoredEnAttenteValidation, StoredEnAttenteSignature,
		StoredEnAttentePaiement, StoredActif:
		return true
	}
	return false
}

// LifecycleStatus is the canonical status displayed for a member.
type LifecycleStatus string

const (
	StatusSympathisant        LifecycleStatus = "sympathisant"
	StatusEnAttenteValidation LifecycleStatus = "en_attente_validation"
	StatusEnAttenteSignature  LifecycleStatus = "en_attente_signature"
	StatusEnAttentePaiement   LifecycleStatus = "en_attente_paiement"
	StatusActif               LifecycleStatus = "actif"
	StatusExpire              LifecycleStatus = "expire"
	StatusAucun               LifecycleStatus = "aucun"
)

// ValidatedByBureau is recorded in ValidatedBy when the board approves a member.
const ValidatedByBureau = "bureau"

// RefusalReasonBureau is recorded when the board rejects a membership.
const RefusalReasonBureau = "Décision du bureau"

// Cotisation holds the due and the period it covers.
type Cotisation struct {
	Type      CotisationType `json:"type"`
	Montant   float64        `json:"montant"`
	DateDebut *time.Time     `json:"date_debut"`
	DateFin   *time.Time     `json:"date_fin"`
}

// Payer identifies a third party who paid for the member.
type Payer struct {
	Nom    string `json:"nom"`
	Prenom string `json:"prenom"`
}

// Member represents a mosque member subject to the cotisation lifecycle.
type Member struct {
	ID        uuid.UUID `json:"id"`
	Nom       string    `json:"nom"`
	Prenom    string    `json:"prenom"`
	Genre     Genre     `json:"genre"`
	Email     string    `json:"email"`
	Telephone string    `json:"telephone"`
	Adresse   string    `json:"adresse"`

	Cotisation Cotisation `json:"cotisation"`

	APaye        bool         `json:"a_paye"`
	DatePaiement *time.Time   `json:"date_paiement"`
	ModePaiement *PaymentMode `json:"mode_paiement"`
	ASigne       bool         `json:"a_signe"`

	Status     *StoredStatus `json:"status,omitempty"`
	PaiementID *string       `json:"paiement_id,omitempty"`
	InscritPar *Payer        `json:"inscrit_par,omitempty"`

	ValidatedAt           *time.Time `json:"validated_at,omitempty"`
	ValidatedBy           *string    `json:"validated_by,omitempty"`
	AdhesionRefuseeAt     *time.Time `json:"adhesion_refusee_at,omitempty"`
	AdhesionRefuseeRaison *string    `json:"adhesion_refusee_raison,omitempty"`
	ReferenceVirement     *string    `json:"reference_virement,omitempty"`

	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FullName returns "Prenom Nom".
func (m *Member) FullName() string {
	return joinName(m.Prenom, m.Nom)
}

// Clone returns a deep copy so transitions never alias the caller's record.
func (m *Member) Clone() *Member {
	c := *m
	c.Cotisation.DateDebut = cloneTime(m.Cotisation.DateDebut)
	c.Cotisation.DateFin = cloneTime(m.Cotisation.DateFin)
	c.DatePaiement = cloneTime(m.DatePaiement)
	c.ValidatedAt = cloneTime(m.ValidatedAt)
	c.AdhesionRefuseeAt = cloneTime(m.AdhesionRefuseeAt)
	c.ModePaiement = clonePtr(m.ModePaiement)
	c.Status = clonePtr(m.Status)
	c.PaiementID = clonePtr(m.PaiementID)
	c.InscritPar = clonePtr(m.InscritPar)
	c.ValidatedBy = clonePtr(m.ValidatedBy)
	c.AdhesionRefuseeRaison = clonePtr(m.AdhesionRefuseeRaison)
	c.ReferenceVirement = clonePtr(m.ReferenceVirement)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	return clonePtr(t)
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func ptr[T any](v T) *T {
	return &v
}

// View is a member together with its derived facts, as served to clients.
type View struct {
	*Member
	Statut LifecycleStatus `json:"statut"`
	Payeur string          `json:"payeur"`
	// LinkedCount is the number of other members paid for with the same
	// payment. Only read views fill it in.
	LinkedCount int `json:"linked_count,omitempty"`
}

// NewView resolves the derived facts of m at now. index is the payment index
// of the members m is shown with.
func NewView(m *Member, index map[string][]uuid.UUID, now time.Time) *View {
	v := &View{
		Member: m,
		Statut: ResolveStatus(m, now),
		Payeur: PayeurName(m),
	}
	if m.PaiementID != nil {
		if ids := index[*m.PaiementID]; len(ids) > 1 {
			v.LinkedCount = len(ids) - 1
		}
	}
	return v
}

// Event represents a domain event related to a member.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

const (
	EventMemberEnrolled     = "MemberEnrolled"
	EventPaymentRecorded    = "PaymentRecorded"
	EventPaymentCleared     = "PaymentCleared"
	EventPaymentModeChanged = "PaymentModeChanged"
	EventSignatureRecorded  = "SignatureRecorded"
	EventAdhesionValidated  = "AdhesionValidated"
	EventAdhesionRejected   = "AdhesionRejected"
	EventMemberDeleted      = "MemberDeleted"
)

// MemberEnrolledEvent is published when a member is created.
type MemberEnrolledEvent struct {
	ID     uuid.UUID `json:"id"`
	Nom    string    `json:"nom"`
	Prenom string    `json:"prenom"`
}

// PaymentRecordedEvent is published when a cotisation is marked as paid.
type PaymentRecordedEvent struct {
	ID           uuid.UUID    `json:"id"`
	ModePaiement PaymentMode  `json:"mode_paiement"`
	DatePaiement time.Time    `json:"date_paiement"`
	DateDebut    time.Time    `json:"date_debut"`
	DateFin      time.Time    `json:"date_fin"`
	Status       StoredStatus `json:"status"`
	Processor    bool         `json:"processor"`
}

// PaymentClearedEvent is published when a payment is withdrawn.
type PaymentClearedEvent struct {
	ID uuid.UUID `json:"id"`
}

// PaymentModeChangedEvent is published when an admin corrects the payment mode.
type PaymentModeChangedEvent struct {
	ID           uuid.UUID   `json:"id"`
	ModePaiement PaymentMode `json:"mode_paiement"`
}

// SignatureRecordedEvent is published when the signature flag changes.
type SignatureRecordedEvent struct {
	ID     uuid.UUID    `json:"id"`
	Signed bool         `json:"signed"`
	Status StoredStatus `json:"status"`
}

// AdhesionValidatedEvent is published when the bureau approves a membership.
type AdhesionValidatedEvent struct {
	ID          uuid.UUID `json:"id"`
	ValidatedAt time.Time `json:"validated_at"`
	ValidatedBy string    `json:"validated_by"`
}

// AdhesionRejectedEvent is published when the bureau rejects a membership.
// DonationID is set when the paid amount was converted into a donation.
type AdhesionRejectedEvent struct {
	ID         uuid.UUID  `json:"id"`
	RejectedAt time.Time  `json:"rejected_at"`
	Reason     string     `json:"reason"`
	DonationID *uuid.UUID `json:"donation_id,omitempty"`
	Montant    float64    `json:"montant"`
}

// MemberDeletedEvent is published when an administrator removes a member.
type MemberDeletedEvent struct {
	ID uuid.UUID `json:"id"`
}
