// internal/membership/transitions.go
package membership

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"cotisations/internal/donation"
)

// Transition is the outcome of an operation on a member: the next state of the
// record, the event describing the change and, for a rejected membership, the
// donation that must be written in the same transaction.
type Transition struct {
	Member   *Member
	Event    Event
	Donation *donation.Donation
}

// SetPaid marks the cotisation of m as paid or unpaid from the admin side.
// Members whose payment came through the payment processor are read-only here.
//
// A payment always opens a new period starting at now, whatever remained of
// the previous one.
func SetPaid(m *Member, isPaid bool, mode *PaymentMode, now time.Time) (*Transition, error) {
	if m.ModePaiement != nil && m.ModePaiement.AppOriginated() {
		return nil, ErrAppOriginatedPayment
	}
	if mode != nil && mode.AppOriginated() {
		return nil, ErrAppOriginatedPayment
	}
	return applyPayment(m, isPaid, mode, now, false)
}

// RecordProcessorPayment applies a payment result reported by the external
// payment processor. Only app-originated modes are accepted.
func RecordProcessorPayment(m *Member, isPaid bool, mode PaymentMode, now time.Time) (*Transition, error) {
	if !mode.AppOriginated() {
		return nil, fmt.Errorf("%w: mode %q is not a processor payment mode", ErrValidation, mode)
	}
	return applyPayment(m, isPaid, &mode, now, true)
}

func applyPayment(m *Member, isPaid bool, mode *PaymentMode, now time.Time, processor bool) (*Transition, error) {
	if mode != nil && !mode.Valid() {
		return nil, fmt.Errorf("%w: unknown payment mode %q", ErrValidation, *mode)
	}

	next := m.Clone()
	if !isPaid {
		next.APaye = false
		next.DatePaiement = nil
		next.Status = ptr(StoredEnAttentePaiement)
		return &Transition{
			Member: next,
			Event:  Event{Type: EventPaymentCleared, Data: PaymentClearedEvent{ID: m.ID}},
		}, nil
	}

	resolved := PaymentEspeces
	switch {
	case mode != nil:
		resolved = *mode
	case m.ModePaiement != nil:
		resolved = *m.ModePaiement
	}

	dateFin := periodEnd(m.Cotisation.Type, now)
	next.APaye = true
	next.DatePaiement = ptr(now)
	next.ModePaiement = ptr(resolved)
	next.Cotisation.DateDebut = ptr(now)
	next.Cotisation.DateFin = ptr(dateFin)
	if m.ASigne {
		next.Status = ptr(StoredActif)
	} else {
		next.Status = ptr(StoredEnAttenteSignature)
	}

	return &Transition{
		Member: next,
		Event: Event{Type: EventPaymentRecorded, Data: PaymentRecordedEvent{
			ID:           m.ID,
			ModePaiement: resolved,
			DatePaiement: now,
			DateDebut:    now,
			DateFin:      dateFin,
			Status:       *next.Status,
			Processor:    processor,
		}},
	}, nil
}

// periodEnd is one month after start for monthly dues, one year otherwise.
func periodEnd(t CotisationType, start time.Time) time.Time {
	if t == CotisationMensuelle {
		return start.AddDate(0, 1, 0)
	}
	return start.AddDate(1, 0, 0)
}

// SetPaymentMode corrects the payment mode of a paid cotisation. The status is
// left untouched.
func SetPaymentMode(m *Member, mode PaymentMode) (*Transition, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("%w: unknown payment mode %q", ErrValidation, mode)
	}
	if !m.APaye {
		return nil, fmt.Errorf("%w: cotisation is not paid", ErrInvalidTransition)
	}
	if mode.AppOriginated() || (m.ModePaiement != nil && m.ModePaiement.AppOriginated()) {
		return nil, ErrAppOriginatedPayment
	}

	next := m.Clone()
	next.ModePaiement = ptr(mode)
	return &Transition{
		Member: next,
		Event:  Event{Type: EventPaymentModeChanged, Data: PaymentModeChangedEvent{ID: m.ID, ModePaiement: mode}},
	}, nil
}

// SetSigned records whether the member signed the règlement intérieur and
// recomputes the status from the paid and signed flags.
func SetSigned(m *Member, isSigned bool) *Transition {
	next := m.Clone()
	next.ASigne = isSigned
	next.Status = ptr(signatureStatus(m.APaye, isSigned))
	return &Transition{
		Member: next,
		Event: Event{Type: EventSignatureRecorded, Data: SignatureRecordedEvent{
			ID:     m.ID,
			Signed: isSigned,
			Status: *next.Status,
		}},
	}
}

func signatureStatus(paid, signed bool) StoredStatus {
	switch {
	case paid && signed:
		return StoredActif
	case paid:
		return StoredEnAttenteSignature
	default:
		return StoredEnAttentePaiement
	}
}

// ValidateAdhesion records the bureau's approval of a pending membership.
// Validating a member the bureau already approved succeeds again and only
// refreshes the audit timestamp.
func ValidateAdhesion(m *Member, now time.Time) (*Transition, error) {
	if ResolveStatus(m, now) != StatusEnAttenteValidation && !validatedByBureau(m) {
		return nil, fmt.Errorf("%w: member is %s", ErrInvalidTransition, ResolveStatus(m, now))
	}

	next := m.Clone()
	next.Status = ptr(StoredActif)
	next.ValidatedAt = ptr(now)
	next.ValidatedBy = ptr(ValidatedByBureau)
	return &Transition{
		Member: next,
		Event: Event{Type: EventAdhesionValidated, Data: AdhesionValidatedEvent{
			ID:          m.ID,
			ValidatedAt: now,
			ValidatedBy: ValidatedByBureau,
		}},
	}, nil
}

func validatedByBureau(m *Member) bool {
	return m.Status != nil && *m.Status == StoredActif &&
		m.ValidatedBy != nil && *m.ValidatedBy == ValidatedByBureau
}

// RejectAdhesion turns a pending membership back into a sympathisant. Any
// amount already paid becomes an unrestricted donation; the returned
// Transition carries both records and they must be persisted together.
func RejectAdhesion(m *Member, now time.Time) (*Transition, error) {
	if status := ResolveStatus(m, now); status != StatusEnAttenteValidation {
		return nil, fmt.Errorf("%w: member is %s", ErrInvalidTransition, status)
	}

	var don *donation.Donation
	if montant := m.Cotisation.Montant; montant > 0 {
		mode := donation.ModeAutre
		if m.ModePaiement != nil {
			mode = string(*m.ModePaiement)
		}
		membreID := m.ID
		don = &donation.Donation{
			ID:                 uuid.New(),
			Donateur:           m.FullName(),
			Email:              m.Email,
			Telephone:          m.Telephone,
			Montant:            montant,
			ProjetID:           nil,
			ProjetNom:          donation.ProjetDonLibre,
			ModePaiement:       mode,
			Origine:            donation.OrigineAdhesionRefusee,
			MembreID:           &membreID,
			EligibleRecuFiscal: true,
			Date:               now,
		}
	}

	next := m.Clone()
	next.Status = ptr(StoredSympathisant)
	next.AdhesionRefuseeAt = ptr(now)
	next.AdhesionRefuseeRaison = ptr(RefusalReasonBureau)
	next.Cotisation.DateDebut = nil
	next.Cotisation.DateFin = nil
	next.APaye = false
	next.DatePaiement = nil

	evt := AdhesionRejectedEvent{
		ID:         m.ID,
		RejectedAt: now,
		Reason:     RefusalReasonBureau,
		Montant:    m.Cotisation.Montant,
	}
	if don != nil {
		evt.DonationID = ptr(don.ID)
	}

	return &Transition{
		Member:   next,
		Event:    Event{Type: EventAdhesionRejected, Data: evt},
		Donation: don,
	}, nil
}
