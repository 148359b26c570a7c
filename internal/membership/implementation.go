// internal/membership/implementation.go
package membership

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"cotisations/internal/donation"
	"cotisations/internal/eventstore"
)

// ErrRateLimited is returned when payment results arrive faster than allowed.
var ErrRateLimited = errors.New("rate limit exceeded")

const notifyTimeout = 5 * time.Second

const (
	messageValidated = "Assalamou alaykoum, votre adhésion a été validée par le bureau. Bienvenue !"
	messageRejected  = "Assalamou alaykoum, votre demande d'adhésion n'a pas été retenue par le bureau."
	messageConverted = " Le montant versé a été enregistré comme don libre, qu'Allah vous récompense."
)

// service implements the Service interface.
type service struct {
	store       Store
	notifier    Notifier
	logger      *slog.Logger
	now         func() time.Time
	rateLimiter *rate.Limiter
	tracer      trace.Tracer
	transitions metric.Int64Counter
}

// Option configures the service.
type Option func(*service)

// WithNotifier sends a message to the member after the bureau's decision.
func WithNotifier(n Notifier) Option {
	return func(s *service) { s.notifier = n }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *service) { s.now = now }
}

// WithPaymentResultLimit caps how many processor results are accepted per
// minute.
func WithPaymentResultLimit(perMinute int) Option {
	return func(s *service) {
		if perMinute > 0 {
			s.rateLimiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute)
		}
	}
}

// NewService creates a new cotisation service instance.
func NewService(store Store, logger *slog.Logger, opts ...Option) Service {
	s := &service{
		store:       store,
		logger:      logger,
		now:         time.Now,
		rateLimiter: rate.NewLimiter(rate.Every(time.Second), 60),
		tracer:      otel.Tracer("cotisations/membership"),
	}
	for _, opt := range opts {
		opt(s)
	}

	counter, err := otel.Meter("cotisations/membership").Int64Counter("cotisations.transitions",
		metric.WithDescription("Member lifecycle transitions by name and outcome"),
	)
	if err != nil {
		logger.Warn("transition counter unavailable", "error", err)
	}
	s.transitions = counter
	return s
}

// Enroll creates a new member awaiting the bureau's validation.
func (s *service) Enroll(ctx context.Context, req EnrollRequest) (*Member, error) {
	ctx, span := s.tracer.Start(ctx, "membership.enroll")
	defer span.End()

	status := StoredEnAttenteValidation
	if req.Sympathisant {
		status = StoredSympathisant
	}
	cotisationType := req.CotisationType
	if cotisationType == "" {
		cotisationType = CotisationAnnuelle
	}

	m := &Member{
		ID:                uuid.New(),
		Nom:               strings.TrimSpace(req.Nom),
		Prenom:            strings.TrimSpace(req.Prenom),
		Genre:             req.Genre,
		Email:             strings.TrimSpace(req.Email),
		Telephone:         strings.TrimSpace(req.Telephone),
		Adresse:           strings.TrimSpace(req.Adresse),
		Cotisation:        Cotisation{Type: cotisationType, Montant: req.Montant},
		ModePaiement:      req.ModePaiement,
		Status:            &status,
		PaiementID:        req.PaiementID,
		InscritPar:        req.InscritPar,
		ReferenceVirement: req.ReferenceVirement,
	}
	if err := Validate(m); err != nil {
		s.record(ctx, "enroll", err)
		return nil, err
	}

	t := &Transition{
		Member: m,
		Event: Event{Type: EventMemberEnrolled, Data: MemberEnrolledEvent{
			ID:     m.ID,
			Nom:    m.Nom,
			Prenom: m.Prenom,
		}},
	}
	stored, err := s.store.Create(ctx, t)
	s.record(ctx, "enroll", err)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to enroll member: %w", err)
	}

	s.logger.InfoContext(ctx, "member enrolled", "member_id", stored.ID, "status", status)
	return stored, nil
}

// GetMember retrieves a member with its resolved status.
func (s *service) GetMember(ctx context.Context, id uuid.UUID) (*View, error) {
	m, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	group := []*Member{m}
	if m.PaiementID != nil && *m.PaiementID != "" {
		if group, err = s.store.ListByPaiementID(ctx, *m.PaiementID); err != nil {
			return nil, err
		}
	}
	return NewView(m, PaymentIndex(group), s.now()), nil
}

// ListMembers returns every member with its resolved status.
func (s *service) ListMembers(ctx context.Context) ([]*View, error) {
	members, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	return s.views(members, PaymentIndex(members)), nil
}

func (s *service) views(members []*Member, index map[string][]uuid.UUID) []*View {
	now := s.now()
	views := make([]*View, 0, len(members))
	for _, m := range members {
		views = append(views, NewView(m, index, now))
	}
	return views
}

// DeleteMember removes a member. It is irreversible and needs confirm.
func (s *service) DeleteMember(ctx context.Context, id uuid.UUID, version int, confirm bool) error {
	ctx, span := s.startSpan(ctx, "membership.delete", id)
	defer span.End()

	if !confirm {
		return ErrConfirmationRequired
	}
	m, err := s.load(ctx, id, version)
	if err != nil {
		return err
	}
	err = s.store.Delete(ctx, id, m.Version)
	s.record(ctx, "delete", err)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete member: %w", err)
	}
	s.logger.InfoContext(ctx, "member deleted", "member_id", id)
	return nil
}

// SetPaid toggles the paid flag from the admin side.
func (s *service) SetPaid(ctx context.Context, id uuid.UUID, version int, isPaid bool, mode *PaymentMode) (*Member, error) {
	saved, _, err := s.mutate(ctx, "set_paid", id, version, func(m *Member, now time.Time) (*Transition, error) {
		return SetPaid(m, isPaid, mode, now)
	})
	return saved, err
}

// SetPaymentMode corrects the mode of a manual payment.
func (s *service) SetPaymentMode(ctx context.Context, id uuid.UUID, version int, mode PaymentMode) (*Member, error) {
	saved, _, err := s.mutate(ctx, "set_payment_mode", id, version, func(m *Member, _ time.Time) (*Transition, error) {
		return SetPaymentMode(m, mode)
	})
	return saved, err
}

// SetSigned records the signature of the règlement intérieur.
func (s *service) SetSigned(ctx context.Context, id uuid.UUID, version int, isSigned bool) (*Member, error) {
	saved, _, err := s.mutate(ctx, "set_signed", id, version, func(m *Member, _ time.Time) (*Transition, error) {
		return SetSigned(m, isSigned), nil
	})
	return saved, err
}

// ValidateAdhesion approves a pending membership on behalf of the bureau.
func (s *service) ValidateAdhesion(ctx context.Context, id uuid.UUID, version int) (*Member, error) {
	saved, _, err := s.mutate(ctx, "validate_adhesion", id, version, ValidateAdhesion)
	if err != nil {
		return nil, err
	}
	s.notify(ctx, id, messageValidated)
	return saved, nil
}

// RejectAdhesion refuses a pending membership. The paid amount, if any, is
// converted into a donation committed together with the member update.
func (s *service) RejectAdhesion(ctx context.Context, id uuid.UUID, version int, confirm bool) (*Member, *donation.Donation, error) {
	if !confirm {
		return nil, nil, ErrConfirmationRequired
	}
	saved, t, err := s.mutate(ctx, "reject_adhesion", id, version, RejectAdhesion)
	if err != nil {
		return nil, nil, err
	}

	msg := messageRejected
	if t.Donation != nil {
		msg += messageConverted
		s.logger.InfoContext(ctx, "rejected membership converted to donation",
			"member_id", id,
			"donation_id", t.Donation.ID,
			"montant", t.Donation.Montant,
		)
	}
	s.notify(ctx, id, msg)
	return saved, t.Donation, nil
}

// RecordProcessorPayment applies a payment processor result to every member
// it covers. Each member is written on its own; failures are joined.
func (s *service) RecordProcessorPayment(ctx context.Context, result PaymentResult) ([]*Member, error) {
	ctx, span := s.tracer.Start(ctx, "membership.record_processor_payment",
		trace.WithAttributes(
			attribute.String("paiement.id", result.PaiementID),
			attribute.String("paiement.mode", string(result.Mode)),
			attribute.Bool("paiement.paid", result.Paid),
		),
	)
	defer span.End()

	if !s.rateLimiter.Allow() {
		return nil, ErrRateLimited
	}
	if !result.Mode.AppOriginated() {
		return nil, fmt.Errorf("%w: mode %q is not a processor payment mode", ErrValidation, result.Mode)
	}

	ids, err := s.paymentMembers(ctx, result)
	if err != nil {
		return nil, err
	}

	var (
		updated []*Member
		errs    []error
	)
	for _, id := range ids {
		saved, _, err := s.mutate(ctx, "record_processor_payment", id, AnyVersion, func(m *Member, now time.Time) (*Transition, error) {
			return RecordProcessorPayment(m, result.Paid, result.Mode, now)
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("member %s: %w", id, err))
			continue
		}
		updated = append(updated, saved)
	}
	span.SetAttributes(attribute.Int("members.updated", len(updated)))
	return updated, errors.Join(errs...)
}

func (s *service) paymentMembers(ctx context.Context, result PaymentResult) ([]uuid.UUID, error) {
	if len(result.MemberIDs) > 0 {
		return result.MemberIDs, nil
	}
	if result.PaiementID == "" {
		return nil, fmt.Errorf("%w: payment result names no member", ErrValidation)
	}
	members, err := s.store.ListByPaiementID(ctx, result.PaiementID)
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return nil, fmt.Errorf("%w: no member for payment %s", ErrNotFound, result.PaiementID)
	}
	ids := make([]uuid.UUID, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.ID)
	}
	return ids, nil
}

// LinkedMembers lists the other members paid for with the same payment.
func (s *service) LinkedMembers(ctx context.Context, id uuid.UUID) ([]*View, error) {
	m, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if m.PaiementID == nil || *m.PaiementID == "" {
		return []*View{}, nil
	}
	group, err := s.store.ListByPaiementID(ctx, *m.PaiementID)
	if err != nil {
		return nil, err
	}
	return s.views(LinkedMembers(m, group), PaymentIndex(group)), nil
}

// History returns the recorded events of a member.
func (s *service) History(ctx context.Context, id uuid.UUID) ([]eventstore.Event, error) {
	return s.store.Events(ctx, id)
}

func (s *service) Subscribe(fn func(Change)) func() {
	return s.store.Subscribe(fn)
}

// mutate loads a member, applies op and saves the result against the loaded
// version.
func (s *service) mutate(ctx context.Context, name string, id uuid.UUID, version int, op func(*Member, time.Time) (*Transition, error)) (*Member, *Transition, error) {
	ctx, span := s.startSpan(ctx, "membership."+name, id)
	defer span.End()

	m, err := s.load(ctx, id, version)
	if err != nil {
		s.record(ctx, name, err)
		return nil, nil, err
	}

	t, err := op(m, s.now())
	if err != nil {
		s.record(ctx, name, err)
		s.logger.WarnContext(ctx, "transition refused",
			"transition", name,
			"member_id", id,
			"status", ResolveStatus(m, s.now()),
			"error", err,
		)
		return nil, nil, err
	}

	saved, err := s.store.Save(ctx, m.Version, t)
	s.record(ctx, name, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.ErrorContext(ctx, "failed to save transition",
			"transition", name,
			"member_id", id,
			"version", m.Version,
			"error", err,
		)
		return nil, nil, fmt.Errorf("failed to save member: %w", err)
	}

	s.logger.InfoContext(ctx, "member updated",
		"transition", name,
		"member_id", id,
		"version", saved.Version,
		"status", ResolveStatus(saved, s.now()),
	)
	return saved, t, nil
}

func (s *service) load(ctx context.Context, id uuid.UUID, version int) (*Member, error) {
	m, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if version != AnyVersion && m.Version != version {
		return nil, ErrConflict
	}
	return m, nil
}

func (s *service) notify(ctx context.Context, id uuid.UUID, text string) {
	if s.notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	if err := s.notifier.SendMessageToMember(ctx, id, text); err != nil {
		s.logger.WarnContext(ctx, "failed to notify member", "member_id", id, "error", err)
	}
}

func (s *service) startSpan(ctx context.Context, name string, id uuid.UUID) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name, trace.WithAttributes(attribute.String("member.id", id.String())))
}

func (s *service) record(ctx context.Context, name string, err error) {
	if s.transitions == nil {
		return
	}
	outcome := "ok"
	switch {
	case err == nil:
	case errors.Is(err, ErrConflict):
		outcome = "conflict"
	case errors.Is(err, ErrValidation), errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrAppOriginatedPayment):
		outcome = "refused"
	default:
		outcome = "error"
	}
	s.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("transition", name),
		attribute.String("outcome", outcome),
	))
}
