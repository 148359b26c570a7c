// internal/reconcile/reconcile.go
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"cotisations/internal/donation"
	"cotisations/internal/membership"
)

// Check is a consistency rule over the whole member and donation ledger.
type Check struct {
	Name       string
	Hypothesis string
	Detect     func(s Snapshot) []Violation
}

// Snapshot is the data a check runs against.
type Snapshot struct {
	Members   []*membership.Member
	Donations []*donation.Donation
	Now       time.Time
}

// Violation is one record breaking a check.
type Violation struct {
	Subject string `json:"subject"`
	Detail  string `json:"detail"`
}

// CheckResult is the outcome of one check.
type CheckResult struct {
	Name           string      `json:"name"`
	Hypothesis     string      `json:"hypothesis"`
	HypothesisHeld bool        `json:"hypothesis_held"`
	Violations     []Violation `json:"violations"`
}

// Report captures one reconciliation run.
type Report struct {
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`
	Members   int           `json:"members"`
	Donations int           `json:"donations"`
	Results   []CheckResult `json:"results"`
}

// Healthy reports whether every check held.
func (r *Report) Healthy() bool {
	for _, res := range r.Results {
		if !res.HypothesisHeld {
			return false
		}
	}
	return true
}

// MemberLister lists every member.
type MemberLister interface {
	List(ctx context.Context) ([]*membership.Member, error)
}

// DonationLister lists every donation.
type DonationLister interface {
	List(ctx context.Context) ([]*donation.Donation, error)
}

// Engine runs checks against the stores.
type Engine struct {
	members    MemberLister
	donations  DonationLister
	checks     []Check
	logger     *slog.Logger
	tracer     trace.Tracer
	violations metric.Int64Counter
	now        func() time.Time
}

// NewEngine creates an engine running checks, or DefaultChecks when none are
// given.
func NewEngine(members MemberLister, donations DonationLister, logger *slog.Logger, checks ...Check) *Engine {
	if len(checks) == 0 {
		checks = DefaultChecks()
	}
	counter, err := otel.Meter("cotisations/reconcile").Int64Counter("cotisations.reconcile.violations",
		metric.WithDescription("Consistency violations found per check"),
	)
	if err != nil {
		logger.Warn("violation counter unavailable", "error", err)
	}
	return &Engine{
		members:    members,
		donations:  donations,
		checks:     checks,
		logger:     logger,
		tracer:     otel.Tracer("cotisations/reconcile"),
		violations: counter,
		now:        time.Now,
	}
}

// RunOnce loads the ledger and runs every check against it.
func (e *Engine) RunOnce(ctx context.Context) (*Report, error) {
	ctx, span := e.tracer.Start(ctx, "reconcile.run")
	defer span.End()

	report := &Report{StartTime: e.now()}

	members, err := e.members.List(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	donations, err := e.donations.List(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list donations: %w", err)
	}
	snap := Snapshot{Members: members, Donations: donations, Now: report.StartTime}
	report.Members = len(members)
	report.Donations = len(donations)

	for _, check := range e.checks {
		span.AddEvent("check", trace.WithAttributes(attribute.String("check.name", check.Name)))
		found := check.Detect(snap)
		report.Results = append(report.Results, CheckResult{
			Name:           check.Name,
			Hypothesis:     check.Hypothesis,
			HypothesisHeld: len(found) == 0,
			Violations:     found,
		})
		if len(found) == 0 {
			continue
		}
		if e.violations != nil {
			e.violations.Add(ctx, int64(len(found)), metric.WithAttributes(attribute.String("check", check.Name)))
		}
		for _, v := range found {
			e.logger.WarnContext(ctx, "consistency violation",
				"check", check.Name,
				"subject", v.Subject,
				"detail", v.Detail,
			)
		}
	}

	report.EndTime = e.now()
	report.Duration = report.EndTime.Sub(report.StartTime)
	span.SetAttributes(attribute.Bool("reconcile.healthy", report.Healthy()))
	return report, nil
}

// Run calls RunOnce every interval until ctx is done.
func (e *Engine) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		report, err := e.RunOnce(ctx)
		if err != nil {
			e.logger.ErrorContext(ctx, "reconciliation failed", "error", err)
		} else {
			e.logger.InfoContext(ctx, "reconciliation finished",
				"healthy", report.Healthy(),
				"members", report.Members,
				"donations", report.Donations,
				"duration", report.Duration,
			)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
