// internal/membership/store_postgres.go
package membership

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"cotisations/internal/donation"
	"cotisations/internal/eventstore"
)

// changeChannel is the LISTEN/NOTIFY channel carrying member changes.
const changeChannel = "member_changes"

const memberColumns = `id, nom, prenom, genre, email, telephone, adresse,
	cotisation_type, cotisation_montant, date_debut, date_fin,
	a_paye, date_paiement, mode_paiement, a_signe, status, paiement_id, inscrit_par,
	validated_at, validated_by, adhesion_refusee_at, adhesion_refusee_raison, reference_virement,
	version, created_at, updated_at`

// PostgresStore persists members in PostgreSQL. Subscribers are fed from
// LISTEN/NOTIFY, so changes made by other instances reach them as well; Listen
// must be running for Subscribe to deliver anything.
type PostgresStore struct {
	hub

	db     *sql.DB
	events *eventstore.EventStore
	logger *slog.Logger
}

func NewPostgresStore(db *sql.DB, logger *slog.Logger) *PostgresStore {
	return &PostgresStore{
		db:     db,
		events: eventstore.NewEventStore(db),
		logger: logger,
	}
}

func (s *PostgresStore) Create(ctx context.Context, t *Transition) (*Member, error) {
	if err := Validate(t.Member); err != nil {
		return nil, err
	}
	m := t.Member.Clone()
	m.Version = 1

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		inscritPar, err := encodePayer(m.InscritPar)
		if err != nil {
			return err
		}
		query := `
			INSERT INTO members (` + memberColumns + `)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18,
				$19, $20, $21, $22, $23, $24, NOW(), NOW())
			RETURNING created_at, updated_at
		`
		err = tx.QueryRowContext(ctx, query,
			m.ID, m.Nom, m.Prenom, m.Genre, m.Email, m.Telephone, m.Adresse,
			m.Cotisation.Type, m.Cotisation.Montant, m.Cotisation.DateDebut, m.Cotisation.DateFin,
			m.APaye, m.DatePaiement, m.ModePaiement, m.ASigne, m.Status, m.PaiementID, inscritPar,
			m.ValidatedAt, m.ValidatedBy, m.AdhesionRefuseeAt, m.AdhesionRefuseeRaison, m.ReferenceVirement,
			m.Version,
		).Scan(&m.CreatedAt, &m.UpdatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrConflict
			}
			return fmt.Errorf("failed to insert member: %w", err)
		}
		if err := s.appendEvent(ctx, tx, m.ID, 0, t.Event); err != nil {
			return err
		}
		return notify(ctx, tx, Change{MemberID: m.ID, Version: m.Version})
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*Member, error) {
	query := `SELECT ` + memberColumns + ` FROM members WHERE id = $1`
	m, err := scanMember(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get member from read model: %w", err)
	}
	return m, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]*Member, error) {
	return s.query(ctx, `SELECT `+memberColumns+` FROM members ORDER BY nom, prenom, id`)
}

func (s *PostgresStore) ListByPaiementID(ctx context.Context, paiementID string) ([]*Member, error) {
	return s.query(ctx, `SELECT `+memberColumns+` FROM members WHERE paiement_id = $1 ORDER BY nom, prenom, id`, paiementID)
}

func (s *PostgresStore) query(ctx context.Context, query string, args ...any) ([]*Member, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	members := []*Member{}
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func (s *PostgresStore) Save(ctx context.Context, expectedVersion int, t *Transition) (*Member, error) {
	if err := Validate(t.Member); err != nil {
		return nil, err
	}
	m := t.Member.Clone()
	m.Version = expectedVersion + 1

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		inscritPar, err := encodePayer(m.InscritPar)
		if err != nil {
			return err
		}
		query := `
			UPDATE members SET
				nom = $3, prenom = $4, genre = $5, email = $6, telephone = $7, adresse = $8,
				cotisation_type = $9, cotisation_montant = $10, date_debut = $11, date_fin = $12,
				a_paye = $13, date_paiement = $14, mode_paiement = $15, a_signe = $16, status = $17,
				paiement_id = $18, inscrit_par = $19, validated_at = $20, validated_by = $21,
				adhesion_refusee_at = $22, adhesion_refusee_raison = $23, reference_virement = $24,
				version = version + 1, updated_at = NOW()
			WHERE id = $1 AND version = $2
			RETURNING created_at, updated_at
		`
		err = tx.QueryRowContext(ctx, query,
			m.ID, expectedVersion,
			m.Nom, m.Prenom, m.Genre, m.Email, m.Telephone, m.Adresse,
			m.Cotisation.Type, m.Cotisation.Montant, m.Cotisation.DateDebut, m.Cotisation.DateFin,
			m.APaye, m.DatePaiement, m.ModePaiement, m.ASigne, m.Status,
			m.PaiementID, inscritPar, m.ValidatedAt, m.ValidatedBy,
			m.AdhesionRefuseeAt, m.AdhesionRefuseeRaison, m.ReferenceVirement,
		).Scan(&m.CreatedAt, &m.UpdatedAt)
		if errors.Is(err, sql.ErrNoRows) {
			return s.missingOrConflict(ctx, tx, m.ID)
		}
		if err != nil {
			return fmt.Errorf("failed to update member: %w", err)
		}

		if t.Donation != nil {
			if err := donation.InsertTx(ctx, tx, t.Donation); err != nil {
				return err
			}
		}
		if err := s.appendEvent(ctx, tx, m.ID, expectedVersion, t.Event); err != nil {
			return err
		}
		return notify(ctx, tx, Change{MemberID: m.ID, Version: m.Version})
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (s *PostgresStore) Delete(ctx context.Context, id uuid.UUID, expectedVersion int) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM members WHERE id = $1 AND version = $2`, id, expectedVersion)
		if err != nil {
			return fmt.Errorf("failed to delete member: %w", err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return fmt.Errorf("failed to delete member: %w", err)
		} else if n == 0 {
			return s.missingOrConflict(ctx, tx, id)
		}
		evt := Event{Type: EventMemberDeleted, Data: MemberDeletedEvent{ID: id}}
		if err := s.appendEvent(ctx, tx, id, expectedVersion, evt); err != nil {
			return err
		}
		return notify(ctx, tx, Change{MemberID: id, Version: expectedVersion + 1, Deleted: true})
	})
}

func (s *PostgresStore) Events(ctx context.Context, id uuid.UUID) ([]eventstore.Event, error) {
	return s.events.LoadEvents(ctx, id, 0, 0)
}

// Listen forwards LISTEN/NOTIFY member changes to subscribers until ctx ends.
func (s *PostgresStore) Listen(ctx context.Context, dsn string) error {
	listener := pq.NewListener(dsn, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			s.logger.Warn("member change listener event", "event", ev, "error", err)
		}
	})
	defer listener.Close()

	if err := listener.Listen(changeChannel); err != nil {
		return fmt.Errorf("listen %s: %w", changeChannel, err)
	}
	s.logger.Info("listening for member changes", "channel", changeChannel)

	known := make(map[uuid.UUID]int)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case n := <-listener.Notify:
			if n == nil {
				// Reconnected; anything notified while down is gone.
				if err := s.resync(ctx, known); err != nil {
					s.logger.Error("failed to resync members after reconnect", "error", err)
				}
				continue
			}
			if c, ok := s.dispatch(ctx, n.Extra); ok {
				track(known, c)
			}
		case <-time.After(90 * time.Second):
			go listener.Ping()
		}
	}
}

// resync publishes the current record of every member, and a deletion for
// each member in known that no longer exists.
func (s *PostgresStore) resync(ctx context.Context, known map[uuid.UUID]int) error {
	members, err := s.List(ctx)
	if err != nil {
		return err
	}
	present := make(map[uuid.UUID]bool, len(members))
	for _, m := range members {
		present[m.ID] = true
		c := Change{MemberID: m.ID, Version: m.Version, Member: m}
		s.publish(c)
		track(known, c)
	}
	for id, version := range known {
		if present[id] {
			continue
		}
		c := Change{MemberID: id, Version: version + 1, Deleted: true}
		s.publish(c)
		track(known, c)
	}
	s.logger.Info("members resynced after reconnect", "members", len(members))
	return nil
}

func track(known map[uuid.UUID]int, c Change) {
	if c.Deleted {
		delete(known, c.MemberID)
		return
	}
	known[c.MemberID] = c.Version
}

func (s *PostgresStore) dispatch(ctx context.Context, payload string) (Change, bool) {
	var c Change
	if err := json.Unmarshal([]byte(payload), &c); err != nil {
		s.logger.Error("invalid member change payload", "payload", payload, "error", err)
		return Change{}, false
	}
	if !c.Deleted {
		m, err := s.Get(ctx, c.MemberID)
		if errors.Is(err, ErrNotFound) {
			return Change{}, false
		}
		if err != nil {
			s.logger.Error("failed to load changed member", "member_id", c.MemberID, "error", err)
			return Change{}, false
		}
		c.Member = m
		c.Version = m.Version
	}
	s.publish(c)
	return c, true
}

func (s *PostgresStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *PostgresStore) appendEvent(ctx context.Context, tx *sql.Tx, id uuid.UUID, expectedVersion int, e Event) error {
	ev, err := toStoreEvent(e)
	if err != nil {
		return err
	}
	if err := s.events.AppendEvents(ctx, tx, id, aggregateType, expectedVersion, []eventstore.Event{ev}); err != nil {
		return translateEventErr(err)
	}
	return nil
}

func (s *PostgresStore) missingOrConflict(ctx context.Context, tx *sql.Tx, id uuid.UUID) error {
	var exists bool
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM members WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check member: %w", err)
	}
	if exists {
		return ErrConflict
	}
	return ErrNotFound
}

// notify queues a change notification; PostgreSQL delivers it on commit only.
func notify(ctx context.Context, tx *sql.Tx, c Change) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal change: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `SELECT pg_notify($1, $2)`, changeChannel, string(payload)); err != nil {
		return fmt.Errorf("failed to notify change: %w", err)
	}
	return nil
}

func encodePayer(p *Payer) (any, error) {
	if p == nil {
		return nil, nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal inscrit_par: %w", err)
	}
	return b, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMember(row scanner) (*Member, error) {
	m := &Member{}
	var (
		dateDebut, dateFin, datePaiement, validatedAt, refuseeAt sql.NullTime
		mode, status, paiementID, validatedBy, raison, reference sql.NullString
		inscritPar                                               []byte
	)
	err := row.Scan(
		&m.ID, &m.Nom, &m.Prenom, &m.Genre, &m.Email, &m.Telephone, &m.Adresse,
		&m.Cotisation.Type, &m.Cotisation.Montant, &dateDebut, &dateFin,
		&m.APaye, &datePaiement, &mode, &m.ASigne, &status, &paiementID, &inscritPar,
		&validatedAt, &validatedBy, &refuseeAt, &raison, &reference,
		&m.Version, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	m.Cotisation.DateDebut = nullTime(dateDebut)
	m.Cotisation.DateFin = nullTime(dateFin)
	m.DatePaiement = nullTime(datePaiement)
	m.ValidatedAt = nullTime(validatedAt)
	m.AdhesionRefuseeAt = nullTime(refuseeAt)
	if mode.Valid {
		m.ModePaiement = ptr(PaymentMode(mode.String))
	}
	if status.Valid {
		m.Status = ptr(StoredStatus(status.String))
	}
	m.PaiementID = nullString(paiementID)
	m.ValidatedBy = nullString(validatedBy)
	m.AdhesionRefuseeRaison = nullString(raison)
	m.ReferenceVirement = nullString(reference)
	if len(inscritPar) > 0 {
		m.InscritPar = &Payer{}
		if err := json.Unmarshal(inscritPar, m.InscritPar); err != nil {
			return nil, fmt.Errorf("decode inscrit_par: %w", err)
		}
	}
	return m, nil
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func nullString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
