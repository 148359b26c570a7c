// internal/donation/store_postgres.go
package donation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const donationColumns = `id, donateur, email, telephone, montant, projet_id, projet_nom,
	mode_paiement, origine, membre_id, eligible_recu_fiscal, date`

// PostgresStore persists donations in the donations table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// InsertTx writes d using tx, letting callers commit it together with other
// records.
func InsertTx(ctx context.Context, tx *sql.Tx, d *Donation) error {
	return insert(ctx, tx, d)
}

func insert(ctx context.Context, db execer, d *Donation) error {
	query := `
		INSERT INTO donations (` + donationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	var membreID any
	if d.MembreID != nil {
		membreID = *d.MembreID
	}
	_, err := db.ExecContext(ctx, query,
		d.ID, d.Donateur, d.Email, d.Telephone, d.Montant, d.ProjetID, d.ProjetNom,
		d.ModePaiement, d.Origine, membreID, d.EligibleRecuFiscal, d.Date,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to insert donation: %w", err)
	}
	return nil
}

func (s *PostgresStore) Add(ctx context.Context, d *Donation) error {
	return insert(ctx, s.db, d)
}

func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*Donation, error) {
	query := `SELECT ` + donationColumns + ` FROM donations WHERE id = $1`
	d, err := scanDonation(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get donation: %w", err)
	}
	return d, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]*Donation, error) {
	return s.query(ctx, `SELECT `+donationColumns+` FROM donations ORDER BY date DESC, id`)
}

func (s *PostgresStore) ListByMember(ctx context.Context, memberID uuid.UUID) ([]*Donation, error) {
	return s.query(ctx, `SELECT `+donationColumns+` FROM donations WHERE membre_id = $1 ORDER BY date DESC, id`, memberID)
}

func (s *PostgresStore) query(ctx context.Context, query string, args ...any) ([]*Donation, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list donations: %w", err)
	}
	defer rows.Close()

	out := []*Donation{}
	for rows.Next() {
		d, err := scanDonation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan donation: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDonation(row scanner) (*Donation, error) {
	d := &Donation{}
	var projetID sql.NullString
	var membreID uuid.NullUUID
	err := row.Scan(
		&d.ID,
		&d.Donateur,
		&d.Email,
		&d.Telephone,
		&d.Montant,
		&projetID,
		&d.ProjetNom,
		&d.ModePaiement,
		&d.Origine,
		&membreID,
		&d.EligibleRecuFiscal,
		&d.Date,
	)
	if err != nil {
		return nil, err
	}
	if projetID.Valid {
		d.ProjetID = &projetID.String
	}
	if membreID.Valid {
		d.MembreID = &membreID.UUID
	}
	return d, nil
}
