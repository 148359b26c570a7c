// internal/export/export.go
package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"cotisations/internal/membership"
)

// Header is the first line of every export.
var Header = []string{
	"nom",
	"prenom",
	"email",
	"telephone",
	"statut",
	"cotisation_type",
	"cotisation_montant",
	"cotisation_date_fin",
}

// ErrMalformed is returned by Read for a file that is not an export.
var ErrMalformed = errors.New("malformed member export")

// Row is one exported member.
type Row struct {
	Nom            string
	Prenom         string
	Email          string
	Telephone      string
	Statut         membership.LifecycleStatus
	CotisationType membership.CotisationType
	Montant        float64
	DateFin        *time.Time
}

// Write flattens members into CSV, with the status resolved at now.
func Write(w io.Writer, members []*membership.Member, now time.Time) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, m := range members {
		dateFin := ""
		if m.Cotisation.DateFin != nil {
			dateFin = m.Cotisation.DateFin.UTC().Format(time.RFC3339Nano)
		}
		record := []string{
			m.Nom,
			m.Prenom,
			m.Email,
			m.Telephone,
			string(membership.ResolveStatus(m, now)),
			string(m.Cotisation.Type),
			strconv.FormatFloat(m.Cotisation.Montant, 'f', -1, 64),
			dateFin,
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Read parses an export produced by Write.
func Read(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(Header)

	head, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: empty file", ErrMalformed)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	for i, name := range Header {
		if head[i] != name {
			return nil, fmt.Errorf("%w: column %d is %q, want %q", ErrMalformed, i+1, head[i], name)
		}
	}

	var rows []Row
	for line := 2; ; line++ {
		record, err := cr.Read()
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		row, err := parseRow(record)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrMalformed, line, err)
		}
		rows = append(rows, row)
	}
}

func parseRow(record []string) (Row, error) {
	montant, err := strconv.ParseFloat(record[6], 64)
	if err != nil {
		return Row{}, fmt.Errorf("cotisation_montant: %w", err)
	}
	row := Row{
		Nom:            record[0],
		Prenom:         record[1],
		Email:          record[2],
		Telephone:      record[3],
		Statut:         membership.LifecycleStatus(record[4]),
		CotisationType: membership.CotisationType(record[5]),
		Montant:        montant,
	}
	if record[7] != "" {
		t, err := time.Parse(time.RFC3339Nano, record[7])
		if err != nil {
			return Row{}, fmt.Errorf("cotisation_date_fin: %w", err)
		}
		row.DateFin = &t
	}
	return row, nil
}

// StatusFromRow re-derives the lifecycle status of an exported member at now.
func StatusFromRow(row Row, now time.Time) membership.LifecycleStatus {
	return membership.StatusFromOverride(string(row.Statut), row.DateFin, now)
}
