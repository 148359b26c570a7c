package eventstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrConcurrencyConflict = errors.New("concurrency conflict: version mismatch")
	ErrInvalidVersion      = errors.New("invalid version number")
)

// Event represents a domain event with full metadata
type Event struct {
	ID            int64                  `json:"id" db:"id"`
	AggregateID   uuid.UUID              `json:"aggregate_id" db:"aggregate_id"`
	AggregateType string                 `json:"aggregate_type" db:"aggregate_type"`
	EventType     string                 `json:"event_type" db:"event_type"`
	EventData     json.RawMessage        `json:"event_data" db:"event_data"`
	Metadata      map[string]interface{} `json:"metadata,omitempty" db:"metadata"`
	Version       int                    `json:"version" db:"version"`
	CreatedAt     time.Time              `json:"created_at" db:"created_at"`
}

// EventStore appends member history inside the caller's transaction so that
// events and the records they describe commit together.
type EventStore struct {
	db     *sql.DB
	tracer trace.Tracer
}

// NewEventStore creates a new event store over db.
func NewEventStore(db *sql.DB) *EventStore {
	return &EventStore{
		db:     db,
		tracer: otel.Tracer("cotisations/eventstore"),
	}
}

// AppendEvents appends events within tx with optimistic concurrency control.
// The caller owns tx and decides whether to commit.
func (es *EventStore) AppendEvents(ctx context.Context, tx *sql.Tx, aggregateID uuid.UUID, aggregateType string, expectedVersion int, events []Event) error {
	ctx, span := es.tracer.Start(ctx, "eventstore.append",
		trace.WithAttributes(
			attribute.String("aggregate.id", aggregateID.String()),
			attribute.String("aggregate.type", aggregateType),
			attribute.Int("expected.version", expectedVersion),
			attribute.Int("event.count", len(events)),
		),
	)
	defer span.End()

	if expectedVersion < 0 {
		return ErrInvalidVersion
	}

	var currentVersion int
	err := tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(version), 0)
		FROM events
		WHERE aggregate_id = $1
	`, aggregateID).Scan(&currentVersion)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("query current version: %w", err)
	}

	if currentVersion != expectedVersion {
		span.SetAttributes(
			attribute.Int("actual.version", currentVersion),
			attribute.Bool("conflict.detected", true),
		)
		return ErrConcurrencyConflict
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO events (aggregate_id, aggregate_type, event_type, event_data, metadata, version, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`)
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	for i, event := range events {
		version := expectedVersion + i + 1
		metadataJSON, err := json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata %d: %w", i, err)
		}

		var eventID int64
		err = stmt.QueryRowContext(
			ctx,
			aggregateID,
			aggregateType,
			event.EventType,
			[]byte(event.EventData),
			metadataJSON,
			version,
			time.Now().UTC(),
		).Scan(&eventID)
		if err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code == "23505" {
				return ErrConcurrencyConflict
			}
			return fmt.Errorf("insert event %d: %w", i, err)
		}

		span.AddEvent("event.appended", trace.WithAttributes(
			attribute.Int64("event.id", eventID),
			attribute.Int("event.version", version),
			attribute.String("event.type", event.EventType),
		))
	}

	span.SetAttributes(attribute.Bool("append.success", true))
	return nil
}

// LoadEvents retrieves all events for an aggregate with optional version range
func (es *EventStore) LoadEvents(ctx context.Context, aggregateID uuid.UUID, fromVersion, toVersion int) ([]Event, error) {
	ctx, span := es.tracer.Start(ctx, "eventstore.load",
		trace.WithAttributes(
			attribute.String("aggregate.id", aggregateID.String()),
			attribute.Int("from.version", fromVersion),
			attribute.Int("to.version", toVersion),
		),
	)
	defer span.End()

	query := `
		SELECT id, aggregate_id, aggregate_type, event_type, event_data, metadata, version, created_at
		FROM events
		WHERE aggregate_id = $1
		AND version >= $2
	`

	args := []interface{}{aggregateID, fromVersion}

	if toVersion > 0 {
		query += " AND version <= $3"
		args = append(args, toVersion)
	}

	query += " ORDER BY version ASC"

	rows, err := es.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []Event{}
	for rows.Next() {
		var event Event
		var eventData, metadataJSON []byte

		err := rows.Scan(
			&event.ID,
			&event.AggregateID,
			&event.AggregateType,
			&event.EventType,
			&eventData,
			&metadataJSON,
			&event.Version,
			&event.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		event.EventData = json.RawMessage(eventData)

		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &event.Metadata); err != nil {
				return nil, fmt.Errorf("decode metadata of event %d: %w", event.ID, err)
			}
		}

		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}

	span.SetAttributes(attribute.Int("events.loaded", len(events)))
	return events, nil
}
