package eventstore

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"cotisations/internal/database"
)

// setupTestDB starts PostgreSQL in a container. It skips unless
// TEST_INTEGRATION is set.
func setupTestDB(tb testing.TB) *sql.DB {
	tb.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		tb.Skip("skipping integration test: TEST_INTEGRATION not set")
	}

	ctx := context.Background()
	container, err := postgres.Run(ctx,
		"docker.io/postgres:17-alpine",
		postgres.WithDatabase("events_test"),
		postgres.WithUsername("cotisations"),
		postgres.WithPassword("test-password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(tb, err)
	tb.Cleanup(func() { container.Terminate(ctx) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(tb, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	require.NoError(tb, database.Migrate(dsn, logger))
	db, err := database.Open(ctx, dsn, logger)
	require.NoError(tb, err)
	tb.Cleanup(func() { db.Close() })
	return db
}

func appendInTx(ctx context.Context, db *sql.DB, store *EventStore, id uuid.UUID, expected int, events []Event) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := store.AppendEvents(ctx, tx, id, "member", expected, events); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func TestAppendAndLoadEvents(t *testing.T) {
	db := setupTestDB(t)
	store := NewEventStore(db)
	ctx := context.Background()
	id := uuid.New()

	require.NoError(t, appendInTx(ctx, db, store, id, 0, testEvents(2)))
	require.NoError(t, appendInTx(ctx, db, store, id, 2, testEvents(1)))

	events, err := store.LoadEvents(ctx, id, 0, 0)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, 3, events[2].Version)
	assert.JSONEq(t, `{"n":0}`, string(events[0].EventData))

	ranged, err := store.LoadEvents(ctx, id, 2, 2)
	require.NoError(t, err)
	require.Len(t, ranged, 1)
	assert.Equal(t, 2, ranged[0].Version)
}

func TestAppendEventsConflict(t *testing.T) {
	db := setupTestDB(t)
	store := NewEventStore(db)
	ctx := context.Background()
	id := uuid.New()

	require.NoError(t, appendInTx(ctx, db, store, id, 0, testEvents(1)))
	assert.ErrorIs(t, appendInTx(ctx, db, store, id, 0, testEvents(1)), ErrConcurrencyConflict)
	assert.ErrorIs(t, appendInTx(ctx, db, store, id, -1, testEvents(1)), ErrInvalidVersion)
}

func TestAppendEventsRollsBackWithCaller(t *testing.T) {
	db := setupTestDB(t)
	store := NewEventStore(db)
	ctx := context.Background()
	id := uuid.New()

	tx, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, store.AppendEvents(ctx, tx, id, "member", 0, testEvents(1)))
	require.NoError(t, tx.Rollback())

	events, err := store.LoadEvents(ctx, id, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func BenchmarkAppendEvents(b *testing.B) {
	db := setupTestDB(b)
	store := NewEventStore(db)
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := appendInTx(ctx, db, store, uuid.New(), 0, testEvents(1)); err != nil {
			b.Fatalf("AppendEvents failed: %v", err)
		}
	}
}

func BenchmarkLoadEvents(b *testing.B) {
	db := setupTestDB(b)
	store := NewEventStore(db)
	ctx := context.Background()

	id := uuid.New()
	for i := 0; i < 10; i++ {
		if err := appendInTx(ctx, db, store, id, i, testEvents(1)); err != nil {
			b.Fatalf("failed to set up events: %v", err)
		}
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := store.LoadEvents(ctx, id, 0, 0); err != nil {
			b.Fatalf("LoadEvents failed: %v", err)
		}
	}
}
