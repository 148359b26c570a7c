package export

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cotisations/internal/donation"
	"cotisations/internal/membership"
)

func TestExportRouteCoexistsWithMemberRoutes(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	donations := donation.NewMemoryStore()
	svc := membership.NewService(membership.NewMemoryStore(donations), logger)
	tracker := membership.NewTracker(svc)
	defer tracker.Close()

	_, err := svc.Enroll(context.Background(), membership.EnrollRequest{
		Nom: "Ben", Prenom: "Ali", Genre: membership.GenreHomme, CotisationType: membership.CotisationAnnuelle,
	})
	require.NoError(t, err)

	router := chi.NewRouter()
	NewHandler(svc, logger).Register(router)
	membership.NewHandler(svc, donations, tracker, logger).Register(router)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/members/export.csv", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/csv")

	rows, err := Read(rec.Body)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, membership.StatusEnAttenteValidation, rows[0].Statut)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/members", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
