// internal/export/handler.go
package export

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"cotisations/internal/membership"
)

// Lister lists members.
type Lister interface {
	ListMembers(ctx context.Context) ([]*membership.View, error)
}

type Handler struct {
	members Lister
	logger  *slog.Logger
	now     func() time.Time
}

func NewHandler(members Lister, logger *slog.Logger) *Handler {
	return &Handler{members: members, logger: logger, now: time.Now}
}

// Register mounts the export endpoint on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/members/export.csv", h.handleExport)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	views, err := h.members.ListMembers(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	members := make([]*membership.Member, 0, len(views))
	for _, v := range views {
		members = append(members, v.Member)
	}

	now := h.now()
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="membres-%s.csv"`, now.Format("2006-01-02")))
	if err := Write(w, members, now); err != nil {
		h.logger.ErrorContext(r.Context(), "failed to write member export", "error", err)
	}
}
