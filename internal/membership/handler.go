// internal/membership/handler.go
package membership

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"cotisations/internal/donation"
)

// Handler exposes the cotisation service over HTTP.
type Handler struct {
	service   Service
	donations donation.Store
	tracker   *Tracker
	logger    *slog.Logger
	now       func() time.Time
}

func NewHandler(service Service, donations donation.Store, tracker *Tracker, logger *slog.Logger) *Handler {
	return &Handler{
		service:   service,
		donations: donations,
		tracker:   tracker,
		logger:    logger,
		now:       time.Now,
	}
}

// Register mounts member endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/members", func(r chi.Router) {
		r.Get("/", h.handleListMembers)
		r.Post("/", h.handleEnroll)
		r.Get("/stream", h.handleStream)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.handleGetMember)
			r.Delete("/", h.handleDeleteMember)
			r.Get("/linked", h.handleLinkedMembers)
			r.Get("/events", h.handleHistory)
			r.Get("/donations", h.handleMemberDonations)
			r.Get("/watch", h.handleWatch)
			r.Put("/payment", h.handleSetPaid)
			r.Put("/payment-mode", h.handleSetPaymentMode)
			r.Put("/signature", h.handleSetSigned)
			r.Post("/validate", h.handleValidate)
			r.Post("/reject", h.handleReject)
		})
	})
	r.Post("/payments/results", h.handlePaymentResult)
}

func (h *Handler) handleListMembers(w http.ResponseWriter, r *http.Request) {
	views, err := h.service.ListMembers(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *Handler) handleEnroll(w http.ResponseWriter, r *http.Request) {
	var req EnrollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	member, err := h.service.Enroll(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	w.Header().Set("ETag", strconv.Itoa(member.Version))
	writeJSON(w, http.StatusCreated, NewView(member, nil, h.now()))
}

func (h *Handler) handleGetMember(w http.ResponseWriter, r *http.Request) {
	id, ok := memberID(w, r)
	if !ok {
		return
	}
	view, err := h.service.GetMember(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("ETag", strconv.Itoa(view.Version))
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) handleDeleteMember(w http.ResponseWriter, r *http.Request) {
	id, ok := memberID(w, r)
	if !ok {
		return
	}
	version, ok := ifMatch(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteMember(r.Context(), id, version, confirmed(r)); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleLinkedMembers(w http.ResponseWriter, r *http.Request) {
	id, ok := memberID(w, r)
	if !ok {
		return
	}
	views, err := h.service.LinkedMembers(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := memberID(w, r)
	if !ok {
		return
	}
	events, err := h.service.History(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (h *Handler) handleMemberDonations(w http.ResponseWriter, r *http.Request) {
	id, ok := memberID(w, r)
	if !ok {
		return
	}
	if _, err := h.service.GetMember(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	donations, err := h.donations.ListByMember(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, donations)
}

func (h *Handler) handleSetPaid(w http.ResponseWriter, r *http.Request) {
	var req struct {
		APaye        bool         `json:"a_paye"`
		ModePaiement *PaymentMode `json:"mode_paiement,omitempty"`
	}
	id, version, ok := h.decodeWrite(w, r, &req)
	if !ok {
		return
	}
	member, err := h.service.SetPaid(r.Context(), id, version, req.APaye, req.ModePaiement)
	h.writeMember(w, r, member, err)
}

func (h *Handler) handleSetPaymentMode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ModePaiement PaymentMode `json:"mode_paiement"`
	}
	id, version, ok := h.decodeWrite(w, r, &req)
	if !ok {
		return
	}
	member, err := h.service.SetPaymentMode(r.Context(), id, version, req.ModePaiement)
	h.writeMember(w, r, member, err)
}

func (h *Handler) handleSetSigned(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ASigne bool `json:"a_signe"`
	}
	id, version, ok := h.decodeWrite(w, r, &req)
	if !ok {
		return
	}
	member, err := h.service.SetSigned(r.Context(), id, version, req.ASigne)
	h.writeMember(w, r, member, err)
}

func (h *Handler) handleValidate(w http.ResponseWriter, r *http.Request) {
	id, ok := memberID(w, r)
	if !ok {
		return
	}
	version, ok := ifMatch(w, r)
	if !ok {
		return
	}
	member, err := h.service.ValidateAdhesion(r.Context(), id, version)
	h.writeMember(w, r, member, err)
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	id, ok := memberID(w, r)
	if !ok {
		return
	}
	version, ok := ifMatch(w, r)
	if !ok {
		return
	}
	member, don, err := h.service.RejectAdhesion(r.Context(), id, version, confirmed(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	w.Header().Set("ETag", strconv.Itoa(member.Version))
	writeJSON(w, http.StatusOK, struct {
		Member   *View              `json:"member"`
		Donation *donation.Donation `json:"donation,omitempty"`
	}{NewView(member, nil, h.now()), don})
}

func (h *Handler) handlePaymentResult(w http.ResponseWriter, r *http.Request) {
	var result PaymentResult
	if err := json.NewDecoder(r.Body).Decode(&result); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	members, err := h.service.RecordProcessorPayment(r.Context(), result)
	if err != nil && len(members) == 0 {
		h.writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if err != nil {
		h.logger.WarnContext(r.Context(), "payment result partially applied",
			"paiement_id", result.PaiementID,
			"updated", len(members),
			"error", err,
		)
		status = http.StatusMultiStatus
	}
	writeJSON(w, status, members)
}

// handleStream pushes member changes as server-sent events. A slow client
// gets the newest record of each changed member, not every intermediate one.
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := startStream(w)
	if !ok {
		return
	}

	queue := newChangeQueue()
	unsubscribe := h.service.Subscribe(queue.push)
	defer unsubscribe()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-queue.ready:
			for _, c := range queue.drain() {
				if err := h.writeEvent(w, c); err != nil {
					return
				}
			}
			flusher.Flush()
		}
	}
}

// handleWatch follows a single member: the current record first, then every
// change until the member is deleted or the client goes away.
func (h *Handler) handleWatch(w http.ResponseWriter, r *http.Request) {
	id, ok := memberID(w, r)
	if !ok {
		return
	}
	changes, cancel := h.tracker.Watch(id)
	defer cancel()

	view, err := h.service.GetMember(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	flusher, ok := startStream(w)
	if !ok {
		return
	}
	if err := h.writeEvent(w, Change{MemberID: id, Version: view.Version, Member: view.Member}); err != nil {
		return
	}
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case c, open := <-changes:
			if !open {
				return
			}
			if c.Version <= view.Version && !c.Deleted {
				continue
			}
			if err := h.writeEvent(w, c); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func startStream(w http.ResponseWriter) (http.Flusher, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return nil, false
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return flusher, true
}

func (h *Handler) writeEvent(w http.ResponseWriter, c Change) error {
	payload := struct {
		ID      uuid.UUID `json:"id"`
		Version int       `json:"version"`
		Deleted bool      `json:"deleted"`
		Member  *View     `json:"member,omitempty"`
	}{ID: c.MemberID, Version: c.Version, Deleted: c.Deleted}
	if c.Member != nil {
		payload.Member = NewView(c.Member, nil, h.now())
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	name := "member"
	if c.Deleted {
		name = "deleted"
	}
	_, err = fmt.Fprintf(w, "event: %s\nid: %s-%d\ndata: %s\n\n", name, c.MemberID, c.Version, data)
	return err
}

func (h *Handler) decodeWrite(w http.ResponseWriter, r *http.Request, req any) (uuid.UUID, int, bool) {
	id, ok := memberID(w, r)
	if !ok {
		return uuid.Nil, 0, false
	}
	version, ok := ifMatch(w, r)
	if !ok {
		return uuid.Nil, 0, false
	}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return uuid.Nil, 0, false
	}
	return id, version, true
}

func (h *Handler) writeMember(w http.ResponseWriter, r *http.Request, member *Member, err error) {
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("ETag", strconv.Itoa(member.Version))
	writeJSON(w, http.StatusOK, NewView(member, nil, h.now()))
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
	}
	http.Error(w, err.Error(), status)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, donation.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrAppOriginatedPayment):
		return http.StatusForbidden
	case errors.Is(err, ErrInvalidTransition):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrConfirmationRequired):
		return http.StatusPreconditionRequired
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func memberID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid member ID", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

// ifMatch reads the expected version from the If-Match header. A missing
// header means AnyVersion.
func ifMatch(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := strings.Trim(r.Header.Get("If-Match"), `" `)
	if raw == "" || raw == "*" {
		return AnyVersion, true
	}
	version, err := strconv.Atoi(raw)
	if err != nil || version < 1 {
		http.Error(w, "invalid If-Match version", http.StatusBadRequest)
		return 0, false
	}
	return version, true
}

func confirmed(r *http.Request) bool {
	ok, _ := strconv.ParseBool(r.URL.Query().Get("confirm"))
	return ok
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
