// internal/adapters/http_server/handlers.go
package httpserver

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"stayhold/internal/app"
	"stayhold/internal/domain"
)

type Handlers struct {
	Cal      *app.Calendar
	Locks    *app.LockManager
	Quotes   *app.QuoteService
	Commit   *app.CommitCoordinator
	Bookings domain.BookingRepository
}

type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`

	// Extra members for availability conflicts (RFC 7807 extension members).
	Conflicts      map[string]domain.DateStatus `json:"conflicts,omitempty"`
	SuggestedStart string                       `json:"suggestedStart,omitempty"`
	Fields         map[string][]string          `json:"fields,omitempty"`
}

func (s *Server) MountHandlers(h *Handlers) {
	s.mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("ok")) })

	s.mux.Get("/v1/properties/{id}/availability", h.getAvailability)
	s.mux.Get("/v1/properties/{id}/next-available", h.nextAvailable)
	s.mux.Post("/v1/properties/{id}/availability/refresh", h.refreshAvailability)
	s.mux.Post("/v1/properties/{id}/block", h.blockDates)

	s.mux.Post("/v1/locks/{id}/release", h.releaseLock)
	s.mux.Post("/v1/locks/{id}/extend", h.extendLock)
	s.mux.Get("/v1/locks/stuck", h.listStuck)

	s.mux.Post("/v1/quotes", h.createQuote)
	s.mux.Post("/v1/quotes/invalidate", h.invalidateQuotes)

	s.mux.Post("/v1/bookings", h.createBooking)
	s.mux.Get("/v1/bookings/{id}", h.getBooking)
}

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	writeProblemFull(w, problem{Type: "about:blank", Title: title, Status: status, Detail: detail})
}

func writeProblemFull(w http.ResponseWriter, p problem) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	if err := json.NewEncoder(w).Encode(p); err != nil {
		log.Error().Err(err).Msg("write JSON problem response failed")
	}
}

// writeDomainError maps the error taxonomy onto HTTP statuses. Anything it
// doesn't recognize becomes a 500 without leaking internals.
func writeDomainError(w http.ResponseWriter, err error) {
	if ve := domain.AsValidationError(err); ve != nil {
		writeProblemFull(w, problem{
			Type: "about:blank", Title: "Validation Failed", Status: http.StatusBadRequest,
			Detail: ve.Error(), Fields: ve.Fields,
		})
		return
	}
	if ce := domain.AsConflictError(err); ce != nil {
		p := problem{
			Type: "about:blank", Title: "Dates Unavailable", Status: http.StatusConflict,
			Detail: ce.Error(), Conflicts: ce.Dates,
		}
		if !ce.SuggestedStart.IsZero() {
			p.SuggestedStart = ce.SuggestedStart.String()
		}
		writeProblemFull(w, p)
		return
	}
	var pe *domain.PaymentError
	if errors.As(err, &pe) {
		writeProblem(w, http.StatusPaymentRequired, "Payment Declined", pe.Error())
		return
	}
	var cf *domain.CommitFailedAfterPayment
	if errors.As(err, &cf) {
		// Payment went through but the booking did not finish. The dates stay
		// held and the lock is flagged for operators, so tell the client to
		// contact support rather than retry.
		writeProblem(w, http.StatusBadGateway, "Booking Incomplete", cf.Error())
		return
	}
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeProblem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, domain.ErrQuoteExpired):
		writeProblem(w, http.StatusGone, "Quote Expired", err.Error())
	case errors.Is(err, domain.ErrQuoteMismatch), errors.Is(err, domain.ErrQuoteSuperseded):
		writeProblem(w, http.StatusConflict, "Quote Mismatch", err.Error())
	case errors.Is(err, domain.ErrLockExpired), errors.Is(err, domain.ErrLockNotActive):
		writeProblem(w, http.StatusConflict, "Hold Not Active", err.Error())
	case errors.Is(err, domain.ErrNotLockHolder):
		writeProblem(w, http.StatusForbidden, "Forbidden", err.Error())
	default:
		log.Error().Err(err).Msg("unhandled request error")
		writeProblem(w, http.StatusInternalServerError, "Internal Error", "unexpected error")
	}
}

// calcETagAndBody marshals once and hashes once, returning both ETag and body.
func calcETagAndBody(v any) (string, []byte) {
	body, err := json.Marshal(v)
	if err != nil {
		// Log but don't fail the whole response; return empty ETag and best-effort body.
		log.Error().Err(err).Msg("failed to marshal object for ETag/body")
		return "", nil
	}
	sum := sha1.Sum(body)
	etag := `W/"` + hex.EncodeToString(sum[:]) + `"`
	return etag, body
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to write JSON body")
	}
}

func propertyID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid Body", "request body must be valid JSON")
		return false
	}
	return true
}

func (h *Handlers) getAvailability(w http.ResponseWriter, r *http.Request) {
	id, ok := propertyID(r)
	if !ok {
		writeProblem(w, http.StatusBadRequest, "Invalid ID", "id must be a positive number")
		return
	}

	window := 0
	if ws := r.URL.Query().Get("window"); ws != "" {
		n, err := strconv.Atoi(ws)
		if err != nil || n <= 0 || n > 730 {
			writeProblem(w, http.StatusBadRequest, "Invalid window", "window must be an integer between 1 and 730")
			return
		}
		window = n
	}

	snap, err := h.Cal.Snapshot(r.Context(), id, window)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	etag, body := calcETagAndBody(snap)
	// If client already has this version, short-circuit.
	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == etag {
		w.Header().Set("ETag", etag) // include ETag on 304
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("ETag", etag)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Msg("failed to write availability body")
	}
}

func (h *Handlers) nextAvailable(w http.ResponseWriter, r *http.Request) {
	id, ok := propertyID(r)
	if !ok {
		writeProblem(w, http.StatusBadRequest, "Invalid ID", "id must be a positive number")
		return
	}

	snap, err := h.Cal.Snapshot(r.Context(), id, app.ResolverHorizonDays)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	start := snap.From
	if ss := r.URL.Query().Get("start"); ss != "" {
		d, err := domain.ParseDate(ss)
		if err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid start", "start must be a YYYY-MM-DD date")
			return
		}
		start = d
	}
	holder := r.URL.Query().Get("holder")

	d, found := app.NextAvailableDate(snap, start, holder)
	if !found {
		writeProblem(w, http.StatusNotFound, "No Availability",
			"no open date within the next "+strconv.Itoa(app.ResolverHorizonDays)+" days")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"date": d.String()})
}

func (h *Handlers) refreshAvailability(w http.ResponseWriter, r *http.Request) {
	id, ok := propertyID(r)
	if !ok {
		writeProblem(w, http.StatusBadRequest, "Invalid ID", "id must be a positive number")
		return
	}
	if err := h.Cal.Refresh(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type blockRequest struct {
	CheckIn  domain.Date `json:"checkIn"`
	CheckOut domain.Date `json:"checkOut"`
	HolderID string      `json:"holderId"`
}

func (h *Handlers) blockDates(w http.ResponseWriter, r *http.Request) {
	id, ok := propertyID(r)
	if !ok {
		writeProblem(w, http.StatusBadRequest, "Invalid ID", "id must be a positive number")
		return
	}
	var req blockRequest
	if !decodeBody(w, r, &req) {
		return
	}

	lock, err := h.Locks.Acquire(r.Context(), id, domain.Nights(req.CheckIn, req.CheckOut), req.HolderID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, lock)
}

func (h *Handlers) releaseLock(w http.ResponseWriter, r *http.Request) {
	if err := h.Locks.Release(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type extendRequest struct {
	// Checkpoint names the flow step the client just reached; "payment"
	// grants the longer payment-window TTL, anything else the default.
	Checkpoint string `json:"checkpoint"`
}

func (h *Handlers) extendLock(w http.ResponseWriter, r *http.Request) {
	var req extendRequest
	if !decodeBody(w, r, &req) {
		return
	}
	ttl := domain.DefaultLockTTL
	if req.Checkpoint == "payment" {
		ttl = domain.PaymentLockTTL
	}
	lock, err := h.Locks.Extend(r.Context(), chi.URLParam(r, "id"), ttl)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lock)
}

func (h *Handlers) listStuck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"locks": h.Locks.Stuck()})
}

type quoteRequest struct {
	HolderID string `json:"holderId"`
	domain.QuoteParams
}

func (h *Handlers) createQuote(w http.ResponseWriter, r *http.Request) {
	var req quoteRequest
	if !decodeBody(w, r, &req) {
		return
	}
	q, err := h.Quotes.Quote(r.Context(), req.HolderID, req.QuoteParams)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, q)
}

type invalidateRequest struct {
	HolderID string `json:"holderId"`
}

func (h *Handlers) invalidateQuotes(w http.ResponseWriter, r *http.Request) {
	var req invalidateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.HolderID == "" {
		writeProblem(w, http.StatusBadRequest, "Invalid Body", "holderId is required")
		return
	}
	h.Quotes.Invalidate(r.Context(), req.HolderID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) createBooking(w http.ResponseWriter, r *http.Request) {
	var req app.CommitRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := h.Commit.Run(r.Context(), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *Handlers) getBooking(w http.ResponseWriter, r *http.Request) {
	b, err := h.Bookings.GetBooking(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	etag, body := calcETagAndBody(b)
	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == etag {
		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("ETag", etag)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Msg("failed to write booking body")
	}
}
