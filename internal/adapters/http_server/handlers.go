// internal/adapters/http_server/handlers.go
package httpserver

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"hotelops/internal/app"
	"hotelops/internal/domain"
)

const maxBodyBytes = 1 << 20

type Handlers struct{ S *app.Session }

type problem struct {
	Type   string              `json:"type"`
	Title  string              `json:"title"`
	Status int                 `json:"status"`
	Detail string              `json:"detail,omitempty"`
	ID     string              `json:"id,omitempty"`
	Errors []domain.FieldError `json:"errors,omitempty"`
}

func (s *Server) MountHandlers(h *Handlers) {
	s.mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("ok")) })

	// streaming stays outside the timeout wrapper
	s.mux.Get("/v1/stats/stream", h.streamStats)

	s.mux.Group(func(r chi.Router) {
		r.Use(Timeout(s.timeout))
		r.Get("/v1/stats", h.getStats)
		r.Get("/v1/overview", h.getOverview)
		r.Get("/v1/rooms", h.listRooms)
		r.Get("/v1/bookings", h.listBookings)
	})

	// Writes are bounded by the gateway's write and reconcile deadlines so
	// their outcome always reaches the client as a problem response.
	s.mux.Post("/v1/rooms", h.addRoom)
	s.mux.Patch("/v1/rooms/{id}/status", h.updateRoomStatus)
	s.mux.Post("/v1/bookings", h.addBooking)
	s.mux.Patch("/v1/bookings/{id}/status", h.updateBookingStatus)
}

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	writeProblemBody(w, problem{Type: "about:blank", Title: title, Status: status, Detail: detail})
}

func writeProblemBody(w http.ResponseWriter, p problem) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	if err := json.NewEncoder(w).Encode(p); err != nil {
		log.Error().Err(err).Msg("write JSON problem response failed")
	}
}

// writeError maps gateway errors onto problem responses.
func writeError(w http.ResponseWriter, err error, id string) {
	var (
		verr *domain.ValidationError
		terr *domain.TransitionError
		werr *domain.MutationWriteError
		rerr *domain.ReconciliationTimeout
	)
	p := problem{Type: "about:blank", Detail: err.Error(), ID: id}
	switch {
	case errors.As(err, &verr):
		p.Status, p.Title, p.Errors = http.StatusBadRequest, "Invalid "+verr.Entity, verr.Fields
	case errors.As(err, &terr):
		p.Status, p.Title = http.StatusConflict, "Illegal status transition"
	case errors.Is(err, domain.ErrNotFound):
		p.Status, p.Title = http.StatusNotFound, "Not Found"
	case errors.As(err, &werr):
		p.Status, p.Title = http.StatusBadGateway, "Write failed"
	case errors.As(err, &rerr):
		p.Status, p.Title = http.StatusGatewayTimeout, "Write not yet visible"
		if p.ID == "" {
			p.ID = rerr.ID
		}
	case errors.Is(err, domain.ErrSessionClosed):
		p.Status, p.Title = http.StatusServiceUnavailable, "Session closed"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		p.Status, p.Title = http.StatusRequestTimeout, "Request abandoned"
	default:
		p.Status, p.Title = http.StatusInternalServerError, "Internal Server Error"
		log.Error().Err(err).Msg("unmapped gateway error")
	}
	writeProblemBody(w, p)
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

// writeCached answers 304 when the client already holds this exact body.
func writeCached(w http.ResponseWriter, r *http.Request, v any, what string) {
	etag, body := calcETagAndBody(v)
	writeTagged(w, r, etag, body, what)
}

// writeCachedBy tags the body with key's hash, for payloads carrying a
// timestamp that changes on every read.
func writeCachedBy(w http.ResponseWriter, r *http.Request, key, v any, what string) {
	etag, _ := calcETagAndBody(key)
	body, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msgf("failed to marshal %s body", what)
	}
	writeTagged(w, r, etag, body, what)
}

func writeTagged(w http.ResponseWriter, r *http.Request, etag string, body []byte, what string) {
	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == etag {
		w.Header().Set("ETag", etag) // include ETag on 304
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("ETag", etag)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Msgf("failed to write %s body", what)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("write JSON response failed")
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		writeProblem(w, http.StatusBadRequest, "Malformed body", err.Error())
		return false
	}
	return true
}

/********** reads **********/

func (h *Handlers) getStats(w http.ResponseWriter, r *http.Request) {
	u, ok := h.S.Stats()
	if !ok {
		writeProblem(w, http.StatusServiceUnavailable, "Not ready", "waiting for the first snapshots")
		return
	}
	writeCachedBy(w, r, statsKey(u), u, "stats")
}

func (h *Handlers) getOverview(w http.ResponseWriter, r *http.Request) {
	ov, ok := h.S.Overview()
	if !ok {
		writeProblem(w, http.StatusServiceUnavailable, "Not ready", "waiting for the first snapshots")
		return
	}
	key := struct {
		Stats    any
		Rooms    []domain.Room
		Bookings []domain.Booking
	}{statsKey(app.StatsUpdate{Stats: ov.Stats, RoomsVersion: ov.RoomsVersion, BookingsVersion: ov.BookingsVersion}), ov.Rooms, ov.Bookings}
	writeCachedBy(w, r, key, ov, "overview")
}

// statsKey drops ComputedAt: equal stats over equal versions are the same
// representation.
func statsKey(u app.StatsUpdate) any {
	u.ComputedAt = time.Time{}
	return u
}

func (h *Handlers) listRooms(w http.ResponseWriter, r *http.Request) {
	rooms := h.S.Rooms()
	if st := strings.ToLower(r.URL.Query().Get("status")); st != "" {
		if !domain.RoomStatus(st).Valid() {
			writeProblem(w, http.StatusBadRequest, "Invalid status", "status must be one of: available occupied maintenance")
			return
		}
		out := rooms[:0]
		for _, rm := range rooms {
			if string(rm.Status) == st {
				out = append(out, rm)
			}
		}
		rooms = out
	}
	writeCached(w, r, rooms, "rooms")
}

func (h *Handlers) listBookings(w http.ResponseWriter, r *http.Request) {
	bookings := h.S.Bookings()
	if st := strings.ToLower(r.URL.Query().Get("status")); st != "" {
		if !domain.BookingStatus(st).Valid() {
			writeProblem(w, http.StatusBadRequest, "Invalid status", "status must be one of: pending confirmed cancelled completed")
			return
		}
		out := bookings[:0]
		for _, b := range bookings {
			if string(b.Status) == st {
				out = append(out, b)
			}
		}
		bookings = out
	}
	writeCached(w, r, bookings, "bookings")
}

// streamStats pushes every stats recomputation as a server-sent event.
func (h *Handlers) streamStats(w http.ResponseWriter, r *http.Request) {
	fl, ok := w.(http.Flusher)
	if !ok {
		writeProblem(w, http.StatusInternalServerError, "Streaming unsupported", "")
		return
	}
	// subscribe first so nothing slips between the current value and the stream
	updates, done := h.S.Hub().Subscribe(r.Context())
	defer done()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	send := func(u app.StatsUpdate) bool {
		b, err := json.Marshal(u)
		if err != nil {
			log.Error().Err(err).Msg("marshal stats event")
			return false
		}
		if _, err := fmt.Fprintf(w, "event: stats\ndata: %s\n\n", b); err != nil {
			return false
		}
		fl.Flush()
		return true
	}

	var last domain.Stats
	if u, ok := h.S.Stats(); ok {
		if !send(u) {
			return
		}
		last = u.Stats
	}
	fl.Flush()

	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case u, ok := <-updates:
			if !ok || !send(u) {
				return
			}
			last = u.Stats
		case <-heartbeat.C:
			// time-relative counters age without a feed delivery
			if u, ok := h.S.Stats(); ok && u.Stats != last {
				if !send(u) {
					return
				}
				last = u.Stats
				continue
			}
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			fl.Flush()
		}
	}
}

/********** writes **********/

type statusBody struct {
	Status string `json:"status"`
}

func (h *Handlers) addRoom(w http.ResponseWriter, r *http.Request) {
	var in domain.NewRoom
	if !decodeBody(w, r, &in) {
		return
	}
	id, err := h.S.Gateway().AddRoom(r.Context(), in)
	if err != nil {
		writeError(w, err, id)
		return
	}
	w.Header().Set("Location", "/v1/rooms/"+id)
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (h *Handlers) addBooking(w http.ResponseWriter, r *http.Request) {
	var in domain.NewBooking
	if !decodeBody(w, r, &in) {
		return
	}
	id, err := h.S.Gateway().AddBooking(r.Context(), in)
	if err != nil {
		writeError(w, err, id)
		return
	}
	w.Header().Set("Location", "/v1/bookings/"+id)
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (h *Handlers) updateRoomStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var body statusBody
	if !decodeBody(w, r, &body) {
		return
	}
	st := domain.RoomStatus(strings.ToLower(strings.TrimSpace(body.Status)))
	if err := h.S.Gateway().UpdateRoomStatus(r.Context(), id, st); err != nil {
		writeError(w, err, id)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) updateBookingStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var body statusBody
	if !decodeBody(w, r, &body) {
		return
	}
	st := domain.BookingStatus(strings.ToLower(strings.TrimSpace(body.Status)))
	if err := h.S.Gateway().UpdateBookingStatus(r.Context(), id, st); err != nil {
		writeError(w, err, id)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
