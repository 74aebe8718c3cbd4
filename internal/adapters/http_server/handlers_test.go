package httpserver_test

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpserver "hotelops/internal/adapters/http_server"
	"hotelops/internal/adapters/memory"
	"hotelops/internal/app"
	"hotelops/internal/domain"
)

func newAPI(t *testing.T, st *memory.Store, reconcile time.Duration) (*app.Session, http.Handler) {
	return newAPIWithTimeout(t, st, reconcile, 5*time.Second)
}

func newAPIWithTimeout(t *testing.T, st *memory.Store, reconcile, httpTimeout time.Duration) (*app.Session, http.Handler) {
	t.Helper()
	s := newSession(st, reconcile)
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(s.Stop)
	return s, mount(s, httpTimeout)
}

func newSession(st *memory.Store, reconcile time.Duration) *app.Session {
	return app.NewSession(app.SessionConfig{
		Store:            st,
		Clock:            func() time.Time { return time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC) },
		ReconcileTimeout: reconcile,
	})
}

func mount(s *app.Session, httpTimeout time.Duration) http.Handler {
	srv := httpserver.New(httpTimeout)
	srv.MountHandlers(&httpserver.Handlers{S: s})
	return srv.Mux()
}

func seed(st *memory.Store) {
	st.Put(domain.CollectionRooms, "1", map[string]any{"number": "101", "type": "single", "price": 80.0, "capacity": 1, "status": "available"})
	st.Put(domain.CollectionRooms, "2", map[string]any{"number": "102", "type": "double", "price": 120.0, "capacity": 2, "status": "occupied"})
	st.Put(domain.CollectionBookings, "a", map[string]any{
		"customer": map[string]any{"name": "Ada"}, "room": map[string]any{"type": "double", "number": "102"},
		"checkIn": "2025-03-12T14:00:00Z", "checkOut": "2025-03-14T11:00:00Z",
		"status": "confirmed", "totalPrice": 6500,
	})
}

func do(h http.Handler, method, path, body string, hdr map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestGetStats_WithETag(t *testing.T) {
	st := memory.New()
	seed(st)
	_, h := newAPI(t, st, time.Second)

	rr := do(h, http.MethodGet, "/v1/stats", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var got app.StatsUpdate
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, 2, got.Stats.TotalRooms)
	assert.Equal(t, 50, got.Stats.OccupancyPercent)
	assert.Equal(t, 6500.0, got.Stats.Revenue)
	assert.Equal(t, 1, got.Stats.UpcomingCheckIns)

	etag := rr.Header().Get("ETag")
	require.NotEmpty(t, etag)
	rr = do(h, http.MethodGet, "/v1/stats", "", map[string]string{"If-None-Match": etag})
	assert.Equal(t, http.StatusNotModified, rr.Code)
}

func TestListRooms_StatusFilter(t *testing.T) {
	st := memory.New()
	seed(st)
	_, h := newAPI(t, st, time.Second)

	rr := do(h, http.MethodGet, "/v1/rooms?status=occupied", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var rooms []domain.Room
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &rooms))
	require.Len(t, rooms, 1)
	assert.Equal(t, "2", rooms[0].ID)

	rr = do(h, http.MethodGet, "/v1/rooms?status=haunted", "", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestOverviewAndBookings(t *testing.T) {
	st := memory.New()
	seed(st)
	_, h := newAPI(t, st, time.Second)

	rr := do(h, http.MethodGet, "/v1/overview", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var ov app.Overview
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &ov))
	assert.Len(t, ov.Rooms, 2)
	assert.Len(t, ov.Bookings, 1)

	rr = do(h, http.MethodGet, "/v1/bookings?status=confirmed", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var bookings []domain.Booking
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &bookings))
	require.Len(t, bookings, 1)
	assert.Equal(t, app.NotAvailable, bookings[0].Customer.Email)
}

func TestReadsBeforeFirstSnapshotsAreUnavailable(t *testing.T) {
	s := newSession(memory.New(), time.Second)
	t.Cleanup(s.Stop)
	h := mount(s, 5*time.Second)

	for _, path := range []string{"/v1/stats", "/v1/overview"} {
		rr := do(h, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusServiceUnavailable, rr.Code, path)
		assert.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"), path)
	}
}

func TestAddRoom_CreatedThenVisible(t *testing.T) {
	st := memory.New()
	s, h := newAPI(t, st, time.Second)

	rr := do(h, http.MethodPost, "/v1/rooms", `{"number":"301","type":"suite","price":250,"capacity":3}`, nil)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var out map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	assert.NotEmpty(t, out["id"])
	assert.Equal(t, "/v1/rooms/"+out["id"], rr.Header().Get("Location"))

	rooms := s.Rooms()
	require.Len(t, rooms, 1)
	assert.Equal(t, "301", rooms[0].Number)
}

func TestAddRoom_ValidationProblem(t *testing.T) {
	_, h := newAPI(t, memory.New(), time.Second)

	rr := do(h, http.MethodPost, "/v1/rooms", `{"type":"suite","capacity":0}`, nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
	var p struct {
		Errors []domain.FieldError `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &p))
	assert.NotEmpty(t, p.Errors)

	rr = do(h, http.MethodPost, "/v1/rooms", `{`, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestUpdateStatus_ErrorMapping(t *testing.T) {
	st := memory.New()
	seed(st)
	s, h := newAPI(t, st, 50*time.Millisecond)

	rr := do(h, http.MethodPatch, "/v1/rooms/2/status", `{"status":"maintenance"}`, nil)
	require.Equal(t, http.StatusNoContent, rr.Code, rr.Body.String())
	assert.Equal(t, domain.RoomMaintenance, s.Rooms()[1].Status)

	rr = do(h, http.MethodPatch, "/v1/rooms/2/status", `{"status":"occupied"}`, nil)
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = do(h, http.MethodPatch, "/v1/rooms/nope/status", `{"status":"occupied"}`, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(h, http.MethodPatch, "/v1/bookings/a/status", `{"status":"pending"}`, nil)
	assert.Equal(t, http.StatusConflict, rr.Code)

	st.FailWrites(errors.New("backend down"))
	rr = do(h, http.MethodPatch, "/v1/bookings/a/status", `{"status":"cancelled"}`, nil)
	assert.Equal(t, http.StatusBadGateway, rr.Code)
	st.FailWrites(nil)

	st.Hold(domain.CollectionBookings, true)
	rr = do(h, http.MethodPatch, "/v1/bookings/a/status", `{"status":"cancelled"}`, nil)
	assert.Equal(t, http.StatusGatewayTimeout, rr.Code)
	assert.Contains(t, rr.Body.String(), `"id":"a"`)
}

func TestUpdateStatus_ReadFailureIsBadGateway(t *testing.T) {
	st := memory.New()
	seed(st)
	_, h := newAPI(t, st, time.Second)

	st.FailQueries(errors.New("backend down"))
	rr := do(h, http.MethodPatch, "/v1/rooms/1/status", `{"status":"occupied"}`, nil)
	assert.Equal(t, http.StatusBadGateway, rr.Code)
	assert.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
}

func TestUpdateStatus_SlowWriteOutlivesReadTimeout(t *testing.T) {
	st := memory.New()
	seed(st)
	_, h := newAPIWithTimeout(t, st, 150*time.Millisecond, 50*time.Millisecond)

	st.DelayWrites(30 * time.Millisecond)
	st.Hold(domain.CollectionRooms, true)
	rr := do(h, http.MethodPatch, "/v1/rooms/1/status", `{"status":"occupied"}`, nil)
	require.Equal(t, http.StatusGatewayTimeout, rr.Code, rr.Body.String())
	assert.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
	assert.Contains(t, rr.Body.String(), `"id":"1"`)

	// reads still honor the server timeout wrapper and answer in time
	rr = do(h, http.MethodGet, "/v1/rooms", "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestStatsStream_SendsCurrentThenUpdates(t *testing.T) {
	st := memory.New()
	seed(st)
	_, h := newAPI(t, st, time.Second)
	ts := httptest.NewServer(h)
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/v1/stats/stream", nil)
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	events := make(chan app.StatsUpdate, 8)
	go func() {
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			line := sc.Text()
			if data, ok := strings.CutPrefix(line, "data: "); ok {
				var u app.StatsUpdate
				if json.Unmarshal([]byte(data), &u) == nil {
					events <- u
				}
			}
		}
	}()

	select {
	case u := <-events:
		assert.Equal(t, 1, u.Stats.OccupiedRooms)
	case <-time.After(2 * time.Second):
		t.Fatal("no initial event")
	}

	st.Put(domain.CollectionRooms, "1", map[string]any{"number": "101", "type": "single", "price": 80.0, "capacity": 1, "status": "occupied"})
	deadline := time.After(2 * time.Second)
	for {
		select {
		case u := <-events:
			if u.Stats.OccupiedRooms == 2 {
				return
			}
		case <-deadline:
			t.Fatal("update not streamed")
		}
	}
}

func TestHealthz(t *testing.T) {
	_, h := newAPI(t, memory.New(), time.Second)
	rr := do(h, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", rr.Body.String())
}
