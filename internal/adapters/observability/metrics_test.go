package observability_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"hotelops/internal/adapters/observability"
	"hotelops/internal/domain"
)

func TestMetricsRegistryAndHandler(t *testing.T) {
	reg := observability.InitRegistry()

	// record samples so the vectors have children
	observability.ObserveHTTP("/test", "GET", 200, 12*time.Millisecond)
	observability.ObserveSnapshot(domain.CollectionRooms, 2)
	observability.ObserveStats(domain.Stats{TotalRooms: 4, OccupiedRooms: 1, OccupancyPercent: 25})

	mh := observability.MetricsHandler(reg)
	req := httptest.NewRequest("GET", "/metrics", nil)
	rr := httptest.NewRecorder()
	mh.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("metrics status: %d", rr.Code)
	}
	body, _ := io.ReadAll(rr.Body)
	out := string(body)
	for _, want := range []string{
		"hotelops_http_requests_total",
		`hotelops_feed_decode_issues_total{collection="rooms"}`,
		`hotelops_dashboard_stat{stat="occupancy_percent"} 25`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %s in output", want)
		}
	}
}

func TestLabelErr(t *testing.T) {
	if got := observability.LabelErr(nil); got != "none" {
		t.Fatalf("got %q", got)
	}
	if got := observability.LabelErr(&domain.MutationWriteError{}); got != "*domain.MutationWriteError" {
		t.Fatalf("got %q", got)
	}
}
