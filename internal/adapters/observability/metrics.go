package observability

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"hotelops/internal/domain"
)

var (
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "hotelops", Name: "http_requests_total", Help: "HTTP requests."},
		[]string{"route", "method", "status"},
	)
	HTTPLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "hotelops", Name: "http_request_duration_seconds",
			Help:    "HTTP request duration seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)
	StoreOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "hotelops", Name: "store_operations_total", Help: "Backend store operations."},
		[]string{"store", "op", "result"},
	)
	StoreLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "hotelops", Name: "store_operation_duration_seconds",
			Help:    "Backend store operation duration seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"store", "op"},
	)
	FeedSnapshots = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "hotelops", Name: "feed_snapshots_total", Help: "Snapshots delivered per collection."},
		[]string{"collection"},
	)
	FeedDecodeIssues = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "hotelops", Name: "feed_decode_issues_total", Help: "Malformed fields healed with defaults."},
		[]string{"collection"},
	)
	FeedErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "hotelops", Name: "feed_errors_total", Help: "Feed subscription failures."},
		[]string{"collection"},
	)
	Mutations = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "hotelops", Name: "mutations_total", Help: "Mutation requests by outcome."},
		[]string{"op", "outcome"}, // outcome: ok|invalid|conflict|write_error|timeout|closed
	)
	ReconcileLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "hotelops", Name: "reconcile_duration_seconds",
			Help:    "Time from write ack to feed echo.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"op"},
	)
	StatsGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Namespace: "hotelops", Name: "dashboard_stat", Help: "Latest dashboard aggregates."},
		[]string{"stat"},
	)
)

// Serve starts a standalone metrics listener for reg. Empty addr disables it.
func Serve(addr string, reg *prometheus.Registry) {
	if addr == "" {
		return // disabled
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", MetricsHandler(reg))

	go func() {
		srv := &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		log.Info().Str("addr", addr).Msg("metrics server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()
}

func InitRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(HTTPRequests, HTTPLatency, StoreOps, StoreLatency,
		FeedSnapshots, FeedDecodeIssues, FeedErrors, Mutations, ReconcileLatency, StatsGauge)
	return reg
}

func MetricsHandler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

func ObserveHTTP(route, method string, status int, dur time.Duration) {
	HTTPRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	HTTPLatency.WithLabelValues(route, method).Observe(dur.Seconds())
}

func ObserveStore(store, op string, err error, dur time.Duration) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	StoreOps.WithLabelValues(store, op, result).Inc()
	StoreLatency.WithLabelValues(store, op).Observe(dur.Seconds())
}

func ObserveSnapshot(collection string, issues int) {
	FeedSnapshots.WithLabelValues(collection).Inc()
	if issues > 0 {
		FeedDecodeIssues.WithLabelValues(collection).Add(float64(issues))
	}
}

func ObserveFeedError(collection string) {
	FeedErrors.WithLabelValues(collection).Inc()
}

func ObserveMutation(op, outcome string) {
	Mutations.WithLabelValues(op, outcome).Inc()
}

func ObserveReconcile(op string, dur time.Duration) {
	ReconcileLatency.WithLabelValues(op).Observe(dur.Seconds())
}

func ObserveStats(s domain.Stats) {
	StatsGauge.WithLabelValues("total_rooms").Set(float64(s.TotalRooms))
	StatsGauge.WithLabelValues("occupied_rooms").Set(float64(s.OccupiedRooms))
	StatsGauge.WithLabelValues("occupancy_percent").Set(float64(s.OccupancyPercent))
	StatsGauge.WithLabelValues("revenue").Set(s.Revenue)
	StatsGauge.WithLabelValues("upcoming_checkins").Set(float64(s.UpcomingCheckIns))
	StatsGauge.WithLabelValues("pending_bookings").Set(float64(s.PendingBookings))
}

func LabelErr(err error) string {
	if err == nil {
		return "none"
	}
	return fmt.Sprintf("%T", err)
}
