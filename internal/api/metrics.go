package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/seantiz/infernum/internal/engine"
)

const unmatched = "unmatched"

// Values of the result label on submissionsTotal.
const (
	submissionScheduled   = "scheduled"
	submissionBusy        = "busy"
	submissionInvalid     = "invalid"
	submissionUnavailable = "unavailable"
	submissionFailed      = "failed"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "infernum_http_requests_total",
			Help: "Total number of HTTP requests, by method, route and status.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "infernum_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds, excluding state streams.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	submissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "infernum_inference_submissions_total",
			Help: "Inference submissions, by how the server answered them.",
		},
		[]string{"result"},
	)

	resultPollsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "infernum_result_polls_total",
			Help: "Result polls, by poll outcome.",
		},
		[]string{"outcome"},
	)

	stateStreamClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "infernum_state_stream_clients",
			Help: "Clients currently subscribed to the engine state stream.",
		},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal, httpRequestDuration, submissionsTotal, resultPollsTotal, stateStreamClients)

	for _, r := range []string{submissionScheduled, submissionBusy, submissionInvalid, submissionUnavailable, submissionFailed} {
		submissionsTotal.WithLabelValues(r)
	}
	for _, s := range []engine.PollStatus{engine.PollSuccess, engine.PollError, engine.PollEmpty} {
		resultPollsTotal.WithLabelValues(s.String())
	}
}

// instrument logs every request and records its count and latency. Routes
// are labelled by chi pattern with the /v1 prefix folded away, so the
// versioned endpoints and their unversioned aliases share one series.
// State streams are counted but kept out of the latency histogram since
// they last as long as the client stays connected.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		elapsed := time.Since(start)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := routeLabel(r)

		httpRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		if route != "/state/stream" {
			httpRequestDuration.WithLabelValues(route).Observe(elapsed.Seconds())
		}

		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"duration_ms", elapsed.Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// routeLabel returns the matched chi pattern without its API version prefix.
func routeLabel(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil || rctx.RoutePattern() == "" {
		return unmatched
	}
	if p := strings.TrimPrefix(rctx.RoutePattern(), "/v1"); p != "" {
		return p
	}
	return "/"
}

func metricsHandler() http.Handler {
	return promhttp.Handler()
}
