// Package metrics holds the Prometheus collectors of calmirror.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type ctxKey string

const routeLabelKey ctxKey = "metrics_route"

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "calmirror_http_requests_total",
		Help: "Total number of HTTP requests processed.",
	}, []string{"method", "route"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "calmirror_http_request_duration_seconds",
		Help:    "Histogram of latencies for HTTP requests.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	dbLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "calmirror_db_latency_seconds",
		Help:    "Histogram of database operation latencies.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "route"})

	syncAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "calmirror_sync_attempts_total",
		Help: "Sync attempts by resource, mode and result.",
	}, []string{"resource", "mode", "result"})

	syncDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "calmirror_sync_duration_seconds",
		Help:    "Duration of sync attempts that reached the provider.",
		Buckets: prometheus.DefBuckets,
	}, []string{"resource", "mode"})

	lockContention = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "calmirror_sync_lock_contention_total",
		Help: "Sync attempts skipped because another sync held the resource.",
	}, []string{"resource"})

	failedCount = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "calmirror_sync_failed_count",
		Help: "Consecutive failed syncs of a resource.",
	}, []string{"account", "resource", "calendar"})

	notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "calmirror_notifications_total",
		Help: "Webhook notifications by source and result.",
	}, []string{"source", "result"})

	channelOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "calmirror_channel_operations_total",
		Help: "Channel create/close operations with the provider.",
	}, []string{"operation", "result"})
)

// Middleware records request metrics and enriches the context with labels for downstream instrumentation.
func Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			ctx := context.WithValue(r.Context(), routeLabelKey, r.URL.Path)

			next.ServeHTTP(ww, r.WithContext(ctx))

			// chi fills the pattern in while routing, so read it afterwards
			route := routePattern(r)
			status := strconv.Itoa(ww.Status())
			httpRequestsTotal.WithLabelValues(r.Method, route).Inc()
			httpRequestDuration.WithLabelValues(r.Method, route, status).Observe(time.Since(start).Seconds())
		})
	}
}

// Handler exposes the Prometheus metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveDBLatency records database latency for a given operation.
func ObserveDBLatency(ctx context.Context, operation string, start time.Time) {
	dbLatency.WithLabelValues(operation, routeFromContext(ctx)).Observe(time.Since(start).Seconds())
}

// ObserveSync records the result of one sync attempt that took elapsed.
func ObserveSync(resource, mode, result string, elapsed time.Duration) {
	syncAttempts.WithLabelValues(resource, mode, result).Inc()
	if mode != "" {
		syncDuration.WithLabelValues(resource, mode).Observe(elapsed.Seconds())
	}
}

// SyncSkipped counts a sync skipped on lock contention.
func SyncSkipped(resource string) {
	syncAttempts.WithLabelValues(resource, "", "skipped").Inc()
	lockContention.WithLabelValues(resource).Inc()
}

// SetFailedCount exports the consecutive failures of a resource for alerting.
func SetFailedCount(accountID, resource, calendarID string, n int) {
	failedCount.WithLabelValues(accountID, resource, calendarID).Set(float64(n))
}

// ForgetFailedCount drops the series of a resource whose sync was disabled.
func ForgetFailedCount(accountID, resource, calendarID string) {
	failedCount.DeleteLabelValues(accountID, resource, calendarID)
}

// ObserveNotification counts a webhook delivery.
func ObserveNotification(source, result string) {
	notifications.WithLabelValues(source, result).Inc()
}

// ObserveChannelOp counts a channel operation with the provider.
func ObserveChannelOp(operation string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	channelOps.WithLabelValues(operation, result).Inc()
}

func routeFromContext(ctx context.Context) string {
	if route, ok := ctx.Value(routeLabelKey).(string); ok && route != "" {
		return route
	}
	return "background"
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := strings.TrimSpace(rctx.RoutePattern()); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}
