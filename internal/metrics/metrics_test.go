package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMiddlewareUsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware())
	r.Get("/webhooks/{provider}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/webhooks/{provider}"))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/webhooks/google", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, before+1, testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/webhooks/{provider}")))
}

func TestSyncCounters(t *testing.T) {
	before := testutil.ToFloat64(lockContention.WithLabelValues("calendar"))
	SyncSkipped("calendar")
	assert.Equal(t, before+1, testutil.ToFloat64(lockContention.WithLabelValues("calendar")))

	SetFailedCount("acc", "calendar", "cal", 3)
	assert.Equal(t, 3.0, testutil.ToFloat64(failedCount.WithLabelValues("acc", "calendar", "cal")))
	ForgetFailedCount("acc", "calendar", "cal")

	attempts := testutil.ToFloat64(syncAttempts.WithLabelValues("calendar", "full", "ok"))
	ObserveSync("calendar", "full", "ok", 2*time.Second)
	assert.Equal(t, attempts+1, testutil.ToFloat64(syncAttempts.WithLabelValues("calendar", "full", "ok")))
	ObserveDBLatency(context.Background(), "events.upsert", time.Now())
}
