package notify

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/theakshaypant/calmirror/internal/calsync"
	"github.com/theakshaypant/calmirror/internal/core"
)

type mockReceiver struct {
	mock.Mock
}

func (m *mockReceiver) Receive(ctx context.Context, n core.Notification) (calsync.Outcome, error) {
	args := m.Called(n)
	return calsync.Outcome{}, args.Error(0)
}

func newRouter(r Receiving) http.Handler {
	mux := chi.NewRouter()
	NewHandler(r, nil).Routes(mux)
	return mux
}

func TestGoogleWebhook(t *testing.T) {
	rec := new(mockReceiver)
	rec.On("Receive", core.Notification{
		ChannelID:     "ch-1",
		Token:         "secret",
		ResourceID:    "res-9",
		ResourceState: "exists",
		MessageNumber: 42,
	}).Return(nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/webhooks/google", nil)
	req.Header.Set("X-Goog-Channel-ID", "ch-1")
	req.Header.Set("X-Goog-Channel-Token", "secret")
	req.Header.Set("X-Goog-Resource-ID", "res-9")
	req.Header.Set("X-Goog-Resource-State", "exists")
	req.Header.Set("X-Goog-Message-Number", "42")
	w := httptest.NewRecorder()
	newRouter(rec).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	rec.AssertExpectations(t)
}

func TestGoogleWebhook_BadMessageNumber(t *testing.T) {
	rec := new(mockReceiver)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/google", nil)
	req.Header.Set("X-Goog-Channel-ID", "ch-1")
	req.Header.Set("X-Goog-Message-Number", "many")
	w := httptest.NewRecorder()
	newRouter(rec).ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	rec.AssertNotCalled(t, "Receive", mock.Anything)
}

func TestOutlookWebhook_Validation(t *testing.T) {
	rec := new(mockReceiver)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/outlook?validationToken=abc%20123", nil)
	w := httptest.NewRecorder()
	newRouter(rec).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/plain", w.Header().Get("Content-Type"))
	assert.Equal(t, "abc 123", w.Body.String())
	rec.AssertNotCalled(t, "Receive", mock.Anything)
}

func TestOutlookWebhook_Batch(t *testing.T) {
	rec := new(mockReceiver)
	for _, change := range []string{"created", "deleted"} {
		rec.On("Receive", core.Notification{
			ChannelID:     "ch-2",
			Token:         "secret",
			ResourceID:    "me/calendars/cal/events",
			ResourceState: change,
			MessageNumber: core.NoMessage,
		}).Return(nil).Once()
	}

	body := `{"value":[
		{"subscriptionId":"sub","clientState":"secret","changeType":"created","resource":"me/calendars/cal/events"},
		{"subscriptionId":"sub","clientState":"secret","changeType":"deleted","resource":"me/calendars/cal/events"}
	]}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/outlook?channel=ch-2", strings.NewReader(body))
	w := httptest.NewRecorder()
	newRouter(rec).ServeHTTP(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)
	rec.AssertExpectations(t)
}

func TestOutlookWebhook_MissingChannel(t *testing.T) {
	rec := new(mockReceiver)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/outlook", strings.NewReader(`{"value":[]}`))
	w := httptest.NewRecorder()
	newRouter(rec).ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGenericWebhook_StatusMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"accepted", nil, http.StatusOK},
		{"unknown channel", fmt.Errorf("channel x: %w", ErrUnknownChannel), http.StatusNotFound},
		{"token mismatch", fmt.Errorf("channel x: %w", core.ErrTokenMismatch), http.StatusForbidden},
		{"closed", fmt.Errorf("channel x: %w", core.ErrChannelClosed), http.StatusGone},
		{"invariant", core.ErrChannelInvariant, http.StatusUnprocessableEntity},
		{"store failure", fmt.Errorf("connection reset"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := new(mockReceiver)
			rec.On("Receive", core.Notification{
				ChannelID:     "ch-3",
				Token:         "secret",
				MessageNumber: core.NoMessage,
			}).Return(tt.err).Once()

			req := httptest.NewRequest(http.MethodPost, "/webhooks/notifications",
				strings.NewReader(`{"channelId":"ch-3","token":"secret"}`))
			w := httptest.NewRecorder()
			newRouter(rec).ServeHTTP(w, req)

			require.Equal(t, tt.want, w.Code)
			rec.AssertExpectations(t)
		})
	}
}

func TestGenericWebhook_MessageNumber(t *testing.T) {
	rec := new(mockReceiver)
	rec.On("Receive", mock.MatchedBy(func(n core.Notification) bool {
		return n.ChannelID == "ch-3" && n.MessageNumber == 0 && n.ResourceState == "sync"
	})).Return(nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/webhooks/notifications",
		strings.NewReader(`{"channelId":"ch-3","token":"t","resourceState":"sync","messageNumber":0}`))
	w := httptest.NewRecorder()
	newRouter(rec).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	rec.AssertExpectations(t)
}

func TestGenericWebhook_Malformed(t *testing.T) {
	rec := new(mockReceiver)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/notifications", strings.NewReader(`{`))
	w := httptest.NewRecorder()
	newRouter(rec).ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
