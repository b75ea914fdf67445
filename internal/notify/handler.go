package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/theakshaypant/calmirror/internal/calsync"
	"github.com/theakshaypant/calmirror/internal/core"
	"github.com/theakshaypant/calmirror/internal/metrics"
)

const maxBody = 1 << 20

var errBadRequest = errors.New("malformed notification")

// Receiving is implemented by Receiver.
type Receiving interface {
	Receive(ctx context.Context, n core.Notification) (calsync.Outcome, error)
}

// Handler decodes provider webhook requests.
type Handler struct {
	receiver Receiving
	logger   *slog.Logger
}

// NewHandler creates the webhook handler.
func NewHandler(receiver Receiving, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Handler{receiver: receiver, logger: logger}
}

// Routes mounts the webhook endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/webhooks/google", h.Google)
	r.Post("/webhooks/outlook", h.Outlook)
	r.Post("/webhooks/notifications", h.Generic)
}

// Google handles Calendar API push notifications, which carry everything in
// X-Goog-* headers.
func (h *Handler) Google(w http.ResponseWriter, r *http.Request) {
	n := core.Notification{
		ChannelID:     r.Header.Get("X-Goog-Channel-ID"),
		Token:         r.Header.Get("X-Goog-Channel-Token"),
		ResourceID:    r.Header.Get("X-Goog-Resource-ID"),
		ResourceState: r.Header.Get("X-Goog-Resource-State"),
		MessageNumber: core.NoMessage,
	}
	if raw := r.Header.Get("X-Goog-Message-Number"); raw != "" {
		num, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			h.fail(w, "google", errBadRequest)
			return
		}
		n.MessageNumber = num
	}
	if n.ChannelID == "" {
		h.fail(w, "google", errBadRequest)
		return
	}
	h.deliver(w, r, "google", n, http.StatusOK)
}

type graphNotification struct {
	SubscriptionID string `json:"subscriptionId"`
	ClientState    string `json:"clientState"`
	ChangeType     string `json:"changeType"`
	Resource       string `json:"resource"`
}

// Outlook handles Microsoft Graph change notifications. Subscription
// validation echoes the token; the channel id travels in the "channel" query
// parameter of the notification URL.
func (h *Handler) Outlook(w http.ResponseWriter, r *http.Request) {
	if token := r.URL.Query().Get("validationToken"); token != "" {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, token)
		return
	}

	channelID := r.URL.Query().Get("channel")
	var body struct {
		Value []graphNotification `json:"value"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBody)).Decode(&body); err != nil || channelID == "" {
		h.fail(w, "outlook", errBadRequest)
		return
	}

	for _, item := range body.Value {
		n := core.Notification{
			ChannelID:     channelID,
			Token:         item.ClientState,
			ResourceID:    item.Resource,
			ResourceState: item.ChangeType,
			MessageNumber: core.NoMessage,
		}
		if _, err := h.receiver.Receive(r.Context(), n); err != nil {
			h.fail(w, "outlook", err)
			return
		}
		metrics.ObserveNotification("outlook", "ok")
	}
	w.WriteHeader(http.StatusAccepted)
}

type genericNotification struct {
	ChannelID     string `json:"channelId"`
	Token         string `json:"token"`
	ResourceID    string `json:"resourceId"`
	ResourceState string `json:"resourceState"`
	MessageNumber *int64 `json:"messageNumber"`
}

// Generic handles the provider-neutral JSON payload.
func (h *Handler) Generic(w http.ResponseWriter, r *http.Request) {
	var body genericNotification
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBody)).Decode(&body); err != nil || body.ChannelID == "" {
		h.fail(w, "generic", errBadRequest)
		return
	}
	n := core.Notification{
		ChannelID:     body.ChannelID,
		Token:         body.Token,
		ResourceID:    body.ResourceID,
		ResourceState: body.ResourceState,
		MessageNumber: core.NoMessage,
	}
	if body.MessageNumber != nil {
		n.MessageNumber = *body.MessageNumber
	}
	h.deliver(w, r, "generic", n, http.StatusOK)
}

func (h *Handler) deliver(w http.ResponseWriter, r *http.Request, source string, n core.Notification, okStatus int) {
	if _, err := h.receiver.Receive(r.Context(), n); err != nil {
		h.fail(w, source, err)
		return
	}
	metrics.ObserveNotification(source, "ok")
	w.WriteHeader(okStatus)
}

func (h *Handler) fail(w http.ResponseWriter, source string, err error) {
	status := statusFor(err)
	metrics.ObserveNotification(source, strconv.Itoa(status))
	if status >= http.StatusInternalServerError {
		h.logger.Error("notification failed", "source", source, "error", err)
	} else {
		h.logger.Warn("notification rejected", "source", source, "status", status, "error", err)
	}
	http.Error(w, http.StatusText(status), status)
}

// statusFor maps receiver errors to HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnknownChannel):
		return http.StatusNotFound
	case errors.Is(err, core.ErrTokenMismatch):
		return http.StatusForbidden
	case errors.Is(err, core.ErrChannelClosed):
		return http.StatusGone
	case errors.Is(err, core.ErrChannelInvariant):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
