package payment

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/ajirinow/backend/internal/transport"
)

const (
	callbackBodyLimit = 1 << 20
	callbackTimeout   = 15 * time.Second
)

// WebhookHandler receives STK callbacks. It answers 200 with the fixed
// acknowledgement whatever happens internally, or the gateway keeps retrying.
type WebhookHandler struct {
	*transport.BaseHandler
	service ServiceAPI
}

func NewWebhookHandler(base *transport.BaseHandler, service ServiceAPI) *WebhookHandler {
	return &WebhookHandler{BaseHandler: base, service: service}
}

// HandleCallback handles POST /callback and POST /api/v1/mpesa/callback
func (h *WebhookHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	defer h.WriteJSON(w, http.StatusOK, Accepted)

	body, err := io.ReadAll(io.LimitReader(r.Body, callbackBodyLimit))
	if err != nil {
		h.Logger.Error("failed to read payment callback body", "error", err)
		return
	}

	// settlement must not be cut short by the gateway hanging up
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), callbackTimeout)
	defer cancel()

	outcome, err := h.service.HandleCallback(ctx, body)
	if err != nil {
		h.Logger.Error("payment callback not applied", "outcome", outcome, "error", err)
		return
	}
	h.Logger.Info("payment callback handled", "outcome", outcome)
}
