package handlers

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/vidqueue/backend/internal/membership"
)

// Provider pledge events we apply; anything else is acknowledged and ignored.
var pledgeEvents = map[string]bool{
	"members:pledge:create": true,
	"members:pledge:update": true,
	"members:pledge:delete": true,
}

// WebhookHandler serves POST /webhooks/patreon.
type WebhookHandler struct {
	Membership *membership.Service
	Logger     *slog.Logger
}

func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}
	if !h.Membership.VerifySignature(body, r.Header.Get("X-Patreon-Signature")) {
		h.Logger.Warn("invalid webhook signature")
		writeError(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	event := r.Header.Get("X-Patreon-Event")
	if !pledgeEvents[event] {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	if err := h.Membership.ApplyWebhook(r.Context(), body); err != nil {
		h.Logger.Error("apply webhook", "event", event, "error", err)
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}
