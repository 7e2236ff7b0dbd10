package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/vidqueue/backend/internal/membership"
)

// SubscribeHandler serves the subscribe page data and the manual membership
// refresh, rate limited per account.
type SubscribeHandler struct {
	Membership   *membership.Service
	Entitlements AllowanceReader
	SubscribeURL string
	Logger       *slog.Logger
}

// Subscribe handles GET /subscribe.
func (h *SubscribeHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	acc := requireAccount(w, r)
	if acc == nil {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"is_active_patron":  acc.IsActivePatron(),
		"patron_status":     acc.PatronStatus,
		"tier_cents":        acc.PatronTierCents,
		"monthly_allowance": h.Entitlements.AllowanceFor(acc),
		"subscribe_url":     h.SubscribeURL,
	})
}

// Refresh handles POST /subscribe/refresh. A 15 second cooldown per account
// keeps patrons from hammering the provider while waiting for a pledge to
// propagate.
func (h *SubscribeHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	acc := requireAccount(w, r)
	if acc == nil {
		return
	}
	if rem := h.Membership.CooldownRemaining(acc.ID); rem > 0 {
		w.Header().Set("Retry-After", rem.Round(time.Second).String())
		writeError(w, http.StatusTooManyRequests, "refresh cooldown active")
		return
	}
	h.Membership.StartCooldown(acc.ID)

	if err := h.Membership.RefreshAccount(r.Context(), acc); err != nil {
		h.Logger.Warn("manual membership refresh failed", "account_id", acc.ID, "error", err)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"is_active_patron":  acc.IsActivePatron(),
		"patron_status":     acc.PatronStatus,
		"tier_cents":        acc.PatronTierCents,
		"monthly_allowance": h.Entitlements.AllowanceFor(acc),
	})
}
