package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/vidqueue/backend/internal/models"
)

// AllowanceReader resolves the monthly allowance for an account.
type AllowanceReader interface {
	AllowanceFor(acct *models.Account) int
}

// EntryLister lists an account's ledger entries, newest first.
type EntryLister interface {
	Entries(ctx context.Context, accountID uuid.UUID) ([]*models.CreditEntry, error)
}

// SettingsReader reads typed settings.
type SettingsReader interface {
	GetBool(ctx context.Context, key string, def bool) (bool, error)
}

// DashboardHandler serves GET /dashboard: the patron's membership, balance,
// recent requests and ledger activity in one payload.
type DashboardHandler struct {
	Entitlements AllowanceReader
	Credits      BalanceReader
	Ledger       EntryLister
	Requests     RequestLister
	Positions    Positioner
	Settings     SettingsReader
	Logger       *slog.Logger
}

type dashboardResponse struct {
	Account          *models.Account       `json:"account"`
	IsActivePatron   bool                  `json:"is_active_patron"`
	MonthlyAllowance int                   `json:"monthly_allowance"`
	Balance          int                   `json:"balance"`
	ShowRequestList  bool                  `json:"show_request_list"`
	RecentRequests   []requestResponse     `json:"recent_requests"`
	RecentEntries    []*models.CreditEntry `json:"recent_entries"`
}

func (h *DashboardHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	acc := requireAccount(w, r)
	if acc == nil {
		return
	}

	balance, err := h.Credits.Balance(r.Context(), acc.ID)
	if err != nil {
		h.Logger.Error("read balance", "account_id", acc.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	recent, err := h.Requests.ListByAccount(r.Context(), acc.ID, 5)
	if err != nil {
		h.Logger.Error("list recent requests", "account_id", acc.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	requests := make([]requestResponse, 0, len(recent))
	for _, req := range recent {
		position, err := h.Positions.Position(r.Context(), req)
		if err != nil {
			h.Logger.Error("queue position", "request_id", req.ID, "error", err)
		}
		requests = append(requests, requestResponse{Request: req, Position: position})
	}
	entries, err := h.Ledger.Entries(r.Context(), acc.ID)
	if err != nil {
		h.Logger.Error("list ledger entries", "account_id", acc.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if len(entries) > 10 {
		entries = entries[:10]
	}
	showList, err := h.Settings.GetBool(r.Context(), models.SettingShowRequestList, true)
	if err != nil {
		h.Logger.Error("read settings", "error", err)
	}

	writeJSON(w, http.StatusOK, dashboardResponse{
		Account:          acc,
		IsActivePatron:   acc.IsActivePatron(),
		MonthlyAllowance: h.Entitlements.AllowanceFor(acc),
		Balance:          balance,
		ShowRequestList:  showList,
		RecentRequests:   requests,
		RecentEntries:    entries,
	})
}
