package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/vidqueue/backend/internal/admission"
	"github.com/vidqueue/backend/internal/credits"
	"github.com/vidqueue/backend/internal/models"
	"github.com/vidqueue/backend/internal/stats"
)

// AdminRequestStore is the request repository surface of the admin endpoints.
type AdminRequestStore interface {
	ListByStatus(ctx context.Context, status string) ([]*models.VideoRequest, error)
	CountByStatus(ctx context.Context) (total, pending, done int, err error)
}

// Completer drives the request state machine from the admin side.
type Completer interface {
	Complete(ctx context.Context, id uuid.UUID, rating *string) error
	Revert(ctx context.Context, id uuid.UUID) error
}

// AccountAdminStore backs the admin user list.
type AccountAdminStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error)
	Search(ctx context.Context, query string) ([]*models.Account, error)
}

// Adjuster records manual credit movements.
type Adjuster interface {
	Adjust(ctx context.Context, accountID uuid.UUID, amount int, reason string) (*models.CreditEntry, error)
	Balance(ctx context.Context, accountID uuid.UUID) (int, error)
}

// Reporter builds statistics reports.
type Reporter interface {
	Statistics(ctx context.Context, start, end time.Time) (*stats.Report, error)
}

// SettingsStore reads and writes typed settings.
type SettingsStore interface {
	SettingsReader
	SetBool(ctx context.Context, key string, v bool) error
}

// AdminHandler serves the /admin endpoints.
type AdminHandler struct {
	Requests     AdminRequestStore
	Admission    Completer
	Accounts     AccountAdminStore
	Credits      Adjuster
	Entitlements AllowanceReader
	Stats        Reporter
	Settings     SettingsStore
	Logger       *slog.Logger
}

// ListRequests handles GET /admin/requests?status=pending|done|all.
func (h *AdminHandler) ListRequests(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	switch status {
	case models.RequestStatusPending, models.RequestStatusDone:
	case "", "all":
		status = ""
	default:
		writeError(w, http.StatusBadRequest, "invalid status filter")
		return
	}
	list, err := h.Requests.ListByStatus(r.Context(), status)
	if err != nil {
		h.Logger.Error("list requests", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	total, pending, done, err := h.Requests.CountByStatus(r.Context())
	if err != nil {
		h.Logger.Error("count requests", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"requests": list,
		"stats":    map[string]int{"total": total, "pending": pending, "done": done},
	})
}

type completeRequest struct {
	Rating *string `json:"rating"`
}

// CompleteRequest handles POST /admin/requests/{id}/complete.
func (h *AdminHandler) CompleteRequest(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid request id")
		return
	}
	var req completeRequest
	if r.Body != nil {
		// An empty body means complete without a rating.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	err := h.Admission.Complete(r.Context(), id, req.Rating)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"status": "done"})
	case errors.Is(err, pgx.ErrNoRows):
		writeError(w, http.StatusNotFound, "request not found")
	case errors.Is(err, admission.ErrInvalidRating):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		h.Logger.Error("complete request", "request_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// RevertRequest handles POST /admin/requests/{id}/revert.
func (h *AdminHandler) RevertRequest(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid request id")
		return
	}
	err := h.Admission.Revert(r.Context(), id)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"status": "pending"})
	case errors.Is(err, pgx.ErrNoRows):
		writeError(w, http.StatusNotFound, "request not found")
	case errors.Is(err, admission.ErrNotDone):
		writeError(w, http.StatusConflict, "request is not done")
	default:
		h.Logger.Error("revert request", "request_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

type adminUser struct {
	*models.Account
	MonthlyAllowance int `json:"monthly_allowance"`
	Balance          int `json:"balance"`
}

// ListUsers handles GET /admin/users?search=.
func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.Accounts.Search(r.Context(), r.URL.Query().Get("search"))
	if err != nil {
		h.Logger.Error("search accounts", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	users := make([]adminUser, 0, len(accounts))
	for _, acct := range accounts {
		balance, err := h.Credits.Balance(r.Context(), acct.ID)
		if err != nil {
			h.Logger.Error("read balance", "account_id", acct.ID, "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		users = append(users, adminUser{
			Account:          acct,
			MonthlyAllowance: h.Entitlements.AllowanceFor(acct),
			Balance:          balance,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

type adjustRequest struct {
	Amount int    `json:"amount"`
	Reason string `json:"reason"`
}

// AdjustCredits handles POST /admin/users/{id}/credits.
func (h *AdminHandler) AdjustCredits(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid account id")
		return
	}
	var req adjustRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Reason == "" {
		writeError(w, http.StatusUnprocessableEntity, "reason is required")
		return
	}
	if _, err := h.Accounts.GetByID(r.Context(), id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "account not found")
			return
		}
		h.Logger.Error("load account", "account_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	entry, err := h.Credits.Adjust(r.Context(), id, req.Amount, req.Reason)
	if err != nil {
		if errors.Is(err, credits.ErrZeroAdjustment) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		h.Logger.Error("adjust credits", "account_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	balance, err := h.Credits.Balance(r.Context(), id)
	if err != nil {
		h.Logger.Error("read balance", "account_id", id, "error", err)
	}
	writeJSON(w, http.StatusOK, map[string]any{"entry": entry, "balance": balance})
}

// Statistics handles GET /admin/statistics?start=&end= (RFC 3339 dates,
// default last 30 days).
func (h *AdminHandler) Statistics(w http.ResponseWriter, r *http.Request) {
	end := time.Now().UTC()
	start := end.AddDate(0, 0, -30)
	if v := r.URL.Query().Get("start"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid start date")
			return
		}
		start = t
	}
	if v := r.URL.Query().Get("end"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid end date")
			return
		}
		end = t
	}
	if end.Before(start) {
		writeError(w, http.StatusBadRequest, "end before start")
		return
	}
	report, err := h.Stats.Statistics(r.Context(), start, end)
	if err != nil {
		h.Logger.Error("build statistics", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// GetSettings handles GET /admin/settings.
func (h *AdminHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	showList, err := h.Settings.GetBool(r.Context(), models.SettingShowRequestList, true)
	if err != nil {
		h.Logger.Error("read settings", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"show_request_list": showList})
}

type settingsUpdateRequest struct {
	ShowRequestList *bool `json:"show_request_list"`
}

// UpdateSettings handles PUT /admin/settings.
func (h *AdminHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.ShowRequestList == nil {
		writeError(w, http.StatusUnprocessableEntity, "no settings provided")
		return
	}
	if err := h.Settings.SetBool(r.Context(), models.SettingShowRequestList, *req.ShowRequestList); err != nil {
		h.Logger.Error("write settings", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"show_request_list": *req.ShowRequestList})
}
