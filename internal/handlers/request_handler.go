package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/vidqueue/backend/internal/admission"
	"github.com/vidqueue/backend/internal/models"
	"github.com/vidqueue/backend/internal/video"
)

// Admitter is the slice of the admission service the handler uses.
type Admitter interface {
	Preview(ctx context.Context, rawURL string) (*video.Details, error)
	Submit(ctx context.Context, acct *models.Account, rawURL, contextNote string) (*models.VideoRequest, error)
	UpdateContext(ctx context.Context, acct *models.Account, id uuid.UUID, contextNote string) error
}

// Positioner computes queue positions for pending requests.
type Positioner interface {
	Position(ctx context.Context, req *models.VideoRequest) (*int, error)
}

// BalanceReader reads an account's current credit balance.
type BalanceReader interface {
	Balance(ctx context.Context, accountID uuid.UUID) (int, error)
}

// RequestLister lists an account's own requests.
type RequestLister interface {
	ListByAccount(ctx context.Context, accountID uuid.UUID, limit int) ([]*models.VideoRequest, error)
}

// RequestHandler serves the patron-facing request endpoints.
type RequestHandler struct {
	Admission Admitter
	Positions Positioner
	Credits   BalanceReader
	Requests  RequestLister
	Logger    *slog.Logger
}

type checkRequest struct {
	URL string `json:"url"`
}

type checkResponse struct {
	Video   *video.Details `json:"video"`
	Balance int            `json:"balance"`
}

// Check handles POST /requests/check: resolve the URL and report cost and
// duplicates before the patron commits credits.
func (h *RequestHandler) Check(w http.ResponseWriter, r *http.Request) {
	acc := requireAccount(w, r)
	if acc == nil {
		return
	}
	var req checkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	details, err := h.Admission.Preview(r.Context(), req.URL)
	if err != nil {
		h.writeSubmitError(w, err)
		return
	}
	balance, err := h.Credits.Balance(r.Context(), acc.ID)
	if err != nil {
		h.Logger.Error("read balance", "account_id", acc.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, checkResponse{Video: details, Balance: balance})
}

type submitRequest struct {
	URL     string `json:"url"`
	Context string `json:"context"`
}

type requestResponse struct {
	Request  *models.VideoRequest `json:"request"`
	Position *int                 `json:"position,omitempty"`
}

type submitResponse struct {
	requestResponse
	Balance int `json:"balance"`
}

// Submit handles POST /requests.
func (h *RequestHandler) Submit(w http.ResponseWriter, r *http.Request) {
	acc := requireAccount(w, r)
	if acc == nil {
		return
	}
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	created, err := h.Admission.Submit(r.Context(), acc, req.URL, req.Context)
	if err != nil {
		h.writeSubmitError(w, err)
		return
	}
	position, err := h.Positions.Position(r.Context(), created)
	if err != nil {
		h.Logger.Error("queue position", "request_id", created.ID, "error", err)
	}
	balance, err := h.Credits.Balance(r.Context(), acc.ID)
	if err != nil {
		h.Logger.Error("read balance", "account_id", acc.ID, "error", err)
	}
	writeJSON(w, http.StatusCreated, submitResponse{
		requestResponse: requestResponse{Request: created, Position: position},
		Balance:         balance,
	})
}

// MyRequests handles GET /my-requests.
func (h *RequestHandler) MyRequests(w http.ResponseWriter, r *http.Request) {
	acc := requireAccount(w, r)
	if acc == nil {
		return
	}
	list, err := h.Requests.ListByAccount(r.Context(), acc.ID, 100)
	if err != nil {
		h.Logger.Error("list requests", "account_id", acc.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	out := make([]requestResponse, 0, len(list))
	for _, req := range list {
		position, err := h.Positions.Position(r.Context(), req)
		if err != nil {
			h.Logger.Error("queue position", "request_id", req.ID, "error", err)
		}
		out = append(out, requestResponse{Request: req, Position: position})
	}
	writeJSON(w, http.StatusOK, map[string]any{"requests": out})
}

type contextUpdateRequest struct {
	Context string `json:"context"`
}

// UpdateContext handles PATCH /requests/{id}/context.
func (h *RequestHandler) UpdateContext(w http.ResponseWriter, r *http.Request) {
	acc := requireAccount(w, r)
	if acc == nil {
		return
	}
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid request id")
		return
	}
	var req contextUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	err := h.Admission.UpdateContext(r.Context(), acc, id, req.Context)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
	case errors.Is(err, pgx.ErrNoRows):
		writeError(w, http.StatusNotFound, "request not found")
	case errors.Is(err, admission.ErrNotOwner):
		writeError(w, http.StatusForbidden, "not your request")
	case errors.Is(err, admission.ErrNotPending):
		writeError(w, http.StatusConflict, "request is no longer pending")
	case errors.Is(err, admission.ErrContextTooLong):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		h.Logger.Error("update context", "request_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (h *RequestHandler) writeSubmitError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, video.ErrInvalidURL):
		writeError(w, http.StatusUnprocessableEntity, "not a valid YouTube URL")
	case errors.Is(err, admission.ErrContextTooLong):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, admission.ErrAlreadyQueued):
		writeError(w, http.StatusConflict, "video is already in the queue")
	case errors.Is(err, admission.ErrAlreadyDone):
		writeError(w, http.StatusConflict, "video has already been covered")
	case errors.Is(err, admission.ErrNotEntitled):
		writeError(w, http.StatusForbidden, "active membership required")
	case errors.Is(err, admission.ErrInsufficientCredits):
		writeError(w, http.StatusPaymentRequired, "not enough credits")
	default:
		h.Logger.Error("submit request", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
