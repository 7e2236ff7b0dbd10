// Package handlers holds the HTTP layer: JSON request decoding, error
// mapping, and response shaping over the domain services.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/vidqueue/backend/internal/middleware"
	"github.com/vidqueue/backend/internal/models"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// pathID parses the {id} wildcard of a method-pattern route.
func pathID(r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// requireAccount returns the authenticated account, writing a 401 when the
// auth middleware did not run.
func requireAccount(w http.ResponseWriter, r *http.Request) *models.Account {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
	}
	return acc
}
