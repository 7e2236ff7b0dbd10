package handlers

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/vidqueue/backend/internal/auth"
	"github.com/vidqueue/backend/internal/membership"
)

const stateCookie = "vidqueue_oauth_state"

// AuthHandler serves the OAuth login flow plus the admin password login.
type AuthHandler struct {
	Auth       *auth.Service
	Membership *membership.Service
	BaseURL    string
	Logger     *slog.Logger
}

// OAuthRedirect handles GET /auth/patreon: sends the browser to the provider
// with a random CSRF state pinned in a short-lived cookie.
func (h *AuthHandler) OAuthRedirect(w http.ResponseWriter, r *http.Request) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		h.Logger.Error("generate oauth state", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	state := hex.EncodeToString(buf)
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, h.Membership.LoginURL(state), http.StatusFound)
}

// OAuthCallback handles GET /auth/patreon/callback: verifies the state,
// completes the code exchange and sets the session cookie.
func (h *AuthHandler) OAuthCallback(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")
	cookie, err := r.Cookie(stateCookie)
	if err != nil || state == "" || cookie.Value != state {
		writeError(w, http.StatusBadRequest, "state mismatch")
		return
	}
	http.SetCookie(w, &http.Cookie{Name: stateCookie, Value: "", Path: "/", MaxAge: -1})

	code := r.URL.Query().Get("code")
	if code == "" {
		writeError(w, http.StatusBadRequest, "missing code")
		return
	}
	acct, err := h.Membership.Authenticate(r.Context(), code)
	if err != nil {
		h.Logger.Error("oauth callback", "error", err)
		writeError(w, http.StatusBadGateway, "provider login failed")
		return
	}
	token, err := h.Auth.IssueSession(acct)
	if err != nil {
		h.Logger.Error("issue session", "account_id", acct.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	h.setSessionCookie(w, token)
	http.Redirect(w, r, h.BaseURL+"/dashboard", http.StatusFound)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login handles POST /auth/login, the password login for admin accounts.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing email or password")
		return
	}
	token, acct, err := h.Auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		h.Logger.Error("login", "error", err)
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}
	h.setSessionCookie(w, token)
	writeJSON(w, http.StatusOK, map[string]any{"token": token, "account": acct})
}

// Logout handles POST /auth/logout.
func (h *AuthHandler) Logout(w http.ResponseWriter, _ *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    token,
		Path:     "/",
		Expires:  time.Now().Add(30 * 24 * time.Hour),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
