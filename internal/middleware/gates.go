package middleware

import (
	"context"
	"net/http"

	"github.com/vidqueue/backend/internal/models"
)

// Granter runs the monthly grant check for an account.
type Granter interface {
	GrantIfDue(ctx context.Context, acct *models.Account) (*models.CreditEntry, error)
}

// RequireActivePatron rejects accounts whose membership is not currently
// active. Admins pass regardless, so an admin who dropped their pledge can
// still run the queue.
func RequireActivePatron(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		acc := AccountFromCtx(r.Context())
		if acc == nil {
			http.Error(w, `{"error":"unauthenticated"}`, http.StatusUnauthorized)
			return
		}
		if !acc.IsAdmin && !acc.IsActivePatron() {
			http.Error(w, `{"error":"active membership required"}`, http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin rejects non-admin accounts.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		acc := AccountFromCtx(r.Context())
		if acc == nil {
			http.Error(w, `{"error":"unauthenticated"}`, http.StatusUnauthorized)
			return
		}
		if !acc.IsAdmin {
			http.Error(w, `{"error":"admin required"}`, http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// EnsureCreditsGranted runs the monthly grant check as a side effect of any
// authenticated request, so patrons who log in mid-month receive their
// allowance without waiting for the nightly sweep. Grant failures never block
// the request.
func EnsureCreditsGranted(grants Granter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if acc := AccountFromCtx(r.Context()); acc != nil {
				_, _ = grants.GrantIfDue(r.Context(), acc)
			}
			next.ServeHTTP(w, r)
		})
	}
}
