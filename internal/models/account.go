package models

import (
	"time"

	"github.com/google/uuid"
)

// Patron status values as reported by the membership provider.
const (
	PatronStatusActive = "active_patron"
	PatronStatusFormer = "former_patron"
)

type Account struct {
	ID                    uuid.UUID  `json:"id"`
	Name                  string     `json:"name"`
	Email                 string     `json:"email"`
	PasswordHash          *string    `json:"-"`
	PatreonID             *string    `json:"patreon_id,omitempty"`
	PatreonAccessToken    *string    `json:"-"`
	PatreonRefreshToken   *string    `json:"-"`
	PatreonTokenExpiresAt *time.Time `json:"-"`
	PatronStatus          *string    `json:"patron_status,omitempty"`
	PatronTierCents       int        `json:"patron_tier_cents"`
	Avatar                *string    `json:"avatar,omitempty"`
	IsAdmin               bool       `json:"is_admin"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

// IsActivePatron reports whether the account currently holds a paid
// membership: status active_patron and a strictly positive tier amount.
func (a *Account) IsActivePatron() bool {
	return a.PatronStatus != nil && *a.PatronStatus == PatronStatusActive && a.PatronTierCents > 0
}

// TokenExpired reports whether the stored provider access token has expired.
// Accounts without a recorded expiry are treated as current.
func (a *Account) TokenExpired(now time.Time) bool {
	return a.PatreonTokenExpiresAt != nil && a.PatreonTokenExpiresAt.Before(now)
}
