// Package auth issues and validates session tokens. Patrons get a session
// from the OAuth callback; admins can also log in with email and password.
package auth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/vidqueue/backend/internal/models"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
)

// SessionCookie is the cookie carrying the session token.
const SessionCookie = "vidqueue_session"

const sessionTTL = 30 * 24 * time.Hour

// AccountStore is the account lookup surface auth needs.
type AccountStore interface {
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
}

type Service struct {
	accounts AccountStore
	secret   []byte
	now      func() time.Time
}

func NewService(accounts AccountStore, secret string) *Service {
	return &Service{accounts: accounts, secret: []byte(secret), now: time.Now}
}

type claims struct {
	jwt.RegisteredClaims
	Admin bool `json:"admin"`
}

// IssueSession returns a signed session token for the account.
func (s *Service) IssueSession(acct *models.Account) (string, error) {
	now := s.now()
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   acct.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(sessionTTL)),
		},
		Admin: acct.IsAdmin,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
}

// ValidateSession parses a session token and returns the account id and
// admin flag.
func (s *Service) ValidateSession(token string) (uuid.UUID, bool, error) {
	tok, err := jwt.ParseWithClaims(token, &claims{}, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return uuid.Nil, false, ErrInvalidToken
	}
	c, ok := tok.Claims.(*claims)
	if !ok || !tok.Valid {
		return uuid.Nil, false, ErrInvalidToken
	}
	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return uuid.Nil, false, ErrInvalidToken
	}
	return id, c.Admin, nil
}

// Login authenticates an admin by email and password and returns a session
// token. Accounts without a password hash or without the admin flag cannot
// log in this way.
func (s *Service) Login(ctx context.Context, email, password string) (string, *models.Account, error) {
	acct, err := s.accounts.GetByEmail(ctx, email)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil, ErrInvalidCredentials
	}
	if err != nil {
		return "", nil, err
	}
	if !acct.IsAdmin || acct.PasswordHash == nil {
		return "", nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(*acct.PasswordHash), []byte(password)); err != nil {
		return "", nil, ErrInvalidCredentials
	}
	token, err := s.IssueSession(acct)
	if err != nil {
		return "", nil, err
	}
	return token, acct, nil
}

// HashPassword returns a bcrypt hash for storing on an account.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
