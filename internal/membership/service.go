package membership

import (
	"context"
	"crypto/hmac"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"golang.org/x/oauth2"

	"github.com/vidqueue/backend/internal/memo"
	"github.com/vidqueue/backend/internal/models"
)

// RefreshCooldown limits how often a patron can trigger a manual refresh.
const RefreshCooldown = 15 * time.Second

var ErrNoProviderToken = errors.New("account has no provider token")

// ProviderClient is the slice of Client the service depends on, split out so
// tests can stub the provider.
type ProviderClient interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)
	Identity(ctx context.Context, accessToken string) (*Identity, error)
}

// AccountStore is the account repository surface membership needs.
type AccountStore interface {
	Create(ctx context.Context, a *models.Account) error
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
	GetByPatreonID(ctx context.Context, patreonID string) (*models.Account, error)
	LinkPatreon(ctx context.Context, id uuid.UUID, patreonID string, avatar *string) error
	UpdateTokens(ctx context.Context, id uuid.UUID, access, refresh string, expiresAt time.Time) error
	UpdateMembership(ctx context.Context, id uuid.UUID, status *string, tierCents int) error
}

type Service struct {
	provider      ProviderClient
	accounts      AccountStore
	webhookSecret string
	cooldowns     *memo.Cache
	logger        *slog.Logger
	now           func() time.Time
}

func NewService(provider ProviderClient, accounts AccountStore, webhookSecret string, logger *slog.Logger) *Service {
	return &Service{
		provider:      provider,
		accounts:      accounts,
		webhookSecret: webhookSecret,
		cooldowns:     memo.New(),
		logger:        logger,
		now:           time.Now,
	}
}

// LoginURL returns the provider authorization URL for the OAuth redirect.
func (s *Service) LoginURL(state string) string {
	return s.provider.AuthCodeURL(state)
}

// Authenticate completes the OAuth callback: exchanges the code, fetches the
// identity, finds or creates the matching account (linking by provider id
// first, then by email), stores the token set and applies the fetched
// membership.
func (s *Service) Authenticate(ctx context.Context, code string) (*models.Account, error) {
	token, err := s.provider.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange code: %w", err)
	}
	ident, err := s.provider.Identity(ctx, token.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("fetch identity: %w", err)
	}

	acct, err := s.accounts.GetByPatreonID(ctx, ident.ProviderID)
	if errors.Is(err, pgx.ErrNoRows) {
		acct, err = s.findOrCreateByEmail(ctx, ident)
	}
	if err != nil {
		return nil, err
	}

	expiry := token.Expiry
	if expiry.IsZero() {
		expiry = s.now().Add(30 * 24 * time.Hour)
	}
	if err := s.accounts.UpdateTokens(ctx, acct.ID, token.AccessToken, token.RefreshToken, expiry); err != nil {
		return nil, fmt.Errorf("store tokens: %w", err)
	}
	acct.PatreonAccessToken = &token.AccessToken
	acct.PatreonRefreshToken = &token.RefreshToken
	acct.PatreonTokenExpiresAt = &expiry

	s.applyMembership(ctx, acct, ident.Membership)
	s.logger.Info("provider login", "account_id", acct.ID, "provider_id", ident.ProviderID)
	return acct, nil
}

func (s *Service) findOrCreateByEmail(ctx context.Context, ident *Identity) (*models.Account, error) {
	acct, err := s.accounts.GetByEmail(ctx, ident.Email)
	if err == nil {
		if err := s.accounts.LinkPatreon(ctx, acct.ID, ident.ProviderID, ident.Avatar); err != nil {
			return nil, fmt.Errorf("link provider identity: %w", err)
		}
		acct.PatreonID = &ident.ProviderID
		return acct, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	providerID := ident.ProviderID
	acct = &models.Account{
		ID:        uuid.New(),
		Name:      ident.Name,
		Email:     ident.Email,
		PatreonID: &providerID,
		Avatar:    ident.Avatar,
	}
	if err := s.accounts.Create(ctx, acct); err != nil {
		return nil, fmt.Errorf("create account: %w", err)
	}
	return acct, nil
}

// FetchMembership returns the account's membership in the campaign,
// refreshing and persisting the OAuth token first when expired. A nil
// membership means the provider reports no membership.
func (s *Service) FetchMembership(ctx context.Context, acct *models.Account) (*Membership, error) {
	if acct.PatreonAccessToken == nil {
		return nil, ErrNoProviderToken
	}
	if acct.TokenExpired(s.now()) {
		if acct.PatreonRefreshToken == nil {
			return nil, ErrNoProviderToken
		}
		token, err := s.provider.Refresh(ctx, *acct.PatreonRefreshToken)
		if err != nil {
			return nil, fmt.Errorf("refresh token: %w", err)
		}
		if err := s.accounts.UpdateTokens(ctx, acct.ID, token.AccessToken, token.RefreshToken, token.Expiry); err != nil {
			return nil, fmt.Errorf("store refreshed tokens: %w", err)
		}
		acct.PatreonAccessToken = &token.AccessToken
		acct.PatreonRefreshToken = &token.RefreshToken
		acct.PatreonTokenExpiresAt = &token.Expiry
	}
	ident, err := s.provider.Identity(ctx, *acct.PatreonAccessToken)
	if err != nil {
		return nil, err
	}
	return ident.Membership, nil
}

// RefreshAccount re-fetches the account's membership and stores the result.
// A failed fetch or an absent membership clears status and tier; the patron
// may have revoked access or dropped their pledge.
func (s *Service) RefreshAccount(ctx context.Context, acct *models.Account) error {
	m, err := s.FetchMembership(ctx, acct)
	if err != nil || m == nil {
		if err != nil {
			s.logger.Warn("membership fetch failed, clearing status",
				"account_id", acct.ID, "error", err)
		}
		if upErr := s.accounts.UpdateMembership(ctx, acct.ID, nil, 0); upErr != nil {
			return upErr
		}
		acct.PatronStatus = nil
		acct.PatronTierCents = 0
		return err
	}
	s.applyMembership(ctx, acct, m)
	return nil
}

func (s *Service) applyMembership(ctx context.Context, acct *models.Account, m *Membership) {
	var status *string
	cents := 0
	if m != nil {
		status = m.PatronStatus
		cents = m.EntitledAmountCents
	}
	if err := s.accounts.UpdateMembership(ctx, acct.ID, status, cents); err != nil {
		s.logger.Error("store membership", "account_id", acct.ID, "error", err)
		return
	}
	acct.PatronStatus = status
	acct.PatronTierCents = cents
}

// CooldownRemaining returns how long until the account may trigger another
// manual refresh, zero when allowed now.
func (s *Service) CooldownRemaining(accountID uuid.UUID) time.Duration {
	return s.cooldowns.TTL("refresh:" + accountID.String())
}

// StartCooldown arms the manual refresh cooldown for the account.
func (s *Service) StartCooldown(accountID uuid.UUID) {
	s.cooldowns.Set("refresh:"+accountID.String(), struct{}{}, RefreshCooldown)
}

// VerifySignature checks a webhook body against its X-Patreon-Signature
// header: hex HMAC-MD5 of the raw body under the shared webhook secret.
func (s *Service) VerifySignature(body []byte, signature string) bool {
	if s.webhookSecret == "" || signature == "" {
		return false
	}
	mac := hmac.New(md5.New, []byte(s.webhookSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// webhookPayload is the JSON:API member pledge event body.
type webhookPayload struct {
	Data struct {
		Attributes struct {
			PatronStatus        *string `json:"patron_status"`
			EntitledAmountCents int     `json:"currently_entitled_amount_cents"`
		} `json:"attributes"`
		Relationships struct {
			User struct {
				Data *struct {
					ID string `json:"id"`
				} `json:"data"`
			} `json:"user"`
		} `json:"relationships"`
	} `json:"data"`
}

var ErrWebhookMissingPatron = errors.New("webhook payload missing patron id")

// ApplyWebhook updates the referenced account from a verified pledge event.
// Events for provider users without a local account are ignored.
func (s *Service) ApplyWebhook(ctx context.Context, body []byte) error {
	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return fmt.Errorf("decode webhook payload: %w", err)
	}
	user := payload.Data.Relationships.User.Data
	if user == nil {
		return ErrWebhookMissingPatron
	}
	acct, err := s.accounts.GetByPatreonID(ctx, user.ID)
	if errors.Is(err, pgx.ErrNoRows) {
		s.logger.Info("webhook for unknown patron", "provider_id", user.ID)
		return nil
	}
	if err != nil {
		return err
	}
	attrs := payload.Data.Attributes
	if err := s.accounts.UpdateMembership(ctx, acct.ID, attrs.PatronStatus, attrs.EntitledAmountCents); err != nil {
		return err
	}
	s.logger.Info("membership updated from webhook",
		"account_id", acct.ID, "patron_status", attrs.PatronStatus,
		"tier_cents", attrs.EntitledAmountCents)
	return nil
}
