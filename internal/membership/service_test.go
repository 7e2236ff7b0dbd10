package membership

import (
	"context"
	"crypto/hmac"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"golang.org/x/oauth2"

	"github.com/vidqueue/backend/internal/models"
)

type stubProvider struct {
	identity    *Identity
	identityErr error
	refreshed   *oauth2.Token
	refreshErr  error
	exchanged   *oauth2.Token
}

func (p *stubProvider) AuthCodeURL(state string) string { return "https://provider/auth?state=" + state }

func (p *stubProvider) Exchange(context.Context, string) (*oauth2.Token, error) {
	if p.exchanged == nil {
		return nil, errors.New("bad code")
	}
	return p.exchanged, nil
}

func (p *stubProvider) Refresh(context.Context, string) (*oauth2.Token, error) {
	return p.refreshed, p.refreshErr
}

func (p *stubProvider) Identity(context.Context, string) (*Identity, error) {
	return p.identity, p.identityErr
}

type memAccounts struct {
	byID        map[uuid.UUID]*models.Account
	memberships map[uuid.UUID]struct {
		status *string
		cents  int
	}
}

func newMemAccounts() *memAccounts {
	return &memAccounts{
		byID: make(map[uuid.UUID]*models.Account),
		memberships: make(map[uuid.UUID]struct {
			status *string
			cents  int
		}),
	}
}

func (m *memAccounts) Create(_ context.Context, a *models.Account) error {
	m.byID[a.ID] = a
	return nil
}

func (m *memAccounts) GetByEmail(_ context.Context, email string) (*models.Account, error) {
	for _, a := range m.byID {
		if a.Email == email {
			return a, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *memAccounts) GetByPatreonID(_ context.Context, patreonID string) (*models.Account, error) {
	for _, a := range m.byID {
		if a.PatreonID != nil && *a.PatreonID == patreonID {
			return a, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *memAccounts) LinkPatreon(_ context.Context, id uuid.UUID, patreonID string, avatar *string) error {
	a := m.byID[id]
	a.PatreonID = &patreonID
	if avatar != nil {
		a.Avatar = avatar
	}
	return nil
}

func (m *memAccounts) UpdateTokens(_ context.Context, id uuid.UUID, access, refresh string, expiresAt time.Time) error {
	a := m.byID[id]
	a.PatreonAccessToken = &access
	a.PatreonRefreshToken = &refresh
	a.PatreonTokenExpiresAt = &expiresAt
	return nil
}

func (m *memAccounts) UpdateMembership(_ context.Context, id uuid.UUID, status *string, tierCents int) error {
	m.memberships[id] = struct {
		status *string
		cents  int
	}{status, tierCents}
	a := m.byID[id]
	a.PatronStatus = status
	a.PatronTierCents = tierCents
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func linkedAccount(store *memAccounts) *models.Account {
	pid := "patron-1"
	token := "access-token"
	a := &models.Account{
		ID:                 uuid.New(),
		Name:               "Pat",
		Email:              "pat@example.com",
		PatreonID:          &pid,
		PatreonAccessToken: &token,
	}
	store.byID[a.ID] = a
	return a
}

func TestRefreshAccountAppliesMembership(t *testing.T) {
	store := newMemAccounts()
	acct := linkedAccount(store)
	status := models.PatronStatusActive
	provider := &stubProvider{identity: &Identity{
		ProviderID: "patron-1",
		Membership: &Membership{PatronStatus: &status, EntitledAmountCents: 500},
	}}
	svc := NewService(provider, store, "secret", testLogger())

	if err := svc.RefreshAccount(context.Background(), acct); err != nil {
		t.Fatalf("RefreshAccount: %v", err)
	}
	if acct.PatronStatus == nil || *acct.PatronStatus != models.PatronStatusActive || acct.PatronTierCents != 500 {
		t.Errorf("account after refresh: status=%v tier=%d", acct.PatronStatus, acct.PatronTierCents)
	}
}

func TestRefreshAccountClearsOnAbsentMembership(t *testing.T) {
	store := newMemAccounts()
	acct := linkedAccount(store)
	status := models.PatronStatusActive
	acct.PatronStatus = &status
	acct.PatronTierCents = 500
	provider := &stubProvider{identity: &Identity{ProviderID: "patron-1"}}
	svc := NewService(provider, store, "secret", testLogger())

	if err := svc.RefreshAccount(context.Background(), acct); err != nil {
		t.Fatalf("RefreshAccount: %v", err)
	}
	if acct.PatronStatus != nil || acct.PatronTierCents != 0 {
		t.Errorf("membership not cleared: status=%v tier=%d", acct.PatronStatus, acct.PatronTierCents)
	}
}

func TestRefreshAccountClearsOnFetchFailure(t *testing.T) {
	store := newMemAccounts()
	acct := linkedAccount(store)
	status := models.PatronStatusActive
	acct.PatronStatus = &status
	acct.PatronTierCents = 500
	provider := &stubProvider{identityErr: errors.New("provider down")}
	svc := NewService(provider, store, "secret", testLogger())

	err := svc.RefreshAccount(context.Background(), acct)
	if err == nil {
		t.Fatal("expected fetch error to propagate")
	}
	if acct.PatronStatus != nil || acct.PatronTierCents != 0 {
		t.Errorf("membership not cleared on failure: status=%v tier=%d", acct.PatronStatus, acct.PatronTierCents)
	}
}

func TestFetchMembershipRefreshesExpiredToken(t *testing.T) {
	store := newMemAccounts()
	acct := linkedAccount(store)
	refresh := "refresh-token"
	expired := time.Now().Add(-time.Hour)
	acct.PatreonRefreshToken = &refresh
	acct.PatreonTokenExpiresAt = &expired

	status := models.PatronStatusActive
	provider := &stubProvider{
		refreshed: &oauth2.Token{
			AccessToken:  "new-access",
			RefreshToken: "new-refresh",
			Expiry:       time.Now().Add(time.Hour),
		},
		identity: &Identity{
			ProviderID: "patron-1",
			Membership: &Membership{PatronStatus: &status, EntitledAmountCents: 300},
		},
	}
	svc := NewService(provider, store, "secret", testLogger())

	m, err := svc.FetchMembership(context.Background(), acct)
	if err != nil {
		t.Fatalf("FetchMembership: %v", err)
	}
	if m == nil || m.EntitledAmountCents != 300 {
		t.Errorf("membership = %+v", m)
	}
	if acct.PatreonAccessToken == nil || *acct.PatreonAccessToken != "new-access" {
		t.Error("refreshed access token not stored")
	}
}

func TestFetchMembershipWithoutToken(t *testing.T) {
	store := newMemAccounts()
	acct := &models.Account{ID: uuid.New()}
	store.byID[acct.ID] = acct
	svc := NewService(&stubProvider{}, store, "secret", testLogger())

	_, err := svc.FetchMembership(context.Background(), acct)
	if !errors.Is(err, ErrNoProviderToken) {
		t.Fatalf("err = %v, want ErrNoProviderToken", err)
	}
}

func TestAuthenticateCreatesAndLinksAccounts(t *testing.T) {
	store := newMemAccounts()
	status := models.PatronStatusActive
	provider := &stubProvider{
		exchanged: &oauth2.Token{AccessToken: "at", RefreshToken: "rt", Expiry: time.Now().Add(time.Hour)},
		identity: &Identity{
			ProviderID: "patron-9",
			Name:       "New Patron",
			Email:      "new@example.com",
			Membership: &Membership{PatronStatus: &status, EntitledAmountCents: 100},
		},
	}
	svc := NewService(provider, store, "secret", testLogger())

	acct, err := svc.Authenticate(context.Background(), "code")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if acct.Email != "new@example.com" || acct.PatreonID == nil || *acct.PatreonID != "patron-9" {
		t.Errorf("created account = %+v", acct)
	}
	if acct.PatronTierCents != 100 {
		t.Errorf("membership not applied, tier = %d", acct.PatronTierCents)
	}

	// Same identity again resolves to the same account.
	again, err := svc.Authenticate(context.Background(), "code")
	if err != nil {
		t.Fatalf("second Authenticate: %v", err)
	}
	if again.ID != acct.ID {
		t.Error("second login created a duplicate account")
	}

	// An account known only by email gets its provider identity linked.
	existing := &models.Account{ID: uuid.New(), Name: "Old", Email: "old@example.com"}
	store.byID[existing.ID] = existing
	provider.identity = &Identity{ProviderID: "patron-10", Name: "Old", Email: "old@example.com"}
	linked, err := svc.Authenticate(context.Background(), "code")
	if err != nil {
		t.Fatalf("link Authenticate: %v", err)
	}
	if linked.ID != existing.ID || linked.PatreonID == nil || *linked.PatreonID != "patron-10" {
		t.Errorf("linked account = %+v", linked)
	}
}

func TestVerifySignature(t *testing.T) {
	svc := NewService(&stubProvider{}, newMemAccounts(), "hook-secret", testLogger())
	body := []byte(`{"data":{}}`)

	mac := hmac.New(md5.New, []byte("hook-secret"))
	mac.Write(body)
	good := hex.EncodeToString(mac.Sum(nil))

	if !svc.VerifySignature(body, good) {
		t.Error("valid signature rejected")
	}
	if svc.VerifySignature(body, "deadbeef") {
		t.Error("invalid signature accepted")
	}
	if svc.VerifySignature(body, "") {
		t.Error("empty signature accepted")
	}

	noSecret := NewService(&stubProvider{}, newMemAccounts(), "", testLogger())
	if noSecret.VerifySignature(body, good) {
		t.Error("signature accepted without a configured secret")
	}
}

func TestApplyWebhook(t *testing.T) {
	store := newMemAccounts()
	acct := linkedAccount(store)
	svc := NewService(&stubProvider{}, store, "secret", testLogger())

	body := []byte(`{
		"data": {
			"attributes": {"patron_status": "former_patron", "currently_entitled_amount_cents": 0},
			"relationships": {"user": {"data": {"id": "patron-1"}}}
		}
	}`)
	if err := svc.ApplyWebhook(context.Background(), body); err != nil {
		t.Fatalf("ApplyWebhook: %v", err)
	}
	if acct.PatronStatus == nil || *acct.PatronStatus != models.PatronStatusFormer || acct.PatronTierCents != 0 {
		t.Errorf("account after webhook: status=%v tier=%d", acct.PatronStatus, acct.PatronTierCents)
	}

	// Unknown patron ids are ignored, not errors.
	unknown := []byte(`{
		"data": {
			"attributes": {"patron_status": "active_patron", "currently_entitled_amount_cents": 500},
			"relationships": {"user": {"data": {"id": "stranger"}}}
		}
	}`)
	if err := svc.ApplyWebhook(context.Background(), unknown); err != nil {
		t.Fatalf("ApplyWebhook unknown: %v", err)
	}

	missing := []byte(`{"data": {"attributes": {}}}`)
	if err := svc.ApplyWebhook(context.Background(), missing); !errors.Is(err, ErrWebhookMissingPatron) {
		t.Errorf("missing patron err = %v", err)
	}
}

func TestRefreshCooldown(t *testing.T) {
	svc := NewService(&stubProvider{}, newMemAccounts(), "secret", testLogger())
	id := uuid.New()

	if rem := svc.CooldownRemaining(id); rem != 0 {
		t.Fatalf("initial cooldown = %v, want 0", rem)
	}
	svc.StartCooldown(id)
	if rem := svc.CooldownRemaining(id); rem <= 0 || rem > RefreshCooldown {
		t.Errorf("armed cooldown = %v", rem)
	}
	if rem := svc.CooldownRemaining(uuid.New()); rem != 0 {
		t.Errorf("other account cooldown = %v, want 0", rem)
	}
}
