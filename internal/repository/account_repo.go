package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vidqueue/backend/internal/models"
)

const accountColumns = `id, name, email, password_hash, patreon_id, patreon_access_token,
	patreon_refresh_token, patreon_token_expires_at, patron_status, patron_tier_cents,
	avatar, is_admin, created_at, updated_at`

type AccountRepo struct {
	pool *pgxpool.Pool
}

func NewAccountRepo(pool *pgxpool.Pool) *AccountRepo {
	return &AccountRepo{pool: pool}
}

func scanAccount(row pgx.Row) (*models.Account, error) {
	var a models.Account
	err := row.Scan(&a.ID, &a.Name, &a.Email, &a.PasswordHash, &a.PatreonID,
		&a.PatreonAccessToken, &a.PatreonRefreshToken, &a.PatreonTokenExpiresAt,
		&a.PatronStatus, &a.PatronTierCents, &a.Avatar, &a.IsAdmin, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *AccountRepo) Create(ctx context.Context, a *models.Account) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO accounts (id, name, email, password_hash, patreon_id, patreon_access_token,
			patreon_refresh_token, patreon_token_expires_at, patron_status, patron_tier_cents, avatar, is_admin)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at
	`, a.ID, a.Name, a.Email, a.PasswordHash, a.PatreonID, a.PatreonAccessToken,
		a.PatreonRefreshToken, a.PatreonTokenExpiresAt, a.PatronStatus, a.PatronTierCents,
		a.Avatar, a.IsAdmin).Scan(&a.CreatedAt, &a.UpdatedAt)
}

func (r *AccountRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	return scanAccount(r.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))
}

func (r *AccountRepo) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	return scanAccount(r.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE email = $1`, email))
}

func (r *AccountRepo) GetByPatreonID(ctx context.Context, patreonID string) (*models.Account, error) {
	return scanAccount(r.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE patreon_id = $1`, patreonID))
}

// GetByIDForUpdate locks the account row for the duration of the enclosing
// transaction. This row lock is what serializes balance check-then-debit per
// account.
func (r *AccountRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Account, error) {
	return scanAccount(tx.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1 FOR UPDATE`, id))
}

// UpdateMembership stores the provider-reported status and entitled amount.
func (r *AccountRepo) UpdateMembership(ctx context.Context, id uuid.UUID, status *string, tierCents int) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE accounts SET patron_status = $2, patron_tier_cents = $3, updated_at = now()
		WHERE id = $1
	`, id, status, tierCents)
	return err
}

// UpdateTokens stores a fresh OAuth token set for the account.
func (r *AccountRepo) UpdateTokens(ctx context.Context, id uuid.UUID, access, refresh string, expiresAt time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE accounts SET patreon_access_token = $2, patreon_refresh_token = $3,
			patreon_token_expires_at = $4, updated_at = now()
		WHERE id = $1
	`, id, access, refresh, expiresAt)
	return err
}

// LinkPatreon attaches a provider identity (and avatar) to an existing account.
func (r *AccountRepo) LinkPatreon(ctx context.Context, id uuid.UUID, patreonID string, avatar *string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE accounts SET patreon_id = $2, avatar = COALESCE($3, avatar), updated_at = now()
		WHERE id = $1
	`, id, patreonID, avatar)
	return err
}

func (r *AccountRepo) SetAdmin(ctx context.Context, id uuid.UUID, isAdmin bool) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE accounts SET is_admin = $2, updated_at = now() WHERE id = $1`, id, isAdmin)
	return err
}

func (r *AccountRepo) SetPassword(ctx context.Context, id uuid.UUID, hash *string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE accounts SET password_hash = $2, updated_at = now() WHERE id = $1`, id, hash)
	return err
}

func (r *AccountRepo) scanList(rows pgx.Rows) ([]*models.Account, error) {
	defer rows.Close()
	var list []*models.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, a)
	}
	return list, rows.Err()
}

// ListLinked returns accounts with a provider identity and a stored access
// token, i.e. those the membership sweep can refresh.
func (r *AccountRepo) ListLinked(ctx context.Context) ([]*models.Account, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+accountColumns+` FROM accounts
		WHERE patreon_id IS NOT NULL AND patreon_access_token IS NOT NULL
		ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	return r.scanList(rows)
}

// ListActivePatrons returns accounts eligible for a monthly grant check.
func (r *AccountRepo) ListActivePatrons(ctx context.Context) ([]*models.Account, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+accountColumns+` FROM accounts
		WHERE patron_status = $1 AND patron_tier_cents > 0
		ORDER BY created_at
	`, models.PatronStatusActive)
	if err != nil {
		return nil, err
	}
	return r.scanList(rows)
}

// Search lists accounts ordered by name, optionally filtered by a name/email
// substring match.
func (r *AccountRepo) Search(ctx context.Context, query string) ([]*models.Account, error) {
	if query == "" {
		rows, err := r.pool.Query(ctx,
			`SELECT `+accountColumns+` FROM accounts ORDER BY name`)
		if err != nil {
			return nil, err
		}
		return r.scanList(rows)
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+accountColumns+` FROM accounts
		WHERE name ILIKE '%' || $1 || '%' OR email ILIKE '%' || $1 || '%'
		ORDER BY name
	`, query)
	if err != nil {
		return nil, err
	}
	return r.scanList(rows)
}
