package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vidqueue/backend/internal/models"
)

// LedgerRepo persists credit entries. The table is append-only: there are no
// update or delete methods, the full history is the audit trail.
type LedgerRepo struct {
	pool *pgxpool.Pool
}

func NewLedgerRepo(pool *pgxpool.Pool) *LedgerRepo {
	return &LedgerRepo{pool: pool}
}

func (r *LedgerRepo) Create(ctx context.Context, e *models.CreditEntry) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO credit_entries (id, account_id, amount, kind, description, video_request_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, e.ID, e.AccountID, e.Amount, e.Kind, e.Description, e.VideoRequestID).Scan(&e.CreatedAt)
}

// CreateTx inserts a ledger entry inside the given transaction.
func (r *LedgerRepo) CreateTx(ctx context.Context, tx pgx.Tx, e *models.CreditEntry) error {
	return tx.QueryRow(ctx, `
		INSERT INTO credit_entries (id, account_id, amount, kind, description, video_request_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, e.ID, e.AccountID, e.Amount, e.Kind, e.Description, e.VideoRequestID).Scan(&e.CreatedAt)
}

// SumByAccount returns the account's balance: the sum of all its entries.
func (r *LedgerRepo) SumByAccount(ctx context.Context, accountID uuid.UUID) (int, error) {
	var total int
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM credit_entries WHERE account_id = $1
	`, accountID).Scan(&total)
	return total, err
}

// SumByAccountTx is SumByAccount inside a transaction, for balance checks
// made while holding the account row lock.
func (r *LedgerRepo) SumByAccountTx(ctx context.Context, tx pgx.Tx, accountID uuid.UUID) (int, error) {
	var total int
	err := tx.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM credit_entries WHERE account_id = $1
	`, accountID).Scan(&total)
	return total, err
}

// HasMonthlyGrantInMonth reports whether a monthly_grant entry exists for the
// account within the given calendar month (month+year equality, not a rolling
// window). Buckets in UTC so the check agrees with the partial unique index
// regardless of the server timezone.
func (r *LedgerRepo) HasMonthlyGrantInMonth(ctx context.Context, accountID uuid.UUID, ref time.Time) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM credit_entries
			WHERE account_id = $1 AND kind = $2
			  AND date_trunc('month', created_at AT TIME ZONE 'UTC')
			    = date_trunc('month', $3::timestamptz AT TIME ZONE 'UTC')
		)
	`, accountID, models.CreditKindMonthlyGrant, ref).Scan(&exists)
	return exists, err
}

func (r *LedgerRepo) ListByAccount(ctx context.Context, accountID uuid.UUID) ([]*models.CreditEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, account_id, amount, kind, description, video_request_id, created_at
		FROM credit_entries WHERE account_id = $1 ORDER BY created_at DESC
	`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.CreditEntry
	for rows.Next() {
		var e models.CreditEntry
		if err := rows.Scan(&e.ID, &e.AccountID, &e.Amount, &e.Kind, &e.Description, &e.VideoRequestID, &e.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &e)
	}
	return list, rows.Err()
}
