package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vidqueue/backend/internal/models"
)

const requestColumns = `id, account_id, youtube_url, youtube_video_id, title, thumbnail,
	duration_seconds, request_cost, context, status, rating, requested_at, completed_at,
	created_at, updated_at`

type RequestRepo struct {
	pool *pgxpool.Pool
}

func NewRequestRepo(pool *pgxpool.Pool) *RequestRepo {
	return &RequestRepo{pool: pool}
}

func scanRequest(row pgx.Row) (*models.VideoRequest, error) {
	var v models.VideoRequest
	err := row.Scan(&v.ID, &v.AccountID, &v.YouTubeURL, &v.YouTubeVideoID, &v.Title,
		&v.Thumbnail, &v.DurationSeconds, &v.RequestCost, &v.Context, &v.Status, &v.Rating,
		&v.RequestedAt, &v.CompletedAt, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// CreateTx inserts a request inside the given transaction so the row and its
// debit entry commit or abort together.
func (r *RequestRepo) CreateTx(ctx context.Context, tx pgx.Tx, v *models.VideoRequest) error {
	return tx.QueryRow(ctx, `
		INSERT INTO video_requests (id, account_id, youtube_url, youtube_video_id, title,
			thumbnail, duration_seconds, request_cost, context, status, requested_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at
	`, v.ID, v.AccountID, v.YouTubeURL, v.YouTubeVideoID, v.Title, v.Thumbnail,
		v.DurationSeconds, v.RequestCost, v.Context, v.Status, v.RequestedAt).
		Scan(&v.CreatedAt, &v.UpdatedAt)
}

func (r *RequestRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.VideoRequest, error) {
	return scanRequest(r.pool.QueryRow(ctx,
		`SELECT `+requestColumns+` FROM video_requests WHERE id = $1`, id))
}

// GetByVideoID returns the request for an external video id regardless of
// status, or nil when the video has never been requested.
func (r *RequestRepo) GetByVideoID(ctx context.Context, videoID string) (*models.VideoRequest, error) {
	v, err := scanRequest(r.pool.QueryRow(ctx,
		`SELECT `+requestColumns+` FROM video_requests WHERE youtube_video_id = $1`, videoID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return v, err
}

func (r *RequestRepo) scanList(rows pgx.Rows) ([]*models.VideoRequest, error) {
	defer rows.Close()
	var list []*models.VideoRequest
	for rows.Next() {
		v, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, v)
	}
	return list, rows.Err()
}

// ListPending returns the queue in FIFO order.
func (r *RequestRepo) ListPending(ctx context.Context) ([]*models.VideoRequest, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+requestColumns+` FROM video_requests
		WHERE status = $1 ORDER BY requested_at ASC
	`, models.RequestStatusPending)
	if err != nil {
		return nil, err
	}
	return r.scanList(rows)
}

// ListByAccount returns the account's requests newest first.
func (r *RequestRepo) ListByAccount(ctx context.Context, accountID uuid.UUID, limit int) ([]*models.VideoRequest, error) {
	q := `SELECT ` + requestColumns + ` FROM video_requests
		WHERE account_id = $1 ORDER BY requested_at DESC`
	if limit > 0 {
		rows, err := r.pool.Query(ctx, q+` LIMIT $2`, accountID, limit)
		if err != nil {
			return nil, err
		}
		return r.scanList(rows)
	}
	rows, err := r.pool.Query(ctx, q, accountID)
	if err != nil {
		return nil, err
	}
	return r.scanList(rows)
}

// ListByStatus returns all requests in FIFO order, optionally filtered by
// status ("" means all).
func (r *RequestRepo) ListByStatus(ctx context.Context, status string) ([]*models.VideoRequest, error) {
	if status == "" {
		rows, err := r.pool.Query(ctx,
			`SELECT `+requestColumns+` FROM video_requests ORDER BY requested_at ASC`)
		if err != nil {
			return nil, err
		}
		return r.scanList(rows)
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+requestColumns+` FROM video_requests
		WHERE status = $1 ORDER BY requested_at ASC
	`, status)
	if err != nil {
		return nil, err
	}
	return r.scanList(rows)
}

// CountPendingBefore counts pending requests submitted strictly before t.
// Equal timestamps share a queue position.
func (r *RequestRepo) CountPendingBefore(ctx context.Context, t time.Time) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM video_requests WHERE status = $1 AND requested_at < $2
	`, models.RequestStatusPending, t).Scan(&n)
	return n, err
}

func (r *RequestRepo) CountByStatus(ctx context.Context) (total, pending, done int, err error) {
	err = r.pool.QueryRow(ctx, `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE status = $1),
			COUNT(*) FILTER (WHERE status = $2)
		FROM video_requests
	`, models.RequestStatusPending, models.RequestStatusDone).Scan(&total, &pending, &done)
	return
}

// MarkDone completes a request. An existing completion timestamp is kept so
// re-completing is idempotent.
func (r *RequestRepo) MarkDone(ctx context.Context, id uuid.UUID, rating *string, completedAt time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE video_requests
		SET status = $2, rating = COALESCE($3, rating),
			completed_at = COALESCE(completed_at, $4), updated_at = now()
		WHERE id = $1
	`, id, models.RequestStatusDone, rating, completedAt)
	return err
}

// MarkPending reverts a completed request; completion timestamp and rating
// are cleared, ledger entries are untouched.
func (r *RequestRepo) MarkPending(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE video_requests
		SET status = $2, completed_at = NULL, rating = NULL, updated_at = now()
		WHERE id = $1
	`, id, models.RequestStatusPending)
	return err
}

func (r *RequestRepo) UpdateContext(ctx context.Context, id uuid.UUID, context *string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE video_requests SET context = $2, updated_at = now() WHERE id = $1
	`, id, context)
	return err
}

// UpdateMetadata fills in asynchronously fetched title/thumbnail/duration.
func (r *RequestRepo) UpdateMetadata(ctx context.Context, id uuid.UUID, title, thumbnail *string, durationSeconds *int) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE video_requests
		SET title = COALESCE($2, title), thumbnail = COALESCE($3, thumbnail),
			duration_seconds = COALESCE($4, duration_seconds), updated_at = now()
		WHERE id = $1
	`, id, title, thumbnail, durationSeconds)
	return err
}

// MinRequestedAt returns the oldest submission timestamp on record, or nil
// when no requests exist.
func (r *RequestRepo) MinRequestedAt(ctx context.Context) (*time.Time, error) {
	var t *time.Time
	err := r.pool.QueryRow(ctx, `SELECT MIN(requested_at) FROM video_requests`).Scan(&t)
	return t, err
}

// OldestPending returns the head of the queue, or nil when the queue is empty.
func (r *RequestRepo) OldestPending(ctx context.Context) (*models.VideoRequest, error) {
	v, err := scanRequest(r.pool.QueryRow(ctx, `
		SELECT `+requestColumns+` FROM video_requests
		WHERE status = $1 ORDER BY requested_at ASC LIMIT 1
	`, models.RequestStatusPending))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return v, err
}

// ListMissingMetadata returns requests still lacking a title or duration,
// for the metadata backfill job.
func (r *RequestRepo) ListMissingMetadata(ctx context.Context, limit int) ([]*models.VideoRequest, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+requestColumns+` FROM video_requests
		WHERE title IS NULL OR duration_seconds IS NULL
		ORDER BY requested_at ASC LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	return r.scanList(rows)
}
