// Package admission is the transactional boundary for submitting video
// requests: it checks entitlement and balance, persists the request and
// debits the ledger atomically.
package admission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vidqueue/backend/internal/models"
	"github.com/vidqueue/backend/internal/video"
)

var (
	// ErrNotEntitled means the account is not an active patron.
	ErrNotEntitled = errors.New("not an active patron")
	// ErrInsufficientCredits means the balance is below the request cost.
	ErrInsufficientCredits = errors.New("insufficient credits")
	// ErrDuplicateRequest is the umbrella for both duplicate outcomes below.
	ErrDuplicateRequest = errors.New("video already requested")
	// ErrAlreadyQueued: the video has a pending request.
	ErrAlreadyQueued = fmt.Errorf("%w and is in the queue", ErrDuplicateRequest)
	// ErrAlreadyDone: the video was requested and completed; it is never
	// re-queued.
	ErrAlreadyDone = fmt.Errorf("%w and was completed", ErrDuplicateRequest)

	ErrContextTooLong = fmt.Errorf("context exceeds %d characters", models.MaxContextLength)
	ErrNotOwner       = errors.New("request belongs to another account")
	ErrNotPending     = errors.New("request is not pending")
	ErrNotDone        = errors.New("request is not done")
	ErrInvalidRating  = errors.New("rating must be up or down")
)

// TxBeginner abstracts transaction creation so tests don't need a pgxpool.Pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// AccountStore locks the account row that serializes check-then-debit.
type AccountStore interface {
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Account, error)
}

// LedgerStore is the minimal ledger interface for admission.
type LedgerStore interface {
	SumByAccountTx(ctx context.Context, tx pgx.Tx, accountID uuid.UUID) (int, error)
	CreateTx(ctx context.Context, tx pgx.Tx, e *models.CreditEntry) error
}

// RequestStore is the minimal request repository interface for admission.
type RequestStore interface {
	CreateTx(ctx context.Context, tx pgx.Tx, v *models.VideoRequest) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.VideoRequest, error)
	GetByVideoID(ctx context.Context, videoID string) (*models.VideoRequest, error)
	MarkDone(ctx context.Context, id uuid.UUID, rating *string, completedAt time.Time) error
	MarkPending(ctx context.Context, id uuid.UUID) error
	UpdateContext(ctx context.Context, id uuid.UUID, context *string) error
}

// MetadataResolver resolves a URL to video details and cost.
type MetadataResolver interface {
	Resolve(ctx context.Context, rawURL string) (*video.Details, error)
}

// EnqueueMetadataRetryFunc schedules a metadata backfill job in the same
// transaction as the request insert.
type EnqueueMetadataRetryFunc func(ctx context.Context, tx pgx.Tx, requestID uuid.UUID) error

type Service struct {
	pool            TxBeginner
	accounts        AccountStore
	ledger          LedgerStore
	requests        RequestStore
	videos          MetadataResolver
	enqueueMetadata EnqueueMetadataRetryFunc
	logger          *slog.Logger
	now             func() time.Time
}

func NewService(pool TxBeginner, accounts AccountStore, ledger LedgerStore, requests RequestStore, videos MetadataResolver, logger *slog.Logger) *Service {
	return &Service{
		pool:     pool,
		accounts: accounts,
		ledger:   ledger,
		requests: requests,
		videos:   videos,
		logger:   logger,
		now:      time.Now,
	}
}

// SetMetadataEnqueuer wires the job-queue insert used to retry metadata
// lookups. Set after the queue client exists; nil disables retries.
func (s *Service) SetMetadataEnqueuer(fn EnqueueMetadataRetryFunc) {
	s.enqueueMetadata = fn
}

// Preview resolves a URL and surfaces the duplicate errors Submit would
// return, without touching the ledger. Backs the pre-submit check endpoint.
func (s *Service) Preview(ctx context.Context, rawURL string) (*video.Details, error) {
	details, err := s.videos.Resolve(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	if err := s.checkDuplicate(ctx, details.VideoID); err != nil {
		return nil, err
	}
	return details, nil
}

func (s *Service) checkDuplicate(ctx context.Context, videoID string) error {
	existing, err := s.requests.GetByVideoID(ctx, videoID)
	if err != nil {
		return fmt.Errorf("look up existing request: %w", err)
	}
	if existing == nil {
		return nil
	}
	if existing.IsPending() {
		return ErrAlreadyQueued
	}
	return ErrAlreadyDone
}

// Submit admits a new video request for the account. Within one transaction
// it takes the account's row lock, recomputes the balance, verifies active
// patronage and sufficient credits, then creates the pending request together
// with its debit entry. Two concurrent submits from the same account cannot
// both pass the balance check: the second blocks on the row lock and sees the
// first debit.
func (s *Service) Submit(ctx context.Context, acct *models.Account, rawURL, contextNote string) (*models.VideoRequest, error) {
	if len(contextNote) > models.MaxContextLength {
		return nil, ErrContextTooLong
	}
	normalized, err := video.NormalizeURL(rawURL)
	if err != nil {
		return nil, err
	}
	details, err := s.videos.Resolve(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	if err := s.checkDuplicate(ctx, details.VideoID); err != nil {
		return nil, err
	}

	cost := details.RequestCost
	if cost <= 0 {
		cost = 1
	}

	req := &models.VideoRequest{
		ID:              uuid.New(),
		AccountID:       acct.ID,
		YouTubeURL:      normalized,
		YouTubeVideoID:  details.VideoID,
		Title:           details.Title,
		Thumbnail:       details.Thumbnail,
		DurationSeconds: details.DurationSeconds,
		RequestCost:     cost,
		Status:          models.RequestStatusPending,
		RequestedAt:     s.now(),
	}
	if contextNote != "" {
		req.Context = &contextNote
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin submit tx: %w", err)
	}
	defer tx.Rollback(ctx)

	locked, err := s.accounts.GetByIDForUpdate(ctx, tx, acct.ID)
	if err != nil {
		return nil, fmt.Errorf("lock account %s: %w", acct.ID, err)
	}
	if !locked.IsActivePatron() {
		return nil, ErrNotEntitled
	}
	balance, err := s.ledger.SumByAccountTx(ctx, tx, acct.ID)
	if err != nil {
		return nil, fmt.Errorf("balance for %s: %w", acct.ID, err)
	}
	if balance < cost {
		return nil, fmt.Errorf("%w: need %d, have %d", ErrInsufficientCredits, cost, balance)
	}

	if err := s.requests.CreateTx(ctx, tx, req); err != nil {
		// The unique index on youtube_video_id backstops a dedup race.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrAlreadyQueued
		}
		return nil, fmt.Errorf("create request: %w", err)
	}

	desc := "Video request: " + details.VideoID
	if details.Title != nil {
		desc = "Video request: " + *details.Title
	}
	entry := &models.CreditEntry{
		ID:             uuid.New(),
		AccountID:      acct.ID,
		Amount:         -cost,
		Kind:           models.CreditKindRequest,
		Description:    &desc,
		VideoRequestID: &req.ID,
	}
	if err := s.ledger.CreateTx(ctx, tx, entry); err != nil {
		return nil, fmt.Errorf("debit credits: %w", err)
	}

	// Metadata lookups are best-effort at submit time; missing fields are
	// backfilled by a retry job enqueued in the same transaction.
	if s.enqueueMetadata != nil && (details.Title == nil || details.DurationSeconds == nil) {
		if err := s.enqueueMetadata(ctx, tx, req.ID); err != nil {
			return nil, fmt.Errorf("enqueue metadata retry: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit submit tx: %w", err)
	}
	s.logger.Info("request admitted", "request_id", req.ID, "account_id", acct.ID,
		"video_id", details.VideoID, "cost", cost)
	return req, nil
}

// Complete marks a request done with an optional rating. Re-completing keeps
// the original completion timestamp. The ledger is untouched.
func (s *Service) Complete(ctx context.Context, id uuid.UUID, rating *string) error {
	if rating != nil && *rating != models.RatingUp && *rating != models.RatingDown {
		return ErrInvalidRating
	}
	if _, err := s.requests.GetByID(ctx, id); err != nil {
		return err
	}
	return s.requests.MarkDone(ctx, id, rating, s.now())
}

// Revert moves a done request back to pending, clearing its completion
// timestamp and rating. The ledger is untouched: the original debit stands.
func (s *Service) Revert(ctx context.Context, id uuid.UUID) error {
	req, err := s.requests.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !req.IsDone() {
		return ErrNotDone
	}
	return s.requests.MarkPending(ctx, id)
}

// UpdateContext edits the free-text note. Only the owning account may edit,
// and only while the request is pending.
func (s *Service) UpdateContext(ctx context.Context, acct *models.Account, id uuid.UUID, contextNote string) error {
	if len(contextNote) > models.MaxContextLength {
		return ErrContextTooLong
	}
	req, err := s.requests.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if req.AccountID != acct.ID {
		return ErrNotOwner
	}
	if !req.IsPending() {
		return ErrNotPending
	}
	var note *string
	if contextNote != "" {
		note = &contextNote
	}
	return s.requests.UpdateContext(ctx, id, note)
}
