// Package jobs holds the background work that runs through River: the daily
// membership refresh, the monthly grant sweep, and video metadata backfill.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/riverqueue/river"

	"github.com/vidqueue/backend/internal/models"
	"github.com/vidqueue/backend/internal/video"
)

// RefreshMembershipsArgs refreshes membership for one account, or for every
// linked account when AccountID is nil.
type RefreshMembershipsArgs struct {
	AccountID *uuid.UUID `json:"account_id,omitempty"`
}

func (RefreshMembershipsArgs) Kind() string { return "refresh_memberships" }

// GrantMonthlyArgs runs the monthly grant check for one account, or for all
// active patrons when AccountID is nil.
type GrantMonthlyArgs struct {
	AccountID *uuid.UUID `json:"account_id,omitempty"`
}

func (GrantMonthlyArgs) Kind() string { return "grant_monthly" }

// FetchVideoMetadataArgs re-resolves title/thumbnail/duration for a request
// whose metadata lookup failed at submit time.
type FetchVideoMetadataArgs struct {
	RequestID uuid.UUID `json:"request_id"`
}

func (FetchVideoMetadataArgs) Kind() string { return "fetch_video_metadata" }

// AccountSource lists the accounts a sweep iterates.
type AccountSource interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error)
	ListLinked(ctx context.Context) ([]*models.Account, error)
	ListActivePatrons(ctx context.Context) ([]*models.Account, error)
}

// MembershipRefresher re-checks one account against the provider.
type MembershipRefresher interface {
	RefreshAccount(ctx context.Context, acct *models.Account) error
}

// RefreshMembershipsWorker runs the membership sweep. Individual fetch
// failures are counted and logged; the sweep never halts early.
type RefreshMembershipsWorker struct {
	river.WorkerDefaults[RefreshMembershipsArgs]
	Accounts   AccountSource
	Membership MembershipRefresher
	Logger     *slog.Logger
}

func (w *RefreshMembershipsWorker) Work(ctx context.Context, job *river.Job[RefreshMembershipsArgs]) error {
	accounts, err := w.targets(ctx, job.Args.AccountID)
	if err != nil {
		return err
	}
	failed := 0
	for _, acct := range accounts {
		if err := w.Membership.RefreshAccount(ctx, acct); err != nil {
			failed++
			w.Logger.Warn("membership refresh failed", "account_id", acct.ID, "error", err)
		}
	}
	w.Logger.Info("membership sweep finished", "accounts", len(accounts), "failed", failed)
	if failed > 0 && failed == len(accounts) {
		return fmt.Errorf("membership sweep: all %d refreshes failed", failed)
	}
	return nil
}

func (w *RefreshMembershipsWorker) targets(ctx context.Context, id *uuid.UUID) ([]*models.Account, error) {
	if id != nil {
		acct, err := w.Accounts.GetByID(ctx, *id)
		if err != nil {
			return nil, fmt.Errorf("load account %s: %w", *id, err)
		}
		return []*models.Account{acct}, nil
	}
	return w.Accounts.ListLinked(ctx)
}

// Granter runs the monthly grant check for an account.
type Granter interface {
	GrantIfDue(ctx context.Context, acct *models.Account) (*models.CreditEntry, error)
}

// GrantMonthlyWorker backfills monthly grants for patrons who did not log in
// this month. GrantIfDue is idempotent, so overlapping runs are harmless.
type GrantMonthlyWorker struct {
	river.WorkerDefaults[GrantMonthlyArgs]
	Accounts AccountSource
	Grants   Granter
	Logger   *slog.Logger
}

func (w *GrantMonthlyWorker) Work(ctx context.Context, job *river.Job[GrantMonthlyArgs]) error {
	var accounts []*models.Account
	var err error
	if job.Args.AccountID != nil {
		var acct *models.Account
		acct, err = w.Accounts.GetByID(ctx, *job.Args.AccountID)
		accounts = []*models.Account{acct}
	} else {
		accounts, err = w.Accounts.ListActivePatrons(ctx)
	}
	if err != nil {
		return err
	}

	granted, failed := 0, 0
	for _, acct := range accounts {
		entry, err := w.Grants.GrantIfDue(ctx, acct)
		if err != nil {
			failed++
			w.Logger.Warn("monthly grant failed", "account_id", acct.ID, "error", err)
			continue
		}
		if entry != nil {
			granted++
		}
	}
	w.Logger.Info("grant sweep finished", "accounts", len(accounts), "granted", granted, "failed", failed)
	return nil
}

// RequestMetadataStore is the request repository surface of the metadata
// backfill.
type RequestMetadataStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.VideoRequest, error)
	UpdateMetadata(ctx context.Context, id uuid.UUID, title, thumbnail *string, durationSeconds *int) error
}

// MetadataResolver resolves video details for a URL.
type MetadataResolver interface {
	Resolve(ctx context.Context, rawURL string) (*video.Details, error)
}

// FetchVideoMetadataWorker retries the metadata lookup for one request.
type FetchVideoMetadataWorker struct {
	river.WorkerDefaults[FetchVideoMetadataArgs]
	Requests RequestMetadataStore
	Videos   MetadataResolver
	Logger   *slog.Logger
}

func (w *FetchVideoMetadataWorker) Timeout(*river.Job[FetchVideoMetadataArgs]) time.Duration {
	return 30 * time.Second
}

func (w *FetchVideoMetadataWorker) Work(ctx context.Context, job *river.Job[FetchVideoMetadataArgs]) error {
	req, err := w.Requests.GetByID(ctx, job.Args.RequestID)
	if err != nil {
		return fmt.Errorf("load request %s: %w", job.Args.RequestID, err)
	}
	details, err := w.Videos.Resolve(ctx, req.YouTubeURL)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", req.YouTubeVideoID, err)
	}
	if err := w.Requests.UpdateMetadata(ctx, req.ID, details.Title, details.Thumbnail, details.DurationSeconds); err != nil {
		return fmt.Errorf("store metadata for %s: %w", req.ID, err)
	}
	w.Logger.Info("video metadata backfilled", "request_id", req.ID, "video_id", req.YouTubeVideoID)
	return nil
}

// PeriodicJobs returns the daily sweeps: membership refresh and monthly
// grant backfill.
func PeriodicJobs() []*river.PeriodicJob {
	return []*river.PeriodicJob{
		river.NewPeriodicJob(
			river.PeriodicInterval(24*time.Hour),
			func() (river.JobArgs, *river.InsertOpts) {
				return RefreshMembershipsArgs{}, nil
			},
			&river.PeriodicJobOpts{RunOnStart: true},
		),
		river.NewPeriodicJob(
			river.PeriodicInterval(24*time.Hour),
			func() (river.JobArgs, *river.InsertOpts) {
				return GrantMonthlyArgs{}, nil
			},
			&river.PeriodicJobOpts{RunOnStart: true},
		),
	}
}
