package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"

	"github.com/vidqueue/backend/internal/models"
	"github.com/vidqueue/backend/internal/video"
)

type stubAccounts struct {
	linked  []*models.Account
	patrons []*models.Account
}

func (s *stubAccounts) GetByID(_ context.Context, id uuid.UUID) (*models.Account, error) {
	for _, a := range append(s.linked, s.patrons...) {
		if a.ID == id {
			return a, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (s *stubAccounts) ListLinked(context.Context) ([]*models.Account, error) {
	return s.linked, nil
}

func (s *stubAccounts) ListActivePatrons(context.Context) ([]*models.Account, error) {
	return s.patrons, nil
}

type stubRefresher struct {
	refreshed []uuid.UUID
	failFor   map[uuid.UUID]bool
}

func (s *stubRefresher) RefreshAccount(_ context.Context, acct *models.Account) error {
	if s.failFor[acct.ID] {
		return errors.New("provider down")
	}
	s.refreshed = append(s.refreshed, acct.ID)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRefreshMembershipsSweepContinuesPastFailures(t *testing.T) {
	a := &models.Account{ID: uuid.New()}
	b := &models.Account{ID: uuid.New()}
	c := &models.Account{ID: uuid.New()}
	refresher := &stubRefresher{failFor: map[uuid.UUID]bool{b.ID: true}}
	worker := &RefreshMembershipsWorker{
		Accounts:   &stubAccounts{linked: []*models.Account{a, b, c}},
		Membership: refresher,
		Logger:     testLogger(),
	}

	err := worker.Work(context.Background(), &river.Job[RefreshMembershipsArgs]{Args: RefreshMembershipsArgs{}})
	if err != nil {
		t.Fatalf("Work: %v", err)
	}
	if len(refresher.refreshed) != 2 {
		t.Errorf("refreshed %d accounts, want 2 (sweep must continue past failures)", len(refresher.refreshed))
	}
}

func TestRefreshMembershipsSingleAccount(t *testing.T) {
	a := &models.Account{ID: uuid.New()}
	b := &models.Account{ID: uuid.New()}
	refresher := &stubRefresher{failFor: map[uuid.UUID]bool{}}
	worker := &RefreshMembershipsWorker{
		Accounts:   &stubAccounts{linked: []*models.Account{a, b}},
		Membership: refresher,
		Logger:     testLogger(),
	}

	err := worker.Work(context.Background(), &river.Job[RefreshMembershipsArgs]{
		Args: RefreshMembershipsArgs{AccountID: &a.ID},
	})
	if err != nil {
		t.Fatalf("Work: %v", err)
	}
	if len(refresher.refreshed) != 1 || refresher.refreshed[0] != a.ID {
		t.Errorf("refreshed = %v, want just %s", refresher.refreshed, a.ID)
	}
}

type stubGranter struct {
	granted map[uuid.UUID]bool
}

func (s *stubGranter) GrantIfDue(_ context.Context, acct *models.Account) (*models.CreditEntry, error) {
	if s.granted[acct.ID] {
		return nil, nil
	}
	s.granted[acct.ID] = true
	return &models.CreditEntry{ID: uuid.New(), AccountID: acct.ID}, nil
}

func TestGrantMonthlySweep(t *testing.T) {
	a := &models.Account{ID: uuid.New()}
	b := &models.Account{ID: uuid.New()}
	granter := &stubGranter{granted: map[uuid.UUID]bool{b.ID: true}}
	worker := &GrantMonthlyWorker{
		Accounts: &stubAccounts{patrons: []*models.Account{a, b}},
		Grants:   granter,
		Logger:   testLogger(),
	}

	err := worker.Work(context.Background(), &river.Job[GrantMonthlyArgs]{Args: GrantMonthlyArgs{}})
	if err != nil {
		t.Fatalf("Work: %v", err)
	}
	if !granter.granted[a.ID] {
		t.Error("account a did not get its grant check")
	}
}

type stubRequestStore struct {
	requests map[uuid.UUID]*models.VideoRequest
	updated  map[uuid.UUID]bool
}

func (s *stubRequestStore) GetByID(_ context.Context, id uuid.UUID) (*models.VideoRequest, error) {
	r, ok := s.requests[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return r, nil
}

func (s *stubRequestStore) UpdateMetadata(_ context.Context, id uuid.UUID, title, thumbnail *string, durationSeconds *int) error {
	s.updated[id] = true
	r := s.requests[id]
	r.Title = title
	r.Thumbnail = thumbnail
	r.DurationSeconds = durationSeconds
	return nil
}

type stubVideos struct {
	details *video.Details
	err     error
}

func (s *stubVideos) Resolve(context.Context, string) (*video.Details, error) {
	return s.details, s.err
}

func TestFetchVideoMetadata(t *testing.T) {
	req := &models.VideoRequest{
		ID:             uuid.New(),
		YouTubeURL:     "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		YouTubeVideoID: "dQw4w9WgXcQ",
	}
	store := &stubRequestStore{
		requests: map[uuid.UUID]*models.VideoRequest{req.ID: req},
		updated:  map[uuid.UUID]bool{},
	}
	title := "Found It"
	dur := 240
	worker := &FetchVideoMetadataWorker{
		Requests: store,
		Videos:   &stubVideos{details: &video.Details{VideoID: "dQw4w9WgXcQ", Title: &title, DurationSeconds: &dur, RequestCost: 1}},
		Logger:   testLogger(),
	}

	err := worker.Work(context.Background(), &river.Job[FetchVideoMetadataArgs]{
		Args: FetchVideoMetadataArgs{RequestID: req.ID},
	})
	if err != nil {
		t.Fatalf("Work: %v", err)
	}
	if !store.updated[req.ID] || req.Title == nil || *req.Title != "Found It" {
		t.Errorf("metadata not stored: %+v", req)
	}

	// A failing resolve errors so River retries it.
	failing := &FetchVideoMetadataWorker{
		Requests: store,
		Videos:   &stubVideos{err: errors.New("quota exceeded")},
		Logger:   testLogger(),
	}
	err = failing.Work(context.Background(), &river.Job[FetchVideoMetadataArgs]{
		Args: FetchVideoMetadataArgs{RequestID: req.ID},
	})
	if err == nil {
		t.Error("expected error for retry")
	}
}
