package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/vidqueue/backend/internal/admission"
	"github.com/vidqueue/backend/internal/middleware"
	"github.com/vidqueue/backend/internal/models"
	"github.com/vidqueue/backend/internal/video"
)

type stubAdmitter struct {
	submitErr  error
	previewErr error
	created    *models.VideoRequest
}

func (s *stubAdmitter) Preview(_ context.Context, _ string) (*video.Details, error) {
	if s.previewErr != nil {
		return nil, s.previewErr
	}
	title := "Some Video"
	return &video.Details{VideoID: "dQw4w9WgXcQ", Title: &title, RequestCost: 1}, nil
}

func (s *stubAdmitter) Submit(_ context.Context, acct *models.Account, _, contextNote string) (*models.VideoRequest, error) {
	if s.submitErr != nil {
		return nil, s.submitErr
	}
	req := &models.VideoRequest{
		ID:             uuid.New(),
		AccountID:      acct.ID,
		YouTubeVideoID: "dQw4w9WgXcQ",
		RequestCost:    1,
		Status:         models.RequestStatusPending,
		RequestedAt:    time.Now(),
	}
	if contextNote != "" {
		req.Context = &contextNote
	}
	s.created = req
	return req, nil
}

func (s *stubAdmitter) UpdateContext(_ context.Context, _ *models.Account, _ uuid.UUID, _ string) error {
	return nil
}

type stubPositions struct{ pos int }

func (s *stubPositions) Position(_ context.Context, req *models.VideoRequest) (*int, error) {
	if !req.IsPending() {
		return nil, nil
	}
	p := s.pos
	return &p, nil
}

type stubBalance struct{ balance int }

func (s *stubBalance) Balance(_ context.Context, _ uuid.UUID) (int, error) {
	return s.balance, nil
}

type stubLister struct{ list []*models.VideoRequest }

func (s *stubLister) ListByAccount(_ context.Context, _ uuid.UUID, _ int) ([]*models.VideoRequest, error) {
	return s.list, nil
}

func testAccount() *models.Account {
	status := models.PatronStatusActive
	return &models.Account{
		ID:              uuid.New(),
		Name:            "Pat",
		Email:           "pat@example.com",
		PatronStatus:    &status,
		PatronTierCents: 300,
	}
}

func newRequestHandler(adm *stubAdmitter) *RequestHandler {
	return &RequestHandler{
		Admission: adm,
		Positions: &stubPositions{pos: 3},
		Credits:   &stubBalance{balance: 2},
		Requests:  &stubLister{},
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func authedRequest(method, target, body string, acc *models.Account) *http.Request {
	r := httptest.NewRequest(method, target, strings.NewReader(body))
	return r.WithContext(middleware.WithAccount(r.Context(), acc))
}

func TestSubmitCreated(t *testing.T) {
	adm := &stubAdmitter{}
	h := newRequestHandler(adm)

	w := httptest.NewRecorder()
	h.Submit(w, authedRequest(http.MethodPost, "/requests",
		`{"url":"https://youtu.be/dQw4w9WgXcQ","context":"please cover"}`, testAccount()))

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201; body %s", w.Code, w.Body.String())
	}
	if adm.created == nil || adm.created.Context == nil || *adm.created.Context != "please cover" {
		t.Fatalf("context note not passed through: %+v", adm.created)
	}
	body := w.Body.String()
	if !strings.Contains(body, `"position":3`) || !strings.Contains(body, `"balance":2`) {
		t.Fatalf("missing position or balance in %s", body)
	}
}

func TestSubmitErrorStatusMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"invalid url", video.ErrInvalidURL, http.StatusUnprocessableEntity},
		{"context too long", admission.ErrContextTooLong, http.StatusUnprocessableEntity},
		{"already queued", admission.ErrAlreadyQueued, http.StatusConflict},
		{"already done", admission.ErrAlreadyDone, http.StatusConflict},
		{"not entitled", admission.ErrNotEntitled, http.StatusForbidden},
		{"insufficient credits", admission.ErrInsufficientCredits, http.StatusPaymentRequired},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newRequestHandler(&stubAdmitter{submitErr: tc.err})
			w := httptest.NewRecorder()
			h.Submit(w, authedRequest(http.MethodPost, "/requests",
				`{"url":"https://youtu.be/dQw4w9WgXcQ"}`, testAccount()))
			if w.Code != tc.want {
				t.Fatalf("status = %d, want %d", w.Code, tc.want)
			}
		})
	}
}

func TestSubmitRequiresAccount(t *testing.T) {
	h := newRequestHandler(&stubAdmitter{})
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/requests", strings.NewReader(`{"url":"x"}`))
	h.Submit(w, r)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestCheckReportsVideoAndBalance(t *testing.T) {
	h := newRequestHandler(&stubAdmitter{})
	w := httptest.NewRecorder()
	h.Check(w, authedRequest(http.MethodPost, "/requests/check",
		`{"url":"https://youtu.be/dQw4w9WgXcQ"}`, testAccount()))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", w.Code, w.Body.String())
	}
	body := w.Body.String()
	if !strings.Contains(body, "dQw4w9WgXcQ") || !strings.Contains(body, `"balance":2`) {
		t.Fatalf("unexpected body %s", body)
	}
}

func TestCheckSurfacesDuplicate(t *testing.T) {
	h := newRequestHandler(&stubAdmitter{previewErr: admission.ErrAlreadyQueued})
	w := httptest.NewRecorder()
	h.Check(w, authedRequest(http.MethodPost, "/requests/check",
		`{"url":"https://youtu.be/dQw4w9WgXcQ"}`, testAccount()))
	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", w.Code)
	}
}

func TestMyRequestsIncludesPositions(t *testing.T) {
	acc := testAccount()
	pending := &models.VideoRequest{
		ID: uuid.New(), AccountID: acc.ID, YouTubeVideoID: "aaaaaaaaaaa",
		Status: models.RequestStatusPending, RequestedAt: time.Now(),
	}
	done := &models.VideoRequest{
		ID: uuid.New(), AccountID: acc.ID, YouTubeVideoID: "bbbbbbbbbbb",
		Status: models.RequestStatusDone, RequestedAt: time.Now(),
	}
	h := newRequestHandler(&stubAdmitter{})
	h.Requests = &stubLister{list: []*models.VideoRequest{pending, done}}

	w := httptest.NewRecorder()
	h.MyRequests(w, authedRequest(http.MethodGet, "/my-requests", "", acc))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, `"position":3`) {
		t.Fatalf("pending request missing position: %s", body)
	}
	if strings.Count(body, `"position"`) != 1 {
		t.Fatalf("done request should have no position: %s", body)
	}
}
