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

	"github.com/vidqueue/backend/internal/models"
)

type stubPending struct{ list []*models.VideoRequest }

func (s *stubPending) ListPending(_ context.Context) ([]*models.VideoRequest, error) {
	return s.list, nil
}

type stubSettings struct{ visible bool }

func (s *stubSettings) GetBool(_ context.Context, _ string, _ bool) (bool, error) {
	return s.visible, nil
}

func pendingAt(ts time.Time) *models.VideoRequest {
	return &models.VideoRequest{
		ID:             uuid.New(),
		AccountID:      uuid.New(),
		YouTubeURL:     "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		YouTubeVideoID: "dQw4w9WgXcQ",
		Status:         models.RequestStatusPending,
		RequestedAt:    ts,
	}
}

func TestQueueHiddenWhenSettingOff(t *testing.T) {
	h := &QueueHandler{
		Requests: &stubPending{},
		Settings: &stubSettings{visible: false},
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	w := httptest.NewRecorder()
	h.Queue(w, httptest.NewRequest(http.MethodGet, "/queue", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestQueuePositionsCollapseTies(t *testing.T) {
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	h := &QueueHandler{
		Requests: &stubPending{list: []*models.VideoRequest{
			pendingAt(base),
			pendingAt(base.Add(time.Minute)),
			pendingAt(base.Add(time.Minute)),
			pendingAt(base.Add(2 * time.Minute)),
		}},
		Settings: &stubSettings{visible: true},
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	w := httptest.NewRecorder()
	h.Queue(w, httptest.NewRequest(http.MethodGet, "/queue", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{`"position":1`, `"position":2`, `"position":4`} {
		if !strings.Contains(body, want) {
			t.Fatalf("missing %s in %s", want, body)
		}
	}
	if strings.Count(body, `"position":2`) != 2 {
		t.Fatalf("tied requests should share position 2: %s", body)
	}
	if strings.Contains(body, `"position":3`) {
		t.Fatalf("position 3 should be skipped after a tie: %s", body)
	}
}
