package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/vidqueue/backend/internal/models"
)

// PendingLister lists the pending queue in FIFO order.
type PendingLister interface {
	ListPending(ctx context.Context) ([]*models.VideoRequest, error)
}

// QueueHandler serves GET /queue, the public view of the pending list. The
// admin can hide it with the show_request_list setting.
type QueueHandler struct {
	Requests PendingLister
	Settings SettingsReader
	Logger   *slog.Logger
}

type queueEntry struct {
	ID          string  `json:"id"`
	Title       *string `json:"title"`
	Thumbnail   *string `json:"thumbnail"`
	YouTubeURL  string  `json:"youtube_url"`
	Position    int     `json:"position"`
	RequestedAt string  `json:"requested_at"`
}

func (h *QueueHandler) Queue(w http.ResponseWriter, r *http.Request) {
	visible, err := h.Settings.GetBool(r.Context(), models.SettingShowRequestList, true)
	if err != nil {
		h.Logger.Error("read settings", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !visible {
		writeError(w, http.StatusNotFound, "request list is not public")
		return
	}
	pending, err := h.Requests.ListPending(r.Context())
	if err != nil {
		h.Logger.Error("list pending", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	// The list is FIFO already; positions are its 1-based indexes, with ties
	// collapsed to the earliest index of their timestamp.
	entries := make([]queueEntry, 0, len(pending))
	position := 0
	for i, req := range pending {
		if i == 0 || !req.RequestedAt.Equal(pending[i-1].RequestedAt) {
			position = i + 1
		}
		entries = append(entries, queueEntry{
			ID:          req.ID.String(),
			Title:       req.Title,
			Thumbnail:   req.Thumbnail,
			YouTubeURL:  req.YouTubeURL,
			Position:    position,
			RequestedAt: req.RequestedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"queue": entries})
}
