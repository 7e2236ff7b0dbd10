package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	RequestStatusPending = "pending"
	RequestStatusDone    = "done"
)

// Admin rating values for a completed request.
const (
	RatingUp   = "up"
	RatingDown = "down"
)

// MaxContextLength bounds the free-text note a patron can attach.
const MaxContextLength = 500

type VideoRequest struct {
	ID              uuid.UUID  `json:"id"`
	AccountID       uuid.UUID  `json:"account_id"`
	YouTubeURL      string     `json:"youtube_url"`
	YouTubeVideoID  string     `json:"youtube_video_id"`
	Title           *string    `json:"title,omitempty"`
	Thumbnail       *string    `json:"thumbnail,omitempty"`
	DurationSeconds *int       `json:"duration_seconds,omitempty"`
	RequestCost     int        `json:"request_cost"`
	Context         *string    `json:"context,omitempty"`
	Status          string     `json:"status"`
	Rating          *string    `json:"rating,omitempty"`
	RequestedAt     time.Time  `json:"requested_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func (r *VideoRequest) IsPending() bool { return r.Status == RequestStatusPending }

func (r *VideoRequest) IsDone() bool { return r.Status == RequestStatusDone }
