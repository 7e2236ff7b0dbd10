// Package queuepos computes a request's place in the pending queue.
package queuepos

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vidqueue/backend/internal/models"
)

// RequestStore is the slice of the request repository needed for positions.
type RequestStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.VideoRequest, error)
	CountPendingBefore(ctx context.Context, t time.Time) (int, error)
}

type Calculator struct {
	requests RequestStore
}

func NewCalculator(requests RequestStore) *Calculator {
	return &Calculator{requests: requests}
}

// PositionOf returns the 1-based queue position of a pending request: the
// number of pending requests submitted strictly earlier, plus one. Requests
// sharing a timestamp share a position. Non-pending requests have no
// position and get nil.
func (c *Calculator) PositionOf(ctx context.Context, id uuid.UUID) (*int, error) {
	req, err := c.requests.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load request %s: %w", id, err)
	}
	return c.Position(ctx, req)
}

// Position is PositionOf for an already-loaded request.
func (c *Calculator) Position(ctx context.Context, req *models.VideoRequest) (*int, error) {
	if !req.IsPending() {
		return nil, nil
	}
	ahead, err := c.requests.CountPendingBefore(ctx, req.RequestedAt)
	if err != nil {
		return nil, fmt.Errorf("count ahead of %s: %w", req.ID, err)
	}
	pos := ahead + 1
	return &pos, nil
}
