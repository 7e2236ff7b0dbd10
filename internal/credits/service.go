// Package credits owns the credit ledger: balances, entry appends and the
// monthly grant policy.
package credits

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/vidqueue/backend/internal/models"
)

// ErrZeroAdjustment is returned for manual adjustments of amount zero.
var ErrZeroAdjustment = errors.New("adjustment amount must be non-zero")

// LedgerStore is the minimal ledger repository interface for the service.
type LedgerStore interface {
	Create(ctx context.Context, e *models.CreditEntry) error
	SumByAccount(ctx context.Context, accountID uuid.UUID) (int, error)
	ListByAccount(ctx context.Context, accountID uuid.UUID) ([]*models.CreditEntry, error)
	HasMonthlyGrantInMonth(ctx context.Context, accountID uuid.UUID, ref time.Time) (bool, error)
}

// Service exposes balance reads and gate-free appends. Business rules about
// when an entry may be written live in the callers (grant policy, admission).
type Service struct {
	store LedgerStore
}

func NewService(store LedgerStore) *Service {
	return &Service{store: store}
}

// Balance returns the sum of all the account's ledger entries.
func (s *Service) Balance(ctx context.Context, accountID uuid.UUID) (int, error) {
	return s.store.SumByAccount(ctx, accountID)
}

// Append writes one ledger entry. It applies no business-rule gate: callers
// decide whether the movement is allowed.
func (s *Service) Append(ctx context.Context, accountID uuid.UUID, amount int, kind string, description string, requestRef *uuid.UUID) (*models.CreditEntry, error) {
	e := &models.CreditEntry{
		ID:             uuid.New(),
		AccountID:      accountID,
		Amount:         amount,
		Kind:           kind,
		VideoRequestID: requestRef,
	}
	if description != "" {
		e.Description = &description
	}
	if err := s.store.Create(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// Adjust records a manual admin credit movement: bonus for positive amounts,
// adjustment for negative ones. Adjustments may deliberately drive a balance
// negative.
func (s *Service) Adjust(ctx context.Context, accountID uuid.UUID, amount int, reason string) (*models.CreditEntry, error) {
	if amount == 0 {
		return nil, ErrZeroAdjustment
	}
	kind := models.CreditKindAdjustment
	if amount > 0 {
		kind = models.CreditKindBonus
	}
	return s.Append(ctx, accountID, amount, kind, reason, nil)
}

// Entries lists the account's ledger newest first.
func (s *Service) Entries(ctx context.Context, accountID uuid.UUID) ([]*models.CreditEntry, error) {
	return s.store.ListByAccount(ctx, accountID)
}
