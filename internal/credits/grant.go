package credits

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vidqueue/backend/internal/memo"
	"github.com/vidqueue/backend/internal/models"
)

// grantMemoTTL bounds how long the "already granted this month" memo lives.
// It must never exceed the calendar month it guards; the DB existence check
// remains the source of truth on every miss.
const grantMemoTTL = time.Hour

// Entitlements resolves an account's monthly allowance.
type Entitlements interface {
	AllowanceFor(a *models.Account) int
}

// GrantService issues the recurring monthly credit allotment, at most once
// per account per calendar month.
type GrantService struct {
	ledger      *Service
	entitlement Entitlements
	granted     *memo.Cache
	now         func() time.Time
}

func NewGrantService(ledger *Service, entitlement Entitlements) *GrantService {
	return &GrantService{
		ledger:      ledger,
		entitlement: entitlement,
		granted:     memo.New(),
		now:         time.Now,
	}
}

func grantMemoKey(accountID uuid.UUID, month time.Time) string {
	return fmt.Sprintf("grant:%s:%s", accountID, month.Format("2006-01"))
}

// GrantIfDue appends this month's grant entry for the account if it is owed
// one. It returns (nil, nil) when the account is not an active patron, has no
// positive allowance, or already received a monthly grant dated within the
// current calendar month. Safe to call repeatedly: the login path and the
// daily sweep both invoke it.
func (g *GrantService) GrantIfDue(ctx context.Context, acct *models.Account) (*models.CreditEntry, error) {
	if !acct.IsActivePatron() {
		return nil, nil
	}
	allowance := g.entitlement.AllowanceFor(acct)
	if allowance <= 0 {
		return nil, nil
	}

	now := g.now()
	key := grantMemoKey(acct.ID, now)
	if _, ok := g.granted.Get(key); ok {
		return nil, nil
	}

	exists, err := g.ledger.store.HasMonthlyGrantInMonth(ctx, acct.ID, now)
	if err != nil {
		return nil, fmt.Errorf("check monthly grant: %w", err)
	}
	if exists {
		g.granted.Set(key, true, grantMemoTTL)
		return nil, nil
	}

	desc := "Monthly credit grant for " + now.Format("January 2006")
	entry, err := g.ledger.Append(ctx, acct.ID, allowance, models.CreditKindMonthlyGrant, desc, nil)
	if err != nil {
		return nil, err
	}
	// Drop any stale memo; the next check re-reads the ledger.
	g.granted.Delete(key)
	return entry, nil
}
