package credits

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vidqueue/backend/internal/entitlement"
	"github.com/vidqueue/backend/internal/models"
)

func activePatron(tierCents int) *models.Account {
	status := models.PatronStatusActive
	return &models.Account{
		ID:              newUUID(),
		PatronStatus:    &status,
		PatronTierCents: tierCents,
	}
}

func newGrantService(store *mockLedger) *GrantService {
	resolver := entitlement.NewResolver(map[int]int{100: 1, 300: 2}, 0)
	return NewGrantService(NewService(store), resolver)
}

func TestGrantIfDue(t *testing.T) {
	ctx := context.Background()
	store := newMockLedger()
	g := newGrantService(store)
	now := time.Date(2026, time.January, 15, 10, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return now }
	store.now = g.now

	acct := activePatron(300)

	entry, err := g.GrantIfDue(ctx, acct)
	if err != nil {
		t.Fatalf("GrantIfDue: %v", err)
	}
	if entry == nil {
		t.Fatal("expected a grant entry")
	}
	if entry.Amount != 2 {
		t.Errorf("grant amount = %d, want 2", entry.Amount)
	}
	if entry.Kind != models.CreditKindMonthlyGrant {
		t.Errorf("grant kind = %q", entry.Kind)
	}
	if entry.Description == nil || !strings.Contains(*entry.Description, "January 2026") {
		t.Errorf("description should name the month, got %v", entry.Description)
	}
}

func TestGrantIfDueIdempotentWithinMonth(t *testing.T) {
	ctx := context.Background()
	store := newMockLedger()
	g := newGrantService(store)
	now := time.Date(2026, time.January, 15, 10, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return now }
	store.now = g.now

	acct := activePatron(100)

	first, err := g.GrantIfDue(ctx, acct)
	if err != nil || first == nil {
		t.Fatalf("first GrantIfDue: entry=%v err=%v", first, err)
	}
	second, err := g.GrantIfDue(ctx, acct)
	if err != nil {
		t.Fatalf("second GrantIfDue: %v", err)
	}
	if second != nil {
		t.Error("second call in the same month should grant nothing")
	}
	if n := len(store.byKind(models.CreditKindMonthlyGrant)); n != 1 {
		t.Errorf("monthly_grant entries = %d, want exactly 1", n)
	}
}

func TestGrantIfDueNewMonthGrantsAgain(t *testing.T) {
	ctx := context.Background()
	store := newMockLedger()
	g := newGrantService(store)
	now := time.Date(2026, time.January, 31, 23, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return now }
	store.now = func() time.Time { return now }

	acct := activePatron(100)
	if e, _ := g.GrantIfDue(ctx, acct); e == nil {
		t.Fatal("January grant expected")
	}

	// Calendar month equality, not a rolling 30-day window: one day later is
	// a new month and a new grant.
	now = time.Date(2026, time.February, 1, 1, 0, 0, 0, time.UTC)
	e, err := g.GrantIfDue(ctx, acct)
	if err != nil {
		t.Fatalf("February GrantIfDue: %v", err)
	}
	if e == nil {
		t.Fatal("February grant expected")
	}
	if n := len(store.byKind(models.CreditKindMonthlyGrant)); n != 2 {
		t.Errorf("monthly_grant entries = %d, want 2", n)
	}
}

func TestGrantIfDueIneligible(t *testing.T) {
	ctx := context.Background()
	store := newMockLedger()
	g := newGrantService(store)

	former := models.PatronStatusFormer
	cases := []struct {
		name string
		acct *models.Account
	}{
		{"former patron", &models.Account{ID: newUUID(), PatronStatus: &former, PatronTierCents: 300}},
		{"no membership", &models.Account{ID: newUUID()}},
		{"active but below every tier", activePatron(50)},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			e, err := g.GrantIfDue(ctx, tt.acct)
			if err != nil {
				t.Fatalf("GrantIfDue: %v", err)
			}
			if e != nil {
				t.Errorf("expected no grant, got %+v", e)
			}
		})
	}
	if n := len(store.entries); n != 0 {
		t.Errorf("ledger should be untouched, has %d entries", n)
	}
}

func TestGrantIfDueMemoSkipsExistenceCheck(t *testing.T) {
	ctx := context.Background()
	store := newMockLedger()
	g := newGrantService(store)
	now := time.Date(2026, time.March, 2, 8, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return now }
	store.now = g.now

	acct := activePatron(100)
	if e, _ := g.GrantIfDue(ctx, acct); e == nil {
		t.Fatal("grant expected")
	}
	// Second call populates the memo from the ledger check...
	if e, _ := g.GrantIfDue(ctx, acct); e != nil {
		t.Fatal("no second grant expected")
	}
	// ...and the memoized answer still holds on the third call.
	if e, _ := g.GrantIfDue(ctx, acct); e != nil {
		t.Fatal("no third grant expected")
	}
	if n := len(store.byKind(models.CreditKindMonthlyGrant)); n != 1 {
		t.Errorf("monthly_grant entries = %d, want 1", n)
	}
}

// concurrent grant checks never produce more than one entry per month here
// because the mock's existence check and the memo serialize on their mutexes;
// the DB partial unique index backstops the real path.
func TestGrantIfDueConcurrent(t *testing.T) {
	ctx := context.Background()
	store := newMockLedger()
	g := newGrantService(store)
	now := time.Date(2026, time.April, 10, 12, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return now }
	store.now = g.now

	acct := activePatron(300)
	if e, _ := g.GrantIfDue(ctx, acct); e == nil {
		t.Fatal("grant expected")
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = g.GrantIfDue(ctx, acct)
		}()
	}
	wg.Wait()

	if n := len(store.byKind(models.CreditKindMonthlyGrant)); n != 1 {
		t.Errorf("monthly_grant entries = %d, want 1", n)
	}
}
