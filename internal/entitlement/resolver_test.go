package entitlement

import (
	"testing"

	"github.com/vidqueue/backend/internal/models"
)

func TestMonthlyAllowance(t *testing.T) {
	r := NewResolver(map[int]int{100: 1, 300: 2}, 0)

	tests := []struct {
		name      string
		tierCents int
		want      int
	}{
		{"below lowest tier", 99, 0},
		{"exactly lowest tier", 100, 1},
		{"between tiers", 299, 1},
		{"exactly second tier", 300, 2},
		{"above all tiers", 5000, 2},
		{"zero tier", 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.MonthlyAllowance(tt.tierCents); got != tt.want {
				t.Errorf("MonthlyAllowance(%d) = %d, want %d", tt.tierCents, got, tt.want)
			}
		})
	}
}

func TestMonthlyAllowanceNonMonotonicTable(t *testing.T) {
	// A cheaper tier with a larger allowance than a pricier one is a valid,
	// if unusual, configuration. The maximum qualifying allowance wins.
	r := NewResolver(map[int]int{100: 5, 300: 2}, 0)

	if got := r.MonthlyAllowance(300); got != 5 {
		t.Errorf("MonthlyAllowance(300) = %d, want 5 (max over all qualifying tiers)", got)
	}
	if got := r.MonthlyAllowance(100); got != 5 {
		t.Errorf("MonthlyAllowance(100) = %d, want 5", got)
	}
}

func TestMonthlyAllowanceDefault(t *testing.T) {
	r := NewResolver(map[int]int{500: 1}, 3)

	if got := r.MonthlyAllowance(100); got != 3 {
		t.Errorf("MonthlyAllowance(100) = %d, want default 3", got)
	}
	// The default also floors tiers configured below it.
	if got := r.MonthlyAllowance(500); got != 3 {
		t.Errorf("MonthlyAllowance(500) = %d, want 3", got)
	}
}

func TestAllowanceFor(t *testing.T) {
	r := NewResolver(map[int]int{100: 1, 300: 2}, 0)
	active := models.PatronStatusActive
	former := models.PatronStatusFormer

	tests := []struct {
		name string
		acct models.Account
		want int
	}{
		{"active patron", models.Account{PatronStatus: &active, PatronTierCents: 300}, 2},
		{"former patron", models.Account{PatronStatus: &former, PatronTierCents: 300}, 0},
		{"no status", models.Account{PatronTierCents: 300}, 0},
		{"active with zero tier", models.Account{PatronStatus: &active, PatronTierCents: 0}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.AllowanceFor(&tt.acct); got != tt.want {
				t.Errorf("AllowanceFor() = %d, want %d", got, tt.want)
			}
		})
	}
}
