// Package entitlement maps subscription tier amounts to monthly credit
// allowances using a configured tier table.
package entitlement

import (
	"github.com/vidqueue/backend/internal/models"
)

// Resolver resolves monthly allowances from a tier table. The table maps a
// minimum pledge amount in cents to a monthly request allowance. It is passed
// in explicitly so the resolver stays pure and testable.
type Resolver struct {
	tiers            map[int]int
	defaultAllowance int
}

func NewResolver(tiers map[int]int, defaultAllowance int) *Resolver {
	cp := make(map[int]int, len(tiers))
	for cents, allowance := range tiers {
		cp[cents] = allowance
	}
	return &Resolver{tiers: cp, defaultAllowance: defaultAllowance}
}

// MonthlyAllowance returns the largest allowance among tiers whose minimum
// amount is <= tierCents, falling back to the configured default. Tables need
// not be monotonic: a cheaper tier configured with a larger allowance than a
// pricier one still wins, so every entry is scanned.
func (r *Resolver) MonthlyAllowance(tierCents int) int {
	allowance := r.defaultAllowance
	for minCents, tierAllowance := range r.tiers {
		if tierCents >= minCents && tierAllowance > allowance {
			allowance = tierAllowance
		}
	}
	return allowance
}

// AllowanceFor returns the account's monthly allowance, which is zero unless
// the account is an active patron.
func (r *Resolver) AllowanceFor(a *models.Account) int {
	if !a.IsActivePatron() {
		return 0
	}
	return r.MonthlyAllowance(a.PatronTierCents)
}
