package models

import (
	"time"

	"github.com/google/uuid"
)

// Credit entry kinds. Positive amounts are grants, negative are debits.
const (
	CreditKindMonthlyGrant = "monthly_grant"
	CreditKindRequest      = "request"
	CreditKindBonus        = "bonus"
	CreditKindAdjustment   = "adjustment"
)

// CreditEntry is one immutable signed credit movement. Entries are only ever
// inserted; an account's balance is the sum of its entries.
type CreditEntry struct {
	ID             uuid.UUID  `json:"id"`
	AccountID      uuid.UUID  `json:"account_id"`
	Amount         int        `json:"amount"`
	Kind           string     `json:"kind"`
	Description    *string    `json:"description,omitempty"`
	VideoRequestID *uuid.UUID `json:"video_request_id,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}
