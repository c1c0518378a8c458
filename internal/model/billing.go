package model

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ServiceLineInput is one caller-chosen billing line for finalization.
// PaidAmount defaults to the catalog base amount when omitted.
type ServiceLineInput struct {
	ServiceID  uuid.UUID        `json:"service_id" binding:"required"`
	PaidAmount *decimal.Decimal `json:"paid_amount"`
	Currency   string           `json:"currency" binding:"required,currency"`
	Notes      string           `json:"notes" binding:"max=500"`
}

// BilledService is a committed billing line, persisted as a child record of
// its encounter. Never deleted once committed.
type BilledService struct {
	Base
	EncounterID uuid.UUID       `db:"encounter_id" json:"encounter_id"`
	ServiceID   uuid.UUID       `db:"service_id" json:"service_id"`
	BaseAmount  decimal.Decimal `db:"base_amount" json:"base_amount"`
	PaidAmount  decimal.Decimal `db:"paid_amount" json:"paid_amount"`
	Currency    string          `db:"currency" json:"currency"`
	Notes       string          `db:"notes" json:"notes,omitempty"`
}

// CurrencyTotals maps a currency code to the sum of paid amounts in that
// currency. Amounts are never converted or merged across currencies.
type CurrencyTotals map[string]decimal.Decimal
