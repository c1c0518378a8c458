// Package ledger computes per-currency totals over billed service lines.
// It is a pure aggregation: amounts in different currencies are summed
// within their own currency code and never converted.
package ledger

import (
	"github.com/clinicore/encounter-api/internal/model"
	"github.com/shopspring/decimal"
)

// Totals sums paid amounts grouped by currency code.
func Totals(lines []*model.BilledService) model.CurrencyTotals {
	totals := make(model.CurrencyTotals, len(lines))
	for _, line := range lines {
		totals[line.Currency] = totals[line.Currency].Add(line.PaidAmount)
	}
	return totals
}

// Total returns the sum for one currency, zero if absent.
func Total(totals model.CurrencyTotals, currency string) decimal.Decimal {
	return totals[currency]
}
