package ledger

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/clinicore/encounter-api/internal/model"
)

func line(currency, paid string) *model.BilledService {
	return &model.BilledService{
		Currency:   currency,
		PaidAmount: decimal.RequireFromString(paid),
	}
}

func TestTotalsGroupsByCurrency(t *testing.T) {
	totals := Totals([]*model.BilledService{
		line("EUR", "100.50"),
		line("USD", "75.25"),
		line("EUR", "49.50"),
		line("BRL", "300.00"),
	})

	assert.Len(t, totals, 3)
	assert.True(t, totals["EUR"].Equal(decimal.RequireFromString("150.00")), "EUR total: %s", totals["EUR"])
	assert.True(t, totals["USD"].Equal(decimal.RequireFromString("75.25")))
	assert.True(t, totals["BRL"].Equal(decimal.RequireFromString("300.00")))
}

func TestTotalsNeverConverts(t *testing.T) {
	totals := Totals([]*model.BilledService{
		line("EUR", "10.00"),
		line("USD", "10.00"),
	})

	// Same numeric amount in two currencies stays in two buckets.
	assert.Len(t, totals, 2)
	assert.True(t, totals["EUR"].Equal(decimal.RequireFromString("10.00")))
	assert.True(t, totals["USD"].Equal(decimal.RequireFromString("10.00")))
}

func TestTotalsPreservesCentPrecision(t *testing.T) {
	totals := Totals([]*model.BilledService{
		line("EUR", "0.10"),
		line("EUR", "0.20"),
	})

	assert.True(t, totals["EUR"].Equal(decimal.RequireFromString("0.30")), "got %s", totals["EUR"])
}

func TestTotalsEmptySelection(t *testing.T) {
	assert.Empty(t, Totals(nil))
}

func TestTotalAbsentCurrencyIsZero(t *testing.T) {
	totals := Totals([]*model.BilledService{line("EUR", "10.00")})
	assert.True(t, Total(totals, "USD").IsZero())
}
