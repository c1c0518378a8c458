package billing

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicore/encounter-api/internal/model"
	apperrors "github.com/clinicore/encounter-api/pkg/errors"
)

type fakeDirectory struct {
	services map[uuid.UUID]*model.CatalogService
}

func (d *fakeDirectory) GetPhysician(ctx context.Context, id uuid.UUID) (*model.Physician, error) {
	return nil, apperrors.NotFound("physician", nil)
}

func (d *fakeDirectory) GetPatient(ctx context.Context, id uuid.UUID) (*model.Patient, error) {
	return nil, apperrors.NotFound("patient", nil)
}

func (d *fakeDirectory) GetService(ctx context.Context, id uuid.UUID) (*model.CatalogService, error) {
	if svc, ok := d.services[id]; ok {
		return svc, nil
	}
	return nil, apperrors.NotFound("service", nil)
}

func catalogService(specialtyID uuid.UUID, base, currency string, active bool) *model.CatalogService {
	return &model.CatalogService{
		ID:          uuid.New(),
		SpecialtyID: specialtyID,
		BaseAmount:  decimal.RequireFromString(base),
		Currency:    currency,
		Active:      active,
	}
}

func newFinalizer(services ...*model.CatalogService) *Finalizer {
	dir := &fakeDirectory{services: make(map[uuid.UUID]*model.CatalogService)}
	for _, svc := range services {
		dir.services[svc.ID] = svc
	}
	return NewFinalizer(dir)
}

func amount(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func TestFinalizeEmptySelection(t *testing.T) {
	f := newFinalizer()

	_, err := f.Finalize(context.Background(), uuid.New(), nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrValidation))
}

func TestFinalizePaidAmountDefaultsToBase(t *testing.T) {
	specialty := uuid.New()
	svc := catalogService(specialty, "120.00", "EUR", true)
	f := newFinalizer(svc)

	result, err := f.Finalize(context.Background(), specialty, []model.ServiceLineInput{
		{ServiceID: svc.ID, Currency: "EUR"},
	})
	require.NoError(t, err)
	require.Len(t, result.Lines, 1)
	assert.True(t, result.Lines[0].PaidAmount.Equal(decimal.RequireFromString("120.00")))
	assert.True(t, result.Lines[0].BaseAmount.Equal(decimal.RequireFromString("120.00")))
}

func TestFinalizeExplicitPaidAmountOverridesBase(t *testing.T) {
	specialty := uuid.New()
	svc := catalogService(specialty, "120.00", "EUR", true)
	f := newFinalizer(svc)

	result, err := f.Finalize(context.Background(), specialty, []model.ServiceLineInput{
		{ServiceID: svc.ID, PaidAmount: amount("99.90"), Currency: "EUR"},
	})
	require.NoError(t, err)
	assert.True(t, result.Lines[0].PaidAmount.Equal(decimal.RequireFromString("99.90")))
	assert.True(t, result.Totals["EUR"].Equal(decimal.RequireFromString("99.90")))
}

func TestFinalizeMultiCurrencyTotals(t *testing.T) {
	specialty := uuid.New()
	eur := catalogService(specialty, "100.00", "EUR", true)
	usd := catalogService(specialty, "80.00", "USD", true)
	f := newFinalizer(eur, usd)

	result, err := f.Finalize(context.Background(), specialty, []model.ServiceLineInput{
		{ServiceID: eur.ID, Currency: "EUR"},
		{ServiceID: usd.ID, Currency: "USD"},
		{ServiceID: eur.ID, PaidAmount: amount("50.00"), Currency: "EUR"},
	})
	require.NoError(t, err)
	assert.Len(t, result.Totals, 2)
	assert.True(t, result.Totals["EUR"].Equal(decimal.RequireFromString("150.00")))
	assert.True(t, result.Totals["USD"].Equal(decimal.RequireFromString("80.00")))
	assert.True(t, result.GrandTotal("EUR").Equal(decimal.RequireFromString("150.00")))
}

func TestFinalizeAccumulatesAllViolations(t *testing.T) {
	specialty := uuid.New()
	inactive := catalogService(specialty, "100.00", "EUR", false)
	foreign := catalogService(uuid.New(), "100.00", "EUR", true)
	good := catalogService(specialty, "100.00", "EUR", true)
	f := newFinalizer(inactive, foreign, good)

	_, err := f.Finalize(context.Background(), specialty, []model.ServiceLineInput{
		{ServiceID: uuid.New(), Currency: "EUR"},                           // unknown
		{ServiceID: inactive.ID, Currency: "EUR"},                          // inactive
		{ServiceID: foreign.ID, Currency: "EUR"},                           // wrong specialty
		{ServiceID: good.ID, PaidAmount: amount("-5.00"), Currency: "EUR"}, // non-positive
		{ServiceID: good.ID, PaidAmount: amount("0"), Currency: "EUR"},     // zero
	})
	require.Error(t, err)

	appErr := apperrors.From(err)
	assert.Equal(t, apperrors.ErrValidation, appErr.Code)
	assert.Len(t, appErr.Violations, 5)
	assert.Equal(t, "services[0]", appErr.Violations[0].Field)
	assert.Equal(t, "services[3].paid_amount", appErr.Violations[3].Field)
}

func TestFinalizeNoLinesOnFailure(t *testing.T) {
	specialty := uuid.New()
	good := catalogService(specialty, "100.00", "EUR", true)
	f := newFinalizer(good)

	result, err := f.Finalize(context.Background(), specialty, []model.ServiceLineInput{
		{ServiceID: good.ID, Currency: "EUR"},
		{ServiceID: uuid.New(), Currency: "EUR"},
	})
	require.Error(t, err)
	assert.Nil(t, result)
}
