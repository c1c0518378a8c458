// Package billing validates and commits the billed-service selection of an
// encounter at finalization time.
package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/clinicore/encounter-api/internal/ledger"
	"github.com/clinicore/encounter-api/internal/model"
	"github.com/clinicore/encounter-api/internal/repository"
	apperrors "github.com/clinicore/encounter-api/pkg/errors"
)

type Finalizer struct {
	directory repository.DirectoryRepository
}

func NewFinalizer(directory repository.DirectoryRepository) *Finalizer {
	return &Finalizer{directory: directory}
}

// Result carries the validated selection ready for persistence and the
// per-currency totals.
type Result struct {
	Lines  []*model.BilledService
	Totals model.CurrencyTotals
}

// Finalize validates every candidate line against the catalog and the
// encounter's specialty and computes per-currency totals. Validation
// failures are accumulated across all lines so the caller can report every
// problem at once; no line is considered committed unless all pass.
func (f *Finalizer) Finalize(ctx context.Context, specialtyID uuid.UUID, selection []model.ServiceLineInput) (*Result, error) {
	if len(selection) == 0 {
		return nil, apperrors.Validation("billed service selection is empty",
			apperrors.FieldViolation{Field: "services", Message: "at least one service is required"})
	}

	var violations []apperrors.FieldViolation
	lines := make([]*model.BilledService, 0, len(selection))
	now := time.Now()

	for i, in := range selection {
		field := fmt.Sprintf("services[%d]", i)

		svc, err := f.directory.GetService(ctx, in.ServiceID)
		if err != nil {
			if apperrors.IsCode(err, apperrors.ErrNotFound) {
				violations = append(violations, apperrors.FieldViolation{
					Field:   field,
					Message: fmt.Sprintf("service %s does not exist", in.ServiceID),
				})
				continue
			}
			return nil, err
		}

		if !svc.Active {
			violations = append(violations, apperrors.FieldViolation{
				Field:   field,
				Message: fmt.Sprintf("service %s is inactive", in.ServiceID),
			})
			continue
		}
		if svc.SpecialtyID != specialtyID {
			violations = append(violations, apperrors.FieldViolation{
				Field:   field,
				Message: fmt.Sprintf("service %s does not belong to the encounter's specialty", in.ServiceID),
			})
			continue
		}

		paid := svc.BaseAmount
		if in.PaidAmount != nil {
			paid = *in.PaidAmount
		}
		if !paid.IsPositive() {
			violations = append(violations, apperrors.FieldViolation{
				Field:   field + ".paid_amount",
				Message: fmt.Sprintf("paid amount must be positive, got %s", paid),
			})
			continue
		}

		currency := in.Currency
		if currency == "" {
			currency = svc.Currency
		}

		lines = append(lines, &model.BilledService{
			Base: model.Base{
				ID:        uuid.New(),
				CreatedAt: now,
				UpdatedAt: now,
			},
			ServiceID:  svc.ID,
			BaseAmount: svc.BaseAmount,
			PaidAmount: paid,
			Currency:   currency,
			Notes:      in.Notes,
		})
	}

	if len(violations) > 0 {
		return nil, apperrors.Validation("invalid billed service selection", violations...)
	}

	return &Result{
		Lines:  lines,
		Totals: ledger.Totals(lines),
	}, nil
}

// GrandTotal exposes the per-currency sum for one currency code.
func (r *Result) GrandTotal(currency string) decimal.Decimal {
	return ledger.Total(r.Totals, currency)
}
