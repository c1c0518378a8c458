package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/clinicore/encounter-api/pkg/errors"

	"github.com/clinicore/encounter-api/internal/model"
)

const dispatchColumns = `
	id, report_id, patient_id, delivery_method, delivery_status, recipient,
	error, attempted_at, delivered_at, created_at, updated_at`

func (r *dispatchRepository) Create(ctx context.Context, dispatch *model.ReportDispatch) error {
	query := `
		INSERT INTO report_dispatches (` + dispatchColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	dispatch.CreatedAt = time.Now()
	dispatch.UpdatedAt = dispatch.CreatedAt

	_, err := r.db.ExecContext(ctx, query,
		dispatch.ID,
		dispatch.ReportID,
		dispatch.PatientID,
		dispatch.Method,
		dispatch.Status,
		dispatch.Recipient,
		dispatch.Error,
		dispatch.AttemptedAt,
		dispatch.DeliveredAt,
		dispatch.CreatedAt,
		dispatch.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create dispatch: %w", err)
	}
	return nil
}

func (r *dispatchRepository) Get(ctx context.Context, id uuid.UUID) (*model.ReportDispatch, error) {
	query := `SELECT ` + dispatchColumns + ` FROM report_dispatches WHERE id = $1`

	var dispatch model.ReportDispatch
	err := r.db.GetContext(ctx, &dispatch, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("dispatch", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get dispatch: %w", err)
	}
	return &dispatch, nil
}

func (r *dispatchRepository) ListByReport(ctx context.Context, reportID uuid.UUID) ([]*model.ReportDispatch, error) {
	query := `
		SELECT ` + dispatchColumns + `
		FROM report_dispatches
		WHERE report_id = $1
		ORDER BY created_at ASC
	`
	var dispatches []*model.ReportDispatch
	if err := r.db.SelectContext(ctx, &dispatches, query, reportID); err != nil {
		return nil, fmt.Errorf("failed to list dispatches: %w", err)
	}
	return dispatches, nil
}

func (r *dispatchRepository) ListPending(ctx context.Context, limit int) ([]*model.ReportDispatch, error) {
	query := `
		SELECT ` + dispatchColumns + `
		FROM report_dispatches
		WHERE delivery_status = $1
		ORDER BY created_at ASC
		LIMIT $2
	`
	var dispatches []*model.ReportDispatch
	if err := r.db.SelectContext(ctx, &dispatches, query, model.DeliveryStatusPending, limit); err != nil {
		return nil, fmt.Errorf("failed to list pending dispatches: %w", err)
	}
	return dispatches, nil
}

// UpdateStatus records a delivery outcome keyed by the dispatch identity.
// Re-applying the current status matches zero rows and is treated as a
// successful no-op, which makes collaborator callbacks idempotent. Delivered
// is terminal: late or out-of-order callbacks cannot move a confirmed
// dispatch back to sent or failed.
func (r *dispatchRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.DeliveryStatus, errMsg *string) error {
	query := `
		UPDATE report_dispatches
		SET delivery_status = $1,
		    error = $2,
		    attempted_at = COALESCE(attempted_at, $3),
		    delivered_at = CASE WHEN $1 = 'delivered' THEN $3 ELSE delivered_at END,
		    updated_at = $3
		WHERE id = $4 AND delivery_status != $1 AND delivery_status != 'delivered'
	`
	now := time.Now()

	result, err := r.db.ExecContext(ctx, query, status, errMsg, now, id)
	if err != nil {
		return fmt.Errorf("failed to update dispatch status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		// Either the id is unknown or the dispatch is already settled.
		if _, err := r.Get(ctx, id); err != nil {
			return err
		}
	}
	return nil
}
