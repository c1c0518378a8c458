package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	apperrors "github.com/clinicore/encounter-api/pkg/errors"

	"github.com/clinicore/encounter-api/internal/model"
)

const referralColumns = `
	id, patient_id, referring_physician_id, referred_to_physician_id,
	reason, notes, status, referral_date, response_date,
	created_at, updated_at`

func referralStates(states []model.ReferralStatus) pq.StringArray {
	out := make(pq.StringArray, len(states))
	for i, s := range states {
		out[i] = string(s)
	}
	return out
}

func (r *referralRepository) Create(ctx context.Context, ref *model.Referral) error {
	query := `
		INSERT INTO referrals (` + referralColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	ref.CreatedAt = time.Now()
	ref.UpdatedAt = ref.CreatedAt

	_, err := r.db.ExecContext(ctx, query,
		ref.ID,
		ref.PatientID,
		ref.ReferringPhysicianID,
		ref.ReferredToPhysicianID,
		ref.Reason,
		ref.Notes,
		ref.Status,
		ref.ReferralDate,
		ref.ResponseDate,
		ref.CreatedAt,
		ref.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create referral: %w", err)
	}
	return nil
}

func (r *referralRepository) Get(ctx context.Context, id uuid.UUID) (*model.Referral, error) {
	query := `SELECT ` + referralColumns + ` FROM referrals WHERE id = $1`

	var ref model.Referral
	err := r.db.GetContext(ctx, &ref, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("referral", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get referral: %w", err)
	}
	return &ref, nil
}

func (r *referralRepository) List(ctx context.Context, filters *model.ReferralFilters) ([]*model.Referral, error) {
	query := `SELECT ` + referralColumns + ` FROM referrals WHERE 1=1`
	args := []interface{}{}
	argCount := 1

	if filters != nil {
		if filters.PatientID != uuid.Nil {
			query += fmt.Sprintf(" AND patient_id = $%d", argCount)
			args = append(args, filters.PatientID)
			argCount++
		}
		if filters.ReferringPhysicianID != uuid.Nil {
			query += fmt.Sprintf(" AND referring_physician_id = $%d", argCount)
			args = append(args, filters.ReferringPhysicianID)
			argCount++
		}
		if filters.ReferredToPhysicianID != uuid.Nil {
			query += fmt.Sprintf(" AND referred_to_physician_id = $%d", argCount)
			args = append(args, filters.ReferredToPhysicianID)
			argCount++
		}
		if filters.Status != "" {
			query += fmt.Sprintf(" AND status = $%d", argCount)
			args = append(args, filters.Status)
			argCount++
		}
	}

	query += " ORDER BY referral_date DESC"

	var referrals []*model.Referral
	if err := r.db.SelectContext(ctx, &referrals, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list referrals: %w", err)
	}
	return referrals, nil
}

func (r *referralRepository) UpdateGuarded(ctx context.Context, ref *model.Referral, fromStates []model.ReferralStatus) (bool, error) {
	query := `
		UPDATE referrals
		SET status = $1, notes = $2, response_date = $3, updated_at = $4
		WHERE id = $5 AND status = ANY($6)
	`
	ref.UpdatedAt = time.Now()

	result, err := r.db.ExecContext(ctx, query,
		ref.Status,
		ref.Notes,
		ref.ResponseDate,
		ref.UpdatedAt,
		ref.ID,
		referralStates(fromStates),
	)
	if err != nil {
		return false, fmt.Errorf("failed to update referral: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}
