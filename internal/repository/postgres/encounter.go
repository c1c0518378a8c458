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

const encounterColumns = `
	id, patient_id, physician_id, specialty_id, referring_physician_id,
	referral_id, scheduled_date, scheduled_time, duration_minutes,
	encounter_type, priority, status, reason, preliminary_diagnosis, notes,
	internal_notes, cancellation_reason, cancellation_date, cancelled_by,
	completed_at, reminder_sent, reminder_date, reminder_method,
	created_by, updated_by, created_at, updated_at`

func encounterStates(states []model.EncounterStatus) pq.StringArray {
	out := make(pq.StringArray, len(states))
	for i, s := range states {
		out[i] = string(s)
	}
	return out
}

func (r *encounterRepository) Create(ctx context.Context, enc *model.Encounter) error {
	query := `
		INSERT INTO encounters (` + encounterColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
		        $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27)
	`
	enc.CreatedAt = time.Now()
	enc.UpdatedAt = enc.CreatedAt

	_, err := r.db.ExecContext(ctx, query,
		enc.ID,
		enc.PatientID,
		enc.PhysicianID,
		enc.SpecialtyID,
		enc.ReferringPhysicianID,
		enc.ReferralID,
		enc.ScheduledDate,
		enc.ScheduledTime,
		enc.DurationMinutes,
		enc.Type,
		enc.Priority,
		enc.Status,
		enc.Reason,
		enc.PreliminaryDiagnosis,
		enc.Notes,
		enc.InternalNotes,
		enc.CancellationReason,
		enc.CancellationDate,
		enc.CancelledBy,
		enc.CompletedAt,
		enc.ReminderSent,
		enc.ReminderDate,
		enc.ReminderMethod,
		enc.CreatedBy,
		enc.UpdatedBy,
		enc.CreatedAt,
		enc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create encounter: %w", err)
	}
	return nil
}

// CreateFromReferral flips the referral to completed and inserts the intake
// encounter in one transaction, so a failed insert never strands a
// completed referral without its encounter.
func (r *encounterRepository) CreateFromReferral(ctx context.Context, enc *model.Encounter, ref *model.Referral, fromStates []model.ReferralStatus) (bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	ref.UpdatedAt = time.Now()

	result, err := tx.ExecContext(ctx, `
		UPDATE referrals
		SET status = $1, notes = $2, response_date = $3, updated_at = $4
		WHERE id = $5 AND status = ANY($6)
	`,
		ref.Status,
		ref.Notes,
		ref.ResponseDate,
		ref.UpdatedAt,
		ref.ID,
		referralStates(fromStates),
	)
	if err != nil {
		return false, fmt.Errorf("failed to complete referral: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return false, nil
	}

	enc.CreatedAt = time.Now()
	enc.UpdatedAt = enc.CreatedAt

	_, err = tx.ExecContext(ctx, `
		INSERT INTO encounters (`+encounterColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
		        $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27)
	`,
		enc.ID,
		enc.PatientID,
		enc.PhysicianID,
		enc.SpecialtyID,
		enc.ReferringPhysicianID,
		enc.ReferralID,
		enc.ScheduledDate,
		enc.ScheduledTime,
		enc.DurationMinutes,
		enc.Type,
		enc.Priority,
		enc.Status,
		enc.Reason,
		enc.PreliminaryDiagnosis,
		enc.Notes,
		enc.InternalNotes,
		enc.CancellationReason,
		enc.CancellationDate,
		enc.CancelledBy,
		enc.CompletedAt,
		enc.ReminderSent,
		enc.ReminderDate,
		enc.ReminderMethod,
		enc.CreatedBy,
		enc.UpdatedBy,
		enc.CreatedAt,
		enc.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to create encounter from referral: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit referral completion: %w", err)
	}
	return true, nil
}

func (r *encounterRepository) Get(ctx context.Context, id uuid.UUID) (*model.Encounter, error) {
	query := `SELECT ` + encounterColumns + ` FROM encounters WHERE id = $1`

	var enc model.Encounter
	err := r.db.GetContext(ctx, &enc, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("encounter", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get encounter: %w", err)
	}
	return &enc, nil
}

func (r *encounterRepository) List(ctx context.Context, filters *model.EncounterFilters) ([]*model.Encounter, error) {
	query := `SELECT ` + encounterColumns + ` FROM encounters WHERE 1=1`
	args := []interface{}{}
	argCount := 1

	if filters != nil {
		if filters.PatientID != uuid.Nil {
			query += fmt.Sprintf(" AND patient_id = $%d", argCount)
			args = append(args, filters.PatientID)
			argCount++
		}
		if filters.PhysicianID != uuid.Nil {
			query += fmt.Sprintf(" AND physician_id = $%d", argCount)
			args = append(args, filters.PhysicianID)
			argCount++
		}
		if filters.Status != "" {
			query += fmt.Sprintf(" AND status = $%d", argCount)
			args = append(args, filters.Status)
			argCount++
		}
		if !filters.StartDate.IsZero() {
			query += fmt.Sprintf(" AND scheduled_date >= $%d", argCount)
			args = append(args, filters.StartDate)
			argCount++
		}
		if !filters.EndDate.IsZero() {
			query += fmt.Sprintf(" AND scheduled_date <= $%d", argCount)
			args = append(args, filters.EndDate)
			argCount++
		}
	}

	query += " ORDER BY scheduled_date ASC, scheduled_time ASC"

	var encounters []*model.Encounter
	if err := r.db.SelectContext(ctx, &encounters, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list encounters: %w", err)
	}
	return encounters, nil
}

func (r *encounterRepository) UpdateGuarded(ctx context.Context, enc *model.Encounter, fromStates []model.EncounterStatus) (bool, error) {
	query := `
		UPDATE encounters
		SET scheduled_date = $1, scheduled_time = $2, duration_minutes = $3,
		    priority = $4, status = $5, reason = $6,
		    preliminary_diagnosis = $7, notes = $8, internal_notes = $9,
		    cancellation_reason = $10, cancellation_date = $11,
		    cancelled_by = $12, completed_at = $13, reminder_sent = $14,
		    reminder_date = $15, reminder_method = $16, updated_by = $17,
		    updated_at = $18
		WHERE id = $19 AND status = ANY($20)
	`
	enc.UpdatedAt = time.Now()

	result, err := r.db.ExecContext(ctx, query,
		enc.ScheduledDate,
		enc.ScheduledTime,
		enc.DurationMinutes,
		enc.Priority,
		enc.Status,
		enc.Reason,
		enc.PreliminaryDiagnosis,
		enc.Notes,
		enc.InternalNotes,
		enc.CancellationReason,
		enc.CancellationDate,
		enc.CancelledBy,
		enc.CompletedAt,
		enc.ReminderSent,
		enc.ReminderDate,
		enc.ReminderMethod,
		enc.UpdatedBy,
		enc.UpdatedAt,
		enc.ID,
		encounterStates(fromStates),
	)
	if err != nil {
		return false, fmt.Errorf("failed to update encounter: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

func (r *encounterRepository) FinalizeWithServices(ctx context.Context, enc *model.Encounter, lines []*model.BilledService, fromStates []model.EncounterStatus) (bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	enc.UpdatedAt = time.Now()

	result, err := tx.ExecContext(ctx, `
		UPDATE encounters
		SET status = $1, preliminary_diagnosis = $2, completed_at = $3,
		    updated_by = $4, updated_at = $5
		WHERE id = $6 AND status = ANY($7)
	`,
		enc.Status,
		enc.PreliminaryDiagnosis,
		enc.CompletedAt,
		enc.UpdatedBy,
		enc.UpdatedAt,
		enc.ID,
		encounterStates(fromStates),
	)
	if err != nil {
		return false, fmt.Errorf("failed to finalize encounter: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return false, nil
	}

	for _, line := range lines {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO encounter_services (
				id, encounter_id, service_id, base_amount, paid_amount,
				currency, notes, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`,
			line.ID,
			line.EncounterID,
			line.ServiceID,
			line.BaseAmount,
			line.PaidAmount,
			line.Currency,
			line.Notes,
			line.CreatedAt,
			line.UpdatedAt,
		)
		if err != nil {
			return false, fmt.Errorf("failed to insert billed service: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit finalization: %w", err)
	}
	return true, nil
}

func (r *encounterRepository) ListServices(ctx context.Context, encounterID uuid.UUID) ([]*model.BilledService, error) {
	query := `
		SELECT id, encounter_id, service_id, base_amount, paid_amount,
		       currency, notes, created_at, updated_at
		FROM encounter_services
		WHERE encounter_id = $1
		ORDER BY created_at ASC
	`
	var lines []*model.BilledService
	if err := r.db.SelectContext(ctx, &lines, query, encounterID); err != nil {
		return nil, fmt.Errorf("failed to list billed services: %w", err)
	}
	return lines, nil
}
