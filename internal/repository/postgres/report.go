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

const pqUniqueViolation = "23505"

const reportColumns = `
	id, report_number, sequence_number, patient_id, physician_id,
	encounter_id, template_id, title, report_type, content, observations,
	anamnesis, status, issue_date, created_at, updated_at`

func reportStates(states []model.ReportStatus) pq.StringArray {
	out := make(pq.StringArray, len(states))
	for i, s := range states {
		out[i] = string(s)
	}
	return out
}

// Create inserts the report, drawing its sequence number from the
// report_number_seq sequence in the same statement so numbering is a single
// atomic allocator. A unique violation here means the allocator itself is
// broken and is surfaced as a fatal integrity error.
func (r *reportRepository) Create(ctx context.Context, report *model.MedicalReport) error {
	query := `
		INSERT INTO reports (` + reportColumns + `)
		SELECT $1, 'RPT-' || lpad(seq::text, 8, '0'), seq,
		       $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14
		FROM nextval('report_number_seq') AS seq
		RETURNING report_number, sequence_number
	`
	report.CreatedAt = time.Now()
	report.UpdatedAt = report.CreatedAt

	row := r.db.QueryRowxContext(ctx, query,
		report.ID,
		report.PatientID,
		report.PhysicianID,
		report.EncounterID,
		report.TemplateID,
		report.Title,
		report.Type,
		report.Content,
		report.Observations,
		report.Anamnesis,
		report.Status,
		report.IssueDate,
		report.CreatedAt,
		report.UpdatedAt,
	)
	if err := row.Scan(&report.ReportNumber, &report.SequenceNumber); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == pqUniqueViolation {
			return apperrors.Integrity("report number collision", err)
		}
		return fmt.Errorf("failed to create report: %w", err)
	}
	return nil
}

func (r *reportRepository) Get(ctx context.Context, id uuid.UUID) (*model.MedicalReport, error) {
	query := `SELECT ` + reportColumns + ` FROM reports WHERE id = $1`

	var report model.MedicalReport
	err := r.db.GetContext(ctx, &report, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("report", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get report: %w", err)
	}
	return &report, nil
}

func (r *reportRepository) List(ctx context.Context, filters *model.ReportFilters) ([]*model.MedicalReport, error) {
	query := `SELECT ` + reportColumns + ` FROM reports WHERE 1=1`
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
		if filters.Type != "" {
			query += fmt.Sprintf(" AND report_type = $%d", argCount)
			args = append(args, filters.Type)
			argCount++
		}
	}

	query += " ORDER BY sequence_number DESC"

	var reports []*model.MedicalReport
	if err := r.db.SelectContext(ctx, &reports, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	return reports, nil
}

// UpdateGuarded persists mutable report fields. The status guard is what
// makes signed content immutable at the storage layer: content writes are
// only issued with draft/finalized in fromStates.
func (r *reportRepository) UpdateGuarded(ctx context.Context, report *model.MedicalReport, fromStates []model.ReportStatus) (bool, error) {
	query := `
		UPDATE reports
		SET title = $1, report_type = $2, content = $3, observations = $4,
		    anamnesis = $5, status = $6, updated_at = $7
		WHERE id = $8 AND status = ANY($9)
	`
	report.UpdatedAt = time.Now()

	result, err := r.db.ExecContext(ctx, query,
		report.Title,
		report.Type,
		report.Content,
		report.Observations,
		report.Anamnesis,
		report.Status,
		report.UpdatedAt,
		report.ID,
		reportStates(fromStates),
	)
	if err != nil {
		return false, fmt.Errorf("failed to update report: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

func (r *reportRepository) DeleteGuarded(ctx context.Context, id uuid.UUID, fromStates []model.ReportStatus) (bool, error) {
	query := `DELETE FROM reports WHERE id = $1 AND status = ANY($2)`

	result, err := r.db.ExecContext(ctx, query, id, reportStates(fromStates))
	if err != nil {
		return false, fmt.Errorf("failed to delete report: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

// SignWithSignature flips the report to signed and inserts the signature
// row in one transaction, so a failed insert never strands a signed report
// without its signature.
func (r *reportRepository) SignWithSignature(ctx context.Context, report *model.MedicalReport, sig *model.ReportSignature, fromStates []model.ReportStatus) (bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	report.UpdatedAt = time.Now()

	result, err := tx.ExecContext(ctx, `
		UPDATE reports
		SET status = $1, updated_at = $2
		WHERE id = $3 AND status = ANY($4)
	`,
		report.Status,
		report.UpdatedAt,
		report.ID,
		reportStates(fromStates),
	)
	if err != nil {
		return false, fmt.Errorf("failed to sign report: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return false, nil
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO report_signatures (
			id, report_id, physician_id, valid, signature_hash,
			certificate, signature_date
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		sig.ID,
		sig.ReportID,
		sig.PhysicianID,
		sig.Valid,
		sig.SignatureHash,
		sig.Certificate,
		sig.SignatureDate,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == pqUniqueViolation {
			return false, apperrors.Integrity("report already carries a signature", err)
		}
		return false, fmt.Errorf("failed to create signature: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit signing: %w", err)
	}
	return true, nil
}

func (r *reportRepository) GetSignature(ctx context.Context, reportID uuid.UUID) (*model.ReportSignature, error) {
	query := `
		SELECT id, report_id, physician_id, valid, signature_hash,
		       certificate, signature_date
		FROM report_signatures
		WHERE report_id = $1
	`
	var sig model.ReportSignature
	err := r.db.GetContext(ctx, &sig, query, reportID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("report signature", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get signature: %w", err)
	}
	return &sig, nil
}
