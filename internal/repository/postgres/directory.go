package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	apperrors "github.com/clinicore/encounter-api/pkg/errors"

	"github.com/clinicore/encounter-api/internal/model"
)

// Directory tables are maintained by the directory service; this side only
// reads them to validate foreign keys and specialty matching.

func (r *directoryRepository) GetPhysician(ctx context.Context, id uuid.UUID) (*model.Physician, error) {
	query := `SELECT id, specialty_id, active FROM physicians WHERE id = $1`

	var physician model.Physician
	err := r.db.GetContext(ctx, &physician, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("physician", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get physician: %w", err)
	}
	return &physician, nil
}

func (r *directoryRepository) GetPatient(ctx context.Context, id uuid.UUID) (*model.Patient, error) {
	query := `SELECT id FROM patients WHERE id = $1`

	var patient model.Patient
	err := r.db.GetContext(ctx, &patient, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("patient", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get patient: %w", err)
	}
	return &patient, nil
}

func (r *directoryRepository) GetService(ctx context.Context, id uuid.UUID) (*model.CatalogService, error) {
	query := `SELECT id, specialty_id, base_amount, currency, active FROM catalog_services WHERE id = $1`

	var svc model.CatalogService
	err := r.db.GetContext(ctx, &svc, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("service", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get service: %w", err)
	}
	return &svc, nil
}
