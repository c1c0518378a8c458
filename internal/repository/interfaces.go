package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/clinicore/encounter-api/internal/model"
)

// All repository interfaces in one file.
//
// Mutations on stateful entities go through guarded updates: the write only
// succeeds if the stored status is one of the given source states, which is
// what serializes concurrent commands against the same entity. A false
// return means no row matched; the service re-reads to distinguish an
// illegal transition from a concurrent modification.
type (
	EncounterRepository interface {
		Create(ctx context.Context, enc *model.Encounter) error
		// CreateFromReferral completes the referral under its status guard
		// and inserts the intake encounter in a single transaction. Nothing
		// is committed when the guard fails.
		CreateFromReferral(ctx context.Context, enc *model.Encounter, ref *model.Referral, fromStates []model.ReferralStatus) (bool, error)
		Get(ctx context.Context, id uuid.UUID) (*model.Encounter, error)
		List(ctx context.Context, filters *model.EncounterFilters) ([]*model.Encounter, error)
		UpdateGuarded(ctx context.Context, enc *model.Encounter, fromStates []model.EncounterStatus) (bool, error)
		// FinalizeWithServices flips the encounter to completed and inserts
		// its billing lines in a single transaction. Nothing is committed
		// when the status guard fails.
		FinalizeWithServices(ctx context.Context, enc *model.Encounter, lines []*model.BilledService, fromStates []model.EncounterStatus) (bool, error)
		ListServices(ctx context.Context, encounterID uuid.UUID) ([]*model.BilledService, error)
	}

	ReferralRepository interface {
		Create(ctx context.Context, ref *model.Referral) error
		Get(ctx context.Context, id uuid.UUID) (*model.Referral, error)
		List(ctx context.Context, filters *model.ReferralFilters) ([]*model.Referral, error)
		UpdateGuarded(ctx context.Context, ref *model.Referral, fromStates []model.ReferralStatus) (bool, error)
	}

	ReportRepository interface {
		// Create allocates the report's sequence number and derived report
		// number server-side. A uniqueness violation surfaces as a fatal
		// integrity error, never as a retryable condition.
		Create(ctx context.Context, report *model.MedicalReport) error
		Get(ctx context.Context, id uuid.UUID) (*model.MedicalReport, error)
		List(ctx context.Context, filters *model.ReportFilters) ([]*model.MedicalReport, error)
		UpdateGuarded(ctx context.Context, report *model.MedicalReport, fromStates []model.ReportStatus) (bool, error)
		DeleteGuarded(ctx context.Context, id uuid.UUID, fromStates []model.ReportStatus) (bool, error)
		// SignWithSignature flips the report to signed and inserts its
		// signature row in a single transaction. A report is never left
		// signed without a signature row.
		SignWithSignature(ctx context.Context, report *model.MedicalReport, sig *model.ReportSignature, fromStates []model.ReportStatus) (bool, error)
		GetSignature(ctx context.Context, reportID uuid.UUID) (*model.ReportSignature, error)
	}

	DispatchRepository interface {
		Create(ctx context.Context, dispatch *model.ReportDispatch) error
		Get(ctx context.Context, id uuid.UUID) (*model.ReportDispatch, error)
		ListByReport(ctx context.Context, reportID uuid.UUID) ([]*model.ReportDispatch, error)
		ListPending(ctx context.Context, limit int) ([]*model.ReportDispatch, error)
		// UpdateStatus records a delivery outcome. Idempotent per dispatch
		// identity: re-applying the same status is a no-op. A delivered
		// dispatch is settled for good and ignores further outcomes.
		UpdateStatus(ctx context.Context, id uuid.UUID, status model.DeliveryStatus, errMsg *string) error
	}

	// DirectoryRepository is the narrow read-only interface onto the
	// patient/physician/service directory maintained elsewhere.
	DirectoryRepository interface {
		GetPhysician(ctx context.Context, id uuid.UUID) (*model.Physician, error)
		GetPatient(ctx context.Context, id uuid.UUID) (*model.Patient, error)
		GetService(ctx context.Context, id uuid.UUID) (*model.CatalogService, error)
	}

	AuditRepository interface {
		Create(ctx context.Context, log *model.AuditLog) error
		List(ctx context.Context, entityType string, entityID uuid.UUID) ([]*model.AuditLog, error)
	}
)
