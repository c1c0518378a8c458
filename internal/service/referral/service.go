// Package referral owns the lifecycle of a doctor-to-doctor patient
// referral: pending, accepted or rejected, then completed.
package referral

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/encounter-api/internal/model"
	"github.com/clinicore/encounter-api/internal/repository"
	"github.com/clinicore/encounter-api/internal/service/audit"
	apperrors "github.com/clinicore/encounter-api/pkg/errors"
)

type Service struct {
	repo      repository.ReferralRepository
	directory repository.DirectoryRepository
	auditor   *audit.Service
}

func NewService(repo repository.ReferralRepository, directory repository.DirectoryRepository, auditor *audit.Service) *Service {
	return &Service{
		repo:      repo,
		directory: directory,
		auditor:   auditor,
	}
}

func (s *Service) Create(ctx context.Context, actorID uuid.UUID, req *model.CreateReferralRequest) (*model.Referral, error) {
	var violations []apperrors.FieldViolation

	if req.Reason == "" {
		violations = append(violations, apperrors.FieldViolation{Field: "reason", Message: "reason is required"})
	}
	if req.ReferredToPhysicianID == req.ReferringPhysicianID {
		violations = append(violations, apperrors.FieldViolation{
			Field:   "referred_to_physician_id",
			Message: "referred physician must differ from the referring physician",
		})
	}

	if _, err := s.directory.GetPatient(ctx, req.PatientID); err != nil {
		if !apperrors.IsCode(err, apperrors.ErrNotFound) {
			return nil, err
		}
		violations = append(violations, apperrors.FieldViolation{Field: "patient_id", Message: "patient does not exist"})
	}
	if _, err := s.directory.GetPhysician(ctx, req.ReferringPhysicianID); err != nil {
		if !apperrors.IsCode(err, apperrors.ErrNotFound) {
			return nil, err
		}
		violations = append(violations, apperrors.FieldViolation{Field: "referring_physician_id", Message: "referring physician does not exist"})
	}

	referred, err := s.directory.GetPhysician(ctx, req.ReferredToPhysicianID)
	switch {
	case err == nil && !referred.Active:
		violations = append(violations, apperrors.FieldViolation{Field: "referred_to_physician_id", Message: "referred physician is not active"})
	case apperrors.IsCode(err, apperrors.ErrNotFound):
		violations = append(violations, apperrors.FieldViolation{Field: "referred_to_physician_id", Message: "referred physician does not exist"})
	case err != nil:
		return nil, err
	}

	if len(violations) > 0 {
		return nil, apperrors.Validation("invalid referral", violations...)
	}

	now := time.Now()
	ref := &model.Referral{
		Base: model.Base{
			ID:        uuid.New(),
			CreatedAt: now,
			UpdatedAt: now,
		},
		PatientID:             req.PatientID,
		ReferringPhysicianID:  req.ReferringPhysicianID,
		ReferredToPhysicianID: req.ReferredToPhysicianID,
		Reason:                req.Reason,
		Notes:                 req.Notes,
		Status:                model.ReferralStatusPending,
		ReferralDate:          now,
	}

	if err := s.repo.Create(ctx, ref); err != nil {
		return nil, fmt.Errorf("failed to create referral: %w", err)
	}

	s.auditor.Log(ctx, actorID, "create", "referral", ref.ID, &audit.LogOptions{Changes: ref})
	return ref, nil
}

// Respond accepts or rejects a pending referral.
func (s *Service) Respond(ctx context.Context, actorID, id uuid.UUID, req *model.RespondReferralRequest) (*model.Referral, error) {
	ref, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ref.Status.Allows(model.ReferralCmdRespond) {
		return nil, apperrors.InvalidTransition("referral", string(model.ReferralCmdRespond), string(ref.Status))
	}

	now := time.Now()
	ref.Status = req.Decision
	ref.ResponseDate = &now
	if req.Notes != "" {
		ref.Notes = req.Notes
	}

	if err := s.applyGuarded(ctx, ref, model.ReferralCmdRespond); err != nil {
		return nil, err
	}

	s.auditor.Log(ctx, actorID, "respond", "referral", id, &audit.LogOptions{
		Changes: map[string]interface{}{"status": ref.Status, "notes": req.Notes},
	})
	return ref, nil
}

// Complete closes an accepted referral, conventionally once the new
// encounter for the patient has been opened.
func (s *Service) Complete(ctx context.Context, actorID, id uuid.UUID) (*model.Referral, error) {
	ref, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ref.Status.Allows(model.ReferralCmdComplete) {
		return nil, apperrors.InvalidTransition("referral", string(model.ReferralCmdComplete), string(ref.Status))
	}

	ref.Status = model.ReferralStatusCompleted

	if err := s.applyGuarded(ctx, ref, model.ReferralCmdComplete); err != nil {
		return nil, err
	}

	s.auditor.Log(ctx, actorID, "complete", "referral", id, nil)
	return ref, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*model.Referral, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, filters *model.ReferralFilters) ([]*model.Referral, error) {
	return s.repo.List(ctx, filters)
}

func (s *Service) applyGuarded(ctx context.Context, ref *model.Referral, cmd model.ReferralCommand) error {
	ok, err := s.repo.UpdateGuarded(ctx, ref, cmd.AllowedStates())
	if err != nil {
		return err
	}
	if !ok {
		current, err := s.repo.Get(ctx, ref.ID)
		if err != nil {
			return err
		}
		if !current.Status.Allows(cmd) {
			return apperrors.InvalidTransition("referral", string(cmd), string(current.Status))
		}
		return apperrors.Conflict("referral")
	}
	return nil
}
