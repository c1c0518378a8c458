// Package encounter owns the lifecycle of a scheduled clinical encounter:
// creation, rescheduling, cancellation, no-show and finalization.
package encounter

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/encounter-api/internal/model"
	"github.com/clinicore/encounter-api/internal/repository"
	"github.com/clinicore/encounter-api/internal/service/audit"
	"github.com/clinicore/encounter-api/internal/service/billing"
	apperrors "github.com/clinicore/encounter-api/pkg/errors"
)

const dateLayout = "2006-01-02"

type Service struct {
	repo      repository.EncounterRepository
	referrals repository.ReferralRepository
	directory repository.DirectoryRepository
	finalizer *billing.Finalizer
	auditor   *audit.Service
}

func NewService(repo repository.EncounterRepository, referrals repository.ReferralRepository, directory repository.DirectoryRepository, finalizer *billing.Finalizer, auditor *audit.Service) *Service {
	return &Service{
		repo:      repo,
		referrals: referrals,
		directory: directory,
		finalizer: finalizer,
		auditor:   auditor,
	}
}

func (s *Service) Create(ctx context.Context, actorID uuid.UUID, req *model.CreateEncounterRequest) (*model.Encounter, error) {
	var violations []apperrors.FieldViolation

	if req.Reason == "" {
		violations = append(violations, apperrors.FieldViolation{Field: "reason", Message: "reason is required"})
	}
	if req.DurationMinutes < model.MinEncounterDurationMinutes || req.DurationMinutes > model.MaxEncounterDurationMinutes {
		violations = append(violations, apperrors.FieldViolation{
			Field:   "duration_minutes",
			Message: fmt.Sprintf("duration must be between %d and %d minutes", model.MinEncounterDurationMinutes, model.MaxEncounterDurationMinutes),
		})
	}

	scheduledDate, err := parseScheduledDate(req.ScheduledDate)
	if err != nil {
		violations = append(violations, apperrors.FieldViolation{Field: "scheduled_date", Message: err.Error()})
	}

	if _, err := s.directory.GetPatient(ctx, req.PatientID); err != nil {
		if !apperrors.IsCode(err, apperrors.ErrNotFound) {
			return nil, err
		}
		violations = append(violations, apperrors.FieldViolation{Field: "patient_id", Message: "patient does not exist"})
	}

	var specialtyID uuid.UUID
	physician, err := s.directory.GetPhysician(ctx, req.PhysicianID)
	switch {
	case err == nil && !physician.Active:
		violations = append(violations, apperrors.FieldViolation{Field: "physician_id", Message: "physician is not active"})
	case err == nil:
		specialtyID = physician.SpecialtyID
	case apperrors.IsCode(err, apperrors.ErrNotFound):
		violations = append(violations, apperrors.FieldViolation{Field: "physician_id", Message: "physician does not exist"})
	default:
		return nil, err
	}

	if len(violations) > 0 {
		return nil, apperrors.Validation("invalid encounter", violations...)
	}

	priority := req.Priority
	if priority == "" {
		priority = model.PriorityNormal
	}

	now := time.Now()
	enc := &model.Encounter{
		Base: model.Base{
			ID:        uuid.New(),
			CreatedAt: now,
			UpdatedAt: now,
		},
		PatientID:       req.PatientID,
		PhysicianID:     req.PhysicianID,
		SpecialtyID:     specialtyID,
		ScheduledDate:   &scheduledDate,
		ScheduledTime:   &req.ScheduledTime,
		DurationMinutes: req.DurationMinutes,
		Type:            req.Type,
		Priority:        priority,
		Status:          model.EncounterStatusScheduled,
		Reason:          req.Reason,
		Notes:           req.Notes,
		InternalNotes:   req.InternalNotes,
		CreatedBy:       actorID,
		UpdatedBy:       actorID,
	}

	if err := s.repo.Create(ctx, enc); err != nil {
		return nil, fmt.Errorf("failed to create encounter: %w", err)
	}

	s.auditor.Log(ctx, actorID, "create", "encounter", enc.ID, &audit.LogOptions{Changes: enc})
	return enc, nil
}

// CreateFromReferral completes an accepted referral and opens a new intake
// encounter towards the referred physician. The encounter starts in
// to_be_scheduled until a slot is confirmed.
func (s *Service) CreateFromReferral(ctx context.Context, actorID uuid.UUID, req *model.CreateFromReferralRequest) (*model.Encounter, error) {
	ref, err := s.referrals.Get(ctx, req.ReferralID)
	if err != nil {
		return nil, err
	}
	if !ref.Status.Allows(model.ReferralCmdComplete) {
		return nil, apperrors.InvalidTransition("referral", string(model.ReferralCmdComplete), string(ref.Status))
	}

	physician, err := s.directory.GetPhysician(ctx, ref.ReferredToPhysicianID)
	if err != nil {
		return nil, err
	}

	reason := req.Reason
	if reason == "" {
		reason = ref.Reason
	}
	priority := req.Priority
	if priority == "" {
		priority = model.PriorityNormal
	}
	duration := req.DurationMinutes
	if duration == 0 {
		duration = model.MinEncounterDurationMinutes * 2
	}
	if duration < model.MinEncounterDurationMinutes || duration > model.MaxEncounterDurationMinutes {
		return nil, apperrors.Validation("invalid encounter",
			apperrors.FieldViolation{Field: "duration_minutes", Message: fmt.Sprintf("duration must be between %d and %d minutes", model.MinEncounterDurationMinutes, model.MaxEncounterDurationMinutes)})
	}

	now := time.Now()
	responseDate := now
	ref.Status = model.ReferralStatusCompleted
	ref.ResponseDate = &responseDate

	enc := &model.Encounter{
		Base: model.Base{
			ID:        uuid.New(),
			CreatedAt: now,
			UpdatedAt: now,
		},
		PatientID:            ref.PatientID,
		PhysicianID:          ref.ReferredToPhysicianID,
		SpecialtyID:          physician.SpecialtyID,
		ReferringPhysicianID: &ref.ReferringPhysicianID,
		ReferralID:           &ref.ID,
		DurationMinutes:      duration,
		Type:                 model.EncounterTypeFirstVisit,
		Priority:             priority,
		Status:               model.EncounterStatusToBeScheduled,
		Reason:               reason,
		CreatedBy:            actorID,
		UpdatedBy:            actorID,
	}

	// Referral completion and encounter insert commit together: a failure
	// on either side leaves the referral accepted and re-usable.
	ok, err := s.repo.CreateFromReferral(ctx, enc, ref, model.ReferralCmdComplete.AllowedStates())
	if err != nil {
		return nil, err
	}
	if !ok {
		current, err := s.referrals.Get(ctx, ref.ID)
		if err != nil {
			return nil, err
		}
		if !current.Status.Allows(model.ReferralCmdComplete) {
			return nil, apperrors.InvalidTransition("referral", string(model.ReferralCmdComplete), string(current.Status))
		}
		return nil, apperrors.Conflict("referral")
	}

	s.auditor.Log(ctx, actorID, "create_from_referral", "encounter", enc.ID, &audit.LogOptions{
		Changes:  enc,
		Metadata: map[string]interface{}{"referral_id": ref.ID},
	})
	return enc, nil
}

// Schedule confirms a slot for an intake encounter.
func (s *Service) Schedule(ctx context.Context, actorID, id uuid.UUID, req *model.RescheduleEncounterRequest) (*model.Encounter, error) {
	return s.moveSlot(ctx, actorID, id, req, model.EncounterCmdSchedule, model.EncounterStatusScheduled)
}

// Reschedule moves a scheduled or rescheduled encounter to a new slot.
// Participants never change.
func (s *Service) Reschedule(ctx context.Context, actorID, id uuid.UUID, req *model.RescheduleEncounterRequest) (*model.Encounter, error) {
	return s.moveSlot(ctx, actorID, id, req, model.EncounterCmdReschedule, model.EncounterStatusRescheduled)
}

func (s *Service) moveSlot(ctx context.Context, actorID, id uuid.UUID, req *model.RescheduleEncounterRequest, cmd model.EncounterCommand, target model.EncounterStatus) (*model.Encounter, error) {
	scheduledDate, err := parseScheduledDate(req.ScheduledDate)
	if err != nil {
		return nil, apperrors.Validation("invalid encounter",
			apperrors.FieldViolation{Field: "scheduled_date", Message: err.Error()})
	}

	enc, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !enc.Status.Allows(cmd) {
		return nil, apperrors.InvalidTransition("encounter", string(cmd), string(enc.Status))
	}

	enc.ScheduledDate = &scheduledDate
	enc.ScheduledTime = &req.ScheduledTime
	enc.Status = target
	enc.UpdatedBy = actorID

	if err := s.applyGuarded(ctx, enc, cmd); err != nil {
		return nil, err
	}

	s.auditor.Log(ctx, actorID, string(cmd), "encounter", id, &audit.LogOptions{
		Changes: map[string]interface{}{
			"status":         enc.Status,
			"scheduled_date": req.ScheduledDate,
			"scheduled_time": req.ScheduledTime,
		},
	})
	return enc, nil
}

func (s *Service) Cancel(ctx context.Context, actorID, id uuid.UUID, req *model.CancelEncounterRequest) (*model.Encounter, error) {
	if req.Reason == "" {
		return nil, apperrors.Validation("invalid cancellation",
			apperrors.FieldViolation{Field: "reason", Message: "cancellation reason is required"})
	}

	enc, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !enc.Status.Allows(model.EncounterCmdCancel) {
		return nil, apperrors.InvalidTransition("encounter", string(model.EncounterCmdCancel), string(enc.Status))
	}

	now := time.Now()
	enc.Status = model.EncounterStatusCancelled
	enc.CancellationReason = &req.Reason
	enc.CancellationDate = &now
	enc.CancelledBy = &actorID
	enc.UpdatedBy = actorID

	if err := s.applyGuarded(ctx, enc, model.EncounterCmdCancel); err != nil {
		return nil, err
	}

	s.auditor.Log(ctx, actorID, "cancel", "encounter", id, &audit.LogOptions{
		Changes: map[string]interface{}{
			"status":              enc.Status,
			"cancellation_reason": req.Reason,
		},
	})
	return enc, nil
}

func (s *Service) MarkNoShow(ctx context.Context, actorID, id uuid.UUID) (*model.Encounter, error) {
	enc, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !enc.Status.Allows(model.EncounterCmdMarkNoShow) {
		return nil, apperrors.InvalidTransition("encounter", string(model.EncounterCmdMarkNoShow), string(enc.Status))
	}

	enc.Status = model.EncounterStatusNoShow
	enc.UpdatedBy = actorID

	if err := s.applyGuarded(ctx, enc, model.EncounterCmdMarkNoShow); err != nil {
		return nil, err
	}

	s.auditor.Log(ctx, actorID, "mark_no_show", "encounter", id, nil)
	return enc, nil
}

// Finalize closes the encounter with a diagnosis and its billed-service
// selection. Validation runs fully before anything is committed: on any
// billing failure the encounter keeps its prior status and no billing line
// is persisted.
func (s *Service) Finalize(ctx context.Context, actorID, id uuid.UUID, req *model.FinalizeEncounterRequest) (*model.FinalizedEncounter, error) {
	if req.PreliminaryDiagnosis == "" {
		return nil, apperrors.Validation("invalid finalization",
			apperrors.FieldViolation{Field: "preliminary_diagnosis", Message: "preliminary diagnosis is required"})
	}

	enc, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !enc.Status.Allows(model.EncounterCmdFinalize) {
		return nil, apperrors.InvalidTransition("encounter", string(model.EncounterCmdFinalize), string(enc.Status))
	}

	result, err := s.finalizer.Finalize(ctx, enc.SpecialtyID, req.Services)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	enc.Status = model.EncounterStatusCompleted
	enc.PreliminaryDiagnosis = req.PreliminaryDiagnosis
	enc.CompletedAt = &now
	enc.UpdatedBy = actorID

	for _, line := range result.Lines {
		line.EncounterID = enc.ID
	}

	ok, err := s.repo.FinalizeWithServices(ctx, enc, result.Lines, model.EncounterCmdFinalize.AllowedStates())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.resolveGuardFailure(ctx, id, model.EncounterCmdFinalize)
	}

	s.auditor.Log(ctx, actorID, "finalize", "encounter", id, &audit.LogOptions{
		Changes: map[string]interface{}{
			"status":                enc.Status,
			"preliminary_diagnosis": req.PreliminaryDiagnosis,
			"totals":                result.Totals,
		},
	})

	return &model.FinalizedEncounter{
		Encounter: enc,
		Services:  result.Lines,
		Totals:    result.Totals,
	}, nil
}

// UpdateNotes edits the clinical text fields. Terminal encounters are
// immutable except for audit metadata.
func (s *Service) UpdateNotes(ctx context.Context, actorID, id uuid.UUID, req *model.UpdateEncounterNotesRequest) (*model.Encounter, error) {
	enc, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !enc.Status.Allows(model.EncounterCmdUpdateNotes) {
		return nil, apperrors.InvalidTransition("encounter", string(model.EncounterCmdUpdateNotes), string(enc.Status))
	}

	if req.Reason != nil {
		if *req.Reason == "" {
			return nil, apperrors.Validation("invalid encounter",
				apperrors.FieldViolation{Field: "reason", Message: "reason cannot be emptied"})
		}
		enc.Reason = *req.Reason
	}
	if req.PreliminaryDiagnosis != nil {
		enc.PreliminaryDiagnosis = *req.PreliminaryDiagnosis
	}
	if req.Notes != nil {
		enc.Notes = *req.Notes
	}
	if req.InternalNotes != nil {
		enc.InternalNotes = *req.InternalNotes
	}
	enc.UpdatedBy = actorID

	if err := s.applyGuarded(ctx, enc, model.EncounterCmdUpdateNotes); err != nil {
		return nil, err
	}

	s.auditor.Log(ctx, actorID, "update", "encounter", id, &audit.LogOptions{Changes: req})
	return enc, nil
}

func (s *Service) MarkReminderSent(ctx context.Context, actorID, id uuid.UUID, req *model.MarkReminderSentRequest) (*model.Encounter, error) {
	enc, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !enc.Status.Allows(model.EncounterCmdMarkReminder) {
		return nil, apperrors.InvalidTransition("encounter", string(model.EncounterCmdMarkReminder), string(enc.Status))
	}

	now := time.Now()
	enc.ReminderSent = true
	enc.ReminderDate = &now
	enc.ReminderMethod = &req.Method
	enc.UpdatedBy = actorID

	if err := s.applyGuarded(ctx, enc, model.EncounterCmdMarkReminder); err != nil {
		return nil, err
	}

	s.auditor.Log(ctx, actorID, "mark_reminder_sent", "encounter", id, &audit.LogOptions{
		Metadata: map[string]interface{}{"method": req.Method},
	})
	return enc, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*model.Encounter, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, filters *model.EncounterFilters) ([]*model.Encounter, error) {
	return s.repo.List(ctx, filters)
}

func (s *Service) ListServices(ctx context.Context, id uuid.UUID) ([]*model.BilledService, error) {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.ListServices(ctx, id)
}

// applyGuarded persists enc under the command's status guard and resolves
// a guard miss into the right typed error.
func (s *Service) applyGuarded(ctx context.Context, enc *model.Encounter, cmd model.EncounterCommand) error {
	ok, err := s.repo.UpdateGuarded(ctx, enc, cmd.AllowedStates())
	if err != nil {
		return err
	}
	if !ok {
		return s.resolveGuardFailure(ctx, enc.ID, cmd)
	}
	return nil
}

func (s *Service) resolveGuardFailure(ctx context.Context, id uuid.UUID, cmd model.EncounterCommand) error {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if !current.Status.Allows(cmd) {
		return apperrors.InvalidTransition("encounter", string(cmd), string(current.Status))
	}
	return apperrors.Conflict("encounter")
}

func parseScheduledDate(value string) (time.Time, error) {
	date, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("scheduled date must be in YYYY-MM-DD format")
	}
	today, _ := time.Parse(dateLayout, time.Now().Format(dateLayout))
	if date.Before(today) {
		return time.Time{}, fmt.Errorf("scheduled date must be today or later")
	}
	return date, nil
}
