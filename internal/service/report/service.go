// Package report owns the medical report lifecycle: draft, finalized,
// signed, sent. The lifecycle is strictly forward; content freezes at
// signing time.
package report

import (
	"context"
	"fmt"
	"net/mail"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/encounter-api/internal/model"
	"github.com/clinicore/encounter-api/internal/repository"
	"github.com/clinicore/encounter-api/internal/service/audit"
	apperrors "github.com/clinicore/encounter-api/pkg/errors"
	"github.com/clinicore/encounter-api/pkg/signing"
)

var phonePattern = regexp.MustCompile(`^\+?[0-9][0-9 \-]{6,18}[0-9]$`)

type Service struct {
	repo       repository.ReportRepository
	dispatches repository.DispatchRepository
	encounters repository.EncounterRepository
	directory  repository.DirectoryRepository
	validator  signing.Validator
	auditor    *audit.Service
}

func NewService(repo repository.ReportRepository, dispatches repository.DispatchRepository, encounters repository.EncounterRepository, directory repository.DirectoryRepository, validator signing.Validator, auditor *audit.Service) *Service {
	return &Service{
		repo:       repo,
		dispatches: dispatches,
		encounters: encounters,
		directory:  directory,
		validator:  validator,
		auditor:    auditor,
	}
}

func (s *Service) Create(ctx context.Context, actorID uuid.UUID, req *model.CreateReportRequest) (*model.MedicalReport, error) {
	violations := validateContentFields(req.Title, req.Type, req.Content)

	if _, err := s.directory.GetPatient(ctx, req.PatientID); err != nil {
		if !apperrors.IsCode(err, apperrors.ErrNotFound) {
			return nil, err
		}
		violations = append(violations, apperrors.FieldViolation{Field: "patient_id", Message: "patient does not exist"})
	}
	if _, err := s.directory.GetPhysician(ctx, req.PhysicianID); err != nil {
		if !apperrors.IsCode(err, apperrors.ErrNotFound) {
			return nil, err
		}
		violations = append(violations, apperrors.FieldViolation{Field: "physician_id", Message: "physician does not exist"})
	}

	if req.EncounterID != nil {
		if _, err := s.encounters.Get(ctx, *req.EncounterID); err != nil {
			if !apperrors.IsCode(err, apperrors.ErrNotFound) {
				return nil, err
			}
			violations = append(violations, apperrors.FieldViolation{Field: "encounter_id", Message: "encounter does not exist"})
		}
	}

	if len(violations) > 0 {
		return nil, apperrors.Validation("invalid report", violations...)
	}

	now := time.Now()
	report := &model.MedicalReport{
		Base: model.Base{
			ID:        uuid.New(),
			CreatedAt: now,
			UpdatedAt: now,
		},
		PatientID:    req.PatientID,
		PhysicianID:  req.PhysicianID,
		EncounterID:  req.EncounterID,
		TemplateID:   req.TemplateID,
		Title:        req.Title,
		Type:         req.Type,
		Content:      req.Content,
		Observations: req.Observations,
		Anamnesis:    req.Anamnesis,
		Status:       model.ReportStatusDraft,
		IssueDate:    now,
	}

	if err := s.repo.Create(ctx, report); err != nil {
		return nil, err
	}

	s.auditor.Log(ctx, actorID, "create", "report", report.ID, &audit.LogOptions{Changes: report})
	return report, nil
}

// Edit updates the report's content fields without changing its status.
// Content is mutable only while the report is draft or finalized.
func (s *Service) Edit(ctx context.Context, actorID, id uuid.UUID, req *model.EditReportRequest) (*model.MedicalReport, error) {
	if violations := validateContentFields(req.Title, req.Type, req.Content); len(violations) > 0 {
		return nil, apperrors.Validation("invalid report", violations...)
	}

	report, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !report.Status.Allows(model.ReportCmdEdit) {
		return nil, apperrors.InvalidTransition("report", string(model.ReportCmdEdit), string(report.Status))
	}

	report.Title = req.Title
	report.Type = req.Type
	report.Content = req.Content
	report.Observations = req.Observations
	report.Anamnesis = req.Anamnesis

	if err := s.applyGuarded(ctx, report, model.ReportCmdEdit); err != nil {
		return nil, err
	}

	s.auditor.Log(ctx, actorID, "edit", "report", id, &audit.LogOptions{Changes: req})
	return report, nil
}

func (s *Service) Finalize(ctx context.Context, actorID, id uuid.UUID) (*model.MedicalReport, error) {
	report, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !report.Status.Allows(model.ReportCmdFinalize) {
		return nil, apperrors.InvalidTransition("report", string(model.ReportCmdFinalize), string(report.Status))
	}

	report.Status = model.ReportStatusFinalized

	if err := s.applyGuarded(ctx, report, model.ReportCmdFinalize); err != nil {
		return nil, err
	}

	s.auditor.Log(ctx, actorID, "finalize", "report", id, nil)
	return report, nil
}

// Sign computes the content hash, stores it with the certificate metadata
// and freezes the report. The certificate must be a well-formed envelope.
func (s *Service) Sign(ctx context.Context, actorID, id uuid.UUID, req *model.SignReportRequest) (*model.MedicalReport, error) {
	report, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !report.Status.Allows(model.ReportCmdSign) {
		return nil, apperrors.InvalidTransition("report", string(model.ReportCmdSign), string(report.Status))
	}

	cert := []byte(req.Certificate)
	if !s.validator.IsWellFormed(cert) {
		return nil, apperrors.InvalidCertificate("certificate envelope is missing or malformed")
	}

	physician, err := s.directory.GetPhysician(ctx, req.PhysicianID)
	if err != nil {
		return nil, err
	}
	if !physician.Active {
		return nil, apperrors.Validation("invalid signature",
			apperrors.FieldViolation{Field: "physician_id", Message: "physician is not active"})
	}

	sig := &model.ReportSignature{
		ID:            uuid.New(),
		ReportID:      report.ID,
		PhysicianID:   req.PhysicianID,
		Valid:         true,
		SignatureHash: s.validator.ComputeHash(report.Content),
		Certificate:   cert,
		SignatureDate: time.Now(),
	}

	// The status flip and the signature row commit together: a failed
	// insert leaves the report finalized and re-signable.
	report.Status = model.ReportStatusSigned
	ok, err := s.repo.SignWithSignature(ctx, report, sig, model.ReportCmdSign.AllowedStates())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.resolveGuardFailure(ctx, report.ID, model.ReportCmdSign)
	}

	s.auditor.Log(ctx, actorID, "sign", "report", id, &audit.LogOptions{
		Metadata: map[string]interface{}{
			"physician_id":   req.PhysicianID,
			"signature_hash": sig.SignatureHash,
		},
	})
	return report, nil
}

// Send appends a dispatch record in pending state and marks the report sent
// once the first attempt is accepted. Delivery confirmation is tracked only
// on the dispatch record. Further sends of an already-sent report append
// additional dispatch attempts without touching its status.
func (s *Service) Send(ctx context.Context, actorID, id uuid.UUID, req *model.SendReportRequest) (*model.ReportDispatch, error) {
	if err := validateRecipient(req.Method, req.Recipient); err != nil {
		return nil, err
	}

	report, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !report.Status.Allows(model.ReportCmdSend) {
		return nil, apperrors.InvalidTransition("report", string(model.ReportCmdSend), string(report.Status))
	}

	// The status guard on content writes makes signed content immutable;
	// the stored hash is re-verified here as an integrity backstop.
	sig, err := s.repo.GetSignature(ctx, id)
	if err != nil {
		return nil, err
	}
	if sig.SignatureHash != s.validator.ComputeHash(report.Content) {
		return nil, apperrors.Integrity("report content no longer matches its signature", nil)
	}

	dispatch := &model.ReportDispatch{
		Base: model.Base{
			ID: uuid.New(),
		},
		ReportID:  report.ID,
		PatientID: report.PatientID,
		Method:    req.Method,
		Status:    model.DeliveryStatusPending,
		Recipient: req.Recipient,
	}

	if err := s.dispatches.Create(ctx, dispatch); err != nil {
		return nil, err
	}

	if report.Status == model.ReportStatusSigned {
		report.Status = model.ReportStatusSent
		if err := s.applyGuarded(ctx, report, model.ReportCmdSend); err != nil {
			return nil, err
		}
	}

	s.auditor.Log(ctx, actorID, "send", "report", id, &audit.LogOptions{
		Metadata: map[string]interface{}{
			"dispatch_id": dispatch.ID,
			"method":      req.Method,
			"recipient":   req.Recipient,
		},
	})
	return dispatch, nil
}

// Delete removes a draft. Finalized, signed and sent reports cannot be
// deleted.
func (s *Service) Delete(ctx context.Context, actorID, id uuid.UUID) error {
	ok, err := s.repo.DeleteGuarded(ctx, id, model.ReportCmdDelete.AllowedStates())
	if err != nil {
		return err
	}
	if !ok {
		current, err := s.repo.Get(ctx, id)
		if err != nil {
			return err
		}
		return apperrors.InvalidTransition("report", string(model.ReportCmdDelete), string(current.Status))
	}

	s.auditor.Log(ctx, actorID, "delete", "report", id, nil)
	return nil
}

// Duplicate produces a fresh draft with the same content and a new identity
// and number, regardless of the source report's state.
func (s *Service) Duplicate(ctx context.Context, actorID, id uuid.UUID) (*model.MedicalReport, error) {
	source, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	dup := &model.MedicalReport{
		Base: model.Base{
			ID:        uuid.New(),
			CreatedAt: now,
			UpdatedAt: now,
		},
		PatientID:    source.PatientID,
		PhysicianID:  source.PhysicianID,
		EncounterID:  source.EncounterID,
		TemplateID:   source.TemplateID,
		Title:        source.Title,
		Type:         source.Type,
		Content:      source.Content,
		Observations: source.Observations,
		Anamnesis:    source.Anamnesis,
		Status:       model.ReportStatusDraft,
		IssueDate:    now,
	}

	if err := s.repo.Create(ctx, dup); err != nil {
		return nil, err
	}

	s.auditor.Log(ctx, actorID, "duplicate", "report", dup.ID, &audit.LogOptions{
		Metadata: map[string]interface{}{"source_report_id": id},
	})
	return dup, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*model.MedicalReport, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, filters *model.ReportFilters) ([]*model.MedicalReport, error) {
	return s.repo.List(ctx, filters)
}

func (s *Service) ListDispatches(ctx context.Context, id uuid.UUID) ([]*model.ReportDispatch, error) {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.dispatches.ListByReport(ctx, id)
}

func (s *Service) applyGuarded(ctx context.Context, report *model.MedicalReport, cmd model.ReportCommand) error {
	ok, err := s.repo.UpdateGuarded(ctx, report, cmd.AllowedStates())
	if err != nil {
		return err
	}
	if !ok {
		return s.resolveGuardFailure(ctx, report.ID, cmd)
	}
	return nil
}

func (s *Service) resolveGuardFailure(ctx context.Context, id uuid.UUID, cmd model.ReportCommand) error {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if !current.Status.Allows(cmd) {
		return apperrors.InvalidTransition("report", string(cmd), string(current.Status))
	}
	return apperrors.Conflict("report")
}

func validateContentFields(title, reportType, content string) []apperrors.FieldViolation {
	var violations []apperrors.FieldViolation

	if n := len(title); n < model.MinReportTitleLen || n > model.MaxReportTitleLen {
		violations = append(violations, apperrors.FieldViolation{
			Field:   "title",
			Message: fmt.Sprintf("title must be between %d and %d characters", model.MinReportTitleLen, model.MaxReportTitleLen),
		})
	}
	if reportType == "" {
		violations = append(violations, apperrors.FieldViolation{Field: "report_type", Message: "report type is required"})
	}
	if n := len(content); n < model.MinReportContentLen || n > model.MaxReportContentLen {
		violations = append(violations, apperrors.FieldViolation{
			Field:   "content",
			Message: fmt.Sprintf("content must be between %d and %d characters", model.MinReportContentLen, model.MaxReportContentLen),
		})
	}
	return violations
}

// validateRecipient checks the recipient's shape against the delivery
// method: address-like for email, phone-like for sms/whatsapp, free text
// for in-person hand-over.
func validateRecipient(method model.DeliveryMethod, recipient string) error {
	switch method {
	case model.DeliveryEmail:
		if _, err := mail.ParseAddress(recipient); err != nil {
			return apperrors.Validation("invalid dispatch",
				apperrors.FieldViolation{Field: "recipient", Message: "recipient must be a valid email address"})
		}
	case model.DeliverySMS, model.DeliveryWhatsApp:
		if !phonePattern.MatchString(recipient) {
			return apperrors.Validation("invalid dispatch",
				apperrors.FieldViolation{Field: "recipient", Message: "recipient must be a valid phone number"})
		}
	case model.DeliveryInPerson:
		if recipient == "" {
			return apperrors.Validation("invalid dispatch",
				apperrors.FieldViolation{Field: "recipient", Message: "recipient is required"})
		}
	default:
		return apperrors.Validation("invalid dispatch",
			apperrors.FieldViolation{Field: "delivery_method", Message: fmt.Sprintf("unsupported delivery method %q", method)})
	}
	return nil
}
