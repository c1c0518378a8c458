package report

import (
	"context"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicore/encounter-api/internal/model"
	"github.com/clinicore/encounter-api/internal/service/audit"
	apperrors "github.com/clinicore/encounter-api/pkg/errors"
	"github.com/clinicore/encounter-api/pkg/signing"
)

type memReportRepo struct {
	reports           map[uuid.UUID]*model.MedicalReport
	signatures        map[uuid.UUID]*model.ReportSignature
	nextSeq           int64
	failNextSignature error
}

func newMemReportRepo() *memReportRepo {
	return &memReportRepo{
		reports:    make(map[uuid.UUID]*model.MedicalReport),
		signatures: make(map[uuid.UUID]*model.ReportSignature),
	}
}

func (r *memReportRepo) Create(ctx context.Context, report *model.MedicalReport) error {
	r.nextSeq++
	report.SequenceNumber = r.nextSeq
	report.ReportNumber = fmt.Sprintf("RPT-%08d", r.nextSeq)
	cp := *report
	r.reports[report.ID] = &cp
	return nil
}

func (r *memReportRepo) Get(ctx context.Context, id uuid.UUID) (*model.MedicalReport, error) {
	report, ok := r.reports[id]
	if !ok {
		return nil, apperrors.NotFound("report", nil)
	}
	cp := *report
	return &cp, nil
}

func (r *memReportRepo) List(ctx context.Context, filters *model.ReportFilters) ([]*model.MedicalReport, error) {
	var out []*model.MedicalReport
	for _, report := range r.reports {
		cp := *report
		out = append(out, &cp)
	}
	return out, nil
}

func (r *memReportRepo) guardHolds(id uuid.UUID, fromStates []model.ReportStatus) bool {
	stored, ok := r.reports[id]
	if !ok {
		return false
	}
	for _, s := range fromStates {
		if stored.Status == s {
			return true
		}
	}
	return false
}

func (r *memReportRepo) UpdateGuarded(ctx context.Context, report *model.MedicalReport, fromStates []model.ReportStatus) (bool, error) {
	if !r.guardHolds(report.ID, fromStates) {
		return false, nil
	}
	cp := *report
	r.reports[report.ID] = &cp
	return true, nil
}

func (r *memReportRepo) DeleteGuarded(ctx context.Context, id uuid.UUID, fromStates []model.ReportStatus) (bool, error) {
	if !r.guardHolds(id, fromStates) {
		return false, nil
	}
	delete(r.reports, id)
	return true, nil
}

// SignWithSignature mirrors the transaction in the SQL layer: either the
// status flip and the signature row both land or neither does.
func (r *memReportRepo) SignWithSignature(ctx context.Context, report *model.MedicalReport, sig *model.ReportSignature, fromStates []model.ReportStatus) (bool, error) {
	if r.failNextSignature != nil {
		err := r.failNextSignature
		r.failNextSignature = nil
		return false, err
	}
	if !r.guardHolds(report.ID, fromStates) {
		return false, nil
	}
	rcp := *report
	r.reports[report.ID] = &rcp
	scp := *sig
	r.signatures[sig.ReportID] = &scp
	return true, nil
}

func (r *memReportRepo) GetSignature(ctx context.Context, reportID uuid.UUID) (*model.ReportSignature, error) {
	sig, ok := r.signatures[reportID]
	if !ok {
		return nil, apperrors.NotFound("report signature", nil)
	}
	cp := *sig
	return &cp, nil
}

type memDispatchRepo struct {
	dispatches map[uuid.UUID]*model.ReportDispatch
}

func newMemDispatchRepo() *memDispatchRepo {
	return &memDispatchRepo{dispatches: make(map[uuid.UUID]*model.ReportDispatch)}
}

func (r *memDispatchRepo) Create(ctx context.Context, dispatch *model.ReportDispatch) error {
	cp := *dispatch
	r.dispatches[dispatch.ID] = &cp
	return nil
}

func (r *memDispatchRepo) Get(ctx context.Context, id uuid.UUID) (*model.ReportDispatch, error) {
	dispatch, ok := r.dispatches[id]
	if !ok {
		return nil, apperrors.NotFound("dispatch", nil)
	}
	cp := *dispatch
	return &cp, nil
}

func (r *memDispatchRepo) ListByReport(ctx context.Context, reportID uuid.UUID) ([]*model.ReportDispatch, error) {
	var out []*model.ReportDispatch
	for _, dispatch := range r.dispatches {
		if dispatch.ReportID == reportID {
			cp := *dispatch
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memDispatchRepo) ListPending(ctx context.Context, limit int) ([]*model.ReportDispatch, error) {
	var out []*model.ReportDispatch
	for _, dispatch := range r.dispatches {
		if dispatch.Status == model.DeliveryStatusPending && len(out) < limit {
			cp := *dispatch
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memDispatchRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status model.DeliveryStatus, errMsg *string) error {
	dispatch, ok := r.dispatches[id]
	if !ok {
		return apperrors.NotFound("dispatch", nil)
	}
	if dispatch.Status == model.DeliveryStatusDelivered {
		return nil
	}
	dispatch.Status = status
	dispatch.Error = errMsg
	return nil
}

type memEncounterRepo struct {
	encounters map[uuid.UUID]*model.Encounter
}

func (r *memEncounterRepo) Create(ctx context.Context, enc *model.Encounter) error { return nil }

func (r *memEncounterRepo) CreateFromReferral(ctx context.Context, enc *model.Encounter, ref *model.Referral, fromStates []model.ReferralStatus) (bool, error) {
	return false, nil
}

func (r *memEncounterRepo) Get(ctx context.Context, id uuid.UUID) (*model.Encounter, error) {
	if enc, ok := r.encounters[id]; ok {
		return enc, nil
	}
	return nil, apperrors.NotFound("encounter", nil)
}

func (r *memEncounterRepo) List(ctx context.Context, filters *model.EncounterFilters) ([]*model.Encounter, error) {
	return nil, nil
}

func (r *memEncounterRepo) UpdateGuarded(ctx context.Context, enc *model.Encounter, fromStates []model.EncounterStatus) (bool, error) {
	return false, nil
}

func (r *memEncounterRepo) FinalizeWithServices(ctx context.Context, enc *model.Encounter, lines []*model.BilledService, fromStates []model.EncounterStatus) (bool, error) {
	return false, nil
}

func (r *memEncounterRepo) ListServices(ctx context.Context, encounterID uuid.UUID) ([]*model.BilledService, error) {
	return nil, nil
}

type fakeDirectory struct {
	patients   map[uuid.UUID]*model.Patient
	physicians map[uuid.UUID]*model.Physician
}

func (d *fakeDirectory) GetPhysician(ctx context.Context, id uuid.UUID) (*model.Physician, error) {
	if p, ok := d.physicians[id]; ok {
		return p, nil
	}
	return nil, apperrors.NotFound("physician", nil)
}

func (d *fakeDirectory) GetPatient(ctx context.Context, id uuid.UUID) (*model.Patient, error) {
	if p, ok := d.patients[id]; ok {
		return p, nil
	}
	return nil, apperrors.NotFound("patient", nil)
}

func (d *fakeDirectory) GetService(ctx context.Context, id uuid.UUID) (*model.CatalogService, error) {
	return nil, apperrors.NotFound("service", nil)
}

type memAuditRepo struct {
	entries []*model.AuditLog
}

func (r *memAuditRepo) Create(ctx context.Context, log *model.AuditLog) error {
	r.entries = append(r.entries, log)
	return nil
}

func (r *memAuditRepo) List(ctx context.Context, entityType string, entityID uuid.UUID) ([]*model.AuditLog, error) {
	return r.entries, nil
}

type fixture struct {
	svc        *Service
	repo       *memReportRepo
	dispatches *memDispatchRepo

	patientID   uuid.UUID
	physicianID uuid.UUID
	actorID     uuid.UUID
}

func newFixture() *fixture {
	f := &fixture{
		repo:        newMemReportRepo(),
		dispatches:  newMemDispatchRepo(),
		patientID:   uuid.New(),
		physicianID: uuid.New(),
		actorID:     uuid.New(),
	}
	directory := &fakeDirectory{
		patients:   map[uuid.UUID]*model.Patient{f.patientID: {ID: f.patientID}},
		physicians: map[uuid.UUID]*model.Physician{f.physicianID: {ID: f.physicianID, SpecialtyID: uuid.New(), Active: true}},
	}
	encounters := &memEncounterRepo{encounters: make(map[uuid.UUID]*model.Encounter)}
	logger := zerolog.Nop()
	f.svc = NewService(f.repo, f.dispatches, encounters, directory, signing.NewPEMValidator(), audit.NewService(&memAuditRepo{}, &logger))
	return f
}

func validCert() string {
	block := &pem.Block{Type: "CERTIFICATE", Bytes: []byte("test certificate body")}
	return string(pem.EncodeToMemory(block))
}

const reportContent = "Patient presented with persistent headaches over the last two weeks. No neurological deficits observed."

func (f *fixture) mustCreate(t *testing.T) *model.MedicalReport {
	t.Helper()
	report, err := f.svc.Create(context.Background(), f.actorID, &model.CreateReportRequest{
		PatientID:   f.patientID,
		PhysicianID: f.physicianID,
		Title:       "Neurology consultation",
		Type:        "consultation",
		Content:     reportContent,
	})
	require.NoError(t, err)
	return report
}

func (f *fixture) mustSign(t *testing.T, id uuid.UUID) *model.MedicalReport {
	t.Helper()
	_, err := f.svc.Finalize(context.Background(), f.actorID, id)
	require.NoError(t, err)
	report, err := f.svc.Sign(context.Background(), f.actorID, id, &model.SignReportRequest{
		PhysicianID: f.physicianID,
		Certificate: validCert(),
	})
	require.NoError(t, err)
	return report
}

func TestCreateReportStartsAsDraft(t *testing.T) {
	f := newFixture()

	report := f.mustCreate(t)

	assert.Equal(t, model.ReportStatusDraft, report.Status)
	assert.NotEmpty(t, report.ReportNumber)
	assert.NotZero(t, report.SequenceNumber)
}

func TestCreateReportContentBounds(t *testing.T) {
	f := newFixture()

	_, err := f.svc.Create(context.Background(), f.actorID, &model.CreateReportRequest{
		PatientID:   f.patientID,
		PhysicianID: f.physicianID,
		Title:       "abc", // too short
		Type:        "",
		Content:     "too short",
	})
	require.Error(t, err)

	appErr := apperrors.From(err)
	assert.Equal(t, apperrors.ErrValidation, appErr.Code)
	assert.Len(t, appErr.Violations, 3)
}

func TestLifecycleIsStrictlyForward(t *testing.T) {
	f := newFixture()
	report := f.mustCreate(t)
	ctx := context.Background()

	// sign and send both require earlier stages to have happened
	_, err := f.svc.Sign(ctx, f.actorID, report.ID, &model.SignReportRequest{PhysicianID: f.physicianID, Certificate: validCert()})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrInvalidTransition))

	_, err = f.svc.Send(ctx, f.actorID, report.ID, &model.SendReportRequest{Method: model.DeliveryEmail, Recipient: "patient@example.com"})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrInvalidTransition))

	finalized, err := f.svc.Finalize(ctx, f.actorID, report.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReportStatusFinalized, finalized.Status)

	// finalize is not repeatable
	_, err = f.svc.Finalize(ctx, f.actorID, report.ID)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrInvalidTransition))

	signed, err := f.svc.Sign(ctx, f.actorID, report.ID, &model.SignReportRequest{PhysicianID: f.physicianID, Certificate: validCert()})
	require.NoError(t, err)
	assert.Equal(t, model.ReportStatusSigned, signed.Status)

	dispatch, err := f.svc.Send(ctx, f.actorID, report.ID, &model.SendReportRequest{Method: model.DeliveryEmail, Recipient: "patient@example.com"})
	require.NoError(t, err)
	assert.Equal(t, model.DeliveryStatusPending, dispatch.Status)

	sent, err := f.svc.Get(ctx, report.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReportStatusSent, sent.Status)
}

func TestEditAllowedWhileDraftOrFinalized(t *testing.T) {
	f := newFixture()
	report := f.mustCreate(t)
	ctx := context.Background()

	edit := &model.EditReportRequest{
		Title:   "Neurology consultation, revised",
		Type:    "consultation",
		Content: reportContent + " Follow-up recommended in four weeks.",
	}

	edited, err := f.svc.Edit(ctx, f.actorID, report.ID, edit)
	require.NoError(t, err)
	assert.Equal(t, model.ReportStatusDraft, edited.Status)

	_, err = f.svc.Finalize(ctx, f.actorID, report.ID)
	require.NoError(t, err)

	edited, err = f.svc.Edit(ctx, f.actorID, report.ID, edit)
	require.NoError(t, err)
	assert.Equal(t, model.ReportStatusFinalized, edited.Status)

	_, err = f.svc.Sign(ctx, f.actorID, report.ID, &model.SignReportRequest{PhysicianID: f.physicianID, Certificate: validCert()})
	require.NoError(t, err)

	// signed content is frozen
	_, err = f.svc.Edit(ctx, f.actorID, report.ID, edit)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrInvalidTransition))
}

func TestSignRejectsMalformedCertificate(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	certs := map[string]string{
		"empty":            "",
		"garbage":          "not a certificate",
		"wrong block type": string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: []byte("key body")})),
		"truncated":        strings.Split(validCert(), "\n")[0],
	}

	for name, cert := range certs {
		t.Run(name, func(t *testing.T) {
			report := f.mustCreate(t)
			_, err := f.svc.Finalize(ctx, f.actorID, report.ID)
			require.NoError(t, err)

			_, err = f.svc.Sign(ctx, f.actorID, report.ID, &model.SignReportRequest{PhysicianID: f.physicianID, Certificate: cert})
			assert.True(t, apperrors.IsCode(err, apperrors.ErrInvalidCertificate))

			current, err := f.svc.Get(ctx, report.ID)
			require.NoError(t, err)
			assert.Equal(t, model.ReportStatusFinalized, current.Status)
		})
	}
}

func TestSignRejectsInactivePhysician(t *testing.T) {
	f := newFixture()
	inactiveID := uuid.New()
	report := f.mustCreate(t)

	_, err := f.svc.Finalize(context.Background(), f.actorID, report.ID)
	require.NoError(t, err)

	_, err = f.svc.Sign(context.Background(), f.actorID, report.ID, &model.SignReportRequest{PhysicianID: inactiveID, Certificate: validCert()})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrNotFound))
}

func TestSignRecordsContentHash(t *testing.T) {
	f := newFixture()
	report := f.mustCreate(t)
	f.mustSign(t, report.ID)

	sig, err := f.repo.GetSignature(context.Background(), report.ID)
	require.NoError(t, err)
	assert.Equal(t, signing.NewPEMValidator().ComputeHash(reportContent), sig.SignatureHash)
	assert.True(t, sig.Valid)
	assert.Equal(t, f.physicianID, sig.PhysicianID)
}

func TestSignFailureLeavesReportFinalized(t *testing.T) {
	f := newFixture()
	report := f.mustCreate(t)
	ctx := context.Background()

	_, err := f.svc.Finalize(ctx, f.actorID, report.ID)
	require.NoError(t, err)

	f.repo.failNextSignature = errors.New("connection reset by peer")
	_, err = f.svc.Sign(ctx, f.actorID, report.ID, &model.SignReportRequest{
		PhysicianID: f.physicianID,
		Certificate: validCert(),
	})
	require.Error(t, err)

	current, err := f.svc.Get(ctx, report.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReportStatusFinalized, current.Status)
	_, err = f.repo.GetSignature(ctx, report.ID)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrNotFound))

	// The report is still signable once the transient failure clears.
	signed, err := f.svc.Sign(ctx, f.actorID, report.ID, &model.SignReportRequest{
		PhysicianID: f.physicianID,
		Certificate: validCert(),
	})
	require.NoError(t, err)
	assert.Equal(t, model.ReportStatusSigned, signed.Status)

	sig, err := f.repo.GetSignature(ctx, report.ID)
	require.NoError(t, err)
	assert.Equal(t, signing.NewPEMValidator().ComputeHash(reportContent), sig.SignatureHash)
}

func TestSendValidatesRecipientShape(t *testing.T) {
	f := newFixture()
	report := f.mustCreate(t)
	f.mustSign(t, report.ID)
	ctx := context.Background()

	bad := []model.SendReportRequest{
		{Method: model.DeliveryEmail, Recipient: "not-an-address"},
		{Method: model.DeliverySMS, Recipient: "call me maybe"},
		{Method: model.DeliveryWhatsApp, Recipient: "abc"},
		{Method: model.DeliveryInPerson, Recipient: ""},
		{Method: model.DeliveryMethod("fax"), Recipient: "555-0100"},
	}
	for _, req := range bad {
		_, err := f.svc.Send(ctx, f.actorID, report.ID, &req)
		assert.True(t, apperrors.IsCode(err, apperrors.ErrValidation), "method %s", req.Method)
	}

	good := []model.SendReportRequest{
		{Method: model.DeliveryEmail, Recipient: "patient@example.com"},
		{Method: model.DeliverySMS, Recipient: "+34 600 123 456"},
		{Method: model.DeliveryInPerson, Recipient: "front desk"},
	}
	for _, req := range good {
		_, err := f.svc.Send(ctx, f.actorID, report.ID, &req)
		assert.NoError(t, err, "method %s", req.Method)
	}
}

func TestSendDetectsContentTampering(t *testing.T) {
	f := newFixture()
	report := f.mustCreate(t)
	f.mustSign(t, report.ID)

	// Corrupt the stored content behind the lifecycle's back.
	f.repo.reports[report.ID].Content = "tampered content that no longer matches the stored signature hash"

	_, err := f.svc.Send(context.Background(), f.actorID, report.ID, &model.SendReportRequest{
		Method:    model.DeliveryEmail,
		Recipient: "patient@example.com",
	})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrIntegrity))
}

func TestResendAppendsDispatchWithoutStatusChange(t *testing.T) {
	f := newFixture()
	report := f.mustCreate(t)
	f.mustSign(t, report.ID)
	ctx := context.Background()

	_, err := f.svc.Send(ctx, f.actorID, report.ID, &model.SendReportRequest{Method: model.DeliveryEmail, Recipient: "patient@example.com"})
	require.NoError(t, err)
	_, err = f.svc.Send(ctx, f.actorID, report.ID, &model.SendReportRequest{Method: model.DeliverySMS, Recipient: "+34600123456"})
	require.NoError(t, err)

	current, err := f.svc.Get(ctx, report.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReportStatusSent, current.Status)

	dispatches, err := f.svc.ListDispatches(ctx, report.ID)
	require.NoError(t, err)
	assert.Len(t, dispatches, 2)
}

func TestDeleteDraftOnly(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	draft := f.mustCreate(t)
	require.NoError(t, f.svc.Delete(ctx, f.actorID, draft.ID))
	_, err := f.svc.Get(ctx, draft.ID)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrNotFound))

	finalized := f.mustCreate(t)
	_, err = f.svc.Finalize(ctx, f.actorID, finalized.ID)
	require.NoError(t, err)
	err = f.svc.Delete(ctx, f.actorID, finalized.ID)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrInvalidTransition))
}

func TestDuplicateProducesFreshDraft(t *testing.T) {
	f := newFixture()
	source := f.mustCreate(t)
	f.mustSign(t, source.ID)

	dup, err := f.svc.Duplicate(context.Background(), f.actorID, source.ID)
	require.NoError(t, err)

	assert.NotEqual(t, source.ID, dup.ID)
	assert.NotEqual(t, source.ReportNumber, dup.ReportNumber)
	assert.Greater(t, dup.SequenceNumber, source.SequenceNumber)
	assert.Equal(t, model.ReportStatusDraft, dup.Status)
	assert.Equal(t, source.Content, dup.Content)
	assert.Equal(t, source.PatientID, dup.PatientID)
}
