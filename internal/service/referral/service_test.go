package referral

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicore/encounter-api/internal/model"
	"github.com/clinicore/encounter-api/internal/service/audit"
	apperrors "github.com/clinicore/encounter-api/pkg/errors"
)

type memReferralRepo struct {
	referrals map[uuid.UUID]*model.Referral
}

func newMemReferralRepo() *memReferralRepo {
	return &memReferralRepo{referrals: make(map[uuid.UUID]*model.Referral)}
}

func (r *memReferralRepo) Create(ctx context.Context, ref *model.Referral) error {
	cp := *ref
	r.referrals[ref.ID] = &cp
	return nil
}

func (r *memReferralRepo) Get(ctx context.Context, id uuid.UUID) (*model.Referral, error) {
	ref, ok := r.referrals[id]
	if !ok {
		return nil, apperrors.NotFound("referral", nil)
	}
	cp := *ref
	return &cp, nil
}

func (r *memReferralRepo) List(ctx context.Context, filters *model.ReferralFilters) ([]*model.Referral, error) {
	var out []*model.Referral
	for _, ref := range r.referrals {
		cp := *ref
		out = append(out, &cp)
	}
	return out, nil
}

func (r *memReferralRepo) UpdateGuarded(ctx context.Context, ref *model.Referral, fromStates []model.ReferralStatus) (bool, error) {
	stored, ok := r.referrals[ref.ID]
	if !ok {
		return false, nil
	}
	for _, s := range fromStates {
		if stored.Status == s {
			cp := *ref
			r.referrals[ref.ID] = &cp
			return true, nil
		}
	}
	return false, nil
}

type fakeDirectory struct {
	patients   map[uuid.UUID]*model.Patient
	physicians map[uuid.UUID]*model.Physician
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		patients:   make(map[uuid.UUID]*model.Patient),
		physicians: make(map[uuid.UUID]*model.Physician),
	}
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
	svc       *Service
	repo      *memReferralRepo
	directory *fakeDirectory

	patientID   uuid.UUID
	referringID uuid.UUID
	referredID  uuid.UUID
	actorID     uuid.UUID
}

func newFixture() *fixture {
	f := &fixture{
		repo:        newMemReferralRepo(),
		directory:   newFakeDirectory(),
		patientID:   uuid.New(),
		referringID: uuid.New(),
		referredID:  uuid.New(),
		actorID:     uuid.New(),
	}
	f.directory.patients[f.patientID] = &model.Patient{ID: f.patientID}
	f.directory.physicians[f.referringID] = &model.Physician{ID: f.referringID, SpecialtyID: uuid.New(), Active: true}
	f.directory.physicians[f.referredID] = &model.Physician{ID: f.referredID, SpecialtyID: uuid.New(), Active: true}
	logger := zerolog.Nop()
	f.svc = NewService(f.repo, f.directory, audit.NewService(&memAuditRepo{}, &logger))
	return f
}

func (f *fixture) mustCreate(t *testing.T) *model.Referral {
	t.Helper()
	ref, err := f.svc.Create(context.Background(), f.actorID, &model.CreateReferralRequest{
		PatientID:             f.patientID,
		ReferringPhysicianID:  f.referringID,
		ReferredToPhysicianID: f.referredID,
		Reason:                "needs cardiology workup",
	})
	require.NoError(t, err)
	return ref
}

func TestCreateReferral(t *testing.T) {
	f := newFixture()

	ref := f.mustCreate(t)

	assert.Equal(t, model.ReferralStatusPending, ref.Status)
	assert.False(t, ref.ReferralDate.IsZero())
	assert.Nil(t, ref.ResponseDate)
}

func TestCreateReferralRejectsSelfReferral(t *testing.T) {
	f := newFixture()

	_, err := f.svc.Create(context.Background(), f.actorID, &model.CreateReferralRequest{
		PatientID:             f.patientID,
		ReferringPhysicianID:  f.referringID,
		ReferredToPhysicianID: f.referringID,
		Reason:                "needs cardiology workup",
	})
	require.Error(t, err)

	appErr := apperrors.From(err)
	assert.Equal(t, apperrors.ErrValidation, appErr.Code)
	require.Len(t, appErr.Violations, 1)
	assert.Equal(t, "referred_to_physician_id", appErr.Violations[0].Field)
}

func TestCreateReferralRejectsInactiveReferredPhysician(t *testing.T) {
	f := newFixture()
	f.directory.physicians[f.referredID].Active = false

	_, err := f.svc.Create(context.Background(), f.actorID, &model.CreateReferralRequest{
		PatientID:             f.patientID,
		ReferringPhysicianID:  f.referringID,
		ReferredToPhysicianID: f.referredID,
		Reason:                "needs cardiology workup",
	})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrValidation))
}

func TestRespondAccept(t *testing.T) {
	f := newFixture()
	ref := f.mustCreate(t)

	responded, err := f.svc.Respond(context.Background(), f.actorID, ref.ID, &model.RespondReferralRequest{
		Decision: model.ReferralStatusAccepted,
		Notes:    "will see next week",
	})
	require.NoError(t, err)

	assert.Equal(t, model.ReferralStatusAccepted, responded.Status)
	assert.NotNil(t, responded.ResponseDate)
	assert.Equal(t, "will see next week", responded.Notes)
}

func TestRespondOnlyFromPending(t *testing.T) {
	f := newFixture()
	ref := f.mustCreate(t)

	_, err := f.svc.Respond(context.Background(), f.actorID, ref.ID, &model.RespondReferralRequest{Decision: model.ReferralStatusRejected})
	require.NoError(t, err)

	// Decided referrals never take a second response.
	_, err = f.svc.Respond(context.Background(), f.actorID, ref.ID, &model.RespondReferralRequest{Decision: model.ReferralStatusAccepted})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrInvalidTransition))
}

func TestCompleteOnlyFromAccepted(t *testing.T) {
	f := newFixture()
	ref := f.mustCreate(t)

	_, err := f.svc.Complete(context.Background(), f.actorID, ref.ID)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrInvalidTransition))

	_, err = f.svc.Respond(context.Background(), f.actorID, ref.ID, &model.RespondReferralRequest{Decision: model.ReferralStatusAccepted})
	require.NoError(t, err)

	completed, err := f.svc.Complete(context.Background(), f.actorID, ref.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReferralStatusCompleted, completed.Status)

	_, err = f.svc.Complete(context.Background(), f.actorID, ref.ID)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrInvalidTransition))
}
