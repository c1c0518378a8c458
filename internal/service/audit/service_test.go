package audit

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicore/encounter-api/internal/model"
)

type memAuditRepo struct {
	entries []*model.AuditLog
	err     error
}

func (r *memAuditRepo) Create(ctx context.Context, log *model.AuditLog) error {
	if r.err != nil {
		return r.err
	}
	r.entries = append(r.entries, log)
	return nil
}

func (r *memAuditRepo) List(ctx context.Context, entityType string, entityID uuid.UUID) ([]*model.AuditLog, error) {
	return r.entries, nil
}

func TestLogRecordsEntry(t *testing.T) {
	repo := &memAuditRepo{}
	logger := zerolog.Nop()
	svc := NewService(repo, &logger)

	err := svc.Log(context.Background(), uuid.New(), "create", "encounter", uuid.New(), &LogOptions{
		Metadata: map[string]interface{}{"slot": "10:30"},
	})
	require.NoError(t, err)
	require.Len(t, repo.entries, 1)
	assert.Equal(t, "create", repo.entries[0].Action)
	assert.JSONEq(t, `{"slot":"10:30"}`, string(repo.entries[0].Metadata))
}

// Callers fire and forget; a storage failure still has to leave a trace
// somewhere, so Log reports it on its own logger.
func TestLogReportsFailureOnLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	repo := &memAuditRepo{err: errors.New("audit table unavailable")}
	svc := NewService(repo, &logger)

	err := svc.Log(context.Background(), uuid.New(), "cancel", "encounter", uuid.New(), nil)
	require.Error(t, err)
	assert.Contains(t, buf.String(), "failed to write audit log entry")
	assert.Contains(t, buf.String(), "audit table unavailable")
}
