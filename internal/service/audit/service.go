package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicore/encounter-api/internal/model"
	"github.com/clinicore/encounter-api/internal/repository"
)

type Service struct {
	repo   repository.AuditRepository
	logger *zerolog.Logger
}

func NewService(repo repository.AuditRepository, logger *zerolog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

type LogOptions struct {
	Changes  interface{}
	Metadata interface{}
}

// Log creates an audit log entry. Audit failures never fail the command
// that triggered them: Log records the failure on its own logger and
// callers discard the returned error.
func (s *Service) Log(ctx context.Context, actorID uuid.UUID, action, entityType string, entityID uuid.UUID, opts *LogOptions) error {
	var changes, metadata json.RawMessage
	var err error

	if opts != nil {
		if opts.Changes != nil {
			changes, err = json.Marshal(opts.Changes)
			if err != nil {
				return s.logFailure(action, entityType, entityID, err)
			}
		}
		if opts.Metadata != nil {
			metadata, err = json.Marshal(opts.Metadata)
			if err != nil {
				return s.logFailure(action, entityType, entityID, err)
			}
		}
	}

	entry := &model.AuditLog{
		ID:         uuid.New(),
		ActorID:    actorID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Changes:    changes,
		Metadata:   metadata,
		CreatedAt:  time.Now(),
	}

	if err := s.repo.Create(ctx, entry); err != nil {
		return s.logFailure(action, entityType, entityID, err)
	}
	return nil
}

func (s *Service) logFailure(action, entityType string, entityID uuid.UUID, err error) error {
	s.logger.Error().Err(err).
		Str("action", action).
		Str("entity_type", entityType).
		Str("entity_id", entityID.String()).
		Msg("failed to write audit log entry")
	return err
}

func (s *Service) List(ctx context.Context, entityType string, entityID uuid.UUID) ([]*model.AuditLog, error) {
	return s.repo.List(ctx, entityType, entityID)
}
