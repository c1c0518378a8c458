// Package dispatch drives report delivery attempts: it hands pending
// dispatches to the delivery collaborator and records the outcome reported
// back, idempotently per dispatch identity.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicore/encounter-api/internal/email"
	"github.com/clinicore/encounter-api/internal/model"
	"github.com/clinicore/encounter-api/internal/repository"
	"github.com/clinicore/encounter-api/pkg/circuitbreaker"
	"github.com/clinicore/encounter-api/pkg/messaging"
)

type Service struct {
	repo    repository.DispatchRepository
	reports repository.ReportRepository
	sender  email.Sender
	broker  messaging.Broker
	breaker *circuitbreaker.CircuitBreaker
	logger  *zerolog.Logger
}

func NewService(repo repository.DispatchRepository, reports repository.ReportRepository, sender email.Sender, broker messaging.Broker, logger *zerolog.Logger) *Service {
	return &Service{
		repo:    repo,
		reports: reports,
		sender:  sender,
		broker:  broker,
		breaker: circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
			Name:        "report-delivery",
			MaxFailures: 5,
			Timeout:     30 * time.Second,
		}),
		logger: logger,
	}
}

// UpdateDeliveryStatus is the callback surface for the delivery
// collaborator. Keyed by dispatch identity and idempotent: re-reporting the
// current status is a no-op, and a delivered dispatch ignores later
// outcomes entirely.
func (s *Service) UpdateDeliveryStatus(ctx context.Context, id uuid.UUID, req *model.UpdateDispatchStatusRequest) (*model.ReportDispatch, error) {
	var errMsg *string
	if req.Error != "" {
		errMsg = &req.Error
	}

	if err := s.repo.UpdateStatus(ctx, id, req.Status, errMsg); err != nil {
		return nil, err
	}

	dispatch, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	s.publishEvent(ctx, dispatch)
	return dispatch, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*model.ReportDispatch, error) {
	return s.repo.Get(ctx, id)
}

// ProcessPending delivers up to limit pending dispatches and records the
// outcome of each attempt. Called from the worker loop; returns how many
// attempts were delivered and how many failed.
func (s *Service) ProcessPending(ctx context.Context, limit int) (delivered, failed int, err error) {
	pending, err := s.repo.ListPending(ctx, limit)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to list pending dispatches: %w", err)
	}

	for _, d := range pending {
		status := model.DeliveryStatusSent
		var errMsg *string

		if err := s.deliver(ctx, d); err != nil {
			s.logger.Error().Err(err).
				Str("dispatch_id", d.ID.String()).
				Str("method", string(d.Method)).
				Msg("dispatch delivery failed")
			status = model.DeliveryStatusFailed
			msg := err.Error()
			errMsg = &msg
		}

		if err := s.repo.UpdateStatus(ctx, d.ID, status, errMsg); err != nil {
			s.logger.Error().Err(err).
				Str("dispatch_id", d.ID.String()).
				Msg("failed to record dispatch outcome")
			continue
		}

		if status == model.DeliveryStatusSent {
			delivered++
		} else {
			failed++
		}
		d.Status = status
		s.publishEvent(ctx, d)
	}
	return delivered, failed, nil
}

func (s *Service) deliver(ctx context.Context, d *model.ReportDispatch) error {
	report, err := s.reports.Get(ctx, d.ReportID)
	if err != nil {
		return err
	}

	switch d.Method {
	case model.DeliveryEmail:
		subject := fmt.Sprintf("Medical report %s", report.ReportNumber)
		return s.breaker.Execute(func() error {
			return s.sender.Send(ctx, d.Recipient, subject, report.Content)
		})
	case model.DeliverySMS, model.DeliveryWhatsApp:
		return s.breaker.Execute(func() error {
			return s.broker.Publish(ctx, messaging.ChannelDispatchHandoff, messaging.HandoffMessage{
				DispatchID: d.ID.String(),
				Method:     string(d.Method),
				Recipient:  d.Recipient,
				Subject:    report.ReportNumber,
				Body:       fmt.Sprintf("Your medical report %s is ready.", report.ReportNumber),
			})
		})
	case model.DeliveryInPerson:
		// Nothing to transmit; the printed copy is handed over at the desk.
		return nil
	default:
		return fmt.Errorf("unsupported delivery method %q", d.Method)
	}
}

func (s *Service) publishEvent(ctx context.Context, d *model.ReportDispatch) {
	if s.broker == nil {
		return
	}
	event := messaging.DeliveryEvent{
		DispatchID: d.ID.String(),
		ReportID:   d.ReportID.String(),
		Method:     string(d.Method),
		Status:     string(d.Status),
	}
	if d.Error != nil {
		event.Error = *d.Error
	}
	if err := s.broker.Publish(ctx, messaging.ChannelDispatchDelivery, event); err != nil {
		s.logger.Warn().Err(err).
			Str("dispatch_id", d.ID.String()).
			Msg("failed to publish delivery event")
	}
}
