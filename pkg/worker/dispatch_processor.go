package worker

import (
	"context"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/clinicore/encounter-api/pkg/logger"
	"github.com/clinicore/encounter-api/pkg/metrics"
)

// Processor is the unit of work the poll loop drives on each tick.
type Processor interface {
	ProcessPending(ctx context.Context, limit int) (delivered, failed int, err error)
}

type DispatchProcessorConfig struct {
	BatchSize     int           `envconfig:"WORKER_BATCH_SIZE" default:"50"`
	PollInterval  time.Duration `envconfig:"WORKER_POLL_INTERVAL" default:"5s"`
	RetryAttempts int           `envconfig:"WORKER_RETRY_ATTEMPTS" default:"3"`
	RetryDelay    time.Duration `envconfig:"WORKER_RETRY_DELAY" default:"2s"`
}

// DispatchProcessorConfigFromEnv reads the processor settings from the
// environment, falling back to the struct defaults.
func DispatchProcessorConfigFromEnv() (DispatchProcessorConfig, error) {
	var cfg DispatchProcessorConfig
	err := envconfig.Process("", &cfg)
	return cfg, err
}

type DispatchProcessor struct {
	processor Processor
	config    DispatchProcessorConfig
	logger    *logger.Logger
	metrics   *metrics.Metrics
}

func NewDispatchProcessor(
	processor Processor,
	config DispatchProcessorConfig,
	logger *logger.Logger,
	metrics *metrics.Metrics,
) *DispatchProcessor {
	if config.BatchSize <= 0 {
		panic("BatchSize must be greater than 0")
	}
	if config.PollInterval <= 0 {
		panic("PollInterval must be greater than 0")
	}
	if config.RetryAttempts <= 0 {
		panic("RetryAttempts must be greater than 0")
	}
	if config.RetryDelay <= 0 {
		panic("RetryDelay must be greater than 0")
	}

	return &DispatchProcessor{
		processor: processor,
		config:    config,
		logger:    logger,
		metrics:   metrics,
	}
}

func (p *DispatchProcessor) Start(ctx context.Context) {
	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	p.logger.Info("Starting dispatch processor")

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Shutting down dispatch processor")
			return
		case <-ticker.C:
			if err := p.processBatch(ctx); err != nil {
				p.logger.Error(err, "Failed to process dispatch batch")
			}
		}
	}
}

func (p *DispatchProcessor) processBatch(ctx context.Context) error {
	timer := prometheus.NewTimer(p.metrics.DispatchProcessingLatency)
	defer timer.ObserveDuration()

	return retry(p.config.RetryAttempts, p.config.RetryDelay, func() error {
		delivered, failed, err := p.processor.ProcessPending(ctx, p.config.BatchSize)
		if err != nil {
			return err
		}
		p.metrics.DispatchesProcessed.Add(float64(delivered))
		p.metrics.DispatchesFailed.Add(float64(failed))
		return nil
	})
}

func retry(attempts int, delay time.Duration, fn func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i < attempts-1 {
			time.Sleep(delay)
		}
	}
	return err
}
