package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/clinicore/encounter-api/internal/config"
	"github.com/clinicore/encounter-api/internal/email"
	"github.com/clinicore/encounter-api/internal/repository/postgres"
	"github.com/clinicore/encounter-api/internal/service/dispatch"
	"github.com/clinicore/encounter-api/pkg/logger"
	"github.com/clinicore/encounter-api/pkg/messaging/redis"
	"github.com/clinicore/encounter-api/pkg/metrics"
	"github.com/clinicore/encounter-api/pkg/worker"
)

func setupHealthCheck(l *logger.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("/metrics", promhttp.Handler())

	go func() {
		if err := http.ListenAndServe(":8081", mux); err != nil {
			l.Fatal(err, "Health check server failed")
		}
	}()
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	l := logger.NewLogger(nil).WithFields(map[string]interface{}{"component": "dispatch-worker"})

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		l.Fatal(err, "failed to connect to database")
	}
	defer db.Close()

	broker, err := redis.NewRedisBroker(redis.Config{
		URL:          cfg.Redis.URL,
		MaxRetries:   cfg.Redis.MaxRetries,
		RetryBackoff: cfg.Redis.RetryBackoff,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
	}, l.Zerolog())
	if err != nil {
		l.Fatal(err, "failed to connect to Redis")
	}
	defer broker.Close()

	sender := email.NewSMTPSender(email.SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
	})

	dispatchRepo := postgres.NewDispatchRepository(db)
	reportRepo := postgres.NewReportRepository(db)
	dispatchSvc := dispatch.NewService(dispatchRepo, reportRepo, sender, broker, l.Zerolog())

	workerCfg, err := worker.DispatchProcessorConfigFromEnv()
	if err != nil {
		l.Fatal(err, "failed to load worker configuration")
	}

	m := metrics.NewMetrics("encounter_api", "worker")
	processor := worker.NewDispatchProcessor(dispatchSvc, workerCfg, l, m)

	setupHealthCheck(l)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go processor.Start(ctx)
	l.Info("dispatch worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	l.Info("shutting down dispatch worker...")
	cancel()
}
