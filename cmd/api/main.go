package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/clinicore/encounter-api/internal/config"
	"github.com/clinicore/encounter-api/internal/email"
	"github.com/clinicore/encounter-api/internal/handler"
	auditHandler "github.com/clinicore/encounter-api/internal/handler/audit"
	authHandler "github.com/clinicore/encounter-api/internal/handler/auth"
	dispatchHandler "github.com/clinicore/encounter-api/internal/handler/dispatch"
	encounterHandler "github.com/clinicore/encounter-api/internal/handler/encounter"
	referralHandler "github.com/clinicore/encounter-api/internal/handler/referral"
	reportHandler "github.com/clinicore/encounter-api/internal/handler/report"
	"github.com/clinicore/encounter-api/internal/middleware"
	"github.com/clinicore/encounter-api/internal/repository"
	"github.com/clinicore/encounter-api/internal/repository/postgres"
	"github.com/clinicore/encounter-api/internal/router"
	auditService "github.com/clinicore/encounter-api/internal/service/audit"
	"github.com/clinicore/encounter-api/internal/service/billing"
	dispatchService "github.com/clinicore/encounter-api/internal/service/dispatch"
	encounterService "github.com/clinicore/encounter-api/internal/service/encounter"
	referralService "github.com/clinicore/encounter-api/internal/service/referral"
	reportService "github.com/clinicore/encounter-api/internal/service/report"
	"github.com/clinicore/encounter-api/pkg/auth"
	"github.com/clinicore/encounter-api/pkg/messaging/redis"
	"github.com/clinicore/encounter-api/pkg/signing"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	// Repositories
	encounterRepo := postgres.NewEncounterRepository(db)
	referralRepo := postgres.NewReferralRepository(db)
	reportRepo := postgres.NewReportRepository(db)
	dispatchRepo := postgres.NewDispatchRepository(db)
	auditRepo := postgres.NewAuditRepository(db)
	directoryRepo := repository.NewCachedDirectory(postgres.NewDirectoryRepository(db), cfg.Directory.CacheTTL)

	// Message broker for dispatch events
	broker, err := redis.NewRedisBroker(redis.Config{
		URL:          cfg.Redis.URL,
		MaxRetries:   cfg.Redis.MaxRetries,
		RetryBackoff: cfg.Redis.RetryBackoff,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
	}, &log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to Redis")
	}
	defer broker.Close()

	sender := email.NewSMTPSender(email.SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
	})

	// Services
	auditor := auditService.NewService(auditRepo, &log.Logger)
	finalizer := billing.NewFinalizer(directoryRepo)
	encounterSvc := encounterService.NewService(encounterRepo, referralRepo, directoryRepo, finalizer, auditor)
	referralSvc := referralService.NewService(referralRepo, directoryRepo, auditor)
	reportSvc := reportService.NewService(reportRepo, dispatchRepo, encounterRepo, directoryRepo, signing.NewPEMValidator(), auditor)
	dispatchSvc := dispatchService.NewService(dispatchRepo, reportRepo, sender, broker, &log.Logger)

	jwtSvc := auth.NewJWTService(cfg.JWT.Secret, time.Duration(cfg.JWT.ExpiryHours)*time.Hour)
	authMiddleware := middleware.NewAuthMiddleware(jwtSvc)

	// Handlers
	handler.RegisterValidators()
	h := handler.NewHandler(db)
	r := router.NewRouter(
		authMiddleware,
		authHandler.NewHandler(cfg.Auth, jwtSvc),
		encounterHandler.NewHandler(encounterSvc),
		referralHandler.NewHandler(referralSvc),
		reportHandler.NewHandler(reportSvc),
		dispatchHandler.NewHandler(dispatchSvc),
		auditHandler.NewHandler(auditor),
		h,
		router.RouterConfig{
			RateLimitRPS:  cfg.RateLimit.RequestsPerSecond,
			RateBurst:     cfg.RateLimit.Burst,
			Timeout:       time.Duration(cfg.Server.TimeoutSeconds) * time.Second,
			CORSConfig:    middleware.DefaultCORSConfig(),
			MetricsPrefix: "encounter_api",
		},
	)
	r.Setup()

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: r.Engine(),
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()
	log.Info().Int("port", cfg.Server.Port).Msg("server started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server exited properly")
}
