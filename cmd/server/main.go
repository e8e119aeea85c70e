// Package main is the entry point for the backtest HTTP service.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristath/etf-backtester/internal/config"
	"github.com/aristath/etf-backtester/internal/database"
	"github.com/aristath/etf-backtester/internal/events"
	"github.com/aristath/etf-backtester/internal/metrics"
	"github.com/aristath/etf-backtester/internal/modules/backtest"
	"github.com/aristath/etf-backtester/internal/modules/backtest/handlers"
	"github.com/aristath/etf-backtester/internal/modules/marketdata"
	"github.com/aristath/etf-backtester/internal/scheduler"
	"github.com/aristath/etf-backtester/internal/server"
	"github.com/aristath/etf-backtester/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{
			Level:  "info",
			Pretty: true,
		})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})

	log.Info().Str("data_dir", cfg.DataDir).Msg("Starting ETF backtester")

	db, err := database.New(database.Config{
		Path:    cfg.DatabasePath(),
		Profile: database.ProfileDurable,
		Name:    "backtests",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to apply database schema")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Bucket data source is optional
	var bucket *marketdata.BucketSource
	if cfg.R2.Configured() {
		client, err := marketdata.NewR2Client(ctx, cfg.R2, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create R2 client")
		}
		bucket = marketdata.NewBucketSource(client, cfg.R2Prefix, log)
		log.Info().Str("bucket", cfg.R2.BucketName).Str("prefix", cfg.R2Prefix).Msg("Bucket data source configured")
	} else {
		log.Info().Msg("R2 credentials not configured - bucket data source disabled")
	}

	loader := marketdata.NewLoader(marketdata.NewHTTPSource(cfg.HTTPDataTimeout, log), bucket, cfg.DefaultDataURL, log)
	bus := events.NewBus(log)
	recorder := metrics.NewRecorder()

	manager := backtest.NewManager(backtest.ManagerConfig{
		MaxActive:   cfg.MaxConcurrentBacktests,
		MaxStepDays: cfg.MaxStepDays,
	}, backtest.NewRepository(db.Conn(), log), loader, bus, recorder, log)

	sched := scheduler.New(log)
	if err := sched.AddJob(cfg.HibernateSchedule, scheduler.NewHibernateIdleJob(manager, cfg.HibernateAfter, log)); err != nil {
		log.Fatal().Err(err).Msg("Failed to register hibernate job")
	}
	if cfg.AutoStepSchedule != "" {
		job := scheduler.NewAutoStepJob(manager, cfg.AutoStepDays, time.Minute, log)
		if err := sched.AddJob(cfg.AutoStepSchedule, job); err != nil {
			log.Fatal().Err(err).Msg("Failed to register auto-step job")
		}
	}
	if err := sched.AddJob("@hourly", scheduler.NewCheckWALCheckpointsJob(log, db)); err != nil {
		log.Fatal().Err(err).Msg("Failed to register WAL checkpoint job")
	}
	sched.Start()

	srv := server.New(server.Config{
		Log:      log,
		DB:       db,
		Bus:      bus,
		Metrics:  recorder,
		Sessions: manager,
		Modules:  []server.RouteRegistrar{handlers.NewHandler(manager, bus, log)},
		Port:     cfg.Port,
		DevMode:  cfg.DevMode,
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	sched.Stop()

	// Every step batch is already committed; nothing else to flush
	log.Info().Int("sessions", manager.SessionCount()).Msg("Server stopped")
}
