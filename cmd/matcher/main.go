package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	httpadapter "github.com/healnet/donation-matching/internal/adapter/http"
	kafkaadapter "github.com/healnet/donation-matching/internal/adapter/kafka"
	"github.com/healnet/donation-matching/internal/bootstrap"
	"github.com/healnet/donation-matching/internal/config"
	"github.com/healnet/donation-matching/internal/observability"
	"github.com/healnet/donation-matching/internal/pipeline"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger, metrics)
	if err != nil {
		logger.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Error("database close error", "error", err)
		}
	}()

	srv := httpadapter.NewServer(cfg.HTTPAddr, app.Store, app.Matcher, app.Geocoder, logger)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	if cfg.BackfillEnabled {
		app.Backfill.Start(ctx)
	} else {
		logger.Info("geocoding backfill disabled")
	}

	var (
		reader     *kafkaadapter.Reader
		writer     *kafkaadapter.Writer
		streamDone = make(chan struct{})
	)
	if cfg.KafkaEnabled {
		reader = kafkaadapter.NewReader(cfg, logger)
		writer = kafkaadapter.NewWriter(cfg, logger)
		transformer := pipeline.NewTransformer(app.Matcher, app.Store, app.Clock, cfg.MatchMaxDistanceKm, cfg.MatchLimit, logger)
		p := pipeline.New(reader, transformer, writer, logger, metrics, cfg.BatchSize)

		go func() {
			defer close(streamDone)
			if err := p.Run(ctx); err != nil {
				logger.Error("match stream error", "error", err)
			}
		}()
		logger.Info("match stream enabled", "source", cfg.KafkaSourceTopic, "sink", cfg.KafkaSinkTopic)
	} else {
		close(streamDone)
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	if app.Backfill.Running() {
		app.Backfill.Stop()
		select {
		case <-app.Backfill.Done():
		case <-shutdownCtx.Done():
			logger.Warn("backfill worker did not stop before shutdown timeout")
		}
	}

	select {
	case <-streamDone:
	case <-shutdownCtx.Done():
		logger.Warn("match stream did not stop before shutdown timeout")
	}
	if reader != nil {
		if err := reader.Close(); err != nil {
			logger.Error("kafka reader close error", "error", err)
		}
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
