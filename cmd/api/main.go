// Package main implements the tutor API server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/aitutor/pdf-tutor/cmd/internal/wire"
	"github.com/aitutor/pdf-tutor/engine/ingest"
	"github.com/aitutor/pdf-tutor/engine/source"
	"github.com/aitutor/pdf-tutor/pkg/config"
	"github.com/aitutor/pdf-tutor/pkg/mid"
	"github.com/aitutor/pdf-tutor/pkg/telemetry"
)

const (
	serviceName = "pdftutor-api"
	version     = "0.1.0"
)

func main() {
	cfg, err := config.Load()
	logger := wire.NewLogger(cfg.LogLevel)
	slog.SetDefault(logger)
	if err != nil {
		logger.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, telemetry.Options{
		Service:  serviceName,
		Version:  version,
		Endpoint: cfg.OTelEndpoint,
	})
	if err != nil {
		return err
	}
	defer shutdownTracing(context.Background())

	app, err := wire.Build(ctx, cfg, logger, wire.PartChunking|wire.PartRetrieval)
	if err != nil {
		return fmt.Errorf("build pipeline: %w", err)
	}
	defer app.Close()

	a := &api{
		docs:      app.Store,
		files:     app.Files,
		index:     app.Index,
		chunker:   app.Orchestrator,
		retriever: app.Retriever,
		tutor:     app.Tutor,
		logger:    logger,
	}

	// --- Optional job queue ---
	if cfg.NATSURL != "" {
		nc, err := nats.Connect(cfg.NATSURL, nats.Name(serviceName))
		if err != nil {
			return fmt.Errorf("nats connect: %w", err)
		}
		defer nc.Drain()
		a.enqueue = func(ctx context.Context, docID string) error {
			return ingest.Enqueue(ctx, nc, docID)
		}
		logger.Info("chunk jobs will be queued", "nats", cfg.NATSURL)
	}

	if cfg.MetricsPort > 0 {
		app.Registry.ServeAsync(cfg.MetricsPort, logger)
	}

	handler := mid.Chain(a.routes(),
		mid.Recover(logger),
		mid.OTel(serviceName),
		mid.Metrics(app.Metrics),
		mid.Logger(logger),
		mid.CORS(cfg.CORSOrigin),
		mid.MaxBody(source.MaxDocumentBytes+1<<20),
	)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	// --- Graceful shutdown ---
	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "port", cfg.Port, "version", version)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}
