// Command chunker turns uploaded PDFs into indexed content units. It either
// consumes chunk jobs from NATS or, with -doc, chunks one document and exits.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/aitutor/pdf-tutor/cmd/internal/wire"
	"github.com/aitutor/pdf-tutor/engine/domain"
	"github.com/aitutor/pdf-tutor/engine/ingest"
	"github.com/aitutor/pdf-tutor/pkg/config"
	"github.com/aitutor/pdf-tutor/pkg/telemetry"
)

const serviceName = "pdftutor-chunker"

func main() {
	var (
		docID   = flag.String("doc", "", "chunk this document and exit")
		wait    = flag.Bool("wait", false, "with -doc, send the job to a running consumer and wait for its report")
		timeout = flag.Duration("timeout", 10*time.Minute, "how long -doc may take")
	)
	flag.Parse()

	cfg, err := config.Load()
	logger := wire.NewLogger(cfg.LogLevel)
	slog.SetDefault(logger)
	if err != nil {
		logger.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, telemetry.Options{Service: serviceName, Endpoint: cfg.OTelEndpoint})
	if err != nil {
		logger.Error("telemetry setup failed", "err", err)
		os.Exit(1)
	}
	defer shutdownTracing(context.Background())

	switch {
	case *docID != "" && *wait:
		err = remote(ctx, cfg, *docID, *timeout)
	case *docID != "":
		err = once(ctx, cfg, logger, *docID, *timeout)
	default:
		err = consume(ctx, cfg, logger)
	}
	if err != nil {
		logger.Error("chunker failed", "err", err)
		os.Exit(1)
	}
}

// once chunks a single document in-process.
func once(ctx context.Context, cfg config.Config, logger *slog.Logger, docID string, timeout time.Duration) error {
	app, err := wire.Build(ctx, cfg, logger, wire.PartChunking)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return report(app.Orchestrator.Chunk(ctx, docID))
}

// remote asks a running consumer to chunk docID and prints its report.
func remote(ctx context.Context, cfg config.Config, docID string, timeout time.Duration) error {
	if cfg.NATSURL == "" {
		return fmt.Errorf("-wait needs NATS_URL")
	}
	nc, err := nats.Connect(cfg.NATSURL, nats.Name(serviceName))
	if err != nil {
		return fmt.Errorf("nats connect: %w", err)
	}
	defer nc.Close()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	r, err := ingest.ChunkAndWait(ctx, nc, docID)
	if err != nil {
		return err
	}
	return report(r)
}

func report(r domain.ChunkReport) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(r)
	if !r.Success {
		return fmt.Errorf("chunking failed: %s", r.Error)
	}
	return nil
}

// consume runs the NATS job consumer until ctx is cancelled.
func consume(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	if cfg.NATSURL == "" {
		return fmt.Errorf("consumer mode needs NATS_URL (or pass -doc)")
	}
	app, err := wire.Build(ctx, cfg, logger, wire.PartChunking)
	if err != nil {
		return err
	}
	defer app.Close()

	if cfg.MetricsPort > 0 {
		app.Registry.ServeAsync(cfg.MetricsPort, logger)
	}

	nc, err := nats.Connect(cfg.NATSURL,
		nats.Name(serviceName),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", "err", err)
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return fmt.Errorf("nats connect: %w", err)
	}
	defer nc.Drain()

	sub, err := ingest.StartConsumer(nc, app.Orchestrator, logger)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	defer sub.Unsubscribe()

	logger.Info("chunker consuming", "subject", ingest.ChunkSubject, "nats", cfg.NATSURL)
	<-ctx.Done()
	logger.Info("shutdown signal received")
	return nil
}
