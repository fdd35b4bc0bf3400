// Command setup-index creates the vector collection and the relational
// tables if they are missing, then prints the index description.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/aitutor/pdf-tutor/cmd/internal/wire"
	"github.com/aitutor/pdf-tutor/pkg/config"
)

func main() {
	withStore := flag.Bool("store", true, "also migrate the relational store")
	timeout := flag.Duration("timeout", 30*time.Second, "setup timeout")
	flag.Parse()

	cfg, err := config.Load()
	logger := wire.NewLogger(cfg.LogLevel)
	slog.SetDefault(logger)
	if err != nil {
		logger.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	parts := wire.PartIndex
	if *withStore {
		parts |= wire.PartStore
	}
	// Build runs EnsureReady on the index and AutoMigrate on the store.
	app, err := wire.Build(ctx, cfg, logger, parts)
	if err != nil {
		logger.Error("setup failed", "err", err)
		os.Exit(1)
	}
	defer app.Close()

	info, err := app.Index.Info(ctx)
	if err != nil {
		logger.Error("describe index failed", "err", err)
		os.Exit(1)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(info)
}
