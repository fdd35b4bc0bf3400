// Package wire builds the pipeline components the binaries share from one
// config.Config.
package wire

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/aitutor/pdf-tutor/engine/embed"
	"github.com/aitutor/pdf-tutor/engine/ingest"
	"github.com/aitutor/pdf-tutor/engine/layout"
	"github.com/aitutor/pdf-tutor/engine/rag"
	"github.com/aitutor/pdf-tutor/engine/semantic"
	"github.com/aitutor/pdf-tutor/engine/source"
	"github.com/aitutor/pdf-tutor/engine/store"
	"github.com/aitutor/pdf-tutor/engine/vision"
	"github.com/aitutor/pdf-tutor/pkg/config"
	"github.com/aitutor/pdf-tutor/pkg/metrics"
)

// remoteTimeout bounds fetching a URL-backed document.
const remoteTimeout = 60 * time.Second

// App holds every component a binary may need. Fields are nil until the
// matching With* option asks for them.
type App struct {
	Config   config.Config
	Logger   *slog.Logger
	Registry *metrics.Registry
	Metrics  *metrics.Pipeline

	Store  *store.Store
	Files  *source.Files
	Index  semantic.Index
	Models *Models
	Embed  *embed.Service

	Orchestrator *ingest.Orchestrator
	Retriever    *rag.Retriever
	Sanitizer    *rag.Sanitizer
	Tutor        *rag.Tutor

	closers []func() error
}

// Part selects what Build constructs.
type Part int

const (
	// PartIndex connects the vector index.
	PartIndex Part = 1 << iota
	// PartStore opens and migrates the relational store.
	PartStore
	// PartChunking builds the orchestrator (implies store, index, models).
	PartChunking
	// PartRetrieval builds retriever, sanitizer and tutor (implies store, index, models).
	PartRetrieval
)

// Build constructs the requested parts. On error everything opened so far
// is closed.
func Build(ctx context.Context, cfg config.Config, log *slog.Logger, parts Part) (app *App, err error) {
	if log == nil {
		log = slog.Default()
	}
	reg := metrics.New()
	app = &App{Config: cfg, Logger: log, Registry: reg, Metrics: metrics.NewPipeline(reg)}
	defer func() {
		if err != nil {
			app.Close()
			app = nil
		}
	}()

	if parts&(PartChunking|PartRetrieval) != 0 {
		parts |= PartIndex | PartStore
		if app.Models, err = NewModels(ctx, cfg, log); err != nil {
			return app, err
		}
		app.closers = append(app.closers, app.Models.Close)
		app.Embed = embed.New(app.Models.Embedder, cfg.VectorDims)
	}
	if parts&PartStore != 0 {
		if err = app.openStore(cfg); err != nil {
			return app, err
		}
	}
	if parts&PartIndex != 0 {
		if err = app.openIndex(ctx, cfg); err != nil {
			return app, err
		}
	}
	if parts&PartChunking != 0 {
		app.buildChunking(cfg)
	}
	if parts&PartRetrieval != 0 {
		app.buildRetrieval(cfg)
	}
	return app, nil
}

func (a *App) openStore(cfg config.Config) error {
	db, err := store.Open(cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		a.closers = append(a.closers, sqlDB.Close)
	}
	if err := store.AutoMigrate(db); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	a.Store = store.New(db)

	files, err := source.NewFiles(cfg.UploadDir)
	if err != nil {
		return err
	}
	a.Files = files
	return nil
}

func (a *App) openIndex(ctx context.Context, cfg config.Config) error {
	if cfg.VectorBackend == config.BackendMemory {
		a.Index = semantic.NewMemoryIndex(cfg.QdrantCollection, cfg.VectorDims)
		a.Logger.Warn("using in-memory vector index; vectors are lost on exit")
		return nil
	}
	vs, err := semantic.New(cfg.QdrantAddr, cfg.QdrantCollection, cfg.VectorDims)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, vs.Close)
	if err := vs.EnsureReady(ctx); err != nil {
		return err
	}
	a.Index = vs
	a.Logger.Info("connected to qdrant", "addr", cfg.QdrantAddr, "collection", cfg.QdrantCollection, "dims", cfg.VectorDims)
	return nil
}

func (a *App) buildChunking(cfg config.Config) {
	describer := vision.New(a.Models.Describer, vision.WithLogger(a.Logger))
	a.Orchestrator = ingest.New(ingest.Deps{
		Documents: a.Store,
		Loader:    source.Router{Local: a.Files, Remote: source.NewHTTP(remoteTimeout)},
		Index:     a.Index,
		Embed:     a.Embed.Stage(),
		Assembler: &ingest.Assembler{
			Lines:        layout.LineOptions{MaxChars: cfg.MaxChars, LineGap: cfg.LineGap},
			ImageTimeout: cfg.ImageTimeout,
			Describer:    describer,
			Workers:      cfg.ModelConcurrency,
			Metrics:      a.Metrics,
			Logger:       a.Logger,
		},
		Workers: cfg.ModelConcurrency,
		Metrics: a.Metrics,
		Logger:  a.Logger,
	})
}

func (a *App) buildRetrieval(cfg config.Config) {
	opts := RAGOptions(cfg)
	a.Retriever = rag.NewRetriever(a.Embed, a.Index, opts, a.Metrics, a.Logger)
	a.Sanitizer = rag.NewSanitizer(a.Models.Chatter, opts, a.Metrics, a.Logger)
	a.Tutor = rag.NewTutor(a.Store, a.Retriever, a.Sanitizer, a.Models.Chatter, opts, a.Logger)
}

// RAGOptions maps configuration onto rag.Options.
func RAGOptions(cfg config.Config) rag.Options {
	opts := rag.DefaultOptions()
	opts.ChatModel = cfg.ChatModel
	opts.SanitizeModel = cfg.SanitizeModel
	if opts.SanitizeModel == "" {
		opts.SanitizeModel = cfg.ChatModel
	}
	if cfg.ModelConcurrency > 0 {
		opts.Workers = cfg.ModelConcurrency
	}
	return opts
}

// Close releases everything Build opened, last opened first.
func (a *App) Close() error {
	if a == nil {
		return nil
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// NewLogger returns the JSON logger the binaries share. Unknown levels
// fall back to info.
func NewLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
