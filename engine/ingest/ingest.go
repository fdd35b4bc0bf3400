// Package ingest chunks documents into content units: it decodes each page,
// assembles text and image units, embeds them and writes them to the
// relational store and the vector index.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aitutor/pdf-tutor/engine/domain"
	"github.com/aitutor/pdf-tutor/engine/pdfdoc"
	"github.com/aitutor/pdf-tutor/engine/source"
	"github.com/aitutor/pdf-tutor/pkg/fn"
	"github.com/aitutor/pdf-tutor/pkg/metrics"
)

// MsgDocumentNotFound is the report error for an unknown document id.
const MsgDocumentNotFound = "document not found"

// Documents is the relational store as seen by the orchestrator.
type Documents interface {
	GetDocument(ctx context.Context, id string) (domain.Document, error)
	SetDocumentStatus(ctx context.Context, id string, status domain.DocumentStatus, pages, units int) error
	UpsertUnits(ctx context.Context, units []domain.ContentUnit) error
	PruneUnits(ctx context.Context, documentID string, keep []string) (int64, error)
}

// Index is the vector index as seen by the orchestrator.
type Index interface {
	DeleteByDocument(ctx context.Context, docID string) error
	Upsert(ctx context.Context, records []domain.EmbeddingRecord) error
}

// Deps holds the external dependencies for the chunking pipeline.
type Deps struct {
	Documents Documents
	Loader    source.Loader
	Index     Index
	// Embed vectors one unit's text. (*embed.Service).Stage provides it.
	Embed     fn.Stage[string, []float32]
	Assembler *Assembler
	// Workers bounds concurrent embedding calls.
	Workers int
	Metrics *metrics.Pipeline
	Logger  *slog.Logger
	Now     func() time.Time
}

// Orchestrator runs chunking jobs.
type Orchestrator struct {
	deps     Deps
	log      *slog.Logger
	pipeline fn.Stage[run, run]
}

// run is the state carried between pipeline stages.
type run struct {
	doc     domain.Document
	data    []byte
	pages   int
	units   []domain.ContentUnit
	vectors [][]float32
}

// New creates an Orchestrator.
func New(deps Deps) *Orchestrator {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Assembler == nil {
		deps.Assembler = &Assembler{Logger: deps.Logger, Metrics: deps.Metrics}
	}
	o := &Orchestrator{deps: deps, log: deps.Logger}
	o.pipeline = newPipeline(o)
	return o
}

// newPipeline composes load -> extract -> embed -> store with logging taps.
func newPipeline(o *Orchestrator) fn.Stage[run, run] {
	stage := func(name string, s fn.Stage[run, run]) fn.Stage[run, run] {
		return fn.Then(loggedTap(name, o.log), fn.TracedStage("ingest."+name, s))
	}
	loaded := stage("load", o.load)
	extracted := fn.Then(loaded, stage("extract", o.extract))
	embedded := fn.Then(extracted, stage("embed", o.embed))
	return fn.Then(embedded, stage("store", o.store))
}

// loggedTap logs entry into a stage.
func loggedTap(name string, log *slog.Logger) fn.Stage[run, run] {
	return fn.TapStage(func(_ context.Context, r run) {
		log.Debug("stage.enter", "stage", name, "doc_id", r.doc.ID)
	})
}

// Chunk rebuilds every unit of a document. Unreadable or unparsable input
// fails the whole run before anything is written; vision and embedding
// failures on single units do not.
func (o *Orchestrator) Chunk(ctx context.Context, docID string) domain.ChunkReport {
	start := time.Now()
	log := o.log.With("doc_id", docID)

	report := o.chunk(ctx, docID, log)
	o.deps.Metrics.ObserveChunk(report.Success, time.Since(start))
	if report.Success {
		log.Info("chunking complete", "units", report.TotalUnits, "pages", report.TotalPages, "duration", time.Since(start))
	} else {
		log.Error("chunking failed", "error", report.Error, "duration", time.Since(start))
	}
	return report
}

func (o *Orchestrator) chunk(ctx context.Context, docID string, log *slog.Logger) domain.ChunkReport {
	if err := domain.ValidateID("doc_id", docID); err != nil {
		return domain.ChunkReport{Error: err.Error()}
	}
	doc, err := o.deps.Documents.GetDocument(ctx, docID)
	if errors.Is(err, domain.ErrDocumentNotFound) {
		return domain.ChunkReport{Error: MsgDocumentNotFound}
	}
	if err != nil {
		return domain.ChunkReport{Error: fmt.Sprintf("load document record: %v", err)}
	}

	o.setStatus(ctx, log, docID, domain.StatusProcessing, 0, 0)
	result := o.pipeline(ctx, run{doc: doc})
	if result.IsErr() {
		o.setStatus(ctx, log, docID, domain.StatusFailed, 0, 0)
		return domain.ChunkReport{Error: fmt.Sprintf("failed to extract document units: %v", result.Reason())}
	}

	r := result.Must()
	o.setStatus(ctx, log, docID, domain.StatusReady, r.pages, len(r.units))
	return domain.ChunkReport{Success: true, TotalUnits: len(r.units), TotalPages: r.pages}
}

func (o *Orchestrator) setStatus(ctx context.Context, log *slog.Logger, id string, s domain.DocumentStatus, pages, units int) {
	if err := o.deps.Documents.SetDocumentStatus(ctx, id, s, pages, units); err != nil {
		log.Warn("set document status", "status", s, "error", err)
	}
}

// --- Pipeline Stages ---

func (o *Orchestrator) load(ctx context.Context, r run) fn.Result[run] {
	data, err := o.deps.Loader.Load(ctx, r.doc)
	if err != nil {
		return fn.Err[run](err)
	}
	r.data = data
	return fn.Ok(r)
}

// extract decodes every page in order and numbers units across the whole
// document.
func (o *Orchestrator) extract(ctx context.Context, r run) fn.Result[run] {
	doc, err := pdfdoc.Open(r.data)
	if err != nil {
		return fn.Err[run](err)
	}
	r.data = nil
	r.pages = doc.NumPages()

	var units []domain.ContentUnit
	for n := 1; n <= r.pages; n++ {
		if err := ctx.Err(); err != nil {
			return fn.Err[run](err)
		}
		page, err := doc.Page(n)
		if err != nil {
			return fn.Err[run](err)
		}
		pageUnits, err := o.deps.Assembler.Page(ctx, page, n)
		if err != nil {
			return fn.Err[run](fmt.Errorf("page %d: %w", n, err))
		}
		for _, pu := range pageUnits {
			u := domain.NewContentUnit(r.doc.ID, n, len(units), pu.Type, pu.Text, pu.Box)
			u.Degraded = pu.Degraded
			units = append(units, u)
		}
	}

	r.units = units
	var text, images int
	for _, u := range units {
		if u.Type == domain.UnitImage {
			images++
		} else {
			text++
		}
	}
	o.deps.Metrics.AddUnits(string(domain.UnitText), text)
	o.deps.Metrics.AddUnits(string(domain.UnitImage), images)
	o.log.Info("extracted units", "doc_id", r.doc.ID, "pages", r.pages, "text", text, "images", images)
	return fn.Ok(r)
}

// embed vectors every unit concurrently. A unit whose embedding fails is kept
// without a vector and is not searchable.
func (o *Orchestrator) embed(ctx context.Context, r run) fn.Result[run] {
	results := fn.ParMapResult(r.units, o.deps.Workers, func(u domain.ContentUnit) fn.Result[[]float32] {
		if strings.TrimSpace(u.Text) == "" {
			return fn.Err[[]float32](domain.ErrEmptyText)
		}
		return o.deps.Embed(ctx, u.Text)
	})

	r.vectors = make([][]float32, len(r.units))
	for i, res := range results {
		vec, err := res.Unwrap()
		if err != nil {
			if r.units[i].Degraded == "" {
				r.units[i].Degraded = "embed: " + err.Error()
			}
			if !errors.Is(err, domain.ErrEmptyText) {
				o.log.Warn("embedding failed", "doc_id", r.doc.ID, "unit_id", r.units[i].ID, "error", err)
			}
			o.deps.Metrics.Degraded("embed")
			continue
		}
		r.vectors[i] = vec
		r.units[i].EmbeddingVectorID = r.units[i].ID
	}
	return fn.Ok(r)
}

// store replaces the document's index entries and persists its units. Only
// the relational write is fatal.
func (o *Orchestrator) store(ctx context.Context, r run) fn.Result[run] {
	log := o.log.With("doc_id", r.doc.ID)

	if err := o.deps.Index.DeleteByDocument(ctx, r.doc.ID); err != nil {
		log.Warn("could not delete existing vectors", "error", err)
	}

	if err := o.deps.Documents.UpsertUnits(ctx, r.units); err != nil {
		return fn.Err[run](err)
	}
	keep := make([]string, len(r.units))
	for i, u := range r.units {
		keep[i] = u.ID
	}
	if n, err := o.deps.Documents.PruneUnits(ctx, r.doc.ID, keep); err != nil {
		log.Warn("could not prune stale units", "error", err)
	} else if n > 0 {
		log.Info("pruned stale units", "count", n)
	}

	createdAt := o.deps.Now().UTC()
	var records []domain.EmbeddingRecord
	for i, u := range r.units {
		if r.vectors[i] == nil {
			continue
		}
		records = append(records, domain.EmbeddingRecord{
			ID:       u.ID,
			Vector:   r.vectors[i],
			Metadata: domain.MetadataFor(u, r.doc.OriginalName, createdAt),
		})
	}
	if len(records) > 0 {
		if err := o.deps.Index.Upsert(ctx, records); err != nil {
			log.Error("vector upsert failed", "records", len(records), "error", err)
		}
	}
	return fn.Ok(r)
}
