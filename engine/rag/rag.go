// Package rag answers questions against chunked documents. It embeds the
// query, searches the vector index, optionally trims each hit down to the
// span relevant to the query, and builds the tutor prompt around what is
// left.
package rag

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/aitutor/pdf-tutor/engine/domain"
	"github.com/aitutor/pdf-tutor/pkg/metrics"
)

const tracerName = "github.com/aitutor/pdf-tutor/engine/rag"

// Embedder turns the query into a vector. *embed.Service satisfies it.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Searcher abstracts the vector index search.
type Searcher interface {
	Search(ctx context.Context, vector []float32, filter domain.SearchFilter, topK int) ([]domain.RetrievalResult, error)
}

// Options configures retrieval and the model calls made on top of it.
type Options struct {
	SearchTimeout time.Duration
	// ChatModel and SanitizeModel override the provider's default model.
	ChatModel           string
	SanitizeModel       string
	ChatTemperature     float32
	SanitizeTemperature float32
	MaxTokens           int
	// Workers bounds concurrent sanitizer calls. <= 0 means unbounded.
	Workers int
	// ChatTopK is how many hits a tutor answer is built from.
	ChatTopK int
}

// DefaultOptions returns the tutor defaults.
func DefaultOptions() Options {
	return Options{
		SearchTimeout:       10 * time.Second,
		ChatTemperature:     0.5,
		SanitizeTemperature: 0.1,
		MaxTokens:           1000,
		Workers:             8,
		ChatTopK:            domain.DefaultTopK,
	}
}

// Retriever runs query embedding and vector search.
type Retriever struct {
	embed   Embedder
	index   Searcher
	timeout time.Duration
	metrics *metrics.Pipeline
	logger  *slog.Logger
}

// NewRetriever creates a Retriever. m may be nil.
func NewRetriever(embed Embedder, index Searcher, opts Options, m *metrics.Pipeline, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{embed: embed, index: index, timeout: opts.SearchTimeout, metrics: m, logger: logger}
}

// Retrieve returns at most topK units ranked by descending similarity to
// query, restricted to docID when it is non-empty. topK 0 means
// domain.DefaultTopK. Input problems come back as *domain.ValidationError;
// embedding or search failures wrap domain.ErrRetrieval. No hits is an
// empty slice and a nil error.
func (r *Retriever) Retrieve(ctx context.Context, query, docID string, topK int) ([]domain.RetrievalResult, error) {
	query, err := domain.ValidateQuery(query)
	if err != nil {
		return nil, err
	}
	k, err := domain.NormalizeTopK(topK)
	if err != nil {
		return nil, err
	}
	if docID != "" {
		if err := domain.ValidateID("doc_id", docID); err != nil {
			return nil, err
		}
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "rag.retrieve")
	defer span.End()
	span.SetAttributes(attribute.String("rag.doc_id", docID), attribute.Int("rag.top_k", k))

	start := time.Now()
	results, err := r.retrieve(ctx, query, docID, k)
	r.metrics.ObserveRetrieval(err == nil, time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.logger.Warn("retrieval failed", "doc_id", docID, "err", err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("rag.results", len(results)))
	r.logger.Debug("retrieval done", "doc_id", docID, "results", len(results))
	return results, nil
}

func (r *Retriever) retrieve(ctx context.Context, query, docID string, k int) ([]domain.RetrievalResult, error) {
	vec, err := r.embed.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("rag: embed query: %w: %w", domain.ErrRetrieval, err)
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	hits, err := r.index.Search(ctx, vec, domain.SearchFilter{DocumentID: docID}, k)
	if err != nil {
		return nil, fmt.Errorf("rag: search: %w: %w", domain.ErrRetrieval, err)
	}
	return rank(hits, docID, k), nil
}

// rank drops hits from other documents, orders by descending score and
// caps the list at k. Backends already do this; the retriever does not
// rely on it.
func rank(hits []domain.RetrievalResult, docID string, k int) []domain.RetrievalResult {
	out := make([]domain.RetrievalResult, 0, len(hits))
	for _, h := range hits {
		if docID != "" && h.Unit.DocumentID != docID {
			continue
		}
		out = append(out, h)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > k {
		out = out[:k]
	}
	return out
}
