package rag

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/aitutor/pdf-tutor/engine/domain"
	"github.com/aitutor/pdf-tutor/pkg/fn"
	"github.com/aitutor/pdf-tutor/pkg/llm"
	"github.com/aitutor/pdf-tutor/pkg/metrics"
)

// Verdict is the sanitizer's decision for one hit.
type Verdict string

const (
	VerdictKept    Verdict = "kept"
	VerdictTrimmed Verdict = "trimmed"
	VerdictDropped Verdict = "dropped"
	// VerdictFailed keeps the original text after a model error.
	VerdictFailed Verdict = "failed"
)

// Sanitizer trims retrieval hits to the span relevant to a query with one
// chat call per hit.
type Sanitizer struct {
	chat    llm.Chatter
	opts    Options
	metrics *metrics.Pipeline
	logger  *slog.Logger
}

// NewSanitizer creates a Sanitizer. m may be nil.
func NewSanitizer(chat llm.Chatter, opts Options, m *metrics.Pipeline, logger *slog.Logger) *Sanitizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sanitizer{chat: chat, opts: opts, metrics: m, logger: logger}
}

type sanitized struct {
	result  domain.RetrievalResult
	verdict Verdict
}

// Sanitize runs every hit through the model concurrently and returns the
// survivors in input order with their text replaced by the model's. Hits the
// model rejects are dropped; hits whose call fails keep their original text.
func (s *Sanitizer) Sanitize(ctx context.Context, query string, results []domain.RetrievalResult) []domain.RetrievalResult {
	checked := fn.ParMap(results, s.opts.Workers, func(r domain.RetrievalResult) sanitized {
		return s.one(ctx, query, r)
	})

	out := make([]domain.RetrievalResult, 0, len(checked))
	for _, c := range checked {
		s.metrics.Sanitized(string(c.verdict))
		if c.verdict == VerdictDropped {
			continue
		}
		out = append(out, c.result)
	}
	s.logger.Debug("sanitized results", "in", len(results), "out", len(out))
	return out
}

func (s *Sanitizer) one(ctx context.Context, query string, r domain.RetrievalResult) sanitized {
	text, err := s.Check(ctx, query, r.Unit.Text).Unwrap()
	if err != nil {
		s.logger.Warn("sanitizer failed, keeping original text", "unit_id", r.Unit.ID, "err", err)
		return sanitized{result: r, verdict: VerdictFailed}
	}
	switch {
	case strings.TrimSpace(text) == RejectToken:
		return sanitized{result: r, verdict: VerdictDropped}
	case text == r.Unit.Text:
		return sanitized{result: r, verdict: VerdictKept}
	}
	r.Unit = r.Unit.WithText(text)
	return sanitized{result: r, verdict: VerdictTrimmed}
}

// Check asks the model for the part of text relevant to query. An empty
// answer yields text unchanged; a failed call is an Err result.
func (s *Sanitizer) Check(ctx context.Context, query, text string) fn.Result[string] {
	out, err := s.chat.Chat(ctx, llm.ChatRequest{
		Model: s.opts.SanitizeModel,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: sanitizeSystemPrompt},
			{Role: llm.RoleUser, Content: sanitizeUserPrompt(query, text)},
		},
		Temperature: s.opts.SanitizeTemperature,
		MaxTokens:   s.opts.MaxTokens,
	})
	switch {
	case errors.Is(err, llm.ErrEmptyResponse):
		return fn.Ok(text)
	case err != nil:
		return fn.Err[string](err)
	case strings.TrimSpace(out) == "":
		return fn.Ok(text)
	}
	return fn.Ok(out)
}
