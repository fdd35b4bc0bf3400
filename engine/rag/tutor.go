package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/aitutor/pdf-tutor/engine/domain"
	"github.com/aitutor/pdf-tutor/pkg/llm"
)

// Documents looks up the document a question is about.
type Documents interface {
	GetDocument(ctx context.Context, id string) (domain.Document, error)
}

// Question is one chat turn from the viewer.
type Question struct {
	Message     string
	DocumentID  string
	CurrentPage int
	History     []llm.Message
}

// Citation points the viewer at a unit the answer was built from.
type Citation struct {
	UnitID     string             `json:"unit_id"`
	Type       domain.UnitType    `json:"type"`
	PageNumber int                `json:"page_number"`
	UnitIndex  int                `json:"unit_index"`
	Box        domain.BoundingBox `json:"bbox"`
	Text       string             `json:"text"`
	Score      float32            `json:"score"`
}

// Answer is the tutor's reply.
type Answer struct {
	Text       string     `json:"text"`
	Citations  []Citation `json:"citations"`
	DocumentID string     `json:"doc_id"`
	TotalPages int        `json:"total_pages"`
	Query      string     `json:"query"`
	// SearchFailed is set when the answer was produced without context
	// because retrieval failed.
	SearchFailed bool `json:"search_failed,omitempty"`
}

// Tutor answers questions about one document.
type Tutor struct {
	docs      Documents
	retriever *Retriever
	sanitizer *Sanitizer
	chat      llm.Chatter
	opts      Options
	logger    *slog.Logger
}

// NewTutor creates a Tutor. A nil sanitizer passes hits through untouched.
func NewTutor(docs Documents, retriever *Retriever, sanitizer *Sanitizer, chat llm.Chatter, opts Options, logger *slog.Logger) *Tutor {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.ChatTopK == 0 {
		opts.ChatTopK = domain.DefaultTopK
	}
	return &Tutor{docs: docs, retriever: retriever, sanitizer: sanitizer, chat: chat, opts: opts, logger: logger}
}

// Ask answers q. A missing document or an invalid question is an error;
// a retrieval failure is not, the answer is then built without context.
func (t *Tutor) Ask(ctx context.Context, q Question) (*Answer, error) {
	message, err := domain.ValidateQuery(q.Message)
	if err != nil {
		return nil, err
	}
	if err := domain.ValidateID("doc_id", q.DocumentID); err != nil {
		return nil, err
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "rag.ask")
	defer span.End()
	span.SetAttributes(attribute.String("rag.doc_id", q.DocumentID), attribute.Int("rag.current_page", q.CurrentPage))

	doc, err := t.docs.GetDocument(ctx, q.DocumentID)
	if err != nil {
		return nil, err
	}

	results, err := t.retriever.Retrieve(ctx, message, doc.ID, t.opts.ChatTopK)
	searchOK := err == nil
	if !searchOK {
		t.logger.Warn("tutor answering without context", "doc_id", doc.ID, "err", err)
	} else if t.sanitizer != nil && len(results) > 0 {
		results = t.sanitizer.Sanitize(ctx, message, results)
	}

	pdfText := documentContext(doc.OriginalName, results, searchOK)
	msgs := make([]llm.Message, 0, len(q.History)+2)
	msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: tutorSystemPrompt(doc.OriginalName, pdfText, q.CurrentPage)})
	msgs = append(msgs, history(q.History)...)
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: message})

	reply, err := t.chat.Chat(ctx, llm.ChatRequest{
		Model:       t.opts.ChatModel,
		Messages:    msgs,
		Temperature: t.opts.ChatTemperature,
		MaxTokens:   t.opts.MaxTokens,
	})
	switch {
	case errors.Is(err, llm.ErrEmptyResponse):
		reply = ""
	case err != nil:
		return nil, fmt.Errorf("rag: chat: %w", err)
	}
	if strings.TrimSpace(reply) == "" {
		reply = FallbackAnswer
	}

	t.logger.Info("tutor answered", "doc_id", doc.ID, "citations", len(results), "search_ok", searchOK)
	return &Answer{
		Text:         reply,
		Citations:    citations(results),
		DocumentID:   doc.ID,
		TotalPages:   doc.TotalPages,
		Query:        message,
		SearchFailed: !searchOK,
	}, nil
}

// history keeps user and assistant turns; anything else could smuggle in a
// second system prompt.
func history(in []llm.Message) []llm.Message {
	out := make([]llm.Message, 0, len(in))
	for _, m := range in {
		if m.Role != llm.RoleUser && m.Role != llm.RoleAssistant {
			continue
		}
		out = append(out, m)
	}
	return out
}

func citations(results []domain.RetrievalResult) []Citation {
	out := make([]Citation, len(results))
	for i, r := range results {
		out[i] = Citation{
			UnitID:     r.Unit.ID,
			Type:       r.Unit.Type,
			PageNumber: r.Unit.PageNumber,
			UnitIndex:  r.Unit.UnitIndex,
			Box:        r.Unit.BoundingBox,
			Text:       r.Unit.Text,
			Score:      r.Score,
		}
	}
	return out
}
