package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/aitutor/pdf-tutor/engine/domain"
	"github.com/aitutor/pdf-tutor/engine/ingest"
	"github.com/aitutor/pdf-tutor/engine/rag"
	"github.com/aitutor/pdf-tutor/engine/source"
	"github.com/aitutor/pdf-tutor/pkg/llm"
	"github.com/aitutor/pdf-tutor/pkg/repo"
)

// sniffLen is how much of an upload is read to detect its type.
const sniffLen = 3072

// --- Dependencies ---

type documentStore interface {
	CreateDocument(ctx context.Context, d domain.Document) (domain.Document, error)
	GetDocument(ctx context.Context, id string) (domain.Document, error)
	ListDocuments(ctx context.Context, ownerID string) ([]domain.Document, error)
	DeleteDocument(ctx context.Context, id string) error
	GetUnit(ctx context.Context, id string) (domain.ContentUnit, error)
	ListUnits(ctx context.Context, documentID string) ([]domain.ContentUnit, error)
}

type fileStore interface {
	Save(ctx context.Context, id string, r io.Reader) (string, int64, error)
	Remove(id string) error
}

type vectorDeleter interface {
	DeleteByDocument(ctx context.Context, docID string) error
}

type chunker interface {
	Chunk(ctx context.Context, docID string) domain.ChunkReport
}

type retriever interface {
	Retrieve(ctx context.Context, query, docID string, topK int) ([]domain.RetrievalResult, error)
}

type tutor interface {
	Ask(ctx context.Context, q rag.Question) (*rag.Answer, error)
}

// api holds the handler dependencies. enqueue is nil when no job queue is
// configured; async chunk requests then run inline.
type api struct {
	docs      documentStore
	files     fileStore
	index     vectorDeleter
	chunker   chunker
	enqueue   func(ctx context.Context, docID string) error
	retriever retriever
	tutor     tutor
	logger    *slog.Logger
}

func (a *api) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", handleHealth)
	mux.HandleFunc("POST /api/documents", a.handleUpload)
	mux.HandleFunc("GET /api/documents", a.handleListDocuments)
	mux.HandleFunc("GET /api/documents/{id}", a.handleGetDocument)
	mux.HandleFunc("DELETE /api/documents/{id}", a.handleDeleteDocument)
	mux.HandleFunc("POST /api/documents/{id}/chunk", a.handleChunk)
	mux.HandleFunc("GET /api/documents/{id}/units", a.handleListUnits)
	mux.HandleFunc("POST /api/search", a.handleSearch)
	mux.HandleFunc("POST /api/chat", a.handleChat)
	return mux
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusFor maps pipeline errors onto HTTP statuses.
func statusFor(err error) int {
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrDocumentNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrRetrieval), errors.Is(err, domain.ErrIndexNotReady):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// fail logs server-side failures and writes err with its status. Client
// errors carry their message; server errors do not.
func (a *api) fail(w http.ResponseWriter, msg string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		a.logger.Error(msg, "err", err)
		writeError(w, status, msg)
		return
	}
	writeError(w, status, err.Error())
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// --- Handlers ---

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// UploadResponse is returned by POST /api/documents.
type UploadResponse struct {
	Document domain.Document    `json:"document"`
	Chunking domain.ChunkReport `json:"chunking"`
	Queued   bool               `json:"queued,omitempty"`
}

func (a *api) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, source.MaxDocumentBytes+1<<20)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		writeError(w, http.StatusBadRequest, "no file uploaded")
		return
	}
	defer file.Close()

	br := bufio.NewReaderSize(file, sniffLen)
	head, _ := br.Peek(sniffLen)
	if !mimetype.Detect(head).Is("application/pdf") {
		writeError(w, http.StatusBadRequest, "only PDF files are allowed")
		return
	}

	ctx := r.Context()
	id := uuid.NewString()
	path, size, err := a.files.Save(ctx, id, br)
	if err != nil {
		if errors.Is(err, source.ErrTooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		a.fail(w, "failed to store file", err)
		return
	}
	doc, err := a.docs.CreateDocument(ctx, domain.Document{
		ID:           id,
		OwnerID:      r.FormValue("owner_id"),
		OriginalName: header.Filename,
		FilePath:     path,
		FileSize:     size,
		Status:       domain.StatusPending,
	})
	if err != nil {
		a.files.Remove(id)
		a.fail(w, "failed to create document", err)
		return
	}
	a.logger.Info("document uploaded", "doc_id", id, "name", header.Filename, "bytes", size)

	// Chunking problems are recorded on the document and never fail the upload.
	resp := UploadResponse{Document: doc}
	if r.URL.Query().Get("async") == "true" && a.enqueue != nil {
		if err := a.enqueue(ctx, id); err != nil {
			a.logger.Warn("enqueue after upload failed", "doc_id", id, "err", err)
		} else {
			resp.Queued = true
		}
	} else {
		resp.Chunking = a.chunker.Chunk(ctx, id)
		if fresh, err := a.docs.GetDocument(ctx, id); err == nil {
			resp.Document = fresh
		}
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (a *api) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := a.docs.ListDocuments(r.Context(), r.URL.Query().Get("owner_id"))
	if err != nil {
		a.fail(w, "failed to list documents", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

func (a *api) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := a.docs.GetDocument(r.Context(), r.PathValue("id"))
	if err != nil {
		a.fail(w, "failed to get document", err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (a *api) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	doc, err := a.docs.GetDocument(ctx, r.PathValue("id"))
	if err != nil {
		a.fail(w, "failed to get document", err)
		return
	}
	// Vectors go first so a failure leaves the rows to retry from.
	if err := a.index.DeleteByDocument(ctx, doc.ID); err != nil {
		a.logger.Error("delete vectors failed", "doc_id", doc.ID, "err", err)
		writeError(w, http.StatusBadGateway, "failed to delete document vectors")
		return
	}
	if err := a.docs.DeleteDocument(ctx, doc.ID); err != nil {
		a.fail(w, "failed to delete document", err)
		return
	}
	if !strings.HasPrefix(doc.FilePath, "http://") && !strings.HasPrefix(doc.FilePath, "https://") {
		if err := a.files.Remove(doc.ID); err != nil {
			a.logger.Warn("remove document file failed", "doc_id", doc.ID, "err", err)
		}
	}
	a.logger.Info("document deleted", "doc_id", doc.ID)
	writeJSON(w, http.StatusOK, map[string]string{"deleted": doc.ID})
}

func (a *api) handleChunk(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := domain.ValidateID("doc_id", id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if r.URL.Query().Get("async") == "true" && a.enqueue != nil {
		if _, err := a.docs.GetDocument(r.Context(), id); err != nil {
			a.fail(w, "failed to get document", err)
			return
		}
		if err := a.enqueue(r.Context(), id); err != nil {
			a.logger.Error("enqueue chunk job failed", "doc_id", id, "err", err)
			writeError(w, http.StatusServiceUnavailable, "failed to queue chunking")
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"doc_id": id, "status": "queued"})
		return
	}

	report := a.chunker.Chunk(r.Context(), id)
	switch {
	case report.Success:
		writeJSON(w, http.StatusOK, report)
	case report.Error == ingest.MsgDocumentNotFound:
		writeJSON(w, http.StatusNotFound, report)
	default:
		writeJSON(w, http.StatusInternalServerError, report)
	}
}

func (a *api) handleListUnits(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	doc, err := a.docs.GetDocument(ctx, r.PathValue("id"))
	if err != nil {
		a.fail(w, "failed to get document", err)
		return
	}
	units, err := a.docs.ListUnits(ctx, doc.ID)
	if err != nil {
		a.fail(w, "failed to list units", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"doc_id": doc.ID, "total_units": len(units), "units": units})
}

// SearchRequest is the JSON body for POST /api/search.
type SearchRequest struct {
	Query      string `json:"query"`
	DocumentID string `json:"doc_id,omitempty"`
	TopK       int    `json:"top_k,omitempty"`
}

// SearchHit is one unit in a search response, re-read from the store.
type SearchHit struct {
	ID         string             `json:"id"`
	Type       domain.UnitType    `json:"type"`
	Text       string             `json:"text"`
	PageNumber int                `json:"page_number"`
	UnitIndex  int                `json:"unit_index"`
	TextLength int                `json:"text_length"`
	Box        domain.BoundingBox `json:"bbox"`
	Score      float32            `json:"score"`
	Document   DocumentRef        `json:"document"`
}

// DocumentRef names the document a hit came from.
type DocumentRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SearchResponse is the JSON response for POST /api/search.
type SearchResponse struct {
	Query        string      `json:"query"`
	DocumentID   string      `json:"doc_id,omitempty"`
	TotalResults int         `json:"total_results"`
	Results      []SearchHit `json:"results"`
}

func (a *api) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if !decode(w, r, &req) {
		return
	}
	ctx := r.Context()
	results, err := a.retriever.Retrieve(ctx, req.Query, req.DocumentID, req.TopK)
	if err != nil {
		a.fail(w, "search failed", err)
		return
	}

	// The store is authoritative: hits whose row is gone are dropped.
	names := map[string]string{}
	hits := make([]SearchHit, 0, len(results))
	for _, res := range results {
		u, err := a.docs.GetUnit(ctx, res.Unit.ID)
		if errors.Is(err, repo.ErrNotFound) {
			continue
		}
		if err != nil {
			a.fail(w, "search failed", err)
			return
		}
		name, ok := names[u.DocumentID]
		if !ok {
			if doc, err := a.docs.GetDocument(ctx, u.DocumentID); err == nil {
				name = doc.OriginalName
			}
			names[u.DocumentID] = name
		}
		hits = append(hits, SearchHit{
			ID:         u.ID,
			Type:       u.Type,
			Text:       u.Text,
			PageNumber: u.PageNumber,
			UnitIndex:  u.UnitIndex,
			TextLength: u.TextLength,
			Box:        u.BoundingBox,
			Score:      res.Score,
			Document:   DocumentRef{ID: u.DocumentID, Name: name},
		})
	}
	writeJSON(w, http.StatusOK, SearchResponse{
		Query:        strings.TrimSpace(req.Query),
		DocumentID:   req.DocumentID,
		TotalResults: len(hits),
		Results:      hits,
	})
}

// ChatRequest is the JSON body for POST /api/chat.
type ChatRequest struct {
	Message     string        `json:"message"`
	DocumentID  string        `json:"doc_id"`
	CurrentPage int           `json:"current_page"`
	History     []llm.Message `json:"history,omitempty"`
}

// ChatMetadata summarises how an answer was produced.
type ChatMetadata struct {
	DocumentID    string `json:"doc_id"`
	TotalRelevant int    `json:"total_relevant_units"`
	TotalPages    int    `json:"total_pages"`
	SearchQuery   string `json:"search_query"`
	SearchFailed  bool   `json:"search_failed,omitempty"`
}

// ChatResponse is the JSON response for POST /api/chat.
type ChatResponse struct {
	Text      string         `json:"text"`
	Citations []rag.Citation `json:"citations"`
	Metadata  ChatMetadata   `json:"metadata"`
}

func (a *api) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Message) == "" || req.DocumentID == "" {
		writeError(w, http.StatusBadRequest, "message and doc_id are required")
		return
	}

	ans, err := a.tutor.Ask(r.Context(), rag.Question{
		Message:     req.Message,
		DocumentID:  req.DocumentID,
		CurrentPage: req.CurrentPage,
		History:     req.History,
	})
	if err != nil {
		a.fail(w, "chat failed", err)
		return
	}
	writeJSON(w, http.StatusOK, ChatResponse{
		Text:      ans.Text,
		Citations: ans.Citations,
		Metadata: ChatMetadata{
			DocumentID:    ans.DocumentID,
			TotalRelevant: len(ans.Citations),
			TotalPages:    ans.TotalPages,
			SearchQuery:   ans.Query,
			SearchFailed:  ans.SearchFailed,
		},
	})
}
