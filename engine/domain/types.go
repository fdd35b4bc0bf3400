// Package domain defines the content-unit data model shared by the chunking
// and retrieval pipeline, plus the validation gate at its entry points.
package domain

import (
	"fmt"
	"time"
	"unicode/utf8"
)

// UnitType classifies a content unit.
type UnitType string

const (
	UnitText  UnitType = "text"
	UnitImage UnitType = "image"
)

// ValidUnitTypes is the set of recognised unit types.
var ValidUnitTypes = map[UnitType]bool{UnitText: true, UnitImage: true}

// BoundingBox is an axis-aligned rectangle in PDF page space
// (origin bottom-left, y increasing upward).
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// ContentUnit is the atomic retrievable item: a text chunk or an image region.
type ContentUnit struct {
	ID          string      `json:"id"`
	DocumentID  string      `json:"document_id"`
	PageNumber  int         `json:"page_number"`
	UnitIndex   int         `json:"unit_index"`
	Type        UnitType    `json:"type"`
	Text        string      `json:"text"`
	BoundingBox BoundingBox `json:"bounding_box"`
	TextLength  int         `json:"text_length"`
	// EmbeddingVectorID is set only when an embedding was produced.
	EmbeddingVectorID string `json:"embedding_vector_id,omitempty"`
	// Degraded records why a soft step (vision, embedding) produced nothing.
	Degraded string `json:"degraded,omitempty"`
}

// UnitID derives the deterministic unit id for (document, page, index).
func UnitID(documentID string, page, index int) string {
	return fmt.Sprintf("%s-%d-%d", documentID, page, index)
}

// NewContentUnit builds a unit with its id and cached text length filled in.
func NewContentUnit(documentID string, page, index int, typ UnitType, text string, box BoundingBox) ContentUnit {
	return ContentUnit{
		ID:          UnitID(documentID, page, index),
		DocumentID:  documentID,
		PageNumber:  page,
		UnitIndex:   index,
		Type:        typ,
		Text:        text,
		BoundingBox: box,
		TextLength:  utf8.RuneCountInString(text),
	}
}

// WithText replaces the unit text and keeps TextLength in step.
func (u ContentUnit) WithText(text string) ContentUnit {
	u.Text = text
	u.TextLength = utf8.RuneCountInString(text)
	return u
}

// Searchable reports whether the unit made it into the vector index.
func (u ContentUnit) Searchable() bool { return u.EmbeddingVectorID != "" }

// Metadata is the vector-index payload mirroring a unit's non-vector fields.
type Metadata struct {
	UnitID      string      `json:"unit_id"`
	DocumentID  string      `json:"doc_id"`
	DocName     string      `json:"doc_name,omitempty"`
	PageNumber  int         `json:"page_number"`
	UnitIndex   int         `json:"unit_index"`
	Type        UnitType    `json:"type"`
	Text        string      `json:"text"`
	BoundingBox BoundingBox `json:"bounding_box"`
	TextLength  int         `json:"text_length"`
	CreatedAt   time.Time   `json:"created_at"`
}

// MetadataFor builds the index payload for a unit.
func MetadataFor(u ContentUnit, docName string, createdAt time.Time) Metadata {
	return Metadata{
		UnitID:      u.ID,
		DocumentID:  u.DocumentID,
		DocName:     docName,
		PageNumber:  u.PageNumber,
		UnitIndex:   u.UnitIndex,
		Type:        u.Type,
		Text:        u.Text,
		BoundingBox: u.BoundingBox,
		TextLength:  u.TextLength,
		CreatedAt:   createdAt,
	}
}

// Unit reconstructs the unit snapshot held in the payload.
func (m Metadata) Unit() ContentUnit {
	return ContentUnit{
		ID:                m.UnitID,
		DocumentID:        m.DocumentID,
		PageNumber:        m.PageNumber,
		UnitIndex:         m.UnitIndex,
		Type:              m.Type,
		Text:              m.Text,
		BoundingBox:       m.BoundingBox,
		TextLength:        m.TextLength,
		EmbeddingVectorID: m.UnitID,
	}
}

// EmbeddingRecord is one vector-index entry.
type EmbeddingRecord struct {
	ID       string
	Vector   []float32
	Metadata Metadata
}

// RetrievalResult is a unit snapshot with its cosine similarity to a query.
type RetrievalResult struct {
	Unit  ContentUnit `json:"unit"`
	Score float32     `json:"score"`
}

// SearchFilter restricts a search. An empty DocumentID matches everything.
type SearchFilter struct {
	DocumentID string
}

// DocumentStatus tracks where a document is in the chunking lifecycle.
type DocumentStatus string

const (
	StatusPending    DocumentStatus = "pending"
	StatusProcessing DocumentStatus = "processing"
	StatusReady      DocumentStatus = "ready"
	StatusFailed     DocumentStatus = "failed"
)

// Document is an uploaded PDF.
type Document struct {
	ID           string         `json:"id"`
	OwnerID      string         `json:"owner_id,omitempty"`
	OriginalName string         `json:"original_name"`
	FilePath     string         `json:"file_path"`
	FileSize     int64          `json:"file_size"`
	Status       DocumentStatus `json:"status"`
	TotalPages   int            `json:"total_pages"`
	TotalUnits   int            `json:"total_units"`
	CreatedAt    time.Time      `json:"created_at"`
}

// ChunkReport is the outcome of one chunking run.
type ChunkReport struct {
	Success    bool   `json:"success"`
	TotalUnits int    `json:"total_chunks"`
	TotalPages int    `json:"total_pages"`
	Error      string `json:"error,omitempty"`
}
