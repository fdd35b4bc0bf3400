// Package store persists documents and their content units in a relational
// database through gorm.
package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/aitutor/pdf-tutor/engine/domain"
	"github.com/aitutor/pdf-tutor/pkg/repo"
)

const upsertBatch = 200

// Store is the relational store for documents and units.
type Store struct {
	db    *gorm.DB
	docs  *repo.Gorm[Document, string]
	units *repo.Gorm[Unit, string]
}

// New wraps an open gorm handle.
func New(db *gorm.DB) *Store {
	return &Store{
		db:    db,
		docs:  repo.NewGorm[Document, string](db),
		units: repo.NewGorm[Unit, string](db),
	}
}

// CreateDocument inserts a document row.
func (s *Store) CreateDocument(ctx context.Context, d domain.Document) (domain.Document, error) {
	if err := domain.ValidateID("id", d.ID); err != nil {
		return domain.Document{}, err
	}
	if d.Status == "" {
		d.Status = domain.StatusPending
	}
	row, err := s.docs.Create(ctx, documentRow(d))
	if err != nil {
		return domain.Document{}, fmt.Errorf("store: create document %s: %w", d.ID, err)
	}
	return row.toDomain(), nil
}

// GetDocument returns the document or an error wrapping ErrDocumentNotFound.
func (s *Store) GetDocument(ctx context.Context, id string) (domain.Document, error) {
	row, err := s.docs.Get(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.Document{}, fmt.Errorf("%w: %s", domain.ErrDocumentNotFound, id)
	}
	if err != nil {
		return domain.Document{}, fmt.Errorf("store: get document %s: %w", id, err)
	}
	return row.toDomain(), nil
}

// ListDocuments returns documents newest first. An empty owner lists all.
func (s *Store) ListDocuments(ctx context.Context, ownerID string) ([]domain.Document, error) {
	opts := repo.ListOpts{Order: "created_at desc"}
	if ownerID != "" {
		opts.Filter = map[string]any{"owner_id": ownerID}
	}
	rows, err := s.docs.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("store: list documents: %w", err)
	}
	out := make([]domain.Document, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out, nil
}

// SetDocumentStatus records a document's chunking outcome.
func (s *Store) SetDocumentStatus(ctx context.Context, id string, status domain.DocumentStatus, pages, units int) error {
	res := s.db.WithContext(ctx).Model(&Document{}).Where("id = ?", id).Updates(map[string]any{
		"status":      string(status),
		"total_pages": pages,
		"total_units": units,
	})
	if res.Error != nil {
		return fmt.Errorf("store: set status %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", domain.ErrDocumentNotFound, id)
	}
	return nil
}

// DeleteDocument removes the document and all of its units.
func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("document_id = ?", id).Delete(&Unit{}).Error; err != nil {
			return fmt.Errorf("store: delete units of %s: %w", id, err)
		}
		res := tx.Where("id = ?", id).Delete(&Document{})
		if res.Error != nil {
			return fmt.Errorf("store: delete document %s: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: %s", domain.ErrDocumentNotFound, id)
		}
		return nil
	})
}

// UpsertUnits inserts units or overwrites the row at the same
// (document_id, page_number, unit_index).
func (s *Store) UpsertUnits(ctx context.Context, units []domain.ContentUnit) error {
	if len(units) == 0 {
		return nil
	}
	rows := make([]Unit, len(units))
	for i, u := range units {
		if err := domain.ValidateUnit(u); err != nil {
			return err
		}
		rows[i] = unitRow(u)
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "document_id"}, {Name: "page_number"}, {Name: "unit_index"}},
			DoUpdates: clause.AssignmentColumns([]string{"type", "text", "bbox_x", "bbox_y", "bbox_width", "bbox_height", "text_length", "embedding_vector_id", "degraded", "updated_at"}),
		}).
		CreateInBatches(rows, upsertBatch).Error
	if err != nil {
		return fmt.Errorf("store: upsert %d units: %w", len(units), err)
	}
	return nil
}

// PruneUnits deletes a document's units whose id is not in keep, left over
// from a previous run that laid the document out differently. An empty keep
// deletes every unit of the document.
func (s *Store) PruneUnits(ctx context.Context, documentID string, keep []string) (int64, error) {
	q := s.db.WithContext(ctx).Where("document_id = ?", documentID)
	if len(keep) > 0 {
		q = q.Where("id NOT IN ?", keep)
	}
	res := q.Delete(&Unit{})
	if res.Error != nil {
		return 0, fmt.Errorf("store: prune units of %s: %w", documentID, res.Error)
	}
	return res.RowsAffected, nil
}

// GetUnit returns one unit by id.
func (s *Store) GetUnit(ctx context.Context, id string) (domain.ContentUnit, error) {
	row, err := s.units.Get(ctx, id)
	if err != nil {
		return domain.ContentUnit{}, fmt.Errorf("store: get unit %s: %w", id, err)
	}
	return row.toDomain(), nil
}

// ListUnits returns a document's units in page then index order.
func (s *Store) ListUnits(ctx context.Context, documentID string) ([]domain.ContentUnit, error) {
	rows, err := s.units.List(ctx, repo.ListOpts{
		Filter: map[string]any{"document_id": documentID},
		Order:  "page_number, unit_index",
	})
	if err != nil {
		return nil, fmt.Errorf("store: list units of %s: %w", documentID, err)
	}
	out := make([]domain.ContentUnit, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out, nil
}
