package repo

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

var _ Repository[struct{}, string] = (*Gorm[struct{}, string])(nil)

// Gorm is a Repository over one gorm model. T must be a gorm model struct
// whose primary key column is named by idColumn.
type Gorm[T any, ID comparable] struct {
	db       *gorm.DB
	idColumn string
}

// GormOption configures a Gorm repository.
type GormOption[T any, ID comparable] func(*Gorm[T, ID])

// WithIDColumn sets the primary key column (default "id").
func WithIDColumn[T any, ID comparable](col string) GormOption[T, ID] {
	return func(r *Gorm[T, ID]) { r.idColumn = col }
}

// NewGorm creates a repository for model T.
func NewGorm[T any, ID comparable](db *gorm.DB, opts ...GormOption[T, ID]) *Gorm[T, ID] {
	r := &Gorm[T, ID]{db: db, idColumn: "id"}
	for _, o := range opts {
		o(r)
	}
	return r
}

// DB exposes the handle for queries the generic interface does not cover.
func (r *Gorm[T, ID]) DB(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx)
}

func (r *Gorm[T, ID]) Get(ctx context.Context, id ID) (T, error) {
	var v T
	err := r.db.WithContext(ctx).Where(r.idColumn+" = ?", id).First(&v).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return v, fmt.Errorf("%w: %v", ErrNotFound, id)
	}
	if err != nil {
		return v, fmt.Errorf("repo: get %v: %w", id, err)
	}
	return v, nil
}

func (r *Gorm[T, ID]) List(ctx context.Context, opts ListOpts) ([]T, error) {
	q := r.db.WithContext(ctx)
	if len(opts.Filter) > 0 {
		q = q.Where(opts.Filter)
	}
	if opts.Order != "" {
		q = q.Order(opts.Order)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}

	var out []T
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("repo: list: %w", err)
	}
	return out, nil
}

func (r *Gorm[T, ID]) Create(ctx context.Context, entity T) (T, error) {
	if err := r.db.WithContext(ctx).Create(&entity).Error; err != nil {
		return entity, fmt.Errorf("repo: create: %w", err)
	}
	return entity, nil
}

func (r *Gorm[T, ID]) Update(ctx context.Context, entity T) (T, error) {
	if err := r.db.WithContext(ctx).Save(&entity).Error; err != nil {
		return entity, fmt.Errorf("repo: update: %w", err)
	}
	return entity, nil
}

func (r *Gorm[T, ID]) Delete(ctx context.Context, id ID) error {
	res := r.db.WithContext(ctx).Where(r.idColumn+" = ?", id).Delete(new(T))
	if res.Error != nil {
		return fmt.Errorf("repo: delete %v: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %v", ErrNotFound, id)
	}
	return nil
}
