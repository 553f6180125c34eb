// Package store is the persistence boundary: a generic GORM repository with
// equality filters and storage errors translated into apperr kinds.
package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/aldoetobex/legal-bids-backend/pkg/apperr"
)

// Filter is a set of column = value constraints combined with AND.
type Filter map[string]any

// Scope narrows a query further, e.g. a role-based read restriction.
type Scope func(*gorm.DB) *gorm.DB

// Option tweaks FindMany.
type Option func(*query)

type query struct {
	order  string
	limit  int
	offset int
	scopes []Scope
}

func OrderBy(order string) Option  { return func(q *query) { q.order = order } }
func Limit(n int) Option           { return func(q *query) { q.limit = n } }
func WithScopes(s ...Scope) Option { return func(q *query) { q.scopes = append(q.scopes, s...) } }

// Page converts a 1-based page number and size into limit/offset.
func Page(page, size int) Option {
	return func(q *query) { q.limit, q.offset = size, (page-1)*size }
}

func apply(db *gorm.DB, s []Scope) *gorm.DB {
	for _, fn := range s {
		db = fn(db)
	}
	return db
}

// Repo gives row-level CRUD over one model type.
type Repo[T any] struct {
	db *gorm.DB
}

func New[T any](db *gorm.DB) *Repo[T] { return &Repo[T]{db: db} }

// WithTx returns a repo bound to tx.
func (r *Repo[T]) WithTx(tx *gorm.DB) *Repo[T] { return &Repo[T]{db: tx} }

// DB exposes the underlying handle for queries the contract does not cover.
func (r *Repo[T]) DB() *gorm.DB { return r.db }

// Insert persists e; its ID is assigned on insert if unset.
func (r *Repo[T]) Insert(ctx context.Context, e *T) error {
	return Translate(r.db.WithContext(ctx).Create(e).Error)
}

// FindByID loads a row or returns apperr.ErrNotFound.
func (r *Repo[T]) FindByID(ctx context.Context, id uuid.UUID, scopes ...Scope) (*T, error) {
	var out T
	err := apply(r.db.WithContext(ctx), scopes).Where("id = ?", id).First(&out).Error
	if err != nil {
		return nil, Translate(err)
	}
	return &out, nil
}

// FindOne returns the first row matching f or apperr.ErrNotFound.
func (r *Repo[T]) FindOne(ctx context.Context, f Filter, scopes ...Scope) (*T, error) {
	var out T
	err := apply(r.db.WithContext(ctx), scopes).Where(map[string]any(f)).First(&out).Error
	if err != nil {
		return nil, Translate(err)
	}
	return &out, nil
}

// FindMany lists rows matching f. A nil result is normalised to an empty slice.
func (r *Repo[T]) FindMany(ctx context.Context, f Filter, opts ...Option) ([]T, error) {
	var q query
	for _, o := range opts {
		o(&q)
	}
	db := apply(r.db.WithContext(ctx).Model(new(T)), q.scopes)
	if len(f) > 0 {
		db = db.Where(map[string]any(f))
	}
	if q.order != "" {
		db = db.Order(q.order)
	}
	if q.limit > 0 {
		db = db.Limit(q.limit)
	}
	if q.offset > 0 {
		db = db.Offset(q.offset)
	}
	out := []T{}
	if err := db.Find(&out).Error; err != nil {
		return nil, Translate(err)
	}
	return out, nil
}

// Count counts rows matching f.
func (r *Repo[T]) Count(ctx context.Context, f Filter, scopes ...Scope) (int64, error) {
	var n int64
	db := apply(r.db.WithContext(ctx).Model(new(T)), scopes)
	if len(f) > 0 {
		db = db.Where(map[string]any(f))
	}
	if err := db.Count(&n).Error; err != nil {
		return 0, Translate(err)
	}
	return n, nil
}

// Update applies patch (column -> value) to the row and returns the fresh row.
func (r *Repo[T]) Update(ctx context.Context, id uuid.UUID, patch map[string]any) (*T, error) {
	res := r.db.WithContext(ctx).Model(new(T)).Where("id = ?", id).Updates(patch)
	if res.Error != nil {
		return nil, Translate(res.Error)
	}
	if res.RowsAffected == 0 {
		// Either the row is gone or the patch was empty.
		if _, err := r.FindByID(ctx, id); err != nil {
			return nil, err
		}
	}
	return r.FindByID(ctx, id)
}

// UpdateWhere applies patch to every row matching f and returns the count.
func (r *Repo[T]) UpdateWhere(ctx context.Context, f Filter, patch map[string]any) (int64, error) {
	res := r.db.WithContext(ctx).Model(new(T)).Where(map[string]any(f)).Updates(patch)
	return res.RowsAffected, Translate(res.Error)
}

// Delete removes the row or returns apperr.ErrNotFound.
func (r *Repo[T]) Delete(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(new(T))
	if res.Error != nil {
		return Translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

// DeleteWhere removes every row matching f.
func (r *Repo[T]) DeleteWhere(ctx context.Context, f Filter) (int64, error) {
	res := r.db.WithContext(ctx).Where(map[string]any(f)).Delete(new(T))
	return res.RowsAffected, Translate(res.Error)
}

// ForUpdate locks selected rows on dialects that support it.
func ForUpdate(db *gorm.DB) *gorm.DB {
	if db.Dialector.Name() == "sqlite" {
		return db
	}
	return db.Clauses(clause.Locking{Strength: "UPDATE"})
}

// Translate maps GORM errors onto the application taxonomy. Other errors pass
// through unchanged and surface as 500s.
func Translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return apperr.Wrap(apperr.ErrNotFound, err)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return apperr.Wrap(apperr.ErrDuplicate, err)
	default:
		return err
	}
}
