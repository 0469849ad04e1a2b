// Package repository gives typed access to one kind of document in a
// store.Store.
package repository

import (
	"context"

	"refill-api-server/internal/models"
	"refill-api-server/internal/store"
)

// DefaultLowStockThreshold applies when LowStock is called with a threshold
// of zero or less.
const DefaultLowStockThreshold = 3

// Document is implemented by the pointer types of every persisted model.
type Document interface {
	GetID() string
	GetVersion() int64
	SetVersion(v int64)
}

// Repository is a typed view over a single Kind. PT is *T; the extra type
// parameter lets the repository bump versions in place.
type Repository[T any, PT interface {
	*T
	Document
}] struct {
	store store.Store
	kind  store.Kind
}

func New[T any, PT interface {
	*T
	Document
}](s store.Store, kind store.Kind) *Repository[T, PT] {
	return &Repository[T, PT]{store: s, kind: kind}
}

func (r *Repository[T, PT]) Kind() store.Kind { return r.kind }

// Get returns nil with no error when the document does not exist.
func (r *Repository[T, PT]) Get(ctx context.Context, id string) (*T, error) {
	var doc T
	found, err := r.store.Get(ctx, r.kind, id, &doc)
	if err != nil || !found {
		return nil, err
	}
	return &doc, nil
}

func (r *Repository[T, PT]) ListAll(ctx context.Context) ([]T, error) {
	return r.Find(ctx, store.All())
}

func (r *Repository[T, PT]) Find(ctx context.Context, q store.Query) ([]T, error) {
	out := []T{}
	if err := r.store.Query(ctx, r.kind, q, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []T{}
	}
	return out, nil
}

// Create stores a new document at version 1.
func (r *Repository[T, PT]) Create(ctx context.Context, doc *T) error {
	p := PT(doc)
	prev := p.GetVersion()
	p.SetVersion(1)
	if err := r.store.Create(ctx, r.kind, p.GetID(), doc); err != nil {
		p.SetVersion(prev)
		return err
	}
	return nil
}

// Upsert writes doc unconditionally.
func (r *Repository[T, PT]) Upsert(ctx context.Context, doc *T) error {
	p := PT(doc)
	if p.GetVersion() == 0 {
		p.SetVersion(1)
	}
	return r.store.Upsert(ctx, r.kind, p.GetID(), doc)
}

// Replace writes doc if the stored version still matches the one doc was read
// at, and bumps the version on success. A lost race returns a Conflict and
// leaves doc unchanged.
func (r *Repository[T, PT]) Replace(ctx context.Context, doc *T) error {
	p := PT(doc)
	expected := p.GetVersion()
	p.SetVersion(expected + 1)
	if err := r.store.Replace(ctx, r.kind, p.GetID(), expected, doc); err != nil {
		p.SetVersion(expected)
		return err
	}
	return nil
}

func (r *Repository[T, PT]) Delete(ctx context.Context, id string) error {
	return r.store.Delete(ctx, r.kind, id)
}

// SearchByExactName returns the first document whose name matches exactly, or
// nil.
func (r *Repository[T, PT]) SearchByExactName(ctx context.Context, name string) (*T, error) {
	docs, err := r.SearchAllByName(ctx, name)
	if err != nil || len(docs) == 0 {
		return nil, err
	}
	return &docs[0], nil
}

// SearchAllByName matches name exactly and case-sensitively.
func (r *Repository[T, PT]) SearchAllByName(ctx context.Context, name string) ([]T, error) {
	return r.Find(ctx, store.Where(models.FieldName, store.Eq, name))
}

// LowStock returns documents with quantity strictly below threshold.
func (r *Repository[T, PT]) LowStock(ctx context.Context, threshold int) ([]T, error) {
	if threshold <= 0 {
		threshold = DefaultLowStockThreshold
	}
	return r.Find(ctx, store.Where(models.FieldQuantity, store.Lt, threshold))
}

// Page returns one page of the whole collection.
func (r *Repository[T, PT]) Page(ctx context.Context, cursor string, size int) (store.Page[T], error) {
	return r.PageWhere(ctx, cursor, size, store.All())
}

// PageWhere returns one page of the documents matching q. The cursor must come
// from a previous call with the same q.
func (r *Repository[T, PT]) PageWhere(ctx context.Context, cursor string, size int, q store.Query) (store.Page[T], error) {
	items := []T{}
	next, err := r.store.QueryPaged(ctx, r.kind, store.PageRequest{
		Cursor:   cursor,
		PageSize: size,
		Query:    q,
	}, &items)
	if err != nil {
		return store.Page[T]{}, err
	}
	if items == nil {
		items = []T{}
	}
	return store.Page[T]{Items: items, NextCursor: next}, nil
}
