// Package store defines the document store contract shared by the MongoDB and
// in-process adapters: point reads and writes scoped to a document id, full
// sweeps, and cursor-paged queries.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"refill-api-server/internal/apperror"
)

// Kind tags an entity type. The Registry maps it to a collection.
type Kind string

const (
	KindInventory       Kind = "inventory"
	KindItemRequest     Kind = "item_request"
	KindPurchaseRequest Kind = "purchase_request"
	KindUserDetails     Kind = "user_details"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// Store is implemented by mongostore and memstore.
//
// Every document is keyed by its id, which is also its partition key. A single
// document write is atomic; there are no multi-document transactions.
type Store interface {
	// Get decodes the document into out. A missing document reports false with
	// a nil error.
	Get(ctx context.Context, kind Kind, id string, out any) (bool, error)

	// Query runs an unpaginated sweep and decodes every match into out, which
	// must be a pointer to a slice. All underlying batches are read before it
	// returns.
	Query(ctx context.Context, kind Kind, q Query, out any) error

	// QueryPaged returns at most req.PageSize matches, decoded into out (a
	// pointer to a slice), and the cursor for the next page. An empty cursor
	// means the query is exhausted.
	//
	// Cursors carry no server state. Writes that happen between two pages can
	// make a later page skip or repeat documents relative to a single snapshot.
	// A cursor is only valid for the kind and query that produced it.
	QueryPaged(ctx context.Context, kind Kind, req PageRequest, out any) (string, error)

	Create(ctx context.Context, kind Kind, id string, doc any) error

	// Upsert replaces the document with the given id or inserts it.
	Upsert(ctx context.Context, kind Kind, id string, doc any) error

	// Replace writes doc only if the stored version equals expectedVersion.
	// A mismatch is a Conflict; a missing document is NotFound.
	Replace(ctx context.Context, kind Kind, id string, expectedVersion int64, doc any) error

	Delete(ctx context.Context, kind Kind, id string) error
}

// PageRequest describes one page of a cursor-paged query.
type PageRequest struct {
	Cursor       string
	PageSize     int
	Query        Query
	PartitionKey string
}

// Size clamps the requested page size to [1, MaxPageSize].
func (r PageRequest) Size() int {
	switch {
	case r.PageSize <= 0:
		return DefaultPageSize
	case r.PageSize > MaxPageSize:
		return MaxPageSize
	default:
		return r.PageSize
	}
}

// Scoped returns the query restricted to the partition key, if any.
func (r PageRequest) Scoped() Query {
	if r.PartitionKey == "" {
		return r.Query
	}
	return r.Query.And(IDField, Eq, r.PartitionKey)
}

// Page is one page of decoded documents.
type Page[T any] struct {
	Items      []T    `json:"items"`
	NextCursor string `json:"continuationToken,omitempty"`
}

// Collection describes where a Kind lives.
type Collection struct {
	Name         string
	UniqueFields []string
}

// Registry resolves a Kind to its Collection. It is filled once at startup.
type Registry struct {
	mu          sync.RWMutex
	collections map[Kind]Collection
}

func NewRegistry() *Registry {
	return &Registry{collections: make(map[Kind]Collection)}
}

// DefaultRegistry registers every kind under the given collection names.
// Missing names fall back to the kind itself.
func DefaultRegistry(names map[Kind]string) *Registry {
	r := NewRegistry()
	name := func(k Kind) string {
		if n, ok := names[k]; ok && n != "" {
			return n
		}
		return string(k)
	}
	r.Register(KindInventory, Collection{Name: name(KindInventory), UniqueFields: []string{"name"}})
	r.Register(KindItemRequest, Collection{Name: name(KindItemRequest)})
	r.Register(KindPurchaseRequest, Collection{Name: name(KindPurchaseRequest)})
	r.Register(KindUserDetails, Collection{Name: name(KindUserDetails), UniqueFields: []string{"userId"}})
	return r
}

func (r *Registry) Register(kind Kind, c Collection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.collections[kind] = c
}

// Resolve fails with a permanent error for unregistered kinds.
func (r *Registry) Resolve(kind Kind) (Collection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.collections[kind]
	if !ok {
		return Collection{}, apperror.NewPermanent(fmt.Errorf("no collection registered for kind %q", kind))
	}
	return c, nil
}

// Kinds returns the registered kinds in a stable order.
func (r *Registry) Kinds() []Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]Kind, 0, len(r.collections))
	for k := range r.collections {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
