// Package ledger owns inventory quantities. Restocks merge into the record
// with the same name; consumption never takes a quantity below zero. Every
// write is a versioned replace and is retried when another writer wins.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"refill-api-server/internal/apperror"
	"refill-api-server/internal/logger"
	"refill-api-server/internal/models"
	"refill-api-server/internal/repository"
	"refill-api-server/internal/store"
)

const DefaultMaxRetries = 5

type Repo = repository.Repository[models.InventoryRecord, *models.InventoryRecord]

type Ledger struct {
	repo       *Repo
	maxRetries int
	now        func() time.Time
	log        *logger.Logger
}

type Option func(*Ledger)

// WithMaxRetries bounds how often a write is retried after a Conflict.
func WithMaxRetries(n int) Option {
	return func(l *Ledger) {
		if n > 0 {
			l.maxRetries = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

func WithLogger(log *logger.Logger) Option {
	return func(l *Ledger) { l.log = log }
}

func New(s store.Store, opts ...Option) *Ledger {
	l := &Ledger{
		repo:       repository.New[models.InventoryRecord](s, store.KindInventory),
		maxRetries: DefaultMaxRetries,
		now:        func() time.Time { return time.Now().UTC() },
		log:        logger.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.log = l.log.WithComponent("ledger")
	return l
}

// Restock adds delta to the record called name, creating it if needed.
// Concurrent restocks of one name sum exactly. The ledger does not
// deduplicate: replaying a restock applies it again.
func (l *Ledger) Restock(ctx context.Context, name string, delta int, description string) (*models.InventoryRecord, error) {
	if name == "" {
		return nil, apperror.NewValidation("inventory name is required")
	}
	if delta <= 0 {
		return nil, apperror.NewValidation("restock quantity must be greater than zero").
			WithDetail("name", name).WithDetail("quantity", delta)
	}

	var rec *models.InventoryRecord
	err := l.retry(ctx, name, func() error {
		existing, err := l.repo.SearchByExactName(ctx, name)
		if err != nil {
			return err
		}
		if existing == nil {
			rec = &models.InventoryRecord{
				ID:            uuid.NewString(),
				Name:          name,
				Quantity:      delta,
				Description:   description,
				LastStockedAt: l.now(),
			}
			return l.repo.Create(ctx, rec)
		}

		existing.Quantity += delta
		existing.LastStockedAt = l.now()
		if existing.Description == "" {
			existing.Description = description
		}
		rec = existing
		return l.repo.Replace(ctx, existing)
	})
	if err != nil {
		return nil, fmt.Errorf("restock %q: %w", name, err)
	}
	l.log.Infow("restocked", "id", rec.ID, "name", name, "delta", delta, "quantity", rec.Quantity)
	return rec, nil
}

// Consume takes quantity units from the record with the given id.
func (l *Ledger) Consume(ctx context.Context, id string, quantity int) (*models.InventoryRecord, error) {
	if quantity <= 0 {
		return nil, apperror.NewValidation("quantity to take must be greater than zero")
	}

	var rec *models.InventoryRecord
	err := l.retry(ctx, id, func() error {
		existing, err := l.repo.Get(ctx, id)
		if err != nil {
			return err
		}
		if existing == nil {
			return apperror.NewNotFound("inventory", id)
		}
		if quantity > existing.Quantity {
			return apperror.NewInsufficientStock(id, quantity, existing.Quantity)
		}
		existing.Quantity -= quantity
		rec = existing
		return l.repo.Replace(ctx, existing)
	})
	if err != nil {
		return nil, err
	}
	l.log.Infow("consumed", "id", id, "quantity", quantity, "remaining", rec.Quantity)
	return rec, nil
}

// retry runs op until it stops returning a Conflict or the budget runs out.
func (l *Ledger) retry(ctx context.Context, key string, op func() error) error {
	var err error
	for attempt := 1; attempt <= l.maxRetries; attempt++ {
		if err = op(); err == nil || !apperror.IsConflict(err) {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return apperror.NewTransient(ctxErr)
		}
		l.log.Debugw("write conflict, retrying", "key", key, "attempt", attempt)
	}
	return err
}

func (l *Ledger) LowStock(ctx context.Context, threshold int) ([]models.InventoryRecord, error) {
	return l.repo.LowStock(ctx, threshold)
}

func (l *Ledger) ListAll(ctx context.Context) ([]models.InventoryRecord, error) {
	return l.repo.ListAll(ctx)
}

// Get returns nil when the record does not exist.
func (l *Ledger) Get(ctx context.Context, id string) (*models.InventoryRecord, error) {
	return l.repo.Get(ctx, id)
}

func (l *Ledger) GetByName(ctx context.Context, name string) (*models.InventoryRecord, error) {
	return l.repo.SearchByExactName(ctx, name)
}

// GetByNameOrID tries key as an id first, then as an exact name.
func (l *Ledger) GetByNameOrID(ctx context.Context, key string) (*models.InventoryRecord, error) {
	rec, err := l.repo.Get(ctx, key)
	if err != nil || rec != nil {
		return rec, err
	}
	return l.repo.SearchByExactName(ctx, key)
}

// LoadMore pages through the whole inventory.
func (l *Ledger) LoadMore(ctx context.Context, cursor string, pageSize int) (store.Page[models.InventoryRecord], error) {
	return l.repo.Page(ctx, cursor, pageSize)
}
