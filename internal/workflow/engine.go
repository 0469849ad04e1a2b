package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"refill-api-server/internal/apperror"
	"refill-api-server/internal/logger"
	"refill-api-server/internal/models"
	"refill-api-server/internal/repository"
	"refill-api-server/internal/store"
)

const defaultMaxRetries = 5

// request is implemented by *models.ItemRequest and *models.PurchaseRequest.
type request[T any] interface {
	*T
	repository.Document
	GetStatus() models.RequestStatus
	SetStatus(models.RequestStatus)
	GetItems() []models.LineItem
}

// engine holds the persistence and transition logic shared by both request
// kinds.
type engine[T any, PT request[T]] struct {
	repo   *repository.Repository[T, PT]
	entity string
	cfg    Config
	ledger Restocker
	now    func() time.Time
	log    *logger.Logger
}

func newEngine[T any, PT request[T]](s store.Store, kind store.Kind, entity string, cfg Config, deps Deps) *engine[T, PT] {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	return &engine[T, PT]{
		repo:   repository.New[T, PT](s, kind),
		entity: entity,
		cfg:    cfg,
		ledger: deps.Ledger,
		now:    deps.Now,
		log:    deps.Logger.WithComponent(entity),
	}
}

func (e *engine[T, PT]) load(ctx context.Context, id string) (PT, error) {
	doc, err := e.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, apperror.NewNotFound(e.entity, id)
	}
	return PT(doc), nil
}

// update loads id, lets mutate change it and writes it back under the version
// it was read at. A lost race reloads and runs mutate again.
func (e *engine[T, PT]) update(ctx context.Context, id string, mutate func(PT) error) (PT, error) {
	var lastErr error
	for attempt := 1; attempt <= e.cfg.MaxRetries; attempt++ {
		doc, err := e.load(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := mutate(doc); err != nil {
			return nil, err
		}
		err = e.repo.Replace(ctx, (*T)(doc))
		if err == nil {
			return doc, nil
		}
		if !apperror.IsConflict(err) {
			return nil, err
		}
		lastErr = err
		e.log.Debugw("request modified concurrently, retrying", "id", id, "attempt", attempt)
	}
	return nil, lastErr
}

// advance applies ev if the current status allows it.
func (e *engine[T, PT]) advance(doc PT, ev Event) error {
	from := doc.GetStatus()
	to, ok := Next(from, ev)
	if !ok {
		return apperror.NewInvalidState(e.entity, string(from), string(ev))
	}
	doc.SetStatus(to)
	return nil
}

// reject claims the Rejected status with a versioned write so a concurrent
// approve cannot slip in, then deletes the document unless rejected requests
// are archived.
func (e *engine[T, PT]) reject(ctx context.Context, id string, guard func(PT) error) (PT, error) {
	doc, err := e.update(ctx, id, func(doc PT) error {
		if guard != nil {
			if err := guard(doc); err != nil {
				return err
			}
		}
		return e.advance(doc, EventReject)
	})
	if err != nil {
		return nil, err
	}
	if e.cfg.ArchiveRejected {
		return doc, nil
	}
	if err := e.repo.Delete(ctx, id); err != nil && !apperror.IsNotFound(err) {
		return nil, fmt.Errorf("delete rejected %s %s: %w", e.entity, id, err)
	}
	return doc, nil
}

// errAlreadyCompleted short-circuits update for a repeated completion.
var errAlreadyCompleted = errors.New("already completed")

// complete flips the request to Completed with a versioned write and only the
// caller that wins that write restocks the line items. A request that is
// already Completed is returned unchanged with applied=false.
func (e *engine[T, PT]) complete(ctx context.Context, id string, guard func(PT) error) (doc PT, applied bool, err error) {
	var current PT
	doc, err = e.update(ctx, id, func(d PT) error {
		current = d
		if guard != nil {
			if err := guard(d); err != nil {
				return err
			}
		}
		if d.GetStatus() == models.StatusCompleted {
			return errAlreadyCompleted
		}
		return e.advance(d, EventComplete)
	})
	if errors.Is(err, errAlreadyCompleted) {
		return current, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	if err := e.restock(ctx, id, doc.GetItems()); err != nil {
		return doc, true, err
	}
	return doc, true, nil
}

// restock applies every line item to the ledger. Failures do not stop the
// remaining items; they are joined and returned.
func (e *engine[T, PT]) restock(ctx context.Context, id string, items []models.LineItem) error {
	if e.ledger == nil {
		return apperror.NewInternal(errors.New("no inventory ledger configured"))
	}
	var errs []error
	for _, item := range items {
		if _, err := e.ledger.Restock(ctx, item.Name, item.Quantity, item.Description); err != nil {
			e.log.Errorw("restock after completion failed", "id", id, "item", item.Name, "quantity", item.Quantity, "error", err)
			errs = append(errs, fmt.Errorf("restock %q: %w", item.Name, err))
		}
	}
	return errors.Join(errs...)
}

func (e *engine[T, PT]) get(ctx context.Context, id string) (*T, error) {
	doc, err := e.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return (*T)(doc), nil
}

func (e *engine[T, PT]) list(ctx context.Context) ([]T, error) {
	return e.repo.ListAll(ctx)
}

func (e *engine[T, PT]) listByStatus(ctx context.Context, status models.RequestStatus) ([]T, error) {
	return e.repo.Find(ctx, store.Where(models.FieldStatus, store.Eq, status))
}

// listByDateRange includes both bounds.
func (e *engine[T, PT]) listByDateRange(ctx context.Context, start, end time.Time) ([]T, error) {
	if end.Before(start) {
		return nil, apperror.NewValidation("endDate must not be before startDate")
	}
	q := store.Where(models.FieldCreatedAt, store.Gte, start.UTC()).
		And(models.FieldCreatedAt, store.Lte, end.UTC()).
		OrderBy(models.FieldCreatedAt)
	return e.repo.Find(ctx, q)
}

func (e *engine[T, PT]) page(ctx context.Context, cursor string, size int) (store.Page[T], error) {
	return e.repo.Page(ctx, cursor, size)
}

func (e *engine[T, PT]) pageByStatus(ctx context.Context, status models.RequestStatus, cursor string, size int) (store.Page[T], error) {
	return e.repo.PageWhere(ctx, cursor, size, store.Where(models.FieldStatus, store.Eq, status))
}

func (e *engine[T, PT]) delete(ctx context.Context, id string) error {
	return e.repo.Delete(ctx, id)
}
