package workflow

import (
	"context"

	"github.com/google/uuid"

	"refill-api-server/internal/apperror"
	"refill-api-server/internal/identity"
	"refill-api-server/internal/models"
	"refill-api-server/internal/notify"
	"refill-api-server/internal/store"
)

// ItemRequests runs the ItemRequest lifecycle. ItemRequests record no owner,
// so status notifications go to every user with the User role.
type ItemRequests struct {
	engine *engine[models.ItemRequest, *models.ItemRequest]
	notify *notifier
}

func NewItemRequests(s store.Store, cfg Config, deps Deps) *ItemRequests {
	deps.defaults()
	return &ItemRequests{
		engine: newEngine[models.ItemRequest, *models.ItemRequest](s, store.KindItemRequest, "item request", cfg, deps),
		notify: &notifier{
			gateway:    deps.Gateway,
			templates:  deps.Templates,
			recipients: deps.Recipients,
			log:        deps.Logger.WithComponent("item request"),
		},
	}
}

func itemRequestData(r *models.ItemRequest) notify.Data {
	return notify.Data{RequestID: r.ID, Status: r.Status, Items: r.Items}
}

// Create stores a new Pending request and tells the admins.
func (s *ItemRequests) Create(ctx context.Context, who identity.Identity, items []models.LineItem) (*models.ItemRequest, error) {
	if who.Anonymous() {
		return nil, apperror.NewUnauthorized("user is not authenticated")
	}
	if err := models.ValidateLineItems(items); err != nil {
		return nil, apperror.NewValidation(err.Error())
	}
	req := &models.ItemRequest{
		ID:        uuid.NewString(),
		Items:     items,
		Status:    models.StatusPending,
		CreatedAt: s.engine.now(),
	}
	if err := s.engine.repo.Create(ctx, req); err != nil {
		return nil, err
	}
	s.engine.log.Infow("item request created", "id", req.ID, "by", who.UserID, "items", len(items))

	data := itemRequestData(req)
	data.RequesterName = who.Name
	s.notify.send(ctx, notify.ItemRequestCreated, s.notify.admins(), data)
	return req, nil
}

func requireAdmin(who identity.Identity, action string) error {
	if !who.IsAdmin() {
		return apperror.NewUnauthorized("only administrators may " + action + " requests")
	}
	return nil
}

func (s *ItemRequests) Approve(ctx context.Context, who identity.Identity, id string) (*models.ItemRequest, error) {
	if err := requireAdmin(who, "approve"); err != nil {
		return nil, err
	}
	req, err := s.engine.update(ctx, id, func(r *models.ItemRequest) error {
		return s.engine.advance(r, EventApprove)
	})
	if err != nil {
		return nil, err
	}
	s.engine.log.Infow("item request approved", "id", id, "by", who.UserID)
	s.notify.send(ctx, notify.ItemRequestStatus, s.notify.users(), itemRequestData(req))
	return req, nil
}

// Reject removes the request, or keeps it as Rejected when archiving is on.
func (s *ItemRequests) Reject(ctx context.Context, who identity.Identity, id string) (*models.ItemRequest, error) {
	if err := requireAdmin(who, "reject"); err != nil {
		return nil, err
	}
	req, err := s.engine.reject(ctx, id, nil)
	if err != nil {
		return nil, err
	}
	s.engine.log.Infow("item request rejected", "id", id, "by", who.UserID, "archived", s.engine.cfg.ArchiveRejected)
	s.notify.send(ctx, notify.ItemRequestStatus, s.notify.users(), itemRequestData(req))
	return req, nil
}

// Complete marks the request Completed and restocks its items. Completing an
// already Completed request changes nothing.
func (s *ItemRequests) Complete(ctx context.Context, who identity.Identity, id string) (*models.ItemRequest, error) {
	if err := requireAdmin(who, "complete"); err != nil {
		return nil, err
	}
	req, applied, err := s.engine.complete(ctx, id, nil)
	if err != nil {
		return req, err
	}
	if !applied {
		return req, nil
	}
	s.engine.log.Infow("item request completed", "id", id, "by", who.UserID)
	s.notify.send(ctx, notify.ItemRequestStatus, s.notify.users(), itemRequestData(req))
	return req, nil
}

// UpdateStatus dispatches to Approve, Reject or Complete.
func (s *ItemRequests) UpdateStatus(ctx context.Context, who identity.Identity, id string, target models.RequestStatus) (*models.ItemRequest, error) {
	ev, err := EventFor(target)
	if err != nil {
		return nil, err
	}
	switch ev {
	case EventApprove:
		return s.Approve(ctx, who, id)
	case EventReject:
		return s.Reject(ctx, who, id)
	default:
		return s.Complete(ctx, who, id)
	}
}

func (s *ItemRequests) Get(ctx context.Context, id string) (*models.ItemRequest, error) {
	return s.engine.get(ctx, id)
}

func (s *ItemRequests) List(ctx context.Context) ([]models.ItemRequest, error) {
	return s.engine.list(ctx)
}

func (s *ItemRequests) ListByStatus(ctx context.Context, status models.RequestStatus) ([]models.ItemRequest, error) {
	return s.engine.listByStatus(ctx, status)
}

func (s *ItemRequests) Page(ctx context.Context, cursor string, size int) (store.Page[models.ItemRequest], error) {
	return s.engine.page(ctx, cursor, size)
}

func (s *ItemRequests) PageByStatus(ctx context.Context, status models.RequestStatus, cursor string, size int) (store.Page[models.ItemRequest], error) {
	return s.engine.pageByStatus(ctx, status, cursor, size)
}

// Delete removes a request regardless of status.
func (s *ItemRequests) Delete(ctx context.Context, who identity.Identity, id string) error {
	if err := requireAdmin(who, "delete"); err != nil {
		return err
	}
	return s.engine.delete(ctx, id)
}
