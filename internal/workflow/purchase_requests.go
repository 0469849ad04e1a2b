package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"refill-api-server/internal/apperror"
	"refill-api-server/internal/identity"
	"refill-api-server/internal/models"
	"refill-api-server/internal/notify"
	"refill-api-server/internal/store"
)

// PurchaseRequests runs the PurchaseRequest lifecycle. A purchase request
// belongs to the user that created it.
type PurchaseRequests struct {
	engine   *engine[models.PurchaseRequest, *models.PurchaseRequest]
	receipts ReceiptStore
	notify   *notifier
}

func NewPurchaseRequests(s store.Store, cfg Config, deps Deps) *PurchaseRequests {
	deps.defaults()
	return &PurchaseRequests{
		engine:   newEngine[models.PurchaseRequest, *models.PurchaseRequest](s, store.KindPurchaseRequest, "purchase request", cfg, deps),
		receipts: deps.Receipts,
		notify: &notifier{
			gateway:    deps.Gateway,
			templates:  deps.Templates,
			recipients: deps.Recipients,
			log:        deps.Logger.WithComponent("purchase request"),
		},
	}
}

func purchaseData(r *models.PurchaseRequest) notify.Data {
	return notify.Data{
		RequestID: r.ID,
		UserID:    r.UserID,
		Status:    r.Status,
		Items:     r.Items,
		Receipts:  r.Receipts,
	}
}

// ownedBy fails with Unauthorized unless who recorded the request. Admins
// pass when allowAdmin is set.
func ownedBy(who identity.Identity, allowAdmin bool) func(*models.PurchaseRequest) error {
	return func(r *models.PurchaseRequest) error {
		if who.Owns(r.UserID) || (allowAdmin && who.IsAdmin()) {
			return nil
		}
		return apperror.NewUnauthorized("you do not own this purchase request").WithDetail("id", r.ID)
	}
}

// Create stores a new Pending purchase request owned by who.
func (s *PurchaseRequests) Create(ctx context.Context, who identity.Identity, items []models.LineItem) (*models.PurchaseRequest, error) {
	if who.Anonymous() {
		return nil, apperror.NewUnauthorized("user is not authenticated")
	}
	if err := models.ValidateLineItems(items); err != nil {
		return nil, apperror.NewValidation(err.Error())
	}
	req := &models.PurchaseRequest{
		ID:        uuid.NewString(),
		Items:     items,
		UserID:    who.UserID,
		Receipts:  []models.FileReference{},
		Status:    models.StatusPending,
		CreatedAt: s.engine.now(),
	}
	if err := s.engine.repo.Create(ctx, req); err != nil {
		return nil, err
	}
	s.engine.log.Infow("purchase request created", "id", req.ID, "user", who.UserID, "total", req.TotalPrice().String())

	data := purchaseData(req)
	data.RequesterName = who.Name
	s.notify.send(ctx, notify.PurchaseCreated, s.notify.admins(), data)
	return req, nil
}

func (s *PurchaseRequests) Approve(ctx context.Context, who identity.Identity, id string) (*models.PurchaseRequest, error) {
	if err := requireAdmin(who, "approve"); err != nil {
		return nil, err
	}
	req, err := s.engine.update(ctx, id, func(r *models.PurchaseRequest) error {
		return s.engine.advance(r, EventApprove)
	})
	if err != nil {
		return nil, err
	}
	s.engine.log.Infow("purchase request approved", "id", id, "by", who.UserID)
	s.notify.send(ctx, notify.PurchaseApproved, s.notify.owner(req.UserID), purchaseData(req))
	return req, nil
}

// Reject removes the request, or keeps it as Rejected when archiving is on.
func (s *PurchaseRequests) Reject(ctx context.Context, who identity.Identity, id string) (*models.PurchaseRequest, error) {
	if err := requireAdmin(who, "reject"); err != nil {
		return nil, err
	}
	req, err := s.engine.reject(ctx, id, nil)
	if err != nil {
		return nil, err
	}
	s.engine.log.Infow("purchase request rejected", "id", id, "by", who.UserID, "archived", s.engine.cfg.ArchiveRejected)
	s.notify.send(ctx, notify.PurchaseRejected, s.notify.owner(req.UserID), purchaseData(req))
	return req, nil
}

// AttachReceipts uploads the files and moves an Approved request to
// Purchased. Only the owner or an admin may attach receipts.
func (s *PurchaseRequests) AttachReceipts(ctx context.Context, who identity.Identity, id string, files []Upload) (*models.PurchaseRequest, error) {
	if len(files) == 0 {
		return nil, apperror.NewValidation("at least one receipt file is required")
	}
	if s.receipts == nil {
		return nil, apperror.NewInternal(errors.New("no receipt storage configured"))
	}

	// Check before uploading so a doomed request leaves no orphaned blobs.
	current, err := s.engine.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := ownedBy(who, true)(current); err != nil {
		return nil, err
	}
	if _, ok := Next(current.Status, EventAttachReceipts); !ok {
		return nil, apperror.NewInvalidState(s.engine.entity, string(current.Status), string(EventAttachReceipts))
	}

	refs := make([]models.FileReference, 0, len(files))
	for _, f := range files {
		ref, err := s.receipts.Store(ctx, f.Data, f.Name)
		if err != nil {
			return nil, fmt.Errorf("store receipt %q: %w", f.Name, err)
		}
		refs = append(refs, ref)
	}

	req, err := s.engine.update(ctx, id, func(r *models.PurchaseRequest) error {
		if err := ownedBy(who, true)(r); err != nil {
			return err
		}
		if err := s.engine.advance(r, EventAttachReceipts); err != nil {
			return err
		}
		r.Receipts = append(r.Receipts, refs...)
		return nil
	})
	if err != nil {
		s.engine.log.Warnw("receipts uploaded but request not updated", "id", id, "receipts", len(refs), "error", err)
		return nil, err
	}
	s.engine.log.Infow("receipts attached", "id", id, "by", who.UserID, "receipts", len(refs))

	data := purchaseData(req)
	data.RequesterName = who.Name
	s.notify.send(ctx, notify.PurchaseReceipts, s.notify.admins(), data)
	return req, nil
}

// Complete marks the request Completed and restocks its items. The owner or
// an admin may complete it. Completing an already Completed request changes
// nothing.
func (s *PurchaseRequests) Complete(ctx context.Context, who identity.Identity, id string) (*models.PurchaseRequest, error) {
	req, applied, err := s.engine.complete(ctx, id, ownedBy(who, true))
	if err != nil {
		return req, err
	}
	if !applied {
		return req, nil
	}
	s.engine.log.Infow("purchase request completed", "id", id, "by", who.UserID)
	s.notify.send(ctx, notify.PurchaseCompleted, s.notify.owner(req.UserID), purchaseData(req))
	return req, nil
}

// EditPurchasedItems replaces the item list of an Approved request and
// re-stamps its creation time. The status does not change. Only the owner
// may edit, whatever the status.
func (s *PurchaseRequests) EditPurchasedItems(ctx context.Context, who identity.Identity, id string, items []models.LineItem) (*models.PurchaseRequest, error) {
	if err := models.ValidateLineItems(items); err != nil {
		return nil, apperror.NewValidation(err.Error())
	}
	req, err := s.engine.update(ctx, id, func(r *models.PurchaseRequest) error {
		if err := ownedBy(who, false)(r); err != nil {
			return err
		}
		if r.Status != models.StatusApproved {
			return apperror.NewInvalidState(s.engine.entity, string(r.Status), "edit items")
		}
		r.Items = items
		r.CreatedAt = s.engine.now()
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.engine.log.Infow("purchase request items updated", "id", id, "by", who.UserID, "items", len(items))

	data := purchaseData(req)
	data.RequesterName = who.Name
	s.notify.send(ctx, notify.PurchaseItemsUpdated, s.notify.admins(), data)
	return req, nil
}

// UpdateStatus dispatches to Approve, Reject or Complete.
func (s *PurchaseRequests) UpdateStatus(ctx context.Context, who identity.Identity, id string, target models.RequestStatus) (*models.PurchaseRequest, error) {
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

func (s *PurchaseRequests) Get(ctx context.Context, id string) (*models.PurchaseRequest, error) {
	return s.engine.get(ctx, id)
}

func (s *PurchaseRequests) List(ctx context.Context) ([]models.PurchaseRequest, error) {
	return s.engine.list(ctx)
}

func (s *PurchaseRequests) ListByStatus(ctx context.Context, status models.RequestStatus) ([]models.PurchaseRequest, error) {
	return s.engine.listByStatus(ctx, status)
}

// ListByDateRange returns requests created between start and end inclusive,
// oldest first.
func (s *PurchaseRequests) ListByDateRange(ctx context.Context, start, end time.Time) ([]models.PurchaseRequest, error) {
	return s.engine.listByDateRange(ctx, start, end)
}

func (s *PurchaseRequests) Page(ctx context.Context, cursor string, size int) (store.Page[models.PurchaseRequest], error) {
	return s.engine.page(ctx, cursor, size)
}

func (s *PurchaseRequests) PageByStatus(ctx context.Context, status models.RequestStatus, cursor string, size int) (store.Page[models.PurchaseRequest], error) {
	return s.engine.pageByStatus(ctx, status, cursor, size)
}

func (s *PurchaseRequests) Delete(ctx context.Context, who identity.Identity, id string) error {
	if err := requireAdmin(who, "delete"); err != nil {
		return err
	}
	return s.engine.delete(ctx, id)
}
