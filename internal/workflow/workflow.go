// Package workflow runs the ItemRequest and PurchaseRequest lifecycles.
//
// Every transition is a versioned write on the request document. Side effects
// (inventory restock, notifications) run after the write succeeds. A failed
// notification is logged and never undoes the transition.
package workflow

import (
	"context"
	"time"

	"refill-api-server/internal/logger"
	"refill-api-server/internal/models"
	"refill-api-server/internal/notify"
)

// Restocker is the part of the inventory ledger the workflow needs.
type Restocker interface {
	Restock(ctx context.Context, name string, delta int, description string) (*models.InventoryRecord, error)
}

// ReceiptStore persists an uploaded receipt and returns where it lives.
type ReceiptStore interface {
	Store(ctx context.Context, data []byte, fileName string) (models.FileReference, error)
}

// Recipients resolves notification addresses.
type Recipients interface {
	AdminEmails(ctx context.Context) ([]string, error)
	UserEmails(ctx context.Context) ([]string, error)
	EmailFor(ctx context.Context, userID string) (string, error)
}

// Upload is one receipt file handed to AttachReceipts.
type Upload struct {
	Name string
	Data []byte
}

type Config struct {
	// ArchiveRejected keeps rejected requests with status Rejected instead
	// of deleting them.
	ArchiveRejected bool
	MaxRetries      int
}

// Deps bundles the collaborators shared by both workflows.
type Deps struct {
	Ledger     Restocker
	Receipts   ReceiptStore
	Recipients Recipients
	Gateway    notify.Gateway
	Templates  *notify.Templates
	Logger     *logger.Logger
	Now        func() time.Time
}

func (d *Deps) defaults() {
	if d.Gateway == nil {
		d.Gateway = notify.Nop
	}
	if d.Templates == nil {
		d.Templates = notify.MustTemplates()
	}
	if d.Logger == nil {
		d.Logger = logger.Nop()
	}
	if d.Now == nil {
		d.Now = func() time.Time { return time.Now().UTC() }
	}
}

// notifier renders and dispatches one notification. Errors are logged.
type notifier struct {
	gateway    notify.Gateway
	templates  *notify.Templates
	recipients Recipients
	log        *logger.Logger
}

type audience func(ctx context.Context) ([]string, error)

func (n *notifier) admins() audience {
	return func(ctx context.Context) ([]string, error) { return n.recipients.AdminEmails(ctx) }
}

func (n *notifier) users() audience {
	return func(ctx context.Context) ([]string, error) { return n.recipients.UserEmails(ctx) }
}

func (n *notifier) owner(userID string) audience {
	return func(ctx context.Context) ([]string, error) {
		email, err := n.recipients.EmailFor(ctx, userID)
		if err != nil {
			return nil, err
		}
		return []string{email}, nil
	}
}

func (n *notifier) send(ctx context.Context, tpl notify.Template, to audience, data notify.Data) {
	log := n.log.With("template", tpl, "request", data.RequestID)
	if n.recipients == nil {
		log.Warnw("no recipient directory configured, notification skipped")
		return
	}
	recipients, err := to(ctx)
	if err != nil {
		log.Errorw("resolve notification recipients", "error", err)
		return
	}
	if len(recipients) == 0 {
		log.Infow("no recipients for notification")
		return
	}
	msg, err := n.templates.Render(tpl, data)
	if err != nil {
		log.Errorw("render notification", "error", err)
		return
	}
	if !n.gateway.Notify(ctx, recipients, msg.Subject, msg.HTML, msg.Text) {
		log.Warnw("notification not delivered", "recipients", len(recipients))
		return
	}
	log.Debugw("notification sent", "recipients", len(recipients))
}
