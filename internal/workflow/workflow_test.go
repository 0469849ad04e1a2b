package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"refill-api-server/internal/apperror"
	"refill-api-server/internal/identity"
	"refill-api-server/internal/ledger"
	"refill-api-server/internal/models"
	"refill-api-server/internal/store"
	"refill-api-server/internal/store/memstore"
)

var (
	admin = identity.Identity{UserID: "admin-1", Email: "boss@example.com", Name: "Boss", Role: identity.RoleAdmin}
	alice = identity.Identity{UserID: "user-1", Email: "alice@example.com", Name: "Alice", Role: identity.RoleUser}
	bob   = identity.Identity{UserID: "user-2", Email: "bob@example.com", Name: "Bob", Role: identity.RoleUser}

	fixedNow = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
)

type sent struct {
	to      []string
	subject string
}

type recordingGateway struct {
	mu   sync.Mutex
	fail bool
	sent []sent
}

func (g *recordingGateway) Notify(_ context.Context, to []string, subject, _, _ string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sent = append(g.sent, sent{to: to, subject: subject})
	return !g.fail
}

func (g *recordingGateway) last() sent {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.sent) == 0 {
		return sent{}
	}
	return g.sent[len(g.sent)-1]
}

type staticRecipients struct {
	err error
}

func (r staticRecipients) AdminEmails(context.Context) ([]string, error) {
	return []string{admin.Email}, r.err
}

func (r staticRecipients) UserEmails(context.Context) ([]string, error) {
	return []string{alice.Email, bob.Email}, r.err
}

func (r staticRecipients) EmailFor(_ context.Context, userID string) (string, error) {
	if r.err != nil {
		return "", r.err
	}
	switch userID {
	case alice.UserID:
		return alice.Email, nil
	case bob.UserID:
		return bob.Email, nil
	}
	return "", apperror.NewNotFound("user", userID)
}

type memReceipts struct {
	mu     sync.Mutex
	stored []string
	err    error
}

func (m *memReceipts) Store(_ context.Context, data []byte, name string) (models.FileReference, error) {
	if m.err != nil {
		return models.FileReference{}, m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stored = append(m.stored, name)
	return models.FileReference{
		Name:        name,
		URL:         "https://receipts.example.com/" + name,
		Size:        int64(len(data)),
		ContentType: "image/png",
	}, nil
}

type failingRestocker struct{}

func (failingRestocker) Restock(context.Context, string, int, string) (*models.InventoryRecord, error) {
	return nil, apperror.NewTransient(errors.New("store unavailable"))
}

type fixture struct {
	store     store.Store
	ledger    *ledger.Ledger
	gateway   *recordingGateway
	receipts  *memReceipts
	items     *ItemRequests
	purchases *PurchaseRequests
}

func newFixture(t *testing.T, cfg Config, tweak ...func(*Deps)) *fixture {
	t.Helper()
	s := memstore.New(store.DefaultRegistry(nil))
	f := &fixture{
		store:    s,
		ledger:   ledger.New(s, ledger.WithClock(func() time.Time { return fixedNow })),
		gateway:  &recordingGateway{},
		receipts: &memReceipts{},
	}
	deps := Deps{
		Ledger:     f.ledger,
		Receipts:   f.receipts,
		Recipients: staticRecipients{},
		Gateway:    f.gateway,
		Now:        func() time.Time { return fixedNow },
	}
	for _, fn := range tweak {
		fn(&deps)
	}
	f.items = NewItemRequests(s, cfg, deps)
	f.purchases = NewPurchaseRequests(s, cfg, deps)
	return f
}

func pens(qty int) []models.LineItem {
	return []models.LineItem{{Name: "Pen", Quantity: qty, UnitPrice: decimal.RequireFromString("1.25")}}
}

func (f *fixture) stock(t *testing.T, name string) int {
	t.Helper()
	rec, err := f.ledger.GetByName(context.Background(), name)
	require.NoError(t, err)
	if rec == nil {
		return 0
	}
	return rec.Quantity
}

func TestItemRequestScenario(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	req, err := f.items.Create(ctx, alice, pens(5))
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, req.Status)
	assert.Equal(t, fixedNow, req.CreatedAt)
	assert.Equal(t, []string{admin.Email}, f.gateway.last().to)
	assert.Equal(t, "New Item Request Notification", f.gateway.last().subject)

	req, err = f.items.Approve(ctx, admin, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, req.Status)
	assert.Equal(t, []string{alice.Email, bob.Email}, f.gateway.last().to)
	assert.Equal(t, "Your Request has been Approved", f.gateway.last().subject)

	req, err = f.items.Complete(ctx, admin, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, req.Status)
	assert.Equal(t, 5, f.stock(t, "Pen"))

	stored, err := f.items.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, stored.Status)
}

func TestItemRequestCompleteMergesExistingStock(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	_, err := f.ledger.Restock(ctx, "Pen", 2, "")
	require.NoError(t, err)

	req, err := f.items.Create(ctx, alice, pens(5))
	require.NoError(t, err)
	_, err = f.items.UpdateStatus(ctx, admin, req.ID, models.StatusApproved)
	require.NoError(t, err)
	_, err = f.items.UpdateStatus(ctx, admin, req.ID, models.StatusCompleted)
	require.NoError(t, err)

	assert.Equal(t, 7, f.stock(t, "Pen"))
}

func TestItemRequestGuards(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	_, err := f.items.Create(ctx, identity.Identity{}, pens(1))
	assert.True(t, apperror.IsUnauthorized(err))
	_, err = f.items.Create(ctx, alice, nil)
	assert.True(t, apperror.IsValidation(err))
	_, err = f.items.Create(ctx, alice, pens(0))
	assert.True(t, apperror.IsValidation(err))

	req, err := f.items.Create(ctx, alice, pens(1))
	require.NoError(t, err)

	_, err = f.items.Approve(ctx, alice, req.ID)
	assert.True(t, apperror.IsUnauthorized(err))
	_, err = f.items.Complete(ctx, admin, req.ID)
	assert.True(t, apperror.IsInvalidState(err), "pending requests cannot be completed")
	_, err = f.items.Approve(ctx, admin, "missing")
	assert.True(t, apperror.IsNotFound(err))
	_, err = f.items.UpdateStatus(ctx, admin, req.ID, models.StatusPurchased)
	assert.True(t, apperror.IsValidation(err))

	assert.Equal(t, 0, f.stock(t, "Pen"))
}

func TestRejectDeletesRequest(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	req, err := f.items.Create(ctx, alice, pens(1))
	require.NoError(t, err)
	rejected, err := f.items.Reject(ctx, admin, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, rejected.Status)
	assert.Equal(t, "Your Request has been Rejected", f.gateway.last().subject)

	_, err = f.items.Get(ctx, req.ID)
	assert.True(t, apperror.IsNotFound(err))
	_, err = f.items.Reject(ctx, admin, req.ID)
	assert.True(t, apperror.IsNotFound(err))
}

func TestRejectArchivesWhenConfigured(t *testing.T) {
	f := newFixture(t, Config{ArchiveRejected: true})
	ctx := context.Background()

	req, err := f.purchases.Create(ctx, alice, pens(1))
	require.NoError(t, err)
	_, err = f.purchases.Reject(ctx, admin, req.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{alice.Email}, f.gateway.last().to)

	stored, err := f.purchases.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, stored.Status)

	_, err = f.purchases.Approve(ctx, admin, req.ID)
	assert.True(t, apperror.IsInvalidState(err))

	rejected, err := f.purchases.ListByStatus(ctx, models.StatusRejected)
	require.NoError(t, err)
	assert.Len(t, rejected, 1)
}

func TestRejectAfterApproveIsInvalid(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	req, err := f.items.Create(ctx, alice, pens(1))
	require.NoError(t, err)
	_, err = f.items.Approve(ctx, admin, req.ID)
	require.NoError(t, err)

	_, err = f.items.Reject(ctx, admin, req.ID)
	assert.True(t, apperror.IsInvalidState(err))
	stored, err := f.items.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, stored.Status)
}

func TestCompletingTwiceRestocksOnce(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	req, err := f.purchases.Create(ctx, alice, pens(4))
	require.NoError(t, err)
	_, err = f.purchases.Approve(ctx, admin, req.ID)
	require.NoError(t, err)

	_, err = f.purchases.Complete(ctx, alice, req.ID)
	require.NoError(t, err)
	notified := len(f.gateway.sent)

	again, err := f.purchases.Complete(ctx, admin, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, again.Status)
	assert.Equal(t, 4, f.stock(t, "Pen"))
	assert.Len(t, f.gateway.sent, notified, "a repeated completion sends nothing")
}

func TestConcurrentCompletionRestocksOnce(t *testing.T) {
	f := newFixture(t, Config{MaxRetries: 20})
	ctx := context.Background()

	req, err := f.items.Create(ctx, alice, pens(3))
	require.NoError(t, err)
	_, err = f.items.Approve(ctx, admin, req.ID)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.items.Complete(ctx, admin, req.ID)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, f.stock(t, "Pen"))
}

func TestPurchaseRequestLifecycle(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	req, err := f.purchases.Create(ctx, alice, pens(2))
	require.NoError(t, err)
	assert.Equal(t, alice.UserID, req.UserID)
	assert.True(t, decimal.RequireFromString("2.50").Equal(req.TotalPrice()))
	assert.Equal(t, "New Item Request for Re-stock/Purchase", f.gateway.last().subject)

	_, err = f.purchases.Approve(ctx, admin, req.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{alice.Email}, f.gateway.last().to)
	assert.Equal(t, "Your Purchase Request Status Update - Approved", f.gateway.last().subject)

	req, err = f.purchases.AttachReceipts(ctx, alice, req.ID, []Upload{
		{Name: "till.png", Data: []byte("png")},
		{Name: "card.png", Data: []byte("png2")},
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusPurchased, req.Status)
	require.Len(t, req.Receipts, 2)
	assert.Equal(t, "https://receipts.example.com/till.png", req.Receipts[0].URL)
	assert.EqualValues(t, 4, req.Receipts[1].Size)
	assert.Equal(t, []string{admin.Email}, f.gateway.last().to)

	req, err = f.purchases.UpdateStatus(ctx, alice, req.ID, models.StatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, req.Status)
	assert.Equal(t, 2, f.stock(t, "Pen"))
	assert.Equal(t, []string{alice.Email}, f.gateway.last().to)
}

func TestAttachReceiptsGuards(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	req, err := f.purchases.Create(ctx, alice, pens(1))
	require.NoError(t, err)
	files := []Upload{{Name: "r.png", Data: []byte("x")}}

	_, err = f.purchases.AttachReceipts(ctx, alice, req.ID, files)
	assert.True(t, apperror.IsInvalidState(err), "pending request")
	_, err = f.purchases.AttachReceipts(ctx, bob, req.ID, files)
	assert.True(t, apperror.IsUnauthorized(err), "ownership is checked before status")
	_, err = f.purchases.AttachReceipts(ctx, alice, req.ID, nil)
	assert.True(t, apperror.IsValidation(err))
	assert.Empty(t, f.receipts.stored, "nothing is uploaded for a refused request")

	_, err = f.purchases.Approve(ctx, admin, req.ID)
	require.NoError(t, err)
	f.receipts.err = apperror.NewTransient(errors.New("bucket unreachable"))
	_, err = f.purchases.AttachReceipts(ctx, alice, req.ID, files)
	assert.True(t, apperror.IsTransient(err))

	stored, err := f.purchases.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, stored.Status)
	assert.Empty(t, stored.Receipts)
}

func TestEditPurchasedItems(t *testing.T) {
	later := fixedNow.Add(time.Hour)
	clock := fixedNow
	f := newFixture(t, Config{}, func(d *Deps) {
		d.Now = func() time.Time { return clock }
	})
	ctx := context.Background()

	req, err := f.purchases.Create(ctx, alice, pens(1))
	require.NoError(t, err)

	_, err = f.purchases.EditPurchasedItems(ctx, alice, req.ID, pens(9))
	assert.True(t, apperror.IsInvalidState(err), "pending request")

	_, err = f.purchases.Approve(ctx, admin, req.ID)
	require.NoError(t, err)

	clock = later
	edited, err := f.purchases.EditPurchasedItems(ctx, alice, req.ID, []models.LineItem{
		{Name: "Pencil", Quantity: 3, UnitPrice: decimal.NewFromInt(2)},
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, edited.Status)
	assert.Equal(t, later, edited.CreatedAt)
	require.Len(t, edited.Items, 1)
	assert.Equal(t, "Pencil", edited.Items[0].Name)
	assert.True(t, decimal.NewFromInt(6).Equal(edited.TotalPrice()))
	assert.Equal(t, []string{admin.Email}, f.gateway.last().to)

	_, err = f.purchases.EditPurchasedItems(ctx, alice, req.ID, nil)
	assert.True(t, apperror.IsValidation(err))
}

func TestOwnershipIsCheckedRegardlessOfStatus(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	for _, status := range []models.RequestStatus{models.StatusPending, models.StatusApproved, models.StatusCompleted} {
		t.Run(string(status), func(t *testing.T) {
			req, err := f.purchases.Create(ctx, alice, pens(1))
			require.NoError(t, err)
			if status != models.StatusPending {
				_, err = f.purchases.Approve(ctx, admin, req.ID)
				require.NoError(t, err)
			}
			if status == models.StatusCompleted {
				_, err = f.purchases.Complete(ctx, alice, req.ID)
				require.NoError(t, err)
			}

			_, err = f.purchases.EditPurchasedItems(ctx, bob, req.ID, pens(2))
			assert.True(t, apperror.IsUnauthorized(err))
			_, err = f.purchases.EditPurchasedItems(ctx, admin, req.ID, pens(2))
			assert.True(t, apperror.IsUnauthorized(err), "admins do not own the request")
			_, err = f.purchases.Complete(ctx, bob, req.ID)
			assert.True(t, apperror.IsUnauthorized(err))
		})
	}
}

func TestNotificationFailureKeepsTransition(t *testing.T) {
	f := newFixture(t, Config{})
	f.gateway.fail = true
	ctx := context.Background()

	req, err := f.purchases.Create(ctx, alice, pens(1))
	require.NoError(t, err)
	approved, err := f.purchases.Approve(ctx, admin, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, approved.Status)

	stored, err := f.purchases.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, stored.Status)
}

func TestRecipientFailureKeepsTransition(t *testing.T) {
	f := newFixture(t, Config{}, func(d *Deps) {
		d.Recipients = staticRecipients{err: errors.New("directory down")}
	})
	ctx := context.Background()

	req, err := f.items.Create(ctx, alice, pens(1))
	require.NoError(t, err)
	_, err = f.items.Approve(ctx, admin, req.ID)
	require.NoError(t, err)
	assert.Empty(t, f.gateway.sent)
}

func TestRestockFailureAfterCompletion(t *testing.T) {
	f := newFixture(t, Config{}, func(d *Deps) {
		d.Ledger = failingRestocker{}
	})
	ctx := context.Background()

	req, err := f.items.Create(ctx, alice, []models.LineItem{{Name: "Pen", Quantity: 1}, {Name: "Ink", Quantity: 2}})
	require.NoError(t, err)
	_, err = f.items.Approve(ctx, admin, req.ID)
	require.NoError(t, err)

	done, err := f.items.Complete(ctx, admin, req.ID)
	require.Error(t, err)
	assert.True(t, apperror.IsTransient(err))
	assert.Contains(t, err.Error(), `"Pen"`)
	assert.Contains(t, err.Error(), `"Ink"`)
	require.NotNil(t, done)
	assert.Equal(t, models.StatusCompleted, done.Status)
}

func TestPurchaseListings(t *testing.T) {
	clock := fixedNow
	f := newFixture(t, Config{}, func(d *Deps) {
		d.Now = func() time.Time { return clock }
	})
	ctx := context.Background()

	var ids []string
	for i := 0; i < 5; i++ {
		clock = fixedNow.Add(time.Duration(i) * 24 * time.Hour)
		req, err := f.purchases.Create(ctx, alice, pens(i+1))
		require.NoError(t, err)
		ids = append(ids, req.ID)
	}
	_, err := f.purchases.Approve(ctx, admin, ids[1])
	require.NoError(t, err)
	_, err = f.purchases.Approve(ctx, admin, ids[3])
	require.NoError(t, err)

	inRange, err := f.purchases.ListByDateRange(ctx, fixedNow.Add(24*time.Hour), fixedNow.Add(3*24*time.Hour))
	require.NoError(t, err)
	require.Len(t, inRange, 3)
	for i, r := range inRange {
		assert.Equal(t, ids[i+1], r.ID, "oldest first, bounds included")
	}
	_, err = f.purchases.ListByDateRange(ctx, fixedNow.Add(time.Hour), fixedNow)
	assert.True(t, apperror.IsValidation(err))

	seen := map[string]bool{}
	cursor := ""
	for {
		page, err := f.purchases.PageByStatus(ctx, models.StatusPending, cursor, 2)
		require.NoError(t, err)
		for _, r := range page.Items {
			assert.Equal(t, models.StatusPending, r.Status)
			seen[r.ID] = true
		}
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}
	assert.Len(t, seen, 3)

	all, err := f.purchases.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 5)

	page, err := f.purchases.Page(ctx, "", 10)
	require.NoError(t, err)
	assert.Len(t, page.Items, 5)
	assert.Empty(t, page.NextCursor)
}

func TestDeleteRequiresAdmin(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	req, err := f.purchases.Create(ctx, alice, pens(1))
	require.NoError(t, err)
	assert.True(t, apperror.IsUnauthorized(f.purchases.Delete(ctx, alice, req.ID)))
	require.NoError(t, f.purchases.Delete(ctx, admin, req.ID))
	assert.True(t, apperror.IsNotFound(f.purchases.Delete(ctx, admin, req.ID)))

	item, err := f.items.Create(ctx, alice, pens(1))
	require.NoError(t, err)
	require.NoError(t, f.items.Delete(ctx, admin, item.ID))
	items, err := f.items.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)
}
