package mongostore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"refill-api-server/internal/apperror"
	"refill-api-server/internal/models"
	"refill-api-server/internal/store"
)

func TestToFilterGroupsByField(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(48 * time.Hour)
	q := store.Where(models.FieldCreatedAt, store.Gte, start).
		And(models.FieldStatus, store.Eq, models.StatusApproved).
		And(models.FieldCreatedAt, store.Lte, end)

	got := toFilter(q.Conditions)

	want := bson.D{
		{Key: models.FieldCreatedAt, Value: bson.D{{Key: "$gte", Value: start}, {Key: "$lte", Value: end}}},
		{Key: models.FieldStatus, Value: bson.D{{Key: "$eq", Value: models.StatusApproved}}},
	}
	assert.Equal(t, want, got)
	assert.Equal(t, bson.D{}, toFilter(nil))
}

func TestClassify(t *testing.T) {
	assert.Nil(t, classify(nil))
	assert.True(t, apperror.IsTransient(classify(context.DeadlineExceeded)))
	assert.True(t, apperror.IsPermanent(classify(errors.New("boom"))))

	nf := apperror.NewNotFound("inventory", "1")
	assert.Same(t, nf, classify(nf))
}

// newIntegrationStore connects to MONGO_URI or skips.
func newIntegrationStore(t *testing.T) *Store {
	t.Helper()
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		t.Skip("MONGO_URI not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	client, err := Connect(ctx, uri)
	if err != nil {
		t.Skipf("mongo unavailable: %v", err)
	}
	db := client.Database("refill_test_" + uuid.NewString()[:8])
	t.Cleanup(func() {
		_ = db.Drop(context.Background())
		_ = client.Disconnect(context.Background())
	})

	s := New(db, store.DefaultRegistry(nil), 3, nil)
	require.NoError(t, s.EnsureIndexes(ctx))
	return s
}

func TestMongoPagingVisitsEveryDocumentOnce(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()
	for i := 0; i < 11; i++ {
		rec := models.InventoryRecord{ID: fmt.Sprintf("inv-%02d", i), Name: fmt.Sprintf("item-%02d", i), Quantity: i, Version: 1}
		require.NoError(t, s.Create(ctx, store.KindInventory, rec.ID, &rec))
	}

	seen := map[string]bool{}
	cursor := ""
	for {
		var items []models.InventoryRecord
		next, err := s.QueryPaged(ctx, store.KindInventory, store.PageRequest{Cursor: cursor, PageSize: 4}, &items)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(items), 4)
		for _, it := range items {
			assert.False(t, seen[it.ID], "duplicate %s", it.ID)
			seen[it.ID] = true
		}
		if next == "" {
			break
		}
		cursor = next
	}
	assert.Len(t, seen, 11)
}

func TestMongoVersionedReplaceAndUniqueName(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()

	rec := models.InventoryRecord{ID: "a", Name: "Pen", Quantity: 1, Version: 1}
	require.NoError(t, s.Create(ctx, store.KindInventory, rec.ID, &rec))

	dup := models.InventoryRecord{ID: "b", Name: "Pen", Version: 1}
	assert.True(t, apperror.IsConflict(s.Create(ctx, store.KindInventory, dup.ID, &dup)))

	rec.Quantity, rec.Version = 5, 2
	require.NoError(t, s.Replace(ctx, store.KindInventory, rec.ID, 1, &rec))
	assert.True(t, apperror.IsConflict(s.Replace(ctx, store.KindInventory, rec.ID, 1, &rec)))
	assert.True(t, apperror.IsNotFound(s.Replace(ctx, store.KindInventory, "zzz", 1, &rec)))

	var got models.InventoryRecord
	found, err := s.Get(ctx, store.KindInventory, "a", &got)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 5, got.Quantity)

	found, err = s.Get(ctx, store.KindInventory, "missing", &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMongoDecimalAndDateRange(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()
	day := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		pr := models.PurchaseRequest{
			ID:        fmt.Sprintf("pr-%d", i),
			Items:     []models.LineItem{{Name: "Pen", UnitPrice: decimal.RequireFromString("0.35"), Quantity: 3}},
			Status:    models.StatusApproved,
			CreatedAt: day.Add(time.Duration(i) * 24 * time.Hour),
		}
		require.NoError(t, s.Create(ctx, store.KindPurchaseRequest, pr.ID, &pr))
	}

	var got []models.PurchaseRequest
	q := store.Where(models.FieldCreatedAt, store.Gte, day.Add(24*time.Hour)).
		And(models.FieldCreatedAt, store.Lte, day.Add(48*time.Hour))
	require.NoError(t, s.Query(ctx, store.KindPurchaseRequest, q, &got))
	require.Len(t, got, 2)
	assert.True(t, decimal.RequireFromString("1.05").Equal(got[0].TotalPrice()))
}
