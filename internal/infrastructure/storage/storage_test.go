package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eshaffer321/marketplace-backend/internal/domain/catalog"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	tmpDB := createTempDB(t)
	t.Cleanup(func() { _ = os.Remove(tmpDB) })

	store, err := NewStorage(tmpDB, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleProduct(vendorID int64, name string) *catalog.Product {
	return &catalog.Product{
		VendorID: vendorID,
		Name:     name,
		SKU:      "SKU-" + name,
		Status:   catalog.StatusActive,
		Price:    decimal.RequireFromString("19.99"),
		Stock:    5,
		Tags:     []string{"new", "sale"},
		Variants: []catalog.Variant{
			{SKU: name + "-S", Name: "Small", Price: decimal.RequireFromString("18.50"), Stock: 2},
			{SKU: name + "-L", Name: "Large", Price: decimal.RequireFromString("21.00"), Stock: 3},
		},
	}
}

func TestStorage_CreateAndGetProduct(t *testing.T) {
	ctx := context.Background()
	store := newTestStorage(t)

	p := sampleProduct(1, "mug")
	require.NoError(t, store.CreateProduct(ctx, p))
	require.NotZero(t, p.ID)
	require.NotZero(t, p.Variants[0].ID)

	got, err := store.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "mug", got.Name)
	assert.Equal(t, catalog.StatusActive, got.Status)
	assert.True(t, decimal.RequireFromString("19.99").Equal(got.Price))
	assert.Equal(t, []string{"new", "sale"}, got.Tags)
	require.Len(t, got.Variants, 2)
	assert.Equal(t, "Small", got.Variants[0].Name)
	assert.True(t, decimal.RequireFromString("18.50").Equal(got.Variants[0].Price))
}

func TestStorage_TagsNormalizedOnWrite(t *testing.T) {
	ctx := context.Background()
	store := newTestStorage(t)

	p := sampleProduct(1, "towel")
	p.Tags = []string{"Summer", " Beach", "summer"}
	require.NoError(t, store.CreateProduct(ctx, p))

	got, err := store.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"beach", "summer"}, got.Tags)

	got.Tags = append(got.Tags, " Gift ")
	require.NoError(t, store.SaveProduct(ctx, got))

	got, err = store.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"beach", "gift", "summer"}, got.Tags)
}

func TestStorage_GetProduct_NotFound(t *testing.T) {
	store := newTestStorage(t)

	_, err := store.GetProduct(context.Background(), 42)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStorage_FindByIDsForVendor(t *testing.T) {
	ctx := context.Background()
	store := newTestStorage(t)

	a := sampleProduct(1, "a")
	b := sampleProduct(1, "b")
	foreign := sampleProduct(2, "foreign")
	for _, p := range []*catalog.Product{a, b, foreign} {
		require.NoError(t, store.CreateProduct(ctx, p))
	}

	t.Run("preserves request order", func(t *testing.T) {
		got, err := store.FindByIDsForVendor(ctx, []int64{b.ID, a.ID}, 1)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, b.ID, got[0].ID)
		assert.Equal(t, a.ID, got[1].ID)
		assert.Len(t, got[0].Variants, 2)
	})

	t.Run("skips other vendors and unknown ids", func(t *testing.T) {
		got, err := store.FindByIDsForVendor(ctx, []int64{a.ID, foreign.ID, 9999}, 1)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, a.ID, got[0].ID)
	})

	t.Run("empty input", func(t *testing.T) {
		got, err := store.FindByIDsForVendor(ctx, nil, 1)
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestStorage_FindByIDsForVendor_LargeRequest(t *testing.T) {
	ctx := context.Background()
	store := newTestStorage(t)

	var ids []int64
	for i := 0; i < maxQueryIDs+25; i++ {
		p := &catalog.Product{VendorID: 3, Name: "bulk", Price: decimal.NewFromInt(1)}
		require.NoError(t, store.CreateProduct(ctx, p))
		ids = append(ids, p.ID)
	}

	got, err := store.FindByIDsForVendor(ctx, ids, 3)
	require.NoError(t, err)
	assert.Len(t, got, len(ids))
}

func TestStorage_SaveProduct(t *testing.T) {
	ctx := context.Background()
	store := newTestStorage(t)

	cat := &catalog.Category{Name: "Kitchen & Dining"}
	require.NoError(t, store.CreateCategory(ctx, cat))

	p := sampleProduct(1, "kettle")
	require.NoError(t, store.CreateProduct(ctx, p))

	p.Status = catalog.StatusArchived
	p.Price = decimal.RequireFromString("25.00")
	p.Stock = 0
	p.CategoryID = &cat.ID
	p.Tags = []string{"clearance"}
	p.Variants[1].Price = decimal.RequireFromString("30.00")
	p.Variants[1].Stock = 9
	require.NoError(t, store.SaveProduct(ctx, p))

	got, err := store.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, catalog.StatusArchived, got.Status)
	assert.True(t, decimal.RequireFromString("25.00").Equal(got.Price))
	assert.Equal(t, 0, got.Stock)
	require.NotNil(t, got.CategoryID)
	assert.Equal(t, cat.ID, *got.CategoryID)
	assert.Equal(t, []string{"clearance"}, got.Tags)
	assert.True(t, decimal.RequireFromString("30").Equal(got.Variants[1].Price))
	assert.Equal(t, 9, got.Variants[1].Stock)
}

func TestStorage_SaveProduct_Missing(t *testing.T) {
	store := newTestStorage(t)

	err := store.SaveProduct(context.Background(), &catalog.Product{ID: 77, Price: decimal.Zero})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStorage_DeleteProduct_Cascades(t *testing.T) {
	ctx := context.Background()
	store := newTestStorage(t)

	p := sampleProduct(1, "lamp")
	require.NoError(t, store.CreateProduct(ctx, p))
	require.NoError(t, store.DeleteProduct(ctx, p.ID))

	_, err := store.GetProduct(ctx, p.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	var variants, tags int
	require.NoError(t, store.db.QueryRow("SELECT COUNT(*) FROM product_variants WHERE product_id = ?", p.ID).Scan(&variants))
	require.NoError(t, store.db.QueryRow("SELECT COUNT(*) FROM product_tags WHERE product_id = ?", p.ID).Scan(&tags))
	assert.Zero(t, variants)
	assert.Zero(t, tags)

	assert.ErrorIs(t, store.DeleteProduct(ctx, p.ID), ErrNotFound)
}

func TestStorage_Categories(t *testing.T) {
	ctx := context.Background()
	store := newTestStorage(t)

	c := &catalog.Category{Name: "Home & Garden"}
	require.NoError(t, store.CreateCategory(ctx, c))
	assert.Equal(t, "home-and-garden", c.Slug)

	got, err := store.FindCategoryByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "Home & Garden", got.Name)

	_, err = store.FindCategoryByID(ctx, 404)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStorage_BulkOperations(t *testing.T) {
	ctx := context.Background()
	store := newTestStorage(t)

	now := time.Now().UTC().Truncate(time.Second)
	old := now.Add(-48 * time.Hour)

	records := []*BulkOperationRecord{
		{ID: "op-old", VendorID: 1, Operation: "delete", Status: "completed", Payload: []byte(`{"a":1}`), CreatedAt: old, FinishedAt: &old},
		{ID: "op-new", VendorID: 1, Operation: "export", Status: "completed", Payload: []byte(`{"b":2}`), CreatedAt: now, FinishedAt: &now},
		{ID: "op-other", VendorID: 2, Operation: "export", Status: "failed", Payload: []byte(`{}`), CreatedAt: now, FinishedAt: &now},
	}
	for _, r := range records {
		require.NoError(t, store.SaveBulkOperation(ctx, r))
	}

	got, err := store.GetBulkOperation(ctx, "op-new")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.VendorID)
	assert.JSONEq(t, `{"b":2}`, string(got.Payload))
	require.NotNil(t, got.FinishedAt)

	list, err := store.ListBulkOperations(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "op-new", list[0].ID, "newest first")

	// Upsert replaces status and payload
	records[1].Status = "failed"
	records[1].Payload = []byte(`{"b":3}`)
	require.NoError(t, store.SaveBulkOperation(ctx, records[1]))
	got, err = store.GetBulkOperation(ctx, "op-new")
	require.NoError(t, err)
	assert.Equal(t, "failed", got.Status)

	n, err := store.DeleteBulkOperationsBefore(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = store.GetBulkOperation(ctx, "op-old")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMockRepository_ErrorInjection(t *testing.T) {
	ctx := context.Background()
	mock := NewMockRepository()

	p := sampleProduct(1, "mock")
	require.NoError(t, mock.CreateProduct(ctx, p))

	mock.FailSave(p.ID, assert.AnError)
	assert.ErrorIs(t, mock.SaveProduct(ctx, p), assert.AnError)
	assert.Equal(t, 1, mock.SaveCalls)

	found, err := mock.FindByIDsForVendor(ctx, []int64{p.ID}, 2)
	require.NoError(t, err)
	assert.Empty(t, found, "other vendor sees nothing")

	// Returned products are copies
	found, err = mock.FindByIDsForVendor(ctx, []int64{p.ID}, 1)
	require.NoError(t, err)
	found[0].Tags[0] = "mutated"
	again, _ := mock.GetProduct(ctx, p.ID)
	assert.Equal(t, "new", again.Tags[0])
}
