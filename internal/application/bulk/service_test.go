package bulk

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eshaffer321/marketplace-backend/internal/domain/catalog"
	"github.com/eshaffer321/marketplace-backend/internal/domain/pricing"
	"github.com/eshaffer321/marketplace-backend/internal/domain/tagset"
	"github.com/eshaffer321/marketplace-backend/internal/infrastructure/export"
	"github.com/eshaffer321/marketplace-backend/internal/infrastructure/storage"
)

const vendorID = int64(1)

type fixture struct {
	svc      *Service
	repo     *storage.MockRepository
	exports  string
	registry *MemoryRegistry
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	repo := storage.NewMockRepository()

	dir := t.TempDir()
	store, err := export.NewLocalStore(dir, "http://localhost/exports")
	require.NoError(t, err)

	registry := NewMemoryRegistry()
	svc := NewService(repo, store, registry, NewSQLArchive(repo, time.Hour), nil, opts)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = svc.Shutdown(ctx)
	})

	return &fixture{svc: svc, repo: repo, exports: dir, registry: registry}
}

func (f *fixture) addProduct(t *testing.T, id int64, vendor int64, name, price string) {
	t.Helper()
	require.NoError(t, f.repo.CreateProduct(context.Background(), &catalog.Product{
		ID:       id,
		VendorID: vendor,
		Name:     name,
		Status:   catalog.StatusActive,
		Price:    decimal.RequireFromString(price),
		Stock:    10,
		Tags:     []string{"base"},
		Variants: []catalog.Variant{
			{SKU: name + "-v1", Price: decimal.RequireFromString(price), Stock: 4},
		},
	}))
}

func (f *fixture) product(t *testing.T, id int64) *catalog.Product {
	t.Helper()
	p, err := f.repo.GetProduct(context.Background(), id)
	require.NoError(t, err)
	return p
}

func waitTerminal(t *testing.T, svc *Service, id string) State {
	t.Helper()
	var st State
	require.Eventually(t, func() bool {
		var err error
		st, err = svc.GetStatus(context.Background(), id)
		return err == nil && st.Status.IsTerminal()
	}, 5*time.Second, 5*time.Millisecond)
	return st
}

func waitStatus(t *testing.T, svc *Service, id string, want Status) State {
	t.Helper()
	var st State
	require.Eventually(t, func() bool {
		st, _ = svc.GetStatus(context.Background(), id)
		return st.Status == want
	}, 5*time.Second, 5*time.Millisecond)
	return st
}

func fastOptions() Options {
	return Options{BatchSize: 2, BatchPause: 0}
}

func priceRequest(ids ...int64) Request {
	return Request{
		Operation: KindPriceUpdate,
		TargetIDs: ids,
		Params:    PriceUpdateParams{Method: pricing.PricePercentage, Value: decimal.NewFromInt(10)},
	}
}

func TestSubmit_Validation(t *testing.T) {
	f := newFixture(t, fastOptions())
	f.addProduct(t, 101, vendorID, "mug", "10.00")

	tests := []struct {
		name string
		req  Request
		want error
	}{
		{"unknown operation", Request{Operation: "explode", TargetIDs: []int64{101}, Params: DeleteParams{}}, ErrUnknownOperationType},
		{"no targets", Request{Operation: KindDelete, Params: DeleteParams{}}, ErrMissingParameters},
		{"no params", Request{Operation: KindPriceUpdate, TargetIDs: []int64{101}}, ErrMissingParameters},
		{"mismatched params", Request{Operation: KindPriceUpdate, TargetIDs: []int64{101}, Params: DeleteParams{}}, ErrMissingParameters},
		{"invalid status", Request{Operation: KindStatusChange, TargetIDs: []int64{101}, Params: StatusChangeParams{Status: "gone"}}, ErrInvalidParameterValue},
		{"non-positive price", Request{Operation: KindPriceUpdate, TargetIDs: []int64{101}, Params: PriceUpdateParams{Method: pricing.PriceSet, Value: decimal.Zero}}, ErrInvalidParameterValue},
		{"missing target", priceRequest(101, 999), ErrTargetsNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Submit(context.Background(), vendorID, tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	assert.Zero(t, f.repo.SaveCalls, "validation failures never touch the catalog")
	assert.Empty(t, f.registry.List(vendorID), "no operation registered")
}

func TestSubmit_ForeignTargetsNotFound(t *testing.T) {
	f := newFixture(t, fastOptions())
	f.addProduct(t, 101, vendorID, "mine", "10.00")
	f.addProduct(t, 201, 2, "theirs", "10.00")

	_, err := f.svc.Submit(context.Background(), vendorID, priceRequest(101, 201))
	require.ErrorIs(t, err, ErrTargetsNotFound)

	var missing *MissingTargetsError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, []int64{201}, missing.Missing)
	assert.True(t, decimal.RequireFromString("10").Equal(f.product(t, 201).Price), "foreign product untouched")
}

func TestSubmit_ReturnsPendingImmediately(t *testing.T) {
	f := newFixture(t, fastOptions())
	f.addProduct(t, 101, vendorID, "mug", "10.00")

	st, err := f.svc.Submit(context.Background(), vendorID, priceRequest(101))
	require.NoError(t, err)
	assert.NotEmpty(t, st.OperationID)
	assert.Equal(t, StatusPending, st.Status)
	assert.Equal(t, 1, st.Progress.Total)
	assert.Equal(t, PhaseQueued, st.Progress.CurrentPhase)
	assert.Nil(t, st.EndTime)
}

func TestPriceUpdate_Scenario(t *testing.T) {
	f := newFixture(t, fastOptions())
	f.addProduct(t, 101, vendorID, "a", "100.00")
	f.addProduct(t, 102, vendorID, "b", "250.00")

	st, err := f.svc.Submit(context.Background(), vendorID, priceRequest(101, 102))
	require.NoError(t, err)

	final := waitTerminal(t, f.svc, st.OperationID)
	assert.Equal(t, StatusCompleted, final.Status)
	assert.Equal(t, 2, final.Progress.Successful)
	assert.Equal(t, 0, final.Progress.Failed)
	assert.Equal(t, 100.0, final.Progress.Percentage)
	assert.Equal(t, []int64{101, 102}, final.Results.SuccessfulIDs)
	assert.Equal(t, "Price updated for 2 of 2 products", final.Results.Summary)
	require.NotNil(t, final.EndTime)

	assert.Equal(t, "110.00", f.product(t, 101).Price.StringFixed(2))
	assert.Equal(t, "275.00", f.product(t, 102).Price.StringFixed(2))
	// Variants untouched without applyToVariants
	assert.Equal(t, "100.00", f.product(t, 101).Variants[0].Price.StringFixed(2))
}

func TestPriceUpdate_ApplyToVariants(t *testing.T) {
	f := newFixture(t, fastOptions())
	f.addProduct(t, 101, vendorID, "a", "20.00")

	st, err := f.svc.Submit(context.Background(), vendorID, Request{
		Operation: KindPriceUpdate,
		TargetIDs: []int64{101},
		Params:    PriceUpdateParams{Method: pricing.PriceFixedAmount, Value: decimal.RequireFromString("2.5"), ApplyToVariants: true},
	})
	require.NoError(t, err)
	waitTerminal(t, f.svc, st.OperationID)

	p := f.product(t, 101)
	assert.Equal(t, "22.50", p.Price.StringFixed(2))
	assert.Equal(t, "22.50", p.Variants[0].Price.StringFixed(2))
}

func TestItemFailureIsIsolated(t *testing.T) {
	f := newFixture(t, fastOptions())
	for _, id := range []int64{1, 2, 3} {
		f.addProduct(t, id, vendorID, "p", "5.00")
	}
	f.repo.FailSave(2, errors.New("disk full"))

	st, err := f.svc.Submit(context.Background(), vendorID, Request{
		Operation: KindStatusChange,
		TargetIDs: []int64{1, 2, 3},
		Params:    StatusChangeParams{Status: catalog.StatusInactive},
	})
	require.NoError(t, err)

	final := waitTerminal(t, f.svc, st.OperationID)
	assert.Equal(t, StatusCompleted, final.Status, "item failures never fail the operation")
	assert.Equal(t, 3, final.Progress.Processed)
	assert.Equal(t, 2, final.Progress.Successful)
	assert.Equal(t, 1, final.Progress.Failed)
	assert.Equal(t, []int64{1, 3}, final.Results.SuccessfulIDs)
	require.Len(t, final.Results.FailedItems, 1)
	assert.Equal(t, FailedItem{TargetID: 2, TargetLabel: "p", ErrorMessage: "disk full", ErrorCode: CodeStatusUpdateFailed}, final.Results.FailedItems[0])

	assert.Equal(t, catalog.StatusInactive, f.product(t, 3).Status, "items after the failure still run")
}

func TestPriceHandler_NegativeResultNotSaved(t *testing.T) {
	f := newFixture(t, fastOptions())
	f.addProduct(t, 1, vendorID, "cheap", "1.00")

	h := &priceHandler{catalog: f.repo, params: PriceUpdateParams{Method: pricing.PriceFixedAmount, Value: decimal.RequireFromString("-2")}}
	err := h.Apply(context.Background(), f.product(t, 1))
	assert.ErrorIs(t, err, pricing.ErrNegativePrice)
	assert.Zero(t, f.repo.SaveCalls)
	assert.Equal(t, "1.00", f.product(t, 1).Price.StringFixed(2))
}

func TestDuplicateTargetsAreDeduplicated(t *testing.T) {
	f := newFixture(t, fastOptions())
	f.addProduct(t, 101, vendorID, "a", "100.00")

	st, err := f.svc.Submit(context.Background(), vendorID, priceRequest(101, 101, 101))
	require.NoError(t, err)
	assert.Equal(t, 1, st.Progress.Total)

	final := waitTerminal(t, f.svc, st.OperationID)
	assert.Equal(t, []int64{101}, final.Results.SuccessfulIDs)
	assert.Equal(t, "110.00", f.product(t, 101).Price.StringFixed(2), "applied once")
}

func TestStockAndTags(t *testing.T) {
	f := newFixture(t, fastOptions())
	f.addProduct(t, 1, vendorID, "a", "1.00")

	st, err := f.svc.Submit(context.Background(), vendorID, Request{
		Operation: KindStockUpdate,
		TargetIDs: []int64{1},
		Params:    StockUpdateParams{Method: pricing.StockDecrease, Value: 7, ApplyToVariants: true},
	})
	require.NoError(t, err)
	waitTerminal(t, f.svc, st.OperationID)

	p := f.product(t, 1)
	assert.Equal(t, 3, p.Stock)
	assert.Equal(t, 0, p.Variants[0].Stock, "variant stock clamps at zero")

	st, err = f.svc.Submit(context.Background(), vendorID, Request{
		Operation: KindTagManagement,
		TargetIDs: []int64{1},
		Params:    TagManagementParams{Method: tagset.MethodAdd, Tags: []string{"Sale", "new"}},
	})
	require.NoError(t, err)
	final := waitTerminal(t, f.svc, st.OperationID)
	assert.Equal(t, "Tags updated for 1 of 1 products", final.Results.Summary)
	assert.Equal(t, []string{"base", "new", "sale"}, f.product(t, 1).Tags)
}

func TestStockIncreaseOverflowIsItemFailure(t *testing.T) {
	f := newFixture(t, fastOptions())
	f.addProduct(t, 1, vendorID, "a", "1.00")

	st, err := f.svc.Submit(context.Background(), vendorID, Request{
		Operation: KindStockUpdate,
		TargetIDs: []int64{1},
		Params:    StockUpdateParams{Method: pricing.StockIncrease, Value: math.MaxInt},
	})
	require.NoError(t, err)
	final := waitTerminal(t, f.svc, st.OperationID)

	assert.Equal(t, StatusCompleted, final.Status)
	assert.Equal(t, 0, final.Progress.Successful)
	require.Len(t, final.Results.FailedItems, 1)
	assert.Equal(t, CodeStockUpdateFailed, final.Results.FailedItems[0].ErrorCode)
	assert.Equal(t, 10, f.product(t, 1).Stock, "stock untouched")
}

func TestTagsAddThenRemoveRestoresStoredSet(t *testing.T) {
	f := newFixture(t, fastOptions())
	require.NoError(t, f.repo.CreateProduct(context.Background(), &catalog.Product{
		ID:       1,
		VendorID: vendorID,
		Name:     "towel",
		Price:    decimal.RequireFromString("5.00"),
		Tags:     []string{"Summer", " Beach"},
	}))
	original := f.product(t, 1).Tags
	assert.Equal(t, []string{"beach", "summer"}, original)

	for _, method := range []tagset.Method{tagset.MethodAdd, tagset.MethodRemove} {
		st, err := f.svc.Submit(context.Background(), vendorID, Request{
			Operation: KindTagManagement,
			TargetIDs: []int64{1},
			Params:    TagManagementParams{Method: method, Tags: []string{"gift"}},
		})
		require.NoError(t, err)
		waitTerminal(t, f.svc, st.OperationID)
	}

	assert.Equal(t, original, f.product(t, 1).Tags)
}

func TestCategoryAssignment(t *testing.T) {
	f := newFixture(t, fastOptions())
	f.addProduct(t, 1, vendorID, "a", "1.00")
	cat := &catalog.Category{Name: "Outdoor"}
	require.NoError(t, f.repo.CreateCategory(context.Background(), cat))

	t.Run("assigns", func(t *testing.T) {
		st, err := f.svc.Submit(context.Background(), vendorID, Request{
			Operation: KindCategoryAssignment,
			TargetIDs: []int64{1},
			Params:    CategoryAssignmentParams{CategoryID: cat.ID},
		})
		require.NoError(t, err)
		final := waitTerminal(t, f.svc, st.OperationID)
		assert.Equal(t, StatusCompleted, final.Status)
		require.NotNil(t, f.product(t, 1).CategoryID)
		assert.Equal(t, cat.ID, *f.product(t, 1).CategoryID)
	})

	t.Run("unknown category fails the operation", func(t *testing.T) {
		before := f.repo.SaveCalls
		st, err := f.svc.Submit(context.Background(), vendorID, Request{
			Operation: KindCategoryAssignment,
			TargetIDs: []int64{1},
			Params:    CategoryAssignmentParams{CategoryID: 999},
		})
		require.NoError(t, err)
		final := waitTerminal(t, f.svc, st.OperationID)
		assert.Equal(t, StatusFailed, final.Status)
		assert.Contains(t, final.Results.Summary, "category 999")
		assert.Zero(t, final.Progress.Processed)
		assert.Equal(t, before, f.repo.SaveCalls, "no item touched")
	})
}

func TestExport(t *testing.T) {
	f := newFixture(t, fastOptions())
	f.addProduct(t, 1, vendorID, "a", "1.00")
	f.addProduct(t, 2, vendorID, "b", "2.00")

	st, err := f.svc.Submit(context.Background(), vendorID, Request{
		Operation: KindExport,
		TargetIDs: []int64{2, 1},
		Params:    ExportParams{Format: FormatCSV},
	})
	require.NoError(t, err)

	final := waitTerminal(t, f.svc, st.OperationID)
	require.Equal(t, StatusCompleted, final.Status, final.Results.Summary)
	assert.Equal(t, "http://localhost/exports/vendor-1/"+st.OperationID+".csv", final.DownloadURL)

	data, err := os.ReadFile(filepath.Join(f.exports, "vendor-1", st.OperationID+".csv"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[1], "2,"), "rows follow target order")
	assert.Zero(t, f.repo.SaveCalls, "export never mutates")
}

func TestExport_WithoutStoreFails(t *testing.T) {
	repo := storage.NewMockRepository()
	svc := NewService(repo, nil, nil, nil, nil, fastOptions())
	defer func() { _ = svc.Shutdown(context.Background()) }()
	require.NoError(t, repo.CreateProduct(context.Background(), &catalog.Product{ID: 1, VendorID: vendorID}))

	st, err := svc.Submit(context.Background(), vendorID, Request{Operation: KindExport, TargetIDs: []int64{1}, Params: ExportParams{Format: FormatPDF}})
	require.NoError(t, err)
	final := waitTerminal(t, svc, st.OperationID)
	assert.Equal(t, StatusFailed, final.Status)
	assert.Empty(t, final.DownloadURL)
}

func TestDelete(t *testing.T) {
	f := newFixture(t, fastOptions())
	f.addProduct(t, 1, vendorID, "a", "1.00")
	f.addProduct(t, 2, vendorID, "b", "1.00")
	f.repo.FailDelete(2, errors.New("referenced by open orders"))

	st, err := f.svc.Submit(context.Background(), vendorID, Request{Operation: KindDelete, TargetIDs: []int64{1, 2}, Params: DeleteParams{}})
	require.NoError(t, err)

	final := waitTerminal(t, f.svc, st.OperationID)
	assert.Equal(t, "Deleted 1 of 2 products", final.Results.Summary)
	require.Len(t, final.Results.FailedItems, 1)
	assert.Equal(t, CodeDeleteFailed, final.Results.FailedItems[0].ErrorCode)

	_, err = f.repo.GetProduct(context.Background(), 1)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestProductDeletedBeforeProcessing(t *testing.T) {
	f := newFixture(t, Options{BatchSize: 1, BatchPause: 0})
	f.addProduct(t, 1, vendorID, "a", "1.00")
	f.addProduct(t, 2, vendorID, "b", "1.00")

	// Remove product 2 while product 1 is being saved
	f.repo.SaveHook = func(_ context.Context, p *catalog.Product) {
		if p.ID == 1 {
			_ = f.repo.DeleteProduct(context.Background(), 2)
		}
	}

	st, err := f.svc.Submit(context.Background(), vendorID, priceRequest(1, 2))
	require.NoError(t, err)

	final := waitTerminal(t, f.svc, st.OperationID)
	require.Len(t, final.Results.FailedItems, 1)
	assert.Equal(t, int64(2), final.Results.FailedItems[0].TargetID)
	assert.Equal(t, "#2", final.Results.FailedItems[0].TargetLabel)
	assert.Equal(t, errProductGone.Error(), final.Results.FailedItems[0].ErrorMessage)
}

func TestProgressInvariantWhilePolling(t *testing.T) {
	f := newFixture(t, Options{BatchSize: 5, BatchPause: time.Millisecond})
	var ids []int64
	for id := int64(1); id <= 40; id++ {
		f.addProduct(t, id, vendorID, "p", "3.00")
		ids = append(ids, id)
		if id%7 == 0 {
			f.repo.FailSave(id, errors.New("conflict"))
		}
	}
	f.repo.SaveHook = func(context.Context, *catalog.Product) { time.Sleep(200 * time.Microsecond) }

	st, err := f.svc.Submit(context.Background(), vendorID, priceRequest(ids...))
	require.NoError(t, err)

	lastProcessed, lastPct := -1, -1.0
	for {
		cur, err := f.svc.GetStatus(context.Background(), st.OperationID)
		require.NoError(t, err)

		assert.Equal(t, cur.Progress.Processed, cur.Progress.Successful+cur.Progress.Failed)
		assert.GreaterOrEqual(t, cur.Progress.Processed, lastProcessed, "processed never decreases")
		assert.GreaterOrEqual(t, cur.Progress.Percentage, lastPct, "percentage never decreases")
		assert.Equal(t, len(cur.Results.SuccessfulIDs), cur.Progress.Successful)
		assert.Equal(t, len(cur.Results.FailedItems), cur.Progress.Failed)
		lastProcessed, lastPct = cur.Progress.Processed, cur.Progress.Percentage

		if cur.Status.IsTerminal() {
			assert.Equal(t, StatusCompleted, cur.Status)
			assert.Equal(t, 40, cur.Progress.Processed)
			assert.Equal(t, 5, cur.Progress.Failed)
			break
		}
		time.Sleep(time.Millisecond)
	}
}

// blockingSaves makes SaveProduct wait until release is closed or the job context ends.
func blockingSaves(repo *storage.MockRepository) (started chan struct{}, release chan struct{}) {
	started = make(chan struct{}, 100)
	release = make(chan struct{})
	repo.SaveHook = func(ctx context.Context, _ *catalog.Product) {
		started <- struct{}{}
		select {
		case <-release:
		case <-ctx.Done():
		}
	}
	return started, release
}

func TestCancel(t *testing.T) {
	f := newFixture(t, Options{BatchSize: 1, BatchPause: 0})
	for id := int64(1); id <= 5; id++ {
		f.addProduct(t, id, vendorID, "p", "1.00")
	}
	started, release := blockingSaves(f.repo)
	defer close(release)

	st, err := f.svc.Submit(context.Background(), vendorID, priceRequest(1, 2, 3, 4, 5))
	require.NoError(t, err)
	<-started

	require.NoError(t, f.svc.Cancel(context.Background(), st.OperationID))

	final := waitTerminal(t, f.svc, st.OperationID)
	assert.Equal(t, StatusFailed, final.Status)
	assert.Contains(t, final.Results.Summary, "operation cancelled after")
	assert.Less(t, final.Progress.Processed, 5)

	assert.ErrorIs(t, f.svc.Cancel(context.Background(), st.OperationID), ErrOperationFinalized)
	assert.ErrorIs(t, f.svc.Cancel(context.Background(), "no-such-op"), ErrOperationNotFound)
}

func TestJobTimeout(t *testing.T) {
	f := newFixture(t, Options{BatchSize: 1, BatchPause: 0, JobTimeout: 50 * time.Millisecond})
	f.addProduct(t, 1, vendorID, "p", "1.00")
	f.addProduct(t, 2, vendorID, "p", "1.00")
	_, release := blockingSaves(f.repo)
	defer close(release)

	st, err := f.svc.Submit(context.Background(), vendorID, priceRequest(1, 2))
	require.NoError(t, err)

	final := waitTerminal(t, f.svc, st.OperationID)
	assert.Equal(t, StatusFailed, final.Status)
	assert.Contains(t, final.Results.Summary, "operation timed out")
}

func TestConcurrencyIsBounded(t *testing.T) {
	f := newFixture(t, Options{BatchSize: 10, BatchPause: 0, MaxConcurrentJobs: 1})
	f.addProduct(t, 1, vendorID, "a", "1.00")
	f.addProduct(t, 2, vendorID, "b", "1.00")
	started, release := blockingSaves(f.repo)

	first, err := f.svc.Submit(context.Background(), vendorID, priceRequest(1))
	require.NoError(t, err)
	<-started

	second, err := f.svc.Submit(context.Background(), vendorID, priceRequest(2))
	require.NoError(t, err)

	waitStatus(t, f.svc, first.OperationID, StatusProcessing)
	time.Sleep(20 * time.Millisecond)
	st, err := f.svc.GetStatus(context.Background(), second.OperationID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, st.Status, "second job waits for a slot")

	close(release)
	assert.Equal(t, StatusCompleted, waitTerminal(t, f.svc, first.OperationID).Status)
	assert.Equal(t, StatusCompleted, waitTerminal(t, f.svc, second.OperationID).Status)
}

func TestCancelPendingOperation(t *testing.T) {
	f := newFixture(t, Options{BatchSize: 10, BatchPause: 0, MaxConcurrentJobs: 1})
	f.addProduct(t, 1, vendorID, "a", "1.00")
	f.addProduct(t, 2, vendorID, "b", "1.00")
	started, release := blockingSaves(f.repo)
	defer close(release)

	_, err := f.svc.Submit(context.Background(), vendorID, priceRequest(1))
	require.NoError(t, err)
	<-started

	queued, err := f.svc.Submit(context.Background(), vendorID, priceRequest(2))
	require.NoError(t, err)
	require.NoError(t, f.svc.Cancel(context.Background(), queued.OperationID))

	final := waitTerminal(t, f.svc, queued.OperationID)
	assert.Equal(t, StatusFailed, final.Status)
	assert.Equal(t, "operation cancelled before processing started", final.Results.Summary)
	assert.Zero(t, final.Progress.Processed)
}

func TestPanicInHandlerFailsOperation(t *testing.T) {
	f := newFixture(t, fastOptions())
	f.addProduct(t, 1, vendorID, "a", "1.00")
	f.repo.SaveHook = func(context.Context, *catalog.Product) { panic("boom") }

	st, err := f.svc.Submit(context.Background(), vendorID, priceRequest(1))
	require.NoError(t, err)

	final := waitTerminal(t, f.svc, st.OperationID)
	assert.Equal(t, StatusFailed, final.Status)
	assert.Contains(t, final.Results.Summary, "boom")
}

func TestShutdown(t *testing.T) {
	f := newFixture(t, Options{BatchSize: 1, BatchPause: 0})
	f.addProduct(t, 1, vendorID, "a", "1.00")
	f.addProduct(t, 2, vendorID, "b", "1.00")
	started, release := blockingSaves(f.repo)
	defer close(release)

	st, err := f.svc.Submit(context.Background(), vendorID, priceRequest(1, 2))
	require.NoError(t, err)
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, f.svc.Shutdown(ctx))

	final, err := f.svc.GetStatus(context.Background(), st.OperationID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, final.Status)
	assert.Contains(t, final.Results.Summary, "interrupted by shutdown")

	_, err = f.svc.Submit(context.Background(), vendorID, priceRequest(1))
	assert.ErrorIs(t, err, ErrServiceClosed)
}

func TestArchiveFallbackAfterEviction(t *testing.T) {
	f := newFixture(t, fastOptions())
	f.addProduct(t, 1, vendorID, "a", "1.00")

	st, err := f.svc.Submit(context.Background(), vendorID, priceRequest(1))
	require.NoError(t, err)
	waitTerminal(t, f.svc, st.OperationID)

	// Terminal state was archived, so eviction loses nothing
	require.Eventually(t, func() bool {
		_, err := f.repo.GetBulkOperation(context.Background(), st.OperationID)
		return err == nil
	}, time.Second, 5*time.Millisecond)

	time.Sleep(2 * time.Millisecond)
	assert.Equal(t, 1, f.svc.EvictFinished(time.Millisecond))
	_, inMemory := f.registry.Get(st.OperationID)
	require.False(t, inMemory)

	got, err := f.svc.GetStatus(context.Background(), st.OperationID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, []int64{1}, got.Results.SuccessfulIDs)

	list, err := f.svc.List(context.Background(), vendorID, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, st.OperationID, list[0].OperationID)

	_, err = f.svc.GetStatus(context.Background(), "unknown")
	assert.ErrorIs(t, err, ErrOperationNotFound)
}

func TestListMergesMemoryAndArchive(t *testing.T) {
	f := newFixture(t, fastOptions())
	f.addProduct(t, 1, vendorID, "a", "1.00")

	var ids []string
	for i := 0; i < 3; i++ {
		st, err := f.svc.Submit(context.Background(), vendorID, priceRequest(1))
		require.NoError(t, err)
		waitTerminal(t, f.svc, st.OperationID)
		ids = append(ids, st.OperationID)
		time.Sleep(2 * time.Millisecond)
	}

	list, err := f.svc.List(context.Background(), vendorID, 0)
	require.NoError(t, err)
	require.Len(t, list, 3, "archived copies do not duplicate memory entries")
	assert.Equal(t, ids[2], list[0].OperationID)

	other, err := f.svc.List(context.Background(), 2, 0)
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestMarkStaleOperationsAsFailed(t *testing.T) {
	f := newFixture(t, Options{BatchSize: 1, BatchPause: 0})
	f.addProduct(t, 1, vendorID, "a", "1.00")
	started, release := blockingSaves(f.repo)
	defer close(release)

	st, err := f.svc.Submit(context.Background(), vendorID, priceRequest(1))
	require.NoError(t, err)
	<-started
	waitStatus(t, f.svc, st.OperationID, StatusProcessing)

	time.Sleep(5 * time.Millisecond)
	assert.Equal(t, 1, f.svc.MarkStaleOperationsAsFailed(time.Millisecond))

	final, err := f.svc.GetStatus(context.Background(), st.OperationID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, final.Status)
	assert.Contains(t, final.Results.Summary, "stalled")
}

func TestBackgroundCleanup(t *testing.T) {
	f := newFixture(t, Options{BatchPause: 0, CleanupInterval: 5 * time.Millisecond, Retention: time.Millisecond})
	f.addProduct(t, 1, vendorID, "a", "1.00")

	st, err := f.svc.Submit(context.Background(), vendorID, priceRequest(1))
	require.NoError(t, err)
	waitTerminal(t, f.svc, st.OperationID)

	f.svc.StartBackgroundCleanup()
	require.Eventually(t, func() bool {
		_, ok := f.registry.Get(st.OperationID)
		return !ok
	}, time.Second, 5*time.Millisecond)
	f.svc.StopBackgroundCleanup()
	f.svc.StopBackgroundCleanup() // idempotent
}

func TestConcurrentSubmissions(t *testing.T) {
	f := newFixture(t, Options{BatchSize: 3, BatchPause: 0, MaxConcurrentJobs: 3})
	for id := int64(1); id <= 10; id++ {
		f.addProduct(t, id, vendorID, "p", "1.00")
	}

	var wg sync.WaitGroup
	opIDs := make(chan string, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			st, err := f.svc.Submit(context.Background(), vendorID, Request{
				Operation: KindStockUpdate,
				TargetIDs: []int64{id},
				Params:    StockUpdateParams{Method: pricing.StockIncrease, Value: 1},
			})
			if assert.NoError(t, err) {
				opIDs <- st.OperationID
			}
		}(int64(i + 1))
	}
	wg.Wait()
	close(opIDs)

	for id := range opIDs {
		assert.Equal(t, StatusCompleted, waitTerminal(t, f.svc, id).Status)
	}
	for id := int64(1); id <= 10; id++ {
		assert.Equal(t, 11, f.product(t, id).Stock)
	}
}
