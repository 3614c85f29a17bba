package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gosimple/slug"

	"github.com/eshaffer321/marketplace-backend/internal/domain/catalog"
	"github.com/eshaffer321/marketplace-backend/internal/domain/tagset"
)

// MockRepository is an in-memory implementation of Repository for testing.
// It is safe for concurrent use so bulk workers can run against it.
type MockRepository struct {
	mu             sync.Mutex
	products       map[int64]*catalog.Product
	categories     map[int64]*catalog.Category
	bulkOperations map[string]*BulkOperationRecord
	nextProductID  int64
	nextCategoryID int64

	// Call counters for test assertions
	FindCalls   int
	SaveCalls   int
	DeleteCalls int

	// Error injection for testing error paths
	FindErr              error
	FindCategoryErr      error
	SaveBulkOperationErr error
	SaveProductErrFor    map[int64]error // per-product SaveProduct failures
	DeleteErrFor         map[int64]error // per-product DeleteProduct failures

	// SaveHook, when set, runs inside SaveProduct before the write (e.g. to slow a job down)
	SaveHook func(ctx context.Context, p *catalog.Product)
}

// NewMockRepository creates a new mock repository for testing
func NewMockRepository() *MockRepository {
	return &MockRepository{
		products:          make(map[int64]*catalog.Product),
		categories:        make(map[int64]*catalog.Category),
		bulkOperations:    make(map[string]*BulkOperationRecord),
		nextProductID:     1,
		nextCategoryID:    1,
		SaveProductErrFor: make(map[int64]error),
		DeleteErrFor:      make(map[int64]error),
	}
}

// Compile-time check that MockRepository implements Repository
var _ Repository = (*MockRepository)(nil)

// FailSave makes SaveProduct fail for the given product
func (m *MockRepository) FailSave(id int64, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SaveProductErrFor[id] = err
}

// FailDelete makes DeleteProduct fail for the given product
func (m *MockRepository) FailDelete(id int64, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DeleteErrFor[id] = err
}

// FindByIDsForVendor implements ProductRepository
func (m *MockRepository) FindByIDsForVendor(_ context.Context, ids []int64, vendorID int64) ([]*catalog.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FindCalls++
	if m.FindErr != nil {
		return nil, m.FindErr
	}

	var out []*catalog.Product
	for _, id := range ids {
		if p, ok := m.products[id]; ok && p.VendorID == vendorID {
			out = append(out, p.Clone())
		}
	}
	return out, nil
}

// GetProduct implements ProductRepository
func (m *MockRepository) GetProduct(_ context.Context, id int64) (*catalog.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return nil, fmt.Errorf("product %d: %w", id, ErrNotFound)
	}
	return p.Clone(), nil
}

// CreateProduct implements ProductRepository
func (m *MockRepository) CreateProduct(_ context.Context, p *catalog.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == 0 {
		p.ID = m.nextProductID
	}
	if p.ID >= m.nextProductID {
		m.nextProductID = p.ID + 1
	}
	if p.Status == "" {
		p.Status = catalog.StatusDraft
	}
	p.Tags = tagset.Normalize(p.Tags)
	for i := range p.Variants {
		p.Variants[i].ProductID = p.ID
		if p.Variants[i].ID == 0 {
			p.Variants[i].ID = p.ID*1000 + int64(i) + 1
		}
	}
	m.products[p.ID] = p.Clone()
	return nil
}

// SaveProduct implements ProductRepository
func (m *MockRepository) SaveProduct(ctx context.Context, p *catalog.Product) error {
	if hook := m.saveHook(); hook != nil {
		hook(ctx, p)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.SaveCalls++
	if err := m.SaveProductErrFor[p.ID]; err != nil {
		return err
	}
	if _, ok := m.products[p.ID]; !ok {
		return fmt.Errorf("product %d: %w", p.ID, ErrNotFound)
	}
	saved := p.Clone()
	saved.Tags = tagset.Normalize(saved.Tags)
	saved.UpdatedAt = time.Now().UTC()
	m.products[p.ID] = saved
	return nil
}

func (m *MockRepository) saveHook() func(context.Context, *catalog.Product) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.SaveHook
}

// DeleteProduct implements ProductRepository
func (m *MockRepository) DeleteProduct(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DeleteCalls++
	if err := m.DeleteErrFor[id]; err != nil {
		return err
	}
	if _, ok := m.products[id]; !ok {
		return fmt.Errorf("product %d: %w", id, ErrNotFound)
	}
	delete(m.products, id)
	return nil
}

// FindCategoryByID implements CategoryRepository
func (m *MockRepository) FindCategoryByID(_ context.Context, id int64) (*catalog.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FindCategoryErr != nil {
		return nil, m.FindCategoryErr
	}
	c, ok := m.categories[id]
	if !ok {
		return nil, fmt.Errorf("category %d: %w", id, ErrNotFound)
	}
	cp := *c
	return &cp, nil
}

// CreateCategory implements CategoryRepository
func (m *MockRepository) CreateCategory(_ context.Context, c *catalog.Category) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == 0 {
		c.ID = m.nextCategoryID
	}
	if c.ID >= m.nextCategoryID {
		m.nextCategoryID = c.ID + 1
	}
	if c.Slug == "" {
		c.Slug = slug.Make(c.Name)
	}
	cp := *c
	m.categories[c.ID] = &cp
	return nil
}

// SaveBulkOperation implements BulkOperationRepository
func (m *MockRepository) SaveBulkOperation(_ context.Context, rec *BulkOperationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveBulkOperationErr != nil {
		return m.SaveBulkOperationErr
	}
	cp := *rec
	cp.Payload = append([]byte(nil), rec.Payload...)
	m.bulkOperations[rec.ID] = &cp
	return nil
}

// GetBulkOperation implements BulkOperationRepository
func (m *MockRepository) GetBulkOperation(_ context.Context, id string) (*BulkOperationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.bulkOperations[id]
	if !ok {
		return nil, fmt.Errorf("bulk operation %s: %w", id, ErrNotFound)
	}
	cp := *rec
	return &cp, nil
}

// ListBulkOperations implements BulkOperationRepository
func (m *MockRepository) ListBulkOperations(_ context.Context, vendorID int64, limit int) ([]*BulkOperationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*BulkOperationRecord
	for _, rec := range m.bulkOperations {
		if rec.VendorID == vendorID {
			cp := *rec
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// DeleteBulkOperationsBefore implements BulkOperationRepository
func (m *MockRepository) DeleteBulkOperationsBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, rec := range m.bulkOperations {
		if rec.FinishedAt != nil && rec.FinishedAt.Before(cutoff) {
			delete(m.bulkOperations, id)
			n++
		}
	}
	return n, nil
}

// Close implements Repository
func (m *MockRepository) Close() error {
	return nil
}
