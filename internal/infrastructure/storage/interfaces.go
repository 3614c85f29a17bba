package storage

import (
	"context"
	"errors"
	"time"

	"github.com/eshaffer321/marketplace-backend/internal/domain/catalog"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Repository defines the complete storage interface.
// This interface allows swapping implementations (SQLite, in-memory mock)
// and makes testing with mocks straightforward.
type Repository interface {
	ProductRepository
	CategoryRepository
	BulkOperationRepository
	Close() error
}

// ProductRepository handles vendor catalog listings
type ProductRepository interface {
	// FindByIDsForVendor returns the products among ids owned by vendorID,
	// in the order of ids. Missing or foreign ids are simply absent.
	FindByIDsForVendor(ctx context.Context, ids []int64, vendorID int64) ([]*catalog.Product, error)

	// GetProduct retrieves a product with its variants and tags
	GetProduct(ctx context.Context, id int64) (*catalog.Product, error)

	// CreateProduct inserts a product and its variants, assigning IDs
	CreateProduct(ctx context.Context, p *catalog.Product) error

	// SaveProduct persists product fields, variant price/stock and tags in one transaction
	SaveProduct(ctx context.Context, p *catalog.Product) error

	// DeleteProduct removes a product; variants and tags cascade
	DeleteProduct(ctx context.Context, id int64) error
}

// CategoryRepository handles product categories
type CategoryRepository interface {
	// FindCategoryByID retrieves a category or ErrNotFound
	FindCategoryByID(ctx context.Context, id int64) (*catalog.Category, error)

	// CreateCategory inserts a category, deriving its slug from the name when empty
	CreateCategory(ctx context.Context, c *catalog.Category) error
}

// BulkOperationRepository keeps finished bulk operations after they leave memory
type BulkOperationRepository interface {
	// SaveBulkOperation inserts or replaces an operation record
	SaveBulkOperation(ctx context.Context, rec *BulkOperationRecord) error

	// GetBulkOperation retrieves an operation record or ErrNotFound
	GetBulkOperation(ctx context.Context, id string) (*BulkOperationRecord, error)

	// ListBulkOperations returns a vendor's records, newest first
	ListBulkOperations(ctx context.Context, vendorID int64, limit int) ([]*BulkOperationRecord, error)

	// DeleteBulkOperationsBefore removes records finished before cutoff
	DeleteBulkOperationsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// BulkOperationRecord is the persisted form of a bulk operation.
// Payload holds the serialized operation state.
type BulkOperationRecord struct {
	ID         string
	VendorID   int64
	Operation  string
	Status     string
	Payload    []byte
	CreatedAt  time.Time
	FinishedAt *time.Time
}
