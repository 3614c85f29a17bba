package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gosimple/slug"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/eshaffer321/marketplace-backend/internal/domain/catalog"
	"github.com/eshaffer321/marketplace-backend/internal/domain/tagset"
)

// Storage provides SQLite database access for the catalog and bulk operation archive.
// It implements the Repository interface.
type Storage struct {
	db     *sql.DB
	logger *slog.Logger
}

// Compile-time check that Storage implements Repository
var _ Repository = (*Storage)(nil)

// NewStorage opens (or creates) the SQLite database at dbPath and applies migrations
func NewStorage(dbPath string, logger *slog.Logger) (*Storage, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	// Foreign keys are a per-connection setting in SQLite, so they go in the DSN
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	// One writer at a time; concurrent jobs queue on the pool instead of failing with SQLITE_BUSY
	db.SetMaxOpenConns(1)

	s := &Storage{db: db, logger: logger.With("component", "storage")}

	if err := s.runMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable
func (s *Storage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// maxQueryIDs bounds the IN (...) list of a single query
const maxQueryIDs = 500

// FindByIDsForVendor returns the vendor's products among ids, preserving the order of ids
func (s *Storage) FindByIDsForVendor(ctx context.Context, ids []int64, vendorID int64) ([]*catalog.Product, error) {
	byID := make(map[int64]*catalog.Product, len(ids))
	for start := 0; start < len(ids); start += maxQueryIDs {
		end := min(start+maxQueryIDs, len(ids))
		if err := s.findChunk(ctx, ids[start:end], vendorID, byID); err != nil {
			return nil, err
		}
	}

	products := make([]*catalog.Product, 0, len(byID))
	for _, id := range ids {
		if p, ok := byID[id]; ok {
			products = append(products, p)
			delete(byID, id)
		}
	}
	return products, nil
}

func (s *Storage) findChunk(ctx context.Context, ids []int64, vendorID int64, into map[int64]*catalog.Product) error {
	args := make([]any, 0, len(ids)+1)
	args = append(args, vendorID)
	for _, id := range ids {
		args = append(args, id)
	}

	query := `
	SELECT id, vendor_id, name, sku, status, price, stock, category_id, updated_at
	FROM products
	WHERE vendor_id = ? AND id IN (` + placeholders(len(ids)) + `)`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	var found []*catalog.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			_ = rows.Close()
			return err
		}
		found = append(found, p)
	}
	// Release the connection before loading children
	if err := rows.Close(); err != nil {
		return err
	}
	if err := rows.Err(); err != nil {
		return err
	}

	if err := s.loadChildren(ctx, found); err != nil {
		return err
	}
	for _, p := range found {
		into[p.ID] = p
	}
	return nil
}

// GetProduct retrieves a product by ID
func (s *Storage) GetProduct(ctx context.Context, id int64) (*catalog.Product, error) {
	row := s.db.QueryRowContext(ctx, `
	SELECT id, vendor_id, name, sku, status, price, stock, category_id, updated_at
	FROM products WHERE id = ?`, id)

	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("product %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if err := s.loadChildren(ctx, []*catalog.Product{p}); err != nil {
		return nil, err
	}
	return p, nil
}

// CreateProduct inserts a product with its variants and tags
func (s *Storage) CreateProduct(ctx context.Context, p *catalog.Product) error {
	if p.Status == "" {
		p.Status = catalog.StatusDraft
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now().UTC()
	}
	p.Tags = tagset.Normalize(p.Tags)

	return s.withTx(ctx, func(tx *sql.Tx) error {
		query := `
		INSERT INTO products (vendor_id, name, sku, status, price, stock, category_id, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
		if p.ID != 0 {
			query = `
			INSERT INTO products (id, vendor_id, name, sku, status, price, stock, category_id, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
		}

		args := []any{p.VendorID, p.Name, p.SKU, string(p.Status), p.Price.String(), p.Stock, nullableID(p.CategoryID), p.UpdatedAt}
		if p.ID != 0 {
			args = append([]any{p.ID}, args...)
		}

		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("insert product: %w", err)
		}
		if p.ID == 0 {
			if p.ID, err = res.LastInsertId(); err != nil {
				return err
			}
		}

		for i := range p.Variants {
			v := &p.Variants[i]
			v.ProductID = p.ID
			res, err := tx.ExecContext(ctx, `
			INSERT INTO product_variants (product_id, sku, name, price, stock)
			VALUES (?, ?, ?, ?, ?)`, v.ProductID, v.SKU, v.Name, v.Price.String(), v.Stock)
			if err != nil {
				return fmt.Errorf("insert variant: %w", err)
			}
			if v.ID, err = res.LastInsertId(); err != nil {
				return err
			}
		}

		return replaceTags(ctx, tx, p.ID, p.Tags)
	})
}

// SaveProduct updates product fields, variant price/stock and the tag set
func (s *Storage) SaveProduct(ctx context.Context, p *catalog.Product) error {
	p.UpdatedAt = time.Now().UTC()
	p.Tags = tagset.Normalize(p.Tags)

	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
		UPDATE products
		SET name = ?, sku = ?, status = ?, price = ?, stock = ?, category_id = ?, updated_at = ?
		WHERE id = ?`,
			p.Name, p.SKU, string(p.Status), p.Price.String(), p.Stock, nullableID(p.CategoryID), p.UpdatedAt, p.ID)
		if err != nil {
			return fmt.Errorf("update product %d: %w", p.ID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("product %d: %w", p.ID, ErrNotFound)
		}

		for _, v := range p.Variants {
			if _, err := tx.ExecContext(ctx, `
			UPDATE product_variants SET price = ?, stock = ? WHERE id = ? AND product_id = ?`,
				v.Price.String(), v.Stock, v.ID, p.ID); err != nil {
				return fmt.Errorf("update variant %d: %w", v.ID, err)
			}
		}

		return replaceTags(ctx, tx, p.ID, p.Tags)
	})
}

// DeleteProduct removes a product
func (s *Storage) DeleteProduct(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("product %d: %w", id, ErrNotFound)
	}
	return nil
}

// FindCategoryByID retrieves a category by ID
func (s *Storage) FindCategoryByID(ctx context.Context, id int64) (*catalog.Category, error) {
	c := &catalog.Category{}
	err := s.db.QueryRowContext(ctx, `SELECT id, name, slug FROM categories WHERE id = ?`, id).
		Scan(&c.ID, &c.Name, &c.Slug)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("category %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// CreateCategory inserts a category
func (s *Storage) CreateCategory(ctx context.Context, c *catalog.Category) error {
	if c.Slug == "" {
		c.Slug = slug.Make(c.Name)
	}

	query := `INSERT INTO categories (name, slug) VALUES (?, ?)`
	args := []any{c.Name, c.Slug}
	if c.ID != 0 {
		query = `INSERT INTO categories (id, name, slug) VALUES (?, ?, ?)`
		args = append([]any{c.ID}, args...)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("insert category %q: %w", c.Name, err)
	}
	if c.ID == 0 {
		c.ID, err = res.LastInsertId()
	}
	return err
}

// SaveBulkOperation upserts a bulk operation record
func (s *Storage) SaveBulkOperation(ctx context.Context, rec *BulkOperationRecord) error {
	_, err := s.db.ExecContext(ctx, `
	INSERT INTO bulk_operations (id, vendor_id, operation, status, payload, created_at, finished_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		status = excluded.status,
		payload = excluded.payload,
		finished_at = excluded.finished_at`,
		rec.ID, rec.VendorID, rec.Operation, rec.Status, rec.Payload, rec.CreatedAt.UTC(), nullableTime(rec.FinishedAt))
	return err
}

// GetBulkOperation retrieves a bulk operation record by ID
func (s *Storage) GetBulkOperation(ctx context.Context, id string) (*BulkOperationRecord, error) {
	row := s.db.QueryRowContext(ctx, `
	SELECT id, vendor_id, operation, status, payload, created_at, finished_at
	FROM bulk_operations WHERE id = ?`, id)

	rec, err := scanBulkOperation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("bulk operation %s: %w", id, ErrNotFound)
	}
	return rec, err
}

// ListBulkOperations returns a vendor's bulk operation records, newest first
func (s *Storage) ListBulkOperations(ctx context.Context, vendorID int64, limit int) ([]*BulkOperationRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
	SELECT id, vendor_id, operation, status, payload, created_at, finished_at
	FROM bulk_operations
	WHERE vendor_id = ?
	ORDER BY created_at DESC
	LIMIT ?`, vendorID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var records []*BulkOperationRecord
	for rows.Next() {
		rec, err := scanBulkOperation(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// DeleteBulkOperationsBefore removes records that finished before cutoff
func (s *Storage) DeleteBulkOperationsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
	DELETE FROM bulk_operations WHERE finished_at IS NOT NULL AND finished_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// loadChildren fills variants and tags for products in two queries
func (s *Storage) loadChildren(ctx context.Context, products []*catalog.Product) error {
	if len(products) == 0 {
		return nil
	}

	byID := make(map[int64]*catalog.Product, len(products))
	args := make([]any, 0, len(products))
	for _, p := range products {
		byID[p.ID] = p
		p.Tags = []string{}
		args = append(args, p.ID)
	}
	in := placeholders(len(products))

	rows, err := s.db.QueryContext(ctx, `
	SELECT id, product_id, sku, name, price, stock
	FROM product_variants WHERE product_id IN (`+in+`) ORDER BY id`, args...)
	if err != nil {
		return err
	}
	for rows.Next() {
		var v catalog.Variant
		var price string
		if err := rows.Scan(&v.ID, &v.ProductID, &v.SKU, &v.Name, &price, &v.Stock); err != nil {
			_ = rows.Close()
			return err
		}
		if v.Price, err = decimal.NewFromString(price); err != nil {
			_ = rows.Close()
			return fmt.Errorf("variant %d price %q: %w", v.ID, price, err)
		}
		byID[v.ProductID].Variants = append(byID[v.ProductID].Variants, v)
	}
	if err := rows.Close(); err != nil {
		return err
	}
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = s.db.QueryContext(ctx, `
	SELECT product_id, tag FROM product_tags WHERE product_id IN (`+in+`) ORDER BY tag`, args...)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var productID int64
		var tag string
		if err := rows.Scan(&productID, &tag); err != nil {
			return err
		}
		byID[productID].Tags = append(byID[productID].Tags, tag)
	}
	return rows.Err()
}

func (s *Storage) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// replaceTags expects tags already normalized
func replaceTags(ctx context.Context, tx *sql.Tx, productID int64, tags []string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM product_tags WHERE product_id = ?`, productID); err != nil {
		return fmt.Errorf("clear tags: %w", err)
	}
	for _, tag := range tags {
		if _, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO product_tags (product_id, tag) VALUES (?, ?)`, productID, tag); err != nil {
			return fmt.Errorf("insert tag %q: %w", tag, err)
		}
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProduct(row scanner) (*catalog.Product, error) {
	p := &catalog.Product{}
	var status, price string
	var categoryID sql.NullInt64
	var updatedAt sql.NullTime
	if err := row.Scan(&p.ID, &p.VendorID, &p.Name, &p.SKU, &status, &price, &p.Stock, &categoryID, &updatedAt); err != nil {
		return nil, err
	}

	p.Status = catalog.Status(status)
	dec, err := decimal.NewFromString(price)
	if err != nil {
		return nil, fmt.Errorf("product %d price %q: %w", p.ID, price, err)
	}
	p.Price = dec
	if categoryID.Valid {
		id := categoryID.Int64
		p.CategoryID = &id
	}
	if updatedAt.Valid {
		p.UpdatedAt = updatedAt.Time
	}
	return p, nil
}

func scanBulkOperation(row scanner) (*BulkOperationRecord, error) {
	rec := &BulkOperationRecord{}
	var finishedAt sql.NullTime
	if err := row.Scan(&rec.ID, &rec.VendorID, &rec.Operation, &rec.Status, &rec.Payload, &rec.CreatedAt, &finishedAt); err != nil {
		return nil, err
	}
	if finishedAt.Valid {
		t := finishedAt.Time
		rec.FinishedAt = &t
	}
	return rec, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func nullableID(id *int64) any {
	if id == nil {
		return nil
	}
	return *id
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
