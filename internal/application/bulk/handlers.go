package bulk

import (
	"context"
	"errors"
	"fmt"

	"github.com/eshaffer321/marketplace-backend/internal/domain/catalog"
	"github.com/eshaffer321/marketplace-backend/internal/domain/pricing"
	"github.com/eshaffer321/marketplace-backend/internal/domain/tagset"
	"github.com/eshaffer321/marketplace-backend/internal/infrastructure/export"
)

// Item error codes reported in FailedItem.ErrorCode
const (
	CodeStatusUpdateFailed       = "STATUS_UPDATE_FAILED"
	CodePriceUpdateFailed        = "PRICE_UPDATE_FAILED"
	CodeStockUpdateFailed        = "STOCK_UPDATE_FAILED"
	CodeCategoryAssignmentFailed = "CATEGORY_ASSIGNMENT_FAILED"
	CodeTagUpdateFailed          = "TAG_UPDATE_FAILED"
	CodeExportFailed             = "EXPORT_FAILED"
	CodeDeleteFailed             = "DELETE_FAILED"
)

// errProductGone is recorded when a target disappears between submission and processing.
var errProductGone = errors.New("product no longer exists")

// itemHandler is the per-kind strategy the batch executor drives.
// Prepare runs once before any item; Finish runs once after the last.
type itemHandler interface {
	Prepare(ctx context.Context) error
	Apply(ctx context.Context, p *catalog.Product) error
	Finish(ctx context.Context, st *State) error
	ErrorCode() string
	Summary(successful, total int) string
}

// noHooks provides empty Prepare and Finish.
type noHooks struct{}

func (noHooks) Prepare(context.Context) error        { return nil }
func (noHooks) Finish(context.Context, *State) error { return nil }

func (s *Service) newHandler(op *operation) (itemHandler, error) {
	switch p := op.params.(type) {
	case StatusChangeParams:
		return &statusHandler{catalog: s.catalog, params: p}, nil
	case PriceUpdateParams:
		return &priceHandler{catalog: s.catalog, params: p}, nil
	case StockUpdateParams:
		return &stockHandler{catalog: s.catalog, params: p}, nil
	case CategoryAssignmentParams:
		return &categoryHandler{catalog: s.catalog, params: p}, nil
	case TagManagementParams:
		return &tagHandler{catalog: s.catalog, params: p}, nil
	case ExportParams:
		return &exportHandler{store: s.artifacts, params: p, vendorID: op.vendorID, operationID: op.id}, nil
	case DeleteParams:
		return &deleteHandler{catalog: s.catalog}, nil
	default:
		return nil, fmt.Errorf("%w: no handler for %T", ErrUnknownOperationType, op.params)
	}
}

type statusHandler struct {
	noHooks
	catalog Catalog
	params  StatusChangeParams
}

func (h *statusHandler) Apply(ctx context.Context, p *catalog.Product) error {
	p.Status = h.params.Status
	return h.catalog.SaveProduct(ctx, p)
}

func (h *statusHandler) ErrorCode() string { return CodeStatusUpdateFailed }

func (h *statusHandler) Summary(ok, total int) string {
	return fmt.Sprintf("Status changed to %s for %d of %d products", h.params.Status, ok, total)
}

type priceHandler struct {
	noHooks
	catalog Catalog
	params  PriceUpdateParams
}

func (h *priceHandler) Apply(ctx context.Context, p *catalog.Product) error {
	next, err := pricing.CalculateNewPrice(p.Price, h.params.Method, h.params.Value)
	if err != nil {
		return err
	}
	p.Price = next

	if h.params.ApplyToVariants {
		for i := range p.Variants {
			v := &p.Variants[i]
			next, err := pricing.CalculateNewPrice(v.Price, h.params.Method, h.params.Value)
			if err != nil {
				return fmt.Errorf("variant %s: %w", v.SKU, err)
			}
			v.Price = next
		}
	}
	return h.catalog.SaveProduct(ctx, p)
}

func (h *priceHandler) ErrorCode() string { return CodePriceUpdateFailed }

func (h *priceHandler) Summary(ok, total int) string {
	return fmt.Sprintf("Price updated for %d of %d products", ok, total)
}

type stockHandler struct {
	noHooks
	catalog Catalog
	params  StockUpdateParams
}

func (h *stockHandler) Apply(ctx context.Context, p *catalog.Product) error {
	next, err := pricing.CalculateNewStock(p.Stock, h.params.Method, h.params.Value)
	if err != nil {
		return err
	}
	p.Stock = next

	if h.params.ApplyToVariants {
		for i := range p.Variants {
			v := &p.Variants[i]
			if v.Stock, err = pricing.CalculateNewStock(v.Stock, h.params.Method, h.params.Value); err != nil {
				return fmt.Errorf("variant %s: %w", v.SKU, err)
			}
		}
	}
	return h.catalog.SaveProduct(ctx, p)
}

func (h *stockHandler) ErrorCode() string { return CodeStockUpdateFailed }

func (h *stockHandler) Summary(ok, total int) string {
	return fmt.Sprintf("Stock updated for %d of %d products", ok, total)
}

type categoryHandler struct {
	catalog  Catalog
	params   CategoryAssignmentParams
	category *catalog.Category
}

// Prepare fails the whole operation when the category does not exist.
func (h *categoryHandler) Prepare(ctx context.Context) error {
	c, err := h.catalog.FindCategoryByID(ctx, h.params.CategoryID)
	if err != nil {
		return fmt.Errorf("category %d could not be loaded: %w", h.params.CategoryID, err)
	}
	h.category = c
	return nil
}

func (h *categoryHandler) Apply(ctx context.Context, p *catalog.Product) error {
	id := h.category.ID
	p.CategoryID = &id
	return h.catalog.SaveProduct(ctx, p)
}

func (h *categoryHandler) Finish(context.Context, *State) error { return nil }

func (h *categoryHandler) ErrorCode() string { return CodeCategoryAssignmentFailed }

func (h *categoryHandler) Summary(ok, total int) string {
	return fmt.Sprintf("Category %q assigned to %d of %d products", h.category.Name, ok, total)
}

type tagHandler struct {
	noHooks
	catalog Catalog
	params  TagManagementParams
}

func (h *tagHandler) Apply(ctx context.Context, p *catalog.Product) error {
	tags, err := tagset.Apply(h.params.Method, p.Tags, h.params.Tags)
	if err != nil {
		return err
	}
	p.Tags = tags
	return h.catalog.SaveProduct(ctx, p)
}

func (h *tagHandler) ErrorCode() string { return CodeTagUpdateFailed }

func (h *tagHandler) Summary(ok, total int) string {
	return fmt.Sprintf("Tags updated for %d of %d products", ok, total)
}

type exportHandler struct {
	store       export.ArtifactStore
	params      ExportParams
	vendorID    int64
	operationID string

	renderer export.Renderer
	rows     []*catalog.Product
}

func (h *exportHandler) Prepare(context.Context) error {
	if h.store == nil {
		return errors.New("no export storage is configured")
	}
	r, err := export.RendererFor(string(h.params.Format))
	if err != nil {
		return err
	}
	h.renderer = r
	return nil
}

func (h *exportHandler) Apply(_ context.Context, p *catalog.Product) error {
	h.rows = append(h.rows, p)
	return nil
}

// Finish renders the collected rows and stores the artifact.
func (h *exportHandler) Finish(ctx context.Context, st *State) error {
	body, err := h.renderer.Render(h.rows)
	if err != nil {
		return fmt.Errorf("failed to render %s export: %w", h.params.Format, err)
	}

	key := fmt.Sprintf("vendor-%d/%s.%s", h.vendorID, h.operationID, h.renderer.Extension())
	url, err := h.store.Put(ctx, key, h.renderer.ContentType(), body)
	if err != nil {
		return fmt.Errorf("failed to store export: %w", err)
	}
	st.DownloadURL = url
	return nil
}

func (h *exportHandler) ErrorCode() string { return CodeExportFailed }

func (h *exportHandler) Summary(ok, total int) string {
	return fmt.Sprintf("Exported %d of %d products as %s", ok, total, h.params.Format)
}

type deleteHandler struct {
	noHooks
	catalog Catalog
}

func (h *deleteHandler) Apply(ctx context.Context, p *catalog.Product) error {
	return h.catalog.DeleteProduct(ctx, p.ID)
}

func (h *deleteHandler) ErrorCode() string { return CodeDeleteFailed }

func (h *deleteHandler) Summary(ok, total int) string {
	return fmt.Sprintf("Deleted %d of %d products", ok, total)
}
