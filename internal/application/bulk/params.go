package bulk

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/eshaffer321/marketplace-backend/internal/domain/catalog"
	"github.com/eshaffer321/marketplace-backend/internal/domain/pricing"
	"github.com/eshaffer321/marketplace-backend/internal/domain/tagset"
)

// Parameters carries the options of exactly one operation kind.
// Each kind has its own struct; the set is closed to this package.
type Parameters interface {
	Kind() Kind
	Validate() error
	isParameters()
}

// StatusChangeParams moves products to a lifecycle status.
type StatusChangeParams struct {
	Status catalog.Status
}

// PriceUpdateParams recalculates product prices.
type PriceUpdateParams struct {
	Method          pricing.PriceMethod
	Value           decimal.Decimal
	ApplyToVariants bool
}

// StockUpdateParams adjusts stock levels.
type StockUpdateParams struct {
	Method          pricing.StockMethod
	Value           int
	ApplyToVariants bool
}

// CategoryAssignmentParams moves products into one category.
type CategoryAssignmentParams struct {
	CategoryID int64
}

// TagManagementParams edits product tag sets.
type TagManagementParams struct {
	Method tagset.Method
	Tags   []string
}

// ExportFormat is the artifact type produced by an export.
type ExportFormat string

const (
	FormatCSV  ExportFormat = "csv"
	FormatXLSX ExportFormat = "xlsx"
	FormatPDF  ExportFormat = "pdf"
)

// ExportParams renders the targets into a downloadable file.
type ExportParams struct {
	Format ExportFormat
}

// DeleteParams removes products. It has no options.
type DeleteParams struct{}

func (StatusChangeParams) Kind() Kind       { return KindStatusChange }
func (PriceUpdateParams) Kind() Kind        { return KindPriceUpdate }
func (StockUpdateParams) Kind() Kind        { return KindStockUpdate }
func (CategoryAssignmentParams) Kind() Kind { return KindCategoryAssignment }
func (TagManagementParams) Kind() Kind      { return KindTagManagement }
func (ExportParams) Kind() Kind             { return KindExport }
func (DeleteParams) Kind() Kind             { return KindDelete }

func (StatusChangeParams) isParameters()       {}
func (PriceUpdateParams) isParameters()        {}
func (StockUpdateParams) isParameters()        {}
func (CategoryAssignmentParams) isParameters() {}
func (TagManagementParams) isParameters()      {}
func (ExportParams) isParameters()             {}
func (DeleteParams) isParameters()             {}

func (p StatusChangeParams) Validate() error {
	if !p.Status.IsValid() {
		return invalidParam("status %q is not one of draft, active, inactive, archived", p.Status)
	}
	return nil
}

func (p PriceUpdateParams) Validate() error {
	if !p.Method.IsValid() {
		return invalidParam("price method %q is not one of percentage, fixed_amount, set_price", p.Method)
	}
	if !p.Value.IsPositive() {
		return invalidParam("price value must be greater than 0, got %s", p.Value)
	}
	return nil
}

func (p StockUpdateParams) Validate() error {
	if !p.Method.IsValid() {
		return invalidParam("stock method %q is not one of increase, decrease, set_quantity", p.Method)
	}
	if p.Value < 0 {
		return invalidParam("stock value must not be negative, got %d", p.Value)
	}
	return nil
}

func (p CategoryAssignmentParams) Validate() error {
	if p.CategoryID <= 0 {
		return invalidParam("category id must be positive, got %d", p.CategoryID)
	}
	return nil
}

func (p TagManagementParams) Validate() error {
	if !p.Method.IsValid() {
		return invalidParam("tag method %q is not one of add_tags, remove_tags, replace_tags", p.Method)
	}
	if p.Method != tagset.MethodReplace && len(tagset.Normalize(p.Tags)) == 0 {
		return invalidParam("%s requires at least one non-blank tag", p.Method)
	}
	return nil
}

func (p ExportParams) Validate() error {
	switch p.Format {
	case FormatCSV, FormatXLSX, FormatPDF:
		return nil
	}
	return invalidParam("export format %q is not one of csv, xlsx, pdf", p.Format)
}

func (DeleteParams) Validate() error { return nil }

// ParseExportFormat maps a wire value to a format; blank means csv.
func ParseExportFormat(s string) ExportFormat {
	if strings.TrimSpace(s) == "" {
		return FormatCSV
	}
	return ExportFormat(strings.ToLower(s))
}
