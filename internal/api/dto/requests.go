package dto

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/eshaffer321/marketplace-backend/internal/application/bulk"
	"github.com/eshaffer321/marketplace-backend/internal/domain/catalog"
	"github.com/eshaffer321/marketplace-backend/internal/domain/pricing"
	"github.com/eshaffer321/marketplace-backend/internal/domain/tagset"
)

// CreateBulkOperationRequest is the body of POST /api/bulk-operations.
// Only the parameter object matching Operation is read.
type CreateBulkOperationRequest struct {
	Operation  string          `json:"operation"`
	TargetIDs  []int64         `json:"targetIds" validate:"required,min=1"`
	Parameters *BulkParameters `json:"parameters"`
}

// BulkParameters carries one optional object per operation kind.
type BulkParameters struct {
	StatusChange       *StatusChangeParams       `json:"statusChange"`
	PriceUpdate        *PriceUpdateParams        `json:"priceUpdate"`
	StockUpdate        *StockUpdateParams        `json:"stockUpdate"`
	CategoryAssignment *CategoryAssignmentParams `json:"categoryAssignment"`
	TagManagement      *TagManagementParams      `json:"tagManagement"`
	Export             *ExportParams             `json:"export"`
}

type StatusChangeParams struct {
	Status string `json:"status" validate:"required,oneof=draft active inactive archived"`
}

type PriceUpdateParams struct {
	Method          string           `json:"method" validate:"required,oneof=percentage fixed_amount set_price"`
	Value           *decimal.Decimal `json:"value" validate:"required"`
	ApplyToVariants bool             `json:"applyToVariants"`
}

type StockUpdateParams struct {
	Method          string `json:"method" validate:"required,oneof=increase decrease set_quantity"`
	Value           *int   `json:"value" validate:"required,gte=0"`
	ApplyToVariants bool   `json:"applyToVariants"`
}

type CategoryAssignmentParams struct {
	CategoryID int64 `json:"categoryId" validate:"required,gt=0"`
}

type TagManagementParams struct {
	Method string   `json:"method" validate:"required,oneof=add_tags remove_tags replace_tags"`
	Tags   []string `json:"tags" validate:"max=100,dive,max=64"`
}

type ExportParams struct {
	Format string `json:"format" validate:"omitempty,oneof=csv xlsx pdf"`
}

// ToRequest validates the body and converts it to an engine request.
// Errors wrap the bulk validation sentinels.
func (r *CreateBulkOperationRequest) ToRequest() (bulk.Request, error) {
	kind, err := bulk.ParseKind(r.Operation)
	if err != nil {
		return bulk.Request{}, err
	}
	if err := Validate(r); err != nil {
		return bulk.Request{}, err
	}

	params, err := r.parameters(kind)
	if err != nil {
		return bulk.Request{}, err
	}

	return bulk.Request{
		Operation: kind,
		TargetIDs: r.TargetIDs,
		Params:    params,
	}, nil
}

func (r *CreateBulkOperationRequest) parameters(kind bulk.Kind) (bulk.Parameters, error) {
	p := r.Parameters
	if p == nil {
		p = &BulkParameters{}
	}

	switch kind {
	case bulk.KindStatusChange:
		if p.StatusChange == nil {
			return nil, missing("statusChange")
		}
		return bulk.StatusChangeParams{Status: catalog.Status(p.StatusChange.Status)}, nil

	case bulk.KindPriceUpdate:
		if p.PriceUpdate == nil {
			return nil, missing("priceUpdate")
		}
		return bulk.PriceUpdateParams{
			Method:          pricing.PriceMethod(p.PriceUpdate.Method),
			Value:           *p.PriceUpdate.Value,
			ApplyToVariants: p.PriceUpdate.ApplyToVariants,
		}, nil

	case bulk.KindStockUpdate:
		if p.StockUpdate == nil {
			return nil, missing("stockUpdate")
		}
		return bulk.StockUpdateParams{
			Method:          pricing.StockMethod(p.StockUpdate.Method),
			Value:           *p.StockUpdate.Value,
			ApplyToVariants: p.StockUpdate.ApplyToVariants,
		}, nil

	case bulk.KindCategoryAssignment:
		if p.CategoryAssignment == nil {
			return nil, missing("categoryAssignment")
		}
		return bulk.CategoryAssignmentParams{CategoryID: p.CategoryAssignment.CategoryID}, nil

	case bulk.KindTagManagement:
		if p.TagManagement == nil {
			return nil, missing("tagManagement")
		}
		return bulk.TagManagementParams{
			Method: tagset.Method(p.TagManagement.Method),
			Tags:   p.TagManagement.Tags,
		}, nil

	case bulk.KindExport:
		// Format defaults to csv, so the object itself is optional
		format := ""
		if p.Export != nil {
			format = p.Export.Format
		}
		return bulk.ExportParams{Format: bulk.ParseExportFormat(format)}, nil

	case bulk.KindDelete:
		return bulk.DeleteParams{}, nil
	}
	return nil, fmt.Errorf("%w: %q", bulk.ErrUnknownOperationType, kind)
}

func missing(field string) error {
	return fmt.Errorf("%w: parameters.%s is required", bulk.ErrMissingParameters, field)
}
