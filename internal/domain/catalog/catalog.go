// Package catalog defines the marketplace catalog entities that bulk
// operations read and mutate: products, their variants, and categories.
package catalog

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle status of a product listing.
type Status string

const (
	StatusDraft    Status = "draft"
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusArchived Status = "archived"
)

// ValidStatuses lists every status a product may be moved to.
var ValidStatuses = []Status{StatusDraft, StatusActive, StatusInactive, StatusArchived}

// IsValid reports whether s is a known lifecycle status.
func (s Status) IsValid() bool {
	for _, v := range ValidStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// Product is a vendor-owned listing.
type Product struct {
	ID         int64           `json:"id" yaml:"id"`
	VendorID   int64           `json:"vendor_id" yaml:"vendor_id"`
	Name       string          `json:"name" yaml:"name"`
	SKU        string          `json:"sku" yaml:"sku"`
	Status     Status          `json:"status" yaml:"status"`
	Price      decimal.Decimal `json:"price" yaml:"-"`
	Stock      int             `json:"stock" yaml:"stock"`
	CategoryID *int64          `json:"category_id,omitempty" yaml:"category_id,omitempty"`
	Tags       []string        `json:"tags" yaml:"tags"`
	Variants   []Variant       `json:"variants,omitempty" yaml:"variants,omitempty"`
	UpdatedAt  time.Time       `json:"updated_at" yaml:"-"`
}

// Label returns a human-readable identifier used in failure reports.
func (p *Product) Label() string {
	if p.Name != "" {
		return p.Name
	}
	return fmt.Sprintf("#%d", p.ID)
}

// Clone returns a deep copy of the product so callers can mutate it freely.
func (p *Product) Clone() *Product {
	c := *p
	if p.CategoryID != nil {
		id := *p.CategoryID
		c.CategoryID = &id
	}
	c.Tags = append([]string(nil), p.Tags...)
	c.Variants = append([]Variant(nil), p.Variants...)
	return &c
}

// Variant is a purchasable option of a product (size, color, ...).
type Variant struct {
	ID        int64           `json:"id" yaml:"id"`
	ProductID int64           `json:"product_id" yaml:"-"`
	SKU       string          `json:"sku" yaml:"sku"`
	Name      string          `json:"name" yaml:"name"`
	Price     decimal.Decimal `json:"price" yaml:"-"`
	Stock     int             `json:"stock" yaml:"stock"`
}

// Category groups products. Slug is derived from Name.
type Category struct {
	ID   int64  `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
	Slug string `json:"slug" yaml:"slug"`
}
