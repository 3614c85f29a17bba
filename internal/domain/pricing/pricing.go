// Package pricing holds the arithmetic behind bulk price and stock updates.
//
// Prices are decimals rounded to cents, half-up:
//
//	percentage:   price * (1 + value/100)
//	fixed_amount: price + value
//	set_price:    value
//
// Stock never drops below zero:
//
//	increase:     stock + value
//	decrease:     max(0, stock - value)
//	set_quantity: max(0, value)
package pricing

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// PriceMethod selects how a new price is derived from the current one.
type PriceMethod string

const (
	PricePercentage  PriceMethod = "percentage"
	PriceFixedAmount PriceMethod = "fixed_amount"
	PriceSet         PriceMethod = "set_price"
)

// StockMethod selects how a new stock level is derived from the current one.
type StockMethod string

const (
	StockIncrease StockMethod = "increase"
	StockDecrease StockMethod = "decrease"
	StockSet      StockMethod = "set_quantity"
)

// PricePlaces is the number of decimal places prices are rounded to.
const PricePlaces = 2

var (
	// ErrUnknownMethod is returned for a method outside the supported set.
	ErrUnknownMethod = errors.New("unknown method")

	// ErrNegativePrice is returned when a calculation would produce a price below zero.
	ErrNegativePrice = errors.New("resulting price is negative")

	// ErrStockOverflow is returned when a calculation would exceed the largest representable stock.
	ErrStockOverflow = errors.New("resulting stock overflows")
)

var hundred = decimal.NewFromInt(100)

// IsValid reports whether m is a supported price method.
func (m PriceMethod) IsValid() bool {
	switch m {
	case PricePercentage, PriceFixedAmount, PriceSet:
		return true
	}
	return false
}

// IsValid reports whether m is a supported stock method.
func (m StockMethod) IsValid() bool {
	switch m {
	case StockIncrease, StockDecrease, StockSet:
		return true
	}
	return false
}

// CalculateNewPrice applies method/value to current and rounds the result
// to two decimal places, half-up.
func CalculateNewPrice(current decimal.Decimal, method PriceMethod, value decimal.Decimal) (decimal.Decimal, error) {
	var next decimal.Decimal
	switch method {
	case PricePercentage:
		next = current.Mul(decimal.NewFromInt(1).Add(value.Div(hundred)))
	case PriceFixedAmount:
		next = current.Add(value)
	case PriceSet:
		next = value
	default:
		return decimal.Zero, fmt.Errorf("%w: price method %q", ErrUnknownMethod, method)
	}

	// Round is half away from zero, which equals half-up for non-negative prices.
	next = next.Round(PricePlaces)
	if next.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrNegativePrice, next.StringFixed(PricePlaces))
	}
	return next, nil
}

// CalculateNewStock applies method/value to current, clamping at zero.
func CalculateNewStock(current int, method StockMethod, value int) (int, error) {
	var next int
	switch method {
	case StockIncrease:
		if value > 0 && current > math.MaxInt-value {
			return 0, fmt.Errorf("%w: %d + %d", ErrStockOverflow, current, value)
		}
		next = current + value
	case StockDecrease:
		if value < 0 && current > math.MaxInt+value {
			return 0, fmt.Errorf("%w: %d - %d", ErrStockOverflow, current, value)
		}
		next = current - value
	case StockSet:
		next = value
	default:
		return 0, fmt.Errorf("%w: stock method %q", ErrUnknownMethod, method)
	}
	return max(0, next), nil
}
