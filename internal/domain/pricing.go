package domain

import "math"

// DefaultTaxRate is applied when no jurisdiction-specific rate is configured.
const DefaultTaxRate = 0.10

// PricingLine is the minimal input the totals calculator needs per line.
type PricingLine struct {
	UnitPrice int64
	Quantity  int
}

// ComputeTotals derives order totals from line snapshots, a flat shipping
// price, and a tax rate. Tax applies to the item subtotal only and is rounded
// half-up to the nearest minor unit.
func ComputeTotals(lines []PricingLine, shipping int64, taxRate float64) OrderTotals {
	var subtotal int64
	for _, line := range lines {
		subtotal += line.UnitPrice * int64(line.Quantity)
	}
	tax := RoundHalfUp(float64(subtotal) * taxRate)
	return OrderTotals{
		Subtotal: subtotal,
		Shipping: shipping,
		Tax:      tax,
		Total:    subtotal + shipping + tax,
	}
}

// RoundHalfUp rounds to the nearest integer with ties away from zero.
func RoundHalfUp(v float64) int64 {
	if v < 0 {
		return -int64(math.Floor(-v + 0.5))
	}
	return int64(math.Floor(v + 0.5))
}

// LineTotal returns the extended price of a single line item.
func LineTotal(unitPrice int64, quantity int) int64 {
	return unitPrice * int64(quantity)
}
