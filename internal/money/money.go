// Package money converts between the decimal major-unit amounts the service
// speaks and the integer minor-unit (cent) amounts the payment gateway speaks.
package money

import "github.com/shopspring/decimal"

// Scale is the number of fraction digits carried by all currency amounts.
const Scale = 2

// ToMinorUnits converts a decimal major-unit amount to integer minor units,
// rounding half-up. Exact inverse of FromMinorUnits for integral-cent values.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(Scale).Round(0).IntPart()
}

// FromMinorUnits converts integer minor units back to a decimal major-unit
// amount with two fraction digits.
func FromMinorUnits(minor int64) decimal.Decimal {
	return decimal.New(minor, -Scale)
}

// Normalize rounds an amount to the fixed two-digit scale, half-up.
func Normalize(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(Scale)
}
