package payments

import "github.com/shopspring/decimal"

// ToMinorUnits converts a two-decimal amount to the provider's smallest unit,
// rounding half away from zero.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}
