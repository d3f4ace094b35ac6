package shared

import "github.com/shopspring/decimal"

// MoneyScale is the number of decimal places stored for amounts.
const MoneyScale = 2

// RoundMoney rounds half away from zero to MoneyScale places, matching numeric(14,2) storage.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyScale)
}

// QuantityScale is the number of decimal places stored for invoice quantities.
const QuantityScale = 3

// RoundQuantity rounds to QuantityScale places, matching numeric(14,3) storage.
func RoundQuantity(d decimal.Decimal) decimal.Decimal {
	return d.Round(QuantityScale)
}
