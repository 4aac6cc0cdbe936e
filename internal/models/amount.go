package models

import (
	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// Amount is a monetary value as the timeline feeds serialize it. Value keeps
// the exact decimal from the wire; FractionDigits is informational.
type Amount struct {
	Value          decimal.Decimal `json:"value"`
	Currency       string          `json:"currency"`
	FractionDigits int             `json:"fractionDigits"`
}

// Money converts to a currency-aware value for display. Unknown currency
// codes fall back to EUR, the account currency.
func (a Amount) Money() *money.Money {
	code := a.Currency
	cur := money.GetCurrency(code)
	if cur == nil {
		code = money.EUR
		cur = money.GetCurrency(code)
	}
	minor := a.Value.Shift(int32(cur.Fraction)).Round(0)
	return money.New(minor.IntPart(), code)
}

// String renders the amount with its currency's display rules.
func (a Amount) String() string {
	return a.Money().Display()
}

// IsZero reports whether the amount is exactly zero.
func (a Amount) IsZero() bool {
	return a.Value.IsZero()
}
