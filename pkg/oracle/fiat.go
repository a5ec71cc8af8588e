package oracle

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// StaticFiat is a fixed reference table of fiat prices in USD
type StaticFiat map[string]decimal.Decimal

var DefaultFiat = StaticFiat{
	"usd": decimal.NewFromInt(1),
	"ars": decimal.RequireFromString("0.00073"),
	"eur": decimal.RequireFromString("1.17"),
	"jpy": decimal.RequireFromString("0.0068"),
}

// USD returns the USD price of one unit of fiatID
func (s StaticFiat) USD(fiatID string) (decimal.Decimal, error) {
	p, ok := s[fiatID]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: no reference price for %s", ErrUnavailable, fiatID)
	}
	return p, nil
}

// Convert expresses amount of fiat `from` in fiat `to`
func (s StaticFiat) Convert(amount decimal.Decimal, from, to string) (decimal.Decimal, error) {
	if from == to {
		return amount, nil
	}
	pf, err := s.USD(from)
	if err != nil {
		return decimal.Zero, err
	}
	pt, err := s.USD(to)
	if err != nil {
		return decimal.Zero, err
	}
	return amount.Mul(pf).Div(pt), nil
}
