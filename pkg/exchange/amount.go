package exchange

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// AmountFromFloat converts a user entered float, NaN and infinities are rejected
func AmountFromFloat(f float64) (decimal.Decimal, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrInvalidAmount, f)
	}
	return decimal.NewFromFloat(f), nil
}

// ParseAmount parses a decimal string such as "0.005" or "1250,50"
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if !strings.Contains(s, ".") && strings.Count(s, ",") == 1 {
		s = strings.Replace(s, ",", ".", 1)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return d, nil
}

// round is half-up at the given precision for the non-negative amounts handled here
func round(d decimal.Decimal, decimals int32) decimal.Decimal {
	return d.Round(decimals)
}

// rateFromFloat is the correctness gate on what the oracle returned
func rateFromFloat(r float64) (decimal.Decimal, error) {
	if math.IsNaN(r) || math.IsInf(r, 0) || r <= 0 {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrInvalidRate, r)
	}
	d := decimal.NewFromFloat(r)
	if !d.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrInvalidRate, r)
	}
	return d, nil
}
