package exchange

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount     = errors.New("amount must be greater than 0")
	ErrAssetNotFound     = errors.New("asset not found")
	ErrModeMismatch      = errors.New("assets do not match the exchange mode")
	ErrRateUnavailable   = errors.New("exchange rate unavailable")
	ErrInvalidRate       = errors.New("invalid exchange rate")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrLedgerWrite       = errors.New("ledger write failed")
	ErrNotOpen           = errors.New("no open journal entry")
)

// InsufficientFundsError carries the amounts to show the user
type InsufficientFundsError struct {
	AssetID   string
	Available decimal.Decimal
	Required  decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: available %s %s, required %s",
		e.Available.String(), e.AssetID, e.Required.String())
}

// Message is the user facing text with both amounts at the asset precision
func (e *InsufficientFundsError) Message(decimals int32) string {
	return fmt.Sprintf("insufficient funds. available: %s %s, required: %s %s",
		e.Available.StringFixed(decimals), e.AssetID, e.Required.StringFixed(decimals), e.AssetID)
}

func (e *InsufficientFundsError) Is(target error) bool {
	return target == ErrInsufficientFunds
}

// outcome labels err for logs and metrics
func outcome(err error) string {
	switch {
	case err == nil:
		return "completed"
	case errors.Is(err, ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, ErrAssetNotFound):
		return "asset_not_found"
	case errors.Is(err, ErrModeMismatch):
		return "mode_mismatch"
	case errors.Is(err, ErrRateUnavailable):
		return "rate_unavailable"
	case errors.Is(err, ErrInvalidRate):
		return "invalid_rate"
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrLedgerWrite):
		return "ledger_write"
	default:
		return "error"
	}
}
