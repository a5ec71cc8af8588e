package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Batch is the view handed to Ledger.Update, changes stay private until fn returns nil
type Batch struct {
	balances []Balance
	index    map[string]int
	now      int64
	dirty    bool
}

func newBatch(balances []Balance, now int64) *Batch {
	b := &Batch{
		balances: balances,
		index:    make(map[string]int, len(balances)),
		now:      now,
	}
	for i, bal := range balances {
		b.index[bal.AssetID] = i
	}
	return b
}

// Get returns the current balance of assetID inside the batch
func (b *Batch) Get(assetID string) (Balance, bool) {
	i, ok := b.index[assetID]
	if !ok {
		return Balance{ID: assetID, AssetID: assetID, Amount: decimal.Zero}, false
	}
	return b.balances[i], true
}

// Amount is Get without the presence flag, absent reads as zero
func (b *Batch) Amount(assetID string) decimal.Decimal {
	bal, _ := b.Get(assetID)
	return bal.Amount
}

// Set overwrites the amount of assetID, creating the record when absent.
// amount is stored as given, callers round it to the asset decimals.
func (b *Batch) Set(assetID string, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return fmt.Errorf("%w: %s for %s", ErrInvalidAmount, amount, assetID)
	}

	b.dirty = true
	if i, ok := b.index[assetID]; ok {
		b.balances[i].Amount = amount
		b.balances[i].UpdatedAt = b.now
		return nil
	}

	b.index[assetID] = len(b.balances)
	b.balances = append(b.balances, Balance{
		ID:        assetID,
		AssetID:   assetID,
		Amount:    amount,
		UpdatedAt: b.now,
	})
	return nil
}
