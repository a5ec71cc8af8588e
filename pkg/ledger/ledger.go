// Package ledger holds the per-asset balances, the only mutable financial state.
//
// Every mutation reads the whole balances collection, changes it in memory and rewrites it
// with one store write while the ledger lock is held, so concurrent callers never lose updates.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"peachcash/pkg/kv"
	"peachcash/pkg/xlog"

	"github.com/shopspring/decimal"
)

const storeKey = "balances"

var (
	ErrInvalidAmount = errors.New("ledger: amount must not be negative")
	ErrWrite         = errors.New("ledger: write failed")
)

var logger = xlog.GetLogger()

type Balance struct {
	ID        string          `json:"id"`
	AssetID   string          `json:"assetId"`
	Amount    decimal.Decimal `json:"amount"`
	UpdatedAt int64           `json:"updatedAt"` // unix ms
}

type Ledger struct {
	store kv.KV
	mu    sync.Mutex

	now func() time.Time
}

func New(store kv.KV) *Ledger {
	return &Ledger{store: store, now: time.Now}
}

func (l *Ledger) load(ctx context.Context) (balances []Balance, err error) {
	_, err = l.store.Get(ctx, storeKey, &balances)
	return
}

// Get returns the balance of assetID, found=false reads as a zero amount
func (l *Ledger) Get(ctx context.Context, assetID string) (b Balance, found bool, err error) {
	balances, err := l.load(ctx)
	if err != nil {
		return
	}
	for _, b := range balances {
		if b.AssetID == assetID {
			return b, true, nil
		}
	}
	return Balance{ID: assetID, AssetID: assetID, Amount: decimal.Zero}, false, nil
}

func (l *Ledger) List(ctx context.Context) ([]Balance, error) {
	return l.load(ctx)
}

// Credit adds a non-negative delta, creating the balance at zero when absent.
// The new amount is rounded half-up to decimals, the precision of the asset.
func (l *Ledger) Credit(ctx context.Context, assetID string, delta decimal.Decimal, decimals int32) (b Balance, err error) {
	if delta.IsNegative() {
		return Balance{}, fmt.Errorf("%w: credit %s", ErrInvalidAmount, delta)
	}
	err = l.Update(ctx, func(batch *Batch) error {
		return batch.Set(assetID, batch.Amount(assetID).Add(delta).Round(decimals))
	})
	if err != nil {
		return
	}
	b, _, err = l.Get(ctx, assetID)
	return
}

// SetAmount overwrites the stored amount, rounded half-up to decimals
func (l *Ledger) SetAmount(ctx context.Context, assetID string, amount decimal.Decimal, decimals int32) (b Balance, err error) {
	err = l.Update(ctx, func(batch *Batch) error {
		return batch.Set(assetID, amount.Round(decimals))
	})
	if err != nil {
		return
	}
	b, _, err = l.Get(ctx, assetID)
	return
}

// Update runs fn against a private copy of all balances and persists the result with one write.
// Nothing is written when fn fails or sets nothing.
func (l *Ledger) Update(ctx context.Context, fn func(*Batch) error) (err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	balances, err := l.load(ctx)
	if err != nil {
		return fmt.Errorf("ledger load: %w", err)
	}

	batch := newBatch(balances, l.now().UnixMilli())
	err = fn(batch)
	if err != nil {
		return
	}
	if !batch.dirty {
		return nil
	}

	err = l.store.Set(ctx, storeKey, batch.balances)
	if err != nil {
		logger.Errorf("ledger write of %d balances failed with err:%s", len(batch.balances), err)
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}
	return nil
}

// Reset restores the default seed balances
func (l *Ledger) Reset(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	err := l.store.Set(ctx, storeKey, Defaults(l.now()))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}
	logger.Info("ledger reset to defaults")
	return nil
}

// Init seeds the default balances only when none are stored
func (l *Ledger) Init(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	balances, err := l.load(ctx)
	if err != nil {
		return err
	}
	if len(balances) > 0 {
		return nil
	}
	err = l.store.Set(ctx, storeKey, Defaults(l.now()))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}
	return nil
}

var seed = []struct {
	id     string
	amount string
}{
	{"usd", "10000"},
	{"ars", "0"},
	{"eur", "0"},
	{"jpy", "10000"},
	{"bitcoin", "0.001"},
	{"ethereum", "0.05"},
}

// Defaults returns the seed balances stamped with now
func Defaults(now time.Time) []Balance {
	out := make([]Balance, 0, len(seed))
	for _, s := range seed {
		out = append(out, Balance{
			ID:        s.id,
			AssetID:   s.id,
			Amount:    decimal.RequireFromString(s.amount),
			UpdatedAt: now.UnixMilli(),
		})
	}
	return out
}
