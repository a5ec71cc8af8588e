// Package txlog is the append-only log of exchange transactions.
package txlog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"peachcash/pkg/asset"
	"peachcash/pkg/kv"
	"peachcash/pkg/xlog"

	"github.com/google/btree"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const storeKey = "transactions"

var (
	ErrNotFound  = errors.New("transaction not found")
	ErrDuplicate = errors.New("transaction id already recorded")
	ErrImmutable = errors.New("completed transaction is immutable")
)

var logger = xlog.GetLogger()

type Status string

const (
	Pending   Status = "pending"
	Completed Status = "completed"
	Failed    Status = "failed"
	Cancelled Status = "cancelled"
)

const TypeExchange = "exchange"

// Leg is a snapshot of one side of an exchange
type Leg struct {
	AssetID string          `json:"assetId"`
	Amount  decimal.Decimal `json:"amount"`
	Symbol  string          `json:"symbol"`
	Kind    asset.Kind      `json:"type"`
}

type Transaction struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	Status      Status          `json:"status"`
	From        Leg             `json:"fromAsset"`
	To          Leg             `json:"toAsset"`
	Rate        decimal.Decimal `json:"exchangeRate"`
	Description string          `json:"description,omitempty"`
	CreatedAt   int64           `json:"createdAt"` // unix ms
	UpdatedAt   int64           `json:"updatedAt"`
}

type Log struct {
	store kv.KV
	mu    sync.Mutex

	now func() time.Time
}

func New(store kv.KV) *Log {
	return &Log{store: store, now: time.Now}
}

func (l *Log) load(ctx context.Context) (txs []Transaction, err error) {
	_, err = l.store.Get(ctx, storeKey, &txs)
	return
}

// Append records tx, assigning an id and timestamps when they are missing
func (l *Log) Append(ctx context.Context, tx Transaction) (Transaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	txs, err := l.load(ctx)
	if err != nil {
		return Transaction{}, err
	}

	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	for _, existing := range txs {
		if existing.ID == tx.ID {
			return Transaction{}, fmt.Errorf("%w: %s", ErrDuplicate, tx.ID)
		}
	}
	if tx.Type == "" {
		tx.Type = TypeExchange
	}
	if tx.Status == "" {
		tx.Status = Pending
	}
	now := l.now().UnixMilli()
	if tx.CreatedAt == 0 {
		tx.CreatedAt = now
	}
	if tx.UpdatedAt == 0 {
		tx.UpdatedAt = tx.CreatedAt
	}

	txs = append(txs, tx)
	err = l.store.Set(ctx, storeKey, txs)
	if err != nil {
		return Transaction{}, err
	}
	logger.Debugf("txlog appended %s %s %s->%s", tx.ID, tx.Status, tx.From.AssetID, tx.To.AssetID)
	return tx, nil
}

func (l *Log) Get(ctx context.Context, id string) (Transaction, error) {
	txs, err := l.load(ctx)
	if err != nil {
		return Transaction{}, err
	}
	for _, tx := range txs {
		if tx.ID == id {
			return tx, nil
		}
	}
	return Transaction{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// List returns every transaction, newest first
func (l *Log) List(ctx context.Context) ([]Transaction, error) {
	return l.Page(ctx, 0, -1)
}

func (l *Log) ListByStatus(ctx context.Context, status Status) ([]Transaction, error) {
	all, err := l.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Transaction, 0, len(all))
	for _, tx := range all {
		if tx.Status == status {
			out = append(out, tx)
		}
	}
	return out, nil
}

// Page returns up to limit transactions newest first after skipping offset, limit < 0 means all
func (l *Log) Page(ctx context.Context, offset, limit int) ([]Transaction, error) {
	txs, err := l.load(ctx)
	if err != nil {
		return nil, err
	}

	idx := newRecency(txs)
	n := len(txs)
	if limit >= 0 && limit < n {
		n = limit
	}
	out := make([]Transaction, 0, n)
	skipped := 0
	idx.Descend(func(e recencyEntry) bool {
		if skipped < offset {
			skipped++
			return true
		}
		if limit >= 0 && len(out) >= limit {
			return false
		}
		out = append(out, txs[e.pos])
		return true
	})
	return out, nil
}

// SetStatus moves a non-completed transaction to status
func (l *Log) SetStatus(ctx context.Context, id string, status Status) (Transaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	txs, err := l.load(ctx)
	if err != nil {
		return Transaction{}, err
	}
	for i, tx := range txs {
		if tx.ID != id {
			continue
		}
		if tx.Status == Completed {
			return Transaction{}, fmt.Errorf("%w: %s", ErrImmutable, id)
		}
		tx.Status = status
		tx.UpdatedAt = l.now().UnixMilli()
		txs[i] = tx
		if err := l.store.Set(ctx, storeKey, txs); err != nil {
			return Transaction{}, err
		}
		return tx, nil
	}
	return Transaction{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Reset drops the whole log
func (l *Log) Reset(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	logger.Info("txlog reset")
	return l.store.Delete(ctx, storeKey)
}

// recencyEntry orders by creation time, ties broken by position in the stored collection
type recencyEntry struct {
	createdAt int64
	pos       int
}

func recencyLess(a, b recencyEntry) bool {
	if a.createdAt != b.createdAt {
		return a.createdAt < b.createdAt
	}
	return a.pos < b.pos
}

func newRecency(txs []Transaction) *btree.BTreeG[recencyEntry] {
	idx := btree.NewG(16, recencyLess)
	for i, tx := range txs {
		idx.ReplaceOrInsert(recencyEntry{createdAt: tx.CreatedAt, pos: i})
	}
	return idx
}
