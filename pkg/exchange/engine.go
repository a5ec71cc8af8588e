// Package exchange converts a balance of one asset into another at an oracle rate.
//
// An exchange goes validating -> rate resolving -> balance checking -> committing and ends
// completed or failed. The balance check and both balance writes happen inside one ledger
// update, so concurrent exchanges on the same assets are serialized and a failed write
// leaves every balance untouched.
package exchange

import (
	"context"
	"errors"
	"fmt"
	"time"

	"peachcash/pkg/asset"
	"peachcash/pkg/journal"
	"peachcash/pkg/ledger"
	"peachcash/pkg/metrics"
	"peachcash/pkg/oracle"
	"peachcash/pkg/txlog"
	"peachcash/pkg/xlog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var logger = xlog.GetLogger()

type Assets interface {
	Get(ctx context.Context, id string) (asset.Asset, error)
}

type Ledger interface {
	Get(ctx context.Context, assetID string) (ledger.Balance, bool, error)
	Update(ctx context.Context, fn func(*ledger.Batch) error) error
}

type Recorder interface {
	Append(ctx context.Context, tx txlog.Transaction) (txlog.Transaction, error)
}

type Journal interface {
	Pending(tx txlog.Transaction, before, expected map[string]decimal.Decimal) error
	Committed(txID string) error
	Recorded(txID string) error
	Failed(txID string, reason error) error
	Open() ([]journal.Entry, error)
}

type Request struct {
	Mode   oracle.Mode
	From   string
	To     string
	Amount decimal.Decimal // in units of From
}

type Result struct {
	Success       bool
	FromAssetID   string
	ToAssetID     string
	FromAmount    decimal.Decimal
	ToAmount      decimal.Decimal
	Rate          decimal.Decimal
	TransactionID string

	// false when the balances moved but the transaction record could not be written,
	// the journal keeps the entry open for Reconcile
	Recorded bool
}

type stage string

const (
	stageValidating      stage = "validating"
	stageRateResolving   stage = "rate-resolving"
	stageBalanceChecking stage = "balance-checking"
	stageCommitting      stage = "committing"
	stageRecording       stage = "recording"
)

type Engine struct {
	assets  Assets
	ledger  Ledger
	txs     Recorder
	rater   oracle.Rater
	journal Journal
	metrics metrics.Collector

	now func() time.Time
}

type Option func(*Engine)

func WithJournal(j Journal) Option {
	return func(e *Engine) { e.journal = j }
}

func WithMetrics(m metrics.Collector) Option {
	return func(e *Engine) { e.metrics = m }
}

func New(assets Assets, l Ledger, txs Recorder, rater oracle.Rater, opts ...Option) *Engine {
	e := &Engine{
		assets:  assets,
		ledger:  l,
		txs:     txs,
		rater:   rater,
		journal: journal.Nop{},
		metrics: metrics.NoOp{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// resolved is a validated request
type resolved struct {
	mode   oracle.Mode
	from   asset.Asset
	to     asset.Asset
	amount decimal.Decimal
}

func (e *Engine) validate(ctx context.Context, req Request) (r resolved, err error) {
	if !req.Amount.IsPositive() {
		return r, fmt.Errorf("%w: got %s", ErrInvalidAmount, req.Amount)
	}
	if !req.Mode.Valid() {
		return r, fmt.Errorf("%w: %s", ErrModeMismatch, req.Mode)
	}
	if req.From == req.To {
		return r, fmt.Errorf("%w: %s to itself", ErrModeMismatch, req.From)
	}

	from, err := e.lookup(ctx, req.From)
	if err != nil {
		return
	}
	to, err := e.lookup(ctx, req.To)
	if err != nil {
		return
	}

	fromKind, toKind := req.Mode.Kinds()
	if from.Kind != fromKind || to.Kind != toKind {
		return r, fmt.Errorf("%w: %s wants %s -> %s, got %s -> %s",
			ErrModeMismatch, req.Mode, fromKind, toKind, from.Kind, to.Kind)
	}

	amount := round(req.Amount, from.Decimals)
	if !amount.IsPositive() {
		return r, fmt.Errorf("%w: %s rounds to 0 at %d decimals", ErrInvalidAmount, req.Amount, from.Decimals)
	}

	return resolved{mode: req.Mode, from: from, to: to, amount: amount}, nil
}

func (e *Engine) lookup(ctx context.Context, id string) (asset.Asset, error) {
	a, err := e.assets.Get(ctx, id)
	if errors.Is(err, asset.ErrNotFound) {
		return a, fmt.Errorf("%w: %s", ErrAssetNotFound, id)
	}
	return a, err
}

func (e *Engine) rate(ctx context.Context, r resolved) (decimal.Decimal, error) {
	crypto, fiat := r.mode.Roles(r.from.ID, r.to.ID)
	f, err := e.rater.GetRate(ctx, r.mode, crypto, fiat)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s/%s: %w", ErrRateUnavailable, crypto, fiat, err)
	}
	return rateFromFloat(f)
}

// Exchange moves req.Amount of req.From into req.To at the current oracle rate
func (e *Engine) Exchange(ctx context.Context, req Request) (res Result, err error) {
	start := e.now()
	st := stageValidating
	defer func() {
		e.metrics.RecordExchange(outcome(err), time.Since(start))
		if err != nil {
			logger.Warningf("exchange %s %s->%s amount:%s failed at %s with err:%s",
				req.Mode, req.From, req.To, req.Amount, st, err)
		}
	}()

	r, err := e.validate(ctx, req)
	if err != nil {
		return
	}

	st = stageRateResolving
	rate, err := e.rate(ctx, r)
	if err != nil {
		return
	}

	st = stageBalanceChecking
	toAmount := round(r.amount.Mul(rate), r.to.Decimals)
	now := e.now().UnixMilli()
	tx := txlog.Transaction{
		ID:     uuid.NewString(),
		Type:   txlog.TypeExchange,
		Status: txlog.Completed,
		From: txlog.Leg{
			AssetID: r.from.ID,
			Amount:  r.amount,
			Symbol:  r.from.Symbol,
			Kind:    r.from.Kind,
		},
		To: txlog.Leg{
			AssetID: r.to.ID,
			Amount:  toAmount,
			Symbol:  r.to.Symbol,
			Kind:    r.to.Kind,
		},
		Rate:      rate,
		CreatedAt: now,
		UpdatedAt: now,
	}

	// once the balances start moving the exchange runs to the end regardless of the caller
	commitCtx := context.WithoutCancel(ctx)
	journaled := false
	err = e.ledger.Update(commitCtx, func(b *ledger.Batch) error {
		available := b.Amount(r.from.ID)
		if available.LessThan(r.amount) {
			return &InsufficientFundsError{AssetID: r.from.ID, Available: available, Required: r.amount}
		}

		st = stageCommitting
		newFrom := round(available.Sub(r.amount), r.from.Decimals)
		newTo := round(b.Amount(r.to.ID).Add(toAmount), r.to.Decimals)

		before := map[string]decimal.Decimal{r.from.ID: available, r.to.ID: b.Amount(r.to.ID)}
		after := map[string]decimal.Decimal{r.from.ID: newFrom, r.to.ID: newTo}
		if err := e.journal.Pending(tx, before, after); err != nil {
			return fmt.Errorf("%w: journal: %w", ErrLedgerWrite, err)
		}
		journaled = true

		if err := b.Set(r.from.ID, newFrom); err != nil {
			return err
		}
		return b.Set(r.to.ID, newTo)
	})
	if err != nil {
		if journaled {
			if jerr := e.journal.Failed(tx.ID, err); jerr != nil {
				logger.Errorf("exchange %s journal failed entry not written, err:%s", tx.ID, jerr)
			}
		}
		if !errors.Is(err, ErrInsufficientFunds) && !errors.Is(err, ErrLedgerWrite) {
			err = fmt.Errorf("%w: %w", ErrLedgerWrite, err)
		}
		return
	}

	if jerr := e.journal.Committed(tx.ID); jerr != nil {
		logger.Errorf("exchange %s journal committed entry not written, err:%s", tx.ID, jerr)
	}

	res = Result{
		Success:       true,
		FromAssetID:   r.from.ID,
		ToAssetID:     r.to.ID,
		FromAmount:    r.amount,
		ToAmount:      toAmount,
		Rate:          rate,
		TransactionID: tx.ID,
	}

	st = stageRecording
	_, aerr := e.txs.Append(commitCtx, tx)
	if aerr != nil {
		logger.Errorf("exchange %s committed but not recorded, run reconcile. err:%s", tx.ID, aerr)
		return res, nil
	}
	res.Recorded = true
	if jerr := e.journal.Recorded(tx.ID); jerr != nil {
		logger.Errorf("exchange %s journal recorded entry not written, err:%s", tx.ID, jerr)
	}

	logger.Infof("exchange %s %s %s %s -> %s %s at %s",
		tx.ID, req.Mode, r.amount, r.from.ID, toAmount, r.to.ID, rate)
	return res, nil
}

type Quote struct {
	Mode        oracle.Mode
	FromAssetID string
	ToAssetID   string
	FromAmount  decimal.Decimal
	ToAmount    decimal.Decimal
	Rate        decimal.Decimal
	Available   decimal.Decimal
	Sufficient  bool
}

// Quote runs the same validation and rounding as Exchange without touching any state
func (e *Engine) Quote(ctx context.Context, req Request) (q Quote, err error) {
	r, err := e.validate(ctx, req)
	if err != nil {
		return
	}
	rate, err := e.rate(ctx, r)
	if err != nil {
		return
	}
	bal, _, err := e.ledger.Get(ctx, r.from.ID)
	if err != nil {
		return
	}

	return Quote{
		Mode:        r.mode,
		FromAssetID: r.from.ID,
		ToAssetID:   r.to.ID,
		FromAmount:  r.amount,
		ToAmount:    round(r.amount.Mul(rate), r.to.Decimals),
		Rate:        rate,
		Available:   bal.Amount,
		Sufficient:  !bal.Amount.LessThan(r.amount),
	}, nil
}
