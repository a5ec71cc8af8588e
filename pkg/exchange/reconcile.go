package exchange

import (
	"context"
	"errors"
	"fmt"

	"peachcash/pkg/journal"
	"peachcash/pkg/txlog"

	"github.com/shopspring/decimal"
)

type Report struct {
	Open       int      // entries found open
	Committed  int      // pending entries whose balances were found applied
	Recorded   int      // transactions appended to the log
	Failed     int      // pending entries whose balances were never applied
	Unverified int      // pending entries left open, the ledger moved on since
	TxIDs      []string // every entry touched
}

// Reconcile closes the open journal entries left by a crash or a failed log append.
// A pending entry is settled only when the ledger still shows its balances from just before
// or just after the commit, anything else stays open for Resolve.
func (e *Engine) Reconcile(ctx context.Context) (rep Report, err error) {
	defer func() {
		if err != nil {
			logger.Errorf("reconcile failed after %d entries with err:%s", len(rep.TxIDs), err)
		} else if rep.Open > 0 {
			logger.Infof("reconcile done, open:%d committed:%d recorded:%d failed:%d unverified:%d",
				rep.Open, rep.Committed, rep.Recorded, rep.Failed, rep.Unverified)
		}
	}()

	entries, err := e.journal.Open()
	if err != nil {
		return
	}
	rep.Open = len(entries)

	for _, entry := range entries {
		rep.TxIDs = append(rep.TxIDs, entry.TxID)
		if entry.Tx == nil {
			err = e.markFailed(&rep, entry.TxID, errors.New("no pending snapshot"))
			if err != nil {
				return
			}
			continue
		}

		if entry.State == journal.Pending {
			var applied, untouched bool
			applied, err = e.holds(ctx, entry.Expected)
			if err != nil {
				return
			}
			if !applied {
				untouched, err = e.holds(ctx, entry.Before)
				if err != nil {
					return
				}
			}

			switch {
			case applied:
				if err = e.journal.Committed(entry.TxID); err != nil {
					return
				}
				rep.Committed++
				e.metrics.RecordReconcile("committed")
			case untouched:
				err = e.markFailed(&rep, entry.TxID, errors.New("balances not applied"))
				if err != nil {
					return
				}
				continue
			default:
				logger.Warningf("reconcile %s cannot verify, balances changed since, needs manual review", entry.TxID)
				rep.Unverified++
				e.metrics.RecordReconcile("unverified")
				continue
			}
		}

		err = e.record(ctx, *entry.Tx)
		if err != nil {
			return
		}
		rep.Recorded++
		e.metrics.RecordReconcile("recorded")
	}
	return
}

// Resolve settles an open entry by hand: applied records its transaction, otherwise it is marked failed
func (e *Engine) Resolve(ctx context.Context, txID string, applied bool) (err error) {
	defer func() {
		if err != nil {
			logger.Errorf("resolve %s failed with err:%s", txID, err)
		} else {
			logger.Infof("resolve %s applied:%v", txID, applied)
		}
	}()

	entries, err := e.journal.Open()
	if err != nil {
		return
	}

	for _, entry := range entries {
		if entry.TxID != txID {
			continue
		}
		if !applied {
			return e.journal.Failed(txID, errors.New("resolved as not applied"))
		}
		if entry.Tx == nil {
			return fmt.Errorf("%w: %s has no pending snapshot", ErrNotOpen, txID)
		}
		if entry.State == journal.Pending {
			if err = e.journal.Committed(txID); err != nil {
				return
			}
		}
		return e.record(ctx, *entry.Tx)
	}
	return fmt.Errorf("%w: %s", ErrNotOpen, txID)
}

func (e *Engine) markFailed(rep *Report, txID string, reason error) error {
	logger.Warningf("reconcile %s marked failed: %s", txID, reason)
	if err := e.journal.Failed(txID, reason); err != nil {
		return err
	}
	rep.Failed++
	e.metrics.RecordReconcile("failed")
	return nil
}

// holds reports whether the ledger currently shows exactly the given balances
func (e *Engine) holds(ctx context.Context, balances map[string]decimal.Decimal) (bool, error) {
	if len(balances) == 0 {
		return false, nil
	}
	for assetID, want := range balances {
		b, _, err := e.ledger.Get(ctx, assetID)
		if err != nil {
			return false, err
		}
		if !b.Amount.Equal(want) {
			return false, nil
		}
	}
	return true, nil
}

// record appends tx unless it is already in the log, then closes the journal entry
func (e *Engine) record(ctx context.Context, tx txlog.Transaction) error {
	_, err := e.txs.Append(ctx, tx)
	if err != nil && !errors.Is(err, txlog.ErrDuplicate) {
		return fmt.Errorf("reconcile append %s: %w", tx.ID, err)
	}
	return e.journal.Recorded(tx.ID)
}
