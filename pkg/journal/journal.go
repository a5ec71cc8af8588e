// Package journal is the write-ahead log of exchanges, one json line per state change in a filedb.
//
// An exchange writes pending before the ledger commit, committed after it, recorded once the
// transaction is in the txlog, or failed when the commit did not happen. Entries that never
// reached recorded or failed are open and are repaired by reconciliation.
package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"peachcash/pkg/filedb"
	"peachcash/pkg/txlog"
	"peachcash/pkg/xlog"

	"github.com/shopspring/decimal"
)

type State string

const (
	Pending   State = "pending"
	Committed State = "committed"
	Recorded  State = "recorded"
	Failed    State = "failed"
)

// Entry is one line of the journal
type Entry struct {
	LogID int64  `json:"logID"`
	Ts    int64  `json:"ts"` // unix ns
	TxID  string `json:"txID"`
	State State  `json:"state"`

	// set on pending only
	Tx       *txlog.Transaction         `json:"tx,omitempty"`
	Before   map[string]decimal.Decimal `json:"before,omitempty"`   // balances before the commit
	Expected map[string]decimal.Decimal `json:"expected,omitempty"` // balances after the commit

	Reason string `json:"reason,omitempty"`
}

var logger = xlog.GetLogger()

type Journal struct {
	fdb   *filedb.Filedb
	mu    sync.Mutex
	logID int64
}

// Open opens or creates the journal at path, the next LogID continues from the last line
func Open(path string) (j *Journal, err error) {
	defer func() {
		if err != nil {
			logger.Errorf("journal Open %s failed with err:%s", path, err)
		}
	}()

	fdb, err := filedb.New(path)
	if err != nil {
		return
	}
	fdb.Fsync = true

	// a crash inside WriteLine leaves a partial line, its exchange never got past that write
	dropped, err := fdb.TruncateTorn()
	if err != nil {
		fdb.Close()
		return
	}
	if dropped > 0 {
		logger.Warningf("journal %s dropped a torn last line of %d bytes", path, dropped)
	}

	last, err := fdb.ReadLastLine()
	if err != nil {
		fdb.Close()
		return
	}

	j = &Journal{fdb: fdb}
	if last != "" {
		var e Entry
		err = json.Unmarshal([]byte(last), &e)
		if err != nil {
			fdb.Close()
			return nil, fmt.Errorf("journal last line: %w", err)
		}
		j.logID = e.LogID
	}

	logger.Infof("journal %s opened at logID:%d", path, j.logID)
	return
}

func (j *Journal) Path() string {
	return j.fdb.FilePath
}

func (j *Journal) LogID() int64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.logID
}

func (j *Journal) append(e Entry) (err error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	e.LogID = j.logID + 1
	e.Ts = time.Now().UnixNano()

	b, err := json.Marshal(e)
	if err != nil {
		return
	}
	err = j.fdb.WriteLine(string(b))
	if err != nil {
		logger.Errorf("journal write %s %s failed with err:%s", e.TxID, e.State, err)
		return
	}
	j.logID = e.LogID
	return
}

func (j *Journal) Pending(tx txlog.Transaction, before, expected map[string]decimal.Decimal) error {
	return j.append(Entry{TxID: tx.ID, State: Pending, Tx: &tx, Before: before, Expected: expected})
}

func (j *Journal) Committed(txID string) error {
	return j.append(Entry{TxID: txID, State: Committed})
}

func (j *Journal) Recorded(txID string) error {
	return j.append(Entry{TxID: txID, State: Recorded})
}

func (j *Journal) Failed(txID string, reason error) error {
	e := Entry{TxID: txID, State: Failed}
	if reason != nil {
		e.Reason = reason.Error()
	}
	return j.append(e)
}

// Open returns the entries whose latest state is pending or committed, oldest first.
// Each carries the transaction and balances of its pending line.
func (j *Journal) Open() (open []Entry, err error) {
	latest := map[string]Entry{}
	first := map[string]int64{}
	var decodeErr error

	err = j.fdb.ScanLines(func(line string) bool {
		var e Entry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			decodeErr = fmt.Errorf("journal line: %w", err)
			return false
		}
		prev, seen := latest[e.TxID]
		if !seen {
			first[e.TxID] = e.LogID
		}
		if e.Tx == nil && seen {
			e.Tx = prev.Tx
			e.Before = prev.Before
			e.Expected = prev.Expected
		}
		latest[e.TxID] = e
		return true
	})
	if err == nil {
		err = decodeErr
	}
	if err != nil {
		return
	}

	for _, e := range latest {
		if e.State == Pending || e.State == Committed {
			open = append(open, e)
		}
	}
	sort.Slice(open, func(a, b int) bool {
		return first[open[a].TxID] < first[open[b].TxID]
	})
	return
}

// Follow sends every entry of the journal, then new ones as they are written, until ctx is done
func (j *Journal) Follow(ctx context.Context, ch chan<- Entry) error {
	lines := make(chan string, 64)
	errc := make(chan error, 1)
	go func() {
		errc <- j.fdb.Tailf(ctx, lines)
	}()

	for {
		select {
		case err := <-errc:
			return err
		case line := <-lines:
			var e Entry
			if err := json.Unmarshal([]byte(line), &e); err != nil {
				return fmt.Errorf("journal follow: %w", err)
			}
			select {
			case ch <- e:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

func (j *Journal) Close() error {
	return j.fdb.Close()
}

// Nop discards everything, used when the journal is disabled
type Nop struct{}

func (Nop) Pending(tx txlog.Transaction, before, expected map[string]decimal.Decimal) error {
	return nil
}
func (Nop) Committed(txID string) error            { return nil }
func (Nop) Recorded(txID string) error             { return nil }
func (Nop) Failed(txID string, reason error) error { return nil }
func (Nop) Open() ([]Entry, error)                 { return nil, nil }
