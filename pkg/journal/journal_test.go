package journal_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"peachcash/pkg/journal"
	"peachcash/pkg/txlog"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func open(t *testing.T) (*journal.Journal, string) {
	path := filepath.Join(t.TempDir(), "journal", "exchange.log")
	j, err := journal.Open(path)
	require.Nil(t, err)
	t.Cleanup(func() { j.Close() })
	return j, path
}

func expected(usd, btc string) map[string]decimal.Decimal {
	return map[string]decimal.Decimal{
		"usd":     decimal.RequireFromString(usd),
		"bitcoin": decimal.RequireFromString(btc),
	}
}

func TestLogIDContinues(t *testing.T) {
	j, path := open(t)
	require.Equal(t, int64(0), j.LogID())

	require.Nil(t, j.Pending(txlog.Transaction{ID: "a"}, nil, expected("50", "0.005")))
	require.Nil(t, j.Committed("a"))
	require.Nil(t, j.Recorded("a"))
	require.Equal(t, int64(3), j.LogID())
	require.Nil(t, j.Close())

	j2, err := journal.Open(path)
	require.Nil(t, err)
	defer j2.Close()
	require.Equal(t, int64(3), j2.LogID())
	require.Nil(t, j2.Failed("b", errors.New("disk full")))
	require.Equal(t, int64(4), j2.LogID())
}

func TestTornLastLine(t *testing.T) {
	j, path := open(t)
	require.Nil(t, j.Pending(txlog.Transaction{ID: "a"}, nil, expected("50", "0.005")))
	require.Nil(t, j.Close())

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0600)
	require.Nil(t, err)
	_, err = f.WriteString(`{"logID":2,"ts":1,"txID":"a","sta`)
	require.Nil(t, err)
	require.Nil(t, f.Close())

	j2, err := journal.Open(path)
	require.Nil(t, err)
	defer j2.Close()
	require.Equal(t, int64(1), j2.LogID())

	require.Nil(t, j2.Committed("a"))
	require.Equal(t, int64(2), j2.LogID())

	entries, err := j2.Open()
	require.Nil(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, journal.Committed, entries[0].State)
	require.NotNil(t, entries[0].Tx)
	require.True(t, entries[0].Expected["usd"].Equal(decimal.NewFromInt(50)))
}

func TestOpenEntries(t *testing.T) {
	j, _ := open(t)

	// a: done, b: committed only, c: pending only, d: failed
	require.Nil(t, j.Pending(txlog.Transaction{ID: "a"}, nil, expected("90", "0.001")))
	require.Nil(t, j.Committed("a"))
	require.Nil(t, j.Recorded("a"))

	require.Nil(t, j.Pending(txlog.Transaction{ID: "b", Status: txlog.Completed}, expected("90", "0.001"), expected("80", "0.002")))
	require.Nil(t, j.Committed("b"))

	require.Nil(t, j.Pending(txlog.Transaction{ID: "c"}, nil, expected("70", "0.003")))

	require.Nil(t, j.Pending(txlog.Transaction{ID: "d"}, nil, expected("60", "0.004")))
	require.Nil(t, j.Failed("d", errors.New("ledger write failed")))

	entries, err := j.Open()
	require.Nil(t, err)
	require.Len(t, entries, 2)

	require.Equal(t, "b", entries[0].TxID)
	require.Equal(t, journal.Committed, entries[0].State)
	require.NotNil(t, entries[0].Tx)
	require.Equal(t, txlog.Completed, entries[0].Tx.Status)
	require.True(t, entries[0].Expected["usd"].Equal(decimal.NewFromInt(80)))
	require.True(t, entries[0].Before["usd"].Equal(decimal.NewFromInt(90)))

	require.Equal(t, "c", entries[1].TxID)
	require.Equal(t, journal.Pending, entries[1].State)
}

func TestFollow(t *testing.T) {
	j, _ := open(t)
	require.Nil(t, j.Pending(txlog.Transaction{ID: "a"}, nil, nil))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := make(chan journal.Entry, 8)
	done := make(chan error, 1)
	go func() { done <- j.Follow(ctx, ch) }()

	e := <-ch
	require.Equal(t, "a", e.TxID)
	require.Equal(t, int64(1), e.LogID)

	require.Nil(t, j.Committed("a"))
	select {
	case e = <-ch:
		require.Equal(t, journal.Committed, e.State)
	case <-time.After(5 * time.Second):
		t.Fatal("follow did not deliver the new entry")
	}

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}
