package exchange_test

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"peachcash/pkg/asset"
	"peachcash/pkg/exchange"
	"peachcash/pkg/journal"
	"peachcash/pkg/kv"
	"peachcash/pkg/ledger"
	"peachcash/pkg/oracle"
	"peachcash/pkg/txlog"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type fixedRater struct {
	rate float64
	err  error
}

func (f fixedRater) GetRate(ctx context.Context, mode oracle.Mode, cryptoID, fiatID string) (float64, error) {
	return f.rate, f.err
}

// slowSource never answers in time
type slowSource struct{}

func (slowSource) Price(ctx context.Context, cryptoID, fiatID string) (float64, error) {
	time.Sleep(time.Second)
	return 1, nil
}

// flaky fails writes while failing is set
type flaky struct {
	*kv.Memory
	failing bool
}

func (f *flaky) Write(ctx context.Context, key string, val []byte) error {
	if f.failing {
		return errors.New("store unavailable")
	}
	return f.Memory.Write(ctx, key, val)
}

type fixture struct {
	assets  *asset.Registry
	ledger  *ledger.Ledger
	txs     *txlog.Log
	journal *journal.Journal

	ledgerStore *flaky
	txStore     *flaky
}

func newFixture(t *testing.T, balances map[string]string) *fixture {
	ctx := context.Background()
	f := &fixture{
		ledgerStore: &flaky{Memory: kv.NewMemory()},
		txStore:     &flaky{Memory: kv.NewMemory()},
	}
	f.assets = asset.NewRegistry(kv.New(kv.NewMemory()))
	require.Nil(t, f.assets.Init(ctx))
	f.ledger = ledger.New(kv.New(f.ledgerStore))
	f.txs = txlog.New(kv.New(f.txStore))

	j, err := journal.Open(filepath.Join(t.TempDir(), "exchange.log"))
	require.Nil(t, err)
	t.Cleanup(func() { j.Close() })
	f.journal = j

	for id, amount := range balances {
		a, err := f.assets.Get(ctx, id)
		require.Nil(t, err)
		_, err = f.ledger.SetAmount(ctx, id, d(amount), a.Decimals)
		require.Nil(t, err)
	}
	return f
}

func (f *fixture) engine(rater oracle.Rater) *exchange.Engine {
	return exchange.New(f.assets, f.ledger, f.txs, rater, exchange.WithJournal(f.journal))
}

func (f *fixture) amount(t *testing.T, id string) decimal.Decimal {
	b, _, err := f.ledger.Get(context.Background(), id)
	require.Nil(t, err)
	return b.Amount
}

func (f *fixture) snapshot(t *testing.T) (map[string]string, int) {
	ctx := context.Background()
	all, err := f.ledger.List(ctx)
	require.Nil(t, err)
	out := map[string]string{}
	for _, b := range all {
		out[b.AssetID] = b.Amount.String()
	}
	txs, err := f.txs.List(ctx)
	require.Nil(t, err)
	return out, len(txs)
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func req(mode oracle.Mode, from, to, amount string) exchange.Request {
	return exchange.Request{Mode: mode, From: from, To: to, Amount: d(amount)}
}

func TestFiatToCrypto(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, map[string]string{"usd": "100"})

	res, err := f.engine(fixedRater{rate: 0.0001}).Exchange(ctx, req(oracle.FiatToCrypto, "usd", "bitcoin", "50"))
	require.Nil(t, err)
	require.True(t, res.Success)
	require.True(t, res.Recorded)
	require.Equal(t, "usd", res.FromAssetID)
	require.Equal(t, "bitcoin", res.ToAssetID)
	require.True(t, res.FromAmount.Equal(d("50")))
	require.True(t, res.ToAmount.Equal(d("0.005")), res.ToAmount.String())

	require.True(t, f.amount(t, "usd").Equal(d("50")))
	require.True(t, f.amount(t, "bitcoin").Equal(d("0.005")))

	tx, err := f.txs.Get(ctx, res.TransactionID)
	require.Nil(t, err)
	require.Equal(t, txlog.Completed, tx.Status)
	require.Equal(t, txlog.TypeExchange, tx.Type)
	require.Equal(t, "USD", tx.From.Symbol)
	require.Equal(t, asset.Crypto, tx.To.Kind)
	require.True(t, tx.To.Amount.Equal(d("0.005")))
	require.True(t, tx.Rate.Equal(d("0.0001")))

	open, err := f.journal.Open()
	require.Nil(t, err)
	require.Empty(t, open)
}

func TestCryptoToFiat(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, map[string]string{"bitcoin": "1", "usd": "10"})

	res, err := f.engine(fixedRater{rate: 10000}).Exchange(ctx, req(oracle.CryptoToFiat, "bitcoin", "usd", "0.5"))
	require.Nil(t, err)
	require.True(t, res.ToAmount.Equal(d("5000")))
	require.True(t, f.amount(t, "bitcoin").Equal(d("0.5")))
	require.True(t, f.amount(t, "usd").Equal(d("5010")))
}

func TestInsufficientFunds(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, map[string]string{"usd": "100"})
	before, n := f.snapshot(t)

	_, err := f.engine(fixedRater{rate: 0.0001}).Exchange(ctx, req(oracle.FiatToCrypto, "usd", "bitcoin", "150"))
	require.ErrorIs(t, err, exchange.ErrInsufficientFunds)

	var insufficient *exchange.InsufficientFundsError
	require.True(t, errors.As(err, &insufficient))
	require.True(t, insufficient.Available.Equal(d("100")))
	require.True(t, insufficient.Required.Equal(d("150")))

	after, m := f.snapshot(t)
	require.Equal(t, before, after)
	require.Equal(t, n, m)

	// an absent balance reads as 0 available
	_, err = f.engine(fixedRater{rate: 0.0001}).Exchange(ctx, req(oracle.FiatToCrypto, "eur", "bitcoin", "1"))
	require.True(t, errors.As(err, &insufficient))
	require.True(t, insufficient.Available.IsZero())
}

func TestInsufficientFundsMessage(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, map[string]string{"bitcoin": "0.001"})

	_, err := f.engine(fixedRater{rate: 100000}).Exchange(ctx, req(oracle.CryptoToFiat, "bitcoin", "usd", "0.0015"))
	var insufficient *exchange.InsufficientFundsError
	require.True(t, errors.As(err, &insufficient))
	require.Equal(t, "insufficient funds. available: 0.00100000 bitcoin, required: 0.00150000 bitcoin",
		insufficient.Message(8))

	fiat := &exchange.InsufficientFundsError{AssetID: "usd", Available: d("12.5"), Required: d("20")}
	require.Equal(t, "insufficient funds. available: 12.50 usd, required: 20.00 usd", fiat.Message(2))
}

func TestInvalidAmount(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, map[string]string{"usd": "100"})
	e := f.engine(fixedRater{rate: 0.0001})
	before, n := f.snapshot(t)

	for _, amount := range []string{"0", "-10", "0.004"} {
		_, err := e.Exchange(ctx, req(oracle.FiatToCrypto, "usd", "bitcoin", amount))
		require.ErrorIs(t, err, exchange.ErrInvalidAmount, amount)
	}

	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, err := exchange.AmountFromFloat(v)
		require.ErrorIs(t, err, exchange.ErrInvalidAmount)
	}
	_, err := exchange.ParseAmount("NaN")
	require.ErrorIs(t, err, exchange.ErrInvalidAmount)
	_, err = exchange.ParseAmount("abc")
	require.ErrorIs(t, err, exchange.ErrInvalidAmount)
	a, err := exchange.ParseAmount(" 1250,50 ")
	require.Nil(t, err)
	require.True(t, a.Equal(d("1250.5")))

	after, m := f.snapshot(t)
	require.Equal(t, before, after)
	require.Equal(t, n, m)
}

func TestRateFailures(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, map[string]string{"usd": "100"})
	before, n := f.snapshot(t)

	for _, rate := range []float64{0, -0.5, math.NaN(), math.Inf(1)} {
		_, err := f.engine(fixedRater{rate: rate}).Exchange(ctx, req(oracle.FiatToCrypto, "usd", "bitcoin", "50"))
		require.ErrorIs(t, err, exchange.ErrInvalidRate, rate)
	}

	_, err := f.engine(fixedRater{err: oracle.ErrUnavailable}).Exchange(ctx, req(oracle.FiatToCrypto, "usd", "bitcoin", "50"))
	require.ErrorIs(t, err, exchange.ErrRateUnavailable)

	// a zero price from the feed ends up as an infinite rate
	zero := oracle.NewMarketRater(priceSource(0), time.Second)
	_, err = f.engine(zero).Exchange(ctx, req(oracle.FiatToCrypto, "usd", "bitcoin", "50"))
	require.ErrorIs(t, err, exchange.ErrInvalidRate)

	start := time.Now()
	slow := oracle.NewMarketRater(slowSource{}, 20*time.Millisecond)
	_, err = f.engine(slow).Exchange(ctx, req(oracle.FiatToCrypto, "usd", "bitcoin", "50"))
	require.ErrorIs(t, err, exchange.ErrRateUnavailable)
	require.Less(t, time.Since(start), 500*time.Millisecond)

	after, m := f.snapshot(t)
	require.Equal(t, before, after)
	require.Equal(t, n, m)
}

type priceSource float64

func (p priceSource) Price(ctx context.Context, cryptoID, fiatID string) (float64, error) {
	return float64(p), nil
}

func TestAssetsAndMode(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, map[string]string{"usd": "100", "bitcoin": "1"})
	e := f.engine(fixedRater{rate: 1})

	_, err := e.Exchange(ctx, req(oracle.FiatToCrypto, "usd", "dogecoin", "1"))
	require.ErrorIs(t, err, exchange.ErrAssetNotFound)
	_, err = e.Exchange(ctx, req(oracle.FiatToCrypto, "gbp", "bitcoin", "1"))
	require.ErrorIs(t, err, exchange.ErrAssetNotFound)

	cases := []exchange.Request{
		req(oracle.FiatToCrypto, "bitcoin", "usd", "1"),
		req(oracle.CryptoToFiat, "usd", "bitcoin", "1"),
		req(oracle.FiatToCrypto, "usd", "eur", "1"),
		req(oracle.CryptoToFiat, "bitcoin", "bitcoin", "1"),
		req(oracle.Mode(0), "usd", "bitcoin", "1"),
	}
	for _, c := range cases {
		_, err := e.Exchange(ctx, c)
		require.ErrorIs(t, err, exchange.ErrModeMismatch, c)
	}
}

func TestRounding(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, map[string]string{"usd": "100"})

	// 10.005 usd rounds half-up to 10.01, 10.01/3 btc rounds to 8 decimals
	res, err := f.engine(fixedRater{rate: 1.0 / 3}).Exchange(ctx, req(oracle.FiatToCrypto, "usd", "bitcoin", "10.005"))
	require.Nil(t, err)
	require.True(t, res.FromAmount.Equal(d("10.01")))
	require.True(t, res.ToAmount.Equal(d("10.01").Mul(res.Rate).Round(8)))
	require.True(t, f.amount(t, "usd").Equal(d("89.99")))
}

func TestConservation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, map[string]string{"usd": "10000", "bitcoin": "0"})
	e := f.engine(fixedRater{rate: 0.0000157})

	usd, btc := d("10000"), d("0")
	for _, amount := range []string{"1", "12.34", "99.99", "0.01", "2500", "7.5"} {
		res, err := e.Exchange(ctx, req(oracle.FiatToCrypto, "usd", "bitcoin", amount))
		require.Nil(t, err)
		require.True(t, res.FromAmount.Equal(d(amount)))
		require.True(t, res.ToAmount.Equal(d(amount).Mul(res.Rate).Round(8)))

		usd = usd.Sub(res.FromAmount)
		btc = btc.Add(res.ToAmount)
		require.True(t, f.amount(t, "usd").Equal(usd))
		require.True(t, f.amount(t, "bitcoin").Equal(btc))
	}

	txs, err := f.txs.List(ctx)
	require.Nil(t, err)
	require.Len(t, txs, 6)
}

func TestLedgerWriteFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, map[string]string{"usd": "100"})
	before, n := f.snapshot(t)

	f.ledgerStore.failing = true
	_, err := f.engine(fixedRater{rate: 0.0001}).Exchange(ctx, req(oracle.FiatToCrypto, "usd", "bitcoin", "50"))
	require.ErrorIs(t, err, exchange.ErrLedgerWrite)
	f.ledgerStore.failing = false

	after, m := f.snapshot(t)
	require.Equal(t, before, after)
	require.Equal(t, n, m)

	// the journal closed the entry as failed
	open, err := f.journal.Open()
	require.Nil(t, err)
	require.Empty(t, open)
}

func TestRecordFailureAndReconcile(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, map[string]string{"usd": "100"})
	e := f.engine(fixedRater{rate: 0.0001})

	f.txStore.failing = true
	res, err := e.Exchange(ctx, req(oracle.FiatToCrypto, "usd", "bitcoin", "50"))
	require.Nil(t, err)
	require.True(t, res.Success)
	require.False(t, res.Recorded)
	require.True(t, f.amount(t, "usd").Equal(d("50")))
	f.txStore.failing = false

	_, err = f.txs.Get(ctx, res.TransactionID)
	require.ErrorIs(t, err, txlog.ErrNotFound)

	rep, err := e.Reconcile(ctx)
	require.Nil(t, err)
	require.Equal(t, 1, rep.Open)
	require.Equal(t, 1, rep.Recorded)
	require.Equal(t, []string{res.TransactionID}, rep.TxIDs)

	tx, err := f.txs.Get(ctx, res.TransactionID)
	require.Nil(t, err)
	require.True(t, tx.To.Amount.Equal(d("0.005")))

	// nothing left to do
	rep, err = e.Reconcile(ctx)
	require.Nil(t, err)
	require.Equal(t, 0, rep.Open)
}

func TestReconcilePending(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, map[string]string{"usd": "50", "bitcoin": "0.005"})
	e := f.engine(fixedRater{rate: 0.0001})

	// crashed right after the ledger write: balances match the pending entry
	applied := txlog.Transaction{ID: "applied", Type: txlog.TypeExchange, Status: txlog.Completed, CreatedAt: 1}
	require.Nil(t, f.journal.Pending(applied,
		map[string]decimal.Decimal{"usd": d("100"), "bitcoin": d("0")},
		map[string]decimal.Decimal{"usd": d("50"), "bitcoin": d("0.005")}))

	// crashed before the ledger write: balances are still the ones before it
	lost := txlog.Transaction{ID: "lost", Type: txlog.TypeExchange, Status: txlog.Completed, CreatedAt: 2}
	require.Nil(t, f.journal.Pending(lost,
		map[string]decimal.Decimal{"usd": d("50"), "bitcoin": d("0.005")},
		map[string]decimal.Decimal{"usd": d("0"), "bitcoin": d("0.01")}))

	rep, err := e.Reconcile(ctx)
	require.Nil(t, err)
	require.Equal(t, 2, rep.Open)
	require.Equal(t, 1, rep.Committed)
	require.Equal(t, 1, rep.Recorded)
	require.Equal(t, 1, rep.Failed)
	require.Equal(t, 0, rep.Unverified)

	_, err = f.txs.Get(ctx, "applied")
	require.Nil(t, err)
	_, err = f.txs.Get(ctx, "lost")
	require.ErrorIs(t, err, txlog.ErrNotFound)

	open, err := f.journal.Open()
	require.Nil(t, err)
	require.Empty(t, open)
}

func TestReconcileUnverified(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, map[string]string{"usd": "100"})
	e := f.engine(fixedRater{rate: 0.0001})

	// the commit went through, then a later exchange moved the same balances
	moved := txlog.Transaction{ID: "moved", Type: txlog.TypeExchange, Status: txlog.Completed, CreatedAt: 1}
	require.Nil(t, f.journal.Pending(moved,
		map[string]decimal.Decimal{"usd": d("150"), "bitcoin": d("0")},
		map[string]decimal.Decimal{"usd": d("100"), "bitcoin": d("0.005")}))
	_, err := e.Exchange(ctx, req(oracle.FiatToCrypto, "usd", "bitcoin", "10"))
	require.Nil(t, err)

	rep, err := e.Reconcile(ctx)
	require.Nil(t, err)
	require.Equal(t, 1, rep.Open)
	require.Equal(t, 1, rep.Unverified)
	require.Equal(t, 0, rep.Failed)
	require.Equal(t, 0, rep.Recorded)

	open, err := f.journal.Open()
	require.Nil(t, err)
	require.Len(t, open, 1)
	require.Equal(t, "moved", open[0].TxID)

	require.ErrorIs(t, e.Resolve(ctx, "nope", true), exchange.ErrNotOpen)

	require.Nil(t, e.Resolve(ctx, "moved", true))
	_, err = f.txs.Get(ctx, "moved")
	require.Nil(t, err)

	open, err = f.journal.Open()
	require.Nil(t, err)
	require.Empty(t, open)
	require.ErrorIs(t, e.Resolve(ctx, "moved", false), exchange.ErrNotOpen)
}

func TestResolveNotApplied(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, map[string]string{"usd": "100"})
	e := f.engine(fixedRater{rate: 0.0001})

	tx := txlog.Transaction{ID: "x", Type: txlog.TypeExchange, Status: txlog.Completed, CreatedAt: 1}
	require.Nil(t, f.journal.Pending(tx, nil, nil))
	require.Nil(t, e.Resolve(ctx, "x", false))

	_, err := f.txs.Get(ctx, "x")
	require.ErrorIs(t, err, txlog.ErrNotFound)
	open, err := f.journal.Open()
	require.Nil(t, err)
	require.Empty(t, open)
}

func TestConcurrentDoubleSubmit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, map[string]string{"usd": "100"})
	e := f.engine(fixedRater{rate: 0.0001})

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = e.Exchange(ctx, req(oracle.FiatToCrypto, "usd", "bitcoin", "60"))
		}(i)
	}
	wg.Wait()

	ok, insufficient := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, exchange.ErrInsufficientFunds):
			insufficient++
		}
	}
	require.Equal(t, 1, ok)
	require.Equal(t, 1, insufficient)
	require.True(t, f.amount(t, "usd").Equal(d("40")))
	require.True(t, f.amount(t, "bitcoin").Equal(d("0.006")))

	txs, err := f.txs.List(ctx)
	require.Nil(t, err)
	require.Len(t, txs, 1)
}

func TestConcurrentMany(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, map[string]string{"usd": "100"})
	e := f.engine(fixedRater{rate: 0.0001})

	var wg sync.WaitGroup
	var mu sync.Mutex
	done := 0
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.Exchange(ctx, req(oracle.FiatToCrypto, "usd", "bitcoin", "7"))
			if err == nil {
				mu.Lock()
				done++
				mu.Unlock()
			} else {
				require.ErrorIs(t, err, exchange.ErrInsufficientFunds)
			}
		}()
	}
	wg.Wait()

	// 14 * 7 = 98 fits, a 15th would not
	require.Equal(t, 14, done)
	require.True(t, f.amount(t, "usd").Equal(d("2")))
	require.True(t, f.amount(t, "bitcoin").Equal(d("0.0098")))
}

func TestQuote(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, map[string]string{"usd": "100"})
	before, n := f.snapshot(t)

	q, err := f.engine(fixedRater{rate: 0.0001}).Quote(ctx, req(oracle.FiatToCrypto, "usd", "bitcoin", "150"))
	require.Nil(t, err)
	require.True(t, q.ToAmount.Equal(d("0.015")))
	require.True(t, q.Available.Equal(d("100")))
	require.False(t, q.Sufficient)

	after, m := f.snapshot(t)
	require.Equal(t, before, after)
	require.Equal(t, n, m)
}
