package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"peachcash/pkg/asset"
	"peachcash/pkg/config"
	"peachcash/pkg/exchange"
	"peachcash/pkg/info"
	"peachcash/pkg/journal"
	"peachcash/pkg/kv"
	"peachcash/pkg/ledger"
	"peachcash/pkg/metrics"
	promcollector "peachcash/pkg/metrics/prometheus"
	"peachcash/pkg/model"
	"peachcash/pkg/oracle"
	"peachcash/pkg/portfolio"
	"peachcash/pkg/txlog"
	"peachcash/pkg/xlog"
	"peachcash/pkg/xnats"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/multierr"
)

var logger = xlog.GetLogger()

var (
	fApp     string
	fMode    string
	fFrom    string
	fTo      string
	fAmount  string
	fVs      string
	fQuery   string
	fID      string
	fTx      string
	fApplied bool
	fOffset  int
	fLimit   int
	fLogDir  string
	fLogFile string
)

var apps = map[string]func(ctx context.Context, c *core) error{
	"rate":      runRate,
	"quote":     runQuote,
	"exchange":  runExchange,
	"balances":  runBalances,
	"assets":    runAssets,
	"history":   runHistory,
	"value":     runValue,
	"reconcile": runReconcile,
	"resolve":   runResolve,
	"search":    runSearch,
	"register":  runRegister,
	"favorite":  runFavorite,
	"favorites": runFavorites,
	"reset":     runReset,
	"follow":    runFollow,
}

func init() {
	flag.StringVar(&fApp, "app", "", "one of rate, quote, exchange, balances, assets, history, value, reconcile, resolve, "+
		"search, register, favorite, favorites, reset, follow, version")
	flag.StringVar(&fMode, "mode", "fiat-to-crypto", "fiat-to-crypto or crypto-to-fiat")
	flag.StringVar(&fFrom, "from", "", "source asset id")
	flag.StringVar(&fTo, "to", "", "target asset id")
	flag.StringVar(&fAmount, "amount", "", "amount in source asset units")
	flag.StringVar(&fVs, "vs", "usd", "fiat used by -app value and -app search")
	flag.StringVar(&fQuery, "q", "", "market search text for -app search")
	flag.StringVar(&fID, "id", "", "coin id for -app register and -app favorite")
	flag.StringVar(&fTx, "tx", "", "transaction id for -app resolve")
	flag.BoolVar(&fApplied, "applied", false, "whether the balances of -tx were applied, for -app resolve")
	flag.IntVar(&fOffset, "offset", 0, "")
	flag.IntVar(&fLimit, "limit", 20, "")
	flag.StringVar(&fLogDir, "logdir", "", "")
	flag.StringVar(&fLogFile, "logfile", "", "")
}

func main() {
	flag.Parse()

	if fApp == "version" {
		fmt.Println(info.String())
		return
	}
	run, ok := apps[fApp]
	if !ok {
		names := make([]string, 0, len(apps)+1)
		for k := range apps {
			names = append(names, k)
		}
		names = append(names, "version")
		sort.Strings(names)
		fmt.Fprintf(os.Stderr, "invalid app, only (%s) available\n", strings.Join(names, ", "))
		os.Exit(2)
	}

	// Initialize the Shared config
	config.EasyInit()

	// Initialize the logger
	if fLogDir == "" {
		fLogDir = filepath.Join(config.Shared.DataDir, "logs")
	}
	if fLogFile == "" {
		fLogFile = fApp + ".log"
	}
	logPath := filepath.Join(fLogDir, fLogFile)
	xlog.Init(fApp, logPath)
	logger.Infof("%s started, %s", fApp, info.String())
	logger.Infof("xlog in %s", logPath)

	go handleSignals()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := openCore(ctx, config.Shared)
	if err != nil {
		logger.Fatalf("open %s failed with err:%s", fApp, err)
	}

	err = run(ctx, c)
	if cerr := c.Close(); cerr != nil {
		logger.Errorf("close failed with err:%s", cerr)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error(err)
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// handleSignals changes the log level on SIGUSR1
//
//	docker exec <container_id> sh -c 'export PEACH_LOG_LVL=TRACE && kill -SIGUSR1 1'
func handleSignals() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGUSR1)

	for range sigChan {
		level := os.Getenv("PEACH_LOG_LVL")
		if level == "" {
			continue
		}
		logger.SetLevel(level)
		logger.Infof("log level set to %s via signal", level)
	}
}

// core is everything an app may need, built once from the config
type core struct {
	cfg *config.Config

	store     *kv.Store
	assets    *asset.Registry
	favorites *asset.Favorites
	market    *oracle.CoinGecko
	ledger    *ledger.Ledger
	txs       *txlog.Log
	journal   *journal.Journal // nil when disabled
	rater     *oracle.MarketRater
	prices    oracle.PriceSource
	engine    *exchange.Engine

	rc      *redis.Client
	metrics *http.Server
}

func openCore(ctx context.Context, cfg *config.Config) (c *core, err error) {
	c = &core{cfg: cfg}
	defer func() {
		if err != nil {
			err = multierr.Append(err, c.Close())
			c = nil
		}
	}()

	var mc metrics.Collector = metrics.NoOp{}
	if cfg.Metrics.Addr != "" {
		pc := promcollector.New("peachcash")
		reg := prometheus.NewRegistry()
		if err = pc.Register(reg); err != nil {
			return
		}
		mc = pc
		c.metrics = serveMetrics(cfg.Metrics.Addr, reg)
	}

	c.store, err = kv.OpenStore(cfg)
	if err != nil {
		return
	}
	c.assets = asset.NewRegistry(c.store)
	c.favorites = asset.NewFavorites(c.store)
	c.ledger = ledger.New(c.store)
	c.txs = txlog.New(c.store)

	if err = c.assets.Init(ctx); err != nil {
		return
	}
	if err = c.ledger.Init(ctx); err != nil {
		return
	}

	if cfg.Oracle.CacheIn == "redis" && cfg.Oracle.CacheTTL > 0 {
		c.rc = model.OpenRedis(cfg.Redis.Main)
	}
	c.rater, c.prices = oracle.Build(cfg.Oracle, c.rc, mc)
	c.market = oracle.NewCoinGecko(cfg.Oracle.BaseURL)

	opts := []exchange.Option{exchange.WithMetrics(mc)}
	if cfg.Engine.Journal || fApp == "follow" {
		c.journal, err = journal.Open(filepath.Join(cfg.DataDir, "journal", "exchange.log"))
		if err != nil {
			return
		}
		opts = append(opts, exchange.WithJournal(c.journal))
	}
	c.engine = exchange.New(c.assets, c.ledger, c.txs, c.rater, opts...)
	return
}

func serveMetrics(addr string, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Infof("metrics on %s/metrics", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("metrics server failed with err:%s", err)
		}
	}()
	return srv
}

func (c *core) Close() (err error) {
	if c.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err = multierr.Append(err, c.metrics.Shutdown(ctx))
		cancel()
	}
	if c.journal != nil {
		err = multierr.Append(err, c.journal.Close())
	}
	if c.rc != nil {
		err = multierr.Append(err, c.rc.Close())
	}
	if c.store != nil {
		err = multierr.Append(err, c.store.Close())
	}
	return
}

func request() (req exchange.Request, err error) {
	req.Mode, err = oracle.ParseMode(fMode)
	if err != nil {
		return
	}
	if fFrom == "" || fTo == "" {
		return req, errors.New("-from and -to are required")
	}
	req.From, req.To = fFrom, fTo
	req.Amount, err = exchange.ParseAmount(fAmount)
	return
}

func runRate(ctx context.Context, c *core) error {
	mode, err := oracle.ParseMode(fMode)
	if err != nil {
		return err
	}
	crypto, fiat := mode.Roles(fFrom, fTo)
	rate, err := c.rater.GetRate(ctx, mode, crypto, fiat)
	if err != nil {
		return err
	}
	fmt.Printf("1 %s = %v %s (%s)\n", fFrom, rate, fTo, mode)
	return nil
}

// ensureCrypto registers the crypto side of req from the market when it is not known yet
func ensureCrypto(ctx context.Context, c *core, req exchange.Request) error {
	id, _ := req.Mode.Roles(req.From, req.To)
	_, err := c.assets.Get(ctx, id)
	if !errors.Is(err, asset.ErrNotFound) {
		return err
	}

	coin, err := c.market.Coin(ctx, id, "usd")
	if err != nil {
		// the engine reports the unknown asset
		logger.Warningf("crypto %s not found on the market, err:%s", id, err)
		return nil
	}
	_, _, err = c.assets.EnsureCrypto(ctx, coin.Asset())
	return err
}

func runQuote(ctx context.Context, c *core) error {
	req, err := request()
	if err != nil {
		return err
	}
	if err = ensureCrypto(ctx, c, req); err != nil {
		return err
	}
	q, err := c.engine.Quote(ctx, req)
	if err != nil {
		return err
	}
	fmt.Printf("%s %s -> %s %s at %s (available %s, sufficient %v)\n",
		q.FromAmount, q.FromAssetID, q.ToAmount, q.ToAssetID, q.Rate, q.Available, q.Sufficient)
	return nil
}

func runExchange(ctx context.Context, c *core) error {
	req, err := request()
	if err != nil {
		return err
	}

	if err = ensureCrypto(ctx, c, req); err != nil {
		return err
	}

	// repair what a previous run left open before moving balances again
	if c.journal != nil {
		rep, err := c.engine.Reconcile(ctx)
		if err != nil {
			return err
		}
		if rep.Unverified > 0 {
			fmt.Printf("warning: %d journal entries need -app resolve\n", rep.Unverified)
		}
	}

	res, err := c.engine.Exchange(ctx, req)
	if err != nil {
		var insufficient *exchange.InsufficientFundsError
		if errors.As(err, &insufficient) {
			a, aerr := c.assets.Get(ctx, insufficient.AssetID)
			if aerr != nil {
				return err
			}
			return errors.New(insufficient.Message(a.Decimals))
		}
		return err
	}

	fmt.Printf("exchanged %s %s -> %s %s at %s, tx %s\n",
		res.FromAmount, res.FromAssetID, res.ToAmount, res.ToAssetID, res.Rate, res.TransactionID)
	if !res.Recorded {
		fmt.Println("warning: balances moved but the transaction was not recorded, run -app reconcile")
	}
	return nil
}

func runBalances(ctx context.Context, c *core) error {
	balances, err := c.ledger.List(ctx)
	if err != nil {
		return err
	}
	for _, b := range balances {
		fmt.Printf("%-10s %20s  %s\n", b.AssetID, b.Amount, time.UnixMilli(b.UpdatedAt).Format(time.RFC3339))
	}
	return nil
}

func runAssets(ctx context.Context, c *core) error {
	assets, err := c.assets.List(ctx)
	if err != nil {
		return err
	}
	for _, a := range assets {
		fmt.Printf("%-10s %-6s %-6s %-16s active:%v\n", a.ID, a.Kind, a.Symbol, a.Name, a.IsActive)
	}
	return nil
}

func runHistory(ctx context.Context, c *core) error {
	txs, err := c.txs.Page(ctx, fOffset, fLimit)
	if err != nil {
		return err
	}
	for _, tx := range txs {
		fmt.Printf("%s %s %-9s %s %s -> %s %s\n",
			time.UnixMilli(tx.CreatedAt).Format(time.RFC3339), tx.ID, tx.Status,
			tx.From.Amount, tx.From.Symbol, tx.To.Amount, tx.To.Symbol)
	}
	return nil
}

func runValue(ctx context.Context, c *core) error {
	v := &portfolio.Valuer{Assets: c.assets, Ledger: c.ledger, Prices: c.prices, Fiat: oracle.DefaultFiat}
	total, lines, err := v.Total(ctx, fVs)
	if err != nil {
		return err
	}
	for _, l := range lines {
		if l.Skipped {
			fmt.Printf("%-10s %20s  (no price)\n", l.AssetID, l.Amount)
			continue
		}
		fmt.Printf("%-10s %20s  %s %s\n", l.AssetID, l.Amount, l.Value.StringFixed(2), fVs)
	}
	fmt.Printf("total %s %s\n", total.StringFixed(2), fVs)
	return nil
}

func runReconcile(ctx context.Context, c *core) error {
	if c.journal == nil {
		return errors.New("journal disabled, set engine.journal in the config")
	}
	rep, err := c.engine.Reconcile(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("open:%d committed:%d recorded:%d failed:%d unverified:%d\n",
		rep.Open, rep.Committed, rep.Recorded, rep.Failed, rep.Unverified)
	return nil
}

func runResolve(ctx context.Context, c *core) error {
	if c.journal == nil {
		return errors.New("journal disabled, set engine.journal in the config")
	}
	if fTx == "" {
		return errors.New("-tx is required")
	}
	if err := c.engine.Resolve(ctx, fTx, fApplied); err != nil {
		return err
	}
	fmt.Printf("%s resolved, applied:%v\n", fTx, fApplied)
	return nil
}

func runSearch(ctx context.Context, c *core) error {
	coins, err := c.market.Search(ctx, fQuery, fVs)
	if err != nil {
		return err
	}
	favs, err := c.favorites.List(ctx)
	if err != nil {
		return err
	}
	starred := make(map[string]bool, len(favs))
	for _, id := range favs {
		starred[id] = true
	}

	for _, coin := range coins {
		star := " "
		if starred[coin.ID] {
			star = "*"
		}
		fmt.Printf("%s %-20s %-8s %-24s %16v %s  %+.2f%%\n", star, coin.ID, strings.ToUpper(coin.Symbol),
			coin.Name, coin.CurrentPrice, fVs, coin.PriceChangePercentage24h)
	}
	if len(coins) == 0 {
		fmt.Println("no match")
	}
	return nil
}

func runRegister(ctx context.Context, c *core) error {
	if fID == "" {
		return errors.New("-id is required")
	}
	coin, err := c.market.Coin(ctx, fID, "usd")
	if err != nil {
		return err
	}
	a, created, err := c.assets.EnsureCrypto(ctx, coin.Asset())
	if err != nil {
		return err
	}
	if !created {
		fmt.Printf("%s already registered\n", a.ID)
		return nil
	}
	fmt.Printf("%s (%s) registered\n", a.ID, a.Symbol)
	return nil
}

func runFavorite(ctx context.Context, c *core) error {
	if fID == "" {
		return errors.New("-id is required")
	}
	on, err := c.favorites.Toggle(ctx, fID)
	if err != nil {
		return err
	}
	fmt.Printf("%s favorite:%v\n", fID, on)
	return nil
}

func runFavorites(ctx context.Context, c *core) error {
	ids, err := c.favorites.List(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		fmt.Println(id)
	}
	return nil
}

func runReset(ctx context.Context, c *core) error {
	err := multierr.Append(c.ledger.Reset(ctx), c.txs.Reset(ctx))
	if err != nil {
		return err
	}
	fmt.Println("balances reset to defaults, transactions cleared")
	return nil
}

// runFollow tails the journal and ships every line to NATS
func runFollow(ctx context.Context, c *core) (err error) {
	p, err := xnats.Connect(c.cfg.Nats.Url, c.cfg.Nats.Subject)
	if err != nil {
		return
	}
	defer p.Close()

	if err = p.EnsureStream(c.cfg.Nats.Stream); err != nil {
		return
	}

	ch := make(chan journal.Entry, 256)
	errc := make(chan error, 1)
	go func() {
		errc <- c.journal.Follow(ctx, ch)
	}()

	last, err := p.Ship(ctx, ch, 0)
	logger.Infof("follow stopped at logID:%d", last)
	if ferr := <-errc; ferr != nil && !errors.Is(ferr, context.Canceled) {
		err = multierr.Append(err, ferr)
	}
	return
}
