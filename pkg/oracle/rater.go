package oracle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"peachcash/pkg/metrics"
)

// Rater returns units of the to asset per unit of the from asset for the mode
type Rater interface {
	GetRate(ctx context.Context, mode Mode, cryptoID, fiatID string) (float64, error)
}

// MarketRater turns a crypto price into a rate with a bounded wait
type MarketRater struct {
	Source  PriceSource
	Timeout time.Duration
	Name    string
	Metrics metrics.Collector
}

func NewMarketRater(source PriceSource, timeout time.Duration) *MarketRater {
	return &MarketRater{
		Source:  source,
		Timeout: timeout,
		Name:    "market",
		Metrics: metrics.NoOp{},
	}
}

type priceResult struct {
	price float64
	err   error
}

func (r *MarketRater) GetRate(ctx context.Context, mode Mode, cryptoID, fiatID string) (rate float64, err error) {
	if !mode.Valid() {
		return 0, fmt.Errorf("%w: %d", ErrUnknownMode, int(mode))
	}

	start := time.Now()
	defer func() {
		r.Metrics.RecordRate(r.Name, err == nil, time.Since(start))
	}()

	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	// the source may ignore ctx, the select keeps the wait bounded anyway
	ch := make(chan priceResult, 1)
	go func() {
		p, err := r.Source.Price(ctx, cryptoID, fiatID)
		ch <- priceResult{price: p, err: err}
	}()

	var res priceResult
	select {
	case res = <-ch:
	case <-ctx.Done():
		return 0, fmt.Errorf("%w: %s/%s: %w", ErrUnavailable, cryptoID, fiatID, ctx.Err())
	}

	if res.err != nil {
		if errors.Is(res.err, ErrUnavailable) {
			return 0, res.err
		}
		return 0, fmt.Errorf("%w: %w", ErrUnavailable, res.err)
	}

	switch mode {
	case FiatToCrypto:
		return 1 / res.price, nil
	case CryptoToFiat:
		return res.price, nil
	}
	return 0, fmt.Errorf("%w: %d", ErrUnknownMode, int(mode))
}
