package oracle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"peachcash/pkg/metrics"

	"github.com/sony/gobreaker"
)

type BreakerConfig struct {
	Name                string
	MaxRequests         uint32 // allowed through while half-open
	ConsecutiveFailures uint32 // trips the breaker
	OpenTimeout         time.Duration
}

// Breaker stops calling a failing PriceSource until OpenTimeout has passed
type Breaker struct {
	source PriceSource
	cb     *gobreaker.CircuitBreaker
}

func NewBreaker(source PriceSource, cfg BreakerConfig, mc metrics.Collector) *Breaker {
	if mc == nil {
		mc = metrics.NoOp{}
	}
	failures := cfg.ConsecutiveFailures
	if failures == 0 {
		failures = 5
	}

	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warningf("oracle breaker %s %s -> %s", name, from, to)

			var state metrics.CircuitState
			switch to {
			case gobreaker.StateClosed:
				state = metrics.CircuitClosed
			case gobreaker.StateHalfOpen:
				state = metrics.CircuitHalfOpen
			case gobreaker.StateOpen:
				state = metrics.CircuitOpen
			}
			mc.RecordCircuitState(name, state)
		},
	}

	return &Breaker{
		source: source,
		cb:     gobreaker.NewCircuitBreaker(settings),
	}
}

func (b *Breaker) Price(ctx context.Context, cryptoID, fiatID string) (float64, error) {
	v, err := b.cb.Execute(func() (interface{}, error) {
		return b.source.Price(ctx, cryptoID, fiatID)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return 0, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if err != nil {
		return 0, err
	}
	return v.(float64), nil
}

func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}
