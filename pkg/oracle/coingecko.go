// Package oracle supplies exchange rates from a market price feed.
package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"peachcash/pkg/xlog"
)

var ErrUnavailable = errors.New("rate unavailable")

var logger = xlog.GetLogger()

// PriceSource returns the price of one unit of crypto expressed in fiat
type PriceSource interface {
	Price(ctx context.Context, cryptoID, fiatID string) (float64, error)
}

// CoinGecko reads /simple/price for rates, /search and /coins/markets for listings
type CoinGecko struct {
	BaseURL string
	Client  *http.Client
}

func NewCoinGecko(baseURL string) *CoinGecko {
	return &CoinGecko{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *CoinGecko) Price(ctx context.Context, cryptoID, fiatID string) (price float64, err error) {
	defer func() {
		if err != nil {
			logger.Warningf("coingecko price %s/%s failed with err:%s", cryptoID, fiatID, err)
		} else {
			logger.Tracef("coingecko price %s/%s = %v", cryptoID, fiatID, price)
		}
	}()

	q := url.Values{}
	q.Set("ids", cryptoID)
	q.Set("vs_currencies", fiatID)

	var body map[string]map[string]any
	if err = c.get(ctx, "/simple/price", q, &body); err != nil {
		return 0, err
	}

	v, ok := body[cryptoID][fiatID]
	if !ok {
		return 0, fmt.Errorf("%w: no %s price for %s", ErrUnavailable, fiatID, cryptoID)
	}
	price, ok = v.(float64)
	if !ok {
		return 0, fmt.Errorf("%w: non-numeric price %v", ErrUnavailable, v)
	}
	return price, nil
}

// get decodes the json body of a GET on path, every failure wraps ErrUnavailable
func (c *CoinGecko) get(ctx context.Context, path string, q url.Values, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	res, err := c.Client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 4096))
		return fmt.Errorf("%w: http status %d", ErrUnavailable, res.StatusCode)
	}

	err = json.NewDecoder(io.LimitReader(res.Body, 4<<20)).Decode(v)
	if err != nil {
		return fmt.Errorf("%w: decode: %v", ErrUnavailable, err)
	}
	return nil
}
