package oracle

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"peachcash/pkg/asset"
)

// Coin is one row of /coins/markets
type Coin struct {
	ID                       string  `json:"id"`
	Symbol                   string  `json:"symbol"`
	Name                     string  `json:"name"`
	Image                    string  `json:"image"`
	CurrentPrice             float64 `json:"current_price"`
	MarketCap                float64 `json:"market_cap"`
	MarketCapRank            int     `json:"market_cap_rank"`
	PriceChangePercentage24h float64 `json:"price_change_percentage_24h"`
}

// Asset is the registry entry for a coin picked from the market
func (c Coin) Asset() asset.Asset {
	return asset.Asset{
		ID:       c.ID,
		Kind:     asset.Crypto,
		Symbol:   strings.ToUpper(c.Symbol),
		Name:     c.Name,
		Decimals: asset.Crypto.Decimals(),
		Image:    c.Image,
		IsActive: true,
	}
}

type MarketsQuery struct {
	VsCurrency string
	IDs        []string // all coins when empty
	Order      string
	PerPage    int
	Page       int
}

const (
	searchMinLen  = 2
	searchMaxHits = 5
)

// Markets lists coins with their market data in mq.VsCurrency
func (c *CoinGecko) Markets(ctx context.Context, mq MarketsQuery) (coins []Coin, err error) {
	defer func() {
		if err != nil {
			logger.Warningf("coingecko markets %v failed with err:%s", mq.IDs, err)
		}
	}()

	if mq.VsCurrency == "" {
		mq.VsCurrency = "usd"
	}
	if mq.Order == "" {
		mq.Order = "market_cap_desc"
	}
	if mq.PerPage <= 0 {
		mq.PerPage = 20
	}
	if mq.Page <= 0 {
		mq.Page = 1
	}

	q := url.Values{}
	q.Set("vs_currency", mq.VsCurrency)
	q.Set("order", mq.Order)
	q.Set("per_page", strconv.Itoa(mq.PerPage))
	q.Set("page", strconv.Itoa(mq.Page))
	q.Set("sparkline", "false")
	q.Set("price_change_percentage", "24h")
	if len(mq.IDs) > 0 {
		q.Set("ids", strings.Join(mq.IDs, ","))
	}

	err = c.get(ctx, "/coins/markets", q, &coins)
	return
}

// Search resolves query to coin ids with /search, then returns the market rows of the top hits.
// Queries shorter than two characters match nothing.
func (c *CoinGecko) Search(ctx context.Context, query, vsCurrency string) ([]Coin, error) {
	query = strings.TrimSpace(query)
	if len(query) < searchMinLen {
		return nil, nil
	}

	var body struct {
		Coins []struct {
			ID string `json:"id"`
		} `json:"coins"`
	}
	if err := c.get(ctx, "/search", url.Values{"query": {query}}, &body); err != nil {
		logger.Warningf("coingecko search %q failed with err:%s", query, err)
		return nil, err
	}

	ids := make([]string, 0, searchMaxHits)
	for _, hit := range body.Coins {
		if len(ids) == searchMaxHits {
			break
		}
		ids = append(ids, hit.ID)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	return c.Markets(ctx, MarketsQuery{VsCurrency: vsCurrency, IDs: ids})
}

// Coin returns the market row of one coin id
func (c *CoinGecko) Coin(ctx context.Context, id, vsCurrency string) (Coin, error) {
	coins, err := c.Markets(ctx, MarketsQuery{VsCurrency: vsCurrency, IDs: []string{id}, PerPage: 1})
	if err != nil {
		return Coin{}, err
	}
	for _, coin := range coins {
		if coin.ID == id {
			return coin, nil
		}
	}
	return Coin{}, fmt.Errorf("%w: no market for %s", ErrUnavailable, id)
}
