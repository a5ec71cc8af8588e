package oracle

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"peachcash/pkg/asset"

	"github.com/stretchr/testify/require"
)

const marketsBody = `[
	{"id":"dogecoin","symbol":"doge","name":"Dogecoin","image":"https://img/doge.png",
	 "current_price":0.12,"market_cap":17000000000,"market_cap_rank":9,"price_change_percentage_24h":-1.5},
	{"id":"baby-doge-coin","symbol":"babydoge","name":"Baby Doge Coin","image":"https://img/babydoge.png",
	 "current_price":0.000000001,"market_cap":200000000,"market_cap_rank":300,"price_change_percentage_24h":2}
]`

func newMarket(t *testing.T, searchBody string) (*CoinGecko, *atomic.Int32) {
	var markets atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch r.URL.Path {
		case "/search":
			require.Equal(t, "doge", q.Get("query"))
			fmt.Fprint(w, searchBody)
		case "/coins/markets":
			markets.Add(1)
			require.Equal(t, "usd", q.Get("vs_currency"))
			require.Equal(t, "market_cap_desc", q.Get("order"))
			if q.Get("ids") == "nothing" {
				fmt.Fprint(w, `[]`)
				return
			}
			fmt.Fprint(w, marketsBody)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return NewCoinGecko(srv.URL), &markets
}

func TestSearch(t *testing.T) {
	ctx := context.Background()
	search := `{"coins":[{"id":"dogecoin"},{"id":"baby-doge-coin"},{"id":"a"},{"id":"b"},{"id":"c"},{"id":"d"}]}`
	cg, markets := newMarket(t, search)

	coins, err := cg.Search(ctx, " doge ", "usd")
	require.Nil(t, err)
	require.Len(t, coins, 2)
	require.Equal(t, "dogecoin", coins[0].ID)
	require.Equal(t, 0.12, coins[0].CurrentPrice)
	require.Equal(t, 9, coins[0].MarketCapRank)
	require.Equal(t, int32(1), markets.Load())

	// too short to search
	coins, err = cg.Search(ctx, "d", "usd")
	require.Nil(t, err)
	require.Empty(t, coins)
	require.Equal(t, int32(1), markets.Load())
}

func TestSearchNoHits(t *testing.T) {
	cg, markets := newMarket(t, `{"coins":[]}`)

	coins, err := cg.Search(context.Background(), "doge", "usd")
	require.Nil(t, err)
	require.Empty(t, coins)
	require.Equal(t, int32(0), markets.Load())
}

func TestSearchUnavailable(t *testing.T) {
	cg, _ := newMarket(t, `not json`)

	_, err := cg.Search(context.Background(), "doge", "usd")
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestCoin(t *testing.T) {
	ctx := context.Background()
	cg, _ := newMarket(t, ``)

	coin, err := cg.Coin(ctx, "baby-doge-coin", "usd")
	require.Nil(t, err)
	require.Equal(t, "Baby Doge Coin", coin.Name)

	_, err = cg.Coin(ctx, "nothing", "usd")
	require.ErrorIs(t, err, ErrUnavailable)

	a := coin.Asset()
	require.Nil(t, a.Validate())
	require.Equal(t, asset.Crypto, a.Kind)
	require.Equal(t, int32(8), a.Decimals)
	require.Equal(t, "BABYDOGE", a.Symbol)
	require.True(t, a.IsActive)
}
