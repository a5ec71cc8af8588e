// Package portfolio values all balances in one fiat currency.
package portfolio

import (
	"context"

	"peachcash/pkg/asset"
	"peachcash/pkg/ledger"
	"peachcash/pkg/oracle"
	"peachcash/pkg/xlog"

	"github.com/shopspring/decimal"
)

var logger = xlog.GetLogger()

type Valuer struct {
	Assets *asset.Registry
	Ledger *ledger.Ledger
	Prices oracle.PriceSource
	Fiat   oracle.StaticFiat
}

type Line struct {
	AssetID string
	Kind    asset.Kind
	Amount  decimal.Decimal
	Value   decimal.Decimal // in vsFiat
	Skipped bool            // no price available
}

// Total sums every balance expressed in vsFiat, crypto without a price is skipped
func (v *Valuer) Total(ctx context.Context, vsFiat string) (total decimal.Decimal, lines []Line, err error) {
	balances, err := v.Ledger.List(ctx)
	if err != nil {
		return
	}

	total = decimal.Zero
	for _, b := range balances {
		a, err := v.Assets.Get(ctx, b.AssetID)
		if err != nil {
			logger.Warningf("portfolio skip balance %s: %s", b.AssetID, err)
			continue
		}

		line := Line{AssetID: b.AssetID, Kind: a.Kind, Amount: b.Amount}
		switch a.Kind {
		case asset.Fiat:
			line.Value, err = v.Fiat.Convert(b.Amount, b.AssetID, vsFiat)
		case asset.Crypto:
			var p float64
			p, err = v.Prices.Price(ctx, b.AssetID, vsFiat)
			if err == nil {
				line.Value = b.Amount.Mul(decimal.NewFromFloat(p))
			}
		}
		if err != nil {
			logger.Warningf("portfolio no %s price for %s: %s", vsFiat, b.AssetID, err)
			line.Skipped = true
			lines = append(lines, line)
			continue
		}

		line.Value = line.Value.Round(2)
		total = total.Add(line.Value)
		lines = append(lines, line)
	}
	return total, lines, nil
}
