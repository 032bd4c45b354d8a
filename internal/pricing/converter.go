// Package pricing converts between token amounts and USD values using
// oracle quotes. All outputs are 1e18-scaled.
package pricing

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"

	"stablevault/internal/config"
	"stablevault/internal/fixedpoint"
	"stablevault/internal/oracle"
)

// InvalidPriceError reports a feed round whose price is zero or negative.
// Such a round is unusable regardless of freshness.
type InvalidPriceError struct {
	FeedRef string
	Price   *big.Int
}

func (e *InvalidPriceError) Error() string {
	return fmt.Sprintf("pricing: non-positive price %s from feed %q", e.Price, e.FeedRef)
}

// UnknownAssetError reports a conversion request for an asset outside the
// allow-list.
type UnknownAssetError struct {
	Asset string
}

func (e *UnknownAssetError) Error() string {
	return fmt.Sprintf("pricing: unknown asset %q", e.Asset)
}

// Converter maps allow-listed assets to feeds and performs the two
// conversion directions. UsdValue reads the raw source; TokenAmountForUsd
// reads through the staleness guard, because it sits on the liquidation
// path where acting on a frozen price seizes the wrong amount of
// collateral.
type Converter struct {
	source oracle.Source
	guard  *oracle.Guard
	feeds  map[string]string
	order  []string
}

// NewConverter builds a converter over the configured asset list.
func NewConverter(source oracle.Source, guard *oracle.Guard, assets []config.Asset) *Converter {
	feeds := make(map[string]string, len(assets))
	order := make([]string, 0, len(assets))
	for _, a := range assets {
		feeds[a.Symbol] = a.FeedRef
		order = append(order, a.Symbol)
	}
	return &Converter{source: source, guard: guard, feeds: feeds, order: order}
}

// Assets returns the allow-listed asset symbols in configuration order.
func (c *Converter) Assets() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// FeedFor returns the feed reference bound to an asset.
func (c *Converter) FeedFor(asset string) (string, error) {
	feed, ok := c.feeds[asset]
	if !ok {
		return "", &UnknownAssetError{Asset: asset}
	}
	return feed, nil
}

// UsdValue returns the USD value (1e18-scaled) of amount tokens:
// price * 1e10 * amount / 1e18.
func (c *Converter) UsdValue(asset string, amount *uint256.Int) (*uint256.Int, error) {
	feed, ok := c.feeds[asset]
	if !ok {
		return nil, &UnknownAssetError{Asset: asset}
	}
	price, err := c.readPrice(c.source, feed)
	if err != nil {
		return nil, err
	}
	scaled := new(uint256.Int).Mul(price, fixedpoint.FeedAdjustment)
	return fixedpoint.MulDiv(scaled, amount, fixedpoint.Precision), nil
}

// TokenAmountForUsd returns the token amount (1e18-scaled) worth usd at the
// current guarded price: usd * 1e18 / (price * 1e10). Rounds down.
func (c *Converter) TokenAmountForUsd(asset string, usd *uint256.Int) (*uint256.Int, error) {
	feed, ok := c.feeds[asset]
	if !ok {
		return nil, &UnknownAssetError{Asset: asset}
	}
	price, err := c.readPrice(c.guard, feed)
	if err != nil {
		return nil, err
	}
	scaled := new(uint256.Int).Mul(price, fixedpoint.FeedAdjustment)
	return fixedpoint.MulDiv(usd, fixedpoint.Precision, scaled), nil
}

// readPrice fetches the latest round from src and validates the price is
// strictly positive before converting it to unsigned 256-bit form.
func (c *Converter) readPrice(src oracle.Source, feed string) (*uint256.Int, error) {
	q, err := src.LatestRound(feed)
	if err != nil {
		return nil, err
	}
	if q.Price == nil || q.Price.Sign() <= 0 {
		return nil, &InvalidPriceError{FeedRef: feed, Price: q.Price}
	}
	price, overflow := uint256.FromBig(q.Price)
	if overflow {
		return nil, &InvalidPriceError{FeedRef: feed, Price: q.Price}
	}
	return price, nil
}
