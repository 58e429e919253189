package domain

import (
	"github.com/shopspring/decimal"
)

// Minor units per whole unit. The native chain coin uses 12 decimal places,
// issued tokens use 3.
const (
	MinorPerNative int64 = 1_000_000_000_000
	MinorPerToken  int64 = 1_000
)

// Asset identifies one side of the trading pair. The native coin has an empty
// TailHash; issued tokens are identified by their hex-encoded tail hash.
type Asset struct {
	TailHash string
}

// Native is the chain's built-in coin.
var Native = Asset{}

// Token returns the asset for an issued token by tail hash.
func Token(tailHash string) Asset {
	return Asset{TailHash: tailHash}
}

// Well-known issued tokens.
var (
	// USDS is Stably USD.
	USDS = Token("6d95dae356e32a71db5ddcb42224754a02524c615c5fc35f568c2af04774e589")

	// TDBX is Testnet Dexie Bucks.
	TDBX = Token("d82dd03f8a9ad2f84353cd953c4de6b21dbaaf7de3ba3f4ddd9abe31ecba80ad")
)

// IsNative reports whether this is the chain's built-in coin.
func (a Asset) IsNative() bool {
	return a.TailHash == ""
}

// MinorPerUnit returns how many minor units make one whole unit of the asset.
func (a Asset) MinorPerUnit() int64 {
	if a.IsNative() {
		return MinorPerNative
	}
	return MinorPerToken
}

// Amount converts a whole-unit decimal quantity into minor units, truncating
// any fraction below one minor unit.
func (a Asset) Amount(units decimal.Decimal) int64 {
	return units.Mul(decimal.NewFromInt(a.MinorPerUnit())).IntPart()
}

// Units converts minor units back into a whole-unit decimal quantity.
func (a Asset) Units(minor int64) decimal.Decimal {
	return decimal.NewFromInt(minor).Div(decimal.NewFromInt(a.MinorPerUnit()))
}

// UnitPrice converts a quote-per-base price expressed in whole units into the
// minor-unit price used by the curve and grid math.
func UnitPrice(price decimal.Decimal, base, quote Asset) float64 {
	p := price.Mul(decimal.NewFromInt(quote.MinorPerUnit())).
		Div(decimal.NewFromInt(base.MinorPerUnit()))
	f, _ := p.Float64()
	return f
}
