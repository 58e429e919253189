package domain

import (
	"fmt"
	"math"
)

// LiquidityCurve maps a cumulative base-asset quantity x to the cumulative
// quote-asset value still held by the position. Uniswap v3 Core eq (2.2):
//
//	(x + L/sqrt(p_max)) * (y + L*sqrt(p_min)) = L^2
//
// F is strictly decreasing and convex on x >= 0, and L is chosen so that
// F(xMax) == 0. All quantities are minor units carried as float64; integer
// amounts are only ever taken as truncated differences of F.
type LiquidityCurve struct {
	PMin float64
	PMax float64
	L    float64
}

// NewOutOfRangeCurve solves for L so the curve spans [0, xMax] exactly,
// passing through zero at xMax. Prices are quote minor units per base minor
// unit. Returns ErrInvalidCurve when the parameters cannot produce a
// monotonic curve.
func NewOutOfRangeCurve(xMax, pMin, pMax float64) (LiquidityCurve, error) {
	if xMax <= 0 {
		return LiquidityCurve{}, fmt.Errorf("%w: x_max %v must be positive", ErrInvalidCurve, xMax)
	}
	if pMin <= 0 || pMin >= pMax {
		return LiquidityCurve{}, fmt.Errorf("%w: need 0 < p_min < p_max, got [%v, %v]", ErrInvalidCurve, pMin, pMax)
	}
	l := math.Sqrt(pMax) / (math.Sqrt(pMax/pMin) - 1) * xMax
	return LiquidityCurve{PMin: pMin, PMax: pMax, L: l}, nil
}

// F evaluates the curve at x.
func (c LiquidityCurve) F(x float64) float64 {
	return c.L*c.L/(x+c.L/math.Sqrt(c.PMax)) - c.L*math.Sqrt(c.PMin)
}

// Band returns the quote amount released between x and x+dx, truncated to an
// integer minor-unit amount. Truncation is toward the exact curve value:
// rounding up here would over-commit quote liquidity the position cannot back.
func (c LiquidityCurve) Band(x, dx float64) int64 {
	return int64(c.F(x) - c.F(x+dx))
}
