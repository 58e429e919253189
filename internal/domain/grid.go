package domain

import (
	"fmt"
)

// Grid is the discretized trading ladder: a fixed base-asset increment and
// the quote amount each band releases. QuoteAmounts is strictly decreasing
// (the curve is strictly decreasing), one entry per breakpoint from x=0 up.
// Immutable after construction; persisted as JSON inside the Position row.
type Grid struct {
	BaseAmount   int64   `json:"base_amount"`
	QuoteAmounts []int64 `json:"quote_amounts"`
}

// OrderDelta is one planned resting order: the signed amounts of base and
// quote asset the maker offers (negative) and requests (positive).
type OrderDelta struct {
	BaseDelta  int64
	QuoteDelta int64
}

// MakeGrid discretizes the curve into bands of baseIncrement minor units,
// stepping from zero through baseTotal inclusive. When baseTotal is not an
// exact multiple of the increment the last band is ceiling-stepped and
// narrower than the rest. Both parameters must be positive; the step loop
// would otherwise never terminate.
func MakeGrid(curve LiquidityCurve, baseIncrement, baseTotal int64) (Grid, error) {
	if baseIncrement <= 0 {
		return Grid{}, fmt.Errorf("%w: base increment %d must be positive", ErrInvalidGrid, baseIncrement)
	}
	if baseTotal <= 0 {
		return Grid{}, fmt.Errorf("%w: base total %d must be positive", ErrInvalidGrid, baseTotal)
	}

	var amounts []int64
	for x := int64(0); x < baseTotal+baseIncrement; x += baseIncrement {
		amounts = append(amounts, curve.Band(float64(x), float64(baseIncrement)))
	}
	return Grid{BaseAmount: baseIncrement, QuoteAmounts: amounts}, nil
}

// Bands returns the number of orders the ladder holds.
func (g Grid) Bands() int {
	return len(g.QuoteAmounts) - 1
}

// InitialOrders lays out the full ladder around the initial price: bands
// whose implied price sits above it become asks (offer base, request quote),
// the rest become bids (offer quote, request base). Always produces exactly
// Bands() orders; recomputed fresh on each call.
func (g Grid) InitialOrders(price float64) []OrderDelta {
	orders := make([]OrderDelta, 0, g.Bands())
	for i := 1; i < len(g.QuoteAmounts); i++ {
		if float64(g.QuoteAmounts[i])/float64(g.BaseAmount) > price {
			orders = append(orders, OrderDelta{BaseDelta: -g.BaseAmount, QuoteDelta: g.QuoteAmounts[i-1]})
		} else {
			orders = append(orders, OrderDelta{BaseDelta: g.BaseAmount, QuoteDelta: -g.QuoteAmounts[i]})
		}
	}
	return orders
}

// Flip computes the counter-order for a just-filled order, one band further
// from the initial price. A filled ask re-quotes as the bid one band below,
// a filled bid as the ask one band above. Returns ErrGridBoundary when the
// neighboring band falls off either end of the ladder and ErrOrderShape
// when the deltas do not belong to this grid.
func (g Grid) Flip(baseDelta, quoteDelta int64) (int64, int64, error) {
	if baseDelta != g.BaseAmount && baseDelta != -g.BaseAmount {
		return 0, 0, fmt.Errorf("%w: base delta %d, increment %d", ErrOrderShape, baseDelta, g.BaseAmount)
	}
	if quoteDelta < 0 {
		i := g.indexOf(-quoteDelta)
		if i < 0 {
			return 0, 0, fmt.Errorf("%w: unknown quote amount %d", ErrOrderShape, quoteDelta)
		}
		if i-1 < 0 {
			return 0, 0, fmt.Errorf("%w: no band below %d", ErrGridBoundary, -quoteDelta)
		}
		return -baseDelta, g.QuoteAmounts[i-1], nil
	}
	i := g.indexOf(quoteDelta)
	if i < 0 {
		return 0, 0, fmt.Errorf("%w: unknown quote amount %d", ErrOrderShape, quoteDelta)
	}
	if i+1 >= len(g.QuoteAmounts) {
		return 0, 0, fmt.Errorf("%w: no band above %d", ErrGridBoundary, quoteDelta)
	}
	return -baseDelta, -g.QuoteAmounts[i+1], nil
}

func (g Grid) indexOf(quoteAmount int64) int {
	for i, amt := range g.QuoteAmounts {
		if amt == quoteAmount {
			return i
		}
	}
	return -1
}
