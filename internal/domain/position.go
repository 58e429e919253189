package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Position is the persisted record of one managed liquidity position: which
// key set the engine operates against, the two asset wallets, and the grid.
// Exactly one live row exists per store. Written once at initialization and
// never mutated; removal is an out-of-band operator action.
type Position struct {
	Fingerprint   int    `gorm:"primaryKey" json:"fingerprint"`
	BaseWalletID  uint32 `json:"base_wallet_id"`
	QuoteWalletID uint32 `json:"quote_wallet_id"`
	GridJSON      string `json:"grid"`
	CreatedAt     time.Time
}

// NewPosition serializes the grid into a fresh position row.
func NewPosition(fingerprint int, baseWalletID, quoteWalletID uint32, grid Grid) (Position, error) {
	b, err := json.Marshal(grid)
	if err != nil {
		return Position{}, fmt.Errorf("marshal grid: %w", err)
	}
	return Position{
		Fingerprint:   fingerprint,
		BaseWalletID:  baseWalletID,
		QuoteWalletID: quoteWalletID,
		GridJSON:      string(b),
	}, nil
}

// Grid deserializes the ladder stored with the position.
func (p Position) Grid() (Grid, error) {
	var g Grid
	if err := json.Unmarshal([]byte(p.GridJSON), &g); err != nil {
		return Grid{}, fmt.Errorf("unmarshal grid: %w", err)
	}
	return g, nil
}
