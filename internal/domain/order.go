package domain

import "time"

// TradeStatus is the on-ledger state of a swap offer.
type TradeStatus string

const (
	TradeStatusPending   TradeStatus = "PENDING"
	TradeStatusConfirmed TradeStatus = "CONFIRMED"
	TradeStatusCancelled TradeStatus = "CANCELLED"
)

// SwapOffer is an atomic two-asset exchange proposal created by the wallet.
// Blob is the serialized offer as relays accept it; TradeID identifies the
// trade on-ledger.
type SwapOffer struct {
	TradeID   string
	Blob      string
	CreatedAt time.Time
}

// Order is one outstanding resting order. The row exists from the moment the
// ledger accepts the offer until the trade is observed confirmed, at which
// point it is deleted and replaced by its flip. Exactly one of the two
// deltas is negative (the side being offered), and the base delta magnitude
// always equals the grid's base increment.
type Order struct {
	TradeID    string `gorm:"primaryKey" json:"trade_id"`
	BaseDelta  int64  `json:"base_delta"`
	QuoteDelta int64  `json:"quote_delta"`
	CreatedAt  time.Time
}

// IsAsk reports whether the order offers the base asset.
func (o *Order) IsAsk() bool {
	return o.BaseDelta < 0
}
