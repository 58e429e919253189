package domain

import "context"

// Addition is one output of a coin split: an amount sent to a derived
// destination address.
type Addition struct {
	Amount  int64
	Address string
}

// Wallet is the ledger capability the engine consumes. Implementations talk
// to a wallet daemon; test doubles implement the same interface.
type Wallet interface {
	// Synced reports whether the wallet has caught up with the chain.
	Synced(ctx context.Context) (bool, error)

	// Fingerprint returns the selector of the active key set.
	Fingerprint(ctx context.Context) (int, error)

	// WalletForAsset resolves the wallet id tracking the asset, creating
	// the tracking wallet when the asset is not yet known.
	WalletForAsset(ctx context.Context, asset Asset) (uint32, error)

	// NextDerivationIndex returns the first unused address index.
	NextDerivationIndex(ctx context.Context) (uint32, error)

	// DeriveAddress derives the destination address at the given index.
	DeriveAddress(ctx context.Context, index uint32) (string, error)

	// CreateSwapOffer requests an atomic two-asset swap offer for the given
	// signed amounts per wallet id. The offer is valid on-ledger as soon as
	// this returns, whether or not any relay ever advertises it.
	CreateSwapOffer(ctx context.Context, deltas map[uint32]int64) (*SwapOffer, error)

	// TradeStatus queries the on-ledger status of an offer.
	TradeStatus(ctx context.Context, tradeID string) (TradeStatus, error)

	// SplitFunds spends the wallet's holdings into one coin per addition,
	// returning the pending transaction id.
	SplitFunds(ctx context.Context, walletID uint32, asset Asset, additions []Addition) (string, error)

	// AwaitSettled blocks until the transaction is confirmed on-chain.
	AwaitSettled(ctx context.Context, walletID uint32, txID string) error
}

// Relay advertises open offers to potential counterparties. Relays are pure
// distribution channels: they are never authoritative over order validity,
// so a relay failure is logged and ignored.
type Relay interface {
	Name() string
	SubmitOffer(ctx context.Context, offer *SwapOffer) error
}
