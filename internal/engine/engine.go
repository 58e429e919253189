package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"liquidity_go/internal/domain"
	"liquidity_go/internal/infra"
	"liquidity_go/internal/infra/storage"
	"liquidity_go/internal/jobs"
)

// BoundaryPolicy decides what happens when a fill at the ladder's edge has
// no further band to flip into.
type BoundaryPolicy string

const (
	// BoundaryHold keeps the filled order row; the flip is retried every
	// reconcile pass and the error stays visible until the operator
	// re-centers or extends the grid.
	BoundaryHold BoundaryPolicy = "hold"

	// BoundaryRetire deletes the filled order row and stops quoting that
	// edge of the ladder.
	BoundaryRetire BoundaryPolicy = "retire"
)

// HandlerRelaySubmit is the deferred-job handler name for relay submissions.
const HandlerRelaySubmit = "relay.submit"

// relaySubmitParams is the durable payload of one relay submission job.
type relaySubmitParams struct {
	Relay   string `json:"relay"`
	TradeID string `json:"trade_id"`
	Offer   string `json:"offer"`
}

// Options tunes engine behavior. Zero values fall back to defaults.
type Options struct {
	BoundaryPolicy   BoundaryPolicy
	PollInterval     time.Duration // reconcile loop interval
	SyncPollInterval time.Duration // wallet sync wait interval
}

// Engine is the order-lifecycle state machine: it places the initial
// ladder, polls open orders against the ledger, and flips fills into their
// counter-orders. One Engine manages one Position; all mutable state lives
// in the store and is reloaded before every mutation.
type Engine struct {
	wallet domain.Wallet
	store  *storage.Storage
	exec   *jobs.Executor
	relays map[string]domain.Relay

	boundaryPolicy   BoundaryPolicy
	pollInterval     time.Duration
	syncPollInterval time.Duration
	logger           *slog.Logger
}

// New assembles an engine over a fully-built relay set and registers its
// deferred-job handlers. The relay set is fixed for the engine's lifetime.
func New(wallet domain.Wallet, store *storage.Storage, exec *jobs.Executor, relays []domain.Relay, opts Options) *Engine {
	if opts.BoundaryPolicy == "" {
		opts.BoundaryPolicy = BoundaryHold
	}
	if opts.PollInterval == 0 {
		opts.PollInterval = 30 * time.Second
	}
	if opts.SyncPollInterval == 0 {
		opts.SyncPollInterval = 30 * time.Second
	}

	index := make(map[string]domain.Relay, len(relays))
	for _, r := range relays {
		index[r.Name()] = r
	}

	e := &Engine{
		wallet:           wallet,
		store:            store,
		exec:             exec,
		relays:           index,
		boundaryPolicy:   opts.BoundaryPolicy,
		pollInterval:     opts.PollInterval,
		syncPollInterval: opts.SyncPollInterval,
		logger:           slog.Default().With("module", "engine"),
	}
	exec.Register(HandlerRelaySubmit, e.handleRelaySubmit)
	return e
}

// Initialize sets up a brand-new position: waits for wallet sync, resolves
// the two asset wallets, persists the Position, pre-splits funding coins so
// each planned order has its own input, and places the full initial ladder.
// Any failure before the ladder is placed is fatal to the caller.
func (e *Engine) Initialize(ctx context.Context, baseAsset, quoteAsset domain.Asset, pInit float64, grid domain.Grid) error {
	if err := e.awaitSynced(ctx); err != nil {
		return err
	}

	baseWalletID, err := e.wallet.WalletForAsset(ctx, baseAsset)
	if err != nil {
		return fmt.Errorf("resolve base asset wallet: %w", err)
	}
	quoteWalletID, err := e.wallet.WalletForAsset(ctx, quoteAsset)
	if err != nil {
		return fmt.Errorf("resolve quote asset wallet: %w", err)
	}
	fingerprint, err := e.wallet.Fingerprint(ctx)
	if err != nil {
		return fmt.Errorf("query fingerprint: %w", err)
	}

	position, err := domain.NewPosition(fingerprint, baseWalletID, quoteWalletID, grid)
	if err != nil {
		return err
	}
	if err := e.store.InitPosition(&position); err != nil {
		return fmt.Errorf("persist position: %w", err)
	}

	planned := grid.InitialOrders(pInit)

	var baseAmounts, quoteAmounts []int64
	for _, o := range planned {
		if o.BaseDelta < 0 {
			baseAmounts = append(baseAmounts, -o.BaseDelta)
		}
		if o.QuoteDelta < 0 {
			quoteAmounts = append(quoteAmounts, -o.QuoteDelta)
		}
	}

	if err := e.splitCoins(ctx, baseAsset, baseWalletID, baseAmounts); err != nil {
		return fmt.Errorf("split base funding: %w", err)
	}
	if err := e.splitCoins(ctx, quoteAsset, quoteWalletID, quoteAmounts); err != nil {
		return fmt.Errorf("split quote funding: %w", err)
	}

	for _, o := range planned {
		if err := e.CreateOrder(ctx, o.BaseDelta, o.QuoteDelta); err != nil {
			return fmt.Errorf("place initial order (%d, %d): %w", o.BaseDelta, o.QuoteDelta, err)
		}
	}

	e.logger.Info("position initialized",
		slog.Int("fingerprint", fingerprint),
		slog.Int("orders", len(planned)))
	return nil
}

// awaitSynced blocks until the wallet reports synchronized, polling on the
// configured interval.
func (e *Engine) awaitSynced(ctx context.Context) error {
	for {
		synced, err := e.wallet.Synced(ctx)
		if err != nil {
			return fmt.Errorf("query sync status: %w", err)
		}
		if synced {
			return nil
		}
		e.logger.Info("waiting for wallet to be synced")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(e.syncPollInterval):
		}
	}
}

// splitCoins pre-splits a side's holdings into one coin per planned order
// amount. The ledger's coin selection locks whole coins per pending offer,
// so without the split the order creation requests would race over the same
// unspent input. Skipped when the side holds fewer than two orders.
func (e *Engine) splitCoins(ctx context.Context, asset domain.Asset, walletID uint32, amounts []int64) error {
	if len(amounts) < 2 {
		return nil // nothing to split
	}

	offset, err := e.wallet.NextDerivationIndex(ctx)
	if err != nil {
		return fmt.Errorf("query derivation index: %w", err)
	}

	additions := make([]domain.Addition, 0, len(amounts))
	for i, amount := range amounts {
		address, err := e.wallet.DeriveAddress(ctx, offset+uint32(i))
		if err != nil {
			return fmt.Errorf("derive address %d: %w", offset+uint32(i), err)
		}
		additions = append(additions, domain.Addition{Amount: amount, Address: address})
	}

	txID, err := e.wallet.SplitFunds(ctx, walletID, asset, additions)
	if err != nil {
		return err
	}
	return e.wallet.AwaitSettled(ctx, walletID, txID)
}

// CreateOrder requests a swap offer for the given deltas, persists the
// resulting order, and defers one submission job per configured relay. The
// order is valid on-ledger as soon as the wallet accepts it; relay
// submission failures never fail order creation.
func (e *Engine) CreateOrder(ctx context.Context, baseDelta, quoteDelta int64) error {
	position, err := e.store.GetPosition()
	if err != nil {
		return err
	}

	offer, err := e.wallet.CreateSwapOffer(ctx, map[uint32]int64{
		position.BaseWalletID:  baseDelta,
		position.QuoteWalletID: quoteDelta,
	})
	if err != nil {
		return fmt.Errorf("create swap offer: %w", err)
	}

	order := domain.Order{TradeID: offer.TradeID, BaseDelta: baseDelta, QuoteDelta: quoteDelta}
	if err := e.store.InsertOrder(&order); err != nil {
		return fmt.Errorf("persist order %s: %w", offer.TradeID, err)
	}
	infra.GlobalMetrics.RecordOrderCreated()
	e.logger.Info("created trade", slog.String("trade_id", offer.TradeID),
		slog.Int64("base_delta", baseDelta), slog.Int64("quote_delta", quoteDelta))

	for name := range e.relays {
		params := relaySubmitParams{Relay: name, TradeID: offer.TradeID, Offer: offer.Blob}
		if err := e.exec.Defer(HandlerRelaySubmit, params); err != nil {
			// One relay's job failing to enqueue must not block the rest.
			e.logger.Error("failed to defer relay submission",
				slog.String("relay", name), slog.String("trade_id", offer.TradeID), slog.Any("error", err))
		}
	}
	return nil
}

// handleRelaySubmit is the deferred-job handler posting one offer to one
// relay. Transport failures are retriable and bubble up so the executor
// backs off and retries; a relay that positively rejects the offer is
// final, logged, and the job completes (the offer is live on-ledger with or
// without that relay advertising it).
func (e *Engine) handleRelaySubmit(ctx context.Context, raw json.RawMessage) error {
	var params relaySubmitParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return fmt.Errorf("decode relay job params: %w", err)
	}

	relay, ok := e.relays[params.Relay]
	if !ok {
		// Relay removed from configuration since the job was deferred.
		e.logger.Warn("dropping submission for unconfigured relay",
			slog.String("relay", params.Relay), slog.String("trade_id", params.TradeID))
		return nil
	}

	offer := &domain.SwapOffer{TradeID: params.TradeID, Blob: params.Offer}
	if err := relay.SubmitOffer(ctx, offer); err != nil {
		infra.GlobalMetrics.RecordRelayError()
		if domain.IsRetriable(err) {
			return err
		}
		e.logger.Error("relay rejected offer (ignoring)",
			slog.String("relay", params.Relay), slog.String("trade_id", params.TradeID), slog.Any("error", err))
		return nil
	}

	e.logger.Info("trade successfully posted",
		slog.String("relay", params.Relay), slog.String("trade_id", params.TradeID))
	return nil
}

// Reconcile performs one management pass: reload the position, query every
// open order's on-ledger status, and flip each confirmed fill into its
// counter-order. Every filled order is an independent unit; one failure
// never stops the rest of the pass.
func (e *Engine) Reconcile(ctx context.Context) error {
	position, err := e.store.GetPosition()
	if err != nil {
		return err
	}
	grid, err := position.Grid()
	if err != nil {
		return err
	}

	orders, err := e.store.GetOrders()
	if err != nil {
		return err
	}

	var confirmed []domain.Order
	for _, order := range orders {
		status, err := e.wallet.TradeStatus(ctx, order.TradeID)
		if err != nil {
			// Transient wallet failure: keep the order, next pass retries.
			e.logger.Warn("could not query trade status",
				slog.String("trade_id", order.TradeID), slog.Any("error", err))
			continue
		}
		if status == domain.TradeStatusConfirmed {
			e.logger.Info("trade confirmed", slog.String("trade_id", order.TradeID))
			confirmed = append(confirmed, order)
		}
	}

	var errs []error
	for _, order := range confirmed {
		if err := e.flipOrder(ctx, grid, order); err != nil {
			e.logger.Error("could not flip filled order",
				slog.String("trade_id", order.TradeID), slog.Any("error", err))
			errs = append(errs, fmt.Errorf("flip %s: %w", order.TradeID, err))
		}
	}

	infra.GlobalMetrics.RecordReconcilePass()
	return errors.Join(errs...)
}

// flipOrder replaces one confirmed fill with its counter-order and deletes
// the filled row. Boundary fills are routed through the configured policy.
func (e *Engine) flipOrder(ctx context.Context, grid domain.Grid, order domain.Order) error {
	baseDelta, quoteDelta, err := grid.Flip(order.BaseDelta, order.QuoteDelta)
	if err != nil {
		if errors.Is(err, domain.ErrGridBoundary) && e.boundaryPolicy == BoundaryRetire {
			e.logger.Warn("retiring boundary order, this ladder edge is exhausted",
				slog.String("trade_id", order.TradeID))
			return e.store.DeleteOrder(order.TradeID)
		}
		return err
	}

	if err := e.CreateOrder(ctx, baseDelta, quoteDelta); err != nil {
		return err
	}
	if err := e.store.DeleteOrder(order.TradeID); err != nil {
		return err
	}
	infra.GlobalMetrics.RecordOrderFlipped()
	return nil
}

// Manage runs the perpetual reconciliation loop. Routine errors are logged
// and the loop continues at the next interval; it terminates only when the
// context is cancelled.
func (e *Engine) Manage(ctx context.Context) {
	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()

	for {
		if err := e.Reconcile(ctx); err != nil {
			infra.GlobalMetrics.RecordError()
			e.logger.Error("could not check open trades", slog.Any("error", err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
