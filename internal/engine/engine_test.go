package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"liquidity_go/internal/domain"
	"liquidity_go/internal/infra/storage"
	"liquidity_go/internal/jobs"
)

// fakeWallet is an in-memory domain.Wallet double.
type fakeWallet struct {
	mu           sync.Mutex
	unsyncedFor  int
	nextTradeSeq int
	statuses     map[string]domain.TradeStatus
	offerDeltas  map[string]map[uint32]int64
	splits       map[uint32][]domain.Addition
	offerErr     error
}

func newFakeWallet() *fakeWallet {
	return &fakeWallet{
		statuses:    make(map[string]domain.TradeStatus),
		offerDeltas: make(map[string]map[uint32]int64),
		splits:      make(map[uint32][]domain.Addition),
	}
}

func (w *fakeWallet) Synced(ctx context.Context) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.unsyncedFor > 0 {
		w.unsyncedFor--
		return false, nil
	}
	return true, nil
}

func (w *fakeWallet) Fingerprint(ctx context.Context) (int, error) { return 999, nil }

func (w *fakeWallet) WalletForAsset(ctx context.Context, asset domain.Asset) (uint32, error) {
	if asset.IsNative() {
		return 1, nil
	}
	return 2, nil
}

func (w *fakeWallet) NextDerivationIndex(ctx context.Context) (uint32, error) { return 100, nil }

func (w *fakeWallet) DeriveAddress(ctx context.Context, index uint32) (string, error) {
	return fmt.Sprintf("addr-%d", index), nil
}

func (w *fakeWallet) CreateSwapOffer(ctx context.Context, deltas map[uint32]int64) (*domain.SwapOffer, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.offerErr != nil {
		return nil, w.offerErr
	}
	w.nextTradeSeq++
	id := fmt.Sprintf("trade-%04d", w.nextTradeSeq)
	w.statuses[id] = domain.TradeStatusPending
	copied := make(map[uint32]int64, len(deltas))
	for k, v := range deltas {
		copied[k] = v
	}
	w.offerDeltas[id] = copied
	return &domain.SwapOffer{TradeID: id, Blob: "offer-" + id, CreatedAt: time.Now()}, nil
}

func (w *fakeWallet) TradeStatus(ctx context.Context, tradeID string) (domain.TradeStatus, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	status, ok := w.statuses[tradeID]
	if !ok {
		return "", fmt.Errorf("unknown trade %s", tradeID)
	}
	return status, nil
}

func (w *fakeWallet) SplitFunds(ctx context.Context, walletID uint32, asset domain.Asset, additions []domain.Addition) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.splits[walletID] = additions
	return fmt.Sprintf("tx-%d", walletID), nil
}

func (w *fakeWallet) AwaitSettled(ctx context.Context, walletID uint32, txID string) error { return nil }

func (w *fakeWallet) confirm(tradeID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.statuses[tradeID] = domain.TradeStatusConfirmed
}

// fakeRelay records submissions; failures is the number of leading calls
// that return the configured error.
type fakeRelay struct {
	name     string
	mu       sync.Mutex
	offers   []string
	failures int
	failWith error
}

func (r *fakeRelay) Name() string { return r.name }

func (r *fakeRelay) SubmitOffer(ctx context.Context, offer *domain.SwapOffer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failures > 0 {
		r.failures--
		return r.failWith
	}
	r.offers = append(r.offers, offer.TradeID)
	return nil
}

func (r *fakeRelay) submitted() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.offers)
}

// testRig wires a real store and executor around the fakes.
type testRig struct {
	wallet *fakeWallet
	store  *storage.Storage
	exec   *jobs.Executor
	engine *Engine
	cancel context.CancelFunc
	done   chan struct{}
}

func newTestRig(t *testing.T, relays []domain.Relay, opts Options) *testRig {
	t.Helper()
	store, err := storage.NewStorage(t.TempDir(), "engine")
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	wallet := newFakeWallet()
	exec := jobs.NewExecutor(store)
	if opts.SyncPollInterval == 0 {
		opts.SyncPollInterval = 10 * time.Millisecond
	}
	eng := New(wallet, store, exec, relays, opts)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { defer close(done); exec.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	return &testRig{wallet: wallet, store: store, exec: exec, engine: eng, cancel: cancel, done: done}
}

func referenceGrid(t *testing.T) domain.Grid {
	t.Helper()
	curve, err := domain.NewOutOfRangeCurve(1e12, 6e-8, 2e-7)
	if err != nil {
		t.Fatalf("NewOutOfRangeCurve failed: %v", err)
	}
	grid, err := domain.MakeGrid(curve, 100_000_000_000, 1_000_000_000_000)
	if err != nil {
		t.Fatalf("MakeGrid failed: %v", err)
	}
	return grid
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestInitializePlacesFullLadder(t *testing.T) {
	relay := &fakeRelay{name: "r1"}
	rig := newTestRig(t, []domain.Relay{relay}, Options{})
	rig.wallet.unsyncedFor = 2
	grid := referenceGrid(t)

	err := rig.engine.Initialize(context.Background(), domain.Native, domain.USDS, 0, grid)
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	orders, err := rig.store.GetOrders()
	if err != nil {
		t.Fatalf("GetOrders failed: %v", err)
	}
	if len(orders) != grid.Bands() {
		t.Fatalf("got %d orders, want %d", len(orders), grid.Bands())
	}
	for _, o := range orders {
		if o.BaseDelta != -grid.BaseAmount {
			t.Errorf("order %s: base delta %d, want %d (all asks at price 0)",
				o.TradeID, o.BaseDelta, -grid.BaseAmount)
		}
	}

	// Ten asks on the base side: one pre-split coin per order.
	if got := len(rig.wallet.splits[1]); got != grid.Bands() {
		t.Errorf("base wallet split into %d coins, want %d", got, grid.Bands())
	}
	if _, split := rig.wallet.splits[2]; split {
		t.Error("quote wallet should not be split, no bids planned")
	}

	// Every order's submission job reaches the relay.
	waitFor(t, 5*time.Second, func() bool { return relay.submitted() == grid.Bands() })
}

func TestReconcileFlipsConfirmedFill(t *testing.T) {
	relay := &fakeRelay{name: "r1"}
	rig := newTestRig(t, []domain.Relay{relay}, Options{})
	grid := referenceGrid(t)

	ctx := context.Background()
	if err := rig.engine.Initialize(ctx, domain.Native, domain.USDS, 0, grid); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	// Take the innermost ask (quote 6284) and confirm it on-ledger.
	orders, _ := rig.store.GetOrders()
	var filled domain.Order
	for _, o := range orders {
		if o.QuoteDelta == 6284 {
			filled = o
		}
	}
	if filled.TradeID == "" {
		t.Fatal("no order with quote delta 6284")
	}
	rig.wallet.confirm(filled.TradeID)

	if err := rig.engine.Reconcile(ctx); err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}

	after, _ := rig.store.GetOrders()
	if len(after) != grid.Bands() {
		t.Fatalf("got %d orders after flip, want %d", len(after), grid.Bands())
	}

	var flip *domain.Order
	for i, o := range after {
		if o.TradeID == filled.TradeID {
			t.Error("filled order id still present after reconcile")
		}
		if o.BaseDelta > 0 {
			if flip != nil {
				t.Error("more than one bid after a single flip")
			}
			flip = &after[i]
		}
	}
	if flip == nil {
		t.Fatal("no counter-order found after reconcile")
	}
	if flip.BaseDelta != grid.BaseAmount || flip.QuoteDelta != -5740 {
		t.Errorf("flip deltas = (%d, %d), want (%d, -5740)", flip.BaseDelta, flip.QuoteDelta, grid.BaseAmount)
	}
}

func TestReconcileIsolatesFailures(t *testing.T) {
	rig := newTestRig(t, nil, Options{})
	grid := referenceGrid(t)

	ctx := context.Background()
	if err := rig.engine.Initialize(ctx, domain.Native, domain.USDS, 0, grid); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	orders, _ := rig.store.GetOrders()
	var edge, interior domain.Order
	for _, o := range orders {
		switch o.QuoteDelta {
		case grid.QuoteAmounts[0]:
			edge = o
		case 6284:
			interior = o
		}
	}

	rig.wallet.confirm(interior.TradeID)
	rig.wallet.confirm(edge.TradeID)
	rig.wallet.mu.Lock()
	rig.wallet.offerErr = errors.New("wallet overloaded")
	rig.wallet.mu.Unlock()

	// Both flips fail at offer creation; both rows survive for next pass.
	if err := rig.engine.Reconcile(ctx); err == nil {
		t.Fatal("expected Reconcile to report flip failures")
	}
	after, _ := rig.store.GetOrders()
	if len(after) != grid.Bands() {
		t.Errorf("got %d orders, want %d untouched rows after failed flips", len(after), grid.Bands())
	}

	// Wallet recovers: the next pass flips both independently.
	rig.wallet.mu.Lock()
	rig.wallet.offerErr = nil
	rig.wallet.mu.Unlock()
	if err := rig.engine.Reconcile(ctx); err != nil {
		t.Fatalf("Reconcile failed after recovery: %v", err)
	}
	after, _ = rig.store.GetOrders()
	for _, o := range after {
		if o.TradeID == interior.TradeID || o.TradeID == edge.TradeID {
			t.Errorf("filled order %s still present after recovery pass", o.TradeID)
		}
	}
}

func TestBoundaryPolicies(t *testing.T) {
	grid := referenceGrid(t)

	// A bid at the head of the breakpoint array has no band above to flip
	// into. No legal flip sequence produces it, but a row like this appears
	// when an operator narrows the grid under live orders, and the engine
	// must route it through the configured policy rather than wedge on it.
	run := func(t *testing.T, policy BoundaryPolicy) (*testRig, domain.Order) {
		rig := newTestRig(t, nil, Options{BoundaryPolicy: policy})
		ctx := context.Background()
		if err := rig.engine.Initialize(ctx, domain.Native, domain.USDS, 0, grid); err != nil {
			t.Fatalf("Initialize failed: %v", err)
		}
		boundary := domain.Order{
			TradeID:    "boundary-1",
			BaseDelta:  grid.BaseAmount,
			QuoteDelta: -grid.QuoteAmounts[0],
		}
		if err := rig.store.InsertOrder(&boundary); err != nil {
			t.Fatalf("InsertOrder failed: %v", err)
		}
		rig.wallet.confirm(boundary.TradeID)
		return rig, boundary
	}

	t.Run("Hold Keeps The Row And Surfaces The Error", func(t *testing.T) {
		rig, boundary := run(t, BoundaryHold)
		err := rig.engine.Reconcile(context.Background())
		if !errors.Is(err, domain.ErrGridBoundary) {
			t.Errorf("expected ErrGridBoundary, got %v", err)
		}
		after, _ := rig.store.GetOrders()
		found := false
		for _, o := range after {
			if o.TradeID == boundary.TradeID {
				found = true
			}
		}
		if !found {
			t.Error("boundary row deleted under hold policy")
		}
	})

	t.Run("Retire Deletes The Row", func(t *testing.T) {
		rig, boundary := run(t, BoundaryRetire)
		if err := rig.engine.Reconcile(context.Background()); err != nil {
			t.Errorf("Reconcile failed: %v", err)
		}
		after, _ := rig.store.GetOrders()
		for _, o := range after {
			if o.TradeID == boundary.TradeID {
				t.Error("boundary row kept under retire policy")
			}
		}
	})
}

func TestRelayFailureIsolation(t *testing.T) {
	rejecting := &fakeRelay{name: "bad", failures: 1 << 30, failWith: domain.ErrRelayRejected}
	flaky := &fakeRelay{name: "flaky", failures: 1, failWith: domain.NewNetworkError("post", errors.New("timeout"))}
	good := &fakeRelay{name: "good"}
	rig := newTestRig(t, []domain.Relay{rejecting, flaky, good}, Options{})

	pos, err := domain.NewPosition(999, 1, 2, referenceGrid(t))
	if err != nil {
		t.Fatalf("NewPosition failed: %v", err)
	}
	if err := rig.store.InitPosition(&pos); err != nil {
		t.Fatalf("InitPosition failed: %v", err)
	}

	if err := rig.engine.CreateOrder(context.Background(), -100_000_000_000, 6284); err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}

	// The good relay gets the offer; the flaky one retries its transport
	// error until it lands; the rejection is final and its job drains.
	waitFor(t, 10*time.Second, func() bool { return good.submitted() == 1 })
	waitFor(t, 10*time.Second, func() bool { return flaky.submitted() == 1 })
	waitFor(t, 10*time.Second, func() bool {
		pending, err := rig.store.GetJobs()
		return err == nil && len(pending) == 0
	})
	if rejecting.submitted() != 0 {
		t.Error("rejecting relay should never record a successful submission")
	}
}

func TestManageStopsOnCancel(t *testing.T) {
	rig := newTestRig(t, nil, Options{PollInterval: 20 * time.Millisecond})
	grid := referenceGrid(t)
	if err := rig.engine.Initialize(context.Background(), domain.Native, domain.USDS, 0, grid); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() { defer close(stopped); rig.engine.Manage(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Manage did not stop on context cancellation")
	}
}
