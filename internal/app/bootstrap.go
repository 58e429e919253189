package app

import (
	"log/slog"

	"liquidity_go/internal/domain"
	"liquidity_go/internal/engine"
	"liquidity_go/internal/infra"
	"liquidity_go/internal/infra/relay"
	"liquidity_go/internal/infra/storage"
	"liquidity_go/internal/infra/wallet"
	"liquidity_go/internal/jobs"
)

// Bootstrap orchestrates the application startup sequence
type Bootstrap struct {
	Config   *infra.Config
	Storage  *storage.Storage
	Wallet   domain.Wallet
	Relays   []domain.Relay
	Executor *jobs.Executor
	Engine   *engine.Engine
}

// NewBootstrap creates a new Bootstrap instance
func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Initialize wires the full system: config, logger, store, wallet client,
// the fully-assembled relay set, the deferred-job executor, and the engine.
// A store that cannot be opened is fatal; the process must not start.
func (b *Bootstrap) Initialize(configPath string) error {
	slog.Info("bootstrapping liquidity maker")

	// 1. Load Config
	cfg, err := infra.LoadConfig(configPath)
	if err != nil {
		return err // Let main handle the error
	}
	b.Config = cfg

	// 2. Setup Logger
	logger := infra.NewLogger(cfg)
	slog.SetDefault(logger)

	// 3. Initialize Storage (DB)
	store, err := storage.NewStorage(cfg.Storage.StateDir, cfg.Storage.Position)
	if err != nil {
		return err
	}
	b.Storage = store
	slog.Info("database initialized", slog.String("position", cfg.Storage.Position))

	// 4. Wallet RPC client
	b.Wallet = wallet.NewClient(cfg)

	// 5. Relay set, complete before the engine exists and fixed afterwards
	relays, err := relay.Build(cfg.Relays)
	if err != nil {
		return err
	}
	b.Relays = relays
	slog.Info("relays configured", slog.Int("count", len(relays)))

	// 6. Executor + Engine
	b.Executor = jobs.NewExecutor(store)
	b.Engine = engine.New(b.Wallet, store, b.Executor, relays, engine.Options{
		BoundaryPolicy: engine.BoundaryPolicy(cfg.Engine.BoundaryPolicy),
		PollInterval:   cfg.PollInterval(),
	})

	return nil
}
