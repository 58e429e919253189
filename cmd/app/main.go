package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"liquidity_go/internal/app"
	"liquidity_go/internal/domain"

	"github.com/shopspring/decimal"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "preview":
		err = runPreview(os.Args[2:])
	case "init":
		err = runInit(os.Args[2:])
	case "manage":
		err = runManage(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		slog.Error("command failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: app <command> [flags] [args]

commands:
  preview x_max p_min p_max [p_init]   print the ladder, no side effects
  init    x_max p_min p_max [p_init]   create a position and place the ladder
  manage                               run the perpetual reconciliation loop

args:
  x_max   total liquidity depth [base units]
  p_min   minimum price [quote/base]
  p_max   maximum price [quote/base]
  p_init  initial price [quote/base], default 0`)
}

// gridArgs holds the parsed curve/grid parameters shared by preview and init.
type gridArgs struct {
	base, quote domain.Asset
	grid        domain.Grid
	pInit       float64
	deltas      []domain.OrderDelta
}

func parseGridArgs(fs *flag.FlagSet, args []string) (*gridArgs, error) {
	quoteTail := fs.String("quote-tail", domain.USDS.TailHash, "tail hash of the quote asset token")
	baseTail := fs.String("base-tail", "", "tail hash of the base asset token (empty = native coin)")
	increment := fs.String("increment", "0.1", "base amount per band [base units]")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	rest := fs.Args()
	if len(rest) < 3 || len(rest) > 4 {
		usage()
		return nil, fmt.Errorf("expected x_max p_min p_max [p_init], got %d args", len(rest))
	}

	base := domain.Asset{TailHash: *baseTail}
	quote := domain.Asset{TailHash: *quoteTail}

	xMaxUnits, err := decimal.NewFromString(rest[0])
	if err != nil {
		return nil, fmt.Errorf("bad x_max: %w", err)
	}
	pMinUnits, err := decimal.NewFromString(rest[1])
	if err != nil {
		return nil, fmt.Errorf("bad p_min: %w", err)
	}
	pMaxUnits, err := decimal.NewFromString(rest[2])
	if err != nil {
		return nil, fmt.Errorf("bad p_max: %w", err)
	}
	pInitUnits := decimal.Zero
	if len(rest) == 4 {
		if pInitUnits, err = decimal.NewFromString(rest[3]); err != nil {
			return nil, fmt.Errorf("bad p_init: %w", err)
		}
	}
	incUnits, err := decimal.NewFromString(*increment)
	if err != nil {
		return nil, fmt.Errorf("bad increment: %w", err)
	}

	xMax := base.Amount(xMaxUnits)
	inc := base.Amount(incUnits)
	pMin := domain.UnitPrice(pMinUnits, base, quote)
	pMax := domain.UnitPrice(pMaxUnits, base, quote)
	pInit := domain.UnitPrice(pInitUnits, base, quote)

	curve, err := domain.NewOutOfRangeCurve(float64(xMax), pMin, pMax)
	if err != nil {
		return nil, err
	}
	grid, err := domain.MakeGrid(curve, inc, xMax)
	if err != nil {
		return nil, err
	}

	return &gridArgs{
		base:   base,
		quote:  quote,
		grid:   grid,
		pInit:  pInit,
		deltas: grid.InitialOrders(pInit),
	}, nil
}

func runPreview(args []string) error {
	fs := flag.NewFlagSet("preview", flag.ContinueOnError)
	ga, err := parseGridArgs(fs, args)
	if err != nil {
		return err
	}

	totalBase := decimal.Zero
	totalQuote := decimal.Zero
	for _, d := range ga.deltas {
		fmt.Printf("%s\t%s\n", ga.base.Units(d.BaseDelta), ga.quote.Units(d.QuoteDelta))
		if d.BaseDelta < 0 {
			totalBase = totalBase.Add(ga.base.Units(-d.BaseDelta))
		}
		if d.QuoteDelta < 0 {
			totalQuote = totalQuote.Add(ga.quote.Units(-d.QuoteDelta))
		}
	}
	fmt.Println("total inputs required")
	fmt.Printf("%s\t%s\n", totalBase, totalQuote)
	return nil
}

func runInit(args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	configPath := fs.String("config", "configs/config.yaml", "path to configuration file")
	ga, err := parseGridArgs(fs, args)
	if err != nil {
		return err
	}

	bootstrap := app.NewBootstrap()
	if err := bootstrap.Initialize(*configPath); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Relay submissions are deferred jobs; run the executor alongside so
	// they go out as orders are placed.
	execDone := make(chan struct{})
	execCtx, cancelExec := context.WithCancel(context.Background())
	go func() {
		defer close(execDone)
		bootstrap.Executor.Run(execCtx)
	}()

	if err := bootstrap.Engine.Initialize(ctx, ga.base, ga.quote, ga.pInit, ga.grid); err != nil {
		cancelExec()
		<-execDone
		return err
	}

	drainJobs(ctx, bootstrap)
	cancelExec()
	<-execDone
	slog.Info("position initialized; run the manage command to keep quoting")
	return nil
}

// drainJobs gives pending relay submissions a window to complete. Anything
// still queued is durable and re-delivered under manage.
func drainJobs(ctx context.Context, bootstrap *app.Bootstrap) {
	deadline := time.Now().Add(2 * time.Minute)
	for time.Now().Before(deadline) && ctx.Err() == nil {
		jobs, err := bootstrap.Storage.GetJobs()
		if err != nil || len(jobs) == 0 {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}
	slog.Warn("relay submissions still pending; they will resume under manage")
}

func runManage(args []string) error {
	fs := flag.NewFlagSet("manage", flag.ContinueOnError)
	configPath := fs.String("config", "configs/config.yaml", "path to configuration file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	bootstrap := app.NewBootstrap()
	if err := bootstrap.Initialize(*configPath); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	execDone := make(chan struct{})
	go func() {
		defer close(execDone)
		bootstrap.Executor.Run(ctx)
	}()

	slog.Info("managing position; press Ctrl+C to exit")
	bootstrap.Engine.Manage(ctx)

	// Let in-flight jobs finish before the store goes away.
	<-execDone
	slog.Info("shut down cleanly")
	return nil
}
