package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alejandrodnm/liqbot/config"
	"github.com/alejandrodnm/liqbot/internal/adapters/liquity"
	"github.com/alejandrodnm/liqbot/internal/adapters/metrics"
	"github.com/alejandrodnm/liqbot/internal/adapters/notify"
	"github.com/alejandrodnm/liqbot/internal/adapters/onchain"
	"github.com/alejandrodnm/liqbot/internal/adapters/storage"
	"github.com/alejandrodnm/liqbot/internal/application/liquidation"
	"github.com/alejandrodnm/liqbot/internal/application/watch"
	"github.com/alejandrodnm/liqbot/internal/ports"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	once := flag.Bool("once", false, "run one liquidation attempt and exit")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	table := flag.Bool("table", false, "print each attempt as a table (default: compact 1-line)")
	report := flag.Bool("report", false, "print the attempt journal and exit")
	reportDays := flag.Int("days", 30, "days of history to print with -report")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)

	console := notify.NewConsole(*table)

	if *report {
		if err := runReport(context.Background(), cfg, console, time.Duration(*reportDays)*24*time.Hour); err != nil {
			slog.Error("report failed", "err", err)
			os.Exit(1)
		}
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, console, *once); err != nil {
		slog.Error("liqbot exited with error", "err", err)
		os.Exit(1)
	}
	slog.Info("liqbot stopped cleanly")
}

func run(ctx context.Context, cfg *config.Config, console *notify.Console, once bool) error {
	slog.Info("liqbot starting",
		"chain_id", cfg.Chain.ChainID,
		"read_only", cfg.ReadOnly(),
		"relay", cfg.Relay.ExecutorAddress != "",
		"websocket", cfg.Chain.WSRPCURL != "",
		"once", once,
	)

	eth, err := ethclient.DialContext(ctx, cfg.Chain.HTTPRPCURL)
	if err != nil {
		return err
	}
	defer eth.Close()

	protocol := liquity.NewClient(eth, liquity.Addresses{
		TroveManager:     common.HexToAddress(cfg.Contracts.TroveManager),
		MultiTroveGetter: common.HexToAddress(cfg.Contracts.MultiTroveGetter),
		PriceFeed:        common.HexToAddress(cfg.Contracts.PriceFeed),
		StabilityPool:    common.HexToAddress(cfg.Contracts.StabilityPool),
	})
	if err := protocol.CheckChainID(ctx, cfg.Chain.ChainID); err != nil {
		return err
	}

	executor, err := onchain.NewExecutor(eth, onchain.ExecutorConfig{
		ChainID:         cfg.Chain.ChainID,
		WalletKey:       cfg.Wallet.WalletKey,
		BundleKey:       cfg.Wallet.BundleKey,
		RelayURL:        cfg.Relay.RelayURL,
		ExecutorAddress: cfg.Relay.ExecutorAddress,
		MinerCutRate:    cfg.Relay.MinerCutRate,
		TroveManager:    protocol.TroveManager(),
		LUSDToken:       common.HexToAddress(cfg.Contracts.LUSDToken),
	})
	if err != nil {
		return err
	}
	if executor == nil {
		slog.Warn("no wallet key configured, running in read-only mode")
	}

	reporters := []ports.OutcomeReporter{console}

	if cfg.Storage.DSN != "" {
		journal, err := storage.NewSQLiteJournal(cfg.Storage.DSN)
		if err != nil {
			return err
		}
		defer journal.Close()
		reporters = append(reporters, journal)
	}

	var recorder *metrics.Recorder
	if cfg.Metrics.ListenAddr != "" {
		recorder = metrics.NewRecorder()
		reporters = append(reporters, recorder)
	}

	engine := liquidation.New(liquidation.Config{
		MaxTrovesToLiquidate: cfg.Liquidation.MaxTrovesToLiquidate,
		CandidateCount:       cfg.Liquidation.CandidateCount,
		MaxPriorityFeePerGas: cfg.MaxPriorityFeePerGas(),
	}, protocol, eth, executor, notify.NewMulti(reporters...))

	if once {
		engine.TryToLiquidate(ctx)
		return nil
	}

	blocks, closeBlocks, err := blockSource(ctx, cfg, eth)
	if err != nil {
		return err
	}
	defer closeBlocks()

	runner := liquidation.NewRunner(ctx, func(ctx context.Context) {
		engine.TryToLiquidate(ctx)
	})
	watcher := watch.New(watch.Config{
		Subscribe:    cfg.Chain.WSRPCURL != "",
		PollInterval: cfg.PollInterval(),
	}, protocol, blocks, runner)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return watcher.Run(gctx)
	})
	if recorder != nil {
		server := metrics.NewServer(cfg.Metrics.ListenAddr, recorder.Registry())
		g.Go(func() error {
			return server.Run(gctx)
		})
	}

	err = g.Wait()
	// Let an attempt in flight record its outcome.
	runner.Wait()
	return err
}

// blockSource returns a websocket client when configured, the HTTP client otherwise.
func blockSource(ctx context.Context, cfg *config.Config, eth *ethclient.Client) (ports.BlockSource, func(), error) {
	if cfg.Chain.WSRPCURL == "" {
		return eth, func() {}, nil
	}
	ws, err := ethclient.DialContext(ctx, cfg.Chain.WSRPCURL)
	if err != nil {
		return nil, nil, err
	}
	return ws, ws.Close, nil
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
