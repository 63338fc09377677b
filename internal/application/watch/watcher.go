// Package watch triggers liquidation attempts when new blocks show undercollateralized Troves.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/liqbot/internal/domain"
	"github.com/alejandrodnm/liqbot/internal/ports"
	"github.com/ethereum/go-ethereum/core/types"
)

const defaultPollInterval = 12 * time.Second

// Trigger is what the watcher pokes. Satisfied by *liquidation.Runner.
type Trigger interface {
	Trigger()
}

// Config selects how new blocks are detected.
type Config struct {
	// Subscribe uses SubscribeNewHead (websocket only); otherwise the head is polled.
	Subscribe    bool
	PollInterval time.Duration
}

// Watcher checks the riskiest Trove on every new block.
type Watcher struct {
	cfg      Config
	protocol ports.ProtocolReader
	blocks   ports.BlockSource
	trigger  Trigger
}

// New creates a Watcher.
func New(cfg Config, protocol ports.ProtocolReader, blocks ports.BlockSource, trigger Trigger) *Watcher {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	return &Watcher{cfg: cfg, protocol: protocol, blocks: blocks, trigger: trigger}
}

// Run checks once, then on every new block until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	slog.Info("watch: waiting for price drops...", "subscribe", w.cfg.Subscribe, "poll_interval", w.cfg.PollInterval)
	w.checkAndLog(ctx)

	if w.cfg.Subscribe {
		err := w.runSubscription(ctx)
		if err == nil || ctx.Err() != nil {
			return nil
		}
		slog.Warn("watch: subscription failed, falling back to polling", "err", err)
	}
	return w.runPolling(ctx)
}

// Check reads the current state and the riskiest Trove and triggers an attempt if it is
// liquidatable. Returns whether it triggered.
func (w *Watcher) Check(ctx context.Context) (bool, error) {
	snap, err := w.protocol.Snapshot(ctx)
	if err != nil {
		return false, fmt.Errorf("watch.Check: snapshot: %w", err)
	}
	riskiest, err := w.protocol.GetTroves(ctx, 1, snap)
	if err != nil {
		return false, fmt.Errorf("watch.Check: riskiest trove: %w", err)
	}

	var trove domain.Trove
	if len(riskiest) > 0 {
		trove = riskiest[0].Trove
	}
	if !domain.HaveUndercollateralizedTroves(snap.State, trove) {
		return false, nil
	}

	slog.Debug("watch: undercollateralized troves found",
		"block", snap.BlockNumber,
		"riskiest_ratio", trove.CollateralRatio(snap.State.Price).StringFixed(4),
		"recovery_mode", snap.State.RecoveryMode(),
	)
	w.trigger.Trigger()
	return true, nil
}

func (w *Watcher) checkAndLog(ctx context.Context) {
	if _, err := w.Check(ctx); err != nil && ctx.Err() == nil {
		slog.Warn("watch: check failed", "err", err)
	}
}

// runSubscription returns nil when ctx is done and an error if the subscription breaks.
func (w *Watcher) runSubscription(ctx context.Context) error {
	heads := make(chan *types.Header, 16)
	sub, err := w.blocks.SubscribeNewHead(ctx, heads)
	if err != nil {
		return fmt.Errorf("watch.runSubscription: subscribe: %w", err)
	}
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-sub.Err():
			if err == nil {
				return fmt.Errorf("watch.runSubscription: subscription closed")
			}
			return fmt.Errorf("watch.runSubscription: %w", err)
		case head := <-heads:
			slog.Debug("watch: new block", "block", head.Number)
			w.checkAndLog(ctx)
		}
	}
}

func (w *Watcher) runPolling(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	var last uint64
	for {
		select {
		case <-ctx.Done():
			slog.Info("watch: stopped")
			return nil
		case <-ticker.C:
			n, err := w.blocks.BlockNumber(ctx)
			if err != nil {
				if ctx.Err() == nil {
					slog.Warn("watch: block number failed", "err", err)
				}
				continue
			}
			if n <= last {
				continue
			}
			last = n
			slog.Debug("watch: new block", "block", n)
			w.checkAndLog(ctx)
		}
	}
}
