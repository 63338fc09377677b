// Package liquidation runs liquidation attempts: select a batch, check it pays for itself,
// execute it and report what happened.
package liquidation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"runtime/debug"
	"time"

	"github.com/alejandrodnm/liqbot/internal/domain"
	"github.com/alejandrodnm/liqbot/internal/domain/strategy"
	"github.com/alejandrodnm/liqbot/internal/ports"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultMaxTrovesToLiquidate = 10
	DefaultCandidateCount       = 1000
)

// Config holds the attempt parameters.
type Config struct {
	MaxTrovesToLiquidate int
	CandidateCount       int

	// MaxPriorityFeePerGas overrides the executor's default tip when set.
	MaxPriorityFeePerGas *big.Int
}

// Engine runs one liquidation attempt at a time. It is not safe for concurrent use;
// Runner serializes calls.
type Engine struct {
	cfg      Config
	protocol ports.Protocol
	headers  ports.HeaderReader
	executor ports.LiquidationExecutor
	reporter ports.OutcomeReporter
	now      func() time.Time
}

// New creates an Engine. A nil executor runs in read-only mode; a nil reporter drops reports.
func New(
	cfg Config,
	protocol ports.Protocol,
	headers ports.HeaderReader,
	executor ports.LiquidationExecutor,
	reporter ports.OutcomeReporter,
) *Engine {
	if cfg.MaxTrovesToLiquidate <= 0 {
		cfg.MaxTrovesToLiquidate = DefaultMaxTrovesToLiquidate
	}
	if cfg.CandidateCount <= 0 {
		cfg.CandidateCount = DefaultCandidateCount
	}
	return &Engine{
		cfg:      cfg,
		protocol: protocol,
		headers:  headers,
		executor: executor,
		reporter: reporter,
		now:      time.Now,
	}
}

// ReadOnly returns true when no executor is configured.
func (e *Engine) ReadOnly() bool {
	return e.executor == nil
}

// TryToLiquidate runs one attempt and returns its report. Errors never escape: they end
// the attempt as a FAILURE. The report is also handed to the reporter.
func (e *Engine) TryToLiquidate(ctx context.Context) domain.AttemptReport {
	report := domain.AttemptReport{
		ID:        uuid.NewString(),
		StartedAt: e.now(),
	}

	if err := e.safeAttempt(ctx, &report); err != nil {
		slog.Error("liquidation: attempt failed", "attempt", report.ID, "block", report.BlockNumber, "err", err)
		report.Outcome = domain.OutcomeFailure
		report.Error = err.Error()
	}
	report.FinishedAt = e.now()

	if e.reporter != nil {
		// The attempt is over; a cancelled ctx must not prevent recording it.
		if err := e.reporter.Report(context.WithoutCancel(ctx), report); err != nil {
			slog.Warn("liquidation: report failed", "attempt", report.ID, "err", err)
		}
	}
	return report
}

// safeAttempt runs attempt, turning a panic into an error so that the attempt is still
// reported.
func (e *Engine) safeAttempt(ctx context.Context, report *domain.AttemptReport) (err error) {
	defer func() {
		if p := recover(); p != nil {
			slog.Error("liquidation: attempt panicked", "attempt", report.ID, "panic", p, "stack", string(debug.Stack()))
			err = fmt.Errorf("liquidation.attempt: panic: %v", p)
		}
	}()
	return e.attempt(ctx, report)
}

// recovering wraps an errgroup task; a panic there would otherwise escape every recover.
func recovering(step string, f func() error) func() error {
	return func() (err error) {
		defer func() {
			if p := recover(); p != nil {
				slog.Error("liquidation: read panicked", "step", step, "panic", p, "stack", string(debug.Stack()))
				err = fmt.Errorf("%s: panic: %v", step, p)
			}
		}()
		return f()
	}
}

// attempt fills in report. A nil error means report.Outcome is set.
func (e *Engine) attempt(ctx context.Context, report *domain.AttemptReport) error {
	snap, err := e.protocol.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("liquidation.attempt: snapshot: %w", err)
	}
	report.BlockNumber = snap.BlockNumber
	state := snap.State

	var (
		baseFee *big.Int
		troves  []domain.Candidate
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(recovering("header", func() error {
		header, err := e.headers.HeaderByNumber(gctx, new(big.Int).SetUint64(snap.BlockNumber))
		if err != nil {
			return fmt.Errorf("header %d: %w", snap.BlockNumber, err)
		}
		if header.BaseFee == nil {
			return domain.ErrMissingBaseFee
		}
		baseFee = header.BaseFee
		return nil
	}))
	g.Go(recovering("get troves", func() error {
		var err error
		troves, err = e.protocol.GetTroves(gctx, e.cfg.CandidateCount, snap)
		if err != nil {
			return fmt.Errorf("get troves: %w", err)
		}
		return nil
	}))
	if err := g.Wait(); err != nil {
		return fmt.Errorf("liquidation.attempt: %w", err)
	}

	maxPriorityFee := e.maxPriorityFeePerGas()
	maxFee := domain.MaxFeePerGas(baseFee, maxPriorityFee)

	selected := strategy.SelectForLiquidation(troves, state, e.cfg.MaxTrovesToLiquidate)
	report.Selected = len(selected)
	if len(selected) == 0 {
		slog.Debug("liquidation: nothing to liquidate", "block", snap.BlockNumber, "candidates", len(troves))
		report.Outcome = domain.OutcomeNothingToLiquidate
		return nil
	}

	owners := domain.Owners(selected)
	slog.Info("liquidation: found troves to liquidate",
		"count", len(selected),
		"block", snap.BlockNumber,
		"recovery_mode", state.RecoveryMode(),
		"price", state.Price.StringFixed(2),
	)
	for _, c := range selected {
		slog.Debug("liquidation: selected trove",
			"owner", c.Owner.Hex(),
			"collateral", c.Collateral.String(),
			"debt", c.Debt.String(),
			"ratio", c.CollateralRatio(state.Price).StringFixed(4),
		)
	}

	if e.executor == nil {
		slog.Warn("liquidation: skipping, no wallet configured (read-only mode)", "troves", len(selected))
		report.Outcome = domain.OutcomeSkippedInReadOnlyMode
		return nil
	}

	gasLimit := domain.LiquidationGasLimit(len(selected))
	tx, err := e.protocol.PopulateLiquidation(ctx, owners, gasLimit)
	if err != nil {
		return fmt.Errorf("liquidation.attempt: populate: %w", err)
	}
	tx.GasLimit = gasLimit
	tx.MaxFeePerGas = maxFee
	tx.MaxPriorityFeePerGas = maxPriorityFee

	worstCost := domain.WorstCaseCost(maxFee, gasLimit, state.Price)
	expected := e.executor.EstimateCompensation(selected, state.Price)
	report.WorstCost = worstCost
	report.ExpectedCompensation = expected

	if domain.ShouldSkip(worstCost, expected) {
		slog.Warn("liquidation: skipping due to high tx cost",
			"worst_cost_usd", worstCost.StringFixed(2),
			"expected_compensation_usd", expected.StringFixed(2),
			"max_fee_gwei", gwei(maxFee),
		)
		report.Outcome = domain.OutcomeSkippedDueToHighCost
		return nil
	}

	slog.Info("liquidation: executing",
		"troves", len(selected),
		"gas_limit", gasLimit,
		"max_fee_gwei", gwei(maxFee),
		"worst_cost_usd", worstCost.StringFixed(2),
		"expected_compensation_usd", expected.StringFixed(2),
	)

	result, err := e.executor.Execute(ctx, domain.PopulatedLiquidation{
		Addresses:   owners,
		Tx:          tx,
		BlockNumber: snap.BlockNumber,
	})
	if err != nil {
		var relayErr *domain.RelayError
		if errors.As(err, &relayErr) {
			slog.Error("liquidation: relay rejected bundle", "code", relayErr.Code, "message", relayErr.Message)
		}
		return fmt.Errorf("liquidation.attempt: execute: %w", err)
	}

	if result.Receipt != nil {
		report.TxHash = result.Receipt.TxHash.Hex()
		report.GasCost = gasCost(result.Receipt, state.Price)
	}

	if !result.Succeeded() {
		if result.Reverted() {
			slog.Error("liquidation: tx failed", "tx", report.TxHash, "block", result.Receipt.BlockNumber)
			report.Error = "tx failed"
		} else {
			slog.Warn("liquidation: tx not included")
			report.Error = "tx not included"
		}
		report.Outcome = domain.OutcomeFailure
		return nil
	}

	compensation := domain.RealizedCompensation(result.Details, state.Price)
	report.Liquidated = len(result.Details.LiquidatedAddresses)
	report.Compensation = compensation
	report.MinerCut = result.Details.MinerCut
	report.Outcome = domain.OutcomeSuccess

	profit := report.Profit()
	attrs := []any{
		"troves", report.Liquidated,
		"tx", report.TxHash,
		"compensation_usd", compensation.StringFixed(2),
		"gas_cost_usd", report.GasCost.StringFixed(2),
	}
	if profit.IsNegative() {
		slog.Warn("liquidation: liquidated at a loss", append(attrs, "loss_usd", profit.Neg().StringFixed(2))...)
	} else {
		slog.Info("liquidation: liquidated", append(attrs, "profit_usd", profit.StringFixed(2))...)
	}
	return nil
}

func (e *Engine) maxPriorityFeePerGas() *big.Int {
	if e.cfg.MaxPriorityFeePerGas != nil {
		return new(big.Int).Set(e.cfg.MaxPriorityFeePerGas)
	}
	if e.executor != nil {
		return e.executor.DefaultMaxPriorityFeePerGas()
	}
	return big.NewInt(0)
}

// gasCost is effectiveGasPrice × gasUsed, in USD.
func gasCost(receipt *types.Receipt, price decimal.Decimal) decimal.Decimal {
	if receipt.EffectiveGasPrice == nil {
		return decimal.Zero
	}
	wei := new(big.Int).Mul(receipt.EffectiveGasPrice, new(big.Int).SetUint64(receipt.GasUsed))
	return domain.WeiToEther(wei).Mul(price)
}

func gwei(wei *big.Int) string {
	return decimal.NewFromBigInt(wei, -9).StringFixed(2)
}
