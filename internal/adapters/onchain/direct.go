package onchain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/alejandrodnm/liqbot/internal/adapters/liquity"
	"github.com/alejandrodnm/liqbot/internal/domain"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
)

const (
	// directPriorityFee is the default tip when broadcasting through the public mempool.
	directPriorityFee = 5_000_000_000 // 5 gwei

	receiptPollInterval = 3 * time.Second
)

type receiptReader interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// DirectClient is the subset of *ethclient.Client used to broadcast transactions.
type DirectClient interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// DirectExecutor implements ports.LiquidationExecutor by broadcasting through the RPC node.
type DirectExecutor struct {
	client       DirectClient
	signer       *Signer
	troveManager common.Address
	pollInterval time.Duration
}

// NewDirectExecutor creates an executor that sends liquidations as plain transactions.
func NewDirectExecutor(client DirectClient, signer *Signer, troveManager common.Address) *DirectExecutor {
	return &DirectExecutor{
		client:       client,
		signer:       signer,
		troveManager: troveManager,
		pollInterval: receiptPollInterval,
	}
}

// SetReceiptPolling overrides how often to poll for the receipt.
func (e *DirectExecutor) SetReceiptPolling(interval time.Duration) {
	e.pollInterval = interval
}

// EstimateCompensation implements ports.LiquidationExecutor. Nothing is shared with the miner.
func (e *DirectExecutor) EstimateCompensation(troves []domain.Candidate, price decimal.Decimal) decimal.Decimal {
	return domain.ExpectedCompensation(troves, price, decimal.Zero)
}

// DefaultMaxPriorityFeePerGas implements ports.LiquidationExecutor.
func (e *DirectExecutor) DefaultMaxPriorityFeePerGas() *big.Int {
	return big.NewInt(directPriorityFee)
}

// Execute implements ports.LiquidationExecutor.
func (e *DirectExecutor) Execute(ctx context.Context, liquidation domain.PopulatedLiquidation) (domain.ExecutionResult, error) {
	nonce, err := e.client.PendingNonceAt(ctx, e.signer.Address())
	if err != nil {
		return domain.ExecutionResult{}, fmt.Errorf("onchain.DirectExecutor.Execute: nonce: %w", err)
	}

	signed, err := e.signer.SignTx(nonce, liquidation.Tx)
	if err != nil {
		return domain.ExecutionResult{}, fmt.Errorf("onchain.DirectExecutor.Execute: %w", err)
	}

	if err := e.client.SendTransaction(ctx, signed); err != nil {
		return domain.ExecutionResult{}, fmt.Errorf("onchain.DirectExecutor.Execute: send tx: %w", err)
	}

	txHash := signed.Hash()
	slog.Info("onchain: transaction sent", "tx", txHash.Hex(), "nonce", nonce, "troves", len(liquidation.Addresses))

	// A broadcast tx may still be mined, so there is no deadline here: only ctx ends the
	// wait, and that is an error rather than "not included".
	receipt, err := waitForReceipt(ctx, e.client, txHash, e.pollInterval)
	if err != nil {
		return domain.ExecutionResult{}, fmt.Errorf("onchain.DirectExecutor.Execute: wait receipt %s: %w", txHash.Hex(), err)
	}

	if receipt.Status != types.ReceiptStatusSuccessful {
		return domain.FailedResult(receipt), nil
	}

	details, err := liquity.ParseLiquidationDetails(e.troveManager, receipt.Logs)
	if err != nil {
		return domain.ExecutionResult{}, fmt.Errorf("onchain.DirectExecutor.Execute: tx %s: %w", txHash.Hex(), err)
	}

	return domain.SucceededResult(receipt, domain.ExecutionDetails{
		LiquidationDetails: details,
		MinerCut:           decimal.Zero,
	}), nil
}

// waitForReceipt polls for a transaction receipt until it is mined or ctx expires.
func waitForReceipt(ctx context.Context, client receiptReader, txHash common.Hash, interval time.Duration) (*types.Receipt, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		receipt, err := client.TransactionReceipt(ctx, txHash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			slog.Debug("onchain: receipt lookup failed, retrying", "tx", txHash.Hex(), "err", err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
