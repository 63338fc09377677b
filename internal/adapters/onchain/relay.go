package onchain

// relay.go: liquidation through a deployed executor contract, sent as a private bundle.
//
// The executor contract forwards the liquidation call, pays coinbaseCutRate of the ETH it
// received to the block producer and sweeps the listed tokens back to the owner. Since the
// producer is paid through coinbase, the tx itself needs no priority fee.

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/alejandrodnm/liqbot/internal/adapters/liquity"
	"github.com/alejandrodnm/liqbot/internal/domain"
	"github.com/alejandrodnm/liqbot/internal/ports"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
)

// ExecutorGasOverhead is the extra gas the executor contract needs on top of the liquidation.
const ExecutorGasOverhead = 50_000

var executorABI abi.ABI

func init() {
	var err error
	executorABI, err = abi.JSON(strings.NewReader(`[
		{
			"name": "execute",
			"type": "function",
			"stateMutability": "nonpayable",
			"inputs": [
				{"name": "to", "type": "address"},
				{"name": "data", "type": "bytes"},
				{"name": "coinbaseCutRate", "type": "uint256"},
				{"name": "sweepTokens", "type": "address[]"}
			],
			"outputs": []
		}
	]`))
	if err != nil {
		panic("executor abi parse: " + err.Error())
	}
}

// RelayChain is the subset of *ethclient.Client the relay executor needs.
type RelayChain interface {
	BlockNumber(ctx context.Context) (uint64, error)
	NonceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (uint64, error)
}

// RelayExecutorConfig holds the addresses and economics of the relay executor.
type RelayExecutorConfig struct {
	ExecutorAddress common.Address
	TroveManager    common.Address
	LUSDToken       common.Address
	MinerCutRate    decimal.Decimal
}

// RelayExecutor implements ports.LiquidationExecutor through a private bundle relay.
type RelayExecutor struct {
	chain  RelayChain
	relay  ports.BundleRelay
	signer *Signer
	cfg    RelayExecutorConfig
}

// NewRelayExecutor creates a relay executor. MinerCutRate must be in [0, 1].
func NewRelayExecutor(chain RelayChain, relay ports.BundleRelay, signer *Signer, cfg RelayExecutorConfig) (*RelayExecutor, error) {
	if cfg.MinerCutRate.IsNegative() || cfg.MinerCutRate.GreaterThan(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("onchain.NewRelayExecutor: miner cut rate must be between 0 and 1, got %s", cfg.MinerCutRate)
	}
	return &RelayExecutor{chain: chain, relay: relay, signer: signer, cfg: cfg}, nil
}

// EstimateCompensation implements ports.LiquidationExecutor, net of the miner's cut.
func (e *RelayExecutor) EstimateCompensation(troves []domain.Candidate, price decimal.Decimal) decimal.Decimal {
	return domain.ExpectedCompensation(troves, price, e.cfg.MinerCutRate)
}

// DefaultMaxPriorityFeePerGas implements ports.LiquidationExecutor.
func (e *RelayExecutor) DefaultMaxPriorityFeePerGas() *big.Int {
	return big.NewInt(0)
}

// Execute implements ports.LiquidationExecutor. Relay rejections are returned as errors
// wrapping *domain.RelayError; a bundle that does not make it into the target block is a
// Failed result without receipt.
func (e *RelayExecutor) Execute(ctx context.Context, liquidation domain.PopulatedLiquidation) (domain.ExecutionResult, error) {
	latestBlock := liquidation.BlockNumber
	if latestBlock == 0 {
		n, err := e.chain.BlockNumber(ctx)
		if err != nil {
			return domain.ExecutionResult{}, fmt.Errorf("onchain.RelayExecutor.Execute: block number: %w", err)
		}
		latestBlock = n
	}

	// Nonce as of the snapshot block, ignoring pending txs.
	nonce, err := e.chain.NonceAt(ctx, e.signer.Address(), new(big.Int).SetUint64(latestBlock))
	if err != nil {
		return domain.ExecutionResult{}, fmt.Errorf("onchain.RelayExecutor.Execute: nonce: %w", err)
	}

	callData, err := executorABI.Pack("execute",
		liquidation.Tx.To,
		liquidation.Tx.Data,
		domain.EtherToWei(e.cfg.MinerCutRate),
		[]common.Address{e.cfg.LUSDToken},
	)
	if err != nil {
		return domain.ExecutionResult{}, fmt.Errorf("onchain.RelayExecutor.Execute: pack: %w", err)
	}

	signed, err := e.signer.SignTx(nonce, domain.UnsignedTx{
		To:                   e.cfg.ExecutorAddress,
		Data:                 callData,
		GasLimit:             liquidation.Tx.GasLimit + ExecutorGasOverhead,
		MaxFeePerGas:         liquidation.Tx.MaxFeePerGas,
		MaxPriorityFeePerGas: liquidation.Tx.MaxPriorityFeePerGas,
	})
	if err != nil {
		return domain.ExecutionResult{}, fmt.Errorf("onchain.RelayExecutor.Execute: %w", err)
	}

	raw, err := signed.MarshalBinary()
	if err != nil {
		return domain.ExecutionResult{}, fmt.Errorf("onchain.RelayExecutor.Execute: encode tx: %w", err)
	}
	bundle := [][]byte{raw}
	targetBlock := latestBlock + 1

	sim, err := e.relay.Simulate(ctx, bundle, targetBlock)
	if err != nil {
		return domain.ExecutionResult{}, fmt.Errorf("onchain.RelayExecutor.Execute: simulate: %w", err)
	}
	if sim.FirstRevert != "" {
		slog.Warn("onchain: bundle simulation reverted, sending anyway",
			"revert", sim.FirstRevert,
			"target_block", targetBlock,
		)
	}
	slog.Debug("onchain: bundle simulated",
		"gas_used", sim.TotalGasUsed,
		"coinbase_diff", domain.WeiToEther(sim.CoinbaseDiff).String(),
	)

	handle, err := e.relay.SendBundle(ctx, bundle, targetBlock)
	if err != nil {
		return domain.ExecutionResult{}, fmt.Errorf("onchain.RelayExecutor.Execute: send bundle: %w", err)
	}
	slog.Info("onchain: bundle sent", "bundle", handle.BundleHash(), "tx", signed.Hash().Hex(), "target_block", targetBlock)

	resolution, err := handle.Wait(ctx)
	if err != nil {
		return domain.ExecutionResult{}, fmt.Errorf("onchain.RelayExecutor.Execute: wait: %w", err)
	}
	if resolution != domain.BundleIncluded {
		slog.Info("onchain: bundle not included", "bundle", handle.BundleHash(), "resolution", resolution.String())
		return domain.FailedResult(nil), nil
	}

	receipts, err := handle.Receipts(ctx)
	if err != nil {
		return domain.ExecutionResult{}, fmt.Errorf("onchain.RelayExecutor.Execute: receipts: %w", err)
	}
	if len(receipts) == 0 || receipts[0] == nil {
		return domain.ExecutionResult{}, fmt.Errorf("onchain.RelayExecutor.Execute: bundle included without receipt")
	}
	receipt := receipts[0]

	if receipt.Status != types.ReceiptStatusSuccessful {
		return domain.FailedResult(receipt), nil
	}

	details, err := liquity.ParseLiquidationDetails(e.cfg.TroveManager, receipt.Logs)
	if err != nil {
		return domain.ExecutionResult{}, fmt.Errorf("onchain.RelayExecutor.Execute: tx %s: %w", receipt.TxHash.Hex(), err)
	}

	return domain.SucceededResult(receipt, domain.ExecutionDetails{
		LiquidationDetails: details,
		MinerCut:           details.CollateralGasCompensation.Mul(e.cfg.MinerCutRate),
	}), nil
}
