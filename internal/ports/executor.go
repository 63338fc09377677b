package ports

import (
	"context"
	"math/big"

	"github.com/alejandrodnm/liqbot/internal/domain"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
)

// LiquidationExecutor sends a populated liquidation on-chain, either by direct broadcast
// or through a private relay.
type LiquidationExecutor interface {
	// EstimateCompensation returns the USD compensation for liquidating troves,
	// net of whatever the executor pays to the block producer.
	EstimateCompensation(troves []domain.Candidate, price decimal.Decimal) decimal.Decimal

	// Execute returns a Failed result (not an error) when the tx was not included or
	// reverted. Errors are reserved for RPC and relay failures.
	Execute(ctx context.Context, liquidation domain.PopulatedLiquidation) (domain.ExecutionResult, error)

	// DefaultMaxPriorityFeePerGas is the tip used when none is configured.
	DefaultMaxPriorityFeePerGas() *big.Int
}

// BundleRelay submits bundles of signed transactions to a private relay.
type BundleRelay interface {
	// Simulate dry-runs the bundle on top of targetBlock-1. A relay-level rejection is
	// returned as *domain.RelayError.
	Simulate(ctx context.Context, signedTxs [][]byte, targetBlock uint64) (domain.BundleSimulation, error)

	// SendBundle submits the bundle for inclusion in targetBlock.
	SendBundle(ctx context.Context, signedTxs [][]byte, targetBlock uint64) (BundleHandle, error)
}

// BundleHandle tracks a submitted bundle.
type BundleHandle interface {
	BundleHash() string

	// Wait blocks until the target block has been mined (or the bundle became invalid).
	Wait(ctx context.Context) (domain.BundleResolution, error)

	// Receipts returns the receipts of the bundle's transactions, once included.
	Receipts(ctx context.Context) ([]*types.Receipt, error)
}
