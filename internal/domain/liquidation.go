package domain

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
)

// ErrMissingBaseFee is returned when the snapshot block has no baseFeePerGas (pre-London chain).
var ErrMissingBaseFee = errors.New("block is missing baseFeePerGas")

// LiquidationOutcome is the terminal result of one liquidation attempt.
type LiquidationOutcome int

const (
	OutcomeNothingToLiquidate LiquidationOutcome = iota
	OutcomeSkippedInReadOnlyMode
	OutcomeSkippedDueToHighCost
	OutcomeFailure
	OutcomeSuccess
)

// String returns the outcome name used in logs, metrics and the journal.
func (o LiquidationOutcome) String() string {
	switch o {
	case OutcomeNothingToLiquidate:
		return "NOTHING_TO_LIQUIDATE"
	case OutcomeSkippedInReadOnlyMode:
		return "SKIPPED_IN_READ_ONLY_MODE"
	case OutcomeSkippedDueToHighCost:
		return "SKIPPED_DUE_TO_HIGH_COST"
	case OutcomeFailure:
		return "FAILURE"
	case OutcomeSuccess:
		return "SUCCESS"
	default:
		return fmt.Sprintf("OUTCOME(%d)", int(o))
	}
}

// ParseLiquidationOutcome is the inverse of String.
func ParseLiquidationOutcome(s string) (LiquidationOutcome, error) {
	for o := OutcomeNothingToLiquidate; o <= OutcomeSuccess; o++ {
		if o.String() == s {
			return o, nil
		}
	}
	return 0, fmt.Errorf("unknown liquidation outcome %q", s)
}

// UnsignedTx is a populated but unsigned EIP-1559 transaction body.
type UnsignedTx struct {
	To                   common.Address
	Data                 []byte
	GasLimit             uint64
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
}

// PopulatedLiquidation is the liquidation call for a batch of Troves.
// It is owned by a single attempt and never shared.
type PopulatedLiquidation struct {
	Addresses []common.Address
	Tx        UnsignedTx

	// BlockNumber is the snapshot block the batch was selected against (0 = unknown).
	BlockNumber uint64
}

// LiquidationDetails is what the protocol's events report about a mined liquidation.
type LiquidationDetails struct {
	LiquidatedAddresses       []common.Address
	CollateralGasCompensation decimal.Decimal
	LUSDGasCompensation       decimal.Decimal
	TotalLiquidated           Trove
}

// ExecutionDetails extends LiquidationDetails with the part of the compensation paid to the
// block producer (zero when broadcasting directly).
type ExecutionDetails struct {
	LiquidationDetails
	MinerCut decimal.Decimal
}

// ExecutionStatus tags an ExecutionResult.
type ExecutionStatus int

const (
	ExecutionFailed ExecutionStatus = iota
	ExecutionSucceeded
)

// ExecutionResult is either Failed (Receipt set only if the tx was mined and reverted)
// or Succeeded (Receipt and Details set).
type ExecutionResult struct {
	Status  ExecutionStatus
	Receipt *types.Receipt
	Details ExecutionDetails
}

// Succeeded returns true for a mined, successful liquidation.
func (r ExecutionResult) Succeeded() bool {
	return r.Status == ExecutionSucceeded
}

// Reverted returns true when the tx was mined but failed on-chain.
func (r ExecutionResult) Reverted() bool {
	return r.Status == ExecutionFailed && r.Receipt != nil
}

// NotIncluded returns true when the tx never made it on-chain.
func (r ExecutionResult) NotIncluded() bool {
	return r.Status == ExecutionFailed && r.Receipt == nil
}

// FailedResult builds a failed result; receipt may be nil.
func FailedResult(receipt *types.Receipt) ExecutionResult {
	return ExecutionResult{Status: ExecutionFailed, Receipt: receipt}
}

// SucceededResult builds a successful result.
func SucceededResult(receipt *types.Receipt, details ExecutionDetails) ExecutionResult {
	return ExecutionResult{Status: ExecutionSucceeded, Receipt: receipt, Details: details}
}

// RelayError is a structured error returned by a private bundle relay.
type RelayError struct {
	Code    int
	Message string
}

func (e *RelayError) Error() string {
	return fmt.Sprintf("relay error %d: %s", e.Code, e.Message)
}

// BundleResolution is how a submitted bundle ended up.
type BundleResolution int

const (
	BundleIncluded BundleResolution = iota
	BlockPassedWithoutInclusion
	AccountNonceTooHigh
)

func (r BundleResolution) String() string {
	switch r {
	case BundleIncluded:
		return "included"
	case BlockPassedWithoutInclusion:
		return "block passed without inclusion"
	case AccountNonceTooHigh:
		return "account nonce too high"
	default:
		return fmt.Sprintf("resolution(%d)", int(r))
	}
}

// BundleSimulation is the relay's dry-run result for a bundle.
type BundleSimulation struct {
	BundleHash   string
	TotalGasUsed uint64
	CoinbaseDiff *big.Int
	FirstRevert  string
}

// AttemptReport summarizes one liquidation attempt. One report is produced per attempt,
// whatever the outcome.
type AttemptReport struct {
	ID          string
	StartedAt   time.Time
	FinishedAt  time.Time
	Outcome     LiquidationOutcome
	BlockNumber uint64

	Selected             int
	Liquidated           int
	ExpectedCompensation decimal.Decimal
	WorstCost            decimal.Decimal

	TxHash       string
	GasCost      decimal.Decimal
	Compensation decimal.Decimal
	MinerCut     decimal.Decimal

	Error string
}

// Profit is compensation minus gas cost, in USD. Negative for a loss.
func (r AttemptReport) Profit() decimal.Decimal {
	return r.Compensation.Sub(r.GasCost)
}

// Duration returns how long the attempt took.
func (r AttemptReport) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
