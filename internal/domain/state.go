package domain

import "github.com/shopspring/decimal"

// SystemState is the part of the protocol state that liquidation depends on.
// Values are passed by copy; nothing in this package mutates a caller's SystemState.
type SystemState struct {
	Total               Trove
	Price               decimal.Decimal
	LUSDInStabilityPool decimal.Decimal
}

// RecoveryMode returns true when the total collateral ratio is below the critical ratio.
func (s SystemState) RecoveryMode() bool {
	return s.Total.CollateralRatioIsBelowCritical(s.Price)
}

// TotalCollateralRatio returns the system-wide collateral ratio at the current price.
func (s SystemState) TotalCollateralRatio() decimal.Decimal {
	return s.Total.CollateralRatio(s.Price)
}

// Snapshot is a point-in-time read of the protocol at a given block.
type Snapshot struct {
	State       SystemState
	BlockNumber uint64

	// TotalRedistributed holds the per-unit-stake accumulators (L_ETH, L_LUSDDebt).
	TotalRedistributed Trove
}

// HaveUndercollateralizedTroves decides whether a liquidation attempt is worth triggering,
// given the riskiest Trove (lowest ratio, pending redistribution already applied).
func HaveUndercollateralizedTroves(state SystemState, riskiest Trove) bool {
	if riskiest.IsEmpty() {
		return false
	}
	if state.RecoveryMode() {
		return riskiest.NominalCollateralRatio().LessThan(state.Total.NominalCollateralRatio())
	}
	return riskiest.CollateralRatioIsBelowMinimum(state.Price)
}
