package strategy

import (
	"sort"

	"github.com/alejandrodnm/liqbot/internal/domain"
	"github.com/shopspring/decimal"
)

// SelectForLiquidation picks up to limit Troves to liquidate in one transaction.
//
// Bigger Troves pay proportionally more compensation per slot, so candidates are tried by
// descending collateral. After each pick the liquidation is simulated against a working copy
// of the system state, so that recovery mode and stability pool depletion caused by earlier
// picks are taken into account for later ones. Neither candidates nor state are modified.
func SelectForLiquidation(candidates []domain.Candidate, state domain.SystemState, limit int) []domain.Candidate {
	if limit <= 0 || len(candidates) == 0 {
		return []domain.Candidate{}
	}

	pool := make([]domain.Candidate, len(candidates))
	copy(pool, candidates)
	sort.SliceStable(pool, func(i, j int) bool {
		return pool[i].Collateral.GreaterThan(pool[j].Collateral)
	})

	selected := make([]domain.Candidate, 0, min(limit, len(pool)))

	for len(selected) < limit {
		idx := indexOfFirstLiquidatable(pool, state)
		if idx < 0 {
			break
		}

		trove := pool[idx]
		pool = append(pool[:idx], pool[idx+1:]...)
		selected = append(selected, trove)
		state = simulateLiquidation(state, trove.Trove)
	}

	return selected
}

func indexOfFirstLiquidatable(pool []domain.Candidate, state domain.SystemState) int {
	liquidatable := liquidatablePredicate(state)
	for i, c := range pool {
		if liquidatable(c.Trove) {
			return i
		}
	}
	return -1
}

func liquidatablePredicate(state domain.SystemState) func(domain.Trove) bool {
	if state.RecoveryMode() {
		totalRatio := state.TotalCollateralRatio()
		return func(t domain.Trove) bool {
			return t.CollateralRatioIsBelowMinimum(state.Price) ||
				(t.CollateralRatio(state.Price).LessThan(totalRatio) &&
					t.Debt.LessThanOrEqual(state.LUSDInStabilityPool))
		}
	}
	return func(t domain.Trove) bool {
		return t.CollateralRatioIsBelowMinimum(state.Price)
	}
}

// simulateLiquidation returns the state after liquidating trove. The collateral gas
// compensation always leaves the system; the rest is offset against the stability pool
// when possible. In recovery mode a Trove at or under 100% is redistributed instead.
func simulateLiquidation(state domain.SystemState, trove domain.Trove) domain.SystemState {
	recoveryMode := state.RecoveryMode()
	collateralGasCompensation := trove.Collateral.Div(decimal.NewFromInt(domain.CollateralGasCompensationDivisor))

	if !recoveryMode || trove.CollateralRatio(state.Price).GreaterThan(decimal.NewFromInt(1)) {
		state = tryToOffset(state, trove.SubtractCollateral(collateralGasCompensation))
	}

	state.Total = state.Total.SubtractCollateral(collateralGasCompensation)
	return state
}

// tryToOffset cancels offset's debt against the stability pool.
func tryToOffset(state domain.SystemState, offset domain.Trove) domain.SystemState {
	switch {
	case offset.Debt.LessThanOrEqual(state.LUSDInStabilityPool):
		// Completely offset
		state.LUSDInStabilityPool = state.LUSDInStabilityPool.Sub(offset.Debt)
		state.Total = state.Total.Subtract(offset)

	case state.LUSDInStabilityPool.IsPositive():
		// Partially offset, emptying the pool
		offsetCollateral := offset.Collateral.Mul(state.LUSDInStabilityPool).Div(offset.Debt)
		state.Total = state.Total.
			SubtractDebt(state.LUSDInStabilityPool).
			SubtractCollateral(offsetCollateral)
		state.LUSDInStabilityPool = decimal.Zero

	default:
		// Empty pool: debt and collateral get redistributed to the remaining Troves,
		// which leaves the totals unchanged.
	}
	return state
}
