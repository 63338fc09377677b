package strategy

import (
	"math/rand"
	"testing"

	"github.com/alejandrodnm/liqbot/internal/domain"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func candidate(owner byte, collateral, debt string) domain.Candidate {
	return domain.Candidate{
		Owner: common.BytesToAddress([]byte{owner}),
		Trove: domain.NewTrove(d(collateral), d(debt)),
	}
}

func normalState(pool string) domain.SystemState {
	// 400% at 2000
	return domain.SystemState{
		Total:               domain.NewTrove(d("100"), d("50000")),
		Price:               d("2000"),
		LUSDInStabilityPool: d(pool),
	}
}

func owners(cs []domain.Candidate) []byte {
	out := make([]byte, len(cs))
	for i, c := range cs {
		out[i] = c.Owner[19]
	}
	return out
}

func TestSelectForLiquidation_NoCandidates(t *testing.T) {
	got := SelectForLiquidation(nil, normalState("10000"), 10)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestSelectForLiquidation_ZeroLimit(t *testing.T) {
	got := SelectForLiquidation([]domain.Candidate{candidate(1, "1", "2000")}, normalState("10000"), 0)
	assert.Empty(t, got)
}

func TestSelectForLiquidation_SingleUndercollateralized(t *testing.T) {
	c := candidate(1, "1", "2000") // 100%
	state := normalState("10000")

	got := SelectForLiquidation([]domain.Candidate{c}, state, 10)
	require.Len(t, got, 1)
	assert.Equal(t, c.Owner, got[0].Owner)

	after := simulateLiquidation(state, c.Trove)
	assert.True(t, d("8000").Equal(after.LUSDInStabilityPool), after.LUSDInStabilityPool.String())
	assert.True(t, d("99").Equal(after.Total.Collateral), after.Total.Collateral.String())
	assert.True(t, d("48000").Equal(after.Total.Debt), after.Total.Debt.String())
}

func TestSelectForLiquidation_SkipsHealthyTroves(t *testing.T) {
	candidates := []domain.Candidate{
		candidate(1, "5", "1000"), // 1000%
		candidate(2, "1", "2000"), // 100%
		candidate(3, "1.2", "2000"),
	}
	got := SelectForLiquidation(candidates, normalState("100000"), 10)
	assert.Equal(t, []byte{2}, owners(got))
}

func TestSelectForLiquidation_OrdersByCollateralAndRespectsLimit(t *testing.T) {
	candidates := []domain.Candidate{
		candidate(1, "1", "2000"),
		candidate(2, "3", "6000"),
		candidate(3, "2", "4000"),
		candidate(4, "0.5", "1000"),
	}
	state := normalState("1000000")

	assert.Equal(t, []byte{2, 3, 1, 4}, owners(SelectForLiquidation(candidates, state, 10)))
	assert.Equal(t, []byte{2, 3}, owners(SelectForLiquidation(candidates, state, 2)))
}

func TestSelectForLiquidation_DoesNotMutateInput(t *testing.T) {
	candidates := []domain.Candidate{
		candidate(1, "1", "2000"),
		candidate(2, "3", "6000"),
		candidate(3, "2", "4000"),
	}
	state := normalState("1000000")

	SelectForLiquidation(candidates, state, 2)

	assert.Equal(t, []byte{1, 2, 3}, owners(candidates))
	assert.True(t, d("1000000").Equal(state.LUSDInStabilityPool))
	assert.True(t, d("100").Equal(state.Total.Collateral))
}

func TestSelectForLiquidation_RecoveryModeRelaxedCondition(t *testing.T) {
	// TCR 149%
	state := domain.SystemState{
		Total:               domain.NewTrove(d("100"), d("100000")),
		Price:               d("1490"),
		LUSDInStabilityPool: d("1000000"),
	}
	b := candidate(2, "5", "6000") // 124%: below TCR, above minimum

	got := SelectForLiquidation([]domain.Candidate{b}, state, 10)
	assert.Equal(t, []byte{2}, owners(got))

	// same Trove, but the pool can't absorb its debt
	state.LUSDInStabilityPool = d("5999")
	assert.Empty(t, SelectForLiquidation([]domain.Candidate{b}, state, 10))
}

func TestSelectForLiquidation_LeavesRecoveryModeMidBatch(t *testing.T) {
	state := domain.SystemState{
		Total:               domain.NewTrove(d("100"), d("100000")),
		Price:               d("1490"),
		LUSDInStabilityPool: d("1000000"),
	}
	a := candidate(1, "10", "14000") // 106%
	b := candidate(2, "5", "6000")   // 124%

	// liquidating a lifts the TCR to ~156%, after which b is healthy
	got := SelectForLiquidation([]domain.Candidate{b, a}, state, 10)
	assert.Equal(t, []byte{1}, owners(got))
}

func TestSimulateLiquidation_PartialOffset(t *testing.T) {
	state := normalState("500")
	after := simulateLiquidation(state, domain.NewTrove(d("1"), d("2000")))

	// 0.995 × 500 / 2000 offset, plus 0.005 gas compensation
	assert.True(t, after.LUSDInStabilityPool.IsZero())
	assert.True(t, d("99.74625").Equal(after.Total.Collateral), after.Total.Collateral.String())
	assert.True(t, d("49500").Equal(after.Total.Debt), after.Total.Debt.String())
}

func TestSimulateLiquidation_EmptyPoolRedistributes(t *testing.T) {
	state := normalState("0")
	after := simulateLiquidation(state, domain.NewTrove(d("1"), d("2000")))

	assert.True(t, after.LUSDInStabilityPool.IsZero())
	assert.True(t, d("99.995").Equal(after.Total.Collateral))
	assert.True(t, d("50000").Equal(after.Total.Debt))
}

func TestSimulateLiquidation_RecoveryUnderwaterTroveSkipsPool(t *testing.T) {
	state := domain.SystemState{
		Total:               domain.NewTrove(d("100"), d("100000")),
		Price:               d("1400"),
		LUSDInStabilityPool: d("10000"),
	}
	// 70%: redistributed even though the pool could cover it
	after := simulateLiquidation(state, domain.NewTrove(d("1"), d("2000")))

	assert.True(t, d("10000").Equal(after.LUSDInStabilityPool))
	assert.True(t, d("99.995").Equal(after.Total.Collateral))
	assert.True(t, d("100000").Equal(after.Total.Debt))
}

func TestSimulateLiquidation_NeverGoesNegative(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for run := 0; run < 200; run++ {
		n := 1 + rng.Intn(8)
		troves := make([]domain.Trove, n)
		total := domain.NewTrove(decimal.NewFromInt(int64(rng.Intn(50))), decimal.NewFromInt(int64(rng.Intn(50000))))
		for i := range troves {
			troves[i] = domain.NewTrove(
				decimal.NewFromInt(int64(1+rng.Intn(100))),
				decimal.NewFromInt(int64(1000+rng.Intn(200000))),
			)
			total = total.Add(troves[i])
		}

		state := domain.SystemState{
			Total:               total,
			Price:               decimal.NewFromInt(int64(500 + rng.Intn(3000))),
			LUSDInStabilityPool: decimal.NewFromInt(int64(rng.Intn(300000))),
		}

		for _, trove := range troves {
			state = simulateLiquidation(state, trove)
			require.False(t, state.LUSDInStabilityPool.IsNegative(), "run %d: pool", run)
			require.False(t, state.Total.Collateral.IsNegative(), "run %d: collateral", run)
			require.False(t, state.Total.Debt.IsNegative(), "run %d: debt", run)
		}
	}
}

func TestSelectForLiquidation_RandomizedBoundAndOrder(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for run := 0; run < 300; run++ {
		n := rng.Intn(20)
		candidates := make([]domain.Candidate, n)
		total := domain.NewTrove(decimal.NewFromInt(int64(10+rng.Intn(500))), decimal.NewFromInt(int64(rng.Intn(400000))))
		for i := range candidates {
			candidates[i] = domain.Candidate{
				Owner: common.BytesToAddress([]byte{byte(i + 1)}),
				Trove: domain.NewTrove(
					decimal.NewFromInt(int64(1+rng.Intn(50))),
					decimal.NewFromInt(int64(2000+rng.Intn(100000))),
				),
			}
			total = total.Add(candidates[i].Trove)
		}
		state := domain.SystemState{
			Total:               total,
			Price:               decimal.NewFromInt(int64(500 + rng.Intn(3000))),
			LUSDInStabilityPool: decimal.NewFromInt(int64(rng.Intn(500000))),
		}
		limit := rng.Intn(8)

		got := SelectForLiquidation(candidates, state, limit)
		require.LessOrEqual(t, len(got), limit, "run %d", run)
		require.LessOrEqual(t, len(got), len(candidates), "run %d", run)

		// Replay: at every step the pick qualifies, and no bigger remaining Trove did.
		remaining := make(map[common.Address]domain.Candidate, n)
		for _, c := range candidates {
			remaining[c.Owner] = c
		}
		for i, pick := range got {
			liquidatable := liquidatablePredicate(state)
			require.True(t, liquidatable(pick.Trove), "run %d pick %d", run, i)
			delete(remaining, pick.Owner)
			for _, c := range remaining {
				if c.Collateral.GreaterThan(pick.Collateral) {
					require.False(t, liquidatable(c.Trove),
						"run %d pick %d: %s skipped for smaller %s", run, i, c.Collateral, pick.Collateral)
				}
			}
			state = simulateLiquidation(state, pick.Trove)
		}
	}
}
