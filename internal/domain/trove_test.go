package domain_test

import (
	"testing"

	"github.com/alejandrodnm/liqbot/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestTrove_CollateralRatio(t *testing.T) {
	trove := domain.NewTrove(d("1"), d("2000"))
	assert.True(t, d("1.5").Equal(trove.CollateralRatio(d("3000"))))
	assert.True(t, d("0.0005").Equal(trove.NominalCollateralRatio()))
}

func TestTrove_ZeroDebtHasMaxRatio(t *testing.T) {
	trove := domain.NewTrove(d("10"), decimal.Zero)
	assert.True(t, domain.MaxRatio.Equal(trove.CollateralRatio(d("1000"))))
	assert.False(t, trove.CollateralRatioIsBelowMinimum(d("1000")))
	assert.False(t, trove.CollateralRatioIsBelowCritical(d("1000")))
}

func TestTrove_BelowMinimum(t *testing.T) {
	// 1 ETH @ 2000 backing 2000 LUSD → 100%
	assert.True(t, domain.NewTrove(d("1"), d("2000")).CollateralRatioIsBelowMinimum(d("2000")))
	// exactly 110% is not below
	assert.False(t, domain.NewTrove(d("1.1"), d("2000")).CollateralRatioIsBelowMinimum(d("2000")))
}

func TestTrove_Arithmetic(t *testing.T) {
	a := domain.NewTrove(d("3"), d("100"))
	b := domain.NewTrove(d("1"), d("40"))

	sum := a.Add(b)
	assert.True(t, d("4").Equal(sum.Collateral))
	assert.True(t, d("140").Equal(sum.Debt))

	diff := a.Subtract(b)
	assert.True(t, d("2").Equal(diff.Collateral))
	assert.True(t, d("60").Equal(diff.Debt))

	assert.True(t, d("2.5").Equal(a.SubtractCollateral(d("0.5")).Collateral))
	assert.True(t, d("90").Equal(a.SubtractDebt(d("10")).Debt))

	// receiver is untouched
	assert.True(t, d("3").Equal(a.Collateral))
	assert.True(t, d("100").Equal(a.Debt))
}

func TestTrove_ApplyRedistribution(t *testing.T) {
	trove := domain.NewTrove(d("10"), d("10000"))
	snapshot := domain.NewTrove(d("0.01"), d("5"))
	total := domain.NewTrove(d("0.03"), d("25"))

	got := trove.ApplyRedistribution(d("2"), snapshot, total)

	// pending = 2 × (0.02, 20)
	assert.True(t, d("10.04").Equal(got.Collateral))
	assert.True(t, d("10040").Equal(got.Debt))
}

func TestSystemState_RecoveryMode(t *testing.T) {
	normal := domain.SystemState{Total: domain.NewTrove(d("100"), d("100000")), Price: d("2000")}
	assert.False(t, normal.RecoveryMode()) // 200%

	recovery := domain.SystemState{Total: domain.NewTrove(d("100"), d("100000")), Price: d("1400")}
	assert.True(t, recovery.RecoveryMode()) // 140%
}

func TestHaveUndercollateralizedTroves(t *testing.T) {
	normal := domain.SystemState{Total: domain.NewTrove(d("100"), d("100000")), Price: d("2000")}

	assert.True(t, domain.HaveUndercollateralizedTroves(normal, domain.NewTrove(d("1"), d("2000"))))
	assert.False(t, domain.HaveUndercollateralizedTroves(normal, domain.NewTrove(d("2"), d("2000"))))
	assert.False(t, domain.HaveUndercollateralizedTroves(normal, domain.Trove{}))

	recovery := domain.SystemState{Total: domain.NewTrove(d("100"), d("100000")), Price: d("1400")}
	// NCR 0.0012 > total NCR 0.001
	assert.False(t, domain.HaveUndercollateralizedTroves(recovery, domain.NewTrove(d("1.2"), d("1000"))))
	// NCR 0.0009 < total NCR 0.001, even though ICR 126% is above the minimum
	assert.True(t, domain.HaveUndercollateralizedTroves(recovery, domain.NewTrove(d("0.9"), d("1000"))))
}

func TestSumTrovesAndOwners(t *testing.T) {
	troves := []domain.Candidate{
		{Trove: domain.NewTrove(d("1"), d("10"))},
		{Trove: domain.NewTrove(d("2"), d("20"))},
	}
	troves[0].Owner[19] = 1
	troves[1].Owner[19] = 2

	sum := domain.SumTroves(troves)
	assert.True(t, d("3").Equal(sum.Collateral))
	assert.True(t, d("30").Equal(sum.Debt))

	owners := domain.Owners(troves)
	assert.Equal(t, troves[0].Owner, owners[0])
	assert.Equal(t, troves[1].Owner, owners[1])
}

func TestLiquidationOutcome_RoundTrip(t *testing.T) {
	for o := domain.OutcomeNothingToLiquidate; o <= domain.OutcomeSuccess; o++ {
		parsed, err := domain.ParseLiquidationOutcome(o.String())
		assert.NoError(t, err)
		assert.Equal(t, o, parsed)
	}
	_, err := domain.ParseLiquidationOutcome("BOGUS")
	assert.Error(t, err)
}

func TestExecutionResult_FailureKinds(t *testing.T) {
	notIncluded := domain.FailedResult(nil)
	assert.True(t, notIncluded.NotIncluded())
	assert.False(t, notIncluded.Reverted())
	assert.False(t, notIncluded.Succeeded())
}
