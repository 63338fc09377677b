package domain_test

import (
	"math/big"
	"testing"

	"github.com/alejandrodnm/liqbot/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func gwei(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000_000))
}

func TestLiquidationGasLimit(t *testing.T) {
	assert.Equal(t, uint64(500_000), domain.LiquidationGasLimit(0))
	assert.Equal(t, uint64(2_500_000), domain.LiquidationGasLimit(10))
}

func TestMaxFeePerGas(t *testing.T) {
	assert.Equal(t, gwei(65), domain.MaxFeePerGas(gwei(30), gwei(5)))
}

func TestWorstCaseCost(t *testing.T) {
	// 100 gwei × 1M gas = 0.1 ETH @ 2000 = $200
	cost := domain.WorstCaseCost(gwei(100), 1_000_000, d("2000"))
	assert.True(t, d("200").Equal(cost), cost.String())
}

func TestExpectedCompensation(t *testing.T) {
	troves := []domain.Candidate{
		{Trove: domain.NewTrove(d("10"), d("15000"))},
		{Trove: domain.NewTrove(d("30"), d("45000"))},
	}

	// 40 ETH × 2000 / 200 = $400, plus 2 × 200 LUSD
	got := domain.ExpectedCompensation(troves, d("2000"), decimal.Zero)
	assert.True(t, d("800").Equal(got), got.String())

	// 10% miner cut on the collateral part only
	got = domain.ExpectedCompensation(troves, d("2000"), d("0.1"))
	assert.True(t, d("760").Equal(got), got.String())
}

func TestShouldSkip(t *testing.T) {
	assert.True(t, domain.ShouldSkip(d("100.01"), d("100")))
	assert.False(t, domain.ShouldSkip(d("100"), d("100")))
	assert.False(t, domain.ShouldSkip(d("50"), d("100")))

	// pure: same inputs, same answer
	for i := 0; i < 3; i++ {
		assert.True(t, domain.ShouldSkip(d("7"), d("6")))
	}
}

func TestHighCostScenario(t *testing.T) {
	// baseFee 200 gwei, priority 5 gwei → maxFee 405 gwei; one Trove → 700K gas
	maxFee := domain.MaxFeePerGas(gwei(200), gwei(5))
	gasLimit := domain.LiquidationGasLimit(1)
	cost := domain.WorstCaseCost(maxFee, gasLimit, d("2000"))

	troves := []domain.Candidate{{Trove: domain.NewTrove(d("1"), d("1900"))}}
	compensation := domain.ExpectedCompensation(troves, d("2000"), decimal.Zero)

	// 0.2835 ETH × 2000 = $567 > $210
	assert.True(t, d("567").Equal(cost), cost.String())
	assert.True(t, d("210").Equal(compensation), compensation.String())
	assert.True(t, domain.ShouldSkip(cost, compensation))
}

func TestWeiConversions(t *testing.T) {
	wei, _ := new(big.Int).SetString("1500000000000000000", 10)
	assert.True(t, d("1.5").Equal(domain.WeiToEther(wei)))
	assert.Equal(t, wei, domain.EtherToWei(d("1.5")))
	assert.True(t, domain.WeiToEther(nil).IsZero())
}

func TestRealizedCompensation(t *testing.T) {
	details := domain.ExecutionDetails{
		LiquidationDetails: domain.LiquidationDetails{
			CollateralGasCompensation: d("0.2"),
			LUSDGasCompensation:       d("400"),
		},
		MinerCut: d("0.02"),
	}
	// (0.2 − 0.02) × 2000 + 400
	assert.True(t, d("760").Equal(domain.RealizedCompensation(details, d("2000"))))
}
