package domain

import (
	"math/big"

	"github.com/shopspring/decimal"
)

const (
	// Rough gas requirements of batchLiquidateTroves:
	//   normal mode:   400K + n × 176K (stability pool), 377K + n × 174K (redistribution)
	//   recovery mode: 415K + n × 178K (stability pool), 391K + n × 178K (redistribution)
	// 500K + n × 200K covers all of them, including crossing from recovery to normal mode.
	liquidationBaseGas     = 500_000
	liquidationGasPerTrove = 200_000

	weiDecimals = 18
)

// LiquidationGasLimit returns a gas limit that covers liquidating n Troves in one call.
func LiquidationGasLimit(n int) uint64 {
	return liquidationBaseGas + uint64(n)*liquidationGasPerTrove
}

// MaxFeePerGas = 2 × baseFee + priorityFee. Survives six consecutive full blocks.
func MaxFeePerGas(baseFeePerGas, maxPriorityFeePerGas *big.Int) *big.Int {
	fee := new(big.Int).Mul(baseFeePerGas, big.NewInt(2))
	return fee.Add(fee, maxPriorityFeePerGas)
}

// WeiToEther converts a wei amount into an ether-denominated decimal.
func WeiToEther(wei *big.Int) decimal.Decimal {
	if wei == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(wei, -weiDecimals)
}

// EtherToWei converts an 18-decimal fixed point value into its integer representation.
func EtherToWei(amount decimal.Decimal) *big.Int {
	return amount.Shift(weiDecimals).BigInt()
}

// WorstCaseCost is the most a transaction can cost (maxFeePerGas × gasLimit), in USD.
// Real cost is lower: base fee rarely doubles and unused storage is refunded.
func WorstCaseCost(maxFeePerGas *big.Int, gasLimit uint64, price decimal.Decimal) decimal.Decimal {
	wei := new(big.Int).Mul(maxFeePerGas, new(big.Int).SetUint64(gasLimit))
	return WeiToEther(wei).Mul(price)
}

// ExpectedCompensation is what liquidating the given Troves pays, in USD:
// 0.5% of their collateral minus the miner's cut, plus the LUSD reserve of each Trove.
func ExpectedCompensation(troves []Candidate, price, minerCutRate decimal.Decimal) decimal.Decimal {
	total := SumTroves(troves)
	return total.Collateral.
		Mul(price).
		Div(decimal.NewFromInt(CollateralGasCompensationDivisor)).
		Mul(decimal.NewFromInt(1).Sub(minerCutRate)).
		Add(LUSDLiquidationReserve.Mul(decimal.NewFromInt(int64(len(troves)))))
}

// ShouldSkip returns true when the worst-case cost exceeds the expected compensation.
// Skipping a profitable batch is preferred to executing a loss.
func ShouldSkip(worstCost, expectedCompensation decimal.Decimal) bool {
	return worstCost.GreaterThan(expectedCompensation)
}

// RealizedCompensation is the USD value actually received for a mined liquidation.
// MinerCut is denominated in ETH like the collateral compensation it was taken from.
func RealizedCompensation(details ExecutionDetails, price decimal.Decimal) decimal.Decimal {
	return details.CollateralGasCompensation.
		Sub(details.MinerCut).
		Mul(price).
		Add(details.LUSDGasCompensation)
}
