package domain

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Protocol constants (Liquity v1).
var (
	// MinimumCollateralRatio is the ratio below which a Trove can be liquidated in normal mode.
	MinimumCollateralRatio = decimal.RequireFromString("1.1")

	// CriticalCollateralRatio is the total ratio below which the system enters recovery mode.
	CriticalCollateralRatio = decimal.RequireFromString("1.5")

	// LUSDLiquidationReserve is the fixed debt-token compensation paid per liquidated Trove.
	LUSDLiquidationReserve = decimal.NewFromInt(200)

	// MaxRatio stands in for the ratio of a Trove without debt.
	MaxRatio = decimal.New(1, 60)
)

// CollateralGasCompensationDivisor: 1/200 = 0.5% of the collateral goes to the liquidator.
const CollateralGasCompensationDivisor = 200

// Trove is a collateral/debt position. Collateral is in ETH, debt in LUSD.
type Trove struct {
	Collateral decimal.Decimal
	Debt       decimal.Decimal
}

// NewTrove builds a Trove from its collateral and debt.
func NewTrove(collateral, debt decimal.Decimal) Trove {
	return Trove{Collateral: collateral, Debt: debt}
}

// IsEmpty returns true when the Trove holds neither collateral nor debt.
func (t Trove) IsEmpty() bool {
	return t.Collateral.IsZero() && t.Debt.IsZero()
}

// Add returns the component-wise sum.
func (t Trove) Add(o Trove) Trove {
	return Trove{Collateral: t.Collateral.Add(o.Collateral), Debt: t.Debt.Add(o.Debt)}
}

// Subtract returns the component-wise difference. Callers must not subtract more than t holds.
func (t Trove) Subtract(o Trove) Trove {
	return Trove{Collateral: t.Collateral.Sub(o.Collateral), Debt: t.Debt.Sub(o.Debt)}
}

// SubtractCollateral returns a copy with collateral reduced by amount.
func (t Trove) SubtractCollateral(amount decimal.Decimal) Trove {
	return Trove{Collateral: t.Collateral.Sub(amount), Debt: t.Debt}
}

// SubtractDebt returns a copy with debt reduced by amount.
func (t Trove) SubtractDebt(amount decimal.Decimal) Trove {
	return Trove{Collateral: t.Collateral, Debt: t.Debt.Sub(amount)}
}

// CollateralRatio = collateral × price / debt. MaxRatio when there is no debt.
func (t Trove) CollateralRatio(price decimal.Decimal) decimal.Decimal {
	if t.Debt.IsZero() {
		return MaxRatio
	}
	return t.Collateral.Mul(price).Div(t.Debt)
}

// NominalCollateralRatio = collateral / debt, independent of price.
func (t Trove) NominalCollateralRatio() decimal.Decimal {
	if t.Debt.IsZero() {
		return MaxRatio
	}
	return t.Collateral.Div(t.Debt)
}

// CollateralRatioIsBelowMinimum returns true if the Trove is liquidatable in normal mode.
func (t Trove) CollateralRatioIsBelowMinimum(price decimal.Decimal) bool {
	return t.CollateralRatio(price).LessThan(MinimumCollateralRatio)
}

// CollateralRatioIsBelowCritical returns true if the ratio is under the recovery mode threshold.
func (t Trove) CollateralRatioIsBelowCritical(price decimal.Decimal) bool {
	return t.CollateralRatio(price).LessThan(CriticalCollateralRatio)
}

// ApplyRedistribution adds the debt and collateral redistributed to this Trove since its
// last snapshot: stake × (totalRedistributed − snapshot).
func (t Trove) ApplyRedistribution(stake decimal.Decimal, snapshot, totalRedistributed Trove) Trove {
	pending := totalRedistributed.Subtract(snapshot)
	return t.Add(Trove{
		Collateral: stake.Mul(pending.Collateral),
		Debt:       stake.Mul(pending.Debt),
	})
}

// Candidate is a Trove together with its owner. Candidates are never mutated once listed.
type Candidate struct {
	Owner common.Address
	Trove
}

// SumTroves returns the aggregate of the given candidates.
func SumTroves(candidates []Candidate) Trove {
	total := Trove{}
	for _, c := range candidates {
		total = total.Add(c.Trove)
	}
	return total
}

// Owners returns the owner addresses in order.
func Owners(candidates []Candidate) []common.Address {
	addrs := make([]common.Address, len(candidates))
	for i, c := range candidates {
		addrs[i] = c.Owner
	}
	return addrs
}
