package math

import "math/big"

// Money-market constants. Rates are expressed in whole percentage points.
const (
	BaseRatePct       = 5  // annual rate floor at zero utilization
	UtilMultiplierPct = 20 // slope: extra annual % per 100% utilization
	SecondsPerYear    = 31_536_000

	CollateralRatioPct      = 150 // required collateral value per unit borrowed
	LiquidationThresholdPct = 120 // below this, a position is seizable
	LiquidationPenaltyPct   = 5   // surcharge paid by the liquidator
)

// IndexScale is the fixed-point scale of the cumulative interest index.
var IndexScale = IndexConfig.Scale

// ComputeUtilization returns pool utilization in whole percent using the
// accrual-path denominator. The +1 avoids division by zero and slightly
// under-states utilization at low deposits; this is the documented
// behavior of the accrual path, not a bug.
func ComputeUtilization(totalBorrows, totalDeposits int64) int64 {
	return MulDiv(totalBorrows, 100, totalDeposits+1)
}

// ComputeViewUtilization returns utilization in whole percent as the
// read-only rate view reports it: plain denominator, zero for an empty
// pool. This intentionally differs from ComputeUtilization.
func ComputeViewUtilization(totalBorrows, totalDeposits int64) int64 {
	if totalDeposits == 0 {
		return 0
	}
	return MulDiv(totalBorrows, 100, totalDeposits)
}

// ComputeRate returns the annualized borrow rate in whole percent for a
// given utilization percent.
func ComputeRate(utilizationPct int64) int64 {
	return BaseRatePct + utilizationPct*UtilMultiplierPct/100
}

// AccrueIndex advances the cumulative index across an elapsed interval.
// The rate is evaluated at the start of the interval (standard
// money-market simplification: simple interest within the interval,
// compounded at each accrual boundary).
//
//	periodInterest = rate * elapsed / SecondsPerYear / 100   (IndexScale fraction)
//	index' = index + index * periodInterest / IndexScale
func AccrueIndex(index, ratePct, elapsedSeconds int64) int64 {
	if elapsedSeconds <= 0 {
		return index
	}

	// periodInterest at IndexScale
	num := MultiplyInt128(ratePct, elapsedSeconds)
	num.Mul(num, big.NewInt(IndexScale))
	periodInterest := DivideInt128(num, int64(SecondsPerYear)*100)
	putInt128(num)

	delta := MulDiv(index, periodInterest, IndexScale)
	return index + delta
}

// AccruedInterest returns the interest accrued on a principal between
// two index observations: principal * (index - snapshot) / IndexScale.
func AccruedInterest(principal, index, snapshot int64) int64 {
	if snapshot == 0 || index <= snapshot {
		return 0
	}
	return MulDiv(principal, index-snapshot, IndexScale)
}

// CollateralValue converts a collateral amount into protocol units:
// amount * price * factor / 100 / PriceScale, truncating.
func CollateralValue(amount, price, factorPct int64) int64 {
	v := MultiplyInt128(amount, price)
	v.Mul(v, big.NewInt(factorPct))
	result := DivideInt128(v, 100*PriceConfig.Scale)
	putInt128(v)
	return result
}
