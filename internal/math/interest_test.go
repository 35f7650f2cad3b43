package math_test

import (
	"testing"

	fpmath "PoolLedger/internal/math"
)

// ============================================================================
// Test: Utilization and rate
// ============================================================================

func TestComputeUtilization_AccrualDenominator(t *testing.T) {
	// The accrual path divides by totalDeposits+1.
	cases := []struct {
		borrows, deposits, want int64
	}{
		{0, 0, 0},
		{0, 1_000, 0},
		{500, 1_000, 49}, // 50000/1001 truncates to 49
		{1_000, 1_000, 99},
		{1_000, 0, 100_000}, // degenerate, bounded by the +1
	}
	for _, c := range cases {
		if got := fpmath.ComputeUtilization(c.borrows, c.deposits); got != c.want {
			t.Errorf("ComputeUtilization(%d, %d): got %d, want %d", c.borrows, c.deposits, got, c.want)
		}
	}
}

func TestComputeViewUtilization_PlainDenominator(t *testing.T) {
	cases := []struct {
		borrows, deposits, want int64
	}{
		{0, 0, 0}, // empty pool reads as zero, not an error
		{500, 1_000, 50},
		{1_000, 1_000, 100},
	}
	for _, c := range cases {
		if got := fpmath.ComputeViewUtilization(c.borrows, c.deposits); got != c.want {
			t.Errorf("ComputeViewUtilization(%d, %d): got %d, want %d", c.borrows, c.deposits, got, c.want)
		}
	}
}

func TestUtilization_PathsDisagreeByDesign(t *testing.T) {
	// 500/1000: the accrual path under-states by one point.
	accrual := fpmath.ComputeUtilization(500, 1_000)
	view := fpmath.ComputeViewUtilization(500, 1_000)
	if accrual != 49 || view != 50 {
		t.Errorf("expected accrual=49 view=50, got accrual=%d view=%d", accrual, view)
	}
}

func TestComputeRate(t *testing.T) {
	cases := []struct {
		utilization, want int64
	}{
		{0, 5},    // base rate floor
		{49, 14},  // 5 + 980/100
		{50, 15},
		{100, 25}, // full utilization
	}
	for _, c := range cases {
		if got := fpmath.ComputeRate(c.utilization); got != c.want {
			t.Errorf("ComputeRate(%d): got %d, want %d", c.utilization, got, c.want)
		}
	}
}

// ============================================================================
// Test: Index accrual
// ============================================================================

func TestAccrueIndex_OneYearAtBaseRate(t *testing.T) {
	got := fpmath.AccrueIndex(fpmath.IndexScale, 5, fpmath.SecondsPerYear)
	want := fpmath.IndexScale + fpmath.IndexScale*5/100
	if got != want {
		t.Errorf("got %d, want %d", got, want)
	}
}

func TestAccrueIndex_ZeroElapsed_NoOp(t *testing.T) {
	index := fpmath.IndexScale + 12345
	if got := fpmath.AccrueIndex(index, 25, 0); got != index {
		t.Errorf("zero elapsed moved the index: %d", got)
	}
	if got := fpmath.AccrueIndex(index, 25, -10); got != index {
		t.Errorf("negative elapsed moved the index: %d", got)
	}
}

func TestAccrueIndex_NonDecreasing(t *testing.T) {
	index := fpmath.IndexScale
	for _, elapsed := range []int64{1, 60, 3_600, 86_400, fpmath.SecondsPerYear} {
		next := fpmath.AccrueIndex(index, 14, elapsed)
		if next < index {
			t.Fatalf("index decreased over %ds: %d -> %d", elapsed, index, next)
		}
		index = next
	}
}

func TestAccrueIndex_SubSecondGranularity(t *testing.T) {
	// One second at 5% on a unit index: 1e12 * 5 / (31536000 * 100)
	// truncates to 1585.
	got := fpmath.AccrueIndex(fpmath.IndexScale, 5, 1)
	if got != fpmath.IndexScale+1_585 {
		t.Errorf("got %d, want %d", got, fpmath.IndexScale+1_585)
	}
}

// ============================================================================
// Test: Interest and valuation
// ============================================================================

func TestAccruedInterest(t *testing.T) {
	index := fpmath.IndexScale + fpmath.IndexScale*5/100

	if got := fpmath.AccruedInterest(1_000, index, fpmath.IndexScale); got != 50 {
		t.Errorf("got %d, want 50", got)
	}
	// Zero snapshot means the position has never settled; nothing accrues.
	if got := fpmath.AccruedInterest(1_000, index, 0); got != 0 {
		t.Errorf("zero snapshot: got %d, want 0", got)
	}
	// Equal or regressed index accrues nothing.
	if got := fpmath.AccruedInterest(1_000, index, index); got != 0 {
		t.Errorf("equal index: got %d, want 0", got)
	}
	if got := fpmath.AccruedInterest(1_000, fpmath.IndexScale, index); got != 0 {
		t.Errorf("regressed index: got %d, want 0", got)
	}
}

func TestCollateralValue(t *testing.T) {
	priceScale := fpmath.PriceConfig.Scale

	cases := []struct {
		amount, price, factor, want int64
	}{
		{1_500, priceScale, 100, 1_500},    // unit price, no haircut
		{3_000, priceScale, 50, 1_500},     // 50% haircut
		{1_500, 800_000, 100, 1_200},       // 0.80 per unit
		{1_500, 799_000, 100, 1_198},       // truncates 1198.5
		{1_000, 2 * priceScale, 80, 1_600}, // 2.00 per unit, 80% factor
		{0, priceScale, 100, 0},
		{1_000, priceScale, 0, 0}, // zero factor values nothing
	}
	for _, c := range cases {
		if got := fpmath.CollateralValue(c.amount, c.price, c.factor); got != c.want {
			t.Errorf("CollateralValue(%d, %d, %d): got %d, want %d", c.amount, c.price, c.factor, got, c.want)
		}
	}
}

// ============================================================================
// Test: Fixed-point primitives
// ============================================================================

func TestMulDiv_TruncatesTowardZero(t *testing.T) {
	if got := fpmath.MulDiv(7, 3, 2); got != 10 {
		t.Errorf("7*3/2: got %d, want 10", got)
	}
	if got := fpmath.MulDiv(-7, 3, 2); got != -10 {
		t.Errorf("-7*3/2: got %d, want -10", got)
	}
}

func TestMulDiv_WideIntermediate(t *testing.T) {
	// a*b overflows int64; the 128-bit intermediate keeps it exact.
	a := int64(1 << 62)
	if got := fpmath.MulDiv(a, 100, 100); got != a {
		t.Errorf("got %d, want %d", got, a)
	}

	index := fpmath.IndexScale * 2
	if got := fpmath.MulDiv(index, fpmath.IndexScale, fpmath.IndexScale); got != index {
		t.Errorf("got %d, want %d", got, index)
	}
}
