package ledger

import fpmath "PoolLedger/internal/math"

// PoolState is the singleton aggregate the whole venue accounts against.
// Exactly one borrow/lend asset; collateral assets live in the registry.
type PoolState struct {
	TotalDeposits   int64
	TotalBorrows    int64
	CumulativeIndex int64 // Fixed-point: index scale
	LastUpdate      int64 // Unix seconds of last index advance
}

// NewPoolState returns an empty pool with the index at 1.0.
func NewPoolState(now int64) *PoolState {
	return &PoolState{
		CumulativeIndex: fpmath.IndexScale,
		LastUpdate:      now,
	}
}

// AvailableLiquidity returns the unborrowed reserve.
func (p *PoolState) AvailableLiquidity() int64 {
	return p.TotalDeposits - p.TotalBorrows
}

// Advance brings the cumulative index current. No-op when now is not
// past the last update, so repeated calls within the same second are
// idempotent. Returns true if the index moved.
func (p *PoolState) Advance(now int64) bool {
	if now <= p.LastUpdate {
		return false
	}

	utilization := fpmath.ComputeUtilization(p.TotalBorrows, p.TotalDeposits)
	rate := fpmath.ComputeRate(utilization)

	next := fpmath.AccrueIndex(p.CumulativeIndex, rate, now-p.LastUpdate)
	moved := next != p.CumulativeIndex

	p.CumulativeIndex = next
	p.LastUpdate = now
	return moved
}

// ProjectIndex returns the index as it would stand after Advance(now),
// without committing. Used by the read-only views.
func (p *PoolState) ProjectIndex(now int64) int64 {
	if now <= p.LastUpdate {
		return p.CumulativeIndex
	}
	utilization := fpmath.ComputeUtilization(p.TotalBorrows, p.TotalDeposits)
	rate := fpmath.ComputeRate(utilization)
	return fpmath.AccrueIndex(p.CumulativeIndex, rate, now-p.LastUpdate)
}

// ViewRate returns the annualized rate in whole percent as the
// read-only view reports it (plain-denominator utilization).
func (p *PoolState) ViewRate() int64 {
	return fpmath.ComputeRate(fpmath.ComputeViewUtilization(p.TotalBorrows, p.TotalDeposits))
}

// CanonicalBytes returns deterministic serialization for hashing
func (p *PoolState) CanonicalBytes() []byte {
	buf := make([]byte, 0, 32)
	buf = appendInt64LE(buf, p.TotalDeposits)
	buf = appendInt64LE(buf, p.TotalBorrows)
	buf = appendInt64LE(buf, p.CumulativeIndex)
	buf = appendInt64LE(buf, p.LastUpdate)
	return buf
}

func appendInt64LE(buf []byte, v int64) []byte {
	return append(buf,
		byte(v),
		byte(v>>8),
		byte(v>>16),
		byte(v>>24),
		byte(v>>32),
		byte(v>>40),
		byte(v>>48),
		byte(v>>56),
	)
}
