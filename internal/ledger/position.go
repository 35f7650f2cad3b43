package ledger

import (
	"github.com/google/uuid"

	fpmath "PoolLedger/internal/math"
)

// DepositPosition is an account's claim on the pool.
// Principal is settled as of IndexSnapshot; interest accrued since then
// is folded in by Settle before any mutation touches Principal.
type DepositPosition struct {
	Account       uuid.UUID
	Principal     int64
	IndexSnapshot int64 // Fixed-point: index scale
	LastTouched   int64 // Unix seconds
	Version       int64 // Bumped on every mutation
}

// BorrowPosition is an account's debt plus the collateral locked under
// it. The record is created and destroyed as a unit: a borrow position
// exists iff the account has collateral locked.
type BorrowPosition struct {
	Account        uuid.UUID
	Principal      int64 // Settled debt (includes folded-in interest)
	DrawnPrincipal int64 // Pre-interest principal still counted in TotalBorrows
	IndexSnapshot  int64
	LastTouched    int64

	CollateralAmount int64
	CollateralToken  string

	Version int64
}

// Settle folds interest accrued since IndexSnapshot into Principal and
// re-snapshots. Must run after the pool index is advanced and before
// any principal mutation.
func (d *DepositPosition) Settle(index, now int64) {
	if d.IndexSnapshot != 0 {
		d.Principal += fpmath.AccruedInterest(d.Principal, index, d.IndexSnapshot)
	}
	d.IndexSnapshot = index
	d.LastTouched = now
	d.Version++
}

// ValueAt returns the current settled balance at a projected index
// without mutating the position.
func (d *DepositPosition) ValueAt(index int64) int64 {
	return d.Principal + fpmath.AccruedInterest(d.Principal, index, d.IndexSnapshot)
}

// Settle folds accrued interest into the debt principal.
func (b *BorrowPosition) Settle(index, now int64) {
	if b.IndexSnapshot != 0 {
		b.Principal += fpmath.AccruedInterest(b.Principal, index, b.IndexSnapshot)
	}
	b.IndexSnapshot = index
	b.LastTouched = now
	b.Version++
}

// DebtAt returns the current owed amount at a projected index without
// mutating the position.
func (b *BorrowPosition) DebtAt(index int64) int64 {
	return b.Principal + fpmath.AccruedInterest(b.Principal, index, b.IndexSnapshot)
}

// CanonicalBytes returns deterministic serialization for hashing
func (d *DepositPosition) CanonicalBytes() []byte {
	buf := make([]byte, 0, 64)
	buf = append(buf, d.Account[:]...)
	buf = appendInt64LE(buf, d.Principal)
	buf = appendInt64LE(buf, d.IndexSnapshot)
	buf = appendInt64LE(buf, d.LastTouched)
	return buf
}

// CanonicalBytes returns deterministic serialization for hashing
func (b *BorrowPosition) CanonicalBytes() []byte {
	buf := make([]byte, 0, 96)
	buf = append(buf, b.Account[:]...)
	buf = appendInt64LE(buf, b.Principal)
	buf = appendInt64LE(buf, b.DrawnPrincipal)
	buf = appendInt64LE(buf, b.IndexSnapshot)
	buf = appendInt64LE(buf, b.LastTouched)
	buf = appendInt64LE(buf, b.CollateralAmount)
	buf = append(buf, byte(len(b.CollateralToken)))
	buf = append(buf, []byte(b.CollateralToken)...)
	return buf
}

// Book holds all open positions, keyed by account. One deposit record
// and at most one borrow record per account.
type Book struct {
	deposits map[uuid.UUID]*DepositPosition
	borrows  map[uuid.UUID]*BorrowPosition
}

func NewBook() *Book {
	return &Book{
		deposits: make(map[uuid.UUID]*DepositPosition),
		borrows:  make(map[uuid.UUID]*BorrowPosition),
	}
}

// Deposit returns the account's deposit position, or nil.
func (bk *Book) Deposit(account uuid.UUID) *DepositPosition {
	return bk.deposits[account]
}

// Borrow returns the account's borrow position, or nil.
func (bk *Book) Borrow(account uuid.UUID) *BorrowPosition {
	return bk.borrows[account]
}

// EnsureDeposit returns the account's deposit position, creating an
// empty one snapshotted at the given index on first use.
func (bk *Book) EnsureDeposit(account uuid.UUID, index, now int64) *DepositPosition {
	pos, ok := bk.deposits[account]
	if !ok {
		pos = &DepositPosition{
			Account:       account,
			IndexSnapshot: index,
			LastTouched:   now,
		}
		bk.deposits[account] = pos
	}
	return pos
}

// SetBorrow installs a new borrow position. The caller enforces the
// one-loan-per-account rule before calling.
func (bk *Book) SetBorrow(pos *BorrowPosition) {
	bk.borrows[pos.Account] = pos
}

// CloseBorrow removes a borrow position together with its locked
// collateral record.
func (bk *Book) CloseBorrow(account uuid.UUID) {
	delete(bk.borrows, account)
}

// CloseDeposit logically deletes a zero-balance deposit record.
func (bk *Book) CloseDeposit(account uuid.UUID) {
	delete(bk.deposits, account)
}

// Deposits returns all open deposit positions.
func (bk *Book) Deposits() []*DepositPosition {
	out := make([]*DepositPosition, 0, len(bk.deposits))
	for _, p := range bk.deposits {
		out = append(out, p)
	}
	return out
}

// Borrows returns all open borrow positions.
func (bk *Book) Borrows() []*BorrowPosition {
	out := make([]*BorrowPosition, 0, len(bk.borrows))
	for _, p := range bk.borrows {
		out = append(out, p)
	}
	return out
}

// RestoreDeposit reinstalls a deposit position from a snapshot.
func (bk *Book) RestoreDeposit(pos *DepositPosition) {
	bk.deposits[pos.Account] = pos
}

// RestoreBorrow reinstalls a borrow position from a snapshot.
func (bk *Book) RestoreBorrow(pos *BorrowPosition) {
	bk.borrows[pos.Account] = pos
}
