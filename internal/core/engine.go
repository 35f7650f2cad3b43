package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"PoolLedger/internal/event"
	"PoolLedger/internal/ledger"
	fpmath "PoolLedger/internal/math"
	"PoolLedger/internal/observability"
	"PoolLedger/internal/transfer"
)

// Engine is the single-writer lending ledger. Every public operation
// runs under one guard from validation through commit, so no reentrant
// call, including one arriving through the external transfer service,
// can observe a half-updated ledger.
//
// Operation shape: advance index → settle touched position → validate →
// external transfers → mutate principals and totals → commit. External
// transfers happen before any principal mutation, so a transfer
// rejection aborts with no partial effect.
type Engine struct {
	mu sync.Mutex

	sequence    int64
	pool        *ledger.PoolState
	book        *ledger.Book
	registry    *ledger.TokenRegistry
	transfers   transfer.Service
	hasher      *StateHasher
	idempotency *IdempotencyChecker
	metrics     *observability.Metrics

	// clock supplies operation timestamps; injected in tests.
	clock func() time.Time

	// lendAsset is the single borrow/lend asset of the pool.
	lendAsset string

	persistChan chan<- Output
	notifyChan  chan<- Output
}

// Output is a committed operation ready for the persistence worker
// (blocking channel, no loss) and the notify publisher (non-blocking,
// drop on full).
type Output struct {
	Envelope *event.EventEnvelope
	Payload  event.Event

	// Pool totals after the operation, for the stats projection.
	TotalDeposits int64
	TotalBorrows  int64
}

func NewEngine(
	startSequence int64,
	lendAsset string,
	transfers transfer.Service,
	dbChecker DBIdempotencyChecker,
	metrics *observability.Metrics,
	persistChan, notifyChan chan<- Output,
) *Engine {
	return &Engine{
		sequence:    startSequence,
		pool:        ledger.NewPoolState(time.Now().Unix()),
		book:        ledger.NewBook(),
		registry:    ledger.NewTokenRegistry(),
		transfers:   transfers,
		hasher:      NewStateHasher(),
		idempotency: NewIdempotencyChecker(1_000_000, dbChecker),
		metrics:     metrics,
		clock:       time.Now,
		lendAsset:   lendAsset,
		persistChan: persistChan,
		notifyChan:  notifyChan,
	}
}

// SetClock replaces the time source and realigns the pool's accrual
// origin with it. Tests use this to drive accrual deterministically.
func (e *Engine) SetClock(clock func() time.Time) {
	e.clock = clock
	e.pool.LastUpdate = clock().Unix()
}

// LendAsset returns the pool's borrow/lend asset symbol.
func (e *Engine) LendAsset() string {
	return e.lendAsset
}

// Deposit pulls amount of the lending asset from the account into the
// pool and credits the account's settled deposit position.
func (e *Engine) Deposit(ctx context.Context, opID, account uuid.UUID, amount int64) (*event.DepositMade, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	if err := e.checkDuplicate(event.EventTypeDepositMade, opID); err != nil {
		return nil, err
	}
	if amount <= 0 {
		return nil, e.reject(event.EventTypeDepositMade, ErrInvalidAmount)
	}

	now := e.clock().Unix()
	e.pool.Advance(now)

	pos := e.book.EnsureDeposit(account, e.pool.CumulativeIndex, now)
	pos.Settle(e.pool.CumulativeIndex, now)

	if err := e.transfers.TransferIn(ctx, e.lendAsset, account, amount); err != nil {
		return nil, e.reject(event.EventTypeDepositMade, fmt.Errorf("%w: %v", ErrTransferFailed, err))
	}

	pos.Principal += amount
	e.pool.TotalDeposits += amount

	evt := &event.DepositMade{
		OperationID: opID,
		Account:     account,
		Amount:      amount,
		Balance:     pos.Principal,
		Index:       e.pool.CumulativeIndex,
		RatePct:     e.pool.ViewRate(),
	}
	e.commit(evt, now, start, pos.CanonicalBytes())
	return evt, nil
}

// Withdraw pays amount of the lending asset out of the pool, bounded by
// the account's settled balance and by the pool's unborrowed reserve.
func (e *Engine) Withdraw(ctx context.Context, opID, account uuid.UUID, amount int64) (*event.WithdrawalMade, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	if err := e.checkDuplicate(event.EventTypeWithdrawalMade, opID); err != nil {
		return nil, err
	}
	if amount <= 0 {
		return nil, e.reject(event.EventTypeWithdrawalMade, ErrInvalidAmount)
	}

	pos := e.book.Deposit(account)
	if pos == nil {
		return nil, e.reject(event.EventTypeWithdrawalMade, ErrNoPosition)
	}

	now := e.clock().Unix()
	e.pool.Advance(now)
	pos.Settle(e.pool.CumulativeIndex, now)

	if amount > pos.Principal {
		return nil, e.reject(event.EventTypeWithdrawalMade, ErrInsufficientBalance)
	}
	// The pool cannot pay out more than its unborrowed reserve.
	if amount > e.pool.AvailableLiquidity() {
		return nil, e.reject(event.EventTypeWithdrawalMade, ErrInsufficientLiquidity)
	}

	if err := e.transfers.TransferOut(ctx, e.lendAsset, account, amount); err != nil {
		return nil, e.reject(event.EventTypeWithdrawalMade, fmt.Errorf("%w: %v", ErrTransferFailed, err))
	}

	pos.Principal -= amount
	e.pool.TotalDeposits -= amount

	balance := pos.Principal
	if pos.Principal == 0 {
		e.book.CloseDeposit(account)
	}

	evt := &event.WithdrawalMade{
		OperationID: opID,
		Account:     account,
		Amount:      amount,
		Balance:     balance,
		Index:       e.pool.CumulativeIndex,
		RatePct:     e.pool.ViewRate(),
	}
	e.commit(evt, now, start, pos.CanonicalBytes())
	return evt, nil
}

// Borrow locks collateral and pays out borrowAmount of the lending
// asset. One open loan per account; collateral value after the factor
// haircut must cover the 150% origination ratio.
func (e *Engine) Borrow(ctx context.Context, opID, account uuid.UUID, borrowAmount, collateralAmount int64, collateralToken string) (*event.LoanOpened, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	if err := e.checkDuplicate(event.EventTypeLoanOpened, opID); err != nil {
		return nil, err
	}
	if borrowAmount <= 0 || collateralAmount <= 0 {
		return nil, e.reject(event.EventTypeLoanOpened, ErrInvalidAmount)
	}

	info, ok := e.registry.Get(collateralToken)
	if !ok || !info.IsSupported {
		return nil, e.reject(event.EventTypeLoanOpened, ErrUnsupportedAsset)
	}
	if e.book.Borrow(account) != nil {
		return nil, e.reject(event.EventTypeLoanOpened, ErrLoanExists)
	}

	now := e.clock().Unix()
	e.pool.Advance(now)

	collateralValue := fpmath.CollateralValue(collateralAmount, info.Price, info.CollateralFactor)
	required := fpmath.MulDiv(borrowAmount, fpmath.CollateralRatioPct, 100)
	if collateralValue < required {
		return nil, e.reject(event.EventTypeLoanOpened, ErrInsufficientCollateral)
	}
	if borrowAmount > e.pool.AvailableLiquidity() {
		return nil, e.reject(event.EventTypeLoanOpened, ErrInsufficientLiquidity)
	}

	if err := e.transfers.TransferIn(ctx, collateralToken, account, collateralAmount); err != nil {
		return nil, e.reject(event.EventTypeLoanOpened, fmt.Errorf("%w: %v", ErrTransferFailed, err))
	}
	if err := e.transfers.TransferOut(ctx, e.lendAsset, account, borrowAmount); err != nil {
		// Unwind the collateral pull so the rejection has no effect.
		if refundErr := e.transfers.TransferOut(ctx, collateralToken, account, collateralAmount); refundErr != nil {
			return nil, e.reject(event.EventTypeLoanOpened,
				fmt.Errorf("%w: payout failed (%v) and collateral refund failed (%v)", ErrTransferFailed, err, refundErr))
		}
		return nil, e.reject(event.EventTypeLoanOpened, fmt.Errorf("%w: %v", ErrTransferFailed, err))
	}

	pos := &ledger.BorrowPosition{
		Account:          account,
		Principal:        borrowAmount,
		DrawnPrincipal:   borrowAmount,
		IndexSnapshot:    e.pool.CumulativeIndex,
		LastTouched:      now,
		CollateralAmount: collateralAmount,
		CollateralToken:  collateralToken,
	}
	e.book.SetBorrow(pos)
	e.pool.TotalBorrows += borrowAmount

	evt := &event.LoanOpened{
		OperationID:      opID,
		Account:          account,
		BorrowAmount:     borrowAmount,
		CollateralAmount: collateralAmount,
		CollateralToken:  collateralToken,
		CollateralValue:  collateralValue,
		Index:            e.pool.CumulativeIndex,
		RatePct:          e.pool.ViewRate(),
	}
	e.commit(evt, now, start, pos.CanonicalBytes())
	return evt, nil
}

// Repay settles the loan and pulls min(repayAmount, totalDebt) from the
// account; overpayment is capped, never charged. Full repayment closes
// the position and returns all collateral. Interest paid in is not
// credited back into TotalDeposits; TotalBorrows only ever tracks drawn
// principal.
func (e *Engine) Repay(ctx context.Context, opID, account uuid.UUID, repayAmount int64) (*event.LoanRepaid, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	if err := e.checkDuplicate(event.EventTypeLoanRepaid, opID); err != nil {
		return nil, err
	}
	if repayAmount <= 0 {
		return nil, e.reject(event.EventTypeLoanRepaid, ErrInvalidAmount)
	}

	pos := e.book.Borrow(account)
	if pos == nil {
		return nil, e.reject(event.EventTypeLoanRepaid, ErrNoPosition)
	}

	now := e.clock().Unix()
	e.pool.Advance(now)
	pos.Settle(e.pool.CumulativeIndex, now)

	totalDebt := pos.Principal
	actualRepay := repayAmount
	if actualRepay > totalDebt {
		actualRepay = totalDebt
	}

	if err := e.transfers.TransferIn(ctx, e.lendAsset, account, actualRepay); err != nil {
		return nil, e.reject(event.EventTypeLoanRepaid, fmt.Errorf("%w: %v", ErrTransferFailed, err))
	}

	closed := actualRepay >= totalDebt

	if closed {
		if err := e.transfers.TransferOut(ctx, pos.CollateralToken, account, pos.CollateralAmount); err != nil {
			// Return the repayment so the rejection has no effect.
			if refundErr := e.transfers.TransferOut(ctx, e.lendAsset, account, actualRepay); refundErr != nil {
				return nil, e.reject(event.EventTypeLoanRepaid,
					fmt.Errorf("%w: collateral return failed (%v) and repayment refund failed (%v)", ErrTransferFailed, err, refundErr))
			}
			return nil, e.reject(event.EventTypeLoanRepaid, fmt.Errorf("%w: %v", ErrTransferFailed, err))
		}

		e.pool.TotalBorrows -= pos.DrawnPrincipal
		e.book.CloseBorrow(account)
	} else {
		// Repayment is attributed interest-first; only the principal
		// portion releases pool liquidity.
		interestOutstanding := pos.Principal - pos.DrawnPrincipal
		if interestOutstanding < 0 {
			interestOutstanding = 0
		}
		principalPortion := actualRepay - interestOutstanding
		if principalPortion < 0 {
			principalPortion = 0
		}
		if principalPortion > pos.DrawnPrincipal {
			principalPortion = pos.DrawnPrincipal
		}

		pos.Principal -= actualRepay
		pos.DrawnPrincipal -= principalPortion
		e.pool.TotalBorrows -= principalPortion
		pos.Version++
	}

	remaining := int64(0)
	if !closed {
		remaining = pos.Principal
	}

	evt := &event.LoanRepaid{
		OperationID:   opID,
		Account:       account,
		Repaid:        actualRepay,
		RemainingDebt: remaining,
		Closed:        closed,
		Index:         e.pool.CumulativeIndex,
		RatePct:       e.pool.ViewRate(),
	}
	e.commit(evt, now, start, pos.CanonicalBytes())
	return evt, nil
}

// Liquidate lets any party close a borrow position whose collateral
// value has fallen below 120% of debt. The liquidator pays debt plus a
// 5% penalty and receives the entire posted collateral: all-or-nothing
// seizure, not a proportional slice.
func (e *Engine) Liquidate(ctx context.Context, opID, liquidator, borrower uuid.UUID) (*event.LoanLiquidated, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	if err := e.checkDuplicate(event.EventTypeLoanLiquidated, opID); err != nil {
		return nil, err
	}

	pos := e.book.Borrow(borrower)
	if pos == nil {
		return nil, e.reject(event.EventTypeLoanLiquidated, ErrNoPosition)
	}

	now := e.clock().Unix()
	e.pool.Advance(now)
	pos.Settle(e.pool.CumulativeIndex, now)

	totalDebt := pos.Principal

	var collateralValue int64
	if info, ok := e.registry.Get(pos.CollateralToken); ok {
		collateralValue = fpmath.CollateralValue(pos.CollateralAmount, info.Price, info.CollateralFactor)
	}

	// Seizable only strictly below the threshold; at exactly 120% the
	// position is under-margined but not yet liquidatable.
	threshold := fpmath.MulDiv(totalDebt, fpmath.LiquidationThresholdPct, 100)
	if collateralValue >= threshold {
		return nil, e.reject(event.EventTypeLoanLiquidated, ErrNotLiquidatable)
	}

	penalty := fpmath.MulDiv(totalDebt, fpmath.LiquidationPenaltyPct, 100)

	if err := e.transfers.TransferIn(ctx, e.lendAsset, liquidator, totalDebt+penalty); err != nil {
		return nil, e.reject(event.EventTypeLoanLiquidated, fmt.Errorf("%w: %v", ErrTransferFailed, err))
	}
	if err := e.transfers.TransferOut(ctx, pos.CollateralToken, liquidator, pos.CollateralAmount); err != nil {
		if refundErr := e.transfers.TransferOut(ctx, e.lendAsset, liquidator, totalDebt+penalty); refundErr != nil {
			return nil, e.reject(event.EventTypeLoanLiquidated,
				fmt.Errorf("%w: seizure payout failed (%v) and refund failed (%v)", ErrTransferFailed, err, refundErr))
		}
		return nil, e.reject(event.EventTypeLoanLiquidated, fmt.Errorf("%w: %v", ErrTransferFailed, err))
	}

	e.pool.TotalBorrows -= pos.DrawnPrincipal
	e.book.CloseBorrow(borrower)

	evt := &event.LoanLiquidated{
		OperationID:      opID,
		Liquidator:       liquidator,
		Borrower:         borrower,
		DebtRepaid:       totalDebt,
		Penalty:          penalty,
		CollateralSeized: pos.CollateralAmount,
		CollateralToken:  pos.CollateralToken,
		Index:            e.pool.CumulativeIndex,
		RatePct:          e.pool.ViewRate(),
	}
	e.commit(evt, now, start, pos.CanonicalBytes())
	if e.metrics != nil {
		e.metrics.Liquidations.Inc()
	}
	return evt, nil
}

// SetTokenInfo lists or re-parameterizes a collateral token. Caller
// authorization is enforced at the admin surface.
func (e *Engine) SetTokenInfo(opID uuid.UUID, token string, supported bool, factorPct, price int64) (*event.TokenInfoUpdated, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	if err := e.checkDuplicate(event.EventTypeTokenInfoUpdated, opID); err != nil {
		return nil, err
	}
	if err := e.registry.SetTokenInfo(token, supported, factorPct, price); err != nil {
		return nil, e.reject(event.EventTypeTokenInfoUpdated, fmt.Errorf("%w: %v", ErrInvalidAmount, err))
	}

	now := e.clock().Unix()
	evt := &event.TokenInfoUpdated{
		OperationID:      opID,
		Token:            token,
		IsSupported:      supported,
		CollateralFactor: factorPct,
		Price:            price,
	}
	e.commit(evt, now, start, nil)
	return evt, nil
}

// UpdatePrice moves the operator-supplied price of a listed token.
func (e *Engine) UpdatePrice(opID uuid.UUID, token string, price int64) (*event.PriceUpdated, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	if err := e.checkDuplicate(event.EventTypePriceUpdated, opID); err != nil {
		return nil, err
	}
	if err := e.registry.UpdatePrice(token, price); err != nil {
		return nil, e.reject(event.EventTypePriceUpdated, fmt.Errorf("%w: %v", ErrUnsupportedAsset, err))
	}

	now := e.clock().Unix()
	evt := &event.PriceUpdated{
		OperationID: opID,
		Token:       token,
		Price:       price,
	}
	e.commit(evt, now, start, nil)
	return evt, nil
}

// --- Views (read-only, no state committed) ---

// DepositBalance returns the account's deposit balance with interest
// accrued up to now, computed against a projected index.
func (e *Engine) DepositBalance(account uuid.UUID) int64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	pos := e.book.Deposit(account)
	if pos == nil {
		return 0
	}
	return pos.ValueAt(e.pool.ProjectIndex(e.clock().Unix()))
}

// BorrowBalance returns the account's debt with interest accrued up to
// now, computed against a projected index.
func (e *Engine) BorrowBalance(account uuid.UUID) int64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	pos := e.book.Borrow(account)
	if pos == nil {
		return 0
	}
	return pos.DebtAt(e.pool.ProjectIndex(e.clock().Unix()))
}

// CollateralBalance returns the collateral locked under the account's
// open loan, zero if none.
func (e *Engine) CollateralBalance(account uuid.UUID) (int64, string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	pos := e.book.Borrow(account)
	if pos == nil {
		return 0, ""
	}
	return pos.CollateralAmount, pos.CollateralToken
}

// CurrentInterestRate returns the annualized rate in whole percent as
// the view path computes it (plain-denominator utilization, zero for an
// empty pool). This intentionally differs from the accrual path's
// +1 denominator.
func (e *Engine) CurrentInterestRate() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pool.ViewRate()
}

// Stats is the protocol-level aggregate projection.
type Stats struct {
	TotalDeposits   int64
	TotalBorrows    int64
	UtilizationPct  int64
	InterestRatePct int64
	CumulativeIndex int64
}

// ProtocolStats returns pool totals plus derived utilization and rate.
func (e *Engine) ProtocolStats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	util := fpmath.ComputeViewUtilization(e.pool.TotalBorrows, e.pool.TotalDeposits)
	return Stats{
		TotalDeposits:   e.pool.TotalDeposits,
		TotalBorrows:    e.pool.TotalBorrows,
		UtilizationPct:  util,
		InterestRatePct: fpmath.ComputeRate(util),
		CumulativeIndex: e.pool.CumulativeIndex,
	}
}

// TokenInfo exposes a registry entry to the query surface.
func (e *Engine) TokenInfo(token string) (*ledger.TokenInfo, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	info, ok := e.registry.Get(token)
	if !ok {
		return nil, false
	}
	cp := *info
	return &cp, true
}

// GetSequence returns the current global sequence number.
func (e *Engine) GetSequence() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sequence
}

// GetStateHash returns the current state hash (chain tip).
func (e *Engine) GetStateHash() [32]byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.hasher.GetPrevHash()
}

// --- Internals ---

func (e *Engine) checkDuplicate(et event.EventType, opID uuid.UUID) error {
	dup, tier := e.idempotency.IsDuplicate(et.String(), opID.String())
	if !dup {
		return nil
	}
	if e.metrics != nil {
		e.metrics.OpsRejected.WithLabelValues(et.String(), "duplicate").Inc()
		e.metrics.IdempotencyDuplicates.WithLabelValues(et.String(), tier).Inc()
	}
	return ErrDuplicateOperation
}

func (e *Engine) reject(et event.EventType, err error) error {
	if e.metrics != nil {
		e.metrics.OpsRejected.WithLabelValues(et.String(), reasonLabel(err)).Inc()
	}
	return err
}

func reasonLabel(err error) string {
	switch {
	case errors.Is(err, ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, ErrUnsupportedAsset):
		return "unsupported_asset"
	case errors.Is(err, ErrLoanExists):
		return "loan_exists"
	case errors.Is(err, ErrInsufficientCollateral):
		return "insufficient_collateral"
	case errors.Is(err, ErrInsufficientLiquidity):
		return "insufficient_liquidity"
	case errors.Is(err, ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, ErrNotLiquidatable):
		return "not_liquidatable"
	case errors.Is(err, ErrNoPosition):
		return "no_position"
	case errors.Is(err, ErrTransferFailed):
		return "transfer_failed"
	default:
		return "other"
	}
}

// commit assigns a sequence, hashes the resulting state, and emits the
// operation to the persist (blocking) and notify (drop on full) channels.
func (e *Engine) commit(evt event.Event, now int64, start time.Time, touched []byte) {
	digest := e.pool.CanonicalBytes()
	digest = append(digest, touched...)

	stateHash := e.hasher.GetPrevHash() // captured before ComputeHash advances the chain
	newHash := e.hasher.ComputeHash(e.sequence, digest)

	envelope := &event.EventEnvelope{
		Sequence:       e.sequence,
		IdempotencyKey: evt.IdempotencyKey(),
		EventType:      evt.EventType(),
		Timestamp:      time.Unix(now, 0).UTC(),
		StateHash:      newHash,
		PrevHash:       stateHash,
	}

	output := Output{
		Envelope:      envelope,
		Payload:       evt,
		TotalDeposits: e.pool.TotalDeposits,
		TotalBorrows:  e.pool.TotalBorrows,
	}

	if e.persistChan != nil {
		// Blocking send. The engine stalls until the persistence worker
		// drains. No committed operation is lost.
		if e.metrics != nil && len(e.persistChan) == cap(e.persistChan) {
			e.metrics.PersistBackpressure.Inc()
		}
		e.persistChan <- output
	}
	if e.notifyChan != nil {
		select {
		case e.notifyChan <- output:
		default:
			// Dropped; observers rebuild from the operation log.
		}
	}

	e.sequence++
	e.idempotency.MarkProcessed(evt.EventType().String(), evt.IdempotencyKey())

	if e.metrics != nil {
		e.metrics.OpsApplied.WithLabelValues(evt.EventType().String()).Inc()
		e.metrics.OpDuration.WithLabelValues(evt.EventType().String()).Observe(time.Since(start).Seconds())
		e.metrics.Sequence.Set(float64(e.sequence))
		e.metrics.CumulativeIndex.Set(float64(e.pool.CumulativeIndex) / float64(fpmath.IndexScale))
		e.metrics.TotalDeposits.Set(float64(e.pool.TotalDeposits))
		e.metrics.TotalBorrows.Set(float64(e.pool.TotalBorrows))

		// Gauges follow the view path, matching /v1/stats.
		util := fpmath.ComputeViewUtilization(e.pool.TotalBorrows, e.pool.TotalDeposits)
		e.metrics.UtilizationPct.Set(float64(util))
		e.metrics.InterestRatePct.Set(float64(fpmath.ComputeRate(util)))
		e.metrics.DedupLRUSize.Set(float64(e.idempotency.lru.Size()))

		if e.persistChan != nil {
			e.metrics.SetChannelMetrics("persist", len(e.persistChan), cap(e.persistChan))
		}
		if e.notifyChan != nil {
			e.metrics.SetChannelMetrics("notify", len(e.notifyChan), cap(e.notifyChan))
		}
	}
}
