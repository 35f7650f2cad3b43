package event

import "github.com/google/uuid"

// DepositMade is emitted after a deposit commits.
type DepositMade struct {
	OperationID uuid.UUID
	Account     uuid.UUID
	Amount      int64
	Balance     int64 // Settled deposit balance after the operation
	Index       int64 // Cumulative index at commit
	RatePct     int64 // Annualized rate after the operation
}

func (e *DepositMade) IdempotencyKey() string { return e.OperationID.String() }
func (e *DepositMade) EventType() EventType   { return EventTypeDepositMade }

// WithdrawalMade is emitted after a withdrawal commits.
type WithdrawalMade struct {
	OperationID uuid.UUID
	Account     uuid.UUID
	Amount      int64
	Balance     int64
	Index       int64
	RatePct     int64
}

func (e *WithdrawalMade) IdempotencyKey() string { return e.OperationID.String() }
func (e *WithdrawalMade) EventType() EventType   { return EventTypeWithdrawalMade }

// LoanOpened is emitted when a borrow position is created.
type LoanOpened struct {
	OperationID      uuid.UUID
	Account          uuid.UUID
	BorrowAmount     int64
	CollateralAmount int64
	CollateralToken  string
	CollateralValue  int64 // Haircut valuation at origination
	Index            int64
	RatePct          int64
}

func (e *LoanOpened) IdempotencyKey() string { return e.OperationID.String() }
func (e *LoanOpened) EventType() EventType   { return EventTypeLoanOpened }

// LoanRepaid is emitted on partial or full repayment.
type LoanRepaid struct {
	OperationID   uuid.UUID
	Account       uuid.UUID
	Repaid        int64 // Actual amount pulled (overpayment is capped)
	RemainingDebt int64 // Zero when the position closed
	Closed        bool
	Index         int64
	RatePct       int64
}

func (e *LoanRepaid) IdempotencyKey() string { return e.OperationID.String() }
func (e *LoanRepaid) EventType() EventType   { return EventTypeLoanRepaid }

// LoanLiquidated is emitted when a third party closes out an
// undercollateralized position.
type LoanLiquidated struct {
	OperationID      uuid.UUID
	Liquidator       uuid.UUID
	Borrower         uuid.UUID
	DebtRepaid       int64 // totalDebt at seizure
	Penalty          int64
	CollateralSeized int64
	CollateralToken  string
	Index            int64
	RatePct          int64
}

func (e *LoanLiquidated) IdempotencyKey() string { return e.OperationID.String() }
func (e *LoanLiquidated) EventType() EventType   { return EventTypeLoanLiquidated }

// TokenInfoUpdated is emitted when the operator lists or re-parameterizes
// a collateral token.
type TokenInfoUpdated struct {
	OperationID      uuid.UUID
	Token            string
	IsSupported      bool
	CollateralFactor int64
	Price            int64
}

func (e *TokenInfoUpdated) IdempotencyKey() string { return e.OperationID.String() }
func (e *TokenInfoUpdated) EventType() EventType   { return EventTypeTokenInfoUpdated }

// PriceUpdated is emitted when the operator moves a token price.
type PriceUpdated struct {
	OperationID uuid.UUID
	Token       string
	Price       int64
}

func (e *PriceUpdated) IdempotencyKey() string { return e.OperationID.String() }
func (e *PriceUpdated) EventType() EventType   { return EventTypePriceUpdated }
