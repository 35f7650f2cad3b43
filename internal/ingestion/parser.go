package ingestion

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Command is a typed operation command parsed from a raw NATS message.
type Command interface {
	CommandType() string
}

// ParseRawCommand converts a RawCommand (JSON bytes + operation type
// string) into a typed Command. The shell validates and dispatches the
// result to the engine.
func ParseRawCommand(raw RawCommand, opType string) (Command, error) {
	switch opType {
	case "Deposit":
		return parseDeposit(raw.Data)
	case "Withdraw":
		return parseWithdraw(raw.Data)
	case "Borrow":
		return parseBorrow(raw.Data)
	case "Repay":
		return parseRepay(raw.Data)
	case "Liquidate":
		return parseLiquidate(raw.Data)
	default:
		return nil, fmt.Errorf("unknown operation type: %s", opType)
	}
}

// --- JSON wire formats ---
// Field names use snake_case to match upstream producers.

type depositJSON struct {
	OperationID string `json:"operation_id"`
	Account     string `json:"account"`
	Amount      int64  `json:"amount"`
}

// DepositCommand credits the pool from an account's wallet.
type DepositCommand struct {
	OperationID uuid.UUID
	Account     uuid.UUID
	Amount      int64
}

func (c *DepositCommand) CommandType() string { return "Deposit" }

func parseDeposit(data []byte) (*DepositCommand, error) {
	var j depositJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse Deposit: %w", err)
	}
	opID, err := uuid.Parse(j.OperationID)
	if err != nil {
		return nil, fmt.Errorf("parse operation_id: %w", err)
	}
	account, err := uuid.Parse(j.Account)
	if err != nil {
		return nil, fmt.Errorf("parse account: %w", err)
	}
	return &DepositCommand{
		OperationID: opID,
		Account:     account,
		Amount:      j.Amount,
	}, nil
}

type withdrawJSON struct {
	OperationID string `json:"operation_id"`
	Account     string `json:"account"`
	Amount      int64  `json:"amount"`
}

// WithdrawCommand pays pool funds back out to an account's wallet.
type WithdrawCommand struct {
	OperationID uuid.UUID
	Account     uuid.UUID
	Amount      int64
}

func (c *WithdrawCommand) CommandType() string { return "Withdraw" }

func parseWithdraw(data []byte) (*WithdrawCommand, error) {
	var j withdrawJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse Withdraw: %w", err)
	}
	opID, err := uuid.Parse(j.OperationID)
	if err != nil {
		return nil, fmt.Errorf("parse operation_id: %w", err)
	}
	account, err := uuid.Parse(j.Account)
	if err != nil {
		return nil, fmt.Errorf("parse account: %w", err)
	}
	return &WithdrawCommand{
		OperationID: opID,
		Account:     account,
		Amount:      j.Amount,
	}, nil
}

type borrowJSON struct {
	OperationID      string `json:"operation_id"`
	Account          string `json:"account"`
	BorrowAmount     int64  `json:"borrow_amount"`
	CollateralAmount int64  `json:"collateral_amount"`
	CollateralToken  string `json:"collateral_token"`
}

// BorrowCommand opens a collateralized loan.
type BorrowCommand struct {
	OperationID      uuid.UUID
	Account          uuid.UUID
	BorrowAmount     int64
	CollateralAmount int64
	CollateralToken  string
}

func (c *BorrowCommand) CommandType() string { return "Borrow" }

func parseBorrow(data []byte) (*BorrowCommand, error) {
	var j borrowJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse Borrow: %w", err)
	}
	opID, err := uuid.Parse(j.OperationID)
	if err != nil {
		return nil, fmt.Errorf("parse operation_id: %w", err)
	}
	account, err := uuid.Parse(j.Account)
	if err != nil {
		return nil, fmt.Errorf("parse account: %w", err)
	}
	return &BorrowCommand{
		OperationID:      opID,
		Account:          account,
		BorrowAmount:     j.BorrowAmount,
		CollateralAmount: j.CollateralAmount,
		CollateralToken:  j.CollateralToken,
	}, nil
}

type repayJSON struct {
	OperationID string `json:"operation_id"`
	Account     string `json:"account"`
	Amount      int64  `json:"amount"`
}

// RepayCommand pays down an open loan.
type RepayCommand struct {
	OperationID uuid.UUID
	Account     uuid.UUID
	Amount      int64
}

func (c *RepayCommand) CommandType() string { return "Repay" }

func parseRepay(data []byte) (*RepayCommand, error) {
	var j repayJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse Repay: %w", err)
	}
	opID, err := uuid.Parse(j.OperationID)
	if err != nil {
		return nil, fmt.Errorf("parse operation_id: %w", err)
	}
	account, err := uuid.Parse(j.Account)
	if err != nil {
		return nil, fmt.Errorf("parse account: %w", err)
	}
	return &RepayCommand{
		OperationID: opID,
		Account:     account,
		Amount:      j.Amount,
	}, nil
}

type liquidateJSON struct {
	OperationID string `json:"operation_id"`
	Liquidator  string `json:"liquidator"`
	Borrower    string `json:"borrower"`
}

// LiquidateCommand closes out an undercollateralized position.
type LiquidateCommand struct {
	OperationID uuid.UUID
	Liquidator  uuid.UUID
	Borrower    uuid.UUID
}

func (c *LiquidateCommand) CommandType() string { return "Liquidate" }

func parseLiquidate(data []byte) (*LiquidateCommand, error) {
	var j liquidateJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse Liquidate: %w", err)
	}
	opID, err := uuid.Parse(j.OperationID)
	if err != nil {
		return nil, fmt.Errorf("parse operation_id: %w", err)
	}
	liquidator, err := uuid.Parse(j.Liquidator)
	if err != nil {
		return nil, fmt.Errorf("parse liquidator: %w", err)
	}
	borrower, err := uuid.Parse(j.Borrower)
	if err != nil {
		return nil, fmt.Errorf("parse borrower: %w", err)
	}
	return &LiquidateCommand{
		OperationID: opID,
		Liquidator:  liquidator,
		Borrower:    borrower,
	}, nil
}
