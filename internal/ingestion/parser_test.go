package ingestion_test

import (
	"encoding/json"
	"testing"
	"time"

	"PoolLedger/internal/ingestion"
)

func rawFromJSON(t *testing.T, v interface{}) ingestion.RawCommand {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return ingestion.RawCommand{
		Subject:   "test",
		Data:      data,
		Timestamp: time.Now(),
		AckFunc:   func() {},
		NakFunc:   func() {},
	}
}

func TestParseDeposit(t *testing.T) {
	payload := map[string]interface{}{
		"operation_id": "550e8400-e29b-41d4-a716-446655440000",
		"account":      "660e8400-e29b-41d4-a716-446655440001",
		"amount":       int64(1_000),
	}

	raw := rawFromJSON(t, payload)
	cmd, err := ingestion.ParseRawCommand(raw, "Deposit")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	dep, ok := cmd.(*ingestion.DepositCommand)
	if !ok {
		t.Fatalf("expected *ingestion.DepositCommand, got %T", cmd)
	}
	if dep.Amount != 1_000 {
		t.Errorf("amount: got %d, want 1000", dep.Amount)
	}
	if dep.OperationID.String() != "550e8400-e29b-41d4-a716-446655440000" {
		t.Errorf("operation_id: got %s", dep.OperationID)
	}
	if dep.CommandType() != "Deposit" {
		t.Errorf("command type: got %s, want Deposit", dep.CommandType())
	}
}

func TestParseWithdraw(t *testing.T) {
	payload := map[string]interface{}{
		"operation_id": "550e8400-e29b-41d4-a716-446655440000",
		"account":      "660e8400-e29b-41d4-a716-446655440001",
		"amount":       int64(400),
	}

	raw := rawFromJSON(t, payload)
	cmd, err := ingestion.ParseRawCommand(raw, "Withdraw")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	wd, ok := cmd.(*ingestion.WithdrawCommand)
	if !ok {
		t.Fatalf("expected *ingestion.WithdrawCommand, got %T", cmd)
	}
	if wd.Amount != 400 {
		t.Errorf("amount: got %d, want 400", wd.Amount)
	}
}

func TestParseBorrow(t *testing.T) {
	payload := map[string]interface{}{
		"operation_id":      "550e8400-e29b-41d4-a716-446655440000",
		"account":           "660e8400-e29b-41d4-a716-446655440001",
		"borrow_amount":     int64(1_000),
		"collateral_amount": int64(1_500),
		"collateral_token":  "ETH",
	}

	raw := rawFromJSON(t, payload)
	cmd, err := ingestion.ParseRawCommand(raw, "Borrow")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	bw, ok := cmd.(*ingestion.BorrowCommand)
	if !ok {
		t.Fatalf("expected *ingestion.BorrowCommand, got %T", cmd)
	}
	if bw.BorrowAmount != 1_000 {
		t.Errorf("borrow_amount: got %d, want 1000", bw.BorrowAmount)
	}
	if bw.CollateralAmount != 1_500 {
		t.Errorf("collateral_amount: got %d, want 1500", bw.CollateralAmount)
	}
	if bw.CollateralToken != "ETH" {
		t.Errorf("collateral_token: got %s, want ETH", bw.CollateralToken)
	}
}

func TestParseRepay(t *testing.T) {
	payload := map[string]interface{}{
		"operation_id": "550e8400-e29b-41d4-a716-446655440000",
		"account":      "660e8400-e29b-41d4-a716-446655440001",
		"amount":       int64(570),
	}

	raw := rawFromJSON(t, payload)
	cmd, err := ingestion.ParseRawCommand(raw, "Repay")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	rp, ok := cmd.(*ingestion.RepayCommand)
	if !ok {
		t.Fatalf("expected *ingestion.RepayCommand, got %T", cmd)
	}
	if rp.Amount != 570 {
		t.Errorf("amount: got %d, want 570", rp.Amount)
	}
}

func TestParseLiquidate(t *testing.T) {
	payload := map[string]interface{}{
		"operation_id": "550e8400-e29b-41d4-a716-446655440000",
		"liquidator":   "660e8400-e29b-41d4-a716-446655440001",
		"borrower":     "770e8400-e29b-41d4-a716-446655440002",
	}

	raw := rawFromJSON(t, payload)
	cmd, err := ingestion.ParseRawCommand(raw, "Liquidate")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	lq, ok := cmd.(*ingestion.LiquidateCommand)
	if !ok {
		t.Fatalf("expected *ingestion.LiquidateCommand, got %T", cmd)
	}
	if lq.Liquidator.String() != "660e8400-e29b-41d4-a716-446655440001" {
		t.Errorf("liquidator: got %s", lq.Liquidator)
	}
	if lq.Borrower.String() != "770e8400-e29b-41d4-a716-446655440002" {
		t.Errorf("borrower: got %s", lq.Borrower)
	}
}

func TestParseUnknownOperationType_Fails(t *testing.T) {
	raw := ingestion.RawCommand{Data: []byte(`{}`)}
	_, err := ingestion.ParseRawCommand(raw, "NonExistentType")
	if err == nil {
		t.Fatal("expected error for unknown operation type")
	}
}

func TestParseInvalidJSON_Fails(t *testing.T) {
	raw := ingestion.RawCommand{Data: []byte(`{invalid json`)}
	_, err := ingestion.ParseRawCommand(raw, "Deposit")
	if err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestParseInvalidUUID_Fails(t *testing.T) {
	payload := map[string]interface{}{
		"operation_id": "not-a-uuid",
		"account":      "also-not-a-uuid",
		"amount":       int64(1),
	}

	raw := rawFromJSON(t, payload)
	_, err := ingestion.ParseRawCommand(raw, "Deposit")
	if err == nil {
		t.Fatal("expected error for invalid UUID")
	}
}
