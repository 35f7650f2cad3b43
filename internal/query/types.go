package query

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ActivityEntry is one row of an account's operation history.
type ActivityEntry struct {
	Sequence  int64           `json:"sequence"`
	Account   uuid.UUID       `json:"account"`
	OpType    string          `json:"op_type"`
	Amount    int64           `json:"amount"`
	Detail    json.RawMessage `json:"detail"`
	Timestamp time.Time       `json:"timestamp"`

	// Projection watermark at query time, for freshness semantics.
	AsOfSequence int64 `json:"as_of_sequence"`
}

// OperationEntry is one row of the raw operation log.
type OperationEntry struct {
	Sequence       int64           `json:"sequence"`
	OpType         string          `json:"op_type"`
	IdempotencyKey string          `json:"idempotency_key"`
	Payload        json.RawMessage `json:"payload"`
	Timestamp      time.Time       `json:"timestamp"`
	TotalDeposits  int64           `json:"total_deposits"`
	TotalBorrows   int64           `json:"total_borrows"`
}

// IntegrityReport summarizes hash chain verification over the log.
type IntegrityReport struct {
	HashChainBreaks []int64 `json:"hash_chain_breaks,omitempty"`
	IsHealthy       bool    `json:"is_healthy"`
}
