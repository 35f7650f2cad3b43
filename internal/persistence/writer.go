package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"
)

// OperationLogWriter writes applied operations to Postgres using batch
// inserts. Multi-row INSERT is used as a portable alternative to COPY;
// switch to pgx CopyFrom if throughput ever demands it.
type OperationLogWriter struct {
	db *sql.DB
}

// OperationRow represents a row in event_log.operations.
type OperationRow struct {
	Sequence       int64
	OpType         string
	IdempotencyKey string
	Account        *string
	Payload        []byte // JSON-encoded operation payload
	StateHash      []byte
	PrevHash       []byte
	Timestamp      time.Time
	TotalDeposits  int64
	TotalBorrows   int64
}

func NewOperationLogWriter(db *sql.DB) *OperationLogWriter {
	return &OperationLogWriter{db: db}
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// WriteOperationBatch writes a batch of operations using multi-row INSERT.
func (w *OperationLogWriter) WriteOperationBatch(ctx context.Context, ex execer, ops []OperationRow) error {
	if len(ops) == 0 {
		return nil
	}

	query := `INSERT INTO event_log.operations
		(sequence, op_type, idempotency_key, account, payload, state_hash, prev_hash, timestamp, total_deposits, total_borrows)
		VALUES `

	values := make([]string, 0, len(ops))
	args := make([]interface{}, 0, len(ops)*10)

	for i, op := range ops {
		base := i * 10
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9, base+10,
		))
		args = append(args,
			op.Sequence, op.OpType, op.IdempotencyKey, op.Account,
			op.Payload, op.StateHash, op.PrevHash, op.Timestamp,
			op.TotalDeposits, op.TotalBorrows,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (sequence) DO NOTHING" // Idempotent writes

	_, err := ex.ExecContext(ctx, query, args...)
	return err
}

// MarshalPayload is a convenience wrapper for JSON-encoding operation
// payloads. The payload column is JSON for debuggability; the typed
// record is the envelope columns, not the payload.
func MarshalPayload(v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("WARN: failed to marshal payload: %v", err)
		return []byte("{}")
	}
	return data
}
