package query

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// Service provides read-only access to the operation log and projection
// tables. Live balances come from the engine's in-memory views; this
// layer serves history and audit queries.
type Service struct {
	db *sql.DB
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// GetAccountHistory returns an account's activity feed, newest first,
// with cursor-based pagination on sequence.
func (s *Service) GetAccountHistory(
	ctx context.Context,
	account uuid.UUID,
	limit int,
	afterSequence *int64,
) ([]ActivityEntry, error) {
	asOfSeq, err := s.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	query := `
		SELECT sequence, op_type, amount, detail, timestamp
		FROM projections.account_activity
		WHERE account = $1
	`
	args := []interface{}{account}
	argIdx := 2

	if afterSequence != nil {
		query += fmt.Sprintf(" AND sequence < $%d", argIdx)
		args = append(args, *afterSequence)
		argIdx++
	}

	query += " ORDER BY sequence DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []ActivityEntry
	for rows.Next() {
		var e ActivityEntry
		e.Account = account
		e.AsOfSequence = asOfSeq
		if err := rows.Scan(&e.Sequence, &e.OpType, &e.Amount, &e.Detail, &e.Timestamp); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// GetOperations returns raw operation log rows from a sequence forward.
func (s *Service) GetOperations(
	ctx context.Context,
	fromSequence int64,
	limit int,
) ([]OperationEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sequence, op_type, idempotency_key, payload, timestamp,
		       total_deposits, total_borrows
		FROM event_log.operations
		WHERE sequence >= $1
		ORDER BY sequence ASC
		LIMIT $2
	`, fromSequence, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []OperationEntry
	for rows.Next() {
		var e OperationEntry
		if err := rows.Scan(
			&e.Sequence, &e.OpType, &e.IdempotencyKey, &e.Payload,
			&e.Timestamp, &e.TotalDeposits, &e.TotalBorrows,
		); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// VerifyIntegrity checks hash chain continuity across the operation log.
func (s *Service) VerifyIntegrity(ctx context.Context) (*IntegrityReport, error) {
	report := &IntegrityReport{}

	rows, err := s.db.QueryContext(ctx, `
		SELECT o1.sequence
		FROM event_log.operations o1
		LEFT JOIN event_log.operations o2 ON o2.sequence = o1.sequence - 1
		WHERE o1.sequence > 0 AND o1.prev_hash != COALESCE(o2.state_hash, o1.prev_hash)
		LIMIT 10
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var seq int64
		if err := rows.Scan(&seq); err != nil {
			return nil, err
		}
		report.HashChainBreaks = append(report.HashChainBreaks, seq)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	report.IsHealthy = len(report.HashChainBreaks) == 0
	return report, nil
}

func (s *Service) getWatermark(ctx context.Context) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(sequence, 0) FROM projections.watermark WHERE projection = 'account_activity'
	`).Scan(&seq)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return seq, err
}
