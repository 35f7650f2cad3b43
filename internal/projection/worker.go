package projection

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"PoolLedger/internal/observability"
)

// ActivityOutput mirrors the data projections need from an applied
// operation. The orchestrator bridges between core.Output and this.
type ActivityOutput struct {
	Sequence  int64
	OpType    string
	Account   *string
	Amount    int64
	Detail    []byte // JSON payload of the operation
	Timestamp time.Time
}

// Worker updates projection tables from applied operations. The feed
// channel is non-blocking with drop: if projections fall behind, they
// are rebuilt from the operation log.
type Worker struct {
	db        *sql.DB
	inputChan <-chan ActivityOutput
	metrics   *observability.Metrics
	lastSeq   int64
}

func NewWorker(db *sql.DB, inputChan <-chan ActivityOutput, metrics *observability.Metrics) *Worker {
	return &Worker{
		db:        db,
		inputChan: inputChan,
		metrics:   metrics,
	}
}

// Run starts the projection worker loop.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case output, ok := <-w.inputChan:
			if !ok {
				return nil
			}

			start := time.Now()
			if err := w.apply(ctx, output); err != nil {
				// Projections are eventually consistent and rebuildable,
				// so a failed update is logged and skipped.
				log.Printf("WARN: projection update failed at seq=%d: %v", output.Sequence, err)
			} else if w.metrics != nil {
				w.metrics.ProjectionUpdateDur.WithLabelValues("account_activity").
					Observe(time.Since(start).Seconds())
			}

			w.lastSeq = output.Sequence
		}
	}
}

func (w *Worker) apply(ctx context.Context, output ActivityOutput) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if output.Account != nil {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO projections.account_activity
				(sequence, account, op_type, amount, detail, timestamp)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (sequence) DO NOTHING
		`, output.Sequence, *output.Account, output.OpType, output.Amount,
			output.Detail, output.Timestamp); err != nil {
			return fmt.Errorf("account activity: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.watermark (projection, sequence)
		VALUES ('account_activity', $1)
		ON CONFLICT (projection) DO UPDATE SET sequence = $1
	`, output.Sequence); err != nil {
		return fmt.Errorf("watermark update: %w", err)
	}

	return tx.Commit()
}

// Rebuild repopulates the account activity projection from the
// operation log, then resets the watermark to the log head.
func Rebuild(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `TRUNCATE projections.account_activity`); err != nil {
		return fmt.Errorf("truncate failed: %w", err)
	}

	if _, err := db.ExecContext(ctx, `
		INSERT INTO projections.account_activity
			(sequence, account, op_type, amount, detail, timestamp)
		SELECT sequence, account, op_type,
		       COALESCE((payload->>'Amount')::BIGINT, 0),
		       payload, timestamp
		FROM event_log.operations
		WHERE account IS NOT NULL
		ON CONFLICT (sequence) DO NOTHING
	`); err != nil {
		return fmt.Errorf("rebuild account activity: %w", err)
	}

	if _, err := db.ExecContext(ctx, `
		INSERT INTO projections.watermark (projection, sequence)
		SELECT 'account_activity', COALESCE(MAX(sequence), 0) FROM event_log.operations
		ON CONFLICT (projection) DO UPDATE SET sequence = EXCLUDED.sequence
	`); err != nil {
		return fmt.Errorf("reset watermark: %w", err)
	}

	log.Println("INFO: projection rebuild complete")
	return nil
}
