package core

import (
	"fmt"

	"PoolLedger/internal/ledger"
)

// SnapshotState is the full engine state captured at a sequence
// boundary. Restart restores from the latest snapshot; the operation
// log is never replayed, since the external transfers it records have
// already executed. A log head past Sequence is flagged for manual
// reconciliation at startup.
type SnapshotState struct {
	Sequence  int64    `json:"sequence"`
	StateHash [32]byte `json:"state_hash"`

	Pool     ledger.PoolState         `json:"pool"`
	Deposits []ledger.DepositPosition `json:"deposits"`
	Borrows  []ledger.BorrowPosition  `json:"borrows"`
	Tokens   []ledger.TokenInfo       `json:"tokens"`

	// Recently applied composite idempotency keys, used to warm the LRU.
	IdempotencyKeys []string `json:"idempotency_keys"`
}

// CreateSnapshotState captures the engine state for the snapshot writer.
func (e *Engine) CreateSnapshotState() *SnapshotState {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap := &SnapshotState{
		Sequence:        e.sequence,
		StateHash:       e.hasher.GetPrevHash(),
		Pool:            *e.pool,
		IdempotencyKeys: e.idempotency.lru.GetAllKeys(),
	}

	for _, pos := range e.book.Deposits() {
		snap.Deposits = append(snap.Deposits, *pos)
	}
	for _, pos := range e.book.Borrows() {
		snap.Borrows = append(snap.Borrows, *pos)
	}
	for _, info := range e.registry.All() {
		snap.Tokens = append(snap.Tokens, *info)
	}
	return snap
}

// RestoreFromSnapshot loads a snapshot into a fresh engine. Fails if the
// engine has already applied operations.
func (e *Engine) RestoreFromSnapshot(snap *SnapshotState) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.sequence != 0 {
		return fmt.Errorf("cannot restore into engine at sequence %d", e.sequence)
	}

	e.sequence = snap.Sequence
	e.hasher.SetPrevHash(snap.StateHash)

	pool := snap.Pool
	e.pool = &pool

	e.book = ledger.NewBook()
	for i := range snap.Deposits {
		pos := snap.Deposits[i]
		e.book.RestoreDeposit(&pos)
	}
	for i := range snap.Borrows {
		pos := snap.Borrows[i]
		e.book.RestoreBorrow(&pos)
	}

	e.registry = ledger.NewTokenRegistry()
	for i := range snap.Tokens {
		info := snap.Tokens[i]
		e.registry.Restore(&info)
	}

	e.idempotency.lru.WarmFromKeys(snap.IdempotencyKeys)
	return nil
}
