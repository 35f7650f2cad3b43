package event

import "time"

// EventType discriminator for event payloads
type EventType int32

const (
	EventTypeUnknown EventType = iota
	EventTypeDepositMade
	EventTypeWithdrawalMade
	EventTypeLoanOpened
	EventTypeLoanRepaid
	EventTypeLoanLiquidated
	EventTypeTokenInfoUpdated
	EventTypePriceUpdated
)

// EventEnvelope wraps every committed operation in the log
type EventEnvelope struct {
	// Global monotonic sequence assigned by the engine
	Sequence int64

	// Client-supplied operation ID used for dedup
	IdempotencyKey string

	// Event type discriminator
	EventType EventType

	// Instant the operation was applied at
	Timestamp time.Time

	// SHA-256 of ledger state AFTER applying this operation
	StateHash [32]byte

	// Previous operation's state hash (chain integrity)
	PrevHash [32]byte
}

// Event is the interface all notification payloads implement
type Event interface {
	// IdempotencyKey returns the stable dedup key
	IdempotencyKey() string

	// EventType returns the discriminator
	EventType() EventType
}

func (et EventType) String() string {
	switch et {
	case EventTypeDepositMade:
		return "DepositMade"
	case EventTypeWithdrawalMade:
		return "WithdrawalMade"
	case EventTypeLoanOpened:
		return "LoanOpened"
	case EventTypeLoanRepaid:
		return "LoanRepaid"
	case EventTypeLoanLiquidated:
		return "LoanLiquidated"
	case EventTypeTokenInfoUpdated:
		return "TokenInfoUpdated"
	case EventTypePriceUpdated:
		return "PriceUpdated"
	default:
		return "Unknown"
	}
}
