package transfer

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// Service is the external asset-transfer collaborator. It moves value
// between user accounts and pool custody; the ledger treats any failure
// as aborting the whole triggering operation.
type Service interface {
	// TransferIn pulls amount of asset from the account into pool custody.
	TransferIn(ctx context.Context, asset string, from uuid.UUID, amount int64) error

	// TransferOut pays amount of asset from pool custody to the account.
	TransferOut(ctx context.Context, asset string, to uuid.UUID, amount int64) error
}

// Rejection reasons reported by the custody service.
var (
	ErrInsufficientBalance   = errors.New("transfer: insufficient balance")
	ErrInsufficientAllowance = errors.New("transfer: insufficient allowance")
)
