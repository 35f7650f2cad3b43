package core

import "errors"

// Operation rejections. Every failure is detected before any state
// mutation persists, so a rejected operation leaves the ledger in its
// prior valid state and the caller resubmits after fixing the cause.
var (
	ErrInvalidAmount          = errors.New("invalid amount")
	ErrUnsupportedAsset       = errors.New("unsupported asset")
	ErrLoanExists             = errors.New("loan already exists for account")
	ErrInsufficientCollateral = errors.New("insufficient collateral")
	ErrInsufficientLiquidity  = errors.New("insufficient pool liquidity")
	ErrInsufficientBalance    = errors.New("insufficient balance")
	ErrNotLiquidatable        = errors.New("position is not liquidatable")
	ErrNoPosition             = errors.New("no position for account")
	ErrTransferFailed         = errors.New("asset transfer failed")
	ErrUnauthorized           = errors.New("unauthorized")
	ErrDuplicateOperation     = errors.New("duplicate operation")
)
