package vault

import (
	"errors"

	nativecommon "nexumfi/native/common"
)

var (
	ErrNotAuthorized          = errors.New("vault: not authorized")
	ErrAlreadyInitialized     = errors.New("vault: already initialized")
	ErrNotInitialized         = errors.New("vault: not initialized")
	ErrInsufficientDeposit    = errors.New("vault: insufficient deposit")
	ErrInsufficientShares     = errors.New("vault: insufficient shares")
	ErrInsufficientLiquidity  = errors.New("vault: insufficient liquidity")
	ErrMaxUtilizationExceeded = errors.New("vault: max utilization exceeded")
	ErrZeroAmount             = errors.New("vault: amount must be positive")
	ErrNotBorrowContract      = errors.New("vault: caller is not the borrow contract")
	ErrInvalidConfig          = errors.New("vault: invalid configuration")
	ErrInvalidProceeds        = errors.New("vault: liquidation proceeds do not cover principal")
	ErrInvalidAddress         = errors.New("vault: address must not be empty")

	ErrContractPaused = nativecommon.ErrModulePaused
	ErrOverflow       = nativecommon.ErrOverflow

	errNilState = errors.New("vault: state not configured")
)
