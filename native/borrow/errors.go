package borrow

import (
	"errors"

	nativecommon "nexumfi/native/common"
)

var (
	ErrNotAuthorized          = errors.New("borrow: not authorized")
	ErrAlreadyInitialized     = errors.New("borrow: already initialized")
	ErrNotInitialized         = errors.New("borrow: not initialized")
	ErrLoanNotFound           = errors.New("borrow: loan not found")
	ErrInvalidStatus          = errors.New("borrow: invalid loan status")
	ErrLTVExceeded            = errors.New("borrow: loan-to-value exceeded")
	ErrInsufficientCollateral = errors.New("borrow: insufficient collateral")
	ErrNotLiquidatable        = errors.New("borrow: loan not liquidatable")
	ErrZeroAmount             = errors.New("borrow: amount must be positive")
	ErrInvalidDuration        = errors.New("borrow: invalid duration")
	ErrRecvNotOwned           = errors.New("borrow: receivable not owned by borrower")
	ErrRecvNotActive          = errors.New("borrow: receivable not active")
	ErrNotBorrower            = errors.New("borrow: caller is not the borrower")
	ErrDuplicateReceivable    = errors.New("borrow: receivable pledged twice")
	ErrRepayExceedsBalance    = errors.New("borrow: repayment exceeds outstanding balance")
	ErrActiveLoanExists       = errors.New("borrow: borrower already has an active loan")
	ErrInvalidConfig          = errors.New("borrow: invalid configuration")
	ErrInvalidAddress         = errors.New("borrow: address must not be empty")

	ErrContractPaused = nativecommon.ErrModulePaused
	ErrOverflow       = nativecommon.ErrOverflow

	errNilState        = errors.New("borrow: state not configured")
	errNilCollaborator = errors.New("borrow: registry or vault not configured")
)
