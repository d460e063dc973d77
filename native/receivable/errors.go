package receivable

import (
	"errors"

	nativecommon "nexumfi/native/common"
)

var (
	ErrNotAuthorized       = errors.New("receivable: not authorized")
	ErrNotVerifier         = errors.New("receivable: caller is not the verifier")
	ErrNotOwner            = errors.New("receivable: caller is not the owner")
	ErrNotBorrowContract   = errors.New("receivable: caller is not the borrow contract")
	ErrReceivableNotFound  = errors.New("receivable: not found")
	ErrInvalidStatus       = errors.New("receivable: invalid status")
	ErrInvalidMaturityDate = errors.New("receivable: invalid maturity date")
	ErrInvalidFaceValue    = errors.New("receivable: face value must be positive")
	ErrInvalidRiskScore    = errors.New("receivable: risk score out of range")
	ErrAlreadyInitialized  = errors.New("receivable: already initialized")
	ErrNotInitialized      = errors.New("receivable: not initialized")
	ErrTransferNotAllowed  = errors.New("receivable: transfer not allowed")
	ErrNotMatured          = errors.New("receivable: maturity date not reached")
	ErrInvalidAddress      = errors.New("receivable: address must not be empty")

	// ErrContractPaused is shared with the other native modules so callers
	// can test for a pause with a single errors.Is.
	ErrContractPaused = nativecommon.ErrModulePaused
	ErrOverflow       = nativecommon.ErrOverflow

	errNilState = errors.New("receivable: state not configured")
)
