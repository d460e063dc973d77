package borrow

import (
	"math/big"

	"nexumfi/crypto"
)

// LoanStatus enumerates the lifecycle states of a loan.
type LoanStatus uint8

const (
	LoanActive LoanStatus = iota
	LoanRepaid
	LoanLiquidated
)

// Valid reports whether the status value is within the supported range.
func (s LoanStatus) Valid() bool {
	switch s {
	case LoanActive, LoanRepaid, LoanLiquidated:
		return true
	default:
		return false
	}
}

func (s LoanStatus) String() string {
	switch s {
	case LoanActive:
		return "active"
	case LoanRepaid:
		return "repaid"
	case LoanLiquidated:
		return "liquidated"
	default:
		return "unknown"
	}
}

// Loan is a borrowing position secured by one or more receivables.
type Loan struct {
	ID              uint64
	Borrower        crypto.Address
	ReceivableIDs   []uint64
	Principal       *big.Int
	AccruedInterest *big.Int

	// InterestRemainder is the undistributed numerator of linear accrual,
	// always below 10000 * SecondsPerYear.
	InterestRemainder  *big.Int
	InterestRateBps    uint64
	CollateralValue    *big.Int
	BorrowedAt         int64
	DueDate            int64
	LastInterestUpdate int64
	Status             LoanStatus
	ClosedAt           int64
	Liquidator         crypto.Address
}

// Clone returns a deep copy of the loan.
func (l *Loan) Clone() *Loan {
	if l == nil {
		return nil
	}
	clone := *l
	clone.ReceivableIDs = append([]uint64(nil), l.ReceivableIDs...)
	clone.Principal = cloneBig(l.Principal)
	clone.AccruedInterest = cloneBig(l.AccruedInterest)
	clone.InterestRemainder = cloneBig(l.InterestRemainder)
	clone.CollateralValue = cloneBig(l.CollateralValue)
	return &clone
}

// Outstanding returns principal plus materialised interest.
func (l *Loan) Outstanding() *big.Int {
	return new(big.Int).Add(cloneBig(l.Principal), cloneBig(l.AccruedInterest))
}

// Roles records the borrow engine administrator.
type Roles struct {
	Admin crypto.Address
}

// Stats aggregates origination counters. TotalLoans doubles as the id of the
// most recently originated loan.
type Stats struct {
	TotalLoans    uint64
	TotalBorrowed *big.Int
}

// Clone returns a deep copy of the counters.
func (s *Stats) Clone() *Stats {
	if s == nil {
		return nil
	}
	return &Stats{TotalLoans: s.TotalLoans, TotalBorrowed: cloneBig(s.TotalBorrowed)}
}

func cloneBig(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
