package ledger

import (
	"context"
	"math/big"

	"nexumfi/crypto"
	"nexumfi/native/borrow"
)

// Borrow originates a loan against caller's receivables and returns its id.
func (l *Ledger) Borrow(ctx context.Context, caller crypto.Address, receivableIDs []uint64, amount *big.Int, duration int64) (uint64, error) {
	var id uint64
	err := l.execute(ctx, "borrow", func(e *env) error {
		var err error
		id, err = e.borrow.Borrow(caller, receivableIDs, amount, duration)
		return err
	})
	return id, err
}

// AccrueInterest materialises the interest a loan has earned so far and
// returns its accrued interest balance.
func (l *Ledger) AccrueInterest(ctx context.Context, loanID uint64) (*big.Int, error) {
	var accrued *big.Int
	err := l.execute(ctx, "borrow_accrue", func(e *env) error {
		var err error
		accrued, err = e.borrow.AccrueInterest(loanID)
		return err
	})
	return accrued, err
}

// Repay applies a payment and returns the remaining balance.
func (l *Ledger) Repay(ctx context.Context, caller crypto.Address, loanID uint64, amount *big.Int) (*big.Int, error) {
	var remaining *big.Int
	err := l.execute(ctx, "borrow_repay", func(e *env) error {
		var err error
		remaining, err = e.borrow.RepayLoan(caller, loanID, amount)
		return err
	})
	return remaining, err
}

// Liquidate closes an unhealthy or overdue loan.
func (l *Ledger) Liquidate(ctx context.Context, caller crypto.Address, loanID uint64) error {
	return l.execute(ctx, "borrow_liquidate", func(e *env) error {
		return e.borrow.Liquidate(caller, loanID)
	})
}

// SetBorrowConfig replaces the loan parameters.
func (l *Ledger) SetBorrowConfig(ctx context.Context, caller crypto.Address, cfg borrow.Config) error {
	return l.execute(ctx, "borrow_set_config", func(e *env) error {
		return e.borrow.SetConfig(caller, cfg)
	})
}

// PauseBorrow halts origination, repayment and liquidation.
func (l *Ledger) PauseBorrow(ctx context.Context, caller crypto.Address) error {
	return l.execute(ctx, "borrow_pause", func(e *env) error {
		return e.borrow.Pause(caller)
	})
}

// UnpauseBorrow resumes the borrow engine.
func (l *Ledger) UnpauseBorrow(ctx context.Context, caller crypto.Address) error {
	return l.execute(ctx, "borrow_unpause", func(e *env) error {
		return e.borrow.Unpause(caller)
	})
}

// LTV returns the loan-to-value ratio of a loan in basis points, including
// interest that has accrued but not yet been materialised.
func (l *Ledger) LTV(ctx context.Context, loanID uint64) (uint64, error) {
	var ltv uint64
	err := l.view(ctx, "borrow_ltv", func(e *env) error {
		var err error
		ltv, err = e.borrow.GetLTV(loanID)
		return err
	})
	return ltv, err
}

// IsLiquidatable reports whether a loan may be liquidated now.
func (l *Ledger) IsLiquidatable(ctx context.Context, loanID uint64) (bool, error) {
	var ok bool
	err := l.view(ctx, "borrow_is_liquidatable", func(e *env) error {
		var err error
		ok, err = e.borrow.IsLiquidatable(loanID)
		return err
	})
	return ok, err
}

// Loan returns a loan by id.
func (l *Ledger) Loan(ctx context.Context, loanID uint64) (*borrow.Loan, error) {
	var loan *borrow.Loan
	err := l.view(ctx, "borrow_loan", func(e *env) error {
		var err error
		loan, err = e.borrow.GetLoan(loanID)
		return err
	})
	return loan, err
}

// BorrowerLoans returns the ids of every loan opened by borrower.
func (l *Ledger) BorrowerLoans(ctx context.Context, borrower crypto.Address) ([]uint64, error) {
	var ids []uint64
	err := l.view(ctx, "borrow_borrower_loans", func(e *env) error {
		var err error
		ids, err = e.borrow.GetBorrowerLoans(borrower)
		return err
	})
	return ids, err
}

// TotalLoans returns the number of loans originated.
func (l *Ledger) TotalLoans(ctx context.Context) (uint64, error) {
	var total uint64
	err := l.view(ctx, "borrow_total_loans", func(e *env) error {
		var err error
		total, err = e.borrow.TotalLoans()
		return err
	})
	return total, err
}

// BorrowConfig returns the active loan parameters.
func (l *Ledger) BorrowConfig(ctx context.Context) (borrow.Config, error) {
	var cfg borrow.Config
	err := l.view(ctx, "borrow_config", func(e *env) error {
		var err error
		cfg, err = e.borrow.GetConfig()
		return err
	})
	return cfg, err
}

// BorrowStats returns the origination counters.
func (l *Ledger) BorrowStats(ctx context.Context) (*borrow.Stats, error) {
	var stats *borrow.Stats
	err := l.view(ctx, "borrow_stats", func(e *env) error {
		var err error
		stats, err = e.borrow.Stats()
		return err
	})
	return stats, err
}

// Loans returns every loan in origination order.
func (l *Ledger) Loans(ctx context.Context) ([]*borrow.Loan, error) {
	var loans []*borrow.Loan
	err := l.view(ctx, "borrow_list_loans", func(e *env) error {
		total, err := e.borrow.TotalLoans()
		if err != nil {
			return err
		}
		loans = make([]*borrow.Loan, 0, total)
		for id := uint64(1); id <= total; id++ {
			loan, err := e.borrow.GetLoan(id)
			if err != nil {
				return err
			}
			loans = append(loans, loan)
		}
		return nil
	})
	return loans, err
}
