package borrow

import (
	"strconv"
	"strings"

	"nexumfi/core/types"
	"nexumfi/crypto"
)

const (
	EventTypeInitialized     = "borrow.initialized"
	EventTypeLoanOriginated  = "borrow.loan_originated"
	EventTypeInterestAccrued = "borrow.interest_accrued"
	EventTypeRepayment       = "borrow.repayment"
	EventTypeLoanRepaid      = "borrow.loan_repaid"
	EventTypeLoanLiquidated  = "borrow.loan_liquidated"
	EventTypeConfigUpdated   = "borrow.config_updated"
	EventTypePaused          = "borrow.paused"
	EventTypeUnpaused        = "borrow.unpaused"
)

func newLoanEvent(eventType string, loan *Loan, extra map[string]string) *types.Event {
	attrs := make(map[string]string)
	if loan != nil {
		ids := make([]string, len(loan.ReceivableIDs))
		for i, id := range loan.ReceivableIDs {
			ids[i] = strconv.FormatUint(id, 10)
		}
		attrs["loanId"] = strconv.FormatUint(loan.ID, 10)
		attrs["borrower"] = loan.Borrower.String()
		attrs["receivableIds"] = strings.Join(ids, ",")
		attrs["principal"] = cloneBig(loan.Principal).String()
		attrs["accruedInterest"] = cloneBig(loan.AccruedInterest).String()
		attrs["collateralValue"] = cloneBig(loan.CollateralValue).String()
		attrs["interestRateBps"] = strconv.FormatUint(loan.InterestRateBps, 10)
		attrs["dueDate"] = strconv.FormatInt(loan.DueDate, 10)
		attrs["status"] = loan.Status.String()
	}
	for k, v := range extra {
		attrs[k] = v
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}

func newConfigEvent(eventType string, actor crypto.Address, cfg Config) *types.Event {
	return &types.Event{Type: eventType, Attributes: map[string]string{
		"actor":                   actor.String(),
		"baseInterestRateBps":     strconv.FormatUint(cfg.BaseInterestRateBps, 10),
		"maxLtvBps":               strconv.FormatUint(cfg.MaxLTVBps, 10),
		"liquidationThresholdBps": strconv.FormatUint(cfg.LiquidationThresholdBps, 10),
		"liquidationPenaltyBps":   strconv.FormatUint(cfg.LiquidationPenaltyBps, 10),
		"riskDiscountFactorBps":   strconv.FormatUint(cfg.RiskDiscountFactorBps, 10),
		"maxLoanDuration":         strconv.FormatInt(cfg.MaxLoanDuration, 10),
		"singleActiveLoan":        strconv.FormatBool(cfg.SingleActiveLoan),
	}}
}
