package routes

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"nexumfi/core/ledger"
	"nexumfi/integrations/exports"
	"nexumfi/native/borrow"
)

type borrowRoutes struct {
	ledger *ledger.Ledger
}

func (br *borrowRoutes) mount(r chi.Router) {
	r.Post("/loans", br.openLoan)
	r.Get("/loans", br.listLoans)
	r.Get("/loans/export", br.exportLoans)
	r.Get("/loans/{id}", br.getLoan)
	r.Post("/loans/{id}/accrue", br.accrue)
	r.Post("/loans/{id}/repay", br.repay)
	r.Post("/loans/{id}/liquidate", br.liquidate)
	r.Get("/borrowers/{address}/loans", br.borrowerLoans)
	r.Get("/config", br.config)
	r.Post("/config", br.setConfig)
	r.Get("/stats", br.stats)
	r.Post("/pause", br.pause)
	r.Post("/unpause", br.unpause)
}

type borrowRequest struct {
	ReceivableIDs []uint64 `json:"receivableIds"`
	Amount        string   `json:"amount"`
	Duration      int64    `json:"duration"`
}

type borrowConfigView struct {
	BaseInterestRateBps     uint64 `json:"baseInterestRateBps"`
	MaxLTVBps               uint64 `json:"maxLtvBps"`
	LiquidationThresholdBps uint64 `json:"liquidationThresholdBps"`
	LiquidationPenaltyBps   uint64 `json:"liquidationPenaltyBps"`
	RiskDiscountFactorBps   uint64 `json:"riskDiscountFactorBps"`
	MaxLoanDuration         int64  `json:"maxLoanDuration"`
	SingleActiveLoan        bool   `json:"singleActiveLoan"`
}

func (v borrowConfigView) config() borrow.Config {
	return borrow.Config{
		BaseInterestRateBps:     v.BaseInterestRateBps,
		MaxLTVBps:               v.MaxLTVBps,
		LiquidationThresholdBps: v.LiquidationThresholdBps,
		LiquidationPenaltyBps:   v.LiquidationPenaltyBps,
		RiskDiscountFactorBps:   v.RiskDiscountFactorBps,
		MaxLoanDuration:         v.MaxLoanDuration,
		SingleActiveLoan:        v.SingleActiveLoan,
	}
}

func borrowConfigViewFrom(cfg borrow.Config) borrowConfigView {
	return borrowConfigView{
		BaseInterestRateBps:     cfg.BaseInterestRateBps,
		MaxLTVBps:               cfg.MaxLTVBps,
		LiquidationThresholdBps: cfg.LiquidationThresholdBps,
		LiquidationPenaltyBps:   cfg.LiquidationPenaltyBps,
		RiskDiscountFactorBps:   cfg.RiskDiscountFactorBps,
		MaxLoanDuration:         cfg.MaxLoanDuration,
		SingleActiveLoan:        cfg.SingleActiveLoan,
	}
}

type loanView struct {
	ID                 uint64   `json:"id"`
	Borrower           string   `json:"borrower"`
	ReceivableIDs      []uint64 `json:"receivableIds"`
	Principal          string   `json:"principal"`
	AccruedInterest    string   `json:"accruedInterest"`
	Outstanding        string   `json:"outstanding"`
	InterestRateBps    uint64   `json:"interestRateBps"`
	CollateralValue    string   `json:"collateralValue"`
	BorrowedAt         int64    `json:"borrowedAt"`
	DueDate            int64    `json:"dueDate"`
	LastInterestUpdate int64    `json:"lastInterestUpdate"`
	Status             string   `json:"status"`
	ClosedAt           int64    `json:"closedAt,omitempty"`
	Liquidator         string   `json:"liquidator,omitempty"`
	LTVBps             *uint64  `json:"ltvBps,omitempty"`
	Liquidatable       *bool    `json:"liquidatable,omitempty"`
}

func loanViewFrom(loan *borrow.Loan) loanView {
	view := loanView{
		ID:                 loan.ID,
		Borrower:           loan.Borrower.String(),
		ReceivableIDs:      append([]uint64(nil), loan.ReceivableIDs...),
		Principal:          amountString(loan.Principal),
		AccruedInterest:    amountString(loan.AccruedInterest),
		Outstanding:        loan.Outstanding().String(),
		InterestRateBps:    loan.InterestRateBps,
		CollateralValue:    amountString(loan.CollateralValue),
		BorrowedAt:         loan.BorrowedAt,
		DueDate:            loan.DueDate,
		LastInterestUpdate: loan.LastInterestUpdate,
		Status:             loan.Status.String(),
		ClosedAt:           loan.ClosedAt,
	}
	if !loan.Liquidator.IsZero() {
		view.Liquidator = loan.Liquidator.String()
	}
	return view
}

func (br *borrowRoutes) openLoan(w http.ResponseWriter, r *http.Request) {
	from, err := caller(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req borrowRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	id, err := br.ledger.Borrow(r.Context(), from, req.ReceivableIDs, amount, req.Duration)
	if err != nil {
		writeError(w, err)
		return
	}
	loan, err := br.ledger.Loan(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, loanViewFrom(loan))
}

func (br *borrowRoutes) listLoans(w http.ResponseWriter, r *http.Request) {
	loans, err := br.ledger.Loans(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	status := strings.TrimSpace(r.URL.Query().Get("status"))
	out := make([]loanView, 0, len(loans))
	for _, loan := range loans {
		if status != "" && loan.Status.String() != status {
			continue
		}
		out = append(out, loanViewFrom(loan))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"loans": out})
}

func (br *borrowRoutes) exportLoans(w http.ResponseWriter, r *http.Request) {
	loans, err := br.ledger.Loans(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	var (
		data        []byte
		checksum    string
		contentType string
	)
	switch format := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format"))); format {
	case "", "csv":
		data, checksum, err = exports.LoanBookCSV(loans)
		contentType = "text/csv"
	case "jsonl":
		data, checksum, err = exports.LoanBookJSONL(loans)
		contentType = "application/x-ndjson"
	case "parquet":
		data, checksum, err = exports.LoanBookParquet(loans)
		contentType = "application/vnd.apache.parquet"
	default:
		writeError(w, badRequest("unsupported export format %q", format))
		return
	}
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("X-Checksum-SHA256", checksum)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (br *borrowRoutes) getLoan(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	loan, err := br.ledger.Loan(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	view := loanViewFrom(loan)
	if loan.Status == borrow.LoanActive {
		ltv, err := br.ledger.LTV(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		liquidatable, err := br.ledger.IsLiquidatable(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		view.LTVBps = &ltv
		view.Liquidatable = &liquidatable
	}
	writeJSON(w, http.StatusOK, view)
}

func (br *borrowRoutes) accrue(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	accrued, err := br.ledger.AccrueInterest(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"accruedInterest": amountString(accrued)})
}

func (br *borrowRoutes) repay(w http.ResponseWriter, r *http.Request) {
	from, err := caller(r)
	if err != nil {
		writeError(w, err)
		return
	}
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	var req amountRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	remaining, err := br.ledger.Repay(r.Context(), from, id, amount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"remaining": amountString(remaining)})
}

func (br *borrowRoutes) liquidate(w http.ResponseWriter, r *http.Request) {
	from, err := caller(r)
	if err != nil {
		writeError(w, err)
		return
	}
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	if err := br.ledger.Liquidate(r.Context(), from, id); err != nil {
		writeError(w, err)
		return
	}
	loan, err := br.ledger.Loan(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loanViewFrom(loan))
}

func (br *borrowRoutes) borrowerLoans(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress("address", chi.URLParam(r, "address"))
	if err != nil {
		writeError(w, err)
		return
	}
	ids, err := br.ledger.BorrowerLoans(r.Context(), addr)
	if err != nil {
		writeError(w, err)
		return
	}
	if ids == nil {
		ids = []uint64{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"borrower": addr.String(), "loanIds": ids})
}

func (br *borrowRoutes) config(w http.ResponseWriter, r *http.Request) {
	cfg, err := br.ledger.BorrowConfig(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, borrowConfigViewFrom(cfg))
}

func (br *borrowRoutes) setConfig(w http.ResponseWriter, r *http.Request) {
	from, err := caller(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req borrowConfigView
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := br.ledger.SetBorrowConfig(r.Context(), from, req.config()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (br *borrowRoutes) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := br.ledger.BorrowStats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"totalLoans":    strconv.FormatUint(stats.TotalLoans, 10),
		"totalBorrowed": amountString(stats.TotalBorrowed),
	})
}

func (br *borrowRoutes) pause(w http.ResponseWriter, r *http.Request) {
	adminToggle(w, r, br.ledger.PauseBorrow, true)
}

func (br *borrowRoutes) unpause(w http.ResponseWriter, r *http.Request) {
	adminToggle(w, r, br.ledger.UnpauseBorrow, false)
}
