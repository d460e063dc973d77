package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"nexumfi/core/ledger"
	"nexumfi/native/vault"
)

type vaultRoutes struct {
	ledger *ledger.Ledger
}

func (vr *vaultRoutes) mount(r chi.Router) {
	r.Post("/deposit", vr.deposit)
	r.Post("/withdraw", vr.withdraw)
	r.Get("/state", vr.state)
	r.Get("/positions/{address}", vr.position)
	r.Get("/roles", vr.roles)
	r.Post("/config", vr.setConfig)
	r.Post("/borrow-contract", vr.setBorrowContract)
	r.Post("/reserves/withdraw", vr.withdrawReserves)
	r.Post("/pause", vr.pause)
	r.Post("/unpause", vr.unpause)
}

type amountRequest struct {
	Amount string `json:"amount"`
}

type withdrawRequest struct {
	Shares string `json:"shares"`
}

type reservesRequest struct {
	Recipient string `json:"recipient"`
	Amount    string `json:"amount"`
}

type vaultConfigRequest struct {
	MinDeposit        string `json:"minDeposit"`
	MaxUtilizationBps uint64 `json:"maxUtilizationBps"`
	ReserveFactorBps  uint64 `json:"reserveFactorBps"`
}

type vaultStateView struct {
	TotalDeposits       string `json:"totalDeposits"`
	TotalBorrowed       string `json:"totalBorrowed"`
	TotalShares         string `json:"totalShares"`
	TotalInterestEarned string `json:"totalInterestEarned"`
	ProtocolReserves    string `json:"protocolReserves"`
	Available           string `json:"available"`
	TotalAssets         string `json:"totalAssets"`
	UtilizationBps      uint64 `json:"utilizationBps"`
	MinDeposit          string `json:"minDeposit"`
	MaxUtilizationBps   uint64 `json:"maxUtilizationBps"`
	ReserveFactorBps    uint64 `json:"reserveFactorBps"`
}

type positionView struct {
	Address          string `json:"address"`
	Shares           string `json:"shares"`
	Value            string `json:"value"`
	DepositTimestamp int64  `json:"depositTimestamp"`
}

func (vr *vaultRoutes) deposit(w http.ResponseWriter, r *http.Request) {
	from, err := caller(r)
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
	shares, err := vr.ledger.Deposit(r.Context(), from, amount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"shares": amountString(shares)})
}

func (vr *vaultRoutes) withdraw(w http.ResponseWriter, r *http.Request) {
	from, err := caller(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req withdrawRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, err)
		return
	}
	shares, err := parseAmount("shares", req.Shares)
	if err != nil {
		writeError(w, err)
		return
	}
	amount, err := vr.ledger.Withdraw(r.Context(), from, shares)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"amount": amountString(amount)})
}

func (vr *vaultRoutes) state(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	st, err := vr.ledger.VaultState(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	available, err := vr.ledger.Available(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	assets, err := vr.ledger.TotalAssets(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	util, err := vr.ledger.Utilization(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, vaultStateView{
		TotalDeposits:       amountString(st.TotalDeposits),
		TotalBorrowed:       amountString(st.TotalBorrowed),
		TotalShares:         amountString(st.TotalShares),
		TotalInterestEarned: amountString(st.TotalInterestEarned),
		ProtocolReserves:    amountString(st.ProtocolReserves),
		Available:           amountString(available),
		TotalAssets:         amountString(assets),
		UtilizationBps:      util,
		MinDeposit:          amountString(st.Config.MinDeposit),
		MaxUtilizationBps:   st.Config.MaxUtilizationBps,
		ReserveFactorBps:    st.Config.ReserveFactorBps,
	})
}

func (vr *vaultRoutes) position(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress("address", chi.URLParam(r, "address"))
	if err != nil {
		writeError(w, err)
		return
	}
	pos, err := vr.ledger.Position(r.Context(), addr)
	if err != nil {
		writeError(w, err)
		return
	}
	value, err := vr.ledger.SharesValue(r.Context(), pos.Shares)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, positionView{
		Address:          addr.String(),
		Shares:           amountString(pos.Shares),
		Value:            amountString(value),
		DepositTimestamp: pos.DepositTimestamp,
	})
}

func (vr *vaultRoutes) roles(w http.ResponseWriter, r *http.Request) {
	roles, err := vr.ledger.VaultRoles(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"admin":          roles.Admin.String(),
		"borrowContract": roles.BorrowContract.String(),
	})
}

func (vr *vaultRoutes) setConfig(w http.ResponseWriter, r *http.Request) {
	from, err := caller(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req vaultConfigRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, err)
		return
	}
	minDeposit, err := parseAmount("minDeposit", req.MinDeposit)
	if err != nil {
		writeError(w, err)
		return
	}
	cfg := vault.Config{
		MinDeposit:        minDeposit,
		MaxUtilizationBps: req.MaxUtilizationBps,
		ReserveFactorBps:  req.ReserveFactorBps,
	}
	if err := vr.ledger.SetVaultConfig(r.Context(), from, cfg); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (vr *vaultRoutes) setBorrowContract(w http.ResponseWriter, r *http.Request) {
	adminAddressUpdate(w, r, vr.ledger.SetVaultBorrow)
}

func (vr *vaultRoutes) withdrawReserves(w http.ResponseWriter, r *http.Request) {
	from, err := caller(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req reservesRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, err)
		return
	}
	recipient, err := parseAddress("recipient", req.Recipient)
	if err != nil {
		writeError(w, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := vr.ledger.WithdrawReserves(r.Context(), from, recipient, amount); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"recipient": recipient.String(), "amount": amount.String()})
}

func (vr *vaultRoutes) pause(w http.ResponseWriter, r *http.Request) {
	adminToggle(w, r, vr.ledger.PauseVault, true)
}

func (vr *vaultRoutes) unpause(w http.ResponseWriter, r *http.Request) {
	adminToggle(w, r, vr.ledger.UnpauseVault, false)
}
