package routes

import (
	"encoding/hex"
	"net/http"

	"github.com/go-chi/chi/v5"

	"nexumfi/core/ledger"
	"nexumfi/native/receivable"
)

type registryRoutes struct {
	ledger *ledger.Ledger
}

func (rr *registryRoutes) mount(r chi.Router) {
	r.Post("/receivables", rr.mint)
	r.Get("/receivables/{id}", rr.get)
	r.Post("/receivables/{id}/transfer", rr.transfer)
	r.Post("/receivables/{id}/mature", rr.mature)
	r.Post("/receivables/{id}/settle", rr.settle)
	r.Post("/receivables/{id}/default", rr.markDefault)
	r.Get("/stats", rr.stats)
	r.Get("/roles", rr.roles)
	r.Post("/verifier", rr.setVerifier)
	r.Post("/borrow-contract", rr.setBorrowContract)
	r.Post("/pause", rr.pause)
	r.Post("/unpause", rr.unpause)
}

type mintRequest struct {
	Creditor     string `json:"creditor"`
	DebtorHash   string `json:"debtorHash"`
	FaceValue    string `json:"faceValue"`
	Currency     string `json:"currency"`
	MaturityDate int64  `json:"maturityDate"`
	ZKProofHash  string `json:"zkProofHash"`
	RiskScore    uint32 `json:"riskScore"`
	MetadataURI  string `json:"metadataUri"`
}

type transferRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type addressRequest struct {
	Address string `json:"address"`
}

type receivableView struct {
	ID           uint64 `json:"id"`
	Owner        string `json:"owner"`
	Creditor     string `json:"creditor"`
	FaceValue    string `json:"faceValue"`
	Currency     string `json:"currency"`
	IssuedAt     int64  `json:"issuedAt"`
	MaturityDate int64  `json:"maturityDate"`
	RiskScore    uint32 `json:"riskScore"`
	MetadataURI  string `json:"metadataUri,omitempty"`
	DebtorHash   string `json:"debtorHash"`
	ZKProofHash  string `json:"zkProofHash"`
	Status       string `json:"status"`
	Locked       bool   `json:"locked"`
}

func receivableViewFrom(rec *receivable.Receivable) receivableView {
	return receivableView{
		ID:           rec.ID,
		Owner:        rec.Owner.String(),
		Creditor:     rec.Creditor.String(),
		FaceValue:    amountString(rec.FaceValue),
		Currency:     rec.Currency,
		IssuedAt:     rec.IssuedAt,
		MaturityDate: rec.MaturityDate,
		RiskScore:    rec.RiskScore,
		MetadataURI:  rec.MetadataURI,
		DebtorHash:   hex.EncodeToString(rec.DebtorHash[:]),
		ZKProofHash:  hex.EncodeToString(rec.ZKProofHash[:]),
		Status:       rec.Status.String(),
		Locked:       rec.Locked,
	}
}

func (rr *registryRoutes) mint(w http.ResponseWriter, r *http.Request) {
	from, err := caller(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req mintRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, err)
		return
	}
	params, err := req.params()
	if err != nil {
		writeError(w, err)
		return
	}
	id, err := rr.ledger.Mint(r.Context(), from, params)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]uint64{"id": id})
}

func (req mintRequest) params() (receivable.MintParams, error) {
	var params receivable.MintParams
	creditor, err := parseAddress("creditor", req.Creditor)
	if err != nil {
		return params, err
	}
	face, err := parseAmount("faceValue", req.FaceValue)
	if err != nil {
		return params, err
	}
	debtor, err := parseHash("debtorHash", req.DebtorHash)
	if err != nil {
		return params, err
	}
	proof, err := parseHash("zkProofHash", req.ZKProofHash)
	if err != nil {
		return params, err
	}
	return receivable.MintParams{
		Creditor:     creditor,
		DebtorHash:   debtor,
		FaceValue:    face,
		Currency:     req.Currency,
		MaturityDate: req.MaturityDate,
		ZKProofHash:  proof,
		RiskScore:    req.RiskScore,
		MetadataURI:  req.MetadataURI,
	}, nil
}

func (rr *registryRoutes) get(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	rec, err := rr.ledger.Receivable(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, receivableViewFrom(rec))
}

func (rr *registryRoutes) transfer(w http.ResponseWriter, r *http.Request) {
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
	var req transferRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, err)
		return
	}
	owner, err := parseAddress("from", req.From)
	if err != nil {
		writeError(w, err)
		return
	}
	to, err := parseAddress("to", req.To)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := rr.ledger.TransferReceivable(r.Context(), from, id, owner, to); err != nil {
		writeError(w, err)
		return
	}
	rr.respondReceivable(w, r, id)
}

func (rr *registryRoutes) mature(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	if err := rr.ledger.MatureReceivable(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	rr.respondReceivable(w, r, id)
}

func (rr *registryRoutes) settle(w http.ResponseWriter, r *http.Request) {
	rr.transition(w, r, rr.ledger.SettleReceivable)
}

func (rr *registryRoutes) markDefault(w http.ResponseWriter, r *http.Request) {
	rr.transition(w, r, rr.ledger.MarkReceivableDefault)
}

func (rr *registryRoutes) transition(w http.ResponseWriter, r *http.Request, op callerIDOp) {
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
	if err := op(r.Context(), from, id); err != nil {
		writeError(w, err)
		return
	}
	rr.respondReceivable(w, r, id)
}

func (rr *registryRoutes) respondReceivable(w http.ResponseWriter, r *http.Request, id uint64) {
	rec, err := rr.ledger.Receivable(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, receivableViewFrom(rec))
}

func (rr *registryRoutes) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := rr.ledger.RegistryStats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{
		"totalMinted": stats.TotalMinted,
		"totalActive": stats.TotalActive,
	})
}

func (rr *registryRoutes) roles(w http.ResponseWriter, r *http.Request) {
	roles, err := rr.ledger.RegistryRoles(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"admin":          roles.Admin.String(),
		"verifier":       roles.Verifier.String(),
		"borrowContract": roles.BorrowContract.String(),
	})
}

func (rr *registryRoutes) setVerifier(w http.ResponseWriter, r *http.Request) {
	adminAddressUpdate(w, r, rr.ledger.SetVerifier)
}

func (rr *registryRoutes) setBorrowContract(w http.ResponseWriter, r *http.Request) {
	adminAddressUpdate(w, r, rr.ledger.SetRegistryBorrowContract)
}

func (rr *registryRoutes) pause(w http.ResponseWriter, r *http.Request) {
	adminToggle(w, r, rr.ledger.PauseRegistry, true)
}

func (rr *registryRoutes) unpause(w http.ResponseWriter, r *http.Request) {
	adminToggle(w, r, rr.ledger.UnpauseRegistry, false)
}
