package routes

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"nexumfi/core/ledger"
	"nexumfi/crypto"
	"nexumfi/gateway/middleware"
	"nexumfi/native/borrow"
	nativecommon "nexumfi/native/common"
	"nexumfi/native/receivable"
	"nexumfi/native/vault"
)

const requestLimit = 1 << 20 // 1 MiB

var (
	errMissingCaller = errors.New("caller identity required")
	errBadRequest    = errors.New("bad request")
)

func badRequest(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

func decodeRequest(r *http.Request, dst interface{}) error {
	if r.Body == nil {
		return badRequest("missing request body")
	}
	defer r.Body.Close()

	data, err := io.ReadAll(io.LimitReader(r.Body, requestLimit))
	if err != nil {
		return badRequest("read request body: %v", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return badRequest("request body is empty")
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return badRequest("decode request: %v", err)
	}
	return nil
}

func caller(r *http.Request) (crypto.Address, error) {
	addr, ok := middleware.CallerFromContext(r.Context())
	if !ok {
		return crypto.Address{}, errMissingCaller
	}
	return addr, nil
}

func parseAmount(field, value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, badRequest("%s is required", field)
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, badRequest("%s must be a base-10 integer", field)
	}
	if amount.Sign() < 0 {
		return nil, badRequest("%s must not be negative", field)
	}
	return amount, nil
}

func parseAddress(field, value string) (crypto.Address, error) {
	addr, err := crypto.DecodeAddress(value)
	if err != nil {
		return crypto.Address{}, badRequest("%s: %v", field, err)
	}
	return addr, nil
}

func parseHash(field, value string) ([32]byte, error) {
	var out [32]byte
	trimmed := strings.TrimPrefix(strings.TrimSpace(value), "0x")
	if trimmed == "" {
		return out, nil
	}
	raw, err := hex.DecodeString(trimmed)
	if err != nil || len(raw) != len(out) {
		return out, badRequest("%s must be 32 hex-encoded bytes", field)
	}
	copy(out[:], raw)
	return out, nil
}

func idParam(r *http.Request, name string) (uint64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, badRequest("invalid %s %q", name, raw)
	}
	return id, nil
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, fmt.Errorf("marshal response: %w", err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeJSONError(w http.ResponseWriter, status int, err error) {
	message := http.StatusText(status)
	if err != nil && strings.TrimSpace(err.Error()) != "" {
		message = strings.TrimSpace(err.Error())
	}
	data, marshalErr := json.Marshal(map[string]string{"error": message})
	if marshalErr != nil {
		data = []byte(`{"error":"internal error"}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSONError(w, statusFor(err), err)
}

// statusFor maps ledger errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, errMissingCaller):
		return http.StatusUnauthorized
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, nativecommon.ErrModulePaused):
		return http.StatusServiceUnavailable
	case errors.Is(err, nativecommon.ErrOverflow):
		return http.StatusUnprocessableEntity
	}
	for _, target := range forbiddenErrors {
		if errors.Is(err, target) {
			return http.StatusForbidden
		}
	}
	for _, target := range notFoundErrors {
		if errors.Is(err, target) {
			return http.StatusNotFound
		}
	}
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return http.StatusBadRequest
		}
	}
	for _, target := range conflictErrors {
		if errors.Is(err, target) {
			return http.StatusConflict
		}
	}
	for _, target := range unprocessableErrors {
		if errors.Is(err, target) {
			return http.StatusUnprocessableEntity
		}
	}
	return http.StatusInternalServerError
}

var (
	forbiddenErrors = []error{
		receivable.ErrNotAuthorized, receivable.ErrNotVerifier, receivable.ErrNotOwner, receivable.ErrNotBorrowContract,
		vault.ErrNotAuthorized, vault.ErrNotBorrowContract,
		borrow.ErrNotAuthorized, borrow.ErrNotBorrower, borrow.ErrRecvNotOwned,
	}
	notFoundErrors = []error{
		receivable.ErrReceivableNotFound, borrow.ErrLoanNotFound,
	}
	validationErrors = []error{
		receivable.ErrInvalidMaturityDate, receivable.ErrInvalidFaceValue, receivable.ErrInvalidRiskScore, receivable.ErrInvalidAddress,
		vault.ErrZeroAmount, vault.ErrInvalidConfig, vault.ErrInvalidAddress,
		borrow.ErrZeroAmount, borrow.ErrInvalidDuration, borrow.ErrInvalidConfig, borrow.ErrInvalidAddress, borrow.ErrDuplicateReceivable,
		ledger.ErrInvalidGenesis,
	}
	conflictErrors = []error{
		receivable.ErrInvalidStatus, receivable.ErrTransferNotAllowed, receivable.ErrAlreadyInitialized, receivable.ErrNotInitialized,
		vault.ErrAlreadyInitialized, vault.ErrNotInitialized,
		borrow.ErrInvalidStatus, borrow.ErrAlreadyInitialized, borrow.ErrNotInitialized, borrow.ErrActiveLoanExists, borrow.ErrRecvNotActive,
	}
	unprocessableErrors = []error{
		receivable.ErrNotMatured,
		vault.ErrInsufficientDeposit, vault.ErrInsufficientShares, vault.ErrInsufficientLiquidity, vault.ErrMaxUtilizationExceeded, vault.ErrInvalidProceeds,
		borrow.ErrLTVExceeded, borrow.ErrInsufficientCollateral, borrow.ErrNotLiquidatable, borrow.ErrRepayExceedsBalance,
	}
)

type callerIDOp func(ctx context.Context, caller crypto.Address, id uint64) error

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func adminAddressUpdate(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, caller, addr crypto.Address) error) {
	from, err := caller(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req addressRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, err)
		return
	}
	addr, err := parseAddress("address", req.Address)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := op(r.Context(), from, addr); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"address": addr.String()})
}

func adminToggle(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, caller crypto.Address) error, paused bool) {
	from, err := caller(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := op(r.Context(), from); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"paused": paused})
}
