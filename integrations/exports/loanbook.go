package exports

import (
	"bytes"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"math/big"
	"strconv"
	"strings"
	"time"

	"nexumfi/native/borrow"
)

var loanBookHeader = []string{
	"loan_id", "borrower", "receivable_ids", "principal", "accrued_interest", "outstanding",
	"collateral_value", "interest_rate_bps", "borrowed_at", "due_date", "status", "closed_at", "liquidator",
}

// LoanBookCSV builds a CSV export of the supplied loans and returns the
// serialised data alongside a SHA-256 checksum of the payload.
func LoanBookCSV(loans []*borrow.Loan) ([]byte, string, error) {
	buffer := &bytes.Buffer{}
	writer := csv.NewWriter(buffer)
	if err := writer.Write(loanBookHeader); err != nil {
		return nil, "", err
	}
	for _, loan := range loans {
		if loan == nil {
			continue
		}
		row := rowFrom(loan)
		record := []string{
			strconv.FormatUint(row.LoanID, 10),
			row.Borrower,
			row.ReceivableIDs,
			row.Principal,
			row.AccruedInterest,
			row.Outstanding,
			row.CollateralValue,
			strconv.FormatUint(row.InterestRateBps, 10),
			row.BorrowedAt,
			row.DueDate,
			row.Status,
			row.ClosedAt,
			row.Liquidator,
		}
		if err := writer.Write(record); err != nil {
			return nil, "", err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, "", err
	}
	return checksummed(buffer.Bytes())
}

// LoanBookJSONL builds a JSON Lines export of the supplied loans.
func LoanBookJSONL(loans []*borrow.Loan) ([]byte, string, error) {
	buffer := &bytes.Buffer{}
	encoder := json.NewEncoder(buffer)
	encoder.SetEscapeHTML(false)
	for _, loan := range loans {
		if loan == nil {
			continue
		}
		if err := encoder.Encode(rowFrom(loan)); err != nil {
			return nil, "", err
		}
	}
	return checksummed(buffer.Bytes())
}

func checksummed(data []byte) ([]byte, string, error) {
	checksum := sha256.Sum256(data)
	return data, hex.EncodeToString(checksum[:]), nil
}

// loanRow is the flattened loan representation shared by every format.
// Amounts stay decimal strings so no precision is lost.
type loanRow struct {
	LoanID          uint64 `json:"loan_id" parquet:"name=loan_id, type=INT64, convertedtype=UINT_64"`
	Borrower        string `json:"borrower" parquet:"name=borrower, type=BYTE_ARRAY, convertedtype=UTF8"`
	ReceivableIDs   string `json:"receivable_ids" parquet:"name=receivable_ids, type=BYTE_ARRAY, convertedtype=UTF8"`
	Principal       string `json:"principal" parquet:"name=principal, type=BYTE_ARRAY, convertedtype=UTF8"`
	AccruedInterest string `json:"accrued_interest" parquet:"name=accrued_interest, type=BYTE_ARRAY, convertedtype=UTF8"`
	Outstanding     string `json:"outstanding" parquet:"name=outstanding, type=BYTE_ARRAY, convertedtype=UTF8"`
	CollateralValue string `json:"collateral_value" parquet:"name=collateral_value, type=BYTE_ARRAY, convertedtype=UTF8"`
	InterestRateBps uint64 `json:"interest_rate_bps" parquet:"name=interest_rate_bps, type=INT64, convertedtype=UINT_64"`
	BorrowedAt      string `json:"borrowed_at" parquet:"name=borrowed_at, type=BYTE_ARRAY, convertedtype=UTF8"`
	DueDate         string `json:"due_date" parquet:"name=due_date, type=BYTE_ARRAY, convertedtype=UTF8"`
	Status          string `json:"status" parquet:"name=status, type=BYTE_ARRAY, convertedtype=UTF8"`
	ClosedAt        string `json:"closed_at" parquet:"name=closed_at, type=BYTE_ARRAY, convertedtype=UTF8"`
	Liquidator      string `json:"liquidator" parquet:"name=liquidator, type=BYTE_ARRAY, convertedtype=UTF8"`
}

func rowFrom(loan *borrow.Loan) loanRow {
	ids := make([]string, len(loan.ReceivableIDs))
	for i, id := range loan.ReceivableIDs {
		ids[i] = strconv.FormatUint(id, 10)
	}
	liquidator := ""
	if !loan.Liquidator.IsZero() {
		liquidator = loan.Liquidator.String()
	}
	return loanRow{
		LoanID:          loan.ID,
		Borrower:        loan.Borrower.String(),
		ReceivableIDs:   strings.Join(ids, ";"),
		Principal:       amount(loan.Principal),
		AccruedInterest: amount(loan.AccruedInterest),
		Outstanding:     loan.Outstanding().String(),
		CollateralValue: amount(loan.CollateralValue),
		InterestRateBps: loan.InterestRateBps,
		BorrowedAt:      formatUnix(loan.BorrowedAt),
		DueDate:         formatUnix(loan.DueDate),
		Status:          loan.Status.String(),
		ClosedAt:        formatUnix(loan.ClosedAt),
		Liquidator:      liquidator,
	}
}

func amount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func formatUnix(ts int64) string {
	if ts <= 0 {
		return ""
	}
	return time.Unix(ts, 0).UTC().Format(time.RFC3339)
}
