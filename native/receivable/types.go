package receivable

import (
	"math/big"

	"nexumfi/crypto"
)

// Status enumerates the lifecycle states of a tokenized receivable.
type Status uint8

const (
	StatusActive Status = iota
	StatusCollateralized
	StatusMatured
	StatusSettled
	StatusDefaulted
)

// MaxRiskScore bounds the risk score recorded at mint time.
const MaxRiskScore uint32 = 100

// Valid reports whether the status value is within the supported range.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusCollateralized, StatusMatured, StatusSettled, StatusDefaulted:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusSettled || s == StatusDefaulted
}

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusCollateralized:
		return "collateralized"
	case StatusMatured:
		return "matured"
	case StatusSettled:
		return "settled"
	case StatusDefaulted:
		return "defaulted"
	default:
		return "unknown"
	}
}

// Receivable is a tokenized claim on a future cash flow. Debtor and proof
// hashes are opaque digests produced off-ledger by the attestation service.
type Receivable struct {
	ID           uint64
	Owner        crypto.Address
	Creditor     crypto.Address
	FaceValue    *big.Int
	Currency     string
	IssuedAt     int64
	MaturityDate int64
	RiskScore    uint32
	MetadataURI  string
	DebtorHash   [32]byte
	ZKProofHash  [32]byte
	Status       Status

	// Locked is set while the receivable backs an open loan. It survives the
	// Collateralized -> Matured transition so pledged collateral cannot be
	// settled or transferred before the loan closes.
	Locked bool
}

// Clone returns a deep copy of the receivable.
func (r *Receivable) Clone() *Receivable {
	if r == nil {
		return nil
	}
	clone := *r
	if r.FaceValue != nil {
		clone.FaceValue = new(big.Int).Set(r.FaceValue)
	} else {
		clone.FaceValue = big.NewInt(0)
	}
	return &clone
}

// MintParams carries the attested figures supplied to Mint.
type MintParams struct {
	Creditor     crypto.Address
	DebtorHash   [32]byte
	FaceValue    *big.Int
	Currency     string
	MaturityDate int64
	ZKProofHash  [32]byte
	RiskScore    uint32
	MetadataURI  string
}

// Roles records the accounts holding privileged registry roles.
type Roles struct {
	Admin          crypto.Address
	Verifier       crypto.Address
	BorrowContract crypto.Address
}

// Stats aggregates registry counters. TotalMinted doubles as the id of the
// most recently minted receivable.
type Stats struct {
	TotalMinted uint64
	TotalActive uint64
}
