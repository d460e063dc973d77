package state

import (
	"encoding/hex"
	"strconv"

	"nexumfi/crypto"
)

var (
	receivableRolesKeyBytes = []byte("receivable/roles")
	receivableStatsKeyBytes = []byte("receivable/stats")
	receivableRecordPrefix  = "receivable/record/"
	vaultRolesKeyBytes      = []byte("vault/roles")
	vaultStateKeyBytes      = []byte("vault/state")
	vaultPositionPrefix     = "vault/position/"
	borrowRolesKeyBytes     = []byte("borrow/roles")
	borrowConfigKeyBytes    = []byte("borrow/config")
	borrowStatsKeyBytes     = []byte("borrow/stats")
	borrowLoanPrefix        = "borrow/loan/"
	borrowBorrowerPrefix    = "borrow/borrower/"
	pausePrefix             = "system/pauses/"
)

// ReceivableKey returns the storage namespace key for a receivable record.
func ReceivableKey(id uint64) []byte {
	return []byte(receivableRecordPrefix + strconv.FormatUint(id, 10))
}

// VaultPositionKey returns the key of a depositor's LP position.
func VaultPositionKey(addr crypto.Address) []byte {
	return []byte(vaultPositionPrefix + hex.EncodeToString(addr[:]))
}

// LoanKey returns the key of a loan record.
func LoanKey(id uint64) []byte {
	return []byte(borrowLoanPrefix + strconv.FormatUint(id, 10))
}

// BorrowerIndexKey returns the key of the borrower's loan id list.
func BorrowerIndexKey(addr crypto.Address) []byte {
	return []byte(borrowBorrowerPrefix + hex.EncodeToString(addr[:]))
}

func pauseKey(module string) []byte {
	return []byte(pausePrefix + module)
}
