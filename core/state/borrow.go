package state

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"nexumfi/crypto"
	"nexumfi/native/borrow"
)

type storedLoan struct {
	ID                 uint64
	Borrower           [20]byte
	ReceivableIDs      []uint64
	Principal          *big.Int
	AccruedInterest    *big.Int
	InterestRemainder  *big.Int
	InterestRateBps    uint64
	CollateralValue    *big.Int
	BorrowedAt         uint64
	DueDate            uint64
	LastInterestUpdate uint64
	Status             uint8
	ClosedAt           uint64
	Liquidator         [20]byte
}

type storedBorrowConfig struct {
	BaseInterestRateBps     uint64
	MaxLTVBps               uint64
	LiquidationThresholdBps uint64
	LiquidationPenaltyBps   uint64
	RiskDiscountFactorBps   uint64
	MaxLoanDuration         uint64
	SingleActiveLoan        bool
}

type storedBorrowRoles struct {
	Admin [20]byte
}

func newStoredLoan(l *borrow.Loan) (*storedLoan, error) {
	stamps := make([]uint64, 4)
	for i, ts := range []int64{l.BorrowedAt, l.DueDate, l.LastInterestUpdate, l.ClosedAt} {
		v, err := toUnixField(ts)
		if err != nil {
			return nil, err
		}
		stamps[i] = v
	}
	return &storedLoan{
		ID:                 l.ID,
		Borrower:           l.Borrower,
		ReceivableIDs:      append([]uint64(nil), l.ReceivableIDs...),
		Principal:          cloneBig(l.Principal),
		AccruedInterest:    cloneBig(l.AccruedInterest),
		InterestRemainder:  cloneBig(l.InterestRemainder),
		InterestRateBps:    l.InterestRateBps,
		CollateralValue:    cloneBig(l.CollateralValue),
		BorrowedAt:         stamps[0],
		DueDate:            stamps[1],
		LastInterestUpdate: stamps[2],
		Status:             uint8(l.Status),
		ClosedAt:           stamps[3],
		Liquidator:         l.Liquidator,
	}, nil
}

func (s *storedLoan) toLoan() (*borrow.Loan, error) {
	status := borrow.LoanStatus(s.Status)
	if !status.Valid() {
		return nil, fmt.Errorf("borrow: invalid stored loan status %d", s.Status)
	}
	stamps := make([]int64, 4)
	for i, ts := range []uint64{s.BorrowedAt, s.DueDate, s.LastInterestUpdate, s.ClosedAt} {
		v, err := fromUnixField(ts)
		if err != nil {
			return nil, err
		}
		stamps[i] = v
	}
	return &borrow.Loan{
		ID:                 s.ID,
		Borrower:           crypto.Address(s.Borrower),
		ReceivableIDs:      append([]uint64(nil), s.ReceivableIDs...),
		Principal:          cloneBig(s.Principal),
		AccruedInterest:    cloneBig(s.AccruedInterest),
		InterestRemainder:  cloneBig(s.InterestRemainder),
		InterestRateBps:    s.InterestRateBps,
		CollateralValue:    cloneBig(s.CollateralValue),
		BorrowedAt:         stamps[0],
		DueDate:            stamps[1],
		LastInterestUpdate: stamps[2],
		Status:             status,
		ClosedAt:           stamps[3],
		Liquidator:         crypto.Address(s.Liquidator),
	}, nil
}

// BorrowRoles loads the borrow engine admin.
func (m *Manager) BorrowRoles() (*borrow.Roles, bool, error) {
	var stored storedBorrowRoles
	ok, err := m.KVGet(borrowRolesKeyBytes, &stored)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &borrow.Roles{Admin: crypto.Address(stored.Admin)}, true, nil
}

// PutBorrowRoles persists the borrow engine admin.
func (m *Manager) PutBorrowRoles(r *borrow.Roles) error {
	if r == nil {
		return fmt.Errorf("borrow: nil roles")
	}
	return m.KVPut(borrowRolesKeyBytes, &storedBorrowRoles{Admin: r.Admin})
}

// BorrowConfig loads the loan parameters.
func (m *Manager) BorrowConfig() (*borrow.Config, bool, error) {
	var stored storedBorrowConfig
	ok, err := m.KVGet(borrowConfigKeyBytes, &stored)
	if err != nil || !ok {
		return nil, ok, err
	}
	duration, err := fromUnixField(stored.MaxLoanDuration)
	if err != nil {
		return nil, false, err
	}
	return &borrow.Config{
		BaseInterestRateBps:     stored.BaseInterestRateBps,
		MaxLTVBps:               stored.MaxLTVBps,
		LiquidationThresholdBps: stored.LiquidationThresholdBps,
		LiquidationPenaltyBps:   stored.LiquidationPenaltyBps,
		RiskDiscountFactorBps:   stored.RiskDiscountFactorBps,
		MaxLoanDuration:         duration,
		SingleActiveLoan:        stored.SingleActiveLoan,
	}, true, nil
}

// PutBorrowConfig persists the loan parameters.
func (m *Manager) PutBorrowConfig(c *borrow.Config) error {
	if c == nil {
		return fmt.Errorf("borrow: nil config")
	}
	duration, err := toUnixField(c.MaxLoanDuration)
	if err != nil {
		return err
	}
	return m.KVPut(borrowConfigKeyBytes, &storedBorrowConfig{
		BaseInterestRateBps:     c.BaseInterestRateBps,
		MaxLTVBps:               c.MaxLTVBps,
		LiquidationThresholdBps: c.LiquidationThresholdBps,
		LiquidationPenaltyBps:   c.LiquidationPenaltyBps,
		RiskDiscountFactorBps:   c.RiskDiscountFactorBps,
		MaxLoanDuration:         duration,
		SingleActiveLoan:        c.SingleActiveLoan,
	})
}

// BorrowStats loads the origination counters, defaulting to zero.
func (m *Manager) BorrowStats() (*borrow.Stats, error) {
	stats := &borrow.Stats{TotalBorrowed: big.NewInt(0)}
	if _, err := m.KVGet(borrowStatsKeyBytes, stats); err != nil {
		return nil, err
	}
	if stats.TotalBorrowed == nil {
		stats.TotalBorrowed = big.NewInt(0)
	}
	return stats, nil
}

// PutBorrowStats persists the origination counters.
func (m *Manager) PutBorrowStats(s *borrow.Stats) error {
	if s == nil {
		return fmt.Errorf("borrow: nil stats")
	}
	return m.KVPut(borrowStatsKeyBytes, &borrow.Stats{TotalLoans: s.TotalLoans, TotalBorrowed: cloneBig(s.TotalBorrowed)})
}

// LoanGet loads a loan by id.
func (m *Manager) LoanGet(id uint64) (*borrow.Loan, bool, error) {
	var stored storedLoan
	ok, err := m.KVGet(LoanKey(id), &stored)
	if err != nil || !ok {
		return nil, ok, err
	}
	loan, err := stored.toLoan()
	if err != nil {
		return nil, false, err
	}
	return loan, true, nil
}

// LoanPut persists a loan under its id.
func (m *Manager) LoanPut(l *borrow.Loan) error {
	if l == nil {
		return fmt.Errorf("borrow: nil loan")
	}
	stored, err := newStoredLoan(l)
	if err != nil {
		return err
	}
	return m.KVPut(LoanKey(l.ID), stored)
}

// BorrowerLoans returns the ids of every loan opened by addr in origination
// order.
func (m *Manager) BorrowerLoans(addr crypto.Address) ([]uint64, error) {
	var raw [][]byte
	if err := m.KVGetList(BorrowerIndexKey(addr), &raw); err != nil {
		return nil, err
	}
	ids := make([]uint64, 0, len(raw))
	for _, entry := range raw {
		if len(entry) != 8 {
			return nil, fmt.Errorf("borrow: malformed borrower index entry")
		}
		ids = append(ids, binary.BigEndian.Uint64(entry))
	}
	return ids, nil
}

// AppendBorrowerLoan records a new loan id in the borrower index.
func (m *Manager) AppendBorrowerLoan(addr crypto.Address, id uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], id)
	return m.KVAppend(BorrowerIndexKey(addr), buf[:])
}
