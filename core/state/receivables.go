package state

import (
	"fmt"
	"math/big"

	"nexumfi/crypto"
	"nexumfi/native/receivable"
)

type storedReceivable struct {
	ID           uint64
	Owner        [20]byte
	Creditor     [20]byte
	FaceValue    *big.Int
	Currency     string
	IssuedAt     uint64
	MaturityDate uint64
	RiskScore    uint32
	MetadataURI  string
	DebtorHash   [32]byte
	ZKProofHash  [32]byte
	Status       uint8
	Locked       bool
}

func toUnixField(ts int64) (uint64, error) {
	if ts < 0 {
		return 0, fmt.Errorf("state: negative timestamp %d", ts)
	}
	return uint64(ts), nil
}

func fromUnixField(ts uint64) (int64, error) {
	if ts > 1<<62 {
		return 0, fmt.Errorf("state: timestamp out of range")
	}
	return int64(ts), nil
}

func newStoredReceivable(r *receivable.Receivable) (*storedReceivable, error) {
	issued, err := toUnixField(r.IssuedAt)
	if err != nil {
		return nil, err
	}
	maturity, err := toUnixField(r.MaturityDate)
	if err != nil {
		return nil, err
	}
	return &storedReceivable{
		ID:           r.ID,
		Owner:        r.Owner,
		Creditor:     r.Creditor,
		FaceValue:    cloneBig(r.FaceValue),
		Currency:     r.Currency,
		IssuedAt:     issued,
		MaturityDate: maturity,
		RiskScore:    r.RiskScore,
		MetadataURI:  r.MetadataURI,
		DebtorHash:   r.DebtorHash,
		ZKProofHash:  r.ZKProofHash,
		Status:       uint8(r.Status),
		Locked:       r.Locked,
	}, nil
}

func (s *storedReceivable) toReceivable() (*receivable.Receivable, error) {
	if s == nil {
		return nil, fmt.Errorf("receivable: nil storage record")
	}
	status := receivable.Status(s.Status)
	if !status.Valid() {
		return nil, fmt.Errorf("receivable: invalid stored status %d", s.Status)
	}
	issued, err := fromUnixField(s.IssuedAt)
	if err != nil {
		return nil, err
	}
	maturity, err := fromUnixField(s.MaturityDate)
	if err != nil {
		return nil, err
	}
	return &receivable.Receivable{
		ID:           s.ID,
		Owner:        crypto.Address(s.Owner),
		Creditor:     crypto.Address(s.Creditor),
		FaceValue:    cloneBig(s.FaceValue),
		Currency:     s.Currency,
		IssuedAt:     issued,
		MaturityDate: maturity,
		RiskScore:    s.RiskScore,
		MetadataURI:  s.MetadataURI,
		DebtorHash:   s.DebtorHash,
		ZKProofHash:  s.ZKProofHash,
		Status:       status,
		Locked:       s.Locked,
	}, nil
}

type storedReceivableRoles struct {
	Admin          [20]byte
	Verifier       [20]byte
	BorrowContract [20]byte
}

// ReceivableRoles loads the registry role holders.
func (m *Manager) ReceivableRoles() (*receivable.Roles, bool, error) {
	var stored storedReceivableRoles
	ok, err := m.KVGet(receivableRolesKeyBytes, &stored)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &receivable.Roles{
		Admin:          crypto.Address(stored.Admin),
		Verifier:       crypto.Address(stored.Verifier),
		BorrowContract: crypto.Address(stored.BorrowContract),
	}, true, nil
}

// PutReceivableRoles persists the registry role holders.
func (m *Manager) PutReceivableRoles(r *receivable.Roles) error {
	if r == nil {
		return fmt.Errorf("receivable: nil roles")
	}
	return m.KVPut(receivableRolesKeyBytes, &storedReceivableRoles{
		Admin:          r.Admin,
		Verifier:       r.Verifier,
		BorrowContract: r.BorrowContract,
	})
}

// ReceivableStats loads the registry counters, defaulting to zero.
func (m *Manager) ReceivableStats() (*receivable.Stats, error) {
	stats := new(receivable.Stats)
	if _, err := m.KVGet(receivableStatsKeyBytes, stats); err != nil {
		return nil, err
	}
	return stats, nil
}

// PutReceivableStats persists the registry counters.
func (m *Manager) PutReceivableStats(s *receivable.Stats) error {
	if s == nil {
		return fmt.Errorf("receivable: nil stats")
	}
	return m.KVPut(receivableStatsKeyBytes, s)
}

// ReceivableGet loads a receivable by id.
func (m *Manager) ReceivableGet(id uint64) (*receivable.Receivable, bool, error) {
	var stored storedReceivable
	ok, err := m.KVGet(ReceivableKey(id), &stored)
	if err != nil || !ok {
		return nil, ok, err
	}
	rec, err := stored.toReceivable()
	if err != nil {
		return nil, false, err
	}
	return rec, true, nil
}

// ReceivablePut persists a receivable under its id.
func (m *Manager) ReceivablePut(r *receivable.Receivable) error {
	if r == nil {
		return fmt.Errorf("receivable: nil record")
	}
	stored, err := newStoredReceivable(r)
	if err != nil {
		return err
	}
	return m.KVPut(ReceivableKey(r.ID), stored)
}

func cloneBig(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
