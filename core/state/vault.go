package state

import (
	"fmt"
	"math/big"

	"nexumfi/crypto"
	"nexumfi/native/vault"
)

type storedVaultState struct {
	TotalDeposits       *big.Int
	TotalBorrowed       *big.Int
	TotalShares         *big.Int
	TotalInterestEarned *big.Int
	ProtocolReserves    *big.Int
	MinDeposit          *big.Int
	MaxUtilizationBps   uint64
	ReserveFactorBps    uint64
	ShareEpoch          uint64 `rlp:"optional"`
}

type storedVaultRoles struct {
	Admin          [20]byte
	BorrowContract [20]byte
}

type storedPosition struct {
	Shares           *big.Int
	DepositTimestamp uint64
	Epoch            uint64 `rlp:"optional"`
}

// VaultRoles loads the vault role holders.
func (m *Manager) VaultRoles() (*vault.Roles, bool, error) {
	var stored storedVaultRoles
	ok, err := m.KVGet(vaultRolesKeyBytes, &stored)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &vault.Roles{Admin: crypto.Address(stored.Admin), BorrowContract: crypto.Address(stored.BorrowContract)}, true, nil
}

// PutVaultRoles persists the vault role holders.
func (m *Manager) PutVaultRoles(r *vault.Roles) error {
	if r == nil {
		return fmt.Errorf("vault: nil roles")
	}
	return m.KVPut(vaultRolesKeyBytes, &storedVaultRoles{Admin: r.Admin, BorrowContract: r.BorrowContract})
}

// VaultState loads the vault singleton.
func (m *Manager) VaultState() (*vault.State, bool, error) {
	var stored storedVaultState
	ok, err := m.KVGet(vaultStateKeyBytes, &stored)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &vault.State{
		TotalDeposits:       cloneBig(stored.TotalDeposits),
		TotalBorrowed:       cloneBig(stored.TotalBorrowed),
		TotalShares:         cloneBig(stored.TotalShares),
		TotalInterestEarned: cloneBig(stored.TotalInterestEarned),
		ProtocolReserves:    cloneBig(stored.ProtocolReserves),
		ShareEpoch:          stored.ShareEpoch,
		Config: vault.Config{
			MinDeposit:        cloneBig(stored.MinDeposit),
			MaxUtilizationBps: stored.MaxUtilizationBps,
			ReserveFactorBps:  stored.ReserveFactorBps,
		},
	}, true, nil
}

// PutVaultState persists the vault singleton.
func (m *Manager) PutVaultState(s *vault.State) error {
	if s == nil {
		return fmt.Errorf("vault: nil state")
	}
	return m.KVPut(vaultStateKeyBytes, &storedVaultState{
		TotalDeposits:       cloneBig(s.TotalDeposits),
		TotalBorrowed:       cloneBig(s.TotalBorrowed),
		TotalShares:         cloneBig(s.TotalShares),
		TotalInterestEarned: cloneBig(s.TotalInterestEarned),
		ProtocolReserves:    cloneBig(s.ProtocolReserves),
		MinDeposit:          cloneBig(s.Config.MinDeposit),
		MaxUtilizationBps:   s.Config.MaxUtilizationBps,
		ReserveFactorBps:    s.Config.ReserveFactorBps,
		ShareEpoch:          s.ShareEpoch,
	})
}

// VaultPosition loads a depositor's LP position.
func (m *Manager) VaultPosition(addr crypto.Address) (*vault.Position, bool, error) {
	var stored storedPosition
	ok, err := m.KVGet(VaultPositionKey(addr), &stored)
	if err != nil || !ok {
		return nil, ok, err
	}
	ts, err := fromUnixField(stored.DepositTimestamp)
	if err != nil {
		return nil, false, err
	}
	return &vault.Position{Shares: cloneBig(stored.Shares), DepositTimestamp: ts, Epoch: stored.Epoch}, true, nil
}

// PutVaultPosition persists a depositor's LP position. Zero-share positions
// are kept as tombstones.
func (m *Manager) PutVaultPosition(addr crypto.Address, pos *vault.Position) error {
	if pos == nil {
		return fmt.Errorf("vault: nil position")
	}
	ts, err := toUnixField(pos.DepositTimestamp)
	if err != nil {
		return err
	}
	return m.KVPut(VaultPositionKey(addr), &storedPosition{Shares: cloneBig(pos.Shares), DepositTimestamp: ts, Epoch: pos.Epoch})
}
