package vault

import (
	"math/big"

	"nexumfi/crypto"
)

// Config holds the admin-tunable vault parameters.
type Config struct {
	MinDeposit        *big.Int
	MaxUtilizationBps uint64
	ReserveFactorBps  uint64
}

// Clone returns a deep copy of the configuration.
func (c Config) Clone() Config {
	clone := c
	if c.MinDeposit != nil {
		clone.MinDeposit = new(big.Int).Set(c.MinDeposit)
	} else {
		clone.MinDeposit = big.NewInt(0)
	}
	return clone
}

// State is the singleton pooled-liquidity ledger. TotalDeposits is the LP
// owned book value, including funds currently lent out; ProtocolReserves is
// held outside it. ShareEpoch advances each time a wiped-out share supply is
// burned; positions from an earlier epoch hold no shares.
type State struct {
	TotalDeposits       *big.Int
	TotalBorrowed       *big.Int
	TotalShares         *big.Int
	TotalInterestEarned *big.Int
	ProtocolReserves    *big.Int
	ShareEpoch          uint64
	Config              Config
}

// Clone returns a deep copy of the vault state.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	return &State{
		TotalDeposits:       cloneBig(s.TotalDeposits),
		TotalBorrowed:       cloneBig(s.TotalBorrowed),
		TotalShares:         cloneBig(s.TotalShares),
		TotalInterestEarned: cloneBig(s.TotalInterestEarned),
		ProtocolReserves:    cloneBig(s.ProtocolReserves),
		ShareEpoch:          s.ShareEpoch,
		Config:              s.Config.Clone(),
	}
}

// Position tracks one depositor's shares. Fully withdrawn positions remain as
// zero-share records.
type Position struct {
	Shares           *big.Int
	DepositTimestamp int64
	Epoch            uint64
}

// Clone returns a deep copy of the position.
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	return &Position{Shares: cloneBig(p.Shares), DepositTimestamp: p.DepositTimestamp, Epoch: p.Epoch}
}

// Roles records the vault admin and the borrow engine account.
type Roles struct {
	Admin          crypto.Address
	BorrowContract crypto.Address
}

func cloneBig(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
