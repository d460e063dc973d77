package ledger

import (
	"context"
	"math/big"

	"nexumfi/crypto"
	"nexumfi/native/vault"
)

// Deposit adds liquidity for caller and returns the shares minted.
func (l *Ledger) Deposit(ctx context.Context, caller crypto.Address, amount *big.Int) (*big.Int, error) {
	var shares *big.Int
	err := l.execute(ctx, "vault_deposit", func(e *env) error {
		var err error
		shares, err = e.vault.Deposit(caller, amount)
		return err
	})
	return shares, err
}

// Withdraw burns shares for caller and returns the amount paid out.
func (l *Ledger) Withdraw(ctx context.Context, caller crypto.Address, shares *big.Int) (*big.Int, error) {
	var amount *big.Int
	err := l.execute(ctx, "vault_withdraw", func(e *env) error {
		var err error
		amount, err = e.vault.Withdraw(caller, shares)
		return err
	})
	return amount, err
}

// SetVaultBorrow changes the account allowed to draw on the vault.
func (l *Ledger) SetVaultBorrow(ctx context.Context, caller, addr crypto.Address) error {
	return l.execute(ctx, "vault_set_borrow", func(e *env) error {
		return e.vault.SetBorrow(caller, addr)
	})
}

// SetVaultConfig replaces the vault parameters.
func (l *Ledger) SetVaultConfig(ctx context.Context, caller crypto.Address, cfg vault.Config) error {
	return l.execute(ctx, "vault_set_config", func(e *env) error {
		return e.vault.SetConfig(caller, cfg)
	})
}

// WithdrawReserves pays protocol reserves to recipient.
func (l *Ledger) WithdrawReserves(ctx context.Context, caller, recipient crypto.Address, amount *big.Int) error {
	return l.execute(ctx, "vault_withdraw_reserves", func(e *env) error {
		return e.vault.WithdrawReserves(caller, recipient, amount)
	})
}

// PauseVault halts vault mutations.
func (l *Ledger) PauseVault(ctx context.Context, caller crypto.Address) error {
	return l.execute(ctx, "vault_pause", func(e *env) error {
		return e.vault.Pause(caller)
	})
}

// UnpauseVault resumes vault mutations.
func (l *Ledger) UnpauseVault(ctx context.Context, caller crypto.Address) error {
	return l.execute(ctx, "vault_unpause", func(e *env) error {
		return e.vault.Unpause(caller)
	})
}

// VaultState returns a snapshot of the pool.
func (l *Ledger) VaultState(ctx context.Context) (*vault.State, error) {
	var st *vault.State
	err := l.view(ctx, "vault_state", func(e *env) error {
		var err error
		st, err = e.vault.State()
		return err
	})
	return st, err
}

// Position returns the LP position of addr.
func (l *Ledger) Position(ctx context.Context, addr crypto.Address) (*vault.Position, error) {
	var pos *vault.Position
	err := l.view(ctx, "vault_position", func(e *env) error {
		var err error
		pos, err = e.vault.Position(addr)
		return err
	})
	return pos, err
}

// SharesValue converts shares to their current redemption amount.
func (l *Ledger) SharesValue(ctx context.Context, shares *big.Int) (*big.Int, error) {
	var value *big.Int
	err := l.view(ctx, "vault_shares_value", func(e *env) error {
		var err error
		value, err = e.vault.SharesValue(shares)
		return err
	})
	return value, err
}

// Available returns the liquidity that can be lent or withdrawn.
func (l *Ledger) Available(ctx context.Context) (*big.Int, error) {
	var available *big.Int
	err := l.view(ctx, "vault_available", func(e *env) error {
		var err error
		available, err = e.vault.Available()
		return err
	})
	return available, err
}

// TotalAssets returns the LP-owned book value.
func (l *Ledger) TotalAssets(ctx context.Context) (*big.Int, error) {
	var total *big.Int
	err := l.view(ctx, "vault_total_assets", func(e *env) error {
		var err error
		total, err = e.vault.TotalAssets()
		return err
	})
	return total, err
}

// Utilization returns borrowed over deposits in basis points.
func (l *Ledger) Utilization(ctx context.Context) (uint64, error) {
	var bps uint64
	err := l.view(ctx, "vault_utilization", func(e *env) error {
		var err error
		bps, err = e.vault.Utilization()
		return err
	})
	return bps, err
}

// VaultRoles returns the vault role holders.
func (l *Ledger) VaultRoles(ctx context.Context) (*vault.Roles, error) {
	var roles *vault.Roles
	err := l.view(ctx, "vault_roles", func(e *env) error {
		var err error
		roles, err = e.vault.Roles()
		return err
	})
	return roles, err
}
