package ledger

import (
	"context"

	"nexumfi/crypto"
	"nexumfi/native/receivable"
)

// Mint records a verified receivable owned by its creditor.
func (l *Ledger) Mint(ctx context.Context, caller crypto.Address, params receivable.MintParams) (uint64, error) {
	var id uint64
	err := l.execute(ctx, "receivable_mint", func(e *env) error {
		var err error
		id, err = e.registry.Mint(caller, params)
		return err
	})
	return id, err
}

// TransferReceivable moves an unencumbered receivable between owners.
func (l *Ledger) TransferReceivable(ctx context.Context, caller crypto.Address, id uint64, from, to crypto.Address) error {
	return l.execute(ctx, "receivable_transfer", func(e *env) error {
		return e.registry.Transfer(caller, id, from, to)
	})
}

// MatureReceivable flags a receivable whose maturity date has passed.
func (l *Ledger) MatureReceivable(ctx context.Context, id uint64) error {
	return l.execute(ctx, "receivable_mature", func(e *env) error {
		return e.registry.Mature(id)
	})
}

// SettleReceivable marks a receivable as paid by its debtor.
func (l *Ledger) SettleReceivable(ctx context.Context, caller crypto.Address, id uint64) error {
	return l.execute(ctx, "receivable_settle", func(e *env) error {
		return e.registry.Settle(caller, id)
	})
}

// MarkReceivableDefault writes a pledged or matured receivable off.
func (l *Ledger) MarkReceivableDefault(ctx context.Context, caller crypto.Address, id uint64) error {
	return l.execute(ctx, "receivable_mark_default", func(e *env) error {
		return e.registry.MarkDefault(caller, id)
	})
}

// PauseRegistry halts registry mutations.
func (l *Ledger) PauseRegistry(ctx context.Context, caller crypto.Address) error {
	return l.execute(ctx, "receivable_pause", func(e *env) error {
		return e.registry.Pause(caller)
	})
}

// UnpauseRegistry resumes registry mutations.
func (l *Ledger) UnpauseRegistry(ctx context.Context, caller crypto.Address) error {
	return l.execute(ctx, "receivable_unpause", func(e *env) error {
		return e.registry.Unpause(caller)
	})
}

// SetVerifier rotates the attestation verifier.
func (l *Ledger) SetVerifier(ctx context.Context, caller, verifier crypto.Address) error {
	return l.execute(ctx, "receivable_set_verifier", func(e *env) error {
		return e.registry.SetVerifier(caller, verifier)
	})
}

// SetRegistryBorrowContract changes the account allowed to lock collateral.
// Loans can only be originated while it matches BorrowAddress.
func (l *Ledger) SetRegistryBorrowContract(ctx context.Context, caller, addr crypto.Address) error {
	return l.execute(ctx, "receivable_set_borrow_contract", func(e *env) error {
		return e.registry.SetBorrowContract(caller, addr)
	})
}

// Receivable returns a receivable by id.
func (l *Ledger) Receivable(ctx context.Context, id uint64) (*receivable.Receivable, error) {
	var rec *receivable.Receivable
	err := l.view(ctx, "receivable_get", func(e *env) error {
		var err error
		rec, err = e.registry.Get(id)
		return err
	})
	return rec, err
}

// RegistryStats returns the registry counters.
func (l *Ledger) RegistryStats(ctx context.Context) (*receivable.Stats, error) {
	var stats *receivable.Stats
	err := l.view(ctx, "receivable_stats", func(e *env) error {
		var err error
		stats, err = e.registry.Stats()
		return err
	})
	return stats, err
}

// RegistryRoles returns the registry role holders.
func (l *Ledger) RegistryRoles(ctx context.Context) (*receivable.Roles, error) {
	var roles *receivable.Roles
	err := l.view(ctx, "receivable_roles", func(e *env) error {
		var err error
		roles, err = e.registry.Roles()
		return err
	})
	return roles, err
}
