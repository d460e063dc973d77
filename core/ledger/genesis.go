package ledger

import (
	"context"
	"errors"

	"nexumfi/crypto"
	"nexumfi/native/borrow"
	"nexumfi/native/vault"
)

// ErrInvalidGenesis is returned when genesis parameters are incomplete.
var ErrInvalidGenesis = errors.New("ledger: invalid genesis")

// Genesis carries the parameters the three modules are initialised with.
type Genesis struct {
	Admin    crypto.Address
	Verifier crypto.Address
	Vault    vault.Config
	Borrow   borrow.Config
}

// Initialize sets up the registry, the vault and the borrow engine in one
// atomic operation and points the registry and vault at the borrow account.
func (l *Ledger) Initialize(ctx context.Context, g Genesis) error {
	if g.Admin.IsZero() || g.Verifier.IsZero() || l.borrowAddr.IsZero() {
		return ErrInvalidGenesis
	}
	return l.execute(ctx, "initialize", func(e *env) error {
		if err := e.registry.Initialize(g.Admin, g.Verifier, l.borrowAddr); err != nil {
			return err
		}
		if err := e.vault.Initialize(g.Admin, g.Vault); err != nil {
			return err
		}
		if err := e.vault.SetBorrow(g.Admin, l.borrowAddr); err != nil {
			return err
		}
		return e.borrow.Initialize(g.Admin, g.Borrow)
	})
}

// Initialized reports whether genesis has been applied.
func (l *Ledger) Initialized(ctx context.Context) (bool, error) {
	var ok bool
	err := l.view(ctx, "initialized", func(e *env) error {
		_, found, err := e.state.BorrowRoles()
		ok = found
		return err
	})
	return ok, err
}
