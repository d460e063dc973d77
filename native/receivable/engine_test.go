package receivable

import (
	"errors"
	"math/big"
	"testing"

	"nexumfi/core/events"
	"nexumfi/crypto"
)

type mockState struct {
	roles   *Roles
	stats   Stats
	records map[uint64]*Receivable
	paused  map[string]bool
}

func newMockState() *mockState {
	return &mockState{records: make(map[uint64]*Receivable), paused: make(map[string]bool)}
}

func (m *mockState) ReceivableRoles() (*Roles, bool, error) {
	if m.roles == nil {
		return nil, false, nil
	}
	clone := *m.roles
	return &clone, true, nil
}

func (m *mockState) PutReceivableRoles(r *Roles) error {
	clone := *r
	m.roles = &clone
	return nil
}

func (m *mockState) ReceivableStats() (*Stats, error) {
	clone := m.stats
	return &clone, nil
}

func (m *mockState) PutReceivableStats(s *Stats) error {
	m.stats = *s
	return nil
}

func (m *mockState) ReceivableGet(id uint64) (*Receivable, bool, error) {
	rec, ok := m.records[id]
	if !ok {
		return nil, false, nil
	}
	return rec.Clone(), true, nil
}

func (m *mockState) ReceivablePut(r *Receivable) error {
	m.records[r.ID] = r.Clone()
	return nil
}

func (m *mockState) SetModulePaused(module string, paused bool) error {
	m.paused[module] = paused
	return nil
}

func (m *mockState) IsPaused(module string) bool { return m.paused[module] }

var (
	admin    = crypto.Address{0x01}
	verifier = crypto.Address{0x02}
	borrower = crypto.Address{0x03}
	alice    = crypto.Address{0x04}
	bob      = crypto.Address{0x05}
)

type fixture struct {
	engine *Engine
	state  *mockState
	events *events.Collector
	now    int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{state: newMockState(), events: &events.Collector{}, now: 1_000}
	f.engine = NewEngine()
	f.engine.SetState(f.state)
	f.engine.SetPauses(f.state)
	f.engine.SetEmitter(f.events)
	f.engine.SetNowFunc(func() int64 { return f.now })
	if err := f.engine.Initialize(admin, verifier, borrower); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	f.events.Drain()
	return f
}

func (f *fixture) mint(t *testing.T, owner crypto.Address, face int64) uint64 {
	t.Helper()
	id, err := f.engine.Mint(verifier, MintParams{
		Creditor:     owner,
		FaceValue:    big.NewInt(face),
		Currency:     "usdc",
		MaturityDate: f.now + 86_400,
		RiskScore:    20,
		DebtorHash:   [32]byte{0xde},
		ZKProofHash:  [32]byte{0xbe},
	})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	return id
}

func TestInitializeOnce(t *testing.T) {
	f := newFixture(t)
	if err := f.engine.Initialize(admin, verifier, borrower); !errors.Is(err, ErrAlreadyInitialized) {
		t.Fatalf("expected already initialized, got %v", err)
	}
	fresh := NewEngine()
	fresh.SetState(newMockState())
	if _, err := fresh.Mint(verifier, MintParams{}); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected not initialized, got %v", err)
	}
}

func TestMintValidation(t *testing.T) {
	f := newFixture(t)
	base := MintParams{Creditor: alice, FaceValue: big.NewInt(100), MaturityDate: f.now + 10}

	cases := []struct {
		name   string
		caller crypto.Address
		mutate func(*MintParams)
		want   error
	}{
		{name: "not verifier", caller: alice, want: ErrNotVerifier},
		{name: "zero face", caller: verifier, mutate: func(p *MintParams) { p.FaceValue = big.NewInt(0) }, want: ErrInvalidFaceValue},
		{name: "negative face", caller: verifier, mutate: func(p *MintParams) { p.FaceValue = big.NewInt(-5) }, want: ErrInvalidFaceValue},
		{name: "maturity now", caller: verifier, mutate: func(p *MintParams) { p.MaturityDate = f.now }, want: ErrInvalidMaturityDate},
		{name: "risk score", caller: verifier, mutate: func(p *MintParams) { p.RiskScore = 101 }, want: ErrInvalidRiskScore},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			params := base
			if tc.mutate != nil {
				tc.mutate(&params)
			}
			if _, err := f.engine.Mint(tc.caller, params); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
	if f.state.stats.TotalMinted != 0 {
		t.Fatalf("rejected mints must not advance the counter")
	}
}

func TestMintAssignsSequentialIDs(t *testing.T) {
	f := newFixture(t)
	first := f.mint(t, alice, 500)
	second := f.mint(t, bob, 700)
	if first != 1 || second != 2 {
		t.Fatalf("unexpected ids %d %d", first, second)
	}
	rec, err := f.engine.Get(first)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.Owner != alice || rec.Creditor != alice || rec.Status != StatusActive || rec.Currency != "USDC" {
		t.Fatalf("unexpected record %+v", rec)
	}
	if rec.IssuedAt != f.now {
		t.Fatalf("issued at %d", rec.IssuedAt)
	}
	stats, _ := f.engine.Stats()
	if stats.TotalMinted != 2 || stats.TotalActive != 2 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	emitted := f.events.Drain()
	if len(emitted) != 2 || emitted[0].EventType() != EventTypeMinted {
		t.Fatalf("expected mint events, got %d", len(emitted))
	}
}

func TestTransferRules(t *testing.T) {
	f := newFixture(t)
	id := f.mint(t, alice, 100)

	if err := f.engine.Transfer(bob, id, alice, bob); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected not authorized, got %v", err)
	}
	if err := f.engine.Transfer(bob, id, bob, alice); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected not owner, got %v", err)
	}
	if err := f.engine.Transfer(alice, id, alice, alice); !errors.Is(err, ErrTransferNotAllowed) {
		t.Fatalf("expected self transfer rejection, got %v", err)
	}
	if err := f.engine.Transfer(alice, id, alice, crypto.Address{}); !errors.Is(err, ErrTransferNotAllowed) {
		t.Fatalf("expected zero recipient rejection, got %v", err)
	}
	if err := f.engine.Transfer(alice, 99, alice, bob); !errors.Is(err, ErrReceivableNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := f.engine.Transfer(alice, id, alice, bob); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	rec, _ := f.engine.Get(id)
	if rec.Owner != bob {
		t.Fatalf("owner not updated")
	}

	if err := f.engine.Lock(borrower, id); err != nil {
		t.Fatalf("lock: %v", err)
	}
	if err := f.engine.Transfer(bob, id, bob, alice); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("collateralized receivables must not move, got %v", err)
	}
}

func TestLockUnlockRequiresBorrowContract(t *testing.T) {
	f := newFixture(t)
	id := f.mint(t, alice, 100)
	if err := f.engine.Lock(admin, id); !errors.Is(err, ErrNotBorrowContract) {
		t.Fatalf("expected not borrow contract, got %v", err)
	}
	if err := f.engine.Unlock(borrower, id); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("unlock of active receivable must fail, got %v", err)
	}
	if err := f.engine.Lock(borrower, id); err != nil {
		t.Fatalf("lock: %v", err)
	}
	if err := f.engine.Lock(borrower, id); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("double lock must fail, got %v", err)
	}
	if err := f.engine.Unlock(borrower, id); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	rec, _ := f.engine.Get(id)
	if rec.Status != StatusActive || rec.Locked {
		t.Fatalf("unexpected state after unlock %+v", rec)
	}
}

func TestMaturityWhilePledged(t *testing.T) {
	f := newFixture(t)
	id := f.mint(t, alice, 100)
	if err := f.engine.Lock(borrower, id); err != nil {
		t.Fatalf("lock: %v", err)
	}
	if err := f.engine.Mature(id); !errors.Is(err, ErrNotMatured) {
		t.Fatalf("expected not matured, got %v", err)
	}
	f.now += 86_400
	if err := f.engine.Mature(id); err != nil {
		t.Fatalf("mature: %v", err)
	}
	if err := f.engine.Settle(verifier, id); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("pledged receivable must not settle, got %v", err)
	}
	if err := f.engine.Unlock(borrower, id); err != nil {
		t.Fatalf("unlock matured: %v", err)
	}
	rec, _ := f.engine.Get(id)
	if rec.Status != StatusMatured || rec.Locked {
		t.Fatalf("unexpected state %+v", rec)
	}
	if err := f.engine.Settle(verifier, id); err != nil {
		t.Fatalf("settle: %v", err)
	}
	stats, _ := f.engine.Stats()
	if stats.TotalActive != 0 {
		t.Fatalf("settle must decrement active count")
	}
}

func TestTerminalStatesAreFinal(t *testing.T) {
	f := newFixture(t)
	settled := f.mint(t, alice, 100)
	if err := f.engine.Settle(alice, settled); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected not authorized, got %v", err)
	}
	if err := f.engine.Settle(admin, settled); err != nil {
		t.Fatalf("settle: %v", err)
	}
	if err := f.engine.Lock(borrower, settled); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("settled receivable must not lock")
	}
	if err := f.engine.MarkDefault(admin, settled); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("settled receivable must not default")
	}

	defaulted := f.mint(t, alice, 100)
	if err := f.engine.MarkDefault(admin, defaulted); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("active receivable must not default directly")
	}
	if err := f.engine.Lock(borrower, defaulted); err != nil {
		t.Fatalf("lock: %v", err)
	}
	if err := f.engine.MarkDefault(alice, defaulted); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected not authorized, got %v", err)
	}
	if err := f.engine.MarkDefault(borrower, defaulted); err != nil {
		t.Fatalf("default: %v", err)
	}
	if err := f.engine.Unlock(borrower, defaulted); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("defaulted receivable must not unlock")
	}
	if err := f.engine.Settle(admin, defaulted); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("defaulted receivable must not settle")
	}
	stats, _ := f.engine.Stats()
	if stats.TotalActive != 0 || stats.TotalMinted != 2 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestPauseBlocksMutations(t *testing.T) {
	f := newFixture(t)
	id := f.mint(t, alice, 100)
	if err := f.engine.Pause(alice); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected not authorized, got %v", err)
	}
	if err := f.engine.Pause(admin); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if _, err := f.engine.Mint(verifier, MintParams{Creditor: alice, FaceValue: big.NewInt(1), MaturityDate: f.now + 1}); !errors.Is(err, ErrContractPaused) {
		t.Fatalf("expected paused, got %v", err)
	}
	if err := f.engine.Transfer(alice, id, alice, bob); !errors.Is(err, ErrContractPaused) {
		t.Fatalf("expected paused, got %v", err)
	}
	if err := f.engine.Transfer(bob, id, alice, bob); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("authorization is checked before the pause, got %v", err)
	}
	if err := f.engine.Unpause(admin); err != nil {
		t.Fatalf("unpause: %v", err)
	}
	if err := f.engine.Transfer(alice, id, alice, bob); err != nil {
		t.Fatalf("transfer after unpause: %v", err)
	}
}

func TestRoleRotation(t *testing.T) {
	f := newFixture(t)
	if err := f.engine.SetVerifier(alice, bob); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected not authorized, got %v", err)
	}
	if err := f.engine.SetVerifier(admin, bob); err != nil {
		t.Fatalf("set verifier: %v", err)
	}
	if _, err := f.engine.Mint(verifier, MintParams{Creditor: alice, FaceValue: big.NewInt(1), MaturityDate: f.now + 1}); !errors.Is(err, ErrNotVerifier) {
		t.Fatalf("old verifier must lose minting rights, got %v", err)
	}
	if err := f.engine.SetBorrowContract(admin, crypto.Address{}); !errors.Is(err, ErrInvalidAddress) {
		t.Fatalf("expected invalid address, got %v", err)
	}
	roles, _ := f.engine.Roles()
	if roles.Verifier != bob {
		t.Fatalf("verifier not rotated")
	}
}
