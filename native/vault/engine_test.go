package vault

import (
	"errors"
	"math/big"
	"testing"

	"nexumfi/core/events"
	"nexumfi/crypto"
)

type mockState struct {
	roles     *Roles
	vault     *State
	positions map[crypto.Address]*Position
	paused    map[string]bool
}

func newMockState() *mockState {
	return &mockState{positions: make(map[crypto.Address]*Position), paused: make(map[string]bool)}
}

func (m *mockState) VaultRoles() (*Roles, bool, error) {
	if m.roles == nil {
		return nil, false, nil
	}
	clone := *m.roles
	return &clone, true, nil
}

func (m *mockState) PutVaultRoles(r *Roles) error {
	clone := *r
	m.roles = &clone
	return nil
}

func (m *mockState) VaultState() (*State, bool, error) {
	if m.vault == nil {
		return nil, false, nil
	}
	return m.vault.Clone(), true, nil
}

func (m *mockState) PutVaultState(s *State) error {
	m.vault = s.Clone()
	return nil
}

func (m *mockState) VaultPosition(addr crypto.Address) (*Position, bool, error) {
	pos, ok := m.positions[addr]
	if !ok {
		return nil, false, nil
	}
	return pos.Clone(), true, nil
}

func (m *mockState) PutVaultPosition(addr crypto.Address, pos *Position) error {
	m.positions[addr] = pos.Clone()
	return nil
}

func (m *mockState) SetModulePaused(module string, paused bool) error {
	m.paused[module] = paused
	return nil
}

func (m *mockState) IsPaused(module string) bool { return m.paused[module] }

var (
	admin  = crypto.Address{0x01}
	borrow = crypto.Address{0x02}
	lpA    = crypto.Address{0x0a}
	lpB    = crypto.Address{0x0b}
	debtor = crypto.Address{0x0c}
)

func newTestEngine(t *testing.T, cfg Config) (*Engine, *mockState) {
	t.Helper()
	st := newMockState()
	engine := NewEngine()
	engine.SetState(st)
	engine.SetPauses(st)
	engine.SetNowFunc(func() int64 { return 42 })
	if err := engine.Initialize(admin, cfg); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if err := engine.SetBorrow(admin, borrow); err != nil {
		t.Fatalf("set borrow: %v", err)
	}
	return engine, st
}

func defaultConfig() Config {
	return Config{MinDeposit: big.NewInt(100), MaxUtilizationBps: 8_000, ReserveFactorBps: 1_000}
}

func mustDeposit(t *testing.T, e *Engine, who crypto.Address, amount int64) *big.Int {
	t.Helper()
	shares, err := e.Deposit(who, big.NewInt(amount))
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	return shares
}

func sharesValue(t *testing.T, e *Engine, who crypto.Address) *big.Int {
	t.Helper()
	pos, err := e.Position(who)
	if err != nil {
		t.Fatalf("position: %v", err)
	}
	value, err := e.SharesValue(pos.Shares)
	if err != nil {
		t.Fatalf("shares value: %v", err)
	}
	return value
}

func TestInitializeValidatesConfig(t *testing.T) {
	st := newMockState()
	engine := NewEngine()
	engine.SetState(st)
	if err := engine.Initialize(admin, Config{MaxUtilizationBps: 10_001}); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected invalid config, got %v", err)
	}
	if err := engine.Initialize(admin, defaultConfig()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if err := engine.Initialize(admin, defaultConfig()); !errors.Is(err, ErrAlreadyInitialized) {
		t.Fatalf("expected already initialized, got %v", err)
	}
}

func TestDepositMintsShares(t *testing.T) {
	engine, st := newTestEngine(t, defaultConfig())

	if _, err := engine.Deposit(lpA, big.NewInt(0)); !errors.Is(err, ErrZeroAmount) {
		t.Fatalf("expected zero amount, got %v", err)
	}
	if _, err := engine.Deposit(lpA, big.NewInt(99)); !errors.Is(err, ErrInsufficientDeposit) {
		t.Fatalf("expected insufficient deposit, got %v", err)
	}
	if shares := mustDeposit(t, engine, lpA, 1_000); shares.Int64() != 1_000 {
		t.Fatalf("bootstrap deposit must be 1:1, got %s", shares)
	}
	// Simulate accrued yield so the share price is above one.
	st.vault.TotalDeposits = big.NewInt(1_500)
	if shares := mustDeposit(t, engine, lpB, 1_000); shares.Int64() != 666 {
		t.Fatalf("expected proportional shares rounded down, got %s", shares)
	}
	pos, _ := engine.Position(lpB)
	if pos.DepositTimestamp != 42 {
		t.Fatalf("deposit timestamp not stamped")
	}
}

func TestDepositDoesNotDilute(t *testing.T) {
	engine, st := newTestEngine(t, defaultConfig())
	mustDeposit(t, engine, lpA, 1_000)
	st.vault.TotalDeposits = big.NewInt(1_337)
	before := sharesValue(t, engine, lpA)
	for _, amount := range []int64{101, 997, 12_345, 100} {
		mustDeposit(t, engine, lpB, amount)
		after := sharesValue(t, engine, lpA)
		if after.Cmp(before) < 0 {
			t.Fatalf("existing LP diluted: %s -> %s", before, after)
		}
		before = after
	}
}

func TestSharePriceStableAcrossDepositsAndWithdrawals(t *testing.T) {
	engine, _ := newTestEngine(t, defaultConfig())
	mustDeposit(t, engine, lpA, 1_000)
	mustDeposit(t, engine, lpB, 2_500)
	if _, err := engine.Withdraw(lpA, big.NewInt(400)); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	mustDeposit(t, engine, lpA, 700)
	st, _ := engine.State()
	if st.TotalDeposits.Cmp(st.TotalShares) != 0 {
		t.Fatalf("share price drifted: deposits %s shares %s", st.TotalDeposits, st.TotalShares)
	}
}

func TestWithdrawRules(t *testing.T) {
	engine, _ := newTestEngine(t, defaultConfig())
	mustDeposit(t, engine, lpA, 1_000)

	if _, err := engine.Withdraw(lpA, big.NewInt(0)); !errors.Is(err, ErrZeroAmount) {
		t.Fatalf("expected zero amount, got %v", err)
	}
	if _, err := engine.Withdraw(lpA, big.NewInt(1_001)); !errors.Is(err, ErrInsufficientShares) {
		t.Fatalf("expected insufficient shares, got %v", err)
	}
	if err := engine.Disburse(borrow, debtor, big.NewInt(800)); err != nil {
		t.Fatalf("disburse: %v", err)
	}
	if _, err := engine.Withdraw(lpA, big.NewInt(300)); !errors.Is(err, ErrInsufficientLiquidity) {
		t.Fatalf("expected insufficient liquidity, got %v", err)
	}
	amount, err := engine.Withdraw(lpA, big.NewInt(200))
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if amount.Int64() != 200 {
		t.Fatalf("unexpected amount %s", amount)
	}
}

func TestWithdrawAllLeavesTombstone(t *testing.T) {
	engine, st := newTestEngine(t, defaultConfig())
	mustDeposit(t, engine, lpA, 500)
	if _, err := engine.Withdraw(lpA, big.NewInt(500)); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	pos, ok := st.positions[lpA]
	if !ok || pos.Shares.Sign() != 0 {
		t.Fatalf("expected zero-share tombstone, got %+v", pos)
	}
	vault, _ := engine.State()
	if vault.TotalShares.Sign() != 0 || vault.TotalDeposits.Sign() != 0 {
		t.Fatalf("empty pool must have no shares and no deposits")
	}
}

func TestUtilizationCapBindsDisbursement(t *testing.T) {
	engine, st := newTestEngine(t, defaultConfig())
	mustDeposit(t, engine, lpA, 1_000)
	before := st.vault.Clone()

	if err := engine.Disburse(debtor, debtor, big.NewInt(10)); !errors.Is(err, ErrNotBorrowContract) {
		t.Fatalf("expected not borrow contract, got %v", err)
	}
	if err := engine.Disburse(borrow, debtor, big.NewInt(1_000)); !errors.Is(err, ErrMaxUtilizationExceeded) {
		t.Fatalf("expected utilization cap, got %v", err)
	}
	if st.vault.TotalBorrowed.Cmp(before.TotalBorrowed) != 0 {
		t.Fatalf("rejected disbursement mutated state")
	}
	if err := engine.Disburse(borrow, debtor, big.NewInt(800)); err != nil {
		t.Fatalf("disbursement at the cap must succeed: %v", err)
	}
	util, _ := engine.Utilization()
	if util != 8_000 {
		t.Fatalf("unexpected utilization %d", util)
	}
	if err := engine.Disburse(borrow, debtor, big.NewInt(1)); !errors.Is(err, ErrMaxUtilizationExceeded) {
		t.Fatalf("expected utilization cap, got %v", err)
	}
	available, _ := engine.Available()
	if available.Int64() != 200 {
		t.Fatalf("unexpected available %s", available)
	}
}

func TestRepaySplitsInterest(t *testing.T) {
	engine, _ := newTestEngine(t, defaultConfig())
	mustDeposit(t, engine, lpA, 1_000)
	if err := engine.Disburse(borrow, debtor, big.NewInt(500)); err != nil {
		t.Fatalf("disburse: %v", err)
	}
	if err := engine.Repay(borrow, debtor, big.NewInt(0), big.NewInt(0)); !errors.Is(err, ErrZeroAmount) {
		t.Fatalf("expected zero amount, got %v", err)
	}
	if err := engine.Repay(borrow, debtor, big.NewInt(500), big.NewInt(100)); err != nil {
		t.Fatalf("repay: %v", err)
	}
	st, _ := engine.State()
	if st.TotalBorrowed.Sign() != 0 {
		t.Fatalf("principal not returned")
	}
	if st.ProtocolReserves.Int64() != 10 || st.TotalInterestEarned.Int64() != 90 || st.TotalDeposits.Int64() != 1_090 {
		t.Fatalf("unexpected split %+v", st)
	}
	if value := sharesValue(t, engine, lpA); value.Int64() != 1_090 {
		t.Fatalf("LP did not receive yield, value %s", value)
	}
	if err := engine.Repay(borrow, debtor, big.NewInt(1), nil); !errors.Is(err, ErrOverflow) {
		t.Fatalf("repaying more principal than borrowed must fail, got %v", err)
	}
}

func TestLiquidationLossIsSocialized(t *testing.T) {
	engine, _ := newTestEngine(t, Config{MinDeposit: big.NewInt(1), MaxUtilizationBps: 9_000, ReserveFactorBps: 0})
	mustDeposit(t, engine, lpA, 3_000)
	mustDeposit(t, engine, lpB, 1_000)
	if err := engine.Disburse(borrow, debtor, big.NewInt(2_000)); err != nil {
		t.Fatalf("disburse: %v", err)
	}
	beforeA := sharesValue(t, engine, lpA)
	beforeB := sharesValue(t, engine, lpB)

	// Outstanding 2000 principal + 100 interest, only 1200 recovered.
	if err := engine.LiqRecv(borrow, big.NewInt(2_000), big.NewInt(1_200), big.NewInt(900)); err != nil {
		t.Fatalf("liq recv: %v", err)
	}
	lossA := new(big.Int).Sub(beforeA, sharesValue(t, engine, lpA))
	lossB := new(big.Int).Sub(beforeB, sharesValue(t, engine, lpB))
	if lossA.Int64() != 600 || lossB.Int64() != 200 {
		t.Fatalf("expected pro-rata losses 600/200, got %s/%s", lossA, lossB)
	}
	st, _ := engine.State()
	if st.TotalBorrowed.Sign() != 0 || st.TotalDeposits.Int64() != 3_200 {
		t.Fatalf("unexpected vault after liquidation %+v", st)
	}
	if err := engine.LiqRecv(borrow, big.NewInt(10), big.NewInt(2), big.NewInt(3)); !errors.Is(err, ErrInvalidProceeds) {
		t.Fatalf("expected invalid proceeds, got %v", err)
	}
}

func TestLiquidationRecoveringInterest(t *testing.T) {
	engine, _ := newTestEngine(t, defaultConfig())
	mustDeposit(t, engine, lpA, 1_000)
	if err := engine.Disburse(borrow, debtor, big.NewInt(500)); err != nil {
		t.Fatalf("disburse: %v", err)
	}
	if err := engine.LiqRecv(borrow, big.NewInt(500), big.NewInt(550), big.NewInt(0)); err != nil {
		t.Fatalf("liq recv: %v", err)
	}
	st, _ := engine.State()
	if st.TotalDeposits.Int64() != 1_045 || st.ProtocolReserves.Int64() != 5 {
		t.Fatalf("recovered interest not split: %+v", st)
	}
}

func TestDepositAfterTotalLossBurnsWorthlessShares(t *testing.T) {
	engine, _ := newTestEngine(t, Config{MinDeposit: big.NewInt(1), MaxUtilizationBps: 10_000, ReserveFactorBps: 0})
	collector := &events.Collector{}
	engine.SetEmitter(collector)
	mustDeposit(t, engine, lpA, 1_000)
	if err := engine.Disburse(borrow, debtor, big.NewInt(1_000)); err != nil {
		t.Fatalf("disburse: %v", err)
	}
	if err := engine.LiqRecv(borrow, big.NewInt(1_000), big.NewInt(0), big.NewInt(1_050)); err != nil {
		t.Fatalf("liq recv: %v", err)
	}
	st, _ := engine.State()
	if st.TotalDeposits.Sign() != 0 || st.TotalShares.Int64() != 1_000 {
		t.Fatalf("expected wiped-out pool with outstanding shares, got %+v", st)
	}
	collector.Drain()

	minted, err := engine.Deposit(lpB, big.NewInt(500))
	if err != nil {
		t.Fatalf("deposit after total loss: %v", err)
	}
	if minted.Int64() != 500 {
		t.Fatalf("expected 1:1 mint after reset, got %s", minted)
	}
	st, _ = engine.State()
	if st.TotalShares.Int64() != 500 || st.TotalDeposits.Int64() != 500 || st.ShareEpoch != 1 {
		t.Fatalf("unexpected vault after reset %+v", st)
	}
	var resets int
	for _, evt := range collector.Drain() {
		payload, ok := events.ToPayload(evt)
		if ok && payload.Type == EventTypeSharesReset {
			resets++
			if payload.Attributes["burned"] != "1000" {
				t.Fatalf("unexpected burned amount %q", payload.Attributes["burned"])
			}
		}
	}
	if resets != 1 {
		t.Fatalf("expected one shares reset event, got %d", resets)
	}

	// The old holder keeps a zero-share tombstone and cannot drain the new pool.
	old, err := engine.Position(lpA)
	if err != nil {
		t.Fatalf("position: %v", err)
	}
	if old.Shares.Sign() != 0 || old.DepositTimestamp != 42 {
		t.Fatalf("expected zeroed tombstone, got %+v", old)
	}
	if _, err := engine.Withdraw(lpA, big.NewInt(1)); !errors.Is(err, ErrInsufficientShares) {
		t.Fatalf("expected insufficient shares for stale holder, got %v", err)
	}
	if got := sharesValue(t, engine, lpB); got.Int64() != 500 {
		t.Fatalf("new depositor should own the pool, got %s", got)
	}

	// Re-entering mints into the current epoch only.
	mustDeposit(t, engine, lpA, 250)
	pos, _ := engine.Position(lpA)
	if pos.Shares.Int64() != 250 || pos.Epoch != 1 {
		t.Fatalf("unexpected re-entry position %+v", pos)
	}
}

func TestReservesAndAdmin(t *testing.T) {
	engine, st := newTestEngine(t, defaultConfig())
	st.vault.ProtocolReserves = big.NewInt(50)
	if err := engine.WithdrawReserves(lpA, lpA, big.NewInt(10)); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected not authorized, got %v", err)
	}
	if err := engine.WithdrawReserves(admin, lpA, big.NewInt(51)); !errors.Is(err, ErrInsufficientLiquidity) {
		t.Fatalf("expected insufficient reserves, got %v", err)
	}
	if err := engine.WithdrawReserves(admin, lpA, big.NewInt(20)); err != nil {
		t.Fatalf("withdraw reserves: %v", err)
	}
	if st.vault.ProtocolReserves.Int64() != 30 {
		t.Fatalf("reserves not reduced")
	}
	if err := engine.SetBorrow(lpA, lpB); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected not authorized, got %v", err)
	}
	if err := engine.SetConfig(admin, Config{MaxUtilizationBps: 0}); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected invalid config, got %v", err)
	}
}

func TestPause(t *testing.T) {
	engine, _ := newTestEngine(t, defaultConfig())
	if err := engine.Pause(lpA); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected not authorized, got %v", err)
	}
	if err := engine.Pause(admin); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if _, err := engine.Deposit(lpA, big.NewInt(1_000)); !errors.Is(err, ErrContractPaused) {
		t.Fatalf("expected paused, got %v", err)
	}
	if err := engine.Disburse(borrow, debtor, big.NewInt(1)); !errors.Is(err, ErrContractPaused) {
		t.Fatalf("expected paused, got %v", err)
	}
	if err := engine.Unpause(admin); err != nil {
		t.Fatalf("unpause: %v", err)
	}
	mustDeposit(t, engine, lpA, 1_000)
}
