package vault

import (
	"math/big"
	"time"

	"nexumfi/core/events"
	"nexumfi/core/types"
	"nexumfi/crypto"
	nativecommon "nexumfi/native/common"
)

// ModuleName is the pause key guarding the vault.
const ModuleName = "vault"

var basisPoints = new(big.Int).SetUint64(nativecommon.BasisPoints)

type engineState interface {
	VaultRoles() (*Roles, bool, error)
	PutVaultRoles(*Roles) error
	VaultState() (*State, bool, error)
	PutVaultState(*State) error
	VaultPosition(addr crypto.Address) (*Position, bool, error)
	PutVaultPosition(addr crypto.Address, pos *Position) error
	SetModulePaused(module string, paused bool) error
}

type vaultEvent struct {
	evt *types.Event
}

func (e vaultEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e vaultEvent) Event() *types.Event { return e.evt }

// Engine implements LP share accounting and the loan funding book.
type Engine struct {
	state   engineState
	pauses  nativecommon.PauseView
	emitter events.Emitter
	nowFn   func() int64
}

// NewEngine creates a vault engine with a no-op emitter.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetNowFunc overrides the time source used when stamping deposits.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetEmitter configures the event emitter used by the engine.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(vaultEvent{evt: event})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

// ValidateConfig checks the ratio bounds of a vault configuration.
func ValidateConfig(cfg Config) error {
	if cfg.MaxUtilizationBps == 0 || cfg.MaxUtilizationBps > nativecommon.BasisPoints {
		return ErrInvalidConfig
	}
	if cfg.ReserveFactorBps > nativecommon.BasisPoints {
		return ErrInvalidConfig
	}
	if cfg.MinDeposit != nil && cfg.MinDeposit.Sign() < 0 {
		return ErrInvalidConfig
	}
	return nil
}

func (e *Engine) roles() (*Roles, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	roles, ok, err := e.state.VaultRoles()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotInitialized
	}
	return roles, nil
}

func (e *Engine) loadState() (*State, error) {
	st, ok, err := e.state.VaultState()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotInitialized
	}
	return st, nil
}

func (e *Engine) requireAdmin(caller crypto.Address) error {
	roles, err := e.roles()
	if err != nil {
		return err
	}
	if caller != roles.Admin {
		return ErrNotAuthorized
	}
	return nil
}

func (e *Engine) requireBorrowContract(caller crypto.Address) error {
	roles, err := e.roles()
	if err != nil {
		return err
	}
	if roles.BorrowContract.IsZero() || caller != roles.BorrowContract {
		return ErrNotBorrowContract
	}
	return nil
}

// Initialize creates the vault singleton.
func (e *Engine) Initialize(admin crypto.Address, cfg Config) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if _, ok, err := e.state.VaultRoles(); err != nil {
		return err
	} else if ok {
		return ErrAlreadyInitialized
	}
	if admin.IsZero() {
		return ErrInvalidAddress
	}
	if err := ValidateConfig(cfg); err != nil {
		return err
	}
	if err := e.state.PutVaultRoles(&Roles{Admin: admin}); err != nil {
		return err
	}
	st := &State{
		TotalDeposits:       big.NewInt(0),
		TotalBorrowed:       big.NewInt(0),
		TotalShares:         big.NewInt(0),
		TotalInterestEarned: big.NewInt(0),
		ProtocolReserves:    big.NewInt(0),
		Config:              cfg.Clone(),
	}
	if err := e.state.PutVaultState(st); err != nil {
		return err
	}
	e.emit(newVaultEvent(EventTypeInitialized, admin, map[string]*big.Int{
		"minDeposit":        st.Config.MinDeposit,
		"maxUtilizationBps": new(big.Int).SetUint64(cfg.MaxUtilizationBps),
		"reserveFactorBps":  new(big.Int).SetUint64(cfg.ReserveFactorBps),
	}))
	return nil
}

// Deposit adds liquidity and mints shares at the current share price,
// rounding down in favour of existing holders.
func (e *Engine) Deposit(depositor crypto.Address, amount *big.Int) (*big.Int, error) {
	if _, err := e.roles(); err != nil {
		return nil, err
	}
	if err := nativecommon.Guard(e.pauses, ModuleName); err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrZeroAmount
	}
	if depositor.IsZero() {
		return nil, ErrInvalidAddress
	}
	st, err := e.loadState()
	if err != nil {
		return nil, err
	}
	if st.Config.MinDeposit != nil && amount.Cmp(st.Config.MinDeposit) < 0 {
		return nil, ErrInsufficientDeposit
	}
	var burned *big.Int
	if st.TotalShares.Sign() > 0 && st.TotalDeposits.Sign() == 0 {
		// A total loss left shares with no assets behind them. Burn the
		// supply so the pool can bootstrap again; holders of the old epoch
		// keep zero-share tombstones.
		burned = st.TotalShares
		st.TotalShares = big.NewInt(0)
		st.ShareEpoch++
	}
	var minted *big.Int
	if st.TotalShares.Sign() == 0 {
		minted = new(big.Int).Set(amount)
	} else {
		minted, _, err = nativecommon.MulDiv(amount, st.TotalShares, st.TotalDeposits)
		if err != nil {
			return nil, err
		}
	}
	if minted.Sign() == 0 {
		return nil, ErrInsufficientDeposit
	}
	if st.TotalDeposits, err = nativecommon.Add(st.TotalDeposits, amount); err != nil {
		return nil, err
	}
	if st.TotalShares, err = nativecommon.Add(st.TotalShares, minted); err != nil {
		return nil, err
	}
	pos, err := e.position(depositor, st.ShareEpoch)
	if err != nil {
		return nil, err
	}
	if pos.Shares, err = nativecommon.Add(pos.Shares, minted); err != nil {
		return nil, err
	}
	pos.DepositTimestamp = e.now()
	if err := e.state.PutVaultState(st); err != nil {
		return nil, err
	}
	if err := e.state.PutVaultPosition(depositor, pos); err != nil {
		return nil, err
	}
	if burned != nil {
		e.emit(newVaultEvent(EventTypeSharesReset, crypto.Address{}, map[string]*big.Int{"burned": burned}))
	}
	e.emit(newVaultEvent(EventTypeDeposit, depositor, map[string]*big.Int{"amount": amount, "shares": minted}))
	return minted, nil
}

// position loads addr's position as seen in the given share epoch.
func (e *Engine) position(addr crypto.Address, epoch uint64) (*Position, error) {
	pos, ok, err := e.state.VaultPosition(addr)
	if err != nil {
		return nil, err
	}
	if !ok || pos == nil {
		return &Position{Shares: big.NewInt(0), Epoch: epoch}, nil
	}
	if pos.Shares == nil || pos.Epoch != epoch {
		pos.Shares = big.NewInt(0)
		pos.Epoch = epoch
	}
	return pos, nil
}

// Withdraw burns shares for their pro-rata claim on the pool. Only
// unborrowed liquidity can leave the vault.
func (e *Engine) Withdraw(depositor crypto.Address, shares *big.Int) (*big.Int, error) {
	if _, err := e.roles(); err != nil {
		return nil, err
	}
	if err := nativecommon.Guard(e.pauses, ModuleName); err != nil {
		return nil, err
	}
	if shares == nil || shares.Sign() <= 0 {
		return nil, ErrZeroAmount
	}
	st, err := e.loadState()
	if err != nil {
		return nil, err
	}
	pos, err := e.position(depositor, st.ShareEpoch)
	if err != nil {
		return nil, err
	}
	if pos.Shares.Cmp(shares) < 0 {
		return nil, ErrInsufficientShares
	}
	amount, _, err := nativecommon.MulDiv(shares, st.TotalDeposits, st.TotalShares)
	if err != nil {
		return nil, err
	}
	available, err := nativecommon.Sub(st.TotalDeposits, st.TotalBorrowed)
	if err != nil {
		return nil, err
	}
	if amount.Cmp(available) > 0 {
		return nil, ErrInsufficientLiquidity
	}
	if pos.Shares, err = nativecommon.Sub(pos.Shares, shares); err != nil {
		return nil, err
	}
	if st.TotalShares, err = nativecommon.Sub(st.TotalShares, shares); err != nil {
		return nil, err
	}
	if st.TotalDeposits, err = nativecommon.Sub(st.TotalDeposits, amount); err != nil {
		return nil, err
	}
	if err := e.state.PutVaultState(st); err != nil {
		return nil, err
	}
	if err := e.state.PutVaultPosition(depositor, pos); err != nil {
		return nil, err
	}
	e.emit(newVaultEvent(EventTypeWithdraw, depositor, map[string]*big.Int{"amount": amount, "shares": shares}))
	return amount, nil
}

// Disburse funds a loan. The post-disbursement utilization must stay within
// the configured cap.
func (e *Engine) Disburse(caller, borrower crypto.Address, amount *big.Int) error {
	if err := e.requireBorrowContract(caller); err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, ModuleName); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmount
	}
	st, err := e.loadState()
	if err != nil {
		return err
	}
	borrowed, err := nativecommon.Add(st.TotalBorrowed, amount)
	if err != nil {
		return err
	}
	lhs, err := nativecommon.Mul(borrowed, basisPoints)
	if err != nil {
		return err
	}
	rhs, err := nativecommon.Mul(st.TotalDeposits, new(big.Int).SetUint64(st.Config.MaxUtilizationBps))
	if err != nil {
		return err
	}
	if lhs.Cmp(rhs) > 0 {
		return ErrMaxUtilizationExceeded
	}
	st.TotalBorrowed = borrowed
	if err := e.state.PutVaultState(st); err != nil {
		return err
	}
	e.emit(newVaultEvent(EventTypeDisburse, borrower, map[string]*big.Int{"amount": amount}))
	return nil
}

// distributeInterest splits interest income between protocol reserves and
// depositors, who receive their part through a higher share price.
func distributeInterest(st *State, interest *big.Int) (*big.Int, error) {
	if interest == nil || interest.Sign() == 0 {
		return big.NewInt(0), nil
	}
	reserve, err := nativecommon.ApplyBps(interest, st.Config.ReserveFactorBps)
	if err != nil {
		return nil, err
	}
	lpShare, err := nativecommon.Sub(interest, reserve)
	if err != nil {
		return nil, err
	}
	if st.ProtocolReserves, err = nativecommon.Add(st.ProtocolReserves, reserve); err != nil {
		return nil, err
	}
	if st.TotalDeposits, err = nativecommon.Add(st.TotalDeposits, lpShare); err != nil {
		return nil, err
	}
	if st.TotalInterestEarned, err = nativecommon.Add(st.TotalInterestEarned, lpShare); err != nil {
		return nil, err
	}
	return reserve, nil
}

// Repay books a loan repayment split into principal and interest.
func (e *Engine) Repay(caller, borrower crypto.Address, principal, interest *big.Int) error {
	if err := e.requireBorrowContract(caller); err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, ModuleName); err != nil {
		return err
	}
	principal = cloneBig(principal)
	interest = cloneBig(interest)
	if principal.Sign() < 0 || interest.Sign() < 0 {
		return ErrOverflow
	}
	if principal.Sign() == 0 && interest.Sign() == 0 {
		return ErrZeroAmount
	}
	st, err := e.loadState()
	if err != nil {
		return err
	}
	if st.TotalBorrowed, err = nativecommon.Sub(st.TotalBorrowed, principal); err != nil {
		return err
	}
	reserve, err := distributeInterest(st, interest)
	if err != nil {
		return err
	}
	if err := e.state.PutVaultState(st); err != nil {
		return err
	}
	e.emit(newVaultEvent(EventTypeRepay, borrower, map[string]*big.Int{
		"principal": principal,
		"interest":  interest,
		"reserve":   reserve,
	}))
	return nil
}

// LiqRecv books the outcome of a liquidation. The written-off principal is
// removed from the pool so every LP absorbs the loss pro rata through the
// share price.
func (e *Engine) LiqRecv(caller crypto.Address, principal, recovered, shortfall *big.Int) error {
	if err := e.requireBorrowContract(caller); err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, ModuleName); err != nil {
		return err
	}
	principal = cloneBig(principal)
	recovered = cloneBig(recovered)
	shortfall = cloneBig(shortfall)
	if principal.Sign() <= 0 {
		return ErrZeroAmount
	}
	if recovered.Sign() < 0 || shortfall.Sign() < 0 {
		return ErrOverflow
	}
	outstanding, err := nativecommon.Add(recovered, shortfall)
	if err != nil {
		return err
	}
	if outstanding.Cmp(principal) < 0 {
		return ErrInvalidProceeds
	}
	st, err := e.loadState()
	if err != nil {
		return err
	}
	if st.TotalBorrowed, err = nativecommon.Sub(st.TotalBorrowed, principal); err != nil {
		return err
	}
	principalRecovered := nativecommon.Min(recovered, principal)
	loss, err := nativecommon.Sub(principal, principalRecovered)
	if err != nil {
		return err
	}
	if st.TotalDeposits, err = nativecommon.Sub(st.TotalDeposits, loss); err != nil {
		return err
	}
	interestRecovered, err := nativecommon.Sub(recovered, principalRecovered)
	if err != nil {
		return err
	}
	if _, err := distributeInterest(st, interestRecovered); err != nil {
		return err
	}
	if err := e.state.PutVaultState(st); err != nil {
		return err
	}
	e.emit(newVaultEvent(EventTypeLiquidation, crypto.Address{}, map[string]*big.Int{
		"principal": principal,
		"recovered": recovered,
		"shortfall": shortfall,
		"loss":      loss,
	}))
	return nil
}

// SetBorrow registers the borrow engine account.
func (e *Engine) SetBorrow(caller, borrow crypto.Address) error {
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	if borrow.IsZero() {
		return ErrInvalidAddress
	}
	roles, err := e.roles()
	if err != nil {
		return err
	}
	roles.BorrowContract = borrow
	if err := e.state.PutVaultRoles(roles); err != nil {
		return err
	}
	e.emit(newVaultEvent(EventTypeBorrowContractSet, borrow, nil))
	return nil
}

// SetConfig replaces the vault parameters. A lower utilization cap only
// constrains future disbursements.
func (e *Engine) SetConfig(caller crypto.Address, cfg Config) error {
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	if err := ValidateConfig(cfg); err != nil {
		return err
	}
	st, err := e.loadState()
	if err != nil {
		return err
	}
	st.Config = cfg.Clone()
	if err := e.state.PutVaultState(st); err != nil {
		return err
	}
	e.emit(newVaultEvent(EventTypeConfigUpdated, caller, map[string]*big.Int{
		"minDeposit":        st.Config.MinDeposit,
		"maxUtilizationBps": new(big.Int).SetUint64(cfg.MaxUtilizationBps),
		"reserveFactorBps":  new(big.Int).SetUint64(cfg.ReserveFactorBps),
	}))
	return nil
}

// WithdrawReserves pays accumulated protocol reserves out of the vault.
func (e *Engine) WithdrawReserves(caller, recipient crypto.Address, amount *big.Int) error {
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, ModuleName); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmount
	}
	if recipient.IsZero() {
		return ErrInvalidAddress
	}
	st, err := e.loadState()
	if err != nil {
		return err
	}
	if amount.Cmp(st.ProtocolReserves) > 0 {
		return ErrInsufficientLiquidity
	}
	if st.ProtocolReserves, err = nativecommon.Sub(st.ProtocolReserves, amount); err != nil {
		return err
	}
	if err := e.state.PutVaultState(st); err != nil {
		return err
	}
	e.emit(newVaultEvent(EventTypeReservesWithdrawn, recipient, map[string]*big.Int{"amount": amount}))
	return nil
}

func (e *Engine) setPaused(caller crypto.Address, paused bool) error {
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	if err := e.state.SetModulePaused(ModuleName, paused); err != nil {
		return err
	}
	eventType := EventTypeUnpaused
	if paused {
		eventType = EventTypePaused
	}
	e.emit(newVaultEvent(eventType, caller, nil))
	return nil
}

// Pause halts every state-mutating vault operation.
func (e *Engine) Pause(caller crypto.Address) error { return e.setPaused(caller, true) }

// Unpause lifts a pause.
func (e *Engine) Unpause(caller crypto.Address) error { return e.setPaused(caller, false) }

// SharesValue converts shares into their current claim on the pool.
func (e *Engine) SharesValue(shares *big.Int) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	st, err := e.loadState()
	if err != nil {
		return nil, err
	}
	if shares == nil || shares.Sign() <= 0 || st.TotalShares.Sign() == 0 {
		return big.NewInt(0), nil
	}
	value, _, err := nativecommon.MulDiv(shares, st.TotalDeposits, st.TotalShares)
	return value, err
}

// Available returns liquidity that is neither lent out nor reserved.
func (e *Engine) Available() (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	st, err := e.loadState()
	if err != nil {
		return nil, err
	}
	return nativecommon.Sub(st.TotalDeposits, st.TotalBorrowed)
}

// Utilization returns borrowed/deposits in basis points.
func (e *Engine) Utilization() (uint64, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	st, err := e.loadState()
	if err != nil {
		return 0, err
	}
	if st.TotalDeposits.Sign() == 0 {
		return 0, nil
	}
	util, _, err := nativecommon.MulDiv(st.TotalBorrowed, basisPoints, st.TotalDeposits)
	if err != nil {
		return 0, err
	}
	if !util.IsUint64() {
		return 0, ErrOverflow
	}
	return util.Uint64(), nil
}

// TotalAssets returns the LP-owned book value of the pool.
func (e *Engine) TotalAssets() (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	st, err := e.loadState()
	if err != nil {
		return nil, err
	}
	return cloneBig(st.TotalDeposits), nil
}

// State returns a copy of the vault singleton.
func (e *Engine) State() (*State, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	st, err := e.loadState()
	if err != nil {
		return nil, err
	}
	return st.Clone(), nil
}

// Position returns a copy of the depositor's position.
func (e *Engine) Position(addr crypto.Address) (*Position, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	st, ok, err := e.state.VaultState()
	if err != nil {
		return nil, err
	}
	var epoch uint64
	if ok {
		epoch = st.ShareEpoch
	}
	pos, err := e.position(addr, epoch)
	if err != nil {
		return nil, err
	}
	return pos.Clone(), nil
}

// Roles returns the configured vault role holders.
func (e *Engine) Roles() (*Roles, error) {
	roles, err := e.roles()
	if err != nil {
		return nil, err
	}
	clone := *roles
	return &clone, nil
}
