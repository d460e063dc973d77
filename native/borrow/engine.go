package borrow

import (
	"math/big"
	"strconv"
	"time"

	"nexumfi/core/events"
	"nexumfi/core/types"
	"nexumfi/crypto"
	nativecommon "nexumfi/native/common"
	"nexumfi/native/receivable"
)

// ModuleName is the pause key guarding the borrow engine.
const ModuleName = "borrow"

var basisPoints = new(big.Int).SetUint64(nativecommon.BasisPoints)

// Registry is the subset of the receivable registry the engine drives. Calls
// are made with the engine's module address as caller.
type Registry interface {
	Get(id uint64) (*receivable.Receivable, error)
	Lock(caller crypto.Address, id uint64) error
	Unlock(caller crypto.Address, id uint64) error
	MarkDefault(caller crypto.Address, id uint64) error
}

// Vault is the subset of the lending vault the engine drives.
type Vault interface {
	Disburse(caller, borrower crypto.Address, amount *big.Int) error
	Repay(caller, borrower crypto.Address, principal, interest *big.Int) error
	LiqRecv(caller crypto.Address, principal, recovered, shortfall *big.Int) error
	Utilization() (uint64, error)
}

type engineState interface {
	BorrowRoles() (*Roles, bool, error)
	PutBorrowRoles(*Roles) error
	BorrowConfig() (*Config, bool, error)
	PutBorrowConfig(*Config) error
	BorrowStats() (*Stats, error)
	PutBorrowStats(*Stats) error
	LoanGet(id uint64) (*Loan, bool, error)
	LoanPut(*Loan) error
	BorrowerLoans(addr crypto.Address) ([]uint64, error)
	AppendBorrowerLoan(addr crypto.Address, id uint64) error
	SetModulePaused(module string, paused bool) error
}

type borrowEvent struct {
	evt *types.Event
}

func (e borrowEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e borrowEvent) Event() *types.Event { return e.evt }

// Engine orchestrates loan origination, accrual, repayment and liquidation
// across the registry and the vault.
type Engine struct {
	state         engineState
	registry      Registry
	vault         Vault
	moduleAddress crypto.Address
	rateModel     RateModel
	pauses        nativecommon.PauseView
	emitter       events.Emitter
	nowFn         func() int64
}

// NewEngine constructs a borrow engine acting on the registry and vault as
// moduleAddr.
func NewEngine(moduleAddr crypto.Address) *Engine {
	return &Engine{
		moduleAddress: moduleAddr,
		rateModel:     FixedRate{},
		emitter:       events.NoopEmitter{},
		nowFn:         func() int64 { return time.Now().Unix() },
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetRegistry configures the collateral registry.
func (e *Engine) SetRegistry(r Registry) { e.registry = r }

// SetVault configures the liquidity vault.
func (e *Engine) SetVault(v Vault) { e.vault = v }

// SetRateModel configures how origination rates are derived. Passing nil
// restores the fixed base rate.
func (e *Engine) SetRateModel(model RateModel) {
	if model == nil {
		e.rateModel = FixedRate{}
		return
	}
	e.rateModel = model
}

func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetNowFunc overrides the time source used by the engine.
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

// ModuleAddress returns the account the engine uses when calling the
// registry and the vault.
func (e *Engine) ModuleAddress() crypto.Address { return e.moduleAddress }

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(borrowEvent{evt: event})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) roles() (*Roles, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	roles, ok, err := e.state.BorrowRoles()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotInitialized
	}
	return roles, nil
}

func (e *Engine) config() (*Config, error) {
	cfg, ok, err := e.state.BorrowConfig()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotInitialized
	}
	return cfg, nil
}

func (e *Engine) loadLoan(id uint64) (*Loan, error) {
	loan, ok, err := e.state.LoanGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLoanNotFound
	}
	return loan, nil
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

func (e *Engine) collaborators() error {
	if e.registry == nil || e.vault == nil {
		return errNilCollaborator
	}
	return nil
}

// Initialize stores the admin and the loan parameters.
func (e *Engine) Initialize(admin crypto.Address, cfg Config) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if _, ok, err := e.state.BorrowRoles(); err != nil {
		return err
	} else if ok {
		return ErrAlreadyInitialized
	}
	if admin.IsZero() {
		return ErrInvalidAddress
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := e.state.PutBorrowRoles(&Roles{Admin: admin}); err != nil {
		return err
	}
	if err := e.state.PutBorrowConfig(&cfg); err != nil {
		return err
	}
	if err := e.state.PutBorrowStats(&Stats{TotalBorrowed: big.NewInt(0)}); err != nil {
		return err
	}
	e.emit(newConfigEvent(EventTypeInitialized, admin, cfg))
	return nil
}

// Borrow originates a loan against the listed receivables. The loan record
// is written before the registry and vault are called and priced once the
// vault has disbursed; the surrounding ledger operation discards every write
// if any nested call fails.
func (e *Engine) Borrow(borrower crypto.Address, receivableIDs []uint64, amount *big.Int, duration int64) (uint64, error) {
	if _, err := e.roles(); err != nil {
		return 0, err
	}
	if err := nativecommon.Guard(e.pauses, ModuleName); err != nil {
		return 0, err
	}
	if err := e.collaborators(); err != nil {
		return 0, err
	}
	cfg, err := e.config()
	if err != nil {
		return 0, err
	}
	if duration <= 0 || duration > cfg.MaxLoanDuration {
		return 0, ErrInvalidDuration
	}
	if amount == nil || amount.Sign() <= 0 {
		return 0, ErrZeroAmount
	}
	if err := nativecommon.CheckAmount(amount); err != nil {
		return 0, err
	}
	if len(receivableIDs) == 0 {
		return 0, ErrInsufficientCollateral
	}
	seen := make(map[uint64]struct{}, len(receivableIDs))
	for _, id := range receivableIDs {
		if _, dup := seen[id]; dup {
			return 0, ErrDuplicateReceivable
		}
		seen[id] = struct{}{}
	}
	if cfg.SingleActiveLoan {
		if active, err := e.hasActiveLoan(borrower); err != nil {
			return 0, err
		} else if active {
			return 0, ErrActiveLoanExists
		}
	}

	faceTotal := big.NewInt(0)
	for _, id := range receivableIDs {
		rec, err := e.registry.Get(id)
		if err != nil {
			return 0, err
		}
		if rec.Owner != borrower {
			return 0, ErrRecvNotOwned
		}
		if rec.Status != receivable.StatusActive || rec.Locked {
			return 0, ErrRecvNotActive
		}
		if faceTotal, err = nativecommon.Add(faceTotal, rec.FaceValue); err != nil {
			return 0, err
		}
	}
	collateral, err := nativecommon.ApplyBps(faceTotal, cfg.RiskDiscountFactorBps)
	if err != nil {
		return 0, err
	}
	if collateral.Sign() == 0 {
		return 0, ErrInsufficientCollateral
	}
	lhs, err := nativecommon.Mul(amount, basisPoints)
	if err != nil {
		return 0, err
	}
	rhs, err := nativecommon.Mul(collateral, new(big.Int).SetUint64(cfg.MaxLTVBps))
	if err != nil {
		return 0, err
	}
	if lhs.Cmp(rhs) > 0 {
		return 0, ErrLTVExceeded
	}

	stats, err := e.state.BorrowStats()
	if err != nil {
		return 0, err
	}
	stats.TotalLoans++
	if stats.TotalBorrowed, err = nativecommon.Add(stats.TotalBorrowed, amount); err != nil {
		return 0, err
	}
	now := e.now()
	loan := &Loan{
		ID:                 stats.TotalLoans,
		Borrower:           borrower,
		ReceivableIDs:      append([]uint64(nil), receivableIDs...),
		Principal:          new(big.Int).Set(amount),
		AccruedInterest:    big.NewInt(0),
		InterestRemainder:  big.NewInt(0),
		CollateralValue:    collateral,
		BorrowedAt:         now,
		DueDate:            now + duration,
		LastInterestUpdate: now,
		Status:             LoanActive,
	}
	if err := e.state.LoanPut(loan); err != nil {
		return 0, err
	}
	if err := e.state.PutBorrowStats(stats); err != nil {
		return 0, err
	}
	if err := e.state.AppendBorrowerLoan(borrower, loan.ID); err != nil {
		return 0, err
	}

	for _, id := range loan.ReceivableIDs {
		if err := e.registry.Lock(e.moduleAddress, id); err != nil {
			return 0, err
		}
	}
	if err := e.vault.Disburse(e.moduleAddress, borrower, amount); err != nil {
		return 0, err
	}
	// Price against the utilization this loan produces.
	utilization, err := e.vault.Utilization()
	if err != nil {
		return 0, err
	}
	loan.InterestRateBps = e.rateModel.RateBps(*cfg, utilization)
	if err := e.state.LoanPut(loan); err != nil {
		return 0, err
	}
	e.emit(newLoanEvent(EventTypeLoanOriginated, loan, nil))
	return loan.ID, nil
}

func (e *Engine) hasActiveLoan(borrower crypto.Address) (bool, error) {
	ids, err := e.state.BorrowerLoans(borrower)
	if err != nil {
		return false, err
	}
	for _, id := range ids {
		loan, err := e.loadLoan(id)
		if err != nil {
			return false, err
		}
		if loan.Status == LoanActive {
			return true, nil
		}
	}
	return false, nil
}

// AccrueInterest materialises interest owed since the last update. Anyone may
// poke a loan; calling twice at the same timestamp adds nothing.
func (e *Engine) AccrueInterest(loanID uint64) (*big.Int, error) {
	if _, err := e.roles(); err != nil {
		return nil, err
	}
	if err := nativecommon.Guard(e.pauses, ModuleName); err != nil {
		return nil, err
	}
	loan, err := e.loadLoan(loanID)
	if err != nil {
		return nil, err
	}
	if loan.Status != LoanActive {
		return nil, ErrInvalidStatus
	}
	delta, err := accrue(loan, e.now())
	if err != nil {
		return nil, err
	}
	if err := e.state.LoanPut(loan); err != nil {
		return nil, err
	}
	if delta.Sign() > 0 {
		e.emit(newLoanEvent(EventTypeInterestAccrued, loan, map[string]string{"delta": delta.String()}))
	}
	return cloneBig(loan.AccruedInterest), nil
}

func (e *Engine) currentLTV(loan *Loan, now int64) (uint64, error) {
	total := loan.Outstanding()
	if loan.Status == LoanActive {
		pending, _, err := pendingInterest(loan, now)
		if err != nil {
			return 0, err
		}
		if total, err = nativecommon.Add(total, pending); err != nil {
			return 0, err
		}
	}
	if loan.CollateralValue == nil || loan.CollateralValue.Sign() == 0 {
		return 0, ErrInsufficientCollateral
	}
	ltv, _, err := nativecommon.MulDiv(total, basisPoints, loan.CollateralValue)
	if err != nil {
		return 0, err
	}
	if !ltv.IsUint64() {
		return 0, ErrOverflow
	}
	return ltv.Uint64(), nil
}

// GetLTV returns the loan's current loan-to-value in basis points, including
// interest accrued up to now that has not been materialised yet.
func (e *Engine) GetLTV(loanID uint64) (uint64, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	loan, err := e.loadLoan(loanID)
	if err != nil {
		return 0, err
	}
	return e.currentLTV(loan, e.now())
}

func (e *Engine) liquidatable(loan *Loan, cfg *Config, now int64) (bool, error) {
	if loan.Status != LoanActive {
		return false, nil
	}
	if now > loan.DueDate {
		return true, nil
	}
	ltv, err := e.currentLTV(loan, now)
	if err != nil {
		return false, err
	}
	return ltv >= cfg.LiquidationThresholdBps, nil
}

// IsLiquidatable reports whether the loan is active and either past due or
// at or above the liquidation threshold.
func (e *Engine) IsLiquidatable(loanID uint64) (bool, error) {
	if e == nil || e.state == nil {
		return false, errNilState
	}
	loan, err := e.loadLoan(loanID)
	if err != nil {
		return false, err
	}
	cfg, err := e.config()
	if err != nil {
		return false, err
	}
	return e.liquidatable(loan, cfg, e.now())
}

// RepayLoan applies a payment to accrued interest first and then principal.
// Payments above the outstanding balance are rejected. Clearing the balance
// closes the loan and releases its collateral.
func (e *Engine) RepayLoan(caller crypto.Address, loanID uint64, amount *big.Int) (*big.Int, error) {
	if _, err := e.roles(); err != nil {
		return nil, err
	}
	loan, err := e.loadLoan(loanID)
	if err != nil {
		return nil, err
	}
	if caller != loan.Borrower {
		return nil, ErrNotBorrower
	}
	if err := nativecommon.Guard(e.pauses, ModuleName); err != nil {
		return nil, err
	}
	if err := e.collaborators(); err != nil {
		return nil, err
	}
	if loan.Status != LoanActive {
		return nil, ErrInvalidStatus
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrZeroAmount
	}
	now := e.now()
	if _, err := accrue(loan, now); err != nil {
		return nil, err
	}
	outstanding, err := nativecommon.Add(loan.Principal, loan.AccruedInterest)
	if err != nil {
		return nil, err
	}
	if amount.Cmp(outstanding) > 0 {
		return nil, ErrRepayExceedsBalance
	}
	interestPaid := nativecommon.Min(amount, loan.AccruedInterest)
	principalPaid, err := nativecommon.Sub(amount, interestPaid)
	if err != nil {
		return nil, err
	}
	if loan.AccruedInterest, err = nativecommon.Sub(loan.AccruedInterest, interestPaid); err != nil {
		return nil, err
	}
	if loan.Principal, err = nativecommon.Sub(loan.Principal, principalPaid); err != nil {
		return nil, err
	}
	remaining, err := nativecommon.Add(loan.Principal, loan.AccruedInterest)
	if err != nil {
		return nil, err
	}
	closed := remaining.Sign() == 0
	if closed {
		loan.Status = LoanRepaid
		loan.ClosedAt = now
		loan.InterestRemainder = big.NewInt(0)
	}
	if err := e.state.LoanPut(loan); err != nil {
		return nil, err
	}

	if err := e.vault.Repay(e.moduleAddress, loan.Borrower, principalPaid, interestPaid); err != nil {
		return nil, err
	}
	if closed {
		if err := e.releaseCollateral(loan); err != nil {
			return nil, err
		}
	}
	extra := map[string]string{
		"amount":        amount.String(),
		"interestPaid":  interestPaid.String(),
		"principalPaid": principalPaid.String(),
		"remaining":     remaining.String(),
	}
	e.emit(newLoanEvent(EventTypeRepayment, loan, extra))
	if closed {
		e.emit(newLoanEvent(EventTypeLoanRepaid, loan, nil))
	}
	return remaining, nil
}

// releaseCollateral unlocks every receivable still pledged to the loan.
// Receivables written off by the admin in the meantime are skipped.
func (e *Engine) releaseCollateral(loan *Loan) error {
	for _, id := range loan.ReceivableIDs {
		rec, err := e.registry.Get(id)
		if err != nil {
			return err
		}
		pledged := rec.Status == receivable.StatusCollateralized ||
			(rec.Status == receivable.StatusMatured && rec.Locked)
		if !pledged {
			continue
		}
		if err := e.registry.Unlock(e.moduleAddress, id); err != nil {
			return err
		}
	}
	return nil
}

// Liquidate closes an unhealthy or overdue loan. Collateral is defaulted,
// its discounted value net of the penalty is credited to the vault and any
// shortfall is absorbed by depositors.
func (e *Engine) Liquidate(liquidator crypto.Address, loanID uint64) error {
	if _, err := e.roles(); err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, ModuleName); err != nil {
		return err
	}
	if err := e.collaborators(); err != nil {
		return err
	}
	cfg, err := e.config()
	if err != nil {
		return err
	}
	loan, err := e.loadLoan(loanID)
	if err != nil {
		return err
	}
	now := e.now()
	ok, err := e.liquidatable(loan, cfg, now)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotLiquidatable
	}
	if _, err := accrue(loan, now); err != nil {
		return err
	}
	outstanding, err := nativecommon.Add(loan.Principal, loan.AccruedInterest)
	if err != nil {
		return err
	}
	seized, err := nativecommon.ApplyBps(loan.CollateralValue, nativecommon.BasisPoints-cfg.LiquidationPenaltyBps)
	if err != nil {
		return err
	}
	recovered := nativecommon.Min(seized, outstanding)
	shortfall, err := nativecommon.Sub(outstanding, recovered)
	if err != nil {
		return err
	}
	loan.Status = LoanLiquidated
	loan.ClosedAt = now
	loan.Liquidator = liquidator
	if err := e.state.LoanPut(loan); err != nil {
		return err
	}

	for _, id := range loan.ReceivableIDs {
		rec, err := e.registry.Get(id)
		if err != nil {
			return err
		}
		if rec.Status != receivable.StatusCollateralized && rec.Status != receivable.StatusMatured {
			continue
		}
		if err := e.registry.MarkDefault(e.moduleAddress, id); err != nil {
			return err
		}
	}
	if err := e.vault.LiqRecv(e.moduleAddress, loan.Principal, recovered, shortfall); err != nil {
		return err
	}
	e.emit(newLoanEvent(EventTypeLoanLiquidated, loan, map[string]string{
		"liquidator": liquidator.String(),
		"recovered":  recovered.String(),
		"shortfall":  shortfall.String(),
	}))
	return nil
}

// GetConfig returns the active loan parameters.
func (e *Engine) GetConfig() (Config, error) {
	if e == nil || e.state == nil {
		return Config{}, errNilState
	}
	cfg, err := e.config()
	if err != nil {
		return Config{}, err
	}
	return *cfg, nil
}

// SetConfig replaces the loan parameters. Existing loans keep the rate and
// collateral value snapshotted at origination.
func (e *Engine) SetConfig(caller crypto.Address, cfg Config) error {
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := e.state.PutBorrowConfig(&cfg); err != nil {
		return err
	}
	e.emit(newConfigEvent(EventTypeConfigUpdated, caller, cfg))
	return nil
}

// GetLoan returns a copy of the loan.
func (e *Engine) GetLoan(loanID uint64) (*Loan, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	loan, err := e.loadLoan(loanID)
	if err != nil {
		return nil, err
	}
	return loan.Clone(), nil
}

// GetBorrowerLoans lists every loan id ever opened by the borrower.
func (e *Engine) GetBorrowerLoans(borrower crypto.Address) ([]uint64, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.state.BorrowerLoans(borrower)
}

// TotalLoans returns the number of loans ever originated.
func (e *Engine) TotalLoans() (uint64, error) {
	stats, err := e.Stats()
	if err != nil {
		return 0, err
	}
	return stats.TotalLoans, nil
}

// Stats returns the origination counters.
func (e *Engine) Stats() (*Stats, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.state.BorrowStats()
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
	e.emit(&types.Event{Type: eventType, Attributes: map[string]string{
		"actor":  caller.String(),
		"paused": strconv.FormatBool(paused),
	}})
	return nil
}

// Pause halts every state-mutating borrow operation.
func (e *Engine) Pause(caller crypto.Address) error { return e.setPaused(caller, true) }

// Unpause lifts a pause.
func (e *Engine) Unpause(caller crypto.Address) error { return e.setPaused(caller, false) }
