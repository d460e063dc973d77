package receivable

import (
	"math/big"
	"strings"
	"time"

	"nexumfi/core/events"
	"nexumfi/core/types"
	"nexumfi/crypto"
	nativecommon "nexumfi/native/common"
)

// ModuleName is the pause key guarding the registry.
const ModuleName = "receivable"

type engineState interface {
	ReceivableRoles() (*Roles, bool, error)
	PutReceivableRoles(*Roles) error
	ReceivableStats() (*Stats, error)
	PutReceivableStats(*Stats) error
	ReceivableGet(id uint64) (*Receivable, bool, error)
	ReceivablePut(*Receivable) error
	SetModulePaused(module string, paused bool) error
}

type registryEvent struct {
	evt *types.Event
}

func (e registryEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e registryEvent) Event() *types.Event { return e.evt }

// Engine implements the receivable registry state machine.
type Engine struct {
	state   engineState
	pauses  nativecommon.PauseView
	emitter events.Emitter
	nowFn   func() int64
}

// NewEngine creates a registry engine with a no-op emitter and the wall
// clock as time source.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

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

// SetEmitter configures the event emitter used by the engine. Passing nil resets
// the emitter to a no-op implementation.
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
	e.emitter.Emit(registryEvent{evt: event})
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
	roles, ok, err := e.state.ReceivableRoles()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotInitialized
	}
	return roles, nil
}

func (e *Engine) load(id uint64) (*Receivable, error) {
	rec, ok, err := e.state.ReceivableGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrReceivableNotFound
	}
	return rec, nil
}

func (e *Engine) adjustActive(delta int) error {
	stats, err := e.state.ReceivableStats()
	if err != nil {
		return err
	}
	if delta < 0 {
		if stats.TotalActive == 0 {
			return ErrOverflow
		}
		stats.TotalActive--
	} else {
		stats.TotalActive++
	}
	return e.state.PutReceivableStats(stats)
}

// Initialize records the privileged roles. It may only run once.
func (e *Engine) Initialize(admin, verifier, borrowContract crypto.Address) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if _, ok, err := e.state.ReceivableRoles(); err != nil {
		return err
	} else if ok {
		return ErrAlreadyInitialized
	}
	if admin.IsZero() || verifier.IsZero() {
		return ErrInvalidAddress
	}
	roles := &Roles{Admin: admin, Verifier: verifier, BorrowContract: borrowContract}
	if err := e.state.PutReceivableRoles(roles); err != nil {
		return err
	}
	if err := e.state.PutReceivableStats(&Stats{}); err != nil {
		return err
	}
	e.emit(newAdminEvent(EventTypeInitialized, admin, map[string]string{
		"verifier":       verifier.String(),
		"borrowContract": borrowContract.String(),
	}))
	return nil
}

// Mint tokenizes an attested receivable owned by its creditor. Only the
// verifier may mint.
func (e *Engine) Mint(caller crypto.Address, params MintParams) (uint64, error) {
	roles, err := e.roles()
	if err != nil {
		return 0, err
	}
	if caller != roles.Verifier {
		return 0, ErrNotVerifier
	}
	if err := nativecommon.Guard(e.pauses, ModuleName); err != nil {
		return 0, err
	}
	if params.FaceValue == nil || params.FaceValue.Sign() <= 0 {
		return 0, ErrInvalidFaceValue
	}
	if err := nativecommon.CheckAmount(params.FaceValue); err != nil {
		return 0, err
	}
	now := e.now()
	if params.MaturityDate <= now {
		return 0, ErrInvalidMaturityDate
	}
	if params.RiskScore > MaxRiskScore {
		return 0, ErrInvalidRiskScore
	}
	if params.Creditor.IsZero() {
		return 0, ErrInvalidAddress
	}
	stats, err := e.state.ReceivableStats()
	if err != nil {
		return 0, err
	}
	stats.TotalMinted++
	stats.TotalActive++
	rec := &Receivable{
		ID:           stats.TotalMinted,
		Owner:        params.Creditor,
		Creditor:     params.Creditor,
		FaceValue:    new(big.Int).Set(params.FaceValue),
		Currency:     strings.ToUpper(strings.TrimSpace(params.Currency)),
		IssuedAt:     now,
		MaturityDate: params.MaturityDate,
		RiskScore:    params.RiskScore,
		MetadataURI:  strings.TrimSpace(params.MetadataURI),
		DebtorHash:   params.DebtorHash,
		ZKProofHash:  params.ZKProofHash,
		Status:       StatusActive,
	}
	if err := e.state.ReceivablePut(rec); err != nil {
		return 0, err
	}
	if err := e.state.PutReceivableStats(stats); err != nil {
		return 0, err
	}
	e.emit(newReceivableEvent(EventTypeMinted, rec))
	return rec.ID, nil
}

// Transfer moves an unencumbered receivable between accounts. The caller must
// be the current owner acting as from.
func (e *Engine) Transfer(caller crypto.Address, id uint64, from, to crypto.Address) error {
	if _, err := e.roles(); err != nil {
		return err
	}
	if caller != from {
		return ErrNotAuthorized
	}
	if err := nativecommon.Guard(e.pauses, ModuleName); err != nil {
		return err
	}
	rec, err := e.load(id)
	if err != nil {
		return err
	}
	if rec.Owner != from {
		return ErrNotOwner
	}
	if rec.Status != StatusActive || rec.Locked {
		return ErrInvalidStatus
	}
	if to.IsZero() || to == from {
		return ErrTransferNotAllowed
	}
	rec.Owner = to
	if err := e.state.ReceivablePut(rec); err != nil {
		return err
	}
	e.emit(newTransferEvent(rec, from, to))
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

// Lock pledges an active receivable as loan collateral.
func (e *Engine) Lock(caller crypto.Address, id uint64) error {
	if err := e.requireBorrowContract(caller); err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, ModuleName); err != nil {
		return err
	}
	rec, err := e.load(id)
	if err != nil {
		return err
	}
	if rec.Status != StatusActive || rec.Locked {
		return ErrInvalidStatus
	}
	rec.Status = StatusCollateralized
	rec.Locked = true
	if err := e.state.ReceivablePut(rec); err != nil {
		return err
	}
	e.emit(newReceivableEvent(EventTypeLocked, rec))
	return nil
}

// Unlock releases a pledge. A collateralized receivable returns to Active; a
// pledged receivable that matured meanwhile stays Matured with the pledge
// cleared.
func (e *Engine) Unlock(caller crypto.Address, id uint64) error {
	if err := e.requireBorrowContract(caller); err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, ModuleName); err != nil {
		return err
	}
	rec, err := e.load(id)
	if err != nil {
		return err
	}
	switch {
	case rec.Status == StatusCollateralized:
		rec.Status = StatusActive
	case rec.Status == StatusMatured && rec.Locked:
	default:
		return ErrInvalidStatus
	}
	rec.Locked = false
	if err := e.state.ReceivablePut(rec); err != nil {
		return err
	}
	e.emit(newReceivableEvent(EventTypeUnlocked, rec))
	return nil
}

// Mature marks a receivable whose maturity date has passed. Anyone may call.
func (e *Engine) Mature(id uint64) error {
	if _, err := e.roles(); err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, ModuleName); err != nil {
		return err
	}
	rec, err := e.load(id)
	if err != nil {
		return err
	}
	if rec.Status != StatusActive && rec.Status != StatusCollateralized {
		return ErrInvalidStatus
	}
	if e.now() < rec.MaturityDate {
		return ErrNotMatured
	}
	rec.Status = StatusMatured
	if err := e.state.ReceivablePut(rec); err != nil {
		return err
	}
	e.emit(newReceivableEvent(EventTypeMatured, rec))
	return nil
}

// Settle records that the debtor paid the receivable in full.
func (e *Engine) Settle(caller crypto.Address, id uint64) error {
	roles, err := e.roles()
	if err != nil {
		return err
	}
	if caller != roles.Admin && caller != roles.Verifier {
		return ErrNotAuthorized
	}
	if err := nativecommon.Guard(e.pauses, ModuleName); err != nil {
		return err
	}
	rec, err := e.load(id)
	if err != nil {
		return err
	}
	if rec.Locked || (rec.Status != StatusActive && rec.Status != StatusMatured) {
		return ErrInvalidStatus
	}
	rec.Status = StatusSettled
	if err := e.state.ReceivablePut(rec); err != nil {
		return err
	}
	if err := e.adjustActive(-1); err != nil {
		return err
	}
	e.emit(newReceivableEvent(EventTypeSettled, rec))
	return nil
}

// MarkDefault writes off a pledged or matured receivable. It is reserved for
// the admin and the liquidation path of the borrow engine.
func (e *Engine) MarkDefault(caller crypto.Address, id uint64) error {
	roles, err := e.roles()
	if err != nil {
		return err
	}
	if caller != roles.Admin && (roles.BorrowContract.IsZero() || caller != roles.BorrowContract) {
		return ErrNotAuthorized
	}
	if err := nativecommon.Guard(e.pauses, ModuleName); err != nil {
		return err
	}
	rec, err := e.load(id)
	if err != nil {
		return err
	}
	if rec.Status != StatusCollateralized && rec.Status != StatusMatured {
		return ErrInvalidStatus
	}
	rec.Status = StatusDefaulted
	rec.Locked = false
	if err := e.state.ReceivablePut(rec); err != nil {
		return err
	}
	if err := e.adjustActive(-1); err != nil {
		return err
	}
	e.emit(newReceivableEvent(EventTypeDefaulted, rec))
	return nil
}

func (e *Engine) setPaused(caller crypto.Address, paused bool) error {
	roles, err := e.roles()
	if err != nil {
		return err
	}
	if caller != roles.Admin {
		return ErrNotAuthorized
	}
	if err := e.state.SetModulePaused(ModuleName, paused); err != nil {
		return err
	}
	eventType := EventTypeUnpaused
	if paused {
		eventType = EventTypePaused
	}
	e.emit(newAdminEvent(eventType, caller, nil))
	return nil
}

// Pause halts every state-mutating registry operation.
func (e *Engine) Pause(caller crypto.Address) error { return e.setPaused(caller, true) }

// Unpause lifts a pause.
func (e *Engine) Unpause(caller crypto.Address) error { return e.setPaused(caller, false) }

// SetVerifier rotates the minting authority.
func (e *Engine) SetVerifier(caller, verifier crypto.Address) error {
	return e.updateRoles(caller, "verifier", verifier, func(r *Roles) { r.Verifier = verifier })
}

// SetBorrowContract registers the account allowed to lock and unlock
// collateral.
func (e *Engine) SetBorrowContract(caller, borrow crypto.Address) error {
	return e.updateRoles(caller, "borrowContract", borrow, func(r *Roles) { r.BorrowContract = borrow })
}

func (e *Engine) updateRoles(caller crypto.Address, role string, addr crypto.Address, apply func(*Roles)) error {
	roles, err := e.roles()
	if err != nil {
		return err
	}
	if caller != roles.Admin {
		return ErrNotAuthorized
	}
	if addr.IsZero() {
		return ErrInvalidAddress
	}
	apply(roles)
	if err := e.state.PutReceivableRoles(roles); err != nil {
		return err
	}
	e.emit(newAdminEvent(EventTypeRoleUpdated, caller, map[string]string{"role": role, "account": addr.String()}))
	return nil
}

// Get returns a copy of the receivable.
func (e *Engine) Get(id uint64) (*Receivable, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	rec, err := e.load(id)
	if err != nil {
		return nil, err
	}
	return rec.Clone(), nil
}

// Stats returns the registry counters.
func (e *Engine) Stats() (*Stats, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.state.ReceivableStats()
}

// Roles returns the configured role holders.
func (e *Engine) Roles() (*Roles, error) {
	roles, err := e.roles()
	if err != nil {
		return nil, err
	}
	clone := *roles
	return &clone, nil
}
