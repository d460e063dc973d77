package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"nexumfi/core/events"
	"nexumfi/core/state"
	"nexumfi/crypto"
	"nexumfi/native/borrow"
	"nexumfi/native/receivable"
	"nexumfi/native/vault"
	"nexumfi/observability"
	telemetry "nexumfi/observability/otel"
	"nexumfi/storage"
)

var errNilDatabase = errors.New("ledger: database not configured")

// Ledger runs registry, vault and borrow operations against one database.
// Operations are serialized. Each one works on a private write set that is
// committed in a single batch on success and dropped on failure, so no
// operation is ever partially applied. Events are published only after the
// commit.
type Ledger struct {
	mu sync.Mutex

	db         storage.Database
	borrowAddr crypto.Address
	nowFn      func() int64
	emitter    events.Emitter
	rateModel  borrow.RateModel
	logger     *slog.Logger
	metrics    *observability.LedgerMetrics
	tracer     trace.Tracer
}

// New creates a ledger over db. borrowAddr is the account the borrow engine
// acts as when it calls into the registry and the vault.
func New(db storage.Database, borrowAddr crypto.Address) *Ledger {
	return &Ledger{
		db:         db,
		borrowAddr: borrowAddr,
		nowFn:      func() int64 { return time.Now().Unix() },
		emitter:    events.NoopEmitter{},
		rateModel:  borrow.FixedRate{},
		logger:     slog.Default(),
		tracer:     telemetry.Tracer(),
	}
}

// SetNowFunc overrides the clock oracle. Passing nil restores the wall clock.
func (l *Ledger) SetNowFunc(now func() int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if now == nil {
		now = func() int64 { return time.Now().Unix() }
	}
	l.nowFn = now
}

// SetEmitter configures where committed events are published.
func (l *Ledger) SetEmitter(emitter events.Emitter) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	l.emitter = emitter
}

// SetRateModel configures how loan rates are derived at origination.
func (l *Ledger) SetRateModel(model borrow.RateModel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if model == nil {
		model = borrow.FixedRate{}
	}
	l.rateModel = model
}

// SetLogger replaces the structured logger.
func (l *Ledger) SetLogger(logger *slog.Logger) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if logger == nil {
		logger = slog.Default()
	}
	l.logger = logger
}

// SetMetrics enables Prometheus instrumentation.
func (l *Ledger) SetMetrics(m *observability.LedgerMetrics) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.metrics = m
}

// BorrowAddress returns the account the borrow engine acts as.
func (l *Ledger) BorrowAddress() crypto.Address { return l.borrowAddr }

// env binds one engine of each kind to a shared write set.
type env struct {
	state     *state.Manager
	registry  *receivable.Engine
	vault     *vault.Engine
	borrow    *borrow.Engine
	collector *events.Collector
	now       int64
}

func (l *Ledger) newEnv() *env {
	now := l.nowFn()
	clock := func() int64 { return now }
	mgr := state.NewManager(l.db)
	collector := &events.Collector{}

	registry := receivable.NewEngine()
	registry.SetState(mgr)
	registry.SetPauses(mgr)
	registry.SetEmitter(collector)
	registry.SetNowFunc(clock)

	pool := vault.NewEngine()
	pool.SetState(mgr)
	pool.SetPauses(mgr)
	pool.SetEmitter(collector)
	pool.SetNowFunc(clock)

	loans := borrow.NewEngine(l.borrowAddr)
	loans.SetState(mgr)
	loans.SetPauses(mgr)
	loans.SetEmitter(collector)
	loans.SetNowFunc(clock)
	loans.SetRegistry(registry)
	loans.SetVault(pool)
	loans.SetRateModel(l.rateModel)

	return &env{
		state:     mgr,
		registry:  registry,
		vault:     pool,
		borrow:    loans,
		collector: collector,
		now:       now,
	}
}

// execute runs a mutating operation and commits its write set.
func (l *Ledger) execute(ctx context.Context, op string, fn func(*env) error) (err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.db == nil {
		return errNilDatabase
	}
	_, span := l.tracer.Start(ctx, "ledger."+op, trace.WithAttributes(attribute.String("ledger.operation", op)))
	started := time.Now()
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		l.metrics.Observe(op, time.Since(started), err)
	}()

	e := l.newEnv()
	if err = fn(e); err != nil {
		e.state.Discard()
		l.logger.Debug("ledger operation rejected", slog.String("operation", op), slog.Any("error", err))
		return err
	}
	pending := e.state.Pending()
	if err = e.state.Commit(); err != nil {
		e.state.Discard()
		l.logger.Error("ledger commit failed", slog.String("operation", op), slog.Any("error", err))
		return fmt.Errorf("ledger: %s: %w", op, err)
	}
	published := l.publish(e.collector.Drain())
	l.logger.Debug("ledger operation committed",
		slog.String("operation", op),
		slog.Int("writes", pending),
		slog.Int("events", published))
	l.recordGauges()
	return nil
}

// view runs a read-only operation against committed state.
func (l *Ledger) view(ctx context.Context, op string, fn func(*env) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.db == nil {
		return errNilDatabase
	}
	_, span := l.tracer.Start(ctx, "ledger."+op, trace.WithAttributes(attribute.String("ledger.operation", op)))
	defer span.End()
	e := l.newEnv()
	defer e.state.Discard()
	err := fn(e)
	if err != nil {
		span.RecordError(err)
	}
	return err
}

func (l *Ledger) publish(evts []events.Event) int {
	for _, evt := range evts {
		l.emitter.Emit(evt)
		if l.metrics != nil {
			observability.Events().RecordEvent(evt.EventType())
		}
	}
	return len(evts)
}

func (l *Ledger) recordGauges() {
	if l.metrics == nil {
		return
	}
	mgr := state.NewManager(l.db)
	if st, ok, err := mgr.VaultState(); err == nil && ok {
		l.metrics.RecordVault(st.TotalDeposits, st.TotalBorrowed, st.ProtocolReserves)
	}
	if stats, err := mgr.BorrowStats(); err == nil {
		l.metrics.RecordLoans(stats.TotalLoans)
	}
	for _, module := range []string{receivable.ModuleName, vault.ModuleName, borrow.ModuleName} {
		l.metrics.SetPaused(module, mgr.IsPaused(module))
	}
}

// Paused reports whether a module's pause flag is set in committed state.
func (l *Ledger) Paused(ctx context.Context, module string) (bool, error) {
	var paused bool
	err := l.view(ctx, "paused", func(e *env) error {
		paused = e.state.IsPaused(module)
		return nil
	})
	return paused, err
}

// Now returns the ledger clock.
func (l *Ledger) Now() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.nowFn()
}
