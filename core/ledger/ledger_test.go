package ledger

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"nexumfi/core/events"
	"nexumfi/crypto"
	"nexumfi/native/borrow"
	"nexumfi/native/receivable"
	"nexumfi/native/vault"
	"nexumfi/storage"
)

const (
	day     = int64(24 * 60 * 60)
	genesis = int64(1_700_000_000)
)

var (
	admin      = crypto.Address{19: 1}
	verifier   = crypto.Address{19: 2}
	borrowAcct = crypto.Address{19: 3}
	lpOne      = crypto.Address{19: 10}
	lpTwo      = crypto.Address{19: 11}
	borrower   = crypto.Address{19: 20}
	keeper     = crypto.Address{19: 30}
)

type countingDB struct {
	storage.Database
	writes int
}

func (c *countingDB) Write(b *storage.Batch) error {
	c.writes++
	return c.Database.Write(b)
}

type fixture struct {
	t         *testing.T
	ctx       context.Context
	db        *countingDB
	mem       *storage.MemDB
	ledger    *Ledger
	collector *events.Collector
	now       int64
}

func newFixture(t *testing.T, borrowCfg borrow.Config) *fixture {
	t.Helper()
	mem := storage.NewMemDB()
	f := &fixture{
		t:         t,
		ctx:       context.Background(),
		mem:       mem,
		db:        &countingDB{Database: mem},
		collector: &events.Collector{},
		now:       genesis,
	}
	f.ledger = New(f.db, borrowAcct)
	f.ledger.SetNowFunc(func() int64 { return f.now })
	f.ledger.SetEmitter(f.collector)
	require.NoError(t, f.ledger.Initialize(f.ctx, Genesis{
		Admin:    admin,
		Verifier: verifier,
		Vault: vault.Config{
			MinDeposit:        big.NewInt(100),
			MaxUtilizationBps: 8_000,
			ReserveFactorBps:  1_000,
		},
		Borrow: borrowCfg,
	}))
	f.collector.Drain()
	return f
}

func (f *fixture) deposit(lp crypto.Address, amount int64) {
	f.t.Helper()
	_, err := f.ledger.Deposit(f.ctx, lp, big.NewInt(amount))
	require.NoError(f.t, err)
}

func (f *fixture) mint(owner crypto.Address, face int64) uint64 {
	f.t.Helper()
	id, err := f.ledger.Mint(f.ctx, verifier, receivable.MintParams{
		Creditor:     owner,
		DebtorHash:   [32]byte{0x01},
		FaceValue:    big.NewInt(face),
		Currency:     "USD",
		MaturityDate: f.now + 90*day,
		ZKProofHash:  [32]byte{0x02},
		RiskScore:    20,
		MetadataURI:  "ipfs://invoice",
	})
	require.NoError(f.t, err)
	return id
}

func TestInitializeIsOneShot(t *testing.T) {
	f := newFixture(t, borrow.DefaultConfig())
	ok, err := f.ledger.Initialized(f.ctx)
	require.NoError(t, err)
	require.True(t, ok)

	err = f.ledger.Initialize(f.ctx, Genesis{Admin: admin, Verifier: verifier, Vault: vault.Config{MaxUtilizationBps: 1}, Borrow: borrow.DefaultConfig()})
	require.ErrorIs(t, err, receivable.ErrAlreadyInitialized)

	roles, err := f.ledger.VaultRoles(f.ctx)
	require.NoError(t, err)
	require.Equal(t, borrowAcct, roles.BorrowContract)
	regRoles, err := f.ledger.RegistryRoles(f.ctx)
	require.NoError(t, err)
	require.Equal(t, borrowAcct, regRoles.BorrowContract)

	require.ErrorIs(t, New(storage.NewMemDB(), borrowAcct).Initialize(f.ctx, Genesis{Admin: admin}), ErrInvalidGenesis)
}

func TestUtilizationCapBindsBeforeLTV(t *testing.T) {
	f := newFixture(t, borrow.DefaultConfig())
	shares, err := f.ledger.Deposit(f.ctx, lpOne, big.NewInt(1_000))
	require.NoError(t, err)
	require.Equal(t, int64(1_000), shares.Int64())
	recID := f.mint(borrower, 2_000)
	f.collector.Drain()

	writes, keys := f.db.writes, f.mem.Len()
	_, err = f.ledger.Borrow(f.ctx, borrower, []uint64{recID}, big.NewInt(1_000), 30*day)
	require.ErrorIs(t, err, vault.ErrMaxUtilizationExceeded)

	require.Equal(t, writes, f.db.writes)
	require.Equal(t, keys, f.mem.Len())
	require.Empty(t, f.collector.Drain())

	rec, err := f.ledger.Receivable(f.ctx, recID)
	require.NoError(t, err)
	require.Equal(t, receivable.StatusActive, rec.Status)
	require.False(t, rec.Locked)
	st, err := f.ledger.VaultState(f.ctx)
	require.NoError(t, err)
	require.Zero(t, st.TotalBorrowed.Sign())
	total, err := f.ledger.TotalLoans(f.ctx)
	require.NoError(t, err)
	require.Zero(t, total)
	ids, err := f.ledger.BorrowerLoans(f.ctx, borrower)
	require.NoError(t, err)
	require.Empty(t, ids)

	loanID, err := f.ledger.Borrow(f.ctx, borrower, []uint64{recID}, big.NewInt(800), 30*day)
	require.NoError(t, err)
	require.Equal(t, uint64(1), loanID)
	util, err := f.ledger.Utilization(f.ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(8_000), util)

	published := f.collector.Drain()
	require.NotEmpty(t, published)
	require.Equal(t, borrow.EventTypeLoanOriginated, published[len(published)-1].EventType())
}

func TestOriginationRateUsesPostDisbursementUtilization(t *testing.T) {
	f := newFixture(t, borrow.DefaultConfig())
	f.ledger.SetRateModel(borrow.KinkedRate{KinkBps: 8_000, Slope1Bps: 400, Slope2Bps: 6_000})
	f.deposit(lpOne, 1_000)
	recID := f.mint(borrower, 2_000)

	util, err := f.ledger.Utilization(f.ctx)
	require.NoError(t, err)
	require.Zero(t, util)

	// An empty pool lent 800 of 1000 runs at 80%, priced at the kink.
	loanID, err := f.ledger.Borrow(f.ctx, borrower, []uint64{recID}, big.NewInt(800), 30*day)
	require.NoError(t, err)
	loan, err := f.ledger.Loan(f.ctx, loanID)
	require.NoError(t, err)
	require.Equal(t, uint64(1_320), loan.InterestRateBps)
}

func TestRejectedLTVLeavesStateUntouched(t *testing.T) {
	f := newFixture(t, borrow.DefaultConfig())
	f.deposit(lpOne, 10_000)
	recID := f.mint(borrower, 2_000)

	writes, keys := f.db.writes, f.mem.Len()
	_, err := f.ledger.Borrow(f.ctx, borrower, []uint64{recID}, big.NewInt(1_441), 30*day)
	require.ErrorIs(t, err, borrow.ErrLTVExceeded)
	require.Equal(t, writes, f.db.writes)
	require.Equal(t, keys, f.mem.Len())

	_, err = f.ledger.Borrow(f.ctx, borrower, []uint64{recID}, big.NewInt(1_440), 30*day)
	require.NoError(t, err)
}

func TestAccrualAndRepaymentLifecycle(t *testing.T) {
	f := newFixture(t, borrow.DefaultConfig())
	f.deposit(lpOne, 10_000)
	recID := f.mint(borrower, 5_000)
	loanID, err := f.ledger.Borrow(f.ctx, borrower, []uint64{recID}, big.NewInt(1_000), 365*day)
	require.NoError(t, err)

	err = f.ledger.TransferReceivable(f.ctx, borrower, recID, borrower, keeper)
	require.ErrorIs(t, err, receivable.ErrInvalidStatus)

	f.now += borrow.SecondsPerYear
	accrued, err := f.ledger.AccrueInterest(f.ctx, loanID)
	require.NoError(t, err)
	require.Equal(t, int64(100), accrued.Int64())
	accrued, err = f.ledger.AccrueInterest(f.ctx, loanID)
	require.NoError(t, err)
	require.Equal(t, int64(100), accrued.Int64())

	ltv, err := f.ledger.LTV(f.ctx, loanID)
	require.NoError(t, err)
	require.Equal(t, uint64(2_444), ltv)

	_, err = f.ledger.Repay(f.ctx, keeper, loanID, big.NewInt(10))
	require.ErrorIs(t, err, borrow.ErrNotBorrower)
	_, err = f.ledger.Repay(f.ctx, borrower, loanID, big.NewInt(1_101))
	require.ErrorIs(t, err, borrow.ErrRepayExceedsBalance)

	remaining, err := f.ledger.Repay(f.ctx, borrower, loanID, big.NewInt(1_100))
	require.NoError(t, err)
	require.Zero(t, remaining.Sign())

	loan, err := f.ledger.Loan(f.ctx, loanID)
	require.NoError(t, err)
	require.Equal(t, borrow.LoanRepaid, loan.Status)
	require.Equal(t, f.now, loan.ClosedAt)

	rec, err := f.ledger.Receivable(f.ctx, recID)
	require.NoError(t, err)
	require.Equal(t, receivable.StatusActive, rec.Status)
	require.False(t, rec.Locked)

	st, err := f.ledger.VaultState(f.ctx)
	require.NoError(t, err)
	require.Zero(t, st.TotalBorrowed.Sign())
	require.Equal(t, int64(10_090), st.TotalDeposits.Int64())
	require.Equal(t, int64(10), st.ProtocolReserves.Int64())
	require.Equal(t, int64(90), st.TotalInterestEarned.Int64())

	_, err = f.ledger.Repay(f.ctx, borrower, loanID, big.NewInt(1))
	require.ErrorIs(t, err, borrow.ErrInvalidStatus)
	_, err = f.ledger.AccrueInterest(f.ctx, loanID)
	require.ErrorIs(t, err, borrow.ErrInvalidStatus)
	require.ErrorIs(t, f.ledger.Liquidate(f.ctx, keeper, loanID), borrow.ErrNotLiquidatable)

	require.NoError(t, f.ledger.TransferReceivable(f.ctx, borrower, recID, borrower, keeper))
}

func TestLiquidationShortfallIsSocialized(t *testing.T) {
	cfg := borrow.DefaultConfig()
	cfg.LiquidationPenaltyBps = 5_000
	f := newFixture(t, cfg)
	f.deposit(lpOne, 600)
	f.deposit(lpTwo, 400)
	recID := f.mint(borrower, 1_000)
	loanID, err := f.ledger.Borrow(f.ctx, borrower, []uint64{recID}, big.NewInt(700), 30*day)
	require.NoError(t, err)

	ok, err := f.ledger.IsLiquidatable(f.ctx, loanID)
	require.NoError(t, err)
	require.False(t, ok)
	require.ErrorIs(t, f.ledger.Liquidate(f.ctx, keeper, loanID), borrow.ErrNotLiquidatable)

	f.now += 30*day + 1
	ok, err = f.ledger.IsLiquidatable(f.ctx, loanID)
	require.NoError(t, err)
	require.True(t, ok)
	f.collector.Drain()
	require.NoError(t, f.ledger.Liquidate(f.ctx, keeper, loanID))

	loan, err := f.ledger.Loan(f.ctx, loanID)
	require.NoError(t, err)
	require.Equal(t, borrow.LoanLiquidated, loan.Status)
	require.Equal(t, keeper, loan.Liquidator)
	rec, err := f.ledger.Receivable(f.ctx, recID)
	require.NoError(t, err)
	require.Equal(t, receivable.StatusDefaulted, rec.Status)
	require.False(t, rec.Locked)

	// 700 principal + 5 interest against 450 recovered: 250 of principal is lost.
	st, err := f.ledger.VaultState(f.ctx)
	require.NoError(t, err)
	require.Zero(t, st.TotalBorrowed.Sign())
	require.Equal(t, int64(750), st.TotalDeposits.Int64())

	for lp, want := range map[crypto.Address]int64{lpOne: 450, lpTwo: 300} {
		pos, err := f.ledger.Position(f.ctx, lp)
		require.NoError(t, err)
		value, err := f.ledger.SharesValue(f.ctx, pos.Shares)
		require.NoError(t, err)
		require.Equal(t, want, value.Int64())
	}

	var liquidated bool
	for _, evt := range f.collector.Drain() {
		if evt.EventType() == borrow.EventTypeLoanLiquidated {
			payload, ok := events.ToPayload(evt)
			require.True(t, ok)
			require.Equal(t, "450", payload.Attributes["recovered"])
			require.Equal(t, "255", payload.Attributes["shortfall"])
			liquidated = true
		}
	}
	require.True(t, liquidated)
	require.ErrorIs(t, f.ledger.Liquidate(f.ctx, keeper, loanID), borrow.ErrNotLiquidatable)
}

func TestVaultReopensAfterTotalLoss(t *testing.T) {
	cfg := borrow.DefaultConfig()
	cfg.LiquidationPenaltyBps = 10_000
	f := newFixture(t, cfg)
	f.deposit(lpOne, 1_000)
	recID := f.mint(borrower, 2_000)
	loanID, err := f.ledger.Borrow(f.ctx, borrower, []uint64{recID}, big.NewInt(800), 30*day)
	require.NoError(t, err)
	_, err = f.ledger.Withdraw(f.ctx, lpOne, big.NewInt(200))
	require.NoError(t, err)

	f.now += 30*day + 1
	require.NoError(t, f.ledger.Liquidate(f.ctx, keeper, loanID))
	st, err := f.ledger.VaultState(f.ctx)
	require.NoError(t, err)
	require.Zero(t, st.TotalDeposits.Sign())
	require.Equal(t, int64(800), st.TotalShares.Int64())
	f.collector.Drain()

	shares, err := f.ledger.Deposit(f.ctx, lpTwo, big.NewInt(500))
	require.NoError(t, err)
	require.Equal(t, int64(500), shares.Int64())

	var reset bool
	for _, evt := range f.collector.Drain() {
		if evt.EventType() == vault.EventTypeSharesReset {
			reset = true
		}
	}
	require.True(t, reset)

	stale, err := f.ledger.Position(f.ctx, lpOne)
	require.NoError(t, err)
	require.Zero(t, stale.Shares.Sign())
	_, err = f.ledger.Withdraw(f.ctx, lpOne, big.NewInt(1))
	require.ErrorIs(t, err, vault.ErrInsufficientShares)
	_, err = f.ledger.Withdraw(f.ctx, lpTwo, big.NewInt(500))
	require.NoError(t, err)
}

func TestPauseBlocksMutationsButNotReads(t *testing.T) {
	f := newFixture(t, borrow.DefaultConfig())
	f.deposit(lpOne, 1_000)

	require.ErrorIs(t, f.ledger.PauseVault(f.ctx, keeper), vault.ErrNotAuthorized)
	require.NoError(t, f.ledger.PauseVault(f.ctx, admin))
	paused, err := f.ledger.Paused(f.ctx, vault.ModuleName)
	require.NoError(t, err)
	require.True(t, paused)

	_, err = f.ledger.Deposit(f.ctx, lpOne, big.NewInt(500))
	require.ErrorIs(t, err, vault.ErrContractPaused)
	available, err := f.ledger.Available(f.ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1_000), available.Int64())

	require.NoError(t, f.ledger.UnpauseVault(f.ctx, admin))
	f.deposit(lpOne, 500)
	total, err := f.ledger.TotalAssets(f.ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1_500), total.Int64())
}

func TestLoansListsInOriginationOrder(t *testing.T) {
	f := newFixture(t, borrow.DefaultConfig())
	f.deposit(lpOne, 10_000)
	first := f.mint(borrower, 1_000)
	second := f.mint(borrower, 1_000)
	_, err := f.ledger.Borrow(f.ctx, borrower, []uint64{first}, big.NewInt(100), 30*day)
	require.NoError(t, err)
	_, err = f.ledger.Borrow(f.ctx, borrower, []uint64{second}, big.NewInt(200), 30*day)
	require.NoError(t, err)

	loans, err := f.ledger.Loans(f.ctx)
	require.NoError(t, err)
	require.Len(t, loans, 2)
	require.Equal(t, int64(100), loans[0].Principal.Int64())
	require.Equal(t, int64(200), loans[1].Principal.Int64())

	stats, err := f.ledger.BorrowStats(f.ctx)
	require.NoError(t, err)
	require.Equal(t, int64(300), stats.TotalBorrowed.Int64())
}

func TestSingleActiveLoanPolicy(t *testing.T) {
	cfg := borrow.DefaultConfig()
	cfg.SingleActiveLoan = true
	f := newFixture(t, cfg)
	f.deposit(lpOne, 10_000)
	first := f.mint(borrower, 1_000)
	second := f.mint(borrower, 1_000)
	_, err := f.ledger.Borrow(f.ctx, borrower, []uint64{first}, big.NewInt(100), 30*day)
	require.NoError(t, err)
	_, err = f.ledger.Borrow(f.ctx, borrower, []uint64{second}, big.NewInt(100), 30*day)
	require.ErrorIs(t, err, borrow.ErrActiveLoanExists)
}

func TestLedgerPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	db, err := storage.NewLevelDB(dir)
	require.NoError(t, err)
	l := New(db, borrowAcct)
	l.SetNowFunc(func() int64 { return genesis })
	ctx := context.Background()
	require.NoError(t, l.Initialize(ctx, Genesis{
		Admin:    admin,
		Verifier: verifier,
		Vault:    vault.Config{MinDeposit: big.NewInt(1), MaxUtilizationBps: 9_000},
		Borrow:   borrow.DefaultConfig(),
	}))
	_, err = l.Deposit(ctx, lpOne, big.NewInt(5_000))
	require.NoError(t, err)
	db.Close()

	db, err = storage.NewLevelDB(dir)
	require.NoError(t, err)
	defer db.Close()
	reopened := New(db, borrowAcct)
	pos, err := reopened.Position(ctx, lpOne)
	require.NoError(t, err)
	require.Equal(t, int64(5_000), pos.Shares.Int64())

	err = reopened.Initialize(ctx, Genesis{Admin: admin, Verifier: verifier, Borrow: borrow.DefaultConfig()})
	require.True(t, errors.Is(err, receivable.ErrAlreadyInitialized))
}
