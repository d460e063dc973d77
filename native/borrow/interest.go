package borrow

import (
	"math"
	"math/big"
	"math/bits"

	nativecommon "nexumfi/native/common"
)

// SecondsPerYear converts annual rates into per-second accrual.
const SecondsPerYear = 31_536_000

var accrualDenominator = new(big.Int).Mul(
	new(big.Int).SetUint64(nativecommon.BasisPoints),
	big.NewInt(SecondsPerYear),
)

// RateModel derives the annual borrow rate applied to a new loan from the
// vault utilization at origination. The rate is fixed for the loan's life.
type RateModel interface {
	RateBps(cfg Config, utilizationBps uint64) uint64
}

// FixedRate applies the configured base interest rate regardless of
// utilization.
type FixedRate struct{}

// RateBps implements RateModel.
func (FixedRate) RateBps(cfg Config, _ uint64) uint64 { return cfg.BaseInterestRateBps }

// MaxSlopeBps caps each KinkedRate slope at 10000% APR.
const MaxSlopeBps = 1_000_000

// KinkedRate raises the base rate linearly with utilization, switching to a
// steeper slope beyond the kink. Slopes are expressed as the rate increase
// at 100% utilization.
type KinkedRate struct {
	KinkBps   uint64
	Slope1Bps uint64
	Slope2Bps uint64
}

// Validate rejects a kink beyond full utilization and slopes above
// MaxSlopeBps.
func (m KinkedRate) Validate() error {
	if m.KinkBps > nativecommon.BasisPoints {
		return ErrInvalidConfig
	}
	if m.Slope1Bps > MaxSlopeBps || m.Slope2Bps > MaxSlopeBps {
		return ErrInvalidConfig
	}
	return nil
}

// RateBps implements RateModel. Results saturate rather than wrap when an
// unvalidated model is used.
func (m KinkedRate) RateBps(cfg Config, utilizationBps uint64) uint64 {
	if utilizationBps > nativecommon.BasisPoints {
		utilizationBps = nativecommon.BasisPoints
	}
	rate := cfg.BaseInterestRateBps
	if m.KinkBps == 0 || utilizationBps <= m.KinkBps {
		return addSat(rate, scaleBps(m.Slope1Bps, utilizationBps))
	}
	rate = addSat(rate, scaleBps(m.Slope1Bps, m.KinkBps))
	return addSat(rate, scaleBps(m.Slope2Bps, utilizationBps-m.KinkBps))
}

// scaleBps returns slope*bps/10000 using a 128-bit intermediate.
func scaleBps(slope, bps uint64) uint64 {
	hi, lo := bits.Mul64(slope, bps)
	if hi >= nativecommon.BasisPoints {
		return math.MaxUint64
	}
	q, _ := bits.Div64(hi, lo, nativecommon.BasisPoints)
	return q
}

func addSat(a, b uint64) uint64 {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return math.MaxUint64
	}
	return sum
}

// pendingInterest computes linear interest accrued since the loan's last
// update. The division remainder is returned so that repeated accruals sum to
// exactly the single-interval result.
func pendingInterest(loan *Loan, now int64) (*big.Int, *big.Int, error) {
	remainder := cloneBig(loan.InterestRemainder)
	elapsed := now - loan.LastInterestUpdate
	if elapsed <= 0 || loan.Principal == nil || loan.Principal.Sign() == 0 || loan.InterestRateBps == 0 {
		return big.NewInt(0), remainder, nil
	}
	scaled, err := nativecommon.Mul(loan.Principal, new(big.Int).SetUint64(loan.InterestRateBps))
	if err != nil {
		return nil, nil, err
	}
	if scaled, err = nativecommon.Mul(scaled, big.NewInt(elapsed)); err != nil {
		return nil, nil, err
	}
	if scaled, err = nativecommon.Add(scaled, remainder); err != nil {
		return nil, nil, err
	}
	delta, rem, err := nativecommon.MulDiv(scaled, big.NewInt(1), accrualDenominator)
	if err != nil {
		return nil, nil, err
	}
	return delta, rem, nil
}

// accrue materialises pending interest on the loan in place.
func accrue(loan *Loan, now int64) (*big.Int, error) {
	delta, rem, err := pendingInterest(loan, now)
	if err != nil {
		return nil, err
	}
	accrued, err := nativecommon.Add(loan.AccruedInterest, delta)
	if err != nil {
		return nil, err
	}
	loan.AccruedInterest = accrued
	loan.InterestRemainder = rem
	if now > loan.LastInterestUpdate {
		loan.LastInterestUpdate = now
	}
	return delta, nil
}
