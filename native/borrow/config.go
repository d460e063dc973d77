package borrow

import nativecommon "nexumfi/native/common"

// Config captures the global loan sizing and liquidation parameters. Ratios
// are expressed in basis points and durations in seconds.
type Config struct {
	BaseInterestRateBps     uint64
	MaxLTVBps               uint64
	LiquidationThresholdBps uint64
	LiquidationPenaltyBps   uint64
	RiskDiscountFactorBps   uint64
	MaxLoanDuration         int64

	// SingleActiveLoan limits every borrower to one open loan at a time.
	SingleActiveLoan bool
}

// Validate checks the relationships between the configured ratios.
func (c Config) Validate() error {
	if c.MaxLTVBps == 0 || c.MaxLTVBps > c.LiquidationThresholdBps {
		return ErrInvalidConfig
	}
	if c.LiquidationThresholdBps > nativecommon.BasisPoints {
		return ErrInvalidConfig
	}
	if c.LiquidationPenaltyBps > nativecommon.BasisPoints {
		return ErrInvalidConfig
	}
	if c.RiskDiscountFactorBps == 0 || c.RiskDiscountFactorBps > nativecommon.BasisPoints {
		return ErrInvalidConfig
	}
	if c.MaxLoanDuration <= 0 {
		return ErrInvalidConfig
	}
	return nil
}

// DefaultConfig returns conservative parameters suitable for local networks.
func DefaultConfig() Config {
	return Config{
		BaseInterestRateBps:     1_000,
		MaxLTVBps:               8_000,
		LiquidationThresholdBps: 9_000,
		LiquidationPenaltyBps:   500,
		RiskDiscountFactorBps:   9_000,
		MaxLoanDuration:         365 * 24 * 60 * 60,
	}
}
