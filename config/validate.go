package config

import (
	"fmt"
	"math/big"
	"strings"

	"nexumfi/core/ledger"
	"nexumfi/crypto"
	"nexumfi/native/borrow"
	"nexumfi/native/vault"
)

// Supported rate model kinds.
const (
	RateModelFixed  = "fixed"
	RateModelKinked = "kinked"
)

// ValidateConfig checks that the configuration can be turned into a genesis
// and a rate model.
func ValidateConfig(c *Config) error {
	if _, err := c.LedgerGenesis(); err != nil {
		return err
	}
	if _, err := c.BorrowAddress(); err != nil {
		return err
	}
	if _, err := c.Rates(); err != nil {
		return err
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry: SampleRatio must be within [0,1]")
	}
	return nil
}

// BorrowAddress decodes the account the borrow engine acts as.
func (c *Config) BorrowAddress() (crypto.Address, error) {
	addr, err := crypto.DecodeAddress(strings.TrimSpace(c.BorrowAccount))
	if err != nil {
		return crypto.Address{}, fmt.Errorf("invalid BorrowAccount: %w", err)
	}
	return addr, nil
}

// LedgerGenesis converts the genesis, vault and borrow sections.
func (c *Config) LedgerGenesis() (ledger.Genesis, error) {
	var g ledger.Genesis
	admin, err := crypto.DecodeAddress(strings.TrimSpace(c.Genesis.Admin))
	if err != nil {
		return g, fmt.Errorf("invalid genesis.Admin: %w", err)
	}
	verifier, err := crypto.DecodeAddress(strings.TrimSpace(c.Genesis.Verifier))
	if err != nil {
		return g, fmt.Errorf("invalid genesis.Verifier: %w", err)
	}
	minDeposit, err := parseUintAmount(c.Vault.MinDeposit)
	if err != nil {
		return g, fmt.Errorf("invalid vault.MinDeposit: %w", err)
	}
	g.Admin = admin
	g.Verifier = verifier
	g.Vault = vault.Config{
		MinDeposit:        minDeposit,
		MaxUtilizationBps: c.Vault.MaxUtilizationBps,
		ReserveFactorBps:  c.Vault.ReserveFactorBps,
	}
	if err := vault.ValidateConfig(g.Vault); err != nil {
		return g, fmt.Errorf("vault: %w", err)
	}
	g.Borrow = borrow.Config{
		BaseInterestRateBps:     c.Borrow.BaseInterestRateBps,
		MaxLTVBps:               c.Borrow.MaxLTVBps,
		LiquidationThresholdBps: c.Borrow.LiquidationThresholdBps,
		LiquidationPenaltyBps:   c.Borrow.LiquidationPenaltyBps,
		RiskDiscountFactorBps:   c.Borrow.RiskDiscountFactorBps,
		MaxLoanDuration:         c.Borrow.MaxLoanDurationSecs,
		SingleActiveLoan:        c.Borrow.SingleActiveLoan,
	}
	if err := g.Borrow.Validate(); err != nil {
		return g, fmt.Errorf("borrow: %w", err)
	}
	return g, nil
}

// Rates builds the configured origination rate model.
func (c *Config) Rates() (borrow.RateModel, error) {
	switch strings.ToLower(strings.TrimSpace(c.RateModel.Kind)) {
	case "", RateModelFixed:
		return borrow.FixedRate{}, nil
	case RateModelKinked:
		model := borrow.KinkedRate{
			KinkBps:   c.RateModel.KinkBps,
			Slope1Bps: c.RateModel.Slope1Bps,
			Slope2Bps: c.RateModel.Slope2Bps,
		}
		if err := model.Validate(); err != nil {
			return nil, fmt.Errorf("rate_model: kink must be at most 10000 and slopes at most %d: %w", borrow.MaxSlopeBps, err)
		}
		return model, nil
	default:
		return nil, fmt.Errorf("rate_model: unknown kind %q", c.RateModel.Kind)
	}
}

func parseUintAmount(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("not a base-10 integer: %q", raw)
	}
	if value.Sign() < 0 {
		return nil, fmt.Errorf("must not be negative")
	}
	return value, nil
}
