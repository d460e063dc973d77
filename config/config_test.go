package config

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"nexumfi/crypto"
	"nexumfi/native/borrow"
)

func testAccount(b byte) string {
	var addr crypto.Address
	addr[19] = b
	return addr.String()
}

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "ledger.toml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default config not written: %v", err)
	}
	if cfg.Genesis.Admin == "" || cfg.Genesis.Verifier == "" || cfg.BorrowAccount == "" {
		t.Fatalf("expected generated accounts: %+v", cfg.Genesis)
	}
	if cfg.Genesis.Admin == cfg.BorrowAccount {
		t.Fatalf("accounts must be distinct")
	}

	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Genesis.Admin != cfg.Genesis.Admin {
		t.Fatalf("reload changed admin: %s != %s", reloaded.Genesis.Admin, cfg.Genesis.Admin)
	}
	g, err := reloaded.LedgerGenesis()
	if err != nil {
		t.Fatalf("genesis: %v", err)
	}
	if g.Vault.MinDeposit.Int64() != 100 || g.Borrow.MaxLTVBps != 8_000 {
		t.Fatalf("unexpected genesis parameters: %+v", g)
	}
}

func TestLoadParsesSections(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.toml")
	contents := `DataDir = "/var/lib/nexum"
BorrowAccount = "` + testAccount(3) + `"

[genesis]
Admin = "` + testAccount(1) + `"
Verifier = "` + testAccount(2) + `"

[vault]
MinDeposit = "250"
MaxUtilizationBps = 7500
ReserveFactorBps = 500

[borrow]
BaseInterestRateBps = 1200
MaxLTVBps = 7000
LiquidationThresholdBps = 8500
LiquidationPenaltyBps = 1000
RiskDiscountFactorBps = 8000
MaxLoanDurationSecs = 2592000
SingleActiveLoan = true

[rate_model]
Kind = "kinked"
KinkBps = 8000
Slope1Bps = 400
Slope2Bps = 6000

[logging]
Level = "debug"

[telemetry]
Endpoint = "otel:4318"
Traces = true
SampleRatio = 0.25
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DataDir != "/var/lib/nexum" || cfg.Environment != "local" {
		t.Fatalf("unexpected top-level fields: %+v", cfg)
	}
	g, err := cfg.LedgerGenesis()
	if err != nil {
		t.Fatalf("genesis: %v", err)
	}
	if g.Vault.MinDeposit.Int64() != 250 || g.Vault.MaxUtilizationBps != 7_500 {
		t.Fatalf("unexpected vault config: %+v", g.Vault)
	}
	if !g.Borrow.SingleActiveLoan || g.Borrow.MaxLoanDuration != 2_592_000 {
		t.Fatalf("unexpected borrow config: %+v", g.Borrow)
	}
	model, err := cfg.Rates()
	if err != nil {
		t.Fatalf("rates: %v", err)
	}
	kinked, ok := model.(borrow.KinkedRate)
	if !ok || kinked.Slope2Bps != 6_000 {
		t.Fatalf("unexpected rate model: %#v", model)
	}
	addr, err := cfg.BorrowAddress()
	if err != nil || addr[19] != 3 {
		t.Fatalf("unexpected borrow address %v: %v", addr, err)
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	cases := map[string]string{
		"unknown field": `Bogus = 1`,
		"bad address":   `BorrowAccount = "nexum1invalid"`,
		"bad ltv": `BorrowAccount = "` + testAccount(3) + `"
[genesis]
Admin = "` + testAccount(1) + `"
Verifier = "` + testAccount(2) + `"
[vault]
MaxUtilizationBps = 8000
[borrow]
MaxLTVBps = 9500
LiquidationThresholdBps = 9000
RiskDiscountFactorBps = 9000
MaxLoanDurationSecs = 60`,
	}
	for name, contents := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "ledger.toml")
			if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
				t.Fatalf("write: %v", err)
			}
			if _, err := Load(path); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestRatesRejectsUnknownKind(t *testing.T) {
	cfg := Default()
	cfg.RateModel.Kind = "exponential"
	if _, err := cfg.Rates(); err == nil || !strings.Contains(err.Error(), "unknown kind") {
		t.Fatalf("expected unknown kind error, got %v", err)
	}
}

func TestRatesRejectsUnboundedSlopes(t *testing.T) {
	cfg := Default()
	cfg.RateModel.Kind = RateModelKinked
	cfg.RateModel.KinkBps = 8_000
	cfg.RateModel.Slope2Bps = math.MaxUint64 / 2
	if _, err := cfg.Rates(); !errors.Is(err, borrow.ErrInvalidConfig) {
		t.Fatalf("expected invalid config for oversized slope, got %v", err)
	}
	cfg.RateModel.Slope2Bps = borrow.MaxSlopeBps
	if _, err := cfg.Rates(); err != nil {
		t.Fatalf("slope at the cap should be accepted: %v", err)
	}
}
