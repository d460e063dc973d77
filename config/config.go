package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"nexumfi/crypto"
)

// Config is the ledger daemon configuration.
type Config struct {
	DataDir       string `toml:"DataDir"`
	Environment   string `toml:"Environment"`
	BorrowAccount string `toml:"BorrowAccount"`

	Genesis   Genesis   `toml:"genesis"`
	Vault     Vault     `toml:"vault"`
	Borrow    Borrow    `toml:"borrow"`
	RateModel RateModel `toml:"rate_model"`
	Logging   Logging   `toml:"logging"`
	Telemetry Telemetry `toml:"telemetry"`
}

// Load loads the configuration from the given path. A default configuration
// with freshly generated accounts is written when the file does not exist.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s has unknown field %s", path, undecoded[0])
	}

	cfg.applyDefaults()
	if err := ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = "./nexum-data"
	}
	if strings.TrimSpace(c.Environment) == "" {
		c.Environment = "local"
	}
	if strings.TrimSpace(c.Vault.MinDeposit) == "" {
		c.Vault.MinDeposit = "0"
	}
	if strings.TrimSpace(c.RateModel.Kind) == "" {
		c.RateModel.Kind = RateModelFixed
	}
	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = "info"
	}
}

// Default returns the parameters used for a new local deployment. Account
// fields are left empty.
func Default() *Config {
	cfg := &Config{
		DataDir:     "./nexum-data",
		Environment: "local",
		Vault: Vault{
			MinDeposit:        "100",
			MaxUtilizationBps: 8_000,
			ReserveFactorBps:  1_000,
		},
		Borrow: Borrow{
			BaseInterestRateBps:     1_000,
			MaxLTVBps:               8_000,
			LiquidationThresholdBps: 9_000,
			LiquidationPenaltyBps:   500,
			RiskDiscountFactorBps:   9_000,
			MaxLoanDurationSecs:     365 * 24 * 60 * 60,
		},
		RateModel: RateModel{Kind: RateModelFixed},
		Logging:   Logging{Level: "info"},
	}
	return cfg
}

// createDefault creates and saves a default configuration file with newly
// generated admin, verifier and borrow accounts.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	accounts := make([]string, 3)
	for i := range accounts {
		key, err := crypto.GeneratePrivateKey()
		if err != nil {
			return nil, err
		}
		accounts[i] = key.Address().String()
	}
	cfg.Genesis.Admin = accounts[0]
	cfg.Genesis.Verifier = accounts[1]
	cfg.BorrowAccount = accounts[2]

	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg to path in TOML form.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config: nil config")
	}
	return persist(path, cfg)
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
