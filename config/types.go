package config

// Genesis names the privileged accounts installed at initialisation.
type Genesis struct {
	Admin    string `toml:"Admin"`
	Verifier string `toml:"Verifier"`
}

// Vault mirrors vault.Config with amounts as decimal strings.
type Vault struct {
	MinDeposit        string `toml:"MinDeposit"`
	MaxUtilizationBps uint64 `toml:"MaxUtilizationBps"`
	ReserveFactorBps  uint64 `toml:"ReserveFactorBps"`
}

// Borrow mirrors borrow.Config. MaxLoanDurationSecs is in seconds.
type Borrow struct {
	BaseInterestRateBps     uint64 `toml:"BaseInterestRateBps"`
	MaxLTVBps               uint64 `toml:"MaxLTVBps"`
	LiquidationThresholdBps uint64 `toml:"LiquidationThresholdBps"`
	LiquidationPenaltyBps   uint64 `toml:"LiquidationPenaltyBps"`
	RiskDiscountFactorBps   uint64 `toml:"RiskDiscountFactorBps"`
	MaxLoanDurationSecs     int64  `toml:"MaxLoanDurationSecs"`
	SingleActiveLoan        bool   `toml:"SingleActiveLoan"`
}

// RateModel selects how origination rates are derived. Kind is "fixed" or
// "kinked".
type RateModel struct {
	Kind      string `toml:"Kind"`
	KinkBps   uint64 `toml:"KinkBps"`
	Slope1Bps uint64 `toml:"Slope1Bps"`
	Slope2Bps uint64 `toml:"Slope2Bps"`
}

// Logging configures the process logger.
type Logging struct {
	Level      string `toml:"Level"`
	File       string `toml:"File"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
	MaxAgeDays int    `toml:"MaxAgeDays"`
}

// Telemetry configures OTLP export.
type Telemetry struct {
	Endpoint    string  `toml:"Endpoint"`
	Insecure    bool    `toml:"Insecure"`
	Headers     string  `toml:"Headers"`
	Traces      bool    `toml:"Traces"`
	Metrics     bool    `toml:"Metrics"`
	SampleRatio float64 `toml:"SampleRatio"`
}
