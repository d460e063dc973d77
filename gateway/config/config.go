package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// RateLimitConfig applies one bucket to the modules mounted under Paths
// (for example /v1/vault). With no paths the ID names the module directly.
// Tokens charges individual "METHOD /path" routes more than one token.
type RateLimitConfig struct {
	ID                string         `yaml:"id"`
	RequestsPerMinute float64        `yaml:"requestsPerMinute"`
	RatePerSecond     float64        `yaml:"ratePerSecond"`
	Burst             int            `yaml:"burst"`
	Paths             []string       `yaml:"paths"`
	Tokens            map[string]int `yaml:"tokens"`
}

type ObservabilityConfig struct {
	ServiceName string `yaml:"serviceName"`
	Metrics     bool   `yaml:"metrics"`
	Tracing     bool   `yaml:"tracing"`
	LogRequests bool   `yaml:"logRequests"`
	MetricsPath string `yaml:"metricsPath"`
}

type CORSConfig struct {
	AllowedOrigins   []string `yaml:"allowedOrigins"`
	AllowCredentials bool     `yaml:"allowCredentials"`
}

// IndexerConfig selects the event journal backend. DSNs starting with
// postgres:// or postgresql:// use Postgres, anything else is a sqlite path.
type IndexerConfig struct {
	DSN string `yaml:"dsn"`
}

// WebhookConfig subscribes an HTTP endpoint to ledger events. Events lists
// event types or "module.*" patterns; empty means every event.
type WebhookConfig struct {
	Endpoint string   `yaml:"endpoint"`
	Secret   string   `yaml:"secret"`
	Events   []string `yaml:"events"`
}

type StreamConfig struct {
	Enabled      bool          `yaml:"enabled"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
}

type Config struct {
	ListenAddress string              `yaml:"listen"`
	ReadTimeout   time.Duration       `yaml:"readTimeout"`
	WriteTimeout  time.Duration       `yaml:"writeTimeout"`
	IdleTimeout   time.Duration       `yaml:"idleTimeout"`
	RateLimits    []RateLimitConfig   `yaml:"rateLimits"`
	Observability ObservabilityConfig `yaml:"observability"`
	Auth          AuthConfig          `yaml:"auth"`
	Security      SecurityConfig      `yaml:"security"`
	CORS          CORSConfig          `yaml:"cors"`
	Indexer       IndexerConfig       `yaml:"indexer"`
	Stream        StreamConfig        `yaml:"stream"`
	Webhooks      []WebhookConfig     `yaml:"webhooks"`
}

type AuthConfig struct {
	Enabled           bool          `yaml:"enabled"`
	HMACSecret        string        `yaml:"hmacSecret"`
	Issuer            string        `yaml:"issuer"`
	Audience          string        `yaml:"audience"`
	ScopeClaim        string        `yaml:"scopeClaim"`
	OptionalPaths     []string      `yaml:"optionalPaths"`
	AllowAnonymous    bool          `yaml:"allowAnonymous"`
	ClockSkew         time.Duration `yaml:"clockSkew"`
	allowAnonymousSet bool          `yaml:"-"`
	enabledSet        bool          `yaml:"-"`
}

func (a *AuthConfig) UnmarshalYAML(node *yaml.Node) error {
	type rawAuthConfig struct {
		Enabled        *bool         `yaml:"enabled"`
		HMACSecret     string        `yaml:"hmacSecret"`
		Issuer         string        `yaml:"issuer"`
		Audience       string        `yaml:"audience"`
		ScopeClaim     string        `yaml:"scopeClaim"`
		OptionalPaths  []string      `yaml:"optionalPaths"`
		AllowAnonymous *bool         `yaml:"allowAnonymous"`
		ClockSkew      time.Duration `yaml:"clockSkew"`
	}
	var raw rawAuthConfig
	if err := node.Decode(&raw); err != nil {
		return err
	}
	a.Enabled, a.enabledSet = false, false
	if raw.Enabled != nil {
		a.Enabled, a.enabledSet = *raw.Enabled, true
	}
	a.HMACSecret = raw.HMACSecret
	a.Issuer = raw.Issuer
	a.Audience = raw.Audience
	a.ScopeClaim = raw.ScopeClaim
	a.OptionalPaths = raw.OptionalPaths
	a.AllowAnonymous, a.allowAnonymousSet = false, false
	if raw.AllowAnonymous != nil {
		a.AllowAnonymous, a.allowAnonymousSet = *raw.AllowAnonymous, true
	}
	a.ClockSkew = raw.ClockSkew
	return nil
}

type SecurityConfig struct {
	AllowInsecure   bool   `yaml:"allowInsecure"`
	TLSCertFile     string `yaml:"tlsCertFile"`
	TLSKeyFile      string `yaml:"tlsKeyFile"`
	TLSClientCAFile string `yaml:"tlsClientCAFile"`
}

// Default returns the daemon configuration used when no file is supplied.
func Default() Config {
	return Config{
		ListenAddress: ":8080",
		ReadTimeout:   30 * time.Second,
		WriteTimeout:  30 * time.Second,
		IdleTimeout:   120 * time.Second,
		Observability: ObservabilityConfig{
			ServiceName: "nexumd",
			Metrics:     true,
			Tracing:     true,
			LogRequests: true,
			MetricsPath: "/metrics",
		},
		Auth: AuthConfig{
			Enabled:        true,
			ScopeClaim:     "scope",
			AllowAnonymous: false,
			ClockSkew:      2 * time.Minute,
			enabledSet:     true,
		},
		Indexer: IndexerConfig{DSN: "file::memory:?cache=shared"},
		Stream:  StreamConfig{Enabled: true, WriteTimeout: 10 * time.Second},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		cfg.applyDefaults()
		if err := cfg.Validate(); err != nil {
			return Config{}, fmt.Errorf("validate config: %w", err)
		}
		return cfg, nil
	}
	file, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg == nil {
		return
	}
	if !cfg.Auth.enabledSet {
		cfg.Auth.Enabled = true
		cfg.Auth.enabledSet = true
	}
	if cfg.Auth.ClockSkew <= 0 {
		cfg.Auth.ClockSkew = 2 * time.Minute
	}
	if cfg.Auth.ScopeClaim == "" {
		cfg.Auth.ScopeClaim = "scope"
	}
	if !cfg.Auth.allowAnonymousSet {
		cfg.Auth.AllowAnonymous = false
	}
	if strings.TrimSpace(cfg.Observability.MetricsPath) == "" {
		cfg.Observability.MetricsPath = "/metrics"
	}
	if cfg.Stream.WriteTimeout <= 0 {
		cfg.Stream.WriteTimeout = 10 * time.Second
	}
}

var ErrAuthEnabledNotConfigured = errors.New("auth.enabled must be explicitly set for sensitive deployments")

func (cfg *Config) Validate() error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		return fmt.Errorf("listen address is required")
	}
	if cfg.isSensitiveDeployment() && !cfg.Auth.enabledSet {
		return ErrAuthEnabledNotConfigured
	}
	if cfg.Auth.AllowAnonymous && !cfg.Auth.allowAnonymousSet {
		return fmt.Errorf("auth.allowAnonymous must be explicitly set to true to enable anonymous access")
	}
	trimmed := make([]string, len(cfg.Auth.OptionalPaths))
	for i, path := range cfg.Auth.OptionalPaths {
		trimmedPath := strings.TrimSpace(path)
		if trimmedPath == "" {
			return fmt.Errorf("auth.optionalPaths[%d] cannot be empty", i)
		}
		if !strings.HasPrefix(trimmedPath, "/") {
			return fmt.Errorf("auth.optionalPaths[%d] must start with '/'", i)
		}
		trimmed[i] = trimmedPath
	}
	cfg.Auth.OptionalPaths = trimmed
	if cfg.Auth.Enabled && cfg.Auth.AllowAnonymous && len(cfg.Auth.OptionalPaths) == 0 {
		return fmt.Errorf("auth.optionalPaths must list at least one entry when auth.allowAnonymous is true")
	}
	for i, rl := range cfg.RateLimits {
		if rl.RequestsPerMinute < 0 || rl.RatePerSecond < 0 || rl.Burst < 0 {
			return fmt.Errorf("rateLimits[%d] values must be non-negative", i)
		}
	}
	for i, hook := range cfg.Webhooks {
		if strings.TrimSpace(hook.Endpoint) == "" {
			return fmt.Errorf("webhooks[%d].endpoint is required", i)
		}
		if strings.TrimSpace(hook.Secret) == "" {
			return fmt.Errorf("webhooks[%d].secret is required", i)
		}
	}
	certSet := strings.TrimSpace(cfg.Security.TLSCertFile) != ""
	keySet := strings.TrimSpace(cfg.Security.TLSKeyFile) != ""
	if certSet != keySet {
		return fmt.Errorf("security.tlsCertFile and security.tlsKeyFile must be set together")
	}
	return nil
}

// TLSEnabled reports whether the listener should serve HTTPS.
func (cfg Config) TLSEnabled() bool {
	return strings.TrimSpace(cfg.Security.TLSCertFile) != "" && strings.TrimSpace(cfg.Security.TLSKeyFile) != ""
}

func (cfg *Config) isSensitiveDeployment() bool {
	if cfg == nil {
		return false
	}
	if strings.TrimSpace(cfg.Security.TLSCertFile) != "" {
		return true
	}
	if strings.TrimSpace(cfg.Security.TLSKeyFile) != "" {
		return true
	}
	if strings.TrimSpace(cfg.Security.TLSClientCAFile) != "" {
		return true
	}
	return false
}

// RateLimitsByModule resolves each rate limit entry to the gateway modules it
// covers. Later entries override earlier ones for the same module.
func (cfg Config) RateLimitsByModule() map[string]RateLimitConfig {
	out := make(map[string]RateLimitConfig)
	for _, entry := range cfg.RateLimits {
		if len(entry.Paths) == 0 {
			if id := strings.TrimSpace(entry.ID); id != "" {
				out[id] = entry
			}
			continue
		}
		for _, path := range entry.Paths {
			if module := moduleForPath(path); module != "" {
				out[module] = entry
			}
		}
	}
	return out
}

// moduleForPath maps /v1/<module>[/...] to <module>.
func moduleForPath(path string) string {
	trimmed := strings.Trim(strings.TrimSpace(path), "/")
	parts := strings.Split(trimmed, "/")
	if len(parts) < 2 || parts[0] != "v1" {
		return ""
	}
	return parts[1]
}
