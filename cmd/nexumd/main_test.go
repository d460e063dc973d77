package main

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	ledgerconfig "nexumfi/config"
	"nexumfi/core/ledger"
	gwconfig "nexumfi/gateway/config"
	"nexumfi/storage"
)

func TestIsLoopbackAddress(t *testing.T) {
	cases := map[string]bool{
		"127.0.0.1:8080": true,
		"localhost:8080": true,
		"[::1]:8080":     true,
		":8080":          false,
		"0.0.0.0:8080":   false,
		"10.0.0.4:8080":  false,
		"not-an-addr":    false,
	}
	for addr, want := range cases {
		if got := isLoopbackAddress(addr); got != want {
			t.Fatalf("isLoopbackAddress(%q) = %t, want %t", addr, got, want)
		}
	}
}

func TestResolveTLSPath(t *testing.T) {
	if got := resolveTLSPath("/etc/nexum", "tls/cert.pem"); got != filepath.Join("/etc/nexum", "tls/cert.pem") {
		t.Fatalf("unexpected relative resolution %q", got)
	}
	if got := resolveTLSPath("/etc/nexum", "/abs/cert.pem"); got != "/abs/cert.pem" {
		t.Fatalf("absolute path rewritten: %q", got)
	}
	if got := resolveTLSPath("/etc/nexum", "  "); got != "" {
		t.Fatalf("expected empty path, got %q", got)
	}
}

func TestCheckPlaintext(t *testing.T) {
	cfg := gwconfig.Default()
	cfg.ListenAddress = "127.0.0.1:8080"
	if err := checkPlaintext(cfg, "prod", false); err == nil {
		t.Fatalf("expected plaintext to require an explicit opt-in")
	}
	if err := checkPlaintext(cfg, "prod", true); err != nil {
		t.Fatalf("loopback with flag: %v", err)
	}
	cfg.ListenAddress = ":8080"
	if err := checkPlaintext(cfg, "prod", true); err == nil {
		t.Fatalf("expected public plaintext listener to be rejected")
	}
	cfg.Security.AllowInsecure = true
	if err := checkPlaintext(cfg, "dev", false); err != nil {
		t.Fatalf("dev environment: %v", err)
	}
}

func TestBuildTLSConfigDisabledWithoutFiles(t *testing.T) {
	tlsCfg, err := buildTLSConfig("", gwconfig.SecurityConfig{})
	if err != nil || tlsCfg != nil {
		t.Fatalf("expected no TLS config, got %v %v", tlsCfg, err)
	}
	if _, err := buildTLSConfig("", gwconfig.SecurityConfig{TLSCertFile: "cert.pem"}); err == nil {
		t.Fatalf("expected error for missing key file")
	}
}

func TestBuildRateLimitsDefaultsAndOverrides(t *testing.T) {
	cfg := gwconfig.Default()
	limits := buildRateLimits(cfg)
	for _, module := range []string{"registry", "vault", "borrow", "events"} {
		if _, ok := limits[module]; !ok {
			t.Fatalf("missing default limit for %s", module)
		}
	}

	cfg.RateLimits = []gwconfig.RateLimitConfig{{
		ID:            "writes",
		RatePerSecond: 3,
		Burst:         6,
		Paths:         []string{"/v1/vault"},
		Tokens:        map[string]int{"POST /v1/vault/deposit": 2},
	}}
	limits = buildRateLimits(cfg)
	if len(limits) != 1 {
		t.Fatalf("expected only the configured module, got %v", limits)
	}
	vault := limits["vault"]
	if vault.RatePerSecond != 3 || vault.Burst != 6 || vault.Tokens["POST /v1/vault/deposit"] != 2 {
		t.Fatalf("unexpected vault limit: %+v", vault)
	}
}

func TestBuildDispatchersRejectsMissingSecret(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	_, err := buildDispatchers([]gwconfig.WebhookConfig{
		{Endpoint: "http://127.0.0.1:1/hook", Secret: "s"},
		{Endpoint: "http://127.0.0.1:1/other"},
	}, logger)
	if err == nil {
		t.Fatalf("expected missing secret to fail")
	}
	dispatchers, err := buildDispatchers([]gwconfig.WebhookConfig{
		{Endpoint: "http://127.0.0.1:1/hook", Secret: "s", Events: []string{"borrow.*"}},
	}, logger)
	if err != nil {
		t.Fatalf("build dispatchers: %v", err)
	}
	for _, d := range dispatchers {
		d.Close()
	}
}

func TestInitializeLedgerIsIdempotent(t *testing.T) {
	cfg, err := ledgerconfig.Load(filepath.Join(t.TempDir(), "config.toml"))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	borrowAddr, err := cfg.BorrowAddress()
	if err != nil {
		t.Fatalf("borrow address: %v", err)
	}
	l := ledger.New(storage.NewMemDB(), borrowAddr)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()
	if err := initializeLedger(ctx, l, cfg, logger); err != nil {
		t.Fatalf("initialise: %v", err)
	}
	if err := initializeLedger(ctx, l, cfg, logger); err != nil {
		t.Fatalf("second initialise: %v", err)
	}
	roles, err := l.RegistryRoles(ctx)
	if err != nil {
		t.Fatalf("roles: %v", err)
	}
	if roles.Admin.String() != cfg.Genesis.Admin {
		t.Fatalf("unexpected admin %s", roles.Admin)
	}
}
