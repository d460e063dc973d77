package main

import (
	"context"
	"crypto/tls"
	"errors"
	"flag"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	ledgerconfig "nexumfi/config"
	"nexumfi/core/events"
	"nexumfi/core/ledger"
	gwconfig "nexumfi/gateway/config"
	"nexumfi/gateway/middleware"
	"nexumfi/gateway/routes"
	"nexumfi/integrations/webhooks"
	"nexumfi/observability"
	"nexumfi/observability/logging"
	telemetry "nexumfi/observability/otel"
	"nexumfi/services/indexer"
	"nexumfi/storage"
)

const serviceName = "nexumd"

func main() {
	var ledgerPath string
	var gatewayPath string
	var allowInsecureFlag bool
	flag.StringVar(&ledgerPath, "config", "./config.toml", "path to the ledger configuration (created when missing)")
	flag.StringVar(&gatewayPath, "gateway", "", "path to the HTTP gateway configuration")
	flag.BoolVar(&allowInsecureFlag, "allow-insecure", false, "DEV ONLY: permit plaintext listeners on loopback interfaces")
	flag.Parse()

	cfg, err := ledgerconfig.Load(ledgerPath)
	if err != nil {
		slog.Error("load ledger config", "error", err)
		os.Exit(1)
	}
	logger := logging.SetupWithOptions(logging.Options{
		Service:    serviceName,
		Env:        cfg.Environment,
		Level:      cfg.Logging.Level,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})

	gwCfg, err := gwconfig.Load(gatewayPath)
	if err != nil {
		fatal(logger, "load gateway config", err)
	}

	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: serviceName,
		Environment: cfg.Environment,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     telemetry.ParseHeaders(cfg.Telemetry.Headers),
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
		SampleRatio: cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		fatal(logger, "initialise telemetry", err)
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "ledger"))
	if err != nil {
		fatal(logger, "open ledger database", err)
	}
	defer db.Close()

	borrowAddr, err := cfg.BorrowAddress()
	if err != nil {
		fatal(logger, "resolve borrow account", err)
	}
	rates, err := cfg.Rates()
	if err != nil {
		fatal(logger, "configure rate model", err)
	}

	l := ledger.New(db, borrowAddr)
	l.SetLogger(logger)
	l.SetMetrics(observability.Ledger())
	l.SetRateModel(rates)

	if err := initializeLedger(context.Background(), l, cfg, logger); err != nil {
		fatal(logger, "initialise ledger", err)
	}

	journal, err := indexer.Open(gwCfg.Indexer.DSN, logger)
	if err != nil {
		fatal(logger, "open event journal", err)
	}
	defer journal.Close()

	emitters := events.Fanout{journal}
	var stream *events.Stream
	if gwCfg.Stream.Enabled {
		stream = events.NewStream()
		emitters = append(emitters, stream)
	}
	dispatchers, err := buildDispatchers(gwCfg.Webhooks, logger)
	if err != nil {
		fatal(logger, "configure webhooks", err)
	}
	defer func() {
		for _, d := range dispatchers {
			d.Close()
		}
	}()
	for _, d := range dispatchers {
		emitters = append(emitters, d)
	}
	l.SetEmitter(emitters)

	handler, err := routes.New(routes.Config{
		Ledger:             l,
		Journal:            journal,
		Stream:             stream,
		StreamWriteTimeout: gwCfg.Stream.WriteTimeout,
		Authenticator: middleware.NewAuthenticator(middleware.AuthConfig{
			Enabled:        gwCfg.Auth.Enabled,
			HMACSecret:     gwCfg.Auth.HMACSecret,
			Issuer:         gwCfg.Auth.Issuer,
			Audience:       gwCfg.Auth.Audience,
			ScopeClaim:     gwCfg.Auth.ScopeClaim,
			OptionalPaths:  gwCfg.Auth.OptionalPaths,
			AllowAnonymous: gwCfg.Auth.AllowAnonymous,
			ClockSkew:      gwCfg.Auth.ClockSkew,
		}, logger),
		RateLimiter: middleware.NewRateLimiter(buildRateLimits(gwCfg), logger),
		Observability: middleware.NewObservability(middleware.ObservabilityConfig{
			LogRequests: gwCfg.Observability.LogRequests,
			Enabled:     gwCfg.Observability.Metrics,
		}, logger),
		CORS: middleware.CORSConfig{
			AllowedOrigins:   gwCfg.CORS.AllowedOrigins,
			AllowCredentials: gwCfg.CORS.AllowCredentials,
		},
		MetricsPath: gwCfg.Observability.MetricsPath,
		ServiceName: gwCfg.Observability.ServiceName,
		Tracing:     gwCfg.Observability.Tracing,
	})
	if err != nil {
		fatal(logger, "configure routes", err)
	}

	configDir := ""
	if strings.TrimSpace(gatewayPath) != "" {
		configDir = filepath.Dir(gatewayPath)
	}
	tlsConfig, err := buildTLSConfig(configDir, gwCfg.Security)
	if err != nil {
		fatal(logger, "configure TLS", err)
	}
	if tlsConfig == nil {
		if err := checkPlaintext(gwCfg, cfg.Environment, allowInsecureFlag); err != nil {
			fatal(logger, "refusing plaintext listener", err)
		}
	}

	server := &http.Server{
		Addr:         gwCfg.ListenAddress,
		Handler:      handler,
		ReadTimeout:  gwCfg.ReadTimeout,
		WriteTimeout: gwCfg.WriteTimeout,
		IdleTimeout:  gwCfg.IdleTimeout,
		TLSConfig:    tlsConfig,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	listener, err := net.Listen("tcp", gwCfg.ListenAddress)
	if err != nil {
		fatal(logger, "listen", err)
	}
	serveErr := make(chan error, 1)
	go func() {
		scheme := "http"
		if tlsConfig != nil {
			scheme = "https"
			listener = tls.NewListener(listener, tlsConfig)
		}
		logger.Info("listening", "address", scheme+"://"+listener.Addr().String())
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			logger.Error("serve", "error", err)
		}
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", "error", err)
	}
}

// initializeLedger installs the configured genesis on an empty database.
func initializeLedger(ctx context.Context, l *ledger.Ledger, cfg *ledgerconfig.Config, logger *slog.Logger) error {
	done, err := l.Initialized(ctx)
	if err != nil {
		return err
	}
	if done {
		logger.Info("ledger already initialised")
		return nil
	}
	genesis, err := cfg.LedgerGenesis()
	if err != nil {
		return err
	}
	if err := l.Initialize(ctx, genesis); err != nil {
		return err
	}
	logger.Info("ledger initialised", "admin", cfg.Genesis.Admin, "verifier", cfg.Genesis.Verifier)
	return nil
}

func buildDispatchers(hooks []gwconfig.WebhookConfig, logger *slog.Logger) ([]*webhooks.Dispatcher, error) {
	out := make([]*webhooks.Dispatcher, 0, len(hooks))
	for _, hook := range hooks {
		d, err := webhooks.NewDispatcher(hook.Endpoint, []byte(hook.Secret),
			webhooks.WithTopics(hook.Events...),
			webhooks.WithLogger(logger.With("webhook", hook.Endpoint)),
		)
		if err != nil {
			for _, existing := range out {
				existing.Close()
			}
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

func buildRateLimits(cfg gwconfig.Config) map[string]middleware.RateLimit {
	limits := make(map[string]middleware.RateLimit)
	for module, entry := range cfg.RateLimitsByModule() {
		limits[module] = middleware.RateLimit{
			RequestsPerMinute: entry.RequestsPerMinute,
			RatePerSecond:     entry.RatePerSecond,
			Burst:             entry.Burst,
			Tokens:            entry.Tokens,
		}
	}
	if len(limits) == 0 {
		limits["registry"] = middleware.RateLimit{RatePerSecond: 5, Burst: 50}
		limits["vault"] = middleware.RateLimit{RatePerSecond: 2, Burst: 20}
		limits["borrow"] = middleware.RateLimit{RatePerSecond: 2, Burst: 20}
		limits["events"] = middleware.RateLimit{RatePerSecond: 5, Burst: 50}
	}
	return limits
}

func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, "error", err)
	os.Exit(1)
}
