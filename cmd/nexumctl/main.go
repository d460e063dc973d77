package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"nexumfi/cmd/internal/passphrase"
	"nexumfi/config"
	"nexumfi/core/ledger"
	"nexumfi/crypto"
	"nexumfi/gateway/middleware"
	"nexumfi/integrations/exports"
	"nexumfi/native/borrow"
	"nexumfi/storage"
)

const (
	initCommand   = "init"
	keygenCommand = "keygen"
	tokenCommand  = "token"
	exportCommand = "export"

	defaultConfig  = "./config.toml"
	defaultPassEnv = "NEXUM_KEY_PASS"
)

func main() {
	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(1)
	}

	var err error
	args := os.Args[2:]
	switch os.Args[1] {
	case initCommand:
		err = runInit(args, os.Stdout)
	case keygenCommand:
		err = runKeygen(args, os.Stdout)
	case tokenCommand:
		err = runToken(args, os.Stdout)
	case exportCommand:
		err = runExport(args, os.Stdout)
	default:
		usage(os.Stderr)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// runInit writes a fresh ledger configuration with generated accounts.
func runInit(args []string, out io.Writer) error {
	fs := flag.NewFlagSet(initCommand, flag.ContinueOnError)
	configPath := fs.String("config", defaultConfig, "Path of the ledger config file to create")
	force := fs.Bool("force", false, "Overwrite an existing config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if _, err := os.Stat(*configPath); err == nil {
		if !*force {
			return fmt.Errorf("config file %s already exists (use --force to overwrite)", *configPath)
		}
		if err := os.Remove(*configPath); err != nil {
			return err
		}
	} else if !os.IsNotExist(err) {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Wrote %s\n", *configPath)
	fmt.Fprintf(out, "  admin:    %s\n", cfg.Genesis.Admin)
	fmt.Fprintf(out, "  verifier: %s\n", cfg.Genesis.Verifier)
	fmt.Fprintf(out, "  borrow:   %s\n", cfg.BorrowAccount)
	return nil
}

// runKeygen generates an account key and stores it in an encrypted keystore.
func runKeygen(args []string, out io.Writer) error {
	fs := flag.NewFlagSet(keygenCommand, flag.ContinueOnError)
	keystorePath := fs.String("keystore", "", "Output path for the keystore file")
	passEnv := fs.String("pass-env", defaultPassEnv, "Environment variable containing the keystore passphrase")
	force := fs.Bool("force", false, "Overwrite an existing keystore file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*keystorePath) == "" {
		return fmt.Errorf("--keystore is required")
	}
	if !*force {
		if _, err := os.Stat(*keystorePath); err == nil {
			return fmt.Errorf("keystore file %s already exists (use --force to overwrite)", *keystorePath)
		} else if !os.IsNotExist(err) {
			return err
		}
	}

	pass, err := passphrase.NewSource(*passEnv).Get()
	if err != nil {
		return err
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return err
	}
	if err := crypto.SaveToKeystore(*keystorePath, key, pass); err != nil {
		return fmt.Errorf("write keystore: %w", err)
	}
	fmt.Fprintf(out, "%s\n", key.Address())
	return nil
}

// runToken mints a bearer token whose subject is the caller account.
func runToken(args []string, out io.Writer) error {
	fs := flag.NewFlagSet(tokenCommand, flag.ContinueOnError)
	secretEnv := fs.String("secret-env", "NEXUM_GATEWAY_SECRET", "Environment variable containing the gateway HMAC secret")
	subject := fs.String("subject", "", "Caller account (bech32)")
	keystorePath := fs.String("keystore", "", "Derive the subject from this keystore instead of --subject")
	passEnv := fs.String("pass-env", defaultPassEnv, "Environment variable containing the keystore passphrase")
	issuer := fs.String("issuer", "", "Token issuer")
	audience := fs.String("audience", "", "Token audience")
	scopes := fs.String("scopes", "", "Comma separated scopes")
	ttl := fs.Duration("ttl", time.Hour, "Token lifetime; zero disables expiry")
	if err := fs.Parse(args); err != nil {
		return err
	}

	secret := os.Getenv(*secretEnv)
	if strings.TrimSpace(secret) == "" {
		return fmt.Errorf("%s is not set", *secretEnv)
	}

	var caller crypto.Address
	switch {
	case strings.TrimSpace(*keystorePath) != "":
		pass, err := passphrase.NewSource(*passEnv).Get()
		if err != nil {
			return err
		}
		key, err := crypto.LoadFromKeystore(*keystorePath, pass)
		if err != nil {
			return fmt.Errorf("open keystore: %w", err)
		}
		caller = key.Address()
	case strings.TrimSpace(*subject) != "":
		addr, err := crypto.DecodeAddress(strings.TrimSpace(*subject))
		if err != nil {
			return fmt.Errorf("invalid --subject: %w", err)
		}
		caller = addr
	default:
		return fmt.Errorf("one of --subject or --keystore is required")
	}

	token, err := middleware.SignToken(secret, middleware.TokenClaims{
		Subject:  caller,
		Issuer:   *issuer,
		Audience: *audience,
		Scopes:   splitList(*scopes),
		TTL:      *ttl,
	}, time.Now())
	if err != nil {
		return err
	}
	fmt.Fprintln(out, token)
	return nil
}

// runExport writes the loan book from a stopped daemon's data directory.
func runExport(args []string, out io.Writer) error {
	fs := flag.NewFlagSet(exportCommand, flag.ContinueOnError)
	configPath := fs.String("config", defaultConfig, "Path to the ledger config file")
	format := fs.String("format", "csv", "Export format: csv, jsonl or parquet")
	outPath := fs.String("out", "", "Output file; defaults to stdout")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	borrowAddr, err := cfg.BorrowAddress()
	if err != nil {
		return err
	}
	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "ledger"))
	if err != nil {
		return fmt.Errorf("open ledger database (is nexumd still running?): %w", err)
	}
	defer db.Close()

	loans, err := ledger.New(db, borrowAddr).Loans(context.Background())
	if err != nil {
		return err
	}
	data, checksum, err := encodeLoans(*format, loans)
	if err != nil {
		return err
	}

	if strings.TrimSpace(*outPath) == "" {
		_, err = out.Write(data)
		return err
	}
	if err := os.WriteFile(*outPath, data, 0o644); err != nil {
		return err
	}
	fmt.Fprintf(out, "Wrote %d loans to %s (sha256 %s)\n", len(loans), *outPath, checksum)
	return nil
}

func encodeLoans(format string, loans []*borrow.Loan) ([]byte, string, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "csv":
		return exports.LoanBookCSV(loans)
	case "jsonl":
		return exports.LoanBookJSONL(loans)
	case "parquet":
		return exports.LoanBookParquet(loans)
	default:
		return nil, "", fmt.Errorf("unsupported format %q", format)
	}
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "nexumctl <command> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintf(w, "  %-8s Create a ledger config with fresh admin, verifier and borrow accounts\n", initCommand)
	fmt.Fprintf(w, "  %-8s Generate an account key into an encrypted keystore\n", keygenCommand)
	fmt.Fprintf(w, "  %-8s Mint a gateway bearer token for an account\n", tokenCommand)
	fmt.Fprintf(w, "  %-8s Export the loan book from a stopped node\n", exportCommand)
}
