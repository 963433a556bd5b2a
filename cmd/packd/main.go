// Command packd runs the language-pack publication service.
package main

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq" // Postgres driver

	"github.com/packforge/packd/pkg/api"
	"github.com/packforge/packd/pkg/config"
	"github.com/packforge/packd/pkg/langpack"
	"github.com/packforge/packd/pkg/manifest"
	"github.com/packforge/packd/pkg/minifest"
	"github.com/packforge/packd/pkg/observability"
	"github.com/packforge/packd/pkg/publish"
	"github.com/packforge/packd/pkg/signing"
	"github.com/packforge/packd/pkg/storage"
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint, split out for testing.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		return runServer(stderr)
	}

	switch args[1] {
	case "server", "serve":
		return runServer(stderr)
	case "keygen":
		return runKeygen(args[2:], stdout, stderr)
	case "health":
		return runHealthCmd(stdout, stderr)
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: packd [command]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  server   Run the publication service (default)")
	fmt.Fprintln(w, "  keygen   Generate a new ed25519 signing seed")
	fmt.Fprintln(w, "  health   Check a running server")
	fmt.Fprintln(w, "  help     Show this help")
}

func runServer(stderr io.Writer) int {
	ctx := context.Background()

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return 1
	}

	logger := setupLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	obs, err := observability.New(ctx, &observability.Config{
		ServiceName:    "packd",
		ServiceVersion: "1.0.0",
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		SampleRate:     cfg.SampleRate,
		BatchTimeout:   5 * time.Second,
		Enabled:        cfg.TelemetryEnabled,
		Insecure:       cfg.Environment == "development",
	})
	if err != nil {
		logger.Error("observability init failed", "error", err)
		return 1
	}
	defer func() { _ = obs.Shutdown(ctx) }()

	packs, cleanup, err := openPackStore(ctx, cfg)
	if err != nil {
		logger.Error("pack store init failed", "error", err)
		return 1
	}
	defer cleanup()
	logger.Info("pack store ready", "driver", cfg.DatabaseDriver)

	files, err := storage.NewStoreFromEnv(ctx)
	if err != nil {
		logger.Error("file store init failed", "error", err)
		return 1
	}

	builder := minifest.NewBuilder(cfg.BaseURL)
	var cache minifest.Cache
	if cfg.RedisAddr != "" {
		rc := minifest.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, builder)
		defer func() { _ = rc.Close() }()
		cache = rc
		logger.Info("minifest cache: redis", "addr", cfg.RedisAddr)
	} else {
		cache = minifest.NewMemoryCache(builder)
		logger.Info("minifest cache: in-process")
	}

	signer, err := loadSigner(cfg, logger)
	if err != nil {
		logger.Error("signer init failed", "error", err)
		return 1
	}

	parser, err := manifest.NewParser()
	if err != nil {
		logger.Error("manifest parser init failed", "error", err)
		return 1
	}

	publisher, err := publish.New(packs, parser, signer,
		storage.NewPlacer(files), cache, obs, logger)
	if err != nil {
		logger.Error("publisher init failed", "error", err)
		return 1
	}

	server := api.NewServer(publisher, packs, files, cache, cfg.BaseURL, logger)
	handler := server.Handler(api.Options{
		AuthSecret:          cfg.AuthSecret,
		UploadRatePerMinute: cfg.UploadRatePerMinute,
	})
	if cfg.AuthSecret == "" {
		logger.Warn("admin API auth is disabled; set PACKD_AUTH_SECRET in production")
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("packd listening", "addr", srv.Addr, "base_url", cfg.BaseURL)
		errCh <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		logger.Error("server failed", "error", err)
		return 1
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown incomplete", "error", err)
		return 1
	}
	return 0
}

func loadConfig() (*config.Config, error) {
	if path := os.Getenv("PACKD_CONFIG"); path != "" {
		return config.LoadFile(path)
	}
	return config.Load(), nil
}

func setupLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToUpper(level) {
	case "DEBUG":
		lvl = slog.LevelDebug
	case "WARN":
		lvl = slog.LevelWarn
	case "ERROR":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

// openPackStore opens the configured entity store and returns it with its
// cleanup func.
func openPackStore(ctx context.Context, cfg *config.Config) (langpack.Store, func(), error) {
	switch cfg.DatabaseDriver {
	case "sqlite", "":
		store, err := langpack.OpenSQLite(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite %q: %w", cfg.DatabaseURL, err)
		}
		return store, func() { _ = store.Close() }, nil
	case "postgres":
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("postgres ping: %w", err)
		}
		store := langpack.NewPostgresStore(db)
		if err := store.Init(ctx); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("postgres schema: %w", err)
		}
		return store, func() { _ = db.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown database driver %q", cfg.DatabaseDriver)
	}
}

// loadSigner loads the configured signing key, or generates an ephemeral one
// for development.
func loadSigner(cfg *config.Config, logger *slog.Logger) (*signing.Ed25519Signer, error) {
	if cfg.SigningKeyFile != "" {
		signer, err := signing.LoadEd25519Signer(cfg.SigningKeyFile)
		if err != nil {
			return nil, err
		}
		logger.Info("signing key loaded", "public_key", signer.PublicKey())
		return signer, nil
	}

	signer, err := signing.NewEd25519Signer()
	if err != nil {
		return nil, err
	}
	logger.Warn("using ephemeral signing key; packs cannot be verified after restart",
		"public_key", signer.PublicKey())
	return signer, nil
}

// runKeygen prints a fresh hex seed, or writes it to the given path.
func runKeygen(args []string, stdout, stderr io.Writer) int {
	seed := make([]byte, 32)
	if _, err := rand.Read(seed); err != nil {
		fmt.Fprintf(stderr, "keygen: %v\n", err)
		return 1
	}
	seedHex := hex.EncodeToString(seed)

	signer, err := signing.NewEd25519SignerFromSeed(seedHex)
	if err != nil {
		fmt.Fprintf(stderr, "keygen: %v\n", err)
		return 1
	}

	if len(args) > 0 {
		if err := os.WriteFile(args[0], []byte(seedHex+"\n"), 0o600); err != nil {
			fmt.Fprintf(stderr, "keygen: %v\n", err)
			return 1
		}
		fmt.Fprintf(stdout, "seed written to %s\n", args[0])
	} else {
		fmt.Fprintln(stdout, seedHex)
	}
	fmt.Fprintf(stdout, "public key: %s\n", signer.PublicKey())
	return 0
}

func runHealthCmd(stdout, stderr io.Writer) int {
	base := os.Getenv("PACKD_BASE_URL")
	if base == "" {
		base = "http://localhost:8080"
	}

	resp, err := http.Get(strings.TrimRight(base, "/") + "/health")
	if err != nil {
		fmt.Fprintf(stderr, "Health check failed: %v\n", err)
		return 1
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(stderr, "Health check failed: status %d\n", resp.StatusCode)
		return 1
	}
	fmt.Fprintln(stdout, "OK")
	return 0
}
