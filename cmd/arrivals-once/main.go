package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/joho/godotenv"

	"github.com/joseph-ayodele/arrivals-intake/internal/common"
	"github.com/joseph-ayodele/arrivals-intake/internal/delivery"
	"github.com/joseph-ayodele/arrivals-intake/internal/intake"
	"github.com/joseph-ayodele/arrivals-intake/internal/repository"
	"github.com/joseph-ayodele/arrivals-intake/internal/transport"
)

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	// Parse CLI flags
	var (
		configDir = flag.String("config", "", "directory containing arrivals.yaml (optional)")
		dryRun    = flag.String("dry-run", "", "local directory to load into an in-memory store instead of connecting to the remote")
	)
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		printError("Warning: could not load .env: %v\n", err)
	}

	cfg, err := common.LoadConfig(*configDir)
	if err != nil {
		printError("Error: loading config: %v\n", err)
		os.Exit(3)
	}
	if *dryRun != "" && cfg.Transport.Kind == common.TransportSFTP && cfg.Transport.Host == "" {
		// The remote is never contacted in dry-run mode.
		cfg.Transport.Host = "dry-run"
		cfg.Transport.Username = "dry-run"
		cfg.Transport.Password = "dry-run"
	}
	if err := cfg.Validate(); err != nil {
		printError("Error: %v\n", err)
		os.Exit(3)
	}

	// Logs go to stderr so stdout carries only the report.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: common.ParseLevel(cfg.LogLevel)}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var store transport.RemoteStore
	if *dryRun != "" {
		mem, err := seedMemStore(*dryRun, cfg.Transport.WatchedDir, cfg.Intake.Collision)
		if err != nil {
			printError("Error: loading %s: %v\n", *dryRun, err)
			os.Exit(1)
		}
		store = mem
		defer printLayout(mem)
	} else {
		store, err = transport.Open(ctx, cfg.Transport, cfg.Intake.Collision, logger)
		if err != nil {
			logger.Error("failed to open transport", "error", err)
			os.Exit(1)
		}
	}
	defer func() { _ = store.Close() }()

	ledger, err := repository.OpenLedger(ctx, cfg.Ledger, logger)
	if err != nil {
		logger.Error("failed to open ledger", "error", err)
		os.Exit(1)
	}
	defer func() { _ = ledger.Close() }()

	client, creds := delivery.NewFromConfig(cfg.Delivery, logger)
	pipeline := intake.NewPipeline(store, client, creds, cfg.Transport.WatchedDir, logger, intake.OptionsFromConfig(cfg.Intake)...)

	report, err := intake.RunOnce(ctx, pipeline, ledger)
	if err != nil {
		logger.Error("run failed", "error", err)
		code := 1
		if errors.Is(err, common.ErrAuth) {
			code = 2
		}
		stop()
		os.Exit(code)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		printError("Error: encoding report: %v\n", err)
		os.Exit(1)
	}
}

// seedMemStore copies the regular files of dir into an in-memory store under watched.
func seedMemStore(dir, watched, collision string) (*transport.MemStore, error) {
	policy, err := transport.ParseCollisionPolicy(collision)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	mem := transport.NewMemStore(policy)
	mem.MkdirAll(watched)
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		b, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		mem.Put(transport.Join(watched, e.Name()), b)
	}
	return mem, nil
}

func printLayout(mem *transport.MemStore) {
	for _, mv := range mem.Moves() {
		printError("moved %s -> %s\n", mv[0], mv[1])
	}
}
