package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/joseph-ayodele/arrivals-intake/internal/common"
	"github.com/joseph-ayodele/arrivals-intake/internal/delivery"
	"github.com/joseph-ayodele/arrivals-intake/internal/intake"
	"github.com/joseph-ayodele/arrivals-intake/internal/repository"
	"github.com/joseph-ayodele/arrivals-intake/internal/server"
	"github.com/joseph-ayodele/arrivals-intake/internal/transport"
)

func main() {
	configDir := flag.String("config", "", "directory containing arrivals.yaml (optional)")
	flag.Parse()

	// Logger
	zlog, _ := zap.NewProduction()
	defer func() { _ = zlog.Sync() }()
	log := zlog.Sugar()

	// .env is optional; real environment wins.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warnw("could not load .env", "error", err)
	}

	cfg, err := common.LoadConfig(*configDir)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}
	logger := common.NewLogger(cfg.LogLevel)

	// Context with signal
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := transport.Open(ctx, cfg.Transport, cfg.Intake.Collision, logger)
	if err != nil {
		log.Fatalf("opening %s transport: %v", cfg.Transport.Kind, err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warnw("closing transport", "error", err)
		}
	}()

	ledger, err := repository.OpenLedger(ctx, cfg.Ledger, logger)
	if err != nil {
		log.Fatalf("opening %s ledger: %v", cfg.Ledger.Driver, err)
	}
	defer func() { _ = ledger.Close() }()

	client, creds := delivery.NewFromConfig(cfg.Delivery, logger)
	pipeline := intake.NewPipeline(store, client, creds, cfg.Transport.WatchedDir, logger, intake.OptionsFromConfig(cfg.Intake)...)

	health := server.NewHealthReporter(zlog)
	sched := intake.NewScheduler(pipeline, ledger, logger,
		intake.WithInterval(cfg.Intake.PollInterval),
		intake.WithReauthEachCycle(cfg.Intake.ReauthEachCycle),
		intake.WithStateListener(health.OnState),
		intake.WithCycleListener(func(r intake.CycleReport, err error) {
			if err != nil {
				return
			}
			log.Infow("cycle report",
				"cycle_id", r.CycleID,
				"eligible", r.Eligible,
				"uploaded", r.Uploaded,
				"errored", r.Errored,
				"records_submitted", r.RecordsSubmitted,
				"records_failed", r.RecordsFailed,
			)
		}),
	)

	// gRPC health
	if cfg.Server.GRPCAddr != "" {
		grpcServer := server.NewGRPCServer(health)
		lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
		if err != nil {
			log.Fatalf("listen: %v", err)
		}
		log.Infof("gRPC health serving on %s", cfg.Server.GRPCAddr)
		go func() {
			if err := grpcServer.Serve(lis); err != nil {
				log.Errorw("grpc serve", "error", err)
			}
		}()
		defer grpcServer.GracefulStop()
	}

	// HTTP trigger
	router := server.NewRouter(server.NewTriggerHandler(ctx, sched, zlog), zlog)
	httpServer := &http.Server{Addr: cfg.Server.HTTPAddr, Handler: router, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		log.Infof("HTTP trigger listening on %s", cfg.Server.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorw("http serve", "error", err)
			stop()
		}
	}()

	if cfg.Server.Autostart {
		if _, err := sched.Start(ctx); err != nil {
			log.Errorw("autostart failed", "error", err)
		}
	}

	<-ctx.Done()
	log.Info("shutting down...")
	health.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warnw("http shutdown", "error", err)
	}
	for sched.Running() && shutdownCtx.Err() == nil {
		time.Sleep(50 * time.Millisecond)
	}
	log.Info("stopped.")
}
