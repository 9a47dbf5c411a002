package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"snapsync/internal/artifact"
	"snapsync/internal/config"
	"snapsync/internal/daemon"
	"snapsync/internal/ledger"
	"snapsync/internal/logging"
	"snapsync/internal/netmon"
	"snapsync/internal/preflight"
	"snapsync/internal/uploader"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, _, _, err := config.Load("")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatalf("ensure directories: %v", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	results := preflight.RunAll(ctx, cfg)
	for _, result := range results {
		if result.Passed {
			logger.Debug("preflight check passed",
				logging.String("check", result.Name),
				logging.String("detail", result.Detail),
			)
			continue
		}
		logger.Warn("preflight check failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.Bool("advisory", result.Advisory),
		)
	}
	if preflight.Fatal(results) {
		logger.Error("preflight failed, refusing to start")
		os.Exit(1)
	}

	store, err := ledger.Open(cfg)
	if err != nil {
		logger.Error("open queue ledger", logging.Error(err))
		os.Exit(1)
	}
	blobs, err := artifact.Open(cfg)
	if err != nil {
		logger.Error("open blob store", logging.Error(err))
		os.Exit(1)
	}

	monitor := netmon.New(cfg, logger)
	engine := uploader.NewEngine(cfg, store, blobs, logger,
		uploader.WithTransport(uploader.NewClient(cfg)),
		uploader.WithReachability(monitor.Reachable),
	)

	d, err := daemon.New(cfg, store, blobs, engine, monitor, logger)
	if err != nil {
		logger.Error("create daemon", logging.Error(err))
		os.Exit(1)
	}
	defer d.Close()

	if err := d.Start(ctx); err != nil {
		logger.Error("daemon start", logging.Error(err))
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("snapsyncd shutting down")
}
