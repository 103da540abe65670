// Command caseflowd runs the caseflow daemon: the HTTP API over the
// case catalog, progress ledger, and queue sessions.
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"caseflow/internal/config"
	"caseflow/internal/daemon"
	"caseflow/internal/logging"
	"caseflow/internal/storage"
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

	db, err := storage.Open(ctx, cfg.DatabasePath())
	if err != nil {
		logger.Error("open database", logging.Error(err))
		return
	}
	defer db.Close()

	d, err := daemon.New(cfg, db, logger)
	if err != nil {
		logger.Error("create daemon", logging.Error(err))
		return
	}
	if err := d.Start(ctx); err != nil {
		logger.Error("start daemon", logging.Error(err))
		return
	}

	<-ctx.Done()
	d.Stop()
}
