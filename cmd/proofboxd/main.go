package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"proofbox/internal/api"
	"proofbox/internal/config"
	"proofbox/internal/daemon"
	"proofbox/internal/logging"
	"proofbox/internal/notifications"
	"proofbox/internal/orchestrator"
	"proofbox/internal/processing"
	"proofbox/internal/store"
	"proofbox/internal/uploader"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, path, exists, err := config.Load("")
	if err != nil {
		if !exists && path != "" {
			fmt.Fprintf(os.Stderr, "no config file found; run `proofbox config init` to create %s\n", path)
			os.Exit(1)
		}
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatalf("prepare directories: %v", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	st, err := store.Open(cfg)
	if err != nil {
		logger.Error("open capture store", logging.Error(err))
		os.Exit(1)
	}

	client := api.NewClient(cfg.Remote)
	notifier := notifications.NewService(cfg)
	pipeline := processing.NewPipeline(cfg.Processing, logger)
	defer pipeline.Close()

	queue := uploader.NewQueue(cfg.Upload, st, pipeline, client, notifier, logger)
	orch := orchestrator.New(cfg.Sync, st, queue, client, logger)
	netwatch := orchestrator.NewNetWatcher(orch, logger)

	d, err := daemon.New(cfg, st, queue, orch, netwatch, notifier, logger)
	if err != nil {
		logger.Error("create daemon", logging.Error(err))
		st.Close()
		os.Exit(1)
	}
	defer d.Close()

	if err := d.Start(ctx); err != nil {
		logger.Error("start daemon", logging.Error(err))
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("proofboxd shutting down")
}
