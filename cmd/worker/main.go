package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"portmap-ai/pkg/agent"
	"portmap-ai/pkg/api"
	"portmap-ai/pkg/config"
	"portmap-ai/pkg/logging"
	"portmap-ai/pkg/model"
	"portmap-ai/pkg/version"
)

func main() {
	configPath := flag.String("config", os.Getenv("PORTMAP_CONFIG"), "path to worker config (JSON or YAML)")
	continuous := flag.Bool("continuous", false, "keep scanning every scan_interval")
	interval := flag.Duration("interval", 0, "override scan interval (e.g. 30s)")
	logLevel := flag.String("log-level", "info", "debug|info|warn|error")
	showVersion := flag.Bool("v", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String("worker"))
		return
	}
	level, err := logging.ParseLevel(*logLevel)
	if err != nil {
		log.Fatalf("%v: %v", config.ErrConfig, err)
	}
	cfg, err := config.Load(*configPath, model.RoleWorker)
	if err != nil {
		log.Fatalf("failed to load config %q: %v", *configPath, err)
	}
	logger, closer, err := logging.New(logging.Options{
		Name:     "portmap.worker",
		Dir:      cfg.LogDir,
		File:     "worker.log",
		Level:    level,
		MaxBytes: cfg.LogMaxBytes,
		Backups:  cfg.LogBackupCount,
		Console:  true,
	})
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer closer.Close()

	opts := agent.Options{Logger: logger, IntervalOverride: *interval}
	if cfg.OrchestratorURL != "" {
		client, err := api.NewClient(cfg.OrchestratorURL, cfg.OrchestratorToken, cfg.NetTimeout()).WithTLS(cfg.CAFile, cfg.TLSCert, cfg.TLSKey)
		if err != nil {
			log.Fatalf("orchestrator client: %v", err)
		}
		opts.Orchestrator = client
	}
	if cfg.JournalPath != "" {
		j, err := agent.OpenJournal(cfg.JournalPath)
		if err != nil {
			logger.Warn("remediation journal unavailable", "path", cfg.JournalPath, "err", err)
		} else {
			defer j.Close()
			opts.Journal = j
		}
	}
	a := agent.New(cfg, opts)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !*continuous {
		a.RunOnce(ctx)
		return
	}
	if err := a.Start(ctx); err != nil {
		log.Fatalf("agent start failed: %v", err)
	}
	select {
	case <-ctx.Done():
		logger.Info("worker node stopping")
		a.Stop()
	case <-a.Done():
	}
}
