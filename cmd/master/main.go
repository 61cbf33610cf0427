package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"portmap-ai/pkg/api"
	"portmap-ai/pkg/bus"
	"portmap-ai/pkg/config"
	"portmap-ai/pkg/db"
	"portmap-ai/pkg/logging"
	"portmap-ai/pkg/master"
	"portmap-ai/pkg/metrics"
	"portmap-ai/pkg/model"
	"portmap-ai/pkg/version"
)

func main() {
	configPath := flag.String("config", os.Getenv("PORTMAP_CONFIG"), "path to master config (JSON or YAML)")
	logLevel := flag.String("log-level", "info", "debug|info|warn|error")
	metricsAddr := flag.String("metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9101)")
	showVersion := flag.Bool("v", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String("master"))
		return
	}
	level, err := logging.ParseLevel(*logLevel)
	if err != nil {
		log.Fatalf("%v: %v", config.ErrConfig, err)
	}
	cfg, err := config.Load(*configPath, model.RoleMaster)
	if err != nil {
		log.Fatalf("failed to load config %q: %v", *configPath, err)
	}
	logger, closer, err := logging.New(logging.Options{
		Name:     "portmap.master",
		Dir:      cfg.LogDir,
		File:     "master.log",
		Level:    level,
		MaxBytes: cfg.LogMaxBytes,
		Backups:  cfg.LogBackupCount,
		Console:  true,
	})
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer closer.Close()

	fileAudit, err := master.NewFileAudit(cfg.LogDir)
	if err != nil {
		log.Fatalf("audit init failed: %v", err)
	}
	sinks := master.MultiSink{fileAudit}
	var closers []io.Closer
	if cfg.AuditDSN != "" {
		auditDB, err := db.Open(cfg.AuditDSN)
		if err != nil {
			logger.Warn("audit database unavailable", "err", err)
		} else {
			sinks = append(sinks, auditDB)
			closers = append(closers, auditDB)
		}
	}
	if cfg.NATSURL != "" {
		pub, err := bus.NewPublisher(cfg.NATSURL, cfg.NATSSubject, logger)
		if err != nil {
			logger.Warn("nats publisher unavailable", "err", err)
		} else {
			sinks = append(sinks, pub)
			closers = append(closers, pub)
		}
	}
	defer func() {
		for _, c := range closers {
			_ = c.Close()
		}
	}()

	m := metrics.NewMaster()
	opts := master.Options{
		Mode:        cfg.RemediationMode,
		Threshold:   cfg.RemediationThreshold,
		ReadTimeout: cfg.NetTimeout(),
		Audit:       sinks,
		Metrics:     m,
		Logger:      logger,
	}
	if cfg.OrchestratorURL != "" {
		client, err := api.NewClient(cfg.OrchestratorURL, cfg.OrchestratorToken, 5*time.Second).WithTLS(cfg.CAFile, cfg.TLSCert, cfg.TLSKey)
		if err != nil {
			log.Fatalf("orchestrator client: %v", err)
		}
		opts.Forwarder = client
	}
	srv, err := master.NewServer(opts)
	if err != nil {
		log.Fatalf("master init failed: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		msrv := &http.Server{Addr: *metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := msrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server error", "err", err)
			}
		}()
		defer msrv.Close()
	}

	ln, err := net.Listen("tcp", cfg.ListenAddr())
	if err != nil {
		log.Fatalf("listen %s: %v", cfg.ListenAddr(), err)
	}
	if err := srv.Serve(ctx, ln); err != nil {
		log.Fatalf("master error: %v", err)
	}
}
