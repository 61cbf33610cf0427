package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"portmap-ai/pkg/api"
	"portmap-ai/pkg/config"
	"portmap-ai/pkg/logging"
	"portmap-ai/pkg/metrics"
	"portmap-ai/pkg/model"
	"portmap-ai/pkg/store"
	"portmap-ai/pkg/version"
)

func main() {
	configPath := flag.String("config", os.Getenv("PORTMAP_CONFIG"), "path to orchestrator config (JSON or YAML)")
	logLevel := flag.String("log-level", "info", "debug|info|warn|error")
	addr := flag.String("addr", "", "listen address (overrides bind_ip/port)")
	showVersion := flag.Bool("v", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String("orchestrator"))
		return
	}
	level, err := logging.ParseLevel(*logLevel)
	if err != nil {
		log.Fatalf("%v: %v", config.ErrConfig, err)
	}
	cfg, err := config.Load(*configPath, model.RoleOrchestrator)
	if err != nil {
		log.Fatalf("failed to load config %q: %v", *configPath, err)
	}
	logger, closer, err := logging.New(logging.Options{
		Name:     "portmap.orchestrator",
		Dir:      cfg.LogDir,
		File:     "orchestrator.log",
		Level:    level,
		MaxBytes: cfg.LogMaxBytes,
		Backups:  cfg.LogBackupCount,
		Console:  true,
	})
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer closer.Close()

	var snap store.Snapshotter
	switch cfg.StateBackend {
	case config.BackendConsul:
		snap, err = store.NewConsulSnapshotter(cfg.ConsulAddr, cfg.StateFile, logger)
		if err != nil {
			log.Fatalf("consul snapshotter: %v", err)
		}
	default:
		snap = store.NewFileSnapshotter(cfg.StateFile)
	}
	nodeStore, err := store.Open(store.WithSnapshotter(snap), store.WithLogger(logger))
	if err != nil {
		log.Fatalf("failed to load orchestrator state: %v", err)
	}

	opts := api.Options{
		Auth:   api.NewAuthenticator(cfg.ServerToken(), cfg.AuthTokenHash, cfg.JWTSecret),
		Hub:    api.NewEventHub(logger),
		Logger: logger,
	}
	if cfg.Metrics {
		opts.Metrics = metrics.NewOrchestrator(func() float64 { return float64(len(nodeStore.ListNodes())) })
	}
	if !opts.Auth.Enabled() {
		logger.Warn("orchestrator auth disabled: no auth_token, auth_token_hash or jwt_secret configured")
	}

	mux := http.NewServeMux()
	api.RegisterRoutes(mux, nodeStore, opts)

	listen := cfg.ListenAddr()
	if *addr != "" {
		listen = *addr
	}
	srv := &http.Server{
		Addr:              listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("orchestrator listening", "addr", listen, "state_backend", cfg.StateBackend, "version", version.Build)
	if cfg.TLSCert != "" && cfg.TLSKey != "" {
		if cfg.ClientCA != "" {
			tlsCfg, errTLS := api.ServerTLSConfig(cfg.TLSCert, cfg.TLSKey, cfg.ClientCA)
			if errTLS != nil {
				log.Fatalf("failed to build TLS config: %v", errTLS)
			}
			srv.TLSConfig = tlsCfg
			err = srv.ListenAndServeTLS("", "")
		} else {
			err = srv.ListenAndServeTLS(cfg.TLSCert, cfg.TLSKey)
		}
	} else {
		err = srv.ListenAndServe()
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server error: %v", err)
	}
	logger.Info("orchestrator stopped")
}
