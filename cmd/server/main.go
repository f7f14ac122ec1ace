package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/me/qhaul/internal/config"
	"github.com/me/qhaul/internal/device"
	"github.com/me/qhaul/internal/joblog"
	"github.com/me/qhaul/internal/logging"
	"github.com/me/qhaul/internal/pipeline"
	"github.com/me/qhaul/internal/scheduler"
	"github.com/me/qhaul/internal/server"
	"github.com/me/qhaul/internal/store"
)

func main() {
	configFile := flag.String("config", "", "Path to YAML server config file")
	addr := flag.String("addr", "", "Listen address (overrides config)")
	logLevel := flag.String("log-level", "", "Log level: debug, info, warn, error (overrides config)")
	logFormat := flag.String("log-format", "", "Log format: text, json (overrides config)")
	dbPath := flag.String("db", "", "Database path (overrides config, default ~/.qhaul/qhaul.db)")
	debug := flag.Bool("debug", false, "Shorthand for --log-level=debug")
	flag.Parse()

	cfg, err := config.LoadServerConfig(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *logFormat != "" {
		cfg.LogFormat = *logFormat
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}
	if *debug {
		cfg.LogLevel = "debug"
	}

	logger := logging.New(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat)

	// Resolve database and job log paths.
	if cfg.DBPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "cannot determine home directory: %v\n", err)
			os.Exit(1)
		}
		dir := filepath.Join(home, ".qhaul")
		if err := os.MkdirAll(dir, 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "cannot create %s: %v\n", dir, err)
			os.Exit(1)
		}
		cfg.DBPath = filepath.Join(dir, "qhaul.db")
	}
	if cfg.JobLogDir == "" {
		cfg.JobLogDir = filepath.Join(filepath.Dir(cfg.DBPath), "logs")
	}

	// Open store and run migrations.
	st, err := store.NewSQLiteStore(cfg.DBPath, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open database: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	if err := st.Migrate(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "migrate database: %v\n", err)
		os.Exit(1)
	}
	logger.Info("database ready", "path", cfg.DBPath)

	jl, err := joblog.New(cfg.JobLogDir, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open job log dir: %v\n", err)
		os.Exit(1)
	}

	// Register devices.
	reg := device.NewRegistry(logger)
	var simOpts []device.SimOption
	if dc, ok := cfg.Devices["sim"]; ok && dc.LatencyMS > 0 {
		simOpts = append(simOpts, device.WithLatency(time.Duration(dc.LatencyMS)*time.Millisecond))
	}
	reg.Register(device.NewSim(logger, simOpts...))

	// Per-device limits from config.
	limits := make(map[string]scheduler.Limits, len(cfg.Devices))
	for name, dc := range cfg.Devices {
		limits[name] = scheduler.Limits{
			MaxConcurrent: dc.MaxConcurrent,
			RatePerSec:    dc.RatePerSec,
			Burst:         dc.Burst,
		}
	}

	promReg := prometheus.NewRegistry()
	sched := scheduler.New(reg, scheduler.Config{
		Workers: cfg.Scheduler.Workers,
		Backoff: scheduler.Exponential{
			Initial: cfg.Scheduler.BackoffInitial(),
			Max:     cfg.Scheduler.BackoffMax(),
		},
	}, logger,
		scheduler.WithRecorder(st),
		scheduler.WithJobLog(jl),
		scheduler.WithLimits(scheduler.NewLimitManager(limits)),
		scheduler.WithMetrics(scheduler.NewMetrics(promReg)),
	)
	if err := sched.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "start scheduler: %v\n", err)
		os.Exit(1)
	}

	p := pipeline.New(reg, sched, logger, pipeline.WithStore(st), pipeline.WithJobLog(jl))
	srv := server.New(cfg, p, st, reg, logger, server.WithMetricsGatherer(promReg))

	httpServer := &http.Server{
		Addr:    cfg.Addr,
		Handler: srv.Handler(),
	}

	// Graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("server starting", "addr", cfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	// Stop the scheduler before the HTTP server so in-flight jobs
	// finish ahead of the listener closing.
	if err := sched.Stop(); err != nil {
		logger.Error("scheduler stop error", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "shutdown error: %v\n", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}
