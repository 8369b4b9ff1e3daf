// Package main implements ducominer, a DUCO-S1 pool mining client.
// It mines against the configured pool, reports statistics periodically,
// forwards shares to the optional sinks and serves a small control API.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bardlex/ducominer/internal/api"
	"github.com/bardlex/ducominer/internal/config"
	"github.com/bardlex/ducominer/internal/database"
	"github.com/bardlex/ducominer/internal/duco"
	"github.com/bardlex/ducominer/internal/messaging"
	"github.com/bardlex/ducominer/internal/miner"
	"github.com/bardlex/ducominer/internal/report"
	"github.com/bardlex/ducominer/pkg/log"
)

func main() {
	configPath := flag.String("config", os.Getenv("DUCO_CONFIG"), "path to a TOML config file")
	flag.Parse()

	// Load configuration
	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger := log.New(cfg.ServiceName, cfg.Version, cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting ducominer",
		"version", cfg.Version,
		"pool", fmt.Sprintf("%s:%d", cfg.PoolHost, cfg.PoolPort),
		"username", cfg.Username,
		"rig_id", cfg.RigID,
	)

	app, err := newApp(cfg, logger)
	if err != nil {
		logger.WithError(err).Error("failed to initialise")
		os.Exit(1)
	}

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("shutdown signal received")
		cancel()
	}()

	if err := app.Run(ctx); err != nil {
		logger.WithError(err).Error("ducominer failed")
		os.Exit(1)
	}

	logger.Info("ducominer stopped")
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Load()
	}
	return config.LoadFile(path)
}

// sinks holds the optional share and snapshot destinations
type sinks struct {
	shares    []report.ShareSink
	snapshots []report.SnapshotSink
	closers   []func() error
}

func (s *sinks) add(shares report.ShareSink, snapshots report.SnapshotSink, closer func() error) {
	s.shares = append(s.shares, shares)
	s.snapshots = append(s.snapshots, snapshots)
	s.closers = append(s.closers, closer)
}

func (s *sinks) Close(logger *log.Logger) {
	for _, c := range s.closers {
		if err := c(); err != nil {
			logger.WithError(err).Warn("failed to close sink")
		}
	}
}

// buildSinks enables every sink whose endpoint is configured. A sink that
// cannot be reached at startup is logged and skipped.
func buildSinks(cfg *config.Config, logger *log.Logger) (*sinks, *database.Manager) {
	s := &sinks{}

	if len(cfg.KafkaBrokers) > 0 {
		kafkaClient := messaging.NewKafkaClient(messaging.KafkaConfig{
			Brokers:    cfg.KafkaBrokers,
			ShareTopic: cfg.KafkaTopic,
			Username:   cfg.Username,
			RigID:      cfg.RigID,
		}, logger)
		s.add(kafkaClient, kafkaClient, kafkaClient.Close)
	}

	if cfg.ZMQPubAddr != "" {
		publisher, err := messaging.NewZMQPublisher(cfg.ZMQPubAddr, logger)
		if err != nil {
			logger.WithError(err).Warn("ZMQ publisher disabled")
		} else {
			s.add(publisher, publisher, publisher.Close)
		}
	}

	var dbManager *database.Manager
	if dbConfig := database.ConfigFrom(cfg); dbConfig.Enabled() {
		manager, err := database.NewManager(dbConfig, logger)
		if err != nil {
			logger.WithError(err).Warn("database sinks disabled")
		} else {
			dbManager = manager
			s.add(manager, manager, manager.Close)
		}
	}

	return s, dbManager
}

// App wires the worker, reporter, sinks and control API together
type App struct {
	cfg        *config.Config
	logger     *log.Logger
	worker     *miner.Worker
	dispatcher *report.Dispatcher
	reporter   *report.Reporter
	server     *api.Server
	sinks      *sinks
	dbManager  *database.Manager
}

func newApp(cfg *config.Config, logger *log.Logger) (*App, error) {
	minerCfg, err := miner.ConfigFrom(cfg)
	if err != nil {
		return nil, err
	}

	s, dbManager := buildSinks(cfg, logger)

	dispatcher := report.NewDispatcher(report.DefaultDispatcherConfig(), s.shares, s.snapshots, logger)
	dialer := duco.NewDialer(duco.DialerConfigFrom(cfg), logger)
	worker := miner.NewWorker(minerCfg, dialer, dispatcher, logger)

	app := &App{
		cfg:        cfg,
		logger:     logger.WithComponent("app"),
		worker:     worker,
		dispatcher: dispatcher,
		reporter:   report.NewReporter(worker, dispatcher, cfg.ReportInterval, logger),
		sinks:      s,
		dbManager:  dbManager,
	}

	if cfg.APIListenAddr != "" {
		app.server = api.NewServer(cfg.APIListenAddr, cfg.Version, worker, logger)
		if dbManager != nil {
			app.server.AddHealthCheck(dbManager.Name(), dbManager.Health)
		}
	}

	return app, nil
}

// Run starts mining and blocks until ctx is done, then shuts down in
// order: API, worker, final report, sinks.
func (a *App) Run(ctx context.Context) error {
	// Sinks outlive ctx so the final snapshot and queued shares drain
	sinkCtx, cancelSinks := context.WithCancel(context.Background())
	defer cancelSinks()

	a.dispatcher.Start(sinkCtx)
	if a.dbManager != nil {
		a.dbManager.StartPeriodicTasks(sinkCtx)
	}

	serverErr := make(chan error, 1)
	if a.server != nil {
		go func() {
			serverErr <- a.server.Serve()
		}()
	}

	if err := a.worker.Start(); err != nil {
		a.shutdown()
		return err
	}

	go a.reporter.Run(ctx)

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-serverErr:
		runErr = err
	}

	a.shutdown()
	return runErr
}

func (a *App) shutdown() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if a.server != nil {
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.logger.WithError(err).Warn("API shutdown failed")
		}
	}

	if err := a.worker.Stop(); err != nil {
		a.logger.WithError(err).Warn("worker stop failed")
	}

	a.reporter.Report()
	a.dispatcher.Close()

	if stats := a.dispatcher.Stats(); stats.Dropped > 0 || stats.Failed > 0 {
		a.logger.Warn("sink delivery incomplete", "dropped", stats.Dropped, "failed", stats.Failed)
	}

	a.sinks.Close(a.logger)
}
