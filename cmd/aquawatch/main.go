package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/BarirNada00/AquaWatch-Ms/internal/api"
	"github.com/BarirNada00/AquaWatch-Ms/internal/buffer"
	"github.com/BarirNada00/AquaWatch-Ms/internal/config"
	"github.com/BarirNada00/AquaWatch-Ms/internal/detector"
	"github.com/BarirNada00/AquaWatch-Ms/internal/health"
	"github.com/BarirNada00/AquaWatch-Ms/internal/ingest"
	"github.com/BarirNada00/AquaWatch-Ms/internal/logger"
	"github.com/BarirNada00/AquaWatch-Ms/internal/metrics"
	"github.com/BarirNada00/AquaWatch-Ms/internal/notify"
	"github.com/BarirNada00/AquaWatch-Ms/internal/pipeline"
	"github.com/BarirNada00/AquaWatch-Ms/internal/storage"
)

var configPath = flag.String("config", "configs/config.yaml", "Path to configuration file")

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("Configuration loaded from %s", *configPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	buf := buffer.New()
	agg := health.New()
	m := metrics.New(prometheus.DefaultRegisterer, buf.Len)

	det := detector.New(detector.Config{
		SpikeThresholds: cfg.Detector.SpikeThresholds,
		DriftWindow:     cfg.Detector.DriftWindow,
		DriftDelta:      cfg.Detector.DriftDelta,
		DropoutAfter:    cfg.Detector.DropoutAfter,
	})

	snapshot, err := storage.NewSnapshot(cfg.Storage.SnapshotPath)
	if err != nil {
		logger.Fatal("Failed to initialize snapshot store: %v", err)
	}

	// Detection must survive an unreachable database: come up in degraded
	// mode (buffer plus snapshot only) instead of refusing to start.
	var sink pipeline.Sink
	openCtx, openCancel := context.WithTimeout(ctx, 10*time.Second)
	store, err := storage.Open(openCtx, cfg.Storage.PostgresDSN)
	openCancel()
	if err != nil {
		logger.Warn("Database unavailable, running in degraded mode: %v", err)
	} else {
		sink = store
		agg.SetPersistenceActive(true)
		defer func() {
			if err := store.Close(); err != nil {
				logger.Error("Failed to close database: %v", err)
			}
		}()
		logger.Info("Connected to database")
	}

	var notifier pipeline.Notifier
	if cfg.Telegram.Enabled {
		client, err := notify.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.MaxRetries, cfg.Telegram.RetryDelayBase)
		if err != nil {
			logger.Fatal("Failed to initialize Telegram client: %v", err)
		}
		notifier = client
		logger.Info("Telegram client initialized successfully")
	} else {
		logger.Debug("Telegram notifications disabled")
	}

	p := pipeline.New(pipeline.Config{
		Retention:     cfg.Buffer.Retention,
		SweepInterval: cfg.Buffer.SweepInterval,
		QueueSize:     cfg.Storage.QueueSize,
	}, det, buf, agg, m, snapshot, sink, notifier)

	p.WarmStart()
	go p.RunPersister()
	go p.RunSweeper(ctx)

	if cfg.NATS.Enabled {
		sub := ingest.NewSubscriber(ingest.Config{
			URL:           cfg.NATS.URL,
			Subject:       cfg.NATS.Subject,
			ReconnectWait: cfg.NATS.ReconnectWait,
			ConnectName:   cfg.NATS.ConnectName,
		}, p, agg)
		go sub.Run(ctx)
	} else {
		logger.Debug("Message bus ingestion disabled")
	}

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      api.NewHandler(p, buf, agg).Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Starting detection service (addr: %s, retention: %v, sweep_interval: %v)",
			cfg.Server.Addr,
			cfg.Buffer.Retention,
			cfg.Buffer.SweepInterval,
		)
		serverErr <- server.ListenAndServe()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Shutdown signal received (%v), cleaning up...", sig)
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed: %v", err)
		}
	}

	// Stop ingestion and the sweeper first, then the HTTP listener, then
	// let the persister drain queued writes before the store goes away.
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed: %v", err)
	}

	p.Close()
	logger.Info("Service stopped")
}
