package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"iot-automation-engine/config"
	"iot-automation-engine/internal/api"
	"iot-automation-engine/internal/engine"
	"iot-automation-engine/internal/logger"
	"iot-automation-engine/internal/metrics"
	"iot-automation-engine/internal/notify"
	"iot-automation-engine/internal/rule"
	"iot-automation-engine/internal/storage"
)

func main() {
	configPath := flag.String("config", "config/config.json", "path to config file")

	// Optional override flags
	intervalOverride := flag.Duration("interval", 0, "override rule evaluation interval (0 = use config)")
	stateDirOverride := flag.String("state-dir", "", "override state directory (empty = use config)")
	metricsAddrOverride := flag.String("metrics-addr", "", "override metrics server address (empty = use config)")
	metricsPathOverride := flag.String("metrics-path", "", "override metrics endpoint path (empty = use config)")

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	cfg.ApplyOverrides(
		*intervalOverride,
		*stateDirOverride,
		*metricsAddrOverride,
		*metricsPathOverride,
	)

	logger, err := logger.NewLogger(&cfg.Logging)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}

	// Setup metrics if enabled
	var metricsService *metrics.Metrics
	var metricsServer *http.Server

	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		metricsService, err = metrics.NewMetrics(reg)
		if err != nil {
			logger.Fatal("failed to create metrics service", "error", err)
		}

		updateInterval, err := time.ParseDuration(cfg.Metrics.UpdateInterval)
		if err != nil {
			logger.Fatal("invalid metrics update interval", "error", err)
		}

		metricsCollector := metrics.NewMetricsCollector(metricsService, updateInterval)
		metricsCollector.Start()
		defer metricsCollector.Stop()

		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{
			Registry:          reg,
			EnableOpenMetrics: true,
		}))

		metricsServer = &http.Server{
			Addr:    cfg.Metrics.Address,
			Handler: mux,
		}

		go func() {
			logger.Info("starting metrics server",
				"address", cfg.Metrics.Address,
				"path", cfg.Metrics.Path)
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server error", "error", err)
			}
		}()
	}

	// Local durable state
	state, err := storage.New(cfg.Storage.Directory, logger)
	if err != nil {
		logger.Fatal("failed to open state store", "error", err)
	}

	// Backend client, rule store, event log
	client := api.NewClient(cfg.Backend.BaseURL, cfg.BackendTimeout(), logger)

	store := rule.NewStore(client, state, logger, metricsService)
	events := rule.NewEventLog(cfg.Engine.EventLogCap, state, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	loadCtx, loadCancel := context.WithTimeout(ctx, 30*time.Second)
	if err := store.Load(loadCtx); err != nil {
		loadCancel()
		logger.Fatal("failed to load rules", "error", err)
	}
	loadCancel()
	events.Load()

	// Optional event notification
	var notifier notify.Notifier
	var backends []notify.Notifier
	if cfg.Notify.MQTT != nil {
		mqttNotifier, err := notify.NewMQTTNotifier(cfg.Notify.MQTT, cfg.Notify.Topic, logger, metricsService)
		if err != nil {
			logger.Fatal("failed to create mqtt notifier", "error", err)
		}
		backends = append(backends, mqttNotifier)
	}
	if cfg.Notify.NATS != nil {
		natsNotifier, err := notify.NewNATSNotifier(cfg.Notify.NATS, cfg.Notify.Topic, logger, metricsService)
		if err != nil {
			logger.Fatal("failed to create nats notifier", "error", err)
		}
		backends = append(backends, natsNotifier)
	}
	if len(backends) > 0 {
		notifier = notify.NewMulti(logger, backends...)
		defer notifier.Close()
	}

	eng := engine.New(store, events, client, notifier, logger, metricsService, cfg.EvalInterval())
	if cfg.Engine.WarmStart {
		eng.WarmStart(ctx)
	}
	go eng.Run(ctx)

	logger.Info("iot-automation-engine started",
		"backend", cfg.Backend.BaseURL,
		"interval", cfg.Engine.EvalInterval,
		"rulesCount", len(store.List()),
		"metricsEnabled", cfg.Metrics.Enabled)

	// Handle signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown metrics server", "error", err)
		}
	}

	cancel()

	if statsJSON, err := eng.Stats().GetStatsJSON(); err == nil {
		logger.Info("final stats", "stats", string(statsJSON))
	}
}
