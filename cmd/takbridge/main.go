// Package main implements the entry point for the takbridge application.
// takbridge maintains a bidirectional Cursor-on-Target session with a TAK
// server and exposes the resulting track picture over HTTP, websocket,
// and optional NATS fan-out.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/c360/takbridge/api"
	"github.com/c360/takbridge/bridge"
	"github.com/c360/takbridge/component"
	"github.com/c360/takbridge/config"
	"github.com/c360/takbridge/health"
	"github.com/c360/takbridge/metric"
	"github.com/c360/takbridge/natsclient"
	"github.com/c360/takbridge/pkg/retry"
	"github.com/c360/takbridge/track"
)

// Build information constants
const (
	Version   = "1.0.0"
	BuildTime = "dev"
	appName   = "takbridge"
)

const healthInterval = 10 * time.Second

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	cliCfg, logger, shouldExit, err := initializeCLI()
	if shouldExit || err != nil {
		return err
	}

	cfg, err := config.Load(cliCfg.ConfigPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	if cliCfg.Validate {
		slog.Info("Configuration is valid")
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metricsRegistry := metric.NewMetricsRegistry()
	monitor := health.NewMonitor()

	natsClient, err := setupNATS(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if natsClient != nil {
		defer natsClient.Close()
	}

	store, closeStore, err := buildStore(ctx, cfg, natsClient)
	if err != nil {
		return fmt.Errorf("building track store: %w", err)
	}
	defer closeStore()

	notifying := track.NewNotifyingStore(store)

	components, apiServer, err := buildComponents(cfg, notifying, logger, metricsRegistry, monitor)
	if err != nil {
		return err
	}

	wireFanout(notifying, apiServer, natsClient, cfg.NATS.Subject, logger)

	core := metricsRegistry.CoreMetrics()
	for _, c := range components {
		if err := c.Initialize(); err != nil {
			core.UpdateComponentStatus(c.Meta().Name, float64(component.StateFailed))
			return fmt.Errorf("initializing %s: %w", c.Meta().Name, err)
		}
		core.UpdateComponentStatus(c.Meta().Name, float64(component.StateInitialized))
	}
	started := make([]component.LifecycleComponent, 0, len(components))
	for _, c := range components {
		if err := c.Start(ctx); err != nil {
			core.UpdateComponentStatus(c.Meta().Name, float64(component.StateFailed))
			stopAll(started, cliCfg.ShutdownTimeout, core)
			return fmt.Errorf("starting %s: %w", c.Meta().Name, err)
		}
		core.UpdateComponentStatus(c.Meta().Name, float64(component.StateStarted))
		started = append(started, c)
	}

	go healthLoop(ctx, monitor, core, components)

	slog.Info("takbridge running",
		"tak_enabled", cfg.TAK.Enabled(),
		"storage_mode", cfg.Storage.Mode,
		"nats_enabled", cfg.NATS.Enabled(),
		"api_addr", cfg.API.Addr())

	<-ctx.Done()
	slog.Info("Shutdown signal received", "timeout", cliCfg.ShutdownTimeout)
	stopAll(started, cliCfg.ShutdownTimeout, core)
	return nil
}

// initializeCLI parses flags and sets up logging
func initializeCLI() (*CLIConfig, *slog.Logger, bool, error) {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return nil, nil, false, fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil, nil, true, nil
	}

	if cliCfg.ShowHelp {
		printDetailedHelp()
		return nil, nil, true, nil
	}

	logger := setupLogger(cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)

	slog.Info("Starting takbridge (TAK server CoT bridge)",
		"version", Version,
		"build_time", BuildTime,
		"config_path", cliCfg.ConfigPath)

	return cliCfg, logger, false, nil
}

// setupNATS connects the optional NATS fan-out client.
func setupNATS(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*natsclient.Client, error) {
	if !cfg.NATS.Enabled() {
		return nil, nil
	}
	client := natsclient.New(cfg.NATS.URL,
		natsclient.WithName(appName),
		natsclient.WithLogger(logger))
	err := retry.Do(ctx, retry.DefaultConfig(), func() error {
		return client.Connect(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", cfg.NATS.URL, err)
	}
	return client, nil
}

// buildStore selects the track store backend from configuration.
func buildStore(ctx context.Context, cfg *config.Config, natsClient *natsclient.Client) (track.Store, func(), error) {
	noop := func() {}
	switch cfg.Storage.Mode {
	case config.StorageModeMemory:
		return track.NewMemoryStore(), noop, nil
	case config.StorageModeSQLite:
		store, err := track.NewSQLiteStore(cfg.Storage.Path)
		if err != nil {
			return nil, noop, err
		}
		return store, func() { _ = store.Close() }, nil
	case config.StorageModeKV:
		if natsClient == nil {
			return nil, noop, fmt.Errorf("storage mode %q requires a NATS connection", cfg.Storage.Mode)
		}
		bucket, err := natsClient.KeyValue(ctx, cfg.Storage.Bucket)
		if err != nil {
			return nil, noop, err
		}
		return track.NewKVStore(bucket), noop, nil
	default:
		return nil, noop, fmt.Errorf("unknown storage mode: %s", cfg.Storage.Mode)
	}
}

// buildComponents assembles the lifecycle components in start order.
func buildComponents(
	cfg *config.Config,
	store track.Store,
	logger *slog.Logger,
	metricsRegistry *metric.MetricsRegistry,
	monitor *health.Monitor,
) ([]component.LifecycleComponent, *api.Server, error) {
	var components []component.LifecycleComponent

	var takBridge *bridge.Bridge
	if cfg.TAK.Enabled() {
		b, err := bridge.New(bridge.Deps{
			Config:          cfg.TAK,
			Store:           store,
			Logger:          logger,
			MetricsRegistry: metricsRegistry,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("creating TAK bridge: %w", err)
		}
		takBridge = b
		components = append(components, b)
	} else {
		logger.Info("TAK bridge disabled, no host configured")
	}

	apiServer, err := api.NewServer(api.Deps{
		Config:          cfg.API,
		Store:           store,
		Bridge:          takBridge,
		Monitor:         monitor,
		MetricsRegistry: metricsRegistry,
		Runtime:         config.NewSafeConfig(cfg),
		Logger:          logger,
		SelfCallsign:    cfg.TAK.Callsign,
		PushInterval:    cfg.TAK.PushInterval(),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("creating API server: %w", err)
	}
	components = append(components, apiServer)

	return components, apiServer, nil
}

// wireFanout subscribes the websocket hub and the optional NATS subject
// to track store writes.
func wireFanout(
	store *track.NotifyingStore,
	apiServer *api.Server,
	natsClient *natsclient.Client,
	subject string,
	logger *slog.Logger,
) {
	store.Subscribe(apiServer.Hub().BroadcastTrack)

	if natsClient == nil {
		return
	}
	store.Subscribe(func(t track.Track) {
		data, err := json.Marshal(t)
		if err != nil {
			return
		}
		if err := natsClient.Publish(subject, data); err != nil {
			logger.Warn("NATS publish failed", "subject", subject, "uid", t.UID, "error", err)
		}
	})
}

// healthLoop feeds component health into the monitor and the health
// check gauge on an interval.
func healthLoop(ctx context.Context, monitor *health.Monitor, core *metric.Metrics, components []component.LifecycleComponent) {
	ticker := time.NewTicker(healthInterval)
	defer ticker.Stop()

	update := func() {
		for _, c := range components {
			meta := c.Meta()
			st := health.FromComponentHealth(meta.Name, c.Health())
			if hd, ok := c.(interface{ HealthDetail() health.Status }); ok {
				st = hd.HealthDetail()
			}
			monitor.Update(meta.Name, st)
			core.UpdateHealthCheck(meta.Name, st.GaugeValue())
		}
	}
	update()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			update()
		}
	}
}

// stopAll stops components in reverse start order.
func stopAll(components []component.LifecycleComponent, timeout time.Duration, core *metric.Metrics) {
	for i := len(components) - 1; i >= 0; i-- {
		c := components[i]
		if err := c.Stop(timeout); err != nil {
			slog.Warn("Component stop failed", "component", c.Meta().Name, "error", err)
			core.UpdateComponentStatus(c.Meta().Name, float64(component.StateFailed))
			continue
		}
		core.UpdateComponentStatus(c.Meta().Name, float64(component.StateStopped))
	}
}
