// Package api exposes the management surface of the bridge: REST track
// ingest and query, raw CoT ingest, health, Prometheus metrics, and a
// websocket feed of live track updates.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/c360/takbridge/bridge"
	"github.com/c360/takbridge/component"
	"github.com/c360/takbridge/config"
	"github.com/c360/takbridge/errors"
	"github.com/c360/takbridge/health"
	"github.com/c360/takbridge/metric"
	"github.com/c360/takbridge/track"
)

// Deps holds the dependencies for the API server.
type Deps struct {
	Config          config.APIConfig
	Store           track.Store
	Bridge          *bridge.Bridge          // optional, nil when the TAK link is disabled
	Monitor         *health.Monitor         // optional
	MetricsRegistry *metric.MetricsRegistry // optional, enables /metrics
	Runtime         *config.SafeConfig      // optional, enables /api/config
	Logger          *slog.Logger
	SelfCallsign    string        // echo filter for raw CoT ingest
	PushInterval    time.Duration // bridge push cadence, sizes the stale window on /tak/cot/pull
}

// Server is the HTTP management server. It implements
// component.LifecycleComponent.
type Server struct {
	cfg      config.APIConfig
	store    track.Store
	bridge   *bridge.Bridge
	monitor  *health.Monitor
	registry *metric.MetricsRegistry
	runtime  *config.SafeConfig
	logger   *slog.Logger
	callsign string

	pushInterval time.Duration

	hub        *Hub
	httpServer *http.Server

	startTime time.Time
	running   bool
}

// NewServer creates the API server from its dependencies.
func NewServer(deps Deps) (*Server, error) {
	if deps.Store == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Server", "NewServer", "track store")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.SelfCallsign == "" {
		deps.SelfCallsign = config.DefaultCallsign
	}
	if deps.PushInterval <= 0 {
		deps.PushInterval = config.DefaultPushInterval
	}

	s := &Server{
		cfg:          deps.Config,
		store:        deps.Store,
		bridge:       deps.Bridge,
		monitor:      deps.Monitor,
		registry:     deps.MetricsRegistry,
		runtime:      deps.Runtime,
		logger:       deps.Logger.With("component", "api"),
		callsign:     deps.SelfCallsign,
		pushInterval: deps.PushInterval,
		hub:          NewHub(deps.Logger),
	}
	return s, nil
}

// Hub returns the websocket hub so live track updates can be wired in.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Routes builds the request mux. Exposed for handler tests.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/tracks", s.handleTracks)
	mux.HandleFunc("/api/bridge", s.handleBridgeStatus)
	mux.HandleFunc("/api/config", s.handleConfig)
	mux.HandleFunc("/ingest/bft", s.handleIngestBFT)
	mux.HandleFunc("/tak/cot", s.handleCoTIngest)
	mux.HandleFunc("/tak/cot/pull", s.handleCoTPull)
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/ws", s.hub.HandleUpgrade)
	if s.registry != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(
			s.registry.PrometheusRegistry(),
			promhttp.HandlerOpts{}))
	}
	return mux
}

// Initialize implements component.LifecycleComponent.
func (s *Server) Initialize() error {
	s.httpServer = &http.Server{
		Addr:              s.cfg.Addr(),
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return nil
}

// Start begins serving. The listener failure surfaces through health
// rather than Start because ListenAndServe blocks.
func (s *Server) Start(ctx context.Context) error {
	if s.running {
		return errors.Wrap(errors.ErrAlreadyStarted, "Server", "Start", "start")
	}
	if s.httpServer == nil {
		if err := s.Initialize(); err != nil {
			return err
		}
	}
	s.running = true
	s.startTime = time.Now()

	go s.hub.Run(ctx)

	s.logger.Info("Starting API server", "addr", s.cfg.Addr())
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("API server terminated", "error", err)
			if s.monitor != nil {
				s.monitor.UpdateUnhealthy("api", err.Error())
			}
		}
	}()
	return nil
}

// Stop drains in-flight requests and closes the websocket hub.
func (s *Server) Stop(timeout time.Duration) error {
	if !s.running {
		return nil
	}
	s.running = false

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s.hub.Close()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return errors.WrapTransient(err, "Server", "Stop", "http shutdown")
	}
	s.logger.Info("API server stopped")
	return nil
}

// Meta implements component.Discoverable.
func (s *Server) Meta() component.Metadata {
	return component.Metadata{
		Name:        "api-" + s.cfg.Addr(),
		Type:        "api",
		Description: "HTTP management and ingest API",
		Version:     "1.0.0",
	}
}

// Health implements component.Discoverable.
func (s *Server) Health() component.HealthStatus {
	return component.HealthStatus{
		Healthy:   s.running,
		LastCheck: time.Now(),
		Uptime:    time.Since(s.startTime),
	}
}
