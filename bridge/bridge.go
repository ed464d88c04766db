// Package bridge maintains a persistent CoT session with a TAK server:
// a receive loop that streams inbound events into the track store and a
// send loop that pushes self-SA heartbeats and locally held tracks back out.
package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/c360/takbridge/component"
	"github.com/c360/takbridge/config"
	"github.com/c360/takbridge/errors"
	"github.com/c360/takbridge/health"
	"github.com/c360/takbridge/metric"
	"github.com/c360/takbridge/track"
)

const (
	// saInterval is how often the bridge announces itself on the feed.
	saInterval = 15 * time.Second

	// recvChunkSize is the read buffer size for the TAK stream.
	recvChunkSize = 4096
)

// DialFunc establishes the transport connection to the TAK server.
// Swappable so tests can drive the loops without a real server.
type DialFunc func(ctx context.Context) (net.Conn, error)

// Deps holds the dependencies for a TAK bridge.
type Deps struct {
	Config          config.TAKConfig
	Store           track.Store
	Logger          *slog.Logger
	MetricsRegistry *metric.MetricsRegistry // optional
}

// Bridge connects to a TAK server and exchanges CoT events in both
// directions over a single TCP or TLS stream. It implements
// component.LifecycleComponent.
type Bridge struct {
	cfg     config.TAKConfig
	store   track.Store
	logger  *slog.Logger
	metrics *Metrics

	dial         DialFunc
	sleep        func(time.Duration) bool
	tick         <-chan time.Time // overrides the send loop ticker when set
	tickInterval time.Duration
	saInterval   time.Duration
	pushInterval time.Duration
	now          func() time.Time

	// Session state. One mutex guards the live socket and every counter
	// reported by Status.
	mu              sync.Mutex
	conn            net.Conn
	connected       bool
	lastConnectedAt time.Time
	lastError       string
	reconnectCount  int64
	eventsReceived  int64
	eventsSent      int64

	runMu     sync.Mutex
	running   bool
	shutdown  chan struct{}
	wg        sync.WaitGroup
	startTime time.Time
}

// Status is a point-in-time snapshot of the bridge session.
type Status struct {
	Connected       bool   `json:"connected"`
	Host            string `json:"host"`
	Port            int    `json:"port"`
	TLS             bool   `json:"tls"`
	Callsign        string `json:"callsign"`
	LastConnectedAt string `json:"last_connected_at,omitempty"`
	LastError       string `json:"last_error,omitempty"`
	ReconnectCount  int64  `json:"reconnect_count"`
	EventsReceived  int64  `json:"events_received"`
	EventsSent      int64  `json:"events_sent"`
}

// New creates a TAK bridge from its dependencies.
func New(deps Deps) (*Bridge, error) {
	if !deps.Config.Enabled() {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Bridge", "New", "tak host")
	}
	if deps.Store == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Bridge", "New", "track store")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	b := &Bridge{
		cfg:          deps.Config,
		store:        deps.Store,
		logger:       deps.Logger.With("component", "bridge"),
		metrics:      newMetrics(deps.MetricsRegistry, deps.Config.Host, deps.Config.Port),
		tickInterval: time.Second,
		saInterval:   saInterval,
		pushInterval: deps.Config.PushInterval(),
		now:          time.Now,
	}
	b.dial = b.dialTAK
	b.sleep = b.sleepInterruptible
	return b, nil
}

// Initialize validates connection material ahead of Start.
func (b *Bridge) Initialize() error {
	if _, err := b.tlsConfig(); err != nil {
		return err
	}
	return nil
}

// Start launches the receive and send loops. The loops run until Stop is
// called or the context is cancelled.
func (b *Bridge) Start(ctx context.Context) error {
	b.runMu.Lock()
	defer b.runMu.Unlock()
	if b.running {
		return errors.Wrap(errors.ErrAlreadyStarted, "Bridge", "Start", "start")
	}
	b.running = true
	b.shutdown = make(chan struct{})
	b.startTime = b.now()

	b.logger.Info("Starting TAK bridge",
		"host", b.cfg.Host,
		"port", b.cfg.Port,
		"tls", b.cfg.TLS,
		"callsign", b.cfg.Callsign)

	b.wg.Add(2)
	go b.recvLoop(ctx)
	go b.sendLoop(ctx)
	return nil
}

// Stop terminates both loops and closes the live socket. It waits up to
// timeout for the goroutines to drain.
func (b *Bridge) Stop(timeout time.Duration) error {
	b.runMu.Lock()
	if !b.running {
		b.runMu.Unlock()
		return nil
	}
	b.running = false
	close(b.shutdown)
	b.runMu.Unlock()

	// Closing the socket unblocks a receive loop parked in Read.
	b.dropConn(nil)

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		b.logger.Info("TAK bridge stopped")
		return nil
	case <-time.After(timeout):
		return errors.WrapTransient(errors.ErrConnectionTimeout, "Bridge", "Stop", "waiting for loops")
	}
}

// Meta implements component.Discoverable.
func (b *Bridge) Meta() component.Metadata {
	return component.Metadata{
		Name:        fmt.Sprintf("bridge-%s-%d", b.cfg.Host, b.cfg.Port),
		Type:        "bridge",
		Description: "Bidirectional CoT bridge to a TAK server",
		Version:     "1.0.0",
	}
}

// Health implements component.Discoverable. The bridge is healthy only
// while a session is established; a running bridge between reconnect
// attempts reports unhealthy with the last connection error.
func (b *Bridge) Health() component.HealthStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	return component.HealthStatus{
		Healthy:    b.connected,
		LastCheck:  b.now(),
		ErrorCount: int(b.reconnectCount),
		LastError:  b.lastError,
		Uptime:     b.now().Sub(b.startTime),
	}
}

// HealthDetail reports three-state health: healthy while connected,
// degraded while running between reconnect attempts, unhealthy when
// stopped.
func (b *Bridge) HealthDetail() health.Status {
	name := b.Meta().Name
	running := b.isRunning()

	b.mu.Lock()
	connected := b.connected
	lastError := b.lastError
	b.mu.Unlock()

	switch {
	case running && connected:
		return health.NewHealthy(name, "session established")
	case running:
		msg := "reconnecting"
		if lastError != "" {
			msg = "reconnecting: " + lastError
		}
		return health.NewDegraded(name, msg)
	default:
		return health.NewUnhealthy(name, "bridge stopped")
	}
}

// Status reports the current session state for the management API.
func (b *Bridge) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	st := Status{
		Connected:      b.connected,
		Host:           b.cfg.Host,
		Port:           b.cfg.Port,
		TLS:            b.cfg.TLS,
		Callsign:       b.cfg.Callsign,
		LastError:      b.lastError,
		ReconnectCount: b.reconnectCount,
		EventsReceived: b.eventsReceived,
		EventsSent:     b.eventsSent,
	}
	if !b.lastConnectedAt.IsZero() {
		st.LastConnectedAt = b.lastConnectedAt.UTC().Format(time.RFC3339)
	}
	return st
}

func (b *Bridge) isRunning() bool {
	b.runMu.Lock()
	defer b.runMu.Unlock()
	return b.running
}

// sleepInterruptible waits for d unless shutdown fires first. Returns
// false when the bridge is shutting down.
func (b *Bridge) sleepInterruptible(d time.Duration) bool {
	select {
	case <-b.shutdown:
		return false
	case <-time.After(d):
		return true
	}
}

// adoptConn installs a freshly dialed socket as the live session.
func (b *Bridge) adoptConn(conn net.Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.conn = conn
	b.connected = true
	b.lastConnectedAt = b.now()
	b.lastError = ""
	if b.metrics != nil {
		b.metrics.connected.Set(1)
		b.metrics.lastConnectTs.Set(float64(b.lastConnectedAt.Unix()))
	}
}

// dropConn tears down the live session, recording cause as the last
// error and counting a reconnect when non-nil.
func (b *Bridge) dropConn(cause error) {
	b.mu.Lock()
	conn := b.conn
	b.conn = nil
	b.connected = false
	if cause != nil {
		b.lastError = cause.Error()
		b.reconnectCount++
		if b.metrics != nil {
			b.metrics.reconnects.Inc()
			b.metrics.recordError("stream")
		}
	}
	if b.metrics != nil {
		b.metrics.connected.Set(0)
	}
	b.mu.Unlock()

	if conn != nil {
		closeConn(conn)
	}
}

// currentConn returns the live socket, if any.
func (b *Bridge) currentConn() (net.Conn, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conn, b.connected
}

func (b *Bridge) countReceived(n int) {
	b.mu.Lock()
	b.eventsReceived += int64(n)
	b.mu.Unlock()
	if b.metrics != nil {
		b.metrics.recordReceived(n)
	}
}

func (b *Bridge) countSent(n int) {
	b.mu.Lock()
	b.eventsSent += int64(n)
	b.mu.Unlock()
	if b.metrics != nil {
		b.metrics.recordSent(n)
	}
}
