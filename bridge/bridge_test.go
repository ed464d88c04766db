package bridge

import (
	"context"
	stderrors "errors"
	"log/slog"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/takbridge/config"
	"github.com/c360/takbridge/cot"
	"github.com/c360/takbridge/track"
)

func testConfig() config.TAKConfig {
	return config.TAKConfig{
		Host:           "tak.example.local",
		Port:           8087,
		Callsign:       "COP-LITE",
		PushIntervalMS: 30_000,
	}
}

func newTestBridge(t *testing.T, store track.Store) *Bridge {
	t.Helper()
	b, err := New(Deps{
		Config: testConfig(),
		Store:  store,
		Logger: slog.New(slog.NewTextHandler(testWriter{t}, &slog.HandlerOptions{Level: slog.LevelWarn})),
	})
	require.NoError(t, err)
	return b
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

// recorderConn is a net.Conn that captures writes and blocks reads
// until closed.
type recorderConn struct {
	mu     sync.Mutex
	writes [][]byte
	closed chan struct{}
	once   sync.Once
}

func newRecorderConn() *recorderConn {
	return &recorderConn{closed: make(chan struct{})}
}

func (c *recorderConn) Read(_ []byte) (int, error) {
	<-c.closed
	return 0, net.ErrClosed
}

func (c *recorderConn) Write(p []byte) (int, error) {
	select {
	case <-c.closed:
		return 0, net.ErrClosed
	default:
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	buf := make([]byte, len(p))
	copy(buf, p)
	c.writes = append(c.writes, buf)
	return len(p), nil
}

func (c *recorderConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *recorderConn) Writes() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.writes))
	copy(out, c.writes)
	return out
}

func (c *recorderConn) LocalAddr() net.Addr              { return &net.TCPAddr{} }
func (c *recorderConn) RemoteAddr() net.Addr             { return &net.TCPAddr{} }
func (c *recorderConn) SetDeadline(time.Time) error      { return nil }
func (c *recorderConn) SetReadDeadline(time.Time) error  { return nil }
func (c *recorderConn) SetWriteDeadline(time.Time) error { return nil }

// fakeClock is a manually advanced clock for the send loop tests.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

func TestNewRequiresHost(t *testing.T) {
	cfg := testConfig()
	cfg.Host = ""
	_, err := New(Deps{Config: cfg, Store: track.NewMemoryStore()})
	require.Error(t, err)
}

func TestNewRequiresStore(t *testing.T) {
	_, err := New(Deps{Config: testConfig()})
	require.Error(t, err)
}

func TestReconnectBackoffDoubles(t *testing.T) {
	b := newTestBridge(t, track.NewMemoryStore())

	b.dial = func(context.Context) (net.Conn, error) {
		return nil, net.ErrClosed
	}

	var mu sync.Mutex
	var sleeps []time.Duration
	done := make(chan struct{})
	b.sleep = func(d time.Duration) bool {
		mu.Lock()
		sleeps = append(sleeps, d)
		n := len(sleeps)
		mu.Unlock()
		if n >= 3 {
			close(done)
			return false
		}
		return true
	}
	b.tickInterval = time.Millisecond

	require.NoError(t, b.Start(context.Background()))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("receive loop never reached the third backoff")
	}
	require.NoError(t, b.Stop(time.Second))

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}, sleeps)

	st := b.Status()
	assert.False(t, st.Connected)
	assert.Equal(t, int64(3), st.ReconnectCount)
	assert.NotEmpty(t, st.LastError)
}

func TestBackoffResetsAfterConnect(t *testing.T) {
	b := newTestBridge(t, track.NewMemoryStore())

	attempt := 0
	b.dial = func(context.Context) (net.Conn, error) {
		attempt++
		if attempt == 2 {
			client, server := net.Pipe()
			go func() {
				// Drain the connect-time heartbeat, then hang up.
				buf := make([]byte, 4096)
				_, _ = server.Read(buf)
				_ = server.Close()
			}()
			return client, nil
		}
		return nil, net.ErrClosed
	}

	var mu sync.Mutex
	var sleeps []time.Duration
	done := make(chan struct{})
	b.sleep = func(d time.Duration) bool {
		mu.Lock()
		sleeps = append(sleeps, d)
		n := len(sleeps)
		mu.Unlock()
		if n >= 2 {
			close(done)
			return false
		}
		return true
	}
	b.tickInterval = time.Millisecond

	require.NoError(t, b.Start(context.Background()))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("receive loop never reached the second backoff")
	}
	require.NoError(t, b.Stop(time.Second))

	// Connect failure backs off 1s; the successful session in between
	// resets the schedule, so the hangup also backs off 1s.
	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []time.Duration{1 * time.Second, 1 * time.Second}, sleeps)

	st := b.Status()
	assert.Contains(t, st.LastError, "peer closed")
	assert.Equal(t, int64(2), st.ReconnectCount)
	assert.NotEmpty(t, st.LastConnectedAt)
}

func TestStreamReceiveStoresTracks(t *testing.T) {
	store := track.NewMemoryStore()
	b := newTestBridge(t, store)

	client, server := net.Pipe()
	dialed := make(chan struct{})
	b.dial = func(ctx context.Context) (net.Conn, error) {
		select {
		case <-dialed:
			<-ctx.Done()
			return nil, ctx.Err()
		default:
		}
		close(dialed)
		return client, nil
	}
	b.tickInterval = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, b.Start(ctx))

	doc := `<event version="2.0" uid="fr-77" type="a-f-G-U-C" how="m-g"` +
		` time="2026-08-29T10:00:00Z" start="2026-08-29T10:00:00Z" stale="2026-08-29T10:05:00Z">` +
		`<point lat="34.05" lon="-118.25" hae="0" ce="10" le="10"/>` +
		`<detail><contact callsign="ALPHA-6"/></detail></event>`

	go func() {
		buf := make([]byte, 4096)
		_, _ = server.Read(buf) // connect-time heartbeat
		// Split the document mid-tag to exercise reassembly.
		_, _ = server.Write([]byte(doc[:40]))
		_, _ = server.Write([]byte(doc[40:]))
	}()

	require.Eventually(t, func() bool { return store.Len() == 1 }, 2*time.Second, 5*time.Millisecond)

	got, err := store.Get(context.Background(), "fr-77")
	require.NoError(t, err)
	assert.Equal(t, track.SideFriendly, got.Side)
	assert.Equal(t, "ALPHA-6", got.Callsign())
	assert.Equal(t, track.SourceTAKServer, got.Meta[track.MetaSource])
	assert.InDelta(t, 34.05, got.Lat, 1e-9)

	assert.Equal(t, int64(1), b.Status().EventsReceived)

	require.NoError(t, b.Stop(time.Second))
	_ = server.Close()
}

func TestStopUnblocksParkedRead(t *testing.T) {
	b := newTestBridge(t, track.NewMemoryStore())

	client, server := net.Pipe()
	defer server.Close()
	dialed := make(chan struct{})
	b.dial = func(ctx context.Context) (net.Conn, error) {
		select {
		case <-dialed:
			<-ctx.Done()
			return nil, ctx.Err()
		default:
		}
		close(dialed)
		return client, nil
	}
	b.tickInterval = time.Millisecond

	go func() {
		buf := make([]byte, 4096)
		for {
			if _, err := server.Read(buf); err != nil {
				return
			}
		}
	}()

	require.NoError(t, b.Start(context.Background()))
	require.Eventually(t, func() bool { return b.Status().Connected }, 2*time.Second, time.Millisecond)

	require.NoError(t, b.Stop(time.Second))

	st := b.Status()
	assert.False(t, st.Connected)
	// A stop-triggered teardown is not a connection failure.
	assert.Equal(t, int64(0), st.ReconnectCount)
}

// startSendLoop runs only the send loop against a pre-adopted connection,
// driven by a manual tick channel and clock.
func startSendLoop(b *Bridge, tick <-chan time.Time) func() {
	b.tick = tick
	b.running = true
	b.shutdown = make(chan struct{})
	b.wg.Add(1)
	go b.sendLoop(context.Background())
	return func() {
		close(b.shutdown)
		b.running = false
		b.wg.Wait()
	}
}

func heartbeatTimes(t *testing.T, writes [][]byte) []string {
	t.Helper()
	var times []string
	for _, raw := range writes {
		ev, err := cot.Parse(raw)
		require.NoError(t, err)
		if ev.Type == "a-f-G-U-C" && strings.HasPrefix(ev.UID, "COP-LITE") {
			times = append(times, ev.Time)
		}
	}
	return times
}

func TestHeartbeatCadence(t *testing.T) {
	b := newTestBridge(t, track.NewMemoryStore())
	clock := &fakeClock{t: time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)}
	b.now = clock.Now
	b.pushInterval = time.Hour // keep pushes out of this test

	conn := newRecorderConn()
	b.adoptConn(conn)

	tick := make(chan time.Time)
	stop := startSendLoop(b, tick)

	base := clock.Now()
	for i := 0; i < 60; i++ {
		clock.Set(base.Add(time.Duration(i) * time.Second))
		tick <- time.Time{}
	}
	// One more tick so the 60th is fully processed before we read.
	tick <- time.Time{}
	stop()

	times := heartbeatTimes(t, conn.Writes())
	require.Equal(t, []string{
		base.Format(cot.TimeFormat),
		base.Add(15 * time.Second).Format(cot.TimeFormat),
		base.Add(30 * time.Second).Format(cot.TimeFormat),
		base.Add(45 * time.Second).Format(cot.TimeFormat),
	}, times)
}

func TestNoWritesWhileDisconnected(t *testing.T) {
	b := newTestBridge(t, track.NewMemoryStore())
	clock := &fakeClock{t: time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)}
	b.now = clock.Now

	conn := newRecorderConn()
	b.adoptConn(conn)
	b.dropConn(nil) // session gone before the loop ever ticks

	tick := make(chan time.Time)
	stop := startSendLoop(b, tick)

	base := clock.Now()
	for i := 0; i < 40; i++ {
		clock.Set(base.Add(time.Duration(i) * time.Second))
		tick <- time.Time{}
	}
	tick <- time.Time{}
	stop()

	assert.Empty(t, conn.Writes())
}

func TestPushSkipsServerOriginatedTracks(t *testing.T) {
	store := track.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Upsert(ctx, track.Track{
		UID:  "local-1",
		Side: track.SideFriendly,
		Lat:  10, Lon: 20,
	}))
	require.NoError(t, store.Upsert(ctx, track.Track{
		UID:  "remote-1",
		Side: track.SideEnemy,
		Lat:  30, Lon: 40,
		Meta: map[string]string{track.MetaSource: track.SourceTAKServer},
	}))

	b := newTestBridge(t, store)
	conn := newRecorderConn()

	require.True(t, b.pushTracks(ctx, conn, time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)))

	writes := conn.Writes()
	require.Len(t, writes, 1)
	ev, err := cot.Parse(writes[0])
	require.NoError(t, err)
	assert.Equal(t, "local-1", ev.EventUID())

	assert.Equal(t, int64(1), b.Status().EventsSent)
}

func TestPushWithEmptyStoreCompletes(t *testing.T) {
	b := newTestBridge(t, track.NewMemoryStore())
	conn := newRecorderConn()
	assert.True(t, b.pushTracks(context.Background(), conn, time.Now()))
	assert.Empty(t, conn.Writes())
}

func TestSendFailureDoesNotDropSession(t *testing.T) {
	store := track.NewMemoryStore()
	require.NoError(t, store.Upsert(context.Background(), track.Track{UID: "x", Side: track.SideNeutral}))

	b := newTestBridge(t, store)
	conn := newRecorderConn()
	b.adoptConn(conn)
	_ = conn.Close() // every write now fails

	assert.False(t, b.sendSelfSA(conn))
	assert.False(t, b.pushTracks(context.Background(), conn, time.Now()))
	// The session flag is still up; only the receive loop tears down.
	assert.True(t, b.Status().Connected)
}

func TestStartTwice(t *testing.T) {
	b := newTestBridge(t, track.NewMemoryStore())
	b.dial = func(ctx context.Context) (net.Conn, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	b.tickInterval = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, b.Start(ctx))
	require.Error(t, b.Start(ctx))
	cancel()
	require.NoError(t, b.Stop(time.Second))
}

func TestMetaAndHealth(t *testing.T) {
	b := newTestBridge(t, track.NewMemoryStore())
	meta := b.Meta()
	assert.Equal(t, "bridge", meta.Type)
	assert.Contains(t, meta.Name, "tak.example.local")

	h := b.Health()
	assert.False(t, h.Healthy)

	b.adoptConn(newRecorderConn())
	assert.True(t, b.Health().Healthy)
	b.dropConn(nil)
}

func TestHealthDetailStates(t *testing.T) {
	b := newTestBridge(t, track.NewMemoryStore())

	assert.True(t, b.HealthDetail().IsUnhealthy())

	b.running = true
	assert.True(t, b.HealthDetail().IsDegraded())

	b.adoptConn(newRecorderConn())
	assert.True(t, b.HealthDetail().IsHealthy())

	b.dropConn(stderrors.New("connection reset"))
	detail := b.HealthDetail()
	assert.True(t, detail.IsDegraded())
	assert.Contains(t, detail.Message, "connection reset")

	b.running = false
	assert.True(t, b.HealthDetail().IsUnhealthy())
}
