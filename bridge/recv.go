package bridge

import (
	"context"
	stderrors "errors"
	"io"
	"net"
	"time"

	"github.com/c360/takbridge/cot"
	"github.com/c360/takbridge/errors"
	"github.com/c360/takbridge/pkg/retry"
)

// recvLoop owns the connection lifecycle: dial, announce, stream, tear
// down, back off, repeat. The backoff doubles from 1s to a 60s ceiling
// and resets after every successful connect.
func (b *Bridge) recvLoop(ctx context.Context) {
	defer b.wg.Done()

	backoff := retry.NewBackoff(time.Second, 60*time.Second)

	for b.isRunning() {
		conn, err := b.dial(ctx)
		if err != nil {
			b.noteConnectFailure(err)
			if !b.sleep(backoff.Next()) {
				return
			}
			continue
		}

		b.adoptConn(conn)
		backoff.Reset()
		b.logger.Info("Connected to TAK server", "host", b.cfg.Host, "port", b.cfg.Port)

		// Announce ourselves right away rather than waiting out the
		// first heartbeat interval.
		b.sendSelfSA(conn)

		err = b.streamRecv(ctx, conn)
		b.dropConn(err)
		if err != nil {
			b.logger.Warn("TAK session ended", "error", err)
		}

		if !b.isRunning() {
			return
		}
		if !b.sleep(backoff.Next()) {
			return
		}
	}
}

// noteConnectFailure records a failed dial in the session state.
func (b *Bridge) noteConnectFailure(err error) {
	b.mu.Lock()
	b.lastError = err.Error()
	b.reconnectCount++
	b.mu.Unlock()
	if b.metrics != nil {
		b.metrics.reconnects.Inc()
		b.metrics.recordError("connect")
	}
	b.logger.Warn("TAK connection failed", "host", b.cfg.Host, "port", b.cfg.Port, "error", err)
}

// streamRecv reads the socket until it fails, the peer closes, or the
// bridge stops. Returns nil on a stop-triggered exit so the caller does
// not count it as a connection failure.
func (b *Bridge) streamRecv(ctx context.Context, conn net.Conn) error {
	framer := cot.NewFramer(cot.DefaultMaxBuffer)
	buf := make([]byte, recvChunkSize)

	for b.isRunning() {
		n, err := conn.Read(buf)
		if n > 0 {
			if b.metrics != nil {
				b.metrics.bytesReceived.Add(float64(n))
			}
			b.handleChunk(ctx, framer, buf[:n])
		}
		if err != nil {
			if !b.isRunning() {
				return nil
			}
			if stderrors.Is(err, io.EOF) {
				return errors.WrapTransient(errors.ErrPeerClosed, "Bridge", "streamRecv", "reading stream")
			}
			var ne net.Error
			if stderrors.As(err, &ne) && ne.Timeout() {
				continue
			}
			return errors.WrapTransient(err, "Bridge", "streamRecv", "reading stream")
		}
	}
	return nil
}

// handleChunk feeds raw bytes through the framer and processes every
// complete event it yields.
func (b *Bridge) handleChunk(ctx context.Context, framer *cot.Framer, chunk []byte) {
	events, discarded := framer.Push(chunk)
	if discarded {
		b.logger.Warn("Receive buffer overflow, discarding unparsed data",
			"max_bytes", cot.DefaultMaxBuffer)
		if b.metrics != nil {
			b.metrics.bufferDiscards.Inc()
		}
	}
	for _, raw := range events {
		b.handleEvent(ctx, raw)
	}
}

// handleEvent parses, classifies, and stores one inbound CoT document.
// Bad documents and filtered events are skipped without disturbing the
// stream.
func (b *Bridge) handleEvent(ctx context.Context, raw []byte) {
	ev, err := cot.Parse(raw)
	if err != nil {
		b.logger.Debug("Skipping malformed CoT document", "error", err)
		if b.metrics != nil {
			b.metrics.parseErrors.Inc()
			b.metrics.recordError("parse")
		}
		return
	}
	b.countReceived(1)

	res := cot.Classify(ev, b.cfg.Callsign)
	if res.Skipped {
		b.logger.Debug("Skipping CoT event", "uid", ev.EventUID(), "reason", res.Reason)
		if b.metrics != nil {
			b.metrics.eventsSkipped.Inc()
		}
		return
	}

	if err := b.store.Upsert(ctx, res.Track); err != nil {
		b.logger.Error("Failed to store inbound track", "uid", res.Track.UID, "error", err)
		return
	}
	b.logger.Debug("Stored track from TAK",
		"uid", res.Track.UID,
		"side", res.Track.Side,
		"type", res.Track.CoTType())
}
