package bridge

import (
	"context"
	"net"
	"time"

	"github.com/c360/takbridge/cot"
	"github.com/c360/takbridge/track"
)

// pushStaleMargin is added to the push interval when stamping outbound
// track stale times, so tracks survive one missed push cycle.
const pushStaleMargin = 15 * time.Second

// sendLoop wakes once a second and, while a session is live, emits the
// self-SA heartbeat every saInterval and the track push every
// pushInterval. All writes are best-effort: a failed write is logged
// and retried on a later tick, and the receive loop owns reconnection.
func (b *Bridge) sendLoop(ctx context.Context) {
	defer b.wg.Done()

	ticks := b.tick
	if ticks == nil {
		ticker := time.NewTicker(b.tickInterval)
		defer ticker.Stop()
		ticks = ticker.C
	}

	var lastSA, lastPush time.Time

	for {
		select {
		case <-b.shutdown:
			return
		case <-ticks:
		}

		conn, ok := b.currentConn()
		if !ok {
			continue
		}

		now := b.now()
		if lastSA.IsZero() || now.Sub(lastSA) >= b.saInterval {
			if b.sendSelfSA(conn) {
				lastSA = now
			}
		}
		if lastPush.IsZero() || now.Sub(lastPush) >= b.pushInterval {
			if b.pushTracks(ctx, conn, now) {
				lastPush = now
			}
		}
	}
}

// sendSelfSA writes one presence heartbeat. Returns false on failure so
// the caller retries on the next tick.
func (b *Bridge) sendSelfSA(conn net.Conn) bool {
	if err := b.writeEvent(conn, cot.NewSelfSA(b.cfg.Callsign, b.now())); err != nil {
		b.logger.Debug("Heartbeat send failed", "error", err)
		return false
	}
	return true
}

// pushTracks sends every locally originated track as a CoT event,
// skipping tracks that arrived from the TAK server so nothing echoes
// back onto the feed. Returns false only when no write made it out.
func (b *Bridge) pushTracks(ctx context.Context, conn net.Conn, now time.Time) bool {
	tracks, err := b.store.List(ctx)
	if err != nil {
		b.logger.Warn("Track push skipped, store unavailable", "error", err)
		return false
	}

	sent := 0
	for _, t := range tracks {
		if t.FromTAKServer() {
			continue
		}
		if err := b.writeEvent(conn, cot.NewTrackEvent(t, now, b.pushInterval+pushStaleMargin)); err != nil {
			b.logger.Debug("Track push aborted", "uid", t.UID, "sent", sent, "error", err)
			break
		}
		sent++
	}
	if sent > 0 {
		b.countSent(sent)
		b.logger.Debug("Pushed tracks to TAK", "count", sent)
	}
	return sent > 0 || onlyServerTracks(tracks)
}

// onlyServerTracks reports whether nothing in the store is eligible for
// pushing, in which case an empty push cycle still counts as complete.
func onlyServerTracks(tracks []track.Track) bool {
	for _, t := range tracks {
		if !t.FromTAKServer() {
			return false
		}
	}
	return true
}

// writeEvent serializes one event onto the socket.
func (b *Bridge) writeEvent(conn net.Conn, ev *cot.Event) error {
	raw, err := cot.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = conn.Write(raw)
	return err
}
