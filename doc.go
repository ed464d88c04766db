// Package takbridge provides a bidirectional Cursor-on-Target (CoT) bridge
// between a local common operating picture and a TAK server.
//
// # Architecture
//
// The bridge holds one persistent TCP or TLS session to the TAK server and
// runs two loops over it:
//
//	┌─────────────────────────────────────┐
//	│          Receive Loop               │  dial, reconnect with
//	│  (framer → classifier → store)      │  backoff, stream events
//	└─────────────────────────────────────┘
//	           ↓ writes
//	┌─────────────────────────────────────┐
//	│          Track Store                │  memory, sqlite, or
//	│   (uid → side/layer/position)       │  JetStream KV backend
//	└─────────────────────────────────────┘
//	           ↑ reads                     ↓ notifies
//	┌─────────────────────────────────────┐
//	│           Send Loop                 │  15s self-SA heartbeat,
//	│  (heartbeat + periodic track push)  │  push-interval track push
//	└─────────────────────────────────────┘
//
// Inbound events are framed on the literal </event> terminator, parsed,
// classified by affiliation (a-f friendly, a-h enemy, a-n neutral), and
// upserted into the track store tagged with their origin. Outbound pushes
// skip tracks that arrived from the server, so nothing echoes back onto
// the feed.
//
// Around the core sit the management surfaces:
//
//   - api: REST track ingest and query, raw CoT ingest, health, Prometheus
//     metrics, and a websocket feed of live track updates
//   - natsclient: optional NATS fan-out of accepted tracks and the
//     JetStream KV store backend
//   - cmd/takbridge: the service binary
//
// # Packages
//
//   - bridge: TAK session, receive and send loops
//   - cot: CoT XML codec, stream framer, event classifier
//   - track: track model and store backends
//   - api: HTTP and websocket management surface
//   - config: file + environment configuration
//   - component, health, metric, errors, pkg/retry: shared infrastructure
package takbridge
