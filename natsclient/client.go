// Package natsclient manages the optional NATS connection used for event
// fan-out and the KV-backed track store.
package natsclient

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/takbridge/errors"
)

// Client wraps a NATS connection with JetStream access. A nil *Client is a
// valid "NATS disabled" client: Publish becomes a no-op and KeyValue fails.
type Client struct {
	url    string
	name   string
	logger *slog.Logger

	maxReconnects int
	reconnectWait time.Duration
	timeout       time.Duration

	conn *nats.Conn
	js   jetstream.JetStream

	reconnects atomic.Int64
	closed     atomic.Bool
}

// Option is a functional option for configuring the Client
type Option func(*Client)

// WithName sets the NATS client connection name
func WithName(name string) Option {
	return func(c *Client) { c.name = name }
}

// WithLogger sets the structured logger
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithMaxReconnects sets the maximum reconnection attempts (-1 for infinite)
func WithMaxReconnects(max int) Option {
	return func(c *Client) { c.maxReconnects = max }
}

// WithReconnectWait sets the wait time between reconnection attempts
func WithReconnectWait(d time.Duration) Option {
	return func(c *Client) { c.reconnectWait = d }
}

// WithTimeout sets the connect timeout
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// New creates a client for the given NATS URL. Connect must be called before
// use.
func New(url string, opts ...Option) *Client {
	c := &Client{
		url:           url,
		name:          "takbridge",
		logger:        slog.Default().With("component", "natsclient"),
		maxReconnects: -1,
		reconnectWait: 2 * time.Second,
		timeout:       5 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect establishes the NATS connection and JetStream context.
func (c *Client) Connect(_ context.Context) error {
	conn, err := nats.Connect(c.url,
		nats.Name(c.name),
		nats.Timeout(c.timeout),
		nats.MaxReconnects(c.maxReconnects),
		nats.ReconnectWait(c.reconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				c.logger.Warn("NATS disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			c.reconnects.Add(1)
			c.logger.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			c.logger.Info("NATS connection closed")
		}),
	)
	if err != nil {
		return errors.WrapTransient(err, "natsclient", "Connect", "nats dial")
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return errors.WrapFatal(err, "natsclient", "Connect", "jetstream context")
	}

	c.conn = conn
	c.js = js
	c.logger.Info("Connected to NATS", "url", c.url)
	return nil
}

// IsConnected reports whether the underlying connection is up.
func (c *Client) IsConnected() bool {
	return c != nil && c.conn != nil && c.conn.IsConnected()
}

// Reconnects returns the number of reconnections since Connect.
func (c *Client) Reconnects() int64 {
	if c == nil {
		return 0
	}
	return c.reconnects.Load()
}

// Publish sends data to a subject. A nil or disconnected client drops the
// message silently.
func (c *Client) Publish(subject string, data []byte) error {
	if c == nil || c.conn == nil {
		return nil
	}
	if err := c.conn.Publish(subject, data); err != nil {
		return errors.WrapTransient(err, "natsclient", "Publish", "publish "+subject)
	}
	return nil
}

// KeyValue returns the named KV bucket, creating it when absent.
func (c *Client) KeyValue(ctx context.Context, bucket string) (jetstream.KeyValue, error) {
	if c == nil || c.js == nil {
		return nil, errors.WrapInvalid(errors.ErrNoConnection, "natsclient", "KeyValue", "jetstream availability")
	}

	kv, err := c.js.KeyValue(ctx, bucket)
	if err == nil {
		return kv, nil
	}

	kv, err = c.js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:  bucket,
		History: 1,
	})
	if err != nil {
		return nil, errors.WrapTransient(err, "natsclient", "KeyValue", "bucket create "+bucket)
	}
	return kv, nil
}

// Close drains and closes the connection.
func (c *Client) Close() {
	if c == nil || c.conn == nil || !c.closed.CompareAndSwap(false, true) {
		return
	}
	if err := c.conn.Drain(); err != nil {
		c.logger.Warn("NATS drain failed, closing hard", "error", err)
		c.conn.Close()
	}
}
