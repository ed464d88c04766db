package bridge

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"os"

	"github.com/c360/takbridge/config"
	"github.com/c360/takbridge/errors"
)

// tlsConfig builds the client TLS configuration from the bridge config.
// Returns nil when TLS is disabled. Without a CA file the server
// certificate is not verified, matching self-signed TAK deployments.
func (b *Bridge) tlsConfig() (*tls.Config, error) {
	if !b.cfg.TLS {
		return nil, nil
	}

	tc := &tls.Config{
		ServerName:         b.cfg.Host,
		InsecureSkipVerify: b.cfg.CAFile == "",
	}

	if b.cfg.CAFile != "" {
		pem, err := os.ReadFile(b.cfg.CAFile)
		if err != nil {
			return nil, errors.WrapFatal(err, "Bridge", "tlsConfig", "reading CA file")
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, errors.WrapFatal(
				fmt.Errorf("no certificates in %s", b.cfg.CAFile),
				"Bridge", "tlsConfig", "loading CA pool")
		}
		tc.RootCAs = pool
	}

	if b.cfg.CertFile != "" && b.cfg.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(b.cfg.CertFile, b.cfg.KeyFile)
		if err != nil {
			return nil, errors.WrapFatal(err, "Bridge", "tlsConfig", "loading client certificate")
		}
		tc.Certificates = []tls.Certificate{cert}
	}

	return tc, nil
}

// dialTAK opens a TCP connection to the TAK server, wrapping it in TLS
// when configured. The default DialFunc for production bridges.
func (b *Bridge) dialTAK(ctx context.Context) (net.Conn, error) {
	addr := net.JoinHostPort(b.cfg.Host, fmt.Sprintf("%d", b.cfg.Port))
	dialer := net.Dialer{Timeout: config.DefaultConnectTimeout}

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, errors.WrapTransient(err, "Bridge", "dialTAK", "connecting to "+addr)
	}

	if !b.cfg.TLS {
		return conn, nil
	}

	tc, err := b.tlsConfig()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	tlsConn := tls.Client(conn, tc)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		_ = conn.Close()
		return nil, errors.WrapTransient(err, "Bridge", "dialTAK", "tls handshake with "+addr)
	}
	return tlsConn, nil
}

// closeConn shuts a socket down best-effort: signal the peer with a
// write-side close where the transport supports it, then release it.
func closeConn(conn net.Conn) {
	type closeWriter interface{ CloseWrite() error }
	if cw, ok := conn.(closeWriter); ok {
		_ = cw.CloseWrite()
	}
	_ = conn.Close()
}
