package transport

import (
	"context"
	"crypto/tls"
	"net"

	"github.com/wattnet/shockwave/pkg/shockwave/socket"
)

// tlsTransport is the TLS-terminated Transport implementation. The
// handshake is never performed implicitly by Dial/Accept: callers that
// drive the connection through a reactor.Loop call Handshake from a
// readiness callback instead of blocking the dial/accept path on it.
type tlsTransport struct {
	*tls.Conn
}

func (t *tlsTransport) Handshake(ctx context.Context) error {
	return t.Conn.HandshakeContext(ctx)
}

func (t *tlsTransport) Secure() bool { return true }

func (t *tlsTransport) NegotiatedProtocol() string {
	return t.Conn.ConnectionState().NegotiatedProtocol
}

// ServerName returns the SNI hostname the peer sent (client mode: what
// we requested; server mode: what the client's ClientHello carried,
// captured after a successful handshake). Empty before the handshake
// completes.
func (t *tlsTransport) ServerName() string {
	return t.Conn.ConnectionState().ServerName
}

// DialTLS dials addr and wraps the resulting TCP connection in TLS
// using tlsConfig for SNI/ALPN/client-cert configuration. If
// tlsConfig.ServerName is unset, it defaults to addr's host so SNI is
// always sent. The handshake itself is deferred to the returned
// Transport's Handshake method.
func (d *Dialer) DialTLS(ctx context.Context, addr string, tlsConfig *tls.Config) (Transport, error) {
	nd := net.Dialer{Timeout: d.DialTimeout, KeepAlive: d.KeepAlive}
	conn, err := nd.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	if d.SocketTuning != nil {
		_ = socket.Apply(conn, d.SocketTuning)
	}

	cfg := tlsConfig
	if cfg == nil {
		cfg = &tls.Config{}
	}
	if cfg.ServerName == "" {
		if host, _, splitErr := net.SplitHostPort(addr); splitErr == nil {
			cfg = cfg.Clone()
			cfg.ServerName = host
		}
	}

	return &tlsTransport{Conn: tls.Client(conn, cfg)}, nil
}

// TLSListener adapts a net.Listener into one that hands out
// TLS-terminated Transports, deferring the handshake to the caller the
// same way DialTLS does on the client side.
type TLSListener struct {
	net.Listener
	Config *tls.Config
}

// WrapTLSListener wraps ln so AcceptTransport terminates TLS with
// config (which should route certificates by SNI via
// shocktls.CertificateManager.GetCertificate for multi-domain serving).
func WrapTLSListener(ln net.Listener, config *tls.Config) *TLSListener {
	return &TLSListener{Listener: ln, Config: config}
}

// AcceptTransport accepts the next connection and wraps it in TLS
// server mode. The handshake has not run yet; call Handshake on the
// returned Transport before reading or writing application data.
func (l *TLSListener) AcceptTransport() (Transport, error) {
	conn, err := l.Listener.Accept()
	if err != nil {
		return nil, err
	}
	return &tlsTransport{Conn: tls.Server(conn, l.Config)}, nil
}
