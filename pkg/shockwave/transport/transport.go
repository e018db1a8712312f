// Package transport provides the byte-stream abstraction the client and
// server packages dial/accept through: plain TCP today, TLS-terminated
// TCP via the tls_transport.go sibling. Both satisfy the same Transport
// interface so pool.go and server_shockwave.go don't need to know which
// one they hold.
package transport

import (
	"context"
	"errors"
	"net"
	"syscall"
	"time"

	"github.com/wattnet/shockwave/pkg/shockwave/socket"
)

// ErrWouldBlock is returned by a non-blocking Read/Write when no data is
// currently available/acceptable. Callers driving a transport through the
// reactor package treat this as "wait for the next readiness callback",
// not as a failure.
var ErrWouldBlock = errors.New("transport: operation would block")

// errNoRawFD is returned by Fd when the underlying connection doesn't
// expose a raw descriptor (e.g. an in-memory net.Pipe used in tests).
var errNoRawFD = errors.New("transport: connection has no raw file descriptor")

// NonBlockingConn is implemented by Transports whose readiness can be
// driven externally by a reactor.Loop instead of Go's own runtime
// netpoller. Fd returns the descriptor to register; TryRead/TryWrite make
// one non-blocking attempt each and report ErrWouldBlock instead of
// parking the calling goroutine, so a reactor callback built on top never
// blocks.
//
// Only tcpTransport implements this. crypto/tls's Conn performs blocking
// record-level I/O internally and treats any read error mid-record as a
// fatal, permanent connection error, so there is no way to surface a
// would-block condition through it without corrupting the session —
// tlsTransport is therefore driven by the classic blocking
// goroutine-per-connection path, the same documented exception spec's
// scheduling model carves out for synchronous DNS resolution.
type NonBlockingConn interface {
	Transport
	Fd() (int, error)
	TryRead(b []byte) (int, error)
	TryWrite(b []byte) (int, error)
}

// fdOf extracts the raw descriptor backing conn for registration with a
// reactor.Loop. The Loop only observes readiness on it; conn keeps
// ownership and Close still goes through conn as usual.
func fdOf(conn syscall.Conn) (int, error) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return 0, err
	}
	var fd int
	ctrlErr := raw.Control(func(f uintptr) { fd = int(f) })
	if ctrlErr != nil {
		return 0, ctrlErr
	}
	return fd, nil
}

// tryRead attempts a single non-blocking read on conn. It reuses the same
// expired-read-deadline technique pool.go's probeHalfClosed already uses
// to detect a half-closed idle connection without a dedicated goroutine:
// an already-past deadline makes Read return immediately, either with
// data that was already queued or a timeout error, instead of parking
// until more arrives.
func tryRead(conn net.Conn, b []byte) (int, error) {
	if err := conn.SetReadDeadline(time.Now()); err != nil {
		return 0, err
	}
	n, err := conn.Read(b)
	conn.SetReadDeadline(time.Time{})
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return n, ErrWouldBlock
		}
		return n, err
	}
	return n, nil
}

func tryWrite(conn net.Conn, b []byte) (int, error) {
	if err := conn.SetWriteDeadline(time.Now()); err != nil {
		return 0, err
	}
	n, err := conn.Write(b)
	conn.SetWriteDeadline(time.Time{})
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return n, ErrWouldBlock
		}
		return n, err
	}
	return n, nil
}

// Transport is a byte-stream connection: a TCP socket, optionally wrapped
// in TLS. It embeds net.Conn so existing io.Reader/io.Writer-based code
// keeps working unchanged, and adds the handshake/identity accessors the
// client and server need for pooling and SNI routing.
type Transport interface {
	net.Conn

	// Handshake completes any protocol-level handshake (a no-op for plain
	// TCP, the TLS handshake for tls_transport.go) and must be called
	// before the connection is used if it hasn't completed already.
	Handshake(ctx context.Context) error

	// Secure reports whether the transport is TLS-terminated.
	Secure() bool

	// NegotiatedProtocol returns the ALPN protocol the peer agreed to, or
	// "" for plain TCP or when no ALPN negotiation occurred.
	NegotiatedProtocol() string
}

// Dialer creates client-side Transports.
type Dialer struct {
	// DialTimeout bounds the TCP connect step.
	DialTimeout time.Duration
	// KeepAlive configures TCP keepalive on the dialed socket; zero
	// disables it.
	KeepAlive time.Duration
	// SocketTuning, if set, is applied to the raw TCP connection right
	// after dialing, before any TLS wrapping.
	SocketTuning *socket.Config
}

// NewDialer returns a Dialer with the package's default timeouts.
func NewDialer() *Dialer {
	return &Dialer{DialTimeout: 10 * time.Second, KeepAlive: 30 * time.Second}
}

// DialTCP opens a plain-TCP Transport to addr ("host:port").
func (d *Dialer) DialTCP(ctx context.Context, addr string) (Transport, error) {
	nd := net.Dialer{Timeout: d.DialTimeout, KeepAlive: d.KeepAlive}
	conn, err := nd.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	if d.SocketTuning != nil {
		_ = socket.Apply(conn, d.SocketTuning)
	}
	return &tcpTransport{Conn: conn}, nil
}

// tcpTransport is the plain-TCP Transport implementation.
type tcpTransport struct {
	net.Conn
}

func (t *tcpTransport) Handshake(ctx context.Context) error { return nil }
func (t *tcpTransport) Secure() bool                        { return false }
func (t *tcpTransport) NegotiatedProtocol() string          { return "" }

// Fd returns the raw descriptor backing the TCP socket, for registration
// with a reactor.Loop. It returns errNoRawFD for connections that don't
// back onto a real OS descriptor (net.Pipe in tests, for instance).
func (t *tcpTransport) Fd() (int, error) {
	sc, ok := t.Conn.(syscall.Conn)
	if !ok {
		return 0, errNoRawFD
	}
	return fdOf(sc)
}

// TryRead makes one non-blocking read attempt, returning ErrWouldBlock
// instead of blocking when the reactor's readiness notification was
// spurious or another goroutine already drained the socket.
func (t *tcpTransport) TryRead(b []byte) (int, error) {
	return tryRead(t.Conn, b)
}

// TryWrite makes one non-blocking write attempt.
func (t *tcpTransport) TryWrite(b []byte) (int, error) {
	return tryWrite(t.Conn, b)
}

// Listener accepts Transports. A plain net.Listener satisfies most of the
// server's needs directly; WrapListener adapts one into something that
// hands out Transport values uniformly with the TLS listener.
type Listener struct {
	net.Listener
}

// WrapListener adapts a net.Listener into one whose Accept returns
// Transport values.
func WrapListener(ln net.Listener) *Listener {
	return &Listener{Listener: ln}
}

// AcceptTransport accepts the next connection as a Transport.
func (l *Listener) AcceptTransport() (Transport, error) {
	conn, err := l.Listener.Accept()
	if err != nil {
		return nil, err
	}
	return &tcpTransport{Conn: conn}, nil
}

// Wrap adapts an already-accepted net.Conn into a plain-TCP Transport,
// for callers (the server's reactor-driven accept path) that receive a
// bare net.Conn from a generic net.Listener and need the NonBlockingConn
// methods tcpTransport provides. Wrapping a connection that is already
// TLS-terminated is harmless but pointless: NonBlockingConn's Fd will
// fail on it since tls.Conn doesn't implement syscall.Conn, and callers
// are expected to check Secure() first.
func Wrap(conn net.Conn) Transport {
	return &tcpTransport{Conn: conn}
}
