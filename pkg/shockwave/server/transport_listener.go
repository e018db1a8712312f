//go:build !goexperiment.arenas && !greenteagc

package server

import (
	"net"

	"github.com/wattnet/shockwave/pkg/shockwave/transport"
)

// tlsTransportListener adapts a transport.TLSListener to net.Listener so
// ServeTLSConfig can hand it to the same Serve loop plain TCP uses. The
// TLS handshake stays deferred (transport.tlsTransport only completes it
// on first Read/Write), matching tls.Listener's own lazy-handshake
// behavior.
type tlsTransportListener struct {
	*transport.TLSListener
}

func (l *tlsTransportListener) Accept() (net.Conn, error) {
	return l.TLSListener.AcceptTransport()
}
