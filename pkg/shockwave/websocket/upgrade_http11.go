package websocket

import (
	"net"
	"net/http"
	"strings"

	"github.com/wattnet/shockwave/pkg/shockwave/http11"
)

// UpgradeHTTP11 performs the RFC 6455 opening handshake directly against
// an http11.Request and the raw net.Conn it arrived on, without going
// through net/http.Hijacker. The server's connection loop owns netConn;
// once UpgradeHTTP11 returns a *Conn successfully, the caller must stop
// treating netConn as an HTTP/1.1 connection and hand it off to the
// returned *Conn (or close it on error).
func (u *Upgrader) UpgradeHTTP11(netConn net.Conn, r *http11.Request) (*Conn, error) {
	if !r.IsGET() {
		return nil, ErrNotWebSocket
	}

	if !headerContainsHTTP11(r, "Connection", "upgrade") {
		return nil, ErrNotWebSocket
	}
	if !headerContainsHTTP11(r, "Upgrade", "websocket") {
		return nil, ErrNotWebSocket
	}
	if r.GetHeaderString("Sec-WebSocket-Version") != "13" {
		return nil, ErrBadWebSocketVersion
	}

	wsKey := r.GetHeaderString("Sec-WebSocket-Key")
	if wsKey == "" {
		return nil, ErrBadWebSocketKey
	}

	if u.CheckOrigin != nil && !u.CheckOrigin(originCheckRequest(r)) {
		return nil, ErrUpgradeFailed
	}

	var subprotocol string
	if len(u.Subprotocols) > 0 {
		clientProtos := headerValuesHTTP11(r, "Sec-WebSocket-Protocol")
		subprotocol = selectSubprotocol(clientProtos, u.Subprotocols)
	}

	if err := WriteUpgradeResponse(netConn, wsKey, subprotocol); err != nil {
		return nil, err
	}

	readBufSize := u.ReadBufferSize
	if readBufSize == 0 {
		readBufSize = 4096
	}
	writeBufSize := u.WriteBufferSize
	if writeBufSize == 0 {
		writeBufSize = 4096
	}

	return newConn(netConn, true, readBufSize, writeBufSize, subprotocol), nil
}

// headerContainsHTTP11 mirrors headerContains for http11.Request headers.
func headerContainsHTTP11(r *http11.Request, name, value string) bool {
	v := r.GetHeaderString(name)
	if v == "" {
		return false
	}
	for _, token := range strings.Split(v, ",") {
		if strings.EqualFold(strings.TrimSpace(token), value) {
			return true
		}
	}
	return false
}

// headerValuesHTTP11 mirrors headerValues for http11.Request headers.
// http11.Header folds repeated header lines into a single comma-joined
// value, so a single Get covers both the repeated-header and
// comma-separated-value forms of Sec-WebSocket-Protocol.
func headerValuesHTTP11(r *http11.Request, name string) []string {
	v := r.GetHeaderString(name)
	if v == "" {
		return nil
	}
	values := make([]string, 0, 4)
	for _, token := range strings.Split(v, ",") {
		values = append(values, strings.TrimSpace(token))
	}
	return values
}

// originCheckRequest builds the minimal *http.Request CheckOrigin needs
// (Origin header and Host), so Upgrader.CheckOrigin can stay
// net/http-shaped and shared between the Hijacker-based Upgrade and
// UpgradeHTTP11 without every caller needing to hand-roll one.
func originCheckRequest(r *http11.Request) *http.Request {
	return &http.Request{
		Host:   r.GetHeaderString("Host"),
		Header: http.Header{"Origin": {r.GetHeaderString("Origin")}},
	}
}
