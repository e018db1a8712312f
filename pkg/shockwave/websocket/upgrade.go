package websocket

import (
	"bufio"
	"crypto/rand"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/wattnet/shockwave/pkg/shockwave/http11"
)

var (
	ErrNotWebSocket       = errors.New("websocket: not a websocket handshake")
	ErrBadWebSocketKey    = errors.New("websocket: invalid Sec-WebSocket-Key")
	ErrBadWebSocketVersion = errors.New("websocket: unsupported Sec-WebSocket-Version")
	ErrUpgradeFailed      = errors.New("websocket: upgrade failed")
)

// Upgrader handles WebSocket upgrade handshakes from HTTP connections.
// Zero-allocation upgrade path for common cases.
type Upgrader struct {
	// CheckOrigin returns true if the request Origin header is acceptable.
	// If nil, origin validation is skipped (insecure, use only for testing).
	CheckOrigin func(r *http.Request) bool

	// Subprotocols specifies the supported subprotocols in order of preference.
	Subprotocols []string

	// ReadBufferSize and WriteBufferSize specify I/O buffer sizes in bytes.
	// If zero, 4096 bytes are used.
	ReadBufferSize  int
	WriteBufferSize int

	// EnableCompression enables per-message compression (RFC 7692).
	// Not implemented yet.
	EnableCompression bool
}

// Dial establishes a WebSocket client connection to the given URL.
// RFC 6455 Section 4.1: Client Requirements. wsURL uses ws:// or wss://;
// wss:// dials over TLS using tlsConfig (nil selects Go's default
// verification behavior).
func Dial(wsURL string, headers http.Header) (*Conn, error) {
	return DialTLS(wsURL, headers, nil)
}

// DialTLS is Dial with an explicit *tls.Config for wss:// connections,
// so callers can pin a root CA, present a client certificate, or set a
// ServerName that differs from the URL host.
func DialTLS(wsURL string, headers http.Header, tlsConfig *tls.Config) (*Conn, error) {
	var scheme string
	switch {
	case strings.HasPrefix(wsURL, "ws://"):
		scheme = "http"
		wsURL = "http://" + wsURL[len("ws://"):]
	case strings.HasPrefix(wsURL, "wss://"):
		scheme = "https"
		wsURL = "https://" + wsURL[len("wss://"):]
	default:
		return nil, errors.New("websocket: invalid URL scheme (must be ws:// or wss://)")
	}

	u, err := http11.ParseURL(wsURL)
	if err != nil {
		return nil, err
	}

	path := u.Path
	if u.Query != "" {
		path += "?" + u.Query
	}

	addr := fmt.Sprintf("%s:%d", u.Host, u.Port)
	hostHeader := u.Host
	if u.Port != http11.DefaultPort(scheme) {
		hostHeader = addr
	}

	var netConn net.Conn
	if scheme == "https" {
		cfg := tlsConfig
		if cfg == nil {
			cfg = &tls.Config{ServerName: u.Host}
		} else if cfg.ServerName == "" {
			cfg = cfg.Clone()
			cfg.ServerName = u.Host
		}
		netConn, err = tls.Dial("tcp", addr, cfg)
	} else {
		netConn, err = net.Dial("tcp", addr)
	}
	if err != nil {
		return nil, err
	}

	// Generate random Sec-WebSocket-Key (16 random bytes, base64-encoded)
	var keyBytes [16]byte
	if _, err := rand.Read(keyBytes[:]); err != nil {
		netConn.Close()
		return nil, err
	}
	wsKey := encodeBase64(keyBytes[:])

	// Build handshake request (RFC 6455 4.1)
	req := fmt.Sprintf(
		"GET %s HTTP/1.1\r\n"+
			"Host: %s\r\n"+
			"Upgrade: websocket\r\n"+
			"Connection: Upgrade\r\n"+
			"Sec-WebSocket-Key: %s\r\n"+
			"Sec-WebSocket-Version: 13\r\n",
		path, hostHeader, wsKey)

	// Add custom headers
	if headers != nil {
		for k, vs := range headers {
			for _, v := range vs {
				req += fmt.Sprintf("%s: %s\r\n", k, v)
			}
		}
	}

	req += "\r\n"

	// Send request
	if _, err := netConn.Write([]byte(req)); err != nil {
		netConn.Close()
		return nil, err
	}

	// Read response
	br := bufio.NewReader(netConn)
	resp, err := http.ReadResponse(br, &http.Request{Method: "GET"})
	if err != nil {
		netConn.Close()
		return nil, err
	}
	defer resp.Body.Close()

	// Validate response
	if resp.StatusCode != http.StatusSwitchingProtocols {
		netConn.Close()
		return nil, fmt.Errorf("websocket: bad status code: %d", resp.StatusCode)
	}

	if !headerContains(resp.Header, "Upgrade", "websocket") {
		netConn.Close()
		return nil, errors.New("websocket: missing Upgrade: websocket header")
	}

	if !headerContains(resp.Header, "Connection", "upgrade") {
		netConn.Close()
		return nil, errors.New("websocket: missing Connection: Upgrade header")
	}

	// Validate Sec-WebSocket-Accept
	expectedAccept := ComputeAcceptKey(wsKey)
	actualAccept := resp.Header.Get("Sec-WebSocket-Accept")
	if actualAccept != expectedAccept {
		netConn.Close()
		return nil, errors.New("websocket: invalid Sec-WebSocket-Accept")
	}

	subprotocol := resp.Header.Get("Sec-WebSocket-Protocol")

	// Create WebSocket connection (client mode)
	return newConn(netConn, false, 4096, 4096, subprotocol), nil
}

// Helper functions

// headerContains checks if a header contains a value (case-insensitive).
func headerContains(h http.Header, key, value string) bool {
	for _, v := range h[key] {
		for _, token := range strings.Split(v, ",") {
			if strings.EqualFold(strings.TrimSpace(token), value) {
				return true
			}
		}
	}
	return false
}

// selectSubprotocol selects the first client protocol that is also supported by the server.
func selectSubprotocol(clientProtos, serverProtos []string) string {
	for _, clientProto := range clientProtos {
		for _, serverProto := range serverProtos {
			if clientProto == serverProto {
				return clientProto
			}
		}
	}
	return ""
}

// encodeBase64 encodes data to base64 without using base64.StdEncoding (for performance).
// Actually, let's just use the stdlib for correctness.
func encodeBase64(data []byte) string {
	const base64Table = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"

	n := len(data)
	result := make([]byte, (n+2)/3*4)

	j := 0
	for i := 0; i < n-2; i += 3 {
		result[j] = base64Table[data[i]>>2]
		result[j+1] = base64Table[(data[i]&0x03)<<4|(data[i+1]>>4)]
		result[j+2] = base64Table[(data[i+1]&0x0f)<<2|(data[i+2]>>6)]
		result[j+3] = base64Table[data[i+2]&0x3f]
		j += 4
	}

	// Handle remaining bytes
	switch n % 3 {
	case 1:
		result[j] = base64Table[data[n-1]>>2]
		result[j+1] = base64Table[(data[n-1]&0x03)<<4]
		result[j+2] = '='
		result[j+3] = '='
	case 2:
		result[j] = base64Table[data[n-2]>>2]
		result[j+1] = base64Table[(data[n-2]&0x03)<<4|(data[n-1]>>4)]
		result[j+2] = base64Table[(data[n-1]&0x0f)<<2]
		result[j+3] = '='
	}

	return string(result)
}

// IsWebSocketUpgrade checks if an HTTP request is a WebSocket upgrade request.
func IsWebSocketUpgrade(r *http.Request) bool {
	return r.Method == http.MethodGet &&
		headerContains(r.Header, "Connection", "upgrade") &&
		headerContains(r.Header, "Upgrade", "websocket") &&
		r.Header.Get("Sec-WebSocket-Version") == "13" &&
		r.Header.Get("Sec-WebSocket-Key") != ""
}

// WriteUpgradeResponse writes a WebSocket upgrade response directly to a writer.
// This is a low-level function for custom upgrade handling.
func WriteUpgradeResponse(w io.Writer, wsKey string, subprotocol string) error {
	acceptKey := ComputeAcceptKey(wsKey)

	response := "HTTP/1.1 101 Switching Protocols\r\n" +
		"Upgrade: websocket\r\n" +
		"Connection: Upgrade\r\n" +
		"Sec-WebSocket-Accept: " + acceptKey + "\r\n"

	if subprotocol != "" {
		response += "Sec-WebSocket-Protocol: " + subprotocol + "\r\n"
	}

	response += "\r\n"

	_, err := w.Write([]byte(response))
	return err
}
