package websocket

import (
	"bytes"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/wattnet/shockwave/pkg/shockwave/http11"
)

func parseUpgradeRequest(t *testing.T, raw string) *http11.Request {
	t.Helper()
	p := http11.NewParser()
	req, err := p.Parse(strings.NewReader(raw))
	if err != nil {
		t.Fatalf("parse request: %v", err)
	}
	return req
}

func TestUpgradeHTTP11Success(t *testing.T) {
	raw := "GET /chat HTTP/1.1\r\n" +
		"Host: example.com\r\n" +
		"Connection: Upgrade\r\n" +
		"Upgrade: websocket\r\n" +
		"Sec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\n" +
		"Sec-WebSocket-Version: 13\r\n\r\n"
	req := parseUpgradeRequest(t, raw)

	var out bytes.Buffer
	conn := &mockConn{reader: strings.NewReader(""), writer: &out}

	u := &Upgrader{}
	wsConn, err := u.UpgradeHTTP11(conn, req)
	if err != nil {
		t.Fatalf("UpgradeHTTP11: %v", err)
	}
	if wsConn == nil {
		t.Fatal("expected non-nil *Conn")
	}

	resp := out.String()
	if !strings.HasPrefix(resp, "HTTP/1.1 101 Switching Protocols\r\n") {
		t.Errorf("unexpected response line: %q", resp)
	}
	if !strings.Contains(resp, "Sec-WebSocket-Accept: s3pPLMBiTxaQ9kYGzzhZRbK+xOo=\r\n") {
		t.Errorf("missing expected accept key: %q", resp)
	}
}

func TestUpgradeHTTP11RejectsNonGET(t *testing.T) {
	raw := "POST /chat HTTP/1.1\r\n" +
		"Host: example.com\r\n" +
		"Connection: Upgrade\r\n" +
		"Upgrade: websocket\r\n" +
		"Sec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\n" +
		"Sec-WebSocket-Version: 13\r\n" +
		"Content-Length: 0\r\n\r\n"
	req := parseUpgradeRequest(t, raw)

	var out bytes.Buffer
	conn := &mockConn{reader: strings.NewReader(""), writer: &out}

	u := &Upgrader{}
	if _, err := u.UpgradeHTTP11(conn, req); err != ErrNotWebSocket {
		t.Fatalf("expected ErrNotWebSocket, got %v", err)
	}
}

func TestUpgradeHTTP11RejectsBadVersion(t *testing.T) {
	raw := "GET /chat HTTP/1.1\r\n" +
		"Host: example.com\r\n" +
		"Connection: Upgrade\r\n" +
		"Upgrade: websocket\r\n" +
		"Sec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\n" +
		"Sec-WebSocket-Version: 8\r\n\r\n"
	req := parseUpgradeRequest(t, raw)

	var out bytes.Buffer
	conn := &mockConn{reader: strings.NewReader(""), writer: &out}

	u := &Upgrader{}
	if _, err := u.UpgradeHTTP11(conn, req); err != ErrBadWebSocketVersion {
		t.Fatalf("expected ErrBadWebSocketVersion, got %v", err)
	}
}

func TestUpgradeHTTP11SelectsSubprotocol(t *testing.T) {
	raw := "GET /chat HTTP/1.1\r\n" +
		"Host: example.com\r\n" +
		"Connection: Upgrade\r\n" +
		"Upgrade: websocket\r\n" +
		"Sec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\n" +
		"Sec-WebSocket-Version: 13\r\n" +
		"Sec-WebSocket-Protocol: chat, superchat\r\n\r\n"
	req := parseUpgradeRequest(t, raw)

	var out bytes.Buffer
	conn := &mockConn{reader: strings.NewReader(""), writer: &out}

	u := &Upgrader{Subprotocols: []string{"superchat"}}
	wsConn, err := u.UpgradeHTTP11(conn, req)
	if err != nil {
		t.Fatalf("UpgradeHTTP11: %v", err)
	}
	if wsConn.Subprotocol() != "superchat" {
		t.Errorf("expected superchat, got %q", wsConn.Subprotocol())
	}
	if !strings.Contains(out.String(), "Sec-WebSocket-Protocol: superchat\r\n") {
		t.Errorf("response missing negotiated subprotocol: %q", out.String())
	}
}

func TestUpgradeHTTP11CheckOrigin(t *testing.T) {
	raw := "GET /chat HTTP/1.1\r\n" +
		"Host: example.com\r\n" +
		"Origin: http://evil.example\r\n" +
		"Connection: Upgrade\r\n" +
		"Upgrade: websocket\r\n" +
		"Sec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\n" +
		"Sec-WebSocket-Version: 13\r\n\r\n"
	req := parseUpgradeRequest(t, raw)

	var out bytes.Buffer
	conn := &mockConn{reader: strings.NewReader(""), writer: &out}

	u := &Upgrader{CheckOrigin: func(r *http.Request) bool {
		return r.Header.Get("Origin") == "http://example.com"
	}}
	if _, err := u.UpgradeHTTP11(conn, req); err != ErrUpgradeFailed {
		t.Fatalf("expected ErrUpgradeFailed, got %v", err)
	}
}

func TestUpgradeHTTP11OverRealSocket(t *testing.T) {
	raw := "GET /chat HTTP/1.1\r\n" +
		"Host: example.com\r\n" +
		"Connection: Upgrade\r\n" +
		"Upgrade: websocket\r\n" +
		"Sec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\n" +
		"Sec-WebSocket-Version: 13\r\n\r\n"
	req := parseUpgradeRequest(t, raw)

	server, client := net.Pipe()
	defer client.Close()

	u := &Upgrader{}
	done := make(chan error, 1)
	go func() {
		_, err := u.UpgradeHTTP11(server, req)
		done <- err
	}()

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 256)
	n, err := client.Read(buf)
	if err != nil {
		t.Fatalf("read upgrade response: %v", err)
	}
	if !strings.HasPrefix(string(buf[:n]), "HTTP/1.1 101 Switching Protocols\r\n") {
		t.Errorf("unexpected response: %q", string(buf[:n]))
	}

	if err := <-done; err != nil {
		t.Fatalf("UpgradeHTTP11: %v", err)
	}
}
