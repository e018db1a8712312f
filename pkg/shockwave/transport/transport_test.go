package transport

import (
	"context"
	"net"
	"testing"
	"time"
)

func TestDialAndAcceptTCPTransport(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	wln := WrapListener(ln)

	accepted := make(chan Transport, 1)
	go func() {
		tr, err := wln.AcceptTransport()
		if err != nil {
			t.Errorf("AcceptTransport: %v", err)
			return
		}
		accepted <- tr
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	d := NewDialer()
	client, err := d.DialTCP(ctx, ln.Addr().String())
	if err != nil {
		t.Fatalf("DialTCP: %v", err)
	}
	defer client.Close()

	if client.Secure() {
		t.Error("expected plain TCP transport to be insecure")
	}
	if client.NegotiatedProtocol() != "" {
		t.Error("expected no negotiated protocol for plain TCP")
	}
	if err := client.Handshake(ctx); err != nil {
		t.Errorf("Handshake should be a no-op for plain TCP, got %v", err)
	}

	select {
	case server := <-accepted:
		defer server.Close()
		if server.Secure() {
			t.Error("expected accepted plain TCP transport to be insecure")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for AcceptTransport")
	}
}

func TestDialTCPRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := NewDialer()
	if _, err := d.DialTCP(ctx, "127.0.0.1:1"); err == nil {
		t.Error("expected dial with canceled context to fail")
	}
}
