package transport

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"net"
	"testing"
	"time"
)

func mustSelfSignedCert(t *testing.T, commonName string) tls.Certificate {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	template := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: commonName},
		DNSNames:              []string{commonName},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}

	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("parse certificate: %v", err)
	}

	return tls.Certificate{
		Certificate: [][]byte{der},
		PrivateKey:  key,
		Leaf:        cert,
	}
}

func TestTLSDialAndAcceptHandshake(t *testing.T) {
	cert := mustSelfSignedCert(t, "localhost")

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	serverConfig := &tls.Config{
		Certificates: []tls.Certificate{cert},
		NextProtos:   []string{"http/1.1"},
	}
	tln := WrapTLSListener(ln, serverConfig)

	serverDone := make(chan error, 1)
	go func() {
		tr, err := tln.AcceptTransport()
		if err != nil {
			serverDone <- err
			return
		}
		defer tr.Close()
		serverDone <- tr.Handshake(context.Background())
	}()

	pool := x509.NewCertPool()
	pool.AddCert(cert.Leaf)
	clientConfig := &tls.Config{
		RootCAs:    pool,
		ServerName: "localhost",
		NextProtos: []string{"http/1.1"},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	d := NewDialer()
	client, err := d.DialTLS(ctx, ln.Addr().String(), clientConfig)
	if err != nil {
		t.Fatalf("DialTLS: %v", err)
	}
	defer client.Close()

	if !client.Secure() {
		t.Error("expected TLS transport to report Secure")
	}
	if err := client.Handshake(ctx); err != nil {
		t.Fatalf("client handshake: %v", err)
	}
	if client.NegotiatedProtocol() != "http/1.1" {
		t.Errorf("expected ALPN http/1.1, got %q", client.NegotiatedProtocol())
	}

	select {
	case err := <-serverDone:
		if err != nil {
			t.Fatalf("server handshake: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for server handshake")
	}
}

func TestTLSDialDefaultsServerNameFromAddr(t *testing.T) {
	d := NewDialer()
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	// No listener on this port: we only care that DialTLS attempts the
	// TCP dial (and fails on connection refused / timeout, not on a nil
	// tls.Config or a missing ServerName).
	_, err := d.DialTLS(ctx, "127.0.0.1:1", nil)
	if err == nil {
		t.Error("expected dial to an unreachable port to fail")
	}
}
