package tls

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// Test certificate loading from disk.
func TestCertificateLoadFromDisk(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "cert-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	domain := "test.example.com"
	writeTestCertificate(t, tmpDir, domain)

	cm := &CertificateManager{
		certDir:      tmpDir,
		certificates: make(map[string]*CertificateEntry),
	}

	if err := cm.loadCertificate(domain); err != nil {
		t.Fatalf("Failed to load certificate: %v", err)
	}

	entry, exists := cm.certificates[domain]
	if !exists {
		t.Fatal("Certificate not in cache")
	}
	if entry.Certificate == nil {
		t.Error("Loaded certificate is nil")
	}
	if len(entry.Domains) != 1 || entry.Domains[0] != domain {
		t.Errorf("Expected domain %s, got %v", domain, entry.Domains)
	}

	t.Logf("certificate loaded for %s, expires %s", domain, entry.ExpiresAt)
}

func TestCertificateLoadMissing(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "cert-test-missing-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	cm := &CertificateManager{certDir: tmpDir, certificates: make(map[string]*CertificateEntry)}
	if err := cm.loadCertificate("nope.example.com"); !errors.Is(err, ErrCertNotFound) {
		t.Fatalf("expected ErrCertNotFound, got %v", err)
	}
}

// Test certificate entry validation.
func TestCertificateEntryValidation(t *testing.T) {
	now := time.Now()

	validEntry := &CertificateEntry{
		IssuedAt:  now.Add(-24 * time.Hour),
		ExpiresAt: now.Add(30 * 24 * time.Hour),
	}
	if !validEntry.IsValid() {
		t.Error("Valid certificate reported as invalid")
	}

	expiredEntry := &CertificateEntry{
		IssuedAt:  now.Add(-90 * 24 * time.Hour),
		ExpiresAt: now.Add(-1 * time.Hour),
	}
	if expiredEntry.IsValid() {
		t.Error("Expired certificate reported as valid")
	}

	futureEntry := &CertificateEntry{
		IssuedAt:  now.Add(24 * time.Hour),
		ExpiresAt: now.Add(90 * 24 * time.Hour),
	}
	if futureEntry.IsValid() {
		t.Error("Future certificate reported as valid")
	}
}

func TestCertificateDaysUntilExpiry(t *testing.T) {
	now := time.Now()
	entry := &CertificateEntry{
		IssuedAt:  now.Add(-30 * 24 * time.Hour),
		ExpiresAt: now.Add(60 * 24 * time.Hour),
	}

	days := entry.DaysUntilExpiry()
	if days < 59 || days > 61 {
		t.Errorf("Expected ~60 days until expiry, got %d", days)
	}
}

func TestGetCertificateRoutesBySNI(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "cert-test-sni-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	writeTestCertificate(t, tmpDir, "a.example.com")
	writeTestCertificate(t, tmpDir, "b.example.com")

	cm, err := NewCertificateManager(&CertManagerConfig{
		Domains: []string{"a.example.com", "b.example.com"},
		CertDir: tmpDir,
	})
	if err != nil {
		t.Fatalf("NewCertificateManager: %v", err)
	}

	cert, err := cm.GetCertificate(&tls.ClientHelloInfo{ServerName: "b.example.com"})
	if err != nil {
		t.Fatalf("GetCertificate: %v", err)
	}
	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		t.Fatalf("parse leaf: %v", err)
	}
	if leaf.Subject.CommonName != "b.example.com" {
		t.Errorf("expected b.example.com, got %s", leaf.Subject.CommonName)
	}

	if _, err := cm.GetCertificate(&tls.ClientHelloInfo{ServerName: "unknown.example.com"}); !errors.Is(err, ErrCertNotFound) {
		t.Fatalf("expected ErrCertNotFound for unknown SNI, got %v", err)
	}
}

// writeTestCertificate generates a self-signed cert/key pair for domain
// and writes it to dir/<domain>.{crt,key}.
func writeTestCertificate(t *testing.T, dir, domain string) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("Failed to generate key: %v", err)
	}

	template := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: domain},
		DNSNames:              []string{domain},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(90 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}

	certDER, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("Failed to create certificate: %v", err)
	}

	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatalf("Failed to marshal key: %v", err)
	}

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})

	if err := os.WriteFile(filepath.Join(dir, domain+".crt"), certPEM, 0600); err != nil {
		t.Fatalf("write cert: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, domain+".key"), keyPEM, 0600); err != nil {
		t.Fatalf("write key: %v", err)
	}
}
