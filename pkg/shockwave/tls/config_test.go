package tls

import (
	"crypto/tls"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// Test TLS config creation
func TestNewConfig(t *testing.T) {
	config := NewConfig()

	if config == nil {
		t.Fatal("NewConfig returned nil")
	}
	if config.MinVersion != tls.VersionTLS12 {
		t.Errorf("Expected MinVersion TLS 1.2, got 0x%x", config.MinVersion)
	}
	if config.MaxVersion != tls.VersionTLS13 {
		t.Errorf("Expected MaxVersion TLS 1.3, got 0x%x", config.MaxVersion)
	}
	if !config.PreferServerCiphers {
		t.Error("Expected PreferServerCiphers to be true")
	}
	if config.Renegotiation != tls.RenegotiateNever {
		t.Error("Expected Renegotiation to be Never")
	}
	if len(config.NextProtos) == 0 {
		t.Error("Expected ALPN protocols to be set")
	}
}

// Test config builder pattern
func TestConfigBuilder(t *testing.T) {
	config := NewConfig().
		WithMinTLSVersion(tls.VersionTLS13).
		WithMaxTLSVersion(tls.VersionTLS13).
		WithALPN("http/1.1").
		WithCheckInterval(6 * time.Hour)

	if config.MinVersion != tls.VersionTLS13 {
		t.Error("MinVersion not set correctly")
	}
	if config.MaxVersion != tls.VersionTLS13 {
		t.Error("MaxVersion not set correctly")
	}
	if len(config.NextProtos) != 1 || config.NextProtos[0] != "http/1.1" {
		t.Error("ALPN not set correctly")
	}
	if config.CheckInterval != 6*time.Hour {
		t.Error("CheckInterval not set correctly")
	}
}

// Test secure defaults
func TestSecureDefaults(t *testing.T) {
	config := SecureDefaults()

	if config.MinVersion < tls.VersionTLS12 {
		t.Error("Secure defaults should require TLS 1.2+")
	}
	if len(config.CipherSuites) == 0 {
		t.Error("Secure defaults should have cipher suites")
	}

	for _, suite := range config.CipherSuites {
		switch suite {
		case tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
			tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305:
		default:
			t.Errorf("Cipher suite 0x%x does not support PFS", suite)
		}
	}

	if !config.PreferServerCiphers {
		t.Error("Secure defaults should prefer server ciphers")
	}
	if config.Renegotiation != tls.RenegotiateNever {
		t.Error("Secure defaults should disable renegotiation")
	}
}

func TestWebSocketDefaults(t *testing.T) {
	config := WebSocketDefaults()

	found := false
	for _, proto := range config.NextProtos {
		if proto == "http/1.1" {
			found = true
		}
	}
	if !found {
		t.Error("WebSocket defaults should advertise http/1.1 ALPN")
	}
}

// Test manual certificate loading
func TestManualCertBuild(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "config-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	writeTestCertificate(t, tmpDir, "test.example.com")
	certPath := filepath.Join(tmpDir, "test.example.com.crt")
	keyPath := filepath.Join(tmpDir, "test.example.com.key")

	config := NewConfig().WithManualCert(certPath, keyPath)
	tlsConfig, err := config.Build()
	if err != nil {
		t.Fatalf("Failed to build config: %v", err)
	}
	if tlsConfig == nil {
		t.Fatal("TLS config is nil")
	}
	if len(tlsConfig.Certificates) != 1 {
		t.Errorf("Expected 1 certificate, got %d", len(tlsConfig.Certificates))
	}
}

func TestManualCertMissingFiles(t *testing.T) {
	config := NewConfig().WithManualCert("/nonexistent/cert.pem", "/nonexistent/key.pem")
	if _, err := config.Build(); err == nil {
		t.Error("Expected error for missing certificate files")
	}
}

func TestManualTLSHelper(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "manual-tls-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	writeTestCertificate(t, tmpDir, "test.example.com")
	certPath := filepath.Join(tmpDir, "test.example.com.crt")
	keyPath := filepath.Join(tmpDir, "test.example.com.key")

	tlsConfig, err := ManualTLS(certPath, keyPath)
	if err != nil {
		t.Fatalf("ManualTLS failed: %v", err)
	}
	if len(tlsConfig.Certificates) != 1 {
		t.Error("Expected 1 certificate")
	}
}

func TestManagedTLSRoutesDomains(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "managed-tls-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	writeTestCertificate(t, tmpDir, "a.example.com")
	writeTestCertificate(t, tmpDir, "b.example.com")

	config := NewConfig().WithManagedCerts(tmpDir, "a.example.com", "b.example.com")
	tlsConfig, err := config.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer config.Stop()

	if tlsConfig.GetCertificate == nil {
		t.Fatal("expected GetCertificate to be set for managed config")
	}

	info := config.GetCertificateInfo()
	if len(info) != 2 {
		t.Errorf("expected 2 managed certificates, got %d", len(info))
	}
}

func TestCipherSuiteConfiguration(t *testing.T) {
	customSuites := []uint16{
		tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
		tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
	}

	config := NewConfig().WithCipherSuites(customSuites)

	if len(config.CipherSuites) != len(customSuites) {
		t.Error("Cipher suites not set correctly")
	}
	for i, suite := range config.CipherSuites {
		if suite != customSuites[i] {
			t.Errorf("Cipher suite %d mismatch", i)
		}
	}
}

func TestDefaultCipherSuites(t *testing.T) {
	if len(defaultCipherSuites) == 0 {
		t.Error("Default cipher suites should not be empty")
	}
	for _, suite := range defaultCipherSuites {
		switch suite {
		case tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
			tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305:
		default:
			t.Errorf("Weak or unknown cipher in defaults: 0x%x", suite)
		}
	}
}

func TestClientAuthConfiguration(t *testing.T) {
	authTypes := []tls.ClientAuthType{
		tls.NoClientCert,
		tls.RequestClientCert,
		tls.RequireAnyClientCert,
		tls.VerifyClientCertIfGiven,
		tls.RequireAndVerifyClientCert,
	}

	for _, authType := range authTypes {
		config := NewConfig().WithClientAuth(authType)
		if config.ClientAuth != authType {
			t.Errorf("ClientAuth not set correctly: expected %v, got %v", authType, config.ClientAuth)
		}
	}
}

func TestTLSVersionConfiguration(t *testing.T) {
	tests := []struct {
		name       string
		minVersion uint16
		maxVersion uint16
	}{
		{"TLS 1.2 to 1.3", tls.VersionTLS12, tls.VersionTLS13},
		{"TLS 1.3 only", tls.VersionTLS13, tls.VersionTLS13},
		{"TLS 1.2 only", tls.VersionTLS12, tls.VersionTLS12},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := NewConfig().
				WithMinTLSVersion(tt.minVersion).
				WithMaxTLSVersion(tt.maxVersion)

			if config.MinVersion != tt.minVersion {
				t.Errorf("MinVersion not set: expected 0x%x, got 0x%x", tt.minVersion, config.MinVersion)
			}
			if config.MaxVersion != tt.maxVersion {
				t.Errorf("MaxVersion not set: expected 0x%x, got 0x%x", tt.maxVersion, config.MaxVersion)
			}
		})
	}
}

func TestALPNConfiguration(t *testing.T) {
	tests := []struct {
		name   string
		protos []string
	}{
		{"HTTP/1.1 only", []string{"http/1.1"}},
		{"empty", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := NewConfig().WithALPN(tt.protos...)
			if len(config.NextProtos) != len(tt.protos) {
				t.Errorf("Expected %d protocols, got %d", len(tt.protos), len(config.NextProtos))
			}
		})
	}
}

func TestConfigStop(t *testing.T) {
	config := NewConfig()
	config.Stop() // must not panic with a nil certManager
}

func TestGetCertificateInfoUninitialized(t *testing.T) {
	config := NewConfig()
	if info := config.GetCertificateInfo(); info != nil {
		t.Error("Expected nil for uninitialized certManager")
	}
}

func BenchmarkConfigCreation(b *testing.B) {
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		NewConfig()
	}
}

func BenchmarkSecureDefaults(b *testing.B) {
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		SecureDefaults()
	}
}
