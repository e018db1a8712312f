package tls

import (
	"crypto/tls"
	"errors"
	"fmt"
	"time"
)

// TLS configuration builder for the Shockwave HTTP server. Certificates
// are always manually provisioned (PEM files on disk); the only
// "managed" behavior this package adds over crypto/tls is per-domain SNI
// routing and OCSP-staple refresh via CertificateManager.

// Config represents TLS configuration options.
type Config struct {
	// Managed multi-domain certificates (CertDir/<domain>.{crt,key}),
	// routed by SNI via CertificateManager.GetCertificate.
	Managed            bool
	Domains            []string
	CertDir            string
	EnableOCSPStapling bool
	CheckInterval      time.Duration

	// Single manual certificate configuration, used when Managed is
	// false.
	CertFile string
	KeyFile  string

	// Advanced TLS options
	MinVersion             uint16
	MaxVersion             uint16
	CipherSuites           []uint16
	PreferServerCiphers    bool
	SessionTicketsDisabled bool
	Renegotiation          tls.RenegotiationSupport
	ClientAuth             tls.ClientAuthType
	ClientCAs              []string

	// ALPN protocols
	NextProtos []string

	certManager *CertificateManager
}

// Default cipher suites (strong, modern ciphers only)
var defaultCipherSuites = []uint16{
	tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
	tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
}

// NewConfig creates a new TLS configuration with sensible defaults.
func NewConfig() *Config {
	return &Config{
		MinVersion:             tls.VersionTLS12,
		MaxVersion:             tls.VersionTLS13,
		CipherSuites:           defaultCipherSuites,
		PreferServerCiphers:    true,
		SessionTicketsDisabled: false,
		Renegotiation:          tls.RenegotiateNever,
		NextProtos:             []string{"http/1.1"},
		CheckInterval:          12 * time.Hour,
	}
}

// WithManagedCerts enables SNI-routed, OCSP-stapled certificate loading
// for the given domains from certDir.
func (c *Config) WithManagedCerts(certDir string, domains ...string) *Config {
	c.Managed = true
	c.CertDir = certDir
	c.Domains = domains
	return c
}

// WithOCSPStapling enables OCSP-staple fetch/refresh for managed
// certificates.
func (c *Config) WithOCSPStapling() *Config {
	c.EnableOCSPStapling = true
	return c
}

// WithManualCert sets a single manual certificate/key pair.
func (c *Config) WithManualCert(certFile, keyFile string) *Config {
	c.Managed = false
	c.CertFile = certFile
	c.KeyFile = keyFile
	return c
}

// WithMinTLSVersion sets the minimum TLS version.
func (c *Config) WithMinTLSVersion(version uint16) *Config {
	c.MinVersion = version
	return c
}

// WithMaxTLSVersion sets the maximum TLS version.
func (c *Config) WithMaxTLSVersion(version uint16) *Config {
	c.MaxVersion = version
	return c
}

// WithCipherSuites sets custom cipher suites.
func (c *Config) WithCipherSuites(suites []uint16) *Config {
	c.CipherSuites = suites
	return c
}

// WithALPN sets ALPN protocols.
func (c *Config) WithALPN(protos ...string) *Config {
	c.NextProtos = protos
	return c
}

// WithClientAuth enables client certificate authentication.
func (c *Config) WithClientAuth(authType tls.ClientAuthType) *Config {
	c.ClientAuth = authType
	return c
}

// WithCheckInterval sets how often managed certificates' OCSP staples are
// refreshed.
func (c *Config) WithCheckInterval(duration time.Duration) *Config {
	c.CheckInterval = duration
	return c
}

// Build creates a *tls.Config from the configuration.
func (c *Config) Build() (*tls.Config, error) {
	if c.Managed {
		return c.buildManaged()
	}
	return c.buildManualCert()
}

// buildManaged builds a TLS config backed by a CertificateManager.
func (c *Config) buildManaged() (*tls.Config, error) {
	if len(c.Domains) == 0 {
		return nil, errors.New("tls: at least one domain is required for managed certificates")
	}

	certManager, err := NewCertificateManager(&CertManagerConfig{
		Domains:            c.Domains,
		CertDir:            c.CertDir,
		EnableOCSPStapling: c.EnableOCSPStapling,
		CheckInterval:      c.CheckInterval,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create certificate manager: %w", err)
	}

	if err := certManager.Start(); err != nil {
		return nil, fmt.Errorf("failed to start certificate manager: %w", err)
	}
	c.certManager = certManager

	return &tls.Config{
		GetCertificate:           certManager.GetCertificate,
		MinVersion:               c.MinVersion,
		MaxVersion:               c.MaxVersion,
		CipherSuites:             c.CipherSuites,
		PreferServerCipherSuites: c.PreferServerCiphers,
		SessionTicketsDisabled:   c.SessionTicketsDisabled,
		Renegotiation:            c.Renegotiation,
		NextProtos:               c.NextProtos,
		ClientAuth:               c.ClientAuth,
	}, nil
}

// buildManualCert builds a TLS config from a single certificate/key pair.
func (c *Config) buildManualCert() (*tls.Config, error) {
	if c.CertFile == "" || c.KeyFile == "" {
		return nil, errors.New("certificate and key files are required")
	}

	cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load certificate: %w", err)
	}

	return &tls.Config{
		Certificates:             []tls.Certificate{cert},
		MinVersion:               c.MinVersion,
		MaxVersion:               c.MaxVersion,
		CipherSuites:             c.CipherSuites,
		PreferServerCipherSuites: c.PreferServerCiphers,
		SessionTicketsDisabled:   c.SessionTicketsDisabled,
		Renegotiation:            c.Renegotiation,
		NextProtos:               c.NextProtos,
		ClientAuth:               c.ClientAuth,
	}, nil
}

// Stop stops the certificate manager's staple-refresh monitor, if any.
func (c *Config) Stop() {
	if c.certManager != nil {
		c.certManager.Stop()
	}
}

// ManualTLS creates a TLS config with manual certificate files.
func ManualTLS(certFile, keyFile string) (*tls.Config, error) {
	config := NewConfig().WithManualCert(certFile, keyFile)
	return config.Build()
}

// ManagedTLS creates a TLS config with SNI-routed, OCSP-stapled managed
// certificates.
func ManagedTLS(certDir string, domains ...string) (*tls.Config, error) {
	config := NewConfig().WithManagedCerts(certDir, domains...).WithOCSPStapling()
	return config.Build()
}

// WebSocketDefaults returns a TLS config whose ALPN list additionally
// advertises the WebSocket-over-TLS convention of falling back to
// http/1.1 (the upgrade itself happens over the negotiated http/1.1
// connection; there is no separate "websocket" ALPN token in RFC 6455).
func WebSocketDefaults() *Config {
	config := SecureDefaults()
	config.NextProtos = []string{"http/1.1"}
	return config
}

// SecureDefaults returns a TLS config with secure default settings:
// requires TLS 1.2+, strong ciphers only, perfect forward secrecy.
func SecureDefaults() *Config {
	return &Config{
		MinVersion: tls.VersionTLS12,
		MaxVersion: tls.VersionTLS13,
		CipherSuites: []uint16{
			tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
			tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
		},
		PreferServerCiphers:    true,
		SessionTicketsDisabled: false,
		Renegotiation:          tls.RenegotiateNever,
		NextProtos:             []string{"http/1.1"},
	}
}

// GetCertificateInfo returns information about managed certificates.
func (c *Config) GetCertificateInfo() map[string]*CertificateEntry {
	if c.certManager == nil {
		return nil
	}

	c.certManager.mu.RLock()
	defer c.certManager.mu.RUnlock()

	info := make(map[string]*CertificateEntry, len(c.certManager.certificates))
	for domain, entry := range c.certManager.certificates {
		info[domain] = entry
	}
	return info
}
