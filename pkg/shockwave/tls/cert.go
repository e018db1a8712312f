package tls

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/crypto/ocsp"

	"github.com/wattnet/shockwave/pkg/shockwave"
	"github.com/wattnet/shockwave/pkg/shockwave/shockerr"
)

// Certificate management: loads manually-provisioned certificates from
// disk, keyed by SNI domain, and keeps each one's OCSP staple fresh so
// the TLS handshake can serve it via CertificateRequestInfo.

var (
	ErrCertNotFound  = errors.New("tls: certificate not found")
	ErrCertExpired   = errors.New("tls: certificate expired")
	ErrInvalidCert   = errors.New("tls: invalid certificate")
	ErrStorageFailed = errors.New("tls: storage operation failed")
)

// CertificateManager serves per-domain certificates to crypto/tls via
// GetCertificate, refreshing each certificate's OCSP staple on a timer.
type CertificateManager struct {
	certDir string

	mu           sync.RWMutex
	certificates map[string]*CertificateEntry

	checkInterval time.Duration

	stopChan chan struct{}
	wg       sync.WaitGroup
}

// CertificateEntry is a cached certificate plus its current OCSP staple.
type CertificateEntry struct {
	Certificate *tls.Certificate
	Leaf        *x509.Certificate
	Domains     []string
	IssuedAt    time.Time
	ExpiresAt   time.Time

	mu           sync.RWMutex
	staple       []byte
	stapleExpiry time.Time
}

// CertManagerConfig configures a CertificateManager.
type CertManagerConfig struct {
	// Domains to load. Each domain must have <CertDir>/<domain>.crt and
	// <CertDir>/<domain>.key on disk already; this manager never obtains
	// certificates itself.
	Domains []string

	CertDir string // default "./certs"

	// EnableOCSPStapling fetches and caches an OCSP staple for each
	// certificate from its issuer's responder, refreshed every
	// CheckInterval.
	EnableOCSPStapling bool
	CheckInterval      time.Duration // default 12h
}

// NewCertificateManager loads Domains' certificates from CertDir.
func NewCertificateManager(config *CertManagerConfig) (*CertificateManager, error) {
	if len(config.Domains) == 0 {
		return nil, errors.New("tls: at least one domain is required")
	}

	certDir := config.CertDir
	if certDir == "" {
		certDir = "./certs"
	}
	checkInterval := config.CheckInterval
	if checkInterval == 0 {
		checkInterval = 12 * time.Hour
	}

	cm := &CertificateManager{
		certDir:       certDir,
		certificates:  make(map[string]*CertificateEntry),
		checkInterval: checkInterval,
		stopChan:      make(chan struct{}),
	}

	for _, domain := range config.Domains {
		if err := cm.loadCertificate(domain); err != nil {
			return nil, fmt.Errorf("tls: loading certificate for %s: %w", domain, err)
		}
		if config.EnableOCSPStapling {
			cm.mu.RLock()
			entry := cm.certificates[domain]
			cm.mu.RUnlock()
			if err := cm.refreshStaple(entry); err != nil {
				// Stapling is best-effort: a responder outage shouldn't
				// block startup.
				_ = err
			}
		}
	}

	return cm, nil
}

// Start begins the OCSP-staple refresh monitor. A no-op if stapling was
// never enabled on any certificate (refreshStaple then has nothing to do
// each tick, but the ticker still runs; callers with no stapled certs can
// skip calling Start).
func (cm *CertificateManager) Start() error {
	cm.wg.Add(1)
	go cm.staplingMonitor()
	return nil
}

// Stop halts the refresh monitor.
func (cm *CertificateManager) Stop() {
	close(cm.stopChan)
	cm.wg.Wait()
}

// GetCertificate is installed as crypto/tls.Config.GetCertificate. It
// returns the certificate for hello.ServerName, with its current OCSP
// staple attached if one has been fetched.
func (cm *CertificateManager) GetCertificate(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
	domain := hello.ServerName
	if domain == "" {
		return nil, errors.New("tls: no server name provided")
	}

	cm.mu.RLock()
	entry, exists := cm.certificates[domain]
	cm.mu.RUnlock()
	if !exists {
		return nil, shockerr.New(shockerr.CodeTLS, "CertificateManager.GetCertificate", ErrCertNotFound)
	}
	if !entry.IsValid() {
		return nil, shockerr.New(shockerr.CodeTLS, "CertificateManager.GetCertificate", ErrCertExpired)
	}

	entry.mu.RLock()
	staple := entry.staple
	entry.mu.RUnlock()

	cert := *entry.Certificate
	cert.OCSPStaple = staple
	return &cert, nil
}

// loadCertificate reads <certDir>/<domain>.{crt,key} from disk.
func (cm *CertificateManager) loadCertificate(domain string) error {
	certPath := filepath.Join(cm.certDir, domain+".crt")
	keyPath := filepath.Join(cm.certDir, domain+".key")

	if _, err := os.Stat(certPath); os.IsNotExist(err) {
		return shockerr.New(shockerr.CodeFile, "CertificateManager.loadCertificate", ErrCertNotFound)
	}
	if _, err := os.Stat(keyPath); os.IsNotExist(err) {
		return shockerr.New(shockerr.CodeFile, "CertificateManager.loadCertificate", ErrCertNotFound)
	}

	certPEM, err := os.ReadFile(certPath)
	if err != nil {
		return shockerr.New(shockerr.CodeFile, "CertificateManager.loadCertificate", err)
	}

	// The private key passes through a buffer drawn from the secure pool
	// and is zeroed the moment tls.X509KeyPair is done with it, instead of
	// sitting in a GC'd []byte until the collector gets around to it.
	keyFile, err := os.Open(keyPath)
	if err != nil {
		return fmt.Errorf("failed to open key: %w", err)
	}
	keyInfo, err := keyFile.Stat()
	if err != nil {
		keyFile.Close()
		return fmt.Errorf("failed to stat key: %w", err)
	}
	keyBuf := shockwave.GetSecureBuffer(int(keyInfo.Size()))
	defer shockwave.PutSecureBuffer(keyBuf)
	n, err := io.ReadFull(keyFile, keyBuf[:keyInfo.Size()])
	keyFile.Close()
	if err != nil {
		return fmt.Errorf("failed to read key: %w", err)
	}

	cert, err := tls.X509KeyPair(certPEM, keyBuf[:n])
	if err != nil {
		return fmt.Errorf("failed to load certificate: %w", err)
	}

	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		return fmt.Errorf("failed to parse leaf certificate: %w", err)
	}
	cert.Leaf = leaf

	entry := &CertificateEntry{
		Certificate: &cert,
		Leaf:        leaf,
		Domains:     []string{domain},
		IssuedAt:    leaf.NotBefore,
		ExpiresAt:   leaf.NotAfter,
	}

	cm.mu.Lock()
	cm.certificates[domain] = entry
	cm.mu.Unlock()

	return nil
}

// refreshStaple fetches a fresh OCSP response for entry's leaf from its
// issuer's responder and caches it.
func (cm *CertificateManager) refreshStaple(entry *CertificateEntry) error {
	if entry == nil || entry.Leaf == nil || len(entry.Leaf.OCSPServer) == 0 {
		return errors.New("tls: no OCSP responder configured on certificate")
	}
	if len(entry.Certificate.Certificate) < 2 {
		return errors.New("tls: certificate chain has no issuer to verify OCSP against")
	}

	issuer, err := x509.ParseCertificate(entry.Certificate.Certificate[1])
	if err != nil {
		return fmt.Errorf("tls: parsing issuer certificate: %w", err)
	}

	reqBytes, err := ocsp.CreateRequest(entry.Leaf, issuer, nil)
	if err != nil {
		return fmt.Errorf("tls: building OCSP request: %w", err)
	}

	respBytes, err := fetchOCSPResponse(entry.Leaf.OCSPServer[0], reqBytes)
	if err != nil {
		return fmt.Errorf("tls: fetching OCSP response: %w", err)
	}

	parsed, err := ocsp.ParseResponseForCert(respBytes, entry.Leaf, issuer)
	if err != nil {
		return fmt.Errorf("tls: parsing OCSP response: %w", err)
	}
	if parsed.Status != ocsp.Good {
		return fmt.Errorf("tls: OCSP responder reports non-good status %d", parsed.Status)
	}

	entry.mu.Lock()
	entry.staple = respBytes
	entry.stapleExpiry = parsed.NextUpdate
	entry.mu.Unlock()
	return nil
}

// staplingMonitor periodically refreshes every loaded certificate's OCSP
// staple.
func (cm *CertificateManager) staplingMonitor() {
	defer cm.wg.Done()

	ticker := time.NewTicker(cm.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cm.mu.RLock()
			entries := make([]*CertificateEntry, 0, len(cm.certificates))
			for _, e := range cm.certificates {
				entries = append(entries, e)
			}
			cm.mu.RUnlock()

			for _, entry := range entries {
				_ = cm.refreshStaple(entry)
			}
		case <-cm.stopChan:
			return
		}
	}
}

// IsValid reports whether the certificate is within its validity window.
func (ce *CertificateEntry) IsValid() bool {
	now := time.Now()
	return now.After(ce.IssuedAt) && now.Before(ce.ExpiresAt)
}

// DaysUntilExpiry returns the number of days until the certificate
// expires.
func (ce *CertificateEntry) DaysUntilExpiry() int {
	duration := time.Until(ce.ExpiresAt)
	return int(duration.Hours() / 24)
}

// StapleExpiry returns the cached OCSP staple's NextUpdate time, or the
// zero Time if no staple has been fetched.
func (ce *CertificateEntry) StapleExpiry() time.Time {
	ce.mu.RLock()
	defer ce.mu.RUnlock()
	return ce.stapleExpiry
}
