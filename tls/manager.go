package tls

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"os"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/acme"
	"golang.org/x/crypto/acme/autocert"

	"github.com/tugasin/tugasin-blog/types"
)

const DefaultCacheDir = "./certs"

// CertManager provides the server TLS configuration. With AutoCert the certificates come from ACME
// and are cached on disk; otherwise a static key pair is loaded once at construction.
type CertManager struct {
	logger      types.Logger
	config      *types.TLSConfig
	autocertMgr *autocert.Manager
	certificate *tls.Certificate
	leaf        *x509.Certificate
}

func NewCertManager(logger types.Logger, config *types.TLSConfig) (*CertManager, error) {
	if config == nil || !config.Enabled {
		return nil, types.ErrTLSIsDisabled
	}

	cm := &CertManager{
		logger: logger,
		config: config,
	}

	if config.AutoCert {
		if err := cm.initializeAutocert(); err != nil {
			return nil, types.WrapError(err, "failed to initialize autocert manager")
		}
		return cm, nil
	}

	if err := cm.loadKeyPair(); err != nil {
		return nil, err
	}

	return cm, nil
}

func (cm *CertManager) TLSConfig() *tls.Config {
	var tlsConfig *tls.Config
	if cm.autocertMgr != nil {
		tlsConfig = cm.autocertMgr.TLSConfig()
		tlsConfig.NextProtos = []string{"http/1.1", acme.ALPNProto}
	} else {
		tlsConfig = &tls.Config{
			Certificates: []tls.Certificate{*cm.certificate},
			NextProtos:   []string{"http/1.1"},
		}
	}

	tlsConfig.MinVersion = tls.VersionTLS12
	tlsConfig.CipherSuites = []uint16{
		tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
		tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
		tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
		tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
		tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
		tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
	}

	return tlsConfig
}

func (cm *CertManager) Listener(ln net.Listener) net.Listener {
	return tls.NewListener(ln, cm.TLSConfig())
}

// Expiry reports NotAfter of the static certificate. ACME certificates renew themselves and report false.
func (cm *CertManager) Expiry() (time.Time, bool) {
	if cm.leaf == nil {
		return time.Time{}, false
	}
	return cm.leaf.NotAfter, true
}

func (cm *CertManager) loadKeyPair() error {
	if cm.config.CertFile == "" || cm.config.KeyFile == "" {
		return types.NewErrorf("TLS enabled but cert_file or key_file not specified")
	}

	cert, err := tls.LoadX509KeyPair(cm.config.CertFile, cm.config.KeyFile)
	if err != nil {
		return types.WrapError(err, "failed to load certificate files")
	}

	leaf, err := validateCertificate(cert, time.Now())
	if err != nil {
		return types.WrapError(err, "failed to validate certificate files")
	}

	cm.certificate = &cert
	cm.leaf = leaf

	cm.logger.Info("TLS certificate loaded",
		zap.Strings("dns_names", leaf.DNSNames),
		zap.Time("not_after", leaf.NotAfter))

	return nil
}

func validateCertificate(cert tls.Certificate, now time.Time) (*x509.Certificate, error) {
	if len(cert.Certificate) == 0 {
		return nil, fmt.Errorf("certificate chain is empty")
	}

	x509Cert, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}

	if now.Before(x509Cert.NotBefore) {
		return nil, fmt.Errorf("certificate not yet valid")
	}
	if now.After(x509Cert.NotAfter) {
		return nil, fmt.Errorf("certificate expired")
	}

	return x509Cert, nil
}

func (cm *CertManager) initializeAutocert() error {
	if len(cm.config.Domains) == 0 {
		return types.NewErrorf("no domains specified for TLS certificate")
	}

	cacheDir := cm.config.CacheDir
	if cacheDir == "" {
		cacheDir = DefaultCacheDir
	}

	if err := os.MkdirAll(cacheDir, 0700); err != nil {
		return types.WrapError(err, "failed to create certificate cache directory")
	}

	cm.autocertMgr = &autocert.Manager{
		Cache:      autocert.DirCache(cacheDir),
		Prompt:     autocert.AcceptTOS,
		HostPolicy: autocert.HostWhitelist(cm.config.Domains...),
		Email:      cm.config.Email,
	}

	if cm.config.ACMEDirectory != "" {
		cm.autocertMgr.Client = &acme.Client{
			DirectoryURL: cm.config.ACMEDirectory,
		}
	}

	cm.logger.Info("ACME certificates enabled",
		zap.Strings("domains", cm.config.Domains),
		zap.String("cache_dir", cacheDir))

	return nil
}
