package tls

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"testing"
	"time"

	"go.uber.org/zap"
	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
	"gotest.tools/v3/fs"

	"github.com/tugasin/tugasin-blog/logger"
	"github.com/tugasin/tugasin-blog/types"
)

func selfSigned(t *testing.T, notBefore, notAfter time.Time) (certPEM, keyPEM []byte) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	assert.NilError(t, err)

	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "localhost"},
		DNSNames:     []string{"localhost"},
		NotBefore:    notBefore,
		NotAfter:     notAfter,
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	assert.NilError(t, err)

	keyDER, err := x509.MarshalECPrivateKey(key)
	assert.NilError(t, err)

	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}),
		pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})
}

func keyPairDir(t *testing.T, notBefore, notAfter time.Time) *fs.Dir {
	certPEM, keyPEM := selfSigned(t, notBefore, notAfter)
	dir := fs.NewDir(t, "tls",
		fs.WithFile("cert.pem", string(certPEM)),
		fs.WithFile("key.pem", string(keyPEM)))
	t.Cleanup(dir.Remove)
	return dir
}

func testLogger() types.Logger {
	return logger.NewZapWrapper(zap.NewNop())
}

func TestDisabled(t *testing.T) {
	_, err := NewCertManager(testLogger(), nil)
	assert.ErrorIs(t, err, types.ErrTLSIsDisabled)

	_, err = NewCertManager(testLogger(), &types.TLSConfig{Enabled: false})
	assert.ErrorIs(t, err, types.ErrTLSIsDisabled)
}

func TestStaticKeyPair(t *testing.T) {
	notAfter := time.Now().Add(30 * 24 * time.Hour).Truncate(time.Second)
	dir := keyPairDir(t, time.Now().Add(-time.Hour), notAfter)

	cm, err := NewCertManager(testLogger(), &types.TLSConfig{
		Enabled:  true,
		CertFile: dir.Join("cert.pem"),
		KeyFile:  dir.Join("key.pem"),
	})
	assert.NilError(t, err)

	expiry, ok := cm.Expiry()
	assert.Assert(t, ok)
	assert.Assert(t, expiry.Equal(notAfter))

	config := cm.TLSConfig()
	assert.Check(t, is.Len(config.Certificates, 1))
	assert.Equal(t, config.MinVersion, uint16(tls.VersionTLS12))
}

func TestListenerHandshake(t *testing.T) {
	dir := keyPairDir(t, time.Now().Add(-time.Hour), time.Now().Add(time.Hour))

	cm, err := NewCertManager(testLogger(), &types.TLSConfig{
		Enabled:  true,
		CertFile: dir.Join("cert.pem"),
		KeyFile:  dir.Join("key.pem"),
	})
	assert.NilError(t, err)

	raw, err := net.Listen("tcp", "127.0.0.1:0")
	assert.NilError(t, err)
	ln := cm.Listener(raw)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.(*tls.Conn).Handshake()
	}()

	conn, err := tls.Dial("tcp", raw.Addr().String(), &tls.Config{InsecureSkipVerify: true})
	assert.NilError(t, err)
	defer conn.Close()

	assert.Equal(t, conn.ConnectionState().PeerCertificates[0].Subject.CommonName, "localhost")
}

func TestExpiredCertificateRejected(t *testing.T) {
	dir := keyPairDir(t, time.Now().Add(-48*time.Hour), time.Now().Add(-24*time.Hour))

	_, err := NewCertManager(testLogger(), &types.TLSConfig{
		Enabled:  true,
		CertFile: dir.Join("cert.pem"),
		KeyFile:  dir.Join("key.pem"),
	})
	assert.ErrorContains(t, err, "certificate expired")
}

func TestMissingFiles(t *testing.T) {
	_, err := NewCertManager(testLogger(), &types.TLSConfig{Enabled: true})
	assert.ErrorContains(t, err, "cert_file or key_file")
}

func TestAutocertRequiresDomains(t *testing.T) {
	_, err := NewCertManager(testLogger(), &types.TLSConfig{Enabled: true, AutoCert: true})
	assert.ErrorContains(t, err, "no domains")

	dir := fs.NewDir(t, "acme")
	defer dir.Remove()

	cm, err := NewCertManager(testLogger(), &types.TLSConfig{
		Enabled:  true,
		AutoCert: true,
		Domains:  []string{"tugasin.me"},
		CacheDir: dir.Join("certs"),
	})
	assert.NilError(t, err)

	_, ok := cm.Expiry()
	assert.Assert(t, !ok)
	assert.Check(t, is.Contains(cm.TLSConfig().NextProtos, "acme-tls/1"))
}
