package quicfab

import (
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

	"github.com/stretchr/testify/require"
)

func generateKeyPair(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err, "failed to generate private key")
	return key
}

func generateCertificate(t *testing.T, tmpl, parent *x509.Certificate, pub *ecdsa.PublicKey, signer *ecdsa.PrivateKey) []byte {
	t.Helper()
	serialNumber, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	require.NoError(t, err, "failed to generate serial number")
	tmpl.SerialNumber = serialNumber
	tmpl.NotBefore = time.Now().Add(-time.Minute)
	tmpl.NotAfter = time.Now().Add(time.Hour)
	tmpl.IPAddresses = []net.IP{{127, 0, 0, 1}}
	tmpl.BasicConstraintsValid = true

	if parent == nil {
		parent = tmpl
	}
	certDER, err := x509.CreateCertificate(rand.Reader, tmpl, parent, pub, signer)
	require.NoError(t, err, "failed to sign certificate")
	return certDER
}

// testPKI is a self-signed CA able to issue mTLS configs for test nodes.
type testPKI struct {
	ca    *x509.Certificate
	caKey *ecdsa.PrivateKey
	pool  *x509.CertPool
}

func newTestPKI(t *testing.T) *testPKI {
	t.Helper()
	caKey := generateKeyPair(t)
	caDER := generateCertificate(t, &x509.Certificate{
		Subject:  pkix.Name{CommonName: "self-signed"},
		KeyUsage: x509.KeyUsageCertSign,
		IsCA:     true,
	}, nil, &caKey.PublicKey, caKey)

	ca, err := x509.ParseCertificate(caDER)
	require.NoError(t, err, "failed to parse CA")

	pool := x509.NewCertPool()
	pool.AddCert(ca)
	return &testPKI{ca: ca, caKey: caKey, pool: pool}
}

func (pki *testPKI) tlsConfig(t *testing.T, cn string) *tls.Config {
	t.Helper()
	key := generateKeyPair(t)
	leafDER := generateCertificate(t, &x509.Certificate{
		Subject:     pkix.Name{CommonName: cn},
		KeyUsage:    x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth, x509.ExtKeyUsageServerAuth},
	}, pki.ca, &key.PublicKey, pki.caKey)

	leaf, err := x509.ParseCertificate(leafDER)
	require.NoError(t, err, "failed to parse leaf")

	return &tls.Config{
		Certificates: []tls.Certificate{
			{
				Certificate: [][]byte{leafDER},
				Leaf:        leaf,
				PrivateKey:  key,
			},
		},
		ClientAuth: tls.RequireAndVerifyClientCert,
		ClientCAs:  pki.pool,
		RootCAs:    pki.pool,
	}
}
