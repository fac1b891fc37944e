package pki

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/certen/ksi-go/pkg/imprint"
	"github.com/certen/ksi-go/pkg/ksierrors"
	"github.com/certen/ksi-go/pkg/signature"
)

// testPKI builds a self-signed root and a leaf certificate issued by it,
// returning the leaf cert, its private key, and a pool trusting the root.
func testPKI(t *testing.T) (*x509.Certificate, *rsa.PrivateKey, *x509.CertPool) {
	t.Helper()

	rootKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	rootTemplate := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "test root"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	rootDER, err := x509.CreateCertificate(rand.Reader, rootTemplate, rootTemplate, &rootKey.PublicKey, rootKey)
	require.NoError(t, err)
	rootCert, err := x509.ParseCertificate(rootDER)
	require.NoError(t, err)

	leafKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	leafTemplate := &x509.Certificate{
		SerialNumber: big.NewInt(2),
		Subject:      pkix.Name{CommonName: "test leaf"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	leafDER, err := x509.CreateCertificate(rand.Reader, leafTemplate, rootCert, &leafKey.PublicKey, rootKey)
	require.NoError(t, err)
	leafCert, err := x509.ParseCertificate(leafDER)
	require.NoError(t, err)

	pool := x509.NewCertPool()
	pool.AddCert(rootCert)

	return leafCert, leafKey, pool
}

func signPublishedData(t *testing.T, key *rsa.PrivateKey, published signature.PublishedData) []byte {
	t.Helper()
	msg := publishedDataBytes(published)
	digest := sha256.Sum256(msg)
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest[:])
	require.NoError(t, err)
	return sig
}

func testPublishedData(t *testing.T) signature.PublishedData {
	t.Helper()
	digest := make([]byte, 32)
	for i := range digest {
		digest[i] = byte(i)
	}
	im, err := imprint.New(0x01, digest)
	require.NoError(t, err)
	return signature.PublishedData{PublicationTime: 1700000000, PublishedHash: im}
}

func TestX509VerifierAcceptsValidSignature(t *testing.T) {
	leaf, leafKey, pool := testPKI(t)
	published := testPublishedData(t)
	sig := signPublishedData(t, leafKey, published)

	v := NewX509Verifier(pool, func(id []byte) (*x509.Certificate, error) { return leaf, nil })
	require.NoError(t, v.Verify(published, sig, []byte("cert-id"), "SHA256-RSA"))
}

func TestX509VerifierRejectsTamperedSignature(t *testing.T) {
	leaf, leafKey, pool := testPKI(t)
	published := testPublishedData(t)
	sig := signPublishedData(t, leafKey, published)
	sig[0] ^= 0xFF

	v := NewX509Verifier(pool, func(id []byte) (*x509.Certificate, error) { return leaf, nil })
	err := v.Verify(published, sig, []byte("cert-id"), "SHA256-RSA")
	require.Error(t, err)
	require.Equal(t, ksierrors.InvalidPkiSignature, ksierrors.CodeOf(err))
}

func TestX509VerifierRejectsUntrustedCertificate(t *testing.T) {
	leaf, leafKey, _ := testPKI(t)
	published := testPublishedData(t)
	sig := signPublishedData(t, leafKey, published)

	emptyPool := x509.NewCertPool()
	v := NewX509Verifier(emptyPool, func(id []byte) (*x509.Certificate, error) { return leaf, nil })
	err := v.Verify(published, sig, []byte("cert-id"), "SHA256-RSA")
	require.Error(t, err)
	require.Equal(t, ksierrors.PkiCertificateNotTrusted, ksierrors.CodeOf(err))
}

func TestX509VerifierRejectsUnresolvableCertID(t *testing.T) {
	_, _, pool := testPKI(t)
	published := testPublishedData(t)

	v := NewX509Verifier(pool, func(id []byte) (*x509.Certificate, error) {
		return nil, ksierrors.New(ksierrors.InvalidArgument, "unknown cert id")
	})
	err := v.Verify(published, []byte("sig"), []byte("missing"), "SHA256-RSA")
	require.Error(t, err)
	require.Equal(t, ksierrors.PkiCertificateNotTrusted, ksierrors.CodeOf(err))
}

func TestX509VerifierRejectsUnsupportedAlgorithm(t *testing.T) {
	leaf, leafKey, pool := testPKI(t)
	published := testPublishedData(t)
	sig := signPublishedData(t, leafKey, published)

	v := NewX509Verifier(pool, func(id []byte) (*x509.Certificate, error) { return leaf, nil })
	err := v.Verify(published, sig, []byte("cert-id"), "DSA-SHA1")
	require.Error(t, err)
	require.Equal(t, ksierrors.InvalidArgument, ksierrors.CodeOf(err))
}
