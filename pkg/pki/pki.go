// Package pki declares the PkiVerifier contract spec §1 names as an
// external collaborator ("PKI trust store / X.509") plus a default
// crypto/x509-based implementation.
//
// DESIGN.md justified stdlib exception: no repo in the retrieval pack
// implements PKCS#7/CMS signature verification over an X.509 trust store;
// the nearest analogues (go-ethereum, gnark) do elliptic-curve/zk
// signatures, not CMS, so crypto/x509 is the only reasonable tool here.
package pki

import (
	"crypto/x509"
	"time"

	"github.com/certen/ksi-go/pkg/signature"

	"github.com/certen/ksi-go/pkg/ksierrors"
)

// Verifier is the calendar-auth / publications-file trust collaborator
// named by spec §1 and used by verifier.PkiVerifier.
type Verifier interface {
	Verify(published signature.PublishedData, sig, certID []byte, algorithm string) error
}

// X509Verifier is the default Verifier backed by a fixed certificate pool.
// It validates the signer certificate's chain to Roots and then checks the
// signature bytes with the certificate's public key via x509's
// CheckSignature; no CMS structure is parsed.
type X509Verifier struct {
	Roots *x509.CertPool
	// CertByID resolves a pki_cert_id to the signer certificate, mirroring
	// how a calendar-auth record references a certificate by a short id
	// rather than embedding the full chain.
	CertByID func(id []byte) (*x509.Certificate, error)
	Now      func() time.Time
}

// NewX509Verifier builds an X509Verifier over roots, resolving certificates
// via lookup.
func NewX509Verifier(roots *x509.CertPool, lookup func(id []byte) (*x509.Certificate, error)) *X509Verifier {
	return &X509Verifier{Roots: roots, CertByID: lookup, Now: time.Now}
}

// Verify resolves the signer certificate by certID, checks it chains to
// Roots, and verifies sig over the canonical encoding of published using
// the certificate's public key and the named algorithm.
func (v *X509Verifier) Verify(published signature.PublishedData, sig, certID []byte, algorithm string) error {
	if v.CertByID == nil {
		return ksierrors.New(ksierrors.PkiCertificateNotTrusted, "no certificate resolver configured")
	}
	cert, err := v.CertByID(certID)
	if err != nil {
		return ksierrors.Wrap(ksierrors.PkiCertificateNotTrusted, err, "resolve certificate for id %x", certID)
	}
	now := time.Now
	if v.Now != nil {
		now = v.Now
	}
	opts := x509.VerifyOptions{Roots: v.Roots, CurrentTime: now()}
	if _, err := cert.Verify(opts); err != nil {
		return ksierrors.Wrap(ksierrors.PkiCertificateNotTrusted, err, "certificate %x does not chain to trusted roots", certID)
	}
	msg := publishedDataBytes(published)
	alg, err := signatureAlgorithm(algorithm)
	if err != nil {
		return err
	}
	if err := cert.CheckSignature(alg, msg, sig); err != nil {
		return ksierrors.Wrap(ksierrors.InvalidPkiSignature, err, "signature over published data does not verify")
	}
	return nil
}

func publishedDataBytes(p signature.PublishedData) []byte {
	b := make([]byte, 0, 8+1+len(p.PublishedHash.Digest))
	for i := 7; i >= 0; i-- {
		b = append(b, byte(p.PublicationTime>>(8*i)))
	}
	b = append(b, p.PublishedHash.Bytes()...)
	return b
}

func signatureAlgorithm(name string) (x509.SignatureAlgorithm, error) {
	switch name {
	case "", "SHA256-RSA":
		return x509.SHA256WithRSA, nil
	case "SHA512-RSA":
		return x509.SHA512WithRSA, nil
	case "ECDSA-SHA256":
		return x509.ECDSAWithSHA256, nil
	default:
		return 0, ksierrors.New(ksierrors.InvalidArgument, "unsupported pki signature algorithm %q", name)
	}
}
