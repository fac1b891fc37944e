// Package hashref provides reference Hasher backends (SHA-256/384/512,
// RIPEMD-160, Keccak-256) so the core hash-chain engine and CLI have a
// concrete Opener to wire in without the core importing any of them
// directly (spec §1 non-goal).
//
// Grounded on pkg/verification/unified_verifier.go's direct use of
// github.com/ethereum/go-ethereum/crypto.Keccak256Hash for Merkle inclusion
// proofs; RIPEMD-160 is carried via golang.org/x/crypto/ripemd160 because
// the GLOSSARY names RIPEMD as part of KSI's historical algorithm set.
package hashref

import (
	"crypto/sha256"
	"crypto/sha512"
	"hash"

	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // historical KSI algorithm, required for compatibility

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/certen/ksi-go/pkg/hasher"
	"github.com/certen/ksi-go/pkg/imprint"
	"github.com/certen/ksi-go/pkg/ksierrors"
)

// Opener is the reference hasher.Opener backed by the standard library plus
// golang.org/x/crypto/ripemd160 and go-ethereum/crypto.
type Opener struct{}

// NewOpener constructs a reference Opener covering SHA-256/224/384/512,
// RIPEMD-160, and Keccak-256. SHA-1 is not covered: Open returns
// UnavailableHashAlgorithm for it, as for any other id without a backend.
func NewOpener() Opener { return Opener{} }

func (Opener) Open(algorithm byte) (hasher.Hasher, error) {
	a, err := imprint.Lookup(algorithm)
	if err != nil {
		return nil, err
	}
	var h hash.Hash
	switch algorithm {
	case 0x00:
		return nil, ksierrors.New(ksierrors.UnavailableHashAlgorithm, "SHA-1 reference backend not wired (use CheckTrusted(allowDeprecated) paths explicitly)")
	case 0x01:
		h = sha256.New()
	case 0x02:
		h = ripemd160.New()
	case 0x03:
		h = sha256.New224()
	case 0x04:
		h = sha512.New384()
	case 0x05:
		h = sha512.New()
	case 0x40:
		return &keccakHasher{}, nil
	default:
		return nil, ksierrors.New(ksierrors.UnavailableHashAlgorithm, "no reference backend for %s", a.Name)
	}
	return &stdHasher{algorithm: algorithm, h: h}, nil
}

type stdHasher struct {
	algorithm byte
	h         hash.Hash
	done      bool
}

func (s *stdHasher) Update(b []byte) error {
	if s.done {
		return ksierrors.New(ksierrors.InvalidArgument, "hasher already finalized")
	}
	_, err := s.h.Write(b)
	if err != nil {
		return ksierrors.Wrap(ksierrors.CryptoFailure, err, "hash update failed")
	}
	return nil
}

func (s *stdHasher) Finalize() (imprint.Imprint, error) {
	if s.done {
		return imprint.Imprint{}, ksierrors.New(ksierrors.InvalidArgument, "hasher already finalized")
	}
	s.done = true
	return imprint.New(s.algorithm, s.h.Sum(nil))
}

// keccakHasher accumulates bytes and finalizes via go-ethereum's
// Keccak256Hash, which does not expose an incremental hash.Hash, only a
// one-shot sum over the full input.
type keccakHasher struct {
	buf  []byte
	done bool
}

func (k *keccakHasher) Update(b []byte) error {
	if k.done {
		return ksierrors.New(ksierrors.InvalidArgument, "hasher already finalized")
	}
	k.buf = append(k.buf, b...)
	return nil
}

func (k *keccakHasher) Finalize() (imprint.Imprint, error) {
	if k.done {
		return imprint.Imprint{}, ksierrors.New(ksierrors.InvalidArgument, "hasher already finalized")
	}
	k.done = true
	sum := ethcrypto.Keccak256Hash(k.buf)
	return imprint.New(0x40, sum.Bytes())
}
