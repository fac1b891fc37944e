// Package imprint defines the (hash-algorithm-id, digest) pair that is the
// atomic unit the hash-chain engine and the TLV codec exchange (spec §3
// "Imprint"), plus the hash-algorithm registry that lets the rest of the
// core classify an algorithm id as available/unavailable/trusted/deprecated
// without pulling a concrete Hasher implementation into the core (spec §1
// non-goal: "concrete hash primitives").
package imprint

import (
	"bytes"
	"fmt"

	"github.com/certen/ksi-go/pkg/ksierrors"
)

// Algorithm describes one entry of the KSI hash-algorithm registry
// recovered from the original's fixed algorithm table (SPEC_FULL.md §C.1).
type Algorithm struct {
	ID             byte
	Name           string
	DigestLength   int
	Trusted        bool
	DeprecatedSince int // unix seconds, 0 if never deprecated
}

// Registry of known KSI hash algorithms. SHA-1 and RIPEMD-160 are carried
// for historical signature compatibility but are not Trusted by default.
var registry = map[byte]Algorithm{
	0x00: {ID: 0x00, Name: "SHA-1", DigestLength: 20, Trusted: false, DeprecatedSince: 1467331200},
	0x01: {ID: 0x01, Name: "SHA-256", DigestLength: 32, Trusted: true},
	0x02: {ID: 0x02, Name: "RIPEMD-160", DigestLength: 20, Trusted: false},
	0x03: {ID: 0x03, Name: "SHA-224", DigestLength: 28, Trusted: true},
	0x04: {ID: 0x04, Name: "SHA-384", DigestLength: 48, Trusted: true},
	0x05: {ID: 0x05, Name: "SHA-512", DigestLength: 64, Trusted: true},
	0x07: {ID: 0x07, Name: "SHA3-256", DigestLength: 32, Trusted: true},
	0x08: {ID: 0x08, Name: "SM3", DigestLength: 32, Trusted: true},
	0x40: {ID: 0x40, Name: "Keccak-256", DigestLength: 32, Trusted: true},
}

// Lookup resolves an algorithm id to its registry entry. An id absent from
// the table is UnavailableHashAlgorithm.
func Lookup(id byte) (Algorithm, error) {
	a, ok := registry[id]
	if !ok {
		return Algorithm{}, ksierrors.New(ksierrors.UnavailableHashAlgorithm, "unknown hash algorithm id 0x%02X", id)
	}
	return a, nil
}

// CheckTrusted resolves id and additionally fails with UntrustedHashAlgorithm
// if the algorithm is known but not trusted (deprecated or historically
// weak), unless allowDeprecated is set.
func CheckTrusted(id byte, allowDeprecated bool) (Algorithm, error) {
	a, err := Lookup(id)
	if err != nil {
		return Algorithm{}, err
	}
	if !a.Trusted && !allowDeprecated {
		return Algorithm{}, ksierrors.New(ksierrors.UntrustedHashAlgorithm, "hash algorithm %s is not trusted", a.Name)
	}
	return a, nil
}

// Imprint is an algorithm-tagged digest: one algorithm byte followed by
// exactly DigestLength(algorithm) payload bytes (spec §3).
type Imprint struct {
	Algorithm byte
	Digest    []byte
}

// New builds an Imprint, validating the digest length against the registry.
func New(algorithm byte, digest []byte) (Imprint, error) {
	a, err := Lookup(algorithm)
	if err != nil {
		return Imprint{}, err
	}
	if len(digest) != a.DigestLength {
		return Imprint{}, ksierrors.New(ksierrors.InvalidFormat,
			"imprint digest length %d does not match %s (want %d)", len(digest), a.Name, a.DigestLength)
	}
	d := make([]byte, len(digest))
	copy(d, digest)
	return Imprint{Algorithm: algorithm, Digest: d}, nil
}

// Parse reads an Imprint from its wire form: one algorithm byte followed by
// the algorithm's fixed digest length.
func Parse(b []byte) (Imprint, error) {
	if len(b) < 1 {
		return Imprint{}, ksierrors.New(ksierrors.InvalidFormat, "imprint too short")
	}
	a, err := Lookup(b[0])
	if err != nil {
		return Imprint{}, err
	}
	want := 1 + a.DigestLength
	if len(b) != want {
		return Imprint{}, ksierrors.New(ksierrors.InvalidFormat,
			"imprint length %d does not match expected %d for %s", len(b), want, a.Name)
	}
	return New(b[0], b[1:])
}

// Bytes serializes the Imprint to its wire form.
func (im Imprint) Bytes() []byte {
	out := make([]byte, 0, 1+len(im.Digest))
	out = append(out, im.Algorithm)
	out = append(out, im.Digest...)
	return out
}

// Equal reports whether two imprints carry the same algorithm and digest.
func (im Imprint) Equal(other Imprint) bool {
	return im.Algorithm == other.Algorithm && bytes.Equal(im.Digest, other.Digest)
}

func (im Imprint) String() string {
	a, err := Lookup(im.Algorithm)
	name := "UNKNOWN"
	if err == nil {
		name = a.Name
	}
	return fmt.Sprintf("%s:%x", name, im.Digest)
}

// IsZero reports whether the Imprint is the empty value.
func (im Imprint) IsZero() bool {
	return im.Algorithm == 0 && im.Digest == nil
}
