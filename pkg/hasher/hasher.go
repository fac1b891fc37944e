// Package hasher declares the Hasher contract that the hash-chain engine
// and PDU HMAC computation depend on, without fixing a concrete digest
// implementation (spec §1 explicitly keeps "concrete hash primitives" out
// of the core — callers wire in a backend from pkg/hashref or their own).
package hasher

import "github.com/certen/ksi-go/pkg/imprint"

// Hasher is a streaming digest over one of the algorithms named in
// imprint's registry.
type Hasher interface {
	// Update feeds more bytes into the running digest.
	Update(b []byte) error
	// Finalize produces the algorithm-tagged Imprint and invalidates the
	// Hasher for further Update calls.
	Finalize() (imprint.Imprint, error)
}

// Opener opens a fresh Hasher for the given algorithm id. Implementations
// return UnavailableHashAlgorithm for ids they cannot compute.
type Opener interface {
	Open(algorithm byte) (Hasher, error)
}

// Imprint is a convenience one-shot helper: open a hasher, feed all of b,
// finalize.
func Imprint(o Opener, algorithm byte, b []byte) (imprint.Imprint, error) {
	h, err := o.Open(algorithm)
	if err != nil {
		return imprint.Imprint{}, err
	}
	if err := h.Update(b); err != nil {
		return imprint.Imprint{}, err
	}
	return h.Finalize()
}
