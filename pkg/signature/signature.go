// Package signature is the typed view over a parsed signature TLV
// container (spec §3 "Signature", §4.3 "Signature Model"): aggregation and
// calendar hash chains, calendar-authentication and publication records,
// and the legacy RFC-3161 compatibility record, with structural invariants
// enforced at construction time.
//
// Grounded on pkg/verification/unified_verifier.go's ProofBundle /
// ChainedProofBundle nesting style: typed structs mirroring a layered
// proof, each independently constructible and validated.
package signature

import (
	"github.com/certen/ksi-go/pkg/hasher"
	"github.com/certen/ksi-go/pkg/hashchain"
	"github.com/certen/ksi-go/pkg/imprint"
	"github.com/certen/ksi-go/pkg/ksierrors"
	"github.com/certen/ksi-go/pkg/tlv"
)

// PublishedData is (publication_time, published_hash) — spec §3
// "Publication record".
type PublishedData struct {
	PublicationTime int64
	PublishedHash   imprint.Imprint
}

// AggregationChain is one aggregation hash chain (spec §3).
type AggregationChain struct {
	Links           []hashchain.Link
	AggregationTime int64
	ChainIndex      []uint64
	InputHash       imprint.Imprint
	HashAlgorithm   byte
}

// Directions extracts the link directions in stored order, for use with
// hashchain.AggregationTime-style derivations on chains that carry them.
func (c AggregationChain) Directions() []hashchain.Direction {
	out := make([]hashchain.Direction, len(c.Links))
	for i, l := range c.Links {
		out[i] = l.Direction
	}
	return out
}

// CalendarChain is the calendar hash chain (spec §3).
type CalendarChain struct {
	Links           []hashchain.Link
	PublicationTime int64
	AggregationTime int64
	InputHash       imprint.Imprint
}

func (c CalendarChain) Directions() []hashchain.Direction {
	out := make([]hashchain.Direction, len(c.Links))
	for i, l := range c.Links {
		out[i] = l.Direction
	}
	return out
}

// CalendarAuthRecord is the calendar authentication record (spec §3).
type CalendarAuthRecord struct {
	PublishedData         PublishedData
	PkiSignature          []byte
	PkiCertID             []byte
	PkiSignatureAlgorithm string
}

// PublicationRecord is (published_data, zero-or-more references) — spec §3.
type PublicationRecord struct {
	PublishedData PublishedData
	References    []string
}

// RFC3161Record is the legacy RFC-3161 timestamp compatibility record. Its
// ASN.1 contents are out of scope (spec §1 non-goal: concrete crypto
// primitives); we preserve it as an opaque TLV for round-trip fidelity
// only, per SPEC_FULL.md §C.2.
type RFC3161Record struct {
	Raw *tlv.Tlv
}

// Signature is the parsed, invariant-checked signature (spec §3, §4.3).
type Signature struct {
	AggregationChains  []AggregationChain // low to high
	CalendarChain      *CalendarChain
	CalendarAuthRecord *CalendarAuthRecord
	PublicationRecord  *PublicationRecord
	RFC3161            *RFC3161Record
}

// New constructs a Signature and checks the structural invariants of spec
// §3: at least one aggregation chain; if a calendar chain is present,
// exactly one of {calendar-auth record, publication record} is also
// present; the aggregation chains' chain indices form a consistent path.
func New(chains []AggregationChain, cal *CalendarChain, calAuth *CalendarAuthRecord, pub *PublicationRecord, rfc3161 *RFC3161Record) (*Signature, error) {
	if len(chains) == 0 {
		return nil, ksierrors.New(ksierrors.InvalidFormat, "signature must contain at least one aggregation chain")
	}
	if cal != nil {
		if (calAuth != nil) == (pub != nil) {
			return nil, ksierrors.New(ksierrors.InvalidFormat,
				"signature with a calendar chain must carry exactly one of calendar-auth record or publication record")
		}
	} else {
		if calAuth != nil || pub != nil {
			return nil, ksierrors.New(ksierrors.InvalidFormat,
				"calendar-auth or publication record present without a calendar chain")
		}
	}
	if err := checkChainIndexPath(chains); err != nil {
		return nil, err
	}
	return &Signature{
		AggregationChains:  chains,
		CalendarChain:      cal,
		CalendarAuthRecord: calAuth,
		PublicationRecord:  pub,
		RFC3161:            rfc3161,
	}, nil
}

// checkChainIndexPath verifies each subsequent (higher) chain's index is a
// prefix of the previous (lower) chain's index.
func checkChainIndexPath(chains []AggregationChain) error {
	for i := 1; i < len(chains); i++ {
		prev := chains[i-1].ChainIndex
		cur := chains[i].ChainIndex
		if len(cur) > len(prev) {
			return ksierrors.New(ksierrors.InvalidFormat, "aggregation chain %d index is not a prefix of chain %d index", i, i-1)
		}
		for j := range cur {
			if cur[j] != prev[j] {
				return ksierrors.New(ksierrors.InvalidFormat, "aggregation chain %d index is not a prefix of chain %d index", i, i-1)
			}
		}
	}
	return nil
}

// SigningTime is the aggregation time of the lowest (first) aggregation
// chain.
func (s *Signature) SigningTime() int64 {
	return s.AggregationChains[0].AggregationTime
}

// InputHash is the first aggregation chain's declared input hash.
func (s *Signature) InputHash() imprint.Imprint {
	return s.AggregationChains[0].InputHash
}

// DocumentHashAlgorithm is the hash algorithm the signed document was
// digested with, i.e. InputHash's algorithm.
func (s *Signature) DocumentHashAlgorithm() byte {
	return s.InputHash().Algorithm
}

// CalendarRoot folds the calendar chain on demand. Returns
// (zero, false, nil) if the signature carries no calendar chain.
func (s *Signature) CalendarRoot(o hasher.Opener) (imprint.Imprint, bool, error) {
	if s.CalendarChain == nil {
		return imprint.Imprint{}, false, nil
	}
	root, err := hashchain.FoldCalendar(o, s.CalendarChain.Links, s.CalendarChain.InputHash)
	if err != nil {
		return imprint.Imprint{}, false, err
	}
	return root, true, nil
}

// Extend produces a new Signature carrying the same aggregation chains, a
// replacement calendar chain, and the given publication record in place of
// any calendar-auth record (spec §4.3 "Extension"). newCal's
// PublicationTime must be >= the signature's signing time. The receiver is
// left unmodified.
func (s *Signature) Extend(newCal CalendarChain, pub PublicationRecord) (*Signature, error) {
	if newCal.PublicationTime < s.SigningTime() {
		return nil, ksierrors.New(ksierrors.ExtendWrongCalChain,
			"extension target publication time %d precedes signing time %d", newCal.PublicationTime, s.SigningTime())
	}
	chains := make([]AggregationChain, len(s.AggregationChains))
	copy(chains, s.AggregationChains)
	return New(chains, &newCal, nil, &pub, s.RFC3161)
}
