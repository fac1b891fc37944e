// Package hashchain implements the aggregation and calendar hash-chain
// folds and the calendar-to-aggregation time derivation (spec §4.2).
//
// Grounded on pkg/merkle/tree.go's hashPair/level-by-level fold and
// pkg/merkle/receipt.go's Start-through-Entries-to-Anchor walk, generalized
// to KSI's direction + level-correction + three-way sibling content model.
package hashchain

import (
	"github.com/certen/ksi-go/pkg/hasher"
	"github.com/certen/ksi-go/pkg/imprint"
	"github.com/certen/ksi-go/pkg/ksierrors"
)

// Direction is which side of the running accumulator the sibling sits on.
type Direction int

const (
	Left Direction = iota
	Right
)

// ContentKind is which of the three sibling content forms a Link carries.
type ContentKind int

const (
	ContentImprint ContentKind = iota
	ContentMetaHash
	ContentMetaData
)

// Link is one hash-chain step (spec §3 "Hash-chain link"): a direction, an
// optional non-negative level correction, and exactly one sibling content
// form.
type Link struct {
	Direction       Direction
	LevelCorrection int

	Kind ContentKind

	// SiblingImprint is used when Kind == ContentImprint.
	SiblingImprint imprint.Imprint
	// MetaHashInput is hashed (with the chain's current algorithm) to
	// produce the sibling imprint when Kind == ContentMetaHash.
	MetaHashInput []byte
	// MetaDataOctets are treated AS the sibling imprint's wire bytes
	// directly (no hashing) when Kind == ContentMetaData.
	MetaDataOctets []byte
}

func siblingImprint(o hasher.Opener, l Link, algorithm byte) (imprint.Imprint, error) {
	switch l.Kind {
	case ContentImprint:
		return l.SiblingImprint, nil
	case ContentMetaHash:
		return hasher.Imprint(o, algorithm, l.MetaHashInput)
	case ContentMetaData:
		return imprint.Parse(l.MetaDataOctets)
	default:
		return imprint.Imprint{}, ksierrors.New(ksierrors.InvalidFormat, "link has no content form")
	}
}

// FoldResult is the output of an aggregation-chain fold: the final
// accumulator and the final level reached.
type FoldResult struct {
	Output imprint.Imprint
	Level  int
}

// FoldAggregation folds an ordered aggregation-chain link list starting
// from inputHash at startLevel (spec §4.2.1). startLevel is 0 for the
// lowest chain in a signature, or the previous chain's end-level otherwise.
func FoldAggregation(o hasher.Opener, links []Link, inputHash imprint.Imprint, startLevel int, algorithm byte) (FoldResult, error) {
	acc := inputHash
	level := startLevel
	for _, l := range links {
		if l.LevelCorrection > 255 {
			return FoldResult{}, ksierrors.New(ksierrors.InvalidFormat, "chain level out of range")
		}
		level = level + l.LevelCorrection + 1
		if level > 255 {
			return FoldResult{}, ksierrors.New(ksierrors.InvalidFormat, "chain level out of range")
		}

		sibling, err := siblingImprint(o, l, algorithm)
		if err != nil {
			return FoldResult{}, err
		}

		h, err := o.Open(algorithm)
		if err != nil {
			return FoldResult{}, err
		}
		if err := feedStep(h, l.Direction, acc, sibling, level); err != nil {
			return FoldResult{}, err
		}
		acc, err = h.Finalize()
		if err != nil {
			return FoldResult{}, err
		}
	}
	return FoldResult{Output: acc, Level: level}, nil
}

// FoldCalendar folds an ordered calendar-chain link list (spec §4.2.2). The
// hash algorithm starts as inputHash's own algorithm and switches to a
// link's sibling imprint algorithm whenever a Left link is encountered.
// There is no level correction; the level byte appended each step starts
// at 0 and is never incremented (calendar links encode shape, not height).
func FoldCalendar(o hasher.Opener, links []Link, inputHash imprint.Imprint) (imprint.Imprint, error) {
	acc := inputHash
	algorithm := inputHash.Algorithm
	const level = 0
	for _, l := range links {
		sibling, err := siblingImprint(o, l, algorithm)
		if err != nil {
			return imprint.Imprint{}, err
		}
		if l.Direction == Left {
			algorithm = sibling.Algorithm
		}

		h, err := o.Open(algorithm)
		if err != nil {
			return imprint.Imprint{}, err
		}
		if err := feedStep(h, l.Direction, acc, sibling, level); err != nil {
			return imprint.Imprint{}, err
		}
		acc, err = h.Finalize()
		if err != nil {
			return imprint.Imprint{}, err
		}
	}
	return acc, nil
}

func feedStep(h hasher.Hasher, dir Direction, acc, sibling imprint.Imprint, level int) error {
	first, second := acc, sibling
	if dir == Right {
		first, second = sibling, acc
	}
	if err := h.Update(first.Bytes()); err != nil {
		return err
	}
	if err := h.Update(second.Bytes()); err != nil {
		return err
	}
	return h.Update([]byte{byte(level)})
}

// highBit returns the greatest power of two <= n.
func highBit(n int64) int64 {
	if n <= 0 {
		return 0
	}
	var p int64 = 1
	for p<<1 <= n {
		p <<= 1
	}
	return p
}

// AggregationTime derives the aggregation second from a calendar chain's
// link directions and the publication time the chain resolves to (spec
// §4.2.3). directions is the chain's links in their declared (stored)
// order; the derivation walks them in reverse.
func AggregationTime(publicationTime int64, directions []Direction) (int64, error) {
	if publicationTime <= 0 {
		return 0, ksierrors.New(ksierrors.InvalidArgument, "publication time must be positive")
	}
	r := publicationTime
	var t int64
	for i := len(directions) - 1; i >= 0; i-- {
		if r <= 0 {
			return 0, ksierrors.New(ksierrors.InvalidFormat, "calendar chain shape inconsistent with publication time")
		}
		hb := highBit(r)
		if directions[i] == Left {
			r = hb - 1
		} else {
			t += hb
			r -= hb
		}
	}
	if r != 0 {
		return 0, ksierrors.New(ksierrors.InvalidFormat, "calendar chain shape inconsistent with publication time")
	}
	return t, nil
}
