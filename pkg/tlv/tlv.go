// Package tlv implements the type-length-value wire codec that underlies
// every on-wire KSI structure: signatures, PDUs, and the publications file.
//
// Grounded on pkg/merkle/tree.go's explicit-length-check, copy-on-read
// buffer discipline and pkg/merkle/receipt.go's fail-closed Validate style
// (named invariants checked in order, no partial results on error).
package tlv

import (
	"encoding/binary"

	"github.com/certen/ksi-go/pkg/ksierrors"
)

// Kind is the payload form a Tlv currently holds. A Tlv holds exactly one
// of these at any time.
type Kind int

const (
	KindRaw Kind = iota
	KindUint
	KindNested
)

// MaxTag is the largest representable 13-bit tag.
const MaxTag = 0x1FFF

// Tlv is one parsed or constructed TLV element (spec §3 "TLV element").
// The payload form is immutable after construction except through Cast,
// which replaces it explicitly.
type Tlv struct {
	Tag         uint16
	NonCritical bool
	Forwardable bool
	Kind        Kind

	raw     []byte
	uintVal uint64
	nested  []*Tlv

	// AbsoluteOffset and ParentRelativeOffset are diagnostic only (spec
	// §4.1): they never participate in verification. -1 means "not
	// recorded" (true for in-memory-constructed Tlvs).
	AbsoluteOffset       int
	ParentRelativeOffset int
}

func checkTag(tag uint16) error {
	if tag > MaxTag {
		return ksierrors.New(ksierrors.InvalidArgument, "tag %d exceeds 13-bit range", tag)
	}
	return nil
}

// NewRaw constructs a Tlv whose payload is an opaque byte string.
func NewRaw(tag uint16, nonCritical, forwardable bool, data []byte) (*Tlv, error) {
	if err := checkTag(tag); err != nil {
		return nil, err
	}
	buf := append([]byte(nil), data...)
	return &Tlv{
		Tag: tag, NonCritical: nonCritical, Forwardable: forwardable,
		Kind: KindRaw, raw: buf,
		AbsoluteOffset: -1, ParentRelativeOffset: -1,
	}, nil
}

// NewUint constructs a Tlv whose payload is a big-endian minimal-length
// unsigned integer (spec §3: "no leading zero byte except value 0 = length
// 0").
func NewUint(tag uint16, nonCritical, forwardable bool, v uint64) (*Tlv, error) {
	if err := checkTag(tag); err != nil {
		return nil, err
	}
	return &Tlv{
		Tag: tag, NonCritical: nonCritical, Forwardable: forwardable,
		Kind: KindUint, uintVal: v,
		AbsoluteOffset: -1, ParentRelativeOffset: -1,
	}, nil
}

// NewNested constructs a Tlv whose payload is an ordered sequence of child
// Tlvs.
func NewNested(tag uint16, nonCritical, forwardable bool, children []*Tlv) (*Tlv, error) {
	if err := checkTag(tag); err != nil {
		return nil, err
	}
	cp := append([]*Tlv(nil), children...)
	return &Tlv{
		Tag: tag, NonCritical: nonCritical, Forwardable: forwardable,
		Kind: KindNested, nested: cp,
		AbsoluteOffset: -1, ParentRelativeOffset: -1,
	}, nil
}

// Raw returns the raw payload bytes. Fails with PayloadTypeMismatch unless
// Kind is KindRaw.
func (t *Tlv) Raw() ([]byte, error) {
	if t.Kind != KindRaw {
		return nil, ksierrors.New(ksierrors.PayloadTypeMismatch, "tag 0x%03x payload is not raw", t.Tag)
	}
	return t.raw, nil
}

// Nested returns the child sequence. Fails with PayloadTypeMismatch unless
// Kind is KindNested.
func (t *Tlv) Nested() ([]*Tlv, error) {
	if t.Kind != KindNested {
		return nil, ksierrors.New(ksierrors.PayloadTypeMismatch, "tag 0x%03x payload is not nested", t.Tag)
	}
	return t.nested, nil
}

func minimalUintBytes(v uint64) []byte {
	if v == 0 {
		return nil
	}
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	i := 0
	for i < 8 && buf[i] == 0 {
		i++
	}
	out := make([]byte, 8-i)
	copy(out, buf[i:])
	return out
}

// payloadBytes computes the serialized payload for t regardless of Kind.
func payloadBytes(t *Tlv) ([]byte, error) {
	switch t.Kind {
	case KindRaw:
		return t.raw, nil
	case KindUint:
		return minimalUintBytes(t.uintVal), nil
	case KindNested:
		var buf []byte
		for _, c := range t.nested {
			cb, err := Serialize(c)
			if err != nil {
				return nil, err
			}
			buf = append(buf, cb...)
		}
		return buf, nil
	default:
		return nil, ksierrors.New(ksierrors.InvalidArgument, "unknown payload kind %d", t.Kind)
	}
}

// Serialize recursively encodes t, choosing the shortest header form per
// element: TLV8 when tag<=0x1F and payload length<=0xFF, TLV16 otherwise.
func Serialize(t *Tlv) ([]byte, error) {
	payload, err := payloadBytes(t)
	if err != nil {
		return nil, err
	}
	if len(payload) > 0xFFFF {
		return nil, ksierrors.New(ksierrors.BufferOverflow, "tag 0x%03x payload length %d exceeds TLV16 limit", t.Tag, len(payload))
	}
	var flags byte
	if t.NonCritical {
		flags |= 0x40
	}
	if t.Forwardable {
		flags |= 0x20
	}
	length := len(payload)
	if t.Tag <= 0x1F && length <= 0xFF {
		out := make([]byte, 2+length)
		out[0] = flags | byte(t.Tag)
		out[1] = byte(length)
		copy(out[2:], payload)
		return out, nil
	}
	out := make([]byte, 4+length)
	out[0] = 0x80 | flags | byte(t.Tag>>8)
	out[1] = byte(t.Tag)
	binary.BigEndian.PutUint16(out[2:4], uint16(length))
	copy(out[4:], payload)
	return out, nil
}

// parseOne parses exactly one TLV element starting at b[0], returning the
// element and the number of bytes it consumed.
func parseOne(b []byte, absOffset, parentRelOffset int) (*Tlv, int, error) {
	if len(b) < 2 {
		return nil, 0, ksierrors.New(ksierrors.InvalidFormat, "truncated TLV header")
	}
	b0 := b[0]
	is16 := b0&0x80 != 0
	nonCritical := b0&0x40 != 0
	forwardable := b0&0x20 != 0

	var tag uint16
	var length int
	var headerLen int
	if is16 {
		if len(b) < 4 {
			return nil, 0, ksierrors.New(ksierrors.InvalidFormat, "truncated TLV16 header")
		}
		tag = (uint16(b0&0x1F) << 8) | uint16(b[1])
		length = int(binary.BigEndian.Uint16(b[2:4]))
		headerLen = 4
	} else {
		tag = uint16(b0 & 0x1F)
		length = int(b[1])
		headerLen = 2
	}
	total := headerLen + length
	if len(b) < total {
		return nil, 0, ksierrors.New(ksierrors.InvalidFormat, "truncated TLV payload: need %d have %d", total, len(b))
	}
	raw := append([]byte(nil), b[headerLen:total]...)
	t := &Tlv{
		Tag: tag, NonCritical: nonCritical, Forwardable: forwardable,
		Kind: KindRaw, raw: raw,
		AbsoluteOffset: absOffset, ParentRelativeOffset: parentRelOffset,
	}
	return t, total, nil
}

// Parse decodes exactly one top-level TLV element from b. Any bytes
// remaining after the element is consumed are a format error: top-level
// input must contain exactly one TLV.
func Parse(b []byte) (*Tlv, error) {
	t, consumed, err := parseOne(b, 0, 0)
	if err != nil {
		return nil, err
	}
	if consumed != len(b) {
		return nil, ksierrors.New(ksierrors.InvalidFormat, "trailing bytes after top-level TLV: %d", len(b)-consumed)
	}
	return t, nil
}

// parseSequence parses b as a back-to-back sequence of TLV elements,
// requiring it to consume every byte.
func parseSequence(b []byte, absBase int) ([]*Tlv, error) {
	var out []*Tlv
	offset := 0
	for offset < len(b) {
		base := absBase
		if base >= 0 {
			base += offset
		}
		child, consumed, err := parseOne(b[offset:], base, offset)
		if err != nil {
			return nil, err
		}
		out = append(out, child)
		offset += consumed
	}
	return out, nil
}

// GetUint interprets t's payload as a big-endian unsigned integer,
// requiring minimal-length encoding (spec §8 "Uint minimality").
func GetUint(t *Tlv) (uint64, error) {
	if t.Kind == KindUint {
		return t.uintVal, nil
	}
	if t.Kind != KindRaw {
		return 0, ksierrors.New(ksierrors.PayloadTypeMismatch, "tag 0x%03x payload is not a uint", t.Tag)
	}
	raw := t.raw
	if len(raw) > 8 {
		return 0, ksierrors.New(ksierrors.InvalidFormat, "uint payload too long: %d bytes", len(raw))
	}
	if len(raw) > 0 && raw[0] == 0 {
		return 0, ksierrors.New(ksierrors.InvalidFormat, "uint payload has a leading zero byte")
	}
	var buf [8]byte
	copy(buf[8-len(raw):], raw)
	return binary.BigEndian.Uint64(buf[:]), nil
}

// Clone produces a fully independent copy of t that owns its own buffers
// (spec §3 "Ownership": clone = byte copy + re-parse).
func Clone(t *Tlv) (*Tlv, error) {
	b, err := Serialize(t)
	if err != nil {
		return nil, err
	}
	c, err := Parse(b)
	if err != nil {
		return nil, err
	}
	switch t.Kind {
	case KindNested:
		if err := Cast(c, KindNested); err != nil {
			return nil, err
		}
	case KindUint:
		v, err := GetUint(c)
		if err != nil {
			return nil, err
		}
		c.Kind = KindUint
		c.uintVal = v
		c.raw = nil
	}
	return c, nil
}
