package tlv

import "github.com/certen/ksi-go/pkg/ksierrors"

// Cast converts t's payload representation toward target in place. Raw to
// Nested reparses the raw bytes as an adjacent TLV sequence and fails
// (InvalidFormat) unless that sequence consumes the payload exactly.
// Nested to Raw serializes the children and replaces the payload.
// Same-to-same is a no-op (spec §4.1 "cast").
func Cast(t *Tlv, target Kind) error {
	if t.Kind == target {
		return nil
	}
	switch target {
	case KindNested:
		raw, err := rawBytesOf(t)
		if err != nil {
			return err
		}
		base := t.AbsoluteOffset
		if base >= 0 {
			base++ // past this element's own header; approximate, diagnostic only
		}
		children, err := parseSequence(raw, base)
		if err != nil {
			return err
		}
		t.nested = children
		t.raw = nil
		t.uintVal = 0
		t.Kind = KindNested
		return nil
	case KindRaw:
		payload, err := payloadBytes(t)
		if err != nil {
			return err
		}
		t.raw = payload
		t.nested = nil
		t.uintVal = 0
		t.Kind = KindRaw
		return nil
	default:
		return ksierrors.New(ksierrors.InvalidArgument, "unsupported cast target %d", target)
	}
}

func rawBytesOf(t *Tlv) ([]byte, error) {
	switch t.Kind {
	case KindRaw:
		return t.raw, nil
	case KindUint:
		return minimalUintBytes(t.uintVal), nil
	default:
		return nil, ksierrors.New(ksierrors.PayloadTypeMismatch, "tag 0x%03x has no raw byte form", t.Tag)
	}
}

// AppendNested appends child to parent's child sequence. parent must hold
// KindNested.
func AppendNested(parent *Tlv, child *Tlv) error {
	if parent.Kind != KindNested {
		return ksierrors.New(ksierrors.PayloadTypeMismatch, "append requires nested payload")
	}
	parent.nested = append(parent.nested, child)
	return nil
}

// ReplaceNested replaces the child at index. parent must hold KindNested.
func ReplaceNested(parent *Tlv, index int, child *Tlv) error {
	if parent.Kind != KindNested {
		return ksierrors.New(ksierrors.PayloadTypeMismatch, "replace requires nested payload")
	}
	if index < 0 || index >= len(parent.nested) {
		return ksierrors.New(ksierrors.InvalidArgument, "nested index %d out of range (len %d)", index, len(parent.nested))
	}
	parent.nested[index] = child
	return nil
}

// RemoveNested removes the child at index. parent must hold KindNested.
func RemoveNested(parent *Tlv, index int) error {
	if parent.Kind != KindNested {
		return ksierrors.New(ksierrors.PayloadTypeMismatch, "remove requires nested payload")
	}
	if index < 0 || index >= len(parent.nested) {
		return ksierrors.New(ksierrors.InvalidArgument, "nested index %d out of range (len %d)", index, len(parent.nested))
	}
	parent.nested = append(parent.nested[:index], parent.nested[index+1:]...)
	return nil
}
