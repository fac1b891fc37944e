package tlv

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/certen/ksi-go/pkg/ksierrors"
)

func TestParseTlv8(t *testing.T) {
	b := []byte{0x07, 0x03, 0x01, 0x02, 0x03}
	got, err := Parse(b)
	require.NoError(t, err)
	require.Equal(t, uint16(7), got.Tag)
	require.False(t, got.NonCritical)
	require.False(t, got.Forwardable)
	raw, err := got.Raw()
	require.NoError(t, err)
	require.Equal(t, []byte{0x01, 0x02, 0x03}, raw)
}

func TestParseTlv16(t *testing.T) {
	b := []byte{0x81, 0x00, 0x00, 0x04, 0xDE, 0xAD, 0xBE, 0xEF}
	got, err := Parse(b)
	require.NoError(t, err)
	require.Equal(t, uint16(256), got.Tag)
	raw, err := got.Raw()
	require.NoError(t, err)
	require.Equal(t, []byte{0xDE, 0xAD, 0xBE, 0xEF}, raw)
}

func TestRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		tlv  func() (*Tlv, error)
	}{
		{"raw-short", func() (*Tlv, error) { return NewRaw(7, false, false, []byte{1, 2, 3}) }},
		{"raw-noncritical-forwardable", func() (*Tlv, error) { return NewRaw(1, true, true, []byte("hello")) }},
		{"uint", func() (*Tlv, error) { return NewUint(3, false, false, 1234567) }},
		{"uint-zero", func() (*Tlv, error) { return NewUint(3, false, false, 0) }},
		{"nested", func() (*Tlv, error) {
			a, err := NewRaw(1, false, false, []byte{0xAA})
			if err != nil {
				return nil, err
			}
			bb, err := NewUint(2, false, false, 42)
			if err != nil {
				return nil, err
			}
			return NewNested(0x100, false, false, []*Tlv{a, bb})
		}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			orig, err := c.tlv()
			require.NoError(t, err)
			wire, err := Serialize(orig)
			require.NoError(t, err)
			parsed, err := Parse(wire)
			require.NoError(t, err)

			if orig.Kind == KindNested {
				require.NoError(t, Cast(parsed, KindNested))
			}
			require.Equal(t, orig.Tag, parsed.Tag)
			require.Equal(t, orig.NonCritical, parsed.NonCritical)
			require.Equal(t, orig.Forwardable, parsed.Forwardable)

			reSerialized, err := Serialize(parsed)
			require.NoError(t, err)
			require.True(t, bytes.Equal(wire, reSerialized))
		})
	}
}

func TestMinimalHeaderChoice(t *testing.T) {
	// tag<=0x1F and length<=0xFF must serialize as TLV8 (2-byte header).
	small, err := NewRaw(5, false, false, bytes.Repeat([]byte{0x01}, 0xFF))
	require.NoError(t, err)
	wire, err := Serialize(small)
	require.NoError(t, err)
	require.Equal(t, byte(0), wire[0]&0x80, "expected TLV8 form")
	require.Len(t, wire, 2+0xFF)

	// tag>0x1F forces TLV16 even with a tiny payload.
	bigTag, err := NewRaw(0x20, false, false, []byte{0x01})
	require.NoError(t, err)
	wire2, err := Serialize(bigTag)
	require.NoError(t, err)
	require.Equal(t, byte(0x80), wire2[0]&0x80, "expected TLV16 form")

	// length>0xFF forces TLV16 even with a small tag.
	bigLen, err := NewRaw(5, false, false, bytes.Repeat([]byte{0x02}, 0x100))
	require.NoError(t, err)
	wire3, err := Serialize(bigLen)
	require.NoError(t, err)
	require.Equal(t, byte(0x80), wire3[0]&0x80, "expected TLV16 form")
}

func TestUintMinimalityRejectsLeadingZero(t *testing.T) {
	// TLV8, tag 9, payload [0x00, 0x01] - a non-minimal 2-byte encoding of 1.
	b := []byte{0x09, 0x02, 0x00, 0x01}
	parsed, err := Parse(b)
	require.NoError(t, err)
	_, err = GetUint(parsed)
	require.Error(t, err)
	require.Equal(t, ksierrors.InvalidFormat, ksierrors.CodeOf(err))
}

func TestUintZeroIsEmptyPayload(t *testing.T) {
	z, err := NewUint(9, false, false, 0)
	require.NoError(t, err)
	wire, err := Serialize(z)
	require.NoError(t, err)
	require.Equal(t, []byte{0x09, 0x00}, wire)

	parsed, err := Parse(wire)
	require.NoError(t, err)
	v, err := GetUint(parsed)
	require.NoError(t, err)
	require.Equal(t, uint64(0), v)
}

func TestTruncatedHeaderFails(t *testing.T) {
	_, err := Parse([]byte{0x07})
	require.Error(t, err)
	require.Equal(t, ksierrors.InvalidFormat, ksierrors.CodeOf(err))
}

func TestTruncatedPayloadFails(t *testing.T) {
	_, err := Parse([]byte{0x07, 0x05, 0x01, 0x02})
	require.Error(t, err)
	require.Equal(t, ksierrors.InvalidFormat, ksierrors.CodeOf(err))
}

func TestTrailingBytesAtTopLevelFails(t *testing.T) {
	_, err := Parse([]byte{0x07, 0x01, 0xAA, 0xBB})
	require.Error(t, err)
	require.Equal(t, ksierrors.InvalidFormat, ksierrors.CodeOf(err))
}

func TestCastRawToNestedRejectsMalformedPayload(t *testing.T) {
	// Payload claims a TLV8 header with length 10 but only has 1 byte.
	t1, err := NewRaw(1, false, false, []byte{0x01, 0x0A, 0xFF})
	require.NoError(t, err)
	err = Cast(t1, KindNested)
	require.Error(t, err)
	require.Equal(t, ksierrors.InvalidFormat, ksierrors.CodeOf(err))
}

func TestCastNestedToRawThenBack(t *testing.T) {
	child, err := NewRaw(2, false, false, []byte{0x01})
	require.NoError(t, err)
	parent, err := NewNested(3, false, false, []*Tlv{child})
	require.NoError(t, err)

	require.NoError(t, Cast(parent, KindRaw))
	raw, err := parent.Raw()
	require.NoError(t, err)
	require.True(t, len(raw) > 0)

	require.NoError(t, Cast(parent, KindNested))
	children, err := parent.Nested()
	require.NoError(t, err)
	require.Len(t, children, 1)
	require.Equal(t, uint16(2), children[0].Tag)
}

func TestAppendReplaceRemoveNested(t *testing.T) {
	a, _ := NewRaw(1, false, false, []byte{0x01})
	b, _ := NewRaw(2, false, false, []byte{0x02})
	parent, err := NewNested(3, false, false, []*Tlv{a})
	require.NoError(t, err)

	require.NoError(t, AppendNested(parent, b))
	children, _ := parent.Nested()
	require.Len(t, children, 2)

	c, _ := NewRaw(4, false, false, []byte{0x03})
	require.NoError(t, ReplaceNested(parent, 0, c))
	children, _ = parent.Nested()
	require.Equal(t, uint16(4), children[0].Tag)

	require.NoError(t, RemoveNested(parent, 0))
	children, _ = parent.Nested()
	require.Len(t, children, 1)
	require.Equal(t, uint16(2), children[0].Tag)
}

func TestCloneIsIndependent(t *testing.T) {
	child, _ := NewRaw(2, false, false, []byte{0x01})
	parent, err := NewNested(3, false, false, []*Tlv{child})
	require.NoError(t, err)

	cloned, err := Clone(parent)
	require.NoError(t, err)

	require.NoError(t, AppendNested(parent, child))
	origChildren, _ := parent.Nested()
	clonedChildren, _ := cloned.Nested()
	require.Len(t, origChildren, 2)
	require.Len(t, clonedChildren, 1)
}

func TestDumpProducesIndentedForm(t *testing.T) {
	child, _ := NewRaw(2, false, false, []byte{0xAB})
	parent, _ := NewNested(3, false, false, []*Tlv{child})
	out := parent.Dump(0)
	require.Contains(t, out, "TLV[0x003]")
	require.Contains(t, out, "TLV[0x002]")
}
