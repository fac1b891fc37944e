package tlv

import (
	"fmt"
	"strings"
)

// Dump produces the indented diagnostic form named in spec §4.1's
// to_string operation. This is never input to verification — it exists for
// CLI -v output (recovered from the original's KSI_TLV_toString, used by
// its ksi_verify example tool, SPEC_FULL.md §C.3).
func (t *Tlv) Dump(indent int) string {
	var b strings.Builder
	t.dump(&b, indent)
	return b.String()
}

func (t *Tlv) dump(b *strings.Builder, indent int) {
	pad := strings.Repeat("  ", indent)
	fmt.Fprintf(b, "%sTLV[0x%03x]", pad, t.Tag)
	if t.NonCritical {
		b.WriteString(" N")
	}
	if t.Forwardable {
		b.WriteString(" F")
	}
	switch t.Kind {
	case KindRaw:
		fmt.Fprintf(b, " len=%d = %x\n", len(t.raw), t.raw)
	case KindUint:
		fmt.Fprintf(b, " = %d\n", t.uintVal)
	case KindNested:
		b.WriteString(" {\n")
		for _, c := range t.nested {
			c.dump(b, indent+1)
		}
		b.WriteString(pad)
		b.WriteString("}\n")
	}
}
