package signature

import (
	"github.com/certen/ksi-go/pkg/hashchain"
	"github.com/certen/ksi-go/pkg/imprint"
	"github.com/certen/ksi-go/pkg/ksierrors"
	"github.com/certen/ksi-go/pkg/tlv"
)

// TLV tags for the Signature container and its children (this
// implementation's own scheme, built on pkg/tlv, not a contractual wire
// constant).
const (
	tagSignature         uint16 = 0x0800
	tagAggregationChain  uint16 = 0x0801
	tagCalendarChain     uint16 = 0x0802
	tagCalendarAuthRec   uint16 = 0x0803
	tagPublicationRec    uint16 = 0x0804
	tagRFC3161           uint16 = 0x0805

	tagAggregationTime uint16 = 0x02
	tagChainIndex      uint16 = 0x03
	tagInputHash       uint16 = 0x05
	tagHashAlgorithm   uint16 = 0x06
	tagLinks           uint16 = 0x07
	tagLink            uint16 = 0x08
	tagPublicationTime uint16 = 0x09
	tagPublishedData   uint16 = 0x0A
	tagPkiSignature    uint16 = 0x0B
	tagPkiCertID       uint16 = 0x0C
	tagPkiSigAlgorithm uint16 = 0x0D
	tagReference       uint16 = 0x0E
	tagPublishedHash   uint16 = 0x0F

	tagLinkDirection       uint16 = 0x01
	tagLinkLevelCorrection uint16 = 0x02
	tagLinkSiblingHash     uint16 = 0x03
	tagLinkMetaHashInput   uint16 = 0x04
	tagLinkMetaDataOctets  uint16 = 0x05
)

// Encode serializes s into its top-level TLV container.
func Encode(s *Signature) (*tlv.Tlv, error) {
	var children []*tlv.Tlv
	for _, c := range s.AggregationChains {
		t, err := encodeAggregationChain(c)
		if err != nil {
			return nil, err
		}
		children = append(children, t)
	}
	if s.CalendarChain != nil {
		t, err := encodeCalendarChain(*s.CalendarChain)
		if err != nil {
			return nil, err
		}
		children = append(children, t)
	}
	if s.CalendarAuthRecord != nil {
		t, err := encodeCalendarAuthRecord(*s.CalendarAuthRecord)
		if err != nil {
			return nil, err
		}
		children = append(children, t)
	}
	if s.PublicationRecord != nil {
		t, err := encodePublicationRecord(*s.PublicationRecord)
		if err != nil {
			return nil, err
		}
		children = append(children, t)
	}
	if s.RFC3161 != nil && s.RFC3161.Raw != nil {
		children = append(children, s.RFC3161.Raw)
	}
	return tlv.NewNested(tagSignature, false, false, children)
}

// Decode parses a Signature TLV container and re-checks the structural
// invariants New enforces.
func Decode(t *tlv.Tlv) (*Signature, error) {
	if t.Tag != tagSignature {
		return nil, ksierrors.New(ksierrors.InvalidFormat, "expected signature tag 0x%03x, got 0x%03x", tagSignature, t.Tag)
	}
	if err := tlv.Cast(t, tlv.KindNested); err != nil {
		return nil, err
	}
	children, err := t.Nested()
	if err != nil {
		return nil, err
	}

	var chains []AggregationChain
	var cal *CalendarChain
	var calAuth *CalendarAuthRecord
	var pub *PublicationRecord
	var rfc3161 *RFC3161Record

	for _, child := range children {
		switch child.Tag {
		case tagAggregationChain:
			c, err := decodeAggregationChain(child)
			if err != nil {
				return nil, err
			}
			chains = append(chains, c)
		case tagCalendarChain:
			c, err := decodeCalendarChain(child)
			if err != nil {
				return nil, err
			}
			cal = &c
		case tagCalendarAuthRec:
			c, err := decodeCalendarAuthRecord(child)
			if err != nil {
				return nil, err
			}
			calAuth = &c
		case tagPublicationRec:
			c, err := decodePublicationRecord(child)
			if err != nil {
				return nil, err
			}
			pub = &c
		case tagRFC3161:
			rfc3161 = &RFC3161Record{Raw: child}
		}
	}
	return New(chains, cal, calAuth, pub, rfc3161)
}

func encodeLink(l hashchain.Link) (*tlv.Tlv, error) {
	var children []*tlv.Tlv

	dir, err := tlv.NewUint(tagLinkDirection, false, false, uint64(l.Direction))
	if err != nil {
		return nil, err
	}
	children = append(children, dir)

	if l.LevelCorrection != 0 {
		lc, err := tlv.NewUint(tagLinkLevelCorrection, false, false, uint64(l.LevelCorrection))
		if err != nil {
			return nil, err
		}
		children = append(children, lc)
	}

	switch l.Kind {
	case hashchain.ContentImprint:
		c, err := tlv.NewRaw(tagLinkSiblingHash, false, false, l.SiblingImprint.Bytes())
		if err != nil {
			return nil, err
		}
		children = append(children, c)
	case hashchain.ContentMetaHash:
		c, err := tlv.NewRaw(tagLinkMetaHashInput, false, false, l.MetaHashInput)
		if err != nil {
			return nil, err
		}
		children = append(children, c)
	case hashchain.ContentMetaData:
		c, err := tlv.NewRaw(tagLinkMetaDataOctets, false, false, l.MetaDataOctets)
		if err != nil {
			return nil, err
		}
		children = append(children, c)
	default:
		return nil, ksierrors.New(ksierrors.InvalidFormat, "link has no content form")
	}

	return tlv.NewNested(tagLink, false, false, children)
}

func decodeLink(t *tlv.Tlv) (hashchain.Link, error) {
	if err := tlv.Cast(t, tlv.KindNested); err != nil {
		return hashchain.Link{}, err
	}
	children, err := t.Nested()
	if err != nil {
		return hashchain.Link{}, err
	}
	var l hashchain.Link
	haveContent := false
	for _, c := range children {
		switch c.Tag {
		case tagLinkDirection:
			v, err := tlv.GetUint(c)
			if err != nil {
				return hashchain.Link{}, err
			}
			l.Direction = hashchain.Direction(v)
		case tagLinkLevelCorrection:
			v, err := tlv.GetUint(c)
			if err != nil {
				return hashchain.Link{}, err
			}
			l.LevelCorrection = int(v)
		case tagLinkSiblingHash:
			b, err := c.Raw()
			if err != nil {
				return hashchain.Link{}, err
			}
			im, err := imprint.Parse(b)
			if err != nil {
				return hashchain.Link{}, err
			}
			l.Kind = hashchain.ContentImprint
			l.SiblingImprint = im
			haveContent = true
		case tagLinkMetaHashInput:
			b, err := c.Raw()
			if err != nil {
				return hashchain.Link{}, err
			}
			l.Kind = hashchain.ContentMetaHash
			l.MetaHashInput = b
			haveContent = true
		case tagLinkMetaDataOctets:
			b, err := c.Raw()
			if err != nil {
				return hashchain.Link{}, err
			}
			l.Kind = hashchain.ContentMetaData
			l.MetaDataOctets = b
			haveContent = true
		}
	}
	if !haveContent {
		return hashchain.Link{}, ksierrors.New(ksierrors.InvalidFormat, "link TLV has no content form")
	}
	return l, nil
}

func encodeLinks(links []hashchain.Link) (*tlv.Tlv, error) {
	children := make([]*tlv.Tlv, 0, len(links))
	for _, l := range links {
		t, err := encodeLink(l)
		if err != nil {
			return nil, err
		}
		children = append(children, t)
	}
	return tlv.NewNested(tagLinks, false, false, children)
}

func decodeLinks(t *tlv.Tlv) ([]hashchain.Link, error) {
	if err := tlv.Cast(t, tlv.KindNested); err != nil {
		return nil, err
	}
	children, err := t.Nested()
	if err != nil {
		return nil, err
	}
	links := make([]hashchain.Link, 0, len(children))
	for _, c := range children {
		l, err := decodeLink(c)
		if err != nil {
			return nil, err
		}
		links = append(links, l)
	}
	return links, nil
}

func encodeAggregationChain(c AggregationChain) (*tlv.Tlv, error) {
	aggrTime, err := tlv.NewUint(tagAggregationTime, false, false, uint64(c.AggregationTime))
	if err != nil {
		return nil, err
	}
	inputHash, err := tlv.NewRaw(tagInputHash, false, false, c.InputHash.Bytes())
	if err != nil {
		return nil, err
	}
	alg, err := tlv.NewUint(tagHashAlgorithm, false, false, uint64(c.HashAlgorithm))
	if err != nil {
		return nil, err
	}
	linksTlv, err := encodeLinks(c.Links)
	if err != nil {
		return nil, err
	}
	children := []*tlv.Tlv{aggrTime, inputHash, alg, linksTlv}
	for _, idx := range c.ChainIndex {
		it, err := tlv.NewUint(tagChainIndex, false, false, idx)
		if err != nil {
			return nil, err
		}
		children = append(children, it)
	}
	return tlv.NewNested(tagAggregationChain, false, false, children)
}

func decodeAggregationChain(t *tlv.Tlv) (AggregationChain, error) {
	if err := tlv.Cast(t, tlv.KindNested); err != nil {
		return AggregationChain{}, err
	}
	children, err := t.Nested()
	if err != nil {
		return AggregationChain{}, err
	}
	var c AggregationChain
	for _, child := range children {
		switch child.Tag {
		case tagAggregationTime:
			v, err := tlv.GetUint(child)
			if err != nil {
				return AggregationChain{}, err
			}
			c.AggregationTime = int64(v)
		case tagInputHash:
			b, err := child.Raw()
			if err != nil {
				return AggregationChain{}, err
			}
			im, err := imprint.Parse(b)
			if err != nil {
				return AggregationChain{}, err
			}
			c.InputHash = im
		case tagHashAlgorithm:
			v, err := tlv.GetUint(child)
			if err != nil {
				return AggregationChain{}, err
			}
			c.HashAlgorithm = byte(v)
		case tagLinks:
			links, err := decodeLinks(child)
			if err != nil {
				return AggregationChain{}, err
			}
			c.Links = links
		case tagChainIndex:
			v, err := tlv.GetUint(child)
			if err != nil {
				return AggregationChain{}, err
			}
			c.ChainIndex = append(c.ChainIndex, v)
		}
	}
	return c, nil
}

func encodeCalendarChain(c CalendarChain) (*tlv.Tlv, error) {
	pubTime, err := tlv.NewUint(tagPublicationTime, false, false, uint64(c.PublicationTime))
	if err != nil {
		return nil, err
	}
	aggrTime, err := tlv.NewUint(tagAggregationTime, false, false, uint64(c.AggregationTime))
	if err != nil {
		return nil, err
	}
	inputHash, err := tlv.NewRaw(tagInputHash, false, false, c.InputHash.Bytes())
	if err != nil {
		return nil, err
	}
	linksTlv, err := encodeLinks(c.Links)
	if err != nil {
		return nil, err
	}
	return tlv.NewNested(tagCalendarChain, false, false, []*tlv.Tlv{pubTime, aggrTime, inputHash, linksTlv})
}

// EncodeCalendarChain serializes a bare calendar chain, independent of any
// enclosing Signature, as extender responses carry it on the wire.
func EncodeCalendarChain(c CalendarChain) (*tlv.Tlv, error) {
	return encodeCalendarChain(c)
}

// DecodeCalendarChain parses a bare calendar chain TLV, as returned
// directly by an extender response.
func DecodeCalendarChain(t *tlv.Tlv) (CalendarChain, error) {
	if t.Tag != tagCalendarChain {
		return CalendarChain{}, ksierrors.New(ksierrors.InvalidFormat, "expected calendar chain tag 0x%03x, got 0x%03x", tagCalendarChain, t.Tag)
	}
	return decodeCalendarChain(t)
}

func decodeCalendarChain(t *tlv.Tlv) (CalendarChain, error) {
	if err := tlv.Cast(t, tlv.KindNested); err != nil {
		return CalendarChain{}, err
	}
	children, err := t.Nested()
	if err != nil {
		return CalendarChain{}, err
	}
	var c CalendarChain
	for _, child := range children {
		switch child.Tag {
		case tagPublicationTime:
			v, err := tlv.GetUint(child)
			if err != nil {
				return CalendarChain{}, err
			}
			c.PublicationTime = int64(v)
		case tagAggregationTime:
			v, err := tlv.GetUint(child)
			if err != nil {
				return CalendarChain{}, err
			}
			c.AggregationTime = int64(v)
		case tagInputHash:
			b, err := child.Raw()
			if err != nil {
				return CalendarChain{}, err
			}
			im, err := imprint.Parse(b)
			if err != nil {
				return CalendarChain{}, err
			}
			c.InputHash = im
		case tagLinks:
			links, err := decodeLinks(child)
			if err != nil {
				return CalendarChain{}, err
			}
			c.Links = links
		}
	}
	return c, nil
}

func encodePublishedData(p PublishedData) (*tlv.Tlv, error) {
	t, err := tlv.NewUint(tagPublicationTime, false, false, uint64(p.PublicationTime))
	if err != nil {
		return nil, err
	}
	h, err := tlv.NewRaw(tagPublishedHash, false, false, p.PublishedHash.Bytes())
	if err != nil {
		return nil, err
	}
	return tlv.NewNested(tagPublishedData, false, false, []*tlv.Tlv{t, h})
}

func decodePublishedData(t *tlv.Tlv) (PublishedData, error) {
	if err := tlv.Cast(t, tlv.KindNested); err != nil {
		return PublishedData{}, err
	}
	children, err := t.Nested()
	if err != nil {
		return PublishedData{}, err
	}
	var p PublishedData
	for _, c := range children {
		switch c.Tag {
		case tagPublicationTime:
			v, err := tlv.GetUint(c)
			if err != nil {
				return PublishedData{}, err
			}
			p.PublicationTime = int64(v)
		case tagPublishedHash:
			b, err := c.Raw()
			if err != nil {
				return PublishedData{}, err
			}
			im, err := imprint.Parse(b)
			if err != nil {
				return PublishedData{}, err
			}
			p.PublishedHash = im
		}
	}
	return p, nil
}

func encodeCalendarAuthRecord(r CalendarAuthRecord) (*tlv.Tlv, error) {
	pd, err := encodePublishedData(r.PublishedData)
	if err != nil {
		return nil, err
	}
	sig, err := tlv.NewRaw(tagPkiSignature, false, false, r.PkiSignature)
	if err != nil {
		return nil, err
	}
	certID, err := tlv.NewRaw(tagPkiCertID, false, false, r.PkiCertID)
	if err != nil {
		return nil, err
	}
	alg, err := tlv.NewRaw(tagPkiSigAlgorithm, false, false, []byte(r.PkiSignatureAlgorithm))
	if err != nil {
		return nil, err
	}
	return tlv.NewNested(tagCalendarAuthRec, false, false, []*tlv.Tlv{pd, sig, certID, alg})
}

func decodeCalendarAuthRecord(t *tlv.Tlv) (CalendarAuthRecord, error) {
	if err := tlv.Cast(t, tlv.KindNested); err != nil {
		return CalendarAuthRecord{}, err
	}
	children, err := t.Nested()
	if err != nil {
		return CalendarAuthRecord{}, err
	}
	var r CalendarAuthRecord
	for _, c := range children {
		switch c.Tag {
		case tagPublishedData:
			pd, err := decodePublishedData(c)
			if err != nil {
				return CalendarAuthRecord{}, err
			}
			r.PublishedData = pd
		case tagPkiSignature:
			b, err := c.Raw()
			if err != nil {
				return CalendarAuthRecord{}, err
			}
			r.PkiSignature = b
		case tagPkiCertID:
			b, err := c.Raw()
			if err != nil {
				return CalendarAuthRecord{}, err
			}
			r.PkiCertID = b
		case tagPkiSigAlgorithm:
			b, err := c.Raw()
			if err != nil {
				return CalendarAuthRecord{}, err
			}
			r.PkiSignatureAlgorithm = string(b)
		}
	}
	return r, nil
}

func encodePublicationRecord(r PublicationRecord) (*tlv.Tlv, error) {
	pd, err := encodePublishedData(r.PublishedData)
	if err != nil {
		return nil, err
	}
	children := []*tlv.Tlv{pd}
	for _, ref := range r.References {
		t, err := tlv.NewRaw(tagReference, false, false, []byte(ref))
		if err != nil {
			return nil, err
		}
		children = append(children, t)
	}
	return tlv.NewNested(tagPublicationRec, false, false, children)
}

func decodePublicationRecord(t *tlv.Tlv) (PublicationRecord, error) {
	if err := tlv.Cast(t, tlv.KindNested); err != nil {
		return PublicationRecord{}, err
	}
	children, err := t.Nested()
	if err != nil {
		return PublicationRecord{}, err
	}
	var r PublicationRecord
	for _, c := range children {
		switch c.Tag {
		case tagPublishedData:
			pd, err := decodePublishedData(c)
			if err != nil {
				return PublicationRecord{}, err
			}
			r.PublishedData = pd
		case tagReference:
			b, err := c.Raw()
			if err != nil {
				return PublicationRecord{}, err
			}
			r.References = append(r.References, string(b))
		}
	}
	return r, nil
}
