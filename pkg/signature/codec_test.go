package signature

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/certen/ksi-go/pkg/hashchain"
	"github.com/certen/ksi-go/pkg/imprint"
	"github.com/certen/ksi-go/pkg/tlv"
)

func codecDigest(b byte) imprint.Imprint {
	d := make([]byte, 32)
	for i := range d {
		d[i] = b
	}
	im, _ := imprint.New(0x01, d)
	return im
}

func TestEncodeDecodeSignatureRoundTrip(t *testing.T) {
	chain := AggregationChain{
		Links: []hashchain.Link{
			{Direction: hashchain.Left, Kind: hashchain.ContentImprint, SiblingImprint: codecDigest(0x02)},
			{Direction: hashchain.Right, Kind: hashchain.ContentImprint, SiblingImprint: codecDigest(0x03), LevelCorrection: 2},
		},
		AggregationTime: 100,
		ChainIndex:      []uint64{1, 2},
		InputHash:       codecDigest(0x01),
		HashAlgorithm:   0x01,
	}
	cal := &CalendarChain{
		Links:           []hashchain.Link{{Direction: hashchain.Right, Kind: hashchain.ContentImprint, SiblingImprint: codecDigest(0x04)}},
		PublicationTime: 200,
		AggregationTime: 100,
		InputHash:       codecDigest(0x05),
	}
	pub := &PublicationRecord{
		PublishedData: PublishedData{PublicationTime: 200, PublishedHash: codecDigest(0x06)},
		References:    []string{"https://example.com/newspaper"},
	}

	sig, err := New([]AggregationChain{chain}, cal, nil, pub, nil)
	require.NoError(t, err)

	root, err := Encode(sig)
	require.NoError(t, err)

	raw, err := tlv.Serialize(root)
	require.NoError(t, err)

	reparsed, err := tlv.Parse(raw)
	require.NoError(t, err)

	decoded, err := Decode(reparsed)
	require.NoError(t, err)

	require.Len(t, decoded.AggregationChains, 1)
	require.Equal(t, chain.AggregationTime, decoded.AggregationChains[0].AggregationTime)
	require.Equal(t, chain.ChainIndex, decoded.AggregationChains[0].ChainIndex)
	require.Len(t, decoded.AggregationChains[0].Links, 2)
	require.Equal(t, 2, decoded.AggregationChains[0].Links[1].LevelCorrection)
	require.True(t, chain.InputHash.Equal(decoded.AggregationChains[0].InputHash))

	require.NotNil(t, decoded.CalendarChain)
	require.Equal(t, cal.PublicationTime, decoded.CalendarChain.PublicationTime)

	require.NotNil(t, decoded.PublicationRecord)
	require.Equal(t, pub.References, decoded.PublicationRecord.References)
	require.True(t, pub.PublishedData.PublishedHash.Equal(decoded.PublicationRecord.PublishedData.PublishedHash))

	require.Nil(t, decoded.CalendarAuthRecord)
}

func TestEncodeDecodeCalendarAuthRecordRoundTrip(t *testing.T) {
	chain := AggregationChain{
		Links:           []hashchain.Link{{Direction: hashchain.Left, Kind: hashchain.ContentImprint, SiblingImprint: codecDigest(0x02)}},
		AggregationTime: 100,
		ChainIndex:      []uint64{1},
		InputHash:       codecDigest(0x01),
		HashAlgorithm:   0x01,
	}
	cal := &CalendarChain{
		Links:           []hashchain.Link{{Direction: hashchain.Right, Kind: hashchain.ContentImprint, SiblingImprint: codecDigest(0x04)}},
		PublicationTime: 200,
		AggregationTime: 100,
		InputHash:       codecDigest(0x05),
	}
	calAuth := &CalendarAuthRecord{
		PublishedData:         PublishedData{PublicationTime: 200, PublishedHash: codecDigest(0x06)},
		PkiSignature:          []byte("sig-bytes"),
		PkiCertID:             []byte("cert-id"),
		PkiSignatureAlgorithm: "SHA256-RSA",
	}
	sig, err := New([]AggregationChain{chain}, cal, calAuth, nil, nil)
	require.NoError(t, err)

	root, err := Encode(sig)
	require.NoError(t, err)
	raw, err := tlv.Serialize(root)
	require.NoError(t, err)
	reparsed, err := tlv.Parse(raw)
	require.NoError(t, err)
	decoded, err := Decode(reparsed)
	require.NoError(t, err)

	require.NotNil(t, decoded.CalendarAuthRecord)
	require.Equal(t, "SHA256-RSA", decoded.CalendarAuthRecord.PkiSignatureAlgorithm)
	require.Equal(t, []byte("sig-bytes"), decoded.CalendarAuthRecord.PkiSignature)
	require.Nil(t, decoded.PublicationRecord)
}

func TestEncodeDecodeMetaHashLink(t *testing.T) {
	chain := AggregationChain{
		Links: []hashchain.Link{
			{Direction: hashchain.Left, Kind: hashchain.ContentMetaHash, MetaHashInput: []byte("client-id")},
		},
		AggregationTime: 50,
		ChainIndex:      []uint64{1},
		InputHash:       codecDigest(0x01),
		HashAlgorithm:   0x01,
	}
	sig, err := New([]AggregationChain{chain}, nil, nil, nil, nil)
	require.NoError(t, err)

	root, err := Encode(sig)
	require.NoError(t, err)
	raw, err := tlv.Serialize(root)
	require.NoError(t, err)
	reparsed, err := tlv.Parse(raw)
	require.NoError(t, err)
	decoded, err := Decode(reparsed)
	require.NoError(t, err)

	require.Equal(t, hashchain.ContentMetaHash, decoded.AggregationChains[0].Links[0].Kind)
	require.Equal(t, []byte("client-id"), decoded.AggregationChains[0].Links[0].MetaHashInput)
}

func TestDecodeRejectsWrongTopLevelTag(t *testing.T) {
	bogus, err := tlv.NewNested(0x0799, false, false, nil)
	require.NoError(t, err)
	_, err = Decode(bogus)
	require.Error(t, err)
}
