package hashchain

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/certen/ksi-go/pkg/hashref"
	"github.com/certen/ksi-go/pkg/imprint"
	"github.com/certen/ksi-go/pkg/ksierrors"
)

const sha256Alg = 0x01

func mustImprint(t *testing.T, b byte) imprint.Imprint {
	t.Helper()
	digest := make([]byte, 32)
	for i := range digest {
		digest[i] = b
	}
	im, err := imprint.New(sha256Alg, digest)
	require.NoError(t, err)
	return im
}

func TestFoldAggregationDeterministic(t *testing.T) {
	o := hashref.NewOpener()
	input := mustImprint(t, 0x01)
	links := []Link{
		{Direction: Left, LevelCorrection: 0, Kind: ContentImprint, SiblingImprint: mustImprint(t, 0x02)},
		{Direction: Right, LevelCorrection: 1, Kind: ContentImprint, SiblingImprint: mustImprint(t, 0x03)},
	}
	r1, err := FoldAggregation(o, links, input, 0, sha256Alg)
	require.NoError(t, err)
	r2, err := FoldAggregation(o, links, input, 0, sha256Alg)
	require.NoError(t, err)
	require.Equal(t, r1.Output, r2.Output)
	require.Equal(t, r1.Level, r2.Level)
	// level = 0 + 0 + 1 = 1, then 1 + 1 + 1 = 3
	require.Equal(t, 3, r1.Level)
}

func TestFoldAggregationDirectionAffectsOutput(t *testing.T) {
	o := hashref.NewOpener()
	input := mustImprint(t, 0x01)
	sibling := mustImprint(t, 0x02)

	left, err := FoldAggregation(o, []Link{{Direction: Left, Kind: ContentImprint, SiblingImprint: sibling}}, input, 0, sha256Alg)
	require.NoError(t, err)
	right, err := FoldAggregation(o, []Link{{Direction: Right, Kind: ContentImprint, SiblingImprint: sibling}}, input, 0, sha256Alg)
	require.NoError(t, err)
	require.NotEqual(t, left.Output, right.Output)
}

func TestFoldAggregationLevelCorrectionOverflow(t *testing.T) {
	o := hashref.NewOpener()
	input := mustImprint(t, 0x01)
	links := []Link{{Direction: Left, LevelCorrection: 300, Kind: ContentImprint, SiblingImprint: mustImprint(t, 0x02)}}
	_, err := FoldAggregation(o, links, input, 0, sha256Alg)
	require.Error(t, err)
	require.Equal(t, ksierrors.InvalidFormat, ksierrors.CodeOf(err))
}

func TestFoldAggregationLevelOverflowAcrossSteps(t *testing.T) {
	o := hashref.NewOpener()
	input := mustImprint(t, 0x01)
	links := []Link{{Direction: Left, LevelCorrection: 10, Kind: ContentImprint, SiblingImprint: mustImprint(t, 0x02)}}
	_, err := FoldAggregation(o, links, input, 250, sha256Alg)
	require.Error(t, err)
	require.Equal(t, ksierrors.InvalidFormat, ksierrors.CodeOf(err))
}

func TestFoldAggregationMetaHashAndMetaData(t *testing.T) {
	o := hashref.NewOpener()
	input := mustImprint(t, 0x01)

	metaHashLink := Link{Direction: Left, Kind: ContentMetaHash, MetaHashInput: []byte("client-id")}
	rMeta, err := FoldAggregation(o, []Link{metaHashLink}, input, 0, sha256Alg)
	require.NoError(t, err)
	require.NotEqual(t, imprint.Imprint{}, rMeta.Output)

	sibling := mustImprint(t, 0x05)
	metaDataLink := Link{Direction: Left, Kind: ContentMetaData, MetaDataOctets: sibling.Bytes()}
	rData, err := FoldAggregation(o, []Link{metaDataLink}, input, 0, sha256Alg)
	require.NoError(t, err)

	// The MetaData form treats its octets as the sibling imprint bytes
	// directly, so folding with an equivalent ContentImprint link must
	// produce the same output.
	rImprint, err := FoldAggregation(o, []Link{{Direction: Left, Kind: ContentImprint, SiblingImprint: sibling}}, input, 0, sha256Alg)
	require.NoError(t, err)
	require.Equal(t, rImprint.Output, rData.Output)
}

func TestFoldCalendarAlgorithmSwitchesOnLeft(t *testing.T) {
	o := hashref.NewOpener()
	input := mustImprint(t, 0x01) // SHA-256

	keccakDigest := make([]byte, 32)
	for i := range keccakDigest {
		keccakDigest[i] = 0x09
	}
	keccakSibling, err := imprint.New(0x40, keccakDigest) // Keccak-256
	require.NoError(t, err)

	links := []Link{{Direction: Left, Kind: ContentImprint, SiblingImprint: keccakSibling}}
	out, err := FoldCalendar(o, links, input)
	require.NoError(t, err)
	require.Equal(t, byte(0x40), out.Algorithm, "algorithm must switch to the Left link's sibling algorithm")
}

func TestAggregationTimeSelfConsistentExample(t *testing.T) {
	// Hand-verified against the spec's pseudocode directly: directions in
	// stored order [Left, Right, Right], publication_time=11.
	// reverse(chain) processing order = [Right, Right, Left]:
	//   r=11: Right  -> t=8,  r=3
	//   r=3:  Right  -> t=10, r=1
	//   r=1:  Left   -> r=highBit(1)-1=0
	// r==0 at the end, so the chain is consistent; t=10.
	directions := []Direction{Left, Right, Right}
	tm, err := AggregationTime(11, directions)
	require.NoError(t, err)
	require.Equal(t, int64(10), tm)
}

func TestAggregationTimeInconsistentChainFails(t *testing.T) {
	directions := []Direction{Right, Right, Left}
	_, err := AggregationTime(11, directions)
	require.Error(t, err)
	require.Equal(t, ksierrors.InvalidFormat, ksierrors.CodeOf(err))
}

func TestAggregationTimeRejectsNonPositivePublicationTime(t *testing.T) {
	_, err := AggregationTime(0, []Direction{Left})
	require.Error(t, err)
	require.Equal(t, ksierrors.InvalidArgument, ksierrors.CodeOf(err))
}

func TestHighBit(t *testing.T) {
	cases := map[int64]int64{1: 1, 2: 2, 3: 2, 7: 4, 8: 8, 11: 8, 1023: 512}
	for n, want := range cases {
		require.Equal(t, want, highBit(n), "highBit(%d)", n)
	}
}
