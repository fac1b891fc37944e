package signature

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/certen/ksi-go/pkg/hashchain"
	"github.com/certen/ksi-go/pkg/hashref"
	"github.com/certen/ksi-go/pkg/imprint"
	"github.com/certen/ksi-go/pkg/ksierrors"
)

func digest(b byte) imprint.Imprint {
	d := make([]byte, 32)
	for i := range d {
		d[i] = b
	}
	im, _ := imprint.New(0x01, d)
	return im
}

func oneChain(index ...uint64) AggregationChain {
	return AggregationChain{
		Links:           []hashchain.Link{{Direction: hashchain.Left, Kind: hashchain.ContentImprint, SiblingImprint: digest(0x02)}},
		AggregationTime: 100,
		ChainIndex:      index,
		InputHash:       digest(0x01),
		HashAlgorithm:   0x01,
	}
}

func TestNewRequiresAtLeastOneAggregationChain(t *testing.T) {
	_, err := New(nil, nil, nil, nil, nil)
	require.Error(t, err)
	require.Equal(t, ksierrors.InvalidFormat, ksierrors.CodeOf(err))
}

func TestNewRejectsBothCalAuthAndPublication(t *testing.T) {
	cal := &CalendarChain{InputHash: digest(0x01), PublicationTime: 200, AggregationTime: 100}
	calAuth := &CalendarAuthRecord{}
	pub := &PublicationRecord{}
	_, err := New([]AggregationChain{oneChain(1)}, cal, calAuth, pub, nil)
	require.Error(t, err)
	require.Equal(t, ksierrors.InvalidFormat, ksierrors.CodeOf(err))
}

func TestNewRejectsNeitherCalAuthNorPublication(t *testing.T) {
	cal := &CalendarChain{InputHash: digest(0x01), PublicationTime: 200, AggregationTime: 100}
	_, err := New([]AggregationChain{oneChain(1)}, cal, nil, nil, nil)
	require.Error(t, err)
	require.Equal(t, ksierrors.InvalidFormat, ksierrors.CodeOf(err))
}

func TestNewAcceptsCalendarChainWithPublicationRecord(t *testing.T) {
	cal := &CalendarChain{InputHash: digest(0x01), PublicationTime: 200, AggregationTime: 100}
	pub := &PublicationRecord{PublishedData: PublishedData{PublicationTime: 200, PublishedHash: digest(0x09)}}
	sig, err := New([]AggregationChain{oneChain(1)}, cal, nil, pub, nil)
	require.NoError(t, err)
	require.Equal(t, int64(100), sig.SigningTime())
}

func TestNewRejectsNonPrefixChainIndex(t *testing.T) {
	low := oneChain(1, 2, 3)
	high := oneChain(1, 9) // not a prefix of [1,2,3]
	_, err := New([]AggregationChain{low, high}, nil, nil, nil, nil)
	require.Error(t, err)
	require.Equal(t, ksierrors.InvalidFormat, ksierrors.CodeOf(err))
}

func TestNewAcceptsPrefixChainIndex(t *testing.T) {
	low := oneChain(1, 2, 3)
	high := oneChain(1, 2)
	_, err := New([]AggregationChain{low, high}, nil, nil, nil, nil)
	require.NoError(t, err)
}

func TestCalendarRootAndAccessors(t *testing.T) {
	o := hashref.NewOpener()
	cal := &CalendarChain{
		Links:           []hashchain.Link{{Direction: hashchain.Left, Kind: hashchain.ContentImprint, SiblingImprint: digest(0x03)}},
		InputHash:       digest(0x01),
		PublicationTime: 200,
		AggregationTime: 100,
	}
	pub := &PublicationRecord{PublishedData: PublishedData{PublicationTime: 200, PublishedHash: digest(0x09)}}
	sig, err := New([]AggregationChain{oneChain(1)}, cal, nil, pub, nil)
	require.NoError(t, err)

	root, ok, err := sig.CalendarRoot(o)
	require.NoError(t, err)
	require.True(t, ok)
	require.NotEqual(t, imprint.Imprint{}, root)

	require.Equal(t, digest(0x01), sig.InputHash())
	require.Equal(t, byte(0x01), sig.DocumentHashAlgorithm())
}

func TestCalendarRootAbsentWithoutCalendarChain(t *testing.T) {
	sig, err := New([]AggregationChain{oneChain(1)}, nil, nil, nil, nil)
	require.NoError(t, err)
	_, ok, err := sig.CalendarRoot(hashref.NewOpener())
	require.NoError(t, err)
	require.False(t, ok)
}

func TestExtendProducesNewSignatureLeavingOriginalUnchanged(t *testing.T) {
	cal := &CalendarChain{InputHash: digest(0x01), PublicationTime: 150, AggregationTime: 100}
	calAuth := &CalendarAuthRecord{PublishedData: PublishedData{PublicationTime: 150, PublishedHash: digest(0x03)}}
	sig, err := New([]AggregationChain{oneChain(1)}, cal, calAuth, nil, nil)
	require.NoError(t, err)

	newCal := CalendarChain{InputHash: digest(0x01), PublicationTime: 300, AggregationTime: 100}
	newPub := PublicationRecord{PublishedData: PublishedData{PublicationTime: 300, PublishedHash: digest(0x04)}}
	extended, err := sig.Extend(newCal, newPub)
	require.NoError(t, err)

	require.Equal(t, int64(150), sig.CalendarChain.PublicationTime, "original signature must be unchanged")
	require.NotNil(t, sig.CalendarAuthRecord)

	require.Equal(t, int64(300), extended.CalendarChain.PublicationTime)
	require.Nil(t, extended.CalendarAuthRecord)
	require.NotNil(t, extended.PublicationRecord)
	require.Equal(t, sig.AggregationChains, extended.AggregationChains)
}

func TestExtendRejectsPublicationBeforeSigningTime(t *testing.T) {
	sig, err := New([]AggregationChain{oneChain(1)}, nil, nil, nil, nil)
	require.NoError(t, err)
	newCal := CalendarChain{InputHash: digest(0x01), PublicationTime: 50, AggregationTime: 100}
	newPub := PublicationRecord{PublishedData: PublishedData{PublicationTime: 50, PublishedHash: digest(0x04)}}
	_, err = sig.Extend(newCal, newPub)
	require.Error(t, err)
	require.Equal(t, ksierrors.ExtendWrongCalChain, ksierrors.CodeOf(err))
}
