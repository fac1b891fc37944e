package pubfile

import (
	"encoding/base32"
	"encoding/binary"
	"hash/crc32"
	"strings"

	"github.com/certen/ksi-go/pkg/imprint"
	"github.com/certen/ksi-go/pkg/ksierrors"
	"github.com/certen/ksi-go/pkg/signature"
)

// groupSize is the publication string's human-readability grouping:
// dashes every 6 characters (SPEC_FULL.md §C.4).
const groupSize = 6

var encoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// EncodePublicationString renders rec as the short, human-copyable
// publication string a user pastes out-of-band (spec §4.4
// PUBLICATION_WITH_PUBSTRING). The wire form is
// [8-byte publication time][imprint bytes][4-byte CRC32 checksum],
// base32-encoded and grouped into 6-character blocks separated by
// hyphens, so a single mistyped character is caught before the decoded
// bytes are ever trusted.
func EncodePublicationString(rec signature.PublicationRecord) string {
	data := publicationWireBytes(rec)
	checksum := crc32.ChecksumIEEE(data)
	data = binary.BigEndian.AppendUint32(data, checksum)

	encoded := encoding.EncodeToString(data)
	var b strings.Builder
	for i := 0; i < len(encoded); i += groupSize {
		if i > 0 {
			b.WriteByte('-')
		}
		end := i + groupSize
		if end > len(encoded) {
			end = len(encoded)
		}
		b.WriteString(encoded[i:end])
	}
	return b.String()
}

// DecodePublicationString parses a string produced by
// EncodePublicationString, verifying its checksum before returning the
// publication record. This function satisfies the
// verifier.Options.DecodePublication signature.
func DecodePublicationString(s string) (signature.PublicationRecord, error) {
	compact := strings.ReplaceAll(s, "-", "")
	data, err := encoding.DecodeString(compact)
	if err != nil {
		return signature.PublicationRecord{}, ksierrors.Wrap(ksierrors.InvalidPublication, err, "decode publication string")
	}
	if len(data) < 8+1+4 {
		return signature.PublicationRecord{}, ksierrors.New(ksierrors.InvalidPublication, "publication string too short")
	}
	payload, checksum := data[:len(data)-4], data[len(data)-4:]
	if crc32.ChecksumIEEE(payload) != binary.BigEndian.Uint32(checksum) {
		return signature.PublicationRecord{}, ksierrors.New(ksierrors.InvalidPublication, "publication string checksum mismatch")
	}
	publicationTime := int64(binary.BigEndian.Uint64(payload[:8]))
	im, err := imprint.Parse(payload[8:])
	if err != nil {
		return signature.PublicationRecord{}, ksierrors.Wrap(ksierrors.InvalidPublication, err, "decode published hash")
	}
	return signature.PublicationRecord{
		PublishedData: signature.PublishedData{PublicationTime: publicationTime, PublishedHash: im},
	}, nil
}

func publicationWireBytes(rec signature.PublicationRecord) []byte {
	b := make([]byte, 0, 8+1+len(rec.PublishedData.PublishedHash.Digest))
	b = binary.BigEndian.AppendUint64(b, uint64(rec.PublishedData.PublicationTime))
	b = append(b, rec.PublishedData.PublishedHash.Bytes()...)
	return b
}
