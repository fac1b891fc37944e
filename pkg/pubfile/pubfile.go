// Package pubfile parses the KSI publications file (spec §1's "trusted
// publications list") and implements the TTL-bounded cache fronting it
// (SPEC_FULL.md §C.6).
//
// Grounded on pkg/tlv for the wire format and on pkg/pki for the X.509
// signature check (see File.Verify for what that check covers).
package pubfile

import (
	"github.com/certen/ksi-go/pkg/imprint"
	"github.com/certen/ksi-go/pkg/ksierrors"
	"github.com/certen/ksi-go/pkg/pki"
	"github.com/certen/ksi-go/pkg/signature"
	"github.com/certen/ksi-go/pkg/tlv"
)

// TLV tags for the publications file container (spec §1; tag values are
// this implementation's own scheme, not a contractual wire constant).
const (
	tagHeader      uint16 = 0x0701
	tagPublication uint16 = 0x0703
	tagCertRecord  uint16 = 0x0702
	tagSignature   uint16 = 0x0704

	tagHeaderVersion     uint16 = 0x01
	tagHeaderCreation    uint16 = 0x02
	tagHeaderRepositoryURI uint16 = 0x03

	tagPublicationTime uint16 = 0x02
	tagPublishedHash   uint16 = 0x04

	tagCertID   uint16 = 0x01
	tagCertData uint16 = 0x02
)

// Header carries the publications file's own metadata.
type Header struct {
	Version       uint64
	CreationTime  int64
	RepositoryURI string
}

// CertRecord binds a short certificate id (as referenced from a
// CalendarAuthRecord) to its DER-encoded certificate bytes.
type CertRecord struct {
	CertID []byte
	DER    []byte
}

// File is a fully parsed publications file.
type File struct {
	Header       Header
	Publications []signature.PublicationRecord
	Certificates []CertRecord
	Signature    []byte
}

// Parse decodes raw publications-file bytes into a File.
func Parse(raw []byte) (*File, error) {
	root, err := tlv.Parse(raw)
	if err != nil {
		return nil, ksierrors.Wrap(ksierrors.InvalidFormat, err, "parse publications file container")
	}
	if err := tlv.Cast(root, tlv.KindNested); err != nil {
		return nil, err
	}
	children, err := root.Nested()
	if err != nil {
		return nil, err
	}

	f := &File{}
	for _, child := range children {
		switch child.Tag {
		case tagHeader:
			h, err := parseHeader(child)
			if err != nil {
				return nil, err
			}
			f.Header = h
		case tagPublication:
			rec, err := parsePublication(child)
			if err != nil {
				return nil, err
			}
			f.Publications = append(f.Publications, rec)
		case tagCertRecord:
			cert, err := parseCertRecord(child)
			if err != nil {
				return nil, err
			}
			f.Certificates = append(f.Certificates, cert)
		case tagSignature:
			sigBytes, err := child.Raw()
			if err != nil {
				return nil, err
			}
			f.Signature = sigBytes
		}
	}
	if f.Signature == nil {
		return nil, ksierrors.New(ksierrors.InvalidFormat, "publications file missing signature record")
	}
	return f, nil
}

func parseHeader(t *tlv.Tlv) (Header, error) {
	if err := tlv.Cast(t, tlv.KindNested); err != nil {
		return Header{}, err
	}
	children, err := t.Nested()
	if err != nil {
		return Header{}, err
	}
	var h Header
	for _, c := range children {
		switch c.Tag {
		case tagHeaderVersion:
			v, err := tlv.GetUint(c)
			if err != nil {
				return Header{}, err
			}
			h.Version = v
		case tagHeaderCreation:
			v, err := tlv.GetUint(c)
			if err != nil {
				return Header{}, err
			}
			h.CreationTime = int64(v)
		case tagHeaderRepositoryURI:
			b, err := c.Raw()
			if err != nil {
				return Header{}, err
			}
			h.RepositoryURI = string(b)
		}
	}
	return h, nil
}

func parsePublication(t *tlv.Tlv) (signature.PublicationRecord, error) {
	if err := tlv.Cast(t, tlv.KindNested); err != nil {
		return signature.PublicationRecord{}, err
	}
	children, err := t.Nested()
	if err != nil {
		return signature.PublicationRecord{}, err
	}
	var rec signature.PublicationRecord
	for _, c := range children {
		switch c.Tag {
		case tagPublicationTime:
			v, err := tlv.GetUint(c)
			if err != nil {
				return signature.PublicationRecord{}, err
			}
			rec.PublishedData.PublicationTime = int64(v)
		case tagPublishedHash:
			b, err := c.Raw()
			if err != nil {
				return signature.PublicationRecord{}, err
			}
			im, err := imprint.Parse(b)
			if err != nil {
				return signature.PublicationRecord{}, err
			}
			rec.PublishedData.PublishedHash = im
		default:
			b, err := c.Raw()
			if err == nil {
				rec.References = append(rec.References, string(b))
			}
		}
	}
	if rec.PublishedData.PublishedHash.IsZero() {
		return signature.PublicationRecord{}, ksierrors.New(ksierrors.InvalidFormat, "publication record missing published hash")
	}
	return rec, nil
}

func parseCertRecord(t *tlv.Tlv) (CertRecord, error) {
	if err := tlv.Cast(t, tlv.KindNested); err != nil {
		return CertRecord{}, err
	}
	children, err := t.Nested()
	if err != nil {
		return CertRecord{}, err
	}
	var rec CertRecord
	for _, c := range children {
		switch c.Tag {
		case tagCertID:
			b, err := c.Raw()
			if err != nil {
				return CertRecord{}, err
			}
			rec.CertID = b
		case tagCertData:
			b, err := c.Raw()
			if err != nil {
				return CertRecord{}, err
			}
			rec.DER = b
		}
	}
	return rec, nil
}

// Verify hands f.Signature, certID and algorithm to verifier together with
// the published data of the file's last publication record (or, with no
// records, only the header's creation time). That published data is the
// whole signed message: the header, certificate records and other
// publication records are not covered by the check. Certificate lookup is
// the verifier's own. algorithm names the signature algorithm the same way
// a CalendarAuthRecord would.
func (f *File) Verify(verifier pki.Verifier, certID []byte, algorithm string) error {
	published := signature.PublishedData{
		PublicationTime: f.Header.CreationTime,
	}
	if len(f.Publications) > 0 {
		published = f.Publications[len(f.Publications)-1].PublishedData
	}
	return verifier.Verify(published, f.Signature, certID, algorithm)
}

// Lookup finds the publication record for an exact publication time, the
// operation verifier.PublicationsFileSource requires.
func (f *File) Lookup(publicationTime int64) (signature.PublicationRecord, bool, error) {
	for _, rec := range f.Publications {
		if rec.PublishedData.PublicationTime == publicationTime {
			return rec, true, nil
		}
	}
	return signature.PublicationRecord{}, false, nil
}
