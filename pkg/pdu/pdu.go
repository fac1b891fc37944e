// Package pdu implements the on-wire protocol data units exchanged with
// the aggregator and extender (spec §6): a Header, an HMAC computed over
// the serialized PDU bytes, and the status-code taxonomy of error
// responses.
//
// Grounded on the teacher's use of github.com/google/uuid for request
// identifiers (teacher main.go, pkg/server) and on pkg/tlv for the
// underlying wire encoding.
package pdu

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"hash"

	"github.com/google/uuid"

	"github.com/certen/ksi-go/pkg/imprint"
	"github.com/certen/ksi-go/pkg/ksierrors"
)

// Header carries the three fields every PDU in spec §6 names.
type Header struct {
	InstanceID uint64
	MessageID  uuid.UUID
	LoginID    string
}

// NewHeader builds a Header with a fresh random message id.
func NewHeader(instanceID uint64, loginID string) Header {
	return Header{InstanceID: instanceID, MessageID: uuid.New(), LoginID: loginID}
}

// DefaultHMACAlgorithm is the HMAC hash algorithm a requester uses absent
// any other configuration (SPEC_FULL.md §C.5: the original derives it from
// a configurable default rather than from the PDU itself).
const DefaultHMACAlgorithm byte = 0x01 // SHA-256

func hmacConstructor(algorithm byte) (func() hash.Hash, error) {
	switch algorithm {
	case 0x01:
		return sha256.New, nil
	case 0x03:
		return sha256.New224, nil
	case 0x04:
		return sha512.New384, nil
	case 0x05:
		return sha512.New, nil
	default:
		return nil, ksierrors.New(ksierrors.UnavailableHashAlgorithm, "no HMAC constructor for algorithm 0x%02X", algorithm)
	}
}

// ComputeHMAC computes the keyed HMAC over data (the serialized PDU bytes
// excluding the HMAC field itself, per spec §6) using the shared password
// as key.
func ComputeHMAC(key []byte, algorithm byte, data []byte) (imprint.Imprint, error) {
	ctor, err := hmacConstructor(algorithm)
	if err != nil {
		return imprint.Imprint{}, err
	}
	mac := hmac.New(ctor, key)
	mac.Write(data)
	return imprint.New(algorithm, mac.Sum(nil))
}

// VerifyHMAC recomputes the HMAC over data and compares it to want,
// failing with ksierrors.HmacMismatch on any difference. The comparison
// uses hmac.Equal (constant-time) rather than Imprint.Equal, since want is
// an attacker-influenced authentication tag.
func VerifyHMAC(key []byte, data []byte, want imprint.Imprint) error {
	got, err := ComputeHMAC(key, want.Algorithm, data)
	if err != nil {
		return err
	}
	if got.Algorithm != want.Algorithm || !hmac.Equal(got.Digest, want.Digest) {
		return ksierrors.New(ksierrors.HmacMismatch, "HMAC mismatch")
	}
	return nil
}

// Envelope is the common shape of every PDU named in spec §6: a Header, an
// opaque TLV-serialized payload, and an HMAC over everything but the HMAC
// field. Envelope has no decoder from wire bytes, and neither this package
// nor pkg/transport checks that a response carries a Header or an HMAC:
// pkg/context parses response bytes directly, without HMAC verification.
type Envelope struct {
	Header  Header
	Payload []byte
	HMAC    imprint.Imprint
}

// Sign attaches an HMAC computed over header+payload bytes (the caller
// supplies the already-serialized header+payload, i.e. everything the PDU
// would contain except the HMAC TLV).
func (e *Envelope) Sign(key []byte, algorithm byte, headerAndPayload []byte) error {
	mac, err := ComputeHMAC(key, algorithm, headerAndPayload)
	if err != nil {
		return err
	}
	e.HMAC = mac
	return nil
}

// Verify checks e's HMAC against headerAndPayload using key.
func (e *Envelope) Verify(key []byte, headerAndPayload []byte) error {
	return VerifyHMAC(key, headerAndPayload, e.HMAC)
}

// AggregationRequest is a sign request: a document hash to be aggregated.
type AggregationRequest struct {
	Header      Header
	RequestHash imprint.Imprint
}

// AggregationResponse carries the resulting signature payload (an
// un-parsed, serialized signature TLV; parsing it is pkg/signature's job).
type AggregationResponse struct {
	Header    Header
	Signature []byte
	HMAC      imprint.Imprint
}

// ExtendRequest asks the extender for a calendar chain covering
// [AggregationTime, PublicationTime].
type ExtendRequest struct {
	Header          Header
	AggregationTime int64
	PublicationTime int64
}

// ExtendResponse carries the resulting calendar chain payload (serialized
// TLV; decoding it into a signature.CalendarChain is pkg/signature's job).
type ExtendResponse struct {
	Header        Header
	CalendarChain []byte
	HMAC          imprint.Imprint
}

// ErrorPdu is returned by the aggregator/extender in place of a successful
// response (spec §6). Status is the on-the-wire service status code;
// Message is a UTF-8 diagnostic string.
type ErrorPdu struct {
	Header  Header
	Status  int
	Message string
}

// Code maps e's service status to the internal taxonomy via the
// aggregator/extender status tables.
func (e ErrorPdu) Code() ksierrors.Code {
	if code, ok := statusCodes[e.Status]; ok {
		return code
	}
	return ksierrors.ServiceError
}

// Error implements the error interface so an ErrorPdu can be returned
// directly from a transport call.
func (e ErrorPdu) Error() string {
	return string(e.Code()) + ": " + e.Message
}

// statusCodes is the union of the aggregator and extender status tables of
// spec §6.
var statusCodes = map[int]ksierrors.Code{
	0x0101: ksierrors.InvalidArgument,  // InvalidRequest
	0x0102: ksierrors.CryptoFailure,    // AuthFailure
	0x0103: ksierrors.InvalidFormat,    // InvalidPayload
	0x0104: ksierrors.InvalidArgument,  // RequestTooLarge (aggregator) / InvalidTimeRange (extender, same code)
	0x0105: ksierrors.InvalidArgument,  // OverQuota (aggregator) / TimeTooOld (extender)
	0x0106: ksierrors.InvalidArgument,  // TimeTooNew (extender)
	0x0107: ksierrors.InvalidArgument,  // TimeInFuture (extender)
	0x0200: ksierrors.NetworkError,     // InternalError
	0x0201: ksierrors.IoError,          // DatabaseMissing (extender)
	0x0202: ksierrors.IoError,          // DatabaseCorrupt (extender)
	0x0300: ksierrors.NetworkError,     // UpstreamError
	0x0301: ksierrors.NetworkConnectionTimeout, // UpstreamTimeout
}

// StatusName gives a short symbolic name for a known status code, for
// logging; unknown codes return "".
func StatusName(status int) string {
	names := map[int]string{
		0x0101: "InvalidRequest",
		0x0102: "AuthFailure",
		0x0103: "InvalidPayload",
		0x0104: "RequestTooLargeOrInvalidTimeRange",
		0x0105: "OverQuotaOrTimeTooOld",
		0x0106: "TimeTooNew",
		0x0107: "TimeInFuture",
		0x0200: "InternalError",
		0x0201: "DatabaseMissing",
		0x0202: "DatabaseCorrupt",
		0x0300: "UpstreamError",
		0x0301: "UpstreamTimeout",
	}
	return names[status]
}
