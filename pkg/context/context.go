// Package context implements the single-threaded Context spec §5 names:
// the object an application holds to Sign, Extend, and Verify. A Context
// owns its error ring, its publications-file cache, and its aggregator and
// extender transport handles; it is not safe for concurrent use, and
// distinct Contexts are fully independent, mirroring the original's
// KSI_CTX handle.
package context

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/certen/ksi-go/pkg/config"
	"github.com/certen/ksi-go/pkg/hashref"
	"github.com/certen/ksi-go/pkg/hasher"
	"github.com/certen/ksi-go/pkg/imprint"
	"github.com/certen/ksi-go/pkg/ksierrors"
	"github.com/certen/ksi-go/pkg/logging"
	"github.com/certen/ksi-go/pkg/metrics"
	"github.com/certen/ksi-go/pkg/pdu"
	"github.com/certen/ksi-go/pkg/pubfile"
	"github.com/certen/ksi-go/pkg/signature"
	"github.com/certen/ksi-go/pkg/tlv"
	"github.com/certen/ksi-go/pkg/transport"
	"github.com/certen/ksi-go/pkg/verifier"
)

// Context is the application's single handle to the KSI client library.
type Context struct {
	cfg    *config.Config
	logger *logging.Logger
	errors *ksierrors.Ring
	opener hasher.Opener

	aggregator transport.Transport
	extender   transport.Transport

	pubfileCache *pubfile.Cache

	stepObserver  verifier.StepObserver
	chainObserver verifier.ChainObserver

	verifier *verifier.Verifier

	instanceID uint64
}

// Option customizes a Context beyond its Config.
type Option func(*Context)

// WithLogger overrides the default discard logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *Context) { c.logger = l }
}

// WithAggregatorTransport overrides the default HTTP transport, chiefly
// for tests.
func WithAggregatorTransport(t transport.Transport) Option {
	return func(c *Context) { c.aggregator = t }
}

// WithExtenderTransport overrides the default HTTP transport, chiefly for
// tests.
func WithExtenderTransport(t transport.Transport) Option {
	return func(c *Context) { c.extender = t }
}

// WithPublicationsFileCache sets the publications-file cache that Verify
// falls back to. New builds no cache of its own (cfg.PublicationsFileURI
// and cfg.PublicationsFileCacheTTL are not used by it); without this
// option Verify uses only the publications file its options carry.
func WithPublicationsFileCache(cache *pubfile.Cache) Option {
	return func(c *Context) { c.pubfileCache = cache }
}

// WithMetrics registers per-step verification counters and hash-chain
// fold-duration histograms against reg, and feeds them to the Context's
// Verifier. Without this option the Context runs with no instrumentation.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(c *Context) {
		c.stepObserver = metrics.NewVerifier(reg)
		c.chainObserver = metrics.NewHashChain(reg)
	}
}

// New builds a Context from cfg. cfg must already have passed Validate.
func New(cfg *config.Config, opts ...Option) (*Context, error) {
	c := &Context{
		cfg:        cfg,
		logger:     logging.Discard(),
		errors:     ksierrors.NewRing(cfg.ErrorRingSize),
		opener:     hashref.NewOpener(),
		instanceID: 1,
	}
	if cfg.Aggregator.URI != "" {
		c.aggregator = transport.NewHTTPTransport(cfg.Aggregator.URI,
			transport.WithConnectTimeout(cfg.ConnectTimeout),
			transport.WithTransferTimeout(cfg.TransferTimeout))
	}
	if cfg.Extender.URI != "" {
		c.extender = transport.NewHTTPTransport(cfg.Extender.URI,
			transport.WithConnectTimeout(cfg.ConnectTimeout),
			transport.WithTransferTimeout(cfg.TransferTimeout))
	}
	for _, opt := range opts {
		opt(c)
	}
	c.verifier = verifier.New(c.opener, c.logger, c.stepObserver, c.chainObserver)
	return c, nil
}

// ResetErrors clears the error ring. Every top-level public operation
// (Sign, Extend, Verify) calls this on entry, matching the original's
// per-call diagnostic reset.
func (c *Context) ResetErrors() {
	c.errors.Reset()
}

// Errors returns the diagnostic entries accumulated since the last
// ResetErrors, oldest first.
func (c *Context) Errors() []ksierrors.Entry {
	return c.errors.Entries()
}

func (c *Context) pushError(err error) {
	c.errors.PushError(err, "", 0)
}

// Sign requests a signature over documentHash from the configured
// aggregator (spec §4.1 "Sign").
func (c *Context) Sign(ctx context.Context, documentHash imprint.Imprint) (*signature.Signature, error) {
	c.ResetErrors()
	if c.aggregator == nil {
		err := ksierrors.New(ksierrors.InvalidArgument, "no aggregator configured")
		c.pushError(err)
		return nil, err
	}

	header := pdu.NewHeader(c.instanceID, c.cfg.Aggregator.LoginID)
	headerAndPayload := append(headerBytes(header), documentHash.Bytes()...)

	mac, err := pdu.ComputeHMAC([]byte(c.cfg.Aggregator.LoginKey), pdu.DefaultHMACAlgorithm, headerAndPayload)
	if err != nil {
		c.pushError(err)
		return nil, err
	}
	wire := append(headerAndPayload, mac.Bytes()...)

	respBytes, err := c.aggregator.Exchange(ctx, wire)
	if err != nil {
		wrapped := ksierrors.Wrap(ksierrors.NetworkError, err, "aggregator exchange")
		c.pushError(wrapped)
		return nil, wrapped
	}

	sigTlv, err := tlv.Parse(respBytes)
	if err != nil {
		wrapped := ksierrors.Wrap(ksierrors.InvalidFormat, err, "parse aggregator response")
		c.pushError(wrapped)
		return nil, wrapped
	}
	sig, err := signature.Decode(sigTlv)
	if err != nil {
		c.pushError(err)
		return nil, err
	}
	return sig, nil
}

// Extend requests a calendar chain covering sig's aggregation time through
// publicationTime and returns an extended signature carrying pub in place
// of any calendar-auth record (spec §4.1 "Extend").
func (c *Context) Extend(ctx context.Context, sig *signature.Signature, publicationTime int64, pub signature.PublicationRecord) (*signature.Signature, error) {
	c.ResetErrors()
	if c.extender == nil {
		err := ksierrors.New(ksierrors.InvalidArgument, "no extender configured")
		c.pushError(err)
		return nil, err
	}

	req := pdu.ExtendRequest{
		Header:          pdu.NewHeader(c.instanceID, c.cfg.Extender.LoginID),
		AggregationTime: sig.SigningTime(),
		PublicationTime: publicationTime,
	}
	headerAndPayload := append(headerBytes(req.Header), extendRequestBytes(req)...)
	mac, err := pdu.ComputeHMAC([]byte(c.cfg.Extender.LoginKey), pdu.DefaultHMACAlgorithm, headerAndPayload)
	if err != nil {
		c.pushError(err)
		return nil, err
	}
	wire := append(headerAndPayload, mac.Bytes()...)

	respBytes, err := c.extender.Exchange(ctx, wire)
	if err != nil {
		wrapped := ksierrors.Wrap(ksierrors.NetworkError, err, "extender exchange")
		c.pushError(wrapped)
		return nil, wrapped
	}

	calTlv, err := tlv.Parse(respBytes)
	if err != nil {
		wrapped := ksierrors.Wrap(ksierrors.InvalidFormat, err, "parse extender response")
		c.pushError(wrapped)
		return nil, wrapped
	}
	cal, err := signature.DecodeCalendarChain(calTlv)
	if err != nil {
		c.pushError(err)
		return nil, err
	}

	extended, err := sig.Extend(cal, pub)
	if err != nil {
		c.pushError(err)
		return nil, err
	}
	return extended, nil
}

// Verify runs the full ordered verification pipeline against sig (spec
// §4.4), falling back to the context's own publications-file cache when
// opts doesn't supply one.
func (c *Context) Verify(ctx context.Context, sig *signature.Signature, opts verifier.Options) (*verifier.Result, error) {
	c.ResetErrors()
	if opts.PublicationsFile == nil && c.pubfileCache != nil {
		opts.PublicationsFile = c.pubfileCache
	}
	res, err := c.verifier.Verify(ctx, sig, opts)
	if err != nil {
		c.pushError(err)
	}
	return res, err
}

func headerBytes(h pdu.Header) []byte {
	b := make([]byte, 0, 8+16+len(h.LoginID))
	for i := 7; i >= 0; i-- {
		b = append(b, byte(h.InstanceID>>(8*i)))
	}
	idBytes, _ := h.MessageID.MarshalBinary()
	b = append(b, idBytes...)
	b = append(b, []byte(h.LoginID)...)
	return b
}

func extendRequestBytes(r pdu.ExtendRequest) []byte {
	b := make([]byte, 16)
	for i := 7; i >= 0; i-- {
		b[7-i] = byte(r.AggregationTime >> (8 * i))
		b[15-i] = byte(r.PublicationTime >> (8 * i))
	}
	return b
}
