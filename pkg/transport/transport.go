// Package transport carries PDU bytes to and from an aggregator or
// extender endpoint over HTTP, with bounded connect/transfer timeouts and
// bounded retry of transient failures.
//
// Grounded on accumulate-lite-client-2/liteclient/backend/backend.go's raw
// net/http + context.Context request construction, generalized from JSON-RPC
// bodies to opaque TLV byte payloads, and on the teacher go.mod's
// github.com/avast/retry-go/v4 dependency for the retry loop.
package transport

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/certen/ksi-go/pkg/ksierrors"
)

// Transport is the contract pkg/context uses to reach an aggregator or
// extender endpoint: send a serialized PDU, get back a serialized PDU (a
// success response or an ErrorPdu, both are just bytes at this layer).
type Transport interface {
	Exchange(ctx context.Context, payload []byte) ([]byte, error)
	ConnectTimeout() time.Duration
	TransferTimeout() time.Duration
}

// HTTPTransport is the default Transport, posting the PDU bytes as an
// application/octet-stream body to a fixed endpoint URL.
type HTTPTransport struct {
	Endpoint   string
	client     *http.Client
	connectTO  time.Duration
	transferTO time.Duration
	attempts   uint
}

// Option configures an HTTPTransport.
type Option func(*HTTPTransport)

// WithConnectTimeout bounds TCP/TLS handshake time.
func WithConnectTimeout(d time.Duration) Option {
	return func(t *HTTPTransport) { t.connectTO = d }
}

// WithTransferTimeout bounds the full request round trip, including
// sending the request body and receiving the response.
func WithTransferTimeout(d time.Duration) Option {
	return func(t *HTTPTransport) { t.transferTO = d }
}

// WithRetryAttempts overrides the default retry attempt count (3).
func WithRetryAttempts(n uint) Option {
	return func(t *HTTPTransport) { t.attempts = n }
}

// NewHTTPTransport builds an HTTPTransport posting to endpoint, applying
// opts over sensible defaults (10s connect, 30s transfer, 3 attempts).
func NewHTTPTransport(endpoint string, opts ...Option) *HTTPTransport {
	t := &HTTPTransport{
		Endpoint:   endpoint,
		connectTO:  10 * time.Second,
		transferTO: 30 * time.Second,
		attempts:   3,
	}
	for _, opt := range opts {
		opt(t)
	}
	dialer := &net.Dialer{Timeout: t.connectTO}
	t.client = &http.Client{
		Timeout: t.transferTO,
		Transport: &http.Transport{
			DialContext: dialer.DialContext,
		},
	}
	return t
}

func (t *HTTPTransport) ConnectTimeout() time.Duration  { return t.connectTO }
func (t *HTTPTransport) TransferTimeout() time.Duration { return t.transferTO }

// Exchange posts payload to t.Endpoint and returns the response body,
// retrying transient network failures up to t.attempts times with
// exponential backoff.
func (t *HTTPTransport) Exchange(ctx context.Context, payload []byte) ([]byte, error) {
	var respBody []byte
	err := retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.Endpoint, bytes.NewReader(payload))
			if err != nil {
				return retry.Unrecoverable(ksierrors.Wrap(ksierrors.InvalidArgument, err, "build request to %s", t.Endpoint))
			}
			req.Header.Set("Content-Type", "application/octet-stream")

			resp, err := t.client.Do(req)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return retry.Unrecoverable(ksierrors.Wrap(ksierrors.NetworkConnectionTimeout, ctxErr, "request to %s", t.Endpoint))
				}
				if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
					return ksierrors.Wrap(ksierrors.NetworkReceiveTimeout, err, "request to %s timed out", t.Endpoint)
				}
				return ksierrors.Wrap(ksierrors.NetworkError, err, "request to %s", t.Endpoint)
			}
			defer resp.Body.Close()

			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return ksierrors.Wrap(ksierrors.NetworkReceiveTimeout, err, "read response from %s", t.Endpoint)
			}
			if resp.StatusCode >= 500 {
				return ksierrors.New(ksierrors.HttpError, "%s returned status %d", t.Endpoint, resp.StatusCode)
			}
			if resp.StatusCode >= 400 {
				return retry.Unrecoverable(ksierrors.New(ksierrors.HttpError, "%s returned status %d", t.Endpoint, resp.StatusCode))
			}
			respBody = body
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(t.attempts),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, err
	}
	return respBody, nil
}
