package transport

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/certen/ksi-go/pkg/ksierrors"
)

func TestHTTPTransportExchangeSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		require.Equal(t, "application/octet-stream", r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusOK)
		w.Write(append([]byte("echo:"), body...))
	}))
	defer srv.Close()

	tr := NewHTTPTransport(srv.URL)
	resp, err := tr.Exchange(context.Background(), []byte("payload"))
	require.NoError(t, err)
	require.Equal(t, "echo:payload", string(resp))
}

func TestHTTPTransportRetriesOn5xxThenSucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	tr := NewHTTPTransport(srv.URL, WithRetryAttempts(5))
	resp, err := tr.Exchange(context.Background(), []byte("x"))
	require.NoError(t, err)
	require.Equal(t, "ok", string(resp))
	require.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestHTTPTransportDoesNotRetry4xx(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	tr := NewHTTPTransport(srv.URL, WithRetryAttempts(5))
	_, err := tr.Exchange(context.Background(), []byte("x"))
	require.Error(t, err)
	require.Equal(t, ksierrors.HttpError, ksierrors.CodeOf(err))
	require.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestHTTPTransportRespectsContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tr := NewHTTPTransport(srv.URL, WithRetryAttempts(3))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := tr.Exchange(ctx, []byte("x"))
	require.Error(t, err)
}

func TestHTTPTransportTimeoutAccessors(t *testing.T) {
	tr := NewHTTPTransport("http://example.invalid", WithConnectTimeout(5*time.Second), WithTransferTimeout(15*time.Second))
	require.Equal(t, 5*time.Second, tr.ConnectTimeout())
	require.Equal(t, 15*time.Second, tr.TransferTimeout())
}
