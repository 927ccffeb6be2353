package progress

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestTransport_TracksKeyedRequests(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		if r.URL.Path == "/too-big" {
			w.WriteHeader(http.StatusRequestEntityTooLarge)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	reg := NewRegistry()
	client := &http.Client{Transport: &Transport{Registry: reg}}

	send := func(path, id string) {
		req, err := http.NewRequest(http.MethodPost, srv.URL+path, bytes.NewReader(bytes.Repeat([]byte("a"), 4096)))
		require.NoError(t, err)
		if id != "" {
			req.Header.Set(HeaderID, id)
		}
		resp, err := client.Do(req)
		require.NoError(t, err)
		_ = resp.Body.Close()
	}

	send("/ok", "file-1")
	send("/too-big", "file-2")
	send("/ok", "")

	assert.Equal(t, 100, reg.PercentLoaded("file-1"))
	assert.True(t, reg.IsFileSizeValid("file-1"))

	assert.False(t, reg.IsFileSizeValid("file-2"))
	assert.False(t, reg.IsServerError("file-2"))
}

type failingRoundTripper struct{ err error }

func (f failingRoundTripper) RoundTrip(*http.Request) (*http.Response, error) { return nil, f.err }

func TestTransport_TransportErrorRecorded(t *testing.T) {
	reg := NewRegistry()
	boom := errors.New("dial tcp: refused")
	tr := &Transport{Base: failingRoundTripper{err: boom}, Registry: reg}

	req, err := http.NewRequest(http.MethodPost, "http://example.invalid/upload", nil)
	require.NoError(t, err)
	req.Header.Set(HeaderID, "x")

	_, err = tr.RoundTrip(req)
	require.ErrorIs(t, err, boom)
	assert.True(t, reg.IsServerError("x"))
}

func TestUnaryClientInterceptor(t *testing.T) {
	reg := NewRegistry()
	icpt := UnaryClientInterceptor(reg)

	ok := func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, opts ...grpc.CallOption) error {
		return nil
	}
	tooBig := func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, opts ...grpc.CallOption) error {
		return status.Error(codes.ResourceExhausted, "payload too large")
	}
	unavailable := func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, opts ...grpc.CallOption) error {
		return status.Error(codes.Unavailable, "down")
	}

	require.NoError(t, icpt(WithID(context.Background(), "a"), "/files.Upload", nil, nil, nil, ok))
	require.Error(t, icpt(WithID(context.Background(), "b"), "/files.Upload", nil, nil, nil, tooBig))
	require.Error(t, icpt(WithID(context.Background(), "c"), "/files.Upload", nil, nil, nil, unavailable))
	require.NoError(t, icpt(context.Background(), "/files.Upload", nil, nil, nil, ok))

	assert.Equal(t, 100, reg.PercentLoaded("a"))
	assert.False(t, reg.IsFileSizeValid("b"))
	assert.True(t, reg.IsServerError("c"))
	s, _ := reg.Status("c")
	assert.Equal(t, http.StatusServiceUnavailable, s.StatusCode)
}
