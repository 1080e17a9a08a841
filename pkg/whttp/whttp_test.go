package whttp

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendHTTPRequestRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		b, _ := io.ReadAll(r.Body)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer abc", r.Header.Get("Authorization"))
		_, _ = w.Write(b)
	}))
	defer srv.Close()

	client, err := NewClient(ClientConfig{Retries: 3, Timeout: time.Second})
	require.NoError(t, err)
	client.RetryWaitMin = time.Millisecond
	client.RetryWaitMax = time.Millisecond

	res, err := SendHTTPRequest(context.Background(), &WHTTPReq{
		Method:  http.MethodPut,
		URL:     srv.URL,
		Body:    `{"a":1}`,
		Headers: []WHTTPHeader{{Name: "Authorization", Value: "Bearer abc"}},
	}, client)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, `{"a":1}`, res.BodyString)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestSendHTTPRequestDoesNotRetryPost(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client, err := NewClient(ClientConfig{Retries: 3, Timeout: time.Second})
	require.NoError(t, err)
	client.RetryWaitMin = time.Millisecond
	client.RetryWaitMax = time.Millisecond

	res, err := SendHTTPRequest(context.Background(), &WHTTPReq{
		Method: http.MethodPost,
		URL:    srv.URL,
		Body:   `{"subcategory_id":"501"}`,
	}, client)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadGateway, res.StatusCode)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestCheckRetry(t *testing.T) {
	post := context.WithValue(context.Background(), retrySafeKey{}, false)
	get := context.WithValue(context.Background(), retrySafeKey{}, true)
	refused := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
	reset := &net.OpError{Op: "read", Net: "tcp", Err: errors.New("connection reset by peer")}
	bad := &http.Response{StatusCode: http.StatusBadGateway}

	tests := []struct {
		name string
		ctx  context.Context
		resp *http.Response
		err  error
		want bool
	}{
		{"post dial error", post, nil, refused, true},
		{"post read error", post, nil, reset, false},
		{"post 502", post, bad, nil, false},
		{"get 502", get, bad, nil, true},
		{"get read error", get, nil, reset, true},
		{"post marked retry-safe", RetrySafe(post), bad, nil, true},
		{"unmarked 502", context.Background(), bad, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := CheckRetry(tt.ctx, tt.resp, tt.err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSendHTTPRequestPassesThroughFinalFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"success":false}`))
	}))
	defer srv.Close()

	client, err := NewClient(ClientConfig{Retries: 1})
	require.NoError(t, err)
	client.RetryWaitMin = time.Millisecond
	client.RetryWaitMax = time.Millisecond

	res, err := SendHTTPRequest(context.Background(), &WHTTPReq{Method: http.MethodGet, URL: srv.URL}, client)
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, res.StatusCode)
	assert.Equal(t, `{"success":false}`, res.BodyString)
}

func TestNewClientRejectsBadProxy(t *testing.T) {
	_, err := NewClient(ClientConfig{Proxy: "://nope"})
	assert.Error(t, err)
}
