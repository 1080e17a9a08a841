package whttp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

const (
	DefaultRetries = 3
	DefaultTimeout = 30 * time.Second
	userAgent      = "ghgstage/1.0"
)

type WHTTPHeader struct {
	Name  string
	Value string
}

type WHTTPReq struct {
	URL     string
	Method  string
	Headers []WHTTPHeader
	Body    string
}

type WHTTPRes struct {
	StatusCode int
	BodyString string
}

// ClientConfig controls NewClient.
type ClientConfig struct {
	Retries int
	Timeout time.Duration
	Proxy   string
}

// NewClient builds a retrying HTTP client. Retries cover connection errors
// and 5xx responses; 4xx responses are returned as-is. See CheckRetry for
// non-idempotent methods.
func NewClient(cfg ClientConfig) (*retryablehttp.Client, error) {
	c := retryablehttp.NewClient()
	c.Logger = log.New(io.Discard, "", 0)
	c.RetryMax = cfg.Retries
	if c.RetryMax < 0 {
		c.RetryMax = 0
	}
	c.RetryWaitMin = 200 * time.Millisecond
	c.RetryWaitMax = 2 * time.Second
	c.HTTPClient.Timeout = cfg.Timeout
	if c.HTTPClient.Timeout <= 0 {
		c.HTTPClient.Timeout = DefaultTimeout
	}
	// Hand the last response back instead of a generic "giving up" error so
	// callers can still read the API error envelope.
	c.ErrorHandler = retryablehttp.PassthroughErrorHandler
	c.CheckRetry = CheckRetry

	if cfg.Proxy != "" {
		proxyURL, err := url.Parse(cfg.Proxy)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy URL: %v", err)
		}
		c.HTTPClient.Transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
	}
	return c, nil
}

type retrySafeKey struct{}

// RetrySafe marks requests sent with ctx as safe to retry whatever their
// method. Lookups that go out as POST use it.
func RetrySafe(ctx context.Context) context.Context {
	return context.WithValue(ctx, retrySafeKey{}, true)
}

func idempotent(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodPut, http.MethodDelete:
		return true
	}
	return false
}

// CheckRetry is the default retry policy, except that a request
// SendHTTPRequest found unsafe to repeat is only retried when the connection
// could not be dialled. A 5xx or a dropped connection may come after the
// server already acted on it.
func CheckRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if safe, ok := ctx.Value(retrySafeKey{}).(bool); !ok || safe {
		return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
	}
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	var opErr *net.OpError
	if err != nil && errors.As(err, &opErr) && opErr.Op == "dial" {
		return true, nil
	}
	return false, nil
}

// SendHTTPRequest performs wReq with client. A nil client gets the defaults
// of NewClient.
func SendHTTPRequest(ctx context.Context, wReq *WHTTPReq, client *retryablehttp.Client) (*WHTTPRes, error) {
	if client == nil {
		var err error
		if client, err = NewClient(ClientConfig{Retries: DefaultRetries}); err != nil {
			return nil, err
		}
	}

	var body interface{}
	if wReq.Body != "" {
		body = []byte(wReq.Body)
	}
	if _, ok := ctx.Value(retrySafeKey{}).(bool); !ok {
		ctx = context.WithValue(ctx, retrySafeKey{}, idempotent(wReq.Method))
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, wReq.Method, wReq.URL, body)
	if err != nil {
		return nil, err
	}

	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	if wReq.Body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, h := range wReq.Headers {
		req.Header.Set(h.Name, h.Value)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	return &WHTTPRes{
		StatusCode: resp.StatusCode,
		BodyString: string(bodyBytes),
	}, nil
}
