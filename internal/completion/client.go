package completion

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	mpkg "github.com/local/pdfchat/internal/metrics"
)

const (
	// DefaultBaseURL is the public foundation models API.
	DefaultBaseURL = "https://llm.api.cloud.yandex.net"

	DefaultRequestTimeout  = 30 * time.Second
	DefaultResourceTimeout = 60 * time.Second

	// maxResponseSize caps how much of a response body is read.
	maxResponseSize = 4 << 20

	noResponseBody = "No HTTP response."
)

// Options configures a Client.
type Options struct {
	BaseURL  string
	APIKey   string
	ModelURI string
	// RequestTimeout bounds the wait for response headers.
	RequestTimeout time.Duration
	// ResourceTimeout bounds the whole exchange including the body.
	ResourceTimeout time.Duration
	// HTTPClient overrides the transport built from the timeouts above.
	HTTPClient *http.Client
}

// Client talks to the completion endpoint. It holds only static configuration
// and is safe for concurrent use.
type Client struct {
	http     *http.Client
	baseURL  string
	apiKey   string
	modelURI string
}

// NewClient builds a Client, filling defaults for empty options.
func NewClient(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	if opts.ResourceTimeout <= 0 {
		opts.ResourceTimeout = DefaultResourceTimeout
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   opts.RequestTimeout,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout:   10 * time.Second,
				ResponseHeaderTimeout: opts.RequestTimeout,
				IdleConnTimeout:       90 * time.Second,
				MaxIdleConnsPerHost:   4,
			},
			Timeout: opts.ResourceTimeout,
		}
	}
	return &Client{http: hc, baseURL: opts.BaseURL, apiKey: opts.APIKey, modelURI: opts.ModelURI}
}

func (c *Client) Name() string { return "yandexgpt" }

// Complete performs one non-streaming exchange and returns the trimmed completion text.
// It never retries.
func (c *Client) Complete(ctx context.Context, req Request) (string, error) {
	start := time.Now()
	text, status, err := c.do(ctx, req)
	dur := time.Since(start)
	mpkg.ObserveCompletion(resultLabel(err), dur)

	ev := log.Debug()
	if err != nil {
		ev = log.Warn().Err(err)
	}
	ev.Str("provider", c.Name()).
		Str("model", c.modelURI).
		Int("status", status).
		Int("max_tokens", req.MaxTokens).
		Dur("duration", dur).
		Msg("completion request finished")
	return text, err
}

// Start runs Complete on its own goroutine and returns a Future for the result.
func (c *Client) Start(ctx context.Context, req Request) *Future {
	return Async(func() (string, error) { return c.Complete(ctx, req) })
}

func (c *Client) do(ctx context.Context, req Request) (string, int, error) {
	endpoint, err := endpointURL(c.baseURL)
	if err != nil {
		return "", 0, err
	}
	body, err := encodeRequest(c.modelURI, req)
	if err != nil {
		return "", 0, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", 0, ErrInvalidEndpoint
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Api-Key "+c.apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", NoResponseStatus, &HTTPError{StatusCode: NoResponseStatus, Body: noResponseBody, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return "", resp.StatusCode, &HTTPError{StatusCode: NoResponseStatus, Body: noResponseBody, Err: err}
	}
	if err := validateStatus(resp.StatusCode, data); err != nil {
		return "", resp.StatusCode, err
	}
	text, err := decodeCompletionText(data)
	return text, resp.StatusCode, err
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrInvalidEndpoint):
		return "invalid_endpoint"
	case errors.Is(err, ErrDecodingFailed):
		return "decoding_failed"
	case errors.Is(err, ErrEmptyResult):
		return "empty_result"
	}
	if httpErr, ok := IsHTTPError(err); ok && httpErr.StatusCode == NoResponseStatus {
		return "transport"
	}
	return "http_error"
}
