package completion

import (
	"errors"
	"fmt"
)

// Request carries one system/user exchange and its sampling parameters.
type Request struct {
	System      string
	User        string
	Temperature float64
	MaxTokens   int
}

// Wire format of the foundation models completion endpoint.

type wireMessage struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

type completionOptions struct {
	Stream      bool    `json:"stream"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"maxTokens"`
}

type completionRequest struct {
	ModelURI          string            `json:"modelUri"`
	CompletionOptions completionOptions `json:"completionOptions"`
	Messages          []wireMessage     `json:"messages"`
}

// Every level of the response is optional, so each one is a pointer or a slice
// and presence is checked explicitly while decoding.
type completionResponse struct {
	Result *struct {
		Alternatives []struct {
			Message *struct {
				Role *string `json:"role"`
				Text *string `json:"text"`
			} `json:"message"`
		} `json:"alternatives"`
	} `json:"result"`
}

var (
	// ErrInvalidEndpoint is returned when the configured base URL cannot form a request URL.
	ErrInvalidEndpoint = errors.New("invalid completion endpoint")
	// ErrDecodingFailed means the body was not the JSON shape the endpoint promises.
	ErrDecodingFailed = errors.New("completion response decoding failed")
	// ErrEmptyResult means the body was well formed but carried no usable text.
	ErrEmptyResult = errors.New("empty completion result")
	// ErrUnavailable is returned without a request while the endpoint is cooling down.
	ErrUnavailable = errors.New("completion endpoint temporarily unavailable")
)

// NoResponseStatus is reported when the exchange produced no HTTP response at all.
const NoResponseStatus = -1

// HTTPError represents a transport failure or a non-2xx status from the endpoint.
type HTTPError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *HTTPError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("completion HTTP %d: %s: %v", e.StatusCode, e.Body, e.Err)
	}
	return fmt.Sprintf("completion HTTP %d: %s", e.StatusCode, e.Body)
}

func (e *HTTPError) Unwrap() error { return e.Err }

// IsHTTPError reports whether err is an *HTTPError and returns it.
func IsHTTPError(err error) (*HTTPError, bool) {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr, true
	}
	return nil, false
}
