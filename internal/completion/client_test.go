package completion

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Options{BaseURL: srv.URL, APIKey: "test-key", ModelURI: "gpt://folder/yandexgpt-lite"})
}

func TestComplete_RoundTrip(t *testing.T) {
	var got completionRequest
	var headers http.Header
	var path string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		headers = r.Header.Clone()
		path = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"result":{"alternatives":[{"message":{"role":"assistant","text":"  Hi  "}}]}}`))
	})

	text, err := client.Complete(context.Background(), Request{System: "S", User: "U", Temperature: 0.3, MaxTokens: 900})
	require.NoError(t, err)
	assert.Equal(t, "Hi", text)

	assert.Equal(t, "/foundationModels/v1/completion", path)
	assert.Equal(t, "application/json", headers.Get("Content-Type"))
	assert.Equal(t, "Api-Key test-key", headers.Get("Authorization"))

	assert.Equal(t, "gpt://folder/yandexgpt-lite", got.ModelURI)
	assert.False(t, got.CompletionOptions.Stream)
	assert.InDelta(t, 0.3, got.CompletionOptions.Temperature, 1e-9)
	assert.Equal(t, 900, got.CompletionOptions.MaxTokens)
	assert.Equal(t, []wireMessage{{Role: "system", Text: "S"}, {Role: "user", Text: "U"}}, got.Messages)
}

func TestEncodeRequest_WireShape(t *testing.T) {
	body, err := encodeRequest("gpt://m", Request{System: "S", User: "U", Temperature: 0.3, MaxTokens: 900})
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"modelUri": "gpt://m",
		"completionOptions": {"stream": false, "temperature": 0.3, "maxTokens": 900},
		"messages": [{"role": "system", "text": "S"}, {"role": "user", "text": "U"}]
	}`, string(body))
}

func TestComplete_HTTPErrorCarriesStatusAndBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("not found"))
	})

	_, err := client.Complete(context.Background(), Request{System: "S", User: "U"})
	httpErr, ok := IsHTTPError(err)
	require.True(t, ok, "expected *HTTPError, got %v", err)
	assert.Equal(t, 404, httpErr.StatusCode)
	assert.Equal(t, "not found", httpErr.Body)
}

func TestComplete_HTTPErrorBodyIsBounded(t *testing.T) {
	long := strings.Repeat("x", 2000)
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("\n  " + long))
	})

	_, err := client.Complete(context.Background(), Request{})
	httpErr, ok := IsHTTPError(err)
	require.True(t, ok)
	assert.Equal(t, 500, httpErr.StatusCode)
	assert.Len(t, httpErr.Body, maxErrorBodyLength)
	assert.Equal(t, long[:maxErrorBodyLength], httpErr.Body)
}

func TestComplete_NoResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	base := srv.URL
	srv.Close()

	client := NewClient(Options{BaseURL: base, APIKey: "k", ModelURI: "m", ResourceTimeout: 2 * time.Second})
	_, err := client.Complete(context.Background(), Request{})
	httpErr, ok := IsHTTPError(err)
	require.True(t, ok)
	assert.Equal(t, NoResponseStatus, httpErr.StatusCode)
	assert.NotNil(t, errors.Unwrap(err))
}

func TestComplete_InvalidEndpoint(t *testing.T) {
	for _, base := range []string{"not a url", "ftp://example.com", "http://", "://missing"} {
		client := NewClient(Options{BaseURL: base})
		_, err := client.Complete(context.Background(), Request{})
		assert.ErrorIs(t, err, ErrInvalidEndpoint, base)
	}
}

func TestComplete_DecodingFailures(t *testing.T) {
	tests := []struct {
		name string
		body string
		want error
	}{
		{"malformed json", `{"result":`, ErrDecodingFailed},
		{"wrong type", `{"result":{"alternatives":"nope"}}`, ErrDecodingFailed},
		{"empty object", `{}`, ErrEmptyResult},
		{"no alternatives", `{"result":{"alternatives":[]}}`, ErrEmptyResult},
		{"missing message", `{"result":{"alternatives":[{}]}}`, ErrEmptyResult},
		{"missing text", `{"result":{"alternatives":[{"message":{"role":"assistant"}}]}}`, ErrEmptyResult},
		{"blank text", `{"result":{"alternatives":[{"message":{"role":"assistant","text":" \n\t "}}]}}`, ErrEmptyResult},
		{"null result", `{"result":null}`, ErrEmptyResult},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			})
			_, err := client.Complete(context.Background(), Request{})
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestDecodeCompletionText_UsesFirstAlternative(t *testing.T) {
	text, err := decodeCompletionText([]byte(`{"result":{"alternatives":[
		{"message":{"role":"assistant","text":"first"}},
		{"message":{"role":"assistant","text":"second"}}]}}`))
	require.NoError(t, err)
	assert.Equal(t, "first", text)
}

func TestStart_ReturnsFuture(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"result":{"alternatives":[{"message":{"text":"async"}}]}}`))
	})

	f := client.Start(context.Background(), Request{})
	select {
	case <-f.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("future never resolved")
	}
	text, err := f.Wait()
	require.NoError(t, err)
	assert.Equal(t, "async", text)
}

func TestEndpointURL_TrimsTrailingSlash(t *testing.T) {
	u, err := endpointURL("https://llm.example.net/")
	require.NoError(t, err)
	assert.Equal(t, "https://llm.example.net/foundationModels/v1/completion", u)
}
