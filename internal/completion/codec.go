package completion

import (
	"encoding/json"
	"net/url"
	"strings"
	"unicode/utf8"
)

const (
	completionPath = "/foundationModels/v1/completion"

	// maxErrorBodyLength bounds the response excerpt kept on HTTP failures.
	maxErrorBodyLength = 600
)

// endpointURL joins the base URL with the completion path.
func endpointURL(base string) (string, error) {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if base == "" {
		return "", ErrInvalidEndpoint
	}
	u, err := url.Parse(base + completionPath)
	if err != nil {
		return "", ErrInvalidEndpoint
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", ErrInvalidEndpoint
	}
	return u.String(), nil
}

// encodeRequest serialises a non-streaming request with the system prompt first.
func encodeRequest(modelURI string, req Request) ([]byte, error) {
	payload := completionRequest{
		ModelURI: modelURI,
		CompletionOptions: completionOptions{
			Stream:      false,
			Temperature: req.Temperature,
			MaxTokens:   req.MaxTokens,
		},
		Messages: []wireMessage{
			{Role: "system", Text: req.System},
			{Role: "user", Text: req.User},
		},
	}
	return json.Marshal(payload)
}

// validateStatus turns a non-2xx status into an *HTTPError with a trimmed body excerpt.
func validateStatus(status int, body []byte) error {
	if status >= 200 && status <= 299 {
		return nil
	}
	return &HTTPError{StatusCode: status, Body: excerpt(body, maxErrorBodyLength)}
}

func excerpt(body []byte, limit int) string {
	s := strings.TrimSpace(strings.ToValidUTF8(string(body), ""))
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit])
}

// decodeCompletionText extracts result.alternatives[0].message.text, trimmed.
func decodeCompletionText(body []byte) (string, error) {
	var resp completionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", ErrDecodingFailed
	}
	if resp.Result == nil || len(resp.Result.Alternatives) == 0 {
		return "", ErrEmptyResult
	}
	msg := resp.Result.Alternatives[0].Message
	if msg == nil || msg.Text == nil {
		return "", ErrEmptyResult
	}
	text := strings.TrimSpace(*msg.Text)
	if text == "" {
		return "", ErrEmptyResult
	}
	return text, nil
}
