package chat

import (
	"errors"
	"fmt"
	"strings"

	"github.com/local/pdfchat/internal/completion"
)

var (
	// ErrBusy rejects a dispatch while another request is in flight.
	ErrBusy = errors.New("a request is already in flight")
	// ErrEmptyContext means the selected scope has no extractable text.
	ErrEmptyContext = errors.New("no text for the selected scope")
	// ErrNoRequestMetadata means a message cannot be replayed.
	ErrNoRequestMetadata = errors.New("message has no request metadata")
	ErrMessageNotFound   = errors.New("message not found")
	ErrNotAssistant      = errors.New("not an assistant message")
	ErrUnknownAction     = errors.New("unknown action")
	ErrSessionClosed     = errors.New("session closed")
	ErrNoCompleter       = errors.New("no completion backend configured")
)

func emptyContextText(scope Scope) string {
	if scope == ScopeDocument {
		return "No text found in this document."
	}
	return "No text found on this page."
}

// describeError renders a completion failure for errorText.
func describeError(err error) string {
	switch {
	case errors.Is(err, completion.ErrInvalidEndpoint):
		return "Invalid URL."
	case errors.Is(err, completion.ErrDecodingFailed):
		return "Failed to decode server response."
	case errors.Is(err, completion.ErrEmptyResult):
		return "Empty response from model."
	case errors.Is(err, completion.ErrUnavailable):
		return "The model is temporarily unavailable. Try again shortly."
	}
	if httpErr, ok := completion.IsHTTPError(err); ok {
		return strings.TrimSpace(fmt.Sprintf("Request failed with status %d. %s", httpErr.StatusCode, httpErr.Body))
	}
	return err.Error()
}
