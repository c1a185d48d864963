package chat

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Scope selects which part of the document feeds a request.
type Scope string

const (
	ScopePage     Scope = "page"
	ScopeDocument Scope = "document"
)

// ParseScope accepts "page" or "document", case-insensitively.
func ParseScope(s string) (Scope, error) {
	switch Scope(strings.ToLower(strings.TrimSpace(s))) {
	case ScopePage:
		return ScopePage, nil
	case ScopeDocument:
		return ScopeDocument, nil
	}
	return "", fmt.Errorf("unknown scope %q", s)
}

// Fixed sampling parameters for every request of a session.
const (
	DefaultTemperature = 0.3
	DefaultMaxTokens   = 900
)

// RequestMetadata is the exact input that produced an assistant message.
// It is never mutated; explain-simpler replaces it with a new value.
type RequestMetadata struct {
	SystemPrompt string  `json:"system_prompt"`
	UserPrompt   string  `json:"user_prompt"`
	Temperature  float64 `json:"temperature"`
	MaxTokens    int     `json:"max_tokens"`
	Scope        Scope   `json:"scope"`
}

// Message is one turn of the conversation.
type Message struct {
	ID        string           `json:"id"`
	Role      Role             `json:"role"`
	Text      string           `json:"text"`
	CreatedAt time.Time        `json:"created_at"`
	Request   *RequestMetadata `json:"request,omitempty"`
}

func newMessage(role Role, text string, req *RequestMetadata) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      role,
		Text:      text,
		CreatedAt: time.Now(),
		Request:   req,
	}
}

// Replayable reports whether regenerate and explain-simpler can run on m.
func (m Message) Replayable() bool {
	return m.Role == RoleAssistant && m.Request != nil
}

const greeting = "Ask about the current PDF page, or use quick actions below."

// State is the conversation owned by a Session.
type State struct {
	Messages  []Message `json:"messages"`
	Input     string    `json:"input"`
	IsLoading bool      `json:"is_loading"`
	ErrorText string    `json:"error_text,omitempty"`
	Scope     Scope     `json:"scope"`
}

func newState() State {
	return State{
		Messages: []Message{newMessage(RoleAssistant, greeting, nil)},
		Scope:    ScopePage,
	}
}

// clone copies the state so callers never share memory with the owner.
func (s State) clone() State {
	out := s
	out.Messages = make([]Message, len(s.Messages))
	for i, m := range s.Messages {
		if m.Request != nil {
			req := *m.Request
			m.Request = &req
		}
		out.Messages[i] = m
	}
	return out
}
