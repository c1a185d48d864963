package chat

import (
	"context"
	"sync"

	"github.com/local/pdfchat/internal/completion"
)

// Completer starts a completion and hands back its future.
// *completion.Client satisfies it.
type Completer interface {
	Start(ctx context.Context, req completion.Request) *completion.Future
}

// missingCompleter fails every request. Sessions built without a Completer use it.
type missingCompleter struct{}

func (missingCompleter) Start(context.Context, completion.Request) *completion.Future {
	return completion.Async(func() (string, error) { return "", ErrNoCompleter })
}

// ContextSource returns the raw text for a scope, or "" when there is none.
type ContextSource interface {
	Text(scope Scope) string
}

// ContextFunc adapts a function to ContextSource.
type ContextFunc func(Scope) string

func (f ContextFunc) Text(scope Scope) string { return f(scope) }

// DocumentView is the reader state a session draws its context from.
type DocumentView interface {
	CurrentPageText() string
	DocumentText() string
}

// ViewContext reads the current page or the whole document from v.
func ViewContext(v DocumentView) ContextSource {
	return ContextFunc(func(scope Scope) string {
		if scope == ScopeDocument {
			return v.DocumentText()
		}
		return v.CurrentPageText()
	})
}

// Clipboard receives copied message text. Copy must not block for long and
// reports nothing back.
type Clipboard interface {
	Copy(text string)
}

// MemoryClipboard keeps the last copied text. Safe for concurrent use.
type MemoryClipboard struct {
	mu   sync.Mutex
	text string
}

func (c *MemoryClipboard) Copy(text string) {
	c.mu.Lock()
	c.text = text
	c.mu.Unlock()
}

func (c *MemoryClipboard) Text() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.text
}
