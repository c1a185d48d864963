package server

import (
	"sync"
	"time"

	"github.com/local/pdfchat/internal/chat"
	mpkg "github.com/local/pdfchat/internal/metrics"
	"github.com/local/pdfchat/internal/pdf"
)

// entry is one open document with its conversation.
type entry struct {
	session   *chat.Session
	reader    *pdf.Reader
	clipboard *chat.MemoryClipboard
	created   time.Time
}

// registry holds the live sessions by id.
type registry struct {
	mu       sync.RWMutex
	sessions map[string]*entry
}

func newRegistry() *registry {
	return &registry{sessions: map[string]*entry{}}
}

func (r *registry) add(e *entry) {
	r.mu.Lock()
	r.sessions[e.session.ID()] = e
	r.mu.Unlock()
	mpkg.SessionOpened()
}

func (r *registry) get(id string) (*entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[id]
	return e, ok
}

// remove closes and forgets the session. It reports false for unknown ids.
func (r *registry) remove(id string) bool {
	r.mu.Lock()
	e, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if !ok {
		return false
	}
	e.session.Close()
	mpkg.SessionClosed()
	return true
}

func (r *registry) closeAll() {
	r.mu.Lock()
	all := r.sessions
	r.sessions = map[string]*entry{}
	r.mu.Unlock()
	for _, e := range all {
		e.session.Close()
		mpkg.SessionClosed()
	}
}

func (r *registry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
