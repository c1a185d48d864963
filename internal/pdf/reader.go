package pdf

import (
	"errors"
	"fmt"
	"sync"
)

var ErrPageOutOfRange = errors.New("page out of range")

// Reader is the viewer state of one open document: which page is current.
// It serves page and document text to a chat session. Safe for concurrent use.
type Reader struct {
	mu   sync.RWMutex
	doc  *Document
	page int
}

func NewReader(doc *Document) *Reader {
	return &Reader{doc: doc}
}

// SetPage moves to page i (0-based).
func (r *Reader) SetPage(i int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i < 0 || i >= r.doc.PageCount() {
		return fmt.Errorf("%w: %d of %d", ErrPageOutOfRange, i, r.doc.PageCount())
	}
	r.page = i
	return nil
}

func (r *Reader) Page() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.page
}

func (r *Reader) Document() *Document {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.doc
}

func (r *Reader) CurrentPageText() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.doc.PageText(r.page)
}

func (r *Reader) DocumentText() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.doc.DocumentText()
}
