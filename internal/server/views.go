package server

import (
	"time"

	"github.com/local/pdfchat/internal/chat"
)

type createSessionReq struct {
	Document string `json:"document"`
}

type scopeReq struct {
	Scope string `json:"scope"`
}

type pageReq struct {
	Page *int `json:"page"`
}

type questionReq struct {
	Question string `json:"question"`
}

type documentView struct {
	Name        string `json:"name"`
	Fingerprint string `json:"fingerprint,omitempty"`
	PageCount   int    `json:"page_count"`
	Page        int    `json:"page"`
}

type messageView struct {
	ID         string    `json:"id"`
	Role       chat.Role `json:"role"`
	Text       string    `json:"text"`
	CreatedAt  time.Time `json:"created_at"`
	Replayable bool      `json:"replayable"`
}

type sessionView struct {
	ID           string            `json:"id"`
	Document     documentView      `json:"document"`
	Messages     []messageView     `json:"messages"`
	Input        string            `json:"input"`
	IsLoading    bool              `json:"is_loading"`
	ErrorText    string            `json:"error_text,omitempty"`
	Scope        chat.Scope        `json:"scope"`
	QuickActions []quickActionView `json:"quick_actions"`
}

type quickActionView struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type errorResp struct {
	Error   string       `json:"error"`
	Session *sessionView `json:"session,omitempty"`
}

type clipboardResp struct {
	Text string `json:"text"`
}

// viewOf renders the entry. Regenerate and explain-simpler are offered only
// on assistant messages with request metadata while nothing is loading.
func viewOf(e *entry) sessionView {
	st := e.session.Snapshot()
	doc := e.reader.Document()
	v := sessionView{
		ID: e.session.ID(),
		Document: documentView{
			PageCount: doc.PageCount(),
			Page:      e.reader.Page(),
		},
		Messages:  make([]messageView, 0, len(st.Messages)),
		Input:     st.Input,
		IsLoading: st.IsLoading,
		ErrorText: st.ErrorText,
		Scope:     st.Scope,
	}
	if doc != nil {
		v.Document.Name = doc.Name
		v.Document.Fingerprint = doc.Fingerprint
	}
	for _, m := range st.Messages {
		v.Messages = append(v.Messages, messageView{
			ID:         m.ID,
			Role:       m.Role,
			Text:       m.Text,
			CreatedAt:  m.CreatedAt,
			Replayable: m.Replayable() && !st.IsLoading,
		})
	}
	for _, a := range chat.QuickActions {
		v.QuickActions = append(v.QuickActions, quickActionView{ID: a.String(), Title: a.Title()})
	}
	return v
}
