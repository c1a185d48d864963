package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"

	"github.com/local/pdfchat/internal/chat"
	mpkg "github.com/local/pdfchat/internal/metrics"
	"github.com/local/pdfchat/internal/pdf"
	"github.com/local/pdfchat/internal/statuscheck"
)

// DocumentLoader turns a document reference into extracted text.
// *pdf.Loader satisfies it.
type DocumentLoader interface {
	Load(ctx context.Context, ref string) (*pdf.Document, error)
}

// HealthChecker reports dependency status. *statuscheck.Checker satisfies it.
type HealthChecker interface {
	Summary(ctx context.Context) statuscheck.Summary
}

// Options wires the server's collaborators.
type Options struct {
	Completer       chat.Completer
	Loader          DocumentLoader
	Health          HealthChecker
	Prompts         chat.PromptBuilder
	MaxContextChars int
	AllowedOrigins  []string
	// WaitTimeout bounds ?wait=true requests.
	WaitTimeout time.Duration
}

// Server exposes chat sessions over HTTP.
type Server struct {
	opts     Options
	router   *mux.Router
	sessions *registry
}

func New(opts Options) *Server {
	if opts.WaitTimeout <= 0 {
		opts.WaitTimeout = 2 * time.Minute
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	s := &Server{opts: opts, router: mux.NewRouter(), sessions: newRegistry()}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.Handle("/metrics", mpkg.Handler()).Methods(http.MethodGet)

	s.router.HandleFunc("/sessions", s.handleCreateSession).Methods(http.MethodPost)
	s.router.HandleFunc("/sessions/{id}", s.withSession(s.handleGetSession)).Methods(http.MethodGet)
	s.router.HandleFunc("/sessions/{id}", s.handleDeleteSession).Methods(http.MethodDelete)
	s.router.HandleFunc("/sessions/{id}/scope", s.withSession(s.handleScope)).Methods(http.MethodPut)
	s.router.HandleFunc("/sessions/{id}/page", s.withSession(s.handlePage)).Methods(http.MethodPut)
	s.router.HandleFunc("/sessions/{id}/questions", s.withSession(s.handleQuestion)).Methods(http.MethodPost)
	s.router.HandleFunc("/sessions/{id}/quick-actions/{action}", s.withSession(s.handleQuickAction)).Methods(http.MethodPost)
	s.router.HandleFunc("/sessions/{id}/messages/{mid}/{action}", s.withSession(s.handleMessageAction)).Methods(http.MethodPost)
	s.router.HandleFunc("/sessions/{id}/error", s.withSession(s.handleDismissError)).Methods(http.MethodDelete)
	s.router.HandleFunc("/sessions/{id}/clipboard", s.withSession(s.handleClipboard)).Methods(http.MethodGet)
}

// Handler returns the router wrapped with CORS.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: s.opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	})
	return c.Handler(s.router)
}

// Close ends every open session.
func (s *Server) Close() { s.sessions.closeAll() }

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.opts.Health == nil {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "sessions": s.sessions.len()})
		return
	}
	sum := s.opts.Health.Summary(r.Context())
	status, code := "ok", http.StatusOK
	if !sum.Healthy() {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{"status": status, "sessions": s.sessions.len(), "checks": sum})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var req createSessionReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json", nil)
		return
	}
	if strings.TrimSpace(req.Document) == "" {
		writeError(w, http.StatusBadRequest, "missing document", nil)
		return
	}
	if s.opts.Loader == nil {
		writeError(w, http.StatusServiceUnavailable, "document loading unavailable", nil)
		return
	}

	doc, err := s.opts.Loader.Load(r.Context(), req.Document)
	if err != nil {
		log.Warn().Err(err).Str("document", req.Document).Msg("session not created")
		writeError(w, loadStatus(err), err.Error(), nil)
		return
	}

	reader := pdf.NewReader(doc)
	clip := &chat.MemoryClipboard{}
	e := &entry{
		session: chat.NewSession(chat.Options{
			Completer:       s.opts.Completer,
			Context:         chat.ViewContext(reader),
			Prompts:         s.opts.Prompts,
			Clipboard:       clip,
			MaxContextChars: s.opts.MaxContextChars,
		}),
		reader:    reader,
		clipboard: clip,
		created:   time.Now(),
	}
	s.sessions.add(e)
	log.Info().Str("session_id", e.session.ID()).Str("document", doc.Name).Int("pages", doc.PageCount()).Msg("session created")
	writeJSON(w, http.StatusCreated, viewOf(e))
}

func loadStatus(err error) int {
	switch {
	case errors.Is(err, pdf.ErrNotPDF), errors.Is(err, pdf.ErrInvalidPDF):
		return http.StatusUnprocessableEntity
	case errors.Is(err, pdf.ErrInvalidLocation), errors.Is(err, pdf.ErrS3Unavailable):
		return http.StatusBadRequest
	case errors.Is(err, pdf.ErrLocalDisabled), errors.Is(err, pdf.ErrHostNotAllowed):
		return http.StatusForbidden
	case errors.Is(err, pdf.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadGateway
}

type sessionHandler func(w http.ResponseWriter, r *http.Request, e *entry)

func (s *Server) withSession(h sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e, ok := s.sessions.get(mux.Vars(r)["id"])
		if !ok {
			writeError(w, http.StatusNotFound, "session not found", nil)
			return
		}
		h(w, r, e)
	}
}

func (s *Server) handleGetSession(w http.ResponseWriter, _ *http.Request, e *entry) {
	writeJSON(w, http.StatusOK, viewOf(e))
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !s.sessions.remove(id) {
		writeError(w, http.StatusNotFound, "session not found", nil)
		return
	}
	log.Info().Str("session_id", id).Msg("session closed")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleScope(w http.ResponseWriter, r *http.Request, e *entry) {
	defer r.Body.Close()
	var req scopeReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json", nil)
		return
	}
	scope, err := chat.ParseScope(req.Scope)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if err := e.session.UpdateScope(scope); err != nil {
		s.writeChatError(w, e, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(e))
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request, e *entry) {
	defer r.Body.Close()
	var req pageReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Page == nil {
		writeError(w, http.StatusBadRequest, "missing page", nil)
		return
	}
	if err := e.reader.SetPage(*req.Page); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error(), nil)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(e))
}

func (s *Server) handleQuestion(w http.ResponseWriter, r *http.Request, e *entry) {
	defer r.Body.Close()
	var req questionReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json", nil)
		return
	}
	p, err := e.session.Ask(req.Question)
	s.respondDispatch(w, r, e, p, err)
}

func (s *Server) handleQuickAction(w http.ResponseWriter, r *http.Request, e *entry) {
	action, err := chat.ParseQuickAction(mux.Vars(r)["action"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	p, err := e.session.RunQuickAction(action)
	s.respondDispatch(w, r, e, p, err)
}

func (s *Server) handleMessageAction(w http.ResponseWriter, r *http.Request, e *entry) {
	vars := mux.Vars(r)
	action, err := chat.ParseAssistantAction(vars["action"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	p, err := e.session.HandleAssistantAction(action, vars["mid"])
	s.respondDispatch(w, r, e, p, err)
}

func (s *Server) handleDismissError(w http.ResponseWriter, _ *http.Request, e *entry) {
	if err := e.session.DismissError(); err != nil {
		s.writeChatError(w, e, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(e))
}

func (s *Server) handleClipboard(w http.ResponseWriter, _ *http.Request, e *entry) {
	writeJSON(w, http.StatusOK, clipboardResp{Text: e.clipboard.Text()})
}

// respondDispatch answers 202 while a request is in flight, or 200 once it
// has been applied (always for ?wait=true unless the wait times out).
func (s *Server) respondDispatch(w http.ResponseWriter, r *http.Request, e *entry, p chat.Pending, err error) {
	if err != nil {
		s.writeChatError(w, e, err)
		return
	}
	code := http.StatusOK
	if p != nil {
		code = http.StatusAccepted
		if wantsWait(r) {
			timer := time.NewTimer(s.opts.WaitTimeout)
			defer timer.Stop()
			select {
			case <-p:
				code = http.StatusOK
			case <-timer.C:
			case <-r.Context().Done():
				return
			}
		}
	}
	writeJSON(w, code, viewOf(e))
}

func wantsWait(r *http.Request) bool {
	switch strings.ToLower(r.URL.Query().Get("wait")) {
	case "1", "true", "yes":
		return true
	}
	return false
}

func (s *Server) writeChatError(w http.ResponseWriter, e *entry, err error) {
	var code int
	switch {
	case errors.Is(err, chat.ErrBusy):
		code = http.StatusConflict
	case errors.Is(err, chat.ErrEmptyContext), errors.Is(err, chat.ErrNoRequestMetadata), errors.Is(err, chat.ErrNotAssistant):
		code = http.StatusUnprocessableEntity
	case errors.Is(err, chat.ErrMessageNotFound):
		code = http.StatusNotFound
	case errors.Is(err, chat.ErrUnknownAction):
		code = http.StatusBadRequest
	case errors.Is(err, chat.ErrSessionClosed):
		writeError(w, http.StatusGone, err.Error(), nil)
		return
	default:
		code = http.StatusInternalServerError
	}
	v := viewOf(e)
	writeError(w, code, err.Error(), &v)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string, v *sessionView) {
	writeJSON(w, code, errorResp{Error: msg, Session: v})
}
