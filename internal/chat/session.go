package chat

import (
	"context"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/local/pdfchat/internal/completion"
	mpkg "github.com/local/pdfchat/internal/metrics"
)

// DefaultMaxContextChars caps the context text of every request.
const DefaultMaxContextChars = 100_000

// Pending is closed once a dispatched request has been applied to the
// conversation. A nil Pending means nothing was dispatched.
type Pending <-chan struct{}

// Wait blocks until the request behind p has been applied.
func (p Pending) Wait() {
	if p != nil {
		<-p
	}
}

// Options configures a Session.
type Options struct {
	ID              string
	Completer       Completer
	Context         ContextSource
	Prompts         PromptBuilder
	Clipboard       Clipboard
	MaxContextChars int
}

// Session owns one conversation. All state lives on a single goroutine; public
// methods run as closures on it, and at most one completion is in flight.
type Session struct {
	id        string
	completer Completer
	contexts  ContextSource
	prompts   PromptBuilder
	clipboard Clipboard
	maxChars  int
	log       zerolog.Logger

	state State

	ops       chan func()
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewSession starts a session seeded with the greeting message.
func NewSession(opts Options) *Session {
	if opts.ID == "" {
		opts.ID = uuid.NewString()
	}
	if opts.Completer == nil {
		opts.Completer = missingCompleter{}
	}
	if opts.Prompts == nil {
		opts.Prompts = Prompts{}
	}
	if opts.Clipboard == nil {
		opts.Clipboard = &MemoryClipboard{}
	}
	if opts.Context == nil {
		opts.Context = ContextFunc(func(Scope) string { return "" })
	}
	if opts.MaxContextChars <= 0 {
		opts.MaxContextChars = DefaultMaxContextChars
	}
	s := &Session{
		id:        opts.ID,
		completer: opts.Completer,
		contexts:  opts.Context,
		prompts:   opts.Prompts,
		clipboard: opts.Clipboard,
		maxChars:  opts.MaxContextChars,
		log:       log.With().Str("session_id", opts.ID).Logger(),
		state:     newState(),
		ops:       make(chan func()),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	go s.loop()
	return s
}

func (s *Session) ID() string { return s.id }

func (s *Session) loop() {
	defer close(s.done)
	for {
		select {
		case op := <-s.ops:
			op()
		case <-s.quit:
			return
		}
	}
}

// do runs fn on the session goroutine and waits for it to return.
func (s *Session) do(fn func()) error {
	ran := make(chan struct{})
	select {
	case s.ops <- func() { fn(); close(ran) }:
	case <-s.done:
		return ErrSessionClosed
	}
	<-ran
	return nil
}

// post queues fn on the session goroutine without waiting. It reports false
// once the session is closed.
func (s *Session) post(fn func()) bool {
	select {
	case s.ops <- fn:
		return true
	case <-s.done:
		return false
	}
}

// Close stops the session. An in-flight completion still runs to the end but
// its result is dropped.
func (s *Session) Close() {
	s.closeOnce.Do(func() { close(s.quit) })
	<-s.done
}

// Snapshot returns a copy of the conversation state.
func (s *Session) Snapshot() State {
	var st State
	if err := s.do(func() { st = s.state.clone() }); err != nil {
		return State{}
	}
	return st
}

// UpdateScope changes the scope used by future requests.
func (s *Session) UpdateScope(scope Scope) error {
	return s.do(func() { s.state.Scope = scope })
}

// SetInput replaces the pending question text.
func (s *Session) SetInput(text string) error {
	return s.do(func() { s.state.Input = text })
}

// DismissError clears errorText.
func (s *Session) DismissError() error {
	return s.do(func() { s.state.ErrorText = "" })
}

// RunQuickAction sends a canned instruction about the current scope. The
// instruction itself is not shown in the history.
func (s *Session) RunQuickAction(action QuickAction) (Pending, error) {
	const op = "quick_action"
	if !action.valid() {
		return nil, ErrUnknownAction
	}
	var (
		pending Pending
		err     error
	)
	if derr := s.do(func() {
		if s.state.IsLoading {
			err = s.reject(op)
			return
		}
		scope := s.state.Scope
		text, ok := s.contextFor(op, scope)
		if !ok {
			err = ErrEmptyContext
			return
		}
		req := s.newRequest(s.prompts.SystemPrompt(), s.prompts.QuickActionPrompt(action, text, scope), scope)
		pending = s.dispatch(op, req, nil, s.appendAssistant(req))
	}); derr != nil {
		return nil, derr
	}
	return pending, err
}

// SendUserQuestion sends the pending input as a question. Blank input is a no-op.
func (s *Session) SendUserQuestion() (Pending, error) {
	var (
		pending Pending
		err     error
	)
	if derr := s.do(func() { pending, err = s.sendQuestion() }); derr != nil {
		return nil, derr
	}
	return pending, err
}

// Ask sets the input and sends it in one step.
func (s *Session) Ask(question string) (Pending, error) {
	var (
		pending Pending
		err     error
	)
	if derr := s.do(func() {
		if s.state.IsLoading {
			err = s.reject("question")
			return
		}
		s.state.Input = question
		pending, err = s.sendQuestion()
	}); derr != nil {
		return nil, derr
	}
	return pending, err
}

func (s *Session) sendQuestion() (Pending, error) {
	const op = "question"
	if s.state.IsLoading {
		return nil, s.reject(op)
	}
	question := strings.TrimSpace(s.state.Input)
	if question == "" {
		return nil, nil
	}
	s.state.Input = ""

	scope := s.state.Scope
	text, ok := s.contextFor(op, scope)
	if !ok {
		return nil, ErrEmptyContext
	}
	req := s.newRequest(s.prompts.SystemPrompt(), s.prompts.ChatPrompt(question, text, scope), scope)
	visible := newMessage(RoleUser, question, nil)
	return s.dispatch(op, req, &visible, s.appendAssistant(req)), nil
}

// Regenerate replays the stored request of an assistant message and replaces
// its text in place.
func (s *Session) Regenerate(messageID string) (Pending, error) {
	const op = "regenerate"
	var (
		pending Pending
		err     error
	)
	if derr := s.do(func() {
		var req RequestMetadata
		if req, err = s.replayable(op, messageID, "Cannot regenerate: no request metadata for this message."); err != nil {
			return
		}
		pending = s.dispatch(op, req, nil, func(text string) {
			if m := s.find(messageID); m != nil {
				m.Text = text
			}
		})
	}); derr != nil {
		return nil, derr
	}
	return pending, err
}

// ExplainSimpler asks for a simpler version of an assistant message. On
// success the message gets the new text and a request carrying the augmented
// prompt, so a later Regenerate replays the simpler variant.
func (s *Session) ExplainSimpler(messageID string) (Pending, error) {
	const op = "explain_simpler"
	var (
		pending Pending
		err     error
	)
	if derr := s.do(func() {
		var base RequestMetadata
		if base, err = s.replayable(op, messageID, "Cannot explain simpler: no request metadata for this message."); err != nil {
			return
		}
		req := base
		req.UserPrompt = s.prompts.ExplainSimplerUserPrompt(base.UserPrompt)
		pending = s.dispatch(op, req, nil, func(text string) {
			if m := s.find(messageID); m != nil {
				m.Text = text
				next := req
				m.Request = &next
			}
		})
	}); derr != nil {
		return nil, derr
	}
	return pending, err
}

// HandleAssistantAction routes a message menu action.
func (s *Session) HandleAssistantAction(action AssistantAction, messageID string) (Pending, error) {
	switch action {
	case ActionCopy:
		return nil, s.copyMessage(messageID)
	case ActionRegenerate:
		return s.Regenerate(messageID)
	case ActionExplainSimpler:
		return s.ExplainSimpler(messageID)
	}
	return nil, ErrUnknownAction
}

func (s *Session) copyMessage(messageID string) error {
	var (
		text  string
		found bool
	)
	if err := s.do(func() {
		if m := s.find(messageID); m != nil {
			text, found = m.Text, true
		}
	}); err != nil {
		return err
	}
	if !found {
		return ErrMessageNotFound
	}
	s.clipboard.Copy(text)
	return nil
}

// replayable checks the regenerate/explain-simpler preconditions and returns
// the stored request. Only a missing request touches errorText.
func (s *Session) replayable(op, messageID, missingText string) (RequestMetadata, error) {
	if s.state.IsLoading {
		return RequestMetadata{}, s.reject(op)
	}
	m := s.find(messageID)
	if m == nil {
		return RequestMetadata{}, ErrMessageNotFound
	}
	if m.Role != RoleAssistant {
		return RequestMetadata{}, ErrNotAssistant
	}
	if m.Request == nil {
		s.state.ErrorText = missingText
		mpkg.IncDispatch(op, "no_metadata")
		return RequestMetadata{}, ErrNoRequestMetadata
	}
	return *m.Request, nil
}

// contextFor fetches and caps the scope text. Empty text sets errorText.
func (s *Session) contextFor(op string, scope Scope) (string, bool) {
	text := capChars(s.contexts.Text(scope), s.maxChars)
	if strings.TrimSpace(text) == "" {
		s.state.ErrorText = emptyContextText(scope)
		mpkg.IncDispatch(op, "empty_context")
		s.log.Debug().Str("op", op).Str("scope", string(scope)).Msg("empty context, request not sent")
		return "", false
	}
	mpkg.ObserveContext(string(scope), utf8.RuneCountInString(text))
	return text, true
}

func (s *Session) newRequest(system, user string, scope Scope) RequestMetadata {
	return RequestMetadata{
		SystemPrompt: system,
		UserPrompt:   user,
		Temperature:  DefaultTemperature,
		MaxTokens:    DefaultMaxTokens,
		Scope:        scope,
	}
}

func (s *Session) appendAssistant(req RequestMetadata) func(string) {
	return func(text string) {
		r := req
		s.state.Messages = append(s.state.Messages, newMessage(RoleAssistant, text, &r))
	}
}

func (s *Session) reject(op string) error {
	mpkg.IncDispatch(op, "busy")
	s.log.Debug().Str("op", op).Msg("request in flight, dispatch rejected")
	return ErrBusy
}

// dispatch enters the loading state and starts the completion. apply runs on
// the session goroutine when the completion succeeds. Must be called on the
// session goroutine.
func (s *Session) dispatch(op string, req RequestMetadata, visible *Message, apply func(text string)) Pending {
	s.state.IsLoading = true
	s.state.ErrorText = ""
	if visible != nil {
		s.state.Messages = append(s.state.Messages, *visible)
	}
	mpkg.IncDispatch(op, "accepted")
	s.log.Info().Str("op", op).Str("scope", string(req.Scope)).Int("prompt_chars", len(req.UserPrompt)).Msg("completion dispatched")

	future := s.completer.Start(context.Background(), completion.Request{
		System:      req.SystemPrompt,
		User:        req.UserPrompt,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})

	pending := make(chan struct{})
	go func() {
		text, err := future.Wait()
		resolved := s.post(func() {
			defer close(pending)
			if err != nil {
				s.state.ErrorText = describeError(err)
				s.log.Warn().Err(err).Str("op", op).Msg("completion failed")
			} else {
				apply(text)
				s.log.Info().Str("op", op).Int("chars", len(text)).Msg("completion applied")
			}
			s.state.IsLoading = false
		})
		if !resolved {
			close(pending)
		}
	}()
	return pending
}

func (s *Session) find(id string) *Message {
	for i := range s.state.Messages {
		if s.state.Messages[i].ID == id {
			return &s.state.Messages[i]
		}
	}
	return nil
}

// capChars keeps at most max runes of text.
func capChars(text string, max int) string {
	if max <= 0 || len(text) <= max {
		return text
	}
	n := 0
	for i := range text {
		if n == max {
			return text[:i]
		}
		n++
	}
	return text
}
