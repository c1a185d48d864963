package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/pdfchat/internal/completion"
)

// stubCompleter records requests and answers them with reply. When gate is
// set, every call blocks until a value is received from it.
type stubCompleter struct {
	mu    sync.Mutex
	calls []completion.Request
	reply func(completion.Request) (string, error)
	gate  chan struct{}

	inflight    atomic.Int32
	maxInflight atomic.Int32
}

func (c *stubCompleter) Start(_ context.Context, req completion.Request) *completion.Future {
	c.mu.Lock()
	c.calls = append(c.calls, req)
	c.mu.Unlock()
	return completion.Async(func() (string, error) {
		n := c.inflight.Add(1)
		defer c.inflight.Add(-1)
		for {
			cur := c.maxInflight.Load()
			if n <= cur || c.maxInflight.CompareAndSwap(cur, n) {
				break
			}
		}
		if c.gate != nil {
			<-c.gate
		}
		if c.reply == nil {
			return "answer", nil
		}
		return c.reply(req)
	})
}

func (c *stubCompleter) Calls() []completion.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]completion.Request(nil), c.calls...)
}

type fakeView struct {
	mu       sync.Mutex
	page     string
	document string
}

func (v *fakeView) CurrentPageText() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.page
}

func (v *fakeView) DocumentText() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.document
}

func newTestSession(t *testing.T, c *stubCompleter, view *fakeView) (*Session, *MemoryClipboard) {
	t.Helper()
	clip := &MemoryClipboard{}
	s := NewSession(Options{Completer: c, Context: ViewContext(view), Clipboard: clip})
	t.Cleanup(s.Close)
	return s, clip
}

func waitPending(t *testing.T, p Pending) {
	t.Helper()
	require.NotNil(t, p, "expected a dispatched request")
	select {
	case <-p:
	case <-time.After(5 * time.Second):
		t.Fatal("request was never applied")
	}
}

func lastAssistant(t *testing.T, st State) Message {
	t.Helper()
	for i := len(st.Messages) - 1; i >= 0; i-- {
		if st.Messages[i].Role == RoleAssistant {
			return st.Messages[i]
		}
	}
	t.Fatal("no assistant message")
	return Message{}
}

func TestNewSession_SeedsGreeting(t *testing.T) {
	s, _ := newTestSession(t, &stubCompleter{}, &fakeView{})
	st := s.Snapshot()
	require.Len(t, st.Messages, 1)
	assert.Equal(t, RoleAssistant, st.Messages[0].Role)
	assert.Equal(t, greeting, st.Messages[0].Text)
	assert.Nil(t, st.Messages[0].Request)
	assert.False(t, st.Messages[0].Replayable())
	assert.Equal(t, ScopePage, st.Scope)
	assert.False(t, st.IsLoading)
	assert.Empty(t, st.ErrorText)
}

func TestRunQuickAction_EmptyPageContext(t *testing.T) {
	c := &stubCompleter{}
	s, _ := newTestSession(t, c, &fakeView{page: "", document: "doc text"})

	p, err := s.RunQuickAction(QuickSummarize)
	assert.ErrorIs(t, err, ErrEmptyContext)
	assert.Nil(t, p)

	st := s.Snapshot()
	assert.Len(t, st.Messages, 1)
	assert.Equal(t, "No text found on this page.", st.ErrorText)
	assert.False(t, st.IsLoading)
	assert.Empty(t, c.Calls())
}

func TestSendUserQuestion_EmptyDocumentContext(t *testing.T) {
	c := &stubCompleter{}
	s, _ := newTestSession(t, c, &fakeView{page: "page text", document: "  \n "})
	require.NoError(t, s.UpdateScope(ScopeDocument))
	require.NoError(t, s.SetInput("What is X?"))

	p, err := s.SendUserQuestion()
	assert.ErrorIs(t, err, ErrEmptyContext)
	assert.Nil(t, p)

	st := s.Snapshot()
	assert.Len(t, st.Messages, 1, "no user bubble on empty context")
	assert.Equal(t, "No text found in this document.", st.ErrorText)
	assert.Empty(t, st.Input, "input is cleared before the context check")
	assert.Empty(t, c.Calls())
}

func TestRunQuickAction_Success(t *testing.T) {
	c := &stubCompleter{reply: func(completion.Request) (string, error) { return "- point", nil }}
	s, _ := newTestSession(t, c, &fakeView{page: "page text"})

	p, err := s.RunQuickAction(QuickKeyPoints)
	require.NoError(t, err)
	waitPending(t, p)

	st := s.Snapshot()
	require.Len(t, st.Messages, 2, "quick actions add only the assistant reply")
	reply := st.Messages[1]
	assert.Equal(t, RoleAssistant, reply.Role)
	assert.Equal(t, "- point", reply.Text)
	require.NotNil(t, reply.Request)

	calls := c.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, Prompts{}.SystemPrompt(), calls[0].System)
	assert.Equal(t, Prompts{}.QuickActionPrompt(QuickKeyPoints, "page text", ScopePage), calls[0].User)
	assert.Equal(t, RequestMetadata{
		SystemPrompt: calls[0].System,
		UserPrompt:   calls[0].User,
		Temperature:  0.3,
		MaxTokens:    900,
		Scope:        ScopePage,
	}, *reply.Request)
}

func TestAsk_SuccessAddsQuestionAndAnswer(t *testing.T) {
	c := &stubCompleter{reply: func(completion.Request) (string, error) { return "X is Y.", nil }}
	s, _ := newTestSession(t, c, &fakeView{page: "X is Y on this page."})

	p, err := s.Ask("  What is X?  ")
	require.NoError(t, err)
	waitPending(t, p)

	st := s.Snapshot()
	require.Len(t, st.Messages, 3)
	assert.Equal(t, RoleUser, st.Messages[1].Role)
	assert.Equal(t, "What is X?", st.Messages[1].Text)
	assert.Nil(t, st.Messages[1].Request)
	assert.Equal(t, RoleAssistant, st.Messages[2].Role)
	assert.Equal(t, "X is Y.", st.Messages[2].Text)
	assert.True(t, st.Messages[2].Replayable())
	assert.False(t, st.IsLoading)
	assert.Empty(t, st.ErrorText)
	assert.Empty(t, st.Input)

	calls := c.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, Prompts{}.ChatPrompt("What is X?", "X is Y on this page.", ScopePage), calls[0].User)
	assert.Equal(t, 0.3, calls[0].Temperature)
	assert.Equal(t, 900, calls[0].MaxTokens)
}

func TestAsk_FailureKeepsQuestionAndSetsError(t *testing.T) {
	c := &stubCompleter{reply: func(completion.Request) (string, error) {
		return "", &completion.HTTPError{StatusCode: 500, Body: "boom"}
	}}
	s, _ := newTestSession(t, c, &fakeView{page: "text"})

	p, err := s.Ask("What is X?")
	require.NoError(t, err)
	waitPending(t, p)

	st := s.Snapshot()
	require.Len(t, st.Messages, 2)
	assert.Equal(t, RoleUser, st.Messages[1].Role)
	assert.Equal(t, "Request failed with status 500. boom", st.ErrorText)
	assert.False(t, st.IsLoading)
	assert.Empty(t, st.Input, "input is cleared regardless of outcome")
}

func TestSendUserQuestion_BlankInputIsNoop(t *testing.T) {
	c := &stubCompleter{}
	s, _ := newTestSession(t, c, &fakeView{page: "text"})
	require.NoError(t, s.SetInput(" \n\t "))

	p, err := s.SendUserQuestion()
	assert.NoError(t, err)
	assert.Nil(t, p)
	assert.Len(t, s.Snapshot().Messages, 1)
	assert.Empty(t, c.Calls())
}

func TestDispatch_RejectedWhileLoading(t *testing.T) {
	c := &stubCompleter{gate: make(chan struct{})}
	s, _ := newTestSession(t, c, &fakeView{page: "text", document: "text"})

	first, err := s.Ask("first")
	require.NoError(t, err)
	st := s.Snapshot()
	require.True(t, st.IsLoading)
	greetingID := st.Messages[0].ID

	require.NoError(t, s.SetInput("second"))
	p, err := s.SendUserQuestion()
	assert.ErrorIs(t, err, ErrBusy)
	assert.Nil(t, p)
	assert.Equal(t, "second", s.Snapshot().Input, "rejected question keeps its input")

	_, err = s.Ask("third")
	assert.ErrorIs(t, err, ErrBusy)
	_, err = s.RunQuickAction(QuickExplain)
	assert.ErrorIs(t, err, ErrBusy)
	_, err = s.Regenerate(greetingID)
	assert.ErrorIs(t, err, ErrBusy)
	_, err = s.ExplainSimpler(greetingID)
	assert.ErrorIs(t, err, ErrBusy)

	c.gate <- struct{}{}
	waitPending(t, first)

	st = s.Snapshot()
	assert.False(t, st.IsLoading)
	assert.Len(t, st.Messages, 3)
	assert.Empty(t, st.ErrorText, "rejections do not touch errorText")
	assert.Len(t, c.Calls(), 1)
}

func TestRegenerate_WithoutMetadata(t *testing.T) {
	c := &stubCompleter{}
	s, _ := newTestSession(t, c, &fakeView{page: "text"})
	greetingID := s.Snapshot().Messages[0].ID

	p, err := s.Regenerate(greetingID)
	assert.ErrorIs(t, err, ErrNoRequestMetadata)
	assert.Nil(t, p)
	assert.Equal(t, "Cannot regenerate: no request metadata for this message.", s.Snapshot().ErrorText)

	require.NoError(t, s.DismissError())
	_, err = s.HandleAssistantAction(ActionExplainSimpler, greetingID)
	assert.ErrorIs(t, err, ErrNoRequestMetadata)
	assert.Equal(t, "Cannot explain simpler: no request metadata for this message.", s.Snapshot().ErrorText)

	assert.Empty(t, c.Calls())
	assert.False(t, s.Snapshot().IsLoading)
}

func TestRegenerate_UnknownAndUserMessages(t *testing.T) {
	c := &stubCompleter{}
	s, _ := newTestSession(t, c, &fakeView{page: "text"})
	waitPending(t, mustPending(s.Ask("q")))
	userID := s.Snapshot().Messages[1].ID

	_, err := s.Regenerate("missing")
	assert.ErrorIs(t, err, ErrMessageNotFound)
	_, err = s.Regenerate(userID)
	assert.ErrorIs(t, err, ErrNotAssistant)

	st := s.Snapshot()
	assert.Empty(t, st.ErrorText)
	assert.Len(t, c.Calls(), 1)
}

func TestRegenerate_ReplaysStoredRequestInPlace(t *testing.T) {
	var n atomic.Int32
	c := &stubCompleter{reply: func(completion.Request) (string, error) {
		return []string{"first", "second"}[n.Add(1)-1], nil
	}}
	view := &fakeView{page: "page one"}
	s, _ := newTestSession(t, c, view)

	waitPending(t, mustPending(s.Ask("q")))
	before := s.Snapshot()
	answer := before.Messages[2]

	// Later context and scope changes must not leak into the replay.
	view.mu.Lock()
	view.page = "page two"
	view.mu.Unlock()
	require.NoError(t, s.UpdateScope(ScopeDocument))

	p, err := s.HandleAssistantAction(ActionRegenerate, answer.ID)
	require.NoError(t, err)
	waitPending(t, p)

	after := s.Snapshot()
	require.Len(t, after.Messages, 3)
	assert.Equal(t, answer.ID, after.Messages[2].ID)
	assert.Equal(t, "second", after.Messages[2].Text)
	assert.Equal(t, answer.Request, after.Messages[2].Request)
	assert.Equal(t, answer.CreatedAt, after.Messages[2].CreatedAt)

	calls := c.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, calls[0], calls[1])
}

func TestExplainSimpler_ReplacesTextAndRequest(t *testing.T) {
	c := &stubCompleter{reply: func(req completion.Request) (string, error) {
		if strings.Contains(req.User, "Additional task:") {
			return "simple", nil
		}
		return "complex", nil
	}}
	s, _ := newTestSession(t, c, &fakeView{page: "text"})

	waitPending(t, mustPending(s.RunQuickAction(QuickExplain)))
	msg := lastAssistant(t, s.Snapshot())
	original := *msg.Request

	waitPending(t, mustPending(s.ExplainSimpler(msg.ID)))
	st := s.Snapshot()
	simplified := lastAssistant(t, st)
	require.Len(t, st.Messages, 2)
	assert.Equal(t, "simple", simplified.Text)
	require.NotNil(t, simplified.Request)
	assert.Equal(t, Prompts{}.ExplainSimplerUserPrompt(original.UserPrompt), simplified.Request.UserPrompt)
	assert.Equal(t, original.SystemPrompt, simplified.Request.SystemPrompt)
	assert.Equal(t, original.Scope, simplified.Request.Scope)
	assert.Equal(t, original.Temperature, simplified.Request.Temperature)
	assert.Equal(t, original.MaxTokens, simplified.Request.MaxTokens)

	waitPending(t, mustPending(s.Regenerate(msg.ID)))
	calls := c.Calls()
	require.Len(t, calls, 3)
	assert.Equal(t, simplified.Request.UserPrompt, calls[2].User, "regenerate replays the augmented prompt")
	assert.NotEqual(t, original.UserPrompt, calls[2].User)
}

func TestExplainSimpler_FailureKeepsMessage(t *testing.T) {
	var n atomic.Int32
	c := &stubCompleter{reply: func(completion.Request) (string, error) {
		if n.Add(1) == 1 {
			return "answer", nil
		}
		return "", completion.ErrEmptyResult
	}}
	s, _ := newTestSession(t, c, &fakeView{page: "text"})
	waitPending(t, mustPending(s.Ask("q")))
	msg := lastAssistant(t, s.Snapshot())

	waitPending(t, mustPending(s.ExplainSimpler(msg.ID)))
	st := s.Snapshot()
	after := lastAssistant(t, st)
	assert.Equal(t, "answer", after.Text)
	assert.Equal(t, msg.Request, after.Request)
	assert.Equal(t, "Empty response from model.", st.ErrorText)
	assert.False(t, st.IsLoading)
}

func TestScopeIsSnapshottedPerRequest(t *testing.T) {
	c := &stubCompleter{gate: make(chan struct{})}
	s, _ := newTestSession(t, c, &fakeView{page: "page text", document: "document text"})

	p, err := s.RunQuickAction(QuickSummarize)
	require.NoError(t, err)
	require.NoError(t, s.UpdateScope(ScopeDocument))
	c.gate <- struct{}{}
	waitPending(t, p)

	st := s.Snapshot()
	assert.Equal(t, ScopeDocument, st.Scope)
	reply := lastAssistant(t, st)
	assert.Equal(t, ScopePage, reply.Request.Scope)
	assert.Contains(t, c.Calls()[0].User, "Context (page):\npage text")
}

func TestNewRequestClearsPreviousError(t *testing.T) {
	c := &stubCompleter{}
	view := &fakeView{}
	s, _ := newTestSession(t, c, view)

	_, err := s.RunQuickAction(QuickSummarize)
	require.ErrorIs(t, err, ErrEmptyContext)
	require.NotEmpty(t, s.Snapshot().ErrorText)

	view.mu.Lock()
	view.page = "now there is text"
	view.mu.Unlock()

	c.gate = make(chan struct{})
	p, err := s.RunQuickAction(QuickSummarize)
	require.NoError(t, err)
	st := s.Snapshot()
	assert.True(t, st.IsLoading)
	assert.Empty(t, st.ErrorText, "errorText is cleared when a request starts")
	c.gate <- struct{}{}
	waitPending(t, p)
}

func TestContextIsCapped(t *testing.T) {
	c := &stubCompleter{}
	long := strings.Repeat("é", DefaultMaxContextChars+50)
	s, _ := newTestSession(t, c, &fakeView{page: long, document: long})

	waitPending(t, mustPending(s.RunQuickAction(QuickSummarize)))
	require.NoError(t, s.UpdateScope(ScopeDocument))
	waitPending(t, mustPending(s.RunQuickAction(QuickSummarize)))

	capped := strings.Repeat("é", DefaultMaxContextChars)
	for _, call := range c.Calls() {
		assert.Contains(t, call.User, capped)
		assert.NotContains(t, call.User, capped+"é")
	}
}

func TestCopyUsesCurrentText(t *testing.T) {
	c := &stubCompleter{reply: func(completion.Request) (string, error) { return "copy me", nil }}
	s, clip := newTestSession(t, c, &fakeView{page: "text"})
	waitPending(t, mustPending(s.Ask("q")))
	msg := lastAssistant(t, s.Snapshot())

	p, err := s.HandleAssistantAction(ActionCopy, msg.ID)
	require.NoError(t, err)
	assert.Nil(t, p)
	assert.Equal(t, "copy me", clip.Text())

	_, err = s.HandleAssistantAction(ActionCopy, "missing")
	assert.ErrorIs(t, err, ErrMessageNotFound)
	_, err = s.HandleAssistantAction(AssistantAction(42), msg.ID)
	assert.ErrorIs(t, err, ErrUnknownAction)
}

func TestUnknownQuickActionIsRejected(t *testing.T) {
	c := &stubCompleter{}
	s, _ := newTestSession(t, c, &fakeView{page: "page text"})

	p, err := s.RunQuickAction(QuickAction(9))
	assert.ErrorIs(t, err, ErrUnknownAction)
	assert.Nil(t, p)
	assert.Empty(t, c.Calls())
	assert.Len(t, s.Snapshot().Messages, 1)
}

func TestSessionWithoutCompleterReportsError(t *testing.T) {
	s := NewSession(Options{Context: ViewContext(&fakeView{page: "page text"})})
	t.Cleanup(s.Close)

	waitPending(t, mustPending(s.RunQuickAction(QuickSummarize)))
	st := s.Snapshot()
	assert.False(t, st.IsLoading)
	assert.Equal(t, ErrNoCompleter.Error(), st.ErrorText)
	assert.Len(t, st.Messages, 1, "no assistant message on failure")
}

func TestAtMostOneRequestInFlight(t *testing.T) {
	c := &stubCompleter{reply: func(completion.Request) (string, error) {
		time.Sleep(2 * time.Millisecond)
		return "ok", nil
	}}
	s, _ := newTestSession(t, c, &fakeView{page: "text", document: "text"})

	var (
		mu       sync.Mutex
		accepted []Pending
		group    sync.WaitGroup
	)
	for i := 0; i < 40; i++ {
		group.Add(1)
		go func(i int) {
			defer group.Done()
			var (
				p   Pending
				err error
			)
			if i%2 == 0 {
				p, err = s.Ask("q")
			} else {
				p, err = s.RunQuickAction(QuickSummarize)
			}
			if err != nil {
				assert.ErrorIs(t, err, ErrBusy)
				return
			}
			mu.Lock()
			accepted = append(accepted, p)
			mu.Unlock()
		}(i)
	}
	group.Wait()
	for _, p := range accepted {
		waitPending(t, p)
	}

	assert.Equal(t, int32(1), c.maxInflight.Load())
	assert.Len(t, c.Calls(), len(accepted))
	assert.False(t, s.Snapshot().IsLoading)
}

func TestClosedSessionRejectsOperations(t *testing.T) {
	s := NewSession(Options{Completer: &stubCompleter{}})
	s.Close()
	s.Close()

	_, err := s.Ask("q")
	assert.ErrorIs(t, err, ErrSessionClosed)
	assert.ErrorIs(t, s.UpdateScope(ScopeDocument), ErrSessionClosed)
	assert.Equal(t, State{}, s.Snapshot())
}

func TestCloseWhileInFlightReleasesPending(t *testing.T) {
	c := &stubCompleter{gate: make(chan struct{})}
	s := NewSession(Options{Completer: c, Context: ViewContext(&fakeView{page: "text"})})
	p, err := s.Ask("q")
	require.NoError(t, err)

	s.Close()
	c.gate <- struct{}{}
	waitPending(t, p)
}

func TestDescribeError(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{completion.ErrInvalidEndpoint, "Invalid URL."},
		{completion.ErrDecodingFailed, "Failed to decode server response."},
		{completion.ErrEmptyResult, "Empty response from model."},
		{&completion.HTTPError{StatusCode: 404, Body: "not found"}, "Request failed with status 404. not found"},
		{&completion.HTTPError{StatusCode: -1, Body: "No HTTP response.", Err: errors.New("dial")}, "Request failed with status -1. No HTTP response."},
		{errors.New("other"), "other"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, describeError(tt.err))
	}
}

func TestCapChars(t *testing.T) {
	assert.Equal(t, "abc", capChars("abc", 5))
	assert.Equal(t, "ab", capChars("abc", 2))
	assert.Equal(t, "жё", capChars("жёлтый", 2))
	assert.Equal(t, "abc", capChars("abc", 0))
}

func mustPending(p Pending, err error) Pending {
	if err != nil {
		panic(err)
	}
	return p
}
