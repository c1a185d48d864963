// Package cli is the interactive terminal front end for a chat session.
package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/peterh/liner"
	"github.com/rs/zerolog/log"

	"github.com/local/pdfchat/internal/chat"
	"github.com/local/pdfchat/internal/pdf"
)

// LineReader reads one line after showing prompt. *liner.State satisfies it.
type LineReader interface {
	Prompt(prompt string) (string, error)
}

type historyAppender interface {
	AppendHistory(item string)
}

// Runner drives a session from typed commands and prints the conversation.
type Runner struct {
	Session *chat.Session
	Reader  *pdf.Reader
	Out     io.Writer

	printed int
}

// Run reads commands until /quit, EOF or Ctrl-C.
func (r *Runner) Run(in LineReader) error {
	r.printNew()
	for {
		line, err := in.Prompt(r.prompt())
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, liner.ErrPromptAborted) {
				return nil
			}
			return err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if h, ok := in.(historyAppender); ok {
			h.AppendHistory(line)
		}
		quit, err := r.Execute(line)
		if err != nil {
			fmt.Fprintf(r.Out, "! %v\n", err)
		}
		if quit {
			return nil
		}
	}
}

func (r *Runner) prompt() string {
	snap := r.Session.Snapshot()
	return fmt.Sprintf("[%s %d/%d] > ", snap.Scope, r.Reader.Page()+1, r.Reader.Document().PageCount())
}

// Execute runs one input line. Requests are awaited before it returns.
func (r *Runner) Execute(line string) (bool, error) {
	cmd, err := ParseCommand(line)
	if err != nil {
		return false, err
	}
	switch cmd.Kind {
	case KindQuestion:
		p, err := r.Session.Ask(cmd.Text)
		return false, r.await(p, err)
	case KindQuickAction:
		p, err := r.Session.RunQuickAction(cmd.Quick)
		return false, r.await(p, err)
	case KindScope:
		if err := r.Session.UpdateScope(cmd.Scope); err != nil {
			return false, err
		}
		fmt.Fprintf(r.Out, "scope: %s\n", cmd.Scope)
	case KindPage:
		if err := r.Reader.SetPage(cmd.Page - 1); err != nil {
			return false, fmt.Errorf("no page %d, the document has %d", cmd.Page, r.Reader.Document().PageCount())
		}
		fmt.Fprintf(r.Out, "page %d of %d\n", cmd.Page, r.Reader.Document().PageCount())
	case KindMessageAction:
		return false, r.messageAction(cmd)
	case KindDismiss:
		return false, r.Session.DismissError()
	case KindShow:
		r.printed = 0
		r.printNew()
	case KindHelp:
		fmt.Fprintln(r.Out, helpText)
	case KindQuit:
		return true, nil
	}
	return false, nil
}

func (r *Runner) messageAction(cmd Command) error {
	msgs := r.Session.Snapshot().Messages
	if cmd.Message > len(msgs) {
		return fmt.Errorf("no message %d", cmd.Message)
	}
	id := msgs[cmd.Message-1].ID
	p, err := r.Session.HandleAssistantAction(cmd.Action, id)
	if cmd.Action == chat.ActionCopy {
		if err != nil {
			return err
		}
		fmt.Fprintf(r.Out, "copied message %d\n", cmd.Message)
		return nil
	}
	if err := r.await(p, err); err != nil {
		return err
	}
	if snap := r.Session.Snapshot(); snap.ErrorText == "" && cmd.Message <= len(snap.Messages) {
		r.printMessage(cmd.Message, snap.Messages[cmd.Message-1])
	}
	return nil
}

// await waits for p and prints what it added. Errors the session already
// reports through its error text are printed from there.
func (r *Runner) await(p chat.Pending, err error) error {
	if err != nil {
		reported := errors.Is(err, chat.ErrEmptyContext) || errors.Is(err, chat.ErrNoRequestMetadata)
		if text := r.Session.Snapshot().ErrorText; reported && text != "" {
			fmt.Fprintf(r.Out, "! %s\n", text)
			return nil
		}
		return err
	}
	if p == nil {
		return nil
	}
	fmt.Fprintln(r.Out, "...")
	p.Wait()
	r.printNew()
	if text := r.Session.Snapshot().ErrorText; text != "" {
		log.Debug().Str("session_id", r.Session.ID()).Str("error", text).Msg("request failed")
		fmt.Fprintf(r.Out, "! %s\n", text)
	}
	return nil
}

func (r *Runner) printNew() {
	msgs := r.Session.Snapshot().Messages
	for i := r.printed; i < len(msgs); i++ {
		r.printMessage(i+1, msgs[i])
	}
	r.printed = len(msgs)
}

func (r *Runner) printMessage(n int, m chat.Message) {
	fmt.Fprintf(r.Out, "[%d] %s: %s\n", n, m.Role, m.Text)
}
