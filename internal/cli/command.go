package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/local/pdfchat/internal/chat"
)

// Kind identifies a terminal command.
type Kind int

const (
	KindQuestion Kind = iota
	KindQuickAction
	KindScope
	KindPage
	KindMessageAction
	KindDismiss
	KindShow
	KindHelp
	KindQuit
)

// Command is one parsed input line. Page and Message are 1-based as typed.
type Command struct {
	Kind    Kind
	Text    string
	Quick   chat.QuickAction
	Action  chat.AssistantAction
	Scope   chat.Scope
	Page    int
	Message int
}

const helpText = `Commands:
  /summarize, /explain, /keypoints   quick action on the current scope
  /scope page|document               choose what the model sees
  /page N                            go to page N
  /copy N, /regen N, /simpler N      act on message N
  /show                              print the conversation
  /dismiss                           clear the error
  /quit                              leave
Anything else is sent as a question.`

// ParseCommand reads one trimmed, non-empty line.
func ParseCommand(line string) (Command, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") {
		return Command{Kind: KindQuestion, Text: line}, nil
	}
	fields := strings.Fields(line)
	name := strings.ToLower(strings.TrimPrefix(fields[0], "/"))
	args := fields[1:]

	if qa, err := chat.ParseQuickAction(name); err == nil {
		return Command{Kind: KindQuickAction, Quick: qa}, nil
	}

	switch name {
	case "scope":
		if len(args) != 1 {
			return Command{}, fmt.Errorf("usage: /scope page|document")
		}
		scope, err := chat.ParseScope(args[0])
		if err != nil {
			return Command{}, err
		}
		return Command{Kind: KindScope, Scope: scope}, nil
	case "page":
		n, err := number(args, "/page N")
		if err != nil {
			return Command{}, err
		}
		return Command{Kind: KindPage, Page: n}, nil
	case "copy", "regen", "regenerate", "simpler", "explain-simpler":
		action, err := chat.ParseAssistantAction(name)
		if err != nil {
			return Command{}, err
		}
		n, err := number(args, "/"+name+" N")
		if err != nil {
			return Command{}, err
		}
		return Command{Kind: KindMessageAction, Action: action, Message: n}, nil
	case "dismiss":
		return Command{Kind: KindDismiss}, nil
	case "show":
		return Command{Kind: KindShow}, nil
	case "help", "?":
		return Command{Kind: KindHelp}, nil
	case "quit", "exit", "q":
		return Command{Kind: KindQuit}, nil
	}
	return Command{}, fmt.Errorf("unknown command /%s, try /help", name)
}

func number(args []string, usage string) (int, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("usage: %s", usage)
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 1 {
		return 0, fmt.Errorf("usage: %s", usage)
	}
	return n, nil
}
