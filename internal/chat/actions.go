package chat

import (
	"fmt"
	"strings"
)

// QuickAction is a canned instruction run against the current scope.
type QuickAction int

const (
	QuickSummarize QuickAction = iota
	QuickExplain
	QuickKeyPoints
)

// QuickActions lists every quick action in display order.
var QuickActions = []QuickAction{QuickSummarize, QuickExplain, QuickKeyPoints}

func (a QuickAction) String() string {
	switch a {
	case QuickSummarize:
		return "summarize"
	case QuickExplain:
		return "explain"
	case QuickKeyPoints:
		return "key-points"
	}
	return fmt.Sprintf("QuickAction(%d)", int(a))
}

// Title is the label shown on the action button.
func (a QuickAction) Title() string {
	switch a {
	case QuickSummarize:
		return "Summarize"
	case QuickExplain:
		return "Explain"
	case QuickKeyPoints:
		return "Key points"
	}
	return a.String()
}

func (a QuickAction) valid() bool { return a >= QuickSummarize && a <= QuickKeyPoints }

func ParseQuickAction(s string) (QuickAction, error) {
	switch normalizeName(s) {
	case "summarize":
		return QuickSummarize, nil
	case "explain":
		return QuickExplain, nil
	case "keypoints":
		return QuickKeyPoints, nil
	}
	return 0, fmt.Errorf("unknown quick action %q", s)
}

// AssistantAction is an action offered on an assistant message.
type AssistantAction int

const (
	ActionCopy AssistantAction = iota
	ActionRegenerate
	ActionExplainSimpler
)

func (a AssistantAction) String() string {
	switch a {
	case ActionCopy:
		return "copy"
	case ActionRegenerate:
		return "regenerate"
	case ActionExplainSimpler:
		return "explain-simpler"
	}
	return fmt.Sprintf("AssistantAction(%d)", int(a))
}

func ParseAssistantAction(s string) (AssistantAction, error) {
	switch normalizeName(s) {
	case "copy":
		return ActionCopy, nil
	case "regenerate", "regen":
		return ActionRegenerate, nil
	case "explainsimpler", "simpler":
		return ActionExplainSimpler, nil
	}
	return 0, fmt.Errorf("unknown assistant action %q", s)
}

// normalizeName folds "Key points", "key-points" and "key_points" together.
func normalizeName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer("-", "", "_", "", " ", "").Replace(s)
}
