package chat

import "fmt"

// PromptBuilder turns actions and questions into prompt strings. Implementations
// must be pure.
type PromptBuilder interface {
	SystemPrompt() string
	QuickActionPrompt(action QuickAction, context string, scope Scope) string
	ChatPrompt(question, context string, scope Scope) string
	ExplainSimplerUserPrompt(baseUserPrompt string) string
}

// Prompts is the default PromptBuilder.
type Prompts struct{}

func (Prompts) SystemPrompt() string {
	return `You are a helpful assistant.
Answer strictly based on the provided text from the PDF.
If the text does not contain enough information, ask a short clarifying question.
Answer concisely, logically and in a structured way.`
}

func (Prompts) QuickActionPrompt(action QuickAction, context string, scope Scope) string {
	var task string
	switch action {
	case QuickSummarize:
		task = "Task: Write a short summary as 5–7 bullet points."
	case QuickExplain:
		task = "Task: Explain the content in plain, simple language,\nas if you were explaining it to a beginner. Use short paragraphs."
	case QuickKeyPoints:
		task = "Task:\n1) Extract the key ideas (as a list)\n2) Extract the important terms (term — short definition)"
	}
	return contextBlock(context, scope) + "\n\n" + task
}

func (Prompts) ChatPrompt(question, context string, scope Scope) string {
	return contextBlock(context, scope) + "\n\nUser question:\n" + question
}

func (Prompts) ExplainSimplerUserPrompt(baseUserPrompt string) string {
	return baseUserPrompt + `

Additional task:
Explain it more simply, as clearly as possible for a beginner. 3–6 short sentences.
If helpful, give a simple example.`
}

func contextBlock(context string, scope Scope) string {
	return fmt.Sprintf("Context (%s):\n%s", scope, context)
}
