package orchestrator

import (
	"fmt"
	"strings"

	"scribe/internal/chat"
)

// PromptBuilder turns the run inputs into the opaque string sent to the
// model. The loop never inspects the result.
type PromptBuilder interface {
	Build(history []chat.Message, userInput, content, mode, catalog string) string
}

// DefaultPromptBuilder renders a plain-text transcript with the tool
// roster and the canonical tool-request grammar.
type DefaultPromptBuilder struct{}

const toolGrammar = "When you need a tool, finish your reply with exactly one fenced block:\n" +
	"```tool_call\n{\"tool_name\": \"<name>\", \"parameters\": {...}}\n```\n" +
	"Request at most one tool per reply. Write nothing after the block."

func (DefaultPromptBuilder) Build(history []chat.Message, userInput, content, mode, catalog string) string {
	var b strings.Builder

	b.WriteString("You are a writing assistant working inside the user's document editor.\n")
	if mode != "" {
		fmt.Fprintf(&b, "Current mode: %s.\n", mode)
	}
	b.WriteString("\n")

	if catalog != "" {
		b.WriteString("Available tools:\n")
		b.WriteString(catalog)
		b.WriteString("\n")
		b.WriteString(toolGrammar)
		b.WriteString("\n\n")
	}

	if content != "" {
		b.WriteString("Document:\n---\n")
		b.WriteString(content)
		b.WriteString("\n---\n\n")
	}

	if len(history) > 0 {
		b.WriteString("Conversation so far:\n")
		for _, m := range history {
			fmt.Fprintf(&b, "[%s] %s\n", m.Role, m.Content)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "[%s] %s\n[%s] ", chat.RoleUser, userInput, chat.RoleAgent)
	return b.String()
}
