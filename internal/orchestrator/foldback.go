package orchestrator

import (
	"encoding/json"
	"fmt"
	"strings"

	"scribe/internal/chat"
	"scribe/internal/tokens"
)

// foldbackTokenBudget caps how much tool output is folded back into the
// next prompt. Oversized payloads are cut with an explicit marker so
// the model knows it is looking at a partial result.
const foldbackTokenBudget = 1000

const truncationMarker = "...(truncated)"

// renderFoldback renders a tool result as the synthetic user turn the
// model reacts to on the next iteration.
func renderFoldback(toolName string, res chat.ToolResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Result of tool %s:\n", toolName)
	if !res.Success {
		b.WriteString("status: failed\n")
		fmt.Fprintf(&b, "error: %s\n", res.Error)
		b.WriteString("You may retry with different parameters or answer without the tool.")
		return b.String()
	}
	b.WriteString("status: ok\n")
	b.WriteString("data: ")
	b.WriteString(summarizeData(res.Data))
	return b.String()
}

func summarizeData(data any) string {
	var rendered string
	switch v := data.(type) {
	case nil:
		return "(empty)"
	case string:
		rendered = v
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			rendered = fmt.Sprintf("%v", v)
		} else {
			rendered = string(raw)
		}
	}
	return truncateToTokens(rendered, foldbackTokenBudget, tokens.Default())
}

// truncateToTokens cuts s to the largest rune-boundary prefix whose
// token estimate stays within budget, then appends the marker.
func truncateToTokens(s string, budget int, tok *tokens.Tokenizer) string {
	if tok.Count(s) <= budget {
		return s
	}
	runes := []rune(s)
	lo, hi := 0, len(runes)
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if tok.Count(string(runes[:mid])) <= budget {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return string(runes[:lo]) + truncationMarker
}
