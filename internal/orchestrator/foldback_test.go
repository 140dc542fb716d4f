package orchestrator

import (
	"strings"
	"testing"
	"unicode/utf8"

	"scribe/internal/chat"
	"scribe/internal/tokens"
)

func TestRenderFoldbackSuccess(t *testing.T) {
	got := renderFoldback("read_resource", chat.ToolResult{Success: true, Data: "contents here"})
	if !strings.Contains(got, "Result of tool read_resource:") {
		t.Errorf("missing header: %q", got)
	}
	if !strings.Contains(got, "status: ok") || !strings.Contains(got, "data: contents here") {
		t.Errorf("unexpected body: %q", got)
	}
}

func TestRenderFoldbackFailure(t *testing.T) {
	got := renderFoldback("search_library", chat.ToolResult{Success: false, Error: "query is required"})
	if !strings.Contains(got, "status: failed") {
		t.Errorf("missing failed status: %q", got)
	}
	if !strings.Contains(got, "error: query is required") {
		t.Errorf("missing error line: %q", got)
	}
	if !strings.Contains(got, "retry") {
		t.Errorf("missing retry hint: %q", got)
	}
}

func TestTruncateToTokensWithinBudget(t *testing.T) {
	got := truncateToTokens("short payload", foldbackTokenBudget, tokens.Default())
	if got != "short payload" {
		t.Errorf("small payload changed: %q", got)
	}
}

func TestTruncateToTokensCutsOversized(t *testing.T) {
	tok := tokens.Default()
	big := strings.Repeat("alpha beta gamma delta ", 2000)
	got := truncateToTokens(big, foldbackTokenBudget, tok)
	if !strings.HasSuffix(got, truncationMarker) {
		t.Fatalf("missing truncation marker: %q", got[len(got)-40:])
	}
	kept := strings.TrimSuffix(got, truncationMarker)
	if n := tok.Count(kept); n > foldbackTokenBudget {
		t.Errorf("kept prefix counts %d tokens, budget is %d", n, foldbackTokenBudget)
	}
	if len(kept) == 0 {
		t.Error("truncation kept nothing")
	}
}

func TestTruncateToTokensKeepsValidUTF8(t *testing.T) {
	big := strings.Repeat("文档编辑", 2000)
	got := truncateToTokens(big, foldbackTokenBudget, tokens.Default())
	if !utf8.ValidString(got) {
		t.Error("truncated payload is not valid UTF-8")
	}
	if !strings.HasSuffix(got, truncationMarker) {
		t.Errorf("missing truncation marker: %q", got[len(got)-40:])
	}
}
