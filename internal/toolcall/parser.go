// Package toolcall recovers structured tool invocations from free-text
// model replies. The prompt instructs the model to emit one canonical
// JSON shape; this package is the matching decoder: one strict pass per
// marker plus a single salvage pass that strips fence and tag tokens and
// retries the JSON decode once.
package toolcall

import (
	"encoding/json"
	"log/slog"
	"regexp"
	"strings"

	"scribe/internal/chat"
)

// markerPattern matches the opening token of any of the equivalent
// surface syntaxes the model may use to request a tool:
//
//	```tool_call
//	{"tool_name": "...", "parameters": {...}}
//	```
//
//	<tool_call>{"tool_name": "...", "parameters": {...}}</tool_call>
//
//	TOOL_CALL: {"tool_name": "...", "parameters": {...}}
//
// Position of the earliest match determines the visible-prefix cut,
// regardless of whether the span decodes into a valid call.
var markerPattern = regexp.MustCompile("(?:```tool_call|<tool_call>|(?m:^TOOL_CALL:))")

// closerPattern bounds the salvage window at the marker's closing token.
var closerPattern = regexp.MustCompile("(?:```|</tool_call>)")

// strippable tokens removed during the salvage pass.
var tokenStripper = strings.NewReplacer(
	"```tool_call", "",
	"```", "",
	"<tool_call>", "",
	"</tool_call>", "",
	"TOOL_CALL:", "",
)

type payload struct {
	ToolName   string         `json:"tool_name"`
	Parameters map[string]any `json:"parameters"`
}

// Parser decodes tool calls against a fixed catalog of known tool names.
type Parser struct {
	allowed map[string]struct{}
	logger  *slog.Logger
}

func NewParser(toolNames []string) *Parser {
	allowed := make(map[string]struct{}, len(toolNames))
	for _, name := range toolNames {
		name = strings.ToLower(strings.TrimSpace(name))
		if name != "" {
			allowed[name] = struct{}{}
		}
	}
	return &Parser{allowed: allowed, logger: slog.Default()}
}

// Parse returns the earliest accepted tool call in text, or nil when no
// marker decodes into a call naming a cataloged tool. Markers after the
// first accepted one are inert trailing text; multi-tool replies are
// illegal by contract.
func (p *Parser) Parse(text string) *chat.ToolCall {
	if strings.TrimSpace(text) == "" || len(p.allowed) == 0 {
		return nil
	}
	for _, m := range markerPattern.FindAllStringIndex(text, -1) {
		call, ok := p.decodeAt(text, m[1])
		if !ok {
			continue
		}
		if _, known := p.allowed[call.Name]; !known {
			p.logger.Warn("model requested unknown tool", "tool", call.Name)
			continue
		}
		return call
	}
	return nil
}

// VisiblePrefix returns the substring strictly before the first
// marker-shaped span: the full text when none is present, the empty
// string when the text starts with a marker. Position, not validity,
// determines the cut.
func VisiblePrefix(text string) string {
	m := markerPattern.FindStringIndex(text)
	if m == nil {
		return text
	}
	return text[:m[0]]
}

// HasMarker reports whether text contains any marker-shaped span.
func HasMarker(text string) bool {
	return markerPattern.MatchString(text)
}

// decodeAt attempts a strict decode of one JSON object starting at the
// first brace after the marker token, then one salvage decode.
func (p *Parser) decodeAt(text string, after int) (*chat.ToolCall, bool) {
	rest := text[after:]
	braceOffset := strings.IndexByte(rest, '{')
	if braceOffset < 0 || strings.TrimSpace(rest[:braceOffset]) != "" {
		return nil, false
	}
	span := rest[braceOffset:]

	// Strict pass: decode exactly one JSON value; trailing text after
	// the object (closing fence, prose) is expected and ignored.
	var pl payload
	dec := json.NewDecoder(strings.NewReader(span))
	if err := dec.Decode(&pl); err == nil {
		if call, ok := toCall(pl); ok {
			return call, true
		}
	}

	// Salvage pass: the model sometimes nests fence or tag tokens inside
	// the block. Bound the span at the closing token, strip all marker
	// tokens, and retry the decode once.
	window := span
	if locs := closerPattern.FindAllStringIndex(span, -1); len(locs) > 0 {
		window = span[:locs[len(locs)-1][0]]
	}
	cleaned := strings.TrimSpace(tokenStripper.Replace(window))
	start := strings.IndexByte(cleaned, '{')
	end := strings.LastIndexByte(cleaned, '}')
	if start < 0 || end <= start {
		return nil, false
	}
	pl = payload{}
	if err := json.Unmarshal([]byte(cleaned[start:end+1]), &pl); err != nil {
		return nil, false
	}
	return toCall(pl)
}

func toCall(pl payload) (*chat.ToolCall, bool) {
	name := strings.ToLower(strings.TrimSpace(pl.ToolName))
	if name == "" {
		return nil, false
	}
	params := pl.Parameters
	if params == nil {
		params = map[string]any{}
	}
	return &chat.ToolCall{Name: name, Parameters: params}, true
}
