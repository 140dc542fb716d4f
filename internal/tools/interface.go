// Package tools is the tool execution boundary. The orchestrator sees a
// single dispatch entry point that always yields a structured result;
// individual tool bodies are collaborators behind the Tool interface.
package tools

import "context"

// ResourceMatch is one fuzzy-title candidate from a library search.
type ResourceMatch struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// EditorState is the ambient caller-provided snapshot a tool may consult.
// It is threaded per request; follow-up calls within the same run see
// ResourceMatches populated by earlier searches, and concurrent sessions
// can never cross-contaminate each other's matches.
type EditorState struct {
	DocumentContent string
	SelectionStart  int
	SelectionEnd    int
	Mode            string
	ResourceMatches []ResourceMatch
}

// Tool is one executable capability exposed to the model.
type Tool interface {
	Name() string
	Description() string
	// Parameters returns a JSON-schema-shaped description of the
	// accepted parameters, rendered into the tool catalog.
	Parameters() map[string]any
	Execute(ctx context.Context, params map[string]any, editor *EditorState) (any, error)
}

// Resource is an item in the caller's resource library.
type Resource struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Title   string `json:"title"`
	Content string `json:"content,omitempty"`
}

// ResourceProvider is the resource-library collaborator the builtin
// tools delegate to. CRUD and file handling live behind it.
type ResourceProvider interface {
	List(ctx context.Context, resourceType string) ([]Resource, error)
	Read(ctx context.Context, id string) (Resource, error)
	Search(ctx context.Context, query string) ([]Resource, error)
}
