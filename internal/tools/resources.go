package tools

import (
	"context"
	"fmt"
	"strings"
)

func stringParam(params map[string]any, key string) string {
	v, ok := params[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// ListResourcesTool enumerates the caller's library, optionally
// filtered by resource type.
type ListResourcesTool struct {
	provider ResourceProvider
}

func NewListResourcesTool(p ResourceProvider) *ListResourcesTool {
	return &ListResourcesTool{provider: p}
}

func (t *ListResourcesTool) Name() string { return "list_resources" }

func (t *ListResourcesTool) Description() string {
	return "List resources in the user's library, optionally filtered by type."
}

func (t *ListResourcesTool) Parameters() map[string]any {
	return map[string]any{
		"resource_type": map[string]any{
			"type":        "string",
			"description": "Filter to one resource type; empty means all.",
		},
	}
}

func (t *ListResourcesTool) Execute(ctx context.Context, params map[string]any, _ *EditorState) (any, error) {
	resourceType := stringParam(params, "resource_type")
	items, err := t.provider.List(ctx, resourceType)
	if err != nil {
		return nil, err
	}
	summaries := make([]Resource, len(items))
	for i, r := range items {
		r.Content = ""
		summaries[i] = r
	}
	return map[string]any{
		"count":     len(summaries),
		"resources": summaries,
	}, nil
}

// ReadResourceTool fetches one resource's full content. The id may be a
// library id or a title matched by the most recent search in this
// request.
type ReadResourceTool struct {
	provider ResourceProvider
}

func NewReadResourceTool(p ResourceProvider) *ReadResourceTool {
	return &ReadResourceTool{provider: p}
}

func (t *ReadResourceTool) Name() string { return "read_resource" }

func (t *ReadResourceTool) Description() string {
	return "Read the full content of a single resource by id or by a title from the latest search results."
}

func (t *ReadResourceTool) Parameters() map[string]any {
	return map[string]any{
		"id": map[string]any{
			"type":        "string",
			"description": "Resource id, or a title from the latest search results.",
		},
	}
}

func (t *ReadResourceTool) Execute(ctx context.Context, params map[string]any, editor *EditorState) (any, error) {
	id := stringParam(params, "id")
	if id == "" {
		return nil, fmt.Errorf("id is required")
	}
	if editor != nil {
		for _, m := range editor.ResourceMatches {
			if strings.EqualFold(m.Title, id) {
				id = m.ID
				break
			}
		}
	}
	res, err := t.provider.Read(ctx, id)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// SearchLibraryTool runs a keyword search and records the matches on the
// editor state so follow-up reads can refer to results by title.
type SearchLibraryTool struct {
	provider ResourceProvider
}

func NewSearchLibraryTool(p ResourceProvider) *SearchLibraryTool {
	return &SearchLibraryTool{provider: p}
}

func (t *SearchLibraryTool) Name() string { return "search_library" }

func (t *SearchLibraryTool) Description() string {
	return "Search the user's library by keyword across titles and content."
}

func (t *SearchLibraryTool) Parameters() map[string]any {
	return map[string]any{
		"query": map[string]any{
			"type":        "string",
			"description": "Keyword query.",
		},
	}
}

func (t *SearchLibraryTool) Execute(ctx context.Context, params map[string]any, editor *EditorState) (any, error) {
	query := stringParam(params, "query")
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}
	items, err := t.provider.Search(ctx, query)
	if err != nil {
		return nil, err
	}
	if editor != nil {
		matches := make([]ResourceMatch, len(items))
		for i, r := range items {
			matches[i] = ResourceMatch{ID: r.ID, Title: r.Title}
		}
		editor.ResourceMatches = matches
	}
	summaries := make([]Resource, len(items))
	for i, r := range items {
		r.Content = ""
		summaries[i] = r
	}
	return map[string]any{
		"count":     len(summaries),
		"resources": summaries,
	}, nil
}
