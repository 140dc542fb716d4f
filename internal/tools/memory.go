package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// MemoryProvider is an in-process resource library. The server seeds it
// from config at startup; tests seed it directly.
type MemoryProvider struct {
	mu        sync.RWMutex
	resources map[string]Resource
}

func NewMemoryProvider(seed ...Resource) *MemoryProvider {
	m := make(map[string]Resource, len(seed))
	for _, r := range seed {
		m[r.ID] = r
	}
	return &MemoryProvider{resources: m}
}

func (p *MemoryProvider) Put(r Resource) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resources[r.ID] = r
}

func (p *MemoryProvider) List(_ context.Context, resourceType string) ([]Resource, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Resource, 0, len(p.resources))
	for _, r := range p.resources {
		if resourceType != "" && r.Type != resourceType {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (p *MemoryProvider) Read(_ context.Context, id string) (Resource, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	r, ok := p.resources[id]
	if !ok {
		return Resource{}, fmt.Errorf("resource not found: %s", id)
	}
	return r, nil
}

func (p *MemoryProvider) Search(_ context.Context, query string) ([]Resource, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	needle := strings.ToLower(query)
	out := make([]Resource, 0)
	for _, r := range p.resources {
		if strings.Contains(strings.ToLower(r.Title), needle) ||
			strings.Contains(strings.ToLower(r.Content), needle) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
