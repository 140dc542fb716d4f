// Package provider defines the model backend boundary. The orchestrator
// depends only on "give me a final text and, optionally, a stream of
// deltas"; which of the two a backend supports is advertised through the
// Streamer capability interface.
package provider

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ErrUnknownBackend is returned when a model selector does not match any
// configured backend.
var ErrUnknownBackend = errors.New("unknown backend")

// Credentials carries per-request authentication material. A backend may
// fall back to its configured key when the request carries none.
type Credentials struct {
	APIKey string
}

// Reply is the complete text of one model turn. Reasoning is the
// side-channel thinking text, empty for backends without one.
type Reply struct {
	Content   string
	Reasoning string
}

// Callbacks receives incremental fragments during a streaming call, in
// arrival order, with no gaps or reordering.
type Callbacks struct {
	OnContentDelta   func(delta string)
	OnReasoningDelta func(delta string)
}

// Client is the minimum capability every backend exposes.
type Client interface {
	Name() string
	Model() string
	Complete(ctx context.Context, prompt string, creds Credentials) (Reply, error)
}

// Streamer is the optional incremental-delivery capability. Backends
// that support it return the same final Reply as Complete would.
type Streamer interface {
	Client
	Stream(ctx context.Context, prompt string, creds Credentials, cb Callbacks) (Reply, error)
}

// Registry resolves a model selector to a configured backend.
type Registry struct {
	mu          sync.RWMutex
	clients     map[string]Client
	defaultName string
}

func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]Client)}
}

// Register adds a backend under its name. The first registered backend
// becomes the default until SetDefault overrides it.
func (r *Registry) Register(c Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := strings.ToLower(strings.TrimSpace(c.Name()))
	if name == "" {
		return
	}
	if len(r.clients) == 0 {
		r.defaultName = name
	}
	r.clients[name] = c
}

func (r *Registry) SetDefault(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	name = strings.ToLower(strings.TrimSpace(name))
	if _, ok := r.clients[name]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownBackend, name)
	}
	r.defaultName = name
	return nil
}

// Resolve maps a model selector to a backend. An empty selector resolves
// to the default backend.
func (r *Registry) Resolve(selector string) (Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name := strings.ToLower(strings.TrimSpace(selector))
	if name == "" {
		name = r.defaultName
	}
	c, ok := r.clients[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, selector)
	}
	return c, nil
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.clients))
	for name := range r.clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
