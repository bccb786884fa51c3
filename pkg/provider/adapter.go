package provider

import (
	"context"

	"github.com/pkg/errors"
)

// Adapter is the uniform streaming interface over a backing AI provider.
//
// Generate returns a lazy sequence of text fragments; the channel is closed
// when generation ends. Implementations must not fail mid-stream: on a
// transport or API error they send a single human-readable fallback fragment
// and close the channel, so callers never special-case adapter errors beyond
// accumulating what they receive. The returned error covers request setup
// only (nil in practice for well-configured adapters).
//
// Implementations stop sending promptly once ctx is cancelled; the channel
// is still closed.
type Adapter interface {
	Generate(ctx context.Context, model string, prompt string) (<-chan string, error)
}

// Endpoint binds an adapter to the model it should be invoked with.
type Endpoint struct {
	Name    string
	Model   string
	Adapter Adapter
}

var ErrUnknownProvider = errors.New("unknown provider")

// Registry maps provider id to its endpoint. It is resolved once at startup;
// the orchestration core holds capability-typed adapters, never string-keyed
// function tables.
type Registry struct {
	endpoints map[string]Endpoint
}

func NewRegistry() *Registry {
	return &Registry{
		endpoints: map[string]Endpoint{},
	}
}

func (r *Registry) Register(id string, endpoint Endpoint) {
	if endpoint.Name == "" {
		endpoint.Name = id
	}
	r.endpoints[id] = endpoint
}

func (r *Registry) Resolve(id string) (Endpoint, error) {
	ep, ok := r.endpoints[id]
	if !ok {
		return Endpoint{}, errors.Wrap(ErrUnknownProvider, id)
	}
	return ep, nil
}

func (r *Registry) Has(id string) bool {
	_, ok := r.endpoints[id]
	return ok
}
