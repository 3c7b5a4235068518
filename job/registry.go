package job

import (
	"context"
	"slices"
	"sync"

	"github.com/xraph/jobstore/codec"
)

// HandlerFunc is a type-erased handler over the raw stored payload.
type HandlerFunc func(ctx context.Context, payload []byte) error

// Handler pairs a type-erased handler with its definition options.
type Handler struct {
	Fn   HandlerFunc
	Opts Options
}

// Registry maps job types to handlers. It is safe for concurrent use.
type Registry struct {
	codec      codec.Codec
	maxRetries *int

	mu       sync.RWMutex
	handlers map[string]Handler
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithCodec sets the payload codec. Defaults to codec.JSON.
func WithCodec(c codec.Codec) RegistryOption {
	return func(r *Registry) { r.codec = c }
}

// WithDefaultMaxRetries sets the retry budget for definitions registered
// without WithMaxRetries.
func WithDefaultMaxRetries(n int) RegistryOption {
	return func(r *Registry) { r.maxRetries = &n }
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		codec:    codec.JSON,
		handlers: make(map[string]Handler),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Codec returns the codec handlers decode with.
func (r *Registry) Codec() codec.Codec { return r.codec }

// RegisterDefinition registers a typed definition. The payload is decoded
// into T with the registry's codec before the handler runs. A payload that
// cannot be decoded is a permanent failure.
//
// This is a package-level function because Go does not allow generic
// methods on non-generic receiver types.
func RegisterDefinition[T any](r *Registry, def *Definition[T]) {
	c := r.codec
	fn := func(ctx context.Context, payload []byte) error {
		return def.run(ctx, c, payload)
	}

	o := def.Opts
	if !o.maxRetriesSet && r.maxRetries != nil {
		o.MaxRetries = *r.maxRetries
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[def.Name] = Handler{Fn: fn, Opts: o}
}

// Get returns the handler for jobType.
func (r *Registry) Get(jobType string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[jobType]
	return h, ok
}

// Names returns all registered job types, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
