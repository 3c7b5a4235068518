package job

import (
	"context"

	"github.com/xraph/jobstore/codec"
)

// Definition binds a job type name to a typed handler. T is the payload
// type and must round-trip through the codec the queue is configured with.
type Definition[T any] struct {
	Name    string
	Handler func(ctx context.Context, payload T) error
	Opts    Options
}

// NewDefinition creates a typed job definition. It panics on an empty name,
// since records without a type can never be checked out.
func NewDefinition[T any](name string, handler func(ctx context.Context, payload T) error, opts ...Option) *Definition[T] {
	if name == "" {
		panic("job: definition name must not be empty")
	}
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Definition[T]{Name: name, Handler: handler, Opts: o}
}

// Encode serializes payload with c.
func (d *Definition[T]) Encode(c codec.Codec, payload T) ([]byte, error) {
	return c.Encode(payload)
}

// Decode deserializes a stored payload with c. An empty payload yields the
// zero T.
func (d *Definition[T]) Decode(c codec.Codec, data []byte) (T, error) {
	var v T
	if len(data) == 0 {
		return v, nil
	}
	err := c.Decode(data, &v)
	return v, err
}

// run decodes data and invokes the handler. Decode failures are permanent.
func (d *Definition[T]) run(ctx context.Context, c codec.Codec, data []byte) error {
	v, err := d.Decode(c, data)
	if err != nil {
		return Permanent(err)
	}
	return d.Handler(ctx, v)
}
