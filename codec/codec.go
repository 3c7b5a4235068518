// Package codec converts typed job payloads to and from the opaque bytes
// stored in a job record.
//
// The store never interprets payloads. Codecs are only used at the typed
// boundaries: queue.EnqueueJob, queue.UnscheduleJob and the handler
// registry. Every failure wraps jobstore.ErrEncoding.
package codec

import (
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/xraph/jobstore"
)

// Codec serializes payload values.
type Codec interface {
	// Name identifies the codec in logs and configuration.
	Name() string
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error
}

var (
	// JSON encodes payloads with encoding/json.
	JSON Codec = jsonCodec{}

	// Msgpack encodes payloads with MessagePack.
	Msgpack Codec = msgpackCodec{}
)

// ByName returns the built-in codec with the given name.
func ByName(name string) (Codec, error) {
	switch name {
	case "", "json":
		return JSON, nil
	case "msgpack":
		return Msgpack, nil
	default:
		return nil, fmt.Errorf("jobstore/codec: unknown codec %q", name)
	}
}

// DecodeError is returned when stored bytes cannot be decoded. Data keeps
// the raw payload so callers that already removed the record from the
// store do not lose it.
type DecodeError struct {
	Codec string
	Data  []byte
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("jobstore/codec: %s decode: %v", e.Codec, e.Err)
}

// Unwrap exposes both jobstore.ErrEncoding and the underlying codec error.
func (e *DecodeError) Unwrap() []error {
	return []error{jobstore.ErrEncoding, e.Err}
}

func encodeErr(name string, err error) error {
	return fmt.Errorf("jobstore/codec: %s encode: %w: %w", name, jobstore.ErrEncoding, err)
}

// ──────────────────────────────────────────────────
// JSON
// ──────────────────────────────────────────────────

type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }

func (c jsonCodec) Encode(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, encodeErr(c.Name(), err)
	}
	return data, nil
}

func (c jsonCodec) Decode(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return &DecodeError{Codec: c.Name(), Data: data, Err: err}
	}
	return nil
}

// ──────────────────────────────────────────────────
// MessagePack
// ──────────────────────────────────────────────────

type msgpackCodec struct{}

func (msgpackCodec) Name() string { return "msgpack" }

func (c msgpackCodec) Encode(v any) ([]byte, error) {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return nil, encodeErr(c.Name(), err)
	}
	return data, nil
}

func (c msgpackCodec) Decode(data []byte, v any) error {
	if err := msgpack.Unmarshal(data, v); err != nil {
		return &DecodeError{Codec: c.Name(), Data: data, Err: err}
	}
	return nil
}
