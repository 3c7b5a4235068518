package job_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/xraph/jobstore"
	"github.com/xraph/jobstore/codec"
	"github.com/xraph/jobstore/job"
)

type emailPayload struct {
	To      string `json:"to" msgpack:"to"`
	Subject string `json:"subject" msgpack:"subject"`
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := job.NewRegistry()

	var got emailPayload
	def := job.NewDefinition("send-email", func(_ context.Context, p emailPayload) error {
		got = p
		return nil
	}, job.WithMaxRetries(7), job.WithTimeout(time.Second))

	job.RegisterDefinition(r, def)

	h, ok := r.Get("send-email")
	if !ok {
		t.Fatal("expected handler to be registered")
	}
	if h.Opts.MaxRetries != 7 {
		t.Errorf("MaxRetries = %d, want 7", h.Opts.MaxRetries)
	}
	if h.Opts.Timeout != time.Second {
		t.Errorf("Timeout = %v, want 1s", h.Opts.Timeout)
	}

	payload, _ := json.Marshal(emailPayload{To: "alice@example.com", Subject: "Hello"})
	if err := h.Fn(context.Background(), payload); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.To != "alice@example.com" || got.Subject != "Hello" {
		t.Errorf("got %+v", got)
	}
}

func TestRegistry_MsgpackCodec(t *testing.T) {
	r := job.NewRegistry(job.WithCodec(codec.Msgpack))

	var got emailPayload
	job.RegisterDefinition(r, job.NewDefinition("send-email", func(_ context.Context, p emailPayload) error {
		got = p
		return nil
	}))

	payload, err := codec.Msgpack.Encode(emailPayload{To: "bob@example.com"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	h, _ := r.Get("send-email")
	if err := h.Fn(context.Background(), payload); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.To != "bob@example.com" {
		t.Errorf("To = %q, want %q", got.To, "bob@example.com")
	}
}

func TestRegistry_GetUnknown(t *testing.T) {
	r := job.NewRegistry()
	if _, ok := r.Get("nonexistent"); ok {
		t.Fatal("expected no handler for unregistered job")
	}
}

func TestRegistry_NamesSorted(t *testing.T) {
	r := job.NewRegistry()

	job.RegisterDefinition(r, job.NewDefinition("job-c", func(_ context.Context, _ struct{}) error { return nil }))
	job.RegisterDefinition(r, job.NewDefinition("job-a", func(_ context.Context, _ struct{}) error { return nil }))
	job.RegisterDefinition(r, job.NewDefinition("job-b", func(_ context.Context, _ struct{}) error { return nil }))

	names := r.Names()
	expected := []string{"job-a", "job-b", "job-c"}
	if len(names) != len(expected) {
		t.Fatalf("expected %d names, got %d", len(expected), len(names))
	}
	for i, want := range expected {
		if names[i] != want {
			t.Errorf("names[%d] = %q, want %q", i, names[i], want)
		}
	}
}

func TestRegistry_UndecodablePayloadIsPermanent(t *testing.T) {
	r := job.NewRegistry()
	job.RegisterDefinition(r, job.NewDefinition("typed-job", func(_ context.Context, _ emailPayload) error {
		t.Fatal("handler should not be called with invalid JSON")
		return nil
	}))

	h, _ := r.Get("typed-job")
	err := h.Fn(context.Background(), []byte(`{invalid json`))
	if !errors.Is(err, jobstore.ErrEncoding) {
		t.Fatalf("expected ErrEncoding, got %v", err)
	}
	if !job.IsPermanent(err) {
		t.Error("expected decode failure to be permanent")
	}
}

func TestRegistry_EmptyPayload(t *testing.T) {
	r := job.NewRegistry()
	called := false
	job.RegisterDefinition(r, job.NewDefinition("no-payload", func(_ context.Context, _ struct{}) error {
		called = true
		return nil
	}))

	h, _ := r.Get("no-payload")
	if err := h.Fn(context.Background(), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("handler not called with empty payload")
	}
}

func TestRegistry_OverwriteHandler(t *testing.T) {
	r := job.NewRegistry()

	job.RegisterDefinition(r, job.NewDefinition("overwrite", func(_ context.Context, _ struct{}) error {
		return errors.New("old")
	}))
	job.RegisterDefinition(r, job.NewDefinition("overwrite", func(_ context.Context, _ struct{}) error {
		return errors.New("new")
	}))

	h, _ := r.Get("overwrite")
	err := h.Fn(context.Background(), nil)
	if err == nil || err.Error() != "new" {
		t.Fatalf("expected 'new' error, got %v", err)
	}
}

func TestDefinition_EncodeDecode(t *testing.T) {
	def := job.NewDefinition("send-email", func(context.Context, emailPayload) error { return nil },
		job.WithMaxRetries(7))

	if def.Opts.MaxRetries != 7 || def.Opts.Timeout != job.DefaultOptions().Timeout {
		t.Errorf("Opts = %+v", def.Opts)
	}

	for _, c := range []codec.Codec{codec.JSON, codec.Msgpack} {
		data, err := def.Encode(c, emailPayload{To: "ada@example.com", Subject: "hi"})
		if err != nil {
			t.Fatalf("%s: Encode: %v", c.Name(), err)
		}
		got, err := def.Decode(c, data)
		if err != nil {
			t.Fatalf("%s: Decode: %v", c.Name(), err)
		}
		if got.To != "ada@example.com" || got.Subject != "hi" {
			t.Errorf("%s: Decode = %+v", c.Name(), got)
		}
	}

	if got, err := def.Decode(codec.JSON, nil); err != nil || got != (emailPayload{}) {
		t.Errorf("Decode(nil) = %+v, %v; want zero value", got, err)
	}
}

func TestNewDefinition_EmptyNamePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("NewDefinition with empty name did not panic")
		}
	}()
	job.NewDefinition("", func(context.Context, struct{}) error { return nil })
}

func TestRegistry_DefaultMaxRetries(t *testing.T) {
	r := job.NewRegistry(job.WithDefaultMaxRetries(9))
	noop := func(context.Context, emailPayload) error { return nil }

	job.RegisterDefinition(r, job.NewDefinition("inherits", noop))
	job.RegisterDefinition(r, job.NewDefinition("explicit", noop, job.WithMaxRetries(0)))

	tests := []struct {
		name string
		want int
	}{
		{"inherits", 9},
		{"explicit", 0},
	}
	for _, tt := range tests {
		h, ok := r.Get(tt.name)
		if !ok {
			t.Fatalf("Get(%q): not registered", tt.name)
		}
		if h.Opts.MaxRetries != tt.want {
			t.Errorf("%s: MaxRetries = %d, want %d", tt.name, h.Opts.MaxRetries, tt.want)
		}
	}

	plain := job.NewRegistry()
	job.RegisterDefinition(plain, job.NewDefinition("inherits", noop))
	if h, _ := plain.Get("inherits"); h.Opts.MaxRetries != job.DefaultOptions().MaxRetries {
		t.Errorf("without default: MaxRetries = %d, want %d", h.Opts.MaxRetries, job.DefaultOptions().MaxRetries)
	}
}
