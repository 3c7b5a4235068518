package codec_test

import (
	"errors"
	"testing"

	"github.com/xraph/jobstore"
	"github.com/xraph/jobstore/codec"
)

type invoice struct {
	Number string `json:"number" msgpack:"number"`
	Cents  int64  `json:"cents" msgpack:"cents"`
}

func TestCodecs_RoundTrip(t *testing.T) {
	for _, c := range []codec.Codec{codec.JSON, codec.Msgpack} {
		t.Run(c.Name(), func(t *testing.T) {
			t.Parallel()

			in := invoice{Number: "INV-7", Cents: 1999}
			data, err := c.Encode(in)
			if err != nil {
				t.Fatalf("encode: %v", err)
			}

			var out invoice
			if err := c.Decode(data, &out); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if out != in {
				t.Errorf("got %+v, want %+v", out, in)
			}
		})
	}
}

func TestCodecs_DecodeGarbage(t *testing.T) {
	garbage := []byte{0xc1, 0xff, 0x00}

	for _, c := range []codec.Codec{codec.JSON, codec.Msgpack} {
		t.Run(c.Name(), func(t *testing.T) {
			t.Parallel()

			var out invoice
			err := c.Decode(garbage, &out)
			if !errors.Is(err, jobstore.ErrEncoding) {
				t.Fatalf("expected ErrEncoding, got %v", err)
			}

			var de *codec.DecodeError
			if !errors.As(err, &de) {
				t.Fatalf("expected *DecodeError, got %T", err)
			}
			if string(de.Data) != string(garbage) {
				t.Errorf("DecodeError.Data = %v, want %v", de.Data, garbage)
			}
		})
	}
}

func TestJSON_EncodeUnsupported(t *testing.T) {
	_, err := codec.JSON.Encode(make(chan int))
	if !errors.Is(err, jobstore.ErrEncoding) {
		t.Fatalf("expected ErrEncoding, got %v", err)
	}
}

func TestByName(t *testing.T) {
	tests := []struct {
		name    string
		want    string
		wantErr bool
	}{
		{"", "json", false},
		{"json", "json", false},
		{"msgpack", "msgpack", false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		c, err := codec.ByName(tt.name)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ByName(%q): expected error", tt.name)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ByName(%q): %v", tt.name, err)
		}
		if c.Name() != tt.want {
			t.Errorf("ByName(%q).Name() = %q, want %q", tt.name, c.Name(), tt.want)
		}
	}
}
