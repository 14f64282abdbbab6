package compress

import (
	"bytes"
	"errors"
	"math/rand"
	"testing"
)

func TestMethodRegistry(t *testing.T) {
	tests := []struct {
		method    Method
		name      string
		known     bool
		available bool
	}{
		{None, "none", true, true},
		{Zlib, "zlib", true, true},
		{LZO1X, "lzo1x", true, false},
		{Snappy, "snappy", true, true},
		{Zstd, "zstd", true, true},
		{Best, "best", true, false},
		{Default, "default", true, false},
		{Method(9), "unknown-9", false, false},
	}

	for _, tt := range tests {
		if got := tt.method.Known(); got != tt.known {
			t.Errorf("%s.Known() = %v, want %v", tt.name, got, tt.known)
		}
		if got := tt.method.Available(); got != tt.available {
			t.Errorf("%s.Available() = %v, want %v", tt.name, got, tt.available)
		}
		if got := tt.method.Name(); got != tt.name {
			t.Errorf("Method(%d).Name() = %q, want %q", uint8(tt.method), got, tt.name)
		}
	}
}

func TestFromName(t *testing.T) {
	for _, name := range []string{"none", "zlib", "lzo1x", "snappy", "zstd", "best", "default"} {
		m, err := FromName(name)
		if err != nil {
			t.Errorf("FromName(%q): %v", name, err)
			continue
		}
		if m.Name() != name {
			t.Errorf("FromName(%q).Name() = %q", name, m.Name())
		}
	}
	if _, err := FromName("bzip2"); !errors.Is(err, ErrUnknown) {
		t.Errorf("FromName(bzip2) = %v, want ErrUnknown", err)
	}
}

func TestNewCodec(t *testing.T) {
	c, err := None.NewCodec()
	if c != nil || err != nil {
		t.Errorf("None.NewCodec() = %v, %v; want nil, nil", c, err)
	}
	if _, err := LZO1X.NewCodec(); !errors.Is(err, ErrUnavailable) {
		t.Errorf("LZO1X.NewCodec() = %v, want ErrUnavailable", err)
	}
	if _, err := Method(200).NewCodec(); !errors.Is(err, ErrUnknown) {
		t.Errorf("Method(200).NewCodec() = %v, want ErrUnknown", err)
	}
}

func TestResolve(t *testing.T) {
	if m := ResolveDefault(); !m.Available() {
		t.Errorf("ResolveDefault() = %s, not available", m.Name())
	}
	if m := ResolveBest(); !m.Available() {
		t.Errorf("ResolveBest() = %s, not available", m.Name())
	}
}

func TestCodecRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	// Repetitive data compresses; random data tests the size bound.
	inputs := map[string][]byte{
		"empty":      {},
		"byte":       {0x42},
		"repetitive": bytes.Repeat([]byte("flow record "), 5000),
		"random-64k": make([]byte, 1<<16),
		"odd-length": make([]byte, 12345),
	}
	rng.Read(inputs["random-64k"])
	rng.Read(inputs["odd-length"])

	for _, m := range []Method{Zlib, Snappy, Zstd} {
		codec, err := m.NewCodec()
		if err != nil {
			t.Fatalf("%s.NewCodec(): %v", m.Name(), err)
		}
		for name, src := range inputs {
			comp, err := codec.Compress(nil, src)
			if err != nil {
				t.Errorf("%s compress %s: %v", m.Name(), name, err)
				continue
			}
			if bound := codec.MaxCompressedSize(len(src)); len(comp) > bound {
				t.Errorf("%s %s: compressed to %d bytes, bound says %d",
					m.Name(), name, len(comp), bound)
			}
			out, err := codec.Decompress(nil, comp)
			if err != nil {
				t.Errorf("%s decompress %s: %v", m.Name(), name, err)
				continue
			}
			if !bytes.Equal(out, src) {
				t.Errorf("%s round trip of %s: got %d bytes, want %d",
					m.Name(), name, len(out), len(src))
			}
		}
	}
}

func TestCodecAppendsToDst(t *testing.T) {
	for _, m := range []Method{Zlib, Snappy, Zstd} {
		codec, err := m.NewCodec()
		if err != nil {
			t.Fatal(err)
		}
		prefix := []byte("keep-me")
		comp, err := codec.Compress(append([]byte(nil), prefix...), []byte("payload"))
		if err != nil {
			t.Fatalf("%s: %v", m.Name(), err)
		}
		if !bytes.HasPrefix(comp, prefix) {
			t.Errorf("%s: Compress did not append to dst", m.Name())
		}
		out, err := codec.Decompress(append([]byte(nil), prefix...), comp[len(prefix):])
		if err != nil {
			t.Fatalf("%s: %v", m.Name(), err)
		}
		if !bytes.Equal(out, append(prefix, []byte("payload")...)) {
			t.Errorf("%s: Decompress did not append to dst", m.Name())
		}
	}
}

func TestCodecRejectsGarbage(t *testing.T) {
	for _, m := range []Method{Zlib, Snappy, Zstd} {
		codec, err := m.NewCodec()
		if err != nil {
			t.Fatal(err)
		}
		if _, err := codec.Decompress(nil, []byte("not a compressed block")); err == nil {
			t.Errorf("%s: decompressing garbage succeeded", m.Name())
		}
	}
}
