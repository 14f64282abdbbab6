// Package compress provides the per-block compression methods used
// inside flow files.  Each method compresses and decompresses whole
// blocks; streaming is handled a layer up by the I/O buffer.
package compress

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
)

// Method identifies a block compression method.  The numeric values
// are stored in file headers and must never be renumbered.
type Method uint8

// Concrete methods, in registry order.
const (
	None   Method = 0
	Zlib   Method = 1
	LZO1X  Method = 2 // recognized for compatibility; no decoder is linked
	Snappy Method = 3
	Zstd   Method = 4
)

// Placeholder methods, resolved to a concrete method when a header is
// written.
const (
	Best    Method = 254
	Default Method = 255
)

// ErrUnavailable reports a method that is known but whose
// implementation is not linked into this build.
var ErrUnavailable = errors.New("compress: method not available")

// ErrUnknown reports a method value outside the registry.
var ErrUnknown = errors.New("compress: unrecognized method")

// Codec compresses and decompresses single blocks.  Compress and
// Decompress append to dst and return the extended slice.
type Codec interface {
	Compress(dst, src []byte) ([]byte, error)
	Decompress(dst, src []byte) ([]byte, error)
	// MaxCompressedSize returns an upper bound on the compressed size
	// of srcLen input bytes.
	MaxCompressedSize(srcLen int) int
}

type methodInfo struct {
	name  string
	codec Codec // nil when the method is known but unavailable
}

// Method names are stable and appear in user-facing messages and on
// command lines.
var registry = map[Method]methodInfo{
	None:   {name: "none", codec: nil},
	Zlib:   {name: "zlib", codec: zlibCodec{}},
	LZO1X:  {name: "lzo1x", codec: nil},
	Snappy: {name: "snappy", codec: snappyCodec{}},
	Zstd:   {name: "zstd", codec: zstdCodec{}},
}

func init() {
	// The registry is consulted by name from the command line, so the
	// names must be unique, short, and assigned to contiguous ids.
	seen := make(map[string]bool, len(registry))
	for m := Method(0); int(m) < len(registry); m++ {
		info, ok := registry[m]
		if !ok {
			panic(fmt.Sprintf("compress: method ids not contiguous at %d", m))
		}
		if info.name == "" || len(info.name) > 32 {
			panic(fmt.Sprintf("compress: bad name for method %d", m))
		}
		if seen[info.name] {
			panic(fmt.Sprintf("compress: duplicate method name %q", info.name))
		}
		seen[info.name] = true
	}
}

// Known reports whether m is a registered method or one of the
// placeholder values.
func (m Method) Known() bool {
	if m == Best || m == Default {
		return true
	}
	_, ok := registry[m]
	return ok
}

// Available reports whether m can actually compress and decompress in
// this build.  None is always available.
func (m Method) Available() bool {
	info, ok := registry[m]
	return ok && (m == None || info.codec != nil)
}

// Name returns the registered name of m, or a numeric placeholder for
// unregistered values.
func (m Method) Name() string {
	switch m {
	case Best:
		return "best"
	case Default:
		return "default"
	}
	if info, ok := registry[m]; ok {
		return info.name
	}
	return fmt.Sprintf("unknown-%d", uint8(m))
}

// FromName returns the method registered under name, including the
// "best" and "default" placeholders.
func FromName(name string) (Method, error) {
	switch name {
	case "best":
		return Best, nil
	case "default":
		return Default, nil
	}
	for m, info := range registry {
		if info.name == name {
			return m, nil
		}
	}
	return None, fmt.Errorf("%w: %q", ErrUnknown, name)
}

// NewCodec returns the block codec for m.  For None it returns
// (nil, nil): the caller buffers without a compression layer.
func (m Method) NewCodec() (Codec, error) {
	info, ok := registry[m]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknown, uint8(m))
	}
	if m == None {
		return nil, nil
	}
	if info.codec == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnavailable, info.name)
	}
	return info.codec, nil
}

// ResolveDefault is the concrete method substituted for Default.
func ResolveDefault() Method { return Zlib }

// ResolveBest is the concrete method substituted for Best.
func ResolveBest() Method { return Zstd }

// zstdCodec compresses blocks with klauspost zstd in buffer-to-buffer
// mode.  The encoder and decoder are stateless across blocks, so one
// shared pair serves all streams.
type zstdCodec struct{}

var (
	zstdEnc, _ = zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
	zstdDec, _ = zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
)

func (zstdCodec) Compress(dst, src []byte) ([]byte, error) {
	return zstdEnc.EncodeAll(src, dst), nil
}

func (zstdCodec) Decompress(dst, src []byte) ([]byte, error) {
	return zstdDec.DecodeAll(src, dst)
}

func (zstdCodec) MaxCompressedSize(srcLen int) int {
	// Worst case for an incompressible input plus frame overhead.
	return srcLen + (srcLen >> 8) + 64
}

type snappyCodec struct{}

func (snappyCodec) Compress(dst, src []byte) ([]byte, error) {
	return append(dst, snappy.Encode(nil, src)...), nil
}

func (snappyCodec) Decompress(dst, src []byte) ([]byte, error) {
	out, err := snappy.Decode(nil, src)
	if err != nil {
		return nil, err
	}
	return append(dst, out...), nil
}

func (snappyCodec) MaxCompressedSize(srcLen int) int {
	return snappy.MaxEncodedLen(srcLen)
}

type zlibCodec struct{}

func (zlibCodec) Compress(dst, src []byte) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(len(src) / 2)
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(src); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return append(dst, buf.Bytes()...), nil
}

func (zlibCodec) Decompress(dst, src []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(src))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, err
	}
	return append(dst, out...), nil
}

func (zlibCodec) MaxCompressedSize(srcLen int) int {
	// deflate bound: a handful of bytes per 16K block plus the zlib
	// wrapper.
	return srcLen + srcLen/1000 + 64
}
