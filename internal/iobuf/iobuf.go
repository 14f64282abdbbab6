// Package iobuf provides block-buffered I/O over a byte stream, with
// optional per-block compression.
//
// A compressed stream is a sequence of blocks, each written as an
// 8-byte big-endian header followed by the compressed payload:
//
//	byte 0-3: compressed payload size
//	byte 4-7: uncompressed payload size
//	byte 8- : the compressed payload
//
// A compressed size of zero is treated as end-of-stream, which allows
// a compressed stream to be embedded in a larger file.  Uncompressed
// streams carry no framing; the buffer only batches reads and writes.
//
// Both the reader and the writer honor a record-size quantum: a block
// always holds a whole number of records, so a record never straddles
// a block boundary and a truncated file is recoverable up to its last
// complete block.
package iobuf

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/flowgrid/flowfile/internal/compress"
)

const (
	// DefaultBlockSize is the uncompressed block size used when the
	// caller does not choose one.
	DefaultBlockSize = 1 << 16

	// MaxBlockSize bounds both the compressed and uncompressed size of
	// a single block.
	MaxBlockSize = 1 << 20

	blockHeaderLen = 8
)

// ErrLineTooLong is returned by ReadToDelim when the destination fills
// before a delimiter is seen.  The stream is left positioned after the
// returned bytes so the caller can keep draining toward the delimiter.
var ErrLineTooLong = errors.New("iobuf: no delimiter within limit")

// ErrCorruptBlock reports a malformed block header or a payload that
// does not decompress to its declared size.
var ErrCorruptBlock = errors.New("iobuf: corrupt block")

// HeadroomError is returned by Unget when the read buffer cannot
// accept all of the pushed-back bytes.
type HeadroomError struct {
	// Room is how many bytes Unget could have accepted.
	Room int
}

func (e *HeadroomError) Error() string {
	return fmt.Sprintf("iobuf: unget exceeds buffer headroom (%d available)", e.Room)
}

func usableBytes(blockSize, recSize int) (int, error) {
	if recSize < 1 || blockSize < recSize || blockSize > MaxBlockSize {
		return 0, fmt.Errorf("iobuf: invalid block size %d for record size %d",
			blockSize, recSize)
	}
	return blockSize - blockSize%recSize, nil
}

// Reader reads a block-buffered, optionally compressed stream.
type Reader struct {
	src   io.Reader
	codec compress.Codec // nil: plain buffering, no block framing

	buf  []byte // current uncompressed block
	pos  int    // read cursor within buf
	cbuf []byte // compressed payload scratch

	maxBytes int
	eof      bool
	err      error

	logical  int64 // bytes delivered to the caller
	physical int64 // bytes consumed from src
}

// NewReader wraps src.  The codec may be nil for an uncompressed
// stream.  recSize is the record quantum; reads are not themselves
// required to be record-aligned.
func NewReader(src io.Reader, codec compress.Codec, blockSize, recSize int) (*Reader, error) {
	maxBytes, err := usableBytes(blockSize, recSize)
	if err != nil {
		return nil, err
	}
	return &Reader{
		src:      src,
		codec:    codec,
		maxBytes: maxBytes,
	}, nil
}

// Read fills dst, refilling whole blocks from the underlying stream as
// needed.  It returns less than len(dst) only at end-of-stream, and
// (0, io.EOF) once the stream is exhausted.
func (r *Reader) Read(dst []byte) (int, error) {
	total := 0
	for total < len(dst) {
		if r.pos == len(r.buf) {
			if err := r.fill(); err != nil {
				if err == io.EOF && total > 0 {
					break
				}
				return total, err
			}
		}
		n := copy(dst[total:], r.buf[r.pos:])
		r.pos += n
		total += n
	}
	r.logical += int64(total)
	return total, nil
}

// Skip discards n bytes, seeking past them when the underlying stream
// is an uncompressed seekable file.  It returns the number of bytes
// actually discarded, which is less than n only at end-of-stream.
func (r *Reader) Skip(n int64) (int64, error) {
	var skipped int64

	// Drain whatever is already buffered.
	if avail := int64(len(r.buf) - r.pos); avail > 0 {
		take := min(avail, n)
		r.pos += int(take)
		skipped += take
		n -= take
	}

	if n > 0 && r.codec == nil && !r.eof {
		if s, ok := r.src.(io.Seeker); ok {
			moved, err := seekForward(s, n)
			if err != nil {
				r.err = err
				return skipped, err
			}
			r.physical += moved
			skipped += moved
			if moved < n {
				r.eof = true
			}
			n -= moved
		}
	}

	for n > 0 {
		if err := r.fill(); err != nil {
			if err == io.EOF {
				break
			}
			return skipped, err
		}
		take := min(int64(len(r.buf)-r.pos), n)
		r.pos += int(take)
		skipped += take
		n -= take
	}

	r.logical += skipped
	if n > 0 {
		return skipped, io.EOF
	}
	return skipped, nil
}

// seekForward advances s by at most n bytes, stopping at end-of-file,
// and returns how far it moved.
func seekForward(s io.Seeker, n int64) (int64, error) {
	cur, err := s.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, err
	}
	end, err := s.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, err
	}
	target := min(cur+n, end)
	if _, err := s.Seek(target, io.SeekStart); err != nil {
		return 0, err
	}
	return target - cur, nil
}

// ReadToDelim fills dst up to and including the first occurrence of
// delim.  When dst fills with no delimiter found it returns
// (len(dst), ErrLineTooLong); the next call continues draining the
// same line.  At end-of-stream it returns what remains, then
// (0, io.EOF).
func (r *Reader) ReadToDelim(dst []byte, delim byte) (int, error) {
	total := 0
	for total < len(dst) {
		if r.pos == len(r.buf) {
			if err := r.fill(); err != nil {
				if err == io.EOF && total > 0 {
					r.logical += int64(total)
					return total, nil
				}
				return total, err
			}
		}
		window := r.buf[r.pos:]
		if want := len(dst) - total; len(window) > want {
			window = window[:want]
		}
		var (
			n     int
			found bool
		)
		for i, b := range window {
			if b == delim {
				n = i + 1
				found = true
				break
			}
		}
		if !found {
			n = len(window)
		}
		copy(dst[total:], window[:n])
		r.pos += n
		total += n
		if found {
			r.logical += int64(total)
			return total, nil
		}
	}
	r.logical += int64(total)
	return total, ErrLineTooLong
}

// Unget pushes data back onto the front of the read buffer so the next
// Read returns it again.  It fails with a *HeadroomError when the
// already-consumed portion of the buffer is smaller than data.
func (r *Reader) Unget(data []byte) error {
	if len(data) > r.pos {
		return &HeadroomError{Room: r.pos}
	}
	copy(r.buf[r.pos-len(data):r.pos], data)
	r.pos -= len(data)
	r.logical -= int64(len(data))
	return nil
}

// TotalRead returns the number of logical bytes delivered so far.
func (r *Reader) TotalRead() int64 { return r.logical }

// fill replaces the buffered block with the next one from src.
// Returns io.EOF at a clean end of stream.
func (r *Reader) fill() error {
	if r.err != nil {
		return r.err
	}
	if r.eof {
		return io.EOF
	}
	if r.codec == nil {
		return r.fillRaw()
	}
	return r.fillBlock()
}

func (r *Reader) fillRaw() error {
	if r.buf == nil {
		r.buf = make([]byte, 0, r.maxBytes)
	}
	n, err := io.ReadFull(r.src, r.buf[:r.maxBytes])
	r.physical += int64(n)
	if n == 0 {
		r.eof = true
		if err == io.EOF || err == io.ErrUnexpectedEOF || err == nil {
			return io.EOF
		}
		r.err = err
		return err
	}
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		r.eof = true
	} else if err != nil {
		r.err = err
		return err
	}
	r.buf = r.buf[:n]
	r.pos = 0
	return nil
}

func (r *Reader) fillBlock() error {
	var hdr [blockHeaderLen]byte
	if _, err := io.ReadFull(r.src, hdr[:]); err != nil {
		if err == io.EOF {
			r.eof = true
			return io.EOF
		}
		if err == io.ErrUnexpectedEOF {
			r.err = fmt.Errorf("%w: truncated block header", ErrCorruptBlock)
		} else {
			r.err = err
		}
		return r.err
	}
	comprSize := binary.BigEndian.Uint32(hdr[0:4])
	uncomprSize := binary.BigEndian.Uint32(hdr[4:8])
	if comprSize == 0 {
		// Embedded end-of-stream marker.
		r.physical += blockHeaderLen
		r.eof = true
		return io.EOF
	}
	if comprSize > MaxBlockSize || uncomprSize > MaxBlockSize {
		r.err = fmt.Errorf("%w: block size %d/%d exceeds limit",
			ErrCorruptBlock, comprSize, uncomprSize)
		return r.err
	}

	if cap(r.cbuf) < int(comprSize) {
		r.cbuf = make([]byte, comprSize)
	}
	r.cbuf = r.cbuf[:comprSize]
	if _, err := io.ReadFull(r.src, r.cbuf); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			r.err = fmt.Errorf("%w: truncated block payload", ErrCorruptBlock)
		} else {
			r.err = err
		}
		return r.err
	}
	r.physical += blockHeaderLen + int64(comprSize)

	out, err := r.codec.Decompress(r.buf[:0], r.cbuf)
	if err != nil {
		r.err = fmt.Errorf("%w: %v", ErrCorruptBlock, err)
		return r.err
	}
	if len(out) != int(uncomprSize) {
		r.err = fmt.Errorf("%w: block expands to %d bytes, header says %d",
			ErrCorruptBlock, len(out), uncomprSize)
		return r.err
	}
	r.buf = out
	r.pos = 0
	return nil
}

// Writer writes a block-buffered, optionally compressed stream.
type Writer struct {
	dst   io.Writer
	codec compress.Codec

	buf  []byte
	cbuf []byte

	maxBytes int
	err      error

	logical  int64
	physical int64
}

// NewWriter wraps dst.  The codec may be nil for an uncompressed
// stream.  Records of recSize bytes never straddle a block boundary.
func NewWriter(dst io.Writer, codec compress.Codec, blockSize, recSize int) (*Writer, error) {
	maxBytes, err := usableBytes(blockSize, recSize)
	if err != nil {
		return nil, err
	}
	return &Writer{
		dst:      dst,
		codec:    codec,
		buf:      make([]byte, 0, maxBytes),
		maxBytes: maxBytes,
	}, nil
}

// Write buffers all of src, flushing completed blocks as they fill.
// It is all-or-nothing: on error nothing counts as accepted and the
// writer is left unusable.
func (w *Writer) Write(src []byte) (int, error) {
	if w.err != nil {
		return 0, w.err
	}
	for rest := src; len(rest) > 0; {
		n := copy(w.buf[len(w.buf):w.maxBytes], rest)
		w.buf = w.buf[:len(w.buf)+n]
		rest = rest[n:]
		if len(w.buf) == w.maxBytes {
			if err := w.flushBlock(); err != nil {
				return 0, err
			}
		}
	}
	w.logical += int64(len(src))
	return len(src), nil
}

// Flush pushes any partial block through to the underlying stream and
// returns the physical byte count written since the writer was bound.
func (w *Writer) Flush() (int64, error) {
	if w.err != nil {
		return w.physical, w.err
	}
	if len(w.buf) > 0 {
		if err := w.flushBlock(); err != nil {
			return w.physical, err
		}
	}
	if f, ok := w.dst.(interface{ Flush() error }); ok {
		if err := f.Flush(); err != nil {
			w.err = err
			return w.physical, err
		}
	}
	return w.physical, nil
}

// TotalWritten returns the number of logical bytes accepted so far.
func (w *Writer) TotalWritten() int64 { return w.logical }

// UpperBound returns an upper bound on the physical size of the output
// if the writer were flushed now.  Before a Flush the true size is
// unknowable for compressed streams, so callers that need a file size
// early get a bound instead.
func (w *Writer) UpperBound() int64 {
	if len(w.buf) == 0 {
		return w.physical
	}
	if w.codec == nil {
		return w.physical + int64(len(w.buf))
	}
	return w.physical + blockHeaderLen + int64(w.codec.MaxCompressedSize(len(w.buf)))
}

func (w *Writer) flushBlock() error {
	block := w.buf
	w.buf = w.buf[:0]

	if w.codec == nil {
		n, err := w.dst.Write(block)
		w.physical += int64(n)
		if err != nil {
			w.err = err
		}
		return w.err
	}

	out, err := w.codec.Compress(w.cbuf[:0], block)
	if err != nil {
		w.err = err
		return err
	}
	w.cbuf = out[:0]

	var hdr [blockHeaderLen]byte
	binary.BigEndian.PutUint32(hdr[0:4], uint32(len(out)))
	binary.BigEndian.PutUint32(hdr[4:8], uint32(len(block)))
	if n, err := w.dst.Write(hdr[:]); err != nil {
		w.physical += int64(n)
		w.err = err
		return err
	}
	w.physical += blockHeaderLen
	n, err := w.dst.Write(out)
	w.physical += int64(n)
	if err != nil {
		w.err = err
	}
	return w.err
}
