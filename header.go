package flowfile

import (
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/flowgrid/flowfile/internal/compress"
)

// CompressionMethod selects the per-block compression applied to the
// byte stream that follows the header.  This is independent of the
// whole-file gzip convention triggered by a ".gz" path suffix.
type CompressionMethod uint8

const (
	CompNone   CompressionMethod = CompressionMethod(compress.None)
	CompZlib   CompressionMethod = CompressionMethod(compress.Zlib)
	CompLZO1X  CompressionMethod = CompressionMethod(compress.LZO1X)
	CompSnappy CompressionMethod = CompressionMethod(compress.Snappy)
	CompZstd   CompressionMethod = CompressionMethod(compress.Zstd)

	// CompBest and CompDefault are resolved to a concrete method when
	// the header is written; on a non-seekable destination both
	// resolve to CompNone.
	CompBest    CompressionMethod = CompressionMethod(compress.Best)
	CompDefault CompressionMethod = CompressionMethod(compress.Default)
)

// Name returns the registered name of the method.
func (c CompressionMethod) Name() string { return compress.Method(c).Name() }

// CompressionFromName resolves a method name, including "best" and
// "default".
func CompressionFromName(name string) (CompressionMethod, error) {
	m, err := compress.FromName(name)
	return CompressionMethod(m), err
}

// headerVersionCurrent is the structure version written to new files.
// Files at or above headerVersionMixedICMP are assumed to come from
// encoders whose buggy ICMP records used type-major port order; see
// the fixup in Stream.ReadRecord.
const (
	headerVersionCurrent   = 16
	headerVersionMixedICMP = 16
)

// libraryVersion is recorded in every header this build writes.
const libraryVersion uint32 = 1<<16 | 0<<8 | 0 // 1.0.0

const formatUnset = FileFormat(0xFF)

var headerMagic = [4]byte{0xDE, 0xAD, 0xBE, 0xEF}

const headerStartLen = 16

// Header is the self-describing preamble of a flow file: format,
// record version, compression method, record length, byte order, and
// a variable list of auxiliary entries.  A header is mutable until it
// is read from or written to a stream, after which it is locked.
type Header struct {
	format        FileFormat
	version       uint8 // header structure version
	compMethod    CompressionMethod
	libVersion    uint32
	recordLen     uint16
	recordVersion uint16
	bigEndian     bool

	entries []HeaderEntry
	locked  bool
}

func newHeader() *Header {
	return &Header{
		format:        formatUnset,
		version:       headerVersionCurrent,
		recordVersion: VersionAny,
		bigEndian:     nativeIsBigEndian,
	}
}

// Format returns the file format, or an unregistered value when none
// has been set yet.
func (h *Header) Format() FileFormat { return h.format }

// SetFormat sets the record family written to the file.
func (h *Header) SetFormat(f FileFormat) error {
	if h.locked {
		return ErrHeaderLocked
	}
	if !f.Known() {
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, f.Name())
	}
	h.format = f
	return nil
}

// Version returns the header structure version.
func (h *Header) Version() uint8 { return h.version }

// RecordVersion returns the schema version of the records, or
// VersionAny when the writer has not chosen one.
func (h *Header) RecordVersion() uint16 { return h.recordVersion }

// SetRecordVersion selects the on-disk schema version, or VersionAny
// to adopt the format's default when the header is written.
func (h *Header) SetRecordVersion(v uint16) error {
	if h.locked {
		return ErrHeaderLocked
	}
	h.recordVersion = v
	return nil
}

// RecordLength returns the fixed on-disk record length, or 0 before a
// codec has been resolved.
func (h *Header) RecordLength() uint16 { return h.recordLen }

// CompressionMethod returns the per-block compression method.
func (h *Header) CompressionMethod() CompressionMethod { return h.compMethod }

// SetCompressionMethod selects the per-block compression method,
// including the CompBest and CompDefault placeholders.
func (h *Header) SetCompressionMethod(c CompressionMethod) error {
	if h.locked {
		return ErrHeaderLocked
	}
	if !compress.Method(c).Known() {
		return fmt.Errorf("%w: %d", ErrCompressionInvalid, uint8(c))
	}
	h.compMethod = c
	return nil
}

// BigEndian reports the byte order the records were written in.
func (h *Header) BigEndian() bool { return h.bigEndian }

// Locked reports whether the header has been read or written and can
// no longer be changed.
func (h *Header) Locked() bool { return h.locked }

// Entries returns the auxiliary header entries in file order.
func (h *Header) Entries() []HeaderEntry { return h.entries }

// AddEntry appends an auxiliary entry.
func (h *Header) AddEntry(e HeaderEntry) error {
	if h.locked {
		return ErrHeaderLocked
	}
	h.entries = append(h.entries, e)
	return nil
}

// PackedFile returns the packed-file provenance entry, or nil when the
// header carries none.
func (h *Header) PackedFile() *PackedFileEntry {
	for _, e := range h.entries {
		if pf, ok := e.(*PackedFileEntry); ok {
			return pf
		}
	}
	return nil
}

// SetPackedFile records the provenance of a packed data file: the hour
// the file covers and the flow type and sensor that produced it.  The
// codec uses these to fill record fields not present on the wire.
func (h *Header) SetPackedFile(startHour time.Time, flowType, sensor uint32) error {
	if h.locked {
		return ErrHeaderLocked
	}
	if pf := h.PackedFile(); pf != nil {
		pf.StartHour = startHour.Truncate(time.Hour)
		pf.FlowType = flowType
		pf.Sensor = sensor
		return nil
	}
	return h.AddEntry(&PackedFileEntry{
		StartHour: startHour.Truncate(time.Hour),
		FlowType:  flowType,
		Sensor:    sensor,
	})
}

// Header entry type ids.  Id 0 terminates the entry list on disk.
const (
	entryIDEnd        = 0
	EntryIDPackedFile = 1
	EntryIDInvocation = 2
	EntryIDAnnotation = 3
)

// HeaderEntry is one auxiliary entry in a header.  Entries the reader
// does not recognize round-trip as UnknownEntry.
type HeaderEntry interface {
	TypeID() uint32
	payload() []byte
}

// PackedFileEntry records which hour/flow-type/sensor a packed data
// file belongs to.
type PackedFileEntry struct {
	StartHour time.Time
	FlowType  uint32
	Sensor    uint32
}

// TypeID returns EntryIDPackedFile.
func (*PackedFileEntry) TypeID() uint32 { return EntryIDPackedFile }

func (e *PackedFileEntry) payload() []byte {
	var b [16]byte
	binary.BigEndian.PutUint64(b[0:8], uint64(e.StartHour.UnixMilli()))
	binary.BigEndian.PutUint32(b[8:12], e.FlowType)
	binary.BigEndian.PutUint32(b[12:16], e.Sensor)
	return b[:]
}

// InvocationEntry preserves the command line that produced the file.
type InvocationEntry struct {
	Command string
}

// TypeID returns EntryIDInvocation.
func (*InvocationEntry) TypeID() uint32 { return EntryIDInvocation }

func (e *InvocationEntry) payload() []byte { return []byte(e.Command) }

// AnnotationEntry carries a free-form note attached to the file.
type AnnotationEntry struct {
	Note string
}

// TypeID returns EntryIDAnnotation.
func (*AnnotationEntry) TypeID() uint32 { return EntryIDAnnotation }

func (e *AnnotationEntry) payload() []byte { return []byte(e.Note) }

// UnknownEntry preserves an entry written by a newer or foreign build.
type UnknownEntry struct {
	ID   uint32
	Data []byte
}

// TypeID returns the entry's original id.
func (e *UnknownEntry) TypeID() uint32 { return e.ID }

func (e *UnknownEntry) payload() []byte { return e.Data }

// writeTo serializes the header.  The fixed start block is written in
// native byte order with a flag byte naming that order; entries are
// always big-endian.  The total length is padded to a multiple of the
// record length so the first record starts on a record boundary.
func (h *Header) writeTo(w io.Writer) (int64, error) {
	start := make([]byte, headerStartLen)
	copy(start[0:4], headerMagic[:])
	if nativeIsBigEndian {
		start[4] |= 0x01
	}
	start[5] = uint8(h.format)
	start[6] = h.version
	start[7] = uint8(h.compMethod)
	binary.NativeEndian.PutUint32(start[8:12], h.libVersion)
	binary.NativeEndian.PutUint16(start[12:14], h.recordLen)
	binary.NativeEndian.PutUint16(start[14:16], h.recordVersion)

	body := start
	for _, e := range h.entries {
		p := e.payload()
		var ent [8]byte
		binary.BigEndian.PutUint32(ent[0:4], e.TypeID())
		binary.BigEndian.PutUint32(ent[4:8], uint32(8+len(p)))
		body = append(body, ent[:]...)
		body = append(body, p...)
	}

	// Terminating entry, padded so the header length is a multiple of
	// the record length.
	endLen := 8
	if h.recordLen > 0 {
		if rem := (len(body) + endLen) % int(h.recordLen); rem != 0 {
			endLen += int(h.recordLen) - rem
		}
	}
	var ent [8]byte
	binary.BigEndian.PutUint32(ent[4:8], uint32(endLen))
	body = append(body, ent[:]...)
	body = append(body, make([]byte, endLen-8)...)

	n, err := w.Write(body)
	return int64(n), err
}

// readFrom parses a header from r, swapping the start block when the
// file's byte order differs from the machine's.
func (h *Header) readFrom(r io.Reader) (int64, error) {
	var total int64
	start := make([]byte, headerStartLen)
	n, err := io.ReadFull(r, start)
	total += int64(n)
	if err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return total, ErrBadMagic
		}
		return total, err
	}
	if [4]byte(start[0:4]) != headerMagic {
		return total, ErrBadMagic
	}

	h.bigEndian = start[4]&0x01 != 0
	h.format = FileFormat(start[5])
	h.version = start[6]
	h.compMethod = CompressionMethod(start[7])

	var order binary.ByteOrder = binary.LittleEndian
	if h.bigEndian {
		order = binary.BigEndian
	}
	h.libVersion = order.Uint32(start[8:12])
	h.recordLen = order.Uint16(start[12:14])
	h.recordVersion = order.Uint16(start[14:16])

	h.entries = nil
	for {
		var ent [8]byte
		n, err := io.ReadFull(r, ent[:])
		total += int64(n)
		if err != nil {
			return total, fmt.Errorf("flowfile: truncated header entries: %w", err)
		}
		id := binary.BigEndian.Uint32(ent[0:4])
		length := binary.BigEndian.Uint32(ent[4:8])
		if length < 8 || length > 1<<20 {
			return total, fmt.Errorf("flowfile: header entry %d has bad length %d", id, length)
		}
		data := make([]byte, length-8)
		n, err = io.ReadFull(r, data)
		total += int64(n)
		if err != nil {
			return total, fmt.Errorf("flowfile: truncated header entry %d: %w", id, err)
		}
		if id == entryIDEnd {
			return total, nil
		}
		e, err := parseEntry(id, data)
		if err != nil {
			return total, err
		}
		h.entries = append(h.entries, e)
	}
}

func parseEntry(id uint32, data []byte) (HeaderEntry, error) {
	switch id {
	case EntryIDPackedFile:
		if len(data) != 16 {
			return nil, fmt.Errorf("flowfile: packed-file entry has bad length %d", len(data))
		}
		ms := int64(binary.BigEndian.Uint64(data[0:8]))
		return &PackedFileEntry{
			StartHour: time.UnixMilli(ms).UTC(),
			FlowType:  binary.BigEndian.Uint32(data[8:12]),
			Sensor:    binary.BigEndian.Uint32(data[12:16]),
		}, nil
	case EntryIDInvocation:
		return &InvocationEntry{Command: string(data)}, nil
	case EntryIDAnnotation:
		return &AnnotationEntry{Note: string(data)}, nil
	default:
		return &UnknownEntry{ID: id, Data: data}, nil
	}
}
