package flowfile

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/flowgrid/flowfile/internal/compress"
	"github.com/flowgrid/flowfile/internal/iobuf"
	"github.com/flowgrid/flowfile/internal/stats"
)

// IOMode is the direction of a stream, fixed at creation.
type IOMode int

const (
	ModeRead IOMode = iota
	ModeWrite
	ModeAppend
)

func (m IOMode) String() string {
	switch m {
	case ModeRead:
		return "read"
	case ModeWrite:
		return "write"
	case ModeAppend:
		return "append"
	}
	return fmt.Sprintf("IOMode(%d)", int(m))
}

// ContentKind is what a stream carries, fixed at creation.
type ContentKind int

const (
	// ContentText is line-oriented text.
	ContentText ContentKind = iota

	// ContentOpaque is raw binary with no header and no record
	// structure.
	ContentOpaque

	// ContentRecords is a headered file accessed as raw bytes.
	ContentRecords

	// ContentFlow is a headered file of flow records, accessed through
	// ReadRecord and WriteRecord.
	ContentFlow
)

func (c ContentKind) String() string {
	switch c {
	case ContentText:
		return "text"
	case ContentOpaque:
		return "opaque"
	case ContentRecords:
		return "records"
	case ContentFlow:
		return "flow"
	}
	return fmt.Sprintf("ContentKind(%d)", int(c))
}

// Stream lifecycle states.  Closed is terminal; a closed stream is
// never reopened.
type streamState int

const (
	stateUnbound streamState = iota
	stateBound
	stateOpen
	stateDirty // header consumed or produced; record I/O allowed
	stateClosed
)

// Special path names that bypass the filesystem.
const (
	PathStdin  = "stdin"
	PathStdout = "stdout"
	PathStderr = "stderr"
	PathHyphen = "-"
)

// Stream is a handle on one flow file: it owns the header, the block
// transport, and the codec resolved from the header's format and
// version.  A Stream is not safe for concurrent use.
type Stream struct {
	mode    IOMode
	content ContentKind
	state   streamState
	path    string

	file    *os.File
	isStdio bool

	seekable bool
	terminal bool

	// src/dst sit beneath the transport: the file itself, or a gzip
	// layer when the path names a gzip-wrapped file.
	src io.Reader
	dst io.Writer
	gzR *gzip.Reader
	gzW *gzip.Writer

	pagerCmd  *exec.Cmd
	pagerPipe io.WriteCloser

	hdr      *Header
	hdrBytes int64
	codec    recCodec
	cctx     codecContext

	rd *iobuf.Reader
	wr *iobuf.Writer

	recBuf  []byte
	lineBuf []byte
	count   uint64
	atEOF   bool

	mirror *Stream

	commentStart string

	lastErr error

	opts   options
	logger *zap.Logger
	stats  stats.Collector
}

// New creates an unbound stream for the given direction and content
// kind.  If no options are provided, sensible defaults are used.
func New(mode IOMode, content ContentKind, opts ...Option) (*Stream, error) {
	switch mode {
	case ModeRead, ModeWrite, ModeAppend:
	default:
		return nil, fmt.Errorf("%w: %d", ErrBadIOMode, int(mode))
	}
	switch content {
	case ContentText, ContentOpaque, ContentRecords, ContentFlow:
	default:
		return nil, fmt.Errorf("%w: %d", ErrBadContent, int(content))
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt.apply(&o)
	}

	return &Stream{
		mode:    mode,
		content: content,
		state:   stateUnbound,
		hdr:     newHeader(),
		opts:    o,
		logger:  o.logger,
		stats:   o.stats,
	}, nil
}

// fail caches err as the stream's last error and returns it.
func (s *Stream) fail(err error) error {
	if err != nil {
		s.lastErr = err
	}
	return err
}

// LastError returns the error cached by the most recent failing
// operation, or nil.
func (s *Stream) LastError() error { return s.lastErr }

// Path returns the bound path, or "" for an unbound stream.
func (s *Stream) Path() string { return s.path }

// Mode returns the stream's I/O direction.
func (s *Stream) Mode() IOMode { return s.mode }

// Content returns the stream's content kind.
func (s *Stream) Content() ContentKind { return s.content }

// Header returns the stream's header.  It is mutable until the header
// has been read or written.
func (s *Stream) Header() *Header { return s.hdr }

// RecordCount returns the number of records read or written so far.
func (s *Stream) RecordCount() uint64 { return s.count }

// IsSeekable reports whether the underlying descriptor supports
// seeking.  Gzip-wrapped streams are never seekable.
func (s *Stream) IsSeekable() bool {
	return s.seekable && s.gzR == nil && s.gzW == nil
}

// SetCommentStart sets the string that begins a comment in text mode.
// ReadLine strips text from the comment start to the end of the line.
func (s *Stream) SetCommentStart(cs string) { s.commentStart = cs }

// gzipNamed reports whether the path follows the gzip naming
// convention for the stream's mode: a ".gz" suffix when writing, and
// additionally an interior ".gz." (a temp-file suffix on a gzip name)
// when reading.
func gzipNamed(path string, mode IOMode) bool {
	if strings.HasSuffix(path, ".gz") {
		return true
	}
	return mode != ModeWrite && strings.Contains(path, ".gz.")
}

// Bind attaches a path to the stream.  The names "stdin", "stdout",
// "stderr" and "-" select the corresponding standard descriptor, with
// "-" meaning stdin for read and stdout for write.
func (s *Stream) Bind(path string) error {
	if s.state == stateClosed {
		return s.fail(ErrClosed)
	}
	if s.state != stateUnbound {
		return s.fail(ErrAlreadyBound)
	}
	if path == "" || len(path) >= 4096 {
		return s.fail(fmt.Errorf("%w: %q", ErrInvalidPath, path))
	}

	switch path {
	case PathStdin:
		if s.mode != ModeRead {
			return s.fail(fmt.Errorf("%w: %q is read-only", ErrInvalidPath, path))
		}
	case PathStdout, PathStderr:
		if s.mode != ModeWrite {
			return s.fail(fmt.Errorf("%w: %q is write-only", ErrInvalidPath, path))
		}
	case PathHyphen:
		if s.mode == ModeAppend {
			return s.fail(fmt.Errorf("%w: cannot append to %q", ErrInvalidPath, path))
		}
	default:
		if s.mode == ModeAppend {
			// Appending would have to rewrite the whole gzip stream.
			if gzipNamed(path, s.mode) {
				return s.fail(fmt.Errorf(
					"%w: cannot append to gzip-named file %q", ErrInvalidPath, path))
			}
			if fi, err := os.Stat(path); err == nil && fi.Mode()&os.ModeNamedPipe != 0 {
				return s.fail(fmt.Errorf(
					"%w: cannot append to FIFO %q", ErrInvalidPath, path))
			}
		}
	}

	s.path = path
	s.state = stateBound
	return nil
}

// Open opens the bound path and classifies the descriptor.  For flow
// and record content the transport is built later, when the header
// supplies the compression method and record length; text and opaque
// content get their transport immediately.
func (s *Stream) Open() error {
	switch s.state {
	case stateClosed:
		return s.fail(ErrClosed)
	case stateUnbound:
		return s.fail(ErrNotBound)
	case stateBound:
	default:
		return s.fail(ErrAlreadyOpen)
	}

	f, stdio, err := s.openFile()
	if err != nil {
		return s.fail(err)
	}
	s.file = f
	s.isStdio = stdio
	return s.fail(s.setupDescriptor())
}

// OpenFile binds the stream directly to an already-open descriptor,
// taking the path from the file's name.  The stream does not close
// descriptors it did not open: Close flushes but leaves f open.
func (s *Stream) OpenFile(f *os.File) error {
	if s.state == stateClosed {
		return s.fail(ErrClosed)
	}
	if s.state != stateUnbound {
		return s.fail(ErrAlreadyBound)
	}
	s.path = f.Name()
	s.state = stateBound
	s.file = f
	s.isStdio = true // borrowed descriptor: never closed by us
	return s.fail(s.setupDescriptor())
}

func (s *Stream) openFile() (*os.File, bool, error) {
	switch s.path {
	case PathStdin:
		return os.Stdin, true, nil
	case PathStdout:
		return os.Stdout, true, nil
	case PathStderr:
		return os.Stderr, true, nil
	case PathHyphen:
		if s.mode == ModeRead {
			return os.Stdin, true, nil
		}
		return os.Stdout, true, nil
	}

	switch s.mode {
	case ModeRead:
		f, err := os.Open(s.path)
		return f, false, err

	case ModeAppend:
		f, err := os.OpenFile(s.path, os.O_RDWR, 0)
		return f, false, err

	default: // ModeWrite
		flags := os.O_WRONLY | os.O_CREATE | os.O_EXCL
		f, err := os.OpenFile(s.path, flags, 0644)
		if err == nil {
			return f, false, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, false, err
		}
		// The path exists.  Writing over it is allowed only for a
		// FIFO, a device, or under an explicit clobber override.
		fi, serr := os.Stat(s.path)
		special := serr == nil &&
			fi.Mode()&(os.ModeNamedPipe|os.ModeDevice|os.ModeSocket) != 0
		if !special && !s.opts.clobber {
			return nil, false, fmt.Errorf("%w: %s", ErrFileExists, s.path)
		}
		flags = os.O_WRONLY | os.O_CREATE
		if !special {
			flags |= os.O_TRUNC
		}
		f, err = os.OpenFile(s.path, flags, 0644)
		return f, false, err
	}
}

// setupDescriptor classifies the open descriptor, layers gzip when the
// naming convention or the magic number calls for it, and builds the
// transport for content kinds that do not wait for a header.
func (s *Stream) setupDescriptor() error {
	s.classify()

	if s.content != ContentText && s.terminal {
		return fmt.Errorf("%w: %s", ErrIsTerminal, s.path)
	}

	switch s.mode {
	case ModeRead, ModeAppend:
		s.src = s.file
		gz, err := s.detectGzip()
		if err != nil {
			return err
		}
		if gz {
			if s.mode == ModeAppend {
				return fmt.Errorf(
					"%w: cannot append to gzip file %s", ErrInvalidPath, s.path)
			}
			zr, err := gzip.NewReader(s.file)
			if err != nil {
				return fmt.Errorf("flowfile: opening gzip stream: %w", err)
			}
			s.gzR = zr
			s.src = zr
		}
	case ModeWrite:
		s.dst = s.file
		if gzipNamed(s.path, s.mode) {
			s.gzW = gzip.NewWriter(s.file)
			s.dst = s.gzW
		} else if s.content == ContentText && s.terminal && s.opts.pager != "" {
			if err := s.startPager(); err != nil {
				return err
			}
		}
	}

	// Text and opaque content need no header; bind the transport now.
	if s.content == ContentText || s.content == ContentOpaque {
		var err error
		if s.mode == ModeRead {
			s.rd, err = iobuf.NewReader(s.src, nil, s.opts.blockSize, 1)
		} else {
			s.wr, err = iobuf.NewWriter(s.dst, nil, s.opts.blockSize, 1)
		}
		if err != nil {
			return err
		}
		s.state = stateDirty
	} else {
		s.state = stateOpen
	}

	s.stats.IncCounter(stats.MetricOpenStreams, 1)
	s.logger.Debug("stream open",
		zap.String("path", s.path),
		zap.Stringer("mode", s.mode),
		zap.Stringer("content", s.content),
		zap.Bool("seekable", s.seekable),
	)
	return nil
}

func (s *Stream) classify() {
	fd := int(s.file.Fd())
	if _, err := unix.IoctlGetTermios(fd, unix.TCGETS); err == nil {
		s.terminal = true
		return
	}
	if _, err := s.file.Seek(0, io.SeekCurrent); err == nil {
		s.seekable = true
	}
}

// detectGzip decides whether the read stream is gzip-wrapped.  A
// seekable stream is sniffed for the two magic bytes regardless of its
// name, with the read position restored; a pipe is trusted to match
// its name.
func (s *Stream) detectGzip() (bool, error) {
	if s.seekable {
		var magic [2]byte
		n, err := io.ReadFull(s.file, magic[:])
		if err != nil && n == 0 {
			// Empty file: not gzip.
			if err == io.EOF {
				return false, nil
			}
			return false, err
		}
		if _, err := s.file.Seek(int64(-n), io.SeekCurrent); err != nil {
			return false, err
		}
		return n == 2 && magic[0] == 0x1f && magic[1] == 0x8b, nil
	}
	return gzipNamed(s.path, s.mode), nil
}

func (s *Stream) startPager() error {
	cmd := exec.Command("/bin/sh", "-c", s.opts.pager)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	pipe, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNoPager, err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: %v", ErrNoPager, err)
	}
	s.pagerCmd = cmd
	s.pagerPipe = pipe
	s.dst = pipe
	return nil
}

// ReadHeader parses and validates the file header, resolves the codec,
// and binds the record transport.  In append mode the header of the
// existing file is read, then the stream seeks to the end so written
// records follow the existing ones.
func (s *Stream) ReadHeader() error {
	if err := s.wantState(stateOpen); err != nil {
		return s.fail(err)
	}
	if s.content != ContentRecords && s.content != ContentFlow {
		return s.fail(ErrBadContent)
	}
	if s.mode == ModeWrite {
		return s.fail(ErrBadIOMode)
	}

	n, err := s.hdr.readFrom(s.src)
	s.hdrBytes = n
	if err != nil {
		return s.fail(err)
	}

	if !s.hdr.format.Known() {
		return s.fail(fmt.Errorf("%w: %s", ErrUnsupportedFormat, s.hdr.format.Name()))
	}
	method := compress.Method(s.hdr.compMethod)
	if !method.Known() {
		return s.fail(fmt.Errorf("%w: %d", ErrCompressionInvalid, uint8(method)))
	}
	if !method.Available() {
		return s.fail(fmt.Errorf("%w: %s", ErrCompressionUnavailable, method.Name()))
	}

	codec, err := prepareCodec(s.hdr, false)
	if err != nil {
		return s.fail(err)
	}
	if hl := s.hdr.recordLen; hl != 0 && hl != codec.recLen {
		return s.fail(fmt.Errorf("%w: %s v%d stores %d-byte records, file says %d",
			ErrUnsupportedVersion, s.hdr.format.Name(), s.hdr.recordVersion,
			codec.recLen, hl))
	}
	s.codec = codec
	s.cctx = codecContextFor(s.hdr)
	s.hdr.locked = true
	s.recBuf = make([]byte, codec.recLen)

	blockCodec, err := method.NewCodec()
	if err != nil {
		return s.fail(err)
	}

	if s.mode == ModeAppend {
		if _, err := s.file.Seek(0, io.SeekEnd); err != nil {
			return s.fail(err)
		}
		s.wr, err = iobuf.NewWriter(s.file, blockCodec,
			s.opts.blockSize, int(codec.recLen))
	} else {
		s.rd, err = iobuf.NewReader(s.src, blockCodec,
			s.opts.blockSize, int(codec.recLen))
	}
	if err != nil {
		return s.fail(err)
	}

	s.state = stateDirty
	s.logger.Debug("header read",
		zap.String("path", s.path),
		zap.String("format", s.hdr.format.Name()),
		zap.Uint16("version", s.hdr.recordVersion),
		zap.String("compression", s.hdr.compMethod.Name()),
		zap.Bool("swap", s.cctx.swap),
	)
	return nil
}

// WriteHeader resolves the header's open choices — VersionAny to the
// format's default, CompBest and CompDefault to a concrete method, or
// to none when the destination cannot be rewound — then writes the
// header, locks it, and binds the record transport.
func (s *Stream) WriteHeader() error {
	if err := s.wantState(stateOpen); err != nil {
		return s.fail(err)
	}
	if s.content != ContentRecords && s.content != ContentFlow {
		return s.fail(ErrBadContent)
	}
	if s.mode != ModeWrite {
		return s.fail(ErrBadIOMode)
	}
	if !s.hdr.format.Known() {
		return s.fail(fmt.Errorf("%w: header has no format set", ErrUnsupportedFormat))
	}

	method := compress.Method(s.hdr.compMethod)
	switch method {
	case compress.Best:
		method = compress.ResolveBest()
	case compress.Default:
		method = compress.ResolveDefault()
	}
	if method != compress.None && !s.IsSeekable() {
		// A pipe cannot be rewound to fix up a half-written block
		// structure, so resolved methods fall back to none; an
		// explicit method choice is honored.
		if s.hdr.compMethod == CompBest || s.hdr.compMethod == CompDefault {
			method = compress.None
		}
	}
	if !method.Available() {
		return s.fail(fmt.Errorf("%w: %s", ErrCompressionUnavailable, method.Name()))
	}
	s.hdr.compMethod = CompressionMethod(method)

	codec, err := prepareCodec(s.hdr, true)
	if err != nil {
		return s.fail(err)
	}
	s.hdr.libVersion = libraryVersion
	s.hdr.bigEndian = nativeIsBigEndian

	n, err := s.hdr.writeTo(s.dst)
	s.hdrBytes = n
	if err != nil {
		return s.fail(err)
	}
	s.hdr.locked = true
	s.codec = codec
	s.cctx = codecContextFor(s.hdr)
	s.recBuf = make([]byte, codec.recLen)

	blockCodec, err := method.NewCodec()
	if err != nil {
		return s.fail(err)
	}
	s.wr, err = iobuf.NewWriter(s.dst, blockCodec,
		s.opts.blockSize, int(codec.recLen))
	if err != nil {
		return s.fail(err)
	}

	s.state = stateDirty
	s.logger.Debug("header written",
		zap.String("path", s.path),
		zap.String("format", s.hdr.format.Name()),
		zap.Uint16("version", s.hdr.recordVersion),
		zap.String("compression", s.hdr.compMethod.Name()),
	)
	return nil
}

func (s *Stream) wantState(want streamState) error {
	switch {
	case s.state == want:
		return nil
	case s.state == stateClosed:
		return ErrClosed
	case s.state < stateOpen:
		return ErrNotOpen
	case want == stateOpen && s.state == stateDirty:
		return ErrHeaderDone
	case want == stateDirty && s.state == stateOpen:
		return ErrNotOpen
	}
	return ErrNotOpen
}

// ReadRecord decodes the next record into rec.  It returns io.EOF at a
// clean end of file and a *ShortReadError when the file ends inside a
// record; after either, subsequent calls return io.EOF.  Records
// rejected by the address-family policy are skipped, not returned.
func (s *Stream) ReadRecord(rec *Record) error {
	if err := s.wantState(stateDirty); err != nil {
		return s.fail(err)
	}
	if s.content != ContentFlow || s.mode != ModeRead {
		return s.fail(ErrBadIOMode)
	}

	for {
		if s.atEOF {
			return io.EOF
		}
		n, err := s.rd.Read(s.recBuf)
		if err != nil {
			if err == io.EOF {
				s.atEOF = true
				return io.EOF
			}
			return s.fail(err)
		}
		if n < len(s.recBuf) {
			s.atEOF = true
			return s.fail(&ShortReadError{Partial: n})
		}

		*rec = NewRecord()
		s.codec.unpack(&s.cctx, rec, s.recBuf)

		if s.opts.icmpFixup {
			s.fixLegacyICMP(rec)
		}

		// The mirror sees every decoded record, including the ones the
		// address-family policy drops below.
		if s.mirror != nil {
			if err := s.mirror.WriteRecord(rec); err != nil {
				return s.fail(fmt.Errorf("flowfile: mirror write: %w", err))
			}
		}

		if !s.applyReadPolicy(rec) {
			s.stats.IncCounter(stats.MetricRecordsDropped, 1)
			continue
		}

		s.count++
		s.stats.IncCounter(stats.MetricRecordsRead, 1)
		return nil
	}
}

// applyReadPolicy filters or converts a decoded record per the stream's
// address-family policy.  It reports false when the record must be
// skipped.
func (s *Stream) applyReadPolicy(rec *Record) bool {
	v6 := rec.IsIPv6()
	switch s.opts.v6Policy {
	case PolicyIgnore:
		return !v6
	case PolicyOnly:
		if !v6 {
			return false
		}
	case PolicyAsV4:
		if v6 {
			return rec.ToIPv4()
		}
	case PolicyForce:
		rec.ToIPv6()
	}
	return true
}

// fixLegacyICMP undoes the historical encoding that stored an ICMP
// record's type and code in the source port.  Files written by header
// versions at or above headerVersionMixedICMP stored the pair in the
// source port directly; older files of this family stored it
// byte-swapped.
func (s *Stream) fixLegacyICMP(rec *Record) {
	if !rec.IsICMP() || rec.SPort == 0 || rec.DPort != 0 {
		return
	}
	if s.hdr.version >= headerVersionMixedICMP {
		rec.DPort = rec.SPort
	} else {
		rec.DPort = rec.SPort>>8 | rec.SPort<<8
	}
	rec.SPort = 0
}

// WriteRecord encodes rec and appends it to the stream.  An IPv6
// record fails with ErrUnsupportedIPv6 when the format cannot hold it
// and the policy retains IPv6; PolicyIgnore and PolicyOnly drop
// excluded records silently, and PolicyAsV4 drops IPv6 records with
// no IPv4 form.
func (s *Stream) WriteRecord(rec *Record) error {
	if err := s.wantState(stateDirty); err != nil {
		return s.fail(err)
	}
	if s.content != ContentFlow || s.mode == ModeRead {
		return s.fail(ErrBadIOMode)
	}

	r := *rec // transforms must not touch the caller's record
	if r.IsIPv6() {
		switch s.opts.v6Policy {
		case PolicyMix, PolicyForce, PolicyOnly:
			if !s.hdr.format.SupportsIPv6() {
				return s.fail(fmt.Errorf("%w: %s",
					ErrUnsupportedIPv6, s.hdr.format.Name()))
			}
		case PolicyIgnore:
			s.stats.IncCounter(stats.MetricRecordsDropped, 1)
			return nil
		case PolicyAsV4:
			if !r.ToIPv4() {
				s.stats.IncCounter(stats.MetricRecordsDropped, 1)
				return nil
			}
		}
	} else {
		switch s.opts.v6Policy {
		case PolicyOnly:
			s.stats.IncCounter(stats.MetricRecordsDropped, 1)
			return nil
		case PolicyForce:
			if !s.hdr.format.SupportsIPv6() {
				return s.fail(fmt.Errorf("%w: %s",
					ErrUnsupportedIPv6, s.hdr.format.Name()))
			}
			r.ToIPv6()
		}
	}

	if err := s.codec.pack(&s.cctx, &r, s.recBuf); err != nil {
		return s.fail(err)
	}
	if _, err := s.wr.Write(s.recBuf); err != nil {
		return s.fail(err)
	}

	s.count++
	s.stats.IncCounter(stats.MetricRecordsWritten, 1)
	return nil
}

// SkipRecords advances past n records without decoding them, returning
// how many were skipped; fewer than n means end of file.  When a
// mirror is attached every record must be materialized for it, so the
// skip decodes one record at a time.
func (s *Stream) SkipRecords(n uint64) (uint64, error) {
	if err := s.wantState(stateDirty); err != nil {
		return 0, s.fail(err)
	}
	if s.content != ContentFlow || s.mode != ModeRead {
		return 0, s.fail(ErrBadIOMode)
	}

	if s.mirror != nil || s.opts.v6Policy != PolicyMix {
		var rec Record
		for i := uint64(0); i < n; i++ {
			if err := s.ReadRecord(&rec); err != nil {
				if err == io.EOF {
					return i, nil
				}
				return i, err
			}
		}
		return n, nil
	}

	recLen := int64(s.codec.recLen)
	moved, err := s.rd.Skip(int64(n) * recLen)
	skipped := uint64(moved / recLen)
	s.count += skipped
	if err != nil && err != io.EOF {
		return skipped, s.fail(err)
	}
	if rem := moved % recLen; rem != 0 {
		s.atEOF = true
		return skipped, s.fail(&ShortReadError{Partial: int(rem)})
	}
	if skipped < n {
		s.atEOF = true
	}
	return skipped, nil
}

// SetMirror attaches a pass-through stream that receives a copy of
// every record subsequently read.  It must be attached before the
// first record is read.  The mirror is borrowed: the caller keeps
// ownership and must close it after this stream.
func (s *Stream) SetMirror(m *Stream) error {
	if s.state == stateClosed {
		return s.fail(ErrClosed)
	}
	if s.mode != ModeRead || s.content != ContentFlow {
		return s.fail(ErrBadIOMode)
	}
	if s.count > 0 {
		return s.fail(ErrMirrorLate)
	}
	s.mirror = m
	return nil
}

// Read delivers raw bytes through the transport.  For record content
// it is only valid once the header has been read.  It returns fewer
// than len(p) bytes only at end of stream, then (0, io.EOF).
func (s *Stream) Read(p []byte) (int, error) {
	if err := s.wantState(stateDirty); err != nil {
		return 0, s.fail(err)
	}
	if s.mode != ModeRead || s.rd == nil {
		return 0, s.fail(ErrBadIOMode)
	}
	n, err := s.rd.Read(p)
	if err != nil && err != io.EOF {
		return n, s.fail(err)
	}
	return n, err
}

// Write accepts raw bytes through the transport, all or nothing.
func (s *Stream) Write(p []byte) (int, error) {
	if err := s.wantState(stateDirty); err != nil {
		return 0, s.fail(err)
	}
	if s.mode == ModeRead || s.wr == nil {
		return 0, s.fail(ErrBadIOMode)
	}
	n, err := s.wr.Write(p)
	if err != nil {
		return n, s.fail(err)
	}
	return n, nil
}

// ReadLine returns the next non-empty line of a text stream, without
// its trailing newline and with any comment stripped.  A line longer
// than the internal buffer is discarded and reported as ErrLongLine;
// the next call continues with the following line.
func (s *Stream) ReadLine() (string, error) {
	if err := s.wantState(stateDirty); err != nil {
		return "", s.fail(err)
	}
	if s.content != ContentText || s.mode != ModeRead {
		return "", s.fail(ErrBadContent)
	}
	if s.lineBuf == nil {
		s.lineBuf = make([]byte, 1<<16)
	}

	for {
		n, err := s.rd.ReadToDelim(s.lineBuf, '\n')
		if err == iobuf.ErrLineTooLong {
			// Drain the rest of the oversized line.
			for err == iobuf.ErrLineTooLong {
				_, err = s.rd.ReadToDelim(s.lineBuf, '\n')
			}
			if err != nil && err != io.EOF {
				return "", s.fail(err)
			}
			return "", s.fail(ErrLongLine)
		}
		if err != nil {
			if err == io.EOF {
				return "", io.EOF
			}
			return "", s.fail(err)
		}

		line := strings.TrimSuffix(string(s.lineBuf[:n]), "\n")
		line = strings.TrimSuffix(line, "\r")
		if s.commentStart != "" {
			if i := strings.Index(line, s.commentStart); i >= 0 {
				line = line[:i]
			}
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		return line, nil
	}
}

// Flush pushes buffered data through the transport and any gzip layer
// to the descriptor.
func (s *Stream) Flush() error {
	if s.state == stateClosed {
		return s.fail(ErrClosed)
	}
	if s.wr != nil {
		if _, err := s.wr.Flush(); err != nil {
			return s.fail(err)
		}
	}
	if s.gzW != nil {
		if err := s.gzW.Flush(); err != nil {
			return s.fail(err)
		}
	}
	return nil
}

// Tell reports the descriptor's current byte offset.  Call Flush first
// for the offset to account for buffered records.
func (s *Stream) Tell() (int64, error) {
	if s.state == stateClosed {
		return 0, s.fail(ErrClosed)
	}
	if !s.IsSeekable() || s.file == nil {
		return 0, s.fail(ErrBadIOMode)
	}
	off, err := s.file.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, s.fail(err)
	}
	return off, nil
}

// Truncate cuts the file at size bytes.  Flush first so the cut lands
// where the caller expects; the transport's block alignment guarantees
// a record-boundary cut is also a block-boundary cut.
func (s *Stream) Truncate(size int64) error {
	if s.state == stateClosed {
		return s.fail(ErrClosed)
	}
	if s.mode == ModeRead || !s.IsSeekable() || s.file == nil {
		return s.fail(ErrBadIOMode)
	}
	return s.fail(s.file.Truncate(size))
}

// UpperBound reports an upper bound on the physical file size if the
// stream were flushed now.  Exact only when nothing is buffered.
func (s *Stream) UpperBound() int64 {
	if s.wr == nil {
		return s.hdrBytes
	}
	return s.hdrBytes + s.wr.UpperBound()
}

// Lock takes a blocking whole-file advisory lock: shared for read
// streams, exclusive for write and append.  It is a no-op on
// non-seekable streams, which cannot be meaningfully locked.
func (s *Stream) Lock() error {
	if s.state == stateClosed {
		return s.fail(ErrClosed)
	}
	if s.state < stateOpen {
		return s.fail(ErrNotOpen)
	}
	if !s.seekable || s.file == nil {
		return nil
	}
	lk := unix.Flock_t{Whence: io.SeekStart}
	if s.mode == ModeRead {
		lk.Type = unix.F_RDLCK
	} else {
		lk.Type = unix.F_WRLCK
	}
	if err := unix.FcntlFlock(s.file.Fd(), unix.F_SETLKW, &lk); err != nil {
		return s.fail(fmt.Errorf("flowfile: locking %s: %w", s.path, err))
	}
	return nil
}

// Close flushes and releases the stream.  Standard and borrowed
// descriptors are flushed but not closed.  Close is idempotent; all
// record I/O after Close fails with ErrClosed.
func (s *Stream) Close() error {
	if s.state == stateClosed {
		return nil
	}
	wasOpen := s.state >= stateOpen
	s.state = stateClosed

	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if s.wr != nil {
		physical, err := s.wr.Flush()
		keep(err)
		s.stats.IncCounter(stats.MetricBytesWritten, physical)
		if logical := s.wr.TotalWritten(); logical > 0 && physical > 0 {
			s.stats.ObserveHistogram(stats.MetricCompressionRatio,
				float64(physical)/float64(logical))
		}
	}
	if s.rd != nil {
		s.stats.IncCounter(stats.MetricBytesRead, s.hdrBytes+s.rd.TotalRead())
	}
	if s.gzW != nil {
		keep(s.gzW.Close())
	}
	if s.gzR != nil {
		keep(s.gzR.Close())
	}
	if s.pagerPipe != nil {
		keep(s.pagerPipe.Close())
		keep(s.pagerCmd.Wait())
	}
	if s.file != nil && !s.isStdio {
		keep(s.file.Close())
	}

	if wasOpen {
		s.stats.IncCounter(stats.MetricOpenStreams, -1)
		s.logger.Debug("stream closed",
			zap.String("path", s.path),
			zap.Uint64("records", s.count),
			zap.Error(firstErr),
		)
	}
	return s.fail(firstErr)
}
