package flowfile

import (
	"errors"
	"fmt"
	"io"
	"net/netip"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func makeRecord(i int) Record {
	r := NewRecord()
	r.StartTime = testHour.Add(time.Duration(i) * time.Second)
	r.Elapsed = time.Duration(i%30) * time.Second
	r.SIP = netip.AddrFrom4([4]byte{10, 0, byte(i >> 8), byte(i)})
	r.DIP = netip.AddrFrom4([4]byte{192, 168, 1, byte(i)})
	r.NhIP = netip.AddrFrom4([4]byte{172, 16, 0, 1})
	r.SPort = uint16(1024 + i)
	r.DPort = 443
	r.Proto = 17
	r.Input = uint16(i % 5)
	r.Output = uint16(i%5 + 1)
	r.Packets = uint32(i + 1)
	r.Bytes = uint32((i + 1) * 100)
	return r
}

// writeFlowFile writes recs to path as a ROUTED file and returns the
// header that was written.
func writeFlowFile(t *testing.T, path string, method CompressionMethod,
	version uint16, recs []Record, opts ...Option) *Header {
	t.Helper()

	s, err := New(ModeWrite, ContentFlow, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	if err := s.Bind(path); err != nil {
		t.Fatalf("Bind(%s): %v", path, err)
	}
	if err := s.Open(); err != nil {
		t.Fatalf("Open(%s): %v", path, err)
	}

	h := s.Header()
	if err := h.SetFormat(FormatRouted); err != nil {
		t.Fatalf("SetFormat: %v", err)
	}
	if err := h.SetRecordVersion(version); err != nil {
		t.Fatalf("SetRecordVersion: %v", err)
	}
	if err := h.SetCompressionMethod(method); err != nil {
		t.Fatalf("SetCompressionMethod: %v", err)
	}
	if err := h.SetPackedFile(testHour, 9, 4); err != nil {
		t.Fatalf("SetPackedFile: %v", err)
	}
	if err := s.WriteHeader(); err != nil {
		t.Fatalf("WriteHeader: %v", err)
	}
	for i := range recs {
		if err := s.WriteRecord(&recs[i]); err != nil {
			t.Fatalf("WriteRecord[%d]: %v", i, err)
		}
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	return h
}

// readFlowFile reads every record of path.
func readFlowFile(t *testing.T, path string, opts ...Option) (*Stream, []Record) {
	t.Helper()

	s, err := New(ModeRead, ContentFlow, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Bind(path); err != nil {
		t.Fatalf("Bind(%s): %v", path, err)
	}
	if err := s.Open(); err != nil {
		t.Fatalf("Open(%s): %v", path, err)
	}
	if err := s.ReadHeader(); err != nil {
		t.Fatalf("ReadHeader(%s): %v", path, err)
	}

	var recs []Record
	for {
		var rec Record
		err := s.ReadRecord(&rec)
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("ReadRecord[%d]: %v", len(recs), err)
		}
		recs = append(recs, rec)
	}
	return s, recs
}

func TestStreamRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		method  CompressionMethod
		version uint16
	}{
		{"none-v5", CompNone, 5},
		{"zlib-v5", CompZlib, 5},
		{"snappy-v5", CompSnappy, 5},
		{"zstd-v5", CompZstd, 5},
		{"none-v3", CompNone, 3},
		{"zlib-v1", CompZlib, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "flows.rw")
			want := make([]Record, 25)
			for i := range want {
				want[i] = makeRecord(i)
			}
			writeFlowFile(t, path, tt.method, tt.version, want)

			s, got := readFlowFile(t, path)
			defer s.Close()

			if s.Header().RecordVersion() != tt.version {
				t.Errorf("version = %d, want %d", s.Header().RecordVersion(), tt.version)
			}
			if s.Header().CompressionMethod() != tt.method {
				t.Errorf("compression = %s, want %s",
					s.Header().CompressionMethod().Name(), tt.method.Name())
			}
			if len(got) != len(want) {
				t.Fatalf("read %d records, want %d", len(got), len(want))
			}
			for i := range want {
				w := want[i]
				w.Sensor, w.FlowType = 4, 9
				if !recordsEqual(got[i], w) {
					t.Errorf("record %d:\n got %+v\nwant %+v", i, got[i], w)
				}
			}
		})
	}
}

func TestStreamDefaultVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flows.rw")
	rec := makeRecord(0)
	rec.Packets = 500000
	rec.Bytes = 500000 * 40
	writeFlowFile(t, path, CompNone, VersionAny, []Record{rec})

	s, got := readFlowFile(t, path)
	defer s.Close()

	if v := s.Header().RecordVersion(); v != 5 {
		t.Errorf("version = %d, want the format default 5", v)
	}
	if len(got) != 1 {
		t.Fatalf("read %d records, want 1", len(got))
	}
	if got[0].Packets != 500000 {
		t.Errorf("packets = %d, want 500000", got[0].Packets)
	}
	if got[0].Bytes != 500000*40 {
		t.Errorf("bytes = %d, want %d", got[0].Bytes, 500000*40)
	}
}

func TestStreamShortRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flows.rw")
	recs := []Record{makeRecord(0), makeRecord(1), makeRecord(2)}
	writeFlowFile(t, path, CompNone, 5, recs)

	// Damage the file: 10 stray bytes after the last whole record.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.Write(make([]byte, 10)); err != nil {
		t.Fatal(err)
	}
	f.Close()

	s, err := New(ModeRead, ContentFlow)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if err := s.Bind(path); err != nil {
		t.Fatal(err)
	}
	if err := s.Open(); err != nil {
		t.Fatal(err)
	}
	if err := s.ReadHeader(); err != nil {
		t.Fatal(err)
	}

	var rec Record
	for i := 0; i < 3; i++ {
		if err := s.ReadRecord(&rec); err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}

	err = s.ReadRecord(&rec)
	var short *ShortReadError
	if !errors.As(err, &short) {
		t.Fatalf("4th read = %v, want *ShortReadError", err)
	}
	if short.Partial != 10 {
		t.Errorf("partial = %d, want 10", short.Partial)
	}
	if err := s.ReadRecord(&rec); err != io.EOF {
		t.Errorf("read after short read = %v, want io.EOF", err)
	}
}

func TestStreamAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flows.rw")
	first := []Record{makeRecord(0), makeRecord(1), makeRecord(2)}
	writeFlowFile(t, path, CompZlib, 5, first)

	s, err := New(ModeAppend, ContentFlow)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Bind(path); err != nil {
		t.Fatal(err)
	}
	if err := s.Open(); err != nil {
		t.Fatal(err)
	}
	if err := s.ReadHeader(); err != nil {
		t.Fatal(err)
	}
	more := []Record{makeRecord(3), makeRecord(4)}
	for i := range more {
		if err := s.WriteRecord(&more[i]); err != nil {
			t.Fatalf("append record %d: %v", i, err)
		}
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	rs, got := readFlowFile(t, path)
	defer rs.Close()
	if len(got) != 5 {
		t.Fatalf("read %d records after append, want 5", len(got))
	}
	for i := range got {
		if got[i].SPort != uint16(1024+i) {
			t.Errorf("record %d out of order: sPort = %d", i, got[i].SPort)
		}
	}
}

func TestStreamAppendGzipRejected(t *testing.T) {
	s, err := New(ModeAppend, ContentFlow)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if err := s.Bind(filepath.Join(t.TempDir(), "flows.rw.gz")); !errors.Is(err, ErrInvalidPath) {
		t.Errorf("Bind(.gz, append) = %v, want ErrInvalidPath", err)
	}
}

func TestStreamClobber(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flows.rw")
	writeFlowFile(t, path, CompNone, 5, []Record{makeRecord(0)})

	s, err := New(ModeWrite, ContentFlow)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if err := s.Bind(path); err != nil {
		t.Fatal(err)
	}
	if err := s.Open(); !errors.Is(err, ErrFileExists) {
		t.Fatalf("Open over existing file = %v, want ErrFileExists", err)
	}

	// With the override the file is replaced.
	writeFlowFile(t, path, CompNone, 5,
		[]Record{makeRecord(5), makeRecord(6)}, WithClobber(true))
	rs, got := readFlowFile(t, path)
	defer rs.Close()
	if len(got) != 2 {
		t.Errorf("read %d records after clobber, want 2", len(got))
	}
}

func TestStreamGzipFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flows.rw.gz")
	want := []Record{makeRecord(0), makeRecord(1)}
	writeFlowFile(t, path, CompNone, 5, want)

	// The gzip layer is detected by magic number, not just the name.
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	var magic [2]byte
	if _, err := io.ReadFull(f, magic[:]); err != nil {
		t.Fatal(err)
	}
	f.Close()
	if magic != [2]byte{0x1f, 0x8b} {
		t.Fatalf("file does not start with gzip magic: %x", magic)
	}

	s, got := readFlowFile(t, path)
	defer s.Close()
	if len(got) != 2 {
		t.Fatalf("read %d records from gzip file, want 2", len(got))
	}
	if s.IsSeekable() {
		t.Error("gzip stream must not report itself seekable")
	}
}

func TestStreamICMPFixup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flows.rw")
	rec := makeRecord(0)
	rec.Proto = 1 // ICMP: type 3, code 1 wrongly stored in the source port
	rec.SPort = 0x0301
	rec.DPort = 0
	writeFlowFile(t, path, CompNone, 5, []Record{rec})

	// The fixup runs by default.
	s, got := readFlowFile(t, path)
	s.Close()
	if len(got) != 1 {
		t.Fatal("record lost")
	}
	if got[0].DPort != 0x0301 || got[0].SPort != 0 {
		t.Errorf("default read: sPort=%#x dPort=%#x, want 0 and 0x0301",
			got[0].SPort, got[0].DPort)
	}

	s, got = readFlowFile(t, path, WithLegacyICMPFixup(false))
	s.Close()
	if got[0].DPort != 0 || got[0].SPort != 0x0301 {
		t.Errorf("fixup disabled: sPort=%#x dPort=%#x, want 0x0301 and 0",
			got[0].SPort, got[0].DPort)
	}
}

func TestStreamSkipRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flows.rw")
	recs := make([]Record, 10)
	for i := range recs {
		recs[i] = makeRecord(i)
	}
	writeFlowFile(t, path, CompNone, 5, recs)

	s, err := New(ModeRead, ContentFlow)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if err := s.Bind(path); err != nil {
		t.Fatal(err)
	}
	if err := s.Open(); err != nil {
		t.Fatal(err)
	}
	if err := s.ReadHeader(); err != nil {
		t.Fatal(err)
	}

	n, err := s.SkipRecords(4)
	if err != nil || n != 4 {
		t.Fatalf("SkipRecords(4) = %d, %v", n, err)
	}
	var rec Record
	if err := s.ReadRecord(&rec); err != nil {
		t.Fatal(err)
	}
	if rec.SPort != 1024+4 {
		t.Errorf("record after skip has sPort %d, want %d", rec.SPort, 1024+4)
	}

	n, err = s.SkipRecords(100)
	if err != nil || n != 5 {
		t.Fatalf("SkipRecords(100) = %d, %v; want 5, nil", n, err)
	}
	if err := s.ReadRecord(&rec); err != io.EOF {
		t.Errorf("read past skip = %v, want io.EOF", err)
	}
}

func TestStreamMirror(t *testing.T) {
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "src.rw")
	mirPath := filepath.Join(dir, "mirror.rw")
	recs := []Record{makeRecord(0), makeRecord(1), makeRecord(2)}
	writeFlowFile(t, srcPath, CompNone, 5, recs)

	mir, err := New(ModeWrite, ContentFlow)
	if err != nil {
		t.Fatal(err)
	}
	if err := mir.Bind(mirPath); err != nil {
		t.Fatal(err)
	}
	if err := mir.Open(); err != nil {
		t.Fatal(err)
	}
	if err := mir.Header().SetFormat(FormatRouted); err != nil {
		t.Fatal(err)
	}
	if err := mir.Header().SetPackedFile(testHour, 9, 4); err != nil {
		t.Fatal(err)
	}
	if err := mir.WriteHeader(); err != nil {
		t.Fatal(err)
	}

	src, err := New(ModeRead, ContentFlow)
	if err != nil {
		t.Fatal(err)
	}
	if err := src.Bind(srcPath); err != nil {
		t.Fatal(err)
	}
	if err := src.Open(); err != nil {
		t.Fatal(err)
	}
	if err := src.ReadHeader(); err != nil {
		t.Fatal(err)
	}
	if err := src.SetMirror(mir); err != nil {
		t.Fatal(err)
	}

	var rec Record
	var n int
	for {
		err := src.ReadRecord(&rec)
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		n++
		// Attaching a mirror mid-stream is disallowed.
		if err := src.SetMirror(mir); !errors.Is(err, ErrMirrorLate) {
			t.Fatalf("late SetMirror = %v, want ErrMirrorLate", err)
		}
	}
	src.Close()
	if err := mir.Close(); err != nil {
		t.Fatal(err)
	}

	rs, got := readFlowFile(t, mirPath)
	defer rs.Close()
	if len(got) != n {
		t.Errorf("mirror holds %d records, want %d", len(got), n)
	}
}

// The mirror receives every decoded record, including the ones the
// source stream's address-family policy then drops.
func TestStreamMirrorPolicyFiltered(t *testing.T) {
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "src.rw")
	mirPath := filepath.Join(dir, "mirror.rw")
	writeFlowFile(t, srcPath, CompNone, 5, []Record{makeRecord(0), makeRecord(1)})

	mir, err := New(ModeWrite, ContentFlow)
	if err != nil {
		t.Fatal(err)
	}
	if err := mir.Bind(mirPath); err != nil {
		t.Fatal(err)
	}
	if err := mir.Open(); err != nil {
		t.Fatal(err)
	}
	if err := mir.Header().SetFormat(FormatRouted); err != nil {
		t.Fatal(err)
	}
	if err := mir.Header().SetPackedFile(testHour, 9, 4); err != nil {
		t.Fatal(err)
	}
	if err := mir.WriteHeader(); err != nil {
		t.Fatal(err)
	}

	src, err := New(ModeRead, ContentFlow, WithIPv6Policy(PolicyOnly))
	if err != nil {
		t.Fatal(err)
	}
	if err := src.Bind(srcPath); err != nil {
		t.Fatal(err)
	}
	if err := src.Open(); err != nil {
		t.Fatal(err)
	}
	if err := src.ReadHeader(); err != nil {
		t.Fatal(err)
	}
	if err := src.SetMirror(mir); err != nil {
		t.Fatal(err)
	}

	var rec Record
	var n int
	for {
		err := src.ReadRecord(&rec)
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		n++
	}
	if n != 0 {
		t.Errorf("only policy yielded %d IPv4 records, want 0", n)
	}
	src.Close()
	if err := mir.Close(); err != nil {
		t.Fatal(err)
	}

	rs, got := readFlowFile(t, mirPath)
	rs.Close()
	if len(got) != 2 {
		t.Errorf("mirror holds %d records, want 2", len(got))
	}
}

func TestStreamNonSeekableCompression(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	defer w.Close()
	go io.Copy(io.Discard, r)

	s, err := New(ModeWrite, ContentFlow)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if err := s.OpenFile(w); err != nil {
		t.Fatal(err)
	}
	if err := s.Header().SetFormat(FormatRouted); err != nil {
		t.Fatal(err)
	}
	if err := s.Header().SetCompressionMethod(CompBest); err != nil {
		t.Fatal(err)
	}
	if err := s.Header().SetPackedFile(testHour, 9, 4); err != nil {
		t.Fatal(err)
	}
	if err := s.WriteHeader(); err != nil {
		t.Fatal(err)
	}
	if got := s.Header().CompressionMethod(); got != CompNone {
		t.Errorf("compression on a pipe resolved to %s, want none", got.Name())
	}
	rec := makeRecord(0)
	if err := s.WriteRecord(&rec); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestStreamTellTruncate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flows.rw")

	s, err := New(ModeWrite, ContentFlow)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if err := s.Bind(path); err != nil {
		t.Fatal(err)
	}
	if err := s.Open(); err != nil {
		t.Fatal(err)
	}
	if err := s.Header().SetFormat(FormatRouted); err != nil {
		t.Fatal(err)
	}
	if err := s.Header().SetPackedFile(testHour, 9, 4); err != nil {
		t.Fatal(err)
	}
	if err := s.WriteHeader(); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		rec := makeRecord(i)
		if err := s.WriteRecord(&rec); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Flush(); err != nil {
		t.Fatal(err)
	}
	off, err := s.Tell()
	if err != nil {
		t.Fatal(err)
	}
	if bound := s.UpperBound(); bound != off {
		t.Errorf("UpperBound after flush = %d, Tell = %d", bound, off)
	}

	// Cut the last record off; block alignment keeps the remaining
	// records readable.
	if err := s.Truncate(off - int64(s.Header().RecordLength())); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	rs, got := readFlowFile(t, path)
	defer rs.Close()
	if len(got) != 2 {
		t.Errorf("read %d records after truncate, want 2", len(got))
	}
}

func TestStreamIPv6Policy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flows.rw")

	write := func(policy IPv6Policy, recs []Record) (uint64, error) {
		s, err := New(ModeWrite, ContentFlow,
			WithIPv6Policy(policy), WithClobber(true))
		if err != nil {
			t.Fatal(err)
		}
		defer s.Close()
		if err := s.Bind(path); err != nil {
			t.Fatal(err)
		}
		if err := s.Open(); err != nil {
			t.Fatal(err)
		}
		if err := s.Header().SetFormat(FormatRouted); err != nil {
			t.Fatal(err)
		}
		if err := s.Header().SetPackedFile(testHour, 9, 4); err != nil {
			t.Fatal(err)
		}
		if err := s.WriteHeader(); err != nil {
			t.Fatal(err)
		}
		for i := range recs {
			if err := s.WriteRecord(&recs[i]); err != nil {
				return s.RecordCount(), err
			}
		}
		return s.RecordCount(), s.Close()
	}

	v6 := makeRecord(0)
	v6.SIP = netip.MustParseAddr("2001:db8::1")
	v6.DIP = netip.MustParseAddr("2001:db8::2")
	v6.NhIP = netip.MustParseAddr("2001:db8::3")

	mapped := makeRecord(1)
	mapped.ToIPv6() // 4-in-6 addresses convert back losslessly

	// A 4-byte layout cannot hold an IPv6 record.  The policies that
	// keep IPv6 fail rather than quietly rewriting the record, even
	// when the addresses are 4-in-6 mapped.
	for _, p := range []IPv6Policy{PolicyMix, PolicyForce, PolicyOnly} {
		if _, err := write(p, []Record{v6}); !errors.Is(err, ErrUnsupportedIPv6) {
			t.Errorf("policy %d write of v6 = %v, want ErrUnsupportedIPv6", p, err)
		}
		if _, err := write(p, []Record{mapped}); !errors.Is(err, ErrUnsupportedIPv6) {
			t.Errorf("policy %d write of mapped = %v, want ErrUnsupportedIPv6", p, err)
		}
	}

	// Ignore drops IPv6 and keeps IPv4; as-v4 converts what it can and
	// drops the rest.
	n, err := write(PolicyIgnore, []Record{v6, makeRecord(2)})
	if err != nil || n != 1 {
		t.Errorf("ignore write = %d, %v; want 1, nil", n, err)
	}
	n, err = write(PolicyAsV4, []Record{v6, mapped})
	if err != nil || n != 1 {
		t.Errorf("as-v4 write = %d, %v; want 1, nil", n, err)
	}

	// An IPv4 record is dropped under only and an error under force,
	// which would coerce it into an IPv6 layout the format lacks.
	n, err = write(PolicyOnly, []Record{makeRecord(3)})
	if err != nil || n != 0 {
		t.Errorf("only write of v4 = %d, %v; want 0, nil", n, err)
	}
	if _, err := write(PolicyForce, []Record{makeRecord(4)}); !errors.Is(err, ErrUnsupportedIPv6) {
		t.Errorf("force write of v4 = %v, want ErrUnsupportedIPv6", err)
	}

	// Reading with PolicyForce maps the stored addresses into v6 form.
	if _, err := write(PolicyMix, []Record{makeRecord(5)}); err != nil {
		t.Fatal(err)
	}
	s, got := readFlowFile(t, path, WithIPv6Policy(PolicyForce))
	s.Close()
	if len(got) != 1 || !got[0].IsIPv6() {
		t.Errorf("force read: got %d records, IsIPv6=%v", len(got), len(got) == 1 && got[0].IsIPv6())
	}
}

func TestStreamLifecycleErrors(t *testing.T) {
	if _, err := New(IOMode(9), ContentFlow); !errors.Is(err, ErrBadIOMode) {
		t.Errorf("New(bad mode) = %v, want ErrBadIOMode", err)
	}
	if _, err := New(ModeRead, ContentKind(9)); !errors.Is(err, ErrBadContent) {
		t.Errorf("New(bad content) = %v, want ErrBadContent", err)
	}

	s, err := New(ModeRead, ContentFlow)
	if err != nil {
		t.Fatal(err)
	}
	var rec Record
	if err := s.ReadRecord(&rec); !errors.Is(err, ErrNotOpen) {
		t.Errorf("ReadRecord unopened = %v, want ErrNotOpen", err)
	}
	if err := s.Open(); !errors.Is(err, ErrNotBound) {
		t.Errorf("Open unbound = %v, want ErrNotBound", err)
	}

	path := filepath.Join(t.TempDir(), "flows.rw")
	writeFlowFile(t, path, CompNone, 5, []Record{makeRecord(0)})

	if err := s.Bind(path); err != nil {
		t.Fatal(err)
	}
	if err := s.Bind(path); !errors.Is(err, ErrAlreadyBound) {
		t.Errorf("second Bind = %v, want ErrAlreadyBound", err)
	}
	if err := s.Open(); err != nil {
		t.Fatal(err)
	}
	if err := s.ReadRecord(&rec); !errors.Is(err, ErrNotOpen) {
		t.Errorf("ReadRecord before header = %v, want ErrNotOpen", err)
	}
	if err := s.ReadHeader(); err != nil {
		t.Fatal(err)
	}
	if err := s.WriteRecord(&rec); !errors.Is(err, ErrBadIOMode) {
		t.Errorf("WriteRecord on read stream = %v, want ErrBadIOMode", err)
	}
	if s.LastError() == nil {
		t.Error("LastError should remember the failure")
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close = %v, want nil", err)
	}
	if err := s.ReadRecord(&rec); !errors.Is(err, ErrClosed) {
		t.Errorf("ReadRecord after close = %v, want ErrClosed", err)
	}
}

func TestStreamReadLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.txt")
	content := "# leading comment\n\nfirst line\nsecond # trailing comment\n   \nthird\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	s, err := New(ModeRead, ContentText)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	s.SetCommentStart("#")
	if err := s.Bind(path); err != nil {
		t.Fatal(err)
	}
	if err := s.Open(); err != nil {
		t.Fatal(err)
	}

	want := []string{"first line", "second ", "third"}
	for i, w := range want {
		got, err := s.ReadLine()
		if err != nil {
			t.Fatalf("ReadLine %d: %v", i, err)
		}
		if got != w {
			t.Errorf("line %d = %q, want %q", i, got, w)
		}
	}
	if _, err := s.ReadLine(); err != io.EOF {
		t.Errorf("ReadLine at end = %v, want io.EOF", err)
	}
}

func TestStreamLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flows.rw")
	writeFlowFile(t, path, CompNone, 5, []Record{makeRecord(0)})

	s, err := New(ModeRead, ContentFlow)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if err := s.Bind(path); err != nil {
		t.Fatal(err)
	}
	if err := s.Open(); err != nil {
		t.Fatal(err)
	}
	if err := s.Lock(); err != nil {
		t.Fatalf("Lock: %v", err)
	}
}

func ExampleStream() {
	dir, _ := os.MkdirTemp("", "flowfile")
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, "flows.rw")

	out, _ := New(ModeWrite, ContentFlow)
	out.Bind(path)
	out.Open()
	out.Header().SetFormat(FormatRouted)
	out.Header().SetPackedFile(testHour, 9, 4)
	out.WriteHeader()

	rec := NewRecord()
	rec.StartTime = testHour.Add(5 * time.Second)
	rec.SIP = netip.AddrFrom4([4]byte{10, 0, 0, 1})
	rec.DIP = netip.AddrFrom4([4]byte{10, 0, 0, 2})
	rec.Proto = 6
	rec.Packets = 3
	rec.Bytes = 180
	out.WriteRecord(&rec)
	out.Close()

	in, _ := New(ModeRead, ContentFlow)
	in.Bind(path)
	in.Open()
	in.ReadHeader()
	var got Record
	in.ReadRecord(&got)
	fmt.Printf("%s -> %s %d pkts\n", got.SIP, got.DIP, got.Packets)
	in.Close()
	// Output: 10.0.0.1 -> 10.0.0.2 3 pkts
}
