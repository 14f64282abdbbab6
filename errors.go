package flowfile

import (
	"errors"
	"fmt"
)

// Sentinel errors for well-defined error conditions.  I/O failures are
// returned wrapped (use errors.As to reach the *os.PathError and its
// errno); everything else is one of these or wraps one of these.
var (
	// Lifecycle misuse.
	ErrNotBound     = errors.New("flowfile: stream has no path bound")
	ErrAlreadyBound = errors.New("flowfile: stream already bound to a path")
	ErrNotOpen      = errors.New("flowfile: stream not open")
	ErrAlreadyOpen  = errors.New("flowfile: stream already open")
	ErrClosed       = errors.New("flowfile: stream closed")
	ErrHeaderDone   = errors.New("flowfile: header already read or written")
	ErrBadIOMode    = errors.New("flowfile: operation not supported in this I/O mode")
	ErrBadContent   = errors.New("flowfile: operation not supported for this content kind")

	// Bind/open failures.
	ErrInvalidPath = errors.New("flowfile: invalid path")
	ErrFileExists  = errors.New("flowfile: file exists")
	ErrIsTerminal  = errors.New("flowfile: refusing binary I/O on a terminal")
	ErrMirrorLate  = errors.New("flowfile: mirror must be attached before the first record is read")

	// Header validation.
	ErrBadMagic           = errors.New("flowfile: not a flow file (bad magic number)")
	ErrUnsupportedFormat  = errors.New("flowfile: unsupported file format")
	ErrUnsupportedVersion = errors.New("flowfile: unsupported record version")
	ErrHeaderLocked       = errors.New("flowfile: header is locked")
	ErrCompressionInvalid = errors.New("flowfile: unrecognized compression method")
	ErrCompressionUnavailable = errors.New(
		"flowfile: compression method not available in this build")

	// Record packing: each narrow field gets its own error so callers
	// can report exactly what did not fit.
	ErrPacketsZero      = errors.New("flowfile: packet count is zero")
	ErrPacketsGtBytes   = errors.New("flowfile: more packets than bytes")
	ErrPacketsOverflow  = errors.New("flowfile: packet count exceeds format capacity")
	ErrBppOverflow      = errors.New("flowfile: bytes-per-packet ratio exceeds format capacity")
	ErrElapsedOverflow  = errors.New("flowfile: elapsed time exceeds format capacity")
	ErrStartTimeOverflow = errors.New(
		"flowfile: start time too far past the file's start hour")
	ErrStartTimeUnderflow = errors.New(
		"flowfile: start time precedes the file's start hour")
	ErrSnmpOverflow = errors.New("flowfile: SNMP interface index exceeds format capacity")

	// Address-family policy.
	ErrUnsupportedIPv6 = errors.New("flowfile: file format cannot hold IPv6 addresses")

	// Text mode.
	ErrLongLine = errors.New("flowfile: line exceeds buffer length")
	ErrNoPager  = errors.New("flowfile: unable to invoke pager")
)

// ShortReadError reports a read that ended inside a record: Partial
// bytes of the record were present before end-of-file.  A clean
// end-of-file at a record boundary is io.EOF, never a ShortReadError.
type ShortReadError struct {
	Partial int
}

func (e *ShortReadError) Error() string {
	return fmt.Sprintf("flowfile: short read of %d bytes inside a record", e.Partial)
}
