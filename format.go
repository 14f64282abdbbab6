package flowfile

import (
	"encoding/binary"
	"fmt"
)

// FileFormat identifies a record family.  The numeric values are
// stored in file headers and must never be renumbered.
type FileFormat uint8

const (
	// FormatRouted holds flows that crossed a router, with next-hop
	// and SNMP interface data.
	FormatRouted FileFormat = 0x10

	// FormatNotRouted holds flows collected off-router.  It shares the
	// on-disk layouts of FormatRouted.
	FormatNotRouted FileFormat = 0x11
)

// VersionAny asks the codec to pick the format's default record
// version when the header is written.
const VersionAny uint16 = 0xFFFF

// formatInfo describes one record family: a stable name, the version
// chosen for VersionAny, and the per-version codec table.
type formatInfo struct {
	name           string
	defaultVersion uint16
	holdsIPv6      bool
	lookup         func(version uint16) (recCodec, bool)
}

var formats = map[FileFormat]formatInfo{
	FormatRouted:    {name: "ROUTED", defaultVersion: 5, lookup: routedCodec},
	FormatNotRouted: {name: "NOTROUTED", defaultVersion: 5, lookup: routedCodec},
}

// SupportsIPv6 reports whether the format's layouts can hold IPv6
// addresses.  PolicyForce requires a format for which this is true.
func (f FileFormat) SupportsIPv6() bool {
	return formats[f].holdsIPv6
}

func init() {
	// The format registry is consulted by name; names must be unique
	// and bounded, ids contiguous within the block they occupy.
	seen := make(map[string]bool, len(formats))
	low, high := FileFormat(0xFF), FileFormat(0)
	for id, info := range formats {
		if info.name == "" || len(info.name) > 32 {
			panic(fmt.Sprintf("flowfile: bad name for format %#02x", uint8(id)))
		}
		if seen[info.name] {
			panic(fmt.Sprintf("flowfile: duplicate format name %q", info.name))
		}
		seen[info.name] = true
		if id < low {
			low = id
		}
		if id > high {
			high = id
		}
	}
	if int(high-low)+1 != len(formats) {
		panic("flowfile: format ids not contiguous")
	}
}

// Known reports whether f is a registered file format.
func (f FileFormat) Known() bool {
	_, ok := formats[f]
	return ok
}

// Name returns the registered name of f, or a numeric placeholder for
// unregistered values.
func (f FileFormat) Name() string {
	if info, ok := formats[f]; ok {
		return info.name
	}
	return fmt.Sprintf("unknown-%#02x", uint8(f))
}

// FormatFromName returns the format registered under name.
func FormatFromName(name string) (FileFormat, error) {
	for id, info := range formats {
		if info.name == name {
			return id, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedFormat, name)
}

// nativeIsBigEndian reports the byte order of the running machine.
// Records are written in native order with a header flag saying which
// order that was; the reader swaps when the orders differ.
var nativeIsBigEndian = binary.NativeEndian.Uint16([]byte{0x01, 0x02}) == 0x0102
