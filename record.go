package flowfile

import (
	"net/netip"
	"time"
)

// IPv6Policy governs how dual-stack records are filtered or converted
// as they pass through a stream.
type IPv6Policy int

const (
	// PolicyMix passes IPv4 and IPv6 records through unchanged.
	PolicyMix IPv6Policy = iota

	// PolicyIgnore silently drops IPv6 records.
	PolicyIgnore

	// PolicyAsV4 converts IPv6 records to IPv4 where the addresses
	// allow it and drops the rest.
	PolicyAsV4

	// PolicyForce converts IPv4 records to IPv6-mapped form.  Writing
	// under this policy requires a format that can hold IPv6.
	PolicyForce

	// PolicyOnly silently drops IPv4 records.
	PolicyOnly
)

// TCP state bits carried in a record's TCPState field.
const (
	// TCPStateExpanded marks a record whose initial-flags and
	// rest-flags fields are populated separately from the cumulative
	// flags.
	TCPStateExpanded uint8 = 0x01
)

const (
	protoICMP   = 1
	protoTCP    = 6
	protoICMPv6 = 58
)

// SensorInvalid and FlowTypeInvalid mark records whose provenance is
// unknown; file headers that carry a packed-file entry fill these in
// on read.
const (
	SensorInvalid   = ^uint32(0)
	FlowTypeInvalid = ^uint32(0)
)

// Record is one network flow in memory, independent of any on-disk
// layout.  The codec for a (format, version) pair maps between this
// and the fixed-size byte layout of that version.
type Record struct {
	StartTime time.Time
	Elapsed   time.Duration

	SIP  netip.Addr
	DIP  netip.Addr
	NhIP netip.Addr

	SPort uint16
	DPort uint16

	Proto uint8
	// Flags is the OR of the TCP flags seen on all packets.  When
	// TCPState has TCPStateExpanded set, InitFlags and RestFlags split
	// the same information between the first packet and the rest.
	Flags     uint8
	InitFlags uint8
	RestFlags uint8
	TCPState  uint8

	Application uint16

	Input  uint16
	Output uint16

	Packets uint32
	Bytes   uint32

	Sensor   uint32
	FlowType uint32
}

// NewRecord returns a record with provenance marked unknown.
func NewRecord() Record {
	return Record{Sensor: SensorInvalid, FlowType: FlowTypeInvalid}
}

// IsICMP reports whether the record's protocol is ICMP, including
// ICMPv6 for IPv6 records.
func (r *Record) IsICMP() bool {
	return r.Proto == protoICMP || (r.IsIPv6() && r.Proto == protoICMPv6)
}

// IsIPv6 reports whether the record carries IPv6 addresses, including
// IPv4-mapped ones produced by ToIPv6.
func (r *Record) IsIPv6() bool {
	return r.SIP.IsValid() && r.SIP.Is6()
}

// ToIPv6 rewrites the record's addresses as IPv6-mapped addresses.
func (r *Record) ToIPv6() {
	r.SIP = mapTo6(r.SIP)
	r.DIP = mapTo6(r.DIP)
	r.NhIP = mapTo6(r.NhIP)
}

// ToIPv4 rewrites the record's addresses as IPv4.  It reports false,
// leaving the record unchanged, when any address has no IPv4 form.
func (r *Record) ToIPv4() bool {
	s, ok1 := unmapTo4(r.SIP)
	d, ok2 := unmapTo4(r.DIP)
	n, ok3 := unmapTo4(r.NhIP)
	if !ok1 || !ok2 || !ok3 {
		return false
	}
	r.SIP, r.DIP, r.NhIP = s, d, n
	return true
}

func mapTo6(a netip.Addr) netip.Addr {
	if !a.IsValid() {
		a = netip.AddrFrom4([4]byte{})
	}
	return netip.AddrFrom16(a.As16())
}

func unmapTo4(a netip.Addr) (netip.Addr, bool) {
	if !a.IsValid() {
		return netip.AddrFrom4([4]byte{}), true
	}
	if a.Is4() {
		return a, true
	}
	if a.Is4In6() {
		return a.Unmap(), true
	}
	return a, false
}

// addr4 returns the four-byte form of a for packing, treating an unset
// address as 0.0.0.0.  Callers must have applied the address-family
// policy first; a bare IPv6 address here is a programming error.
func addr4(a netip.Addr) [4]byte {
	if !a.IsValid() {
		return [4]byte{}
	}
	return a.Unmap().As4()
}
