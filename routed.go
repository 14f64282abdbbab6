package flowfile

import (
	"encoding/binary"
	"net/netip"
	"time"
)

// On-disk layouts of the ROUTED family.  All versions store records in
// the byte order named by the header; pack writes native order and
// swaps in place when the file order differs, unpack swaps first.
//
// Version 5, 32 bytes:
//
//	word 0   stime:22      msec offset from the file start hour
//	         bPPkt1:10     whole bytes-per-packet, high 10 bits
//	word 1   bPPkt2:4      whole bytes-per-packet, low 4 bits
//	         bPPFrac:6     fractional bytes-per-packet
//	         elapsed:22    duration in msec
//	word 2   protFlags:8   protocol, or TCP flags when isTCP is set
//	         pflag:1  isTCP:1  pad:2  pkts:20
//	12-19    sPort, dPort, input, output (uint16 each)
//	20-31    sIP, dIP, nhIP (uint32 each)
//
// Versions 3 and 4 share a 32-byte layout with second-resolution time
// words and separate millisecond fields; version 4 differs only in
// which compression methods the surrounding file may use.  Versions 1
// and 2 are 28 bytes with second-resolution times and single-byte SNMP
// interfaces; they differ only in header padding.

func routedCodec(version uint16) (recCodec, bool) {
	switch version {
	case 1, 2:
		return recCodec{recLen: 28, unpack: routedUnpackV1, pack: routedPackV1}, true
	case 3, 4:
		return recCodec{recLen: 32, unpack: routedUnpackV3, pack: routedPackV3}, true
	case 5:
		return recCodec{recLen: 32, unpack: routedUnpackV5, pack: routedPackV5}, true
	}
	return recCodec{}, false
}

// ipWord returns an IPv4 address as its numeric value, for storage as
// a native-order word.
func ipWord(a netip.Addr) uint32 {
	b := addr4(a)
	return binary.BigEndian.Uint32(b[:])
}

func wordIP(v uint32) netip.Addr {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return netip.AddrFrom4(b)
}

func routedSwapV5(ar []byte) {
	swap32(ar[0:4])
	swap32(ar[4:8])
	swap32(ar[8:12])
	swap16(ar[12:14])
	swap16(ar[14:16])
	swap16(ar[16:18])
	swap16(ar[18:20])
	swap32(ar[20:24])
	swap32(ar[24:28])
	swap32(ar[28:32])
}

func routedUnpackV5(ctx *codecContext, rec *Record, ar []byte) {
	if ctx.swap {
		routedSwapV5(ar)
	}
	ne := binary.NativeEndian

	w0 := ne.Uint32(ar[0:4])
	w1 := ne.Uint32(ar[4:8])
	w2 := ne.Uint32(ar[8:12])

	rec.StartTime = time.UnixMilli(ctx.startMilli + int64(bits(w0, 10, 22))).UTC()
	rec.Elapsed = time.Duration(bits(w1, 0, 22)) * time.Millisecond

	if bits(w2, 22, 1) != 0 {
		rec.Proto = protoTCP
		rec.Flags = uint8(bits(w2, 24, 8))
	} else {
		rec.Proto = uint8(bits(w2, 24, 8))
		rec.Flags = 0
	}

	bpp := bits(w0, 0, 10)<<10 | bits(w1, 22, 10)
	unpackVolumes(rec, bpp, bits(w2, 0, 20), bits(w2, 23, 1))

	rec.SPort = ne.Uint16(ar[12:14])
	rec.DPort = ne.Uint16(ar[14:16])
	rec.Input = ne.Uint16(ar[16:18])
	rec.Output = ne.Uint16(ar[18:20])

	rec.SIP = wordIP(ne.Uint32(ar[20:24]))
	rec.DIP = wordIP(ne.Uint32(ar[24:28]))
	rec.NhIP = wordIP(ne.Uint32(ar[28:32]))

	rec.Sensor = ctx.sensor
	rec.FlowType = ctx.flowType
}

func routedPackV5(ctx *codecContext, rec *Record, ar []byte) error {
	elapsed := rec.Elapsed.Milliseconds()
	if elapsed >= 1000*maxElapsedSeconds {
		return ErrElapsedOverflow
	}
	off, err := startOffsetMilli(ctx, rec)
	if err != nil {
		return err
	}
	if off >= 1000*maxStartSeconds {
		return ErrStartTimeOverflow
	}
	bpp, pkts, pflag, err := packVolumes(rec)
	if err != nil {
		return err
	}

	ne := binary.NativeEndian
	ne.PutUint32(ar[0:4], uint32(off)<<10|bits(bpp, 10, 10))
	ne.PutUint32(ar[4:8], bits(bpp, 0, 10)<<22|uint32(elapsed))

	w2 := pflag<<23 | pkts
	if rec.Proto == protoTCP {
		w2 |= 1<<22 | uint32(rec.Flags)<<24
	} else {
		w2 |= uint32(rec.Proto) << 24
	}
	ne.PutUint32(ar[8:12], w2)

	ne.PutUint16(ar[12:14], rec.SPort)
	ne.PutUint16(ar[14:16], rec.DPort)
	ne.PutUint16(ar[16:18], rec.Input)
	ne.PutUint16(ar[18:20], rec.Output)

	ne.PutUint32(ar[20:24], ipWord(rec.SIP))
	ne.PutUint32(ar[24:28], ipWord(rec.DIP))
	ne.PutUint32(ar[28:32], ipWord(rec.NhIP))

	if ctx.swap {
		routedSwapV5(ar)
	}
	return nil
}

func routedSwapV3(ar []byte) {
	swap32(ar[0:4])
	swap32(ar[4:8])
	swap16(ar[8:10])
	swap16(ar[10:12])
	swap32(ar[12:16])
	swap32(ar[16:20])
	swap32(ar[20:24])
	swap32(ar[24:28])
	swap16(ar[28:30])
	swap16(ar[30:32])
}

func routedUnpackV3(ctx *codecContext, rec *Record, ar []byte) {
	if ctx.swap {
		routedSwapV3(ar)
	}
	ne := binary.NativeEndian

	rec.SIP = wordIP(ne.Uint32(ar[0:4]))
	rec.DIP = wordIP(ne.Uint32(ar[4:8]))
	rec.SPort = ne.Uint16(ar[8:10])
	rec.DPort = ne.Uint16(ar[10:12])

	pktsStime := ne.Uint32(ar[12:16])
	bbe := ne.Uint32(ar[16:20])
	msecFlags := ne.Uint32(ar[20:24])

	rec.StartTime = time.UnixMilli(ctx.startMilli +
		1000*int64(bits(pktsStime, 0, 12)) + int64(bits(msecFlags, 22, 10))).UTC()
	rec.Elapsed = time.Duration(1000*bits(bbe, 0, 12)+bits(msecFlags, 12, 10)) *
		time.Millisecond

	if bits(msecFlags, 10, 1) != 0 {
		rec.Proto = protoTCP
		rec.Flags = uint8(bits(msecFlags, 0, 8))
	} else {
		rec.Proto = uint8(bits(msecFlags, 0, 8))
	}

	unpackVolumes(rec, bits(bbe, 12, 20), bits(pktsStime, 12, 20),
		bits(msecFlags, 11, 1))

	rec.NhIP = wordIP(ne.Uint32(ar[24:28]))
	rec.Input = ne.Uint16(ar[28:30])
	rec.Output = ne.Uint16(ar[30:32])

	rec.Sensor = ctx.sensor
	rec.FlowType = ctx.flowType
}

func routedPackV3(ctx *codecContext, rec *Record, ar []byte) error {
	elapsed := rec.Elapsed.Milliseconds()
	if elapsed/1000 >= maxElapsedSeconds {
		return ErrElapsedOverflow
	}
	off, err := startOffsetMilli(ctx, rec)
	if err != nil {
		return err
	}
	if off/1000 >= maxStartSeconds {
		return ErrStartTimeOverflow
	}
	bpp, pkts, pflag, err := packVolumes(rec)
	if err != nil {
		return err
	}

	var isTCP, protFlags uint32
	if rec.Proto == protoTCP {
		isTCP = 1
		protFlags = uint32(rec.Flags)
	} else {
		protFlags = uint32(rec.Proto)
	}

	ne := binary.NativeEndian
	ne.PutUint32(ar[0:4], ipWord(rec.SIP))
	ne.PutUint32(ar[4:8], ipWord(rec.DIP))
	ne.PutUint16(ar[8:10], rec.SPort)
	ne.PutUint16(ar[10:12], rec.DPort)

	ne.PutUint32(ar[12:16], pkts<<12|uint32(off/1000))
	ne.PutUint32(ar[16:20], bpp<<12|uint32(elapsed/1000))
	ne.PutUint32(ar[20:24], uint32(off%1000)<<22|uint32(elapsed%1000)<<12|
		pflag<<11|isTCP<<10|protFlags)

	ne.PutUint32(ar[24:28], ipWord(rec.NhIP))
	ne.PutUint16(ar[28:30], rec.Input)
	ne.PutUint16(ar[30:32], rec.Output)

	if ctx.swap {
		routedSwapV3(ar)
	}
	return nil
}

func routedSwapV1(ar []byte) {
	swap32(ar[0:4])
	swap32(ar[4:8])
	swap32(ar[8:12])
	swap16(ar[12:14])
	swap16(ar[14:16])
	swap32(ar[16:20])
	swap32(ar[20:24])
	// bytes 24-27 are single-byte fields
}

func routedUnpackV1(ctx *codecContext, rec *Record, ar []byte) {
	if ctx.swap {
		routedSwapV1(ar)
	}
	ne := binary.NativeEndian

	rec.SIP = wordIP(ne.Uint32(ar[0:4]))
	rec.DIP = wordIP(ne.Uint32(ar[4:8]))
	rec.NhIP = wordIP(ne.Uint32(ar[8:12]))
	rec.SPort = ne.Uint16(ar[12:14])
	rec.DPort = ne.Uint16(ar[14:16])

	// pef: pkts:20 elapsed:11 pflag:1; sbb: sTime:12 bPPkt:14 bPPFrac:6
	pef := ne.Uint32(ar[16:20])
	sbb := ne.Uint32(ar[20:24])

	rec.Elapsed = time.Duration(bits(pef, 1, 11)) * time.Second
	rec.StartTime = time.UnixMilli(ctx.startMilli + 1000*int64(sbb>>20)).UTC()
	unpackVolumes(rec, bits(sbb, 0, 20), pef>>12, pef&1)

	rec.Proto = ar[24]
	rec.Flags = ar[25]
	rec.Input = uint16(ar[26])
	rec.Output = uint16(ar[27])

	rec.Sensor = ctx.sensor
	rec.FlowType = ctx.flowType
}

func routedPackV1(ctx *codecContext, rec *Record, ar []byte) error {
	if rec.Input > 255 || rec.Output > 255 {
		return ErrSnmpOverflow
	}
	elapsed := rec.Elapsed.Milliseconds() / 1000
	if elapsed >= maxElapsedSecondsOld {
		return ErrElapsedOverflow
	}
	off, err := startOffsetMilli(ctx, rec)
	if err != nil {
		return err
	}
	if off/1000 >= maxStartSeconds {
		return ErrStartTimeOverflow
	}
	bpp, pkts, pflag, err := packVolumes(rec)
	if err != nil {
		return err
	}

	ne := binary.NativeEndian
	ne.PutUint32(ar[0:4], ipWord(rec.SIP))
	ne.PutUint32(ar[4:8], ipWord(rec.DIP))
	ne.PutUint32(ar[8:12], ipWord(rec.NhIP))
	ne.PutUint16(ar[12:14], rec.SPort)
	ne.PutUint16(ar[14:16], rec.DPort)

	ne.PutUint32(ar[16:20], pkts<<12|uint32(elapsed)<<1|pflag)
	ne.PutUint32(ar[20:24], uint32(off/1000)<<20|bits(bpp, 0, 20))

	ar[24] = rec.Proto
	ar[25] = rec.Flags
	ar[26] = uint8(rec.Input)
	ar[27] = uint8(rec.Output)

	if ctx.swap {
		routedSwapV1(ar)
	}
	return nil
}
