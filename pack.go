package flowfile

// Field capacities shared by the packed record layouts.  Packet counts
// occupy 20 bits; counts at or above the limit are stored divided by
// packetsDivisor with a flag bit set.  The byte count is stored as a
// bytes-per-packet ratio in 14.6 fixed point.
const (
	maxPackedPackets  = 1 << 20
	packetsDivisor    = 64
	bppFracBits       = 6
	bppPrecision      = 1 << bppFracBits
	maxBytesPerPacket = 1<<14 - 1

	maxStartSeconds      = 4096
	maxElapsedSeconds    = 4096
	maxElapsedSecondsOld = 2048
)

// bits extracts n bits of v starting at bit off.
func bits(v uint32, off, n uint) uint32 {
	return (v >> off) & (1<<n - 1)
}

// packVolumes converts a record's byte and packet counts to the packed
// form: a 14.6 fixed-point bytes-per-packet ratio, a 20-bit packet
// count, and a flag saying the count was divided by packetsDivisor.
func packVolumes(rec *Record) (bpp, pkts, pflag uint32, err error) {
	packets := rec.Packets
	bytes := rec.Bytes
	if packets == 0 {
		return 0, 0, 0, ErrPacketsZero
	}
	if packets > bytes {
		return 0, 0, 0, ErrPacketsGtBytes
	}

	pkts = packets
	if packets >= maxPackedPackets {
		pkts = packets / packetsDivisor
		if pkts >= maxPackedPackets {
			return 0, 0, 0, ErrPacketsOverflow
		}
		pflag = 1
	}

	quot := bytes / packets
	rem := bytes % packets
	if quot > maxBytesPerPacket {
		return 0, 0, 0, ErrBppOverflow
	}
	bpp = quot<<bppFracBits | uint32(uint64(rem)*bppPrecision/uint64(packets))
	return bpp, pkts, pflag, nil
}

// unpackVolumes reverses packVolumes, rounding the fractional
// bytes-per-packet contribution to the nearest whole byte.
func unpackVolumes(rec *Record, bpp, pkts, pflag uint32) {
	if pflag != 0 {
		pkts *= packetsDivisor
	}
	quot := bits(bpp, bppFracBits, 14)
	frac := bits(bpp, 0, bppFracBits)

	t := frac * pkts
	bytes := quot*pkts + t/bppPrecision
	if t%bppPrecision >= bppPrecision/2 {
		bytes++
	}

	rec.Packets = pkts
	rec.Bytes = bytes
}

// startOffsetMilli returns the record's start time as milliseconds
// past the file's start hour.
func startOffsetMilli(ctx *codecContext, rec *Record) (int64, error) {
	off := rec.StartTime.UnixMilli() - ctx.startMilli
	if off < 0 {
		return 0, ErrStartTimeUnderflow
	}
	return off, nil
}

func swap16(b []byte) {
	b[0], b[1] = b[1], b[0]
}

func swap32(b []byte) {
	b[0], b[1], b[2], b[3] = b[3], b[2], b[1], b[0]
}
