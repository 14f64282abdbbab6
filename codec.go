package flowfile

import "fmt"

// codecContext carries the per-stream state a record codec needs: the
// byte-order mismatch flag and the provenance values from the header's
// packed-file entry.
type codecContext struct {
	swap       bool  // file byte order differs from this machine's
	startMilli int64 // file start hour, Unix milliseconds
	flowType   uint32
	sensor     uint32
}

// recCodec maps between a Record and one fixed-size on-disk layout.
// pack and unpack operate on a buffer of exactly recLen bytes in the
// file's byte order.
type recCodec struct {
	recLen uint16
	unpack func(ctx *codecContext, rec *Record, ar []byte)
	pack   func(ctx *codecContext, rec *Record, ar []byte) error
}

// prepareCodec resolves the header's (format, version) pair to a
// codec, substituting the format's default version for VersionAny when
// writing, and records the codec's length in the header.
func prepareCodec(h *Header, writing bool) (recCodec, error) {
	info, ok := formats[h.format]
	if !ok {
		return recCodec{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, h.format.Name())
	}
	if writing && h.recordVersion == VersionAny {
		h.recordVersion = info.defaultVersion
	}
	c, ok := info.lookup(h.recordVersion)
	if !ok {
		return recCodec{}, fmt.Errorf("%w: %s v%d",
			ErrUnsupportedVersion, h.format.Name(), h.recordVersion)
	}
	h.recordLen = c.recLen
	return c, nil
}

// codecContextFor builds the codec context from a parsed or written
// header.
func codecContextFor(h *Header) codecContext {
	ctx := codecContext{
		swap:     h.bigEndian != nativeIsBigEndian,
		flowType: FlowTypeInvalid,
		sensor:   SensorInvalid,
	}
	if pf := h.PackedFile(); pf != nil {
		ctx.startMilli = pf.StartHour.UnixMilli()
		ctx.flowType = pf.FlowType
		ctx.sensor = pf.Sensor
	}
	return ctx
}
