package flowfile

import (
	"errors"
	"math/rand"
	"net/netip"
	"testing"
	"time"
)

var testHour = time.Date(2024, 5, 1, 13, 0, 0, 0, time.UTC)

func testCtx() codecContext {
	return codecContext{
		startMilli: testHour.UnixMilli(),
		flowType:   9,
		sensor:     4,
	}
}

// testRecord returns a record whose fields fit every ROUTED version.
func testRecord() Record {
	return Record{
		StartTime: testHour.Add(37*time.Second + 250*time.Millisecond),
		Elapsed:   12*time.Second + 340*time.Millisecond,
		SIP:       netip.AddrFrom4([4]byte{10, 1, 2, 3}),
		DIP:       netip.AddrFrom4([4]byte{192, 168, 0, 9}),
		NhIP:      netip.AddrFrom4([4]byte{172, 16, 0, 1}),
		SPort:     1234,
		DPort:     80,
		Proto:     6,
		Flags:     0x1b,
		Input:     3,
		Output:    7,
		Packets:   17,
		Bytes:     2345,
		Sensor:    4,
		FlowType:  9,
	}
}

func recordsEqual(a, b Record) bool {
	if !a.StartTime.Equal(b.StartTime) {
		return false
	}
	a.StartTime, b.StartTime = time.Time{}, time.Time{}
	return a == b
}

func TestRoutedRoundTrip(t *testing.T) {
	tests := []struct {
		version uint16
		recLen  uint16
		// adjust maps the input record to what the version can
		// actually store.
		adjust func(r *Record)
	}{
		{version: 1, recLen: 28, adjust: func(r *Record) {
			r.StartTime = testHour.Add(37 * time.Second)
			r.Elapsed = 12 * time.Second
		}},
		{version: 2, recLen: 28, adjust: func(r *Record) {
			r.StartTime = testHour.Add(37 * time.Second)
			r.Elapsed = 12 * time.Second
		}},
		{version: 3, recLen: 32, adjust: func(r *Record) {}},
		{version: 4, recLen: 32, adjust: func(r *Record) {}},
		{version: 5, recLen: 32, adjust: func(r *Record) {}},
	}

	for _, tt := range tests {
		ctx := testCtx()
		codec, ok := routedCodec(tt.version)
		if !ok {
			t.Fatalf("routedCodec(%d) not found", tt.version)
		}
		if codec.recLen != tt.recLen {
			t.Errorf("v%d recLen = %d, want %d", tt.version, codec.recLen, tt.recLen)
		}

		in := testRecord()
		buf := make([]byte, codec.recLen)
		if err := codec.pack(&ctx, &in, buf); err != nil {
			t.Fatalf("v%d pack: %v", tt.version, err)
		}

		got := NewRecord()
		codec.unpack(&ctx, &got, buf)

		want := testRecord()
		tt.adjust(&want)
		if !recordsEqual(got, want) {
			t.Errorf("v%d round trip:\n got %+v\nwant %+v", tt.version, got, want)
		}
	}
}

func TestRoutedNonTCPRoundTrip(t *testing.T) {
	for _, version := range []uint16{1, 3, 5} {
		ctx := testCtx()
		codec, _ := routedCodec(version)

		in := testRecord()
		in.Proto = 17
		in.Flags = 0
		buf := make([]byte, codec.recLen)
		if err := codec.pack(&ctx, &in, buf); err != nil {
			t.Fatalf("v%d pack: %v", version, err)
		}
		got := NewRecord()
		codec.unpack(&ctx, &got, buf)
		if got.Proto != 17 {
			t.Errorf("v%d proto = %d, want 17", version, got.Proto)
		}
		if got.Flags != 0 {
			t.Errorf("v%d flags = %#x, want 0", version, got.Flags)
		}
	}
}

func TestRoutedSwapIdempotent(t *testing.T) {
	swaps := map[uint16]func([]byte){
		1: routedSwapV1,
		3: routedSwapV3,
		5: routedSwapV5,
	}
	rng := rand.New(rand.NewSource(1))
	for version, swap := range swaps {
		codec, _ := routedCodec(version)
		buf := make([]byte, codec.recLen)
		rng.Read(buf)
		orig := append([]byte(nil), buf...)

		swap(buf)
		swap(buf)
		for i := range buf {
			if buf[i] != orig[i] {
				t.Errorf("v%d double swap differs at byte %d", version, i)
				break
			}
		}
	}
}

func TestRoutedSwappedRoundTrip(t *testing.T) {
	for _, version := range []uint16{1, 3, 5} {
		ctx := testCtx()
		ctx.swap = true
		codec, _ := routedCodec(version)

		in := testRecord()
		buf := make([]byte, codec.recLen)
		if err := codec.pack(&ctx, &in, buf); err != nil {
			t.Fatalf("v%d pack: %v", version, err)
		}
		got := NewRecord()
		codec.unpack(&ctx, &got, buf)
		if got.SIP != in.SIP || got.SPort != in.SPort || got.Packets != in.Packets {
			t.Errorf("v%d swapped round trip: got %+v", version, got)
		}
	}
}

func TestRoutedPackOverflow(t *testing.T) {
	tests := []struct {
		name    string
		version uint16
		mutate  func(r *Record)
		wantErr error
	}{
		{"zero packets", 5, func(r *Record) { r.Packets = 0 }, ErrPacketsZero},
		{"more packets than bytes", 5, func(r *Record) {
			r.Packets = 10
			r.Bytes = 5
		}, ErrPacketsGtBytes},
		{"packets double overflow", 5, func(r *Record) {
			r.Packets = 1 << 26
			r.Bytes = 1<<32 - 1
		}, ErrPacketsOverflow},
		{"bytes-per-packet overflow", 5, func(r *Record) {
			r.Packets = 1
			r.Bytes = 20000
		}, ErrBppOverflow},
		{"elapsed overflow", 5, func(r *Record) {
			r.Elapsed = 4096 * time.Second
		}, ErrElapsedOverflow},
		{"elapsed overflow old layout", 1, func(r *Record) {
			r.Elapsed = 2048 * time.Second
		}, ErrElapsedOverflow},
		{"start before file hour", 5, func(r *Record) {
			r.StartTime = testHour.Add(-time.Second)
		}, ErrStartTimeUnderflow},
		{"start past file hour window", 5, func(r *Record) {
			r.StartTime = testHour.Add(4096 * time.Second)
		}, ErrStartTimeOverflow},
		{"snmp index over single byte", 1, func(r *Record) {
			r.Input = 700
		}, ErrSnmpOverflow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := testCtx()
			codec, _ := routedCodec(tt.version)
			rec := testRecord()
			tt.mutate(&rec)
			buf := make([]byte, codec.recLen)
			err := codec.pack(&ctx, &rec, buf)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("pack error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestScaledPacketCount(t *testing.T) {
	ctx := testCtx()
	codec, _ := routedCodec(5)

	// Counts at or above 2^20 are stored divided by 64; multiples of
	// 64 survive exactly, others round down.
	tests := []struct {
		packets uint32
		want    uint32
	}{
		{500000, 500000},
		{5000000, 5000000},
		{1<<20 + 1, 1 << 20},
	}
	for _, tt := range tests {
		rec := testRecord()
		rec.Packets = tt.packets
		rec.Bytes = tt.packets * 40
		buf := make([]byte, codec.recLen)
		if err := codec.pack(&ctx, &rec, buf); err != nil {
			t.Fatalf("pack packets=%d: %v", tt.packets, err)
		}
		got := NewRecord()
		codec.unpack(&ctx, &got, buf)
		if got.Packets != tt.want {
			t.Errorf("packets %d round trip = %d, want %d",
				tt.packets, got.Packets, tt.want)
		}
	}
}

func TestVolumePacking(t *testing.T) {
	tests := []struct {
		packets, bytes uint32
	}{
		{1, 1},
		{17, 2345},
		{3, 128},
		{1000, 1500 * 1000},
		{64, 9600},
	}
	for _, tt := range tests {
		rec := Record{Packets: tt.packets, Bytes: tt.bytes}
		bpp, pkts, pflag, err := packVolumes(&rec)
		if err != nil {
			t.Fatalf("packVolumes(%d, %d): %v", tt.packets, tt.bytes, err)
		}
		var got Record
		unpackVolumes(&got, bpp, pkts, pflag)
		if got.Packets != tt.packets {
			t.Errorf("packets = %d, want %d", got.Packets, tt.packets)
		}
		// The fractional ratio rounds to nearest; for these inputs the
		// byte count must survive exactly.
		if got.Bytes != tt.bytes {
			t.Errorf("bytes(%d pkts) = %d, want %d", tt.packets, got.Bytes, tt.bytes)
		}
	}
}
