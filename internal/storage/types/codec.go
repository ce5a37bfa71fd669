package types

import (
	"encoding/binary"
	"fmt"
)

// On-disk layout (all multi-byte fields little-endian, padding zero):
//
//	RawSample (96 bytes):
//	  [0:4]    timestamp (u32)
//	  [4:84]   values (20 x i32)
//	  [84]     layout version
//	  [85:96]  padding
//
//	Rollup (256 bytes):
//	  [0:4]      start_ts (u32)
//	  [4:84]     avg (20 x i32)
//	  [84:164]   min (20 x i32)
//	  [164:244]  max (20 x i32)
//	  [244]      layout version
//	  [245:256]  padding
//
//	LifetimeStats (336 bytes, 8-byte aligned):
//	  [0:4]      boot_time (u32)
//	  [4]        layout version
//	  [5:8]      padding
//	  [8:16]     total_samples (u64)
//	  [16:176]   integrals (20 x i64)
//	  [176:256]  max (20 x i32)
//	  [256:336]  min (20 x i32)

const (
	// RawSampleSize is the fixed on-disk size of a RawSample.
	RawSampleSize = 96
	// RollupSize is the fixed on-disk size of a Rollup.
	RollupSize = 256
	// LifetimeStatsSize is the fixed on-disk size of LifetimeStats.
	// The natural 8-byte-aligned size of the fields is 336; this is the
	// declared record size (see DESIGN.md).
	LifetimeStatsSize = 336

	// LayoutVersion tags every encoded record so a future layout change
	// is rejected on decode instead of silently misread.
	LayoutVersion = 1
)

// Offsets of the version byte within each record kind.
const (
	rawSampleVersionOff = 84
	rollupVersionOff    = 244
	lifetimeVersionOff  = 4
)

// Encode serializes the sample into its fixed 96-byte layout.
// Encoding is deterministic: identical field values produce identical bytes.
func (s *RawSample) Encode() []byte {
	buf := make([]byte, RawSampleSize)
	binary.LittleEndian.PutUint32(buf[0:4], s.Timestamp)
	putValues(buf[4:], s.Values)
	buf[rawSampleVersionOff] = LayoutVersion
	return buf
}

// DecodeRawSample deserializes a 96-byte buffer into a RawSample.
func DecodeRawSample(data []byte) (RawSample, error) {
	if len(data) != RawSampleSize {
		return RawSample{}, fmt.Errorf("%w: raw sample length %d, want %d", ErrFormat, len(data), RawSampleSize)
	}
	if v := data[rawSampleVersionOff]; v != LayoutVersion {
		return RawSample{}, fmt.Errorf("%w: raw sample layout version %d, want %d", ErrFormat, v, LayoutVersion)
	}

	var s RawSample
	s.Timestamp = binary.LittleEndian.Uint32(data[0:4])
	getValues(data[4:], &s.Values)
	return s, nil
}

// Encode serializes the rollup into its fixed 256-byte layout.
func (r *Rollup) Encode() []byte {
	buf := make([]byte, RollupSize)
	binary.LittleEndian.PutUint32(buf[0:4], r.StartTS)
	putValues(buf[4:], r.Avg)
	putValues(buf[84:], r.Min)
	putValues(buf[164:], r.Max)
	buf[rollupVersionOff] = LayoutVersion
	return buf
}

// DecodeRollup deserializes a 256-byte buffer into a Rollup.
func DecodeRollup(data []byte) (Rollup, error) {
	if len(data) != RollupSize {
		return Rollup{}, fmt.Errorf("%w: rollup length %d, want %d", ErrFormat, len(data), RollupSize)
	}
	if v := data[rollupVersionOff]; v != LayoutVersion {
		return Rollup{}, fmt.Errorf("%w: rollup layout version %d, want %d", ErrFormat, v, LayoutVersion)
	}

	var r Rollup
	r.StartTS = binary.LittleEndian.Uint32(data[0:4])
	getValues(data[4:], &r.Avg)
	getValues(data[84:], &r.Min)
	getValues(data[164:], &r.Max)
	return r, nil
}

// Encode serializes the lifetime stats into the fixed 336-byte layout.
func (s *LifetimeStats) Encode() []byte {
	buf := make([]byte, LifetimeStatsSize)
	binary.LittleEndian.PutUint32(buf[0:4], s.BootTime)
	buf[lifetimeVersionOff] = LayoutVersion
	binary.LittleEndian.PutUint64(buf[8:16], s.TotalSamples)
	for i, v := range s.Integrals {
		binary.LittleEndian.PutUint64(buf[16+i*8:], uint64(v))
	}
	putValues(buf[176:], s.Max)
	putValues(buf[256:], s.Min)
	return buf
}

// DecodeLifetimeStats deserializes a 336-byte buffer into LifetimeStats.
func DecodeLifetimeStats(data []byte) (LifetimeStats, error) {
	if len(data) != LifetimeStatsSize {
		return LifetimeStats{}, fmt.Errorf("%w: lifetime stats length %d, want %d", ErrFormat, len(data), LifetimeStatsSize)
	}
	if v := data[lifetimeVersionOff]; v != LayoutVersion {
		return LifetimeStats{}, fmt.Errorf("%w: lifetime stats layout version %d, want %d", ErrFormat, v, LayoutVersion)
	}

	var s LifetimeStats
	s.BootTime = binary.LittleEndian.Uint32(data[0:4])
	s.TotalSamples = binary.LittleEndian.Uint64(data[8:16])
	for i := range s.Integrals {
		s.Integrals[i] = int64(binary.LittleEndian.Uint64(data[16+i*8:]))
	}
	getValues(data[176:], &s.Max)
	getValues(data[256:], &s.Min)
	return s, nil
}

// putValues writes a channel array as 20 little-endian i32s.
func putValues(buf []byte, values [MaxChannels]int32) {
	for i, v := range values {
		binary.LittleEndian.PutUint32(buf[i*4:], uint32(v))
	}
}

// getValues reads a channel array of 20 little-endian i32s.
func getValues(data []byte, values *[MaxChannels]int32) {
	for i := range values {
		values[i] = int32(binary.LittleEndian.Uint32(data[i*4:]))
	}
}
