package types

import "math"

// MaxChannels is the number of sensor value slots in every record.
// Channel index assignment belongs to the sensor subsystem; storage only
// guarantees that a channel's slot is stable across all record kinds.
const MaxChannels = 20

// SentinelNoReading marks a channel slot that carries no reading. It is
// distinct from a valid zero reading and is never aggregated.
const SentinelNoReading int32 = math.MinInt32

// RawSample is a single measurement cycle: one timestamped reading per
// channel, in fixed-point milli-units (e.g. 25.3 degrees C -> 25300).
//
// Raw samples live in the ring-buffer tier and are overwritten once the
// ring wraps; they are immutable until then.
type RawSample struct {
	// Timestamp is UTC seconds since the Unix epoch.
	Timestamp uint32
	// Values holds one fixed-point reading per channel index.
	// Unpopulated channels carry SentinelNoReading.
	Values [MaxChannels]int32
}

// NewRawSample creates a raw sample for the given timestamp and values.
func NewRawSample(timestamp uint32, values [MaxChannels]int32) RawSample {
	return RawSample{Timestamp: timestamp, Values: values}
}

// Rollup is an aggregate over a fixed time window: per-channel average,
// minimum and maximum. Rollup records are append-only and never mutated.
type Rollup struct {
	// StartTS is the window start, aligned to the tier's window duration
	// (floor(ts/window)*window, anchored to the epoch).
	StartTS uint32
	Avg     [MaxChannels]int32
	Min     [MaxChannels]int32
	Max     [MaxChannels]int32
}

// LifetimeStats is the single all-time record: boot time, total sample
// count, and per-channel running integrals and extrema. It is rewritten in
// place on a bounded cadence rather than appended.
type LifetimeStats struct {
	// BootTime is the timestamp of the first boot (first sample ever seen).
	BootTime     uint32
	TotalSamples uint64
	// Integrals holds the running sum of each channel over the lifetime,
	// used to derive an all-time average.
	Integrals [MaxChannels]int64
	Max       [MaxChannels]int32
	Min       [MaxChannels]int32
}

// NewLifetimeStats creates empty lifetime stats for a device that first
// booted at the given time. Extrema start at the sentinel-free identity
// values so the first real reading establishes them.
func NewLifetimeStats(bootTime uint32) LifetimeStats {
	s := LifetimeStats{BootTime: bootTime}
	for i := range s.Max {
		s.Max[i] = math.MinInt32
		s.Min[i] = math.MaxInt32
	}
	return s
}

// Update folds one raw sample into the lifetime stats. Channels holding
// SentinelNoReading do not contribute to integrals or extrema.
func (s *LifetimeStats) Update(sample RawSample) {
	s.TotalSamples++

	for i, v := range sample.Values {
		if v == SentinelNoReading {
			continue
		}
		s.Integrals[i] += int64(v)
		if v > s.Max[i] {
			s.Max[i] = v
		}
		if v < s.Min[i] {
			s.Min[i] = v
		}
	}
}

// Average returns the all-time average for a channel, derived from the
// running integral, and false if no samples have been recorded.
func (s *LifetimeStats) Average(channel int) (int32, bool) {
	if s.TotalSamples == 0 || channel < 0 || channel >= MaxChannels {
		return 0, false
	}
	return int32(s.Integrals[channel] / int64(s.TotalSamples)), true
}

// HasReading reports whether a channel has ever recorded a real value.
func (s *LifetimeStats) HasReading(channel int) bool {
	if channel < 0 || channel >= MaxChannels {
		return false
	}
	return s.Max[channel] != math.MinInt32
}
