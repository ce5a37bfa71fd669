// Package rollup implements the pure aggregation engine: folding an
// ordered run of constituent records into one higher-tier record.
//
// The engine never fabricates data. An empty constituent set produces no
// record, and a channel with no real readings in the window carries the
// no-reading sentinel in the output.
package rollup

import (
	"math"

	"github.com/trevorflahardy/baro/internal/storage/types"
)

// FromSamples folds raw samples into one rollup for the window starting at
// windowStart. Returns false if samples is empty.
//
// Per channel: avg is the half-away-from-zero rounded mean, min/max are
// the extrema. Sentinel-valued slots are excluded per channel; a channel
// that is sentinel in every sample stays sentinel in the rollup.
func FromSamples(windowStart uint32, samples []types.RawSample) (types.Rollup, bool) {
	if len(samples) == 0 {
		return types.Rollup{}, false
	}

	r := types.Rollup{StartTS: windowStart}

	for ch := 0; ch < types.MaxChannels; ch++ {
		var (
			sum   int64
			count int64
			min   int32 = math.MaxInt32
			max   int32 = math.MinInt32
		)

		for i := range samples {
			v := samples[i].Values[ch]
			if v == types.SentinelNoReading {
				continue
			}
			sum += int64(v)
			count++
			if v < min {
				min = v
			}
			if v > max {
				max = v
			}
		}

		if count == 0 {
			r.Avg[ch] = types.SentinelNoReading
			r.Min[ch] = types.SentinelNoReading
			r.Max[ch] = types.SentinelNoReading
			continue
		}

		r.Avg[ch] = roundHalfAwayFromZero(sum, count)
		r.Min[ch] = min
		r.Max[ch] = max
	}

	return r, true
}

// FromRollups folds lower-tier rollups into one rollup for the window
// starting at windowStart. Returns false if rollups is empty.
//
// avg is the mean of the constituent averages rather than a re-derivation
// from raw data; min/max are the extrema of the constituent extrema.
// Constituent channels carrying the sentinel are excluded.
func FromRollups(windowStart uint32, rollups []types.Rollup) (types.Rollup, bool) {
	if len(rollups) == 0 {
		return types.Rollup{}, false
	}

	r := types.Rollup{StartTS: windowStart}

	for ch := 0; ch < types.MaxChannels; ch++ {
		var (
			sum   int64
			count int64
			min   int32 = math.MaxInt32
			max   int32 = math.MinInt32
		)

		for i := range rollups {
			if rollups[i].Avg[ch] == types.SentinelNoReading {
				continue
			}
			sum += int64(rollups[i].Avg[ch])
			count++
			if rollups[i].Min[ch] < min {
				min = rollups[i].Min[ch]
			}
			if rollups[i].Max[ch] > max {
				max = rollups[i].Max[ch]
			}
		}

		if count == 0 {
			r.Avg[ch] = types.SentinelNoReading
			r.Min[ch] = types.SentinelNoReading
			r.Max[ch] = types.SentinelNoReading
			continue
		}

		r.Avg[ch] = roundHalfAwayFromZero(sum, count)
		r.Min[ch] = min
		r.Max[ch] = max
	}

	return r, true
}

// roundHalfAwayFromZero divides sum by count, rounding halves away from
// zero. The tie-break is fixed so that historic files stay
// byte-reproducible across implementations.
func roundHalfAwayFromZero(sum, count int64) int32 {
	q := sum / count
	r := sum % count
	if r < 0 {
		r = -r
	}
	if 2*r >= count {
		if sum < 0 {
			q--
		} else {
			q++
		}
	}
	return int32(q)
}
