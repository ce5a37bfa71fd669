package types

import (
	"fmt"
	"time"
)

// Tier identifies one level of the aggregation cascade.
type Tier int

const (
	// TierRaw stores raw samples at sampling resolution in a ring buffer.
	TierRaw Tier = iota

	// Tier5Min stores 5-minute rollups, folded from 30 raw samples.
	Tier5Min

	// TierHourly stores hourly rollups, folded from 12 five-minute rollups.
	TierHourly

	// TierDaily stores daily rollups, folded from 24 hourly rollups.
	TierDaily

	// TierLifetime is the single all-time record, rewritten in place.
	TierLifetime
)

// String returns the string representation of the tier.
func (t Tier) String() string {
	switch t {
	case TierRaw:
		return "raw"
	case Tier5Min:
		return "5min"
	case TierHourly:
		return "hourly"
	case TierDaily:
		return "daily"
	case TierLifetime:
		return "lifetime"
	default:
		return fmt.Sprintf("unknown(%d)", int(t))
	}
}

// Duration returns the aggregation window duration for this tier.
// Raw and lifetime tiers have no window.
func (t Tier) Duration() time.Duration {
	switch t {
	case Tier5Min:
		return 5 * time.Minute
	case TierHourly:
		return time.Hour
	case TierDaily:
		return 24 * time.Hour
	default:
		return 0
	}
}

// SourceCount returns how many constituent records of the previous tier
// fold into one record of this tier. The 5-minute count assumes the
// default 10-second sampling interval; the accumulator derives the actual
// count from configuration.
func (t Tier) SourceCount() int {
	switch t {
	case Tier5Min:
		return 30
	case TierHourly:
		return 12
	case TierDaily:
		return 24
	default:
		return 0
	}
}

// Filename returns the tier's backing file name inside the data directory.
func (t Tier) Filename() string {
	switch t {
	case TierRaw:
		return "raw_samples.bin"
	case Tier5Min:
		return "rollup_5m.bin"
	case TierHourly:
		return "rollup_1h.bin"
	case TierDaily:
		return "rollup_daily.bin"
	case TierLifetime:
		return "lifetime.bin"
	default:
		return ""
	}
}

// RecordSize returns the fixed on-disk record size for this tier.
func (t Tier) RecordSize() int {
	switch t {
	case TierRaw:
		return RawSampleSize
	case Tier5Min, TierHourly, TierDaily:
		return RollupSize
	case TierLifetime:
		return LifetimeStatsSize
	default:
		return 0
	}
}

// Next returns the tier a completed record of this tier feeds into.
// The daily tier is the top of the rollup cascade and returns itself.
func (t Tier) Next() Tier {
	switch t {
	case TierRaw:
		return Tier5Min
	case Tier5Min:
		return TierHourly
	case TierHourly:
		return TierDaily
	default:
		return t
	}
}

// WindowStart aligns a timestamp to the start of its window:
// floor(ts/window)*window, anchored to the epoch so boundaries are stable
// across reboots. Tiers without a window return the timestamp unchanged.
func (t Tier) WindowStart(ts uint32) uint32 {
	window := uint32(t.Duration() / time.Second)
	if window == 0 {
		return ts
	}
	return (ts / window) * window
}

// ParseTier parses a string into a Tier.
func ParseTier(s string) (Tier, error) {
	switch s {
	case "raw":
		return TierRaw, nil
	case "5min", "5m":
		return Tier5Min, nil
	case "hourly", "1h":
		return TierHourly, nil
	case "daily":
		return TierDaily, nil
	case "lifetime":
		return TierLifetime, nil
	default:
		return TierRaw, fmt.Errorf("unknown tier: %s", s)
	}
}

// AllTiers returns all tiers in cascade order.
func AllTiers() []Tier {
	return []Tier{TierRaw, Tier5Min, TierHourly, TierDaily, TierLifetime}
}

// RollupTiers returns the append-only rollup tiers in cascade order.
func RollupTiers() []Tier {
	return []Tier{Tier5Min, TierHourly, TierDaily}
}
