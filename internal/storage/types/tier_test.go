package types

import (
	"testing"
	"time"
)

func TestTierWindowStart(t *testing.T) {
	tests := []struct {
		tier Tier
		ts   uint32
		want uint32
	}{
		{Tier5Min, 1700000123, 1700000100},
		{Tier5Min, 1700000100, 1700000100},
		{Tier5Min, 1700000399, 1700000100},
		{TierHourly, 1700003599, 1700002800},
		{TierDaily, 1700000000, 1699920000},
		{TierRaw, 1700000123, 1700000123},
		{TierLifetime, 1700000123, 1700000123},
	}

	for _, tt := range tests {
		got := tt.tier.WindowStart(tt.ts)
		if got != tt.want {
			t.Errorf("%s.WindowStart(%d) = %d, want %d", tt.tier, tt.ts, got, tt.want)
		}
		// Window starts must be reboot-stable: aligned to the epoch.
		if w := uint32(tt.tier.Duration() / time.Second); w != 0 && got%w != 0 {
			t.Errorf("%s.WindowStart(%d) = %d not aligned to %d", tt.tier, tt.ts, got, w)
		}
	}
}

func TestTierCascade(t *testing.T) {
	if TierRaw.Next() != Tier5Min || Tier5Min.Next() != TierHourly || TierHourly.Next() != TierDaily {
		t.Error("cascade order must be raw -> 5min -> hourly -> daily")
	}
	if TierDaily.Next() != TierDaily {
		t.Error("daily is the top of the cascade")
	}

	if Tier5Min.SourceCount() != 30 || TierHourly.SourceCount() != 12 || TierDaily.SourceCount() != 24 {
		t.Errorf("source counts: got %d/%d/%d, want 30/12/24",
			Tier5Min.SourceCount(), TierHourly.SourceCount(), TierDaily.SourceCount())
	}
}

func TestTierRecordSize(t *testing.T) {
	sizes := map[Tier]int{
		TierRaw:      RawSampleSize,
		Tier5Min:     RollupSize,
		TierHourly:   RollupSize,
		TierDaily:    RollupSize,
		TierLifetime: LifetimeStatsSize,
	}
	for tier, want := range sizes {
		if got := tier.RecordSize(); got != want {
			t.Errorf("%s.RecordSize() = %d, want %d", tier, got, want)
		}
	}
}

func TestParseTier(t *testing.T) {
	for _, tier := range AllTiers() {
		parsed, err := ParseTier(tier.String())
		if err != nil {
			t.Errorf("ParseTier(%q): %v", tier.String(), err)
		}
		if parsed != tier {
			t.Errorf("ParseTier(%q) = %v, want %v", tier.String(), parsed, tier)
		}
	}

	if _, err := ParseTier("weekly"); err == nil {
		t.Error("expected error for unknown tier")
	}
}

func TestTierFilenames(t *testing.T) {
	seen := make(map[string]Tier)
	for _, tier := range AllTiers() {
		name := tier.Filename()
		if name == "" {
			t.Errorf("%s has no filename", tier)
		}
		if prev, ok := seen[name]; ok {
			t.Errorf("%s and %s share filename %q", prev, tier, name)
		}
		seen[name] = tier
	}
}
