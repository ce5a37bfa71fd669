package accumulator

import (
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/trevorflahardy/baro/internal/storage/fanout"
	"github.com/trevorflahardy/baro/internal/storage/tierfile"
	"github.com/trevorflahardy/baro/internal/storage/types"
)

// base is aligned to a day boundary so rollup window starts are easy to
// predict.
const base = uint32(1_700_006_400)

func newStores(dir string) Stores {
	return Stores{
		Raw:      tierfile.NewRing(filepath.Join(dir, types.TierRaw.Filename()), 8640, false),
		FiveMin:  tierfile.NewAppend(filepath.Join(dir, types.Tier5Min.Filename()), types.RollupSize, false),
		Hourly:   tierfile.NewAppend(filepath.Join(dir, types.TierHourly.Filename()), types.RollupSize, false),
		Daily:    tierfile.NewAppend(filepath.Join(dir, types.TierDaily.Filename()), types.RollupSize, false),
		Lifetime: tierfile.NewAppend(filepath.Join(dir, types.TierLifetime.Filename()), types.LifetimeStatsSize, false),
	}
}

func closeStores(s Stores) {
	s.Raw.Close()
	s.FiveMin.Close()
	s.Hourly.Close()
	s.Daily.Close()
	s.Lifetime.Close()
}

// sampleN builds the n-th 10-second sample with channel 0 carrying n.
func sampleN(n int) types.RawSample {
	var values [types.MaxChannels]int32
	values[0] = int32(n)
	values[1] = types.SentinelNoReading
	return types.NewRawSample(base+uint32(n)*10, values)
}

func ingestN(a *Accumulator, n int) {
	for i := 0; i < n; i++ {
		a.Ingest(sampleN(i))
	}
}

func TestFiveMinuteRollup(t *testing.T) {
	stores := newStores(t.TempDir())
	defer closeStores(stores)
	a := New(Options{Stores: stores})
	a.Load(base)

	ingestN(a, 30)

	if got := stores.FiveMin.Count(); got != 1 {
		t.Fatalf("5m records on disk = %d, want 1", got)
	}
	rollups := a.LastRollups(types.Tier5Min, 10)
	if len(rollups) != 1 {
		t.Fatalf("5m history = %d, want 1", len(rollups))
	}

	r := rollups[0]
	if r.StartTS != base {
		t.Errorf("window start = %d, want %d", r.StartTS, base)
	}
	// Channel 0 saw 0..29: avg 15 (14.5 rounded away from zero), min 0, max 29.
	if r.Avg[0] != 15 || r.Min[0] != 0 || r.Max[0] != 29 {
		t.Errorf("channel 0 = avg %d min %d max %d, want 15/0/29", r.Avg[0], r.Min[0], r.Max[0])
	}
	// Channel 1 never reported.
	if r.Avg[1] != types.SentinelNoReading {
		t.Errorf("channel 1 avg = %d, want sentinel", r.Avg[1])
	}

	if a.PendingSamples() != 0 {
		t.Errorf("pending = %d, want 0 after window close", a.PendingSamples())
	}
}

func TestHourlyAndDailyCascade(t *testing.T) {
	stores := newStores(t.TempDir())
	defer closeStores(stores)
	a := New(Options{Stores: stores})
	a.Load(base)

	// One full day of 10s samples.
	ingestN(a, 8640)

	st := a.Stats()
	if st.FiveMinRollups != 288 {
		t.Errorf("5m rollups = %d, want 288", st.FiveMinRollups)
	}
	if st.HourlyRollups != 24 {
		t.Errorf("hourly rollups = %d, want 24", st.HourlyRollups)
	}
	if st.DailyRollups != 1 {
		t.Errorf("daily rollups = %d, want 1", st.DailyRollups)
	}

	if got := stores.Hourly.Count(); got != 24 {
		t.Errorf("hourly records on disk = %d, want 24", got)
	}
	daily := a.LastRollups(types.TierDaily, 1)
	if len(daily) != 1 {
		t.Fatalf("daily history = %d, want 1", len(daily))
	}
	if daily[0].StartTS != base {
		t.Errorf("daily window start = %d, want %d", daily[0].StartTS, base)
	}
	// Channel 0 min/max span the whole day.
	if daily[0].Min[0] != 0 || daily[0].Max[0] != 8639 {
		t.Errorf("daily min/max = %d/%d, want 0/8639", daily[0].Min[0], daily[0].Max[0])
	}
}

func TestLifetimeFlushCadence(t *testing.T) {
	stores := newStores(t.TempDir())
	defer closeStores(stores)
	a := New(Options{Stores: stores})
	a.Load(base)

	ingestN(a, 29)
	if stores.Lifetime.Count() != 0 {
		t.Fatal("lifetime persisted before cadence reached")
	}

	a.Ingest(sampleN(29))
	if stores.Lifetime.Count() != 1 {
		t.Fatal("lifetime not persisted at cadence")
	}

	rec, err := stores.Lifetime.ReadFirst()
	if err != nil {
		t.Fatalf("read lifetime: %v", err)
	}
	lt, err := types.DecodeLifetimeStats(rec)
	if err != nil {
		t.Fatalf("decode lifetime: %v", err)
	}
	if lt.TotalSamples != 30 {
		t.Errorf("total samples = %d, want 30", lt.TotalSamples)
	}
	if lt.Max[0] != 29 || lt.Min[0] != 0 {
		t.Errorf("channel 0 extrema = %d/%d, want 29/0", lt.Max[0], lt.Min[0])
	}
	// Channel 1 was always sentinel and must stay untouched.
	if lt.HasReading(1) {
		t.Error("channel 1 should have no readings")
	}
}

func TestLoadRestoresState(t *testing.T) {
	dir := t.TempDir()

	stores := newStores(dir)
	a := New(Options{Stores: stores})
	a.Load(base)
	ingestN(a, 60) // Two 5m windows, two lifetime flushes.
	closeStores(stores)

	stores2 := newStores(dir)
	defer closeStores(stores2)
	a2 := New(Options{Stores: stores2})
	a2.Load(base + 600)

	lt := a2.LifetimeSnapshot()
	if lt.TotalSamples != 60 {
		t.Errorf("restored total samples = %d, want 60", lt.TotalSamples)
	}
	if lt.BootTime != base {
		t.Errorf("boot time = %d, want %d (first boot preserved across restarts)", lt.BootTime, base)
	}

	raw := a2.LastRaw(5)
	if len(raw) != 5 {
		t.Fatalf("raw history = %d, want 5", len(raw))
	}
	if raw[4].Timestamp != base+59*10 {
		t.Errorf("newest raw timestamp = %d, want %d", raw[4].Timestamp, base+59*10)
	}

	rollups := a2.LastRollups(types.Tier5Min, 10)
	if len(rollups) != 2 {
		t.Fatalf("restored 5m history = %d, want 2", len(rollups))
	}
	if rollups[0].StartTS != base || rollups[1].StartTS != base+300 {
		t.Errorf("restored windows = %d,%d, want %d,%d",
			rollups[0].StartTS, rollups[1].StartTS, base, base+300)
	}
}

func TestDegradedModeContinuesAndRecovers(t *testing.T) {
	parent := t.TempDir()
	dir := filepath.Join(parent, "card")

	events := fanout.New(64)
	sub := events.Subscribe("test")
	defer sub.Close()

	// The medium is absent: every write fails, nothing stops.
	stores := newStores(dir)
	defer closeStores(stores)
	a := New(Options{Stores: stores, Events: events})
	a.Load(base)

	ingestN(a, 30)

	st := a.Stats()
	if st.SamplesIn != 30 {
		t.Errorf("samples in = %d, want 30", st.SamplesIn)
	}
	if st.DegradedWrites == 0 {
		t.Error("expected degraded writes with medium absent")
	}
	if len(a.LastRaw(30)) != 30 {
		t.Error("raw history must absorb samples while degraded")
	}
	if len(a.LastRollups(types.Tier5Min, 1)) != 1 {
		t.Error("rollup cascade must run while degraded")
	}

	sawUnpersisted := false
drain:
	for {
		select {
		case ev := <-sub.Events():
			if !ev.Persisted {
				sawUnpersisted = true
			}
		default:
			break drain
		}
	}
	if !sawUnpersisted {
		t.Error("expected events flagged unpersisted while degraded")
	}

	// Medium appears; the next window must persist without intervention.
	if err := os.Mkdir(dir, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	ingestN(a, 30)

	if stores.Raw.Count() == 0 {
		t.Error("raw writes did not resume after medium returned")
	}
	if stores.FiveMin.Count() != 1 {
		t.Errorf("5m records on disk = %d, want 1 after recovery", stores.FiveMin.Count())
	}
}

func TestFlushLifetimeOnDemand(t *testing.T) {
	stores := newStores(t.TempDir())
	defer closeStores(stores)
	a := New(Options{Stores: stores})
	a.Load(base)

	ingestN(a, 7) // Below the cadence.
	if !a.FlushLifetime() {
		t.Fatal("flush failed")
	}

	rec, err := stores.Lifetime.ReadFirst()
	if err != nil {
		t.Fatalf("read lifetime: %v", err)
	}
	lt, err := types.DecodeLifetimeStats(rec)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if lt.TotalSamples != 7 {
		t.Errorf("total samples = %d, want 7", lt.TotalSamples)
	}
}

func TestWriteTimeoutFailsWithoutRetry(t *testing.T) {
	a := New(Options{
		Stores:    newStores(t.TempDir()),
		IOTimeout: 10 * time.Millisecond,
	})

	var calls atomic.Int32
	done := make(chan struct{})
	ok := a.persist("slow", func() error {
		calls.Add(1)
		<-done
		return nil
	})
	close(done)

	if ok {
		t.Fatal("a timed out write must report failure")
	}
	// A write that exceeded the bound will exceed it again; no retry.
	if got := calls.Load(); got != 1 {
		t.Errorf("write attempts = %d, want 1", got)
	}

	st := a.Stats()
	if st.WriteRetries != 0 {
		t.Errorf("retries = %d, want 0 after timeout", st.WriteRetries)
	}
	if st.DegradedWrites != 1 {
		t.Errorf("degraded writes = %d, want 1", st.DegradedWrites)
	}
}

func TestTransientWriteFailureRetriedOnce(t *testing.T) {
	a := New(Options{Stores: newStores(t.TempDir())})

	calls := 0
	ok := a.persist("flaky", func() error {
		calls++
		if calls == 1 {
			return errors.New("transient device fault")
		}
		return nil
	})

	if !ok {
		t.Fatal("write succeeding on retry must report success")
	}
	if calls != 2 {
		t.Errorf("write attempts = %d, want 2", calls)
	}

	st := a.Stats()
	if st.WriteRetries != 1 {
		t.Errorf("retries = %d, want 1", st.WriteRetries)
	}
	if st.DegradedWrites != 0 {
		t.Errorf("degraded writes = %d, want 0", st.DegradedWrites)
	}
}

func TestPersistentWriteFailureGivesUp(t *testing.T) {
	a := New(Options{Stores: newStores(t.TempDir())})

	calls := 0
	ok := a.persist("dead", func() error {
		calls++
		return errors.New("device gone")
	})

	if ok {
		t.Fatal("a persistently failing write must report failure")
	}
	// Exactly one bounded retry, never an indefinite loop.
	if calls != 2 {
		t.Errorf("write attempts = %d, want 2", calls)
	}

	st := a.Stats()
	if st.WriteRetries != 1 {
		t.Errorf("retries = %d, want 1", st.WriteRetries)
	}
	if st.DegradedWrites != 1 {
		t.Errorf("degraded writes = %d, want 1", st.DegradedWrites)
	}
}

func TestEventStream(t *testing.T) {
	stores := newStores(t.TempDir())
	defer closeStores(stores)

	events := fanout.New(256)
	sub := events.Subscribe("test")
	defer sub.Close()

	a := New(Options{Stores: stores, Events: events})
	a.Load(base)
	ingestN(a, 30)

	var raw, fiveMin, lifetime int
	for {
		select {
		case ev := <-sub.Events():
			if !ev.Persisted {
				t.Errorf("unexpected unpersisted event %+v", ev)
			}
			switch ev.Tier {
			case types.TierRaw:
				raw++
			case types.Tier5Min:
				fiveMin++
				if ev.Count != 30 {
					t.Errorf("5m event count = %d, want 30", ev.Count)
				}
			case types.TierLifetime:
				lifetime++
			}
		default:
			if raw != 30 || fiveMin != 1 || lifetime != 1 {
				t.Errorf("events raw/5m/lifetime = %d/%d/%d, want 30/1/1", raw, fiveMin, lifetime)
			}
			return
		}
	}
}
