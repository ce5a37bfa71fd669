package tierfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/trevorflahardy/baro/internal/storage/types"
)

func rollupAt(ts uint32) types.Rollup {
	var r types.Rollup
	r.StartTS = ts
	for i := range r.Avg {
		r.Avg[i] = int32(ts)
	}
	return r
}

func TestAppendReadLast(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rollup_5m.bin")
	a := NewAppend(path, types.RollupSize, false)
	defer a.Close()

	for i := uint32(0); i < 5; i++ {
		r := rollupAt(1000 + i*300)
		if err := a.Append(r.Encode()); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	if a.Count() != 5 {
		t.Errorf("count = %d, want 5", a.Count())
	}

	records, err := a.ReadLast(2)
	if err != nil {
		t.Fatalf("read last: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	for i, want := range []uint32{1900, 2200} {
		r, err := types.DecodeRollup(records[i])
		if err != nil {
			t.Fatalf("decode %d: %v", i, err)
		}
		if r.StartTS != want {
			t.Errorf("record %d start_ts = %d, want %d", i, r.StartTS, want)
		}
	}

	// Clamped, not an error, when asking for more than exists.
	records, err = a.ReadLast(100)
	if err != nil {
		t.Fatalf("read last clamped: %v", err)
	}
	if len(records) != 5 {
		t.Errorf("got %d records, want 5", len(records))
	}
}

func TestAppendRejectsWrongSize(t *testing.T) {
	a := NewAppend(filepath.Join(t.TempDir(), "x.bin"), types.RollupSize, false)
	defer a.Close()

	if err := a.Append(make([]byte, types.RollupSize-1)); err == nil {
		t.Error("expected error for short record")
	}
	if err := a.Overwrite(make([]byte, types.RollupSize+1)); err == nil {
		t.Error("expected error for long record")
	}
}

func TestAppendTornWriteRecovery(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rollup_1h.bin")

	a := NewAppend(path, types.RollupSize, false)
	for i := uint32(0); i < 3; i++ {
		r := rollupAt(3600 * i)
		if err := a.Append(r.Encode()); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	a.Close()

	// Simulate a power loss mid-write: a partial fourth record.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := f.Write(make([]byte, 100)); err != nil {
		t.Fatalf("write torn tail: %v", err)
	}
	f.Close()

	a2 := NewAppend(path, types.RollupSize, false)
	defer a2.Close()
	if err := a2.Open(); err != nil {
		t.Fatalf("recover: %v", err)
	}

	st, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if st.Size() != 3*types.RollupSize {
		t.Errorf("size after recovery = %d, want %d (torn record dropped)", st.Size(), 3*types.RollupSize)
	}
	if a2.Stats().Truncations != 1 {
		t.Errorf("truncations = %d, want 1", a2.Stats().Truncations)
	}

	// The next append lands immediately after record 3.
	r := rollupAt(99999)
	if err := a2.Append(r.Encode()); err != nil {
		t.Fatalf("append after recovery: %v", err)
	}

	records, err := a2.ReadLast(1)
	if err != nil {
		t.Fatalf("read last: %v", err)
	}
	got, err := types.DecodeRollup(records[0])
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.StartTS != 99999 {
		t.Errorf("tail start_ts = %d, want 99999", got.StartTS)
	}

	st, _ = os.Stat(path)
	if st.Size() != 4*types.RollupSize {
		t.Errorf("size = %d, want %d", st.Size(), 4*types.RollupSize)
	}
}

func TestOverwriteSingleton(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lifetime.bin")
	a := NewAppend(path, types.LifetimeStatsSize, false)
	defer a.Close()

	if rec, err := a.ReadFirst(); err != nil || rec != nil {
		t.Fatalf("empty store: rec=%v err=%v, want nil/nil", rec, err)
	}

	stats := types.NewLifetimeStats(500)
	for i := uint64(1); i <= 3; i++ {
		stats.TotalSamples = i * 100
		if err := a.Overwrite(stats.Encode()); err != nil {
			t.Fatalf("overwrite %d: %v", i, err)
		}

		st, err := os.Stat(path)
		if err != nil {
			t.Fatalf("stat: %v", err)
		}
		if st.Size() != types.LifetimeStatsSize {
			t.Fatalf("size = %d, want exactly one record", st.Size())
		}
	}

	rec, err := a.ReadFirst()
	if err != nil {
		t.Fatalf("read first: %v", err)
	}
	got, err := types.DecodeLifetimeStats(rec)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.TotalSamples != 300 || got.BootTime != 500 {
		t.Errorf("got samples=%d boot=%d, want 300/500", got.TotalSamples, got.BootTime)
	}
}
