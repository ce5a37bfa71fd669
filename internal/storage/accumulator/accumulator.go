// Package accumulator drives the tier cascade: every raw sample is
// persisted, folded into the lifetime statistics, and counted toward the
// next 5-minute rollup; completed rollups cascade upward into the hourly
// and daily tiers.
//
// A single goroutine owns Ingest; the query methods are safe to call from
// anywhere. Persistence failures never stop the cascade: the in-memory
// histories keep absorbing data and the failed write is reported through
// the event stream with Persisted=false.
package accumulator

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/trevorflahardy/baro/internal/diag"
	"github.com/trevorflahardy/baro/internal/logging"
	"github.com/trevorflahardy/baro/internal/storage/fanout"
	"github.com/trevorflahardy/baro/internal/storage/rollup"
	"github.com/trevorflahardy/baro/internal/storage/tierfile"
	"github.com/trevorflahardy/baro/internal/storage/types"
)

// ErrWriteTimeout reports a medium write that exceeded the I/O deadline.
var ErrWriteTimeout = errors.New("storage write timed out")

// Default in-memory history depths per tier.
const (
	DefaultRawHistory     = 360  // 1h of 10s samples
	DefaultFiveMinHistory = 2016 // 7d
	DefaultHourlyHistory  = 720  // 30d
	DefaultDailyHistory   = 365  // 1y
)

// Stores bundles the per-tier file stores the accumulator writes to.
type Stores struct {
	Raw      *tierfile.Ring
	FiveMin  *tierfile.Append
	Hourly   *tierfile.Append
	Daily    *tierfile.Append
	Lifetime *tierfile.Append
}

// Options configures an Accumulator.
type Options struct {
	Stores  Stores
	Events  *fanout.Fanout
	Latency *diag.LatencyTracker
	Log     *slog.Logger

	// LifetimeFlushEvery is the number of samples between lifetime
	// persists. Zero means the default of one flush per 5-minute window.
	LifetimeFlushEvery int

	// IOTimeout bounds a single medium write. Zero disables the bound.
	IOTimeout time.Duration

	RawHistory     int
	FiveMinHistory int
	HourlyHistory  int
	DailyHistory   int
}

// Stats holds accumulator counters.
type Stats struct {
	SamplesIn       int64
	FiveMinRollups  int64
	HourlyRollups   int64
	DailyRollups    int64
	LifetimeFlushes int64
	DegradedWrites  int64
	WriteRetries    int64
}

// Accumulator owns the cascade state. Not safe for concurrent Ingest.
type Accumulator struct {
	stores  Stores
	events  *fanout.Fanout
	latency *diag.LatencyTracker
	log     *slog.Logger

	lifetimeFlushEvery int
	ioTimeout          time.Duration

	mu         sync.Mutex // Guards lifetime, sinceFlush, stats.
	lifetime   types.LifetimeStats
	sinceFlush int
	stats      Stats

	fiveMinBuf []types.RawSample
	hourlyBuf  []types.Rollup
	dailyBuf   []types.Rollup

	histRaw     *History[types.RawSample]
	histFiveMin *History[types.Rollup]
	histHourly  *History[types.Rollup]
	histDaily   *History[types.Rollup]
}

// New creates an accumulator over the given stores.
func New(opts Options) *Accumulator {
	if opts.LifetimeFlushEvery <= 0 {
		opts.LifetimeFlushEvery = types.Tier5Min.SourceCount()
	}
	if opts.RawHistory <= 0 {
		opts.RawHistory = DefaultRawHistory
	}
	if opts.FiveMinHistory <= 0 {
		opts.FiveMinHistory = DefaultFiveMinHistory
	}
	if opts.HourlyHistory <= 0 {
		opts.HourlyHistory = DefaultHourlyHistory
	}
	if opts.DailyHistory <= 0 {
		opts.DailyHistory = DefaultDailyHistory
	}
	log := opts.Log
	if log == nil {
		log = logging.Component("accumulator")
	}

	return &Accumulator{
		stores:             opts.Stores,
		events:             opts.Events,
		latency:            opts.Latency,
		log:                log,
		lifetimeFlushEvery: opts.LifetimeFlushEvery,
		ioTimeout:          opts.IOTimeout,
		fiveMinBuf:         make([]types.RawSample, 0, types.Tier5Min.SourceCount()),
		hourlyBuf:          make([]types.Rollup, 0, types.TierHourly.SourceCount()),
		dailyBuf:           make([]types.Rollup, 0, types.TierDaily.SourceCount()),
		histRaw:            NewHistory[types.RawSample](opts.RawHistory),
		histFiveMin:        NewHistory[types.Rollup](opts.FiveMinHistory),
		histHourly:         NewHistory[types.Rollup](opts.HourlyHistory),
		histDaily:          NewHistory[types.Rollup](opts.DailyHistory),
	}
}

// Load restores state from the medium: the persisted lifetime record and
// the tail of each tier file for the query histories. A missing or failing
// medium is logged and tolerated; the accumulator starts fresh in memory.
// bootTime stamps the lifetime record only on a true first boot; an
// existing record keeps its original boot time.
func (a *Accumulator) Load(bootTime uint32) {
	a.loadLifetime(bootTime)
	a.loadRawHistory()
	a.loadRollupHistory(types.Tier5Min, a.stores.FiveMin, a.histFiveMin)
	a.loadRollupHistory(types.TierHourly, a.stores.Hourly, a.histHourly)
	a.loadRollupHistory(types.TierDaily, a.stores.Daily, a.histDaily)
}

func (a *Accumulator) loadLifetime(bootTime uint32) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.lifetime = types.NewLifetimeStats(bootTime)

	rec, err := a.stores.Lifetime.ReadFirst()
	if err != nil {
		a.log.Warn("lifetime record unreadable, starting fresh", "error", err)
		return
	}
	if rec == nil {
		a.log.Info("no lifetime record, first boot")
		return
	}

	stats, err := types.DecodeLifetimeStats(rec)
	if err != nil {
		a.log.Warn("lifetime record corrupt, starting fresh", "error", err)
		return
	}

	// BootTime marks the first boot ever; only a fresh record stamps it.
	a.lifetime = stats
	a.log.Info("lifetime statistics restored",
		"total_samples", stats.TotalSamples, "boot_time", stats.BootTime)
}

func (a *Accumulator) loadRawHistory() {
	samples, err := a.stores.Raw.ReadLast(a.histRaw.Cap())
	if err != nil {
		a.log.Warn("raw history unavailable", "error", err)
		return
	}
	for _, s := range samples {
		a.histRaw.Push(s)
	}
}

func (a *Accumulator) loadRollupHistory(tier types.Tier, store *tierfile.Append, hist *History[types.Rollup]) {
	records, err := store.ReadLast(hist.Cap())
	if err != nil {
		a.log.Warn("rollup history unavailable", "tier", tier.String(), "error", err)
		return
	}
	for _, rec := range records {
		r, err := types.DecodeRollup(rec)
		if err != nil {
			a.log.Warn("skipping corrupt rollup record", "tier", tier.String(), "error", err)
			continue
		}
		hist.Push(r)
	}
}

// Ingest runs the full cascade for one sample. Must be called from a
// single goroutine.
func (a *Accumulator) Ingest(sample types.RawSample) {
	a.mu.Lock()
	a.stats.SamplesIn++
	a.mu.Unlock()

	// Raw tier first: the sample must hit the medium before any derived
	// record so a crash never leaves a rollup ahead of its sources.
	persisted := a.persist("raw", func() error {
		return a.stores.Raw.Write(sample)
	})
	a.histRaw.Push(sample)
	a.publish(fanout.Event{
		Tier:      types.TierRaw,
		Timestamp: sample.Timestamp,
		Count:     1,
		Persisted: persisted,
	})

	a.updateLifetime(sample)
	a.foldSample(sample)
}

// updateLifetime folds the sample into the lifetime statistics and
// persists them on the configured cadence.
func (a *Accumulator) updateLifetime(sample types.RawSample) {
	a.mu.Lock()
	a.lifetime.Update(sample)
	a.sinceFlush++
	flush := a.sinceFlush >= a.lifetimeFlushEvery
	if flush {
		a.sinceFlush = 0
	}
	snapshot := a.lifetime
	a.mu.Unlock()

	if !flush {
		return
	}

	persisted := a.persist("lifetime", func() error {
		return a.stores.Lifetime.Overwrite(snapshot.Encode())
	})

	a.mu.Lock()
	a.stats.LifetimeFlushes++
	a.mu.Unlock()

	a.publish(fanout.Event{
		Tier:      types.TierLifetime,
		Timestamp: sample.Timestamp,
		Count:     1,
		Persisted: persisted,
	})
}

// foldSample adds the sample to the 5-minute window and cascades any
// completed rollups upward.
func (a *Accumulator) foldSample(sample types.RawSample) {
	a.fiveMinBuf = append(a.fiveMinBuf, sample)
	if len(a.fiveMinBuf) < types.Tier5Min.SourceCount() {
		return
	}

	windowStart := types.Tier5Min.WindowStart(a.fiveMinBuf[0].Timestamp)
	r, ok := rollup.FromSamples(windowStart, a.fiveMinBuf)
	a.fiveMinBuf = a.fiveMinBuf[:0]
	if !ok {
		return
	}

	a.emitRollup(types.Tier5Min, a.stores.FiveMin, a.histFiveMin, r, types.Tier5Min.SourceCount())
	a.mu.Lock()
	a.stats.FiveMinRollups++
	a.mu.Unlock()

	a.foldRollup(r)
}

// foldRollup cascades a completed 5-minute rollup into the hourly window
// and, on hour completion, into the daily window.
func (a *Accumulator) foldRollup(r types.Rollup) {
	a.hourlyBuf = append(a.hourlyBuf, r)
	if len(a.hourlyBuf) < types.TierHourly.SourceCount() {
		return
	}

	windowStart := types.TierHourly.WindowStart(a.hourlyBuf[0].StartTS)
	hr, ok := rollup.FromRollups(windowStart, a.hourlyBuf)
	a.hourlyBuf = a.hourlyBuf[:0]
	if !ok {
		return
	}

	a.emitRollup(types.TierHourly, a.stores.Hourly, a.histHourly, hr, types.TierHourly.SourceCount())
	a.mu.Lock()
	a.stats.HourlyRollups++
	a.mu.Unlock()

	a.dailyBuf = append(a.dailyBuf, hr)
	if len(a.dailyBuf) < types.TierDaily.SourceCount() {
		return
	}

	dayStart := types.TierDaily.WindowStart(a.dailyBuf[0].StartTS)
	dr, ok := rollup.FromRollups(dayStart, a.dailyBuf)
	a.dailyBuf = a.dailyBuf[:0]
	if !ok {
		return
	}

	a.emitRollup(types.TierDaily, a.stores.Daily, a.histDaily, dr, types.TierDaily.SourceCount())
	a.mu.Lock()
	a.stats.DailyRollups++
	a.mu.Unlock()
}

// emitRollup persists one rollup, records it in the tier history, and
// publishes the event.
func (a *Accumulator) emitRollup(tier types.Tier, store *tierfile.Append, hist *History[types.Rollup], r types.Rollup, count int) {
	persisted := a.persist(tier.String(), func() error {
		return store.Append(r.Encode())
	})
	hist.Push(r)
	a.publish(fanout.Event{
		Tier:      tier,
		Timestamp: r.StartTS,
		Count:     count,
		Persisted: persisted,
	})
}

// persist runs one medium write with the I/O bound and a single retry.
// Returns false when the write ultimately failed; the caller carries on.
func (a *Accumulator) persist(op string, fn func() error) bool {
	start := time.Now()
	err := a.runWithTimeout(fn)
	if err != nil && !errors.Is(err, ErrWriteTimeout) {
		// Transient medium faults often clear on the reopened handle.
		a.mu.Lock()
		a.stats.WriteRetries++
		a.mu.Unlock()
		err = a.runWithTimeout(fn)
	}
	if a.latency != nil {
		a.latency.Observe(time.Since(start))
	}

	if err != nil {
		a.mu.Lock()
		a.stats.DegradedWrites++
		a.mu.Unlock()
		a.log.Warn("write failed, continuing in memory", "op", op, "error", err)
		return false
	}
	return true
}

// runWithTimeout bounds a write. File I/O cannot be cancelled, so a timed
// out write finishes in the background on the store's own lock; the caller
// just stops waiting for it.
func (a *Accumulator) runWithTimeout(fn func() error) error {
	if a.ioTimeout <= 0 {
		return fn()
	}

	done := make(chan error, 1)
	go func() { done <- fn() }()

	timer := time.NewTimer(a.ioTimeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return ErrWriteTimeout
	}
}

func (a *Accumulator) publish(ev fanout.Event) {
	if a.events != nil {
		a.events.Publish(ev)
	}
}

// FlushLifetime persists the lifetime statistics immediately, regardless
// of the cadence counter. Called on clean shutdown.
func (a *Accumulator) FlushLifetime() bool {
	a.mu.Lock()
	snapshot := a.lifetime
	a.sinceFlush = 0
	a.mu.Unlock()

	ok := a.persist("lifetime", func() error {
		return a.stores.Lifetime.Overwrite(snapshot.Encode())
	})
	if ok {
		a.mu.Lock()
		a.stats.LifetimeFlushes++
		a.mu.Unlock()
	}
	return ok
}

// LastRaw returns up to n most recent raw samples, oldest first.
func (a *Accumulator) LastRaw(n int) []types.RawSample {
	return a.histRaw.Last(n)
}

// LastRollups returns up to n most recent rollups for a tier, oldest
// first. The raw and lifetime tiers have no rollups.
func (a *Accumulator) LastRollups(tier types.Tier, n int) []types.Rollup {
	switch tier {
	case types.Tier5Min:
		return a.histFiveMin.Last(n)
	case types.TierHourly:
		return a.histHourly.Last(n)
	case types.TierDaily:
		return a.histDaily.Last(n)
	default:
		return nil
	}
}

// LifetimeSnapshot returns a copy of the current lifetime statistics.
func (a *Accumulator) LifetimeSnapshot() types.LifetimeStats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lifetime
}

// PendingSamples returns how many samples are waiting in the current
// 5-minute window. Must be called from the ingest goroutine.
func (a *Accumulator) PendingSamples() int {
	return len(a.fiveMinBuf)
}

// Stats returns a copy of the accumulator counters.
func (a *Accumulator) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stats
}
