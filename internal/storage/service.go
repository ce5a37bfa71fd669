// Package storage is the tiered sample storage engine. It owns the
// per-tier files under the data directory, runs the rollup cascade on a
// single writer goroutine, and serves live queries from in-memory history.
package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/trevorflahardy/baro/internal/diag"
	"github.com/trevorflahardy/baro/internal/logging"
	"github.com/trevorflahardy/baro/internal/storage/accumulator"
	"github.com/trevorflahardy/baro/internal/storage/config"
	"github.com/trevorflahardy/baro/internal/storage/fanout"
	"github.com/trevorflahardy/baro/internal/storage/tierfile"
	"github.com/trevorflahardy/baro/internal/storage/types"
)

// lockFilename guards the data directory against a second daemon.
const lockFilename = "baro.lock"

// latencyReportInterval is how often write latency percentiles are logged.
const latencyReportInterval = 10 * time.Minute

// ErrNotRunning is returned for operations on a stopped service.
var ErrNotRunning = errors.New("storage service not running")

// ErrQueueFull is returned by TryIngest when the writer is behind.
var ErrQueueFull = errors.New("ingest queue full")

// Service is the storage engine. A single writer goroutine owns all file
// handles; producers hand samples over a bounded channel.
type Service struct {
	config *config.Config
	log    *slog.Logger

	stores  accumulator.Stores
	acc     *accumulator.Accumulator
	events  *fanout.Fanout
	latency *diag.LatencyTracker

	flock *os.File

	ingest  chan types.RawSample
	running atomic.Bool
	stopped atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	startTime time.Time
	rejected  atomic.Int64
}

// New creates a storage service. Nothing touches the medium until Start.
func New(cfg *config.Config) (*Service, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	log := logging.Component("storage")

	stores := accumulator.Stores{
		Raw:      tierfile.NewRing(filepath.Join(cfg.DataDir, types.TierRaw.Filename()), cfg.Storage.RingCapacity, cfg.Storage.Fsync),
		FiveMin:  tierfile.NewAppend(filepath.Join(cfg.DataDir, types.Tier5Min.Filename()), types.RollupSize, cfg.Storage.Fsync),
		Hourly:   tierfile.NewAppend(filepath.Join(cfg.DataDir, types.TierHourly.Filename()), types.RollupSize, cfg.Storage.Fsync),
		Daily:    tierfile.NewAppend(filepath.Join(cfg.DataDir, types.TierDaily.Filename()), types.RollupSize, cfg.Storage.Fsync),
		Lifetime: tierfile.NewAppend(filepath.Join(cfg.DataDir, types.TierLifetime.Filename()), types.LifetimeStatsSize, cfg.Storage.Fsync),
	}

	events := fanout.New(cfg.Events.QueueSize)
	latency := diag.NewLatencyTracker()

	acc := accumulator.New(accumulator.Options{
		Stores:             stores,
		Events:             events,
		Latency:            latency,
		LifetimeFlushEvery: cfg.Storage.LifetimeFlushEvery,
		IOTimeout:          cfg.Storage.IOTimeout,
		RawHistory:         cfg.History.Raw,
		FiveMinHistory:     cfg.History.FiveMin,
		HourlyHistory:      cfg.History.Hourly,
		DailyHistory:       cfg.History.Daily,
	})

	ctx, cancel := context.WithCancel(context.Background())

	return &Service{
		config:  cfg,
		log:     log,
		stores:  stores,
		acc:     acc,
		events:  events,
		latency: latency,
		ingest:  make(chan types.RawSample, cfg.Storage.IngestQueue),
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// Start locks the data directory, restores state from the medium, and
// starts the writer. A missing medium does not fail startup; the engine
// begins degraded and persists once the medium appears.
//
// A stopped service cannot be started again; create a new one.
func (s *Service) Start() error {
	if !s.running.CompareAndSwap(false, true) {
		return fmt.Errorf("service already running")
	}
	if s.stopped.Load() {
		s.running.Store(false)
		return fmt.Errorf("service already stopped, create a new instance")
	}

	if err := s.config.EnsureDataDir(); err != nil {
		s.log.Warn("data dir unavailable, starting degraded", "dir", s.config.DataDir, "error", err)
	} else {
		flock, err := acquireLock(filepath.Join(s.config.DataDir, lockFilename))
		if err != nil {
			s.running.Store(false)
			return err
		}
		s.flock = flock
	}

	s.startTime = time.Now()
	s.acc.Load(uint32(s.startTime.Unix()))

	s.wg.Add(2)
	go s.writer()
	go s.latencyReporter()

	s.log.Info("storage started",
		"data_dir", s.config.DataDir,
		"ring_capacity", s.config.Storage.RingCapacity,
		"total_samples", s.acc.LifetimeSnapshot().TotalSamples,
	)
	return nil
}

// writer is the only goroutine that touches the tier files.
func (s *Service) writer() {
	defer s.wg.Done()

	for {
		select {
		case sample := <-s.ingest:
			s.acc.Ingest(sample)
		case <-s.ctx.Done():
			// Drain what producers already handed over, then persist the
			// lifetime record so a clean shutdown loses nothing.
			for {
				select {
				case sample := <-s.ingest:
					s.acc.Ingest(sample)
				default:
					s.acc.FlushLifetime()
					return
				}
			}
		}
	}
}

// latencyReporter logs write latency percentiles periodically.
func (s *Service) latencyReporter() {
	defer s.wg.Done()

	ticker := time.NewTicker(latencyReportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.latency.Log(s.log, "medium_write")
		case <-s.ctx.Done():
			return
		}
	}
}

// Stop shuts the writer down, flushes the lifetime record, and releases
// the data directory.
func (s *Service) Stop() error {
	if !s.running.CompareAndSwap(true, false) {
		return ErrNotRunning
	}
	s.stopped.Store(true)

	s.cancel()
	s.wg.Wait()

	s.stores.Raw.Close()
	s.stores.FiveMin.Close()
	s.stores.Hourly.Close()
	s.stores.Daily.Close()
	s.stores.Lifetime.Close()

	if s.flock != nil {
		if err := releaseLock(s.flock); err != nil {
			s.log.Warn("lock release failed", "error", err)
		}
		s.flock = nil
	}

	s.log.Info("storage stopped", "uptime", time.Since(s.startTime).Round(time.Second))
	return nil
}

// Ingest hands a sample to the writer, blocking while the queue is full.
func (s *Service) Ingest(sample types.RawSample) error {
	if !s.running.Load() {
		return ErrNotRunning
	}
	select {
	case s.ingest <- sample:
		return nil
	case <-s.ctx.Done():
		return ErrNotRunning
	}
}

// TryIngest hands a sample to the writer without blocking. It is meant
// for producers that must not stall, such as an interrupt-driven sampler;
// when the writer is behind the sample is dropped with ErrQueueFull and
// counted in Stats().Rejected. The ticker-paced loop in barod uses the
// blocking Ingest instead.
func (s *Service) TryIngest(sample types.RawSample) error {
	if !s.running.Load() {
		return ErrNotRunning
	}
	select {
	case s.ingest <- sample:
		return nil
	default:
		s.rejected.Add(1)
		return ErrQueueFull
	}
}

// Subscribe registers a consumer of persistence events.
func (s *Service) Subscribe(name string) *fanout.Subscriber {
	return s.events.Subscribe(name)
}

// LastRaw returns up to n most recent raw samples, oldest first.
func (s *Service) LastRaw(n int) []types.RawSample {
	return s.acc.LastRaw(n)
}

// LastRollups returns up to n most recent rollups for the tier, oldest
// first.
func (s *Service) LastRollups(tier types.Tier, n int) []types.Rollup {
	return s.acc.LastRollups(tier, n)
}

// LifetimeSnapshot returns the current lifetime statistics.
func (s *Service) LifetimeSnapshot() types.LifetimeStats {
	return s.acc.LifetimeSnapshot()
}

// IsRunning reports whether the service has been started.
func (s *Service) IsRunning() bool {
	return s.running.Load()
}

// Config returns the service configuration.
func (s *Service) Config() *config.Config {
	return s.config
}

// ServiceStats aggregates counters from every storage component.
type ServiceStats struct {
	Uptime      time.Duration
	QueueDepth  int
	Rejected    int64
	Accumulator accumulator.Stats
	Ring        tierfile.RingStats
	Latency     diag.Snapshot
}

// Stats returns a point-in-time view of the engine.
func (s *Service) Stats() ServiceStats {
	return ServiceStats{
		Uptime:      time.Since(s.startTime),
		QueueDepth:  len(s.ingest),
		Rejected:    s.rejected.Load(),
		Accumulator: s.acc.Stats(),
		Ring:        s.stores.Raw.Stats(),
		Latency:     s.latency.Snapshot(),
	}
}
