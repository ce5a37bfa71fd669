package sensor

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/trevorflahardy/baro/internal/logging"
	"github.com/trevorflahardy/baro/internal/storage/types"
)

// Source produces one multi-channel sample per call.
type Source interface {
	Read(ctx context.Context) (types.RawSample, error)
}

// Sim is a random-walk sample source for development and tests. Each
// channel drifts around a plausible indoor baseline; channels beyond the
// registry stay sentinel, like hardware that is not populated.
type Sim struct {
	mu     sync.Mutex
	rng    *rand.Rand
	values [channelCount]int32
	now    func() time.Time
}

// Baselines and per-step drift bounds, in storage units.
var simProfile = [channelCount]struct {
	base int32
	step int32
}{
	ChannelPressure:    {101_325, 20},    // Pa
	ChannelTemperature: {21_500, 100},    // m°C
	ChannelHumidity:    {50_000, 300},    // m%RH
	ChannelCO2:         {600, 15},        // ppm
	ChannelIlluminance: {300_000, 5_000}, // mlx
}

// NewSim creates a simulated source. The seed makes runs reproducible.
func NewSim(seed int64) *Sim {
	s := &Sim{
		rng: rand.New(rand.NewSource(seed)),
		now: time.Now,
	}
	for c, p := range simProfile {
		s.values[c] = p.base
	}
	return s
}

// Read advances the random walk and returns the current sample.
func (s *Sim) Read(ctx context.Context) (types.RawSample, error) {
	if err := ctx.Err(); err != nil {
		return types.RawSample{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var values [types.MaxChannels]int32
	for i := range values {
		values[i] = types.SentinelNoReading
	}

	for c, p := range simProfile {
		drift := int32(s.rng.Int63n(int64(2*p.step+1))) - p.step
		v := s.values[c] + drift
		// Pull gently back toward the baseline so the walk stays bounded.
		v += (p.base - v) / 100
		s.values[c] = v
		values[c] = v
	}

	return types.NewRawSample(uint32(s.now().Unix()), values), nil
}

// Run reads the source on the given interval and hands each sample to
// sink until the context is cancelled. Read failures and sink rejections
// are logged and skipped; the loop itself never stops on them.
func Run(ctx context.Context, interval time.Duration, src Source, sink func(types.RawSample) error) error {
	log := logging.Component("sensor")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			sample, err := src.Read(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				log.Warn("sensor read failed", "error", err)
				continue
			}
			if err := sink(sample); err != nil {
				log.Warn("sample dropped", "timestamp", sample.Timestamp, "error", err)
			}
		}
	}
}
