// barod is the environmental sampling daemon. It reads the sensor on a
// fixed interval and feeds the tiered storage engine on the SD card.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/trevorflahardy/baro/internal/logging"
	"github.com/trevorflahardy/baro/internal/sensor"
	"github.com/trevorflahardy/baro/internal/storage"
	"github.com/trevorflahardy/baro/internal/storage/config"
	"github.com/trevorflahardy/baro/internal/storage/types"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	f := flag.NewFlagSet("barod", flag.ExitOnError)
	cfgPath := f.String("config", "", "config file path (YAML)")
	dataDir := f.String("data-dir", "", "data directory (overrides config)")
	interval := f.Duration("interval", 0, "sampling interval (overrides config)")
	seed := f.Int64("seed", time.Now().UnixNano(), "simulated sensor seed")
	showVersion := f.Bool("version", false, "print version and exit")
	f.Parse(os.Args[1:])

	if *showVersion {
		fmt.Println("barod", Version)
		return
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	// CLI overrides
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}
	if *interval > 0 {
		cfg.Sampling.Interval = *interval
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	level, err := cfg.SlogLevel()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	logging.Init(level, cfg.Log.JSON)
	log := logging.Component("barod")
	log.Info("starting", "version", Version, "data_dir", cfg.DataDir, "interval", cfg.Sampling.Interval)

	svc, err := storage.New(cfg)
	if err != nil {
		log.Error("create storage", "error", err)
		os.Exit(1)
	}
	if err := svc.Start(); err != nil {
		log.Error("start storage", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	src := sensor.NewSim(*seed)
	g.Go(func() error {
		return sensor.Run(ctx, cfg.Sampling.Interval, src, svc.Ingest)
	})

	// Watch the persistence stream so degraded operation is visible.
	sub := svc.Subscribe("barod")
	g.Go(func() error {
		defer sub.Close()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case ev, ok := <-sub.Events():
				if !ok {
					return nil
				}
				switch {
				case !ev.Persisted:
					log.Warn("record not persisted", "tier", ev.Tier.String(), "timestamp", ev.Timestamp)
				case ev.Tier != types.TierRaw:
					log.Debug("record persisted", "tier", ev.Tier.String(), "window", ev.Timestamp, "count", ev.Count)
				}
			}
		}
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("runtime failure", "error", err)
	}

	log.Info("shutting down")
	if err := svc.Stop(); err != nil {
		log.Warn("storage stop", "error", err)
	}
}
