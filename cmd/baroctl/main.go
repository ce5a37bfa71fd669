// baroctl inspects the tier files in a baro data directory. Opening a
// file runs the same recovery as the daemon, so point it at a stopped
// daemon's directory or a copy of the card.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/trevorflahardy/baro/internal/sensor"
	"github.com/trevorflahardy/baro/internal/storage/tierfile"
	"github.com/trevorflahardy/baro/internal/storage/types"
)

func main() {
	f := flag.NewFlagSet("baroctl", flag.ExitOnError)
	dataDir := f.String("data-dir", "/var/lib/baro", "baro data directory")
	tierName := f.String("tier", "all", "tier to show: raw, 5min, hourly, daily, lifetime, all")
	count := f.IntP("count", "n", 10, "records to show per tier")
	f.Parse(os.Args[1:])

	var tiers []types.Tier
	if *tierName == "all" {
		tiers = types.AllTiers()
	} else {
		tier, err := types.ParseTier(*tierName)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		tiers = []types.Tier{tier}
	}

	for _, tier := range tiers {
		if err := show(*dataDir, tier, *count); err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", tier, err)
		}
	}
}

func show(dataDir string, tier types.Tier, n int) error {
	path := filepath.Join(dataDir, tier.Filename())

	switch tier {
	case types.TierRaw:
		return showRaw(path, n)
	case types.TierLifetime:
		return showLifetime(path)
	default:
		return showRollups(path, tier, n)
	}
}

func showRaw(path string, n int) error {
	// Capacity only matters for writes; reads just need the slot scan.
	ring := tierfile.NewRing(path, 1<<20, false)
	defer ring.Close()

	samples, err := ring.ReadLast(n)
	if err != nil {
		return err
	}

	fmt.Printf("== raw (%d of %d records) ==\n", len(samples), ring.Count())
	for _, s := range samples {
		fmt.Printf("%s", formatTS(s.Timestamp))
		for _, c := range sensor.Active() {
			v, ok := c.Value(s)
			if !ok {
				continue
			}
			fmt.Printf("  %s=%d%s", c.Name(), v, c.Unit())
			if q, rated := sensor.Assess(c, v); rated {
				fmt.Printf("(%s)", q)
			}
		}
		fmt.Println()
	}
	return nil
}

func showRollups(path string, tier types.Tier, n int) error {
	store := tierfile.NewAppend(path, types.RollupSize, false)
	defer store.Close()

	records, err := store.ReadLast(n)
	if err != nil {
		return err
	}

	fmt.Printf("== %s (%d of %d records) ==\n", tier, len(records), store.Count())
	for _, rec := range records {
		r, err := types.DecodeRollup(rec)
		if err != nil {
			fmt.Printf("  <corrupt record: %v>\n", err)
			continue
		}
		fmt.Printf("%s window\n", formatTS(r.StartTS))
		for _, c := range sensor.Active() {
			i := c.Index()
			if r.Avg[i] == types.SentinelNoReading {
				continue
			}
			fmt.Printf("  %-12s avg=%d min=%d max=%d %s\n",
				c.Name(), r.Avg[i], r.Min[i], r.Max[i], c.Unit())
		}
	}
	return nil
}

func showLifetime(path string) error {
	store := tierfile.NewAppend(path, types.LifetimeStatsSize, false)
	defer store.Close()

	rec, err := store.ReadFirst()
	if err != nil {
		return err
	}
	if rec == nil {
		fmt.Println("== lifetime ==\n(no record)")
		return nil
	}

	lt, err := types.DecodeLifetimeStats(rec)
	if err != nil {
		return err
	}

	fmt.Println("== lifetime ==")
	fmt.Printf("boot time:     %s\n", formatTS(lt.BootTime))
	fmt.Printf("total samples: %d\n", lt.TotalSamples)
	for _, c := range sensor.Active() {
		i := c.Index()
		if !lt.HasReading(i) {
			continue
		}
		avg, _ := lt.Average(i)
		fmt.Printf("%-12s avg=%d min=%d max=%d %s\n",
			c.Name(), avg, lt.Min[i], lt.Max[i], c.Unit())
	}
	return nil
}

func formatTS(ts uint32) string {
	return time.Unix(int64(ts), 0).UTC().Format(time.RFC3339)
}
