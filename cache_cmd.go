package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/kbchat/kbchat/internal/cache"
)

var (
	cacheCmd = &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the synthesized clip cache",
		Args:  cobra.NoArgs,
	}

	cacheStatsCmd = &cobra.Command{
		Use:   "stats",
		Short: "Show clip cache usage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close() //nolint:errcheck

			printCacheStats(cmd, store.Stats())
			return nil
		},
	}

	cacheClearCmd = &cobra.Command{
		Use:   "clear",
		Short: "Delete every cached clip",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close() //nolint:errcheck

			before := store.Stats()
			if err := store.Clear(); err != nil {
				return fmt.Errorf("unable to clear cache: %w", err)
			}

			freed := before.Memory.Size
			if before.Disk != nil {
				freed += before.Disk.Size
			}
			cmd.Printf("Cleared %s from %s\n", humanize.Bytes(uint64(freed)), store.Dir()) //nolint:gosec
			return nil
		},
	}
)

func openStore() (*cache.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	// No janitor for a one-shot command
	c := cfg.Cache.Config
	c.SweepInterval = 0

	store, err := cache.Open(c, nil)
	if err != nil {
		return nil, fmt.Errorf("unable to open cache: %w", err)
	}
	return store, nil
}

func printCacheStats(cmd *cobra.Command, s cache.Summary) {
	tier := func(st cache.Stats) {
		cmd.Printf("%-7s %4d clips  %9s of %-9s  hit rate %5.1f%%  evictions %s\n",
			st.Level,
			st.Items,
			humanize.Bytes(uint64(st.Size)),     //nolint:gosec
			humanize.Bytes(uint64(st.Capacity)), //nolint:gosec
			st.HitRate()*100,
			humanize.Comma(st.Evictions),
		)
	}

	tier(s.Memory)
	if s.Disk != nil {
		tier(*s.Disk)
	} else {
		cmd.Println("disk    disabled")
	}

	if !s.LastSweep.IsZero() {
		cmd.Printf("last sweep %s\n", humanize.Time(s.LastSweep))
	}
}
