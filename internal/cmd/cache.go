package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/Iron-Ham/devcrew/internal/analyzer"
	"github.com/Iron-Ham/devcrew/internal/cache"
	"github.com/Iron-Ham/devcrew/internal/errhandler"
	"github.com/Iron-Ham/devcrew/internal/ui"
	"github.com/Iron-Ham/devcrew/internal/util"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and maintain the analysis cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache size and contents",
	Args:  cobra.NoArgs,
	RunE:  runCacheStats,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every cached entry",
	Args:  cobra.NoArgs,
	RunE:  runCacheClear,
}

var cachePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove entries older than the cache TTL",
	Long: `Prune removes entries older than --max-age (default: cache.ttl_days).
Expired entries are also treated as misses on lookup, so pruning only
reclaims space.`,
	Args: cobra.NoArgs,
	RunE: runCachePrune,
}

var cacheWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the project and keep the cached analysis current",
	Long: `Watch keeps the project hash in memory and invalidates it whenever a file
under the project root changes. With --warm, the analysis is re-run after
each change so the next lookup is a cache hit.

Press Ctrl+C to stop.`,
	Args: cobra.NoArgs,
	RunE: runCacheWatch,
}

var (
	cacheStatsJSON bool
	cachePruneAge  time.Duration
	cacheWatchWarm bool
)

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheStatsCmd, cacheClearCmd, cachePruneCmd, cacheWatchCmd)

	cacheStatsCmd.Flags().BoolVar(&cacheStatsJSON, "json", false, "Print stats as JSON")
	cachePruneCmd.Flags().DurationVar(&cachePruneAge, "max-age", 0, "Remove entries older than this (default: cache TTL)")
	cacheWatchCmd.Flags().BoolVar(&cacheWatchWarm, "warm", false, "Re-run the analysis after every change")
}

func runCacheStats(cmd *cobra.Command, args []string) error {
	a, err := appFor(cmd)
	if err != nil {
		return err
	}
	c, err := a.cache()
	if err != nil {
		return err
	}
	stats, err := c.Stats()
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if cacheStatsJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	}

	ui.Header(w, "Analysis cache", a.cfg.CacheDir(a.root))
	fmt.Fprintln(w)
	ui.KV(w, "Backend", stats.Backend)
	ui.KV(w, "Entries", stats.Entries)
	ui.KV(w, "Size", util.FormatBytes(stats.SizeBytes))
	ui.KV(w, "TTL", c.TTL())
	if !stats.Oldest.IsZero() {
		now := time.Now()
		ui.KV(w, "Oldest", util.FormatAge(now.Sub(stats.Oldest)))
		ui.KV(w, "Newest", util.FormatAge(now.Sub(stats.Newest)))
	}
	if len(stats.ByOperation) == 0 {
		return nil
	}

	fmt.Fprintln(w)
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Operation", "Entries"})
	table.SetAutoFormatHeaders(false)
	table.SetBorder(false)
	for _, op := range slices.Sorted(maps.Keys(stats.ByOperation)) {
		table.Append([]string{op, fmt.Sprintf("%d", stats.ByOperation[op])})
	}
	table.Render()
	return nil
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	a, err := appFor(cmd)
	if err != nil {
		return err
	}
	c, err := a.cache()
	if err != nil {
		return err
	}
	err = a.guard(cmd.Context(), "cache clear", func(context.Context) error {
		return c.Clear()
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), ui.Success.Render("Cache cleared."))
	return nil
}

func runCachePrune(cmd *cobra.Command, args []string) error {
	a, err := appFor(cmd)
	if err != nil {
		return err
	}
	c, err := a.cache()
	if err != nil {
		return err
	}
	maxAge := cachePruneAge
	if maxAge <= 0 {
		maxAge = c.TTL()
	}

	var removed int
	err = a.guard(cmd.Context(), "cache prune", func(ctx context.Context) error {
		var perr error
		removed, perr = c.CleanupExpired(ctx, maxAge)
		return perr
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %d cache %s older than %s.\n", removed, plural(removed, "entry", "entries"), maxAge)
	return nil
}

func runCacheWatch(cmd *cobra.Command, args []string) error {
	a, err := appFor(cmd)
	if err != nil {
		return err
	}
	c, err := a.cache()
	if err != nil {
		return err
	}

	watcher, err := cache.NewWatcher(c)
	if err != nil {
		return err
	}
	defer watcher.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	w := cmd.OutOrStdout()
	ca := analyzer.NewCachedAnalyzer(analyzer.StaticAnalyzer{}, c, a.logger)
	warm := func() {
		if !cacheWatchWarm {
			return
		}
		if _, err := ca.Analyze(ctx, analyzer.Options{}); err != nil {
			a.errs.Handle(ctx, err, errhandler.Options{Operation: "cache watch"})
		}
	}
	watcher.OnChange(func(path string) {
		fmt.Fprintf(w, "%s %s\n", ui.Muted.Render(time.Now().Format("15:04:05")), path)
		warm()
	})

	fmt.Fprintf(w, "Watching %s (Ctrl+C to stop)\n", a.root)
	warm()

	if err := watcher.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
