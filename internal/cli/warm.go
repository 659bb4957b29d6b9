package cli

import (
	"context"
	"fmt"
	"sync"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var warmWorkers int

var warmCmd = &cobra.Command{
	Use:   "warm",
	Short: "Pre-embed the corpus into the embedding cache",
	Long: `Fetch the embedding of every corpus chunk so a persistent cache
(embedding.cache_path) serves later queries without cold provider calls.

Requires embedding.enabled: true in the config.`,
	RunE: runWarm,
}

func init() {
	rootCmd.AddCommand(warmCmd)
	warmCmd.Flags().IntVar(&warmWorkers, "workers", 4, "concurrent embedding requests")
}

func runWarm(cmd *cobra.Command, args []string) error {
	if !cfg.Embedding.Enabled {
		return fmt.Errorf("embedding is disabled; enable it in the config to warm the cache")
	}

	rt, err := buildRuntime(cfg)
	if err != nil {
		return err
	}
	defer rt.close()

	total := rt.store.Len()
	bar := progressbar.NewOptions(total,
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetDescription("Warming"),
	)
	var barMu sync.Mutex

	g, ctx := errgroup.WithContext(context.Background())
	if warmWorkers <= 0 {
		warmWorkers = 4
	}
	g.SetLimit(warmWorkers)

	misses := 0
	var missMu sync.Mutex
	for i := 0; i < total; i++ {
		chunk := rt.store.Chunk(i)
		g.Go(func() error {
			if _, ok := rt.cache.Get(ctx, chunk.Body); !ok {
				missMu.Lock()
				misses++
				missMu.Unlock()
			}
			barMu.Lock()
			_ = bar.Add(1)
			barMu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	fmt.Println()

	logger.Info("cache warmed", "chunks", total, "failed", misses, "cached", rt.cache.Len())
	if misses > 0 {
		return fmt.Errorf("%d of %d chunks could not be embedded", misses, total)
	}
	return nil
}
