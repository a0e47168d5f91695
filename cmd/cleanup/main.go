// Command cleanup runs a one-shot duplicate cleanup against the document
// store. It is a dry run unless -live is given; a dry run makes every
// decision and prints what would be removed without deleting anything.
//
// Usage:
//
//	go run ./cmd/cleanup [-config configs/development.yaml] \
//	    [-types url,content,similar] [-strategy latest] \
//	    [-similarity 0.95] [-live]
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/websift/dedup-engine/internal/cleanup"
	"github.com/websift/dedup-engine/internal/similarity"
	"github.com/websift/dedup-engine/internal/store"
	"github.com/websift/dedup-engine/pkg/config"
	"github.com/websift/dedup-engine/pkg/logger"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	typesFlag := flag.String("types", "", "comma-separated duplicate types (url,content,similar); defaults to config")
	strategyFlag := flag.String("strategy", "", "keep strategy (latest, longest_content, first); defaults to config")
	similarityFlag := flag.Float64("similarity", -1, "similarity threshold in [0,1]; defaults to config")
	live := flag.Bool("live", false, "actually delete documents (default is dry run)")
	flag.Parse()
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	opts := cleanup.Options{
		Types:               cfg.Cleanup.Types,
		Strategy:            cfg.Cleanup.Strategy,
		SimilarityThreshold: cfg.Cleanup.SimilarityThreshold,
		MinContentLength:    cfg.Cleanup.MinContentLength,
		DeleteChunkSize:     cfg.Cleanup.DeleteChunkSize,
		DryRun:              !*live,
	}
	if *typesFlag != "" {
		opts.Types = strings.Split(*typesFlag, ",")
	}
	if *strategyFlag != "" {
		opts.Strategy = *strategyFlag
	}
	if *similarityFlag >= 0 {
		opts.SimilarityThreshold = *similarityFlag
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		slog.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer st.Close(context.Background())

	clusterer := similarity.New(
		similarity.WithSampleCap(cfg.Cleanup.SampleCap),
		similarity.WithMinTextLength(cfg.Cleanup.MinSimilarityLength),
	)
	executor := cleanup.New(st, clusterer)

	stats, err := executor.Run(ctx, opts)
	if err != nil {
		slog.Error("cleanup failed", "error", err)
		os.Exit(1)
	}

	data, _ := json.MarshalIndent(stats, "", "  ")
	fmt.Println(string(data))
	if stats.DryRun {
		slog.Info("dry run complete, re-run with -live to delete",
			"would_remove", stats.TotalRemoved)
	}
	if stats.Errors > 0 {
		os.Exit(1)
	}
}
