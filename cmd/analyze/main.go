// Command analyze runs a one-shot duplicate analysis against the document
// store and writes the report as JSON to stdout.
//
// Usage:
//
//	go run ./cmd/analyze [-config configs/development.yaml] [-out report.json]
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/websift/dedup-engine/internal/analyzer"
	"github.com/websift/dedup-engine/internal/store"
	"github.com/websift/dedup-engine/pkg/config"
	"github.com/websift/dedup-engine/pkg/logger"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	outPath := flag.String("out", "", "write the JSON report to this file instead of stdout")
	flag.Parse()
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		slog.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer st.Close(context.Background())

	report, err := analyzer.New(st).RunFullAnalysis(ctx)
	if err != nil {
		slog.Error("analysis failed", "error", err)
		os.Exit(1)
	}
	slog.Info("analysis complete",
		"documents", report.URL.TotalDocuments,
		"url_duplicates", report.URL.TotalDuplicates,
		"content_groups", report.Content.DuplicateGroupsN,
	)

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		slog.Error("failed to encode report", "error", err)
		os.Exit(1)
	}
	if *outPath != "" {
		if err := os.WriteFile(*outPath, append(data, '\n'), 0o644); err != nil {
			slog.Error("failed to write report", "path", *outPath, "error", err)
			os.Exit(1)
		}
		slog.Info("report written", "path", *outPath)
		return
	}
	fmt.Println(string(data))
}
