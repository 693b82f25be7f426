package main

import (
	"context"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/joseph-ayodele/payslip-extractor/internal/common"
	"github.com/joseph-ayodele/payslip-extractor/internal/inference"
	"github.com/joseph-ayodele/payslip-extractor/internal/services/extraction"
)

// runllm extracts the same file several times and reports how stable each
// field's value is across runs.
func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if len(os.Args) < 2 {
		logger.Error("usage: runllm <file> [times]")
		os.Exit(2)
	}
	path := os.Args[1]
	times := 10
	if len(os.Args) >= 3 {
		if n, err := strconv.Atoi(os.Args[2]); err == nil && n > 0 {
			times = n
		}
	}

	cfg, err := common.LoadConfigFile(os.Getenv("PAYSLIP_CONFIG"))
	if err != nil {
		logger.Error("load config", "error", err)
		os.Exit(2)
	}

	ctx := context.Background()
	svc, err := extraction.New(ctx, cfg, logger, extraction.WithoutStore())
	if err != nil {
		logger.Error("wire extraction", "error", err)
		os.Exit(1)
	}
	defer svc.Close()
	svc.Probe(ctx)

	proc, err := svc.Processor(cfg)
	if err != nil {
		logger.Error("build pipeline", "error", err)
		os.Exit(1)
	}

	// one run for all iterations so the isolation report covers the session
	run := inference.NewRun(cfg.Pipeline.Isolation)
	seen := map[string]map[string]int{}
	failures := 0
	for i := 1; i <= times; i++ {
		runCtx, cancelRun := context.WithTimeout(ctx, 5*time.Minute)
		start := time.Now()
		logger.Info("pipeline.run.start", "iter", i, "path", path)

		pages, err := proc.ProcessFile(runCtx, run, path)
		cancelRun()
		if err != nil {
			failures++
			logger.Error("pipeline.run.error", "iter", i, "kind", common.KindOf(err), "err", err)
			continue
		}
		for _, p := range pages {
			for _, f := range p.Fields {
				key := strconv.Itoa(p.Page) + "/" + f.Name
				if seen[key] == nil {
					seen[key] = map[string]int{}
				}
				seen[key][f.Value]++
			}
		}
		logger.Info("pipeline.run.ok", "iter", i, "pages", len(pages), "elapsed_ms", time.Since(start).Milliseconds())

		time.Sleep(750 * time.Millisecond)
	}

	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		logger.Info("field.stability", "field", k, "distinct", len(seen[k]), "values", seen[k])
	}
	stats := run.Stats()
	logger.Info("done", "path", path, "times", times, "failures", failures,
		"isolation", stats.Reported, "fallbacks", stats.FallbacksOccurred, "timeouts", stats.Timeouts)
}
