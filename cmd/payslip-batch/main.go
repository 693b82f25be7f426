package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/joseph-ayodele/payslip-extractor/internal/batch"
	"github.com/joseph-ayodele/payslip-extractor/internal/common"
	"github.com/joseph-ayodele/payslip-extractor/internal/entity"
	"github.com/joseph-ayodele/payslip-extractor/internal/ingest"
	"github.com/joseph-ayodele/payslip-extractor/internal/services/extraction"
	"github.com/joseph-ayodele/payslip-extractor/internal/telemetry"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...any) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Setup(ctx, "payslip-batch", version)
	if err != nil {
		printError("Error: telemetry: %v\n", err)
		os.Exit(1)
	}

	app := &cli.Command{
		Name:    "payslip-batch",
		Usage:   "Extract payslip fields from scanned documents",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "YAML profile overlaid on the environment configuration",
				Sources: cli.EnvVars("PAYSLIP_CONFIG"),
			},
			&cli.StringFlag{
				Name:  "dsn",
				Usage: "Expected-record store DSN (overrides DB_URL)",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Usage:   "Log level (debug, info, warn, error)",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
			&cli.BoolFlag{
				Name:  "no-store",
				Usage: "Skip the expected-record store and validation",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "extract",
				Usage:     "Extract one file and print the result as JSON",
				ArgsUsage: "<file>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "employee-id", Usage: "Validate against this expected record"},
				},
				Action: runExtract,
			},
			{
				Name:      "batch",
				Usage:     "Process a directory or a list of files",
				ArgsUsage: "[files...]",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "dir", Usage: "Directory to scan recursively"},
					&cli.StringFlag{Name: "out", Usage: "XLSX report path"},
					&cli.BoolFlag{Name: "json", Usage: "Print the batch result as JSON"},
				},
				Action: runBatch,
			},
			{
				Name:  "watch",
				Usage: "Process new files as they appear under a directory",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{Name: "dir", Usage: "Directory to watch (repeatable)"},
					&cli.BoolFlag{Name: "initial-scan", Value: true, Usage: "Process files already present"},
					&cli.DurationFlag{Name: "debounce", Value: 500 * time.Millisecond, Usage: "Quiet period before a file is picked up"},
				},
				Action: runWatch,
			},
			{
				Name:   "seed",
				Usage:  "Create the expected-record table and load the sample employees",
				Action: runSeed,
			},
			{
				Name:   "health",
				Usage:  "Check the store and the inference backend",
				Action: runHealth,
			},
		},
	}

	runErr := app.Run(ctx, os.Args)

	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := shutdownTelemetry(flushCtx); err != nil {
		printError("Warning: telemetry shutdown: %v\n", err)
	}
	cancel()

	if runErr != nil {
		printError("Error: %v\n", runErr)
		os.Exit(1)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	// stdout carries command output, logs go to stderr
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
	return logger
}

func setup(ctx context.Context, cmd *cli.Command, opts ...extraction.Option) (*extraction.Service, *slog.Logger, error) {
	logger := newLogger(cmd.String("log-level"))
	cfg, err := common.LoadConfigFile(cmd.String("config"))
	if err != nil {
		return nil, nil, err
	}
	if dsn := cmd.String("dsn"); dsn != "" {
		cfg.Database.DSN = dsn
	}
	if cmd.Bool("no-store") {
		opts = append(opts, extraction.WithoutStore())
	}
	svc, err := extraction.New(ctx, cfg, logger, opts...)
	if err != nil {
		return nil, nil, err
	}
	return svc, logger, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runExtract(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() != 1 {
		return cli.Exit("extract needs exactly one file", 2)
	}
	path := cmd.Args().First()

	svc, logger, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer svc.Close()
	svc.Probe(ctx)

	proc, err := svc.Processor(svc.Config)
	if err != nil {
		return err
	}
	orch := svc.Orchestrator(proc)
	res, err := orch.Run(ctx, []string{path})
	if err != nil {
		return err
	}
	out := res.Files[0]
	if id := cmd.String("employee-id"); id != "" && svc.Validator != nil && out.Success {
		out.Comparisons = out.Comparisons[:0]
		for _, p := range out.Pages {
			cmp, err := svc.Validator.Validate(ctx, p, id)
			if err != nil {
				logger.Warn("extract.validation_failed", "page", p.Page, "error", err)
				continue
			}
			out.Comparisons = append(out.Comparisons, cmp)
		}
	}
	if err := printJSON(out); err != nil {
		return err
	}
	if !out.Success {
		return cli.Exit(out.Error, 1)
	}
	return nil
}

func runBatch(ctx context.Context, cmd *cli.Command) error {
	paths := cmd.Args().Slice()
	dir := cmd.String("dir")
	if dir == "" && len(paths) == 0 {
		return cli.Exit("batch needs --dir or at least one file", 2)
	}

	svc, logger, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer svc.Close()
	svc.Probe(ctx)

	if dir != "" {
		found, stats, err := ingest.ListDirectory(dir, nil, true)
		if err != nil {
			return fmt.Errorf("scan %s: %w", dir, err)
		}
		logger.Info("batch.scan.ok", "dir", dir, "scanned", stats.Scanned, "matched", stats.Matched)
		paths = append(paths, found...)
	}
	if len(paths) == 0 {
		return cli.Exit("no supported files found", 1)
	}

	proc, err := svc.Processor(svc.Config)
	if err != nil {
		return err
	}
	res, runErr := svc.Orchestrator(proc).Run(ctx, paths)

	out := cmd.String("out")
	if out == "" && dir != "" {
		out = filepath.Join(filepath.Dir(filepath.Clean(dir)), "payslips.xlsx")
	}
	if out != "" {
		// export even an interrupted run; its outcomes are complete
		if err := svc.Export.WriteFile(context.WithoutCancel(ctx), res, out); err != nil {
			return err
		}
	}

	if cmd.Bool("json") {
		if err := printJSON(res); err != nil {
			return err
		}
	} else {
		fmt.Printf("Batch processing complete!\n")
		fmt.Printf("- Run: %s\n", res.RunID)
		fmt.Printf("- Files: %d (ok %d, failed %d)\n", res.Total, res.Successful, res.Failed)
		fmt.Printf("- Isolation: %s\n", res.Stats.Reported)
		if out != "" {
			fmt.Printf("- Output: %s\n", out)
		}
	}
	return runErr
}

func runWatch(ctx context.Context, cmd *cli.Command) error {
	dirs := cmd.StringSlice("dir")
	if len(dirs) == 0 {
		return cli.Exit("watch needs at least one --dir", 2)
	}

	svc, logger, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer svc.Close()
	svc.Probe(ctx)

	proc, err := svc.Processor(svc.Config)
	if err != nil {
		return err
	}
	var mu sync.Mutex
	enc := json.NewEncoder(os.Stdout)
	queue := batch.NewQueue(svc.Orchestrator(proc), func(o entity.FileOutcome) {
		mu.Lock()
		defer mu.Unlock()
		if err := enc.Encode(o); err != nil {
			logger.Error("watch.print_failed", "path", o.Path, "error", err)
		}
	}, logger)

	paths, errs, err := ingest.StartWatcher(ctx, ingest.WatchConfig{
		Roots:       dirs,
		SkipHidden:  true,
		InitialScan: cmd.Bool("initial-scan"),
		Debounce:    cmd.Duration("debounce"),
	}, logger)
	if err != nil {
		return err
	}

loop:
	for {
		select {
		case p, ok := <-paths:
			if !ok {
				break loop
			}
			if err := queue.Enqueue(ctx, p); err != nil {
				logger.Warn("watch.enqueue_failed", "path", p, "error", err)
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			logger.Error("watch.error", "error", err)
		case <-ctx.Done():
			break loop
		}
	}

	grace := svc.Config.Batch.FileTimeout
	if grace <= 0 {
		grace = 2 * time.Minute
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	queue.Shutdown(shutdownCtx)
	stats := queue.Stats()
	logger.Info("watch.stopped", "isolation", stats.Reported, "attempts", stats.Attempts)
	return nil
}

func runSeed(ctx context.Context, cmd *cli.Command) error {
	if cmd.Bool("no-store") {
		return cli.Exit("seed needs the store", 2)
	}
	svc, logger, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer svc.Close()

	if err := svc.Employees.Seed(ctx); err != nil {
		return err
	}
	records, err := svc.Employees.List(ctx)
	if err != nil {
		return err
	}
	logger.Info("seed.ok", "records", len(records))
	ids := make([]string, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.ID)
	}
	fmt.Printf("Seeded %d expected records: %s\n", len(records), strings.Join(ids, ", "))
	return nil
}

func runHealth(ctx context.Context, cmd *cli.Command) error {
	svc, _, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer svc.Close()

	if err := svc.Health(ctx); err != nil {
		return cli.Exit(fmt.Sprintf("unhealthy: %v", err), 1)
	}
	fmt.Println("ok")
	return nil
}
