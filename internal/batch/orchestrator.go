package batch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/payslip-extractor/constants"
	"github.com/joseph-ayodele/payslip-extractor/internal/common"
	"github.com/joseph-ayodele/payslip-extractor/internal/entity"
	"github.com/joseph-ayodele/payslip-extractor/internal/inference"
)

// FileProcessor extracts every page of one file.
type FileProcessor interface {
	ProcessFile(ctx context.Context, run *inference.Run, path string) ([]entity.PageResult, error)
}

// Validator compares one page against the expected-record store. An empty
// employeeID asks the validator to find the record by name.
type Validator interface {
	Validate(ctx context.Context, page entity.PageResult, employeeID string) (entity.Comparison, error)
}

// Orchestrator runs files through a FileProcessor with bounded parallelism.
// A failing file never affects its siblings.
type Orchestrator struct {
	proc        FileProcessor
	validator   Validator
	isolation   constants.IsolationMode
	workers     int
	fileTimeout time.Duration
	logger      *slog.Logger
}

type Option func(*Orchestrator)

func WithWorkers(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithFileTimeout bounds each file; zero leaves files unbounded.
func WithFileTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.fileTimeout = d
		}
	}
}

// WithValidator attaches a comparison to every successful page.
func WithValidator(v Validator) Option {
	return func(o *Orchestrator) { o.validator = v }
}

// WithIsolation sets the isolation mode requested for each batch run.
func WithIsolation(m constants.IsolationMode) Option {
	return func(o *Orchestrator) { o.isolation = m }
}

func New(proc FileProcessor, logger *slog.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	o := &Orchestrator{
		proc:      proc,
		isolation: constants.IsolationAuto,
		workers:   1,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run processes paths and returns outcomes in input order. On cancellation
// the result is still complete: files that were not finished are recorded as
// failed, and the context error is returned alongside.
func (o *Orchestrator) Run(ctx context.Context, paths []string) (entity.BatchResult, error) {
	start := time.Now()
	runID := uuid.New().String()
	ctx = common.WithRunID(ctx, runID)
	run := inference.NewRun(o.isolation)

	o.logger.Info("batch.start", append(common.LogAttrs(ctx), "files", len(paths), "workers", o.workers)...)

	outcomes := make([]entity.FileOutcome, len(paths))
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < min(o.workers, max(1, len(paths))); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				outcomes[idx] = o.ProcessOne(ctx, run, idx, paths[idx])
			}
		}()
	}

	next := 0
feed:
	for ; next < len(paths); next++ {
		select {
		case jobs <- next:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	for i := next; i < len(paths); i++ {
		outcomes[i] = failed(i, paths[i], ctx.Err(), 0)
	}

	result := entity.BatchResult{
		RunID:     runID,
		Total:     len(paths),
		Files:     outcomes,
		Stats:     run.Stats(),
		ElapsedMs: time.Since(start).Milliseconds(),
	}
	for _, f := range outcomes {
		if f.Success {
			result.Successful++
		} else {
			result.Failed++
		}
	}

	o.logger.Info("batch.done", append(common.LogAttrs(ctx),
		"total", result.Total,
		"successful", result.Successful,
		"failed", result.Failed,
		"isolation", result.Stats.Reported,
		"elapsed_ms", result.ElapsedMs,
	)...)
	return result, ctx.Err()
}

// ProcessOne runs a single file and never returns an error: every failure is
// folded into the outcome.
func (o *Orchestrator) ProcessOne(ctx context.Context, run *inference.Run, idx int, path string) entity.FileOutcome {
	start := time.Now()
	ctx = common.WithFile(ctx, path)
	if err := ctx.Err(); err != nil {
		return failed(idx, path, err, 0)
	}

	fctx := ctx
	if o.fileTimeout > 0 {
		var cancel context.CancelFunc
		fctx, cancel = context.WithTimeout(ctx, o.fileTimeout)
		defer cancel()
	}

	pages, err := o.proc.ProcessFile(fctx, run, path)
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		o.logger.Error("batch.file.failed", append(common.LogAttrs(ctx),
			"index", idx, "kind", common.KindOf(err), "error", err, "elapsed_ms", elapsed)...)
		return failed(idx, path, err, elapsed)
	}

	out := entity.FileOutcome{Index: idx, Path: path, Success: true, Pages: pages}
	if o.validator != nil {
		for _, p := range pages {
			cmp, err := o.validator.Validate(ctx, p, "")
			if err != nil {
				o.logger.Warn("batch.file.validation_failed", append(common.LogAttrs(ctx), "page", p.Page, "error", err)...)
				continue
			}
			out.Comparisons = append(out.Comparisons, cmp)
		}
	}
	out.ElapsedMs = time.Since(start).Milliseconds()
	o.logger.Info("batch.file.ok", append(common.LogAttrs(ctx),
		"index", idx, "pages", len(pages), "elapsed_ms", out.ElapsedMs)...)
	return out
}

func failed(idx int, path string, err error, elapsed int64) entity.FileOutcome {
	msg := "cancelled"
	if err != nil {
		msg = err.Error()
	}
	return entity.FileOutcome{Index: idx, Path: path, Error: msg, ElapsedMs: elapsed}
}
