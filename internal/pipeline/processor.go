package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/joseph-ayodele/payslip-extractor/constants"
	"github.com/joseph-ayodele/payslip-extractor/internal/common"
	"github.com/joseph-ayodele/payslip-extractor/internal/entity"
	"github.com/joseph-ayodele/payslip-extractor/internal/inference"
	"github.com/joseph-ayodele/payslip-extractor/internal/llm"
	"github.com/joseph-ayodele/payslip-extractor/internal/parse"
	"github.com/joseph-ayodele/payslip-extractor/internal/reconcile"
	"github.com/joseph-ayodele/payslip-extractor/internal/region"
	"github.com/joseph-ayodele/payslip-extractor/internal/resolution"
)

// Rasterizer turns a source file into its ordered pages.
type Rasterizer interface {
	Rasterize(ctx context.Context, path string) (entity.Document, error)
}

type Deps struct {
	Dispatcher *inference.Dispatcher
	Raster     Rasterizer
	// Cleaner is optional; it is called after resource-exhaustion failures.
	Cleaner resolution.Cleaner
	// MaxConcurrency caps in-flight inference calls and concurrently
	// processed pages. Values below 1 mean 1.
	MaxConcurrency int
}

// Processor runs plan → negotiate/dispatch → parse → reconcile for every page
// of a document.
type Processor struct {
	cfg        common.PipelineConfig
	planner    *region.Planner
	negotiator *resolution.Negotiator
	parser     *parse.Parser
	reconciler *reconcile.Reconciler
	dispatcher *inference.Dispatcher
	raster     Rasterizer
	limit      int
	inflight   *semaphore.Weighted
	logger     *slog.Logger
}

func NewProcessor(cfg common.PipelineConfig, deps Deps, logger *slog.Logger) (*Processor, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Dispatcher == nil {
		return nil, common.ConfigurationError("pipeline: dispatcher is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	table, err := reconcile.DefaultTable().WithOverrides(cfg.Precedence)
	if err != nil {
		return nil, err
	}
	limit := max(1, deps.MaxConcurrency)

	return &Processor{
		cfg: cfg,
		planner: region.NewPlanner(region.Config{
			Overlap:       cfg.Overlap,
			MinSize:       cfg.MinSize,
			StrictWindows: cfg.StrictWindows,
		}, logger),
		negotiator: resolution.NewNegotiator(resolution.Config{
			Steps:   cfg.ResolutionSteps,
			Enhance: cfg.Enhance,
		}, deps.Cleaner, logger),
		parser:     parse.NewParser(cfg.DocumentType, logger),
		reconciler: reconcile.NewReconciler(cfg.DocumentType, table, logger),
		dispatcher: deps.Dispatcher,
		raster:     deps.Raster,
		limit:      limit,
		inflight:   semaphore.NewWeighted(int64(limit)),
		logger:     logger,
	}, nil
}

// Config returns the pipeline configuration the processor was built with.
func (p *Processor) Config() common.PipelineConfig {
	return p.cfg
}

// ProcessFile rasterizes path and processes every page.
func (p *Processor) ProcessFile(ctx context.Context, run *inference.Run, path string) ([]entity.PageResult, error) {
	if p.raster == nil {
		return nil, common.ConfigurationError("pipeline: no rasterizer configured")
	}
	ctx = common.WithFile(ctx, path)
	start := time.Now()

	doc, err := p.raster.Rasterize(ctx, path)
	if err != nil {
		p.logger.Error("pipeline.raster.failed", append(common.LogAttrs(ctx), "error", err)...)
		return nil, fmt.Errorf("rasterize %s: %w", path, err)
	}
	p.logger.Debug("pipeline.raster.ok", append(common.LogAttrs(ctx),
		"pages", doc.PageCount(), "elapsed_ms", time.Since(start).Milliseconds())...)

	return p.ProcessDocument(ctx, run, doc)
}

// ProcessDocument returns one PageResult per page, ordered by page index. A
// nil run starts a fresh one at the configured isolation. Region failures degrade to sentinel values; only cancellation and
// configuration problems fail the document.
func (p *Processor) ProcessDocument(ctx context.Context, run *inference.Run, doc entity.Document) ([]entity.PageResult, error) {
	if doc.PageCount() == 0 {
		return nil, common.RasterError("document has no pages", nil)
	}
	if run == nil {
		run = inference.NewRun(p.cfg.Isolation)
	}
	start := time.Now()
	results := make([]entity.PageResult, doc.PageCount())

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.limit)
	for i, page := range doc.Pages {
		g.Go(func() error {
			res, err := p.processPage(gctx, run, doc, page)
			if err != nil {
				return fmt.Errorf("page %d: %w", page.Index, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	p.logger.Info("pipeline.document.ok", append(common.LogAttrs(ctx),
		"pages", len(results), "elapsed_ms", time.Since(start).Milliseconds())...)
	return results, nil
}

// regionResult is what one region contributes to its page.
type regionResult struct {
	fields []entity.FieldResult
	failed bool
}

func (p *Processor) processPage(ctx context.Context, run *inference.Run, doc entity.Document, page entity.Page) (entity.PageResult, error) {
	requested, selected := p.cfg.ForPage(page.Index)
	mode, regions, err := p.planner.Plan(page.Image.Bounds(), requested, selected)
	if err != nil {
		return entity.PageResult{}, err
	}

	out := make([]regionResult, len(regions))
	g, gctx := errgroup.WithContext(ctx)
	for i, r := range regions {
		g.Go(func() error {
			res, err := p.processRegion(gctx, run, doc, page, mode, r)
			if err != nil {
				return err
			}
			out[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return entity.PageResult{}, err
	}

	var (
		candidates []entity.FieldResult
		failed     []string
	)
	for i, res := range out {
		candidates = append(candidates, res.fields...)
		if res.failed {
			failed = append(failed, regions[i].Name)
		}
	}
	result := p.reconciler.Reconcile(page.Index, mode, candidates, failed)
	p.logger.Debug("pipeline.page.ok", append(common.LogAttrs(ctx),
		"page", page.Index, "mode", mode, "regions", len(regions), "failed", len(failed))...)
	return result, nil
}

// processRegion returns an error only for cancellation or configuration
// problems. Inference and parse failures become sentinel candidates.
func (p *Processor) processRegion(ctx context.Context, run *inference.Run, doc entity.Document, page entity.Page, mode constants.WindowMode, r entity.Region) (regionResult, error) {
	img, err := region.Crop(page.Image, r)
	if err != nil {
		return regionResult{}, err
	}
	prompt := llm.PromptFor(p.cfg.DocumentType, mode, r.Name, p.cfg.Prompts)

	submit := func(ctx context.Context, prepared resolution.Prepared) (string, error) {
		if err := p.inflight.Acquire(ctx, 1); err != nil {
			return "", err
		}
		defer p.inflight.Release(1)

		att, err := p.dispatcher.Dispatch(ctx, run, entity.ExtractionAttempt{
			Page:       page.Index,
			PageCount:  doc.PageCount(),
			Mode:       mode,
			Region:     r,
			Resolution: prepared.Resolution,
			Image:      prepared.Data,
			MIMEType:   prepared.MIMEType,
			Prompt:     prompt,
		})
		return att.RawText, err
	}

	outcome, err := p.negotiator.Negotiate(ctx, img, submit)
	if err != nil {
		if cerr := ctx.Err(); cerr != nil {
			return regionResult{}, cerr
		}
		if errors.Is(err, context.Canceled) || common.IsKind(err, common.CodeConfiguration) {
			return regionResult{}, err
		}
		p.logger.Warn("pipeline.region.failed", append(common.LogAttrs(ctx),
			"page", page.Index, "region", r.Name, "attempts", len(outcome.Steps), "kind", common.KindOf(err), "error", err)...)
		return regionResult{fields: parse.Sentinels(p.cfg.DocumentType, r.Name), failed: true}, nil
	}

	fields, err := p.parser.Parse(r.Name, outcome.Text)
	if err != nil {
		p.logger.Warn("pipeline.region.unparseable", append(common.LogAttrs(ctx),
			"page", page.Index, "region", r.Name, "resolution", outcome.Resolution, "error", err)...)
	}
	return regionResult{fields: fields}, nil
}
