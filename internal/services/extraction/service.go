package extraction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/joseph-ayodele/payslip-extractor/internal/batch"
	"github.com/joseph-ayodele/payslip-extractor/internal/common"
	"github.com/joseph-ayodele/payslip-extractor/internal/export"
	"github.com/joseph-ayodele/payslip-extractor/internal/inference"
	"github.com/joseph-ayodele/payslip-extractor/internal/llm"
	"github.com/joseph-ayodele/payslip-extractor/internal/llm/container"
	"github.com/joseph-ayodele/payslip-extractor/internal/llm/openai"
	"github.com/joseph-ayodele/payslip-extractor/internal/pipeline"
	"github.com/joseph-ayodele/payslip-extractor/internal/raster"
	"github.com/joseph-ayodele/payslip-extractor/internal/repository"
	"github.com/joseph-ayodele/payslip-extractor/internal/resolution"
	"github.com/joseph-ayodele/payslip-extractor/internal/server"
	"github.com/joseph-ayodele/payslip-extractor/internal/validate"
)

// Service holds the wired extraction stack shared by the daemon and the CLI.
type Service struct {
	Config     *common.Config
	Client     llm.Client
	Dispatcher *inference.Dispatcher
	Raster     pipeline.Rasterizer
	DB         *repository.DB
	Employees  repository.EmployeeRepository
	Validator  *validate.Engine
	Export     *export.Service

	cleaner resolution.Cleaner
	logger  *slog.Logger
}

type Option func(*options)

type options struct {
	store  bool
	client llm.Client
	raster pipeline.Rasterizer
}

// WithoutStore skips the expected-record store; no comparisons are produced.
func WithoutStore() Option {
	return func(o *options) { o.store = false }
}

// WithClient replaces the configured inference backend.
func WithClient(c llm.Client) Option {
	return func(o *options) { o.client = c }
}

// WithRasterizer replaces the configured rasterizer.
func WithRasterizer(r pipeline.Rasterizer) Option {
	return func(o *options) { o.raster = r }
}

// New validates cfg and wires the inference client, dispatcher, rasterizer
// and, unless disabled, the expected-record store and validation engine.
func New(ctx context.Context, cfg *common.Config, logger *slog.Logger, opts ...Option) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}
	o := options{store: true}
	for _, opt := range opts {
		opt(&o)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Service{Config: cfg, Export: export.NewService(logger), logger: logger}

	var converter raster.PDFConverter
	switch {
	case o.client != nil:
		s.Client = o.client
	case cfg.Inference.Backend == "openai":
		baseURL := cfg.Inference.Endpoint
		if baseURL == container.DefaultEndpoint {
			baseURL = ""
		}
		s.Client = openai.NewClient(openai.Config{
			APIKey:  cfg.Inference.APIKey,
			BaseURL: baseURL,
			Model:   cfg.Inference.Model,
		}, logger)
	default:
		cc := container.NewClient(container.Config{Endpoint: cfg.Inference.Endpoint}, logger)
		s.Client = cc
		converter = cc
	}
	if c, ok := s.Client.(resolution.Cleaner); ok {
		s.cleaner = c
	}

	s.Dispatcher = inference.NewDispatcher(s.Client, inference.Config{
		Timeout:    cfg.Inference.Timeout,
		Generation: cfg.Inference.Generation,
		ForceCPU:   cfg.Inference.ForceCPU,
		RateLimit:  cfg.Inference.RateLimit,
	}, logger)

	if o.raster != nil {
		s.Raster = o.raster
	} else {
		ropts := []raster.Option{}
		if converter != nil {
			ropts = append(ropts, raster.WithConverter(converter))
		}
		s.Raster = raster.New(raster.Config{
			Backend:       cfg.Raster.Backend,
			Pdftoppm:      cfg.Raster.Pdftoppm,
			DPI:           cfg.Raster.DPI,
			MaxPages:      cfg.Raster.MaxPages,
			HeicConverter: cfg.Raster.HeicConverter,
		}, logger, ropts...)
	}

	if o.store {
		db, employees, err := server.ConnectStore(ctx, cfg.Database, logger)
		if err != nil {
			return nil, fmt.Errorf("connect expected-record store: %w", err)
		}
		s.DB, s.Employees = db, employees
		s.Validator = validate.NewEngine(employees, cfg.Validation, logger)
	}
	return s, nil
}

// Probe asks the backend which device it runs on so CPU timeouts apply.
func (s *Service) Probe(ctx context.Context) {
	s.Dispatcher.Probe(ctx)
}

// Processor builds a pipeline for cfg. Timeouts, generation parameters and
// force-CPU come from cfg.Inference; the backend client and rate limiter are
// shared. It has the server.ProcessorFactory signature.
func (s *Service) Processor(cfg *common.Config) (*pipeline.Processor, error) {
	if err := s.checkBoundary(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Inference.ValidateCall(); err != nil {
		return nil, err
	}
	in := cfg.Inference
	return pipeline.NewProcessor(cfg.Pipeline, pipeline.Deps{
		Dispatcher:     s.Dispatcher.WithCall(in.Timeout, in.Generation, in.ForceCPU),
		Raster:         s.Raster,
		Cleaner:        s.cleaner,
		MaxConcurrency: in.MaxConcurrency,
	}, s.logger)
}

// checkBoundary rejects configs that select a different inference backend
// than the one wired at startup.
func (s *Service) checkBoundary(cfg *common.Config) error {
	have, want := cfg.Inference, s.Config.Inference
	switch {
	case have.Backend != want.Backend:
		return common.ConfigurationErrorf("inference.backend is fixed to %q for this service", want.Backend)
	case have.Endpoint != want.Endpoint:
		return common.ConfigurationError("inference.url cannot change per call")
	case have.Model != want.Model:
		return common.ConfigurationError("inference.model cannot change per call")
	case have.RateLimit != want.RateLimit:
		return common.ConfigurationError("inference.rate_limit cannot change per call")
	}
	return nil
}

// Orchestrator returns a batch orchestrator configured from the batch and
// pipeline settings, validating pages when the store is wired.
func (s *Service) Orchestrator(proc batch.FileProcessor) *batch.Orchestrator {
	opts := []batch.Option{
		batch.WithWorkers(s.Config.Batch.Workers),
		batch.WithFileTimeout(s.Config.Batch.FileTimeout),
		batch.WithIsolation(s.Config.Pipeline.Isolation),
	}
	if s.Validator != nil {
		opts = append(opts, batch.WithValidator(s.Validator))
	}
	return batch.New(proc, s.logger, opts...)
}

// GRPCService exposes the stack as payslip.v1.ExtractionService.
func (s *Service) GRPCService() *server.ExtractionService {
	var v batch.Validator
	if s.Validator != nil {
		v = s.Validator
	}
	return server.NewExtractionService(s.Config, s.Processor, v, s.logger)
}

// Health checks the store (when wired) and the inference backend status.
func (s *Service) Health(ctx context.Context) error {
	var errs []error
	if s.DB != nil {
		if err := server.PingDB(ctx, s.DB, s.logger, s.Config.Database.DialTimeout); err != nil {
			errs = append(errs, fmt.Errorf("store: %w", err))
		}
	}
	if reporter, ok := s.Client.(llm.StatusReporter); ok {
		st, err := reporter.Status(ctx)
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("inference: %w", err))
		case !st.Ready:
			errs = append(errs, common.TransportError("inference backend not ready", nil))
		default:
			s.logger.Info("health.inference", "device", st.Device, "model", st.Model)
		}
	}
	return errors.Join(errs...)
}

func (s *Service) Close() {
	if s.DB != nil {
		s.DB.Close(s.logger)
	}
}
