package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joseph-ayodele/payslip-extractor/internal/batch"
	"github.com/joseph-ayodele/payslip-extractor/internal/common"
	"github.com/joseph-ayodele/payslip-extractor/internal/entity"
	"github.com/joseph-ayodele/payslip-extractor/internal/inference"
	"github.com/joseph-ayodele/payslip-extractor/internal/pipeline"
)

// ProcessorFactory builds a pipeline for one call's configuration, including
// its inference timeouts and generation parameters.
type ProcessorFactory func(cfg *common.Config) (*pipeline.Processor, error)

type ExtractionService struct {
	cfg       *common.Config
	factory   ProcessorFactory
	validator batch.Validator
	logger    *slog.Logger
}

// NewExtractionService serves extraction calls against cfg. A request may
// carry a "config" object in profile shape which is overlaid on a copy of cfg.
// validator may be nil, in which case no comparisons are produced.
func NewExtractionService(cfg *common.Config, factory ProcessorFactory, validator batch.Validator, logger *slog.Logger) *ExtractionService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExtractionService{cfg: cfg, factory: factory, validator: validator, logger: logger}
}

type documentResponse struct {
	Path        string              `json:"path"`
	Pages       []entity.PageResult `json:"pages"`
	Comparisons []entity.Comparison `json:"comparisons,omitempty"`
	Stats       entity.RunStats     `json:"stats"`
	ElapsedMs   int64               `json:"elapsed_ms"`
}

func (s *ExtractionService) ExtractDocument(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	start := time.Now()
	fields := req.GetFields()
	path := strings.TrimSpace(fields["path"].GetStringValue())
	if path == "" {
		s.logger.Error("extract document request missing path")
		return nil, status.Error(codes.InvalidArgument, "path is required")
	}
	employeeID := strings.TrimSpace(fields["employee_id"].GetStringValue())

	cfg, err := s.configFor(req)
	if err != nil {
		s.logger.Error("invalid request config", "path", path, "error", err)
		return nil, common.ToStatus(err)
	}
	proc, err := s.factory(cfg)
	if err != nil {
		return nil, common.ToStatus(err)
	}

	ctx = common.WithRunID(ctx, uuid.New().String())
	run := inference.NewRun(cfg.Pipeline.Isolation)
	s.logger.Info("extract.document.start", append(common.LogAttrs(ctx), "path", path, "employee_id", employeeID)...)

	pages, err := proc.ProcessFile(ctx, run, path)
	if err != nil {
		s.logger.Error("extract.document.failed", append(common.LogAttrs(ctx),
			"path", path, "kind", common.KindOf(err), "error", err)...)
		return nil, common.ToStatus(err)
	}

	resp := documentResponse{Path: path, Pages: pages}
	if s.validator != nil {
		for _, p := range pages {
			cmp, err := s.validator.Validate(ctx, p, employeeID)
			if err != nil {
				s.logger.Warn("extract.document.validation_failed", append(common.LogAttrs(ctx), "page", p.Page, "error", err)...)
				continue
			}
			resp.Comparisons = append(resp.Comparisons, cmp)
		}
	}
	resp.Stats = run.Stats()
	resp.ElapsedMs = time.Since(start).Milliseconds()

	s.logger.Info("extract.document.ok", append(common.LogAttrs(ctx),
		"path", path, "pages", len(pages), "elapsed_ms", resp.ElapsedMs)...)
	return toStruct(resp)
}

func (s *ExtractionService) ExtractBatch(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var paths []string
	for _, v := range req.GetFields()["paths"].GetListValue().GetValues() {
		if p := strings.TrimSpace(v.GetStringValue()); p != "" {
			paths = append(paths, p)
		}
	}
	if len(paths) == 0 {
		s.logger.Error("extract batch request without paths")
		return nil, status.Error(codes.InvalidArgument, "paths is required")
	}

	cfg, err := s.configFor(req)
	if err != nil {
		return nil, common.ToStatus(err)
	}
	proc, err := s.factory(cfg)
	if err != nil {
		return nil, common.ToStatus(err)
	}

	opts := []batch.Option{
		batch.WithWorkers(cfg.Batch.Workers),
		batch.WithFileTimeout(cfg.Batch.FileTimeout),
		batch.WithIsolation(cfg.Pipeline.Isolation),
	}
	if s.validator != nil {
		opts = append(opts, batch.WithValidator(s.validator))
	}
	res, err := batch.New(proc, s.logger, opts...).Run(ctx, paths)
	if err != nil {
		return nil, common.ToStatus(err)
	}
	return toStruct(res)
}

// configFor returns the service config with the request's "config" object
// applied on top. The shared config is never modified.
func (s *ExtractionService) configFor(req *structpb.Struct) (*common.Config, error) {
	cfg := s.cfg.Clone()
	overlay := req.GetFields()["config"].GetStructValue()
	if overlay == nil {
		return cfg, nil
	}
	data, err := protojson.Marshal(overlay)
	if err != nil {
		return nil, common.ConfigurationErrorf("encode request config: %v", err)
	}
	if err := cfg.ApplyOverlay(data); err != nil {
		return nil, err
	}
	if err := cfg.Inference.ValidateCall(); err != nil {
		return nil, err
	}
	if err := cfg.Pipeline.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, fmt.Sprintf("encode response: %v", err))
	}
	out := new(structpb.Struct)
	if err := protojson.Unmarshal(data, out); err != nil {
		return nil, status.Error(codes.Internal, fmt.Sprintf("encode response: %v", err))
	}
	return out, nil
}
