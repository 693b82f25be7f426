package raster

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/joseph-ayodele/payslip-extractor/constants"
	"github.com/joseph-ayodele/payslip-extractor/internal/common"
	"github.com/joseph-ayodele/payslip-extractor/internal/entity"
)

const (
	BackendPdftoppm  = "pdftoppm"
	BackendContainer = "container"
)

type Config struct {
	Backend       string // pdftoppm | container
	Pdftoppm      string // binary name or absolute path; if empty -> "pdftoppm"
	DPI           int    // default 600
	MaxPages      int    // 0 = no limit
	HeicConverter string // heif-convert | magick | sips; empty disables HEIC input
}

// PDFConverter renders PDFs remotely; the inference container implements it.
type PDFConverter interface {
	ConvertPDF(ctx context.Context, pdf []byte) ([][]byte, error)
}

// Rasterizer turns PDFs and image files into ordered page images.
type Rasterizer struct {
	cfg       Config
	runner    Runner
	converter PDFConverter
	pageCount func(path string) (int, error)
	logger    *slog.Logger
}

type Option func(*Rasterizer)

// WithRunner replaces the exec runner used for pdftoppm and HEIC conversion.
func WithRunner(r Runner) Option {
	return func(rz *Rasterizer) { rz.runner = r }
}

// WithConverter sets the remote converter used by the container backend.
func WithConverter(c PDFConverter) Option {
	return func(rz *Rasterizer) { rz.converter = c }
}

func New(cfg Config, logger *slog.Logger, opts ...Option) *Rasterizer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Backend == "" {
		cfg.Backend = BackendPdftoppm
	}
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 600
	}
	rz := &Rasterizer{
		cfg:       cfg,
		runner:    execRunner{logger: logger},
		pageCount: api.PageCountFile,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(rz)
	}
	return rz
}

// Rasterize picks a strategy based on file extension. Unclassified failures
// become RASTER_ERROR; errors that already carry a kind, such as a missing
// converter (CONFIGURATION_ERROR), keep it. The document is never partially
// returned.
func (r *Rasterizer) Rasterize(ctx context.Context, path string) (entity.Document, error) {
	start := time.Now()
	ext := constants.NormalizeExt(filepath.Ext(path))

	var (
		pages []entity.Page
		err   error
	)
	switch constants.MapExtToFormat(ext) {
	case constants.PDF:
		pages, err = r.rasterizePDF(ctx, path)
	case constants.IMAGE:
		pages, err = r.rasterizeImage(ctx, path, ext)
	default:
		err = common.RasterError(fmt.Sprintf("unsupported extension %q", ext), nil)
	}
	if err != nil {
		if ctx.Err() != nil {
			return entity.Document{}, ctx.Err()
		}
		if common.KindOf(err) == "" {
			err = common.RasterError(path, err)
		}
		return entity.Document{}, err
	}

	r.logger.Debug("raster.ok", append(common.LogAttrs(ctx),
		"path", path, "pages", len(pages), "elapsed_ms", time.Since(start).Milliseconds())...)
	return entity.Document{Source: path, Pages: pages}, nil
}

func (r *Rasterizer) rasterizeImage(ctx context.Context, path, ext string) ([]entity.Page, error) {
	if constants.IsHEICExt(ext) {
		out, cleanup, err := convertHEICtoPNG(ctx, r.runner, r.cfg.HeicConverter, path)
		if cleanup != nil {
			defer cleanup()
		}
		if err != nil {
			return nil, err
		}
		path = out
	}
	img, err := decodeFile(path)
	if err != nil {
		return nil, err
	}
	return []entity.Page{{Index: 1, Image: img}}, nil
}

func (r *Rasterizer) rasterizePDF(ctx context.Context, path string) ([]entity.Page, error) {
	n, err := r.pageCount(path)
	if err != nil {
		return nil, common.RasterError("invalid pdf "+filepath.Base(path), err)
	}
	if n == 0 {
		return nil, common.RasterError("pdf has no pages", nil)
	}
	limit := n
	if r.cfg.MaxPages > 0 && n > r.cfg.MaxPages {
		r.logger.Warn("raster.pdf.truncated", "path", path, "pages", n, "max_pages", r.cfg.MaxPages)
		limit = r.cfg.MaxPages
	}

	var images []image.Image
	switch r.cfg.Backend {
	case BackendContainer:
		images, err = r.convertRemote(ctx, path)
	default:
		images, err = r.pdftoppm(ctx, path, limit)
	}
	if err != nil {
		return nil, err
	}
	if len(images) > limit {
		images = images[:limit]
	}
	pages := make([]entity.Page, len(images))
	for i, img := range images {
		pages[i] = entity.Page{Index: i + 1, Image: img}
	}
	return pages, nil
}

func (r *Rasterizer) convertRemote(ctx context.Context, path string) ([]image.Image, error) {
	if r.converter == nil {
		return nil, common.ConfigurationError("raster: container backend has no converter")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	encoded, err := r.converter.ConvertPDF(ctx, data)
	if err != nil {
		return nil, err
	}
	out := make([]image.Image, 0, len(encoded))
	for i, b := range encoded {
		img, err := decodeBytes(b)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i+1, err)
		}
		out = append(out, img)
	}
	return out, nil
}
