package region

import (
	"fmt"
	"image"
	"log/slog"
	"math"

	"golang.org/x/image/draw"

	"github.com/joseph-ayodele/payslip-extractor/constants"
	"github.com/joseph-ayodele/payslip-extractor/internal/common"
	"github.com/joseph-ayodele/payslip-extractor/internal/entity"
)

type Config struct {
	Overlap float64 // fraction of the split dimension, [0, 0.5]
	MinSize int     // minimum side length in pixels
	// StrictWindows turns an all-invalid selection into an error instead of
	// falling back to every window of the mode.
	StrictWindows bool
}

// Planner partitions a page into the regions submitted for extraction.
type Planner struct {
	cfg    Config
	logger *slog.Logger
}

func NewPlanner(cfg Config, logger *slog.Logger) *Planner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Planner{cfg: cfg, logger: logger}
}

// Plan returns the concrete mode and the selected regions in canonical order.
func (p *Planner) Plan(bounds image.Rectangle, mode constants.WindowMode, selected []string) (constants.WindowMode, []entity.Region, error) {
	if p.cfg.Overlap < 0 || p.cfg.Overlap > 0.5 || math.IsNaN(p.cfg.Overlap) {
		return mode, nil, common.ConfigurationErrorf("overlap %.3f outside [0, 0.5]", p.cfg.Overlap)
	}
	if bounds.Empty() {
		return mode, nil, common.ConfigurationError("page has no pixels")
	}

	if mode == constants.WindowAuto {
		mode = constants.ResolveAuto(bounds.Dx(), bounds.Dy())
		p.logger.Debug("region.plan.auto", "width", bounds.Dx(), "height", bounds.Dy(), "resolved", mode)
	}

	all, err := p.split(bounds, mode)
	if err != nil {
		return mode, nil, err
	}

	names, err := p.selection(mode, selected)
	if err != nil {
		return mode, nil, err
	}

	regions := make([]entity.Region, 0, len(names))
	for _, r := range all {
		if _, ok := names[r.Name]; !ok {
			continue
		}
		if r.Bounds.Dx() < p.cfg.MinSize || r.Bounds.Dy() < p.cfg.MinSize {
			return mode, nil, common.ConfigurationErrorf(
				"region %s is %dx%d, below min_size %d", r.Name, r.Bounds.Dx(), r.Bounds.Dy(), p.cfg.MinSize)
		}
		regions = append(regions, r)
	}
	return mode, regions, nil
}

func (p *Planner) selection(mode constants.WindowMode, selected []string) (map[string]struct{}, error) {
	out := map[string]struct{}{}
	if mode == constants.WindowWhole {
		out[constants.RegionWhole] = struct{}{}
		return out, nil
	}

	var invalid []string
	for _, name := range selected {
		if mode.ValidWindow(name) {
			out[name] = struct{}{}
		} else {
			invalid = append(invalid, name)
		}
	}
	if len(invalid) > 0 {
		p.logger.Warn("region.plan.invalid_windows", "mode", mode, "invalid", invalid)
	}
	if len(out) == 0 {
		if len(selected) > 0 && p.cfg.StrictWindows {
			return nil, common.ConfigurationErrorf("no valid windows for mode %s in %v", mode, selected)
		}
		for _, name := range mode.Windows() {
			out[name] = struct{}{}
		}
	}
	return out, nil
}

func (p *Planner) split(b image.Rectangle, mode constants.WindowMode) ([]entity.Region, error) {
	ov := p.cfg.Overlap
	switch mode {
	case constants.WindowWhole:
		return []entity.Region{{Name: constants.RegionWhole, Bounds: b}}, nil

	case constants.WindowVertical:
		top, bottom := halves(b.Min.Y, b.Max.Y, ov)
		return []entity.Region{
			{Name: constants.RegionTop, Bounds: image.Rect(b.Min.X, top.lo, b.Max.X, top.hi), Overlap: ov},
			{Name: constants.RegionBottom, Bounds: image.Rect(b.Min.X, bottom.lo, b.Max.X, bottom.hi), Overlap: ov},
		}, nil

	case constants.WindowHorizontal:
		left, right := halves(b.Min.X, b.Max.X, ov)
		return []entity.Region{
			{Name: constants.RegionLeft, Bounds: image.Rect(left.lo, b.Min.Y, left.hi, b.Max.Y), Overlap: ov},
			{Name: constants.RegionRight, Bounds: image.Rect(right.lo, b.Min.Y, right.hi, b.Max.Y), Overlap: ov},
		}, nil

	case constants.WindowQuadrant:
		top, bottom := halves(b.Min.Y, b.Max.Y, ov)
		left, right := halves(b.Min.X, b.Max.X, ov)
		return []entity.Region{
			{Name: constants.RegionTopLeft, Bounds: image.Rect(left.lo, top.lo, left.hi, top.hi), Overlap: ov},
			{Name: constants.RegionTopRight, Bounds: image.Rect(right.lo, top.lo, right.hi, top.hi), Overlap: ov},
			{Name: constants.RegionBottomLeft, Bounds: image.Rect(left.lo, bottom.lo, left.hi, bottom.hi), Overlap: ov},
			{Name: constants.RegionBottomRight, Bounds: image.Rect(right.lo, bottom.lo, right.hi, bottom.hi), Overlap: ov},
		}, nil
	}
	return nil, common.ConfigurationErrorf("unsupported window mode %q", mode)
}

type span struct{ lo, hi int }

// halves splits [lo, hi) at its midpoint and extends each half toward the
// other by round(overlap * length), clamped to the range.
func halves(lo, hi int, overlap float64) (first, second span) {
	length := hi - lo
	mid := lo + length/2
	ext := int(math.Round(overlap * float64(length)))
	first = span{lo: lo, hi: min(hi, mid+ext)}
	second = span{lo: max(lo, mid-ext), hi: hi}
	return first, second
}

// Crop copies the region out of the page so later processing never aliases
// page pixels.
func Crop(page image.Image, r entity.Region) (image.Image, error) {
	if !r.Bounds.In(page.Bounds()) {
		return nil, common.ConfigurationError(fmt.Sprintf("region %s %v exceeds page %v", r.Name, r.Bounds, page.Bounds()))
	}
	dst := image.NewNRGBA(image.Rect(0, 0, r.Bounds.Dx(), r.Bounds.Dy()))
	draw.Draw(dst, dst.Bounds(), page, r.Bounds.Min, draw.Src)
	return dst, nil
}
