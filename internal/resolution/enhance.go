package resolution

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"golang.org/x/image/draw"

	"github.com/joseph-ayodele/payslip-extractor/internal/common"
)

// Prepared is a region image ready for one inference attempt.
type Prepared struct {
	Resolution int // requested long edge
	Size       image.Point
	Data       []byte
	MIMEType   string
}

// Scale shrinks img so its long edge is at most longEdge. Images already
// within the limit are returned unchanged; they are never upscaled.
func Scale(img image.Image, longEdge int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	long := max(w, h)
	if longEdge <= 0 || long <= longEdge {
		return img
	}
	ratio := float64(longEdge) / float64(long)
	nw := max(1, int(float64(w)*ratio+0.5))
	nh := max(1, int(float64(h)*ratio+0.5))

	dst := image.NewNRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// Enhance applies contrast, sharpen and brightness in that order. Factors
// follow the usual enhancement convention where 1.0 leaves the image as is.
func Enhance(img image.Image, cfg common.EnhanceConfig) image.Image {
	if !cfg.Enabled {
		return img
	}
	out := imaging.Clone(img)
	if cfg.Contrast > 0 && cfg.Contrast != 1 {
		out = imaging.AdjustContrast(out, factorToPercent(cfg.Contrast))
	}
	if cfg.Sharpen > 1 {
		out = imaging.Sharpen(out, cfg.Sharpen-1)
	}
	if cfg.Brightness > 0 && cfg.Brightness != 1 {
		out = imaging.AdjustBrightness(out, factorToPercent(cfg.Brightness))
	}
	return out
}

func factorToPercent(f float64) float64 {
	p := (f - 1) * 100
	return min(100, max(-100, p))
}

// Encode renders img as JPEG.
func Encode(img image.Image, quality int) ([]byte, error) {
	if quality <= 0 || quality > 100 {
		quality = 90
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
