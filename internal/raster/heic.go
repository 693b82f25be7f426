package raster

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joseph-ayodele/payslip-extractor/internal/common"
)

// convertHEICtoPNG converts a HEIC/HEIF file to a temporary PNG using the
// chosen converter: "heif-convert" | "magick" | "sips". Call cleanup to remove
// the temp directory; it is non-nil whenever one was created.
func convertHEICtoPNG(ctx context.Context, r Runner, converter, in string) (string, func(), error) {
	tmpDir, err := os.MkdirTemp("", "payslip-heic-*")
	if err != nil {
		return "", nil, err
	}
	cleanup := func() { _ = os.RemoveAll(tmpDir) }
	out := filepath.Join(tmpDir, "page.png")

	var args []string
	switch converter {
	case "heif-convert":
		args = []string{in, out}
	case "magick":
		args = []string{in, out}
	case "sips":
		args = []string{"-s", "format", "png", in, "--out", out}
	default:
		return "", cleanup, common.RasterError("HEIC input needs raster.heic_converter: heif-convert | magick | sips", nil)
	}
	if _, errb, err := r.Run(ctx, converter, args...); err != nil {
		return "", cleanup, common.RasterError(fmt.Sprintf("%s failed: %s", converter, errb), err)
	}

	if _, statErr := os.Stat(out); statErr != nil {
		return "", cleanup, common.RasterError("HEIC conversion produced no output", statErr)
	}
	return out, cleanup, nil
}
