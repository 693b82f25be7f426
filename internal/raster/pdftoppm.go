package raster

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/joseph-ayodele/payslip-extractor/internal/common"
)

func (r *Rasterizer) pdftoppm(ctx context.Context, path string, lastPage int) ([]image.Image, error) {
	tmpDir, err := os.MkdirTemp("", "payslip-pp-*")
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := os.RemoveAll(tmpDir); err != nil {
			r.logger.Warn("raster.tmp.cleanup_failed", "dir", tmpDir, "error", err)
		}
	}()

	prefix := filepath.Join(tmpDir, "page")
	// pdftoppm -r 600 -l <n> -png <in.pdf> <tmp/page>
	_, errb, err := r.runner.Run(ctx, r.cfg.Pdftoppm,
		"-r", strconv.Itoa(r.cfg.DPI), "-l", strconv.Itoa(lastPage), "-png", path, prefix)
	if err != nil {
		return nil, common.RasterError(fmt.Sprintf("pdftoppm: %s", strings.TrimSpace(string(errb))), err)
	}

	// prefix-1.png ... or prefix-01.png for larger documents; zero padding keeps
	// lexical order equal to page order.
	matches, _ := filepath.Glob(prefix + "-*.png")
	sort.Strings(matches)
	if len(matches) == 0 {
		return nil, common.RasterError("pdftoppm produced no images", nil)
	}

	out := make([]image.Image, 0, len(matches))
	for _, m := range matches {
		img, err := decodeFile(m)
		if err != nil {
			return nil, err
		}
		out = append(out, img)
	}
	return out, nil
}
