package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"

	"github.com/joseph-ayodele/payslip-extractor/internal/common"
	"github.com/joseph-ayodele/payslip-extractor/internal/region"
	"github.com/joseph-ayodele/payslip-extractor/internal/services/extraction"
)

// runraster renders a file and writes each page plus the regions the
// configured window mode would submit, for checking crops by eye.
func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if len(os.Args) < 2 || len(os.Args) > 3 {
		logger.Error("usage", "cmd", "runraster <file> [out-dir]")
		os.Exit(2)
	}
	path := os.Args[1]
	outDir := "./tmp"
	if len(os.Args) == 3 {
		outDir = os.Args[2]
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		logger.Error("create output dir", "dir", outDir, "error", err)
		os.Exit(1)
	}

	cfg, err := common.LoadConfigFile(os.Getenv("PAYSLIP_CONFIG"))
	if err != nil {
		logger.Error("load config", "error", err)
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	svc, err := extraction.New(ctx, cfg, logger, extraction.WithoutStore())
	if err != nil {
		logger.Error("wire extraction", "error", err)
		os.Exit(1)
	}
	defer svc.Close()

	start := time.Now()
	doc, err := svc.Raster.Rasterize(ctx, path)
	if err != nil {
		logger.Error("rasterization failed", "error", err, "kind", common.KindOf(err),
			"duration_ms", time.Since(start).Milliseconds())
		os.Exit(1)
	}

	planner := region.NewPlanner(region.Config{
		Overlap:       cfg.Pipeline.Overlap,
		MinSize:       cfg.Pipeline.MinSize,
		StrictWindows: cfg.Pipeline.StrictWindows,
	}, logger)
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	written := 0
	for _, page := range doc.Pages {
		n := page.Index + 1
		pagePath := filepath.Join(outDir, fmt.Sprintf("%s_p%d.png", base, n))
		if err := imaging.Save(page.Image, pagePath); err != nil {
			logger.Error("write page", "path", pagePath, "error", err)
			os.Exit(1)
		}
		written++

		mode, selected := cfg.Pipeline.ForPage(n)
		mode, regions, err := planner.Plan(page.Image.Bounds(), mode, selected)
		if err != nil {
			logger.Error("plan regions", "page", n, "error", err)
			os.Exit(1)
		}
		for _, r := range regions {
			crop, err := region.Crop(page.Image, r)
			if err != nil {
				logger.Error("crop region", "page", n, "region", r.Name, "error", err)
				os.Exit(1)
			}
			cropPath := filepath.Join(outDir, fmt.Sprintf("%s_p%d_%s.png", base, n, r.Name))
			if err := imaging.Save(crop, cropPath); err != nil {
				logger.Error("write region", "path", cropPath, "error", err)
				os.Exit(1)
			}
			written++
			logger.Info("region", "page", n, "mode", mode, "name", r.Name, "bounds", r.Bounds.String())
		}
	}

	logger.Info("rasterization OK",
		"pages", len(doc.Pages),
		"files_written", written,
		"out_dir", outDir,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}
