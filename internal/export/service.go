package export

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/payslip-extractor/constants"
	"github.com/joseph-ayodele/payslip-extractor/internal/entity"
)

const (
	SheetSummary = "Summary"
	SheetPages   = "Pages"
	SheetErrors  = "Errors"
)

var pageHeaders = []string{
	"File",
	"Page",
	"Document Type",
	"Window Mode",
	"Field",
	"Value",
	"Region",
	"Source",
	"Low Confidence",
	"Expected",
	"Matches",
}

// Service renders batch results as XLSX reports.
type Service struct {
	logger *slog.Logger
}

func NewService(logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{logger: logger}
}

// BatchWorkbook returns the report workbook for res as bytes.
func (s *Service) BatchWorkbook(ctx context.Context, res entity.BatchResult) ([]byte, error) {
	start := time.Now()

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	// The default sheet becomes the summary.
	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	for _, sheet := range []string{SheetPages, SheetErrors} {
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, fmt.Errorf("new sheet %s: %w", sheet, err)
		}
	}
	activeIndex, _ := f.GetSheetIndex(SheetSummary)
	f.SetActiveSheet(activeIndex)

	writeSummary(f, res)
	rows, err := writePages(ctx, f, res)
	if err != nil {
		return nil, err
	}
	writeErrors(f, res)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"run_id", res.RunID,
		"files", len(res.Files),
		"rows", rows,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

// WriteFile renders res and writes the workbook to path.
func (s *Service) WriteFile(ctx context.Context, res entity.BatchResult, path string) error {
	data, err := s.BatchWorkbook(ctx, res)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func writeSummary(f *excelize.File, res entity.BatchResult) {
	rows := [][2]any{
		{"Run ID", res.RunID},
		{"Total Files", res.Total},
		{"Successful", res.Successful},
		{"Failed", res.Failed},
		{"Elapsed (ms)", res.ElapsedMs},
		{"Isolation Requested", string(res.Stats.Requested)},
		{"Isolation Reported", string(res.Stats.Reported)},
		{"Strict Succeeded", res.Stats.StrictSucceeded},
		{"Medium Used", res.Stats.MediumUsed},
		{"Fallbacks Occurred", res.Stats.FallbacksOccurred},
		{"Attempts", res.Stats.Attempts},
		{"Timeouts", res.Stats.Timeouts},
		{"Transport Errors", res.Stats.TransportErrors},
		{"Resource Exhausted", res.Stats.ResourceExhausted},
	}
	for i, r := range rows {
		_ = f.SetCellValue(SheetSummary, cell(1, i+1), r[0])
		_ = f.SetCellValue(SheetSummary, cell(2, i+1), r[1])
	}
	_ = f.SetColWidth(SheetSummary, "A", "A", 22)
	_ = f.SetColWidth(SheetSummary, "B", "B", 40)
}

func writePages(ctx context.Context, f *excelize.File, res entity.BatchResult) (int, error) {
	for i, h := range pageHeaders {
		_ = f.SetCellValue(SheetPages, cell(i+1, 1), h)
	}

	row := 2
	for _, file := range res.Files {
		if err := ctx.Err(); err != nil {
			return row - 2, err
		}
		byPage := make(map[int]entity.Comparison, len(file.Comparisons))
		for _, c := range file.Comparisons {
			byPage[c.Page] = c
		}
		for _, page := range file.Pages {
			cmp, validated := byPage[page.Page]
			for _, fld := range page.Fields {
				write := func(col int, v any) {
					_ = f.SetCellValue(SheetPages, cell(col, row), v)
				}
				write(1, file.Path)
				write(2, page.Page)
				write(3, string(page.DocumentType))
				write(4, string(page.WindowMode))
				write(5, fld.Name)
				if fld.Amount != nil {
					write(6, *fld.Amount)
				} else {
					write(6, fld.Value)
				}
				write(7, fld.Region)
				write(8, string(fld.Source))
				write(9, fld.LowConfidence)
				if validated {
					if m, ok := matchFor(cmp, fld.Name); ok {
						write(10, m.Stored)
						write(11, m.Matches)
					}
				}
				row++
			}
		}
	}

	_ = f.SetColWidth(SheetPages, "A", "A", 48) // path
	_ = f.SetColWidth(SheetPages, "C", "E", 16)
	_ = f.SetColWidth(SheetPages, "F", "F", 28)
	_ = f.SetColWidth(SheetPages, "G", "K", 14)
	return row - 2, nil
}

func writeErrors(f *excelize.File, res entity.BatchResult) {
	_ = f.SetCellValue(SheetErrors, "A1", "File")
	_ = f.SetCellValue(SheetErrors, "B1", "Error")
	row := 2
	for _, file := range res.Files {
		if file.Success {
			continue
		}
		_ = f.SetCellValue(SheetErrors, cell(1, row), file.Path)
		_ = f.SetCellValue(SheetErrors, cell(2, row), file.Error)
		row++
	}
	_ = f.SetColWidth(SheetErrors, "A", "A", 48)
	_ = f.SetColWidth(SheetErrors, "B", "B", 80)
}

// matchFor returns the comparison entry that belongs to a payslip field.
func matchFor(cmp entity.Comparison, field string) (entity.FieldMatch, bool) {
	switch field {
	case constants.FieldEmployeeName:
		if cmp.Employee != nil {
			return cmp.Employee.Name, true
		}
	case constants.FieldGrossAmount:
		if cmp.Payment != nil {
			return cmp.Payment.Gross, true
		}
	case constants.FieldNetAmount:
		if cmp.Payment != nil {
			return cmp.Payment.Net, true
		}
	}
	return entity.FieldMatch{}, false
}

func cell(col, row int) string {
	name, _ := excelize.CoordinatesToCellName(col, row)
	return name
}
