package export

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/payslip-extractor/constants"
	"github.com/joseph-ayodele/payslip-extractor/internal/entity"
)

func sampleResult() entity.BatchResult {
	gross, net := 2124.0, 1374.78
	return entity.BatchResult{
		RunID:      "run-1",
		Total:      2,
		Successful: 1,
		Failed:     1,
		ElapsedMs:  1500,
		Stats: entity.RunStats{
			Requested:         constants.IsolationStrict,
			Reported:          constants.IsolationMixed,
			StrictSucceeded:   1,
			MediumUsed:        1,
			FallbacksOccurred: 1,
			Attempts:          3,
		},
		Files: []entity.FileOutcome{
			{
				Index:   0,
				Path:    "/in/erika.pdf",
				Success: true,
				Pages: []entity.PageResult{{
					Page:         1,
					DocumentType: constants.DocumentPayslip,
					WindowMode:   constants.WindowVertical,
					Fields: []entity.ResolvedField{
						{Name: constants.FieldEmployeeName, Value: "Erika Mustermann", Region: "top", Source: entity.SourceJSON},
						{Name: constants.FieldGrossAmount, Value: "2124.00", Amount: &gross, Region: "bottom", Source: entity.SourceJSON},
						{Name: constants.FieldNetAmount, Value: "1374.78", Amount: &net, Region: "bottom", Source: entity.SourceRegex, LowConfidence: true},
					},
				}},
				Comparisons: []entity.Comparison{{
					Page:          1,
					EmployeeFound: true,
					Employee: &entity.EmployeeComparison{
						ID:   "EMP001",
						Name: entity.FieldMatch{Extracted: "Erika Mustermann", Stored: "Erika Mustermann", Matches: true},
					},
					Payment: &entity.PaymentComparison{
						Gross: entity.FieldMatch{Extracted: 2124.0, Stored: 2124.0, Matches: true},
						Net:   entity.FieldMatch{Extracted: 1374.78, Stored: 1300.0, Matches: false},
					},
				}},
			},
			{Index: 1, Path: "/in/broken.pdf", Error: "RASTER_ERROR: corrupt pdf"},
		},
	}
}

func open(t *testing.T, data []byte) *excelize.File {
	t.Helper()
	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func TestBatchWorkbookSheets(t *testing.T) {
	data, err := NewService(nil).BatchWorkbook(context.Background(), sampleResult())
	require.NoError(t, err)

	f := open(t, data)
	assert.Equal(t, []string{SheetSummary, SheetPages, SheetErrors}, f.GetSheetList())

	summary, err := f.GetRows(SheetSummary)
	require.NoError(t, err)
	got := map[string]string{}
	for _, r := range summary {
		require.Len(t, r, 2)
		got[r[0]] = r[1]
	}
	assert.Equal(t, "run-1", got["Run ID"])
	assert.Equal(t, "2", got["Total Files"])
	assert.Equal(t, "1", got["Failed"])
	assert.Equal(t, "mixed", got["Isolation Reported"])
	assert.Equal(t, "3", got["Attempts"])
}

func TestBatchWorkbookPages(t *testing.T) {
	data, err := NewService(nil).BatchWorkbook(context.Background(), sampleResult())
	require.NoError(t, err)

	rows, err := open(t, data).GetRows(SheetPages)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, pageHeaders, rows[0])

	name := rows[1]
	assert.Equal(t, "/in/erika.pdf", name[0])
	assert.Equal(t, "1", name[1])
	assert.Equal(t, "employee_name", name[4])
	assert.Equal(t, "Erika Mustermann", name[5])
	assert.Equal(t, "top", name[6])
	assert.Equal(t, "Erika Mustermann", name[9])
	assert.Equal(t, "TRUE", name[10])

	gross := rows[2]
	assert.Equal(t, "2124", gross[5])
	assert.Equal(t, "TRUE", gross[10])

	net := rows[3]
	assert.Equal(t, "regex", net[7])
	assert.Equal(t, "TRUE", net[8])
	assert.Equal(t, "1300", net[9])
	assert.Equal(t, "FALSE", net[10])
}

func TestBatchWorkbookErrors(t *testing.T) {
	data, err := NewService(nil).BatchWorkbook(context.Background(), sampleResult())
	require.NoError(t, err)

	rows, err := open(t, data).GetRows(SheetErrors)
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"File", "Error"},
		{"/in/broken.pdf", "RASTER_ERROR: corrupt pdf"},
	}, rows)
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.xlsx")
	require.NoError(t, NewService(nil).WriteFile(context.Background(), entity.BatchResult{RunID: "empty"}, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	rows, err := open(t, data).GetRows(SheetPages)
	require.NoError(t, err)
	assert.Len(t, rows, 1, "header only")
}

func TestBatchWorkbookCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewService(nil).BatchWorkbook(ctx, sampleResult())
	assert.ErrorIs(t, err, context.Canceled)
}
