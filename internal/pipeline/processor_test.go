package pipeline

import (
	"context"
	"image"
	"image/color"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/payslip-extractor/constants"
	"github.com/joseph-ayodele/payslip-extractor/internal/common"
	"github.com/joseph-ayodele/payslip-extractor/internal/entity"
	"github.com/joseph-ayodele/payslip-extractor/internal/inference"
	"github.com/joseph-ayodele/payslip-extractor/internal/llm"
)

type scriptedClient struct {
	mu      sync.Mutex
	calls   int
	windows []string
	reply   func(req llm.Request) (string, error)
}

func (c *scriptedClient) Generate(ctx context.Context, req llm.Request) (llm.Response, error) {
	c.mu.Lock()
	c.calls++
	c.windows = append(c.windows, req.Window)
	c.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return llm.Response{}, err
	}
	text, err := c.reply(req)
	return llm.Response{Text: text, Applied: req.Isolation}, err
}

type stubRaster struct {
	doc entity.Document
	err error
}

func (s stubRaster) Rasterize(context.Context, string) (entity.Document, error) {
	return s.doc, s.err
}

func page(index, w, h int) entity.Page {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y += 7 {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{A: 255})
		}
	}
	return entity.Page{Index: index, Image: img}
}

func testConfig() common.PipelineConfig {
	cfg := common.DefaultPipelineConfig()
	cfg.Enhance.Enabled = false
	return cfg
}

func newProcessor(t *testing.T, cfg common.PipelineConfig, client llm.Client, raster Rasterizer) *Processor {
	t.Helper()
	d := inference.NewDispatcher(client, inference.Config{Timeout: common.TimeoutConfig{
		Base: time.Minute, ScalingFactor: 1, Max: time.Hour, CPUMultiplier: 2,
	}}, nil)
	p, err := NewProcessor(cfg, Deps{Dispatcher: d, Raster: raster, MaxConcurrency: 2}, nil)
	require.NoError(t, err)
	return p
}

func payslipReplies(req llm.Request) (string, error) {
	switch req.Window {
	case constants.RegionTop:
		return `{"found_in_top":{"employee_name":"Erika Mustermann","gross_amount":"0","net_amount":"0"}}`, nil
	case constants.RegionBottom:
		return `{"found_in_bottom":{"employee_name":"unknown","gross_amount":"2.124,00","net_amount":"1.374,78"}}`, nil
	}
	return `{}`, nil
}

func fieldValues(p entity.PageResult) map[string]string {
	out := map[string]string{}
	for _, f := range p.Fields {
		out[f.Name] = f.Value
	}
	return out
}

func TestProcessDocumentVertical(t *testing.T) {
	client := &scriptedClient{reply: payslipReplies}
	p := newProcessor(t, testConfig(), client, nil)

	run := inference.NewRun(constants.IsolationAuto)
	results, err := p.ProcessDocument(context.Background(), run, entity.Document{Pages: []entity.Page{page(1, 400, 600)}})
	require.NoError(t, err)
	require.Len(t, results, 1)

	assert.Equal(t, map[string]string{
		"employee_name": "Erika Mustermann",
		"gross_amount":  "2124.00",
		"net_amount":    "1374.78",
	}, fieldValues(results[0]))
	assert.Equal(t, constants.WindowVertical, results[0].WindowMode)
	assert.Equal(t, []string{"bottom", "top"}, results[0].ProcessedWindows)
	assert.Equal(t, 2, client.calls)
	assert.Equal(t, 2, run.Stats().StrictSucceeded)
}

func TestProcessDocumentIsIdempotent(t *testing.T) {
	client := &scriptedClient{reply: payslipReplies}
	p := newProcessor(t, testConfig(), client, nil)
	doc := entity.Document{Pages: []entity.Page{page(1, 400, 600), page(2, 400, 600)}}

	first, err := p.ProcessDocument(context.Background(), nil, doc)
	require.NoError(t, err)
	second, err := p.ProcessDocument(context.Background(), nil, doc)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, first[0].Page)
	assert.Equal(t, 2, first[1].Page)
}

func TestProcessDocumentUnparseableRepliesYieldSentinels(t *testing.T) {
	client := &scriptedClient{reply: func(llm.Request) (string, error) {
		return "Ich kann auf diesem Bild leider nichts erkennen.", nil
	}}
	p := newProcessor(t, testConfig(), client, nil)

	results, err := p.ProcessDocument(context.Background(), nil, entity.Document{Pages: []entity.Page{page(1, 400, 600)}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, map[string]string{"employee_name": "unknown", "gross_amount": "0", "net_amount": "0"}, fieldValues(results[0]))
	for _, f := range results[0].Fields {
		assert.True(t, f.Sentinel)
	}
	assert.Empty(t, results[0].ProcessedWindows)
}

func TestProcessDocumentFailedRegion(t *testing.T) {
	client := &scriptedClient{reply: func(req llm.Request) (string, error) {
		if req.Window == constants.RegionBottom {
			return "", common.TransportError("connection reset", nil)
		}
		return payslipReplies(req)
	}}
	cfg := testConfig()
	cfg.ResolutionSteps = []int{500, 300}
	p := newProcessor(t, cfg, client, nil)

	run := inference.NewRun(constants.IsolationNone)
	results, err := p.ProcessDocument(context.Background(), run, entity.Document{Pages: []entity.Page{page(1, 400, 600)}})
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		"employee_name": "Erika Mustermann",
		"gross_amount":  "0",
		"net_amount":    "0",
	}, fieldValues(results[0]))
	assert.Equal(t, []string{"bottom"}, results[0].FailedWindows)
	assert.Equal(t, []string{"top"}, results[0].ProcessedWindows)
	assert.Equal(t, 2, run.Stats().TransportErrors, "bottom retried at the smaller step")
}

func TestProcessDocumentPageOverride(t *testing.T) {
	client := &scriptedClient{reply: func(req llm.Request) (string, error) {
		if req.Window == constants.RegionWhole {
			return `{"found_in_whole":{"employee_name":"Hans Mueller","gross_amount":"3.500,00","net_amount":"2.200,50"}}`, nil
		}
		return payslipReplies(req)
	}}
	cfg := testConfig()
	cfg.Pages = map[int]common.PageOverride{2: {WindowMode: constants.WindowWhole}}
	p := newProcessor(t, cfg, client, nil)

	results, err := p.ProcessDocument(context.Background(), nil, entity.Document{Pages: []entity.Page{page(1, 400, 600), page(2, 400, 600)}})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, constants.WindowVertical, results[0].WindowMode)
	assert.Equal(t, constants.WindowWhole, results[1].WindowMode)
	assert.Equal(t, "Hans Mueller", fieldValues(results[1])["employee_name"])
	assert.Equal(t, "2200.50", fieldValues(results[1])["net_amount"])
}

func TestProcessDocumentCancelled(t *testing.T) {
	client := &scriptedClient{reply: payslipReplies}
	p := newProcessor(t, testConfig(), client, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.ProcessDocument(ctx, nil, entity.Document{Pages: []entity.Page{page(1, 400, 600)}})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, client.calls)
}

func TestProcessDocumentPageTooSmall(t *testing.T) {
	p := newProcessor(t, testConfig(), &scriptedClient{reply: payslipReplies}, nil)
	_, err := p.ProcessDocument(context.Background(), nil, entity.Document{Pages: []entity.Page{page(1, 80, 120)}})
	require.Error(t, err)
	assert.True(t, common.IsKind(err, common.CodeConfiguration))
}

func TestProcessFile(t *testing.T) {
	raster := stubRaster{doc: entity.Document{Source: "a.pdf", Pages: []entity.Page{page(1, 400, 600)}}}
	p := newProcessor(t, testConfig(), &scriptedClient{reply: payslipReplies}, raster)

	results, err := p.ProcessFile(context.Background(), nil, "a.pdf")
	require.NoError(t, err)
	require.Len(t, results, 1)

	p = newProcessor(t, testConfig(), &scriptedClient{reply: payslipReplies}, stubRaster{err: common.RasterError("broken xref", nil)})
	_, err = p.ProcessFile(context.Background(), nil, "bad.pdf")
	require.Error(t, err)
	assert.True(t, common.IsKind(err, common.CodeRaster))
	assert.True(t, strings.Contains(err.Error(), "bad.pdf"))
}

func TestNewProcessorRejectsBadPrecedence(t *testing.T) {
	cfg := testConfig()
	cfg.Precedence = map[string]map[string][]string{"vertical": {"net_amount": {"top_left"}}}
	d := inference.NewDispatcher(&scriptedClient{}, inference.Config{}, nil)
	_, err := NewProcessor(cfg, Deps{Dispatcher: d}, nil)
	assert.True(t, common.IsKind(err, common.CodeConfiguration))
}
