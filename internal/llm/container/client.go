package container

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/joseph-ayodele/payslip-extractor/constants"
	"github.com/joseph-ayodele/payslip-extractor/internal/common"
	"github.com/joseph-ayodele/payslip-extractor/internal/llm"
)

const DefaultEndpoint = "http://localhost:27842"

// Config for the containerised vision-language model service.
type Config struct {
	Endpoint string
	// HTTPClient overrides the default client; per-attempt deadlines come from
	// the request context, so it should not carry its own timeout.
	HTTPClient *http.Client
}

// Client talks to the model container over its HTTP API.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")
	if logger == nil {
		logger = slog.Default()
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	return &Client{cfg: cfg, http: hc, logger: logger}
}

type processResponse struct {
	Results       []map[string]json.RawMessage `json:"results"`
	RawText       string                       `json:"raw_text"`
	Text          string                       `json:"text"`
	IsolationMode string                       `json:"isolation_mode"`
	Error         string                       `json:"error"`
}

// Generate submits one region as a whole-window job and returns the region
// object the container produced, re-encoded as JSON text.
func (c *Client) Generate(ctx context.Context, req llm.Request) (llm.Response, error) {
	fields := map[string]string{
		"window_mode":              string(constants.WindowWhole),
		"prompt_whole":             req.Prompt,
		"override_global_settings": "true",
	}
	if req.Isolation != "" {
		fields["memory_isolation"] = string(req.Isolation)
	}
	if req.ForceCPU {
		fields["force_cpu"] = "true"
	}
	g := req.Generation
	if g.MaxNewTokens > 0 {
		fields["text_generation_max_new_tokens"] = strconv.Itoa(g.MaxNewTokens)
	}
	fields["text_generation_temperature"] = strconv.FormatFloat(g.Temperature, 'f', -1, 64)
	if g.TopP > 0 {
		fields["text_generation_top_p"] = strconv.FormatFloat(g.TopP, 'f', -1, 64)
	}
	fields["text_generation_use_beam_search"] = strconv.FormatBool(g.UseBeamSearch)
	if g.NumBeams > 0 {
		fields["text_generation_num_beams"] = strconv.Itoa(g.NumBeams)
	}

	mimeType := req.MIMEType
	if mimeType == "" {
		mimeType = llm.DetectMIME(req.Image)
	}
	file := &llm.FilePart{Field: "file", Name: llm.FileName(req.Window, mimeType), MIMEType: mimeType, Data: req.Image}

	raw, _, err := llm.PostMultipart(ctx, c.http, c.cfg.Endpoint+"/process/image", fields, file, c.logger)
	if err != nil {
		return llm.Response{}, classify(err, req.Isolation)
	}

	var pr processResponse
	if err := json.Unmarshal(raw, &pr); err != nil {
		// Some builds return the model text verbatim.
		return llm.Response{Text: string(raw)}, nil
	}
	if pr.Error != "" {
		return llm.Response{}, classify(errors.New(pr.Error), req.Isolation)
	}

	var applied constants.IsolationMode
	if m, ok := constants.ParseIsolationMode(pr.IsolationMode); ok {
		applied = m
	}
	if req.Isolation == constants.IsolationStrict && applied != "" && applied.Strength() < req.Isolation.Strength() {
		return llm.Response{}, common.IsolationUnavailableError(
			fmt.Sprintf("container applied %s isolation", applied), nil)
	}

	return llm.Response{Text: regionText(pr, raw), Applied: applied}, nil
}

// regionText prefers the first structured result, then any raw text.
func regionText(pr processResponse, raw []byte) string {
	for _, res := range pr.Results {
		if len(res) == 0 {
			continue
		}
		b, err := json.Marshal(res)
		if err == nil {
			return string(b)
		}
	}
	if pr.RawText != "" {
		return pr.RawText
	}
	if pr.Text != "" {
		return pr.Text
	}
	return string(raw)
}

// classify maps container failures onto the common error codes.
func classify(err error, isolation constants.IsolationMode) error {
	var he *llm.HTTPError
	if errors.As(err, &he) {
		body := strings.ToLower(string(he.Body))
		switch {
		case he.Status == http.StatusInsufficientStorage || isOOM(body):
			return common.ResourceExhaustedError("inference backend out of memory", err)
		case isolationRefused(he.Status, body, isolation):
			return common.IsolationUnavailableError("strict isolation not available", err)
		case he.Status == http.StatusGatewayTimeout || he.Status == http.StatusRequestTimeout:
			return common.TimeoutError("inference backend timed out", err)
		case he.Status == http.StatusBadRequest || he.Status == http.StatusUnprocessableEntity:
			return common.ContentError("inference backend rejected the request", err)
		default:
			return common.TransportError(fmt.Sprintf("inference backend returned %d", he.Status), err)
		}
	}
	if common.KindOf(err) != "" || errors.Is(err, context.Canceled) {
		return err
	}
	msg := strings.ToLower(err.Error())
	if isOOM(msg) {
		return common.ResourceExhaustedError("inference backend out of memory", err)
	}
	if isolationRefused(0, msg, isolation) {
		return common.IsolationUnavailableError("strict isolation not available", err)
	}
	return common.TransportError("inference failed", err)
}

func isOOM(s string) bool {
	return strings.Contains(s, "out of memory") || strings.Contains(s, "outofmemory") ||
		strings.Contains(s, "cuda error: out")
}

func isolationRefused(status int, body string, isolation constants.IsolationMode) bool {
	if isolation != constants.IsolationStrict {
		return false
	}
	return status == http.StatusConflict || status == http.StatusNotImplemented ||
		strings.Contains(body, "isolation") && (strings.Contains(body, "unavailable") || strings.Contains(body, "not supported"))
}

type statusResponse struct {
	Status string `json:"status"`
	Ready  bool   `json:"ready"`
	Model  string `json:"model"`
	Device string `json:"device"`
}

// Status queries the container health endpoint.
func (c *Client) Status(ctx context.Context) (llm.Status, error) {
	raw, _, err := llm.Send(ctx, c.http, http.MethodGet, c.cfg.Endpoint+"/status", "", nil, c.logger)
	if err != nil {
		return llm.Status{}, classify(err, "")
	}
	var sr statusResponse
	if err := json.Unmarshal(raw, &sr); err != nil {
		return llm.Status{}, common.TransportError("decode status", err)
	}
	return llm.Status{
		Ready:  sr.Ready || sr.Status == "ok",
		Device: strings.ToLower(sr.Device),
		Model:  sr.Model,
	}, nil
}

// Cleanup asks the container to release accelerator memory.
func (c *Client) Cleanup(ctx context.Context) error {
	raw, _, err := llm.Send(ctx, c.http, http.MethodPost, c.cfg.Endpoint+"/cleanup/memory", "", nil, c.logger)
	if err != nil {
		return classify(err, "")
	}
	var out struct {
		Message       string  `json:"message"`
		MemoryFreedMB float64 `json:"memory_freed_mb"`
	}
	if json.Unmarshal(raw, &out) == nil {
		c.logger.Info("llm.container.cleanup", "message", out.Message, "memory_freed_mb", out.MemoryFreedMB)
	}
	return nil
}

// ConvertPDF rasterizes a PDF server-side and returns the encoded page images.
func (c *Client) ConvertPDF(ctx context.Context, pdf []byte) ([][]byte, error) {
	file := &llm.FilePart{Field: "file", Name: "document.pdf", MIMEType: "application/pdf", Data: pdf}
	raw, _, err := llm.PostMultipart(ctx, c.http, c.cfg.Endpoint+"/convert/pdf-to-images",
		map[string]string{"return_images": "true"}, file, c.logger)
	if err != nil {
		return nil, classify(err, "")
	}
	var out struct {
		Images []string `json:"images"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, common.RasterError("decode pdf conversion response", err)
	}
	pages := make([][]byte, 0, len(out.Images))
	for i, s := range out.Images {
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, common.RasterError(fmt.Sprintf("decode page %d", i+1), err)
		}
		pages = append(pages, b)
	}
	if len(pages) == 0 {
		return nil, common.RasterError("pdf conversion returned no pages", nil)
	}
	return pages, nil
}
