package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/joseph-ayodele/payslip-extractor/constants"
	"github.com/joseph-ayodele/payslip-extractor/internal/common"
	"github.com/joseph-ayodele/payslip-extractor/internal/llm"
)

// Config for an OpenAI-compatible vision endpoint.
type Config struct {
	APIKey  string // if empty, falls back to env OPENAI_API_KEY
	BaseURL string // default https://api.openai.com/v1
	Model   string
}

// Client implements llm.Client over chat/completions with an inline image.
// Each call is a fresh conversation, so every request is strictly isolated.
type Client struct {
	cfg    Config
	client openai.Client
	log    *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if logger == nil {
		logger = slog.Default()
	}
	client := openai.NewClient(
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(cfg.BaseURL),
		option.WithMaxRetries(0), // resolution fallback owns retries
	)
	return &Client{cfg: cfg, client: client, log: logger}
}

func (c *Client) Generate(ctx context.Context, req llm.Request) (llm.Response, error) {
	rid := common.RequestIDFromContext(ctx)
	if rid == "" {
		rid = uuid.New().String()
	}
	start := time.Now()

	mimeType := req.MIMEType
	if mimeType == "" {
		mimeType = llm.DetectMIME(req.Image)
	}
	parts := []openai.ChatCompletionContentPartUnionParam{
		openai.TextContentPart(req.Prompt),
		openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
			URL: llm.DataURL(mimeType, req.Image),
		}),
	}

	params := openai.ChatCompletionNewParams{
		Model:       c.cfg.Model,
		Messages:    []openai.ChatCompletionMessageParamUnion{openai.UserMessage(parts)},
		Temperature: openai.Float(req.Generation.Temperature),
	}
	if req.Generation.MaxNewTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.Generation.MaxNewTokens))
	}
	if req.Generation.TopP > 0 {
		params.TopP = openai.Float(req.Generation.TopP)
	}

	c.log.Debug("llm.openai.request", "req_id", rid, "model", c.cfg.Model, "window", req.Window, "image_bytes", len(req.Image))

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		c.log.Warn("llm.openai.error", "req_id", rid, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return llm.Response{}, classify(ctx, err)
	}
	if len(resp.Choices) == 0 {
		return llm.Response{}, common.ContentError("no choices in openai response", nil)
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	c.log.Debug("llm.openai.response",
		"req_id", rid,
		"chars", len(text),
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	applied := req.Isolation
	if applied == constants.IsolationAuto {
		applied = constants.IsolationStrict
	}
	return llm.Response{Text: text, Applied: applied}, nil
}

// Status reports the configured model; the hosted API is always remote.
func (c *Client) Status(ctx context.Context) (llm.Status, error) {
	if c.cfg.APIKey == "" {
		return llm.Status{}, common.ConfigurationError("openai api key not configured")
	}
	return llm.Status{Ready: true, Device: "remote", Model: c.cfg.Model}, nil
}

func classify(ctx context.Context, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return common.TimeoutError("openai request timed out", err)
	}
	var apierr *openai.Error
	if errors.As(err, &apierr) {
		switch {
		case apierr.StatusCode == http.StatusTooManyRequests || apierr.StatusCode == http.StatusRequestEntityTooLarge:
			return common.ResourceExhaustedError("openai rejected the load", err)
		case apierr.StatusCode == http.StatusBadRequest:
			return common.ContentError("openai rejected the request", err)
		case apierr.StatusCode == http.StatusUnauthorized || apierr.StatusCode == http.StatusForbidden:
			return common.ConfigurationError(fmt.Sprintf("openai auth failed: %d", apierr.StatusCode))
		default:
			return common.TransportError(fmt.Sprintf("openai status %d", apierr.StatusCode), err)
		}
	}
	return common.TransportError("openai request failed", err)
}
