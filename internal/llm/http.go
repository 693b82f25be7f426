package llm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/payslip-extractor/internal/common"
)

// FilePart is the file attached to a multipart request.
type FilePart struct {
	Field    string
	Name     string
	MIMEType string
	Data     []byte
}

// HTTPError is returned for non-2xx responses; Body holds the raw reply.
type HTTPError struct {
	Status int
	Body   []byte
}

func (e *HTTPError) Error() string {
	body := e.Body
	if len(body) > 256 {
		body = body[:256]
	}
	return fmt.Sprintf("non-2xx status: %d: %s", e.Status, bytes.TrimSpace(body))
}

// PostMultipart sends form fields plus an optional file and returns the raw body.
func PostMultipart(ctx context.Context, client *http.Client, url string, fields map[string]string, file *FilePart, logger *slog.Logger) ([]byte, int, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, 0, fmt.Errorf("write field %s: %w", k, err)
		}
	}
	if file != nil {
		fw, err := w.CreateFormFile(file.Field, file.Name)
		if err != nil {
			return nil, 0, fmt.Errorf("create form file: %w", err)
		}
		if _, err := fw.Write(file.Data); err != nil {
			return nil, 0, fmt.Errorf("write form file: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, 0, fmt.Errorf("close multipart: %w", err)
	}
	return Send(ctx, client, http.MethodPost, url, w.FormDataContentType(), &buf, logger)
}

// Send performs one HTTP exchange and classifies transport failures. It does
// not assume any provider; callers decide the URL and payload.
func Send(ctx context.Context, client *http.Client, method, url, contentType string, body io.Reader, logger *slog.Logger) ([]byte, int, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if client == nil {
		client = &http.Client{}
	}

	reqID := common.RequestIDFromContext(ctx)
	if reqID == "" {
		reqID = uuid.New().String()
	}
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		logger.Error("llm.http.build_request_error", "req_id", reqID, "error", err)
		return nil, 0, common.ConfigurationError(fmt.Sprintf("build request: %v", err))
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("X-Request-ID", reqID)

	logger.Debug("llm.http.request", "req_id", reqID, "method", method, "url", url)

	resp, err := client.Do(req)
	if err != nil {
		elapsed := time.Since(start).Milliseconds()
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			logger.Warn("llm.http.timeout", "req_id", reqID, "elapsed_ms", elapsed)
			return nil, 0, common.TimeoutError("inference request timed out", err)
		}
		if errors.Is(err, context.Canceled) {
			return nil, 0, err
		}
		logger.Error("llm.http.send_error", "req_id", reqID, "error", err, "elapsed_ms", elapsed)
		return nil, 0, common.TransportError("inference backend unreachable", err)
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			logger.Warn("llm.http.response_body_close_error", "req_id", reqID, "error", err)
		}
	}(resp.Body)

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, resp.StatusCode, common.TimeoutError("inference response timed out", err)
		}
		return nil, resp.StatusCode, common.TransportError("read response body", err)
	}

	logger.Debug("llm.http.response",
		"req_id", reqID,
		"status", resp.StatusCode,
		"bytes", len(raw),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode/100 != 2 {
		return raw, resp.StatusCode, &HTTPError{Status: resp.StatusCode, Body: raw}
	}
	return raw, resp.StatusCode, nil
}
