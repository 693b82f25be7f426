package resolution

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/payslip-extractor/internal/common"
)

// ErrExhausted marks a region for which every resolution step failed.
var ErrExhausted = errors.New("resolution steps exhausted")

type Config struct {
	Steps       []int // descending long-edge sizes
	Enhance     common.EnhanceConfig
	JPEGQuality int
}

// Submit performs one attempt with a prepared image and returns the raw reply.
type Submit func(ctx context.Context, img Prepared) (string, error)

// Cleaner frees inference-side memory after a resource-exhaustion failure.
type Cleaner interface {
	Cleanup(ctx context.Context) error
}

// Step records one resolution level that was tried.
type Step struct {
	Resolution int
	Size       image.Point
	Kind       string
	Elapsed    time.Duration
}

type Outcome struct {
	Text       string
	Resolution int
	Steps      []Step
}

// Negotiator walks the resolution list from the highest step down until an
// attempt succeeds or fails with a non-retryable error.
type Negotiator struct {
	cfg     Config
	cleaner Cleaner
	logger  *slog.Logger
}

func NewNegotiator(cfg Config, cleaner Cleaner, logger *slog.Logger) *Negotiator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.JPEGQuality <= 0 {
		cfg.JPEGQuality = 90
	}
	return &Negotiator{cfg: cfg, cleaner: cleaner, logger: logger}
}

// Prepare scales, enhances and encodes img for one step.
func (n *Negotiator) Prepare(img image.Image, step int) (Prepared, error) {
	scaled := Scale(img, step)
	enhanced := Enhance(scaled, n.cfg.Enhance)
	data, err := Encode(enhanced, n.cfg.JPEGQuality)
	if err != nil {
		return Prepared{}, err
	}
	return Prepared{
		Resolution: step,
		Size:       enhanced.Bounds().Size(),
		Data:       data,
		MIMEType:   "image/jpeg",
	}, nil
}

func (n *Negotiator) Negotiate(ctx context.Context, img image.Image, submit Submit) (Outcome, error) {
	if len(n.cfg.Steps) == 0 {
		return Outcome{}, common.ConfigurationError("no resolution steps configured")
	}

	var (
		out      Outcome
		lastErr  error
		lastSize image.Point
	)
	for i, step := range n.cfg.Steps {
		if err := ctx.Err(); err != nil {
			return out, err
		}

		prepared, err := n.Prepare(img, step)
		if err != nil {
			return out, err
		}
		// A smaller step that renders the same pixels cannot change the outcome.
		if i > 0 && prepared.Size == lastSize {
			n.logger.Debug("resolution.step.skip", append(common.LogAttrs(ctx), "resolution", step)...)
			continue
		}
		lastSize = prepared.Size

		start := time.Now()
		text, err := submit(ctx, prepared)
		rec := Step{Resolution: step, Size: prepared.Size, Kind: common.KindOf(err), Elapsed: time.Since(start)}
		out.Steps = append(out.Steps, rec)

		if err == nil {
			out.Text = text
			out.Resolution = step
			return out, nil
		}
		lastErr = err

		if !common.IsRetryable(err) || ctx.Err() != nil {
			return out, err
		}

		n.logger.Warn("resolution.step.failed", append(common.LogAttrs(ctx),
			"resolution", step,
			"width", prepared.Size.X,
			"height", prepared.Size.Y,
			"kind", rec.Kind,
			"error", err,
			"elapsed_ms", rec.Elapsed.Milliseconds(),
		)...)

		if n.cleaner != nil && common.IsKind(err, common.CodeResourceExhausted) {
			if cerr := n.cleaner.Cleanup(ctx); cerr != nil {
				n.logger.Warn("resolution.cleanup.failed", "error", cerr)
			}
		}
	}
	return out, fmt.Errorf("%w after %d attempts: %w", ErrExhausted, len(out.Steps), lastErr)
}
