package inference

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/joseph-ayodele/payslip-extractor/constants"
	"github.com/joseph-ayodele/payslip-extractor/internal/common"
	"github.com/joseph-ayodele/payslip-extractor/internal/entity"
	"github.com/joseph-ayodele/payslip-extractor/internal/llm"
)

const instrumentationName = "github.com/joseph-ayodele/payslip-extractor/internal/inference"

type Config struct {
	Timeout    common.TimeoutConfig
	Generation common.GenerationConfig
	ForceCPU   bool
	// OnCPU is the initial device assumption until Probe runs.
	OnCPU     bool
	RateLimit float64 // attempts per second, 0 disables
}

// Dispatcher sends one region at one resolution to the inference boundary.
type Dispatcher struct {
	client   llm.Client
	cfg      Config
	onCPU    *atomic.Bool
	limiter  *rate.Limiter
	attempts metric.Int64Counter
	duration metric.Float64Histogram
	logger   *slog.Logger
}

func NewDispatcher(client llm.Client, cfg Config, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		client: client,
		cfg:    cfg,
		onCPU:  new(atomic.Bool),
		logger: logger,
	}
	d.onCPU.Store(cfg.OnCPU)
	if cfg.RateLimit > 0 {
		d.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), max(1, int(cfg.RateLimit)))
	}

	meter := otel.Meter(instrumentationName)
	d.attempts, _ = meter.Int64Counter("inference.attempts",
		metric.WithDescription("Inference attempts by outcome and isolation mode"))
	d.duration, _ = meter.Float64Histogram("inference.attempt.duration",
		metric.WithDescription("Inference attempt wall time"), metric.WithUnit("s"))
	return d
}

// WithCall returns a dispatcher for one call's timeout, generation and
// force-CPU settings. It shares the client, rate limiter, instruments and
// probed device with d.
func (d *Dispatcher) WithCall(timeout common.TimeoutConfig, gen common.GenerationConfig, forceCPU bool) *Dispatcher {
	out := *d
	out.cfg.Timeout = timeout
	out.cfg.Generation = gen
	out.cfg.ForceCPU = forceCPU
	return &out
}

// Probe asks the backend for its device and records whether it runs on CPU.
// ForceCPU always wins.
func (d *Dispatcher) Probe(ctx context.Context) {
	if d.cfg.ForceCPU {
		d.onCPU.Store(true)
		return
	}
	reporter, ok := d.client.(llm.StatusReporter)
	if !ok {
		return
	}
	st, err := reporter.Status(ctx)
	if err != nil {
		d.logger.Warn("inference.probe.failed", "error", err)
		return
	}
	d.onCPU.Store(st.OnCPU())
	d.logger.Info("inference.probe", "device", st.Device, "model", st.Model, "ready", st.Ready)
}

// Timeout is the budget an attempt for a document of pageCount pages gets.
func (d *Dispatcher) Timeout(pageCount int, mode constants.WindowMode) time.Duration {
	return EffectiveTimeout(d.cfg.Timeout, pageCount, mode, d.onCPU.Load() || d.cfg.ForceCPU)
}

// Dispatch runs att under the run's current isolation mode. When strict
// isolation is refused the run degrades and the same attempt is re-sent at
// medium. The returned attempt carries the outcome whether or not err is nil.
func (d *Dispatcher) Dispatch(ctx context.Context, run *Run, att entity.ExtractionAttempt) (entity.ExtractionAttempt, error) {
	for {
		mode := run.Mode()
		out, err := d.attempt(ctx, run, att, mode)
		if err != nil && mode == constants.IsolationStrict && common.IsKind(err, common.CodeIsolationUnavailable) {
			if run.degrade(mode) {
				d.logger.Warn("inference.isolation.degraded", append(common.LogAttrs(ctx),
					"page", att.Page, "region", att.Region.Name, "from", mode, "to", run.Mode())...)
				continue
			}
		}
		return out, err
	}
}

func (d *Dispatcher) attempt(ctx context.Context, run *Run, att entity.ExtractionAttempt, mode constants.IsolationMode) (entity.ExtractionAttempt, error) {
	att.Isolation = mode
	att.Timeout = d.Timeout(att.PageCount, att.Mode)

	if d.limiter != nil {
		if err := d.limiter.Wait(ctx); err != nil {
			att.Outcome, att.Err = entity.OutcomeFailed, err
			return att, err
		}
	}
	if err := ctx.Err(); err != nil {
		att.Outcome, att.Err = entity.OutcomeFailed, err
		return att, err
	}

	ctx = common.WithRequestID(ctx, uuid.New().String())
	ctx, span := otel.Tracer(instrumentationName).Start(ctx, "inference.dispatch", trace.WithAttributes(
		attribute.Int("page", att.Page),
		attribute.String("region", att.Region.Name),
		attribute.Int("resolution", att.Resolution),
		attribute.String("isolation", string(mode)),
	))
	defer span.End()

	actx, cancel := context.WithTimeout(ctx, att.Timeout)
	defer cancel()

	start := time.Now()
	resp, err := d.client.Generate(actx, llm.Request{
		Image:      att.Image,
		MIMEType:   att.MIMEType,
		Prompt:     llm.Isolate(att.Prompt, mode),
		Window:     att.Region.Name,
		Isolation:  mode,
		ForceCPU:   d.cfg.ForceCPU,
		Generation: d.cfg.Generation,
	})
	att.Elapsed = time.Since(start)

	// A deadline on the attempt context, with the caller still alive, is our timeout.
	if err != nil && ctx.Err() == nil && errors.Is(actx.Err(), context.DeadlineExceeded) && !common.IsKind(err, common.CodeTimeout) {
		err = common.TimeoutError("attempt exceeded "+att.Timeout.String(), err)
	}

	att.Err = err
	att.Outcome = outcomeOf(err)
	att.RawText = resp.Text
	run.record(mode, err)

	d.attempts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", string(att.Outcome)),
		attribute.String("isolation", string(mode)),
	))
	d.duration.Record(ctx, att.Elapsed.Seconds())

	attrs := append(common.LogAttrs(ctx),
		"page", att.Page,
		"region", att.Region.Name,
		"resolution", att.Resolution,
		"isolation", mode,
		"timeout_ms", att.Timeout.Milliseconds(),
		"outcome", att.Outcome,
		"elapsed_ms", att.Elapsed.Milliseconds(),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		d.logger.Warn("inference.dispatch.failed", append(attrs, "error", err)...)
		return att, err
	}
	d.logger.Debug("inference.dispatch.ok", append(attrs, "chars", len(resp.Text))...)
	return att, nil
}

func outcomeOf(err error) entity.AttemptOutcome {
	switch common.KindOf(err) {
	case "":
		if err == nil {
			return entity.OutcomeSuccess
		}
		return entity.OutcomeFailed
	case common.CodeTimeout:
		return entity.OutcomeTimeout
	case common.CodeTransport:
		return entity.OutcomeTransportError
	case common.CodeResourceExhausted:
		return entity.OutcomeResourceExhausted
	case common.CodeIsolationUnavailable:
		return entity.OutcomeIsolationUnavailable
	}
	return entity.OutcomeFailed
}
