package inference

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/payslip-extractor/constants"
	"github.com/joseph-ayodele/payslip-extractor/internal/common"
	"github.com/joseph-ayodele/payslip-extractor/internal/entity"
	"github.com/joseph-ayodele/payslip-extractor/internal/llm"
)

type fakeClient struct {
	mu     sync.Mutex
	calls  []llm.Request
	handle func(ctx context.Context, req llm.Request) (llm.Response, error)
}

func (f *fakeClient) Generate(ctx context.Context, req llm.Request) (llm.Response, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	return f.handle(ctx, req)
}

func (f *fakeClient) Status(context.Context) (llm.Status, error) {
	return llm.Status{Ready: true, Device: "cpu"}, nil
}

func timeouts() common.TimeoutConfig {
	return common.TimeoutConfig{
		Base:          30 * time.Minute,
		PerPage:       true,
		ScalingFactor: 1.0,
		Max:           4 * time.Hour,
		CPUMultiplier: 2.0,
	}
}

func TestEffectiveTimeout(t *testing.T) {
	tests := []struct {
		name  string
		cfg   func(c *common.TimeoutConfig)
		pages int
		mode  constants.WindowMode
		cpu   bool
		want  time.Duration
	}{
		{"vertical one page", nil, 1, constants.WindowVertical, false, time.Hour},
		{"whole one page", nil, 1, constants.WindowWhole, false, 30 * time.Minute},
		{"quadrant two pages capped", nil, 2, constants.WindowQuadrant, false, 4 * time.Hour},
		{"per page off", func(c *common.TimeoutConfig) { c.PerPage = false }, 5, constants.WindowVertical, false, time.Hour},
		{"cpu doubles", nil, 1, constants.WindowHorizontal, true, 2 * time.Hour},
		{"scaling", func(c *common.TimeoutConfig) { c.ScalingFactor = 1.5 }, 1, constants.WindowWhole, false, 45 * time.Minute},
		{"auto counts two", func(c *common.TimeoutConfig) { c.Base = time.Second }, 3, constants.WindowAuto, false, 6 * time.Second},
		{"zero pages treated as one", func(c *common.TimeoutConfig) { c.Base = time.Second }, 0, constants.WindowWhole, false, time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := timeouts()
			if tt.cfg != nil {
				tt.cfg(&cfg)
			}
			assert.Equal(t, tt.want, EffectiveTimeout(cfg, tt.pages, tt.mode, tt.cpu))
		})
	}
}

func TestEffectiveTimeoutMonotonicAndCapped(t *testing.T) {
	modes := []constants.WindowMode{constants.WindowWhole, constants.WindowVertical, constants.WindowQuadrant}
	for _, scaling := range []float64{0.5, 1, 2, 4} {
		prev := time.Duration(0)
		for _, mode := range modes {
			for pages := 1; pages <= 8; pages++ {
				cfg := timeouts()
				cfg.Base = time.Minute
				cfg.ScalingFactor = scaling
				got := EffectiveTimeout(cfg, pages, mode, false)
				assert.LessOrEqual(t, got, cfg.Max)

				next := EffectiveTimeout(cfg, pages+1, mode, false)
				assert.GreaterOrEqual(t, next, got)

				cfg.ScalingFactor = scaling * 2
				assert.GreaterOrEqual(t, EffectiveTimeout(cfg, pages, mode, false), got)
			}
			cfg := timeouts()
			cfg.Base = time.Minute
			cfg.ScalingFactor = scaling
			cur := EffectiveTimeout(cfg, 1, mode, false)
			assert.GreaterOrEqual(t, cur, prev, "region count must not lower the budget")
			prev = cur
		}
	}
}

func TestIsolationTransitions(t *testing.T) {
	s, changed := transition(stateStrict, eventIsolationUnavailable)
	assert.True(t, changed)
	assert.Equal(t, stateDegraded, s)

	s, changed = transition(stateDegraded, eventIsolationUnavailable)
	assert.False(t, changed)
	assert.Equal(t, stateDegraded, s)

	for _, st := range []isolationState{stateNone, stateMedium} {
		next, changed := transition(st, eventIsolationUnavailable)
		assert.False(t, changed)
		assert.Equal(t, st, next)
	}

	assert.Equal(t, stateStrict, initialState(constants.IsolationAuto))
	assert.Equal(t, stateStrict, initialState(constants.IsolationStrict))
	assert.Equal(t, stateMedium, initialState(constants.IsolationMedium))
	assert.Equal(t, stateNone, initialState(constants.IsolationNone))

	assert.Equal(t, constants.IsolationMixed, stateDegraded.reported())
	assert.Equal(t, constants.IsolationMedium, stateDegraded.dispatchMode())
}

func attemptFor(region string) entity.ExtractionAttempt {
	return entity.ExtractionAttempt{
		Page:       1,
		PageCount:  1,
		Mode:       constants.WindowQuadrant,
		Region:     entity.Region{Name: region},
		Resolution: 1500,
		Image:      []byte("img"),
		MIMEType:   "image/jpeg",
		Prompt:     "prompt",
	}
}

func TestDispatchStrictDowngradeScenario(t *testing.T) {
	client := &fakeClient{handle: func(_ context.Context, req llm.Request) (llm.Response, error) {
		if req.Window == "top_right" && req.Isolation == constants.IsolationStrict {
			return llm.Response{}, common.IsolationUnavailableError("no fresh context", nil)
		}
		return llm.Response{Text: "{}", Applied: req.Isolation}, nil
	}}
	d := NewDispatcher(client, Config{Timeout: timeouts()}, nil)
	run := NewRun(constants.IsolationStrict)

	for _, region := range []string{"top_left", "top_right", "bottom_left"} {
		att, err := d.Dispatch(context.Background(), run, attemptFor(region))
		require.NoError(t, err)
		assert.Equal(t, entity.OutcomeSuccess, att.Outcome)
	}

	stats := run.Stats()
	assert.Equal(t, constants.IsolationStrict, stats.Requested)
	assert.Equal(t, constants.IsolationMixed, stats.Reported)
	assert.Equal(t, 1, stats.StrictSucceeded)
	assert.Equal(t, 2, stats.MediumUsed)
	assert.Equal(t, 1, stats.FallbacksOccurred)
	assert.Equal(t, 4, stats.Attempts)

	require.Len(t, client.calls, 4)
	assert.Equal(t, constants.IsolationStrict, client.calls[1].Isolation)
	assert.Equal(t, constants.IsolationMedium, client.calls[2].Isolation)
	assert.Equal(t, "top_right", client.calls[2].Window)
	assert.NotEqual(t, "prompt", client.calls[2].Prompt, "medium wraps the prompt")
	assert.Equal(t, constants.IsolationMedium, client.calls[3].Isolation)
}

func TestDispatchStrictAllSucceed(t *testing.T) {
	client := &fakeClient{handle: func(_ context.Context, req llm.Request) (llm.Response, error) {
		return llm.Response{Text: "ok"}, nil
	}}
	d := NewDispatcher(client, Config{Timeout: timeouts()}, nil)
	run := NewRun(constants.IsolationAuto)
	for i := 0; i < 3; i++ {
		_, err := d.Dispatch(context.Background(), run, attemptFor("top_left"))
		require.NoError(t, err)
	}
	stats := run.Stats()
	assert.Equal(t, constants.IsolationStrict, stats.Reported)
	assert.Equal(t, 3, stats.StrictSucceeded)
	assert.Zero(t, stats.MediumUsed)
	assert.Zero(t, stats.FallbacksOccurred)
}

func TestDispatchMediumIsolationFailureIsTerminal(t *testing.T) {
	client := &fakeClient{handle: func(context.Context, llm.Request) (llm.Response, error) {
		return llm.Response{}, common.IsolationUnavailableError("nope", nil)
	}}
	d := NewDispatcher(client, Config{Timeout: timeouts()}, nil)
	run := NewRun(constants.IsolationMedium)
	att, err := d.Dispatch(context.Background(), run, attemptFor("top_left"))
	require.Error(t, err)
	assert.Equal(t, entity.OutcomeIsolationUnavailable, att.Outcome)
	assert.Len(t, client.calls, 1)
	assert.Equal(t, constants.IsolationMedium, run.Stats().Reported)
}

func TestDispatchTimesOut(t *testing.T) {
	client := &fakeClient{handle: func(ctx context.Context, _ llm.Request) (llm.Response, error) {
		<-ctx.Done()
		return llm.Response{}, ctx.Err()
	}}
	cfg := Config{Timeout: common.TimeoutConfig{Base: 20 * time.Millisecond, ScalingFactor: 1, Max: time.Second, CPUMultiplier: 2}}
	d := NewDispatcher(client, cfg, nil)
	run := NewRun(constants.IsolationNone)

	att := attemptFor("whole")
	att.Mode = constants.WindowWhole
	out, err := d.Dispatch(context.Background(), run, att)
	require.Error(t, err)
	assert.True(t, common.IsKind(err, common.CodeTimeout))
	assert.Equal(t, entity.OutcomeTimeout, out.Outcome)
	assert.Equal(t, 20*time.Millisecond, out.Timeout)
	assert.Equal(t, 1, run.Stats().Timeouts)
}

func TestDispatchCancelledDoesNotSend(t *testing.T) {
	client := &fakeClient{handle: func(context.Context, llm.Request) (llm.Response, error) {
		return llm.Response{}, nil
	}}
	d := NewDispatcher(client, Config{Timeout: timeouts()}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := d.Dispatch(ctx, NewRun(constants.IsolationNone), attemptFor("top_left"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, client.calls)
}

func TestProbeAndTimeout(t *testing.T) {
	client := &fakeClient{}
	d := NewDispatcher(client, Config{Timeout: timeouts()}, nil)
	assert.Equal(t, time.Hour, d.Timeout(1, constants.WindowVertical))
	d.Probe(context.Background())
	assert.Equal(t, 2*time.Hour, d.Timeout(1, constants.WindowVertical))
}

func TestWithCallOverridesSettings(t *testing.T) {
	client := &fakeClient{handle: func(context.Context, llm.Request) (llm.Response, error) {
		return llm.Response{Text: "{}"}, nil
	}}
	d := NewDispatcher(client, Config{Timeout: timeouts(), Generation: common.GenerationConfig{MaxNewTokens: 768}}, nil)

	short := timeouts()
	short.Base, short.Max = 5*time.Second, time.Minute
	call := d.WithCall(short, common.GenerationConfig{MaxNewTokens: 64}, false)
	assert.Equal(t, 5*time.Second, call.Timeout(1, constants.WindowWhole))
	assert.Equal(t, 30*time.Minute, d.Timeout(1, constants.WindowWhole))

	att, err := call.Dispatch(context.Background(), NewRun(constants.IsolationNone), attemptFor("top"))
	require.NoError(t, err)
	assert.Equal(t, 20*time.Second, att.Timeout, "quadrant counts four regions")
	require.Len(t, client.calls, 1)
	assert.Equal(t, 64, client.calls[0].Generation.MaxNewTokens)

	// a probe on the parent is seen by calls derived earlier
	d.Probe(context.Background())
	assert.Equal(t, 10*time.Second, call.Timeout(1, constants.WindowWhole))
}

func TestRunConcurrentRecording(t *testing.T) {
	run := NewRun(constants.IsolationStrict)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			run.record(constants.IsolationStrict, nil)
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, run.Stats().StrictSucceeded)
}
