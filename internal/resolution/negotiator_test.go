package resolution

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/payslip-extractor/internal/common"
)

func testImage(w, h int) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8((x + y) % 256)
			img.Set(x, y, color.NRGBA{R: v, G: v, B: v, A: 255})
		}
	}
	return img
}

type countingCleaner struct{ calls int }

func (c *countingCleaner) Cleanup(context.Context) error {
	c.calls++
	return nil
}

func TestScaleNeverUpscales(t *testing.T) {
	img := testImage(300, 200)
	assert.Equal(t, image.Pt(300, 200), Scale(img, 1000).Bounds().Size())
	assert.Equal(t, image.Pt(150, 100), Scale(img, 150).Bounds().Size())
	assert.Equal(t, image.Pt(100, 150), Scale(testImage(200, 300), 150).Bounds().Size())
}

func TestEnhanceIsDeterministic(t *testing.T) {
	cfg := common.EnhanceConfig{Enabled: true, Contrast: 1.8, Sharpen: 2.5, Brightness: 1.1}
	img := testImage(64, 64)

	a, err := Encode(Enhance(img, cfg), 90)
	require.NoError(t, err)
	b, err := Encode(Enhance(img, cfg), 90)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	plain, err := Encode(Enhance(img, common.EnhanceConfig{}), 90)
	require.NoError(t, err)
	assert.NotEqual(t, a, plain)
}

func TestNegotiateFirstStepSucceeds(t *testing.T) {
	n := NewNegotiator(Config{Steps: []int{1500, 1200}}, nil, nil)
	var seen []int
	out, err := n.Negotiate(context.Background(), testImage(2000, 1000), func(_ context.Context, p Prepared) (string, error) {
		seen = append(seen, p.Resolution)
		cfg, err := jpeg.DecodeConfig(bytes.NewReader(p.Data))
		require.NoError(t, err)
		assert.Equal(t, 1500, cfg.Width)
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", out.Text)
	assert.Equal(t, 1500, out.Resolution)
	assert.Equal(t, []int{1500}, seen)
}

func TestNegotiateFallsBackOnRetryable(t *testing.T) {
	cleaner := &countingCleaner{}
	n := NewNegotiator(Config{Steps: []int{1500, 1200, 1000, 800}}, cleaner, nil)

	failures := []error{
		common.ResourceExhaustedError("cuda out of memory", nil),
		common.TransportError("connection reset", nil),
		common.TimeoutError("deadline", context.DeadlineExceeded),
	}
	var seen []int
	out, err := n.Negotiate(context.Background(), testImage(3000, 2000), func(_ context.Context, p Prepared) (string, error) {
		seen = append(seen, p.Resolution)
		if len(seen) <= len(failures) {
			return "", failures[len(seen)-1]
		}
		return "done", nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{1500, 1200, 1000, 800}, seen)
	assert.Equal(t, 800, out.Resolution)
	assert.Len(t, out.Steps, 4)
	assert.Equal(t, common.CodeResourceExhausted, out.Steps[0].Kind)
	assert.Equal(t, 1, cleaner.calls)
}

func TestNegotiateStopsOnContentError(t *testing.T) {
	n := NewNegotiator(Config{Steps: []int{1500, 1200}}, nil, nil)
	calls := 0
	_, err := n.Negotiate(context.Background(), testImage(3000, 2000), func(context.Context, Prepared) (string, error) {
		calls++
		return "", common.ContentError("garbage", nil)
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.True(t, common.IsKind(err, common.CodeContent))
	assert.False(t, errors.Is(err, ErrExhausted))
}

func TestNegotiateExhausted(t *testing.T) {
	n := NewNegotiator(Config{Steps: []int{1500, 1200, 1000}}, nil, nil)
	_, err := n.Negotiate(context.Background(), testImage(3000, 2000), func(context.Context, Prepared) (string, error) {
		return "", common.TransportError("refused", nil)
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExhausted)
	assert.True(t, common.IsRetryable(err))
}

func TestNegotiateSkipsStepsAboveImageSize(t *testing.T) {
	n := NewNegotiator(Config{Steps: []int{1500, 1200, 800}}, nil, nil)
	var seen []int
	_, err := n.Negotiate(context.Background(), testImage(1000, 500), func(_ context.Context, p Prepared) (string, error) {
		seen = append(seen, p.Resolution)
		return "", common.TransportError("refused", nil)
	})
	require.Error(t, err)
	assert.Equal(t, []int{1500, 800}, seen)
}

func TestNegotiateHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	n := NewNegotiator(Config{Steps: []int{1500, 1200}}, nil, nil)
	calls := 0
	_, err := n.Negotiate(ctx, testImage(3000, 2000), func(context.Context, Prepared) (string, error) {
		calls++
		cancel()
		return "", common.TransportError("refused", nil)
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}
