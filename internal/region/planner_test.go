package region

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/payslip-extractor/constants"
	"github.com/joseph-ayodele/payslip-extractor/internal/common"
	"github.com/joseph-ayodele/payslip-extractor/internal/entity"
)

func names(regions []entity.Region) []string {
	out := make([]string, len(regions))
	for i, r := range regions {
		out[i] = r.Name
	}
	return out
}

// covers checks every pixel of page lies in at least one region.
func covers(t *testing.T, page image.Rectangle, regions []entity.Region) {
	t.Helper()
	for y := page.Min.Y; y < page.Max.Y; y++ {
		for x := page.Min.X; x < page.Max.X; x++ {
			p := image.Pt(x, y)
			found := false
			for _, r := range regions {
				if p.In(r.Bounds) {
					found = true
					break
				}
			}
			if !found {
				t.Fatalf("pixel %v not covered", p)
			}
		}
	}
}

func TestPlanCoversPageWithOverlap(t *testing.T) {
	page := image.Rect(0, 0, 400, 600)
	overlaps := []float64{0, 0.05, 0.1, 0.25, 0.5}
	modes := []constants.WindowMode{
		constants.WindowWhole, constants.WindowVertical, constants.WindowHorizontal, constants.WindowQuadrant,
	}

	for _, ov := range overlaps {
		for _, mode := range modes {
			p := NewPlanner(Config{Overlap: ov, MinSize: 10}, nil)
			got, regions, err := p.Plan(page, mode, nil)
			require.NoError(t, err)
			assert.Equal(t, mode, got)
			assert.Len(t, regions, mode.RegionCount())
			covers(t, page, regions)

			for _, r := range regions {
				assert.True(t, r.Bounds.In(page), "region %s out of page", r.Name)
			}

			switch mode {
			case constants.WindowVertical:
				inter := regions[0].Bounds.Intersect(regions[1].Bounds)
				assert.InDelta(t, 2*ov, float64(inter.Dy())/float64(page.Dy()), 1.0/float64(page.Dy()))
				assert.Equal(t, ov, regions[0].Overlap)
			case constants.WindowHorizontal:
				inter := regions[0].Bounds.Intersect(regions[1].Bounds)
				assert.InDelta(t, 2*ov, float64(inter.Dx())/float64(page.Dx()), 1.0/float64(page.Dx()))
			case constants.WindowQuadrant:
				inter := regions[0].Bounds.Intersect(regions[3].Bounds)
				if ov > 0 {
					assert.InDelta(t, 2*ov, float64(inter.Dx())/float64(page.Dx()), 1.0/float64(page.Dx()))
					assert.InDelta(t, 2*ov, float64(inter.Dy())/float64(page.Dy()), 1.0/float64(page.Dy()))
				} else {
					assert.True(t, inter.Empty())
				}
			}
		}
	}
}

func TestPlanVerticalBounds(t *testing.T) {
	p := NewPlanner(Config{Overlap: 0.1, MinSize: 100}, nil)
	_, regions, err := p.Plan(image.Rect(0, 0, 1000, 2000), constants.WindowVertical, []string{"top", "bottom"})
	require.NoError(t, err)
	require.Len(t, regions, 2)
	assert.Equal(t, image.Rect(0, 0, 1000, 1200), regions[0].Bounds)
	assert.Equal(t, image.Rect(0, 800, 1000, 2000), regions[1].Bounds)
}

func TestPlanSelection(t *testing.T) {
	page := image.Rect(0, 0, 800, 800)

	t.Run("subset keeps canonical order", func(t *testing.T) {
		p := NewPlanner(Config{Overlap: 0.1, MinSize: 50}, nil)
		_, regions, err := p.Plan(page, constants.WindowQuadrant, []string{"bottom_right", "top_left"})
		require.NoError(t, err)
		assert.Equal(t, []string{"top_left", "bottom_right"}, names(regions))
	})

	t.Run("invalid names dropped", func(t *testing.T) {
		p := NewPlanner(Config{Overlap: 0.1, MinSize: 50}, nil)
		_, regions, err := p.Plan(page, constants.WindowVertical, []string{"top", "left"})
		require.NoError(t, err)
		assert.Equal(t, []string{"top"}, names(regions))
	})

	t.Run("all invalid falls back to every window", func(t *testing.T) {
		p := NewPlanner(Config{Overlap: 0.1, MinSize: 50}, nil)
		_, regions, err := p.Plan(page, constants.WindowVertical, []string{"left"})
		require.NoError(t, err)
		assert.Equal(t, []string{"top", "bottom"}, names(regions))
	})

	t.Run("all invalid is an error when strict", func(t *testing.T) {
		p := NewPlanner(Config{Overlap: 0.1, MinSize: 50, StrictWindows: true}, nil)
		_, _, err := p.Plan(page, constants.WindowVertical, []string{"left"})
		require.Error(t, err)
		assert.True(t, common.IsKind(err, common.CodeConfiguration))
	})

	t.Run("whole ignores selection", func(t *testing.T) {
		p := NewPlanner(Config{Overlap: 0.1, MinSize: 50}, nil)
		_, regions, err := p.Plan(page, constants.WindowWhole, []string{"top"})
		require.NoError(t, err)
		assert.Equal(t, []string{"whole"}, names(regions))
		assert.Equal(t, page, regions[0].Bounds)
	})
}

func TestPlanAuto(t *testing.T) {
	p := NewPlanner(Config{Overlap: 0.1, MinSize: 10}, nil)

	mode, regions, err := p.Plan(image.Rect(0, 0, 600, 800), constants.WindowAuto, nil)
	require.NoError(t, err)
	assert.Equal(t, constants.WindowVertical, mode)
	assert.Equal(t, []string{"top", "bottom"}, names(regions))

	mode, regions, err = p.Plan(image.Rect(0, 0, 1600, 800), constants.WindowAuto, nil)
	require.NoError(t, err)
	assert.Equal(t, constants.WindowHorizontal, mode)
	assert.Equal(t, []string{"left", "right"}, names(regions))
}

func TestPlanConfigurationErrors(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		page image.Rectangle
		mode constants.WindowMode
	}{
		{"overlap above half", Config{Overlap: 0.6, MinSize: 1}, image.Rect(0, 0, 100, 100), constants.WindowVertical},
		{"negative overlap", Config{Overlap: -0.1, MinSize: 1}, image.Rect(0, 0, 100, 100), constants.WindowVertical},
		{"min size violated by split", Config{Overlap: 0, MinSize: 60}, image.Rect(0, 0, 100, 100), constants.WindowVertical},
		{"min size violated by page", Config{Overlap: 0, MinSize: 200}, image.Rect(0, 0, 100, 100), constants.WindowWhole},
		{"empty page", Config{Overlap: 0, MinSize: 1}, image.Rectangle{}, constants.WindowWhole},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := NewPlanner(tt.cfg, nil).Plan(tt.page, tt.mode, nil)
			require.Error(t, err)
			assert.True(t, common.IsKind(err, common.CodeConfiguration))
		})
	}
}

func TestCropCopiesPixels(t *testing.T) {
	page := image.NewNRGBA(image.Rect(0, 0, 10, 10))
	page.Set(5, 7, color.NRGBA{R: 255, A: 255})

	sub, err := Crop(page, entity.Region{Name: "bottom", Bounds: image.Rect(0, 5, 10, 10)})
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 10, 5), sub.Bounds())
	r, _, _, _ := sub.At(5, 2).RGBA()
	assert.Equal(t, uint32(0xffff), r)

	page.Set(5, 7, color.NRGBA{A: 255})
	r, _, _, _ = sub.At(5, 2).RGBA()
	assert.Equal(t, uint32(0xffff), r, "crop must not alias the page")

	_, err = Crop(page, entity.Region{Name: "x", Bounds: image.Rect(0, 0, 20, 20)})
	assert.Error(t, err)
}
