package llm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/payslip-extractor/constants"
)

func TestDefaultPromptNamesResultKeyAndFields(t *testing.T) {
	p := DefaultPrompt(constants.DocumentPayslip, constants.RegionTop)
	assert.Contains(t, p, `"found_in_top"`)
	assert.Contains(t, p, `"employee_name"`)
	assert.Contains(t, p, `"gross_amount"`)
	assert.Contains(t, p, "obere Hälfte")

	p = DefaultPrompt(constants.DocumentProperty, constants.RegionWhole)
	assert.Contains(t, p, `"living_space": "nicht gefunden"`)
	assert.NotContains(t, p, "employee_name")
}

func TestPromptForPrefersConfigured(t *testing.T) {
	configured := map[string]map[string]string{
		"vertical": {"top": "custom top"},
	}
	assert.Equal(t, "custom top", PromptFor(constants.DocumentPayslip, constants.WindowVertical, "top", configured))
	assert.Contains(t, PromptFor(constants.DocumentPayslip, constants.WindowVertical, "bottom", configured), "found_in_bottom")
	assert.Contains(t, PromptFor(constants.DocumentPayslip, constants.WindowQuadrant, "top", configured), "found_in_top")
}

func TestIsolate(t *testing.T) {
	assert.Equal(t, "p", Isolate("p", constants.IsolationStrict))
	assert.Equal(t, "p", Isolate("p", constants.IsolationNone))
	assert.True(t, strings.HasSuffix(Isolate("p", constants.IsolationMedium), "p"))
	assert.NotEqual(t, "p", Isolate("p", constants.IsolationMedium))
}

func TestRegionSchema(t *testing.T) {
	s, err := RegionSchema(constants.DocumentPayslip)
	require.NoError(t, err)
	assert.NoError(t, s.Validate(map[string]any{"employee_name": "Hans", "gross_amount": 3500.0}))
	assert.Error(t, s.Validate(map[string]any{}))
	assert.Error(t, s.Validate(map[string]any{"employee_name": []any{"x"}}))

	assert.NoError(t, ValidateJSONAgainstSchema(BuildRegionJSONSchema(constants.DocumentProperty), []byte(`{"living_space":"85 m²"}`)))
}

func TestDataURL(t *testing.T) {
	assert.Equal(t, "data:image/png;base64,AQI=", DataURL("image/png", []byte{1, 2}))
	assert.Equal(t, "image/jpeg", DetectMIME([]byte("not an image")))
}
