package reconcile

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/payslip-extractor/constants"
	"github.com/joseph-ayodele/payslip-extractor/internal/entity"
	"github.com/joseph-ayodele/payslip-extractor/internal/parse"
)

func parsed(t *testing.T, region, raw string) []entity.FieldResult {
	t.Helper()
	out, err := parse.NewParser(constants.DocumentPayslip, nil).Parse(region, raw)
	require.NoError(t, err)
	return out
}

func TestReconcileVerticalPayslip(t *testing.T) {
	var cands []entity.FieldResult
	cands = append(cands, parsed(t, "top", `{"employee_name":"Erika Mustermann","gross_amount":"0","net_amount":"0"}`)...)
	cands = append(cands, parsed(t, "bottom", `{"employee_name":"unknown","gross_amount":"2.124,00","net_amount":"1.374,78"}`)...)

	r := NewReconciler(constants.DocumentPayslip, nil, nil)
	page := r.Reconcile(1, constants.WindowVertical, cands, nil)

	name, ok := page.Field(constants.FieldEmployeeName)
	require.True(t, ok)
	assert.Equal(t, "Erika Mustermann", name.Value)
	assert.Equal(t, "top", name.Region)

	gross, _ := page.Field(constants.FieldGrossAmount)
	require.NotNil(t, gross.Amount)
	assert.InDelta(t, 2124.00, *gross.Amount, 1e-9)
	assert.Equal(t, "2124.00", gross.Value)

	net, _ := page.Field(constants.FieldNetAmount)
	require.NotNil(t, net.Amount)
	assert.InDelta(t, 1374.78, *net.Amount, 1e-9)
	assert.Equal(t, "bottom", net.Region)

	assert.Equal(t, []string{"bottom", "top"}, page.ProcessedWindows)
	assert.Empty(t, page.FailedWindows)
	assert.Equal(t, []string{
		constants.FieldEmployeeName, constants.FieldGrossAmount, constants.FieldNetAmount,
	}, []string{page.Fields[0].Name, page.Fields[1].Name, page.Fields[2].Name})
}

func TestReconcileIsOrderIndependent(t *testing.T) {
	cands := []entity.FieldResult{
		{Field: constants.FieldGrossAmount, Value: "4200.00", Region: "bottom_right", Source: entity.SourceJSON},
		{Field: constants.FieldGrossAmount, Value: "50400.00", Region: "bottom_left", Source: entity.SourceJSON},
		{Field: constants.FieldGrossAmount, Value: "4100.00", Region: "top_right", Source: entity.SourceRegex, LowConfidence: true},
		{Field: constants.FieldNetAmount, Value: "2650.75", Region: "bottom_left", Source: entity.SourceJSON},
		{Field: constants.FieldEmployeeName, Value: "Michael Schmidt", Region: "top_right", Source: entity.SourceJSON},
		{Field: constants.FieldEmployeeName, Value: "M. Schmidt", Region: "bottom_left", Source: entity.SourceJSON},
		{Field: constants.FieldEmployeeName, Value: "unknown", Region: "top_left", Source: entity.SourceSentinel},
	}
	r := NewReconciler(constants.DocumentPayslip, nil, nil)
	want := r.Reconcile(2, constants.WindowQuadrant, cands, []string{"top_left"})

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		shuffled := append([]entity.FieldResult(nil), cands...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		assert.Equal(t, want, r.Reconcile(2, constants.WindowQuadrant, shuffled, []string{"top_left"}))
	}

	gross, _ := want.Field(constants.FieldGrossAmount)
	assert.Equal(t, "4200.00", gross.Value, "bottom_right outranks the year-to-date block")
	assert.Equal(t, 3, gross.Candidates)
	name, _ := want.Field(constants.FieldEmployeeName)
	assert.Equal(t, "Michael Schmidt", name.Value)
	assert.Equal(t, []string{"bottom_left", "bottom_right", "top_right"}, want.ProcessedWindows)
	assert.Equal(t, []string{"top_left"}, want.FailedWindows)
}

func TestReconcileSameRegionPrefersJSON(t *testing.T) {
	cands := []entity.FieldResult{
		{Field: constants.FieldNetAmount, Value: "1000.00", Region: "bottom", Source: entity.SourceRegex, LowConfidence: true},
		{Field: constants.FieldNetAmount, Value: "1374.78", Region: "bottom", Source: entity.SourceJSON},
		{Field: constants.FieldGrossAmount, Value: "2200.00", Region: "top", Source: entity.SourceJSON},
		{Field: constants.FieldGrossAmount, Value: "2124.00", Region: "top", Source: entity.SourceJSON},
	}
	page := NewReconciler(constants.DocumentPayslip, nil, nil).Reconcile(1, constants.WindowVertical, cands, nil)

	net, _ := page.Field(constants.FieldNetAmount)
	assert.Equal(t, "1374.78", net.Value)
	assert.False(t, net.LowConfidence)

	gross, _ := page.Field(constants.FieldGrossAmount)
	assert.Equal(t, "2124.00", gross.Value, "lexically smallest on a full tie")
}

func TestReconcileAllSentinels(t *testing.T) {
	var cands []entity.FieldResult
	cands = append(cands, parse.Sentinels(constants.DocumentPayslip, "top")...)
	cands = append(cands, parse.Sentinels(constants.DocumentPayslip, "bottom")...)

	page := NewReconciler(constants.DocumentPayslip, nil, nil).Reconcile(1, constants.WindowVertical, cands, []string{"bottom", "top"})
	require.Len(t, page.Fields, 3)
	for _, f := range page.Fields {
		assert.True(t, f.Sentinel)
		assert.Nil(t, f.Amount)
		assert.True(t, f.LowConfidence)
	}
	name, _ := page.Field(constants.FieldEmployeeName)
	assert.Equal(t, "unknown", name.Value)
	gross, _ := page.Field(constants.FieldGrossAmount)
	assert.Equal(t, "0", gross.Value)
	assert.Empty(t, page.ProcessedWindows)
	assert.Equal(t, []string{"bottom", "top"}, page.FailedWindows)
}

func TestReconcileProperty(t *testing.T) {
	cands := []entity.FieldResult{
		{Field: constants.FieldLivingSpace, Value: "85.5", Region: "whole", Source: entity.SourceJSON},
		{Field: constants.FieldPurchasePrice, Value: "nicht gefunden", Region: "whole", Source: entity.SourceSentinel},
	}
	page := NewReconciler(constants.DocumentProperty, nil, nil).Reconcile(1, constants.WindowWhole, cands, nil)
	space, _ := page.Field(constants.FieldLivingSpace)
	require.NotNil(t, space.Amount)
	assert.InDelta(t, 85.5, *space.Amount, 1e-9)
	price, _ := page.Field(constants.FieldPurchasePrice)
	assert.Equal(t, "nicht gefunden", price.Value)
	assert.True(t, price.Sentinel)
	assert.False(t, price.LowConfidence, "the model answered explicitly")
}

func TestPrecedenceOverrides(t *testing.T) {
	table, err := DefaultTable().WithOverrides(map[string]map[string][]string{
		"vertical": {constants.FieldGrossAmount: {"top", "bottom"}},
	})
	require.NoError(t, err)

	assert.Equal(t, 0, table.Rank(constants.WindowVertical, constants.FieldGrossAmount, "top"))
	assert.Equal(t, 0, DefaultTable().Rank(constants.WindowVertical, constants.FieldGrossAmount, "bottom"), "default untouched")

	cands := []entity.FieldResult{
		{Field: constants.FieldGrossAmount, Value: "2124.00", Region: "bottom", Source: entity.SourceJSON},
		{Field: constants.FieldGrossAmount, Value: "2200.00", Region: "top", Source: entity.SourceJSON},
	}
	page := NewReconciler(constants.DocumentPayslip, table, nil).Reconcile(1, constants.WindowVertical, cands, nil)
	gross, _ := page.Field(constants.FieldGrossAmount)
	assert.Equal(t, "2200.00", gross.Value)
}

func TestPrecedenceOverrideErrors(t *testing.T) {
	_, err := DefaultTable().WithOverrides(map[string]map[string][]string{"diagonal": {}})
	assert.Error(t, err)

	_, err = DefaultTable().WithOverrides(map[string]map[string][]string{
		"vertical": {constants.FieldNetAmount: {"left"}},
	})
	assert.Error(t, err)
}

func TestRankUnlistedRegions(t *testing.T) {
	table := Table{constants.WindowQuadrant: {constants.FieldNetAmount: {"bottom_left"}}}
	assert.Equal(t, 0, table.Rank(constants.WindowQuadrant, constants.FieldNetAmount, "bottom_left"))
	assert.Less(t,
		table.Rank(constants.WindowQuadrant, constants.FieldNetAmount, "top_left"),
		table.Rank(constants.WindowQuadrant, constants.FieldNetAmount, "bottom_right"))
}
