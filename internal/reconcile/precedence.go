package reconcile

import (
	"fmt"
	"maps"
	"slices"

	"github.com/joseph-ayodele/payslip-extractor/constants"
	"github.com/joseph-ayodele/payslip-extractor/internal/common"
)

// Table maps (window mode, field) to regions in order of preference.
type Table map[constants.WindowMode]map[string][]string

// DefaultTable is the built-in precedence for the known document families.
// Quadrant gross prefers bottom_right: the bottom-left block of these payslips
// carries year-to-date totals.
func DefaultTable() Table {
	amountsRight := []string{constants.RegionRight, constants.RegionLeft}
	quadAmounts := []string{
		constants.RegionBottomRight, constants.RegionBottomLeft, constants.RegionTopRight, constants.RegionTopLeft,
	}
	return Table{
		constants.WindowWhole: {
			constants.FieldEmployeeName:  {constants.RegionWhole},
			constants.FieldGrossAmount:   {constants.RegionWhole},
			constants.FieldNetAmount:     {constants.RegionWhole},
			constants.FieldLivingSpace:   {constants.RegionWhole},
			constants.FieldPurchasePrice: {constants.RegionWhole},
		},
		constants.WindowVertical: {
			constants.FieldEmployeeName: {constants.RegionTop, constants.RegionBottom},
			constants.FieldGrossAmount:  {constants.RegionBottom, constants.RegionTop},
			constants.FieldNetAmount:    {constants.RegionBottom, constants.RegionTop},
		},
		constants.WindowHorizontal: {
			constants.FieldEmployeeName: {constants.RegionLeft, constants.RegionRight},
			constants.FieldGrossAmount:  amountsRight,
			constants.FieldNetAmount:    slices.Clone(amountsRight),
		},
		constants.WindowQuadrant: {
			constants.FieldEmployeeName: {
				constants.RegionTopLeft, constants.RegionTopRight, constants.RegionBottomLeft, constants.RegionBottomRight,
			},
			constants.FieldGrossAmount: quadAmounts,
			constants.FieldNetAmount:   slices.Clone(quadAmounts),
		},
	}
}

// WithOverrides returns a copy of t where each (mode, field) entry present in
// overrides replaces the built-in one. Region names must belong to the mode.
func (t Table) WithOverrides(overrides map[string]map[string][]string) (Table, error) {
	out := make(Table, len(t))
	for mode, fields := range t {
		out[mode] = maps.Clone(fields)
	}
	for rawMode, fields := range overrides {
		mode, ok := constants.ParseWindowMode(rawMode)
		if !ok || mode == constants.WindowAuto {
			return nil, common.ConfigurationErrorf("precedence: unknown window mode %q", rawMode)
		}
		if out[mode] == nil {
			out[mode] = map[string][]string{}
		}
		for field, regions := range fields {
			for _, r := range regions {
				if !mode.ValidWindow(r) {
					return nil, common.ConfigurationError(fmt.Sprintf("precedence: region %q not valid for %s", r, mode))
				}
			}
			out[mode][field] = slices.Clone(regions)
		}
	}
	return out, nil
}

// Rank orders region for (mode, field): listed regions first in list order,
// then the rest in canonical mode order.
func (t Table) Rank(mode constants.WindowMode, field, region string) int {
	listed := t[mode][field]
	if i := slices.Index(listed, region); i >= 0 {
		return i
	}
	return len(listed) + mode.WindowRank(region)
}
