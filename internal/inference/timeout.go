package inference

import (
	"math"
	"time"

	"github.com/joseph-ayodele/payslip-extractor/constants"
	"github.com/joseph-ayodele/payslip-extractor/internal/common"
)

// EffectiveTimeout computes the wall-clock budget of one attempt:
//
//	base [* page_count] * region_count(mode) * scaling [* cpu_multiplier], capped at max
func EffectiveTimeout(cfg common.TimeoutConfig, pageCount int, mode constants.WindowMode, onCPU bool) time.Duration {
	eff := float64(cfg.Base)
	if cfg.PerPage {
		eff *= float64(max(1, pageCount))
	}
	eff *= float64(mode.RegionCount())
	eff *= cfg.ScalingFactor
	if onCPU {
		eff *= cfg.CPUMultiplier
	}
	if cfg.Max > 0 && eff > float64(cfg.Max) {
		return cfg.Max
	}
	if eff >= math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(eff)
}
