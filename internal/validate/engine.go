package validate

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/agext/levenshtein"
	"github.com/sahilm/fuzzy"

	"github.com/joseph-ayodele/payslip-extractor/constants"
	"github.com/joseph-ayodele/payslip-extractor/internal/common"
	"github.com/joseph-ayodele/payslip-extractor/internal/entity"
)

const (
	MessageNotFound = "employee not found"

	// plausibility bounds for a monthly payslip amount
	maxAmount          = 50000.0
	deductionTolerance = 0.01
)

// Store is the expected-record lookup. Get returns a NOT_FOUND AppError for
// unknown ids.
type Store interface {
	Get(ctx context.Context, id string) (entity.ExpectedRecord, error)
	List(ctx context.Context) ([]entity.ExpectedRecord, error)
}

// Engine compares PageResults with expected records. It never modifies the
// page it is given.
type Engine struct {
	store  Store
	cfg    common.ValidationConfig
	logger *slog.Logger
}

func NewEngine(store Store, cfg common.ValidationConfig, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: store, cfg: cfg, logger: logger}
}

// Validate builds the comparison for one page. An empty employeeID looks the
// record up by the extracted name.
func (e *Engine) Validate(ctx context.Context, page entity.PageResult, employeeID string) (entity.Comparison, error) {
	cmp := entity.Comparison{Page: page.Page}
	if page.DocumentType != constants.DocumentPayslip {
		cmp.Message = fmt.Sprintf("no expected records for %s documents", page.DocumentType)
		return cmp, nil
	}

	name, _ := page.Field(constants.FieldEmployeeName)
	gross := amountOf(page, constants.FieldGrossAmount)
	net := amountOf(page, constants.FieldNetAmount)

	rec, sim, found, err := e.lookup(ctx, employeeID, name)
	if err != nil {
		return cmp, err
	}
	if !found {
		cmp.Message = MessageNotFound
		cmp.Consistency = consistency(gross, net, nil)
		e.logger.Info("validate.not_found", append(common.LogAttrs(ctx), "page", page.Page, "employee_id", employeeID)...)
		return cmp, nil
	}

	cmp.EmployeeFound = true
	cmp.Employee = &entity.EmployeeComparison{
		ID: rec.ID,
		Name: entity.FieldMatch{
			Extracted: name.Value,
			Stored:    rec.Name,
			Matches:   !name.Sentinel && sim >= e.cfg.NameThreshold,
		},
		Similarity: sim,
	}

	var deductions *float64
	if gross != nil && net != nil {
		d := math.Round((*gross-*net)*100) / 100
		deductions = &d
	}
	cmp.Payment = &entity.PaymentComparison{
		Gross:      e.amountMatch(gross, rec.ExpectedGross),
		Net:        e.amountMatch(net, rec.ExpectedNet),
		Deductions: e.amountMatch(deductions, rec.ExpectedDeductions),
	}
	cmp.Consistency = consistency(gross, net, &rec.ExpectedDeductions)
	cmp.AllMatch = cmp.Employee.Name.Matches &&
		cmp.Payment.Gross.Matches && cmp.Payment.Net.Matches && cmp.Payment.Deductions.Matches

	e.logger.Info("validate.compared", append(common.LogAttrs(ctx),
		"page", page.Page, "employee_id", rec.ID, "similarity", sim, "all_match", cmp.AllMatch)...)
	return cmp, nil
}

func (e *Engine) lookup(ctx context.Context, id string, name entity.ResolvedField) (entity.ExpectedRecord, float64, bool, error) {
	if id != "" {
		rec, err := e.store.Get(ctx, id)
		if common.IsKind(err, common.CodeNotFound) {
			return rec, 0, false, nil
		}
		if err != nil {
			return rec, 0, false, fmt.Errorf("get expected record %s: %w", id, err)
		}
		return rec, Similarity(name.Value, rec.Name), true, nil
	}

	if name.Sentinel || name.Value == "" {
		return entity.ExpectedRecord{}, 0, false, nil
	}
	records, err := e.store.List(ctx)
	if err != nil {
		return entity.ExpectedRecord{}, 0, false, fmt.Errorf("list expected records: %w", err)
	}
	rec, sim, ok := BestMatch(name.Value, records, e.cfg.NameThreshold)
	return rec, sim, ok, nil
}

// BestMatch finds the record whose name is closest to extracted. Fuzzy
// subsequence matches are preferred as candidates; when none exist every
// record is scored. The winner must reach threshold.
func BestMatch(extracted string, records []entity.ExpectedRecord, threshold float64) (entity.ExpectedRecord, float64, bool) {
	if len(records) == 0 {
		return entity.ExpectedRecord{}, 0, false
	}
	target := NormalizeName(extracted)
	names := make([]string, len(records))
	for i, r := range records {
		names[i] = NormalizeName(r.Name)
	}

	candidates := make([]int, 0, len(records))
	for _, m := range fuzzy.Find(target, names) {
		candidates = append(candidates, m.Index)
	}
	if len(candidates) == 0 {
		for i := range records {
			candidates = append(candidates, i)
		}
	}

	best, bestSim := -1, -1.0
	for _, i := range candidates {
		sim := levenshtein.Similarity(target, names[i], nil)
		// ties go to the lower id so results do not depend on store order
		if sim > bestSim || (sim == bestSim && records[i].ID < records[best].ID) {
			best, bestSim = i, sim
		}
	}
	if bestSim < threshold {
		return entity.ExpectedRecord{}, bestSim, false
	}
	return records[best], bestSim, true
}

// Similarity is the normalized Levenshtein similarity of two names, in [0, 1].
func Similarity(a, b string) float64 {
	return levenshtein.Similarity(NormalizeName(a), NormalizeName(b), nil)
}

func (e *Engine) amountMatch(extracted *float64, stored float64) entity.FieldMatch {
	m := entity.FieldMatch{Stored: stored}
	if extracted == nil {
		return m
	}
	m.Extracted = *extracted
	tol := math.Max(e.cfg.AmountAbsTolerance, e.cfg.AmountRelTolerance*math.Abs(stored))
	// rounding slack so 0.01 tolerance accepts a 0.01 cent difference
	m.Matches = math.Abs(*extracted-stored) <= tol+1e-9
	return m
}

func amountOf(page entity.PageResult, field string) *float64 {
	f, ok := page.Field(field)
	if !ok || f.Sentinel || f.Amount == nil {
		return nil
	}
	v := *f.Amount
	return &v
}

func consistency(gross, net, storedDeductions *float64) entity.ConsistencyCheck {
	var problems []string
	check := func(name string, v *float64) {
		switch {
		case v == nil:
			problems = append(problems, name+" missing")
		case *v <= 0 || *v > maxAmount:
			problems = append(problems, fmt.Sprintf("%s %.2f outside (0, %.0f]", name, *v, maxAmount))
		}
	}
	check(constants.FieldGrossAmount, gross)
	check(constants.FieldNetAmount, net)

	if gross != nil && net != nil {
		if *gross < *net {
			problems = append(problems, fmt.Sprintf("net %.2f exceeds gross %.2f", *net, *gross))
		}
		if storedDeductions != nil && math.Abs(*gross-*net-*storedDeductions) > deductionTolerance+1e-9 {
			problems = append(problems, fmt.Sprintf("gross - net = %.2f, expected deductions %.2f", *gross-*net, *storedDeductions))
		}
	}
	return entity.ConsistencyCheck{Consistent: len(problems) == 0, Problems: problems}
}
