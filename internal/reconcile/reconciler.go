package reconcile

import (
	"log/slog"
	"sort"
	"strconv"

	"github.com/joseph-ayodele/payslip-extractor/constants"
	"github.com/joseph-ayodele/payslip-extractor/internal/entity"
)

// Reconciler merges region candidates into one PageResult. It is pure: the
// same candidates in any order produce the same result.
type Reconciler struct {
	doc    constants.DocumentType
	table  Table
	logger *slog.Logger
}

func NewReconciler(doc constants.DocumentType, table Table, logger *slog.Logger) *Reconciler {
	if table == nil {
		table = DefaultTable()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{doc: doc, table: table, logger: logger}
}

// Reconcile resolves every declared field for one page. failed lists the
// regions whose attempts ended terminally.
func (r *Reconciler) Reconcile(page int, mode constants.WindowMode, candidates []entity.FieldResult, failed []string) entity.PageResult {
	byField := map[string][]entity.FieldResult{}
	processed := map[string]struct{}{}
	for _, c := range candidates {
		byField[c.Field] = append(byField[c.Field], c)
		if !c.IsSentinel() {
			processed[c.Region] = struct{}{}
		}
	}

	specs := r.doc.Fields()
	result := entity.PageResult{
		Page:             page,
		DocumentType:     r.doc,
		WindowMode:       mode,
		Fields:           make([]entity.ResolvedField, 0, len(specs)),
		ProcessedWindows: sortedKeys(processed),
		FailedWindows:    sortedUnique(failed),
	}
	for _, spec := range specs {
		rf := r.resolve(mode, spec, byField[spec.Name])
		if rf.Candidates > 1 {
			r.logger.Debug("reconcile.conflict", "page", page, "field", spec.Name, "candidates", rf.Candidates, "winner", rf.Region)
		}
		result.Fields = append(result.Fields, rf)
	}
	return result
}

func (r *Reconciler) resolve(mode constants.WindowMode, spec constants.FieldSpec, cands []entity.FieldResult) entity.ResolvedField {
	var live []entity.FieldResult
	confident := false
	for _, c := range cands {
		if !c.LowConfidence {
			confident = true
		}
		if !c.IsSentinel() {
			live = append(live, c)
		}
	}
	if len(live) == 0 {
		return entity.ResolvedField{
			Name:          spec.Name,
			Value:         spec.Sentinel,
			Source:        entity.SourceSentinel,
			Sentinel:      true,
			LowConfidence: !confident,
		}
	}

	sort.Slice(live, func(i, j int) bool {
		a, b := live[i], live[j]
		ra, rb := r.table.Rank(mode, spec.Name, a.Region), r.table.Rank(mode, spec.Name, b.Region)
		if ra != rb {
			return ra < rb
		}
		if a.Region != b.Region {
			return a.Region < b.Region
		}
		if sa, sb := sourceRank(a.Source), sourceRank(b.Source); sa != sb {
			return sa < sb
		}
		return a.Value < b.Value
	})

	win := live[0]
	rf := entity.ResolvedField{
		Name:          spec.Name,
		Value:         win.Value,
		Region:        win.Region,
		Source:        win.Source,
		LowConfidence: win.LowConfidence,
		Candidates:    len(live),
	}
	if spec.Kind != constants.KindText {
		if v, err := strconv.ParseFloat(win.Value, 64); err == nil {
			rf.Amount = &v
		}
	}
	return rf
}

func sourceRank(s entity.FieldSource) int {
	switch s {
	case entity.SourceJSON:
		return 0
	case entity.SourceRegex:
		return 1
	}
	return 2
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func sortedUnique(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(in))
	for _, s := range in {
		set[s] = struct{}{}
	}
	return sortedKeys(set)
}
