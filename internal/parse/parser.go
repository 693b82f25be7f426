package parse

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/joseph-ayodele/payslip-extractor/constants"
	"github.com/joseph-ayodele/payslip-extractor/internal/common"
	"github.com/joseph-ayodele/payslip-extractor/internal/entity"
	"github.com/joseph-ayodele/payslip-extractor/internal/llm"
)

// Parser turns raw model replies into typed field candidates for one
// document type.
type Parser struct {
	doc    constants.DocumentType
	logger *slog.Logger
}

func NewParser(doc constants.DocumentType, logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{doc: doc, logger: logger}
}

// Parse returns one FieldResult per declared field, in declared order.
//
// The JSON path is tried first. When no usable object is found, each field is
// scanned for by label. If neither path yields any field, every result is the
// sentinel and the error is a CONTENT_ERROR; the results are still usable.
func (p *Parser) Parse(region, raw string) ([]entity.FieldResult, error) {
	specs := p.doc.Fields()

	if inner, ok := p.jsonFields(region, raw); ok {
		out := make([]entity.FieldResult, len(specs))
		for i, spec := range specs {
			v, present := inner[spec.Name]
			if !present {
				out[i] = sentinel(spec, region, true)
				continue
			}
			out[i] = candidate(spec, region, v, entity.SourceJSON)
		}
		return out, nil
	}

	out := make([]entity.FieldResult, len(specs))
	found := 0
	for i, spec := range specs {
		v, ok := findLabelled(raw, spec)
		if !ok {
			out[i] = sentinel(spec, region, true)
			continue
		}
		out[i] = candidate(spec, region, v, entity.SourceRegex)
		out[i].LowConfidence = true
		if out[i].Source == entity.SourceRegex {
			if spec.Kind == constants.KindText {
				// label captures may span a line break
				out[i].Value = strings.Join(strings.Fields(out[i].Value), " ")
			}
			found++
		}
	}
	if found == 0 {
		return out, common.ContentError(fmt.Sprintf("no fields recognised in %s reply (%d chars)", region, len(raw)), nil)
	}
	p.logger.Debug("parse.regex_fallback", "region", region, "found", found)
	return out, nil
}

// jsonFields returns the coerced field object of the reply when it carries at
// least one declared field and satisfies the region schema.
func (p *Parser) jsonFields(region, raw string) (map[string]any, bool) {
	m, ok := locateObject(raw)
	if !ok {
		return nil, false
	}
	inner, ok := regionObject(m, region, p.doc)
	if !ok {
		return nil, false
	}
	fields := coerce(inner, p.doc)
	if len(fields) == 0 {
		return nil, false
	}
	schema, err := llm.RegionSchema(p.doc)
	if err != nil {
		p.logger.Error("parse.schema.compile_error", "error", err)
		return fields, true
	}
	if err := schema.Validate(fields); err != nil {
		p.logger.Warn("parse.schema.invalid", "region", region, "error", err)
		return nil, false
	}
	return fields, true
}

// candidate normalises a raw value for spec. Values that are sentinels, or
// numeric fields that do not parse, become the field's sentinel.
func candidate(spec constants.FieldSpec, region string, v any, src entity.FieldSource) entity.FieldResult {
	var value string
	switch t := v.(type) {
	case float64:
		if spec.Kind == constants.KindText {
			value = FormatMeasure(t)
			break
		}
		if t == 0 {
			return sentinel(spec, region, false)
		}
		return entity.FieldResult{Field: spec.Name, Value: format(spec, t), Region: region, Source: src}
	case string:
		value = strings.TrimSpace(strings.Trim(t, `"'`))
	default:
		return sentinel(spec, region, true)
	}

	if spec.IsSentinel(value) {
		return sentinel(spec, region, false)
	}
	if spec.Kind == constants.KindText {
		return entity.FieldResult{Field: spec.Name, Value: value, Region: region, Source: src}
	}
	n, ok := NormalizeNumber(value)
	if !ok || n == 0 {
		return sentinel(spec, region, true)
	}
	return entity.FieldResult{Field: spec.Name, Value: format(spec, n), Region: region, Source: src}
}

func format(spec constants.FieldSpec, v float64) string {
	if spec.Kind == constants.KindMeasure {
		return FormatMeasure(v)
	}
	return FormatAmount(v)
}

func sentinel(spec constants.FieldSpec, region string, lowConfidence bool) entity.FieldResult {
	return entity.FieldResult{
		Field:         spec.Name,
		Value:         spec.Sentinel,
		Region:        region,
		Source:        entity.SourceSentinel,
		LowConfidence: lowConfidence,
	}
}

// Sentinels returns the all-sentinel results used when a region fails outright.
func Sentinels(doc constants.DocumentType, region string) []entity.FieldResult {
	specs := doc.Fields()
	out := make([]entity.FieldResult, len(specs))
	for i, spec := range specs {
		out[i] = sentinel(spec, region, true)
	}
	return out
}
