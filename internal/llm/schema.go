package llm

import "github.com/joseph-ayodele/payslip-extractor/constants"

// BuildRegionJSONSchema returns the JSON-Schema for the inner object of a
// region reply. Values may be strings or numbers; models emit both.
func BuildRegionJSONSchema(doc constants.DocumentType) map[string]any {
	props := map[string]any{}
	for _, f := range doc.Fields() {
		switch f.Kind {
		case constants.KindText:
			props[f.Name] = map[string]any{"type": []any{"string", "null"}}
		default:
			props[f.Name] = map[string]any{"type": []any{"string", "number", "null"}}
		}
	}
	return map[string]any{
		"type":          "object",
		"properties":    props,
		"minProperties": 1,
	}
}
