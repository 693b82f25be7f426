package parse

import (
	"encoding/json"
	"regexp"
	"sort"
	"strings"

	"github.com/joseph-ayodele/payslip-extractor/constants"
	"github.com/joseph-ayodele/payslip-extractor/internal/llm"
)

var reFence = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(.*?)```")

// stripFences returns the content of the first fenced block, or s unchanged.
func stripFences(s string) string {
	if m := reFence.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return s
}

// locateObject returns the first decodable JSON object embedded in s.
func locateObject(s string) (map[string]any, bool) {
	s = stripFences(s)
	for start := strings.IndexByte(s, '{'); start >= 0; {
		if end := matchBrace(s, start); end > start {
			candidate := s[start : end+1]
			if m, ok := decodeObject(candidate); ok {
				return m, true
			}
		}
		next := strings.IndexByte(s[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return nil, false
}

func decodeObject(candidate string) (map[string]any, bool) {
	var m map[string]any
	if err := json.Unmarshal([]byte(candidate), &m); err == nil {
		return m, true
	}
	// Python-style dicts with single quotes show up often enough.
	if !strings.Contains(candidate, `"`) && strings.Contains(candidate, "'") {
		if err := json.Unmarshal([]byte(strings.ReplaceAll(candidate, "'", `"`)), &m); err == nil {
			return m, true
		}
	}
	return nil, false
}

// matchBrace returns the index of the brace closing the one at start, or -1.
func matchBrace(s string, start int) int {
	depth := 0
	inString := false
	var quote byte
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch c {
			case '\\':
				i++
			case quote:
				inString = false
			}
			continue
		}
		switch c {
		case '"', '\'':
			inString, quote = true, c
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// regionObject finds the field object for region inside a decoded reply.
func regionObject(m map[string]any, region string, doc constants.DocumentType) (map[string]any, bool) {
	if inner, ok := m[llm.ResultKey(region)].(map[string]any); ok {
		return inner, true
	}
	if inner, ok := m["property_"+region].(map[string]any); ok {
		return inner, true
	}
	if results, ok := m["results"].([]any); ok {
		for _, r := range results {
			if rm, ok := r.(map[string]any); ok {
				if inner, ok := regionObject(rm, region, doc); ok {
					return inner, true
				}
			}
		}
	}

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if strings.HasPrefix(k, "found_in_") || strings.HasPrefix(k, "property_") {
			if inner, ok := m[k].(map[string]any); ok {
				return inner, true
			}
		}
	}

	for _, f := range doc.Fields() {
		if _, ok := m[f.Name]; ok {
			return m, true
		}
	}
	return nil, false
}

// coerce keeps declared string and number fields and drops null, empty and
// non-scalar values. Numbers stay float64 since they need no separator guessing.
func coerce(inner map[string]any, doc constants.DocumentType) map[string]any {
	out := make(map[string]any, len(inner))
	for _, f := range doc.Fields() {
		v, ok := inner[f.Name]
		if !ok {
			continue
		}
		switch t := v.(type) {
		case string:
			if s := strings.TrimSpace(t); s != "" && !strings.EqualFold(s, "null") {
				out[f.Name] = s
			}
		case float64:
			out[f.Name] = t
		case bool, nil, map[string]any, []any:
		}
	}
	return out
}
