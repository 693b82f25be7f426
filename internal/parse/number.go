package parse

import (
	"regexp"
	"strconv"
	"strings"
)

var reNumberToken = regexp.MustCompile(`[-−]?\d[\d.,]*`)

// NormalizeNumber reads the first numeric token of s written in German or
// English notation and returns its value.
//
// With both separators present the right-most one is the decimal mark. A lone
// separator followed by exactly three digits is a thousands mark ("2.124",
// "1,234"); any other lone separator is decimal.
func NormalizeNumber(s string) (float64, bool) {
	tok := reNumberToken.FindString(s)
	if tok == "" {
		return 0, false
	}
	neg := false
	if strings.HasPrefix(tok, "-") || strings.HasPrefix(tok, "−") {
		neg = true
		tok = strings.TrimLeft(tok, "-−")
	}
	tok = strings.TrimRight(tok, ".,")

	lastDot := strings.LastIndex(tok, ".")
	lastComma := strings.LastIndex(tok, ",")

	var canonical string
	switch {
	case lastDot >= 0 && lastComma >= 0:
		dec := max(lastDot, lastComma)
		intPart := strings.NewReplacer(".", "", ",", "").Replace(tok[:dec])
		canonical = intPart + "." + tok[dec+1:]
	case lastDot >= 0:
		canonical = singleSeparator(tok, ".")
	case lastComma >= 0:
		canonical = singleSeparator(tok, ",")
	default:
		canonical = tok
	}

	v, err := strconv.ParseFloat(canonical, 64)
	if err != nil {
		return 0, false
	}
	if neg {
		v = -v
	}
	return v, true
}

func singleSeparator(tok, sep string) string {
	parts := strings.Split(tok, sep)
	if len(parts) > 2 {
		return strings.Join(parts, "")
	}
	if len(parts[1]) == 3 {
		return parts[0] + parts[1]
	}
	return parts[0] + "." + parts[1]
}

// FormatAmount renders an amount in the canonical two-decimal form.
func FormatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// FormatMeasure renders a measure without trailing zeros.
func FormatMeasure(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
