package parse

import (
	"regexp"
	"strings"

	"github.com/joseph-ayodele/payslip-extractor/constants"
)

// Label patterns per field, tried in order. Each has one capture group
// holding the candidate value.
var labelPatterns = map[string][]*regexp.Regexp{
	constants.FieldEmployeeName: {
		jsonKey(constants.FieldEmployeeName),
		regexp.MustCompile(`(?i:name des angestellten|mitarbeiter(?:name)?|arbeitnehmer|employee(?: name)?|name)\s*[:=\-]\s*"?(\p{Lu}[\p{L}.'\-]+(?:[ \t]+\p{Lu}[\p{L}.'\-]+){0,3})`),
		regexp.MustCompile(`(?:Herrn|Frau)\s+(\p{Lu}[\p{L}.'\-]+(?:[ \t]+\p{Lu}[\p{L}.'\-]+){1,3})`),
	},
	constants.FieldGrossAmount: append([]*regexp.Regexp{jsonKey(constants.FieldGrossAmount)},
		amountLabels(`Gesamt-Brutto`, `Gesamtbrutto`, `Brutto-Bez(?:ü|ue)ge`, `Bruttolohn`, `Brutto`, `Gross Pay`, `Gross`)...),
	constants.FieldNetAmount: append([]*regexp.Regexp{jsonKey(constants.FieldNetAmount)},
		amountLabels(`Auszahlungsbetrag`, `Auszahlung`, `Netto-Verdienst`, `Nettolohn`, `Netto`, `Net Pay`)...),
	constants.FieldLivingSpace: append([]*regexp.Regexp{jsonKey(constants.FieldLivingSpace)},
		amountLabels(`Wohnfl(?:ä|ae)che`, `Living space`)...),
	constants.FieldPurchasePrice: append([]*regexp.Regexp{jsonKey(constants.FieldPurchasePrice)},
		amountLabels(`Kaufpreis`, `Purchase price`)...),
}

// jsonKey recovers a value from a JSON-looking fragment that failed to decode.
func jsonKey(field string) *regexp.Regexp {
	return regexp.MustCompile(`["']` + field + `["']\s*:\s*(?:"([^"\n]*)"|'([^'\n]*)'|(-?[\d.,]+))`)
}

// amountLabels matches a label followed by the nearest numeric token.
func amountLabels(labels ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(labels))
	for i, l := range labels {
		out[i] = regexp.MustCompile(`(?i)` + l + `[^\d\n]{0,60}?\n?[^\d\n]{0,60}?(-?\d[\d.,]*)`)
	}
	return out
}

// findLabelled scans raw for the field and returns the first usable value.
func findLabelled(raw string, spec constants.FieldSpec) (string, bool) {
	for _, re := range labelPatterns[spec.Name] {
		for _, m := range re.FindAllStringSubmatch(raw, -1) {
			v := firstGroup(m)
			if v == "" || spec.IsSentinel(v) {
				continue
			}
			if spec.Kind == constants.KindText {
				return v, true
			}
			if n, ok := NormalizeNumber(v); ok && n != 0 {
				return v, true
			}
		}
	}
	return "", false
}

func firstGroup(m []string) string {
	for _, g := range m[1:] {
		if g = strings.TrimSpace(g); g != "" {
			return g
		}
	}
	return ""
}
