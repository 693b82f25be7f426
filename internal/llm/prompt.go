package llm

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/joseph-ayodele/payslip-extractor/constants"
)

// ResultKey is the JSON object key a region reply is expected to use.
func ResultKey(window string) string {
	return "found_in_" + window
}

// medium isolation has no server-side guarantee, so the prompt itself asks
// the model to disregard earlier turns.
const isolationPreamble = "Vergiss alle vorherigen Bilder und Antworten. " +
	"Beziehe dich ausschließlich auf das folgende Bild.\n\n"

var regionDescriptions = map[string]string{
	constants.RegionWhole:       "Du siehst eine vollständige Seite",
	constants.RegionTop:         "Du siehst die obere Hälfte",
	constants.RegionBottom:      "Du siehst die untere Hälfte",
	constants.RegionLeft:        "Du siehst die linke Hälfte",
	constants.RegionRight:       "Du siehst die rechte Hälfte",
	constants.RegionTopLeft:     "Du siehst das obere linke Viertel",
	constants.RegionTopRight:    "Du siehst das obere rechte Viertel",
	constants.RegionBottomLeft:  "Du siehst das untere linke Viertel",
	constants.RegionBottomRight: "Du siehst das untere rechte Viertel",
}

var documentNouns = map[constants.DocumentType]string{
	constants.DocumentPayslip:  "einer deutschen Gehaltsabrechnung",
	constants.DocumentProperty: "eines deutschen Immobilienexposés",
}

var fieldInstructions = map[string]string{
	constants.FieldEmployeeName: `Den Namen des Angestellten. Er steht meist oben links unter "Herrn/Frau". ` +
		`Keine Firmennamen oder Krankenkassen. Gib "unknown" zurück, wenn du ihn nicht findest.`,
	constants.FieldGrossAmount: `Das Bruttogehalt unter dem Label "Gesamt-Brutto" (oben rechts). ` +
		`Ignoriere die Summen unter "Verdienstbescheinigung". Gib "0" zurück, wenn du unsicher bist.`,
	constants.FieldNetAmount: `Das Nettogehalt neben dem Label "Auszahlungsbetrag", meist die letzte Zahl ganz unten. ` +
		`Gib "0" zurück, wenn du unsicher bist.`,
	constants.FieldLivingSpace: `Die Wohnfläche in m² (Label "Wohnfläche"). ` +
		`Gib "nicht gefunden" zurück, wenn sie nicht sichtbar ist.`,
	constants.FieldPurchasePrice: `Den Kaufpreis in Euro (Label "Kaufpreis"). ` +
		`Gib "nicht gefunden" zurück, wenn er nicht sichtbar ist.`,
}

// DefaultPrompt builds the built-in prompt for one region.
func DefaultPrompt(doc constants.DocumentType, window string) string {
	desc, ok := regionDescriptions[window]
	if !ok {
		desc = "Du siehst einen Ausschnitt"
	}
	noun, ok := documentNouns[doc]
	if !ok {
		noun = documentNouns[constants.DocumentPayslip]
	}

	fields := doc.Fields()
	template := make(map[string]string, len(fields))

	var b strings.Builder
	b.WriteString(desc)
	b.WriteString(" ")
	b.WriteString(noun)
	b.WriteString(".\n\nSUCHE PRÄZISE NACH:\n")
	for i, f := range fields {
		b.WriteString(strconv.Itoa(i + 1))
		b.WriteString(". ")
		b.WriteString(fieldInstructions[f.Name])
		b.WriteString("\n")
		template[f.Name] = f.Sentinel
	}
	b.WriteString("\nWICHTIG:\n")
	b.WriteString("- Beträge im deutschen Format #.###,## übernehmen.\n")
	b.WriteString("- Erfinde keine Werte.\n\n")
	b.WriteString("Gib deine Funde ausschließlich als JSON zurück:\n")

	wrapped := map[string]any{ResultKey(window): template}
	js, _ := json.MarshalIndent(wrapped, "", "  ")
	b.Write(js)
	return b.String()
}

// PromptFor returns the configured prompt for mode/window, falling back to the
// built-in one. Configured prompts are keyed by window mode then window name.
func PromptFor(doc constants.DocumentType, mode constants.WindowMode, window string, configured map[string]map[string]string) string {
	if byWindow, ok := configured[string(mode)]; ok {
		if p := strings.TrimSpace(byWindow[window]); p != "" {
			return p
		}
	}
	return DefaultPrompt(doc, window)
}

// Isolate adapts a prompt to the isolation level an attempt runs at.
func Isolate(prompt string, mode constants.IsolationMode) string {
	if mode == constants.IsolationMedium {
		return isolationPreamble + prompt
	}
	return prompt
}
