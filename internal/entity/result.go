package entity

import (
	"github.com/joseph-ayodele/payslip-extractor/constants"
)

// FieldSource records which parser path produced a value.
type FieldSource string

const (
	SourceJSON     FieldSource = "json"
	SourceRegex    FieldSource = "regex"
	SourceSentinel FieldSource = "sentinel"
)

// FieldResult is one region's candidate value for one field.
type FieldResult struct {
	Field         string      `json:"field"`
	Value         string      `json:"value"`
	Region        string      `json:"region"`
	Source        FieldSource `json:"source"`
	LowConfidence bool        `json:"low_confidence"`
}

// IsSentinel reports whether the candidate carries no usable value.
func (f FieldResult) IsSentinel() bool {
	return f.Source == SourceSentinel
}

// ResolvedField is the single authoritative value of a field on a page.
type ResolvedField struct {
	Name          string      `json:"name"`
	Value         string      `json:"value"`
	Amount        *float64    `json:"amount,omitempty"`
	Region        string      `json:"region,omitempty"`
	Source        FieldSource `json:"source"`
	Sentinel      bool        `json:"sentinel"`
	LowConfidence bool        `json:"low_confidence"`
	Candidates    int         `json:"candidates"`
}

// PageResult holds one resolved value per declared field, in declared order.
type PageResult struct {
	Page             int                    `json:"page"`
	DocumentType     constants.DocumentType `json:"document_type"`
	WindowMode       constants.WindowMode   `json:"window_mode"`
	Fields           []ResolvedField        `json:"fields"`
	ProcessedWindows []string               `json:"processed_windows"`
	FailedWindows    []string               `json:"failed_windows,omitempty"`
}

// Field returns the resolved field by name.
func (p PageResult) Field(name string) (ResolvedField, bool) {
	for _, f := range p.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return ResolvedField{}, false
}

// RunStats is the run-level accumulator surfaced in the batch report.
type RunStats struct {
	Requested         constants.IsolationMode `json:"requested"`
	Reported          constants.IsolationMode `json:"reported"`
	StrictSucceeded   int                     `json:"strict_succeeded"`
	MediumUsed        int                     `json:"medium_used"`
	FallbacksOccurred int                     `json:"fallbacks_occurred"`
	Attempts          int                     `json:"attempts"`
	Timeouts          int                     `json:"timeouts"`
	TransportErrors   int                     `json:"transport_errors"`
	ResourceExhausted int                     `json:"resource_exhausted"`
}

// FileOutcome is the terminal record for one input file.
type FileOutcome struct {
	Index       int          `json:"index"`
	Path        string       `json:"path"`
	Success     bool         `json:"success"`
	Pages       []PageResult `json:"pages,omitempty"`
	Comparisons []Comparison `json:"comparisons,omitempty"`
	Error       string       `json:"error,omitempty"`
	ElapsedMs   int64        `json:"elapsed_ms"`
}

// BatchResult lists outcomes in input order plus aggregate counts.
type BatchResult struct {
	RunID      string        `json:"run_id"`
	Total      int           `json:"total"`
	Successful int           `json:"successful"`
	Failed     int           `json:"failed"`
	Files      []FileOutcome `json:"files"`
	Stats      RunStats      `json:"stats"`
	ElapsedMs  int64         `json:"elapsed_ms"`
}
