package entity

import (
	"image"
	"time"

	"github.com/joseph-ayodele/payslip-extractor/constants"
)

// Region is a named rectangle of a page submitted as one inference unit.
type Region struct {
	Name    string          `json:"name"`
	Bounds  image.Rectangle `json:"bounds"`
	Overlap float64         `json:"overlap"`
}

// AttemptOutcome classifies how one ExtractionAttempt ended.
type AttemptOutcome string

const (
	OutcomeSuccess              AttemptOutcome = "success"
	OutcomeTimeout              AttemptOutcome = "timeout"
	OutcomeTransportError       AttemptOutcome = "transport_error"
	OutcomeResourceExhausted    AttemptOutcome = "resource_exhausted"
	OutcomeIsolationUnavailable AttemptOutcome = "isolation_unavailable"
	OutcomeFailed               AttemptOutcome = "failed"
)

// ExtractionAttempt is one region at one resolution under one isolation mode.
// Attempts live only for the duration of a pipeline run.
type ExtractionAttempt struct {
	Page       int
	PageCount  int
	Mode       constants.WindowMode
	Region     Region
	Resolution int
	Isolation  constants.IsolationMode
	Image      []byte
	MIMEType   string
	Prompt     string
	Timeout    time.Duration
	Outcome    AttemptOutcome
	RawText    string
	Err        error
	Elapsed    time.Duration
}
