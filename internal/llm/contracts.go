package llm

import (
	"context"

	"github.com/joseph-ayodele/payslip-extractor/constants"
	"github.com/joseph-ayodele/payslip-extractor/internal/common"
)

// Request is one region image submitted to the model.
type Request struct {
	Image      []byte
	MIMEType   string
	Prompt     string
	Window     string
	Isolation  constants.IsolationMode
	ForceCPU   bool
	Generation common.GenerationConfig
}

// Response carries the raw model reply. Applied is the isolation level the
// backend reports having used, empty when it does not say.
type Response struct {
	Text    string
	Applied constants.IsolationMode
}

// Client is the inference boundary the dispatcher depends on. Failures are
// classified with the common error codes so callers can decide on fallback.
type Client interface {
	Generate(ctx context.Context, req Request) (Response, error)
}

// Status describes the backend as reported by its health endpoint.
type Status struct {
	Ready  bool
	Device string // cpu | cuda
	Model  string
}

func (s Status) OnCPU() bool { return s.Device == "" || s.Device == "cpu" }

// StatusReporter is implemented by backends that expose health and device info.
type StatusReporter interface {
	Status(ctx context.Context) (Status, error)
}
