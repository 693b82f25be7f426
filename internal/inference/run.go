package inference

import (
	"sync"

	"github.com/joseph-ayodele/payslip-extractor/constants"
	"github.com/joseph-ayodele/payslip-extractor/internal/common"
	"github.com/joseph-ayodele/payslip-extractor/internal/entity"
)

// Run accumulates isolation state and attempt counters for one batch run.
// It is safe for concurrent use by the regions and pages of that run.
type Run struct {
	mu        sync.Mutex
	requested constants.IsolationMode
	state     isolationState
	stats     entity.RunStats
}

func NewRun(requested constants.IsolationMode) *Run {
	if requested == "" {
		requested = constants.IsolationAuto
	}
	return &Run{requested: requested, state: initialState(requested)}
}

// Mode is the isolation directive for the next attempt.
func (r *Run) Mode() constants.IsolationMode {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.dispatchMode()
}

// degrade applies an isolation failure observed at mode and reports whether
// the caller should re-dispatch at the (now weaker) current mode.
func (r *Run) degrade(mode constants.IsolationMode) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if mode != constants.IsolationStrict {
		return false
	}
	r.state, _ = transition(r.state, eventIsolationUnavailable)
	r.stats.FallbacksOccurred++
	return r.state.dispatchMode() != constants.IsolationStrict
}

func (r *Run) record(mode constants.IsolationMode, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats.Attempts++
	if mode == constants.IsolationMedium {
		r.stats.MediumUsed++
	}
	switch common.KindOf(err) {
	case "":
		if err == nil && mode == constants.IsolationStrict {
			r.stats.StrictSucceeded++
		}
	case common.CodeTimeout:
		r.stats.Timeouts++
	case common.CodeTransport:
		r.stats.TransportErrors++
	case common.CodeResourceExhausted:
		r.stats.ResourceExhausted++
	}
}

// Stats returns a snapshot of the counters and the reported isolation.
func (r *Run) Stats() entity.RunStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.stats
	s.Requested = r.requested
	s.Reported = r.state.reported()
	return s
}
