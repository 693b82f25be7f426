package inference

import "github.com/joseph-ayodele/payslip-extractor/constants"

// isolationState is the per-run isolation state machine. Runs requested as
// strict or auto start in stateStrict and may move once to stateDegraded;
// nothing leads back.
type isolationState uint8

const (
	stateNone isolationState = iota
	stateMedium
	stateStrict
	stateDegraded
)

type isolationEvent uint8

const (
	eventIsolationUnavailable isolationEvent = iota
)

func initialState(requested constants.IsolationMode) isolationState {
	switch requested {
	case constants.IsolationNone:
		return stateNone
	case constants.IsolationMedium:
		return stateMedium
	default:
		return stateStrict
	}
}

// transition returns the next state and whether it differs from s.
func transition(s isolationState, ev isolationEvent) (isolationState, bool) {
	if s == stateStrict && ev == eventIsolationUnavailable {
		return stateDegraded, true
	}
	return s, false
}

// dispatchMode is the isolation directive sent with attempts in state s.
func (s isolationState) dispatchMode() constants.IsolationMode {
	switch s {
	case stateNone:
		return constants.IsolationNone
	case stateStrict:
		return constants.IsolationStrict
	default:
		return constants.IsolationMedium
	}
}

// reported is the isolation recorded for the run as a whole.
func (s isolationState) reported() constants.IsolationMode {
	if s == stateDegraded {
		return constants.IsolationMixed
	}
	return s.dispatchMode()
}
