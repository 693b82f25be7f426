package constants

import "strings"

// IsolationMode is the degree to which region calls are kept from sharing
// inference context.
type IsolationMode string

const (
	IsolationNone   IsolationMode = "none"
	IsolationMedium IsolationMode = "medium"
	IsolationStrict IsolationMode = "strict"
	IsolationAuto   IsolationMode = "auto"

	// IsolationMixed is only ever reported, never requested.
	IsolationMixed IsolationMode = "mixed"
)

// ParseIsolationMode canonicalizes user input; empty or unknown yields auto.
func ParseIsolationMode(input string) (IsolationMode, bool) {
	switch IsolationMode(strings.ToLower(strings.TrimSpace(input))) {
	case IsolationNone:
		return IsolationNone, true
	case IsolationMedium:
		return IsolationMedium, true
	case IsolationStrict:
		return IsolationStrict, true
	case IsolationAuto:
		return IsolationAuto, true
	}
	return IsolationAuto, false
}

// Strength orders the concrete modes; higher is more isolated.
func (m IsolationMode) Strength() int {
	switch m {
	case IsolationStrict:
		return 2
	case IsolationMedium:
		return 1
	default:
		return 0
	}
}
