package forge

// State is the verdict of a forge attempt.
type State int

const (
	// StateEmpty is the state of a result that was never run.
	StateEmpty State = iota
	StateRunning
	StatePass
	StateFail
	StateSkip
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateEmpty:
		return "EMPTY"
	case StateRunning:
		return "RUNNING"
	case StatePass:
		return "PASS"
	case StateFail:
		return "FAIL"
	case StateSkip:
		return "SKIP"
	default:
		return "UNKNOWN"
	}
}

// IsTerminal returns true if the state is a final verdict.
func (s State) IsTerminal() bool {
	return s == StatePass || s == StateFail || s == StateSkip
}
