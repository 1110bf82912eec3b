package forge

import (
	"errors"
	"fmt"
	"time"
)

// ErrTerminal is returned when a terminal state would be reassigned.
var ErrTerminal = errors.New("forge: result already has a terminal state")

// Result is the outcome of one forge attempt. Build one with WithAttempt;
// the zero value is an empty result.
type Result struct {
	state           State
	output          string
	debuggingOutput string
	start           *time.Time
	end             *time.Time
}

// EmptyResult returns a result that was never run, used for pre-run reports.
func EmptyResult() *Result {
	return &Result{state: StateEmpty}
}

// NewResult returns a finished result. Useful for reporting and tests.
func NewResult(state State, output string) *Result {
	return &Result{state: state, output: output}
}

// State returns the current state.
func (r *Result) State() State { return r.state }

// Output returns the captured workload output.
func (r *Result) Output() string { return r.output }

// DebuggingOutput returns the diagnostics captured for the attempt.
func (r *Result) DebuggingOutput() string { return r.debuggingOutput }

// SetState records the verdict. A terminal state is never reassigned.
func (r *Result) SetState(s State) error {
	if r.state.IsTerminal() {
		return fmt.Errorf("%w: have %s, got %s", ErrTerminal, r.state, s)
	}
	r.state = s
	return nil
}

// SetOutput replaces the captured output.
func (r *Result) SetOutput(output string) {
	r.output = output
}

// SetDebuggingOutput replaces the diagnostics.
func (r *Result) SetDebuggingOutput(output string) {
	r.debuggingOutput = output
}

// StartTime panics if the attempt never started.
func (r *Result) StartTime() time.Time {
	if r.start == nil {
		panic("forge: result start time read before it was set")
	}
	return *r.start
}

// EndTime panics if the attempt never finished.
func (r *Result) EndTime() time.Time {
	if r.end == nil {
		panic("forge: result end time read before it was set")
	}
	return *r.end
}

// HasTimes reports whether both timestamps are set.
func (r *Result) HasTimes() bool {
	return r.start != nil && r.end != nil
}

// Duration is EndTime minus StartTime, or 0 when either is unset.
func (r *Result) Duration() time.Duration {
	if !r.HasTimes() {
		return 0
	}
	return r.end.Sub(*r.start)
}

// Succeeded reports whether the verdict is PASS.
func (r *Result) Succeeded() bool {
	return r.state == StatePass
}

// Format returns a one-line summary such as "Forge passed".
func (r *Result) Format() string {
	switch r.state {
	case StatePass:
		return "Forge passed"
	case StateFail:
		return "Forge failed"
	case StateSkip:
		return "Forge skipped"
	case StateRunning:
		return "Forge running"
	default:
		return "Forge empty"
	}
}

func (r *Result) stampStart(t time.Time) { r.start = &t }
func (r *Result) stampEnd(t time.Time)   { r.end = &t }

// fail overrides any state with FAIL. Only the attempt scope may do this.
func (r *Result) fail() {
	r.state = StateFail
}
