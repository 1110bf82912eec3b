package forge

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
)

// InvariantError means an attempt finished without a terminal state or
// without output. It is an internal consistency failure, not a verdict.
type InvariantError struct {
	State     State
	HasOutput bool
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("forge attempt finished inconsistently: state=%s has_output=%t", e.State, e.HasOutput)
}

// PanicError carries a panic recovered from an attempt body.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// WithAttempt runs body against a fresh RUNNING result and seals it.
//
// On a normal return the cluster state is dumped into the debugging output.
// If body returns an error or panics, the result is forced to FAIL and the
// error plus the state dump become the debugging output; the error itself is
// not returned. The only error WithAttempt returns is *InvariantError, when
// the sealed result is not terminal or has no output.
func WithAttempt(ctx context.Context, fctx *Context, body func(*Result) error) (*Result, error) {
	logger := fctx.Log()
	result := &Result{state: StateRunning}
	result.stampStart(fctx.Clock.Now())

	err := runBody(body, result)

	dump := DumpState(ctx, fctx.Shell, fctx.Namespace)
	if err == nil {
		result.debuggingOutput = joinDebugging(result.debuggingOutput, dump)
	} else {
		logger.Warn("forge_attempt_failed",
			"namespace", fctx.Namespace,
			"state", result.state.String(),
			"error", err,
		)
		result.fail()
		result.debuggingOutput = err.Error() + "\n" + dump + "\n"
		if result.output == "" {
			result.output = err.Error()
		}
	}
	result.stampEnd(fctx.Clock.Now())

	if !result.state.IsTerminal() || result.output == "" {
		return result, &InvariantError{State: result.state, HasOutput: result.output != ""}
	}

	logger.Info("forge_attempt_finished",
		"namespace", fctx.Namespace,
		"state", result.state.String(),
		"duration", result.Duration().String(),
	)
	return result, nil
}

func runBody(body func(*Result) error, result *Result) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return body(result)
}

// joinDebugging keeps diagnostics recorded by the body ahead of the dump.
func joinDebugging(recorded, dump string) string {
	if recorded == "" {
		return dump
	}
	return strings.TrimRight(recorded, "\n") + "\n" + dump
}
