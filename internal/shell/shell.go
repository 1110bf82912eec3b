// Package shell runs external commands and captures their combined output.
//
// Two variants implement Shell: LocalShell launches real processes, FakeShell
// returns canned results for tests and dry runs.
package shell

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// Shell executes a command and reports its exit code and combined output.
type Shell interface {
	// Run blocks until the command exits.
	Run(ctx context.Context, command []string, opts ...Option) (RunResult, error)

	// RunAsync starts the command and delivers exactly one Outcome on the
	// returned channel once it exits. The channel is closed afterwards.
	RunAsync(ctx context.Context, command []string, opts ...Option) <-chan Outcome
}

// RunResult is the exit code and combined stdout+stderr of a finished command.
type RunResult struct {
	ExitCode int
	Output   []byte
}

// Succeeded reports whether the command exited with status 0.
func (r RunResult) Succeeded() bool {
	return r.ExitCode == 0
}

// Unwrap returns the output when the command succeeded, or a *CommandError
// carrying the output otherwise.
func (r RunResult) Unwrap() ([]byte, error) {
	if !r.Succeeded() {
		return nil, &CommandError{ExitCode: r.ExitCode, Output: r.Output}
	}
	return r.Output, nil
}

// Outcome is what RunAsync delivers.
type Outcome struct {
	Result RunResult
	Err    error
}

// Await waits for an async outcome or for ctx to be done.
func Await(ctx context.Context, ch <-chan Outcome) (RunResult, error) {
	select {
	case out, ok := <-ch:
		if !ok {
			return RunResult{}, fmt.Errorf("shell: outcome channel closed without a result")
		}
		return out.Result, out.Err
	case <-ctx.Done():
		return RunResult{}, ctx.Err()
	}
}

// Options control a single invocation.
type Options struct {
	// Stream echoes output to StreamWriter as it is produced.
	Stream       bool
	StreamWriter io.Writer
}

// Option configures Options.
type Option func(*Options)

// WithStream enables or disables live echo of the command output.
func WithStream(stream bool) Option {
	return func(o *Options) {
		o.Stream = stream
	}
}

// WithStreamWriter sets where streamed output goes. It implies nothing about
// whether streaming is enabled.
func WithStreamWriter(w io.Writer) Option {
	return func(o *Options) {
		o.StreamWriter = w
	}
}

func applyOptions(defaults Options, opts []Option) Options {
	o := defaults
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// CommandError is returned by RunResult.Unwrap for a non-zero exit.
type CommandError struct {
	ExitCode int
	Output   []byte
}

func (e *CommandError) Error() string {
	out := strings.TrimSpace(string(e.Output))
	if out == "" {
		return fmt.Sprintf("exit status %d", e.ExitCode)
	}
	return fmt.Sprintf("exit status %d: %s", e.ExitCode, out)
}

// LaunchError means the executable could not be started at all.
type LaunchError struct {
	Command []string
	Err     error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("failed to launch %q: %v", strings.Join(e.Command, " "), e.Err)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}
