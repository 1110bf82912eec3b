package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"
)

// DefaultPollInterval is how often the scratch file is read while the
// command runs.
const DefaultPollInterval = 100 * time.Millisecond

var errEmptyCommand = errors.New("empty command")

// LocalShell runs commands as child processes.
//
// Combined stdout and stderr go to a scratch file rather than a pipe, so a
// command producing more output than a pipe buffer holds never blocks on us.
// The file is read back on a fixed interval and once more after exit.
type LocalShell struct {
	Verbose bool

	// Stream is where streamed output is echoed. Defaults to os.Stdout.
	Stream io.Writer

	// PollInterval defaults to DefaultPollInterval.
	PollInterval time.Duration

	// ScratchDir holds scratch files. Empty means os.TempDir().
	ScratchDir string

	Logger *slog.Logger
}

// NewLocalShell creates a LocalShell writing streamed output to stdout.
func NewLocalShell(verbose bool, logger *slog.Logger) *LocalShell {
	if logger == nil {
		logger = slog.Default()
	}
	return &LocalShell{
		Verbose:      verbose,
		Stream:       os.Stdout,
		PollInterval: DefaultPollInterval,
		Logger:       logger,
	}
}

// Run implements Shell.
func (s *LocalShell) Run(ctx context.Context, command []string, opts ...Option) (RunResult, error) {
	return s.run(ctx, command, applyOptions(s.defaults(), opts))
}

// RunAsync implements Shell.
func (s *LocalShell) RunAsync(ctx context.Context, command []string, opts ...Option) <-chan Outcome {
	o := applyOptions(s.defaults(), opts)
	ch := make(chan Outcome, 1)
	go func() {
		defer close(ch)
		res, err := s.run(ctx, command, o)
		ch <- Outcome{Result: res, Err: err}
	}()
	return ch
}

func (s *LocalShell) defaults() Options {
	w := s.Stream
	if w == nil {
		w = os.Stdout
	}
	return Options{StreamWriter: w}
}

func (s *LocalShell) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

func (s *LocalShell) run(ctx context.Context, command []string, o Options) (RunResult, error) {
	if len(command) == 0 {
		return RunResult{}, &LaunchError{Command: command, Err: errEmptyCommand}
	}

	scratch, err := os.CreateTemp(s.ScratchDir, "forge-shell-*.out")
	if err != nil {
		return RunResult{}, fmt.Errorf("create scratch file: %w", err)
	}
	defer os.Remove(scratch.Name())
	defer scratch.Close()

	reader, err := os.Open(scratch.Name())
	if err != nil {
		return RunResult{}, fmt.Errorf("open scratch file: %w", err)
	}
	defer reader.Close()

	if s.Verbose {
		fmt.Fprintf(o.StreamWriter, "+ %s\n", strings.Join(command, " "))
	}

	cmd := exec.CommandContext(ctx, command[0], command[1:]...)
	cmd.Stdout = scratch
	cmd.Stderr = scratch
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	// Cancellation takes down the whole group, not just the leader.
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return RunResult{}, &LaunchError{Command: command, Err: err}
	}

	s.logger().Debug("command_started",
		"command", command[0],
		"args", len(command)-1,
		"pid", cmd.Process.Pid,
	)

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	interval := s.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var (
		output  bytes.Buffer
		waitErr error
	)
	sink := io.Writer(&output)
	if o.Stream && o.StreamWriter != nil {
		sink = io.MultiWriter(&output, o.StreamWriter)
	}

loop:
	for {
		select {
		case waitErr = <-done:
			break loop
		case <-ticker.C:
			if _, err := io.Copy(sink, reader); err != nil {
				s.logger().Warn("scratch_read_failed", "error", err)
			}
		}
	}

	// Final drain picks up whatever was written between the last tick and exit.
	if _, err := io.Copy(sink, reader); err != nil {
		return RunResult{}, fmt.Errorf("drain scratch file: %w", err)
	}

	exitCode := extractExitCode(waitErr)
	s.logger().Debug("command_exited",
		"command", command[0],
		"exit_code", exitCode,
		"duration", time.Since(start).String(),
		"bytes", output.Len(),
	)

	return RunResult{ExitCode: exitCode, Output: output.Bytes()}, nil
}

// extractExitCode extracts the exit code from a Wait() error.
func extractExitCode(err error) int {
	if err == nil {
		return 0
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			if status.Signaled() {
				// Signal exit: 128 + signal number
				return 128 + int(status.Signal())
			}
			return status.ExitStatus()
		}
		return exitErr.ExitCode()
	}

	return 1
}
