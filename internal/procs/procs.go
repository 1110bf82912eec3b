// Package procs lists, spawns and kills OS processes for the local runner,
// and owns the exit-time cleanup stack.
package procs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// DefaultStopTimeout is how long Kill waits after SIGTERM before SIGKILL.
const DefaultStopTimeout = 5 * time.Second

// Process is a running OS process.
type Process interface {
	Name() string
	Pid() int
	// Ppid returns the parent pid, or -1 if it cannot be read.
	Ppid() int
	Kill() error
}

// Processes is the process manager collaborator.
type Processes interface {
	// Processes lists every process visible to us.
	Processes(ctx context.Context) ([]Process, error)

	// Pid is our own pid.
	Pid() int

	// Spawn starts command in the background in its own process group.
	Spawn(ctx context.Context, command []string) (Process, error)

	// AtExit schedules fn for process exit.
	AtExit(fn func())
}

// SystemProcesses is backed by the OS.
type SystemProcesses struct {
	Cleanup     *CleanupStack
	StopTimeout time.Duration
	Logger      *slog.Logger
}

// NewSystemProcesses creates a SystemProcesses registering exit actions on cleanup.
func NewSystemProcesses(cleanup *CleanupStack, logger *slog.Logger) *SystemProcesses {
	if logger == nil {
		logger = slog.Default()
	}
	return &SystemProcesses{
		Cleanup:     cleanup,
		StopTimeout: DefaultStopTimeout,
		Logger:      logger,
	}
}

func (s *SystemProcesses) Processes(ctx context.Context) ([]Process, error) {
	ps, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}
	out := make([]Process, 0, len(ps))
	for _, p := range ps {
		out = append(out, &osProcess{p: p, ctx: ctx})
	}
	return out, nil
}

func (s *SystemProcesses) Pid() int {
	return os.Getpid()
}

func (s *SystemProcesses) Spawn(ctx context.Context, command []string) (Process, error) {
	if len(command) == 0 {
		return nil, errors.New("spawn: empty command")
	}

	cmd := exec.Command(command[0], command[1:]...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("spawn %s: %w", command[0], err)
	}

	sp := &spawned{
		cmd:     cmd,
		name:    filepath.Base(command[0]),
		timeout: s.StopTimeout,
		done:    make(chan struct{}),
		logger:  s.Logger,
	}
	go func() {
		sp.waitErr = cmd.Wait()
		close(sp.done)
	}()

	s.Logger.Debug("process_spawned",
		"command", strings.Join(command, " "),
		"pid", cmd.Process.Pid,
	)

	// The helper must never outlive us, whichever way we exit.
	s.AtExit(func() { sp.Kill() })
	return sp, nil
}

func (s *SystemProcesses) AtExit(fn func()) {
	if s.Cleanup == nil {
		s.Logger.Warn("exit_action_dropped", "reason", "no cleanup stack")
		return
	}
	s.Cleanup.Defer(fn)
}

type osProcess struct {
	p   *process.Process
	ctx context.Context
}

func (o *osProcess) Name() string {
	name, err := o.p.NameWithContext(o.ctx)
	if err != nil {
		return ""
	}
	return name
}

func (o *osProcess) Pid() int {
	return int(o.p.Pid)
}

func (o *osProcess) Ppid() int {
	ppid, err := o.p.PpidWithContext(o.ctx)
	if err != nil {
		return -1
	}
	return int(ppid)
}

func (o *osProcess) Kill() error {
	return o.p.KillWithContext(o.ctx)
}

func (o *osProcess) String() string {
	return fmt.Sprintf("%s(%d)", o.Name(), o.Pid())
}

// spawned is a child we started; Kill stops its whole process group.
type spawned struct {
	cmd     *exec.Cmd
	name    string
	timeout time.Duration
	logger  *slog.Logger

	done    chan struct{}
	waitErr error

	killOnce sync.Once
	killErr  error
}

func (s *spawned) Name() string { return s.name }
func (s *spawned) Pid() int     { return s.cmd.Process.Pid }
func (s *spawned) Ppid() int    { return os.Getpid() }

// Kill sends SIGTERM to the process group, then SIGKILL after the timeout.
// Repeated calls return the first result.
func (s *spawned) Kill() error {
	s.killOnce.Do(func() {
		s.killErr = s.stop()
	})
	return s.killErr
}

func (s *spawned) stop() error {
	select {
	case <-s.done:
		return nil
	default:
	}

	pid := s.cmd.Process.Pid
	if pgid, err := syscall.Getpgid(pid); err == nil {
		syscall.Kill(-pgid, syscall.SIGTERM)
	} else {
		s.cmd.Process.Signal(syscall.SIGTERM)
	}

	select {
	case <-s.done:
		return nil
	case <-time.After(s.timeout):
		s.logger.Warn("force_killing_process", "name", s.name, "pid", pid)
		if pgid, err := syscall.Getpgid(pid); err == nil {
			syscall.Kill(-pgid, syscall.SIGKILL)
		} else {
			s.cmd.Process.Kill()
		}
		<-s.done
		return errors.New("process did not exit gracefully")
	}
}

func (s *spawned) String() string {
	return fmt.Sprintf("%s(%d)", s.name, s.Pid())
}
