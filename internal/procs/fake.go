package procs

import (
	"context"
	"sync"
)

// FakeProcess is a process that only records whether it was killed.
type FakeProcess struct {
	ProcName string
	ProcPid  int
	Parent   int

	mu     sync.Mutex
	killed int
}

func (f *FakeProcess) Name() string { return f.ProcName }
func (f *FakeProcess) Pid() int     { return f.ProcPid }
func (f *FakeProcess) Ppid() int    { return f.Parent }

func (f *FakeProcess) Kill() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.killed++
	return nil
}

// Killed reports whether Kill was called at least once.
func (f *FakeProcess) Killed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.killed > 0
}

// FakeProcesses is a scripted process table.
type FakeProcesses struct {
	Table   []*FakeProcess
	SelfPid int
	Cleanup *CleanupStack

	mu      sync.Mutex
	spawned []*FakeProcess
	command [][]string
}

// NewFakeProcesses returns a table holding one unrelated process, with our
// own pid set to 2.
func NewFakeProcesses() *FakeProcesses {
	return &FakeProcesses{
		Table:   []*FakeProcess{{ProcName: "concensus", ProcPid: 1, Parent: 0}},
		SelfPid: 2,
		Cleanup: &CleanupStack{},
	}
}

func (f *FakeProcesses) Processes(ctx context.Context) ([]Process, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Process, 0, len(f.Table)+len(f.spawned))
	for _, p := range f.Table {
		out = append(out, p)
	}
	for _, p := range f.spawned {
		out = append(out, p)
	}
	return out, nil
}

func (f *FakeProcesses) Pid() int { return f.SelfPid }

func (f *FakeProcesses) Spawn(ctx context.Context, command []string) (Process, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := &FakeProcess{ProcName: "child", ProcPid: 1000 + len(f.spawned), Parent: f.SelfPid}
	f.spawned = append(f.spawned, p)
	f.command = append(f.command, append([]string(nil), command...))
	return p, nil
}

func (f *FakeProcesses) AtExit(fn func()) {
	f.Cleanup.Defer(fn)
}

// Spawned returns the processes started through Spawn.
func (f *FakeProcesses) Spawned() []*FakeProcess {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*FakeProcess(nil), f.spawned...)
}

// SpawnedCommands returns the commands passed to Spawn.
func (f *FakeProcesses) SpawnedCommands() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]string(nil), f.command...)
}
