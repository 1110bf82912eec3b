package procs

import "sync"

// CleanupStack holds actions to run once at process exit, most recent first.
// It replaces interpreter exit hooks with an explicit owner: main flushes it
// on every return path.
type CleanupStack struct {
	mu  sync.Mutex
	fns []func()
}

// Defer schedules fn. Safe for concurrent use.
func (c *CleanupStack) Defer(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fns = append(c.fns, fn)
}

// Len returns the number of pending actions.
func (c *CleanupStack) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.fns)
}

// Flush runs pending actions in LIFO order. Each action runs at most once;
// a panicking action does not stop the rest.
func (c *CleanupStack) Flush() {
	c.mu.Lock()
	fns := c.fns
	c.fns = nil
	c.mu.Unlock()

	for i := len(fns) - 1; i >= 0; i-- {
		runGuarded(fns[i])
	}
}

func runGuarded(fn func()) {
	defer func() {
		_ = recover()
	}()
	fn()
}
