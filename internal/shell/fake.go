package shell

import (
	"context"
	"slices"
	"sync"
)

// DefaultFakeOutput is what FakeShell returns for commands no rule matches.
const DefaultFakeOutput = "output"

// Matcher selects the commands a FakeShell rule applies to.
type Matcher func(command []string) bool

// Prefix matches commands starting with the given tokens.
func Prefix(tokens ...string) Matcher {
	return func(command []string) bool {
		return len(command) >= len(tokens) && slices.Equal(command[:len(tokens)], tokens)
	}
}

// Contains matches commands that include every given token, in any position.
func Contains(tokens ...string) Matcher {
	return func(command []string) bool {
		for _, t := range tokens {
			if !slices.Contains(command, t) {
				return false
			}
		}
		return true
	}
}

// Call is one recorded FakeShell invocation.
type Call struct {
	Command []string
	Async   bool
	Stream  bool
}

type fakeRule struct {
	match   Matcher
	results []RunResult
	err     error
	fn      func(command []string) (RunResult, error)
	calls   int
}

func (r *fakeRule) next(command []string) (RunResult, error) {
	defer func() { r.calls++ }()
	switch {
	case r.fn != nil:
		return r.fn(command)
	case r.err != nil:
		return RunResult{}, r.err
	}
	i := min(r.calls, len(r.results)-1)
	return r.results[i], nil
}

// FakeShell returns canned results and records every call. Run and RunAsync
// give the same result for the same command. Safe for concurrent use.
type FakeShell struct {
	mu    sync.Mutex
	rules []*fakeRule
	calls []Call
}

// NewFakeShell creates a FakeShell with no rules.
func NewFakeShell() *FakeShell {
	return &FakeShell{}
}

// Respond makes commands matching m return results in order. The last result
// repeats once the sequence is used up.
func (f *FakeShell) Respond(m Matcher, results ...RunResult) *FakeShell {
	if len(results) == 0 {
		results = []RunResult{{Output: []byte(DefaultFakeOutput)}}
	}
	return f.add(&fakeRule{match: m, results: results})
}

// RespondError makes commands matching m fail to launch with err.
func (f *FakeShell) RespondError(m Matcher, err error) *FakeShell {
	return f.add(&fakeRule{match: m, err: err})
}

// RespondFunc computes the result for commands matching m. fn runs with the
// FakeShell locked and must not call back into it.
func (f *FakeShell) RespondFunc(m Matcher, fn func(command []string) (RunResult, error)) *FakeShell {
	return f.add(&fakeRule{match: m, fn: fn})
}

func (f *FakeShell) add(r *fakeRule) *FakeShell {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = append(f.rules, r)
	return f
}

// Calls returns a copy of the recorded calls.
func (f *FakeShell) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

// CallsMatching returns the recorded calls selected by m.
func (f *FakeShell) CallsMatching(m Matcher) []Call {
	var out []Call
	for _, c := range f.Calls() {
		if m(c.Command) {
			out = append(out, c)
		}
	}
	return out
}

// Run implements Shell.
func (f *FakeShell) Run(ctx context.Context, command []string, opts ...Option) (RunResult, error) {
	return f.invoke(command, false, applyOptions(Options{}, opts))
}

// RunAsync implements Shell.
func (f *FakeShell) RunAsync(ctx context.Context, command []string, opts ...Option) <-chan Outcome {
	ch := make(chan Outcome, 1)
	res, err := f.invoke(command, true, applyOptions(Options{}, opts))
	ch <- Outcome{Result: res, Err: err}
	close(ch)
	return ch
}

func (f *FakeShell) invoke(command []string, async bool, o Options) (RunResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, Call{Command: slices.Clone(command), Async: async, Stream: o.Stream})
	var rule *fakeRule
	for _, r := range f.rules {
		if r.match(command) {
			rule = r
			break
		}
	}
	var (
		res RunResult
		err error
	)
	if rule != nil {
		res, err = rule.next(command)
	} else {
		res = RunResult{Output: []byte(DefaultFakeOutput)}
	}
	f.mu.Unlock()

	if err == nil && o.Stream && o.StreamWriter != nil {
		o.StreamWriter.Write(res.Output)
	}
	return res, err
}
