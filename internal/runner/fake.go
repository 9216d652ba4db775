package runner

import (
	"context"
	"errors"
	"sync"
)

// Fake is a Runner for tests. It records every spec it receives and answers
// from a script of canned results, in order. An exhausted script answers
// success with empty output.
type Fake struct {
	mu     sync.Mutex
	calls  []Spec
	script []FakeStep
	next   int

	// Started counts Start invocations (detached deploys).
	Started int
}

// FakeStep is one scripted response.
type FakeStep struct {
	Result *Result
	Err    error
}

// Script appends canned responses consumed by subsequent calls.
func (f *Fake) Script(steps ...FakeStep) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.script = append(f.script, steps...)
}

// Calls returns a copy of every spec seen so far.
func (f *Fake) Calls() []Spec {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Spec, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *Fake) take(spec Spec) (*Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, spec)
	if f.next < len(f.script) {
		step := f.script[f.next]
		f.next++
		if step.Result == nil && step.Err == nil {
			return &Result{}, nil
		}
		if step.Result == nil {
			return &Result{ExitCode: 1}, step.Err
		}
		return step.Result, step.Err
	}
	return &Result{}, nil
}

// Run records the spec and replies with the next scripted step.
func (f *Fake) Run(_ context.Context, spec Spec) (*Result, error) {
	return f.take(spec)
}

// Start records the spec and returns a handle whose Wait replies with the
// next scripted step.
func (f *Fake) Start(_ context.Context, spec Spec) (Handle, error) {
	if len(spec.Argv) == 0 {
		return nil, errors.New("empty command")
	}
	f.mu.Lock()
	f.Started++
	f.mu.Unlock()
	result, err := f.take(spec)
	return fakeHandle{result: result, err: err}, nil
}

type fakeHandle struct {
	result *Result
	err    error
}

func (h fakeHandle) Wait() (*Result, error) {
	return h.result, h.err
}
