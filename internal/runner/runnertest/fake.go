// Package runnertest provides a scripted runner.Runner for tests.
package runnertest

import (
	"context"
	"slices"
	"strings"
	"sync"
)

// Result is the scripted outcome of one command.
type Result struct {
	ExitCode int
	Err      error
}

// Fake records every argv it is asked to run and answers from Results, keyed
// by the space-joined argv. Unscripted commands exit 0.
type Fake struct {
	mu      sync.Mutex
	Calls   [][]string
	Results map[string]Result
	// OnRun, when set, is called before the scripted result is returned.
	OnRun func(argv []string)
}

func New() *Fake {
	return &Fake{Results: map[string]Result{}}
}

// Script sets the result for argv.
func (f *Fake) Script(argv []string, res Result) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Results[strings.Join(argv, " ")] = res
}

func (f *Fake) Run(_ context.Context, argv []string) (int, error) {
	f.mu.Lock()
	f.Calls = append(f.Calls, slices.Clone(argv))
	res, ok := f.Results[strings.Join(argv, " ")]
	hook := f.OnRun
	f.mu.Unlock()
	if hook != nil {
		hook(argv)
	}
	if !ok {
		return 0, nil
	}
	return res.ExitCode, res.Err
}

// Commands returns the recorded calls joined by spaces.
func (f *Fake) Commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.Calls))
	for _, c := range f.Calls {
		out = append(out, strings.Join(c, " "))
	}
	return out
}
