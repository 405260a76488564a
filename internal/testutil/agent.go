package testutil

import (
	"context"
	"strings"
	"sync"

	"github.com/hupe1980/secboard/core"
)

type stubRule struct {
	match string
	text  string
	parts []core.Part
	err   error
}

// StubAgent is a scripted core.Agent. Rules are matched in registration order
// against the task; the first rule whose match is a substring of the task
// decides the answer. Without a matching rule the default text is returned.
type StubAgent struct {
	name string

	mu       sync.Mutex
	rules    []stubRule
	fallback string
	block    bool
	invs     []core.Invocation
}

// NewStubAgent creates a stub answering "OK" to every task.
func NewStubAgent(name string) *StubAgent {
	return &StubAgent{name: name, fallback: "OK"}
}

// Name implements core.Agent.
func (a *StubAgent) Name() string { return a.name }

// Respond answers tasks containing match with text.
func (a *StubAgent) Respond(match, text string) *StubAgent {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rules = append(a.rules, stubRule{match: match, text: text})
	return a
}

// RespondParts answers tasks containing match with the given parts.
func (a *StubAgent) RespondParts(match string, parts ...core.Part) *StubAgent {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rules = append(a.rules, stubRule{match: match, parts: parts})
	return a
}

// Fail makes tasks containing match fail with err.
func (a *StubAgent) Fail(match string, err error) *StubAgent {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rules = append(a.rules, stubRule{match: match, err: err})
	return a
}

// Default replaces the fallback answer.
func (a *StubAgent) Default(text string) *StubAgent {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.fallback = text
	return a
}

// Block makes every call wait for context cancellation.
func (a *StubAgent) Block() *StubAgent {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.block = true
	return a
}

// Invocations returns the calls received so far.
func (a *StubAgent) Invocations() []core.Invocation {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]core.Invocation, len(a.invs))
	copy(out, a.invs)
	return out
}

// Calls counts the calls whose task contains substr.
func (a *StubAgent) Calls(substr string) int {
	n := 0
	for _, inv := range a.Invocations() {
		if strings.Contains(inv.Task, substr) {
			n++
		}
	}
	return n
}

// Invoke implements core.Agent.
func (a *StubAgent) Invoke(ctx context.Context, inv core.Invocation) (<-chan core.Part, <-chan error) {
	a.mu.Lock()
	a.invs = append(a.invs, inv)
	rule := stubRule{text: a.fallback}
	for _, r := range a.rules {
		if strings.Contains(inv.Task, r.match) {
			rule = r
			break
		}
	}
	block := a.block
	a.mu.Unlock()

	parts := make(chan core.Part)
	errs := make(chan error, 1)

	go func() {
		defer close(errs)
		defer close(parts)

		if block {
			<-ctx.Done()
			errs <- ctx.Err()
			return
		}

		if rule.err != nil {
			errs <- rule.err
			return
		}

		out := rule.parts
		if out == nil {
			out = []core.Part{core.TextPart{Text: rule.text}}
		}
		for _, p := range out {
			select {
			case parts <- p:
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}
		}
	}()

	return parts, errs
}
