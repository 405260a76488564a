package pipeline

import (
	"errors"
	"fmt"
	"io"

	"github.com/hupe1980/secboard/core"
	"github.com/hupe1980/secboard/internal/util"
)

// StartEvent is the input event that starts a run.
const StartEvent = "Start"

var (
	// ErrInvalidPipeline wraps every validation failure reported by Build.
	ErrInvalidPipeline = errors.New("invalid pipeline")

	ErrNoSteps         = errors.New("pipeline has no steps")
	ErrNoEntry         = errors.New("no input event registered")
	ErrDuplicateStep   = errors.New("duplicate step")
	ErrDuplicateEdge   = errors.New("edge registered twice")
	ErrMissingEdge     = errors.New("missing edge")
	ErrUnknownTarget   = errors.New("edge targets unknown step")
	ErrCycle           = errors.New("pipeline contains a cycle")
	ErrUnreachableStep = errors.New("step unreachable from any input event")
	ErrInvalidStep     = errors.New("invalid step")

	// ErrUnknownEvent is returned when firing an event the Definition does not route.
	ErrUnknownEvent = errors.New("unknown input event")
)

type terminal int

const (
	notTerminal terminal = iota
	terminalFinish
	terminalHalt
)

// target is where an edge leads: a step or a terminal.
type target struct {
	step     string
	terminal terminal
}

type edgeKey struct {
	step    string
	outcome OutcomeKind
}

// Builder declares steps and their transition table. It is not safe for
// concurrent use; Build it once at startup.
type Builder struct {
	name   string
	steps  []*Step
	index  map[string]int
	inputs map[string]target
	edges  map[edgeKey]target
	errs   []error
}

// NewBuilder creates an empty builder for a pipeline called name.
func NewBuilder(name string) *Builder {
	return &Builder{
		name:   name,
		index:  map[string]int{},
		inputs: map[string]target{},
		edges:  map[edgeKey]target{},
	}
}

// StepHandle refers to a step registered with a Builder.
type StepHandle struct {
	b    *Builder
	name string
}

// Name returns the step name.
func (h *StepHandle) Name() string { return h.name }

// OnComplete declares the successor of the step's Complete outcome.
func (h *StepHandle) OnComplete() *EdgeBuilder {
	return h.b.edge(fmt.Sprintf("%s.%s", h.name, OutcomeComplete), func(t target) error {
		return h.b.setEdge(edgeKey{h.name, OutcomeComplete}, t)
	})
}

// OnError declares the successor of the step's Error outcome.
func (h *StepHandle) OnError() *EdgeBuilder {
	return h.b.edge(fmt.Sprintf("%s.%s", h.name, OutcomeError), func(t target) error {
		return h.b.setEdge(edgeKey{h.name, OutcomeError}, t)
	})
}

// EdgeBuilder completes one transition declaration.
type EdgeBuilder struct {
	b     *Builder
	label string
	set   func(target) error
}

// SendTo routes the edge to step h.
func (e *EdgeBuilder) SendTo(h *StepHandle) {
	if h == nil {
		e.b.errs = append(e.b.errs, fmt.Errorf("%w: %s -> <nil>", ErrUnknownTarget, e.label))
		return
	}
	e.record(e.set(target{step: h.name}))
}

// Finish ends the run successfully when the edge is taken.
func (e *EdgeBuilder) Finish() { e.record(e.set(target{terminal: terminalFinish})) }

// Halt ends the run as failed when the edge is taken.
func (e *EdgeBuilder) Halt() { e.record(e.set(target{terminal: terminalHalt})) }

func (e *EdgeBuilder) record(err error) {
	if err != nil {
		e.b.errs = append(e.b.errs, err)
	}
}

func (b *Builder) edge(label string, set func(target) error) *EdgeBuilder {
	return &EdgeBuilder{b: b, label: label, set: set}
}

func (b *Builder) setEdge(k edgeKey, t target) error {
	if _, exists := b.edges[k]; exists {
		return fmt.Errorf("%w: %s.%s", ErrDuplicateEdge, k.step, k.outcome)
	}
	b.edges[k] = t
	return nil
}

// AddStep registers s. Duplicate names are reported by Build.
func (b *Builder) AddStep(s *Step) *StepHandle {
	if s == nil {
		b.errs = append(b.errs, fmt.Errorf("%w: nil step", ErrInvalidStep))
		return nil
	}
	if _, exists := b.index[s.Name]; exists {
		b.errs = append(b.errs, fmt.Errorf("%w: %s", ErrDuplicateStep, s.Name))
		return &StepHandle{b: b, name: s.Name}
	}
	b.index[s.Name] = len(b.steps)
	b.steps = append(b.steps, s)
	return &StepHandle{b: b, name: s.Name}
}

// OnInputEvent declares where an external event enters the pipeline.
func (b *Builder) OnInputEvent(event string) *EdgeBuilder {
	return b.edge("input "+event, func(t target) error {
		if _, exists := b.inputs[event]; exists {
			return fmt.Errorf("%w: input %s", ErrDuplicateEdge, event)
		}
		b.inputs[event] = t
		return nil
	})
}

// Build validates the declaration and returns an immutable Definition.
//
// The transition table must be total (both outcomes of every step routed),
// acyclic and free of dangling targets; every step must be reachable from an
// input event.
func (b *Builder) Build() (*Definition, error) {
	errs := append([]error(nil), b.errs...)

	if len(b.steps) == 0 {
		errs = append(errs, ErrNoSteps)
	}
	if len(b.inputs) == 0 {
		errs = append(errs, ErrNoEntry)
	}

	for _, s := range b.steps {
		errs = append(errs, validateStep(s)...)
		for _, o := range []OutcomeKind{OutcomeComplete, OutcomeError} {
			if _, ok := b.edges[edgeKey{s.Name, o}]; !ok {
				errs = append(errs, fmt.Errorf("%w: %s.%s", ErrMissingEdge, s.Name, o))
			}
		}
	}

	for event, t := range b.inputs {
		if t.terminal == notTerminal && !b.hasStep(t.step) {
			errs = append(errs, fmt.Errorf("%w: input %s -> %s", ErrUnknownTarget, event, t.step))
		}
	}
	for k, t := range b.edges {
		if !b.hasStep(k.step) {
			errs = append(errs, fmt.Errorf("%w: edge from %s", ErrUnknownTarget, k.step))
		}
		if t.terminal == notTerminal && !b.hasStep(t.step) {
			errs = append(errs, fmt.Errorf("%w: %s.%s -> %s", ErrUnknownTarget, k.step, k.outcome, t.step))
		}
	}

	if len(errs) == 0 {
		if cyc := b.findCycle(); cyc != "" {
			errs = append(errs, fmt.Errorf("%w: through %s", ErrCycle, cyc))
		}
		for _, name := range b.unreachable() {
			errs = append(errs, fmt.Errorf("%w: %s", ErrUnreachableStep, name))
		}
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("%w %q: %w", ErrInvalidPipeline, b.name, errors.Join(errs...))
	}

	def := &Definition{
		name:   b.name,
		steps:  make(map[string]*Step, len(b.steps)),
		order:  make([]string, 0, len(b.steps)),
		inputs: make(map[string]target, len(b.inputs)),
		edges:  make(map[edgeKey]target, len(b.edges)),
	}
	for _, s := range b.steps {
		cp := *s
		def.steps[s.Name] = &cp
		def.order = append(def.order, s.Name)
	}
	for k, v := range b.inputs {
		def.inputs[k] = v
	}
	for k, v := range b.edges {
		def.edges[k] = v
	}

	return def, nil
}

func (b *Builder) hasStep(name string) bool {
	_, ok := b.index[name]
	return ok
}

func validateStep(s *Step) []error {
	var errs []error
	invalid := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: %s: %s", ErrInvalidStep, s.Name, fmt.Sprintf(format, args...)))
	}

	if s.Name == "" {
		invalid("empty name")
	}
	if s.Agent == nil {
		invalid("no agent")
	}
	if !s.Output.Valid() {
		invalid("unknown output field %q", s.Output)
	}
	if s.Output == FieldCloudServiceName {
		invalid("cloud_service_name is read-only")
	}
	for _, f := range s.Inputs {
		if !f.Valid() {
			invalid("unknown input field %q", f)
		}
	}
	if s.Task == "" {
		invalid("empty task")
	} else if tmpl, err := util.ParseTemplate(s.Name, s.Task); err != nil {
		invalid("task template: %v", err)
	} else if err := tmpl.Execute(io.Discard, Params{}.Values(s.Inputs...)); err != nil {
		// missingkey=error flags fields outside the declared inputs
		invalid("task template: %v", err)
	}
	if s.File != nil && s.File.Name == "" {
		invalid("file output without name")
	}

	return errs
}

// findCycle returns the name of a step on a cycle, or "".
func (b *Builder) findCycle() string {
	const (
		white = iota
		grey
		black
	)
	color := make(map[string]int, len(b.steps))

	var visit func(name string) string
	visit = func(name string) string {
		color[name] = grey
		for _, o := range []OutcomeKind{OutcomeComplete, OutcomeError} {
			t := b.edges[edgeKey{name, o}]
			if t.terminal != notTerminal {
				continue
			}
			switch color[t.step] {
			case grey:
				return t.step
			case white:
				if c := visit(t.step); c != "" {
					return c
				}
			}
		}
		color[name] = black
		return ""
	}

	for _, s := range b.steps {
		if color[s.Name] == white {
			if c := visit(s.Name); c != "" {
				return c
			}
		}
	}
	return ""
}

// unreachable lists steps no input event can lead to, in declaration order.
func (b *Builder) unreachable() []string {
	seen := map[string]bool{}
	var queue []string
	for _, t := range b.inputs {
		if t.terminal == notTerminal && !seen[t.step] {
			seen[t.step] = true
			queue = append(queue, t.step)
		}
	}
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		for _, o := range []OutcomeKind{OutcomeComplete, OutcomeError} {
			t := b.edges[edgeKey{name, o}]
			if t.terminal == notTerminal && !seen[t.step] {
				seen[t.step] = true
				queue = append(queue, t.step)
			}
		}
	}

	var out []string
	for _, s := range b.steps {
		if !seen[s.Name] {
			out = append(out, s.Name)
		}
	}
	return out
}

// Definition is a validated, immutable pipeline. It is safe to Bind
// concurrently from many requests.
type Definition struct {
	name   string
	steps  map[string]*Step
	order  []string
	inputs map[string]target
	edges  map[edgeKey]target
}

// Name returns the pipeline name.
func (d *Definition) Name() string { return d.name }

// Steps returns the step names in declaration order.
func (d *Definition) Steps() []string {
	out := make([]string, len(d.order))
	copy(out, d.order)
	return out
}

// Step returns the step called name.
func (d *Definition) Step(name string) (*Step, bool) {
	s, ok := d.steps[name]
	return s, ok
}

// Bind creates a fresh Pipeline for one run.
func (d *Definition) Bind(rc *core.RunContext) *Pipeline {
	return &Pipeline{def: d, rc: rc}
}
