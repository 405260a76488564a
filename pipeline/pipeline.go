package pipeline

import (
	"fmt"

	"github.com/hupe1980/secboard/core"
)

// Status is the terminal state of a run.
type Status string

const (
	// StatusCompleted means the run reached a Finish edge.
	StatusCompleted Status = "completed"
	// StatusHalted means the run reached a Halt edge.
	StatusHalted Status = "halted"
)

// StepRecord is the trace entry of one executed step.
type StepRecord struct {
	Step    string      `json:"step"`
	Outcome OutcomeKind `json:"outcome"`
}

// Result is the final state of a run.
type Result struct {
	Params Params       `json:"params"`
	Status Status       `json:"status"`
	Steps  []StepRecord `json:"steps"`
	// FailedStep names the step whose Error outcome halted the run.
	FailedStep string `json:"failed_step,omitempty"`
}

// Pipeline is a Definition bound to one run. Steps execute strictly one at a
// time; each step receives the Params produced by its predecessor.
type Pipeline struct {
	def *Definition
	rc  *core.RunContext
}

// Start fires the StartEvent with params.
func (p *Pipeline) Start(params Params) (*Result, error) {
	return p.Fire(StartEvent, params)
}

// Fire delivers an input event and runs until a terminal edge is reached.
//
// A non-nil error means the run was aborted (sink failure, cancellation,
// unknown event); the partial Result is returned alongside it.
func (p *Pipeline) Fire(event string, params Params) (*Result, error) {
	res := &Result{Params: params}

	t, ok := p.def.inputs[event]
	if !ok {
		return res, fmt.Errorf("%w: %s", ErrUnknownEvent, event)
	}

	p.rc.LogInfo("pipeline started", "pipeline", p.def.name, "event", event)

	for t.terminal == notTerminal {
		if err := p.rc.Err(); err != nil {
			return res, err
		}

		step := p.def.steps[t.step]

		out, err := step.Execute(p.rc, res.Params)
		if err != nil {
			res.Steps = append(res.Steps, StepRecord{Step: step.Name, Outcome: OutcomeError})
			res.FailedStep = step.Name
			return res, fmt.Errorf("step %s: %w", step.Name, err)
		}

		res.Params = out.Params
		res.Steps = append(res.Steps, StepRecord{Step: step.Name, Outcome: out.Kind})
		if out.Kind == OutcomeError {
			res.FailedStep = step.Name
		}

		t = p.def.edges[edgeKey{step.Name, out.Kind}]
	}

	if t.terminal == terminalFinish {
		res.Status = StatusCompleted
		res.FailedStep = ""
	} else {
		res.Status = StatusHalted
	}

	p.rc.LogInfo("pipeline finished", "pipeline", p.def.name, "status", res.Status, "steps", len(res.Steps))

	return res, nil
}
