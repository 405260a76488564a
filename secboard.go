// Package secboard provides a high-level façade over the onboarding pipeline
// and its runner. Most embedders interact with this package by:
//  1. Creating a Secboard via New() with a model.Model (optionally overriding
//     the default in-memory stores)
//  2. Streaming a run into their own stream.Sink (Run) or collecting all
//     events at once (Onboard)
//
// All defaults are safe for local development and testing; production
// deployments supply durable stores and a structured logger, as cmd/secboard
// does.
package secboard

import (
	"context"
	"sync"

	"github.com/hupe1980/secboard/agent"
	"github.com/hupe1980/secboard/artifact"
	"github.com/hupe1980/secboard/core"
	"github.com/hupe1980/secboard/logging"
	"github.com/hupe1980/secboard/model"
	"github.com/hupe1980/secboard/onboarding"
	"github.com/hupe1980/secboard/pipeline"
	"github.com/hupe1980/secboard/runner"
	"github.com/hupe1980/secboard/stream"
	"github.com/hupe1980/secboard/thread"
)

// Options configures a Secboard instance.
type Options struct {
	// AgentName names the model agent every step calls.
	AgentName string
	// Instruction replaces the agent's base system prompt when set.
	Instruction string
	// Onboarding customizes prompts, per-step agents and file output.
	Onboarding []func(o *onboarding.Options)
	// Agents are registered next to the model agent, e.g. for per-step
	// overrides in Onboarding.
	Agents []core.Agent

	// Stores (default to in-memory implementations if not provided)
	ThreadStore   core.ThreadStore
	ArtifactStore core.ArtifactStore

	// MaxAgentCalls limits agent calls per run (0 = unlimited).
	MaxAgentCalls int
	Observer      core.Observer
	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// Secboard bundles the onboarding pipeline with its runner.
type Secboard struct {
	runner *runner.Runner
}

// New builds the onboarding pipeline on llm. Any unset store is initialized
// with an in-memory implementation.
func New(llm model.Model, optFns ...func(o *Options)) (*Secboard, error) {
	opts := Options{
		AgentName:     onboarding.DefaultAgentName,
		ThreadStore:   thread.NewInMemoryStore(),
		ArtifactStore: artifact.NewInMemoryStore(),
		Logger:        logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	modelAgent := agent.NewModelAgent(opts.AgentName, llm, func(o *agent.ModelAgentOptions) {
		if opts.Instruction != "" {
			o.Instruction = agent.NewInstructionFromText(opts.Instruction)
		}
		o.Logger = opts.Logger
	})

	reg, err := agent.NewRegistry(append([]core.Agent{modelAgent}, opts.Agents...)...)
	if err != nil {
		return nil, err
	}

	def, err := onboarding.Build(reg, append([]func(o *onboarding.Options){func(o *onboarding.Options) {
		o.AgentName = opts.AgentName
	}}, opts.Onboarding...)...)
	if err != nil {
		return nil, err
	}

	r := runner.New(def, func(o *runner.Options) {
		o.ThreadStore = opts.ThreadStore
		o.ArtifactStore = opts.ArtifactStore
		o.MaxAgentCalls = opts.MaxAgentCalls
		o.Observer = opts.Observer
		o.Logger = opts.Logger
	})

	return &Secboard{runner: r}, nil
}

// Runner returns the underlying runner, e.g. to mount it on an HTTP server.
func (s *Secboard) Runner() *runner.Runner { return s.runner }

// Run streams one onboarding run for the cloud service named by content into
// sink. An empty threadID starts a new thread. The sink is closed when Run
// returns.
func (s *Secboard) Run(ctx context.Context, threadID, content string, sink stream.Sink) (*pipeline.Result, error) {
	return s.runner.Run(ctx, runner.Request{ThreadID: threadID, Content: content}, sink)
}

// Onboard is a synchronous helper that runs the pipeline on a new thread and
// returns the result with every event it produced.
func (s *Secboard) Onboard(ctx context.Context, cloudService string) (*pipeline.Result, []stream.Event, error) {
	sink := &collectSink{}
	res, err := s.Run(ctx, "", cloudService, sink)
	return res, sink.snapshot(), err
}

// Files returns the files generated in a thread, or nil without an artifact
// store.
func (s *Secboard) Files(ctx context.Context, threadID string) ([]core.File, error) {
	store := s.runner.ArtifactStore()
	if store == nil {
		return nil, nil
	}
	return store.List(ctx, threadID)
}

type collectSink struct {
	mu     sync.Mutex
	events []stream.Event
}

func (c *collectSink) Send(_ context.Context, ev stream.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return nil
}

func (c *collectSink) Close() error { return nil }

func (c *collectSink) snapshot() []stream.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]stream.Event, len(c.events))
	copy(out, c.events)
	return out
}
