package core

import (
	"context"

	"github.com/hupe1980/secboard/logging"
	"github.com/hupe1980/secboard/stream"
)

// RunContextOptions holds the optional services of a RunContext.
type RunContextOptions struct {
	// ThreadStore receives every message appended during the run. Nil keeps
	// the history on the in-memory Thread only.
	ThreadStore ThreadStore
	// ArtifactStore persists generated files. Nil disables file output.
	ArtifactStore ArtifactStore
	// MaxAgentCalls caps agent invocations per run (0 = unlimited).
	MaxAgentCalls int
	Observer      Observer
	Logger        logging.Logger
}

// RunContext is the per-run scope shared by every step of one chat request:
//   - the ambient cancellation Context
//   - the run identifier and conversation Thread
//   - the event Sink streaming progress back to the caller
//   - backing stores for thread history and file artifacts
//   - an agent call budget and an Observer for metrics
type RunContext struct {
	Context       context.Context
	RunID         string
	Thread        *Thread
	Sink          stream.Sink
	ThreadStore   ThreadStore
	ArtifactStore ArtifactStore
	Limiter       *CallLimiter
	Observer      Observer

	*loggerAdapter
}

// NewRunContext binds a run to its thread and event sink.
func NewRunContext(
	ctx context.Context,
	runID string,
	thread *Thread,
	sink stream.Sink,
	optFns ...func(o *RunContextOptions),
) *RunContext {
	opts := RunContextOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}

	if thread == nil {
		thread = NewThread(NewID())
	}

	if opts.Observer == nil {
		opts.Observer = NoOpObserver{}
	}

	return &RunContext{
		Context:       ctx,
		RunID:         runID,
		Thread:        thread,
		Sink:          sink,
		ThreadStore:   opts.ThreadStore,
		ArtifactStore: opts.ArtifactStore,
		Limiter:       NewCallLimiter(opts.MaxAgentCalls),
		Observer:      opts.Observer,
		loggerAdapter: newLoggerAdapter(opts.Logger),
	}
}

// ThreadID returns the id of the bound thread.
func (rc *RunContext) ThreadID() string { return rc.Thread.ID }

// Done returns a channel closed when the underlying context is cancelled.
func (rc *RunContext) Done() <-chan struct{} { return rc.Context.Done() }

// Err returns the cancellation error (if any) from the underlying context.
func (rc *RunContext) Err() error { return rc.Context.Err() }

// WithContext returns a shallow copy of rc using ctx. Services, thread and
// limiter are shared with the original.
func (rc *RunContext) WithContext(ctx context.Context) *RunContext {
	cp := *rc
	cp.Context = ctx
	return &cp
}

// Post stamps ev with the run's thread id (when unset) and sends it to the sink.
func (rc *RunContext) Post(ev stream.Event) error {
	if ev.ThreadID == "" {
		ev.ThreadID = rc.Thread.ID
	}
	return rc.Sink.Send(rc.Context, ev)
}

// History returns a snapshot of the conversation so far.
func (rc *RunContext) History() []Message { return rc.Thread.GetMessages() }

// AppendMessage adds msg to the thread and persists it when a store is set.
func (rc *RunContext) AppendMessage(msg Message) error {
	rc.Thread.AddMessage(msg)

	if rc.ThreadStore == nil {
		return nil
	}

	return rc.ThreadStore.AppendMessage(rc.Context, rc.Thread.ID, msg)
}

// SaveFile stores data as a file of the run's thread.
func (rc *RunContext) SaveFile(name, contentType string, data []byte) (File, error) {
	if rc.ArtifactStore == nil {
		return File{}, ErrNoArtifactStore
	}

	return rc.ArtifactStore.Save(rc.Context, rc.Thread.ID, name, contentType, data)
}
