package runner

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/secboard/core"
	"github.com/hupe1980/secboard/logging"
	"github.com/hupe1980/secboard/pipeline"
	"github.com/hupe1980/secboard/stream"
	"github.com/hupe1980/secboard/thread"
)

// ErrorTitle heads the generic error block posted for failures outside steps.
const ErrorTitle = "Error processing chat"

// StatusFailed is the run status reported for runs that ended in an error.
const StatusFailed = "failed"

// ErrRunNotFound is returned by Cancel for unknown run ids.
var ErrRunNotFound = errors.New("run not found")

var tracer = otel.Tracer("github.com/hupe1980/secboard/runner")

// Request is one chat turn.
type Request struct {
	// ThreadID selects the conversation. Empty creates a new thread.
	ThreadID string `json:"thread_id"`
	// Content is the cloud service name to onboard.
	Content string `json:"content"`
	// RunID identifies the run for Cancel. Empty generates one.
	RunID string `json:"-"`
}

// Options holds dependency and configuration overrides passed to New.
type Options struct {
	// ThreadStore persists conversation threads.
	ThreadStore core.ThreadStore
	// ArtifactStore persists generated files. Nil disables file output.
	ArtifactStore core.ArtifactStore
	// MaxAgentCalls limits agent calls per run (0 = unlimited).
	MaxAgentCalls int
	// Observer receives run, step and agent call metrics.
	Observer core.Observer
	// Logger receives run logs.
	Logger logging.Logger
}

// Runner executes a pipeline Definition per request. Public methods are safe
// for concurrent use.
type Runner struct {
	def *pipeline.Definition

	threadStore   core.ThreadStore
	artifactStore core.ArtifactStore
	maxAgentCalls int
	observer      core.Observer
	logger        logging.Logger

	activeRuns map[string]context.CancelFunc
	mu         sync.Mutex
}

// New constructs a Runner with optional overrides. Threads default to an
// in-memory store.
func New(def *pipeline.Definition, optFns ...func(o *Options)) *Runner {
	opts := Options{
		ThreadStore: thread.NewInMemoryStore(),
		Observer:    core.NoOpObserver{},
		Logger:      logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.ThreadStore == nil {
		opts.ThreadStore = thread.NewInMemoryStore()
	}
	if opts.Observer == nil {
		opts.Observer = core.NoOpObserver{}
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	return &Runner{
		def:           def,
		threadStore:   opts.ThreadStore,
		artifactStore: opts.ArtifactStore,
		maxAgentCalls: opts.MaxAgentCalls,
		observer:      opts.Observer,
		logger:        opts.Logger,
		activeRuns:    make(map[string]context.CancelFunc),
	}
}

// ThreadStore returns the store threads are kept in.
func (r *Runner) ThreadStore() core.ThreadStore { return r.threadStore }

// ArtifactStore returns the file store, or nil when file output is disabled.
func (r *Runner) ArtifactStore() core.ArtifactStore { return r.artifactStore }

// Definition returns the pipeline the runner executes.
func (r *Runner) Definition() *pipeline.Definition { return r.def }

// Run executes the pipeline for req and streams progress to sink. It blocks
// until the run is over and always closes sink before returning.
//
// The returned Result is advisory: everything the caller needs has already
// been streamed. A non-nil error means the run failed outside step
// boundaries; a halted pipeline is not an error.
func (r *Runner) Run(ctx context.Context, req Request, sink stream.Sink) (res *pipeline.Result, err error) {
	runID := req.RunID
	if runID == "" {
		runID = core.NewID()
	}
	start := time.Now()

	ctx, cancel := context.WithCancel(ctx)
	r.register(runID, cancel)

	ctx, span := tracer.Start(ctx, "run "+r.def.Name(), trace.WithAttributes(
		attribute.String("secboard.run_id", runID),
		attribute.String("secboard.pipeline", r.def.Name()),
	))

	threadID := req.ThreadID

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}

		status := StatusFailed
		if err == nil && res != nil {
			status = string(res.Status)
		}

		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			r.logger.Error("run failed", "run_id", runID, "thread_id", threadID, "error", err)
			r.postError(ctx, sink, threadID, err)
		}

		if cerr := sink.Close(); cerr != nil {
			r.logger.Warn("closing sink", "run_id", runID, "error", cerr)
		}

		dur := time.Since(start)
		r.observer.ObserveRun(status, dur)
		if sl, ok := r.logger.(*logging.StructuredLogger); ok {
			steps := 0
			if res != nil {
				steps = len(res.Steps)
			}
			sl.LogPipelineRun(r.def.Name(), steps, dur, status, err)
		}

		span.SetAttributes(attribute.String("secboard.status", status))
		span.End()

		r.unregister(runID)
		cancel()
	}()

	th, err := r.loadThread(ctx, req.ThreadID)
	if err != nil {
		return nil, err
	}
	threadID = th.ID
	span.SetAttributes(attribute.String("secboard.thread_id", threadID))

	logger := r.logger
	if sl, ok := logger.(*logging.StructuredLogger); ok {
		logger = sl.WithRun(threadID, runID)
	}

	rc := core.NewRunContext(ctx, runID, th, sink, func(o *core.RunContextOptions) {
		o.ThreadStore = r.threadStore
		o.ArtifactStore = r.artifactStore
		o.MaxAgentCalls = r.maxAgentCalls
		o.Observer = r.observer
		o.Logger = logger
	})

	r.logger.Info("run started", "run_id", runID, "thread_id", threadID, "pipeline", r.def.Name())

	content := strings.TrimSpace(req.Content)
	if err := rc.AppendMessage(core.NewMessage(core.RoleUser, content)); err != nil {
		return nil, fmt.Errorf("append user message: %w", err)
	}

	return r.def.Bind(rc).Start(pipeline.NewParams(content))
}

func (r *Runner) loadThread(ctx context.Context, id string) (*core.Thread, error) {
	if id == "" {
		th, err := r.threadStore.Create(ctx)
		if err != nil {
			return nil, fmt.Errorf("create thread: %w", err)
		}
		return th, nil
	}

	th, err := r.threadStore.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get thread %s: %w", id, err)
	}
	return th, nil
}

// postError reports err through the sink. The run context may already be
// cancelled, so the post runs on a context detached from it.
func (r *Runner) postError(ctx context.Context, sink stream.Sink, threadID string, err error) {
	ev := stream.Markdown(threadID, pipeline.ErrorBlock(ErrorTitle, err.Error()))
	if perr := sink.Send(context.WithoutCancel(ctx), ev); perr != nil {
		r.logger.Warn("posting error event", "thread_id", threadID, "error", perr)
	}
}

// Cancel cancels a running run by id.
func (r *Runner) Cancel(runID string) error {
	r.mu.Lock()
	cancel, exists := r.activeRuns[runID]
	r.mu.Unlock()

	if !exists {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}

	cancel()

	return nil
}

// ActiveRuns returns the ids of runs in flight, sorted.
func (r *Runner) ActiveRuns() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.activeRuns))
	for id := range r.activeRuns {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	return ids
}

func (r *Runner) register(runID string, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.activeRuns[runID] = cancel
}

func (r *Runner) unregister(runID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.activeRuns, runID)
}
