package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/secboard/core"
	"github.com/hupe1980/secboard/internal/util"
	"github.com/hupe1980/secboard/logging"
	"github.com/hupe1980/secboard/stream"
)

var tracer = otel.Tracer("github.com/hupe1980/secboard/pipeline")

// ErrMissingCloudServiceName is the failure of a step run without a cloud
// service name.
var ErrMissingCloudServiceName = errors.New("cloud service name must not be empty")

// OutcomeKind is one of the two results of a step.
type OutcomeKind int

const (
	OutcomeComplete OutcomeKind = iota
	OutcomeError
)

// String returns the event name of the outcome.
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeComplete:
		return "Complete"
	case OutcomeError:
		return "Error"
	default:
		return "Unknown"
	}
}

// Outcome is the result of one step execution.
type Outcome struct {
	Kind   OutcomeKind
	Params Params
}

// FileOutput stores a step's answer as a file artifact.
type FileOutput struct {
	Name        string
	ContentType string
	// Languages selects the first fenced code block tagged with one of these
	// languages. Without a match (or when empty) the whole answer is stored.
	Languages []string
}

// Step is one configurable unit of work: render a task from the declared
// input fields, call the agent, stream its output and store the answer in
// the output field.
type Step struct {
	Name string
	// Title heads the step's markdown blocks.
	Title string
	// Instruction is the step's system prompt.
	Instruction string
	// Task is a text/template rendered with the Inputs, e.g.
	// "Make security recommendations for {{.cloud_service_name}}."
	Task   string
	Inputs []Field
	Output Field
	Agent  core.Agent
	File   *FileOutput
}

func (s *Step) title() string {
	if s.Title != "" {
		return s.Title
	}
	return s.Name
}

// Execute runs the step against rc.
//
// Agent failures (and anything else that keeps the step from producing its
// output) become an Error outcome whose ErrorMessage is the failure text,
// announced by one markdown error block. The returned error is reserved for
// failures of the run itself, such as a closed sink or an unencodable event.
func (s *Step) Execute(rc *core.RunContext, in Params) (Outcome, error) {
	ctx, span := tracer.Start(rc.Context, "step "+s.Name, trace.WithAttributes(
		attribute.String("secboard.step", s.Name),
		attribute.String("secboard.thread_id", rc.ThreadID()),
	))
	defer span.End()

	start := time.Now()
	out, err := s.execute(rc.WithContext(ctx), in)
	dur := time.Since(start)

	label := out.Kind.String()
	switch {
	case err != nil:
		label = "Aborted"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	case out.Kind == OutcomeError:
		span.SetStatus(codes.Error, out.Params.ErrorMessage)
	}
	span.SetAttributes(attribute.String("secboard.outcome", label))

	rc.Observer.ObserveStep(s.Name, label, dur)
	switch l := rc.Logger().(type) {
	case *logging.StructuredLogger:
		errMsg := out.Params.ErrorMessage
		if err != nil {
			errMsg = err.Error()
		}
		l.LogStepExecution(s.Name, label, dur, errMsg)
	default:
		if err != nil {
			rc.LogError("step aborted", "step", s.Name, "duration", dur, "error", err)
		} else {
			rc.LogInfo("step finished", "step", s.Name, "outcome", label, "duration", dur, "error_message", out.Params.ErrorMessage)
		}
	}

	return out, err
}

func (s *Step) execute(rc *core.RunContext, in Params) (Outcome, error) {
	threadID := rc.ThreadID()

	fail := func(cause error) (Outcome, error) {
		if err := rc.Post(stream.Markdown(threadID, ErrorBlock(s.title(), cause.Error()))); err != nil {
			return Outcome{Kind: OutcomeError, Params: in.WithError(cause.Error())}, err
		}
		return Outcome{Kind: OutcomeError, Params: in.WithError(cause.Error())}, nil
	}

	if strings.TrimSpace(in.CloudServiceName) == "" {
		return fail(ErrMissingCloudServiceName)
	}

	task, err := util.RenderTemplate(s.Task, in.Values(s.Inputs...))
	if err != nil {
		return fail(fmt.Errorf("render task: %w", err))
	}

	if err := rc.Limiter.Increment(); err != nil {
		return fail(err)
	}

	callCtx, cancel := context.WithCancel(rc.Context)
	defer cancel()

	callStart := time.Now()
	parts, errs := s.Agent.Invoke(callCtx, core.Invocation{
		RunID:       rc.RunID,
		ThreadID:    threadID,
		History:     rc.History(),
		Instruction: s.Instruction,
		Task:        task,
	})

	begun := false
	begin := func() error {
		if begun {
			return nil
		}
		begun = true
		return rc.Post(stream.Markdown(threadID, BeginBlock(s.title())))
	}

	var answer strings.Builder
	for p := range parts {
		ev, ok := partEvent(threadID, p)
		if !ok {
			continue
		}
		if err := begin(); err != nil {
			return Outcome{}, err
		}
		if tp, isText := p.(core.TextPart); isText {
			answer.WriteString(tp.Text)
		}
		if err := rc.Post(ev); err != nil {
			return Outcome{}, err
		}
	}

	callErr := <-errs
	rc.Observer.ObserveAgentCall(s.Agent.Name(), time.Since(callStart), callErr)
	if callErr != nil {
		return fail(callErr)
	}

	if err := begin(); err != nil {
		return Outcome{}, err
	}

	text := answer.String()

	if s.File != nil && rc.ArtifactStore != nil {
		f, err := rc.SaveFile(s.File.Name, s.File.ContentType, []byte(ExtractCodeBlock(text, s.File.Languages...)))
		if err != nil {
			return fail(fmt.Errorf("save %s: %w", s.File.Name, err))
		}
		if err := rc.Post(stream.FileReference(threadID, f.ID)); err != nil {
			return Outcome{}, err
		}
	}

	if err := rc.AppendMessage(core.NewMessage(core.RoleUser, task)); err != nil {
		return fail(fmt.Errorf("append task: %w", err))
	}
	if err := rc.AppendMessage(core.NewMessage(core.RoleAssistant, text)); err != nil {
		return fail(fmt.Errorf("append answer: %w", err))
	}

	if err := rc.Post(stream.Sentinel(threadID)); err != nil {
		return Outcome{}, err
	}

	return Outcome{Kind: OutcomeComplete, Params: in.With(s.Output, text)}, nil
}

// partEvent maps an agent part to its progress event.
func partEvent(threadID string, p core.Part) (stream.Event, bool) {
	switch v := p.(type) {
	case core.TextPart:
		if v.Text == "" {
			return stream.Event{}, false
		}
		return stream.Markdown(threadID, v.Text), true
	case core.URLCitationPart:
		return stream.URLAnnotation(threadID, v.StartIndex, v.EndIndex, v.URL, v.Title), true
	case core.FileCitationPart:
		return stream.FileAnnotation(threadID, v.StartIndex, v.EndIndex, v.FileID, v.Quote), true
	case core.FileReferencePart:
		return stream.FileReference(threadID, v.FileID), true
	}
	return stream.Event{}, false
}

// ExtractCodeBlock returns the body of the first fenced code block in text
// tagged with one of langs. Without langs or a matching block the trimmed text
// is returned.
func ExtractCodeBlock(text string, langs ...string) string {
	if len(langs) == 0 {
		return strings.TrimSpace(text)
	}

	lines := strings.Split(text, "\n")
	for i := 0; i < len(lines); i++ {
		fence := strings.TrimSpace(lines[i])
		if !strings.HasPrefix(fence, "```") {
			continue
		}
		lang := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(fence, "```")))
		if !containsFold(langs, lang) {
			continue
		}
		for j := i + 1; j < len(lines); j++ {
			if strings.TrimSpace(lines[j]) == "```" {
				return strings.Join(lines[i+1:j], "\n") + "\n"
			}
		}
	}

	return strings.TrimSpace(text)
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

// MarshalText encodes the outcome by name.
func (k OutcomeKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}
