package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/secboard/core"
	"github.com/hupe1980/secboard/logging"
	"github.com/hupe1980/secboard/model"
)

// ModelAgentOptions configures a ModelAgent instance.
//
// Use functional options with NewModelAgent to override defaults.
type ModelAgentOptions struct {
	// Instruction is the agent's base system prompt. Step instructions are
	// appended to it.
	Instruction Instruction
	// EnableStreaming requests token streaming from the model.
	EnableStreaming bool
	// MaxHistoryMessages bounds how many thread messages are sent as context
	// (0 = all).
	MaxHistoryMessages int
	Logger             logging.Logger
}

// ModelAgent is a core.Agent backed by a language model.
//
// Each Invoke builds one model request from:
//   - the base instruction plus the step instruction as system prompt
//   - the (bounded) thread history as prior turns
//   - the task as the final user message
//
// and streams the answer back as text deltas followed by any citation parts.
type ModelAgent struct {
	BaseAgent
	llm                model.Model
	instruction        Instruction
	enableStreaming    bool
	maxHistoryMessages int
	logger             logging.Logger
}

// NewModelAgent creates a new model-based agent. Streaming is enabled and the
// history is capped at 20 messages unless overridden.
func NewModelAgent(name string, llm model.Model, optFns ...func(o *ModelAgentOptions)) *ModelAgent {
	opts := ModelAgentOptions{
		Instruction:        NewInstructionFromText(fmt.Sprintf("You are %s, a helpful AI assistant.", name)),
		EnableStreaming:    true,
		MaxHistoryMessages: 20,
		Logger:             logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	return &ModelAgent{
		BaseAgent:          NewBaseAgent(name),
		llm:                llm,
		instruction:        opts.Instruction,
		enableStreaming:    opts.EnableStreaming,
		maxHistoryMessages: opts.MaxHistoryMessages,
		logger:             opts.Logger,
	}
}

// Model returns the language model backing the agent.
func (a *ModelAgent) Model() model.Model { return a.llm }

// Invoke implements core.Agent.
func (a *ModelAgent) Invoke(ctx context.Context, inv core.Invocation) (<-chan core.Part, <-chan error) {
	out := make(chan core.Part, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		start := time.Now()
		tokens, err := a.invoke(ctx, inv, out)
		a.logCall(inv, tokens, time.Since(start), err)
		if err != nil {
			errCh <- err
		}
	}()

	return out, errCh
}

func (a *ModelAgent) invoke(ctx context.Context, inv core.Invocation, out chan<- core.Part) (int, error) {
	req, err := a.buildRequest(inv)
	if err != nil {
		return 0, err
	}

	respCh, modelErrCh := a.llm.Generate(ctx, req)

	var (
		streamedText bool
		tokens       int
	)
	for resp := range respCh {
		if resp.Usage != nil {
			tokens = resp.Usage.TotalTokens
		}
		for _, p := range resp.Content.Parts {
			if tp, ok := p.(core.TextPart); ok {
				if tp.Text == "" {
					continue
				}
				if resp.Partial {
					streamedText = true
				} else if streamedText {
					// final response repeats the streamed text
					continue
				}
			}
			select {
			case <-ctx.Done():
				return tokens, ctx.Err()
			case out <- p:
			}
		}
	}

	if err := <-modelErrCh; err != nil {
		return tokens, err
	}

	return tokens, nil
}

func (a *ModelAgent) buildRequest(inv core.Invocation) (model.Request, error) {
	base, err := a.instruction.Resolve(inv)
	if err != nil {
		return model.Request{}, fmt.Errorf("resolve instruction: %w", err)
	}

	instructions := make([]string, 0, 2)
	for _, s := range []string{base, inv.Instruction} {
		if s = strings.TrimSpace(s); s != "" {
			instructions = append(instructions, s)
		}
	}

	history := inv.History
	if a.maxHistoryMessages > 0 && len(history) > a.maxHistoryMessages {
		history = history[len(history)-a.maxHistoryMessages:]
	}

	contents := make([]core.Content, 0, len(history)+1)
	for _, m := range history {
		if m.Role != core.RoleUser && m.Role != core.RoleAssistant {
			continue
		}
		contents = append(contents, core.NewTextContent(m.Role, m.Content))
	}
	contents = append(contents, core.NewTextContent(core.RoleUser, inv.Task))

	return model.Request{
		Instructions: strings.Join(instructions, "\n\n"),
		Contents:     contents,
		Stream:       a.enableStreaming,
	}, nil
}

func (a *ModelAgent) logCall(inv core.Invocation, tokens int, dur time.Duration, err error) {
	info := a.llm.Info()
	if sl, ok := a.logger.(*logging.StructuredLogger); ok {
		sl.WithRun(inv.ThreadID, inv.RunID).LogAgentCall(a.Name(), info.Name, tokens, dur, err)
		return
	}
	if err != nil {
		a.logger.Error("agent call failed", "agent", a.Name(), "model", info.Name, "duration", dur, "error", err)
		return
	}
	a.logger.Debug("agent call completed", "agent", a.Name(), "model", info.Name, "token_count", tokens, "duration", dur)
}
