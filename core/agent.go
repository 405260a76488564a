package core

import "context"

// Invocation is the input of a single agent call.
type Invocation struct {
	RunID    string
	ThreadID string
	// History holds the prior turns of the conversation thread.
	History []Message
	// Instruction is the step level system prompt. Agents combine it with
	// their own base instruction.
	Instruction string
	// Task is the user message the agent has to answer.
	Task string
}

// Agent is an LLM collaborator invoked by pipeline steps.
//
// Invoke streams the answer as a lazy, finite sequence of parts. Both channels
// are closed when the call finishes; the error channel yields at most one
// error. The sequence cannot be restarted, a new call is a new Invoke.
type Agent interface {
	Name() string
	Invoke(ctx context.Context, inv Invocation) (<-chan Part, <-chan error)
}
