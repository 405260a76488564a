package agent

import "github.com/hupe1980/secboard/core"

// Provider supplies dynamic instruction text per invocation.
type Provider interface {
	Instruction(inv core.Invocation) (string, error)
}

// Func is a functional adapter to allow ordinary functions to be used as Providers.
type Func func(inv core.Invocation) (string, error)

// Instruction implements Provider.
func (f Func) Instruction(inv core.Invocation) (string, error) { return f(inv) }

// Instruction represents either a static instruction string or a dynamic provider.
type Instruction struct {
	text     string
	provider Provider
}

// NewInstructionFromText creates an Instruction from a static string.
func NewInstructionFromText(text string) Instruction { return Instruction{text: text} }

// NewInstructionFromProvider creates an Instruction from a dynamic provider.
func NewInstructionFromProvider(p Provider) Instruction { return Instruction{provider: p} }

// NewInstructionFromFunc creates an Instruction from a function.
func NewInstructionFromFunc(f func(inv core.Invocation) (string, error)) Instruction {
	return Instruction{provider: Func(f)}
}

// IsStatic returns true if the instruction is backed by a static string.
func (i Instruction) IsStatic() bool { return i.provider == nil }

// Resolve returns the instruction text, invoking the provider if needed.
func (i Instruction) Resolve(inv core.Invocation) (string, error) {
	if i.provider != nil {
		return i.provider.Instruction(inv)
	}
	return i.text, nil
}
