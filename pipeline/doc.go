// Package pipeline implements the step sequencing state machine behind a
// chat run.
//
// A Builder declares Steps and a transition table: an input event ("Start")
// routes to the first step, and every step maps both of its outcomes
// (Complete and Error) to a successor step or a terminal (Finish / Halt).
// Build validates the table once and yields an immutable Definition. Each
// run binds the Definition to a core.RunContext, producing a Pipeline that is
// driven from the input event to a terminal:
//
//	b := pipeline.NewBuilder("onboarding")
//	first := b.AddStep(stepA)
//	second := b.AddStep(stepB)
//	b.OnInputEvent(pipeline.StartEvent).SendTo(first)
//	first.OnComplete().SendTo(second)
//	first.OnError().Halt()
//	second.OnComplete().Finish()
//	second.OnError().Halt()
//	def, err := b.Build()
//	...
//	res, err := def.Bind(rc).Start(pipeline.NewParams("Azure Storage Account"))
//
// Steps stream their agent output to the run's sink as progress events and
// forward a copy-on-write Params record to their successor.
package pipeline
