// Package runner drives one onboarding pipeline run per chat request.
//
// A run loads (or creates) the conversation thread, records the user message,
// binds the pipeline definition to a fresh RunContext and fires the Start
// event with the message as cloud service name. Progress events flow to the
// caller's stream.Sink, which the runner closes exactly once when the run is
// over, whatever happened.
//
// Failures outside step boundaries (thread lookup, a broken sink, a panic,
// cancellation) are reported to the caller as one generic markdown error
// block before the sink is closed.
//
// Active runs are registered by run id and can be cancelled with Cancel.
package runner
