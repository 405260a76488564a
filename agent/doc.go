// Package agent contains the agent implementations pipeline steps call into
// and the typed Registry they are resolved from.
//
//   - BaseAgent: identity plumbing shared by concrete agents
//   - ModelAgent: a core.Agent backed by a model.Model that streams text
//     deltas and citations back as core.Parts
//   - Registry: the set of agents populated once at startup and read
//     concurrently afterwards
//
// Agents do not know about pipelines or sinks; they receive a
// core.Invocation and return a lazy stream of parts.
package agent
