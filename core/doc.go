// Package core provides the foundational domain types and interfaces of
// secboard. It defines:
//
//   - Agents (streaming LLM collaborators invoked once per pipeline step)
//   - Threads (conversation containers with an ordered message history)
//   - Parts (typed chunks an agent streams back: text, citations, files)
//   - RunContext (per-run scope shared by every step of one chat request)
//   - Pluggable stores for threads and file artifacts
//
// Concrete stores, agents and the pipeline itself live in sibling packages;
// core only exposes the small interfaces they meet on.
package core
