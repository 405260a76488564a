// Package logging provides a tiny abstraction over slog so downstream code can
// depend on a minimal interface (Logger) while allowing users to plug any
// structured logger.
//
// Components accept Logger and default to NoOpLogger. Applications usually
// construct a StructuredLogger once (NewLogger or NewSlogLogger) and derive
// scoped copies with WithComponent / WithRun:
//
//	log := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	runLog := log.WithComponent("runner").WithRun(threadID, runID)
//	runLog.LogStepExecution("WriteTerraform", "Complete", time.Second, "")
package logging
