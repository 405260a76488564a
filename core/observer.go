package core

import "time"

// Observer receives timing and outcome signals from runs, steps and agent
// calls. The metrics package implements it on top of Prometheus.
type Observer interface {
	ObserveAgentCall(agent string, d time.Duration, err error)
	ObserveStep(step, outcome string, d time.Duration)
	ObserveRun(status string, d time.Duration)
}

// NoOpObserver discards all observations.
type NoOpObserver struct{}

func (NoOpObserver) ObserveAgentCall(string, time.Duration, error) {}
func (NoOpObserver) ObserveStep(string, string, time.Duration)     {}
func (NoOpObserver) ObserveRun(string, time.Duration)              {}
