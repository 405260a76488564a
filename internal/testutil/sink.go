package testutil

import (
	"context"
	"errors"
	"sync"

	"github.com/hupe1980/secboard/stream"
)

// ErrSinkBroken is returned by a RecordingSink once its failure budget is hit.
var ErrSinkBroken = errors.New("sink broken")

// RecordingSink is a stream.Sink that keeps every event in memory.
type RecordingSink struct {
	mu        sync.Mutex
	events    []stream.Event
	closes    int
	failAfter int
}

// NewRecordingSink creates an empty recording sink.
func NewRecordingSink() *RecordingSink { return &RecordingSink{failAfter: -1} }

// FailAfter makes every Send after the first n accepted events fail.
func (s *RecordingSink) FailAfter(n int) *RecordingSink {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failAfter = n
	return s
}

// Send implements stream.Sink.
func (s *RecordingSink) Send(ctx context.Context, ev stream.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closes > 0 {
		return stream.ErrSinkClosed
	}
	if s.failAfter >= 0 && len(s.events) >= s.failAfter {
		return ErrSinkBroken
	}
	s.events = append(s.events, ev)
	return nil
}

// Close implements stream.Sink.
func (s *RecordingSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	if s.closes > 1 {
		return stream.ErrSinkClosed
	}
	return nil
}

// Events returns the recorded events.
func (s *RecordingSink) Events() []stream.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]stream.Event, len(s.events))
	copy(out, s.events)
	return out
}

// Closes reports how often Close was called.
func (s *RecordingSink) Closes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

// Markdown returns the markdown payloads in order.
func (s *RecordingSink) Markdown() []string {
	var out []string
	for _, ev := range s.Events() {
		if ev.ContentType == stream.ContentTypeMarkdown {
			out = append(out, ev.Text)
		}
	}
	return out
}

// Count returns the number of events of type ct.
func (s *RecordingSink) Count(ct stream.ContentType) int {
	n := 0
	for _, ev := range s.Events() {
		if ev.ContentType == ct {
			n++
		}
	}
	return n
}
