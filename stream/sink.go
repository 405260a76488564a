package stream

import (
	"context"
	"io"
	"sync"
)

// Sink receives the progress events of a run. Close ends the stream; it is
// called exactly once by the producer when the run is over.
type Sink interface {
	Send(ctx context.Context, ev Event) error
	Close() error
}

// QueueSink is an unbounded in-memory queue of encoded event lines bridging a
// producing pipeline goroutine and a single consumer (typically an HTTP
// response writer). Send never blocks; there is no backpressure.
type QueueSink struct {
	mu     sync.Mutex
	lines  [][]byte
	closed bool
	notify chan struct{}
}

// NewQueueSink creates an empty, open queue.
func NewQueueSink() *QueueSink {
	return &QueueSink{notify: make(chan struct{}, 1)}
}

// Send encodes ev and enqueues the line. Encoding errors are returned as is
// (see ErrUnknownContentType).
func (q *QueueSink) Send(_ context.Context, ev Event) error {
	line, err := ev.Encode()
	if err != nil {
		return err
	}
	return q.Post(line)
}

// Post enqueues an already serialized line.
func (q *QueueSink) Post(line []byte) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrSinkClosed
	}
	q.lines = append(q.lines, line)
	q.mu.Unlock()

	q.wake()

	return nil
}

// Close marks the end of the stream. Lines queued before Close are still
// delivered by Next.
func (q *QueueSink) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrSinkClosed
	}
	q.closed = true
	q.mu.Unlock()

	q.wake()

	return nil
}

// Next blocks until a line is available and returns it. It returns io.EOF
// once the sink is closed and drained, or ctx.Err() when ctx is done.
func (q *QueueSink) Next(ctx context.Context) ([]byte, error) {
	for {
		q.mu.Lock()
		if len(q.lines) > 0 {
			line := q.lines[0]
			q.lines[0] = nil
			q.lines = q.lines[1:]
			q.mu.Unlock()
			return line, nil
		}
		closed := q.closed
		q.mu.Unlock()

		if closed {
			return nil, io.EOF
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.notify:
		}
	}
}

// Len returns the number of queued lines not yet consumed.
func (q *QueueSink) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.lines)
}

// Closed reports whether Close has been called.
func (q *QueueSink) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

func (q *QueueSink) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// WriterSink writes each event as an NDJSON line to an io.Writer. Useful for
// command line runs where stdout is the consumer.
type WriterSink struct {
	mu     sync.Mutex
	w      io.Writer
	closed bool
}

// NewWriterSink creates a sink writing to w.
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

// Send encodes and writes ev.
func (s *WriterSink) Send(_ context.Context, ev Event) error {
	line, err := ev.Encode()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSinkClosed
	}

	_, err = s.w.Write(line)

	return err
}

// Close stops further writes. The underlying writer is left open.
func (s *WriterSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSinkClosed
	}
	s.closed = true

	return nil
}
