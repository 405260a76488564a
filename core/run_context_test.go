package core

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/secboard/stream"
)

type captureSink struct {
	events []stream.Event
}

func (s *captureSink) Send(_ context.Context, ev stream.Event) error {
	s.events = append(s.events, ev)
	return nil
}

func (s *captureSink) Close() error { return nil }

type appendOnlyStore struct {
	appended map[string][]Message
	err      error
}

func (s *appendOnlyStore) Create(context.Context) (*Thread, error) { return NewThread(NewID()), nil }

func (s *appendOnlyStore) Get(context.Context, string) (*Thread, error) {
	return nil, ErrThreadNotFound
}

func (s *appendOnlyStore) AppendMessage(_ context.Context, id string, msg Message) error {
	if s.err != nil {
		return s.err
	}
	if s.appended == nil {
		s.appended = map[string][]Message{}
	}
	s.appended[id] = append(s.appended[id], msg)
	return nil
}

func TestRunContext_PostStampsThreadID(t *testing.T) {
	sink := &captureSink{}
	rc := NewRunContext(context.Background(), "run-1", NewThread("t1"), sink)

	require.NoError(t, rc.Post(stream.Markdown("", "hello")))
	require.NoError(t, rc.Post(stream.Markdown("other", "x")))

	require.Len(t, sink.events, 2)
	assert.Equal(t, "t1", sink.events[0].ThreadID)
	assert.Equal(t, "other", sink.events[1].ThreadID)
}

func TestRunContext_AppendMessagePersists(t *testing.T) {
	store := &appendOnlyStore{}
	th := NewThread("t1")
	rc := NewRunContext(context.Background(), "run-1", th, &captureSink{}, func(o *RunContextOptions) {
		o.ThreadStore = store
	})

	require.NoError(t, rc.AppendMessage(NewMessage(RoleUser, "Azure Storage")))

	assert.Equal(t, 1, th.Len())
	assert.Len(t, store.appended["t1"], 1)
	assert.Equal(t, "Azure Storage", rc.History()[0].Content)
}

func TestRunContext_AppendMessageStoreError(t *testing.T) {
	boom := errors.New("db down")
	rc := NewRunContext(context.Background(), "run-1", NewThread("t1"), &captureSink{}, func(o *RunContextOptions) {
		o.ThreadStore = &appendOnlyStore{err: boom}
	})

	assert.ErrorIs(t, rc.AppendMessage(NewMessage(RoleUser, "x")), boom)
}

func TestRunContext_SaveFileWithoutStore(t *testing.T) {
	rc := NewRunContext(context.Background(), "run-1", nil, &captureSink{})

	require.NotEmpty(t, rc.ThreadID())
	_, err := rc.SaveFile("main.tf", "text/plain", []byte("x"))
	assert.ErrorIs(t, err, ErrNoArtifactStore)
}

func TestRunContext_WithContextSharesLimiter(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	rc := NewRunContext(context.Background(), "run-1", nil, &captureSink{}, func(o *RunContextOptions) {
		o.MaxAgentCalls = 1
	})

	child := rc.WithContext(ctx)
	require.NoError(t, child.Limiter.Increment())
	assert.ErrorIs(t, rc.Limiter.Increment(), ErrCallLimitExceeded)

	cancel()
	assert.ErrorIs(t, child.Err(), context.Canceled)
	assert.NoError(t, rc.Err())
}
