package stream

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueSink_FIFOAndEOF(t *testing.T) {
	q := NewQueueSink()
	ctx := context.Background()

	require.NoError(t, q.Send(ctx, Markdown("t", "a")))
	require.NoError(t, q.Send(ctx, Markdown("t", "b")))
	require.NoError(t, q.Send(ctx, Sentinel("t")))
	require.NoError(t, q.Close())
	assert.Equal(t, 3, q.Len())

	var got []Event
	for {
		line, err := q.Next(ctx)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		ev, err := Decode(line)
		require.NoError(t, err)
		got = append(got, ev)
	}

	require.Len(t, got, 3)
	assert.Equal(t, "a", got[0].Text)
	assert.Equal(t, "b", got[1].Text)
	assert.Equal(t, ContentTypeSentinel, got[2].ContentType)
}

func TestQueueSink_SendAfterClose(t *testing.T) {
	q := NewQueueSink()
	require.NoError(t, q.Close())
	assert.True(t, q.Closed())

	assert.ErrorIs(t, q.Send(context.Background(), Markdown("t", "late")), ErrSinkClosed)
	assert.ErrorIs(t, q.Close(), ErrSinkClosed)
}

func TestQueueSink_UnknownContentTypeNotQueued(t *testing.T) {
	q := NewQueueSink()
	err := q.Send(context.Background(), Event{ContentType: "bogus"})
	assert.ErrorIs(t, err, ErrUnknownContentType)
	assert.Equal(t, 0, q.Len())
}

func TestQueueSink_ConcurrentProducer(t *testing.T) {
	q := NewQueueSink()
	ctx := context.Background()

	const n = 500

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			_ = q.Send(ctx, Markdown("t", "x"))
		}
		_ = q.Close()
	}()

	count := 0
	for {
		_, err := q.Next(ctx)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		count++
	}
	wg.Wait()

	assert.Equal(t, n, count)
}

func TestQueueSink_NextHonorsContext(t *testing.T) {
	q := NewQueueSink()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWriterSink(t *testing.T) {
	var buf bytes.Buffer
	s := NewWriterSink(&buf)

	require.NoError(t, s.Send(context.Background(), Markdown("t", "hi")))
	require.NoError(t, s.Send(context.Background(), Sentinel("t")))
	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Send(context.Background(), Sentinel("t")), ErrSinkClosed)

	assert.Equal(t,
		`{"content_type":"markdown","thread_id":"t","text":"hi"}`+"\n"+
			`{"content_type":"sentinel","thread_id":"t"}`+"\n",
		buf.String())
}
