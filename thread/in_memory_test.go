package thread

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/secboard/core"
)

var _ core.ThreadStore = (*InMemoryStore)(nil)

func TestInMemoryStore_CreateGetAppend(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	th, err := s.Create(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, th.ID)

	require.NoError(t, s.AppendMessage(ctx, th.ID, core.NewMessage(core.RoleUser, "Azure Storage")))
	require.NoError(t, s.AppendMessage(ctx, th.ID, core.NewMessage(core.RoleAssistant, "OK")))

	got, err := s.Get(ctx, th.ID)
	require.NoError(t, err)
	msgs := got.GetMessages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "Azure Storage", msgs[0].Content)
	assert.Equal(t, core.RoleAssistant, msgs[1].Role)
}

func TestInMemoryStore_NotFound(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	_, err := s.Get(ctx, "missing")
	assert.ErrorIs(t, err, core.ErrThreadNotFound)
	assert.ErrorIs(t, s.AppendMessage(ctx, "missing", core.NewMessage(core.RoleUser, "x")), core.ErrThreadNotFound)
}

func TestInMemoryStore_CloneIsolation(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	th, err := s.Create(ctx)
	require.NoError(t, err)

	th.AddMessage(core.NewMessage(core.RoleUser, "local only"))

	got, err := s.Get(ctx, th.ID)
	require.NoError(t, err)
	assert.Zero(t, got.Len())
}

func TestInMemoryStore_ConcurrentAppend(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	th, err := s.Create(ctx)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.AppendMessage(ctx, th.ID, core.NewMessage(core.RoleUser, "x")))
		}()
	}
	wg.Wait()

	got, err := s.Get(ctx, th.ID)
	require.NoError(t, err)
	assert.Equal(t, 50, got.Len())
}
