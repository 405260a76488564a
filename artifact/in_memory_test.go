package artifact

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/secboard/core"
)

var _ core.ArtifactStore = (*InMemoryStore)(nil)

func TestInMemoryStore_SaveGetIsolation(t *testing.T) {
	ctx := context.Background()
	svc := NewInMemoryStore()
	data := []byte("hello")

	f, err := svc.Save(ctx, "t1", "main.tf", "text/plain", data)
	require.NoError(t, err)
	assert.NotEmpty(t, f.ID)
	assert.Equal(t, "main.tf", f.Name)
	assert.Equal(t, int64(5), f.Size)

	data[0] = 'H'
	got, out, err := svc.Get(ctx, "t1", f.ID)
	require.NoError(t, err)
	assert.Equal(t, f, got)
	assert.Equal(t, "hello", string(out))

	out[0] = 'x'
	_, out2, _ := svc.Get(ctx, "t1", f.ID)
	assert.Equal(t, "hello", string(out2))
}

func TestInMemoryStore_ScopedByThread(t *testing.T) {
	ctx := context.Background()
	svc := NewInMemoryStore()

	f, err := svc.Save(ctx, "t1", "a.json", "application/json", []byte("{}"))
	require.NoError(t, err)

	_, _, err = svc.Get(ctx, "t2", f.ID)
	assert.ErrorIs(t, err, core.ErrFileNotFound)
	_, err = svc.Stat(ctx, "t2", f.ID)
	assert.ErrorIs(t, err, core.ErrFileNotFound)
}

func TestInMemoryStore_ListAndDelete(t *testing.T) {
	ctx := context.Background()
	svc := NewInMemoryStore()

	a1, err := svc.Save(ctx, "t1", "a1", "text/plain", []byte("1"))
	require.NoError(t, err)
	_, err = svc.Save(ctx, "t1", "a2", "text/plain", []byte("2"))
	require.NoError(t, err)

	files, err := svc.List(ctx, "t1")
	require.NoError(t, err)
	assert.Len(t, files, 2)

	require.NoError(t, svc.Delete(ctx, "t1", a1.ID))
	assert.ErrorIs(t, svc.Delete(ctx, "t1", a1.ID), core.ErrFileNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, "nope", a1.ID), core.ErrFileNotFound)

	files, _ = svc.List(ctx, "t1")
	require.Len(t, files, 1)
	assert.Equal(t, "a2", files[0].Name)

	empty, err := svc.List(ctx, "unknown")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestInMemoryStore_Concurrency(t *testing.T) {
	ctx := context.Background()
	svc := NewInMemoryStore()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.Save(ctx, "t1", fmt.Sprintf("a%d", i%10), "text/plain", []byte("data"))
			assert.NoError(t, err)
			_, _ = svc.List(ctx, "t1")
		}(i)
	}
	wg.Wait()

	files, err := svc.List(ctx, "t1")
	require.NoError(t, err)
	assert.Len(t, files, 100)
}
