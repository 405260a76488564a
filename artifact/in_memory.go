package artifact

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hupe1980/secboard/core"
)

type entry struct {
	file core.File
	data []byte
}

// InMemoryStore is an in-process ArtifactStore for tests, the demo and
// single-process deployments. Data is copied on save and retrieval.
//
// Layout: threadID -> fileID -> entry
type InMemoryStore struct {
	mu    sync.RWMutex
	files map[string]map[string]entry
}

// NewInMemoryStore returns an empty in-memory artifact store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{files: make(map[string]map[string]entry)}
}

// Save stores data under a new file id.
func (a *InMemoryStore) Save(_ context.Context, threadID, name, contentType string, data []byte) (core.File, error) {
	f := core.File{
		ID:          core.NewID(),
		ThreadID:    threadID,
		Name:        name,
		ContentType: contentType,
		Size:        int64(len(data)),
		CreatedAt:   time.Now().UTC(),
	}

	cp := make([]byte, len(data))
	copy(cp, data)

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, exists := a.files[threadID]; !exists {
		a.files[threadID] = make(map[string]entry)
	}
	a.files[threadID][f.ID] = entry{file: f, data: cp}

	return f, nil
}

// Get returns the file metadata and a copy of its content.
func (a *InMemoryStore) Get(_ context.Context, threadID, fileID string) (core.File, []byte, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	e, ok := a.files[threadID][fileID]
	if !ok {
		return core.File{}, nil, core.ErrFileNotFound
	}

	cp := make([]byte, len(e.data))
	copy(cp, e.data)

	return e.file, cp, nil
}

// Stat returns the file metadata.
func (a *InMemoryStore) Stat(_ context.Context, threadID, fileID string) (core.File, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	e, ok := a.files[threadID][fileID]
	if !ok {
		return core.File{}, core.ErrFileNotFound
	}

	return e.file, nil
}

// List returns the files of a thread ordered by creation time.
func (a *InMemoryStore) List(_ context.Context, threadID string) ([]core.File, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]core.File, 0, len(a.files[threadID]))
	for _, e := range a.files[threadID] {
		out = append(out, e.file)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})

	return out, nil
}

// Delete removes the file or returns core.ErrFileNotFound.
func (a *InMemoryStore) Delete(_ context.Context, threadID, fileID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	m, ok := a.files[threadID]
	if !ok {
		return core.ErrFileNotFound
	}
	if _, ok := m[fileID]; !ok {
		return core.ErrFileNotFound
	}

	delete(m, fileID)

	return nil
}
