package core

import (
	"context"
	"time"
)

// File describes a stored artifact produced during a run.
type File struct {
	ID          string    `json:"file_id"`
	ThreadID    string    `json:"thread_id"`
	Name        string    `json:"file_name"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	CreatedAt   time.Time `json:"created_at"`
}

// ArtifactStore defines the interface for file persistence. Implementations
// must be safe for concurrent use and scope files by thread identifier. Unknown
// files yield ErrFileNotFound.
type ArtifactStore interface {
	Save(ctx context.Context, threadID, name, contentType string, data []byte) (File, error)
	Get(ctx context.Context, threadID, fileID string) (File, []byte, error)
	Stat(ctx context.Context, threadID, fileID string) (File, error)
	List(ctx context.Context, threadID string) ([]File, error)
	Delete(ctx context.Context, threadID, fileID string) error
}
