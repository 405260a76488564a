package core

import "errors"

var (
	// ErrThreadNotFound is returned by a ThreadStore for an unknown thread id.
	ErrThreadNotFound = errors.New("thread not found")

	// ErrFileNotFound is returned by an ArtifactStore for an unknown thread /
	// file id pair.
	ErrFileNotFound = errors.New("file not found")

	// ErrNoArtifactStore is returned by RunContext.SaveFile when the run has no
	// artifact store configured.
	ErrNoArtifactStore = errors.New("artifact store not configured")

	// ErrCallLimitExceeded is returned once a run exceeds its agent call budget.
	ErrCallLimitExceeded = errors.New("agent call limit exceeded")
)
