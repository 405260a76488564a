// Package artifact contains implementations of core.ArtifactStore.
//
// The interface lives in the core package to keep domain contracts central.
// This package provides the in-memory backend; sub-packages such as s3 add
// durable ones that can be swapped without touching calling code.
package artifact
