// Package testutil contains stub agents, recording sinks and small builders
// shared by tests. It is not intended for production usage.
package testutil
