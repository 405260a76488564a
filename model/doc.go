// Package model defines the provider neutral Model interface used by agents
// plus an in-memory MockModel. Provider adapters live in the openai and
// anthropic sub packages.
package model
