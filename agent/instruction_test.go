package agent

import (
	"testing"

	"github.com/hupe1980/secboard/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstruction_Static(t *testing.T) {
	in := NewInstructionFromText("static")
	assert.True(t, in.IsStatic())

	got, err := in.Resolve(core.Invocation{})
	require.NoError(t, err)
	assert.Equal(t, "static", got)
}

func TestInstruction_Provider(t *testing.T) {
	in := NewInstructionFromFunc(func(inv core.Invocation) (string, error) {
		return "thread " + inv.ThreadID, nil
	})
	assert.False(t, in.IsStatic())

	got, err := in.Resolve(core.Invocation{ThreadID: "t-1"})
	require.NoError(t, err)
	assert.Equal(t, "thread t-1", got)
}
