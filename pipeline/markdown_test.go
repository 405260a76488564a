package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBlocks(t *testing.T) {
	assert.Equal(t, "\n***\n## Build Azure Policy\n\n", BeginBlock("Build Azure Policy"))
	assert.Equal(t, "\n***\n**Error processing chat**\ntimeout\n", ErrorBlock("Error processing chat", "timeout"))
}
