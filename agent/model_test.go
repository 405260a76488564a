package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/hupe1980/secboard/core"
	"github.com/hupe1980/secboard/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collectParts(partCh <-chan core.Part, errCh <-chan error) ([]core.Part, error) {
	var parts []core.Part
	for p := range partCh {
		parts = append(parts, p)
	}
	return parts, <-errCh
}

func TestModelAgent_StreamsTextWithoutDuplicatingFinal(t *testing.T) {
	llm := model.NewMockModel("mock")
	llm.AddResponse("Key Vault", "Enable purge protection.")
	a := NewModelAgent("cloud-security-agent", llm)

	parts, err := collectParts(a.Invoke(context.Background(), core.Invocation{Task: "Secure Key Vault"}))
	require.NoError(t, err)

	assert.Equal(t, "Enable purge protection.", core.TextOf(parts))
	assert.Greater(t, len(parts), 1)
}

func TestModelAgent_NonStreamingForwardsFinal(t *testing.T) {
	llm := model.NewMockModel("mock")
	llm.AddResponse("x", "answer")
	llm.AddCitation(core.URLCitationPart{StartIndex: 0, EndIndex: 6, URL: "https://example.com", Title: "Example"})

	a := NewModelAgent("a", llm, func(o *ModelAgentOptions) { o.EnableStreaming = false })

	parts, err := collectParts(a.Invoke(context.Background(), core.Invocation{Task: "x"}))
	require.NoError(t, err)
	require.Len(t, parts, 2)
	assert.Equal(t, core.TextPart{Text: "answer"}, parts[0])
	assert.IsType(t, core.URLCitationPart{}, parts[1])
}

func TestModelAgent_StreamingForwardsCitationsFromFinal(t *testing.T) {
	llm := model.NewMockModel("mock")
	llm.AddResponse("x", "two words")
	llm.AddCitation(core.FileCitationPart{FileID: "file-1", Quote: "q"})

	a := NewModelAgent("a", llm)

	parts, err := collectParts(a.Invoke(context.Background(), core.Invocation{Task: "x"}))
	require.NoError(t, err)
	assert.Equal(t, "two words", core.TextOf(parts))
	assert.IsType(t, core.FileCitationPart{}, parts[len(parts)-1])
}

func TestModelAgent_BuildsRequestFromInvocation(t *testing.T) {
	llm := model.NewMockModel("mock")
	a := NewModelAgent("a", llm, func(o *ModelAgentOptions) {
		o.Instruction = NewInstructionFromText("You onboard cloud services.")
		o.MaxHistoryMessages = 2
	})

	history := []core.Message{
		core.NewMessage(core.RoleUser, "dropped"),
		core.NewMessage(core.RoleUser, "Azure Storage Account"),
		core.NewMessage(core.RoleAssistant, "internal recs"),
	}

	_, err := collectParts(a.Invoke(context.Background(), core.Invocation{
		History:     history,
		Instruction: "Build Azure Policy.",
		Task:        "Build an Azure Policy for Azure Storage Account.",
	}))
	require.NoError(t, err)

	calls := llm.Calls()
	require.Len(t, calls, 1)
	req := calls[0]

	assert.Equal(t, "You onboard cloud services.\n\nBuild Azure Policy.", req.Instructions)
	require.Len(t, req.Contents, 3)
	assert.Equal(t, "Azure Storage Account", req.Contents[0].Text())
	assert.Equal(t, core.RoleAssistant, req.Contents[1].Role)
	assert.Equal(t, "Build an Azure Policy for Azure Storage Account.", req.Contents[2].Text())
	assert.True(t, req.Stream)
}

func TestModelAgent_PropagatesModelError(t *testing.T) {
	llm := model.NewMockModel("mock")
	llm.AddError("docs", errors.New("timeout"))
	a := NewModelAgent("a", llm)

	parts, err := collectParts(a.Invoke(context.Background(), core.Invocation{Task: "public docs"}))
	assert.Empty(t, parts)
	assert.EqualError(t, err, "timeout")
}

func TestModelAgent_InstructionProviderError(t *testing.T) {
	llm := model.NewMockModel("mock")
	a := NewModelAgent("a", llm, func(o *ModelAgentOptions) {
		o.Instruction = NewInstructionFromFunc(func(core.Invocation) (string, error) {
			return "", errors.New("no prompt")
		})
	})

	_, err := collectParts(a.Invoke(context.Background(), core.Invocation{Task: "x"}))
	assert.ErrorContains(t, err, "no prompt")
	assert.Empty(t, llm.Calls())
}
